package service_test

import (
	"context"
	"errors"

	"github.com/google/uuid"

	appErrors "github.com/unclebandit/certificate-service/internal/errors"
	"github.com/unclebandit/certificate-service/internal/model"
	"github.com/unclebandit/certificate-service/internal/repository"
)

// missingTemplates behaves as if every template had been deleted.
type missingTemplates struct {
	repository.TemplateRepositoryInterface
}

func (missingTemplates) GetByID(_ context.Context, id uuid.UUID) (*model.Template, error) {
	return nil, appErrors.NewNotFound("template", id)
}

// flakyCertificates fails to store the certificate of one row.
type flakyCertificates struct {
	repository.CertificateRepositoryInterface
	failRow int
}

func (f flakyCertificates) Create(ctx context.Context, c *model.Certificate) error {
	if c.RowIndex == f.failRow {
		return errors.New("connection reset")
	}
	return f.CertificateRepositoryInterface.Create(ctx, c)
}
