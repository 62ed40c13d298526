package service

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	appErrors "github.com/unclebandit/certificate-service/internal/errors"
	"github.com/unclebandit/certificate-service/internal/model"
	"github.com/unclebandit/certificate-service/internal/repository"
)

type CertificateService struct {
	Repo repository.CertificateRepositoryInterface
}

// UpdateCertificateInput carries a partial update; nil fields are kept.
type UpdateCertificateInput struct {
	SubjectName         *string
	EmailRecipient      *string
	RenderedDocumentRef *string
	Status              *model.CertificateStatus
}

func (s *CertificateService) GetCertificate(ctx context.Context, id uuid.UUID) (*model.Certificate, error) {
	return s.Repo.GetByID(ctx, id)
}

func (s *CertificateService) ListCertificates(ctx context.Context, p Page, runID *uuid.UUID, status model.CertificateStatus) ([]*model.Certificate, map[string]int, error) {
	p = p.normalize()
	certs, total, err := s.Repo.List(ctx, repository.CertificateFilter{
		ListFilter: p.filter(),
		RunID:      runID,
		Status:     status,
	})
	if err != nil {
		return nil, nil, err
	}
	return certs, pagination(p, total), nil
}

func (s *CertificateService) UpdateCertificate(ctx context.Context, id uuid.UUID, in UpdateCertificateInput) (*model.Certificate, error) {
	c, err := s.Repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if in.SubjectName != nil {
		c.SubjectName = model.StringPtr(strings.TrimSpace(*in.SubjectName))
	}
	if in.EmailRecipient != nil {
		c.EmailRecipient = model.StringPtr(strings.TrimSpace(*in.EmailRecipient))
	}
	if in.RenderedDocumentRef != nil {
		c.RenderedDocumentRef = model.StringPtr(*in.RenderedDocumentRef)
	}
	if in.Status != nil {
		c.Status = *in.Status
	}
	if err := s.Repo.Update(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *CertificateService) DeleteCertificate(ctx context.Context, id uuid.UUID) error {
	return s.Repo.Delete(ctx, id)
}

// Verify resolves a verification link (run id plus 1-based row ordinal)
// and stamps the first verification time. Revoked certificates do not
// verify.
func (s *CertificateService) Verify(ctx context.Context, runID uuid.UUID, ordinal int) (*model.Certificate, error) {
	certs, err := s.Repo.ListByRun(ctx, runID, model.CertificateCompleted)
	if err != nil {
		return nil, err
	}
	for _, c := range certs {
		if c.RowIndex != ordinal-1 {
			continue
		}
		if c.VerifiedAt == nil {
			now := time.Now().UTC()
			c.VerifiedAt = &now
			if err := s.Repo.Update(ctx, c); err != nil {
				return nil, err
			}
		}
		return c, nil
	}
	return nil, appErrors.NewNotFound("certificate", verificationKey{runID, ordinal})
}

type verificationKey struct {
	runID   uuid.UUID
	ordinal int
}

func (k verificationKey) String() string {
	return k.runID.String() + "/" + strconv.Itoa(k.ordinal)
}
