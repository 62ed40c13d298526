package service

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/unclebandit/certificate-service/internal/model"
	"github.com/unclebandit/certificate-service/internal/render"
	"github.com/unclebandit/certificate-service/internal/repository"
)

type TemplateService struct {
	Repo repository.TemplateRepositoryInterface
}

// UpdateTemplateInput carries a partial update; nil fields are kept.
type UpdateTemplateInput struct {
	Name     *string
	Document *string
}

func (s *TemplateService) CreateTemplate(ctx context.Context, ownerGroupID uuid.UUID, name, document string) (*model.Template, error) {
	t := &model.Template{
		OwnerGroupID:   ownerGroupID,
		Name:           strings.TrimSpace(name),
		Document:       document,
		DetectedFields: render.DetectFields(document),
	}
	if err := s.Repo.Create(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

func (s *TemplateService) GetTemplate(ctx context.Context, id uuid.UUID) (*model.Template, error) {
	return s.Repo.GetByID(ctx, id)
}

func (s *TemplateService) ListTemplates(ctx context.Context, p Page) ([]*model.Template, map[string]int, error) {
	p = p.normalize()
	templates, total, err := s.Repo.List(ctx, p.filter())
	if err != nil {
		return nil, nil, err
	}
	return templates, pagination(p, total), nil
}

// UpdateTemplate applies in and recomputes the detected fields.
func (s *TemplateService) UpdateTemplate(ctx context.Context, id uuid.UUID, in UpdateTemplateInput) (*model.Template, error) {
	t, err := s.Repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if in.Name != nil {
		t.Name = strings.TrimSpace(*in.Name)
	}
	if in.Document != nil {
		t.Document = *in.Document
	}
	t.DetectedFields = render.DetectFields(t.Document)

	if err := s.Repo.Update(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

func (s *TemplateService) DeleteTemplate(ctx context.Context, id uuid.UUID) error {
	return s.Repo.Delete(ctx, id)
}

// Preview renders the template against caller-supplied sample fields.
func (s *TemplateService) Preview(ctx context.Context, id uuid.UUID, fields render.Fields) (string, error) {
	t, err := s.Repo.GetByID(ctx, id)
	if err != nil {
		return "", err
	}
	return render.Render(t.Document, fields), nil
}
