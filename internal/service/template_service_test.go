package service_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/unclebandit/certificate-service/internal/errors"
	"github.com/unclebandit/certificate-service/internal/render"
	"github.com/unclebandit/certificate-service/internal/service"
)

func TestTemplateDetectedFields(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	tpl := h.template(t, "<h1>{{nome}}</h1><p>{{curso}} {{nome}}</p>")
	assert.Equal(t, []string{"nome", "curso"}, tpl.DetectedFields)

	doc := "{{aluno}} em {{data}}"
	updated, err := h.templates.UpdateTemplate(ctx, tpl.ID, service.UpdateTemplateInput{Document: &doc})
	require.NoError(t, err)
	assert.Equal(t, []string{"aluno", "data"}, updated.DetectedFields)
	assert.Equal(t, "cert", updated.Name)

	got, err := h.templates.GetTemplate(ctx, tpl.ID)
	require.NoError(t, err)
	assert.Equal(t, doc, got.Document)
}

func TestTemplatePreview(t *testing.T) {
	h := newHarness(t)
	tpl := h.template(t, "Certificamos que {{nome}} concluiu {{curso}}")

	out, err := h.templates.Preview(context.Background(), tpl.ID, render.Fields{{Key: "nome", Value: "Ana"}})
	require.NoError(t, err)
	assert.Equal(t, "Certificamos que Ana concluiu {{curso}}", out)
}

func TestDeleteTemplateInUse(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	tpl := h.template(t, "{{nome}}")
	h.run(t, h.dataset(t, "nome,email\nAna,a@x"), tpl)

	assert.True(t, appErrors.IsInvalidState(h.templates.DeleteTemplate(ctx, tpl.ID)))
}
