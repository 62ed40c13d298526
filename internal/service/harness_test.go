package service_test

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/unclebandit/certificate-service/internal/mailer"
	"github.com/unclebandit/certificate-service/internal/model"
	"github.com/unclebandit/certificate-service/internal/repository"
	"github.com/unclebandit/certificate-service/internal/service"
)

const testBaseURL = "https://certs.example.com"

// fakeSender records deliveries and fails for the listed recipients.
type fakeSender struct {
	mu     sync.Mutex
	fail   map[string]bool
	sent   []mailer.Message
	before func()
}

func (f *fakeSender) Send(_ context.Context, msg mailer.Message) error {
	if f.before != nil {
		f.before()
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.fail[msg.To] {
		return errors.New("mailbox unavailable")
	}
	f.sent = append(f.sent, msg)
	return nil
}

func (f *fakeSender) messages() []mailer.Message {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]mailer.Message(nil), f.sent...)
}

type harness struct {
	repos        *repository.Repositories
	sender       *fakeSender
	datasets     *service.DatasetService
	templates    *service.TemplateService
	runs         *service.RunService
	certificates *service.CertificateService
	campaigns    *service.CampaignService
	owner        uuid.UUID
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	repos := repository.NewMemory()
	datasets := &service.DatasetService{Repo: repos.Datasets, Cache: service.NewDatasetCache(16, time.Minute)}
	sender := &fakeSender{fail: map[string]bool{}}

	return &harness{
		repos:     repos,
		sender:    sender,
		datasets:  datasets,
		templates: &service.TemplateService{Repo: repos.Templates},
		runs: &service.RunService{
			Runs:          repos.Runs,
			Certificates:  repos.Certificates,
			Templates:     repos.Templates,
			Datasets:      datasets,
			PublicBaseURL: testBaseURL,
		},
		certificates: &service.CertificateService{Repo: repos.Certificates},
		campaigns: &service.CampaignService{
			CampaignRepo:    repos.Campaigns,
			RunRepo:         repos.Runs,
			CertificateRepo: repos.Certificates,
			Datasets:        datasets,
			Mailer:          sender,
			From:            "certs@example.com",
		},
		owner: uuid.New(),
	}
}

func (h *harness) dataset(t *testing.T, raw string) *model.Dataset {
	t.Helper()
	d, err := h.datasets.CreateDataset(context.Background(), h.owner, "turma", raw)
	require.NoError(t, err)
	return d
}

func (h *harness) template(t *testing.T, document string) *model.Template {
	t.Helper()
	tpl, err := h.templates.CreateTemplate(context.Background(), h.owner, "cert", document)
	require.NoError(t, err)
	return tpl
}

func (h *harness) run(t *testing.T, d *model.Dataset, tpl *model.Template) *model.Run {
	t.Helper()
	run, err := h.runs.CreateRun(context.Background(), service.CreateRunInput{
		OwnerGroupID: h.owner,
		Name:         "run",
		DatasetID:    d.ID,
		TemplateID:   tpl.ID,
		NameColumn:   "nome",
		EmailColumn:  "email",
	})
	require.NoError(t, err)
	return run
}

// executedRun creates and executes a run over raw with the given template.
func (h *harness) executedRun(t *testing.T, raw, document string) (*model.Run, *service.ExecuteSummary) {
	t.Helper()
	run := h.run(t, h.dataset(t, raw), h.template(t, document))
	summary, err := h.runs.Execute(context.Background(), run.ID)
	require.NoError(t, err)
	return run, summary
}

func (h *harness) campaign(t *testing.T, runID uuid.UUID, subject, body string, html *string) *model.EmailCampaign {
	t.Helper()
	c, err := h.campaigns.CreateCampaign(context.Background(), service.CreateCampaignInput{
		RunID:    runID,
		Name:     "envio",
		Subject:  subject,
		Body:     body,
		HTMLBody: html,
	})
	require.NoError(t, err)
	return c
}
