package service_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/unclebandit/certificate-service/internal/errors"
	"github.com/unclebandit/certificate-service/internal/model"
	"github.com/unclebandit/certificate-service/internal/queue"
	"github.com/unclebandit/certificate-service/internal/service"
)

func TestExecuteSkipsRowWithoutName(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	run, summary := h.executedRun(t, "nome,email\nAna,ana@x.com\n,b@x.com", "Ola {{nome}}")

	assert.Equal(t, model.RunCompleted, summary.Status)
	assert.Equal(t, 1, summary.CertificatesGenerated)
	assert.Equal(t, 1, summary.Skipped)
	assert.Zero(t, summary.Failed)
	require.Len(t, summary.Rows, 2)
	assert.NotNil(t, summary.Rows[0].CertificateID)
	assert.Equal(t, service.SkipMissingName, summary.Rows[1].Reason)

	got, err := h.runs.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunCompleted, got.Status)
	assert.Equal(t, 1, got.CertificatesGenerated)
	assert.NotNil(t, got.StartedAt)
	assert.NotNil(t, got.CompletedAt)

	certs, _, err := h.certificates.ListCertificates(ctx, service.Page{}, &run.ID, "")
	require.NoError(t, err)
	require.Len(t, certs, 1)
	cert := certs[0]
	assert.Equal(t, 0, cert.RowIndex)
	assert.Equal(t, "Ola Ana", cert.RenderedContent)
	assert.Equal(t, model.CertificateCompleted, cert.Status)
	assert.Equal(t, "ana@x.com", cert.Recipient())
	assert.Equal(t, fmt.Sprintf("%s/verify/%s/1", testBaseURL, run.ID), *cert.VerificationURL)
	assert.JSONEq(t, `{"nome":"Ana","email":"ana@x.com"}`, string(cert.RowData))
}

func TestExecuteWithNoValidRowsEndsInError(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	run, summary := h.executedRun(t, "nome,email\nAna,\n,b@x.com\n  ,  ", "{{nome}}")

	assert.Equal(t, model.RunError, summary.Status)
	assert.Zero(t, summary.CertificatesGenerated)
	assert.Equal(t, 3, summary.Skipped)
	assert.Equal(t, service.SkipMissingEmail, summary.Rows[0].Reason)
	assert.Equal(t, service.SkipMissingName, summary.Rows[2].Reason, "whitespace-only cells count as missing")

	got, err := h.runs.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunError, got.Status)
	assert.Zero(t, got.CertificatesGenerated)
	assert.NotNil(t, got.CompletedAt)
}

func TestExecuteGeneratedMatchesStoredCertificates(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	raw := "nome,email,curso\nAna,a@x,Go\nBeto,b@x,Go\n,c@x,Go\nDani,d@x,Rust\nEva,,Go"
	run, summary := h.executedRun(t, raw, "{{nome}} - {{curso}}")

	n, err := h.repos.Certificates.CountByRun(ctx, run.ID, model.CertificateCompleted)
	require.NoError(t, err)
	assert.Equal(t, summary.CertificatesGenerated, n)
	assert.LessOrEqual(t, n, run.TotalRows)
	assert.Equal(t, 3, n)
	assert.Equal(t, 5, run.TotalRows)

	certs, err := h.repos.Certificates.ListByRun(ctx, run.ID, model.CertificateCompleted)
	require.NoError(t, err)
	var indexes []int
	for _, c := range certs {
		indexes = append(indexes, c.RowIndex)
	}
	assert.Equal(t, []int{0, 1, 3}, indexes)
	assert.Equal(t, "Dani - Rust", certs[2].RenderedContent)
	assert.Equal(t, fmt.Sprintf("%s/verify/%s/4", testBaseURL, run.ID), *certs[2].VerificationURL)
}

func TestExecuteRowFailureDoesNotAbortRun(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	run := h.run(t, h.dataset(t, "nome,email\nAna,a@x\nBeto,b@x\nCaio,c@x"), h.template(t, "{{nome}}"))
	h.runs.Certificates = flakyCertificates{CertificateRepositoryInterface: h.repos.Certificates, failRow: 1}

	summary, err := h.runs.Execute(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunCompleted, summary.Status)
	assert.Equal(t, 2, summary.CertificatesGenerated)
	assert.Equal(t, 1, summary.Failed)
	assert.Zero(t, summary.Skipped)
	require.Len(t, summary.Rows, 3)
	assert.Equal(t, service.RowResult{RowIndex: 1, Reason: service.FailPersistResult, Failed: true}, summary.Rows[1])

	stored, err := h.runs.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunCompleted, stored.Status)
	assert.Equal(t, 2, stored.CertificatesGenerated)
}

func TestExecuteAliasesNameColumn(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	d := h.dataset(t, "aluno,email\nAna,a@x")
	tpl := h.template(t, "{{aluno}}|{{nome}}|{{name}}")
	run, err := h.runs.CreateRun(ctx, service.CreateRunInput{
		OwnerGroupID: h.owner, DatasetID: d.ID, TemplateID: tpl.ID,
		NameColumn: "aluno", EmailColumn: "email",
	})
	require.NoError(t, err)

	_, err = h.runs.Execute(ctx, run.ID)
	require.NoError(t, err)

	certs, err := h.repos.Certificates.ListByRun(ctx, run.ID, model.CertificateCompleted)
	require.NoError(t, err)
	require.Len(t, certs, 1)
	assert.Equal(t, "Ana|Ana|Ana", certs[0].RenderedContent)
	assert.Equal(t, "Ana", *certs[0].SubjectName)
}

func TestExecuteRejectsNonPendingRun(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	completed, _ := h.executedRun(t, "nome,email\nAna,a@x", "{{nome}}")
	_, err := h.runs.Execute(ctx, completed.ID)
	assert.True(t, appErrors.IsInvalidState(err))

	failed, _ := h.executedRun(t, "nome,email\n,a@x", "{{nome}}")
	_, err = h.runs.Execute(ctx, failed.ID)
	assert.True(t, appErrors.IsInvalidState(err), "a run in error is not retried")

	_, err = h.runs.Execute(ctx, uuid.New())
	assert.True(t, appErrors.IsNotFound(err))
}

func TestConcurrentExecuteRunsOnce(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	run := h.run(t, h.dataset(t, "nome,email\nAna,a@x\nBeto,b@x"), h.template(t, "{{nome}}"))

	var wg sync.WaitGroup
	var mu sync.Mutex
	var ok, rejected int
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := h.runs.Execute(ctx, run.ID)
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				ok++
			} else if appErrors.IsInvalidState(err) {
				rejected++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, ok)
	assert.Equal(t, 4, rejected)
	n, err := h.repos.Certificates.CountByRun(ctx, run.ID, model.CertificateCompleted)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestExecuteIgnoresCallerCancellation(t *testing.T) {
	h := newHarness(t)
	run := h.run(t, h.dataset(t, "nome,email\nAna,a@x"), h.template(t, "{{nome}}"))

	ctx, cancel := context.WithCancel(context.Background())
	summary, err := h.runs.Execute(ctx, run.ID)
	cancel()
	require.NoError(t, err)
	assert.Equal(t, 1, summary.CertificatesGenerated)
}

func TestExecuteUsesUnmigratedLegacyDataset(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	legacy := &model.Dataset{OwnerGroupID: h.owner, Name: "antigo", RawColumns: "nome,email", RawRows: "nome,email\nAna,a@x\n\nBeto,b@x"}
	require.NoError(t, h.repos.Datasets.Create(ctx, legacy))

	run := h.run(t, legacy, h.template(t, "{{nome}}"))
	assert.Equal(t, 2, run.TotalRows)

	summary, err := h.runs.Execute(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, summary.CertificatesGenerated)
}

func TestExecuteFailsRunWhenTemplateVanished(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	d := h.dataset(t, "nome,email\nAna,a@x")
	tpl := h.template(t, "{{nome}}")
	run := h.run(t, d, tpl)

	// Bypass the service guard to simulate a template removed mid-flight.
	h.runs.Templates = &missingTemplates{h.repos.Templates}

	_, err := h.runs.Execute(ctx, run.ID)
	require.Error(t, err)
	assert.True(t, appErrors.IsNotFound(err))

	got, err := h.runs.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunError, got.Status)
	assert.NotNil(t, got.CompletedAt)
}

func TestCreateRunValidation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	d := h.dataset(t, "nome,email\nAna,a@x")
	tpl := h.template(t, "{{nome}}")

	tests := []struct {
		name  string
		in    service.CreateRunInput
		check func(t *testing.T, err error)
	}{
		{
			name: "missing dataset",
			in:   service.CreateRunInput{DatasetID: uuid.New(), TemplateID: tpl.ID, NameColumn: "nome", EmailColumn: "email"},
			check: func(t *testing.T, err error) {
				assert.True(t, appErrors.IsNotFound(err))
			},
		},
		{
			name: "missing template",
			in:   service.CreateRunInput{DatasetID: d.ID, TemplateID: uuid.New(), NameColumn: "nome", EmailColumn: "email"},
			check: func(t *testing.T, err error) {
				assert.True(t, appErrors.IsNotFound(err))
			},
		},
		{
			name: "missing email column",
			in:   service.CreateRunInput{DatasetID: d.ID, TemplateID: tpl.ID, NameColumn: "nome", EmailColumn: "mail"},
			check: func(t *testing.T, err error) {
				var colErr *appErrors.ColumnNotFoundError
				require.ErrorAs(t, err, &colErr)
				assert.Equal(t, "mail", colErr.Column)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := h.runs.CreateRun(ctx, tt.in)
			tt.check(t, err)
		})
	}

	runs, _, err := h.runs.ListRuns(ctx, service.Page{})
	require.NoError(t, err)
	assert.Empty(t, runs, "failed validation must not create a run")
}

func TestRunProgress(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	run := h.run(t, h.dataset(t, "nome,email\nAna,a@x\nBeto,b@x"), h.template(t, "{{nome}}"))

	p, err := h.runs.Progress(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunPending, p.Status)
	assert.Zero(t, p.Percent)

	_, err = h.runs.Execute(ctx, run.ID)
	require.NoError(t, err)

	p, err = h.runs.Progress(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunCompleted, p.Status)
	assert.Equal(t, 2, p.CertificatesGenerated)
	assert.Equal(t, 100.0, p.Percent)
}

func TestDeleteRunCascades(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	run, _ := h.executedRun(t, "nome,email\nAna,a@x\nBeto,b@x", "{{nome}}")
	c := h.campaign(t, run.ID, "Oi {{nome}}", "corpo", nil)
	_, err := h.campaigns.SendCampaign(ctx, c.ID)
	require.NoError(t, err)

	res, err := h.runs.DeleteRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, res.CertificatesDeleted)
	assert.Equal(t, 1, res.CampaignsDeleted)
	assert.Equal(t, 2, res.EmailLogsDeleted)

	_, err = h.campaigns.GetCampaignDetails(ctx, c.ID)
	assert.True(t, appErrors.IsNotFound(err))
}

func TestDeleteRunStuckInProcessing(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	run := h.run(t, h.dataset(t, "nome,email\nAna,a@x"), h.template(t, "{{nome}}"))

	_, err := h.repos.Runs.MarkProcessing(ctx, run.ID, time.Now())
	require.NoError(t, err)
	_, err = h.runs.Execute(ctx, run.ID)
	require.True(t, appErrors.IsInvalidState(err))

	_, err = h.runs.DeleteRun(ctx, run.ID)
	require.NoError(t, err)
	_, err = h.repos.Runs.GetByID(ctx, run.ID)
	assert.True(t, appErrors.IsNotFound(err))
}

func TestExecuteAsyncThroughQueue(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	q := queue.NewInMemoryQueue()
	h.runs.Queue = q
	require.NoError(t, queue.StartRunExecutionSubscriber(q, func(ctx context.Context, id uuid.UUID) error {
		_, err := h.runs.Execute(ctx, id)
		return err
	}))

	run := h.run(t, h.dataset(t, "nome,email\nAna,a@x"), h.template(t, "{{nome}}"))
	queued, err := h.runs.ExecuteAsync(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunPending, queued.Status)

	q.Wait()

	got, err := h.runs.GetRun(ctx, run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunCompleted, got.Status)

	_, err = h.runs.ExecuteAsync(ctx, run.ID)
	assert.True(t, appErrors.IsInvalidState(err))
}
