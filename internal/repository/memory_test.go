package repository

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/unclebandit/certificate-service/internal/errors"
	"github.com/unclebandit/certificate-service/internal/model"
)

type fixture struct {
	repos    *Repositories
	dataset  *model.Dataset
	template *model.Template
	run      *model.Run
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	repos := NewMemory()
	owner := uuid.New()

	ds := &model.Dataset{OwnerGroupID: owner, Name: "turma", RawColumns: `["nome","email"]`, RawRows: `[["Ana","a@x"]]`}
	require.NoError(t, repos.Datasets.Create(ctx, ds))
	tpl := &model.Template{OwnerGroupID: owner, Name: "cert", Document: "<p>{{nome}}</p>"}
	require.NoError(t, repos.Templates.Create(ctx, tpl))
	run := &model.Run{OwnerGroupID: owner, Name: "r", TemplateID: tpl.ID, DatasetID: ds.ID, NameColumn: "nome", EmailColumn: "email", TotalRows: 1}
	require.NoError(t, repos.Runs.Create(ctx, run))

	return &fixture{repos: repos, dataset: ds, template: tpl, run: run}
}

func TestMemoryRunMarkProcessingIsExclusive(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	var mu sync.Mutex
	wins, conflicts := 0, 0
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := f.repos.Runs.MarkProcessing(ctx, f.run.ID, time.Now())
			mu.Lock()
			defer mu.Unlock()
			if err == nil {
				wins++
			} else if appErrors.IsInvalidState(err) {
				conflicts++
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, wins)
	assert.Equal(t, 7, conflicts)
}

func TestMemoryRunFinishRequiresProcessing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	err := f.repos.Runs.Finish(ctx, f.run.ID, model.RunCompleted, 1, time.Now())
	assert.True(t, appErrors.IsInvalidState(err))

	_, err = f.repos.Runs.MarkProcessing(ctx, f.run.ID, time.Now())
	require.NoError(t, err)
	require.NoError(t, f.repos.Runs.Finish(ctx, f.run.ID, model.RunCompleted, 1, time.Now()))

	got, err := f.repos.Runs.GetByID(ctx, f.run.ID)
	require.NoError(t, err)
	assert.Equal(t, model.RunCompleted, got.Status)
	assert.NotNil(t, got.CompletedAt)
	assert.Equal(t, 1, got.CertificatesGenerated)
}

func TestMemoryRunDeleteCascades(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	runID := f.run.ID

	var certs []*model.Certificate
	for i := 0; i < 3; i++ {
		c := &model.Certificate{RunID: &runID, OwnerGroupID: f.run.OwnerGroupID, RowIndex: i}
		require.NoError(t, f.repos.Certificates.Create(ctx, c))
		certs = append(certs, c)
	}
	for i := 0; i < 2; i++ {
		c := &model.EmailCampaign{RunID: runID, Name: "c", Subject: "s", Body: "b"}
		require.NoError(t, f.repos.Campaigns.Create(ctx, c))
		require.NoError(t, f.repos.Campaigns.CreateEmailLog(ctx, &model.EmailLog{
			CampaignID: c.ID, CertificateID: certs[i].ID, Status: model.EmailSent,
		}))
	}

	res, err := f.repos.Runs.Delete(ctx, runID)
	require.NoError(t, err)
	assert.Equal(t, &RunDeleteResult{EmailLogsDeleted: 2, CampaignsDeleted: 2, CertificatesDeleted: 3}, res)

	_, err = f.repos.Runs.GetByID(ctx, runID)
	assert.True(t, appErrors.IsNotFound(err))
	n, err := f.repos.Certificates.CountByRun(ctx, runID, model.CertificateCompleted)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestMemoryRunDeleteWhileProcessing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.repos.Runs.MarkProcessing(ctx, f.run.ID, time.Now())
	require.NoError(t, err)

	_, err = f.repos.Runs.Delete(ctx, f.run.ID)
	require.NoError(t, err)
	_, err = f.repos.Runs.GetByID(ctx, f.run.ID)
	assert.True(t, appErrors.IsNotFound(err))
}

func TestMemoryDatasetDeleteRefusedWhileReferenced(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	assert.True(t, appErrors.IsInvalidState(f.repos.Datasets.Delete(ctx, f.dataset.ID)))
	assert.True(t, appErrors.IsInvalidState(f.repos.Templates.Delete(ctx, f.template.ID)))

	_, err := f.repos.Runs.Delete(ctx, f.run.ID)
	require.NoError(t, err)
	assert.NoError(t, f.repos.Datasets.Delete(ctx, f.dataset.ID))
	assert.NoError(t, f.repos.Templates.Delete(ctx, f.template.ID))
}

func TestMemoryCampaignMarkSending(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	c := &model.EmailCampaign{RunID: f.run.ID, Name: "c", Subject: "s", Body: "b"}
	require.NoError(t, f.repos.Campaigns.Create(ctx, c))
	assert.Equal(t, model.CampaignDraft, c.Status)

	_, err := f.repos.Campaigns.MarkSending(ctx, c.ID, time.Now())
	require.NoError(t, err)

	_, err = f.repos.Campaigns.MarkSending(ctx, c.ID, time.Now())
	assert.True(t, appErrors.IsInvalidState(err))
	assert.True(t, appErrors.IsInvalidState(f.repos.Campaigns.Delete(ctx, c.ID)))

	require.NoError(t, f.repos.Campaigns.Finish(ctx, c.ID, model.CampaignCompleted, 3, time.Now()))

	_, err = f.repos.Campaigns.MarkSending(ctx, c.ID, time.Now())
	var sent *appErrors.AlreadySentError
	assert.ErrorAs(t, err, &sent)
}

func TestMemoryCampaignUpdateOnlyWhileDraft(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	c := &model.EmailCampaign{RunID: f.run.ID, Name: "c", Subject: "s", Body: "b"}
	require.NoError(t, f.repos.Campaigns.Create(ctx, c))

	c.Subject = "new"
	require.NoError(t, f.repos.Campaigns.Update(ctx, c))

	_, err := f.repos.Campaigns.MarkSending(ctx, c.ID, time.Now())
	require.NoError(t, err)
	assert.True(t, appErrors.IsInvalidState(f.repos.Campaigns.Update(ctx, c)))

	got, err := f.repos.Campaigns.GetByID(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, "new", got.Subject)
}

func TestMemoryCertificatesByRunInRowOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	runID := f.run.ID

	for _, idx := range []int{2, 0, 1} {
		require.NoError(t, f.repos.Certificates.Create(ctx, &model.Certificate{RunID: &runID, RowIndex: idx}))
	}
	require.NoError(t, f.repos.Certificates.Create(ctx, &model.Certificate{RunID: &runID, RowIndex: 3, Status: model.CertificateRevoked}))

	certs, err := f.repos.Certificates.ListByRun(ctx, runID, model.CertificateCompleted)
	require.NoError(t, err)
	require.Len(t, certs, 3)
	for i, c := range certs {
		assert.Equal(t, i, c.RowIndex)
	}
}

func TestMemoryListPaginatesNewestFirst(t *testing.T) {
	ctx := context.Background()
	repos := NewMemory()
	owner, other := uuid.New(), uuid.New()

	for _, name := range []string{"a", "b", "c"} {
		require.NoError(t, repos.Templates.Create(ctx, &model.Template{OwnerGroupID: owner, Name: name}))
	}
	require.NoError(t, repos.Templates.Create(ctx, &model.Template{OwnerGroupID: other, Name: "x"}))

	page, total, err := repos.Templates.List(ctx, ListFilter{OwnerGroupID: &owner, Offset: 1, Limit: 1})
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, page, 1)
	assert.Equal(t, "b", page[0].Name)

	all, total, err := repos.Templates.List(ctx, ListFilter{})
	require.NoError(t, err)
	assert.Equal(t, 4, total)
	assert.Len(t, all, 4)
	assert.Equal(t, []string{}, all[0].DetectedFields)
}
