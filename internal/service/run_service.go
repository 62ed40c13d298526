package service

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	appErrors "github.com/unclebandit/certificate-service/internal/errors"
	"github.com/unclebandit/certificate-service/internal/logging"
	"github.com/unclebandit/certificate-service/internal/metrics"
	"github.com/unclebandit/certificate-service/internal/model"
	"github.com/unclebandit/certificate-service/internal/queue"
	"github.com/unclebandit/certificate-service/internal/render"
	"github.com/unclebandit/certificate-service/internal/repository"
	"github.com/unclebandit/certificate-service/internal/tabular"
)

type RunService struct {
	Runs         repository.RunRepositoryInterface
	Certificates repository.CertificateRepositoryInterface
	Templates    repository.TemplateRepositoryInterface
	Datasets     *DatasetService
	Queue        queue.Queue

	// PublicBaseURL prefixes verification links.
	PublicBaseURL string
}

type CreateRunInput struct {
	OwnerGroupID uuid.UUID
	Name         string
	DatasetID    uuid.UUID
	TemplateID   uuid.UUID
	NameColumn   string
	EmailColumn  string
}

// Reasons a row produced no certificate.
const (
	SkipMissingName   = "missing_name"
	SkipMissingEmail  = "missing_email"
	FailEncodeRow     = "row_encode_failed"
	FailPersistResult = "persist_failed"
)

// RowResult is the outcome of one dataset row: a certificate, or the
// reason there is none.
type RowResult struct {
	RowIndex      int        `json:"row_index"`
	CertificateID *uuid.UUID `json:"certificate_id,omitempty"`
	Reason        string     `json:"reason,omitempty"`
	Failed        bool       `json:"failed,omitempty"`
}

// ExecuteSummary aggregates the row results of a run.
type ExecuteSummary struct {
	RunID                 uuid.UUID       `json:"run_id"`
	Status                model.RunStatus `json:"status"`
	TotalRows             int             `json:"total_rows"`
	CertificatesGenerated int             `json:"certificates_generated"`
	Skipped               int             `json:"skipped"`
	Failed                int             `json:"failed"`
	Rows                  []RowResult     `json:"rows"`
}

func (s *ExecuteSummary) add(r RowResult) {
	s.Rows = append(s.Rows, r)
	switch {
	case r.CertificateID != nil:
		s.CertificatesGenerated++
		metrics.CertificateRows.WithLabelValues(metrics.RowGenerated).Inc()
	case r.Failed:
		s.Failed++
		metrics.CertificateRows.WithLabelValues(metrics.RowFailed).Inc()
	default:
		s.Skipped++
		metrics.CertificateRows.WithLabelValues(metrics.RowSkipped).Inc()
	}
}

// RunProgress is the generation progress of a run.
type RunProgress struct {
	RunID                 uuid.UUID       `json:"run_id"`
	Status                model.RunStatus `json:"status"`
	TotalRows             int             `json:"total_rows"`
	CertificatesGenerated int             `json:"certificates_generated"`
	Percent               float64         `json:"percent"`
	StartedAt             *time.Time      `json:"started_at,omitempty"`
	CompletedAt           *time.Time      `json:"completed_at,omitempty"`
}

// CreateRun validates the dataset, template and columns, then stores a
// pending run with a snapshot of the dataset row count.
func (s *RunService) CreateRun(ctx context.Context, in CreateRunInput) (*model.Run, error) {
	table, err := s.Datasets.Table(ctx, in.DatasetID)
	if err != nil {
		return nil, err
	}
	if _, err := s.Templates.GetByID(ctx, in.TemplateID); err != nil {
		return nil, err
	}
	if err := requireColumns(table, in.NameColumn, in.EmailColumn); err != nil {
		return nil, err
	}

	run := &model.Run{
		OwnerGroupID: in.OwnerGroupID,
		Name:         strings.TrimSpace(in.Name),
		TemplateID:   in.TemplateID,
		DatasetID:    in.DatasetID,
		NameColumn:   in.NameColumn,
		EmailColumn:  in.EmailColumn,
		Status:       model.RunPending,
		TotalRows:    len(table.Rows),
	}
	if err := s.Runs.Create(ctx, run); err != nil {
		return nil, err
	}
	return run, nil
}

// Execute renders one certificate per valid dataset row. Only a pending run
// can execute; the status flip is atomic so concurrent calls cannot both
// proceed. Row failures are tallied, never returned.
func (s *RunService) Execute(ctx context.Context, id uuid.UUID) (*ExecuteSummary, error) {
	started := time.Now().UTC()
	run, err := s.Runs.MarkProcessing(ctx, id, started)
	if err != nil {
		return nil, err
	}

	// The batch runs to completion even if the caller goes away.
	ctx = context.WithoutCancel(ctx)
	log := logging.WithFields(ctx, "run_id", run.ID)
	log.Info("run started", "total_rows", run.TotalRows)

	summary, err := s.generate(ctx, run)
	if err != nil {
		log.Error("run aborted", "error", err)
		s.finish(ctx, run.ID, model.RunError, 0, started)
		return nil, err
	}

	summary.Status = model.RunError
	if summary.CertificatesGenerated > 0 {
		summary.Status = model.RunCompleted
	}
	if err := s.finish(ctx, run.ID, summary.Status, summary.CertificatesGenerated, started); err != nil {
		return nil, err
	}

	log.Info("run finished", "status", summary.Status,
		"generated", summary.CertificatesGenerated, "skipped", summary.Skipped, "failed", summary.Failed)
	return summary, nil
}

func (s *RunService) finish(ctx context.Context, id uuid.UUID, status model.RunStatus, generated int, started time.Time) error {
	completed := time.Now().UTC()
	metrics.RunDuration.Observe(completed.Sub(started).Seconds())
	metrics.RunsFinished.WithLabelValues(string(status)).Inc()
	if err := s.Runs.Finish(ctx, id, status, generated, completed); err != nil {
		logging.WithFields(ctx, "run_id", id).Error("failed to persist run status", "status", status, "error", err)
		return err
	}
	return nil
}

func (s *RunService) generate(ctx context.Context, run *model.Run) (*ExecuteSummary, error) {
	table, err := s.Datasets.Table(ctx, run.DatasetID)
	if err != nil {
		return nil, fmt.Errorf("failed to load dataset: %w", err)
	}
	tpl, err := s.Templates.GetByID(ctx, run.TemplateID)
	if err != nil {
		return nil, fmt.Errorf("failed to load template: %w", err)
	}

	summary := &ExecuteSummary{RunID: run.ID, TotalRows: run.TotalRows, Rows: []RowResult{}}
	for i := range table.Rows {
		summary.add(s.generateRow(ctx, run, tpl, table, i))
	}
	return summary, nil
}

func (s *RunService) generateRow(ctx context.Context, run *model.Run, tpl *model.Template, table *tabular.Table, i int) RowResult {
	log := logging.WithFields(ctx, "run_id", run.ID, "row_index", i)

	name := strings.TrimSpace(table.Value(i, run.NameColumn))
	email := strings.TrimSpace(table.Value(i, run.EmailColumn))
	if name == "" {
		return RowResult{RowIndex: i, Reason: SkipMissingName}
	}
	if email == "" {
		return RowResult{RowIndex: i, Reason: SkipMissingEmail}
	}

	fields := table.Fields(i)
	fields.Set("nome", name)
	fields.Set("name", name)

	rowData, err := json.Marshal(table.Fields(i))
	if err != nil {
		log.Error("failed to encode row", "error", err)
		return RowResult{RowIndex: i, Reason: FailEncodeRow, Failed: true}
	}

	cert := &model.Certificate{
		RunID:           &run.ID,
		OwnerGroupID:    run.OwnerGroupID,
		TemplateID:      run.TemplateID,
		DatasetID:       run.DatasetID,
		RowIndex:        i,
		RowData:         rowData,
		SubjectName:     model.StringPtr(name),
		RenderedContent: render.Render(tpl.Document, fields),
		Status:          model.CertificateCompleted,
		VerificationURL: model.StringPtr(s.verificationURL(run.ID, i)),
		EmailRecipient:  model.StringPtr(email),
	}
	if err := s.Certificates.Create(ctx, cert); err != nil {
		log.Error("failed to store certificate", "error", err)
		return RowResult{RowIndex: i, Reason: FailPersistResult, Failed: true}
	}
	return RowResult{RowIndex: i, CertificateID: &cert.ID}
}

// verificationURL is derived from the 1-based row ordinal.
func (s *RunService) verificationURL(runID uuid.UUID, rowIndex int) string {
	return fmt.Sprintf("%s/verify/%s/%d", strings.TrimRight(s.PublicBaseURL, "/"), runID, rowIndex+1)
}

// ExecuteAsync queues a pending run for a worker.
func (s *RunService) ExecuteAsync(ctx context.Context, id uuid.UUID) (*model.Run, error) {
	run, err := s.Runs.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if run.Status != model.RunPending {
		return nil, appErrors.NewInvalidState("run", id, string(run.Status), "execute")
	}
	if s.Queue == nil {
		return nil, fmt.Errorf("no queue configured")
	}
	if err := s.Queue.Publish(queue.TopicRunExecutions, queue.Job{ID: id}); err != nil {
		return nil, fmt.Errorf("failed to enqueue run: %w", err)
	}
	logging.WithFields(ctx, "run_id", id).Info("run queued")
	return run, nil
}

// Progress reports how far generation has got.
func (s *RunService) Progress(ctx context.Context, id uuid.UUID) (*RunProgress, error) {
	run, err := s.Runs.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	generated := run.CertificatesGenerated
	if run.Status == model.RunProcessing {
		if generated, err = s.Certificates.CountByRun(ctx, id, model.CertificateCompleted); err != nil {
			return nil, err
		}
	}

	p := &RunProgress{
		RunID:                 run.ID,
		Status:                run.Status,
		TotalRows:             run.TotalRows,
		CertificatesGenerated: generated,
		StartedAt:             run.StartedAt,
		CompletedAt:           run.CompletedAt,
	}
	if run.Status.Terminal() {
		p.Percent = 100
	} else if run.TotalRows > 0 {
		p.Percent = float64(generated) * 100 / float64(run.TotalRows)
	}
	return p, nil
}

func (s *RunService) GetRun(ctx context.Context, id uuid.UUID) (*model.Run, error) {
	return s.Runs.GetByID(ctx, id)
}

func (s *RunService) ListRuns(ctx context.Context, p Page) ([]*model.Run, map[string]int, error) {
	p = p.normalize()
	runs, total, err := s.Runs.List(ctx, p.filter())
	if err != nil {
		return nil, nil, err
	}
	return runs, pagination(p, total), nil
}

func (s *RunService) RenameRun(ctx context.Context, id uuid.UUID, name string) (*model.Run, error) {
	if err := s.Runs.UpdateName(ctx, id, strings.TrimSpace(name)); err != nil {
		return nil, err
	}
	return s.Runs.GetByID(ctx, id)
}

// DeleteRun removes the run with its email logs, campaigns and
// certificates. A processing run cannot be deleted.
func (s *RunService) DeleteRun(ctx context.Context, id uuid.UUID) (*repository.RunDeleteResult, error) {
	res, err := s.Runs.Delete(ctx, id)
	if err != nil {
		return nil, err
	}
	logging.WithFields(ctx, "run_id", id).Info("run deleted",
		"certificates", res.CertificatesDeleted, "campaigns", res.CampaignsDeleted, "email_logs", res.EmailLogsDeleted)
	return res, nil
}
