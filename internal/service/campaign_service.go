// internal/service/campaign_service.go
package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	appErrors "github.com/unclebandit/certificate-service/internal/errors"
	"github.com/unclebandit/certificate-service/internal/logging"
	"github.com/unclebandit/certificate-service/internal/mailer"
	"github.com/unclebandit/certificate-service/internal/metrics"
	"github.com/unclebandit/certificate-service/internal/model"
	"github.com/unclebandit/certificate-service/internal/queue"
	"github.com/unclebandit/certificate-service/internal/render"
	"github.com/unclebandit/certificate-service/internal/repository"
	"github.com/unclebandit/certificate-service/internal/tabular"
)

type CampaignService struct {
	CampaignRepo    repository.CampaignRepositoryInterface
	RunRepo         repository.RunRepositoryInterface
	CertificateRepo repository.CertificateRepositoryInterface
	Datasets        *DatasetService
	Mailer          mailer.Sender
	Queue           queue.Queue

	// From is the sender address of every campaign email.
	From string
}

type CreateCampaignInput struct {
	OwnerGroupID *uuid.UUID
	RunID        uuid.UUID
	Name         string
	Subject      string
	Body         string
	HTMLBody     *string
}

// UpdateCampaignInput carries a partial update; nil fields are kept.
type UpdateCampaignInput struct {
	Name     *string
	Subject  *string
	Body     *string
	HTMLBody *string
}

// SendSummary tallies one send. Skipped counts certificates that an
// earlier send of the same campaign already delivered.
type SendSummary struct {
	CampaignID uuid.UUID            `json:"campaign_id"`
	Status     model.CampaignStatus `json:"status"`
	Total      int                  `json:"total"`
	Sent       int                  `json:"sent"`
	Failed     int                  `json:"failed"`
	Skipped    int                  `json:"skipped"`
	EmailsSent int                  `json:"emails_sent"`
}

// RenderedMessage is the personalized email for one certificate.
type RenderedMessage struct {
	To      string `json:"to"`
	Subject string `json:"subject"`
	Text    string `json:"text"`
	HTML    string `json:"html,omitempty"`
}

type CampaignDetails struct {
	*model.EmailCampaign
	Stats map[string]int `json:"stats"`
}

// CreateCampaign drafts a campaign over the completed certificates of a
// completed run.
func (s *CampaignService) CreateCampaign(ctx context.Context, in CreateCampaignInput) (*model.EmailCampaign, error) {
	run, err := s.RunRepo.GetByID(ctx, in.RunID)
	if err != nil {
		return nil, err
	}
	if run.Status != model.RunCompleted {
		return nil, appErrors.NewInvalidState("run", run.ID, string(run.Status), "create campaign for")
	}
	total, err := s.CertificateRepo.CountByRun(ctx, run.ID, model.CertificateCompleted)
	if err != nil {
		return nil, err
	}
	if total == 0 {
		return nil, appErrors.NewInvalidState("run", run.ID, "no completed certificates", "create campaign for")
	}

	owner := run.OwnerGroupID
	if in.OwnerGroupID != nil {
		owner = *in.OwnerGroupID
	}
	c := &model.EmailCampaign{
		OwnerGroupID: owner,
		RunID:        run.ID,
		Name:         strings.TrimSpace(in.Name),
		Subject:      in.Subject,
		Body:         in.Body,
		HTMLBody:     in.HTMLBody,
		Status:       model.CampaignDraft,
		TotalEmails:  total,
	}
	if err := s.CampaignRepo.Create(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// SendCampaign emails every completed certificate of the campaign's run.
// A failed recipient is logged and tallied; the campaign ends in error if
// any recipient failed.
func (s *CampaignService) SendCampaign(ctx context.Context, campaignID uuid.UUID) (*SendSummary, error) {
	campaign, err := s.CampaignRepo.MarkSending(ctx, campaignID, time.Now().UTC())
	if err != nil {
		return nil, err
	}

	ctx = context.WithoutCancel(ctx)
	log := logging.WithFields(ctx, "campaign_id", campaign.ID, "run_id", campaign.RunID)

	certs, err := s.CertificateRepo.ListByRun(ctx, campaign.RunID, model.CertificateCompleted)
	if err != nil {
		log.Error("failed to load certificates", "error", err)
		s.finish(ctx, campaign.ID, model.CampaignError, campaign.EmailsSent)
		return nil, err
	}
	log.Info("campaign send started", "recipients", len(certs))

	alreadySent, err := s.CampaignRepo.SentCertificateIDs(ctx, campaign.ID)
	if err != nil {
		log.Error("failed to load previous deliveries", "error", err)
		s.finish(ctx, campaign.ID, model.CampaignError, campaign.EmailsSent)
		return nil, err
	}

	summary := &SendSummary{CampaignID: campaign.ID, Total: len(certs)}
	tables := map[uuid.UUID]*tabular.Table{}
	for _, cert := range certs {
		if alreadySent[cert.ID] {
			summary.Skipped++
			continue
		}
		if s.deliver(ctx, campaign, cert, s.tableFor(ctx, tables, cert.DatasetID)) {
			summary.Sent++
		} else {
			summary.Failed++
		}
	}

	summary.EmailsSent = summary.Sent + summary.Skipped
	summary.Status = model.CampaignCompleted
	if summary.Failed > 0 {
		summary.Status = model.CampaignError
	}
	if err := s.finish(ctx, campaign.ID, summary.Status, summary.EmailsSent); err != nil {
		return nil, err
	}

	log.Info("campaign send finished", "status", summary.Status,
		"sent", summary.Sent, "failed", summary.Failed, "skipped", summary.Skipped)
	return summary, nil
}

func (s *CampaignService) finish(ctx context.Context, id uuid.UUID, status model.CampaignStatus, emailsSent int) error {
	metrics.CampaignsFinished.WithLabelValues(string(status)).Inc()
	if err := s.CampaignRepo.Finish(ctx, id, status, emailsSent, time.Now().UTC()); err != nil {
		logging.WithFields(ctx, "campaign_id", id).Error("failed to persist campaign status", "status", status, "error", err)
		return err
	}
	return nil
}

// tableFor loads each dataset once per send. A dataset that cannot be
// loaded yields nil, and rendering falls back to the certificate snapshot.
func (s *CampaignService) tableFor(ctx context.Context, tables map[uuid.UUID]*tabular.Table, datasetID uuid.UUID) *tabular.Table {
	if t, ok := tables[datasetID]; ok {
		return t
	}
	t, err := s.Datasets.Table(ctx, datasetID)
	if err != nil {
		logging.WithFields(ctx, "dataset_id", datasetID).Warn("dataset unavailable, using row snapshots", "error", err)
		t = nil
	}
	tables[datasetID] = t
	return t
}

// deliver sends one certificate's email and records the outcome.
func (s *CampaignService) deliver(ctx context.Context, campaign *model.EmailCampaign, cert *model.Certificate, table *tabular.Table) bool {
	log := logging.WithFields(ctx, "campaign_id", campaign.ID, "certificate_id", cert.ID)

	msg, err := s.render(ctx, campaign, cert, table)
	if err != nil {
		log.Warn("recipient failed", "error", err)
		s.logEmail(ctx, log, campaign.ID, cert, model.EmailFailed, err.Error())
		metrics.EmailsDispatched.WithLabelValues(string(model.EmailFailed)).Inc()
		return false
	}

	if err := s.Mailer.Send(ctx, mailer.Message{From: s.From, To: msg.To, Subject: msg.Subject, Text: msg.Text, HTML: msg.HTML}); err != nil {
		terr := &appErrors.TransportError{Recipient: msg.To, Err: err}
		log.Warn("email transport failed", "error", terr)
		s.logEmail(ctx, log, campaign.ID, cert, model.EmailFailed, terr.Error())
		metrics.EmailsDispatched.WithLabelValues(string(model.EmailFailed)).Inc()
		return false
	}

	if err := s.CertificateRepo.MarkEmailSent(ctx, cert.ID); err != nil {
		log.Error("failed to flag certificate as emailed", "error", err)
	}
	s.logEmail(ctx, log, campaign.ID, cert, model.EmailSent, "")
	metrics.EmailsDispatched.WithLabelValues(string(model.EmailSent)).Inc()
	return true
}

func (s *CampaignService) logEmail(ctx context.Context, log *slog.Logger, campaignID uuid.UUID, cert *model.Certificate, status model.EmailLogStatus, reason string) {
	entry := &model.EmailLog{
		CampaignID:    campaignID,
		CertificateID: cert.ID,
		Recipient:     cert.Recipient(),
		Status:        status,
		Error:         reason,
	}
	if err := s.CampaignRepo.CreateEmailLog(ctx, entry); err != nil {
		log.Error("failed to record email log", "error", err)
	}
}

// render personalizes subject, body and HTML body for one certificate.
// Fixed fields come first so dataset columns with the same name win.
func (s *CampaignService) render(ctx context.Context, campaign *model.EmailCampaign, cert *model.Certificate, table *tabular.Table) (*RenderedMessage, error) {
	recipient := cert.Recipient()
	if recipient == "" {
		return nil, fmt.Errorf("certificate %s has no email recipient", cert.ID)
	}

	fields := s.fields(ctx, cert, table)
	msg := &RenderedMessage{
		To:      recipient,
		Subject: render.Render(campaign.Subject, fields),
		Text:    render.Render(campaign.Body, fields),
	}
	if campaign.HTMLBody != nil && *campaign.HTMLBody != "" {
		msg.HTML = render.Render(*campaign.HTMLBody, fields)
		if strings.TrimSpace(msg.Text) == "" {
			text, err := render.TextFromHTML(msg.HTML)
			if err != nil {
				return nil, fmt.Errorf("failed to derive text body: %w", err)
			}
			msg.Text = text
		}
	}
	return msg, nil
}

func (s *CampaignService) fields(ctx context.Context, cert *model.Certificate, table *tabular.Table) render.Fields {
	recipient := cert.Recipient()
	var name, link string
	if cert.SubjectName != nil {
		name = *cert.SubjectName
	}
	if cert.VerificationURL != nil {
		link = *cert.VerificationURL
	}

	fields := render.Fields{}
	fields.Set("certificate_id", cert.ID.String())
	fields.Set("recipient", recipient)
	fields.Set("email", recipient)
	fields.Set("name", name)
	fields.Set("nome", name)
	fields.Set("verification_url", link)
	fields.Set("link", link)

	if table != nil && cert.RowIndex >= 0 && cert.RowIndex < len(table.Rows) {
		fields.Merge(table.Fields(cert.RowIndex))
		return fields
	}
	snapshot, err := snapshotFields(cert.RowData)
	if err != nil {
		logging.WithFields(ctx, "certificate_id", cert.ID).Warn("unreadable row snapshot", "error", err)
		return fields
	}
	fields.Merge(snapshot)
	return fields
}

// snapshotFields decodes a certificate's row snapshot in column order.
func snapshotFields(raw json.RawMessage) (render.Fields, error) {
	if len(raw) == 0 {
		return nil, nil
	}
	var fields render.Fields
	if err := json.Unmarshal(raw, &fields); err != nil {
		return nil, err
	}
	return fields, nil
}

// RenderPreview renders the campaign for one of its certificates without
// sending anything.
func (s *CampaignService) RenderPreview(ctx context.Context, campaignID, certificateID uuid.UUID) (*RenderedMessage, error) {
	campaign, err := s.CampaignRepo.GetByID(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	cert, err := s.CertificateRepo.GetByID(ctx, certificateID)
	if err != nil {
		return nil, err
	}
	if cert.RunID == nil || *cert.RunID != campaign.RunID {
		return nil, appErrors.NewNotFound("certificate", certificateID)
	}

	table, err := s.Datasets.Table(ctx, cert.DatasetID)
	if err != nil && !appErrors.IsNotFound(err) {
		return nil, err
	}
	return s.render(ctx, campaign, cert, table)
}

// SendCampaignAsync queues a sendable campaign for a worker.
func (s *CampaignService) SendCampaignAsync(ctx context.Context, campaignID uuid.UUID) (*model.EmailCampaign, error) {
	campaign, err := s.CampaignRepo.GetByID(ctx, campaignID)
	if err != nil {
		return nil, err
	}
	if campaign.Status == model.CampaignCompleted {
		return nil, appErrors.NewAlreadySent(campaignID)
	}
	if !campaign.Sendable() {
		return nil, appErrors.NewInvalidState("campaign", campaignID, string(campaign.Status), "send")
	}
	if s.Queue == nil {
		return nil, fmt.Errorf("no queue configured")
	}
	if err := s.Queue.Publish(queue.TopicCampaignSends, queue.Job{ID: campaignID}); err != nil {
		return nil, fmt.Errorf("failed to enqueue campaign: %w", err)
	}
	logging.WithFields(ctx, "campaign_id", campaignID).Info("campaign queued")
	return campaign, nil
}

// UpdateCampaign edits a draft campaign.
func (s *CampaignService) UpdateCampaign(ctx context.Context, id uuid.UUID, in UpdateCampaignInput) (*model.EmailCampaign, error) {
	c, err := s.CampaignRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if c.Status != model.CampaignDraft {
		return nil, appErrors.NewInvalidState("campaign", id, string(c.Status), "update")
	}
	if in.Name != nil {
		c.Name = strings.TrimSpace(*in.Name)
	}
	if in.Subject != nil {
		c.Subject = *in.Subject
	}
	if in.Body != nil {
		c.Body = *in.Body
	}
	if in.HTMLBody != nil {
		c.HTMLBody = model.StringPtr(*in.HTMLBody)
	}
	if err := s.CampaignRepo.Update(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// DeleteCampaign removes a campaign that is not sending, with its logs.
func (s *CampaignService) DeleteCampaign(ctx context.Context, id uuid.UUID) error {
	return s.CampaignRepo.Delete(ctx, id)
}

// ListCampaigns fetches campaigns with pagination
func (s *CampaignService) ListCampaigns(ctx context.Context, p Page, runID *uuid.UUID, status model.CampaignStatus) ([]*model.EmailCampaign, map[string]int, error) {
	p = p.normalize()
	campaigns, total, err := s.CampaignRepo.ListCampaigns(ctx, repository.CampaignFilter{
		ListFilter: p.filter(),
		RunID:      runID,
		Status:     status,
	})
	if err != nil {
		return nil, nil, err
	}
	return campaigns, pagination(p, total), nil
}

// GetCampaignDetails fetches a campaign by ID
func (s *CampaignService) GetCampaignDetails(ctx context.Context, id uuid.UUID) (*model.EmailCampaign, error) {
	return s.CampaignRepo.GetByID(ctx, id)
}

// GetCampaignDetailsWithStats adds email log counts by status.
func (s *CampaignService) GetCampaignDetailsWithStats(ctx context.Context, id uuid.UUID) (*CampaignDetails, error) {
	campaign, err := s.CampaignRepo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	stats, err := s.CampaignRepo.GetCampaignStats(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("failed to load campaign stats: %w", err)
	}
	stats["total"] = stats[string(model.EmailSent)] + stats[string(model.EmailFailed)]
	stats["pending"] = max(campaign.TotalEmails-campaign.EmailsSent, 0)
	return &CampaignDetails{EmailCampaign: campaign, Stats: stats}, nil
}
