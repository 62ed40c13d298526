// Package app wires configuration into stores, services and the job queue
// for the server, worker and admin binaries.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/unclebandit/certificate-service/internal/config"
	"github.com/unclebandit/certificate-service/internal/db"
	"github.com/unclebandit/certificate-service/internal/handler"
	"github.com/unclebandit/certificate-service/internal/mailer"
	"github.com/unclebandit/certificate-service/internal/queue"
	"github.com/unclebandit/certificate-service/internal/repository"
	"github.com/unclebandit/certificate-service/internal/service"
)

type App struct {
	Config   *config.Config
	DB       *sql.DB
	Repos    *repository.Repositories
	Queue    queue.Queue
	Services handler.Services
}

// New connects the configured store and queue and builds the services.
// With a postgres store, pending schema migrations are applied first.
func New(ctx context.Context, cfg *config.Config) (*App, error) {
	a := &App{Config: cfg}

	switch cfg.Database.Driver {
	case "memory":
		slog.Warn("using in-memory store; data is lost on exit")
		a.Repos = repository.NewMemory()
	default:
		conn, err := db.Connect(ctx, cfg.Database)
		if err != nil {
			return nil, err
		}
		if err := db.Migrate(conn); err != nil {
			conn.Close()
			return nil, err
		}
		a.DB = conn
		a.Repos = repository.NewPostgres(conn)
	}

	switch cfg.Queue.Driver {
	case "amqp":
		q, err := queue.DialAMQP(cfg.Queue.URL)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.Queue = q
	default:
		a.Queue = queue.NewInMemoryQueue()
	}

	sender, err := mailer.New(cfg.Mail)
	if err != nil {
		a.Close()
		return nil, err
	}

	datasets := &service.DatasetService{
		Repo:  a.Repos.Datasets,
		Cache: service.NewDatasetCache(cfg.DatasetCacheSize, cfg.DatasetCacheTTL),
	}
	a.Services = handler.Services{
		Datasets:  datasets,
		Templates: &service.TemplateService{Repo: a.Repos.Templates},
		Runs: &service.RunService{
			Runs:          a.Repos.Runs,
			Certificates:  a.Repos.Certificates,
			Templates:     a.Repos.Templates,
			Datasets:      datasets,
			Queue:         a.Queue,
			PublicBaseURL: cfg.PublicBaseURL,
		},
		Certificates: &service.CertificateService{Repo: a.Repos.Certificates},
		Campaigns: &service.CampaignService{
			CampaignRepo:    a.Repos.Campaigns,
			RunRepo:         a.Repos.Runs,
			CertificateRepo: a.Repos.Certificates,
			Datasets:        datasets,
			Mailer:          sender,
			Queue:           a.Queue,
			From:            cfg.Mail.From,
		},
	}
	return a, nil
}

// ExecuteRun is the job handler for queued run executions.
func (a *App) ExecuteRun(ctx context.Context, id uuid.UUID) error {
	_, err := a.Services.Runs.Execute(ctx, id)
	return err
}

// SendCampaign is the job handler for queued campaign sends.
func (a *App) SendCampaign(ctx context.Context, id uuid.UUID) error {
	_, err := a.Services.Campaigns.SendCampaign(ctx, id)
	return err
}

// StartSubscribers consumes both job topics in the background.
func (a *App) StartSubscribers() error {
	if err := queue.StartRunExecutionSubscriber(a.Queue, a.ExecuteRun); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", queue.TopicRunExecutions, err)
	}
	if err := queue.StartCampaignSendSubscriber(a.Queue, a.SendCampaign); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", queue.TopicCampaignSends, err)
	}
	return nil
}

// Close waits for in-process jobs, then releases the queue and database.
func (a *App) Close() error {
	var errs []error
	switch q := a.Queue.(type) {
	case *queue.InMemoryQueue:
		q.Wait()
	case *queue.AMQPQueue:
		errs = append(errs, q.Close())
	}
	if a.DB != nil {
		errs = append(errs, a.DB.Close())
	}
	return errors.Join(errs...)
}
