package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"golang.org/x/sync/errgroup"

	"github.com/unclebandit/certificate-service/internal/app"
	"github.com/unclebandit/certificate-service/internal/config"
	"github.com/unclebandit/certificate-service/internal/logging"
	"github.com/unclebandit/certificate-service/internal/queue"
)

// consumer is the part of the AMQP queue the worker drives.
type consumer interface {
	Consume(ctx context.Context, topic string, handler func(payload any) error) error
}

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		slog.Error("invalid configuration", "error", err)
		os.Exit(1)
	}
	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		slog.Error("worker stopped", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	if cfg.Queue.Driver != "amqp" {
		return fmt.Errorf("worker requires QUEUE_DRIVER=amqp, got %q", cfg.Queue.Driver)
	}

	a, err := app.New(ctx, cfg)
	if err != nil {
		return err
	}
	defer a.Close()

	q, ok := a.Queue.(consumer)
	if !ok {
		return fmt.Errorf("queue %T cannot consume", a.Queue)
	}

	slog.Info("worker running, waiting for jobs")
	err = consumeAll(ctx, q, map[string]queue.JobHandler{
		queue.TopicRunExecutions: a.ExecuteRun,
		queue.TopicCampaignSends: a.SendCampaign,
	})
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

// consumeAll drains every topic until ctx ends or one consumer fails,
// which stops the others.
func consumeAll(ctx context.Context, q consumer, handlers map[string]queue.JobHandler) error {
	g, gctx := errgroup.WithContext(ctx)
	for topic, h := range handlers {
		g.Go(func() error {
			return q.Consume(gctx, topic, queue.Handle(topic, h))
		})
	}
	return g.Wait()
}
