package queue

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	appErrors "github.com/unclebandit/certificate-service/internal/errors"
	"github.com/unclebandit/certificate-service/internal/metrics"
)

// JobHandler processes the run or campaign named by a job.
type JobHandler func(ctx context.Context, id uuid.UUID) error

// StartRunExecutionSubscriber executes queued runs.
func StartRunExecutionSubscriber(q Queue, execute JobHandler) error {
	return q.Subscribe(TopicRunExecutions, Handle(TopicRunExecutions, execute))
}

// StartCampaignSendSubscriber sends queued campaigns.
func StartCampaignSendSubscriber(q Queue, send JobHandler) error {
	return q.Subscribe(TopicCampaignSends, Handle(TopicCampaignSends, send))
}

// Handle adapts a JobHandler to a queue handler. Errors that retrying
// cannot fix (unknown id, wrong status) are logged and acknowledged.
func Handle(topic string, h JobHandler) func(payload any) error {
	return func(payload any) error {
		job, err := asJob(payload)
		if err != nil {
			slog.Error("invalid job payload", "topic", topic, "error", err)
			metrics.QueueJobs.WithLabelValues(topic, "invalid").Inc()
			return nil
		}

		err = h(context.Background(), job.ID)
		switch {
		case err == nil:
			metrics.QueueJobs.WithLabelValues(topic, "ok").Inc()
			return nil
		case permanent(err):
			slog.Warn("job dropped", "topic", topic, "job_id", job.ID, "error", err)
			metrics.QueueJobs.WithLabelValues(topic, "dropped").Inc()
			return nil
		default:
			metrics.QueueJobs.WithLabelValues(topic, "error").Inc()
			return err
		}
	}
}

func permanent(err error) bool {
	var colErr *appErrors.ColumnNotFoundError
	return appErrors.IsNotFound(err) || appErrors.IsInvalidState(err) || errors.As(err, &colErr)
}

func asJob(payload any) (Job, error) {
	switch p := payload.(type) {
	case Job:
		return p, nil
	case *Job:
		if p == nil {
			return Job{}, errors.New("nil job")
		}
		return *p, nil
	case uuid.UUID:
		return Job{ID: p}, nil
	default:
		return Job{}, fmt.Errorf("unexpected payload type %T", payload)
	}
}
