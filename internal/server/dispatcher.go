package server

import (
	"context"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/aerosense-dev/aerosense/internal/tasks"
	"github.com/aerosense-dev/aerosense/internal/workers"
)

// OTPDispatcher hands a one-time code off for delivery
type OTPDispatcher interface {
	DeliverOTP(ctx context.Context, payload tasks.DeliverOTPPayload) error
}

// AsynqDispatcher enqueues deliveries for the worker process
type AsynqDispatcher struct {
	client *asynq.Client
}

func NewAsynqDispatcher(client *asynq.Client) *AsynqDispatcher {
	return &AsynqDispatcher{client: client}
}

func (d *AsynqDispatcher) DeliverOTP(ctx context.Context, payload tasks.DeliverOTPPayload) error {
	task, err := tasks.NewDeliverOTPTask(payload)
	if err != nil {
		return fmt.Errorf("failed to create deliver OTP task: %w", err)
	}

	// A code is useless once expired, so stop retrying then
	opts := []asynq.Option{
		asynq.Queue(tasks.QueueCritical),
		asynq.MaxRetry(5),
		asynq.Timeout(30 * time.Second),
		asynq.TaskID("otp:" + payload.ResetID),
	}
	if !payload.ExpiresAt.IsZero() {
		opts = append(opts, asynq.Deadline(payload.ExpiresAt))
	}

	if _, err := d.client.EnqueueContext(ctx, task, opts...); err != nil {
		return fmt.Errorf("failed to enqueue deliver OTP task: %w", err)
	}
	return nil
}

// InlineDispatcher delivers synchronously, for deployments without Redis
type InlineDispatcher struct {
	mailer workers.Mailer
	logger zerolog.Logger
}

func NewInlineDispatcher(mailer workers.Mailer, logger zerolog.Logger) *InlineDispatcher {
	return &InlineDispatcher{mailer: mailer, logger: logger}
}

func (d *InlineDispatcher) DeliverOTP(ctx context.Context, payload tasks.DeliverOTPPayload) error {
	return workers.DeliverOTP(ctx, d.mailer, payload, d.logger)
}
