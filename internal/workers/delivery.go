package workers

import (
	"context"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"

	"github.com/aerosense-dev/aerosense/internal/tasks"
)

// Mailer sends account emails
type Mailer interface {
	SendPasswordResetOTP(ctx context.Context, to, fullName, otp string, expiresAt time.Time) error
}

// LogMailer writes codes to the log instead of sending mail. It is the
// development mailer; production deployments plug in a real one.
type LogMailer struct {
	logger zerolog.Logger
}

func NewLogMailer(logger zerolog.Logger) *LogMailer {
	return &LogMailer{logger: logger}
}

func (m *LogMailer) SendPasswordResetOTP(ctx context.Context, to, fullName, otp string, expiresAt time.Time) error {
	m.logger.Info().
		Str("to", to).
		Str("name", fullName).
		Str("otp", otp).
		Time("expires_at", expiresAt).
		Msg("Password reset OTP")
	return nil
}

// DeliverOTP sends one password-reset code. Expired codes are dropped.
func DeliverOTP(ctx context.Context, mailer Mailer, payload tasks.DeliverOTPPayload, logger zerolog.Logger) error {
	if payload.Email == "" || payload.OTP == "" {
		return fmt.Errorf("deliver OTP: payload is missing email or code")
	}

	if !payload.ExpiresAt.IsZero() && time.Now().After(payload.ExpiresAt) {
		logger.Warn().
			Str("reset_id", payload.ResetID).
			Time("expires_at", payload.ExpiresAt).
			Msg("Skipping delivery of expired OTP")
		return nil
	}

	if err := mailer.SendPasswordResetOTP(ctx, payload.Email, payload.FullName, payload.OTP, payload.ExpiresAt); err != nil {
		return fmt.Errorf("failed to send OTP email: %w", err)
	}

	logger.Info().Str("reset_id", payload.ResetID).Msg("Password reset OTP delivered")
	return nil
}

// HandleDeliverOTP is the asynq handler for tasks.TypeDeliverOTP
func HandleDeliverOTP(ctx context.Context, t *asynq.Task, mailer Mailer, logger zerolog.Logger) error {
	payload, err := tasks.ParseDeliverOTPPayload(t)
	if err != nil {
		// Malformed payloads never succeed on retry
		return fmt.Errorf("failed to parse payload: %v: %w", err, asynq.SkipRetry)
	}

	return DeliverOTP(ctx, mailer, payload, logger)
}
