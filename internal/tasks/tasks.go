package tasks

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/hibiken/asynq"
)

// Task type constants
const (
	// TypeDeliverOTP sends a password-reset code to the account's email
	TypeDeliverOTP = "password_reset:deliver_otp"
)

// QueueCritical carries user-facing deliveries
const QueueCritical = "critical"

// DeliverOTPPayload is the payload of a TypeDeliverOTP task
type DeliverOTPPayload struct {
	ResetID   string    `json:"reset_id"`
	Email     string    `json:"email"`
	FullName  string    `json:"full_name,omitempty"`
	OTP       string    `json:"otp"`
	ExpiresAt time.Time `json:"expires_at"`
}

// NewDeliverOTPTask creates a task to deliver a one-time code
func NewDeliverOTPTask(payload DeliverOTPPayload) (*asynq.Task, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}
	return asynq.NewTask(TypeDeliverOTP, data), nil
}

// ParseDeliverOTPPayload parses task payload from Asynq task
func ParseDeliverOTPPayload(task *asynq.Task) (DeliverOTPPayload, error) {
	var payload DeliverOTPPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		return payload, fmt.Errorf("failed to unmarshal payload: %w", err)
	}
	return payload, nil
}
