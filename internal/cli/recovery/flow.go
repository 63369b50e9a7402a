// Package recovery implements the three-step password recovery flow.
// Each step hands the next one a ticket through the router's location
// state; nothing is persisted.
package recovery

import (
	"context"
	"errors"
	"strings"
	"sync"
	"unicode/utf8"

	"github.com/go-playground/validator/v10"
	"github.com/rs/zerolog"

	"github.com/aerosense-dev/aerosense/internal/cli/client"
	"github.com/aerosense-dev/aerosense/internal/cli/nav"
	"github.com/aerosense-dev/aerosense/internal/cli/notify"
)

const (
	MinPasswordLength = 8

	msgInvalidEmail     = "Please enter a valid email address"
	msgRequestFailed    = "An error occurred"
	msgEmailMissing     = "Email information missing. Please try again."
	msgUserMissing      = "User information missing. Please try again."
	msgEnterCode        = "Please enter the OTP sent to your email"
	msgInvalidCode      = "Invalid or expired OTP"
	msgEnterPassword    = "Please enter and confirm your new password"
	msgPasswordMismatch = "Passwords do not match"
	msgPasswordTooShort = "Password must be at least 8 characters long"
	msgResetFailed      = "An error occurred while resetting password"
)

var (
	// ErrMissingTicket is returned when a step is entered without the
	// ticket its predecessor produces; the flow has gone back to Request.
	ErrMissingTicket = errors.New("recovery: step entered without its ticket")
	ErrTicketUsed    = errors.New("recovery: ticket already used")
)

// Backend is the slice of the API the recovery flow needs
type Backend interface {
	ForgotPassword(ctx context.Context, email string) error
	VerifyOTP(ctx context.Context, email, otp string) (string, error)
	ResetPassword(ctx context.Context, email, password, verificationToken string) error
}

// VerifyTicket is carried from Request to Verify
type VerifyTicket struct {
	Email string
}

// ResetTicket is carried from Verify to Reset. It is consumed by a
// successful reset and cannot be used again.
type ResetTicket struct {
	Email             string
	VerificationToken string

	mu       sync.Mutex
	consumed bool
}

// Consumed reports whether a reset already succeeded with this ticket
func (t *ResetTicket) Consumed() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.consumed
}

type emailInput struct {
	Email string `validate:"required,email"`
}

// Flow runs the Request -> Verify -> Reset sequence
type Flow struct {
	api       Backend
	navigator nav.Navigator
	notifier  notify.Notifier
	logger    zerolog.Logger
	validate  *validator.Validate
}

// NewFlow creates a recovery flow
func NewFlow(api Backend, navigator nav.Navigator, notifier notify.Notifier, logger zerolog.Logger) *Flow {
	return &Flow{
		api:       api,
		navigator: navigator,
		notifier:  notifier,
		logger:    logger,
		validate:  validator.New(),
	}
}

// Request asks the backend to send a one-time code to email and advances
// to Verify carrying the email.
func (f *Flow) Request(ctx context.Context, email string) error {
	email = strings.TrimSpace(email)
	if err := f.validate.Struct(emailInput{Email: email}); err != nil {
		return f.fail(&client.ValidationError{Field: "email", Message: msgInvalidEmail}, msgInvalidEmail)
	}

	if err := f.api.ForgotPassword(ctx, email); err != nil {
		f.logger.Error().Err(err).Str("email", email).Msg("Password reset request failed")
		return f.fail(err, msgRequestFailed)
	}

	f.notifier.Notify(notify.Success("OTP Sent", "An OTP has been sent to your email"))
	f.navigator.Navigate(nav.RouteVerifyOTP, &VerifyTicket{Email: email})
	return nil
}

// EnterVerify reads the Verify ticket from loc. Without one the flow
// returns to Request.
func (f *Flow) EnterVerify(loc nav.Location) (*VerifyTicket, error) {
	ticket, ok := loc.State.(*VerifyTicket)
	if !ok || ticket == nil || ticket.Email == "" {
		f.restart(msgEmailMissing)
		return nil, ErrMissingTicket
	}
	return ticket, nil
}

// Verify checks code against the backend and advances to Reset carrying
// the email and the verification token.
func (f *Flow) Verify(ctx context.Context, ticket *VerifyTicket, code string) error {
	if ticket == nil || ticket.Email == "" {
		f.restart(msgEmailMissing)
		return ErrMissingTicket
	}

	code = strings.TrimSpace(code)
	if code == "" {
		return f.fail(&client.ValidationError{Field: "otp", Message: msgEnterCode}, msgEnterCode)
	}

	token, err := f.api.VerifyOTP(ctx, ticket.Email, code)
	if err != nil {
		f.logger.Error().Err(err).Str("email", ticket.Email).Msg("OTP verification failed")
		return f.fail(err, msgInvalidCode)
	}

	f.notifier.Notify(notify.Success("OTP Verified", "OTP verified successfully. Please set your new password"))
	f.navigator.Navigate(nav.RouteResetPassword, &ResetTicket{Email: ticket.Email, VerificationToken: token})
	return nil
}

// Resend re-issues a code to the ticket's email without navigating
func (f *Flow) Resend(ctx context.Context, ticket *VerifyTicket) error {
	if ticket == nil || ticket.Email == "" {
		f.restart(msgEmailMissing)
		return ErrMissingTicket
	}

	if err := f.api.ForgotPassword(ctx, ticket.Email); err != nil {
		f.logger.Error().Err(err).Str("email", ticket.Email).Msg("OTP resend failed")
		return f.fail(err, msgRequestFailed)
	}

	f.notifier.Notify(notify.Success("OTP Resent", "A new OTP has been sent to your email"))
	return nil
}

// EnterReset reads the Reset ticket from loc. Both the email and the
// verification token are required; otherwise the flow returns to Request.
func (f *Flow) EnterReset(loc nav.Location) (*ResetTicket, error) {
	ticket, ok := loc.State.(*ResetTicket)
	if !ok || ticket == nil || ticket.Email == "" || ticket.VerificationToken == "" {
		f.restart(msgUserMissing)
		return nil, ErrMissingTicket
	}
	if ticket.Consumed() {
		f.restart(msgUserMissing)
		return nil, ErrTicketUsed
	}
	return ticket, nil
}

// Reset sets a new password. Input is validated before any request:
// both fields present, matching, then long enough. On success the ticket
// is consumed and the sign-in page opens; on failure the ticket is kept
// so the user can try again.
func (f *Flow) Reset(ctx context.Context, ticket *ResetTicket, password, confirm string) error {
	if ticket == nil || ticket.Email == "" || ticket.VerificationToken == "" {
		f.restart(msgUserMissing)
		return ErrMissingTicket
	}

	switch {
	case password == "" || confirm == "":
		return f.fail(&client.ValidationError{Field: "password", Message: msgEnterPassword}, msgEnterPassword)
	case password != confirm:
		return f.fail(&client.ValidationError{Field: "confirmPassword", Message: msgPasswordMismatch}, msgPasswordMismatch)
	case utf8.RuneCountInString(password) < MinPasswordLength:
		return f.fail(&client.ValidationError{Field: "password", Message: msgPasswordTooShort}, msgPasswordTooShort)
	}

	ticket.mu.Lock()
	defer ticket.mu.Unlock()
	if ticket.consumed {
		return ErrTicketUsed
	}

	if err := f.api.ResetPassword(ctx, ticket.Email, password, ticket.VerificationToken); err != nil {
		f.logger.Error().Err(err).Str("email", ticket.Email).Msg("Password reset failed")
		return f.fail(err, msgResetFailed)
	}
	ticket.consumed = true

	f.notifier.Notify(notify.Success("Success", "Password reset successful. You can now login with your new password."))
	f.navigator.Navigate(nav.RouteSignIn, nil)
	return nil
}

func (f *Flow) fail(err error, fallback string) *client.Rejection {
	rej := client.Reject(err, fallback)
	f.notifier.Notify(notify.Failure("Error", rej.Message))
	return rej
}

func (f *Flow) restart(message string) {
	f.notifier.Notify(notify.Failure("Error", message))
	f.navigator.Navigate(nav.RouteForgotPassword, nil)
}
