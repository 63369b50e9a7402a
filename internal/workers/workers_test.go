package workers

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/hibiken/asynq"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/aerosense-dev/aerosense/internal/models"
	"github.com/aerosense-dev/aerosense/internal/tasks"
)

type sentMail struct {
	to, name, otp string
}

type fakeMailer struct {
	sent []sentMail
	err  error
}

func (m *fakeMailer) SendPasswordResetOTP(ctx context.Context, to, fullName, otp string, expiresAt time.Time) error {
	if m.err != nil {
		return m.err
	}
	m.sent = append(m.sent, sentMail{to: to, name: fullName, otp: otp})
	return nil
}

func TestDeliverOTP(t *testing.T) {
	mailer := &fakeMailer{}
	payload := tasks.DeliverOTPPayload{
		ResetID:   "r1",
		Email:     "ada@farm.io",
		FullName:  "Ada Farmer",
		OTP:       "123456",
		ExpiresAt: time.Now().Add(time.Minute),
	}

	require.NoError(t, DeliverOTP(context.Background(), mailer, payload, zerolog.Nop()))
	require.Len(t, mailer.sent, 1)
	assert.Equal(t, sentMail{to: "ada@farm.io", name: "Ada Farmer", otp: "123456"}, mailer.sent[0])
}

func TestDeliverOTP_SkipsExpired(t *testing.T) {
	mailer := &fakeMailer{}
	payload := tasks.DeliverOTPPayload{
		Email:     "ada@farm.io",
		OTP:       "123456",
		ExpiresAt: time.Now().Add(-time.Second),
	}

	require.NoError(t, DeliverOTP(context.Background(), mailer, payload, zerolog.Nop()))
	assert.Empty(t, mailer.sent)
}

func TestDeliverOTP_MailerError(t *testing.T) {
	mailer := &fakeMailer{err: errors.New("smtp down")}
	payload := tasks.DeliverOTPPayload{Email: "ada@farm.io", OTP: "123456"}

	err := DeliverOTP(context.Background(), mailer, payload, zerolog.Nop())
	assert.ErrorContains(t, err, "smtp down")
}

func TestHandleDeliverOTP(t *testing.T) {
	mailer := &fakeMailer{}
	task, err := tasks.NewDeliverOTPTask(tasks.DeliverOTPPayload{Email: "ada@farm.io", OTP: "654321"})
	require.NoError(t, err)

	require.NoError(t, HandleDeliverOTP(context.Background(), task, mailer, zerolog.Nop()))
	require.Len(t, mailer.sent, 1)
	assert.Equal(t, "654321", mailer.sent[0].otp)
}

func TestHandleDeliverOTP_BadPayloadSkipsRetry(t *testing.T) {
	task := asynq.NewTask(tasks.TypeDeliverOTP, []byte("{not json"))

	err := HandleDeliverOTP(context.Background(), task, &fakeMailer{}, zerolog.Nop())
	assert.ErrorIs(t, err, asynq.SkipRetry)
}

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := gorm.Open(sqlite.Open("file::memory:"), &gorm.Config{Logger: logger.Discard})
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	require.NoError(t, models.AutoMigrate(db))
	return db
}

func TestSweepPasswordResets(t *testing.T) {
	db := openTestDB(t)
	now := time.Now()
	past := now.Add(-time.Minute)
	future := now.Add(time.Minute)

	resets := map[string]*models.PasswordReset{
		"pending":          {ExpiresAt: future},
		"expired":          {ExpiresAt: past},
		"used":             {ExpiresAt: future, UsedAt: &past},
		"verified":         {ExpiresAt: past, VerifiedAt: &past, VerificationExpiresAt: &future},
		"verified-expired": {ExpiresAt: past, VerifiedAt: &past, VerificationExpiresAt: &past},
	}
	for name, r := range resets {
		r.UserID = "u1"
		r.Email = name + "@farm.io"
		r.OTPHash = "x"
		require.NoError(t, db.Create(r).Error)
	}

	deleted, err := SweepPasswordResets(db, now, zerolog.Nop())
	require.NoError(t, err)
	assert.Equal(t, int64(3), deleted)

	var remaining []models.PasswordReset
	require.NoError(t, db.Order("email").Find(&remaining).Error)
	require.Len(t, remaining, 2)
	assert.Equal(t, "pending@farm.io", remaining[0].Email)
	assert.Equal(t, "verified@farm.io", remaining[1].Email)
}

func TestStartResetSweeper_InvalidSchedule(t *testing.T) {
	_, err := StartResetSweeper("not a schedule", openTestDB(t), zerolog.Nop())
	assert.ErrorContains(t, err, "invalid reset sweep schedule")
}

func TestStartResetSweeper_Stop(t *testing.T) {
	sweeper, err := StartResetSweeper("@every 1h", openTestDB(t), zerolog.Nop())
	require.NoError(t, err)
	sweeper.Stop()
}
