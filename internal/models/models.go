package models

import (
	"time"

	"github.com/oklog/ulid/v2"
	"gorm.io/gorm"
)

// MaxOTPAttempts is how many wrong codes a password reset tolerates
const MaxOTPAttempts = 5

// BaseModel provides common fields and auto-generated ULID for all models
type BaseModel struct {
	ID        string    `json:"id" gorm:"primaryKey;type:varchar(26)"`
	CreatedAt time.Time `json:"created_at" gorm:"autoCreateTime"`
}

// BeforeCreate generates a ULID for the ID field if it's empty
func (b *BaseModel) BeforeCreate(tx *gorm.DB) error {
	if b.ID == "" {
		b.ID = ulid.Make().String()
	}
	return nil
}

// Config represents the global configuration for the deployment
// This is a singleton model (only one row should exist)
type Config struct {
	BaseModel
	JWTSecret string `json:"-" gorm:"type:varchar(64);not null"` // Auto-generated on first start (64 hex chars)
}

// User represents a dashboard account
type User struct {
	BaseModel
	FullName     string    `json:"fullName" gorm:"not null"`
	Email        string    `json:"email" gorm:"unique;not null"`
	PasswordHash string    `json:"-" gorm:"not null"`
	UpdatedAt    time.Time `json:"updated_at" gorm:"autoUpdateTime"`

	// Relationships
	Profile *Profile `json:"profile,omitempty" gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE"`
}

// Profile holds the optional personal details shown on the account page
type Profile struct {
	BaseModel
	UserID       string `json:"-" gorm:"type:varchar(26);uniqueIndex;not null"`
	ProfileImage string `json:"profileImage,omitempty"`
	Bio          string `json:"bio,omitempty"`
	Phone        string `json:"phone,omitempty"`
	Address      string `json:"address,omitempty"`
	Organization string `json:"organization,omitempty"`
	Role         string `json:"role,omitempty"`
}

// PasswordReset is one forgot-password request. The code and the
// verification token are stored only as digests.
type PasswordReset struct {
	BaseModel
	UserID    string    `gorm:"type:varchar(26);index;not null"`
	Email     string    `gorm:"index;not null"`
	OTPHash   string    `gorm:"not null"`
	ExpiresAt time.Time `gorm:"not null"`
	Attempts  int       `gorm:"not null;default:0"`

	VerifiedAt            *time.Time
	VerificationTokenHash string `gorm:"index"`
	VerificationExpiresAt *time.Time
	UsedAt                *time.Time
}

// Pending reports whether the code can still be verified at now
func (r *PasswordReset) Pending(now time.Time) bool {
	return r.UsedAt == nil && r.VerifiedAt == nil && r.Attempts < MaxOTPAttempts && now.Before(r.ExpiresAt)
}

// Redeemable reports whether the verification token can still be used at now
func (r *PasswordReset) Redeemable(now time.Time) bool {
	return r.UsedAt == nil && r.VerifiedAt != nil && r.VerificationExpiresAt != nil && now.Before(*r.VerificationExpiresAt)
}

// AutoMigrate runs database migrations for all models
func AutoMigrate(db *gorm.DB) error {
	models := []interface{}{
		&Config{}, &User{}, &Profile{}, &PasswordReset{},
	}

	return db.AutoMigrate(models...)
}

// FindByID safely finds a record by string ID
func FindByID[T any](db *gorm.DB, id string, model *T) error {
	return db.Where("id = ?", id).First(model).Error
}

// FindByIDWithPreload finds a record by ID with preloading
func FindByIDWithPreload[T any](db *gorm.DB, id string, model *T, preloads ...string) error {
	query := db
	for _, preload := range preloads {
		query = query.Preload(preload)
	}
	return query.Where("id = ?", id).First(model).Error
}
