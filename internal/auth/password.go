package auth

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"math/big"

	"golang.org/x/crypto/bcrypt"

	"github.com/aerosense-dev/aerosense/internal/assert"
)

const (
	// OTPDigits is the length of the emailed one-time code
	OTPDigits = 6

	verificationTokenBytes = 32
)

var (
	ErrEmptyPassword    = errors.New("password must not be empty")
	ErrPasswordMismatch = errors.New("password does not match")
)

// HashPassword will generate a bcrypt password hash
func HashPassword(password string) (string, error) {
	if password == "" {
		return "", ErrEmptyPassword
	}

	h, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", fmt.Errorf("failed to hash password: %w", err)
	}
	return string(h), nil
}

// VerifyPassword checks password against a bcrypt hash
func VerifyPassword(password, hash string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		if errors.Is(err, bcrypt.ErrMismatchedHashAndPassword) {
			return ErrPasswordMismatch
		}
		return err
	}
	return nil
}

// GenerateOTP returns a zero-padded numeric one-time code
func GenerateOTP() (string, error) {
	max := big.NewInt(1)
	for i := 0; i < OTPDigits; i++ {
		max.Mul(max, big.NewInt(10))
	}

	n, err := rand.Int(rand.Reader, max)
	if err != nil {
		return "", fmt.Errorf("failed to generate OTP: %w", err)
	}
	otp := fmt.Sprintf("%0*d", OTPDigits, n)
	assert.Length(otp, OTPDigits)
	return otp, nil
}

// GenerateVerificationToken returns a random hex token
func GenerateVerificationToken() (string, error) {
	b := make([]byte, verificationTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("failed to generate verification token: %w", err)
	}
	token := hex.EncodeToString(b)
	assert.Length(token, verificationTokenBytes*2)
	return token, nil
}

// GenerateSecret returns a random 64 hex character signing secret
func GenerateSecret() (string, error) {
	return GenerateVerificationToken()
}

// Digest hashes a short-lived secret for storage
func Digest(secret string) string {
	sum := sha256.Sum256([]byte(secret))
	return hex.EncodeToString(sum[:])
}

// DigestMatches compares secret with a stored digest in constant time
func DigestMatches(secret, digest string) bool {
	return subtle.ConstantTimeCompare([]byte(Digest(secret)), []byte(digest)) == 1
}
