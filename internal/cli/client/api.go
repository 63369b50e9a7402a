package client

import (
	"context"
	"fmt"
	"net/http"
	"strings"
)

// Profile holds the optional account details of a user
type Profile struct {
	ProfileImage string `json:"profileImage,omitempty"`
	Bio          string `json:"bio,omitempty"`
	Phone        string `json:"phone,omitempty"`
	Address      string `json:"address,omitempty"`
	Organization string `json:"organization,omitempty"`
	Role         string `json:"role,omitempty"`
}

// User is the account record returned by the backend
type User struct {
	ID       string   `json:"id"`
	FullName string   `json:"fullName"`
	Email    string   `json:"email"`
	Profile  *Profile `json:"profile,omitempty"`
}

// Initials returns up to two uppercase letters for avatars: the first
// letters of the first two name words, else the first letter of the name,
// else of the email.
func (u User) Initials() string {
	if name := strings.TrimSpace(u.FullName); name != "" {
		parts := strings.Fields(name)
		if len(parts) >= 2 {
			return strings.ToUpper(firstRune(parts[0]) + firstRune(parts[1]))
		}
		return strings.ToUpper(firstRune(name))
	}
	if email := strings.TrimSpace(u.Email); email != "" {
		return strings.ToUpper(firstRune(email))
	}
	return ""
}

func firstRune(s string) string {
	for _, r := range s {
		return string(r)
	}
	return ""
}

// LoginRequest represents the login request body
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginResponse represents the login response
type LoginResponse struct {
	Token string `json:"token"`
	User  User   `json:"user"`
}

// SignupRequest represents the registration request body
type SignupRequest struct {
	FullName string `json:"fullName"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

// ProfileResponse wraps the authenticated user
type ProfileResponse struct {
	User User `json:"user"`
}

// ForgotPasswordRequest starts a password recovery
type ForgotPasswordRequest struct {
	Email string `json:"email"`
}

// VerifyOTPRequest submits the one-time code
type VerifyOTPRequest struct {
	Email string `json:"email"`
	OTP   string `json:"otp"`
}

// VerifyOTPResponse carries the single-use verification token
type VerifyOTPResponse struct {
	VerificationToken string `json:"verificationToken"`
}

// ResetPasswordRequest completes a password recovery
type ResetPasswordRequest struct {
	Email             string `json:"email"`
	Password          string `json:"password"`
	VerificationToken string `json:"verificationToken"`
}

// Login authenticates the user and returns a bearer token
func (c *Client) Login(ctx context.Context, email, password string) (*LoginResponse, error) {
	var resp LoginResponse
	if err := c.Send(ctx, http.MethodPost, "/api/auth/login", LoginRequest{Email: email, Password: password}, &resp); err != nil {
		return nil, fmt.Errorf("client.Login: %w", err)
	}
	if resp.Token == "" {
		return nil, fmt.Errorf("client.Login: response carried no token")
	}
	return &resp, nil
}

// Signup registers a new account. No session is issued.
func (c *Client) Signup(ctx context.Context, fullName, email, password string) error {
	req := SignupRequest{FullName: fullName, Email: email, Password: password}
	if err := c.Send(ctx, http.MethodPost, "/api/auth/signup", req, nil); err != nil {
		return fmt.Errorf("client.Signup: %w", err)
	}
	return nil
}

// Profile returns the user the current bearer token belongs to
func (c *Client) Profile(ctx context.Context) (*User, error) {
	var resp ProfileResponse
	if err := c.Send(ctx, http.MethodGet, "/api/auth/profile", nil, &resp); err != nil {
		return nil, fmt.Errorf("client.Profile: %w", err)
	}
	return &resp.User, nil
}

// ForgotPassword asks the backend to email a one-time code
func (c *Client) ForgotPassword(ctx context.Context, email string) error {
	if err := c.Send(ctx, http.MethodPost, "/password-reset/forgot", ForgotPasswordRequest{Email: email}, nil); err != nil {
		return fmt.Errorf("client.ForgotPassword: %w", err)
	}
	return nil
}

// VerifyOTP exchanges a one-time code for a verification token
func (c *Client) VerifyOTP(ctx context.Context, email, otp string) (string, error) {
	var resp VerifyOTPResponse
	if err := c.Send(ctx, http.MethodPost, "/password-reset/verify", VerifyOTPRequest{Email: email, OTP: otp}, &resp); err != nil {
		return "", fmt.Errorf("client.VerifyOTP: %w", err)
	}
	if resp.VerificationToken == "" {
		return "", fmt.Errorf("client.VerifyOTP: response carried no verification token")
	}
	return resp.VerificationToken, nil
}

// ResetPassword sets a new password using a verification token
func (c *Client) ResetPassword(ctx context.Context, email, password, verificationToken string) error {
	req := ResetPasswordRequest{Email: email, Password: password, VerificationToken: verificationToken}
	if err := c.Send(ctx, http.MethodPost, "/password-reset/reset", req, nil); err != nil {
		return fmt.Errorf("client.ResetPassword: %w", err)
	}
	return nil
}
