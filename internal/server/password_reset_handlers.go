package server

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/aerosense-dev/aerosense/internal/auth"
	"github.com/aerosense-dev/aerosense/internal/models"
	"github.com/aerosense-dev/aerosense/internal/tasks"
)

const (
	msgOTPSent          = "If an account exists for this email, an OTP has been sent"
	msgInvalidOTP       = "Invalid or expired OTP"
	msgTooManyAttempts  = "Too many attempts. Please request a new OTP."
	msgInvalidResetLink = "Invalid or expired verification token"
)

// ForgotPasswordRequest starts a password recovery
type ForgotPasswordRequest struct {
	Email string `json:"email" binding:"required,email"`
}

// VerifyOTPRequest submits the emailed code
type VerifyOTPRequest struct {
	Email string `json:"email" binding:"required,email"`
	OTP   string `json:"otp" binding:"required" validate:"otpcode"`
}

// VerifyOTPResponse carries the single-use verification token
type VerifyOTPResponse struct {
	Message           string `json:"message"`
	VerificationToken string `json:"verificationToken"`
}

// ResetPasswordRequest completes a password recovery
type ResetPasswordRequest struct {
	Email             string `json:"email" binding:"required,email"`
	Password          string `json:"password" binding:"required,min=8"`
	VerificationToken string `json:"verificationToken" binding:"required"`
}

// @Summary Forgot password
// @Description Emails a one-time code. Responds 200 whether or not the account exists.
// @Tags password-reset
// @Accept json
// @Produce json
// @Param request body ForgotPasswordRequest true "Forgot password request"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} map[string]interface{}
// @Router /password-reset/forgot [post]
func (s *Server) forgotPassword(c *gin.Context) {
	var req ForgotPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": bindingMessage(err)})
		return
	}

	email := normalizeEmail(req.Email)

	var user models.User
	if err := s.db.Where("email = ?", email).First(&user).Error; err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			s.logger.Error().Err(err).Msg("Failed to look up user")
			c.JSON(http.StatusInternalServerError, gin.H{"message": "Internal server error"})
			return
		}
		s.logger.Debug().Str("email", email).Msg("Password reset requested for unknown email")
		c.JSON(http.StatusOK, gin.H{"message": msgOTPSent})
		return
	}

	otp, err := auth.GenerateOTP()
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to generate OTP")
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Failed to send OTP"})
		return
	}
	otpHash, err := auth.HashPassword(otp)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to hash OTP")
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Failed to send OTP"})
		return
	}

	now := s.now()
	reset := &models.PasswordReset{
		UserID:    user.ID,
		Email:     user.Email,
		OTPHash:   otpHash,
		ExpiresAt: now.Add(s.config.Auth.OTPTTL),
	}

	// A new request supersedes every open one for the account
	err = s.db.Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&models.PasswordReset{}).
			Where("user_id = ? AND used_at IS NULL", user.ID).
			Update("used_at", now).Error; err != nil {
			return err
		}
		return tx.Create(reset).Error
	})
	if err != nil {
		s.logger.Error().Err(err).Str("user_id", user.ID).Msg("Failed to create password reset")
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Failed to send OTP"})
		return
	}

	payload := tasks.DeliverOTPPayload{
		ResetID:   reset.ID,
		Email:     user.Email,
		FullName:  user.FullName,
		OTP:       otp,
		ExpiresAt: reset.ExpiresAt,
	}
	if err := s.dispatcher.DeliverOTP(c.Request.Context(), payload); err != nil {
		s.logger.Error().Err(err).Str("reset_id", reset.ID).Msg("Failed to dispatch OTP")
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Failed to send OTP. Please try again."})
		return
	}

	s.logger.Info().Str("user_id", user.ID).Str("reset_id", reset.ID).Msg("Password reset OTP issued")

	c.JSON(http.StatusOK, gin.H{"message": msgOTPSent})
}

// @Summary Verify OTP
// @Description Exchanges a valid one-time code for a verification token
// @Tags password-reset
// @Accept json
// @Produce json
// @Param request body VerifyOTPRequest true "Verify OTP request"
// @Success 200 {object} VerifyOTPResponse
// @Failure 400 {object} map[string]interface{}
// @Router /password-reset/verify [post]
func (s *Server) verifyOTP(c *gin.Context) {
	var req VerifyOTPRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": bindingMessage(err)})
		return
	}
	if err := s.validator.Struct(req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": msgInvalidOTP})
		return
	}

	now := s.now()

	var reset models.PasswordReset
	err := s.db.Where("email = ? AND used_at IS NULL", normalizeEmail(req.Email)).
		Order("created_at DESC, id DESC").
		First(&reset).Error
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			s.logger.Error().Err(err).Msg("Failed to look up password reset")
			c.JSON(http.StatusInternalServerError, gin.H{"message": "Internal server error"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"message": msgInvalidOTP})
		return
	}

	if reset.Attempts >= models.MaxOTPAttempts {
		c.JSON(http.StatusBadRequest, gin.H{"message": msgTooManyAttempts})
		return
	}
	if !reset.Pending(now) {
		c.JSON(http.StatusBadRequest, gin.H{"message": msgInvalidOTP})
		return
	}

	if err := auth.VerifyPassword(req.OTP, reset.OTPHash); err != nil {
		if err := s.db.Model(&reset).
			UpdateColumn("attempts", gorm.Expr("attempts + 1")).Error; err != nil {
			s.logger.Error().Err(err).Str("reset_id", reset.ID).Msg("Failed to record OTP attempt")
		}
		if reset.Attempts+1 >= models.MaxOTPAttempts {
			c.JSON(http.StatusBadRequest, gin.H{"message": msgTooManyAttempts})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"message": msgInvalidOTP})
		return
	}

	token, err := auth.GenerateVerificationToken()
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to generate verification token")
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Internal server error"})
		return
	}

	expiresAt := now.Add(s.config.Auth.VerificationTTL)
	// Conditional on verified_at so a code verifies once under concurrency
	result := s.db.Model(&models.PasswordReset{}).
		Where("id = ? AND verified_at IS NULL AND used_at IS NULL", reset.ID).
		Updates(map[string]interface{}{
			"verified_at":             now,
			"verification_token_hash": auth.Digest(token),
			"verification_expires_at": expiresAt,
		})
	if result.Error != nil {
		s.logger.Error().Err(result.Error).Str("reset_id", reset.ID).Msg("Failed to mark OTP verified")
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Internal server error"})
		return
	}
	if result.RowsAffected == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"message": msgInvalidOTP})
		return
	}

	s.logger.Info().Str("reset_id", reset.ID).Msg("Password reset OTP verified")

	c.JSON(http.StatusOK, VerifyOTPResponse{
		Message:           "OTP verified successfully",
		VerificationToken: token,
	})
}

// @Summary Reset password
// @Description Sets a new password using a verification token. Each token works once.
// @Tags password-reset
// @Accept json
// @Produce json
// @Param request body ResetPasswordRequest true "Reset password request"
// @Success 200 {object} map[string]interface{}
// @Failure 400 {object} map[string]interface{}
// @Router /password-reset/reset [post]
func (s *Server) resetPassword(c *gin.Context) {
	var req ResetPasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"message": bindingMessage(err)})
		return
	}

	now := s.now()

	var reset models.PasswordReset
	err := s.db.Where("email = ? AND verification_token_hash = ?", normalizeEmail(req.Email), auth.Digest(req.VerificationToken)).
		First(&reset).Error
	if err != nil {
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			s.logger.Error().Err(err).Msg("Failed to look up password reset")
			c.JSON(http.StatusInternalServerError, gin.H{"message": "Internal server error"})
			return
		}
		c.JSON(http.StatusBadRequest, gin.H{"message": msgInvalidResetLink})
		return
	}

	if !reset.Redeemable(now) || !auth.DigestMatches(req.VerificationToken, reset.VerificationTokenHash) {
		c.JSON(http.StatusBadRequest, gin.H{"message": msgInvalidResetLink})
		return
	}

	passwordHash, err := auth.HashPassword(req.Password)
	if err != nil {
		s.logger.Error().Err(err).Msg("Failed to hash password")
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Internal server error"})
		return
	}

	errTokenUsed := errors.New("verification token already used")
	err = s.db.Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&models.PasswordReset{}).
			Where("id = ? AND used_at IS NULL", reset.ID).
			Update("used_at", now)
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			return errTokenUsed
		}
		return tx.Model(&models.User{}).
			Where("id = ?", reset.UserID).
			Update("password_hash", passwordHash).Error
	})
	if err != nil {
		if errors.Is(err, errTokenUsed) {
			c.JSON(http.StatusBadRequest, gin.H{"message": msgInvalidResetLink})
			return
		}
		s.logger.Error().Err(err).Str("reset_id", reset.ID).Msg("Failed to reset password")
		c.JSON(http.StatusInternalServerError, gin.H{"message": "Internal server error"})
		return
	}

	s.logger.Info().Str("user_id", reset.UserID).Str("reset_id", reset.ID).Msg("Password reset completed")

	c.JSON(http.StatusOK, gin.H{"message": "Password reset successful"})
}
