package controllers

import (
	"context"
	"errors"
	"net/http"
	"time"

	"storefront-api/models"
	"storefront-api/store"
	"storefront-api/utils"
)

const (
	loginOtpTTL = 10 * time.Minute
	resetOtpTTL = 30 * time.Minute

	// a code is burned after this many wrong guesses
	maxOtpAttempts = 5
)

var (
	errOtpNotFound = errors.New("OTP not found")
	errOtpInvalid  = errors.New("Invalid or expired OTP")
)

// OtpController issues and redeems one-time codes for passwordless login
// and password reset. A code is issued, then ends consumed, expired or
// superseded by a newer code for the same email and purpose.
type OtpController struct {
	Store  store.Store
	Tokens *utils.TokenManager
	Email  *utils.EmailService

	NewCode func() (string, error)
	Now     func() time.Time
}

func NewOtpController(s store.Store, tokens *utils.TokenManager, email *utils.EmailService) *OtpController {
	return &OtpController{
		Store:   s,
		Tokens:  tokens,
		Email:   email,
		NewCode: utils.GenerateOTP,
		Now:     time.Now,
	}
}

// issue stores a fresh code for email and purpose, replacing older ones, and mails it
func (oc *OtpController) issue(ctx context.Context, email, purpose string, ttl time.Duration) error {
	code, err := oc.NewCode()
	if err != nil {
		return err
	}
	hashed, err := utils.HashOTP(code)
	if err != nil {
		return err
	}
	now := oc.Now().UTC()
	otp := &models.Otp{
		Email:     email,
		Code:      hashed,
		Purpose:   purpose,
		ExpiresAt: now.Add(ttl),
		CreatedAt: now,
	}
	if err := oc.Store.Otps().Replace(ctx, otp); err != nil {
		return err
	}
	oc.Email.SendOTPEmail(email, code, purpose, int(ttl/time.Minute))
	return nil
}

// consume validates code and deletes the record so it cannot be used again
func (oc *OtpController) consume(ctx context.Context, email, purpose, code string) error {
	otp, err := oc.Store.Otps().Find(ctx, email, purpose)
	if errors.Is(err, store.ErrNotFound) {
		return errOtpNotFound
	}
	if err != nil {
		return err
	}
	if otp.Expired(oc.Now()) {
		if err := oc.Store.Otps().Delete(ctx, otp.ID); err != nil && !errors.Is(err, store.ErrNotFound) {
			return err
		}
		return errOtpInvalid
	}
	if !utils.CheckOTP(otp.Code, code) {
		attempts, err := oc.Store.Otps().RecordFailure(ctx, otp.ID)
		if errors.Is(err, store.ErrNotFound) {
			return errOtpInvalid
		}
		if err != nil {
			return err
		}
		if attempts >= maxOtpAttempts {
			if err := oc.Store.Otps().Delete(ctx, otp.ID); err != nil && !errors.Is(err, store.ErrNotFound) {
				return err
			}
		}
		return errOtpInvalid
	}
	// Whoever deletes the record first wins; a concurrent redeemer sees not found.
	if err := oc.Store.Otps().Delete(ctx, otp.ID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return errOtpNotFound
		}
		return err
	}
	return nil
}

func writeOtpError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, errOtpNotFound):
		utils.WriteError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, errOtpInvalid):
		utils.WriteError(w, http.StatusBadRequest, err.Error())
	default:
		utils.WriteServerError(w, "Error verifying OTP", err)
	}
}

// requestCode looks up the account and issues a code for it
func (oc *OtpController) requestCode(w http.ResponseWriter, r *http.Request, purpose string, ttl time.Duration) {
	var req struct {
		Email string `json:"email"`
	}
	if !utils.DecodeJSON(w, r, &req) {
		return
	}
	email := models.NormalizeEmail(req.Email)
	if email == "" {
		utils.WriteError(w, http.StatusBadRequest, "Email is required")
		return
	}

	ctx, cancel := requestContext(r)
	defer cancel()

	user, err := oc.Store.Users().FindByEmail(ctx, email)
	if err != nil {
		lookupError(w, err, "User not found")
		return
	}
	if user.IsBlocked {
		utils.WriteError(w, http.StatusForbidden, "Account is blocked")
		return
	}
	if err := oc.issue(ctx, email, purpose, ttl); err != nil {
		utils.WriteServerError(w, "Error issuing OTP", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.M{
		"message":   "OTP sent to email",
		"expiresIn": int(ttl.Seconds()),
	})
}

// SendOTP issues a login code
func (oc *OtpController) SendOTP(w http.ResponseWriter, r *http.Request) {
	oc.requestCode(w, r, models.OtpPurposeLogin, loginOtpTTL)
}

// VerifyOTP redeems a login code and signs the user in
func (oc *OtpController) VerifyOTP(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email string `json:"email"`
		Otp   string `json:"otp"`
	}
	if !utils.DecodeJSON(w, r, &req) {
		return
	}
	if req.Email == "" || req.Otp == "" {
		utils.WriteError(w, http.StatusBadRequest, "Email and OTP are required")
		return
	}

	ctx, cancel := requestContext(r)
	defer cancel()

	email := models.NormalizeEmail(req.Email)
	if err := oc.consume(ctx, email, models.OtpPurposeLogin, req.Otp); err != nil {
		writeOtpError(w, err)
		return
	}

	user, err := oc.Store.Users().FindByEmail(ctx, email)
	if err != nil {
		lookupError(w, err, "User not found")
		return
	}
	now := oc.Now().UTC()
	user.IsEmailVerified = true
	user.LastLogin = &now
	if err := oc.Store.Users().Update(ctx, user); err != nil {
		utils.WriteServerError(w, "Error updating user", err)
		return
	}
	token, err := oc.Tokens.Generate(user.ID, user.Email, user.Role)
	if err != nil {
		utils.WriteServerError(w, "Error generating token", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.M{"token": token, "user": user})
}

// ForgotPassword issues a password reset code
func (oc *OtpController) ForgotPassword(w http.ResponseWriter, r *http.Request) {
	oc.requestCode(w, r, models.OtpPurposeReset, resetOtpTTL)
}

// ResetPassword redeems a reset code and replaces the password
func (oc *OtpController) ResetPassword(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Email       string `json:"email"`
		Otp         string `json:"otp"`
		NewPassword string `json:"newPassword"`
	}
	if !utils.DecodeJSON(w, r, &req) {
		return
	}
	if req.Email == "" || req.Otp == "" {
		utils.WriteError(w, http.StatusBadRequest, "Email and OTP are required")
		return
	}
	if len(req.NewPassword) < minPasswordLength {
		utils.WriteError(w, http.StatusBadRequest, "Password must be at least 6 characters")
		return
	}

	ctx, cancel := requestContext(r)
	defer cancel()

	email := models.NormalizeEmail(req.Email)
	if err := oc.consume(ctx, email, models.OtpPurposeReset, req.Otp); err != nil {
		writeOtpError(w, err)
		return
	}

	user, err := oc.Store.Users().FindByEmail(ctx, email)
	if err != nil {
		lookupError(w, err, "User not found")
		return
	}
	hashed, err := utils.HashPassword(req.NewPassword)
	if err != nil {
		utils.WriteServerError(w, "Error hashing password", err)
		return
	}
	user.Password = hashed
	if err := oc.Store.Users().Update(ctx, user); err != nil {
		utils.WriteServerError(w, "Error updating password", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.M{"message": "Password reset successful"})
}
