package controllers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"storefront-api/models"
	"storefront-api/store"
	"storefront-api/utils"
)

const minPasswordLength = 6

// UserController handles registration, sign-in and the caller's profile
type UserController struct {
	Store       store.Store
	Tokens      *utils.TokenManager
	Google      utils.GoogleVerifier
	AdminSecret string
}

func NewUserController(s store.Store, tokens *utils.TokenManager, google utils.GoogleVerifier, adminSecret string) *UserController {
	return &UserController{Store: s, Tokens: tokens, Google: google, AdminSecret: adminSecret}
}

type registerRequest struct {
	Name        string `json:"name"`
	Email       string `json:"email"`
	Password    string `json:"password"`
	Phone       string `json:"phone"`
	AdminSecret string `json:"adminSecret"`
}

func (req *registerRequest) validate() string {
	req.Name = strings.TrimSpace(req.Name)
	req.Email = models.NormalizeEmail(req.Email)
	switch {
	case req.Name == "":
		return "Name is required"
	case req.Email == "" || !strings.Contains(req.Email, "@"):
		return "A valid email is required"
	case len(req.Password) < minPasswordLength:
		return "Password must be at least 6 characters"
	}
	return ""
}

// respondWithToken issues a session token for user and writes {token, user}
func (uc *UserController) respondWithToken(w http.ResponseWriter, status int, user *models.User) {
	token, err := uc.Tokens.Generate(user.ID, user.Email, user.Role)
	if err != nil {
		utils.WriteServerError(w, "Error generating token", err)
		return
	}
	utils.WriteJSON(w, status, utils.M{"token": token, "user": user})
}

// Register handles user registration
func (uc *UserController) Register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !utils.DecodeJSON(w, r, &req) {
		return
	}
	uc.register(w, r, req, models.RoleCustomer)
}

// RegisterAdmin creates an admin account when the shared admin secret matches
func (uc *UserController) RegisterAdmin(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !utils.DecodeJSON(w, r, &req) {
		return
	}
	if uc.AdminSecret == "" || req.AdminSecret != uc.AdminSecret {
		utils.WriteError(w, http.StatusForbidden, "Invalid admin secret")
		return
	}
	uc.register(w, r, req, models.RoleAdmin)
}

func (uc *UserController) register(w http.ResponseWriter, r *http.Request, req registerRequest, role string) {
	if msg := req.validate(); msg != "" {
		utils.WriteError(w, http.StatusBadRequest, msg)
		return
	}

	ctx, cancel := requestContext(r)
	defer cancel()

	// Check if user already exists
	_, err := uc.Store.Users().FindByEmail(ctx, req.Email)
	if err == nil {
		utils.WriteError(w, http.StatusBadRequest, "User already exists")
		return
	}
	if !errors.Is(err, store.ErrNotFound) {
		utils.WriteServerError(w, "Database error", err)
		return
	}

	hashed, err := utils.HashPassword(req.Password)
	if err != nil {
		utils.WriteServerError(w, "Error hashing password", err)
		return
	}
	user := &models.User{
		Name:     req.Name,
		Email:    req.Email,
		Password: hashed,
		Phone:    strings.TrimSpace(req.Phone),
		Role:     role,
	}
	if err := user.Validate(); err != nil {
		utils.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	if err := uc.Store.Users().Create(ctx, user); err != nil {
		if errors.Is(err, store.ErrDuplicate) {
			utils.WriteError(w, http.StatusBadRequest, "User already exists")
			return
		}
		utils.WriteServerError(w, "Error creating user", err)
		return
	}
	uc.respondWithToken(w, http.StatusCreated, user)
}

// Login handles user authentication
func (uc *UserController) Login(w http.ResponseWriter, r *http.Request) {
	var creds struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if !utils.DecodeJSON(w, r, &creds) {
		return
	}

	ctx, cancel := requestContext(r)
	defer cancel()

	user, err := uc.Store.Users().FindByEmail(ctx, models.NormalizeEmail(creds.Email))
	if errors.Is(err, store.ErrNotFound) {
		utils.WriteError(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}
	if err != nil {
		utils.WriteServerError(w, "Database error", err)
		return
	}
	if !utils.CheckPassword(user.Password, creds.Password) {
		utils.WriteError(w, http.StatusUnauthorized, "Invalid credentials")
		return
	}
	if user.IsBlocked {
		utils.WriteError(w, http.StatusForbidden, "Account is blocked")
		return
	}

	now := time.Now().UTC()
	user.LastLogin = &now
	if err := uc.Store.Users().Update(ctx, user); err != nil {
		utils.WriteServerError(w, "Error updating user", err)
		return
	}
	uc.respondWithToken(w, http.StatusOK, user)
}

// GoogleLogin signs in with a Google ID token, creating or linking the account
func (uc *UserController) GoogleLogin(w http.ResponseWriter, r *http.Request) {
	var req struct {
		IDToken string `json:"idToken"`
	}
	if !utils.DecodeJSON(w, r, &req) {
		return
	}
	if req.IDToken == "" {
		utils.WriteError(w, http.StatusBadRequest, "idToken is required")
		return
	}

	ctx, cancel := requestContext(r)
	defer cancel()

	identity, err := uc.Google.Verify(ctx, req.IDToken)
	if errors.Is(err, utils.ErrGoogleNotConfigured) {
		utils.WriteError(w, http.StatusServiceUnavailable, "Google sign-in is not configured")
		return
	}
	if err != nil {
		utils.WriteError(w, http.StatusUnauthorized, "Invalid Google token")
		return
	}

	now := time.Now().UTC()
	email := models.NormalizeEmail(identity.Email)
	user, err := uc.Store.Users().FindByEmailOrGoogleID(ctx, email, identity.Subject)
	if errors.Is(err, store.ErrNotFound) {
		name := identity.Name
		if name == "" {
			name = strings.Split(email, "@")[0]
		}
		user = &models.User{
			Name:            name,
			Email:           email,
			GoogleID:        identity.Subject,
			Avatar:          identity.Picture,
			Role:            models.RoleCustomer,
			IsVerified:      true,
			IsEmailVerified: true,
			LastLogin:       &now,
		}
		err = uc.Store.Users().Create(ctx, user)
		if err == nil {
			uc.respondWithToken(w, http.StatusOK, user)
			return
		}
		if !errors.Is(err, store.ErrDuplicate) {
			utils.WriteServerError(w, "Error creating user", err)
			return
		}
		// A concurrent first sign-in created the account; link to it instead.
		user, err = uc.Store.Users().FindByEmailOrGoogleID(ctx, email, identity.Subject)
	}
	if err != nil {
		utils.WriteServerError(w, "Database error", err)
		return
	}

	if user.IsBlocked {
		utils.WriteError(w, http.StatusForbidden, "Account is blocked")
		return
	}
	user.GoogleID = identity.Subject
	if identity.Picture != "" {
		user.Avatar = identity.Picture
	}
	user.IsEmailVerified = true
	user.LastLogin = &now
	if err := uc.Store.Users().Update(ctx, user); err != nil {
		utils.WriteServerError(w, "Error updating user", err)
		return
	}
	uc.respondWithToken(w, http.StatusOK, user)
}

// GetProfile returns the authenticated user
func (uc *UserController) GetProfile(w http.ResponseWriter, r *http.Request) {
	_, userID, ok := caller(w, r)
	if !ok {
		return
	}
	ctx, cancel := requestContext(r)
	defer cancel()

	user, err := uc.Store.Users().FindByID(ctx, userID)
	if err != nil {
		lookupError(w, err, "User not found")
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.M{"user": user})
}

type profileUpdate struct {
	Name            *string         `json:"name"`
	Phone           *string         `json:"phone"`
	Avatar          *string         `json:"avatar"`
	Address         *models.Address `json:"address"`
	CurrentPassword string          `json:"currentPassword"`
	NewPassword     string          `json:"newPassword"`
}

// UpdateProfile changes the caller's own details and, optionally, password
func (uc *UserController) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	_, userID, ok := caller(w, r)
	if !ok {
		return
	}
	var req profileUpdate
	if !utils.DecodeJSON(w, r, &req) {
		return
	}

	ctx, cancel := requestContext(r)
	defer cancel()

	user, err := uc.Store.Users().FindByID(ctx, userID)
	if err != nil {
		lookupError(w, err, "User not found")
		return
	}

	if req.Name != nil {
		if strings.TrimSpace(*req.Name) == "" {
			utils.WriteError(w, http.StatusBadRequest, "Name cannot be empty")
			return
		}
		user.Name = strings.TrimSpace(*req.Name)
	}
	if req.Phone != nil {
		user.Phone = strings.TrimSpace(*req.Phone)
	}
	if req.Avatar != nil {
		user.Avatar = *req.Avatar
	}
	if req.Address != nil {
		user.Address = req.Address
	}
	if req.NewPassword != "" {
		if len(req.NewPassword) < minPasswordLength {
			utils.WriteError(w, http.StatusBadRequest, "Password must be at least 6 characters")
			return
		}
		if user.Password != "" && !utils.CheckPassword(user.Password, req.CurrentPassword) {
			utils.WriteError(w, http.StatusBadRequest, "Current password is incorrect")
			return
		}
		hashed, err := utils.HashPassword(req.NewPassword)
		if err != nil {
			utils.WriteServerError(w, "Error hashing password", err)
			return
		}
		user.Password = hashed
	}

	if err := uc.Store.Users().Update(ctx, user); err != nil {
		utils.WriteServerError(w, "Error updating profile", err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, utils.M{"message": "Profile updated", "user": user})
}
