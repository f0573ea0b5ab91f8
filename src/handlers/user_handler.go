package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/username/fintrack/backend/src/config"
	"github.com/username/fintrack/backend/src/database"
	"github.com/username/fintrack/backend/src/logger"
	"github.com/username/fintrack/backend/src/model"
	"github.com/username/fintrack/backend/src/models"
	"github.com/username/fintrack/backend/src/security"
	"github.com/username/fintrack/backend/src/services"
	"github.com/username/fintrack/backend/src/utils"
)

// Context key for the authenticated user id, unexported to keep access behind
// GetUserIDFromContext.
type contextKey string

const userIDContextKey contextKey = "userID"

type UserHandler struct {
	authService  *security.AuthService
	emailService services.EmailService
	sessionCache *cache.Cache
}

func NewUserHandler(authService *security.AuthService, emailService services.EmailService, sessionCache *cache.Cache) *UserHandler {
	return &UserHandler{
		authService:  authService,
		emailService: emailService,
		sessionCache: sessionCache,
	}
}

type credentialsRequest struct {
	Email           string `json:"email"`
	Password        string `json:"password"`
	DefaultCurrency string `json:"defaultCurrency,omitempty"`
}

type authResponse struct {
	Email           string `json:"email"`
	Token           string `json:"token"`
	RefreshToken    string `json:"refresh_token"`
	UserID          int64  `json:"userId"`
	DefaultCurrency string `json:"defaultCurrency"`
}

func (h *UserHandler) RegisterUserHandler(w http.ResponseWriter, r *http.Request) {
	var credentials credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&credentials); err != nil {
		utils.SendJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	credentials.Email = strings.TrimSpace(strings.ToLower(credentials.Email))
	if credentials.Email == "" || !strings.Contains(credentials.Email, "@") {
		utils.SendJSONError(w, "A valid email is required", http.StatusBadRequest)
		return
	}
	if len(credentials.Password) < 8 {
		utils.SendJSONError(w, "Password must be at least 8 characters", http.StatusBadRequest)
		return
	}

	currency := credentials.DefaultCurrency
	if currency == "" {
		currency = config.Cfg.DefaultCurrency
	}
	if !models.IsSupportedCurrency(currency) {
		utils.SendJSONError(w, fmt.Sprintf("Unsupported currency %q", currency), http.StatusBadRequest)
		return
	}

	hashedPassword, err := h.authService.HashPassword(credentials.Password)
	if err != nil {
		utils.SendJSONError(w, "Failed to hash password", http.StatusInternalServerError)
		return
	}

	user := &model.User{
		Email:           credentials.Email,
		Password:        hashedPassword,
		DefaultCurrency: currency,
	}
	if err := user.CreateUser(database.DB); err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed: users.email") {
			utils.SendJSONError(w, "Email already registered", http.StatusConflict)
			return
		}
		logger.L.Error("Failed to create user", "error", err)
		utils.SendJSONError(w, "Failed to create user", http.StatusInternalServerError)
		return
	}

	if err := h.emailService.SendWelcomeEmail(user.Email); err != nil {
		// Registration succeeded; the email is best-effort.
		logger.L.Warn("Failed to send welcome email", "email", user.Email, "error", err)
	}

	resp, err := h.issueSession(user, r)
	if err != nil {
		utils.SendJSONError(w, "Failed to create session", http.StatusInternalServerError)
		return
	}
	utils.SendJSON(w, resp, http.StatusCreated)
}

func (h *UserHandler) LoginUserHandler(w http.ResponseWriter, r *http.Request) {
	var credentials credentialsRequest
	if err := json.NewDecoder(r.Body).Decode(&credentials); err != nil {
		utils.SendJSONError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	user, err := model.GetUserByEmail(database.DB, strings.TrimSpace(strings.ToLower(credentials.Email)))
	if err != nil {
		logger.L.Debug("User lookup failed", "email", credentials.Email, "error", err)
		utils.SendJSONError(w, "Invalid email or password", http.StatusUnauthorized)
		return
	}
	if err := user.CheckPassword(credentials.Password); err != nil {
		logger.L.Debug("Password check failed", "email", credentials.Email)
		utils.SendJSONError(w, "Invalid email or password", http.StatusUnauthorized)
		return
	}

	resp, err := h.issueSession(user, r)
	if err != nil {
		utils.SendJSONError(w, "Failed to create session", http.StatusInternalServerError)
		return
	}
	utils.SendJSON(w, resp, http.StatusOK)
}

func (h *UserHandler) issueSession(user *model.User, r *http.Request) (*authResponse, error) {
	accessToken, err := h.authService.GenerateToken(fmt.Sprintf("%d", user.ID))
	if err != nil {
		return nil, err
	}
	refreshToken, err := h.authService.GenerateRefreshToken()
	if err != nil {
		return nil, err
	}

	session := &model.Session{
		UserID:       user.ID,
		Token:        accessToken,
		RefreshToken: refreshToken,
		UserAgent:    r.UserAgent(),
		ClientIP:     r.RemoteAddr,
		IsBlocked:    false,
		ExpiresAt:    time.Now().Add(config.Cfg.RefreshTokenExpiry),
	}
	if err := model.CreateSession(database.DB, session); err != nil {
		return nil, err
	}
	h.sessionCache.Set(accessToken, user.ID, config.Cfg.AccessTokenExpiry)

	return &authResponse{
		Email:           user.Email,
		Token:           accessToken,
		RefreshToken:    refreshToken,
		UserID:          user.ID,
		DefaultCurrency: user.DefaultCurrency,
	}, nil
}

func (h *UserHandler) LogoutUserHandler(w http.ResponseWriter, r *http.Request) {
	tokenString := bearerToken(r)
	if tokenString == "" {
		utils.SendJSONError(w, "Authorization header required", http.StatusUnauthorized)
		return
	}

	h.sessionCache.Delete(tokenString)
	if err := model.DeleteSessionByToken(database.DB, tokenString); err != nil {
		logger.L.Warn("Failed to delete session on logout", "error", err)
	}

	w.WriteHeader(http.StatusNoContent)
}

func bearerToken(r *http.Request) string {
	authHeader := r.Header.Get("Authorization")
	if authHeader == "" {
		return ""
	}
	if strings.HasPrefix(authHeader, "Bearer ") {
		return strings.TrimPrefix(authHeader, "Bearer ")
	}
	return authHeader
}
