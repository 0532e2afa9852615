package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"loremtype-backend/internal/service"
	"loremtype-backend/internal/util"
)

// AuthHandler exposes the register, login, recover, and reset flows.
type AuthHandler struct {
	auth   *service.AuthService
	logger *zap.Logger
}

func NewAuthHandler(auth *service.AuthService, logger *zap.Logger) *AuthHandler {
	return &AuthHandler{auth: auth, logger: logger}
}

func (h *AuthHandler) RegisterRoutes(router chi.Router) {
	router.Route("/auth", func(r chi.Router) {
		r.Post("/register", h.Register)
		r.Post("/login", h.Login)
		r.Post("/recover", h.Recover)
		r.Post("/reset", h.Reset)
		r.Post("/send-recovery-email", h.SendRecoveryEmail)
	})
}

func (h *AuthHandler) Register(w http.ResponseWriter, r *http.Request) {
	startTime := time.Now()

	var req service.RegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, h.logger, http.StatusBadRequest, err, "Invalid request body")
		return
	}

	resp, err := h.auth.Register(r.Context(), req)
	if err != nil {
		respondWithError(w, h.logger, getStatusCode(err), err, "Registration failed")
		return
	}

	respondWithJSON(w, h.logger, http.StatusCreated, successResponse(resp, "User registered successfully"))
	h.logger.Info("Registration via HTTP",
		util.String("username", resp.User.Username),
		util.Duration("duration", time.Since(startTime)),
	)
}

func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	startTime := time.Now()

	var req service.LoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, h.logger, http.StatusBadRequest, err, "Invalid request body")
		return
	}

	resp, err := h.auth.Login(r.Context(), req, clientIP(r))
	if err != nil {
		respondWithError(w, h.logger, getStatusCode(err), err, "Login failed")
		return
	}

	respondWithJSON(w, h.logger, http.StatusOK, successResponse(resp, "Login successful"))
	h.logger.Info("Login via HTTP",
		util.String("username", resp.User.Username),
		util.Duration("duration", time.Since(startTime)),
	)
}

func (h *AuthHandler) Recover(w http.ResponseWriter, r *http.Request) {
	var req service.RecoverRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, h.logger, http.StatusBadRequest, err, "Invalid request body")
		return
	}

	resp, err := h.auth.Recover(r.Context(), req)
	if err != nil {
		respondWithError(w, h.logger, getStatusCode(err), err, "Recovery failed")
		return
	}

	respondWithJSON(w, h.logger, http.StatusOK, successResponse(resp, "Recovery code accepted"))
}

// Reset consumes the purpose-scoped token from the Authorization header, not
// the session middleware.
func (h *AuthHandler) Reset(w http.ResponseWriter, r *http.Request) {
	resetToken := bearerToken(r)
	if resetToken == "" {
		respondWithError(w, h.logger, http.StatusUnauthorized,
			errors.New("missing bearer token"), "Reset token required")
		return
	}

	var req service.ResetRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, h.logger, http.StatusBadRequest, err, "Invalid request body")
		return
	}

	resp, err := h.auth.Reset(r.Context(), resetToken, req)
	if err != nil {
		respondWithError(w, h.logger, getStatusCode(err), err, "Reset failed")
		return
	}

	respondWithJSON(w, h.logger, http.StatusOK, successResponse(resp, "Credentials reset successfully"))
}

func (h *AuthHandler) SendRecoveryEmail(w http.ResponseWriter, r *http.Request) {
	var req service.SendRecoveryEmailRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, h.logger, http.StatusBadRequest, err, "Invalid request body")
		return
	}

	resp, err := h.auth.SendRecoveryEmail(r.Context(), req)
	if err != nil {
		respondWithError(w, h.logger, getStatusCode(err), err, "Email delivery failed")
		return
	}

	respondWithJSON(w, h.logger, http.StatusOK, successResponse(resp, "Recovery email processed"))
}
