package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"loremtype-backend/internal/service"
	"loremtype-backend/internal/token"
	"loremtype-backend/internal/util"
)

// ScoreHandler exposes score submission, the leaderboard, profiles, and game
// history.
type ScoreHandler struct {
	scores *service.ScoreService
	issuer *token.Issuer
	logger *zap.Logger
}

func NewScoreHandler(scores *service.ScoreService, issuer *token.Issuer, logger *zap.Logger) *ScoreHandler {
	return &ScoreHandler{scores: scores, issuer: issuer, logger: logger}
}

func (h *ScoreHandler) RegisterRoutes(router chi.Router) {
	router.Group(func(r chi.Router) {
		r.Use(SessionAuth(h.issuer, h.logger))
		r.Post("/scores/update", h.UpdateScore)
	})

	router.Get("/leaderboard", h.Leaderboard)
	router.Get("/users/{username}", h.Profile)
	router.Get("/users/{username}/history", h.History)
}

func (h *ScoreHandler) UpdateScore(w http.ResponseWriter, r *http.Request) {
	claims, ok := ClaimsFromContext(r.Context())
	if !ok {
		respondWithError(w, h.logger, http.StatusUnauthorized, service.ErrInvalidToken, "Authentication required")
		return
	}
	userID, err := claims.UserID()
	if err != nil {
		respondWithError(w, h.logger, http.StatusUnauthorized, service.ErrInvalidToken, "Authentication required")
		return
	}

	var req service.UpdateScoreRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, h.logger, http.StatusBadRequest, err, "Invalid request body")
		return
	}

	resp, err := h.scores.UpdateScore(r.Context(), userID, req)
	if err != nil {
		respondWithError(w, h.logger, getStatusCode(err), err, "Failed to update score")
		return
	}

	respondWithJSON(w, h.logger, http.StatusOK, successResponse(resp, "Score updated"))
	h.logger.Debug("Score updated via HTTP",
		util.String("username", claims.Username),
		util.Int("score", resp.Score),
	)
}

func (h *ScoreHandler) Leaderboard(w http.ResponseWriter, r *http.Request) {
	limit, err := queryInt(r, "limit", 0)
	if err != nil {
		respondWithError(w, h.logger, http.StatusBadRequest, err, "Invalid limit")
		return
	}
	offset, err := queryInt(r, "offset", 0)
	if err != nil {
		respondWithError(w, h.logger, http.StatusBadRequest, err, "Invalid offset")
		return
	}

	resp, err := h.scores.Leaderboard(r.Context(), limit, offset)
	if err != nil {
		respondWithError(w, h.logger, getStatusCode(err), err, "Failed to load leaderboard")
		return
	}

	respondWithJSON(w, h.logger, http.StatusOK, successResponse(resp, "Leaderboard retrieved"))
}

func (h *ScoreHandler) Profile(w http.ResponseWriter, r *http.Request) {
	username := chi.URLParam(r, "username")

	resp, err := h.scores.Profile(r.Context(), username)
	if err != nil {
		respondWithError(w, h.logger, getStatusCode(err), err, "Failed to load profile")
		return
	}

	respondWithJSON(w, h.logger, http.StatusOK, successResponse(resp, "Profile retrieved"))
}

func (h *ScoreHandler) History(w http.ResponseWriter, r *http.Request) {
	username := chi.URLParam(r, "username")

	limit, err := queryInt(r, "limit", 0)
	if err != nil {
		respondWithError(w, h.logger, http.StatusBadRequest, err, "Invalid limit")
		return
	}
	offset, err := queryInt(r, "offset", 0)
	if err != nil {
		respondWithError(w, h.logger, http.StatusBadRequest, err, "Invalid offset")
		return
	}

	resp, err := h.scores.History(r.Context(), username, limit, offset)
	if err != nil {
		respondWithError(w, h.logger, getStatusCode(err), err, "Failed to load history")
		return
	}

	respondWithJSON(w, h.logger, http.StatusOK, successResponse(resp, "History retrieved"))
}

func queryInt(r *http.Request, name string, fallback int) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, errors.New(name + " must be an integer")
	}
	return n, nil
}
