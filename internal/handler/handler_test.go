package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"loremtype-backend/internal/config"
	"loremtype-backend/internal/hashing"
	"loremtype-backend/internal/mailer"
	"loremtype-backend/internal/models"
	"loremtype-backend/internal/ratelimit"
	"loremtype-backend/internal/repository/postgres"
	"loremtype-backend/internal/service"
	"loremtype-backend/internal/token"
)

// memUserRepo is a minimal in-memory implementation of the user repository
// for end-to-end handler tests.
type memUserRepo struct {
	mu    sync.Mutex
	users map[uuid.UUID]*models.User
}

func newMemUserRepo() *memUserRepo {
	return &memUserRepo{users: make(map[uuid.UUID]*models.User)}
}

func (r *memUserRepo) Create(ctx context.Context, user *models.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	name := strings.ToLower(user.Username)
	for _, u := range r.users {
		if u.Username == name {
			return postgres.ErrDuplicateUsername
		}
	}
	clone := *user
	clone.Username = name
	r.users[user.ID] = &clone
	return nil
}

func (r *memUserRepo) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	name := strings.ToLower(username)
	for _, u := range r.users {
		if u.Username == name {
			clone := *u
			return &clone, nil
		}
	}
	return nil, postgres.ErrNotFound
}

func (r *memUserRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return nil, postgres.ErrNotFound
	}
	clone := *u
	return &clone, nil
}

func (r *memUserRepo) RecordFailedAttempt(ctx context.Context, id uuid.UUID, maxFailures int, lockedUntil time.Time) (int, *time.Time, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return 0, nil, postgres.ErrNotFound
	}
	u.FailedAttempts++
	if u.LockedUntil == nil && u.FailedAttempts >= maxFailures {
		expiry := lockedUntil
		u.LockedUntil = &expiry
	}
	return u.FailedAttempts, u.LockedUntil, nil
}

func (r *memUserRepo) ClearExpiredLock(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.users[id]; ok && u.LockedUntil != nil && !u.LockedUntil.After(time.Now()) {
		u.LockedUntil = nil
		u.FailedAttempts = 0
	}
	return nil
}

func (r *memUserRepo) RecordSuccessfulLogin(ctx context.Context, id uuid.UUID, ip string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return postgres.ErrNotFound
	}
	u.FailedAttempts = 0
	u.LockedUntil = nil
	return nil
}

func (r *memUserRepo) UpdateCredentials(ctx context.Context, id uuid.UUID, abbreviationHash, pinHash, recoveryCodeHash string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	u, ok := r.users[id]
	if !ok {
		return postgres.ErrNotFound
	}
	u.AbbreviationHash = abbreviationHash
	u.PINHash = pinHash
	u.RecoveryCodeHash = recoveryCodeHash
	u.FailedAttempts = 0
	u.LockedUntil = nil
	return nil
}

type memScoreRepo struct {
	mu    sync.Mutex
	users *memUserRepo
	games []models.GameResult
}

func (r *memScoreRepo) UpdateStats(ctx context.Context, id uuid.UUID, score, gamesPlayed int, bestWPM, bestAccuracy *float64) error {
	r.users.mu.Lock()
	defer r.users.mu.Unlock()
	u, ok := r.users.users[id]
	if !ok {
		return postgres.ErrNotFound
	}
	u.Score = score
	u.GamesPlayed = gamesPlayed
	u.BestWPM = bestWPM
	u.BestAccuracy = bestAccuracy
	return nil
}

func (r *memScoreRepo) InsertGame(ctx context.Context, result *models.GameResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.games = append(r.games, *result)
	return nil
}

func (r *memScoreRepo) RecalculateRanks(ctx context.Context) error {
	r.users.mu.Lock()
	defer r.users.mu.Unlock()
	ranked := make([]*models.User, 0)
	for _, u := range r.users.users {
		if u.Score > 0 {
			ranked = append(ranked, u)
		}
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score > ranked[j].Score
		}
		return ranked[i].CreatedAt.Before(ranked[j].CreatedAt)
	})
	for i, u := range ranked {
		u.Rank = i + 1
	}
	return nil
}

func (r *memScoreRepo) GetRank(ctx context.Context, id uuid.UUID) (int, error) {
	r.users.mu.Lock()
	defer r.users.mu.Unlock()
	u, ok := r.users.users[id]
	if !ok {
		return 0, postgres.ErrNotFound
	}
	return u.Rank, nil
}

func (r *memScoreRepo) Leaderboard(ctx context.Context, limit, offset int) ([]models.LeaderboardEntry, int, error) {
	r.users.mu.Lock()
	defer r.users.mu.Unlock()
	ranked := make([]*models.User, 0)
	for _, u := range r.users.users {
		if u.Score > 0 {
			ranked = append(ranked, u)
		}
	}
	sort.Slice(ranked, func(i, j int) bool { return ranked[i].Score > ranked[j].Score })
	var entries []models.LeaderboardEntry
	for i := offset; i < len(ranked) && len(entries) < limit; i++ {
		u := ranked[i]
		entries = append(entries, models.LeaderboardEntry{
			Rank: u.Rank, Username: u.Username, Score: u.Score,
			GamesPlayed: u.GamesPlayed, CreatedAt: u.CreatedAt,
		})
	}
	return entries, len(ranked), nil
}

func (r *memScoreRepo) RecentGames(ctx context.Context, username string, limit int) ([]models.GameHistoryEntry, error) {
	entries, _, err := r.History(ctx, username, limit, 0)
	return entries, err
}

func (r *memScoreRepo) History(ctx context.Context, username string, limit, offset int) ([]models.GameHistoryEntry, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	name := strings.ToLower(username)
	var entries []models.GameHistoryEntry
	total := 0
	for _, g := range r.games {
		if g.Username != name {
			continue
		}
		total++
		if total > offset && len(entries) < limit {
			entries = append(entries, models.GameHistoryEntry{Score: g.Score, PlayedAt: g.PlayedAt})
		}
	}
	return entries, total, nil
}

func newTestRouter(t *testing.T) chi.Router {
	t.Helper()

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	logger := zap.NewNop()
	limiter := ratelimit.NewLimiter(client, config.RateLimitConfig{
		Username: config.RateLimitPolicy{MaxAttempts: 3, Window: time.Hour, LockDuration: time.Hour},
		Origin:   config.RateLimitPolicy{MaxAttempts: 10, Window: time.Hour, LockDuration: time.Hour},
	}, logger)

	hasher, err := hashing.NewHasher(config.HashingConfig{
		Argon2MemoryKB: 8 * 1024, Argon2TimeCost: 1, Argon2Parallelism: 1,
	})
	require.NoError(t, err)

	issuer := token.NewIssuer(config.TokenConfig{
		Secret: "test-secret", SessionTTL: time.Hour, ResetTTL: 15 * time.Minute,
	})

	users := newMemUserRepo()
	authSvc := service.NewAuthService(users, limiter, hasher, issuer, mailer.NewNoopMailer(), nil,
		config.LockoutConfig{MaxFailures: 3, LockDuration: time.Hour}, logger)
	scoreSvc := service.NewScoreService(users, &memScoreRepo{users: users}, nil, logger)

	return NewRouter(
		NewAuthHandler(authSvc, logger),
		NewScoreHandler(scoreSvc, issuer, logger),
		nil,
		logger,
	)
}

func doJSON(t *testing.T, router chi.Router, method, path, bearer string, body interface{}) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.RemoteAddr = "203.0.113.7:51234"
	req.Header.Set("Content-Type", "application/json")
	if bearer != "" {
		req.Header.Set("Authorization", "Bearer "+bearer)
	}

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	var envelope map[string]interface{}
	if rec.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &envelope))
	}
	return rec, envelope
}

func registerAlice(t *testing.T, router chi.Router) map[string]interface{} {
	t.Helper()
	rec, envelope := doJSON(t, router, http.MethodPost, "/api/auth/register", "", map[string]interface{}{
		"username": "alice", "abbreviation": "tk9x", "pin": "48213",
		"generateRecoveryCode": true,
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	return envelope["data"].(map[string]interface{})
}

func TestRegisterEndpoint(t *testing.T) {
	router := newTestRouter(t)

	data := registerAlice(t, router)
	assert.NotEmpty(t, data["token"])
	assert.Regexp(t, `^LOREM(-[A-Z2-9]{4}){3}$`, data["recoveryCode"])

	rec, envelope := doJSON(t, router, http.MethodPost, "/api/auth/register", "", map[string]interface{}{
		"username": "alice", "abbreviation": "zq8w", "pin": "93145",
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, false, envelope["success"])
}

func TestRegisterInvalidBody(t *testing.T) {
	router := newTestRouter(t)

	req := httptest.NewRequest(http.MethodPost, "/api/auth/register", strings.NewReader("{not json"))
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestLoginEndpointFailuresAndLockout(t *testing.T) {
	router := newTestRouter(t)
	registerAlice(t, router)

	wrong := map[string]interface{}{"username": "alice", "abbreviation": "tk9x", "pin": "93145"}

	rec, envelope := doJSON(t, router, http.MethodPost, "/api/auth/login", "", wrong)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, float64(2), envelope["attemptsRemaining"])

	rec, _ = doJSON(t, router, http.MethodPost, "/api/auth/login", "", wrong)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, envelope = doJSON(t, router, http.MethodPost, "/api/auth/login", "", wrong)
	assert.Equal(t, http.StatusLocked, rec.Code)
	assert.NotNil(t, envelope["minutesRemaining"])

	// Correct credentials still refused while locked.
	rec, _ = doJSON(t, router, http.MethodPost, "/api/auth/login", "", map[string]interface{}{
		"username": "alice", "abbreviation": "tk9x", "pin": "48213",
	})
	assert.Equal(t, http.StatusLocked, rec.Code)
}

func TestLoginSuccessEndpoint(t *testing.T) {
	router := newTestRouter(t)
	registerAlice(t, router)

	rec, envelope := doJSON(t, router, http.MethodPost, "/api/auth/login", "", map[string]interface{}{
		"username": "alice", "abbreviation": "tk9x", "pin": "48213",
	})
	require.Equal(t, http.StatusOK, rec.Code)
	data := envelope["data"].(map[string]interface{})
	assert.NotEmpty(t, data["token"])
	user := data["user"].(map[string]interface{})
	assert.Equal(t, "alice", user["username"])
}

func TestScoreUpdateRequiresAuth(t *testing.T) {
	router := newTestRouter(t)

	rec, _ := doJSON(t, router, http.MethodPost, "/api/scores/update", "", map[string]interface{}{"score": 100})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec, _ = doJSON(t, router, http.MethodPost, "/api/scores/update", "not-a-token", map[string]interface{}{"score": 100})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestScoreUpdateAndLeaderboard(t *testing.T) {
	router := newTestRouter(t)
	data := registerAlice(t, router)
	sessionToken := data["token"].(string)

	rec, envelope := doJSON(t, router, http.MethodPost, "/api/scores/update", sessionToken, map[string]interface{}{
		"score": 750,
		"gameData": map[string]interface{}{
			"wpm": 81.0, "accuracy": 95.5,
		},
	})
	require.Equal(t, http.StatusOK, rec.Code)
	scoreData := envelope["data"].(map[string]interface{})
	assert.Equal(t, float64(750), scoreData["score"])
	assert.Equal(t, float64(1), scoreData["rank"])

	rec, envelope = doJSON(t, router, http.MethodGet, "/api/leaderboard?limit=10", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	board := envelope["data"].(map[string]interface{})
	entries := board["entries"].([]interface{})
	require.Len(t, entries, 1)
	first := entries[0].(map[string]interface{})
	assert.Equal(t, "alice", first["username"])
}

func TestResetRejectsSessionToken(t *testing.T) {
	router := newTestRouter(t)
	data := registerAlice(t, router)

	rec, _ := doJSON(t, router, http.MethodPost, "/api/auth/reset", data["token"].(string), map[string]interface{}{
		"newAbbreviation": "zq8w", "newPin": "93145",
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestRecoverResetFlowEndpoint(t *testing.T) {
	router := newTestRouter(t)
	data := registerAlice(t, router)

	rec, envelope := doJSON(t, router, http.MethodPost, "/api/auth/recover", "", map[string]interface{}{
		"username": "alice", "recoveryCode": data["recoveryCode"],
	})
	require.Equal(t, http.StatusOK, rec.Code)
	resetToken := envelope["data"].(map[string]interface{})["resetToken"].(string)

	rec, _ = doJSON(t, router, http.MethodPost, "/api/auth/reset", resetToken, map[string]interface{}{
		"newAbbreviation": "zq8w", "newPin": "93145",
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec, _ = doJSON(t, router, http.MethodPost, "/api/auth/login", "", map[string]interface{}{
		"username": "alice", "abbreviation": "zq8w", "pin": "93145",
	})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestProfileAndHistoryEndpoints(t *testing.T) {
	router := newTestRouter(t)
	data := registerAlice(t, router)
	sessionToken := data["token"].(string)

	rec, _ := doJSON(t, router, http.MethodPost, "/api/scores/update", sessionToken, map[string]interface{}{
		"score":    42,
		"gameData": map[string]interface{}{"wpm": 64.0},
	})
	require.Equal(t, http.StatusOK, rec.Code)

	rec, envelope := doJSON(t, router, http.MethodGet, "/api/users/alice", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	profile := envelope["data"].(map[string]interface{})
	assert.Equal(t, float64(42), profile["score"])

	rec, envelope = doJSON(t, router, http.MethodGet, "/api/users/alice/history", "", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	history := envelope["data"].(map[string]interface{})
	assert.Equal(t, float64(1), history["total"])

	rec, _ = doJSON(t, router, http.MethodGet, "/api/users/ghost", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestUnknownRoute(t *testing.T) {
	router := newTestRouter(t)

	rec, _ := doJSON(t, router, http.MethodGet, "/api/nope", "", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
}
