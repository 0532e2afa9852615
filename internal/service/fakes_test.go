package service

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"loremtype-backend/internal/models"
	"loremtype-backend/internal/repository/postgres"
)

// fakeUserRepo mirrors the SQL semantics of the real repository in memory.
type fakeUserRepo struct {
	mu    sync.Mutex
	users map[uuid.UUID]*models.User
}

func newFakeUserRepo() *fakeUserRepo {
	return &fakeUserRepo{users: make(map[uuid.UUID]*models.User)}
}

func (r *fakeUserRepo) Create(ctx context.Context, user *models.User) error {
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

func (r *fakeUserRepo) GetByUsername(ctx context.Context, username string) (*models.User, error) {
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

func (r *fakeUserRepo) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[id]
	if !ok {
		return nil, postgres.ErrNotFound
	}
	clone := *u
	return &clone, nil
}

func (r *fakeUserRepo) RecordFailedAttempt(ctx context.Context, id uuid.UUID, maxFailures int, lockedUntil time.Time) (int, *time.Time, error) {
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

func (r *fakeUserRepo) ClearExpiredLock(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[id]
	if !ok {
		return nil
	}
	if u.LockedUntil != nil && !u.LockedUntil.After(time.Now()) {
		u.LockedUntil = nil
		u.FailedAttempts = 0
	}
	return nil
}

func (r *fakeUserRepo) RecordSuccessfulLogin(ctx context.Context, id uuid.UUID, ip string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[id]
	if !ok {
		return postgres.ErrNotFound
	}
	u.FailedAttempts = 0
	u.LockedUntil = nil
	now := time.Now()
	u.LastLogin = &now
	u.LastIP = &ip
	return nil
}

func (r *fakeUserRepo) UpdateCredentials(ctx context.Context, id uuid.UUID, abbreviationHash, pinHash, recoveryCodeHash string) error {
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

// lockRaw force-sets lockout state, bypassing the normal transition.
func (r *fakeUserRepo) lockRaw(id uuid.UUID, attempts int, until *time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if u, ok := r.users[id]; ok {
		u.FailedAttempts = attempts
		u.LockedUntil = until
	}
}

// fakeScoreRepo keeps games in memory and ranks users the way the SQL window
// query does.
type fakeScoreRepo struct {
	mu    sync.Mutex
	users *fakeUserRepo
	games []models.GameResult
}

func newFakeScoreRepo(users *fakeUserRepo) *fakeScoreRepo {
	return &fakeScoreRepo{users: users}
}

func (r *fakeScoreRepo) UpdateStats(ctx context.Context, id uuid.UUID, score, gamesPlayed int, bestWPM, bestAccuracy *float64) error {
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

func (r *fakeScoreRepo) InsertGame(ctx context.Context, result *models.GameResult) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.games = append(r.games, *result)
	return nil
}

func (r *fakeScoreRepo) RecalculateRanks(ctx context.Context) error {
	r.users.mu.Lock()
	defer r.users.mu.Unlock()

	ranked := make([]*models.User, 0, len(r.users.users))
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

func (r *fakeScoreRepo) GetRank(ctx context.Context, id uuid.UUID) (int, error) {
	r.users.mu.Lock()
	defer r.users.mu.Unlock()

	u, ok := r.users.users[id]
	if !ok {
		return 0, postgres.ErrNotFound
	}
	return u.Rank, nil
}

func (r *fakeScoreRepo) Leaderboard(ctx context.Context, limit, offset int) ([]models.LeaderboardEntry, int, error) {
	r.users.mu.Lock()
	defer r.users.mu.Unlock()

	ranked := make([]*models.User, 0, len(r.users.users))
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

	total := len(ranked)
	var entries []models.LeaderboardEntry
	for i := offset; i < total && len(entries) < limit; i++ {
		u := ranked[i]
		entries = append(entries, models.LeaderboardEntry{
			Rank:         u.Rank,
			Username:     u.Username,
			Score:        u.Score,
			GamesPlayed:  u.GamesPlayed,
			BestWPM:      u.BestWPM,
			BestAccuracy: u.BestAccuracy,
			CreatedAt:    u.CreatedAt,
		})
	}
	return entries, total, nil
}

func (r *fakeScoreRepo) RecentGames(ctx context.Context, username string, limit int) ([]models.GameHistoryEntry, error) {
	entries, _, err := r.History(ctx, username, limit, 0)
	return entries, err
}

func (r *fakeScoreRepo) History(ctx context.Context, username string, limit, offset int) ([]models.GameHistoryEntry, int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	name := strings.ToLower(username)
	var matched []models.GameResult
	for _, g := range r.games {
		if g.Username == name {
			matched = append(matched, g)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].PlayedAt.After(matched[j].PlayedAt)
	})

	total := len(matched)
	var entries []models.GameHistoryEntry
	for i := offset; i < total && len(entries) < limit; i++ {
		g := matched[i]
		entries = append(entries, models.GameHistoryEntry{
			Score:       g.Score,
			WPM:         g.WPM,
			Accuracy:    g.Accuracy,
			GameMode:    g.GameMode,
			WordType:    g.WordType,
			TimeSeconds: g.TimeSeconds,
			PlayedAt:    g.PlayedAt,
		})
	}
	return entries, total, nil
}
