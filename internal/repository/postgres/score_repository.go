package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.uber.org/zap"

	"loremtype-backend/internal/models"
)

type scoreRepository struct {
	db     DB
	logger *zap.Logger
}

func NewScoreRepository(db DB, logger *zap.Logger) ScoreRepository {
	return &scoreRepository{db: db, logger: logger}
}

func (r *scoreRepository) UpdateStats(ctx context.Context, id uuid.UUID, score, gamesPlayed int, bestWPM, bestAccuracy *float64) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE users SET score = $2, games_played = $3, best_wpm = $4, best_accuracy = $5
		WHERE id = $1`,
		id, score, gamesPlayed, bestWPM, bestAccuracy,
	)
	if err != nil {
		return fmt.Errorf("failed to update user stats: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *scoreRepository) InsertGame(ctx context.Context, result *models.GameResult) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO game_history (user_id, score, wpm, accuracy, game_mode, word_type, time_seconds, played_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		result.UserID,
		result.Score,
		result.WPM,
		result.Accuracy,
		result.GameMode,
		result.WordType,
		result.TimeSeconds,
		result.PlayedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert game history: %w", err)
	}
	return nil
}

// RecalculateRanks reassigns ranks across all scored users. Ties resolve to
// the earlier account.
func (r *scoreRepository) RecalculateRanks(ctx context.Context) error {
	_, err := r.db.Exec(ctx, `
		UPDATE users u SET rank = ranked.new_rank
		FROM (
			SELECT id, RANK() OVER (ORDER BY score DESC, created_at ASC) AS new_rank
			FROM users
			WHERE score > 0
		) ranked
		WHERE u.id = ranked.id`,
	)
	if err != nil {
		return fmt.Errorf("failed to recalculate ranks: %w", err)
	}
	return nil
}

func (r *scoreRepository) GetRank(ctx context.Context, id uuid.UUID) (int, error) {
	var rank int
	err := r.db.QueryRow(ctx, `SELECT rank FROM users WHERE id = $1`, id).Scan(&rank)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, ErrNotFound
		}
		return 0, fmt.Errorf("failed to get rank: %w", err)
	}
	return rank, nil
}

func (r *scoreRepository) Leaderboard(ctx context.Context, limit, offset int) ([]models.LeaderboardEntry, int, error) {
	rows, err := r.db.Query(ctx, `
		SELECT rank, username, score, games_played, best_wpm, best_accuracy, created_at
		FROM users
		WHERE score > 0
		ORDER BY score DESC, created_at ASC
		LIMIT $1 OFFSET $2`,
		limit, offset,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query leaderboard: %w", err)
	}
	defer rows.Close()

	var entries []models.LeaderboardEntry
	for rows.Next() {
		var e models.LeaderboardEntry
		if err := rows.Scan(&e.Rank, &e.Username, &e.Score, &e.GamesPlayed, &e.BestWPM, &e.BestAccuracy, &e.CreatedAt); err != nil {
			return nil, 0, fmt.Errorf("failed to scan leaderboard entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to read leaderboard: %w", err)
	}

	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(*) FROM users WHERE score > 0`).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count leaderboard: %w", err)
	}

	return entries, total, nil
}

func (r *scoreRepository) RecentGames(ctx context.Context, username string, limit int) ([]models.GameHistoryEntry, error) {
	entries, _, err := r.queryHistory(ctx, username, limit, 0, false)
	return entries, err
}

func (r *scoreRepository) History(ctx context.Context, username string, limit, offset int) ([]models.GameHistoryEntry, int, error) {
	return r.queryHistory(ctx, username, limit, offset, true)
}

func (r *scoreRepository) queryHistory(ctx context.Context, username string, limit, offset int, withTotal bool) ([]models.GameHistoryEntry, int, error) {
	// Usernames are stored lowercase; match the user lookups.
	username = strings.ToLower(username)

	rows, err := r.db.Query(ctx, `
		SELECT score, wpm, accuracy, game_mode, word_type, time_seconds, played_at
		FROM game_history
		WHERE user_id = (SELECT id FROM users WHERE username = $1)
		ORDER BY played_at DESC
		LIMIT $2 OFFSET $3`,
		username, limit, offset,
	)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to query game history: %w", err)
	}
	defer rows.Close()

	var entries []models.GameHistoryEntry
	for rows.Next() {
		var e models.GameHistoryEntry
		if err := rows.Scan(&e.Score, &e.WPM, &e.Accuracy, &e.GameMode, &e.WordType, &e.TimeSeconds, &e.PlayedAt); err != nil {
			return nil, 0, fmt.Errorf("failed to scan game history entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to read game history: %w", err)
	}

	if !withTotal {
		return entries, len(entries), nil
	}

	var total int
	err = r.db.QueryRow(ctx, `
		SELECT COUNT(*) FROM game_history
		WHERE user_id = (SELECT id FROM users WHERE username = $1)`,
		username,
	).Scan(&total)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count game history: %w", err)
	}

	return entries, total, nil
}
