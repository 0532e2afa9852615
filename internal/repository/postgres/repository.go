package postgres

import (
	"context"
	"embed"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pressly/goose/v3"

	_ "github.com/jackc/pgx/v5/stdlib"

	"loremtype-backend/internal/models"
)

var (
	ErrNotFound          = errors.New("record not found")
	ErrDuplicateUsername = errors.New("username already exists")
)

// DB is the subset of pgxpool.Pool the repositories use. pgxmock satisfies it
// in tests.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// UserRepository owns the persistent user records, including the per-account
// lockout fields.
type UserRepository interface {
	Create(ctx context.Context, user *models.User) error
	GetByUsername(ctx context.Context, username string) (*models.User, error)
	GetByID(ctx context.Context, id uuid.UUID) (*models.User, error)

	// RecordFailedAttempt bumps the failure counter and sets the lock
	// timestamp when the threshold is reached, as one atomic statement. A
	// failure while already locked does not extend the lock. Returns the new
	// counter and the lock expiry, if any.
	RecordFailedAttempt(ctx context.Context, id uuid.UUID, maxFailures int, lockedUntil time.Time) (int, *time.Time, error)

	// ClearExpiredLock lazily unlocks an account whose persisted lock has run
	// out, resetting the failure counter with it.
	ClearExpiredLock(ctx context.Context, id uuid.UUID) error

	// RecordSuccessfulLogin clears the failure counter and lock
	// unconditionally and stamps last_login/last_ip.
	RecordSuccessfulLogin(ctx context.Context, id uuid.UUID, ip string) error

	// UpdateCredentials replaces both credential hashes and the recovery code
	// hash, clearing lockout state in the same statement.
	UpdateCredentials(ctx context.Context, id uuid.UUID, abbreviationHash, pinHash, recoveryCodeHash string) error
}

// ScoreRepository owns scoring, ranking, and game history.
type ScoreRepository interface {
	UpdateStats(ctx context.Context, id uuid.UUID, score, gamesPlayed int, bestWPM, bestAccuracy *float64) error
	InsertGame(ctx context.Context, result *models.GameResult) error
	RecalculateRanks(ctx context.Context) error
	GetRank(ctx context.Context, id uuid.UUID) (int, error)
	Leaderboard(ctx context.Context, limit, offset int) ([]models.LeaderboardEntry, int, error)
	RecentGames(ctx context.Context, username string, limit int) ([]models.GameHistoryEntry, error)
	History(ctx context.Context, username string, limit, offset int) ([]models.GameHistoryEntry, int, error)
}

//go:embed migrations/*.sql
var migrationsFS embed.FS

// Migrate applies embedded schema migrations through goose.
func Migrate(ctx context.Context, url string) error {
	goose.SetBaseFS(migrationsFS)

	db, err := goose.OpenDBWithDriver("pgx", url)
	if err != nil {
		return fmt.Errorf("failed to open migration connection: %w", err)
	}
	defer db.Close()

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("failed to set migration dialect: %w", err)
	}
	if err := goose.UpContext(ctx, db, "migrations"); err != nil {
		return fmt.Errorf("failed to apply migrations: %w", err)
	}
	return nil
}
