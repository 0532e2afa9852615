package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"

	"loremtype-backend/internal/models"
	"loremtype-backend/internal/util"
)

const userColumns = `id, username, abbreviation_hash, pin_hash, recovery_code_hash,
	failed_attempts, locked_until, score, rank, games_played, best_wpm, best_accuracy,
	created_at, last_login, last_ip`

type userRepository struct {
	db     DB
	logger *zap.Logger
}

func NewUserRepository(db DB, logger *zap.Logger) UserRepository {
	return &userRepository{db: db, logger: logger}
}

func (r *userRepository) Create(ctx context.Context, user *models.User) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO users (id, username, abbreviation_hash, pin_hash, recovery_code_hash, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		user.ID,
		strings.ToLower(user.Username),
		user.AbbreviationHash,
		user.PINHash,
		user.RecoveryCodeHash,
		user.CreatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UniqueViolation {
			return ErrDuplicateUsername
		}
		return fmt.Errorf("failed to create user: %w", err)
	}

	r.logger.Info("User created",
		util.String("user_id", user.ID.String()),
		util.String("username", strings.ToLower(user.Username)),
	)
	return nil
}

func (r *userRepository) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE username = $1`,
		strings.ToLower(username),
	)
	return scanUser(row)
}

func (r *userRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	row := r.db.QueryRow(ctx,
		`SELECT `+userColumns+` FROM users WHERE id = $1`,
		id,
	)
	return scanUser(row)
}

func (r *userRepository) RecordFailedAttempt(ctx context.Context, id uuid.UUID, maxFailures int, lockedUntil time.Time) (int, *time.Time, error) {
	row := r.db.QueryRow(ctx, `
		UPDATE users SET
			failed_attempts = failed_attempts + 1,
			locked_until = CASE
				WHEN locked_until IS NULL AND failed_attempts + 1 >= $2 THEN $3
				ELSE locked_until
			END
		WHERE id = $1
		RETURNING failed_attempts, locked_until`,
		id, maxFailures, lockedUntil,
	)

	var attempts int
	var lock *time.Time
	if err := row.Scan(&attempts, &lock); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return 0, nil, ErrNotFound
		}
		return 0, nil, fmt.Errorf("failed to record login failure: %w", err)
	}
	return attempts, lock, nil
}

func (r *userRepository) ClearExpiredLock(ctx context.Context, id uuid.UUID) error {
	_, err := r.db.Exec(ctx, `
		UPDATE users SET failed_attempts = 0, locked_until = NULL
		WHERE id = $1 AND locked_until IS NOT NULL AND locked_until <= now()`,
		id,
	)
	if err != nil {
		return fmt.Errorf("failed to clear expired lock: %w", err)
	}
	return nil
}

func (r *userRepository) RecordSuccessfulLogin(ctx context.Context, id uuid.UUID, ip string) error {
	_, err := r.db.Exec(ctx, `
		UPDATE users SET failed_attempts = 0, locked_until = NULL, last_login = now(), last_ip = $2
		WHERE id = $1`,
		id, ip,
	)
	if err != nil {
		return fmt.Errorf("failed to record successful login: %w", err)
	}
	return nil
}

func (r *userRepository) UpdateCredentials(ctx context.Context, id uuid.UUID, abbreviationHash, pinHash, recoveryCodeHash string) error {
	tag, err := r.db.Exec(ctx, `
		UPDATE users SET
			abbreviation_hash = $2,
			pin_hash = $3,
			recovery_code_hash = $4,
			failed_attempts = 0,
			locked_until = NULL
		WHERE id = $1`,
		id, abbreviationHash, pinHash, recoveryCodeHash,
	)
	if err != nil {
		return fmt.Errorf("failed to update credentials: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}

	r.logger.Info("Credentials updated", util.String("user_id", id.String()))
	return nil
}

func scanUser(row pgx.Row) (*models.User, error) {
	var u models.User
	err := row.Scan(
		&u.ID,
		&u.Username,
		&u.AbbreviationHash,
		&u.PINHash,
		&u.RecoveryCodeHash,
		&u.FailedAttempts,
		&u.LockedUntil,
		&u.Score,
		&u.Rank,
		&u.GamesPlayed,
		&u.BestWPM,
		&u.BestAccuracy,
		&u.CreatedAt,
		&u.LastLogin,
		&u.LastIP,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to scan user: %w", err)
	}
	return &u, nil
}
