package models

import (
	"time"

	"github.com/google/uuid"
)

// User is the persistent account record. Credential fields only ever hold
// argon2 digests; plaintext never reaches storage or logs. FailedAttempts and
// LockedUntil are the persistent lockout layer and are always cleared
// together.
type User struct {
	ID               uuid.UUID  `db:"id"`
	Username         string     `db:"username"`
	AbbreviationHash string     `db:"abbreviation_hash"`
	PINHash          string     `db:"pin_hash"`
	RecoveryCodeHash string     `db:"recovery_code_hash"`
	FailedAttempts   int        `db:"failed_attempts"`
	LockedUntil      *time.Time `db:"locked_until"`
	Score            int        `db:"score"`
	Rank             int        `db:"rank"`
	GamesPlayed      int        `db:"games_played"`
	BestWPM          *float64   `db:"best_wpm"`
	BestAccuracy     *float64   `db:"best_accuracy"`
	CreatedAt        time.Time  `db:"created_at"`
	LastLogin        *time.Time `db:"last_login"`
	LastIP           *string    `db:"last_ip"`
}
