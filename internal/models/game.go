package models

import (
	"time"

	"github.com/google/uuid"
)

// GameResult is one finished typing game as submitted by the client.
type GameResult struct {
	UserID      uuid.UUID
	Username    string
	Score       int
	WPM         *float64
	Accuracy    *float64
	GameMode    *string
	WordType    *string
	TimeSeconds *float64
	PlayedAt    time.Time
}

// GameHistoryEntry is a stored game as returned by history queries.
type GameHistoryEntry struct {
	Score       int        `json:"score"`
	WPM         *float64   `json:"wpm,omitempty"`
	Accuracy    *float64   `json:"accuracy,omitempty"`
	GameMode    *string    `json:"gameMode,omitempty"`
	WordType    *string    `json:"wordType,omitempty"`
	TimeSeconds *float64   `json:"timeSeconds,omitempty"`
	PlayedAt    time.Time  `json:"playedAt"`
}

// LeaderboardEntry is one row of the public leaderboard.
type LeaderboardEntry struct {
	Rank         int       `json:"rank"`
	Username     string    `json:"username"`
	Score        int       `json:"score"`
	GamesPlayed  int       `json:"gamesPlayed"`
	BestWPM      *float64  `json:"bestWPM,omitempty"`
	BestAccuracy *float64  `json:"bestAccuracy,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
}
