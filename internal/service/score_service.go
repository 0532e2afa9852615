package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"loremtype-backend/internal/analytics"
	"loremtype-backend/internal/models"
	"loremtype-backend/internal/repository/postgres"
	"loremtype-backend/internal/util"
)

const (
	maxLeaderboardLimit     = 500
	defaultLeaderboardLimit = 100
	maxHistoryLimit         = 100
	defaultHistoryLimit     = 20
	recentGamesLimit        = 10
)

// GameData is the optional per-game detail attached to a score submission.
type GameData struct {
	WPM         *float64 `json:"wpm,omitempty"`
	Accuracy    *float64 `json:"accuracy,omitempty"`
	GameMode    *string  `json:"gameMode,omitempty"`
	WordType    *string  `json:"wordType,omitempty"`
	TimeSeconds *float64 `json:"timeSeconds,omitempty"`
}

type UpdateScoreRequest struct {
	Score    int       `json:"score"`
	GameData *GameData `json:"gameData,omitempty"`
}

type UpdateScoreResponse struct {
	Score        int      `json:"score"`
	Rank         int      `json:"rank"`
	GamesPlayed  int      `json:"gamesPlayed"`
	BestWPM      *float64 `json:"bestWPM,omitempty"`
	BestAccuracy *float64 `json:"bestAccuracy,omitempty"`
	Improved     bool     `json:"improved"`
}

type LeaderboardResponse struct {
	Entries []models.LeaderboardEntry `json:"entries"`
	Total   int                       `json:"total"`
	Limit   int                       `json:"limit"`
	Offset  int                       `json:"offset"`
	HasMore bool                      `json:"hasMore"`
}

type ProfileResponse struct {
	Username     string                    `json:"username"`
	Score        int                       `json:"score"`
	Rank         int                       `json:"rank"`
	GamesPlayed  int                       `json:"gamesPlayed"`
	BestWPM      *float64                  `json:"bestWPM,omitempty"`
	BestAccuracy *float64                  `json:"bestAccuracy,omitempty"`
	CreatedAt    time.Time                 `json:"createdAt"`
	RecentGames  []models.GameHistoryEntry `json:"recentGames"`
}

type HistoryResponse struct {
	Games   []models.GameHistoryEntry `json:"games"`
	Total   int                       `json:"total"`
	Limit   int                       `json:"limit"`
	Offset  int                       `json:"offset"`
	HasMore bool                      `json:"hasMore"`
}

// ScoreService owns score submission, ranking, leaderboard, and history
// reads.
type ScoreService struct {
	users  postgres.UserRepository
	scores postgres.ScoreRepository
	sink   *analytics.Sink
	logger *zap.Logger

	now func() time.Time
}

func NewScoreService(users postgres.UserRepository, scores postgres.ScoreRepository, sink *analytics.Sink, logger *zap.Logger) *ScoreService {
	return &ScoreService{
		users:  users,
		scores: scores,
		sink:   sink,
		logger: logger,
		now:    time.Now,
	}
}

// UpdateScore records one finished game. The stored total score is monotonic:
// a submission below the current total still counts the game and its stats
// but never lowers the score.
func (s *ScoreService) UpdateScore(ctx context.Context, userID uuid.UUID, req UpdateScoreRequest) (*UpdateScoreResponse, error) {
	if req.Score < 0 {
		return nil, &ValidationError{Field: "score", Reason: "score must not be negative"}
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, postgres.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}

	newScore := user.Score
	improved := req.Score > user.Score
	if improved {
		newScore = req.Score
	}

	bestWPM := user.BestWPM
	bestAccuracy := user.BestAccuracy
	var wpm, accuracy, timeSeconds *float64
	var gameMode, wordType *string
	if req.GameData != nil {
		wpm = req.GameData.WPM
		accuracy = req.GameData.Accuracy
		gameMode = req.GameData.GameMode
		wordType = req.GameData.WordType
		timeSeconds = req.GameData.TimeSeconds

		if wpm != nil && (bestWPM == nil || *wpm > *bestWPM) {
			bestWPM = wpm
		}
		if accuracy != nil && (bestAccuracy == nil || *accuracy > *bestAccuracy) {
			bestAccuracy = accuracy
		}
	}

	gamesPlayed := user.GamesPlayed + 1
	if err := s.scores.UpdateStats(ctx, userID, newScore, gamesPlayed, bestWPM, bestAccuracy); err != nil {
		if errors.Is(err, postgres.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}

	playedAt := s.now()
	// Bare score submissions count toward totals but leave no history row.
	if req.GameData != nil {
		if err := s.scores.InsertGame(ctx, &models.GameResult{
			UserID:      userID,
			Username:    user.Username,
			Score:       req.Score,
			WPM:         wpm,
			Accuracy:    accuracy,
			GameMode:    gameMode,
			WordType:    wordType,
			TimeSeconds: timeSeconds,
			PlayedAt:    playedAt,
		}); err != nil {
			return nil, err
		}
	}

	if err := s.scores.RecalculateRanks(ctx); err != nil {
		return nil, err
	}
	rank, err := s.scores.GetRank(ctx, userID)
	if err != nil && !errors.Is(err, postgres.ErrNotFound) {
		return nil, err
	}

	s.sink.Record(analytics.GameRow{
		Username:    user.Username,
		Score:       int64(req.Score),
		WPM:         deref(wpm),
		Accuracy:    deref(accuracy),
		GameMode:    derefString(gameMode),
		WordType:    derefString(wordType),
		TimeSeconds: deref(timeSeconds),
		PlayedAt:    playedAt,
	})

	s.logger.Info("Score updated",
		util.String("username", user.Username),
		util.Int("score", newScore),
		util.Int("rank", rank),
	)

	return &UpdateScoreResponse{
		Score:        newScore,
		Rank:         rank,
		GamesPlayed:  gamesPlayed,
		BestWPM:      bestWPM,
		BestAccuracy: bestAccuracy,
		Improved:     improved,
	}, nil
}

func (s *ScoreService) Leaderboard(ctx context.Context, limit, offset int) (*LeaderboardResponse, error) {
	if limit <= 0 {
		limit = defaultLeaderboardLimit
	}
	if limit > maxLeaderboardLimit {
		limit = maxLeaderboardLimit
	}
	if offset < 0 {
		offset = 0
	}

	entries, total, err := s.scores.Leaderboard(ctx, limit, offset)
	if err != nil {
		return nil, err
	}
	if entries == nil {
		entries = []models.LeaderboardEntry{}
	}

	return &LeaderboardResponse{
		Entries: entries,
		Total:   total,
		Limit:   limit,
		Offset:  offset,
		HasMore: offset+len(entries) < total,
	}, nil
}

func (s *ScoreService) Profile(ctx context.Context, username string) (*ProfileResponse, error) {
	user, err := s.users.GetByUsername(ctx, util.SanitizeInput(username))
	if err != nil {
		if errors.Is(err, postgres.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}

	recent, err := s.scores.RecentGames(ctx, user.Username, recentGamesLimit)
	if err != nil {
		return nil, err
	}
	if recent == nil {
		recent = []models.GameHistoryEntry{}
	}

	return &ProfileResponse{
		Username:     user.Username,
		Score:        user.Score,
		Rank:         user.Rank,
		GamesPlayed:  user.GamesPlayed,
		BestWPM:      user.BestWPM,
		BestAccuracy: user.BestAccuracy,
		CreatedAt:    user.CreatedAt,
		RecentGames:  recent,
	}, nil
}

func (s *ScoreService) History(ctx context.Context, username string, limit, offset int) (*HistoryResponse, error) {
	if limit <= 0 {
		limit = defaultHistoryLimit
	}
	if limit > maxHistoryLimit {
		limit = maxHistoryLimit
	}
	if offset < 0 {
		offset = 0
	}

	name := util.SanitizeInput(username)
	if _, err := s.users.GetByUsername(ctx, name); err != nil {
		if errors.Is(err, postgres.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}

	games, total, err := s.scores.History(ctx, name, limit, offset)
	if err != nil {
		return nil, err
	}
	if games == nil {
		games = []models.GameHistoryEntry{}
	}

	return &HistoryResponse{
		Games:   games,
		Total:   total,
		Limit:   limit,
		Offset:  offset,
		HasMore: offset+len(games) < total,
	}, nil
}

func deref(v *float64) float64 {
	if v == nil {
		return 0
	}
	return *v
}

func derefString(v *string) string {
	if v == nil {
		return ""
	}
	return *v
}
