package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"loremtype-backend/internal/config"
	"loremtype-backend/internal/events"
	"loremtype-backend/internal/hashing"
	"loremtype-backend/internal/mailer"
	"loremtype-backend/internal/models"
	"loremtype-backend/internal/ratelimit"
	"loremtype-backend/internal/recovery"
	"loremtype-backend/internal/repository/postgres"
	"loremtype-backend/internal/token"
	"loremtype-backend/internal/util"
	"loremtype-backend/internal/validation"
)

type RegisterRequest struct {
	Username             string `json:"username"`
	Abbreviation         string `json:"abbreviation"`
	PIN                  string `json:"pin"`
	GenerateRecoveryCode bool   `json:"generateRecoveryCode"`
	Email                string `json:"email,omitempty"`
}

type LoginRequest struct {
	Username     string `json:"username"`
	Abbreviation string `json:"abbreviation"`
	PIN          string `json:"pin"`
}

type RecoverRequest struct {
	Username     string `json:"username"`
	RecoveryCode string `json:"recoveryCode"`
}

type ResetRequest struct {
	NewAbbreviation         string `json:"newAbbreviation"`
	NewPIN                  string `json:"newPin"`
	GenerateNewRecoveryCode bool   `json:"generateNewRecoveryCode"`
	Email                   string `json:"email,omitempty"`
}

type SendRecoveryEmailRequest struct {
	Username     string `json:"username"`
	RecoveryCode string `json:"recoveryCode"`
	Email        string `json:"email"`
}

// UserSummary is the public slice of a user record returned after
// authentication.
type UserSummary struct {
	Username    string `json:"username"`
	Score       int    `json:"score"`
	Rank        int    `json:"rank"`
	GamesPlayed int    `json:"gamesPlayed"`
}

type RegisterResponse struct {
	Token        string      `json:"token"`
	User         UserSummary `json:"user"`
	RecoveryCode string      `json:"recoveryCode,omitempty"`
	EmailSent    bool        `json:"emailSent"`
}

type LoginResponse struct {
	Token string      `json:"token"`
	User  UserSummary `json:"user"`
}

type RecoverResponse struct {
	ResetToken string `json:"resetToken"`
}

type ResetResponse struct {
	RecoveryCode string `json:"recoveryCode,omitempty"`
	EmailSent    bool   `json:"emailSent"`
}

type SendRecoveryEmailResponse struct {
	EmailSent bool `json:"emailSent"`
}

// AuthService implements the register, login, recover, and reset flows. It is
// the only place where the limiter, the persistent lockout, the hasher, and
// the token issuer are composed.
type AuthService struct {
	users   postgres.UserRepository
	limiter *ratelimit.Limiter
	hasher  *hashing.Hasher
	issuer  *token.Issuer
	mailer  mailer.Mailer
	events  *events.Publisher
	lockout config.LockoutConfig
	logger  *zap.Logger

	// now is swappable for tests.
	now func() time.Time
}

func NewAuthService(
	users postgres.UserRepository,
	limiter *ratelimit.Limiter,
	hasher *hashing.Hasher,
	issuer *token.Issuer,
	m mailer.Mailer,
	publisher *events.Publisher,
	lockout config.LockoutConfig,
	logger *zap.Logger,
) *AuthService {
	return &AuthService{
		users:   users,
		limiter: limiter,
		hasher:  hasher,
		issuer:  issuer,
		mailer:  m,
		events:  publisher,
		lockout: lockout,
		logger:  logger,
		now:     time.Now,
	}
}

func (s *AuthService) Register(ctx context.Context, req RegisterRequest) (*RegisterResponse, error) {
	username := util.SanitizeInput(req.Username)

	if res := validation.ValidateUsername(username); !res.Valid {
		return nil, &ValidationError{Field: "username", Reason: res.Err}
	}
	if res := validation.ValidateAbbreviation(req.Abbreviation, username); !res.Valid {
		return nil, &ValidationError{Field: "abbreviation", Reason: res.Err}
	}
	if res := validation.ValidatePIN(req.PIN); !res.Valid {
		return nil, &ValidationError{Field: "pin", Reason: res.Err}
	}
	if req.Email != "" && !validation.ValidateEmail(req.Email) {
		return nil, &ValidationError{Field: "email", Reason: "invalid email address"}
	}

	var recoveryCode string
	if req.GenerateRecoveryCode {
		code, err := recovery.GenerateCode()
		if err != nil {
			return nil, fmt.Errorf("failed to generate recovery code: %w", err)
		}
		recoveryCode = code
	}

	var abbreviationHash, pinHash, recoveryHash string
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		abbreviationHash, err = s.hasher.Hash(gctx, req.Abbreviation)
		return err
	})
	g.Go(func() error {
		var err error
		pinHash, err = s.hasher.Hash(gctx, req.PIN)
		return err
	})
	if recoveryCode != "" {
		g.Go(func() error {
			var err error
			recoveryHash, err = s.hasher.Hash(gctx, recovery.Normalize(recoveryCode))
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("failed to hash credentials: %w", err)
	}

	user := &models.User{
		ID:               uuid.New(),
		Username:         username,
		AbbreviationHash: abbreviationHash,
		PINHash:          pinHash,
		RecoveryCodeHash: recoveryHash,
		CreatedAt:        s.now(),
	}
	if err := s.users.Create(ctx, user); err != nil {
		if errors.Is(err, postgres.ErrDuplicateUsername) {
			return nil, ErrUserExists
		}
		return nil, err
	}

	sessionToken, err := s.issuer.IssueSession(user.ID, user.Username)
	if err != nil {
		return nil, fmt.Errorf("failed to issue session token: %w", err)
	}

	emailSent := false
	if req.Email != "" && recoveryCode != "" {
		if err := s.mailer.SendRecoveryCode(ctx, req.Email, username, recoveryCode); err != nil {
			s.logger.Warn("Recovery email delivery failed",
				util.String("username", username),
				util.ErrorField(err),
			)
		} else {
			emailSent = true
		}
	}

	s.events.Publish(ctx, events.Event{Type: events.TypeUserRegistered, Username: username})
	s.logger.Info("User registered", util.String("username", username))

	return &RegisterResponse{
		Token:        sessionToken,
		User:         summarize(user),
		RecoveryCode: recoveryCode,
		EmailSent:    emailSent,
	}, nil
}

func (s *AuthService) Login(ctx context.Context, req LoginRequest, origin string) (*LoginResponse, error) {
	username := util.SanitizeInput(req.Username)
	if username == "" || req.Abbreviation == "" || req.PIN == "" {
		return nil, &ValidationError{Field: "credentials", Reason: "username, abbreviation and pin are required"}
	}

	// Origin first, then username. Either layer blocks independently.
	originStatus, err := s.limiter.Check(ctx, ratelimit.KindOrigin, origin)
	if err != nil {
		return nil, err
	}
	if originStatus.Blocked {
		return nil, &RateLimitError{
			LockedUntil:      originStatus.LockedUntil,
			MinutesRemaining: originStatus.MinutesRemaining,
		}
	}
	usernameStatus, err := s.limiter.Check(ctx, ratelimit.KindUsername, username)
	if err != nil {
		return nil, err
	}

	user, err := s.users.GetByUsername(ctx, username)
	if err != nil && !errors.Is(err, postgres.ErrNotFound) {
		return nil, err
	}

	if usernameStatus.Blocked {
		// The persistent account lock takes precedence in the response when
		// both layers have tripped, so repeated attempts against a locked
		// account keep reporting the lock rather than the limiter.
		if user != nil && user.LockedUntil != nil && s.now().Before(*user.LockedUntil) {
			return nil, &LockoutError{
				LockedUntil:      *user.LockedUntil,
				MinutesRemaining: util.MinutesUntil(s.now(), *user.LockedUntil),
			}
		}
		return nil, &RateLimitError{
			LockedUntil:      usernameStatus.LockedUntil,
			MinutesRemaining: usernameStatus.MinutesRemaining,
		}
	}

	// Absent users walk the same verification path against a digest with no
	// matching secret, so response latency does not reveal existence.
	abbreviationDigest := s.hasher.DummyDigest()
	pinDigest := s.hasher.DummyDigest()
	if user != nil {
		if user.LockedUntil != nil {
			if s.now().Before(*user.LockedUntil) {
				return nil, &LockoutError{
					LockedUntil:      *user.LockedUntil,
					MinutesRemaining: util.MinutesUntil(s.now(), *user.LockedUntil),
				}
			}
			if err := s.users.ClearExpiredLock(ctx, user.ID); err != nil {
				return nil, err
			}
		}
		abbreviationDigest = user.AbbreviationHash
		pinDigest = user.PINHash
	}

	var abbreviationOK, pinOK bool
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		abbreviationOK, err = s.hasher.Verify(gctx, req.Abbreviation, abbreviationDigest)
		return err
	})
	g.Go(func() error {
		var err error
		pinOK, err = s.hasher.Verify(gctx, req.PIN, pinDigest)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("failed to verify credentials: %w", err)
	}

	if user == nil || !abbreviationOK || !pinOK {
		return nil, s.recordLoginFailure(ctx, user, username, origin)
	}

	if err := s.limiter.Reset(ctx, ratelimit.KindUsername, username); err != nil {
		return nil, err
	}
	if err := s.limiter.Reset(ctx, ratelimit.KindOrigin, origin); err != nil {
		return nil, err
	}
	if err := s.users.RecordSuccessfulLogin(ctx, user.ID, origin); err != nil {
		return nil, err
	}

	sessionToken, err := s.issuer.IssueSession(user.ID, user.Username)
	if err != nil {
		return nil, fmt.Errorf("failed to issue session token: %w", err)
	}

	s.events.Publish(ctx, events.Event{Type: events.TypeLoginSucceeded, Username: username, Origin: origin})
	s.logger.Info("Login succeeded", util.String("username", username))

	return &LoginResponse{Token: sessionToken, User: summarize(user)}, nil
}

// recordLoginFailure registers the failure in both limiter layers and, for
// existing users, the persistent counter. The attempt that reaches the
// threshold returns the lock itself.
func (s *AuthService) recordLoginFailure(ctx context.Context, user *models.User, username, origin string) error {
	if err := s.limiter.RecordFailure(ctx, ratelimit.KindUsername, username); err != nil {
		s.logger.Warn("Failed to record limiter attempt", util.ErrorField(err))
	}
	if err := s.limiter.RecordFailure(ctx, ratelimit.KindOrigin, origin); err != nil {
		s.logger.Warn("Failed to record limiter attempt", util.ErrorField(err))
	}

	s.events.Publish(ctx, events.Event{Type: events.TypeLoginFailed, Username: username, Origin: origin})

	if user == nil {
		// No persistent counter to advance. Report remaining attempts from
		// the limiter so absent and present usernames answer alike.
		status, err := s.limiter.Check(ctx, ratelimit.KindUsername, username)
		if err != nil {
			return ErrInvalidCredentials
		}
		if status.Blocked {
			return &RateLimitError{
				LockedUntil:      status.LockedUntil,
				MinutesRemaining: status.MinutesRemaining,
			}
		}
		return &AttemptsError{AttemptsRemaining: status.AttemptsRemaining}
	}

	attempts, lockedUntil, err := s.users.RecordFailedAttempt(ctx, user.ID, s.lockout.MaxFailures, s.now().Add(s.lockout.LockDuration))
	if err != nil {
		return err
	}

	if lockedUntil != nil && s.now().Before(*lockedUntil) {
		if attempts == s.lockout.MaxFailures {
			s.events.Publish(ctx, events.Event{Type: events.TypeAccountLocked, Username: username, Origin: origin})
			s.logger.Warn("Account locked", util.String("username", username))
		}
		return &LockoutError{
			LockedUntil:      *lockedUntil,
			MinutesRemaining: util.MinutesUntil(s.now(), *lockedUntil),
		}
	}

	remaining := s.lockout.MaxFailures - attempts
	if remaining < 0 {
		remaining = 0
	}
	return &AttemptsError{AttemptsRemaining: remaining}
}

func (s *AuthService) Recover(ctx context.Context, req RecoverRequest) (*RecoverResponse, error) {
	username := util.SanitizeInput(req.Username)
	if username == "" || req.RecoveryCode == "" {
		return nil, &ValidationError{Field: "credentials", Reason: "username and recoveryCode are required"}
	}

	user, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, postgres.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	if user.RecoveryCodeHash == "" {
		return nil, ErrNoRecoveryCode
	}

	ok, err := s.hasher.Verify(ctx, recovery.Normalize(req.RecoveryCode), user.RecoveryCodeHash)
	if err != nil {
		return nil, fmt.Errorf("failed to verify recovery code: %w", err)
	}
	if !ok {
		return nil, ErrInvalidCredentials
	}

	resetToken, err := s.issuer.IssueReset(user.ID, user.Username)
	if err != nil {
		return nil, fmt.Errorf("failed to issue reset token: %w", err)
	}

	s.events.Publish(ctx, events.Event{Type: events.TypeRecoveryRequested, Username: username})
	s.logger.Info("Recovery code accepted", util.String("username", username))

	return &RecoverResponse{ResetToken: resetToken}, nil
}

func (s *AuthService) Reset(ctx context.Context, resetToken string, req ResetRequest) (*ResetResponse, error) {
	claims, err := s.issuer.VerifyReset(resetToken)
	if err != nil {
		return nil, ErrInvalidToken
	}
	userID, err := claims.UserID()
	if err != nil {
		return nil, ErrInvalidToken
	}

	if res := validation.ValidateAbbreviation(req.NewAbbreviation, claims.Username); !res.Valid {
		return nil, &ValidationError{Field: "newAbbreviation", Reason: res.Err}
	}
	if res := validation.ValidatePIN(req.NewPIN); !res.Valid {
		return nil, &ValidationError{Field: "newPin", Reason: res.Err}
	}
	if req.Email != "" && !validation.ValidateEmail(req.Email) {
		return nil, &ValidationError{Field: "email", Reason: "invalid email address"}
	}

	var recoveryCode string
	if req.GenerateNewRecoveryCode {
		code, err := recovery.GenerateCode()
		if err != nil {
			return nil, fmt.Errorf("failed to generate recovery code: %w", err)
		}
		recoveryCode = code
	}

	var abbreviationHash, pinHash, recoveryHash string
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		abbreviationHash, err = s.hasher.Hash(gctx, req.NewAbbreviation)
		return err
	})
	g.Go(func() error {
		var err error
		pinHash, err = s.hasher.Hash(gctx, req.NewPIN)
		return err
	})
	if recoveryCode != "" {
		g.Go(func() error {
			var err error
			recoveryHash, err = s.hasher.Hash(gctx, recovery.Normalize(recoveryCode))
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("failed to hash credentials: %w", err)
	}

	// recoveryHash stays empty when no new code was requested, which clears
	// the stored hash. A recovery code is single-use: once it has completed a
	// reset it can never mint another reset token.
	if err := s.users.UpdateCredentials(ctx, userID, abbreviationHash, pinHash, recoveryHash); err != nil {
		if errors.Is(err, postgres.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}

	if err := s.limiter.Reset(ctx, ratelimit.KindUsername, claims.Username); err != nil {
		s.logger.Warn("Failed to reset limiter after credential reset", util.ErrorField(err))
	}

	emailSent := false
	if req.Email != "" && recoveryCode != "" {
		if err := s.mailer.SendRecoveryCode(ctx, req.Email, claims.Username, recoveryCode); err != nil {
			s.logger.Warn("Recovery email delivery failed",
				util.String("username", claims.Username),
				util.ErrorField(err),
			)
		} else {
			emailSent = true
		}
	}

	s.events.Publish(ctx, events.Event{Type: events.TypeCredentialsReset, Username: claims.Username})
	s.logger.Info("Credentials reset", util.String("username", claims.Username))

	return &ResetResponse{RecoveryCode: recoveryCode, EmailSent: emailSent}, nil
}

// SendRecoveryEmail re-delivers an existing recovery code to an address the
// caller supplies. The address passes through to the mailer and is never
// persisted.
func (s *AuthService) SendRecoveryEmail(ctx context.Context, req SendRecoveryEmailRequest) (*SendRecoveryEmailResponse, error) {
	username := util.SanitizeInput(req.Username)
	if username == "" || req.RecoveryCode == "" {
		return nil, &ValidationError{Field: "credentials", Reason: "username and recoveryCode are required"}
	}
	if !validation.ValidateEmail(req.Email) {
		return nil, &ValidationError{Field: "email", Reason: "invalid email address"}
	}

	user, err := s.users.GetByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, postgres.ErrNotFound) {
			return nil, ErrUserNotFound
		}
		return nil, err
	}
	if user.RecoveryCodeHash == "" {
		return nil, ErrNoRecoveryCode
	}

	ok, err := s.hasher.Verify(ctx, recovery.Normalize(req.RecoveryCode), user.RecoveryCodeHash)
	if err != nil {
		return nil, fmt.Errorf("failed to verify recovery code: %w", err)
	}
	if !ok {
		return nil, ErrInvalidCredentials
	}

	emailSent := false
	if err := s.mailer.SendRecoveryCode(ctx, req.Email, username, recovery.Normalize(req.RecoveryCode)); err != nil {
		s.logger.Warn("Recovery email delivery failed",
			util.String("username", username),
			util.ErrorField(err),
		)
	} else {
		emailSent = true
	}

	return &SendRecoveryEmailResponse{EmailSent: emailSent}, nil
}

func summarize(user *models.User) UserSummary {
	return UserSummary{
		Username:    user.Username,
		Score:       user.Score,
		Rank:        user.Rank,
		GamesPlayed: user.GamesPlayed,
	}
}

