package token

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"loremtype-backend/internal/config"
)

// ErrInvalidToken is returned for every verification failure. Callers are not
// told whether the signature, expiry, or payload was at fault.
var ErrInvalidToken = errors.New("invalid or expired token")

// PurposeReset marks tokens that only the credential-reset flow may consume.
const PurposeReset = "reset"

// Claims is the signed claim set carried by session and reset tokens. Tokens
// are never persisted; validity is determined entirely by signature, expiry,
// and purpose at verification time.
type Claims struct {
	Username string `json:"username"`
	Purpose  string `json:"purpose,omitempty"`
	jwt.RegisteredClaims
}

// UserID parses the subject claim.
func (c *Claims) UserID() (uuid.UUID, error) {
	id, err := uuid.Parse(c.Subject)
	if err != nil {
		return uuid.Nil, ErrInvalidToken
	}
	return id, nil
}

// Issuer signs and verifies compact HS256 tokens.
type Issuer struct {
	secret     []byte
	sessionTTL time.Duration
	resetTTL   time.Duration
}

func NewIssuer(cfg config.TokenConfig) *Issuer {
	return &Issuer{
		secret:     []byte(cfg.Secret),
		sessionTTL: cfg.SessionTTL,
		resetTTL:   cfg.ResetTTL,
	}
}

// IssueSession signs a session token for an authenticated user.
func (i *Issuer) IssueSession(userID uuid.UUID, username string) (string, error) {
	return i.sign(userID, username, "", i.sessionTTL)
}

// IssueReset signs a short-lived token that only the reset flow accepts.
func (i *Issuer) IssueReset(userID uuid.UUID, username string) (string, error) {
	return i.sign(userID, username, PurposeReset, i.resetTTL)
}

func (i *Issuer) sign(userID uuid.UUID, username, purpose string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := Claims{
		Username: username,
		Purpose:  purpose,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
}

// Verify parses and validates a token, returning its claims.
func (i *Issuer) Verify(tokenString string) (*Claims, error) {
	claims := &Claims{}
	parsed, err := jwt.ParseWithClaims(tokenString, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, ErrInvalidToken
		}
		return i.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

// VerifyReset validates a token and additionally requires the reset purpose.
// A valid session token is not accepted here.
func (i *Issuer) VerifyReset(tokenString string) (*Claims, error) {
	claims, err := i.Verify(tokenString)
	if err != nil {
		return nil, err
	}
	if claims.Purpose != PurposeReset {
		return nil, ErrInvalidToken
	}
	return claims, nil
}
