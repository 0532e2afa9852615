package hashing

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"runtime"
	"strings"

	"golang.org/x/crypto/argon2"
	"golang.org/x/sync/semaphore"

	"loremtype-backend/internal/config"
)

var (
	ErrInvalidHash         = errors.New("invalid hash format")
	ErrIncompatibleVersion = errors.New("incompatible argon2 version")
)

const (
	algorithmID = "argon2id"
	saltLength  = 16
	keyLength   = 32
)

type params struct {
	memory      uint32
	iterations  uint32
	parallelism uint8
}

// Hasher wraps argon2id with a fixed work factor. Verification cost does not
// depend on whether the digest belongs to a real record, and comparison is
// constant-time. Hashing is CPU-bound, so all key derivations pass through a
// weighted semaphore to keep the rest of the service responsive.
type Hasher struct {
	params params
	sem    *semaphore.Weighted
	dummy  string
}

func NewHasher(cfg config.HashingConfig) (*Hasher, error) {
	h := &Hasher{
		params: params{
			memory:      uint32(cfg.Argon2MemoryKB),
			iterations:  uint32(cfg.Argon2TimeCost),
			parallelism: uint8(cfg.Argon2Parallelism),
		},
		sem: semaphore.NewWeighted(int64(runtime.GOMAXPROCS(0))),
	}

	// Digest of a random throwaway secret, used by callers to equalize the
	// absent-user login path.
	throwaway := make([]byte, 32)
	if _, err := rand.Read(throwaway); err != nil {
		return nil, fmt.Errorf("failed to generate dummy secret: %w", err)
	}
	dummy, err := h.Hash(context.Background(), base64.RawURLEncoding.EncodeToString(throwaway))
	if err != nil {
		return nil, fmt.Errorf("failed to precompute dummy digest: %w", err)
	}
	h.dummy = dummy

	return h, nil
}

// Hash derives an argon2id digest and returns it PHC-encoded:
// $argon2id$v=19$m=...,t=...,p=...$<salt>$<hash>
func (h *Hasher) Hash(ctx context.Context, secret string) (string, error) {
	salt := make([]byte, saltLength)
	if _, err := rand.Read(salt); err != nil {
		return "", fmt.Errorf("failed to generate salt: %w", err)
	}

	key, err := h.deriveKey(ctx, secret, salt, keyLength)
	if err != nil {
		return "", err
	}

	return fmt.Sprintf("$%s$v=%d$m=%d,t=%d,p=%d$%s$%s",
		algorithmID,
		argon2.Version,
		h.params.memory,
		h.params.iterations,
		h.params.parallelism,
		base64.RawStdEncoding.EncodeToString(salt),
		base64.RawStdEncoding.EncodeToString(key),
	), nil
}

// Verify recomputes the digest for the candidate secret and compares in
// constant time. A mismatch anywhere in the secret costs the same as a match.
func (h *Hasher) Verify(ctx context.Context, secret, encoded string) (bool, error) {
	memory, iterations, parallelism, salt, expected, err := decodeDigest(encoded)
	if err != nil {
		return false, err
	}

	key, err := h.deriveKeyWith(ctx, secret, salt, uint32(len(expected)), memory, iterations, parallelism)
	if err != nil {
		return false, err
	}

	return subtle.ConstantTimeCompare(key, expected) == 1, nil
}

// DummyDigest returns a digest with no matching secret. Login flows verify
// against it when no user record exists so response latency is identical to
// the wrong-credentials path.
func (h *Hasher) DummyDigest() string {
	return h.dummy
}

func (h *Hasher) deriveKey(ctx context.Context, secret string, salt []byte, length uint32) ([]byte, error) {
	return h.deriveKeyWith(ctx, secret, salt, length, h.params.memory, h.params.iterations, h.params.parallelism)
}

func (h *Hasher) deriveKeyWith(ctx context.Context, secret string, salt []byte, length, memory, iterations uint32, parallelism uint8) ([]byte, error) {
	if err := h.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("hashing queue: %w", err)
	}
	defer h.sem.Release(1)

	return argon2.IDKey([]byte(secret), salt, iterations, memory, parallelism, length), nil
}

func decodeDigest(encoded string) (memory, iterations uint32, parallelism uint8, salt, hash []byte, err error) {
	parts := strings.Split(encoded, "$")
	if len(parts) != 6 || parts[0] != "" || parts[1] != algorithmID {
		return 0, 0, 0, nil, nil, ErrInvalidHash
	}

	var version int
	if _, err := fmt.Sscanf(parts[2], "v=%d", &version); err != nil {
		return 0, 0, 0, nil, nil, ErrInvalidHash
	}
	if version != argon2.Version {
		return 0, 0, 0, nil, nil, ErrIncompatibleVersion
	}

	var m, t uint32
	var p uint8
	if _, err := fmt.Sscanf(parts[3], "m=%d,t=%d,p=%d", &m, &t, &p); err != nil {
		return 0, 0, 0, nil, nil, ErrInvalidHash
	}

	salt, err = base64.RawStdEncoding.DecodeString(parts[4])
	if err != nil {
		return 0, 0, 0, nil, nil, ErrInvalidHash
	}
	hash, err = base64.RawStdEncoding.DecodeString(parts[5])
	if err != nil {
		return 0, 0, 0, nil, nil, ErrInvalidHash
	}

	return m, t, p, salt, hash, nil
}
