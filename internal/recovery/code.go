package recovery

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
)

// Recovery codes look like LOREM-XXXX-XXXX-XXXX. The alphabet excludes
// characters that are easy to misread (I, O, 0, 1). A code is surfaced to the
// caller exactly once at issue time; only its argon2 digest is stored.

const (
	codePrefix    = "LOREM"
	codeAlphabet  = "ABCDEFGHJKLMNPQRSTUVWXYZ23456789"
	segmentLength = 4
	segmentCount  = 3
)

// GenerateCode produces a new recovery code from crypto/rand.
func GenerateCode() (string, error) {
	segments := make([]string, 0, segmentCount+1)
	segments = append(segments, codePrefix)

	max := big.NewInt(int64(len(codeAlphabet)))
	for s := 0; s < segmentCount; s++ {
		var sb strings.Builder
		for i := 0; i < segmentLength; i++ {
			n, err := rand.Int(rand.Reader, max)
			if err != nil {
				return "", fmt.Errorf("failed to generate recovery code: %w", err)
			}
			sb.WriteByte(codeAlphabet[n.Int64()])
		}
		segments = append(segments, sb.String())
	}

	return strings.Join(segments, "-"), nil
}

// Normalize prepares user input for verification against the stored digest.
// Codes are case-insensitive on entry.
func Normalize(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
