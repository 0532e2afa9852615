package validation

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateUsername(t *testing.T) {
	tests := []struct {
		name     string
		username string
		valid    bool
	}{
		{"minimum length", "abc", true},
		{"maximum length", strings.Repeat("a", 30), true},
		{"underscores and digits", "typer_42", true},
		{"mixed case", "AliceB", true},
		{"empty", "", false},
		{"whitespace only", "   ", false},
		{"too short", "ab", false},
		{"too long", strings.Repeat("a", 31), false},
		{"hyphen", "alice-b", false},
		{"space inside", "alice b", false},
		{"unicode", "ålice", false},
		{"symbols", "alice!", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := ValidateUsername(tt.username)
			assert.Equal(t, tt.valid, res.Valid)
			if !tt.valid {
				assert.NotEmpty(t, res.Err)
			}
		})
	}
}

func TestValidateAbbreviation(t *testing.T) {
	tests := []struct {
		name         string
		abbreviation string
		username     string
		valid        bool
	}{
		{"valid mixed", "tk9x", "alice", true},
		{"valid five chars", "k3m7q", "alice", true},
		{"uppercase input lowered", "TK9X", "alice", true},
		{"empty", "", "alice", false},
		{"too short", "abc", "alice", false},
		{"too long", "abcdef", "alice", false},
		{"non alphanumeric", "ab-c", "alice", false},
		{"equals username prefix", "alice", "alicesmith", false},
		{"contains username prefix", "xalic", "alice", false},
		{"short username prefix", "bob1x", "bob1", false},
		{"common pattern", "qwerty", "alice", false},
		{"blacklisted", "asdf", "alice", false},
		{"all same character", "aaaa", "alice", false},
		{"ascending sequence", "cdef", "alice", false},
		{"descending sequence", "dcba", "alice", false},
		{"numeric ascending", "2345", "alice", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := ValidateAbbreviation(tt.abbreviation, tt.username)
			assert.Equal(t, tt.valid, res.Valid, "err=%s", res.Err)
		})
	}
}

func TestValidatePIN(t *testing.T) {
	tests := []struct {
		name  string
		pin   string
		valid bool
	}{
		{"valid five digits", "48213", true},
		{"valid seven digits", "4829137", true},
		{"empty", "", false},
		{"too short", "1234", false},
		{"too long", "12345678", false},
		{"non digits", "12a45", false},
		{"common pin", "12345", false},
		{"common six digit", "112233", false},
		{"all same digit", "77777", false},
		{"two digit repeating block", "121212", false},
		{"three digit repeating block", "123123", false},
		{"ascending", "45678", false},
		{"descending", "87654", false},
		{"near sequential allowed", "13579", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := ValidatePIN(tt.pin)
			assert.Equal(t, tt.valid, res.Valid, "err=%s", res.Err)
		})
	}
}

func TestStrengthScoring(t *testing.T) {
	// 5 chars + letter/digit mix + all unique + no triples = 8 points.
	res := ValidateAbbreviation("k3m7q", "alice")
	assert.True(t, res.Valid)
	assert.Equal(t, StrengthStrong, res.Strength)

	// 4 letters, no digits, all unique, no triples = 3 points.
	res = ValidateAbbreviation("mxyw", "alice")
	assert.True(t, res.Valid)
	assert.Equal(t, StrengthMedium, res.Strength)

	// 7 digits, 5+ unique, no triples, no doubled pairs = 8 points.
	pinRes := ValidatePIN("4829137")
	assert.True(t, pinRes.Valid)
	assert.Equal(t, StrengthStrong, pinRes.Strength)

	// 6 digits (2) + 4 unique (2) + no triples (1), doubled pair costs the
	// last point = 5 points.
	pinRes = ValidatePIN("112273")
	assert.True(t, pinRes.Valid)
	assert.Equal(t, StrengthMedium, pinRes.Strength)
}

func TestSequenceHelpers(t *testing.T) {
	assert.True(t, isSequential("abcd"))
	assert.True(t, isSequential("4321"))
	assert.False(t, isSequential("abce"))
	assert.False(t, isSequential("ab"))

	assert.True(t, hasRepeatingBlock("121212"))
	assert.True(t, hasRepeatingBlock("234234"))
	assert.False(t, hasRepeatingBlock("12312"))
	assert.False(t, hasRepeatingBlock("48213"))
}

func TestValidateEmail(t *testing.T) {
	assert.True(t, ValidateEmail("alice@example.com"))
	assert.True(t, ValidateEmail("  alice@example.com  "))
	assert.False(t, ValidateEmail("alice@example"))
	assert.False(t, ValidateEmail("alice example.com"))
	assert.False(t, ValidateEmail(""))
}
