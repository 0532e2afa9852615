package validation

import (
	"regexp"
	"strings"
)

// Package validation classifies raw credential input. Everything here is pure
// and deterministic; callers decide what to do with the verdicts.

// Result is the outcome of a single field validation. Strength is only
// populated for fields that carry a strength score (abbreviation, PIN).
type Result struct {
	Valid    bool
	Err      string
	Strength string
}

const (
	StrengthWeak   = "weak"
	StrengthMedium = "medium"
	StrengthStrong = "strong"
)

// Predictable PINs rejected outright.
var commonPINs = map[string]struct{}{
	"00000": {}, "11111": {}, "22222": {}, "33333": {}, "44444": {},
	"55555": {}, "66666": {}, "77777": {}, "88888": {}, "99999": {},
	"12345": {}, "23456": {}, "34567": {}, "45678": {}, "56789": {},
	"54321": {}, "65432": {}, "76543": {}, "87654": {}, "98765": {},
	"123456": {}, "234567": {}, "345678": {}, "456789": {},
	"654321": {}, "765432": {}, "876543": {}, "987654": {},
	"1234567": {}, "2345678": {}, "3456789": {},
	"7654321": {}, "8765432": {}, "9876543": {},
	"111111": {}, "222222": {}, "333333": {}, "444444": {}, "555555": {},
	"666666": {}, "777777": {}, "888888": {}, "999999": {}, "000000": {},
	"112233": {}, "121212": {}, "123123": {}, "234234": {},
}

// Predictable abbreviations rejected outright.
var commonAbbreviations = map[string]struct{}{
	"aaaaa": {}, "bbbbb": {}, "ccccc": {}, "ddddd": {}, "eeeee": {},
	"abcde": {}, "abcd": {}, "bcde": {}, "cdef": {}, "defg": {},
	"12345": {}, "23456": {}, "34567": {}, "45678": {}, "56789": {},
	"qwerty": {}, "asdf": {}, "zxcv": {}, "admin": {}, "test": {},
	"user": {}, "guest": {}, "login": {}, "password": {},
}

var (
	usernameRegex     = regexp.MustCompile(`^[a-zA-Z0-9_]+$`)
	abbreviationRegex = regexp.MustCompile(`^[a-z0-9]+$`)
	pinRegex          = regexp.MustCompile(`^[0-9]+$`)
	emailRegex        = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
)

// hasTripleRepeat reports whether any character appears three times in a row.
func hasTripleRepeat(s string) bool {
	for i := 0; i+2 < len(s); i++ {
		if s[i] == s[i+1] && s[i] == s[i+2] {
			return true
		}
	}
	return false
}

// hasDoubledPairs reports whether the string contains two doubled characters
// back to back, e.g. 1122 or 3344.
func hasDoubledPairs(s string) bool {
	for i := 0; i+3 < len(s); i++ {
		if s[i] == s[i+1] && s[i+2] == s[i+3] {
			return true
		}
	}
	return false
}

// ValidateUsername checks length (3-30) and character set (letters, digits,
// underscores). Usernames are treated case-insensitively by callers.
func ValidateUsername(username string) Result {
	trimmed := strings.TrimSpace(username)

	if trimmed == "" {
		return Result{Err: "Username is required"}
	}
	if len(trimmed) < 3 {
		return Result{Err: "Username must be at least 3 characters long"}
	}
	if len(trimmed) > 30 {
		return Result{Err: "Username must be 30 characters or less"}
	}
	if !usernameRegex.MatchString(trimmed) {
		return Result{Err: "Username can only contain letters, numbers, and underscores"}
	}
	return Result{Valid: true}
}

// ValidateAbbreviation checks a 4-5 character lowercase alphanumeric
// abbreviation against the username it will be paired with.
func ValidateAbbreviation(abbreviation, username string) Result {
	trimmed := strings.ToLower(strings.TrimSpace(abbreviation))

	if trimmed == "" {
		return Result{Err: "Abbreviation is required", Strength: StrengthWeak}
	}
	if len(trimmed) < 4 {
		return Result{Err: "Abbreviation must be at least 4 characters", Strength: StrengthWeak}
	}
	if len(trimmed) > 5 {
		return Result{Err: "Abbreviation must be 5 characters or less", Strength: StrengthWeak}
	}
	if !abbreviationRegex.MatchString(trimmed) {
		return Result{Err: "Abbreviation can only contain letters and numbers", Strength: StrengthWeak}
	}

	if username != "" {
		prefix := strings.ToLower(username)
		if len(prefix) > 5 {
			prefix = prefix[:5]
		}
		short := prefix
		if len(short) > 4 {
			short = short[:4]
		}
		if trimmed == prefix || (short != "" && strings.Contains(trimmed, short)) {
			return Result{Err: "Abbreviation is too similar to your username", Strength: StrengthWeak}
		}
	}

	if _, ok := commonAbbreviations[trimmed]; ok {
		return Result{Err: "This abbreviation is too common. Please choose a more unique one.", Strength: StrengthWeak}
	}
	if allSameCharacter(trimmed) {
		return Result{Err: "Abbreviation cannot be all the same character", Strength: StrengthWeak}
	}
	if isSequential(trimmed) {
		return Result{Err: "Abbreviation cannot be sequential characters", Strength: StrengthWeak}
	}

	return Result{Valid: true, Strength: abbreviationStrength(trimmed)}
}

// ValidatePIN checks a 5-7 digit PIN for predictable patterns.
func ValidatePIN(pin string) Result {
	trimmed := strings.TrimSpace(pin)

	if trimmed == "" {
		return Result{Err: "PIN is required", Strength: StrengthWeak}
	}
	if len(trimmed) < 5 {
		return Result{Err: "PIN must be at least 5 digits", Strength: StrengthWeak}
	}
	if len(trimmed) > 7 {
		return Result{Err: "PIN must be 7 digits or less", Strength: StrengthWeak}
	}
	if !pinRegex.MatchString(trimmed) {
		return Result{Err: "PIN can only contain numbers", Strength: StrengthWeak}
	}
	if _, ok := commonPINs[trimmed]; ok {
		return Result{Err: "This PIN is too common. Please choose a more secure one.", Strength: StrengthWeak}
	}
	if allSameCharacter(trimmed) {
		return Result{Err: "PIN cannot be all the same digit", Strength: StrengthWeak}
	}
	if hasRepeatingBlock(trimmed) {
		return Result{Err: "PIN has a predictable pattern", Strength: StrengthWeak}
	}
	if isSequential(trimmed) {
		return Result{Err: "PIN cannot be sequential numbers", Strength: StrengthWeak}
	}

	return Result{Valid: true, Strength: pinStrength(trimmed)}
}

// ValidateEmail reports whether the address looks deliverable. The service
// never stores addresses, so this is the only email check performed.
func ValidateEmail(email string) bool {
	return emailRegex.MatchString(strings.TrimSpace(email))
}

func allSameCharacter(s string) bool {
	if len(s) < 2 {
		return false
	}
	for i := 1; i < len(s); i++ {
		if s[i] != s[0] {
			return false
		}
	}
	return true
}

// isSequential reports whether every adjacent pair of characters differs by
// exactly +1 (ascending) or -1 (descending) in character code.
func isSequential(s string) bool {
	if len(s) < 3 {
		return false
	}
	ascending, descending := true, true
	for i := 1; i < len(s); i++ {
		diff := int(s[i]) - int(s[i-1])
		if diff != 1 {
			ascending = false
		}
		if diff != -1 {
			descending = false
		}
		if !ascending && !descending {
			return false
		}
	}
	return ascending || descending
}

// hasRepeatingBlock detects a 2- or 3-character block repeated over the whole
// string, e.g. 121212 or 123123.
func hasRepeatingBlock(s string) bool {
	if len(s) < 6 {
		return false
	}
	if len(s)%2 == 0 && strings.Repeat(s[:2], len(s)/2) == s {
		return true
	}
	if len(s)%3 == 0 && strings.Repeat(s[:3], len(s)/3) == s {
		return true
	}
	return false
}

func abbreviationStrength(abbreviation string) string {
	score := 0

	if len(abbreviation) == 5 {
		score += 2
	}

	hasLetters := strings.ContainsFunc(abbreviation, func(r rune) bool { return r >= 'a' && r <= 'z' })
	hasNumbers := strings.ContainsFunc(abbreviation, func(r rune) bool { return r >= '0' && r <= '9' })
	if hasLetters && hasNumbers {
		score += 3
	}

	if uniqueChars(abbreviation) == len(abbreviation) {
		score += 2
	}
	if !hasTripleRepeat(abbreviation) {
		score++
	}

	return strengthLabel(score)
}

func pinStrength(pin string) string {
	score := 0

	if len(pin) >= 6 {
		score += 2
	}
	if len(pin) == 7 {
		score++
	}

	unique := uniqueChars(pin)
	if unique >= 4 {
		score += 2
	}
	if unique >= 5 {
		score++
	}

	if !hasTripleRepeat(pin) {
		score++
	}
	if !hasDoubledPairs(pin) {
		score++
	}

	return strengthLabel(score)
}

func strengthLabel(score int) string {
	switch {
	case score >= 6:
		return StrengthStrong
	case score >= 3:
		return StrengthMedium
	default:
		return StrengthWeak
	}
}

func uniqueChars(s string) int {
	seen := make(map[byte]struct{}, len(s))
	for i := 0; i < len(s); i++ {
		seen[s[i]] = struct{}{}
	}
	return len(seen)
}
