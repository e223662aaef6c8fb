// Package domain contains entities without logic, just meta-data and the
// format rules applied to caller supplied identifiers.
package domain

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

const (
	MinUserIDLen   = 3
	MaxUserIDLen   = 50
	MaxUsernameLen = 50
)

type (
	UserID       string
	ConnectionID string
)

// ParseUserID checks raw against the user id pattern. User ids are case
// sensitive and are not normalized.
func ParseUserID(raw string) (UserID, error) {
	rule := fmt.Sprintf("required,alphanum,min=%d,max=%d", MinUserIDLen, MaxUserIDLen)
	if err := validate.Var(raw, rule); err != nil {
		return "", fmt.Errorf("%w: user id must be %d-%d alphanumeric characters", ErrInvalidFormat, MinUserIDLen, MaxUserIDLen)
	}
	return UserID(raw), nil
}

// SanitizeDisplayName strips angle brackets, trims and truncates name. An
// empty result falls back to the user id.
func SanitizeDisplayName(name string, fallback UserID) string {
	name = strings.NewReplacer("<", "", ">", "").Replace(name)
	name = strings.TrimSpace(name)
	if utf8.RuneCountInString(name) > MaxUsernameLen {
		name = strings.TrimSpace(string([]rune(name)[:MaxUsernameLen]))
	}
	if name == "" {
		return string(fallback)
	}
	return name
}
