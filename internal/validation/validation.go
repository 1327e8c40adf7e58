// Package validation holds input checks shared by the resolver and the HTTP layer.
package validation

import (
	"errors"
	"strings"
	"unicode/utf8"

	"github.com/google/uuid"
)

// ErrQueryEmpty is returned when a query is empty or whitespace-only.
var ErrQueryEmpty = errors.New("query is empty")

// ErrQueryTooLong is returned when a query exceeds the configured maximum length.
var ErrQueryTooLong = errors.New("query too long")

// ErrSessionIDInvalid is returned when a session id is not a UUID.
var ErrSessionIDInvalid = errors.New("session id is not a valid UUID")

// ValidateQuery checks that query has visible content and at most maxLen runes
// (maxLen <= 0 disables the bound). The query itself is never rewritten: it goes
// upstream exactly as typed, so any character is allowed.
func ValidateQuery(query string, maxLen int) error {
	if strings.TrimSpace(query) == "" {
		return ErrQueryEmpty
	}
	if maxLen > 0 && utf8.RuneCountInString(query) > maxLen {
		return ErrQueryTooLong
	}
	return nil
}

// ValidateSessionID checks that id is a canonical UUID string.
func ValidateSessionID(id string) error {
	parsed, err := uuid.Parse(id)
	if err != nil || parsed.String() != strings.ToLower(id) {
		return ErrSessionIDInvalid
	}
	return nil
}
