package middleware

import (
	"errors"
	"net/url"
	"strconv"
	"unicode/utf8"
)

const (
	// MaxMessageLength caps inbound chat and speech text.
	MaxMessageLength = 10000
	// MaxPageLimit caps history page size.
	MaxPageLimit = 100
)

// ValidateMessageContent checks non-empty text for length and encoding.
// Emptiness is left to the caller, which owns that error message.
func ValidateMessageContent(content string) error {
	if len(content) > MaxMessageLength {
		return errors.New("message exceeds maximum length")
	}
	if !utf8.ValidString(content) {
		return errors.New("message must be valid UTF-8")
	}
	return nil
}

// ValidateID checks a caller-supplied id filter.
func ValidateID(name, id string) error {
	if len(id) > 128 {
		return errors.New(name + " exceeds maximum length")
	}
	if !utf8.ValidString(id) {
		return errors.New(name + " must be valid UTF-8")
	}
	return nil
}

// ParsePagination reads limit and offset. Missing values take defaults,
// limit is capped at MaxPageLimit, and malformed or negative values fail.
func ParsePagination(q url.Values, defaultLimit int) (limit, offset int, err error) {
	limit = defaultLimit
	if s := q.Get("limit"); s != "" {
		limit, err = strconv.Atoi(s)
		if err != nil || limit < 1 {
			return 0, 0, errors.New("limit must be a positive integer")
		}
	}
	if limit > MaxPageLimit {
		limit = MaxPageLimit
	}
	if s := q.Get("offset"); s != "" {
		offset, err = strconv.Atoi(s)
		if err != nil || offset < 0 {
			return 0, 0, errors.New("offset must be a non-negative integer")
		}
	}
	return limit, offset, nil
}
