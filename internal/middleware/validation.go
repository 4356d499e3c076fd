package middleware

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
	"unicode/utf8"
)

// DateLayout is the calendar-day format of the from and to list params.
const DateLayout = "2006-01-02"

// ValidateMessageContent validates message content.
func ValidateMessageContent(content string) error {
	if strings.TrimSpace(content) == "" {
		return errors.New("content cannot be empty")
	}
	if len(content) > 100000 { // ~100KB limit
		return errors.New("content exceeds maximum length")
	}
	if !utf8.ValidString(content) {
		return errors.New("content must be valid UTF-8")
	}
	return nil
}

// ValidateConversationID validates a conversation ID. IDs end up in push
// subjects, so whitespace is rejected.
func ValidateConversationID(id string) error {
	if id == "" {
		return errors.New("conversation ID cannot be empty")
	}
	if len(id) > 64 {
		return errors.New("conversation ID exceeds maximum length")
	}
	if strings.ContainsAny(id, " \t\r\n") {
		return errors.New("invalid conversation ID format")
	}
	return nil
}

// ParseID parses a positive numeric record ID.
func ParseID(s string) (int64, error) {
	id, err := strconv.ParseInt(s, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid ID %q", s)
	}
	return id, nil
}

// ParseDate parses a from/to calendar day in loc. Empty input yields nil.
func ParseDate(s string, loc *time.Location) (*time.Time, error) {
	if s == "" {
		return nil, nil
	}
	t, err := time.ParseInLocation(DateLayout, s, loc)
	if err != nil {
		return nil, fmt.Errorf("invalid date %q, want YYYY-MM-DD", s)
	}
	return &t, nil
}

// ParsePositive parses a page or page size. Empty input yields 0.
func ParsePositive(name, s string) (int, error) {
	if s == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil || n < 1 {
		return 0, fmt.Errorf("%s must be a positive integer", name)
	}
	if n > 1000 {
		return 0, fmt.Errorf("%s exceeds maximum of 1000", name)
	}
	return n, nil
}

// ValidateSubject validates a conversation subject.
func ValidateSubject(subject string) error {
	if len(subject) > 256 {
		return errors.New("subject exceeds maximum length")
	}
	if !utf8.ValidString(subject) {
		return errors.New("subject must be valid UTF-8")
	}
	return nil
}
