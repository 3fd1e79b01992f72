package middleware

import (
	"errors"
	"strconv"
	"unicode/utf8"
)

// ValidateMessageBody validates message body content.
func ValidateMessageBody(body string) error {
	if len(body) > 100000 { // ~100KB limit
		return errors.New("body exceeds maximum length")
	}
	if !utf8.ValidString(body) {
		return errors.New("body must be valid UTF-8")
	}
	return nil
}

// ParseID parses a positive int64 path parameter.
func ParseID(raw string) (int64, error) {
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, errors.New("invalid id")
	}
	return id, nil
}

// ValidatePhone validates a contact phone number.
func ValidatePhone(phone string) error {
	if len(phone) == 0 {
		return errors.New("phone cannot be empty")
	}
	if len(phone) > 32 {
		return errors.New("phone exceeds maximum length")
	}
	return nil
}
