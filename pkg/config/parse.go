package config

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Boolean parses a permissive truthy string: true, on, yes and 1 (any case)
// are true, everything else including the empty string is false.
func Boolean(s string) bool {
	switch strings.ToLower(s) {
	case "true", "on", "yes", "1":
		return true
	}
	return false
}

// Interval parses a duration: a bare number is seconds, an s or m suffix
// (case-insensitive) selects the unit. The empty string parses to zero.
func Interval(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}

	unit := time.Second
	switch {
	case strings.HasSuffix(strings.ToLower(s), "s"):
		s = s[:len(s)-1]
	case strings.HasSuffix(strings.ToLower(s), "m"):
		unit = time.Minute
		s = s[:len(s)-1]
	}

	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid interval %q: %w", s, err)
	}
	return time.Duration(n) * unit, nil
}

// Bytesize parses a byte count: a bare number is bytes, a k, m, g or t
// suffix (case-insensitive) selects the unit. The empty string parses to
// zero.
func Bytesize(s string) (int64, error) {
	if s == "" {
		return 0, nil
	}

	var unit int64 = 1
	switch strings.ToLower(s[len(s)-1:]) {
	case "k":
		unit = 1 << 10
		s = s[:len(s)-1]
	case "m":
		unit = 1 << 20
		s = s[:len(s)-1]
	case "g":
		unit = 1 << 30
		s = s[:len(s)-1]
	case "t":
		unit = 1 << 40
		s = s[:len(s)-1]
	}

	n, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid byte size %q: %w", s, err)
	}
	return n * unit, nil
}
