package security

import (
	"encoding/json"
	"fmt"
	"html"
	"strings"
	"unicode"
)

const (
	// MaxDetailsSize bounds the serialized size of an audit details map.
	MaxDetailsSize = 100_000

	maxKeyLength   = 255
	maxValueLength = 1000

	// Redacted replaces values stored under sensitive keys.
	Redacted = "***REDACTED***"
)

var redactedKeys = map[string]struct{}{
	"password":    {},
	"secret":      {},
	"token":       {},
	"api_key":     {},
	"private_key": {},
	"session_id":  {},
	"csrf_token":  {},
	"auth_token":  {},
}

// SanitizeInput truncates s to maxLen runes (0 = unlimited), HTML-escapes it,
// drops control characters other than whitespace and trims the result.
func SanitizeInput(s string, maxLen int) string {
	if s == "" {
		return s
	}
	if maxLen > 0 {
		if r := []rune(s); len(r) > maxLen {
			s = string(r[:maxLen])
		}
	}
	s = html.EscapeString(s)
	s = strings.Map(func(r rune) rune {
		if unicode.IsPrint(r) || r == ' ' || r == '\t' || r == '\n' || r == '\r' {
			return r
		}
		return -1
	}, s)
	return strings.TrimSpace(s)
}

// MinimizeDetails prepares a details map for the audit trail: sensitive keys
// are redacted, strings are PII-masked and capped, nested maps are processed
// recursively and string list elements are PII-masked.
func MinimizeDetails(details map[string]any) (map[string]any, error) {
	if len(details) == 0 {
		return map[string]any{}, nil
	}
	if b, err := json.Marshal(details); err == nil && len(b) > MaxDetailsSize {
		return nil, fmt.Errorf("details size %d exceeds %d: %w", len(b), MaxDetailsSize, ErrInputTooLarge)
	}

	clean := make(map[string]any, len(details))
	for key, value := range details {
		cleanKey := SanitizeInput(key, maxKeyLength)
		if _, ok := redactedKeys[strings.ToLower(key)]; ok {
			clean[cleanKey] = Redacted
			continue
		}

		switch v := value.(type) {
		case string:
			masked, err := MaskPII(v, AllPII)
			if err != nil {
				return nil, err
			}
			clean[cleanKey] = SanitizeInput(masked, maxValueLength)
		case map[string]any:
			nested, err := MinimizeDetails(v)
			if err != nil {
				return nil, err
			}
			clean[cleanKey] = nested
		case []string:
			out := make([]any, len(v))
			for i, item := range v {
				out[i] = MaskAll(item)
			}
			clean[cleanKey] = out
		case []any:
			out := make([]any, len(v))
			for i, item := range v {
				if s, ok := item.(string); ok {
					out[i] = MaskAll(s)
				} else {
					out[i] = item
				}
			}
			clean[cleanKey] = out
		default:
			clean[cleanKey] = v
		}
	}
	return clean, nil
}
