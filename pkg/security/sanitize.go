package security

import (
	"fmt"
	"strings"
)

var dangerousPatterns = []string{
	"eval(",
	"exec(",
	"__import__",
	"subprocess",
	"<script",
	"javascript:",
	"data:text/html",
}

// SanitizeInput recursively walks data rejecting any string value that
// contains a known dangerous substring (case-insensitive), matching
// spec §4.6. Maps and slices are walked; every other value passes
// through untouched.
func SanitizeInput(data interface{}) error {
	return sanitizeValue(data)
}

func sanitizeValue(v interface{}) error {
	switch value := v.(type) {
	case string:
		lower := strings.ToLower(value)
		for _, pattern := range dangerousPatterns {
			if strings.Contains(lower, pattern) {
				return fmt.Errorf("security: potentially dangerous input detected: %s", pattern)
			}
		}
	case map[string]interface{}:
		for _, nested := range value {
			if err := sanitizeValue(nested); err != nil {
				return err
			}
		}
	case []interface{}:
		for _, nested := range value {
			if err := sanitizeValue(nested); err != nil {
				return err
			}
		}
	}
	return nil
}
