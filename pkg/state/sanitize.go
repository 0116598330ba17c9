package state

import (
	"strings"
)

var sensitiveKeyPatterns = []string{
	"PASSWORD",
	"SECRET",
	"TOKEN",
	"KEY",
	"CREDENTIAL",
	"AUTH",
	"PRIVATE",
	"CONNECTIONSTRINGS",
}

const redactedValue = "[REDACTED]"

// SanitizeEnv returns a copy of env with the values of secret-looking keys
// replaced. Overlays are persisted to state.json, so this runs before Save.
func SanitizeEnv(env map[string]string) map[string]string {
	if env == nil {
		return nil
	}
	result := make(map[string]string, len(env))
	for k, v := range env {
		if isSensitiveKey(k) {
			result[k] = redactedValue
		} else {
			result[k] = v
		}
	}
	return result
}

func isSensitiveKey(key string) bool {
	upper := strings.ToUpper(strings.ReplaceAll(key, "__", ""))
	for _, pattern := range sensitiveKeyPatterns {
		if strings.Contains(upper, pattern) {
			return true
		}
	}
	return false
}

// Mask keeps the first and last character of a credential for display.
func Mask(v string) string {
	switch {
	case v == "":
		return "(unset)"
	case len(v) <= 2:
		return strings.Repeat("*", len(v))
	default:
		return v[:1] + strings.Repeat("*", len(v)-2) + v[len(v)-1:]
	}
}
