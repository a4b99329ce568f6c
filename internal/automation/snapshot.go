package automation

import "strings"

const redacted = "[REDACTED]"

var sensitiveKeyParts = []string{
	"password",
	"passwd",
	"secret",
	"token",
	"apikey",
	"authorization",
	"credential",
	"privatekey",
	"socialsecurity",
	"cardnumber",
}

func isSensitiveKey(key string) bool {
	normalized := strings.ToLower(strings.NewReplacer("_", "", "-", "").Replace(key))
	if normalized == "ssn" {
		return true
	}
	for _, part := range sensitiveKeyParts {
		if strings.Contains(normalized, part) {
			return true
		}
	}
	return false
}

// redact returns a deep copy of v with sensitive keys masked.
func redact(v interface{}) interface{} {
	switch val := v.(type) {
	case map[string]interface{}:
		out := make(map[string]interface{}, len(val))
		for k, item := range val {
			if isSensitiveKey(k) {
				out[k] = redacted
				continue
			}
			out[k] = redact(item)
		}
		return out
	case []interface{}:
		out := make([]interface{}, len(val))
		for i, item := range val {
			out[i] = redact(item)
		}
		return out
	default:
		return v
	}
}

// buildSnapshot captures the resolved context stored with a run.
func buildSnapshot(data map[string]interface{}) map[string]interface{} {
	if data == nil {
		return nil
	}
	return redact(data).(map[string]interface{})
}
