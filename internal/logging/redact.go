package logging

import "strings"

// sensitiveKeys are attribute keys whose values are always masked.
// Server manifests carry bearer tokens in headers and env blocks, and
// those values routinely flow through connection-level debug logging.
var sensitiveKeys = map[string]bool{
	"authorization": true,
	"token":         true,
	"access_token":  true,
	"api_key":       true,
	"apikey":        true,
	"secret":        true,
}

// tokenPrefixes are well-known credential prefixes masked wherever they
// appear in a string value, regardless of the attribute key.
var tokenPrefixes = []string{
	"Bearer ",
	"ghp_",
	"github_pat_",
	"sk-",
	"xoxb-",
}

// shouldMask reports whether the attribute key names a sensitive value.
func shouldMask(key string) bool {
	return sensitiveKeys[strings.ToLower(key)]
}

// containsTokenPrefix reports whether the value looks like a credential.
func containsTokenPrefix(value string) bool {
	for _, p := range tokenPrefixes {
		if strings.Contains(value, p) {
			return true
		}
	}
	return false
}

// maskValue replaces all but a short prefix of value with asterisks so log
// lines remain correlatable without leaking the credential.
func maskValue(value string) string {
	const keep = 4
	if len(value) <= keep {
		return "****"
	}
	return value[:keep] + strings.Repeat("*", 8)
}
