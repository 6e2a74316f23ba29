package orchestrator

import "strings"

// GreetingConfig controls the short-greeting prefilter (spec §4.5 step 3).
type GreetingConfig struct {
	MaxLength int
	Phrases   []string
	Reply     string
}

// matchesGreeting reports whether message is short enough and equals one
// of the configured greeting phrases, case-insensitively.
func matchesGreeting(message string, cfg GreetingConfig) bool {
	if len([]rune(message)) >= cfg.MaxLength {
		return false
	}
	trimmed := strings.ToLower(strings.TrimSpace(message))
	for _, phrase := range cfg.Phrases {
		if trimmed == strings.ToLower(phrase) {
			return true
		}
	}
	return false
}
