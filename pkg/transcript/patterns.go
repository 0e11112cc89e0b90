package transcript

import (
	"log/slog"
	"regexp"
)

// SentinelPattern describes one rate-limit trigger phrase.
type SentinelPattern struct {
	Name        string         // Identifier used in logs
	Regex       *regexp.Regexp // Compiled matcher, case-insensitive
	Description string         // What the phrase looks like in the wild
}

// builtinSentinels are the provider phrases that mark a rate-limited
// session. Matching is case-insensitive and position-independent, so the
// leading "You've" (straight or curly apostrophe) never matters.
var builtinSentinels = []SentinelPattern{
	{
		Name:        "usage_limit",
		Regex:       regexp.MustCompile(`(?i)hit your limit`),
		Description: "limit banner, e.g. \"You've hit your limit · resets 8pm (Asia/Dhaka)\"",
	},
	{
		Name:        "rate_limit_exceeded",
		Regex:       regexp.MustCompile(`(?i)rate limit exceeded`),
		Description: "API-level rejection without a reset banner",
	},
	{
		Name:        "try_again",
		Regex:       regexp.MustCompile(`(?i)try again in\s+\d+\s*(?:seconds?|minutes?|hours?)`),
		Description: "relative-delay rejection, e.g. \"try again in 5 minutes\"",
	},
}

// resetTokenRe extracts the reset wall-clock token from the limit banner:
// "resets 8pm (Asia/Dhaka)" or "resets 10:30am (America/New_York)".
var resetTokenRe = regexp.MustCompile(`(?i)resets?\s+(\d{1,2})(?::(\d{2}))?\s*(am|pm)\s*\(([^)]+)\)`)

// tryAgainRe captures the magnitude and unit of a relative-delay message.
var tryAgainRe = regexp.MustCompile(`(?i)try again in\s+(\d+)\s*(second|minute|hour)s?`)

// compilePhrases turns user-configured trigger phrases into sentinel
// patterns. Phrases are matched literally, case-insensitive.
func compilePhrases(phrases []string) []SentinelPattern {
	out := make([]SentinelPattern, 0, len(phrases))
	for _, phrase := range phrases {
		if phrase == "" {
			continue
		}
		re, err := regexp.Compile(`(?i)` + regexp.QuoteMeta(phrase))
		if err != nil {
			slog.Error("Skipping invalid trigger phrase", "phrase", phrase, "error", err)
			continue
		}
		out = append(out, SentinelPattern{
			Name:        "configured",
			Regex:       re,
			Description: "user-configured trigger phrase",
		})
	}
	return out
}
