package provider

import "strings"

// Kind is a coarse classification of an upstream error message, used by the
// router to pick a response status and, for completions, a user-facing hint.
type Kind int

const (
	KindOther Kind = iota
	KindAuth
	KindRateLimit
	KindRegion
)

var (
	regionKeywords = []string{"country", "region", "territory"}
	authKeywords   = []string{"401", "unauthorized", "invalid", "api key", "authentication", "forbidden"}
	rateKeywords   = []string{"429", "rate limit", "too many requests", "quota"}
)

// Classify inspects an error message for well-known failure signatures.
// Region restrictions are checked first so a geo-blocked 403 still gets the
// relocation hint rather than being reported as a bad key.
func Classify(message string) Kind {
	m := strings.ToLower(message)
	for _, kw := range regionKeywords {
		if strings.Contains(m, kw) {
			return KindRegion
		}
	}
	for _, kw := range authKeywords {
		if strings.Contains(m, kw) {
			return KindAuth
		}
	}
	for _, kw := range rateKeywords {
		if strings.Contains(m, kw) {
			return KindRateLimit
		}
	}
	return KindOther
}
