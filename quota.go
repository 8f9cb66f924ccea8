package governor

// ModelQuota describes the static rate limits for a single model.
// A zero RequestsPerDay or TokensPerMinute means that dimension is unbounded.
type ModelQuota struct {
	RequestsPerMinute int    `yaml:"requests_per_minute"`
	RequestsPerDay    int    `yaml:"requests_per_day"`
	TokensPerMinute   int64  `yaml:"tokens_per_minute"`
	Burst             int    `yaml:"burst"`
	Provider          string `yaml:"provider"`
	Tier              string `yaml:"tier"`
}

// DefaultQuotas returns the built-in quota table for the free-tier Gemini
// models the assistant targets. Callers can override or extend entries via
// WithQuotas; the table is copied at construction and immutable afterwards.
func DefaultQuotas() map[string]ModelQuota {
	return map[string]ModelQuota{
		"gemini-2.0-flash": {
			RequestsPerMinute: 15,
			RequestsPerDay:    1500,
			TokensPerMinute:   1_000_000,
			Burst:             5,
			Provider:          "google",
			Tier:              "free",
		},
		"gemini-2.0-flash-lite": {
			RequestsPerMinute: 30,
			RequestsPerDay:    1500,
			TokensPerMinute:   1_000_000,
			Burst:             10,
			Provider:          "google",
			Tier:              "free",
		},
		"gemini-2.5-flash": {
			RequestsPerMinute: 10,
			RequestsPerDay:    500,
			TokensPerMinute:   250_000,
			Burst:             3,
			Provider:          "google",
			Tier:              "free",
		},
		"gemini-2.5-pro": {
			RequestsPerMinute: 5,
			RequestsPerDay:    100,
			TokensPerMinute:   250_000,
			Burst:             2,
			Provider:          "google",
			Tier:              "free",
		},
		"gemini-1.5-flash": {
			RequestsPerMinute: 15,
			RequestsPerDay:    1500,
			TokensPerMinute:   1_000_000,
			Burst:             5,
			Provider:          "google",
			Tier:              "free",
		},
	}
}
