package admin

import "time"

// Config holds the admin HTTP surface's tunables.
type Config struct {
	Host string
	Port int

	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration

	EnableCORS     bool
	AllowedOrigins []string

	// CommitFeedPollInterval is how often the live commit-state event
	// feed diffs PersistentCommitSummaries() against its last snapshot.
	CommitFeedPollInterval time.Duration

	// EnableGraphQL turns on the read-only introspection API.
	EnableGraphQL bool
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Host:                   "0.0.0.0",
		Port:                   9444,
		ReadTimeout:            30 * time.Second,
		WriteTimeout:           30 * time.Second,
		IdleTimeout:            120 * time.Second,
		EnableCORS:             true,
		AllowedOrigins:         []string{"*"},
		CommitFeedPollInterval: time.Second,
		EnableGraphQL:          true,
	}
}
