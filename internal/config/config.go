package config

import "time"

// Config holds runtime settings for the partysync client core.
//
// Units: all intervals and timeouts are time.Duration values; cache capacity
// is in bytes.
type Config struct {
	// APIBaseURL is the base URL of the game backend, e.g. "https://api.example.com/v1".
	APIBaseURL string
	// HTTPTimeout bounds every individual API call.
	HTTPTimeout time.Duration
	// OnlineCheckInterval is how often the client probes server reachability.
	OnlineCheckInterval time.Duration
	// StorageDSN is the SQLite DSN backing durable state.
	StorageDSN string

	// Progressive loader tuning.
	BatchSize      int
	MaxConcurrency int
	FetchAttempts  int
	FetchBaseDelay time.Duration

	// Local cache tuning.
	CacheMaxBytes   int
	CacheMaxEntries int
	CacheDefaultTTL time.Duration
	// CacheTTLs overrides the cache lifetime per resource type.
	CacheTTLs map[string]time.Duration
}

// LoadDefaults populates c with sensible defaults.
func (c *Config) LoadDefaults() {
	c.APIBaseURL = "http://127.0.0.1:8080/api"
	c.HTTPTimeout = 10 * time.Second
	c.OnlineCheckInterval = 3 * time.Second
	c.StorageDSN = "partysync.db"
	c.BatchSize = 5
	c.MaxConcurrency = 3
	c.FetchAttempts = 3
	c.FetchBaseDelay = 200 * time.Millisecond
	c.CacheMaxBytes = 16 << 20
	c.CacheMaxEntries = 4096
	c.CacheDefaultTTL = 5 * time.Minute
	c.CacheTTLs = map[string]time.Duration{
		"room":        30 * time.Second,
		"friend":      2 * time.Minute,
		"achievement": 30 * time.Minute,
	}
}

// LoadConfig constructs a Config, applies defaults, then overlays values from
// JSON (if present) and command-line flags (if present). Later sources take
// precedence over earlier ones.
func LoadConfig() *Config {
	cfg := &Config{}
	cfg.LoadDefaults()
	parseJson(cfg)
	parseFlags(cfg)
	return cfg
}
