package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/dmitrijs2005/partysync/internal/flagx"
	"github.com/dmitrijs2005/partysync/internal/timex"
)

// JsonConfig is a DTO used exclusively for JSON unmarshalling. It relies on
// timex.Duration so JSON can specify intervals either as strings like "3s" or
// as integer nanoseconds. After parsing, non-zero values are copied into the
// runtime Config.
type JsonConfig struct {
	APIBaseURL          string                    `json:"api_base_url"`
	HTTPTimeout         timex.Duration            `json:"http_timeout"`
	OnlineCheckInterval timex.Duration            `json:"online_check_interval"`
	StorageDSN          string                    `json:"storage_dsn"`
	BatchSize           int                       `json:"batch_size"`
	MaxConcurrency      int                       `json:"max_concurrency"`
	FetchAttempts       int                       `json:"fetch_attempts"`
	FetchBaseDelay      timex.Duration            `json:"fetch_base_delay"`
	CacheMaxBytes       int                       `json:"cache_max_bytes"`
	CacheMaxEntries     int                       `json:"cache_max_entries"`
	CacheDefaultTTL     timex.Duration            `json:"cache_default_ttl"`
	CacheTTLs           map[string]timex.Duration `json:"cache_ttls"`
}

// parseJson overlays Config with values loaded from a JSON file selected via
// the -c or -config flags. Fields omitted from the file keep their current
// values. Panics on read or unmarshal errors.
func parseJson(cfg *Config) {
	jsonConfigFile := flagx.JsonConfigFlags()
	if jsonConfigFile == "" {
		return
	}

	var jc JsonConfig

	data, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}
	if err := json.Unmarshal(data, &jc); err != nil {
		panic(err)
	}

	if jc.APIBaseURL != "" {
		cfg.APIBaseURL = jc.APIBaseURL
	}
	if jc.HTTPTimeout.Duration > 0 {
		cfg.HTTPTimeout = jc.HTTPTimeout.Duration
	}
	if jc.OnlineCheckInterval.Duration > 0 {
		cfg.OnlineCheckInterval = jc.OnlineCheckInterval.Duration
	}
	if jc.StorageDSN != "" {
		cfg.StorageDSN = jc.StorageDSN
	}
	if jc.BatchSize > 0 {
		cfg.BatchSize = jc.BatchSize
	}
	if jc.MaxConcurrency > 0 {
		cfg.MaxConcurrency = jc.MaxConcurrency
	}
	if jc.FetchAttempts > 0 {
		cfg.FetchAttempts = jc.FetchAttempts
	}
	if jc.FetchBaseDelay.Duration > 0 {
		cfg.FetchBaseDelay = jc.FetchBaseDelay.Duration
	}
	if jc.CacheMaxBytes > 0 {
		cfg.CacheMaxBytes = jc.CacheMaxBytes
	}
	if jc.CacheMaxEntries > 0 {
		cfg.CacheMaxEntries = jc.CacheMaxEntries
	}
	if jc.CacheDefaultTTL.Duration > 0 {
		cfg.CacheDefaultTTL = jc.CacheDefaultTTL.Duration
	}
	for resource, ttl := range jc.CacheTTLs {
		if cfg.CacheTTLs == nil {
			cfg.CacheTTLs = make(map[string]time.Duration)
		}
		cfg.CacheTTLs[resource] = ttl.Duration
	}
}
