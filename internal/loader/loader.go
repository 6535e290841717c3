// Package loader implements progressive data loading: batched, prioritized,
// cache-first fetching of remote resources with bounded concurrency and
// per-fetch retry.
package loader

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/dmitrijs2005/partysync/internal/api"
	"github.com/dmitrijs2005/partysync/internal/cache"
	"github.com/dmitrijs2005/partysync/internal/common"
	"github.com/dmitrijs2005/partysync/internal/logging"
	"github.com/sethvargo/go-retry"
	"golang.org/x/sync/errgroup"
)

const (
	defaultBatchSize      = 5
	defaultMaxConcurrency = 3
	defaultFetchAttempts  = 3
	defaultBaseDelay      = 200 * time.Millisecond
	defaultTTL            = 5 * time.Minute
)

// Options tunes batching, concurrency, retry and cache lifetimes.
type Options struct {
	BatchSize      int
	MaxConcurrency int
	FetchAttempts  int
	BaseDelay      time.Duration
	DefaultTTL     time.Duration
	// TTLs overrides the cache lifetime per resource type.
	TTLs map[string]time.Duration
}

func (o *Options) withDefaults() {
	if o.BatchSize <= 0 {
		o.BatchSize = defaultBatchSize
	}
	if o.MaxConcurrency <= 0 {
		o.MaxConcurrency = defaultMaxConcurrency
	}
	if o.FetchAttempts <= 0 {
		o.FetchAttempts = defaultFetchAttempts
	}
	if o.BaseDelay <= 0 {
		o.BaseDelay = defaultBaseDelay
	}
	if o.DefaultTTL <= 0 {
		o.DefaultTTL = defaultTTL
	}
	if o.TTLs == nil {
		o.TTLs = map[string]time.Duration{
			"room":        30 * time.Second,
			"friend":      2 * time.Minute,
			"achievement": 30 * time.Minute,
		}
	}
}

// Result holds the outcome of one LoadData call. Data is keyed by request ID
// and may be partial: requests that could not be served appear in Failed
// instead.
type Result struct {
	Data   map[string]json.RawMessage
	Cached []string
	Failed map[string]error
}

// Err aggregates the per-request failures, or nil when everything loaded.
func (r *Result) Err() error {
	if len(r.Failed) == 0 {
		return nil
	}
	errs := make([]error, 0, len(r.Failed))
	for id, err := range r.Failed {
		errs = append(errs, fmt.Errorf("%s: %w", id, err))
	}
	return errors.Join(errs...)
}

// Loader fetches resources cache-first, in priority order, a bounded batch at
// a time.
type Loader struct {
	client   api.Client
	cache    *cache.Cache
	isOnline func() bool
	log      logging.Logger
	opts     Options
}

func New(client api.Client, c *cache.Cache, isOnline func() bool, log logging.Logger, opts Options) *Loader {
	if isOnline == nil {
		isOnline = func() bool { return true }
	}
	if log == nil {
		log = logging.Discard()
	}
	opts.withDefaults()
	return &Loader{client: client, cache: c, isOnline: isOnline, log: log, opts: opts}
}

// LoadData serves each request from the cache when possible and fetches the
// rest from the server in priority order. Failures never abort the call:
// every request ends up either in Result.Data or in Result.Failed.
func (l *Loader) LoadData(ctx context.Context, requests []Request) *Result {
	res := &Result{
		Data:   make(map[string]json.RawMessage, len(requests)),
		Failed: make(map[string]error),
	}

	var misses []Request
	for _, req := range requests {
		if data, ok := l.cache.Get(ctx, req.CacheKey()); ok {
			res.Data[req.ID] = data
			res.Cached = append(res.Cached, req.ID)
			continue
		}
		misses = append(misses, req)
	}
	if len(misses) == 0 {
		return res
	}

	if !l.isOnline() {
		for _, req := range misses {
			res.Failed[req.ID] = common.ErrOffline
		}
		l.log.Debug(ctx, "offline, serving cache hits only",
			"hits", len(res.Cached), "misses", len(misses))
		return res
	}

	sort.SliceStable(misses, func(i, j int) bool {
		if misses[i].Priority != misses[j].Priority {
			return misses[i].Priority > misses[j].Priority
		}
		return misses[i].Order < misses[j].Order
	})

	var mu sync.Mutex
	for start := 0; start < len(misses); start += l.opts.BatchSize {
		end := start + l.opts.BatchSize
		if end > len(misses) {
			end = len(misses)
		}
		batch := misses[start:end]

		var g errgroup.Group
		g.SetLimit(l.opts.MaxConcurrency)
		for _, req := range batch {
			req := req
			g.Go(func() error {
				data, err := l.fetch(ctx, req)
				mu.Lock()
				defer mu.Unlock()
				if err != nil {
					res.Failed[req.ID] = err
					return nil
				}
				res.Data[req.ID] = data
				return nil
			})
		}
		_ = g.Wait()
	}

	if len(res.Failed) > 0 {
		l.log.Warn(ctx, "partial load", "loaded", len(res.Data), "failed", len(res.Failed))
	}
	return res
}

// fetch performs one network load with exponential backoff and writes the
// payload through to the cache.
func (l *Loader) fetch(ctx context.Context, req Request) (json.RawMessage, error) {
	backoff := retry.WithMaxRetries(uint64(l.opts.FetchAttempts-1), retry.NewExponential(l.opts.BaseDelay))

	var data json.RawMessage
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		resp, err := l.client.Get(ctx, req.endpointWithParams())
		if err != nil {
			if errors.Is(err, api.ErrRejected) {
				return err
			}
			return retry.RetryableError(err)
		}
		data = resp.Data
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", req.ID, err)
	}

	l.cache.Set(ctx, req.CacheKey(), json.RawMessage(data), l.ttlFor(req.ResourceType))
	return data, nil
}

func (l *Loader) ttlFor(resourceType string) time.Duration {
	if ttl, ok := l.opts.TTLs[resourceType]; ok {
		return ttl
	}
	return l.opts.DefaultTTL
}

// InvalidateCache drops every cached entry whose key contains substr.
func (l *Loader) InvalidateCache(ctx context.Context, substr string) int {
	return l.cache.InvalidatePattern(ctx, substr)
}
