package loader

import (
	"fmt"
	"net/url"
)

// Priority orders requests within one LoadData call. Higher values are
// fetched first.
type Priority int

const (
	PriorityLow Priority = iota
	PriorityMedium
	PriorityHigh
	PriorityCritical
)

func (p Priority) String() string {
	switch p {
	case PriorityCritical:
		return "critical"
	case PriorityHigh:
		return "high"
	case PriorityMedium:
		return "medium"
	default:
		return "low"
	}
}

// Request describes one resource to load. ID keys the result map and, with
// ResourceType, the cache entry. Order breaks priority ties so callers get a
// stable fetch sequence.
type Request struct {
	ID           string
	ResourceType string
	Endpoint     string
	Priority     Priority
	Order        int
	Params       map[string]string
}

// CacheKey is the key a request's payload lives under in the local cache.
func (r Request) CacheKey() string {
	return fmt.Sprintf("entity:%s:%s", r.ResourceType, r.ID)
}

// endpointWithParams appends Params to the endpoint as a query string.
func (r Request) endpointWithParams() string {
	if len(r.Params) == 0 {
		return r.Endpoint
	}
	q := url.Values{}
	for k, v := range r.Params {
		q.Set(k, v)
	}
	return r.Endpoint + "?" + q.Encode()
}
