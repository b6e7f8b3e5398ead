package orchestrator

import (
	"time"

	"github.com/opencorpdata/corpmap/internal/bulkindex"
	"github.com/opencorpdata/corpmap/internal/transport"
	"github.com/opencorpdata/corpmap/pkg/errors"
)

// options holds the configurable orchestration knobs.
type options struct {
	batchSize   int
	callTimeout time.Duration
	cacheTTL    time.Duration
	transport   transport.Caller
	bulk        *bulkindex.Index
}

func defaultOptions() *options {
	return &options{
		batchSize:   DefaultBatchSize,
		callTimeout: transport.DefaultTimeout,
		cacheTTL:    DefaultCacheTTL,
	}
}

// Option configures an Orchestrator.
type Option func(*options) error

// WithBatchSize bounds the number of simultaneously in-flight adapter calls.
func WithBatchSize(n int) Option {
	return func(o *options) error {
		if n < 1 {
			return errors.NewValidationError("batchSize", n, "batch size must be at least 1")
		}
		o.batchSize = n
		return nil
	}
}

// WithCallTimeout sets the per-call timeout used by the default transport.
// Ignored when a custom transport is supplied via WithTransport.
func WithCallTimeout(d time.Duration) Option {
	return func(o *options) error {
		if d <= 0 {
			return errors.NewValidationError("callTimeout", d, "call timeout must be positive")
		}
		o.callTimeout = d
		return nil
	}
}

// WithCacheTTL sets how long a whole-query result is served from cache.
// A zero or negative TTL disables the cache.
func WithCacheTTL(d time.Duration) Option {
	return func(o *options) error {
		o.cacheTTL = d
		return nil
	}
}

// WithTransport replaces the HTTP transport, mainly for tests.
func WithTransport(t transport.Caller) Option {
	return func(o *options) error {
		if t == nil {
			return errors.NewValidationError("transport", nil, "transport must not be nil")
		}
		o.transport = t
		return nil
	}
}

// WithBulkIndex attaches the bulk dataset index used by the bulk phase and
// as the discovery fallback for name-by-identifier lookups.
func WithBulkIndex(idx *bulkindex.Index) Option {
	return func(o *options) error {
		o.bulk = idx
		return nil
	}
}
