package corpmap

import (
	"time"

	"github.com/opencorpdata/corpmap/internal/bulkindex"
	"github.com/opencorpdata/corpmap/internal/transport"
	"github.com/opencorpdata/corpmap/pkg/errors"
	"github.com/opencorpdata/corpmap/pkg/orchestrator"
	"github.com/opencorpdata/corpmap/pkg/sources"
	"github.com/opencorpdata/corpmap/pkg/store"
)

// DefaultRefreshCheckInterval is how often the periodic refresh loop looks
// for stale entities.
const DefaultRefreshCheckInterval = 1 * time.Hour

// options holds the client configuration.
type options struct {
	descriptorsPath string
	registry        *sources.Registry
	storePath       string
	store           *store.Store
	transport       transport.Caller
	bulkLoader      bulkindex.Loader

	batchSize   int
	callTimeout time.Duration
	cacheTTL    time.Duration

	refreshInterval      time.Duration
	refreshCheckInterval time.Duration
	autoRefresh          bool
}

func defaultClientOptions() *options {
	return &options{
		batchSize:            orchestrator.DefaultBatchSize,
		callTimeout:          transport.DefaultTimeout,
		cacheTTL:             orchestrator.DefaultCacheTTL,
		refreshInterval:      store.DefaultRefreshInterval,
		refreshCheckInterval: DefaultRefreshCheckInterval,
	}
}

// Option is a function that configures a Client instance.
type Option func(*options) error

// WithDescriptorsFile loads source adapters from a YAML descriptor file.
func WithDescriptorsFile(path string) Option {
	return func(o *options) error {
		o.descriptorsPath = path
		return nil
	}
}

// WithRegistry supplies a pre-built adapter registry, overriding any
// descriptor file.
func WithRegistry(r *sources.Registry) Option {
	return func(o *options) error {
		if r == nil {
			return errors.NewValidationError("registry", nil, "registry must not be nil")
		}
		o.registry = r
		return nil
	}
}

// WithStorePath opens (or creates) the entity registry database at path.
func WithStorePath(path string) Option {
	return func(o *options) error {
		o.storePath = path
		return nil
	}
}

// WithStore supplies an already open store. The client will not close it.
func WithStore(s *store.Store) Option {
	return func(o *options) error {
		if s == nil {
			return errors.NewValidationError("store", nil, "store must not be nil")
		}
		o.store = s
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

// WithBulkLoader attaches a loader for the bulk dataset index.
func WithBulkLoader(loader bulkindex.Loader) Option {
	return func(o *options) error {
		o.bulkLoader = loader
		return nil
	}
}

// WithBatchSize bounds simultaneously in-flight source calls per query.
func WithBatchSize(n int) Option {
	return func(o *options) error {
		if n < 1 {
			return errors.NewValidationError("batchSize", n, "batch size must be at least 1")
		}
		o.batchSize = n
		return nil
	}
}

// WithCallTimeout sets the per-source-call timeout.
func WithCallTimeout(d time.Duration) Option {
	return func(o *options) error {
		if d <= 0 {
			return errors.NewValidationError("callTimeout", d, "call timeout must be positive")
		}
		o.callTimeout = d
		return nil
	}
}

// WithCacheTTL sets how long whole-query results are served from cache.
func WithCacheTTL(d time.Duration) Option {
	return func(o *options) error {
		o.cacheTTL = d
		return nil
	}
}

// WithRefreshInterval sets how long persisted entities stay fresh.
func WithRefreshInterval(d time.Duration) Option {
	return func(o *options) error {
		if d <= 0 {
			return errors.NewValidationError("refreshInterval", d, "refresh interval must be positive")
		}
		o.refreshInterval = d
		return nil
	}
}

// WithRefreshCheckInterval sets how often the periodic refresh loop runs.
func WithRefreshCheckInterval(d time.Duration) Option {
	return func(o *options) error {
		if d <= 0 {
			return errors.NewValidationError("refreshCheckInterval", d, "refresh check interval must be positive")
		}
		o.refreshCheckInterval = d
		return nil
	}
}

// WithAutoRefresh starts the periodic refresh loop at construction.
func WithAutoRefresh(enabled bool) Option {
	return func(o *options) error {
		o.autoRefresh = enabled
		return nil
	}
}
