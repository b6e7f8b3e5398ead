// Package corpmap links Korean company records across government and
// financial data sources. It wraps the query orchestrator, the resolution
// engine, and the persistence layer behind a single client with periodic
// refresh, event hooks, and flexible configuration through functional
// options.
//
// Example usage:
//
//	cm, err := corpmap.New(
//	    corpmap.WithDescriptorsFile("sources.yaml"),
//	    corpmap.WithStorePath("corpmap.db"),
//	)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer cm.Close()
//
//	result, err := cm.Search(ctx, company.Query{BRNO: "124-81-00998"})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	for _, entity := range result.Entities {
//	    fmt.Printf("%s [%s] %.2f\n", entity.CanonicalName, entity.MatchLevel, entity.Confidence)
//	}
package corpmap

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/opencorpdata/corpmap/internal/bulkindex"
	"github.com/opencorpdata/corpmap/pkg/company"
	"github.com/opencorpdata/corpmap/pkg/errors"
	"github.com/opencorpdata/corpmap/pkg/logging"
	"github.com/opencorpdata/corpmap/pkg/normalize"
	"github.com/opencorpdata/corpmap/pkg/orchestrator"
	"github.com/opencorpdata/corpmap/pkg/sources"
	"github.com/opencorpdata/corpmap/pkg/store"
)

// Compile-time interface check to ensure proper implementation.
var _ Client = (*client)(nil)

// Client is the high-level corpmap API.
type Client interface {
	// Search runs a live multi-source query and resolves the results.
	Search(ctx context.Context, query company.Query) (*company.Result, error)

	// Lookup serves from the entity registry when a fresh entity exists,
	// falling back to a live search (persisted on success) otherwise.
	Lookup(ctx context.Context, query company.Query) (*company.Result, error)

	// Persist writes a search result to the entity registry.
	Persist(ctx context.Context, result *company.Result) (*store.PersistStats, error)

	// RefreshStale refetches and re-persists every stale entity.
	RefreshStale(ctx context.Context) (*store.RefreshStats, error)

	// Audit summarizes cross-source conflicts across the registry.
	Audit(ctx context.Context) (*store.AuditSummary, error)

	// Refresher provides access to the periodic refresh controls.
	Refresher

	// Hooks provides access to event callback registration.
	Hooks

	// Sources returns the adapter registry.
	Sources() *sources.Registry

	// Store returns the persistence layer, or nil when none is configured.
	Store() *store.Store

	// Close stops the refresh loop and releases the store.
	Close() error
}

// client is the internal implementation of the Client interface.
type client struct {
	options      *options
	registry     *sources.Registry
	orchestrator *orchestrator.Orchestrator
	store        *store.Store

	// periodic refresh state
	mu            sync.Mutex
	refreshTicker *time.Ticker
	refreshCancel context.CancelFunc
	stopCh        chan struct{}

	hooks *hooks
}

// New creates a new Client instance with the given options.
func New(opts ...Option) (Client, error) {
	options := defaultClientOptions()
	for _, opt := range opts {
		if err := opt(options); err != nil {
			return nil, err
		}
	}

	c := &client{
		options:  options,
		registry: options.registry,
		stopCh:   make(chan struct{}),
		hooks:    newHooks(),
	}

	if c.registry == nil && options.descriptorsPath != "" {
		registry, err := sources.LoadFile(options.descriptorsPath)
		if err != nil {
			return nil, err
		}
		c.registry = registry
	}
	if c.registry == nil {
		c.registry = sources.NewRegistry()
	}

	var bulk *bulkindex.Index
	if options.bulkLoader != nil {
		bulk = bulkindex.New(options.bulkLoader)
	}

	orchOpts := []orchestrator.Option{
		orchestrator.WithBatchSize(options.batchSize),
		orchestrator.WithCacheTTL(options.cacheTTL),
		orchestrator.WithCallTimeout(options.callTimeout),
	}
	if options.transport != nil {
		orchOpts = append(orchOpts, orchestrator.WithTransport(options.transport))
	}
	if bulk != nil {
		orchOpts = append(orchOpts, orchestrator.WithBulkIndex(bulk))
	}
	orch, err := orchestrator.New(c.registry, orchOpts...)
	if err != nil {
		return nil, err
	}
	c.orchestrator = orch

	if options.store != nil {
		c.store = options.store
	} else if options.storePath != "" {
		st, err := store.Open(options.storePath, store.WithRefreshInterval(options.refreshInterval))
		if err != nil {
			return nil, err
		}
		c.store = st
	}

	if options.autoRefresh {
		if err := c.RefreshOn(); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// Search runs a live multi-source query and resolves the results.
func (c *client) Search(ctx context.Context, query company.Query) (*company.Result, error) {
	return c.orchestrator.Search(ctx, normalizeQuery(query))
}

// Lookup is store-first: a fresh persisted entity answers immediately, a
// miss or stale entity triggers a live search whose result is persisted.
func (c *client) Lookup(ctx context.Context, query company.Query) (*company.Result, error) {
	query = normalizeQuery(query)

	if c.store != nil && (query.BRNO != "" || query.CRNO != "") {
		stored, err := c.store.LoadEntity(ctx, query, false)
		if err == nil {
			return storedResult(query, stored), nil
		}
		if !errors.IsNotFound(err) {
			return nil, err
		}
	}

	result, err := c.orchestrator.Search(ctx, query)
	if err != nil {
		return nil, err
	}
	if c.store != nil && len(result.Entities) > 0 && !result.Meta.CacheHit {
		if _, err := c.Persist(ctx, result); err != nil {
			logging.FromContext(ctx).Warn().Err(err).Msg("Failed to persist lookup result")
		}
	}
	return result, nil
}

// Persist writes a search result to the entity registry and fires entity
// hooks for what changed.
func (c *client) Persist(ctx context.Context, result *company.Result) (*store.PersistStats, error) {
	if c.store == nil {
		return nil, errors.ErrStoreUnavailable
	}

	previous := make(map[string]*store.StoredEntity, len(result.Entities))
	for i := range result.Entities {
		key := result.Entities[i].Key()
		if old, err := c.store.GetByKey(ctx, key); err == nil {
			previous[key] = old
		}
	}

	batchID := fmt.Sprintf("batch-%d", time.Now().UTC().UnixNano())
	stats, err := c.store.Persist(ctx, result, batchID)
	if err != nil {
		return nil, err
	}

	for i := range result.Entities {
		key := result.Entities[i].Key()
		fresh, err := c.store.GetByKey(ctx, key)
		if err != nil {
			continue
		}
		if old, ok := previous[key]; ok {
			c.hooks.triggerUpdated(old, fresh)
		} else {
			c.hooks.triggerAdded(fresh)
		}
	}
	return stats, nil
}

// RefreshStale refetches and re-persists every stale entity.
func (c *client) RefreshStale(ctx context.Context) (*store.RefreshStats, error) {
	if c.store == nil {
		return nil, errors.ErrStoreUnavailable
	}
	stats, err := c.store.RefreshStale(ctx, c.orchestrator)
	if err != nil {
		return nil, err
	}
	return stats, nil
}

// Audit summarizes cross-source conflicts across the registry.
func (c *client) Audit(ctx context.Context) (*store.AuditSummary, error) {
	if c.store == nil {
		return nil, errors.ErrStoreUnavailable
	}
	return c.store.CrossCheckAudit(ctx)
}

// Sources returns the adapter registry.
func (c *client) Sources() *sources.Registry {
	return c.registry
}

// Store returns the persistence layer, or nil when none is configured.
func (c *client) Store() *store.Store {
	return c.store
}

// Close stops the refresh loop and releases the store.
func (c *client) Close() error {
	_ = c.RefreshOff()
	if c.store != nil && c.options.store == nil {
		// Only close a store the client opened itself.
		return c.store.Close()
	}
	return nil
}

// normalizeQuery canonicalizes identifiers so equivalent spellings share
// cache entries and registry keys.
func normalizeQuery(q company.Query) company.Query {
	q.BRNO = normalize.BRNO(q.BRNO)
	q.CRNO = normalize.CRNO(q.CRNO)
	return q
}

// storedResult shapes a registry hit like a live search result.
func storedResult(query company.Query, stored *store.StoredEntity) *company.Result {
	return &company.Result{
		Query: query,
		Entities: []company.Entity{{
			ID:            stored.EntityID,
			Confidence:    stored.Confidence,
			MatchLevel:    stored.MatchLevel,
			Identifiers:   company.Identifiers{BRNO: stored.BRNO, CRNO: stored.CRNO},
			CanonicalName: stored.CanonicalName,
			NameVariants:  stored.NameVariants,
			Sources:       stored.Sources,
		}},
		Meta: company.Meta{CacheHit: true},
	}
}
