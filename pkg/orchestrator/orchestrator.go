// Package orchestrator drives multi-source company queries: identity
// discovery, pattern-specific source fan-out, bounded concurrency, result
// caching, and a final hand-off to the resolution engine. The orchestrator
// is generic over the adapter registry and never encodes source-specific
// URL or field logic itself.
package orchestrator

import (
	"context"
	"sync"
	"time"

	"github.com/opencorpdata/corpmap/internal/bulkindex"
	"github.com/opencorpdata/corpmap/internal/transport"
	"github.com/opencorpdata/corpmap/pkg/company"
	"github.com/opencorpdata/corpmap/pkg/errors"
	"github.com/opencorpdata/corpmap/pkg/logging"
	"github.com/opencorpdata/corpmap/pkg/resolve"
	"github.com/opencorpdata/corpmap/pkg/sources"
)

// Defaults for the orchestration knobs; all overridable via options.
const (
	// DefaultBatchSize bounds simultaneously in-flight adapter calls.
	DefaultBatchSize = 5
	// DefaultCacheTTL is how long a whole-query result is served from cache.
	DefaultCacheTTL = 5 * time.Minute
)

// Phase names used in meta timings and error attribution.
const (
	PhaseDiscovery = "discovery"
	PhaseDirect    = "direct"
	PhaseTwoStep   = "two_step"
	PhaseReverse   = "reverse"
	PhaseBulk      = "bulk"
	PhasePhonetic  = "phonetic"
	PhaseResolve   = "resolve"
)

// Orchestrator executes queries against all applicable source adapters and
// resolves the collected records into entities.
type Orchestrator struct {
	registry  *sources.Registry
	transport transport.Caller
	bulk      *bulkindex.Index
	batchSize int
	cache     *resultCache
}

// New creates an Orchestrator for the given adapter registry.
func New(registry *sources.Registry, opts ...Option) (*Orchestrator, error) {
	if registry == nil {
		return nil, errors.NewValidationError("registry", nil, "adapter registry is required")
	}

	options := defaultOptions()
	for _, opt := range opts {
		if err := opt(options); err != nil {
			return nil, err
		}
	}

	o := &Orchestrator{
		registry:  registry,
		transport: options.transport,
		bulk:      options.bulk,
		batchSize: options.batchSize,
		cache:     newResultCache(options.cacheTTL),
	}
	if o.transport == nil {
		o.transport = transport.New(options.callTimeout)
	}
	return o, nil
}

// Search runs the full query state machine: discovery, parallel pattern
// phases, resolution, caching. Adapter failures are non-fatal and end up
// in the result meta; Search only errors on invalid input.
func (o *Orchestrator) Search(ctx context.Context, query company.Query) (*company.Result, error) {
	if query.IsZero() {
		return nil, errors.NewValidationError("query", query, "at least one of brno, crno, companyName is required")
	}

	logger := logging.FromContext(ctx)

	if cached, ok := o.cache.get(query.CacheKey()); ok {
		logger.Debug().Str("query", query.String()).Msg("Serving query from cache")
		return cached, nil
	}

	col := newCollector()

	// Identity discovery fills missing keys; failure is non-fatal.
	started := time.Now()
	enriched := o.discover(ctx, query, col)
	col.timing(PhaseDiscovery, time.Since(started))

	// Pattern phases run in parallel; adapter calls inside them share one
	// bounded semaphore so total in-flight calls never exceed batchSize.
	sem := make(chan struct{}, o.batchSize)
	var wg sync.WaitGroup
	phases := []struct {
		name string
		run  func(context.Context, company.Query, *collector, chan struct{})
	}{
		{PhaseDirect, o.runDirect},
		{PhaseTwoStep, o.runTwoStep},
		{PhaseReverse, o.runReverse},
		{PhaseBulk, o.runBulk},
		{PhasePhonetic, o.runPhonetic},
	}
	for _, phase := range phases {
		wg.Add(1)
		go func() {
			defer wg.Done()
			phaseStart := time.Now()
			phase.run(logging.WithPhase(ctx, phase.name), enriched, col, sem)
			col.timing(phase.name, time.Since(phaseStart))
		}()
	}
	wg.Wait()

	// All collected records are resolved once at the end; nothing is
	// resolved incrementally.
	resolveStart := time.Now()
	resolution := resolve.Resolve(col.take())
	col.timing(PhaseResolve, time.Since(resolveStart))

	result := &company.Result{
		Query:     query,
		Entities:  resolution.Entities,
		Unmatched: resolution.Unmatched,
		Meta:      col.meta(),
	}

	logger.Info().
		Str("query", query.String()).
		Int("entities", len(result.Entities)).
		Int("unmatched", len(result.Unmatched)).
		Int("apis_succeeded", result.Meta.Succeeded).
		Int("apis_failed", result.Meta.Failed).
		Msg("Query orchestration complete")

	o.cache.put(query.CacheKey(), result)
	return result, nil
}

// Invalidate drops the cached result for a query, if any. The persistence
// layer calls this after a refresh writes fresher data for an entity.
func (o *Orchestrator) Invalidate(query company.Query) {
	o.cache.invalidate(query.CacheKey())
}

// call performs one adapter request under the shared semaphore and returns
// the extracted records. Failures are recorded and never propagate: one
// failing call must not cancel its siblings.
func (o *Orchestrator) call(ctx context.Context, a sources.Adapter, phase string, req *sources.Request, col *collector, sem chan struct{}) []company.SourceRecord {
	sem <- struct{}{}
	defer func() { <-sem }()

	col.attempt()
	payload, err := o.transport.Do(ctx, a.ID().String(), req)
	if err != nil {
		col.failure(a.ID(), phase, err)
		return nil
	}

	records, err := a.Extract(payload)
	if err != nil {
		col.failure(a.ID(), phase, err)
		return nil
	}

	col.success()
	return records
}
