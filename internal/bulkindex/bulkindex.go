// Package bulkindex holds an in-memory index over a bulk-materialized
// dataset, keyed by normalized business registration number. Sources too
// large or too slow to query per-company are fetched once and served from
// here. Population is lazy and guarded by singleflight so a load in
// progress is never triggered twice concurrently.
package bulkindex

import (
	"context"
	"sync"

	"golang.org/x/sync/singleflight"

	"github.com/opencorpdata/corpmap/pkg/company"
	"github.com/opencorpdata/corpmap/pkg/normalize"
)

// Loader fetches the full dataset for the index.
type Loader func(ctx context.Context) ([]company.SourceRecord, error)

// Index is a lazily-populated read-mostly map from normalized brno to the
// bulk source's record.
type Index struct {
	loader Loader
	flight singleflight.Group

	mu      sync.RWMutex
	records map[string]company.SourceRecord
}

// New creates an index backed by the given loader. The dataset is not
// fetched until the first lookup.
func New(loader Loader) *Index {
	return &Index{loader: loader}
}

// Lookup returns the record for a normalized brno, populating the index on
// first use. A failed load leaves the index empty so the next lookup
// retries.
func (ix *Index) Lookup(ctx context.Context, brno string) (company.SourceRecord, bool, error) {
	key := normalize.BRNO(brno)
	if key == "" {
		return company.SourceRecord{}, false, nil
	}

	if err := ix.ensureLoaded(ctx); err != nil {
		return company.SourceRecord{}, false, err
	}

	ix.mu.RLock()
	defer ix.mu.RUnlock()
	rec, ok := ix.records[key]
	return rec, ok, nil
}

// Loaded reports whether the dataset has been populated.
func (ix *Index) Loaded() bool {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return ix.records != nil
}

// Len returns the number of indexed records.
func (ix *Index) Len() int {
	ix.mu.RLock()
	defer ix.mu.RUnlock()
	return len(ix.records)
}

// Invalidate drops the dataset so the next lookup reloads it.
func (ix *Index) Invalidate() {
	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.records = nil
}

// ensureLoaded populates the index exactly once per cold state, collapsing
// concurrent callers onto a single load.
func (ix *Index) ensureLoaded(ctx context.Context) error {
	if ix.Loaded() {
		return nil
	}

	_, err, _ := ix.flight.Do("load", func() (any, error) {
		if ix.Loaded() {
			return nil, nil
		}
		records, err := ix.loader(ctx)
		if err != nil {
			return nil, err
		}

		indexed := make(map[string]company.SourceRecord, len(records))
		for _, rec := range records {
			if key := normalize.BRNO(rec.BRNO); key != "" {
				indexed[key] = rec
			}
		}

		ix.mu.Lock()
		ix.records = indexed
		ix.mu.Unlock()
		return nil, nil
	})
	return err
}
