package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/opencorpdata/corpmap/pkg/company"
	"github.com/opencorpdata/corpmap/pkg/errors"
	"github.com/opencorpdata/corpmap/pkg/logging"
)

// Searcher executes a live multi-source query. The orchestrator satisfies
// this; tests substitute stubs.
type Searcher interface {
	Search(ctx context.Context, query company.Query) (*company.Result, error)
}

// RefreshStale refetches every stale or refresh-due entity through the
// searcher and persists the fresh results. One entity failing does not
// stop the batch: the entity is re-marked stale for the next run, the
// failure is audited, and the run continues.
func (s *Store) RefreshStale(ctx context.Context, searcher Searcher) (*RefreshStats, error) {
	if searcher == nil {
		return nil, errors.NewValidationError("searcher", nil, "a searcher is required")
	}

	stale, err := s.ListStale(ctx)
	if err != nil {
		return nil, err
	}

	logger := logging.FromContext(ctx)
	stats := &RefreshStats{}
	batchID := fmt.Sprintf("refresh-%d", time.Now().UTC().Unix())

	for i := range stale {
		entity := &stale[i]
		if err := s.refreshOne(ctx, searcher, entity, batchID); err != nil {
			stats.Failed++
			logger.Warn().Err(err).Str("entity", entity.Key).Msg("Entity refresh failed")
			// A refresh-due entity selected on time alone carries no
			// stale flag yet; record the failure on the row itself.
			s.markStaleBestEffort(ctx, []string{entity.Key})
			s.auditBestEffort(ctx, ActionRefreshFailed, entity.Key, batchID, err.Error())
			continue
		}
		stats.Refreshed++
	}

	logger.Info().
		Int("refreshed", stats.Refreshed).
		Int("failed", stats.Failed).
		Msg("Stale entity refresh complete")
	return stats, nil
}

func (s *Store) refreshOne(ctx context.Context, searcher Searcher, entity *StoredEntity, batchID string) error {
	result, err := searcher.Search(ctx, entity.Query())
	if err != nil {
		return errors.NewRefreshError(entity.Key, err)
	}

	// Keep only the result entity that is the same company; a broad name
	// requery can drag in neighbors that belong to other registry rows.
	fresh := matchingEntity(result, entity)
	if fresh == nil {
		return errors.NewRefreshError(entity.Key, errors.ErrNotFound)
	}

	narrowed := &company.Result{
		Query:    result.Query,
		Entities: []company.Entity{*fresh},
		Meta:     result.Meta,
	}
	if _, err := s.Persist(ctx, narrowed, batchID); err != nil {
		return errors.NewRefreshError(entity.Key, err)
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		return s.appendAudit(ctx, tx, ActionEntityRefreshed, entity.Key, batchID, "")
	})
}

// matchingEntity finds the result entity with the same registry key.
func matchingEntity(result *company.Result, stored *StoredEntity) *company.Entity {
	for i := range result.Entities {
		if result.Entities[i].Key() == stored.Key {
			return &result.Entities[i]
		}
	}
	return nil
}
