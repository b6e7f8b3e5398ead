package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"strings"
	"time"

	"github.com/opencorpdata/corpmap/pkg/company"
	"github.com/opencorpdata/corpmap/pkg/errors"
	"github.com/opencorpdata/corpmap/pkg/logging"
)

// Persist writes all entities of a query result in a single transaction:
// registry upserts, new current snapshots (previous ones marked
// overwritten), recomputed cross-checks, and audit rows. The write is
// all-or-nothing; on failure any pre-existing rows for the batch's
// entities are re-marked stale so the next refresh retries them.
func (s *Store) Persist(ctx context.Context, result *company.Result, batchID string) (*PersistStats, error) {
	if result == nil {
		return nil, errors.NewValidationError("result", nil, "result is required")
	}

	stats := &PersistStats{}
	keys := make([]string, 0, len(result.Entities))
	for i := range result.Entities {
		keys = append(keys, result.Entities[i].Key())
	}

	err := s.withTx(ctx, func(tx *sql.Tx) error {
		for i := range result.Entities {
			if err := s.persistEntity(ctx, tx, &result.Entities[i], batchID, stats); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		s.markStaleBestEffort(ctx, keys)
		return nil, err
	}

	logging.FromContext(ctx).Info().
		Str("batch_id", batchID).
		Int("added", stats.EntitiesAdded).
		Int("updated", stats.EntitiesUpdated).
		Int("snapshots", stats.SnapshotsWritten).
		Int("conflicts", stats.ConflictsFound).
		Msg("Persisted query result")
	return stats, nil
}

func (s *Store) persistEntity(ctx context.Context, tx *sql.Tx, entity *company.Entity, batchID string, stats *PersistStats) error {
	key := entity.Key()
	now := time.Now().UTC()
	timestamp := now.Format(time.RFC3339Nano)
	due := now.Add(s.refreshInterval).Format(time.RFC3339Nano)

	var exists int
	if err := tx.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM entity_registry WHERE key = ?", key,
	).Scan(&exists); err != nil {
		return errors.WrapStore("scan", "entity_registry", key, err)
	}

	variants, err := json.Marshal(entity.NameVariants)
	if err != nil {
		return errors.WrapStore("marshal", "entity_registry", key, err)
	}
	sourceList, err := json.Marshal(entity.Sources)
	if err != nil {
		return errors.WrapStore("marshal", "entity_registry", key, err)
	}

	if exists == 0 {
		_, err = tx.ExecContext(ctx,
			`INSERT INTO entity_registry (
                key, entity_id, brno, crno, canonical_name, name_variants,
                confidence, match_level, sources, last_fetched_at,
                refresh_due_at, is_stale, batch_id, created_at, updated_at
            ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 0, ?, ?, ?)`,
			key, entity.ID, entity.Identifiers.BRNO, entity.Identifiers.CRNO,
			entity.CanonicalName, string(variants), entity.Confidence,
			string(entity.MatchLevel), string(sourceList),
			timestamp, due, batchID, timestamp, timestamp,
		)
		if err != nil {
			return errors.WrapStore("insert", "entity_registry", key, err)
		}
		stats.EntitiesAdded++
		if err := s.appendAudit(ctx, tx, ActionEntityAdded, key, batchID, entity.CanonicalName); err != nil {
			return err
		}
	} else {
		_, err = tx.ExecContext(ctx,
			`UPDATE entity_registry SET
                entity_id = ?, brno = ?, crno = ?, canonical_name = ?,
                name_variants = ?, confidence = ?, match_level = ?,
                sources = ?, last_fetched_at = ?, refresh_due_at = ?,
                is_stale = 0, batch_id = ?, updated_at = ?
            WHERE key = ?`,
			entity.ID, entity.Identifiers.BRNO, entity.Identifiers.CRNO,
			entity.CanonicalName, string(variants), entity.Confidence,
			string(entity.MatchLevel), string(sourceList),
			timestamp, due, batchID, timestamp, key,
		)
		if err != nil {
			return errors.WrapStore("update", "entity_registry", key, err)
		}
		stats.EntitiesUpdated++
		if err := s.appendAudit(ctx, tx, ActionEntityUpdated, key, batchID, entity.CanonicalName); err != nil {
			return err
		}
	}

	written, err := s.writeSnapshots(ctx, tx, key, entity.Members, timestamp)
	if err != nil {
		return err
	}
	stats.SnapshotsWritten += written

	conflicts, err := s.recomputeCrossChecks(ctx, tx, key, timestamp)
	if err != nil {
		return err
	}
	stats.ConflictsFound += conflicts
	return nil
}

// writeSnapshots supersedes each source's current snapshot and inserts the
// fresh one. Old rows are kept with is_current cleared and overwritten set.
func (s *Store) writeSnapshots(ctx context.Context, tx *sql.Tx, entityKey string, members []company.SourceRecord, timestamp string) (int, error) {
	written := 0
	for i := range members {
		rec := &members[i]

		if _, err := tx.ExecContext(ctx,
			`UPDATE source_snapshots SET is_current = 0, overwritten = 1
             WHERE entity_key = ? AND source = ? AND is_current = 1`,
			entityKey, string(rec.Source),
		); err != nil {
			return written, errors.WrapStore("supersede", "source_snapshots", entityKey, err)
		}

		raw, err := json.Marshal(rec.Raw)
		if err != nil {
			return written, errors.WrapStore("marshal", "source_snapshots", entityKey, err)
		}

		if _, err := tx.ExecContext(ctx,
			`INSERT INTO source_snapshots (
                entity_key, source, brno, crno, company_name, address,
                representative, industry_code, raw_json, fetched_at,
                is_current, overwritten
            ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, 1, 0)`,
			entityKey, string(rec.Source), rec.BRNO, rec.CRNO,
			rec.CompanyName, rec.Address, rec.Representative,
			rec.IndustryCode, string(raw), timestamp,
		); err != nil {
			return written, errors.WrapStore("insert", "source_snapshots", entityKey, err)
		}
		written++
	}
	return written, nil
}

// MarkStale flags an entity so allowStale=false loads miss it and the next
// refresh run picks it up.
func (s *Store) MarkStale(ctx context.Context, entityKey string) error {
	res, err := s.db.ExecContext(ctx,
		"UPDATE entity_registry SET is_stale = 1 WHERE key = ?", entityKey)
	if err != nil {
		return errors.WrapStore("update", "entity_registry", entityKey, err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return errors.WrapStore("update", "entity_registry", entityKey, err)
	}
	if affected == 0 {
		return errors.NewNotFoundError("entity", entityKey)
	}
	return s.withTx(ctx, func(tx *sql.Tx) error {
		return s.appendAudit(ctx, tx, ActionMarkedStale, entityKey, "", "")
	})
}

// markStaleBestEffort re-flags entities after a failed persist or refresh.
// Errors are logged and swallowed: the caller already has the failure.
func (s *Store) markStaleBestEffort(ctx context.Context, keys []string) {
	if len(keys) == 0 {
		return
	}
	placeholders := strings.Repeat("?,", len(keys))
	args := make([]any, len(keys))
	for i, k := range keys {
		args[i] = k
	}
	_, err := s.db.ExecContext(ctx,
		"UPDATE entity_registry SET is_stale = 1 WHERE key IN ("+placeholders[:len(placeholders)-1]+")",
		args...,
	)
	if err != nil {
		logging.FromContext(ctx).Warn().Err(err).Msg("Failed to mark entities stale after persist failure")
	}
}

// withTx runs fn inside a transaction, rolling back on error.
func (s *Store) withTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.WrapStore("begin", "", "", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return errors.WrapStore("commit", "", "", err)
	}
	return nil
}
