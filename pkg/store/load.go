package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/agentstation/utc"

	"github.com/opencorpdata/corpmap/pkg/company"
	"github.com/opencorpdata/corpmap/pkg/errors"
)

const entityColumns = `key, entity_id, brno, crno, canonical_name,
    name_variants, confidence, match_level, sources, last_fetched_at,
    refresh_due_at, is_stale, batch_id, created_at, updated_at`

// LoadEntity finds the stored entity for a query's identifiers, brno
// first. With allowStale false, a stale or refresh-due entity is treated
// as a miss so the caller refetches instead of serving outdated data.
func (s *Store) LoadEntity(ctx context.Context, query company.Query, allowStale bool) (*StoredEntity, error) {
	var (
		entity *StoredEntity
		err    error
	)
	switch {
	case query.BRNO != "":
		entity, err = s.loadBy(ctx, "brno", query.BRNO)
	case query.CRNO != "":
		entity, err = s.loadBy(ctx, "crno", query.CRNO)
	default:
		return nil, errors.NewValidationError("query", query, "an identifier is required to load an entity")
	}
	if err != nil {
		return nil, err
	}

	if !allowStale && (entity.IsStale || entity.RefreshDueAt.Before(utc.Now())) {
		return nil, errors.NewNotFoundError("entity", entity.Key)
	}
	return entity, nil
}

func (s *Store) loadBy(ctx context.Context, column, value string) (*StoredEntity, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+entityColumns+" FROM entity_registry WHERE "+column+" = ? LIMIT 1",
		value,
	)
	entity, err := scanEntity(row)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFoundError("entity", column+":"+value)
	}
	return entity, err
}

// GetByKey returns the stored entity with the exact registry key.
func (s *Store) GetByKey(ctx context.Context, key string) (*StoredEntity, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+entityColumns+" FROM entity_registry WHERE key = ?", key)
	entity, err := scanEntity(row)
	if err == sql.ErrNoRows {
		return nil, errors.NewNotFoundError("entity", key)
	}
	return entity, err
}

// ListStale returns every entity flagged stale or past its refresh due
// time, oldest first.
func (s *Store) ListStale(ctx context.Context) ([]StoredEntity, error) {
	now := time.Now().UTC().Format(time.RFC3339Nano)
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+entityColumns+
			" FROM entity_registry WHERE is_stale = 1 OR refresh_due_at <= ? ORDER BY refresh_due_at",
		now,
	)
	if err != nil {
		return nil, errors.WrapStore("query", "entity_registry", "", err)
	}
	defer func() { _ = rows.Close() }()

	var entities []StoredEntity
	for rows.Next() {
		entity, err := scanEntity(rows)
		if err != nil {
			return nil, err
		}
		entities = append(entities, *entity)
	}
	return entities, rows.Err()
}

// Count returns the number of registered entities.
func (s *Store) Count(ctx context.Context) (int, error) {
	var count int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(1) FROM entity_registry").Scan(&count)
	if err != nil {
		return 0, errors.WrapStore("scan", "entity_registry", "", err)
	}
	return count, nil
}

// Snapshots returns an entity's snapshots, optionally only the current
// ones, most recent first.
func (s *Store) Snapshots(ctx context.Context, entityKey string, currentOnly bool) ([]Snapshot, error) {
	query := `SELECT id, entity_key, source, brno, crno, company_name,
        address, representative, industry_code, raw_json, fetched_at,
        is_current, overwritten
        FROM source_snapshots WHERE entity_key = ?`
	if currentOnly {
		query += " AND is_current = 1"
	}
	query += " ORDER BY fetched_at DESC, id DESC"

	rows, err := s.db.QueryContext(ctx, query, entityKey)
	if err != nil {
		return nil, errors.WrapStore("query", "source_snapshots", entityKey, err)
	}
	defer func() { _ = rows.Close() }()

	var snapshots []Snapshot
	for rows.Next() {
		var (
			snap      Snapshot
			source    string
			rawJSON   string
			fetchedAt string
		)
		if err := rows.Scan(&snap.ID, &snap.EntityKey, &source,
			&snap.Record.BRNO, &snap.Record.CRNO, &snap.Record.CompanyName,
			&snap.Record.Address, &snap.Record.Representative,
			&snap.Record.IndustryCode, &rawJSON, &fetchedAt,
			&snap.IsCurrent, &snap.Overwritten); err != nil {
			return nil, errors.WrapStore("scan", "source_snapshots", entityKey, err)
		}
		snap.Record.Source = company.SourceID(source)
		if rawJSON != "" && rawJSON != "{}" && rawJSON != "null" {
			if err := json.Unmarshal([]byte(rawJSON), &snap.Record.Raw); err != nil {
				return nil, errors.WrapStore("unmarshal", "source_snapshots", entityKey, err)
			}
		}
		snap.FetchedAt = parseTimestamp(fetchedAt)
		snapshots = append(snapshots, snap)
	}
	return snapshots, rows.Err()
}

// Diff classifies, per source, how a freshly resolved entity differs from
// its stored snapshots: sources newly reporting, sources whose fields
// changed, sources that stopped reporting, and sources unchanged.
func (s *Store) Diff(ctx context.Context, stored *StoredEntity, live *company.Entity) (*SourceDiff, error) {
	snapshots, err := s.Snapshots(ctx, stored.Key, true)
	if err != nil {
		return nil, err
	}

	storedBySource := make(map[company.SourceID]company.SourceRecord, len(snapshots))
	for _, snap := range snapshots {
		storedBySource[snap.Record.Source] = snap.Record
	}

	diff := &SourceDiff{}
	seen := make(map[company.SourceID]bool, len(live.Members))
	for _, rec := range live.Members {
		seen[rec.Source] = true
		prev, ok := storedBySource[rec.Source]
		switch {
		case !ok:
			diff.Added = append(diff.Added, rec.Source)
		case recordChanged(prev, rec):
			diff.Updated = append(diff.Updated, rec.Source)
		default:
			diff.Unchanged = append(diff.Unchanged, rec.Source)
		}
	}
	for source := range storedBySource {
		if !seen[source] {
			diff.Removed = append(diff.Removed, source)
		}
	}
	return diff, nil
}

// recordChanged compares the standardized fields of two records. Raw
// payload differences alone do not count as a change.
func recordChanged(a, b company.SourceRecord) bool {
	return a.BRNO != b.BRNO ||
		a.CRNO != b.CRNO ||
		a.CompanyName != b.CompanyName ||
		a.Address != b.Address ||
		a.Representative != b.Representative ||
		a.IndustryCode != b.IndustryCode
}

// scanner covers *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanEntity(row scanner) (*StoredEntity, error) {
	var (
		entity       StoredEntity
		matchLevel   string
		variantsJSON string
		sourcesJSON  string
		lastFetched  string
		refreshDue   string
		createdAt    string
		updatedAt    string
	)
	err := row.Scan(&entity.Key, &entity.EntityID, &entity.BRNO, &entity.CRNO,
		&entity.CanonicalName, &variantsJSON, &entity.Confidence, &matchLevel,
		&sourcesJSON, &lastFetched, &refreshDue, &entity.IsStale,
		&entity.BatchID, &createdAt, &updatedAt)
	if err == sql.ErrNoRows {
		return nil, err
	}
	if err != nil {
		return nil, errors.WrapStore("scan", "entity_registry", "", err)
	}

	entity.MatchLevel = company.MatchLevel(matchLevel)
	if err := json.Unmarshal([]byte(variantsJSON), &entity.NameVariants); err != nil {
		return nil, errors.WrapStore("unmarshal", "entity_registry", entity.Key, err)
	}
	if err := json.Unmarshal([]byte(sourcesJSON), &entity.Sources); err != nil {
		return nil, errors.WrapStore("unmarshal", "entity_registry", entity.Key, err)
	}
	entity.LastFetchedAt = parseTimestamp(lastFetched)
	entity.RefreshDueAt = parseTimestamp(refreshDue)
	entity.CreatedAt = parseTimestamp(createdAt)
	entity.UpdatedAt = parseTimestamp(updatedAt)
	return &entity, nil
}

// parseTimestamp reads an RFC3339Nano column value, returning the zero
// time for anything unparseable rather than failing the whole scan.
func parseTimestamp(value string) utc.Time {
	t, err := time.Parse(time.RFC3339Nano, value)
	if err != nil {
		return utc.Time{}
	}
	return utc.New(t)
}
