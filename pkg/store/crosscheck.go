package store

import (
	"context"
	"database/sql"
	"strings"

	"github.com/opencorpdata/corpmap/pkg/company"
	"github.com/opencorpdata/corpmap/pkg/errors"
	"github.com/opencorpdata/corpmap/pkg/normalize"
)

// nameConflictFloor is the similarity below which two sources' names for
// the same entity count as a conflict rather than formatting drift.
const nameConflictFloor = 0.60

// Cross-checked fields.
const (
	FieldCompanyName    = "company_name"
	FieldAddress        = "address"
	FieldRepresentative = "representative"
	FieldIndustryCode   = "industry_code"
)

// recomputeCrossChecks rebuilds all pairwise field comparisons for an
// entity from its current snapshots. Comparisons are recomputed wholesale
// on every snapshot change; stale comparison rows never survive a persist.
func (s *Store) recomputeCrossChecks(ctx context.Context, tx *sql.Tx, entityKey, timestamp string) (int, error) {
	if _, err := tx.ExecContext(ctx,
		"DELETE FROM crosscheck_conflicts WHERE entity_key = ?", entityKey,
	); err != nil {
		return 0, errors.WrapStore("delete", "crosscheck_conflicts", entityKey, err)
	}

	snapshots, err := currentSnapshots(ctx, tx, entityKey)
	if err != nil {
		return 0, err
	}

	conflicts := 0
	for i := 0; i < len(snapshots); i++ {
		for j := i + 1; j < len(snapshots); j++ {
			for _, cmp := range compareSnapshots(&snapshots[i], &snapshots[j]) {
				if _, err := tx.ExecContext(ctx,
					`INSERT INTO crosscheck_conflicts (
                        entity_key, field, source_a, source_b, value_a,
                        value_b, similarity, is_conflict, checked_at
                    ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
					entityKey, cmp.Field, string(cmp.SourceA), string(cmp.SourceB),
					cmp.ValueA, cmp.ValueB, cmp.Similarity, cmp.IsConflict, timestamp,
				); err != nil {
					return conflicts, errors.WrapStore("insert", "crosscheck_conflicts", entityKey, err)
				}
				if cmp.IsConflict {
					conflicts++
				}
			}
		}
	}
	return conflicts, nil
}

// compareSnapshots yields one comparison per field both sources reported.
// A field only one side knows is not comparable and produces nothing.
func compareSnapshots(a, b *company.SourceRecord) []Conflict {
	comparisons := make([]Conflict, 0, 4)

	add := func(field, va, vb string, similarity float64, conflict bool) {
		comparisons = append(comparisons, Conflict{
			Field:      field,
			SourceA:    a.Source,
			SourceB:    b.Source,
			ValueA:     va,
			ValueB:     vb,
			Similarity: similarity,
			IsConflict: conflict,
		})
	}

	if a.CompanyName != "" && b.CompanyName != "" {
		sim := normalize.NameSimilarity(a.CompanyName, b.CompanyName)
		add(FieldCompanyName, a.CompanyName, b.CompanyName, sim, sim < nameConflictFloor)
	}
	if a.Address != "" && b.Address != "" {
		equal := foldSpace(a.Address) == foldSpace(b.Address)
		add(FieldAddress, a.Address, b.Address, boolScore(equal), !equal)
	}
	if a.Representative != "" && b.Representative != "" {
		equal := foldSpace(a.Representative) == foldSpace(b.Representative)
		add(FieldRepresentative, a.Representative, b.Representative, boolScore(equal), !equal)
	}
	if a.IndustryCode != "" && b.IndustryCode != "" {
		equal := strings.TrimSpace(a.IndustryCode) == strings.TrimSpace(b.IndustryCode)
		add(FieldIndustryCode, a.IndustryCode, b.IndustryCode, boolScore(equal), !equal)
	}
	return comparisons
}

func foldSpace(s string) string {
	return strings.Join(strings.Fields(s), " ")
}

func boolScore(equal bool) float64 {
	if equal {
		return 1.0
	}
	return 0
}

// currentSnapshots reads the current snapshot records for an entity inside
// a transaction.
func currentSnapshots(ctx context.Context, tx *sql.Tx, entityKey string) ([]company.SourceRecord, error) {
	rows, err := tx.QueryContext(ctx,
		`SELECT source, brno, crno, company_name, address, representative, industry_code
         FROM source_snapshots WHERE entity_key = ? AND is_current = 1
         ORDER BY source`,
		entityKey,
	)
	if err != nil {
		return nil, errors.WrapStore("query", "source_snapshots", entityKey, err)
	}
	defer func() { _ = rows.Close() }()

	var records []company.SourceRecord
	for rows.Next() {
		var rec company.SourceRecord
		var source string
		if err := rows.Scan(&source, &rec.BRNO, &rec.CRNO, &rec.CompanyName,
			&rec.Address, &rec.Representative, &rec.IndustryCode); err != nil {
			return nil, errors.WrapStore("scan", "source_snapshots", entityKey, err)
		}
		rec.Source = company.SourceID(source)
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Conflicts returns the stored comparisons for one entity, conflicts first.
func (s *Store) Conflicts(ctx context.Context, entityKey string) ([]Conflict, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, entity_key, field, source_a, source_b, value_a, value_b,
                similarity, is_conflict, checked_at
         FROM crosscheck_conflicts WHERE entity_key = ?
         ORDER BY is_conflict DESC, field, source_a, source_b`,
		entityKey,
	)
	if err != nil {
		return nil, errors.WrapStore("query", "crosscheck_conflicts", entityKey, err)
	}
	defer func() { _ = rows.Close() }()

	var conflicts []Conflict
	for rows.Next() {
		c, err := scanConflict(rows)
		if err != nil {
			return nil, err
		}
		conflicts = append(conflicts, c)
	}
	return conflicts, rows.Err()
}

// CrossCheckAudit summarizes source disagreement across the registry.
func (s *Store) CrossCheckAudit(ctx context.Context) (*AuditSummary, error) {
	summary := &AuditSummary{}

	if err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(DISTINCT entity_key) FROM crosscheck_conflicts",
	).Scan(&summary.EntitiesChecked); err != nil {
		return nil, errors.WrapStore("scan", "crosscheck_conflicts", "", err)
	}
	if err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(DISTINCT entity_key) FROM crosscheck_conflicts WHERE is_conflict = 1",
	).Scan(&summary.EntitiesWithConflicts); err != nil {
		return nil, errors.WrapStore("scan", "crosscheck_conflicts", "", err)
	}
	if err := s.db.QueryRowContext(ctx,
		"SELECT COUNT(1) FROM crosscheck_conflicts WHERE is_conflict = 1",
	).Scan(&summary.TotalConflicts); err != nil {
		return nil, errors.WrapStore("scan", "crosscheck_conflicts", "", err)
	}
	return summary, nil
}

func scanConflict(rows *sql.Rows) (Conflict, error) {
	var c Conflict
	var sourceA, sourceB, checkedAt string
	if err := rows.Scan(&c.ID, &c.EntityKey, &c.Field, &sourceA, &sourceB,
		&c.ValueA, &c.ValueB, &c.Similarity, &c.IsConflict, &checkedAt); err != nil {
		return Conflict{}, errors.WrapStore("scan", "crosscheck_conflicts", "", err)
	}
	c.SourceA = company.SourceID(sourceA)
	c.SourceB = company.SourceID(sourceB)
	c.CheckedAt = parseTimestamp(checkedAt)
	return c, nil
}
