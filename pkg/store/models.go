package store

import (
	"github.com/agentstation/utc"

	"github.com/opencorpdata/corpmap/pkg/company"
)

// StoredEntity is one row of the entity registry: a resolved company plus
// its staleness bookkeeping.
type StoredEntity struct {
	Key           string             `json:"key"`
	EntityID      string             `json:"entity_id"`
	BRNO          string             `json:"brno,omitempty"`
	CRNO          string             `json:"crno,omitempty"`
	CanonicalName string             `json:"canonical_name"`
	NameVariants  []string           `json:"name_variants,omitempty"`
	Confidence    float64            `json:"confidence"`
	MatchLevel    company.MatchLevel `json:"match_level"`
	Sources       []company.SourceID `json:"sources"`
	LastFetchedAt utc.Time           `json:"last_fetched_at"`
	RefreshDueAt  utc.Time           `json:"refresh_due_at"`
	IsStale       bool               `json:"is_stale"`
	BatchID       string             `json:"batch_id,omitempty"`
	CreatedAt     utc.Time           `json:"created_at"`
	UpdatedAt     utc.Time           `json:"updated_at"`
}

// Query reconstructs the identifier query that would refetch this entity.
func (e *StoredEntity) Query() company.Query {
	return company.Query{
		BRNO:        e.BRNO,
		CRNO:        e.CRNO,
		CompanyName: e.CanonicalName,
	}
}

// Snapshot is what one source reported for one entity at one fetch.
// Superseded snapshots stay in the table with is_current cleared.
type Snapshot struct {
	ID          int64                `json:"id"`
	EntityKey   string               `json:"entity_key"`
	Record      company.SourceRecord `json:"record"`
	FetchedAt   utc.Time             `json:"fetched_at"`
	IsCurrent   bool                 `json:"is_current"`
	Overwritten bool                 `json:"overwritten"`
}

// Conflict is one cross-source field comparison for an entity. All pairwise
// comparisons are stored; IsConflict marks the ones that disagree.
type Conflict struct {
	ID         int64            `json:"id"`
	EntityKey  string           `json:"entity_key"`
	Field      string           `json:"field"`
	SourceA    company.SourceID `json:"source_a"`
	SourceB    company.SourceID `json:"source_b"`
	ValueA     string           `json:"value_a"`
	ValueB     string           `json:"value_b"`
	Similarity float64          `json:"similarity"`
	IsConflict bool             `json:"is_conflict"`
	CheckedAt  utc.Time         `json:"checked_at"`
}

// AuditEntry is one append-only audit log row.
type AuditEntry struct {
	ID        int64    `json:"id"`
	Action    string   `json:"action"`
	EntityKey string   `json:"entity_key,omitempty"`
	BatchID   string   `json:"batch_id,omitempty"`
	Detail    string   `json:"detail,omitempty"`
	CreatedAt utc.Time `json:"created_at"`
}

// Audit actions.
const (
	ActionEntityAdded     = "entity_added"
	ActionEntityUpdated   = "entity_updated"
	ActionEntityRefreshed = "entity_refreshed"
	ActionRefreshFailed   = "refresh_failed"
	ActionMarkedStale     = "marked_stale"
)

// PersistStats summarizes one Persist call.
type PersistStats struct {
	EntitiesAdded    int `json:"entities_added"`
	EntitiesUpdated  int `json:"entities_updated"`
	SnapshotsWritten int `json:"snapshots_written"`
	ConflictsFound   int `json:"conflicts_found"`
}

// RefreshStats summarizes one RefreshStale run.
type RefreshStats struct {
	Refreshed int `json:"refreshed"`
	Failed    int `json:"failed"`
}

// AuditSummary summarizes the cross-check state of the whole registry.
type AuditSummary struct {
	EntitiesChecked       int `json:"entities_checked"`
	EntitiesWithConflicts int `json:"entities_with_conflicts"`
	TotalConflicts        int `json:"total_conflicts"`
}

// SourceDiff classifies, per source, how a live entity differs from what
// is stored for it.
type SourceDiff struct {
	Added     []company.SourceID `json:"added,omitempty"`
	Updated   []company.SourceID `json:"updated,omitempty"`
	Removed   []company.SourceID `json:"removed,omitempty"`
	Unchanged []company.SourceID `json:"unchanged,omitempty"`
}

// Empty reports whether the diff carries no changes at all.
func (d *SourceDiff) Empty() bool {
	return len(d.Added) == 0 && len(d.Updated) == 0 && len(d.Removed) == 0
}
