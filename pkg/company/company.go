// Package company defines the core domain types for the corpmap system:
// raw records as returned by individual data sources, resolved entities,
// and the query/result shapes exchanged with the orchestrator.
package company

import (
	"fmt"
	"strings"
)

// SourceID identifies a single data source (adapter).
type SourceID string

// String returns the string representation of a source ID.
func (id SourceID) String() string {
	return string(id)
}

// Identifiers holds the two registration numbers a Korean company may carry.
// Either may be empty; an empty string means the identifier is unknown,
// never that it mismatches.
type Identifiers struct {
	BRNO string `json:"brno,omitempty" yaml:"brno,omitempty"` // business registration number (10 digits)
	CRNO string `json:"crno,omitempty" yaml:"crno,omitempty"` // corporation registration number (13 digits)
}

// SourceRecord is one source's standardized answer about a company.
// Records are ephemeral: they are produced by an adapter's response
// extractor, fed to the resolution engine, and flattened into a source
// snapshot at persistence time.
type SourceRecord struct {
	Source         SourceID       `json:"source"`
	BRNO           string         `json:"brno,omitempty"`
	CRNO           string         `json:"crno,omitempty"`
	CompanyName    string         `json:"company_name,omitempty"`
	Address        string         `json:"address,omitempty"`
	Representative string         `json:"representative,omitempty"`
	IndustryCode   string         `json:"industry_code,omitempty"`
	Raw            map[string]any `json:"raw,omitempty"` // opaque payload from the adapter
}

// MatchLevel is the coarse confidence bucket derived from an entity's
// numeric confidence score.
type MatchLevel string

const (
	// MatchLevelMatch indicates confidence >= 0.80.
	MatchLevelMatch MatchLevel = "MATCH"
	// MatchLevelProbable indicates confidence >= 0.60.
	MatchLevelProbable MatchLevel = "PROBABLE"
	// MatchLevelNoMatch indicates confidence < 0.60.
	MatchLevelNoMatch MatchLevel = "NO_MATCH"
)

// Entity is the resolved, canonical representation of one real-world
// company, clustering evidence from multiple sources.
type Entity struct {
	ID            string         `json:"entity_id"`
	Confidence    float64        `json:"confidence"`
	MatchLevel    MatchLevel     `json:"match_level"`
	Identifiers   Identifiers    `json:"identifiers"`
	CanonicalName string         `json:"canonical_name"`
	NameVariants  []string       `json:"name_variants,omitempty"`
	Sources       []SourceID     `json:"sources"`
	Members       []SourceRecord `json:"members,omitempty"`
}

// Key returns the stable persistence key for the entity, derived from its
// primary identifier. Repeated resolutions of the same company converge on
// the same key.
func (e *Entity) Key() string {
	if e.Identifiers.BRNO != "" {
		return "brno:" + e.Identifiers.BRNO
	}
	if e.Identifiers.CRNO != "" {
		return "crno:" + e.Identifiers.CRNO
	}
	return "entity:" + e.ID
}

// Query is a partial identity supplied by the caller. At least one field
// must be set for an orchestrated search to do anything useful.
type Query struct {
	BRNO        string `json:"brno,omitempty"`
	CRNO        string `json:"crno,omitempty"`
	CompanyName string `json:"company_name,omitempty"`
}

// IsZero reports whether no query field is set.
func (q Query) IsZero() bool {
	return q.BRNO == "" && q.CRNO == "" && q.CompanyName == ""
}

// CacheKey returns a composite string key for the query, used by the
// orchestrator's result cache.
func (q Query) CacheKey() string {
	return strings.Join([]string{q.BRNO, q.CRNO, q.CompanyName}, "|")
}

// String returns a short human-readable form for logging.
func (q Query) String() string {
	parts := make([]string, 0, 3)
	if q.BRNO != "" {
		parts = append(parts, "brno="+q.BRNO)
	}
	if q.CRNO != "" {
		parts = append(parts, "crno="+q.CRNO)
	}
	if q.CompanyName != "" {
		parts = append(parts, "name="+q.CompanyName)
	}
	if len(parts) == 0 {
		return "(empty)"
	}
	return strings.Join(parts, " ")
}

// Resolution is the output of the resolution engine: clustered entities
// plus the records that could not be attached to any cluster.
type Resolution struct {
	Entities  []Entity       `json:"entities"`
	Unmatched []SourceRecord `json:"unmatched"`
}

// Result is the orchestrator's answer to a query.
type Result struct {
	Query     Query          `json:"query"`
	Entities  []Entity       `json:"entities"`
	Unmatched []SourceRecord `json:"unmatched"`
	Meta      Meta           `json:"meta"`
}

// Entity returns the highest-confidence entity in the result, or nil when
// the result is empty.
func (r *Result) Entity() *Entity {
	if len(r.Entities) == 0 {
		return nil
	}
	best := &r.Entities[0]
	for i := range r.Entities[1:] {
		if r.Entities[i+1].Confidence > best.Confidence {
			best = &r.Entities[i+1]
		}
	}
	return best
}

// CallError records one failed adapter call.
type CallError struct {
	Source  SourceID `json:"source"`
	Phase   string   `json:"phase"`
	Message string   `json:"message"`
}

// Error implements the error interface.
func (e CallError) Error() string {
	return fmt.Sprintf("%s (%s): %s", e.Source, e.Phase, e.Message)
}

// Meta carries accounting data for one orchestrated query.
type Meta struct {
	Attempted int            `json:"apis_attempted"`
	Succeeded int            `json:"apis_succeeded"`
	Failed    int            `json:"apis_failed"`
	Errors    []CallError    `json:"errors,omitempty"`
	Timing    map[string]int `json:"timing_ms,omitempty"` // per-phase wall time in milliseconds
	CacheHit  bool           `json:"cache_hit"`
}
