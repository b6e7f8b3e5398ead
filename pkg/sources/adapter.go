// Package sources defines the adapter registry for corpmap data sources.
// Each government or financial-disclosure source is described by an Adapter:
// how to build a request for a query key and how to extract standardized
// records from the raw response. The orchestrator is generic over this
// interface and never encodes source-specific URL or field logic itself.
package sources

import (
	"slices"

	"github.com/opencorpdata/corpmap/pkg/company"
)

// KeyType declares which query key an adapter is driven by.
type KeyType string

const (
	// KeyBRNO keys the adapter by business registration number.
	KeyBRNO KeyType = "brno"
	// KeyCRNO keys the adapter by corporation registration number.
	KeyCRNO KeyType = "crno"
	// KeyCompanyName keys the adapter by free-text company name.
	KeyCompanyName KeyType = "companyName"
	// KeyNone marks adapters that take no per-query key (bulk datasets).
	KeyNone KeyType = "none"
)

// KeyTypes returns all defined key types.
func KeyTypes() []KeyType {
	return []KeyType{KeyBRNO, KeyCRNO, KeyCompanyName, KeyNone}
}

// IsValid returns true if the key type is one of the defined constants.
func (k KeyType) IsValid() bool {
	return slices.Contains(KeyTypes(), k)
}

// Pattern names the query pattern a source is wired into.
type Pattern string

const (
	// PatternDirect is one call keyed directly by brno or crno.
	PatternDirect Pattern = "direct"
	// PatternTwoStep is search-by-name followed by weighted candidate selection.
	PatternTwoStep Pattern = "two_step"
	// PatternReverse queries by inferred group name and filters affiliates.
	PatternReverse Pattern = "reverse"
	// PatternBulk is served from an externally materialized bulk index.
	PatternBulk Pattern = "bulk"
	// PatternPhonetic tries generated name variants against sources that
	// mask part of the identifier in search results.
	PatternPhonetic Pattern = "phonetic"
	// PatternDiscovery marks sources used only for identity discovery.
	PatternDiscovery Pattern = "discovery"
)

// Request describes one HTTP call to a source endpoint.
type Request struct {
	URL    string
	Method string
	Params map[string]string // query string parameters
	Body   []byte            // optional JSON body for POST
}

// Adapter describes one data source. BuildRequest and Extract are data-driven
// (endpoint template plus field map); adapters hold no connection state and
// are safe for concurrent use.
type Adapter interface {
	// ID returns the unique adapter identifier.
	ID() company.SourceID

	// Name returns the human-readable source name.
	Name() string

	// KeyType returns the query key this adapter is driven by.
	KeyType() KeyType

	// Pattern returns the query pattern this adapter participates in.
	Pattern() Pattern

	// BuildRequest builds the HTTP request for the given query key.
	BuildRequest(key string) (*Request, error)

	// Extract parses a raw response payload into zero or more standardized
	// records. An empty slice means the response carried nothing usable.
	Extract(payload []byte) ([]company.SourceRecord, error)
}

// DetailFetcher is implemented by adapters whose search results carry an
// opaque sequence identifier that unlocks follow-up detail and time-series
// lookups (the multi-step phonetic pattern).
type DetailFetcher interface {
	// SequenceID extracts the opaque follow-up key from a search record.
	SequenceID(rec company.SourceRecord) (string, bool)

	// BuildDetailRequest builds the detail call for a sequence identifier.
	BuildDetailRequest(seq string) (*Request, error)

	// BuildSeriesRequest builds the time-series call for a sequence
	// identifier, or returns nil when the source has no series endpoint.
	BuildSeriesRequest(seq string) (*Request, error)
}
