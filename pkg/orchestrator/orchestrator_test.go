package orchestrator

import (
	"context"
	"encoding/json"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opencorpdata/corpmap/internal/bulkindex"
	"github.com/opencorpdata/corpmap/pkg/company"
	"github.com/opencorpdata/corpmap/pkg/errors"
	"github.com/opencorpdata/corpmap/pkg/sources"
)

// stubAdapter is a minimal in-memory Adapter for orchestration tests.
type stubAdapter struct {
	id      company.SourceID
	keyType sources.KeyType
	pattern sources.Pattern
}

func (s *stubAdapter) ID() company.SourceID    { return s.id }
func (s *stubAdapter) Name() string            { return string(s.id) }
func (s *stubAdapter) KeyType() sources.KeyType { return s.keyType }
func (s *stubAdapter) Pattern() sources.Pattern { return s.pattern }

func (s *stubAdapter) BuildRequest(key string) (*sources.Request, error) {
	return &sources.Request{
		URL:    "https://example.test/" + string(s.id),
		Method: "GET",
		Params: map[string]string{"key": key},
	}, nil
}

func (s *stubAdapter) Extract(payload []byte) ([]company.SourceRecord, error) {
	var records []company.SourceRecord
	if err := json.Unmarshal(payload, &records); err != nil {
		return nil, errors.WrapParse("json", string(s.id), err)
	}
	return records, nil
}

// stubCaller answers transport calls from a response function and tracks
// concurrency so tests can assert the in-flight bound.
type stubCaller struct {
	mu          sync.Mutex
	calls       int
	inflight    int32
	maxInflight int32
	delay       time.Duration
	respond     func(sourceID string, req *sources.Request) ([]byte, error)
}

func (c *stubCaller) Do(_ context.Context, sourceID string, req *sources.Request) ([]byte, error) {
	current := atomic.AddInt32(&c.inflight, 1)
	defer atomic.AddInt32(&c.inflight, -1)
	for {
		max := atomic.LoadInt32(&c.maxInflight)
		if current <= max || atomic.CompareAndSwapInt32(&c.maxInflight, max, current) {
			break
		}
	}

	c.mu.Lock()
	c.calls++
	c.mu.Unlock()

	if c.delay > 0 {
		time.Sleep(c.delay)
	}
	return c.respond(sourceID, req)
}

func (c *stubCaller) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

func recordsPayload(t *testing.T, records ...company.SourceRecord) []byte {
	t.Helper()
	payload, err := json.Marshal(records)
	require.NoError(t, err)
	return payload
}

func TestSearchRejectsEmptyQuery(t *testing.T) {
	o, err := New(sources.NewRegistry(), WithTransport(&stubCaller{
		respond: func(string, *sources.Request) ([]byte, error) { return []byte("[]"), nil },
	}))
	require.NoError(t, err)

	_, err = o.Search(context.Background(), company.Query{})
	assert.True(t, errors.IsValidationError(err))
}

func TestSearchDirectPhase(t *testing.T) {
	registry := sources.NewRegistry()
	registry.Register(&stubAdapter{id: "nts_status", keyType: sources.KeyBRNO, pattern: sources.PatternDirect})
	registry.Register(&stubAdapter{id: "legal_registry", keyType: sources.KeyCRNO, pattern: sources.PatternDirect})

	caller := &stubCaller{respond: func(sourceID string, req *sources.Request) ([]byte, error) {
		switch sourceID {
		case "nts_status":
			assert.Equal(t, "1248100998", req.Params["key"])
			return recordsPayload(t, company.SourceRecord{
				Source: "nts_status", BRNO: "1248100998", CompanyName: "삼성전자",
			}), nil
		default:
			t.Fatalf("unexpected source %s", sourceID)
			return nil, nil
		}
	}}

	o, err := New(registry, WithTransport(caller))
	require.NoError(t, err)

	result, err := o.Search(context.Background(), company.Query{BRNO: "1248100998"})
	require.NoError(t, err)

	// The crno-keyed adapter has no key to run with, so only one call.
	assert.Equal(t, 1, result.Meta.Attempted)
	assert.Equal(t, 1, result.Meta.Succeeded)
	require.Len(t, result.Entities, 1)
	assert.Equal(t, "1248100998", result.Entities[0].Identifiers.BRNO)
	assert.Equal(t, "삼성전자", result.Entities[0].CanonicalName)
}

func TestSearchCachesWholeQueries(t *testing.T) {
	registry := sources.NewRegistry()
	registry.Register(&stubAdapter{id: "nts_status", keyType: sources.KeyBRNO, pattern: sources.PatternDirect})

	caller := &stubCaller{respond: func(string, *sources.Request) ([]byte, error) {
		return recordsPayload(t, company.SourceRecord{Source: "nts_status", BRNO: "1248100998", CompanyName: "삼성전자"}), nil
	}}

	o, err := New(registry, WithTransport(caller))
	require.NoError(t, err)

	ctx := context.Background()
	query := company.Query{BRNO: "1248100998"}

	first, err := o.Search(ctx, query)
	require.NoError(t, err)
	assert.False(t, first.Meta.CacheHit)

	second, err := o.Search(ctx, query)
	require.NoError(t, err)
	assert.True(t, second.Meta.CacheHit)
	assert.Equal(t, first.Entities, second.Entities)
	assert.Equal(t, 1, caller.callCount(), "cached query must not hit sources again")

	// Invalidation forces the next search back to the sources.
	o.Invalidate(query)
	third, err := o.Search(ctx, query)
	require.NoError(t, err)
	assert.False(t, third.Meta.CacheHit)
	assert.Equal(t, 2, caller.callCount())
}

func TestSearchCacheTTLExpiry(t *testing.T) {
	registry := sources.NewRegistry()
	registry.Register(&stubAdapter{id: "nts_status", keyType: sources.KeyBRNO, pattern: sources.PatternDirect})

	caller := &stubCaller{respond: func(string, *sources.Request) ([]byte, error) {
		return recordsPayload(t, company.SourceRecord{Source: "nts_status", BRNO: "1248100998"}), nil
	}}

	o, err := New(registry, WithTransport(caller), WithCacheTTL(10*time.Millisecond))
	require.NoError(t, err)

	ctx := context.Background()
	query := company.Query{BRNO: "1248100998"}

	_, err = o.Search(ctx, query)
	require.NoError(t, err)

	time.Sleep(20 * time.Millisecond)

	result, err := o.Search(ctx, query)
	require.NoError(t, err)
	assert.False(t, result.Meta.CacheHit)
	assert.Equal(t, 2, caller.callCount())
}

// A query whose every source call fails must still return an empty result
// with the failures accounted for, not an error.
func TestSearchAllSourcesFailing(t *testing.T) {
	registry := sources.NewRegistry()
	registry.Register(&stubAdapter{id: "discovery_src", keyType: sources.KeyCompanyName, pattern: sources.PatternDiscovery})
	registry.Register(&stubAdapter{id: "dart_search", keyType: sources.KeyCompanyName, pattern: sources.PatternTwoStep})
	registry.Register(&stubAdapter{id: "fair_trade", keyType: sources.KeyCompanyName, pattern: sources.PatternReverse})

	caller := &stubCaller{respond: func(sourceID string, _ *sources.Request) ([]byte, error) {
		return nil, errors.NewAdapterError(sourceID, 502, "bad gateway")
	}}

	o, err := New(registry, WithTransport(caller))
	require.NoError(t, err)

	result, err := o.Search(context.Background(), company.Query{CompanyName: "삼성전자"})
	require.NoError(t, err)

	assert.Empty(t, result.Entities)
	assert.Empty(t, result.Unmatched)
	assert.Equal(t, 0, result.Meta.Succeeded)
	assert.Equal(t, result.Meta.Attempted, result.Meta.Failed)
	assert.NotEmpty(t, result.Meta.Errors)
}

// One failing source must not suppress results from the others.
func TestSearchPartialFailure(t *testing.T) {
	registry := sources.NewRegistry()
	registry.Register(&stubAdapter{id: "nts_status", keyType: sources.KeyBRNO, pattern: sources.PatternDirect})
	registry.Register(&stubAdapter{id: "fsc_info", keyType: sources.KeyBRNO, pattern: sources.PatternDirect})

	caller := &stubCaller{respond: func(sourceID string, _ *sources.Request) ([]byte, error) {
		if sourceID == "fsc_info" {
			return nil, errors.NewAdapterError(sourceID, 429, "rate limited")
		}
		return recordsPayload(t, company.SourceRecord{Source: "nts_status", BRNO: "1248100998", CompanyName: "삼성전자"}), nil
	}}

	o, err := New(registry, WithTransport(caller))
	require.NoError(t, err)

	result, err := o.Search(context.Background(), company.Query{BRNO: "1248100998"})
	require.NoError(t, err)

	assert.Equal(t, 1, result.Meta.Succeeded)
	assert.Equal(t, 1, result.Meta.Failed)
	require.Len(t, result.Meta.Errors, 1)
	assert.Equal(t, company.SourceID("fsc_info"), result.Meta.Errors[0].Source)
	require.Len(t, result.Entities, 1)
}

// The in-flight call count must never exceed the configured batch size,
// regardless of how many sources are registered.
func TestSearchBoundedConcurrency(t *testing.T) {
	registry := sources.NewRegistry()
	for _, id := range []string{
		"src_a", "src_b", "src_c", "src_d", "src_e",
		"src_f", "src_g", "src_h", "src_i", "src_j",
		"src_k", "src_l", "src_m", "src_n", "src_o",
	} {
		registry.Register(&stubAdapter{id: company.SourceID(id), keyType: sources.KeyBRNO, pattern: sources.PatternDirect})
	}

	caller := &stubCaller{
		delay: 20 * time.Millisecond,
		respond: func(string, *sources.Request) ([]byte, error) {
			return []byte("[]"), nil
		},
	}

	const batchSize = 3
	o, err := New(registry, WithTransport(caller), WithBatchSize(batchSize))
	require.NoError(t, err)

	result, err := o.Search(context.Background(), company.Query{BRNO: "1248100998"})
	require.NoError(t, err)

	assert.Equal(t, 15, result.Meta.Attempted)
	assert.LessOrEqual(t, atomic.LoadInt32(&caller.maxInflight), int32(batchSize))
	assert.Positive(t, atomic.LoadInt32(&caller.maxInflight))
}

func TestDiscoveryFillsMissingName(t *testing.T) {
	registry := sources.NewRegistry()
	registry.Register(&stubAdapter{id: "discovery_src", keyType: sources.KeyBRNO, pattern: sources.PatternDiscovery})
	registry.Register(&stubAdapter{id: "dart_search", keyType: sources.KeyCompanyName, pattern: sources.PatternTwoStep})

	caller := &stubCaller{respond: func(sourceID string, req *sources.Request) ([]byte, error) {
		switch sourceID {
		case "discovery_src":
			return recordsPayload(t, company.SourceRecord{
				Source: "discovery_src", BRNO: "1248100998", CRNO: "1301110006246", CompanyName: "삼성전자",
			}), nil
		case "dart_search":
			// The two-step phase only runs because discovery recovered the name.
			assert.Equal(t, "삼성전자", req.Params["key"])
			return recordsPayload(t, company.SourceRecord{
				Source: "dart_search", BRNO: "1248100998", CompanyName: "삼성전자(주)",
			}), nil
		}
		return []byte("[]"), nil
	}}

	o, err := New(registry, WithTransport(caller))
	require.NoError(t, err)

	result, err := o.Search(context.Background(), company.Query{BRNO: "1248100998"})
	require.NoError(t, err)

	assert.Equal(t, 2, result.Meta.Succeeded)
	require.Len(t, result.Entities, 1)
	// Discovery records enrich the query identity only; the collected
	// entity is built from the pattern-phase records.
	assert.Equal(t, []company.SourceID{"dart_search"}, result.Entities[0].Sources)
}

func TestDiscoveryFallsBackToBulkIndex(t *testing.T) {
	registry := sources.NewRegistry()
	registry.Register(&stubAdapter{id: "dart_search", keyType: sources.KeyCompanyName, pattern: sources.PatternTwoStep})

	idx := bulkindex.New(func(context.Context) ([]company.SourceRecord, error) {
		return []company.SourceRecord{
			{Source: "bulk_dataset", BRNO: "1248100998", CompanyName: "삼성전자"},
		}, nil
	})

	caller := &stubCaller{respond: func(sourceID string, req *sources.Request) ([]byte, error) {
		require.Equal(t, "dart_search", sourceID)
		assert.Equal(t, "삼성전자", req.Params["key"])
		return recordsPayload(t, company.SourceRecord{
			Source: "dart_search", BRNO: "1248100998", CompanyName: "삼성전자",
		}), nil
	}}

	o, err := New(registry, WithTransport(caller), WithBulkIndex(idx))
	require.NoError(t, err)

	result, err := o.Search(context.Background(), company.Query{BRNO: "1248100998"})
	require.NoError(t, err)
	require.Len(t, result.Entities, 1)
	// Bulk phase and two-step both contribute records for the same company.
	assert.Len(t, result.Entities[0].Sources, 2)
}

func TestTwoStepKeepsOnlyBestCandidate(t *testing.T) {
	registry := sources.NewRegistry()
	registry.Register(&stubAdapter{id: "dart_search", keyType: sources.KeyCompanyName, pattern: sources.PatternTwoStep})

	caller := &stubCaller{respond: func(string, *sources.Request) ([]byte, error) {
		return recordsPayload(t,
			company.SourceRecord{Source: "dart_search", BRNO: "9999999999", CompanyName: "삼성전자서비스"},
			company.SourceRecord{Source: "dart_search", BRNO: "1248100998", CompanyName: "삼성전자"},
			company.SourceRecord{Source: "dart_search", BRNO: "8888888888", CompanyName: "삼성전자판매"},
		), nil
	}}

	o, err := New(registry, WithTransport(caller))
	require.NoError(t, err)

	result, err := o.Search(context.Background(), company.Query{BRNO: "1248100998", CompanyName: "삼성전자"})
	require.NoError(t, err)

	require.Len(t, result.Entities, 1)
	assert.Equal(t, "1248100998", result.Entities[0].Identifiers.BRNO)
	assert.Equal(t, []company.SourceID{"dart_search"}, result.Entities[0].Sources)
}

func TestCandidateScore(t *testing.T) {
	tests := []struct {
		name  string
		query company.Query
		rec   company.SourceRecord
		want  float64
	}{
		{
			name:  "exact identifier and name",
			query: company.Query{BRNO: "1248100998", CompanyName: "삼성전자"},
			rec:   company.SourceRecord{BRNO: "124-81-00998", CompanyName: "삼성전자"},
			want:  1.0,
		},
		{
			name:  "identifier mismatch drags score below floor",
			query: company.Query{BRNO: "1248100998", CompanyName: "삼성전자"},
			rec:   company.SourceRecord{BRNO: "9999999999", CompanyName: "삼성전자"},
			want:  0.3,
		},
		{
			name:  "name-only query scored purely on similarity",
			query: company.Query{CompanyName: "삼성전자"},
			rec:   company.SourceRecord{CompanyName: "주식회사 삼성전자"},
			want:  1.0,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, candidateScore(tt.query, tt.rec), 0.001)
		})
	}
}

func TestGroupName(t *testing.T) {
	tests := []struct {
		company string
		want    string
	}{
		{"삼성전자", "삼성"},
		{"(주)삼성전기", "삼성"},
		{"현대모비스", "현대자동차"},
		{"대한통운시스템", "대한"}, // leading-substring fallback
		{"기아", "현대자동차"},
		{"ab", ""}, // too short for the heuristic
	}
	for _, tt := range tests {
		t.Run(tt.company, func(t *testing.T) {
			assert.Equal(t, tt.want, groupName(tt.company))
		})
	}
}

func TestReverseFiltersAffiliates(t *testing.T) {
	registry := sources.NewRegistry()
	registry.Register(&stubAdapter{id: "fair_trade", keyType: sources.KeyCompanyName, pattern: sources.PatternReverse})

	caller := &stubCaller{respond: func(sourceID string, req *sources.Request) ([]byte, error) {
		require.Equal(t, "fair_trade", sourceID)
		assert.Equal(t, "삼성", req.Params["key"], "reverse lookup keys by group name")
		return recordsPayload(t,
			company.SourceRecord{Source: "fair_trade", BRNO: "1248100998", CompanyName: "삼성전자"},
			company.SourceRecord{Source: "fair_trade", BRNO: "1111111111", CompanyName: "삼성물산"},
			company.SourceRecord{Source: "fair_trade", BRNO: "2222222222", CompanyName: "삼성생명보험"},
		), nil
	}}

	o, err := New(registry, WithTransport(caller))
	require.NoError(t, err)

	result, err := o.Search(context.Background(), company.Query{BRNO: "1248100998", CompanyName: "삼성전자"})
	require.NoError(t, err)

	// Only the affiliate whose identifier matches the query survives the
	// filter; sibling affiliates are discarded.
	require.Len(t, result.Entities, 1)
	assert.Equal(t, "1248100998", result.Entities[0].Identifiers.BRNO)
	assert.Empty(t, result.Unmatched)
}
