package corpmap

import (
	"context"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opencorpdata/corpmap/internal/transport"
	"github.com/opencorpdata/corpmap/pkg/company"
	"github.com/opencorpdata/corpmap/pkg/errors"
	"github.com/opencorpdata/corpmap/pkg/sources"
	"github.com/opencorpdata/corpmap/pkg/store"
)

// stubAdapter is a minimal adapter for end-to-end client tests.
type stubAdapter struct {
	id      company.SourceID
	keyType sources.KeyType
	pattern sources.Pattern
	records []company.SourceRecord
}

func (s *stubAdapter) ID() company.SourceID     { return s.id }
func (s *stubAdapter) Name() string             { return string(s.id) }
func (s *stubAdapter) KeyType() sources.KeyType  { return s.keyType }
func (s *stubAdapter) Pattern() sources.Pattern  { return s.pattern }

func (s *stubAdapter) BuildRequest(key string) (*sources.Request, error) {
	return &sources.Request{
		URL:    "https://example.test/" + string(s.id),
		Method: "GET",
		Params: map[string]string{"key": key},
	}, nil
}

func (s *stubAdapter) Extract([]byte) ([]company.SourceRecord, error) {
	return s.records, nil
}

// nopCaller satisfies the transport; stub adapters ignore the payload.
type nopCaller struct {
	mu    sync.Mutex
	calls int
}

func (c *nopCaller) Do(context.Context, string, *sources.Request) ([]byte, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	return []byte("[]"), nil
}

func (c *nopCaller) callCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.calls
}

var _ transport.Caller = (*nopCaller)(nil)

func testRegistry() *sources.Registry {
	registry := sources.NewRegistry()
	registry.Register(&stubAdapter{
		id: "nts_status", keyType: sources.KeyBRNO, pattern: sources.PatternDirect,
		records: []company.SourceRecord{{
			Source: "nts_status", BRNO: "1248100998", CompanyName: "삼성전자",
			Address: "경기도 수원시 영통구",
		}},
	})
	registry.Register(&stubAdapter{
		id: "fsc_info", keyType: sources.KeyBRNO, pattern: sources.PatternDirect,
		records: []company.SourceRecord{{
			Source: "fsc_info", BRNO: "1248100998", CRNO: "1301110006246",
			CompanyName: "삼성전자(주)", Address: "경기도 수원시 영통구",
		}},
	})
	return registry
}

func newTestClient(t *testing.T, opts ...Option) Client {
	t.Helper()
	base := []Option{
		WithRegistry(testRegistry()),
		WithTransport(&nopCaller{}),
		WithStorePath(filepath.Join(t.TempDir(), "corpmap.db")),
	}
	c, err := New(append(base, opts...)...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func TestClientSearch(t *testing.T) {
	c := newTestClient(t)

	// Identifier spellings with separators normalize before querying.
	result, err := c.Search(context.Background(), company.Query{BRNO: "124-81-00998"})
	require.NoError(t, err)

	require.Len(t, result.Entities, 1)
	entity := result.Entities[0]
	assert.Equal(t, "1248100998", entity.Identifiers.BRNO)
	assert.Equal(t, "1301110006246", entity.Identifiers.CRNO)
	assert.Equal(t, "삼성전자", entity.CanonicalName)
	assert.Equal(t, company.MatchLevelMatch, entity.MatchLevel)
	assert.ElementsMatch(t, []company.SourceID{"nts_status", "fsc_info"}, entity.Sources)
}

func TestClientLookupPersistsAndServesFromStore(t *testing.T) {
	caller := &nopCaller{}
	c := newTestClient(t, WithTransport(caller), WithCacheTTL(0))
	ctx := context.Background()

	first, err := c.Lookup(ctx, company.Query{BRNO: "1248100998"})
	require.NoError(t, err)
	require.Len(t, first.Entities, 1)
	assert.False(t, first.Meta.CacheHit)
	liveCalls := caller.callCount()
	assert.Positive(t, liveCalls)

	// The second lookup answers from the registry without source calls.
	second, err := c.Lookup(ctx, company.Query{BRNO: "124-81-00998"})
	require.NoError(t, err)
	require.Len(t, second.Entities, 1)
	assert.True(t, second.Meta.CacheHit)
	assert.Equal(t, first.Entities[0].CanonicalName, second.Entities[0].CanonicalName)
	assert.Equal(t, liveCalls, caller.callCount())
}

func TestClientEntityHooks(t *testing.T) {
	c := newTestClient(t, WithCacheTTL(0))
	ctx := context.Background()

	var added, updated int
	c.OnEntityAdded(func(_ *store.StoredEntity) { added++ })
	c.OnEntityUpdated(func(_, _ *store.StoredEntity) { updated++ })

	result, err := c.Search(ctx, company.Query{BRNO: "1248100998"})
	require.NoError(t, err)

	_, err = c.Persist(ctx, result)
	require.NoError(t, err)
	assert.Equal(t, 1, added)
	assert.Equal(t, 0, updated)

	_, err = c.Persist(ctx, result)
	require.NoError(t, err)
	assert.Equal(t, 1, added)
	assert.Equal(t, 1, updated)
}

func TestClientRefreshStale(t *testing.T) {
	c := newTestClient(t, WithCacheTTL(0))
	ctx := context.Background()

	result, err := c.Search(ctx, company.Query{BRNO: "1248100998"})
	require.NoError(t, err)
	_, err = c.Persist(ctx, result)
	require.NoError(t, err)

	require.NoError(t, c.Store().MarkStale(ctx, "brno:1248100998"))

	stats, err := c.RefreshStale(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.Refreshed)
	assert.Equal(t, 0, stats.Failed)

	// The refreshed entity is fresh again.
	entity, err := c.Store().LoadEntity(ctx, company.Query{BRNO: "1248100998"}, false)
	require.NoError(t, err)
	assert.False(t, entity.IsStale)
}

func TestClientAudit(t *testing.T) {
	c := newTestClient(t, WithCacheTTL(0))
	ctx := context.Background()

	result, err := c.Search(ctx, company.Query{BRNO: "1248100998"})
	require.NoError(t, err)
	_, err = c.Persist(ctx, result)
	require.NoError(t, err)

	summary, err := c.Audit(ctx)
	require.NoError(t, err)
	// The two test sources agree on every shared field.
	assert.Equal(t, 1, summary.EntitiesChecked)
	assert.Equal(t, 0, summary.EntitiesWithConflicts)
}

func TestClientWithoutStore(t *testing.T) {
	c, err := New(WithRegistry(testRegistry()), WithTransport(&nopCaller{}))
	require.NoError(t, err)
	defer func() { _ = c.Close() }()

	_, err = c.Persist(context.Background(), &company.Result{})
	assert.True(t, errors.IsStoreUnavailable(err))
	_, err = c.RefreshStale(context.Background())
	assert.True(t, errors.IsStoreUnavailable(err))
	assert.True(t, errors.IsStoreUnavailable(c.RefreshOn()))
}

func TestRefreshLifecycle(t *testing.T) {
	c := newTestClient(t)

	require.NoError(t, c.RefreshOn())
	// Restarting and stopping twice must be safe.
	require.NoError(t, c.RefreshOn())
	require.NoError(t, c.RefreshOff())
	require.NoError(t, c.RefreshOff())
}
