package bulkindex_test

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opencorpdata/corpmap/internal/bulkindex"
	"github.com/opencorpdata/corpmap/pkg/company"
	"github.com/opencorpdata/corpmap/pkg/errors"
)

func testLoader(calls *atomic.Int32) bulkindex.Loader {
	return func(context.Context) ([]company.SourceRecord, error) {
		calls.Add(1)
		return []company.SourceRecord{
			{Source: "bulk", BRNO: "124-81-00998", CompanyName: "삼성전자"},
			{Source: "bulk", BRNO: "2118600021", CompanyName: "두울교역"},
			{Source: "bulk", CompanyName: "식별번호없는상사"}, // not indexable
		}, nil
	}
}

func TestLookup(t *testing.T) {
	var calls atomic.Int32
	ix := bulkindex.New(testLoader(&calls))
	assert.False(t, ix.Loaded())

	rec, ok, err := ix.Lookup(context.Background(), "1248100998")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "삼성전자", rec.CompanyName)

	// Hyphenated input hits the same normalized key.
	_, ok, err = ix.Lookup(context.Background(), "124-81-00998")
	require.NoError(t, err)
	assert.True(t, ok)

	_, ok, err = ix.Lookup(context.Background(), "9999999999")
	require.NoError(t, err)
	assert.False(t, ok)

	assert.Equal(t, int32(1), calls.Load(), "dataset must be fetched once")
	assert.Equal(t, 2, ix.Len())
}

func TestLookupEmptyKey(t *testing.T) {
	var calls atomic.Int32
	ix := bulkindex.New(testLoader(&calls))
	_, ok, err := ix.Lookup(context.Background(), "")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Zero(t, calls.Load(), "empty key must not trigger a load")
}

func TestConcurrentLoadSingleFlight(t *testing.T) {
	var calls atomic.Int32
	ix := bulkindex.New(testLoader(&calls))

	var wg sync.WaitGroup
	for range 20 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _, err := ix.Lookup(context.Background(), "1248100998")
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), calls.Load(), "concurrent lookups must share one load")
}

func TestFailedLoadRetries(t *testing.T) {
	var calls atomic.Int32
	ix := bulkindex.New(func(context.Context) ([]company.SourceRecord, error) {
		if calls.Add(1) == 1 {
			return nil, errors.ErrSourceUnavailable
		}
		return []company.SourceRecord{{Source: "bulk", BRNO: "1248100998"}}, nil
	})

	_, _, err := ix.Lookup(context.Background(), "1248100998")
	require.Error(t, err)

	_, ok, err := ix.Lookup(context.Background(), "1248100998")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, int32(2), calls.Load())
}

func TestInvalidate(t *testing.T) {
	var calls atomic.Int32
	ix := bulkindex.New(testLoader(&calls))

	_, _, err := ix.Lookup(context.Background(), "1248100998")
	require.NoError(t, err)
	ix.Invalidate()
	assert.False(t, ix.Loaded())

	_, _, err = ix.Lookup(context.Background(), "1248100998")
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
}
