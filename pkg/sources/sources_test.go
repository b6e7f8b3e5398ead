package sources_test

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opencorpdata/corpmap/pkg/company"
	"github.com/opencorpdata/corpmap/pkg/sources"
)

const testCatalogue = `
sources:
  - id: nts_status
    name: NTS business registration status
    key_type: brno
    pattern: direct
    endpoint: https://api.example.go.kr/nts/status
    method: POST
    params:
      b_no: "{key}"
    fields:
      items: data
      brno: b_no
      company_name: tax_type_nm
  - id: dart_search
    name: DART filing search
    key_type: companyName
    pattern: two_step
    endpoint: https://opendart.example.kr/api/company.json?name={key}
    fields:
      items: list
      crno: jurir_no
      company_name: corp_name
      address: adres
      seq: corp_code
    detail_endpoint: https://opendart.example.kr/api/detail.json?corp_code={key}
    series_endpoint: https://opendart.example.kr/api/finance.json?corp_code={key}
`

func loadTestRegistry(t *testing.T) *sources.Registry {
	t.Helper()
	registry, err := sources.Load(strings.NewReader(testCatalogue))
	require.NoError(t, err)
	return registry
}

func TestLoadCatalogue(t *testing.T) {
	registry := loadTestRegistry(t)
	assert.Equal(t, 2, registry.Len())
	assert.Equal(t, []company.SourceID{"nts_status", "dart_search"}, registry.IDs())

	nts, found := registry.Get("nts_status")
	require.True(t, found)
	assert.Equal(t, sources.KeyBRNO, nts.KeyType())
	assert.Equal(t, sources.PatternDirect, nts.Pattern())
}

func TestRegistryByPattern(t *testing.T) {
	registry := loadTestRegistry(t)
	direct := registry.ByPattern(sources.PatternDirect)
	require.Len(t, direct, 1)
	assert.Equal(t, company.SourceID("nts_status"), direct[0].ID())
	assert.Empty(t, registry.ByPattern(sources.PatternPhonetic))
}

func TestRegistryDelete(t *testing.T) {
	registry := loadTestRegistry(t)
	registry.Delete("nts_status")
	assert.Equal(t, 1, registry.Len())
	assert.Equal(t, []company.SourceID{"dart_search"}, registry.IDs())
}

func TestBuildRequest(t *testing.T) {
	registry := loadTestRegistry(t)

	t.Run("key substituted into params", func(t *testing.T) {
		nts, _ := registry.Get("nts_status")
		req, err := nts.BuildRequest("1248100998")
		require.NoError(t, err)
		assert.Equal(t, "POST", req.Method)
		assert.Equal(t, "1248100998", req.Params["b_no"])
	})

	t.Run("param values stay raw for the transport to encode", func(t *testing.T) {
		adapter, err := sources.NewAdapter(sources.Descriptor{
			ID:       "name_search",
			KeyType:  sources.KeyCompanyName,
			Endpoint: "https://api.example.go.kr/search",
			Params:   map[string]string{"corp_name": "{key}"},
		})
		require.NoError(t, err)

		req, err := adapter.BuildRequest("삼성전자")
		require.NoError(t, err)
		assert.Equal(t, "삼성전자", req.Params["corp_name"])
	})

	t.Run("key escaped into endpoint", func(t *testing.T) {
		dart, _ := registry.Get("dart_search")
		req, err := dart.BuildRequest("삼성 전자")
		require.NoError(t, err)
		assert.NotContains(t, req.URL, " ")
		assert.Contains(t, req.URL, "name=")
	})

	t.Run("empty key rejected for keyed adapters", func(t *testing.T) {
		nts, _ := registry.Get("nts_status")
		_, err := nts.BuildRequest("")
		assert.Error(t, err)
	})
}

func TestExtract(t *testing.T) {
	registry := loadTestRegistry(t)
	dart, _ := registry.Get("dart_search")

	t.Run("list payload", func(t *testing.T) {
		payload := []byte(`{"list":[
			{"corp_name":"삼성전자","jurir_no":"1301110006246","adres":"수원시","corp_code":"00126380"},
			{"corp_name":"삼성전기","jurir_no":"1301110006384","corp_code":"00126371"}
		]}`)
		records, err := dart.Extract(payload)
		require.NoError(t, err)
		require.Len(t, records, 2)
		assert.Equal(t, company.SourceID("dart_search"), records[0].Source)
		assert.Equal(t, "삼성전자", records[0].CompanyName)
		assert.Equal(t, "1301110006246", records[0].CRNO)
		assert.Equal(t, "수원시", records[0].Address)
	})

	t.Run("empty payload yields nothing", func(t *testing.T) {
		records, err := dart.Extract(nil)
		require.NoError(t, err)
		assert.Empty(t, records)
	})

	t.Run("missing items path yields nothing", func(t *testing.T) {
		records, err := dart.Extract([]byte(`{"status":"013"}`))
		require.NoError(t, err)
		assert.Empty(t, records)
	})

	t.Run("malformed json is an error", func(t *testing.T) {
		_, err := dart.Extract([]byte(`{`))
		assert.Error(t, err)
	})

	t.Run("objects with no mapped fields are discarded", func(t *testing.T) {
		records, err := dart.Extract([]byte(`{"list":[{"unrelated":"x"}]}`))
		require.NoError(t, err)
		assert.Empty(t, records)
	})

	t.Run("numeric identifiers stringified", func(t *testing.T) {
		records, err := dart.Extract([]byte(`{"list":[{"corp_name":"테스트","jurir_no":1301110006246}]}`))
		require.NoError(t, err)
		require.Len(t, records, 1)
		assert.Equal(t, "1301110006246", records[0].CRNO)
	})
}

func TestDetailFetcher(t *testing.T) {
	registry := loadTestRegistry(t)
	dart, _ := registry.Get("dart_search")

	fetcher, ok := dart.(sources.DetailFetcher)
	require.True(t, ok)

	records, err := dart.Extract([]byte(`{"list":[{"corp_name":"삼성전자","corp_code":"00126380"}]}`))
	require.NoError(t, err)
	require.Len(t, records, 1)

	seq, ok := fetcher.SequenceID(records[0])
	require.True(t, ok)
	assert.Equal(t, "00126380", seq)

	detail, err := fetcher.BuildDetailRequest(seq)
	require.NoError(t, err)
	assert.Contains(t, detail.URL, "corp_code=00126380")

	series, err := fetcher.BuildSeriesRequest(seq)
	require.NoError(t, err)
	assert.Contains(t, series.URL, "finance.json")
}

func TestDescriptorValidate(t *testing.T) {
	_, err := sources.NewAdapter(sources.Descriptor{Name: "no id"})
	assert.Error(t, err)

	_, err = sources.NewAdapter(sources.Descriptor{ID: "x", Endpoint: "https://x", KeyType: "bogus"})
	assert.Error(t, err)

	_, err = sources.NewAdapter(sources.Descriptor{ID: "x", Endpoint: "https://x", KeyType: sources.KeyBRNO})
	assert.NoError(t, err)
}
