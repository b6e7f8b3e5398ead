package orchestrator

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/opencorpdata/corpmap/pkg/company"
	"github.com/opencorpdata/corpmap/pkg/sources"
)

// stubDetailAdapter extends stubAdapter with detail and series follow-ups,
// the shape of sources that mask identifiers in search results.
type stubDetailAdapter struct {
	stubAdapter
}

func (s *stubDetailAdapter) SequenceID(rec company.SourceRecord) (string, bool) {
	seq, ok := rec.Raw["seq"].(string)
	return seq, ok && seq != ""
}

func (s *stubDetailAdapter) BuildDetailRequest(seq string) (*sources.Request, error) {
	return &sources.Request{
		URL:    "https://example.test/" + string(s.id) + "/detail",
		Method: "GET",
		Params: map[string]string{"seq": seq},
	}, nil
}

func (s *stubDetailAdapter) BuildSeriesRequest(seq string) (*sources.Request, error) {
	return &sources.Request{
		URL:    "https://example.test/" + string(s.id) + "/series",
		Method: "GET",
		Params: map[string]string{"seq": seq},
	}, nil
}

func TestPhoneticVariantConfirmedByMaskedIdentifier(t *testing.T) {
	registry := sources.NewRegistry()
	registry.Register(&stubDetailAdapter{stubAdapter{
		id: "masked_filings", keyType: sources.KeyCompanyName, pattern: sources.PatternPhonetic,
	}})

	caller := &stubCaller{respond: func(_ string, req *sources.Request) ([]byte, error) {
		switch {
		case req.Params["seq"] != "":
			require.Equal(t, "F001234", req.Params["seq"])
			if strings.HasSuffix(req.URL, "/series") {
				return recordsPayload(t, company.SourceRecord{
					Source: "masked_filings", BRNO: "1248100998", CompanyName: "삼성전자", IndustryCode: "26410",
				}), nil
			}
			return recordsPayload(t, company.SourceRecord{
				Source: "masked_filings", BRNO: "1248100998", CRNO: "1301110006246",
				CompanyName: "삼성전자", Address: "경기도 수원시",
			}), nil
		case strings.Contains(req.Params["key"], "삼성"):
			// The Latin spelling finds nothing; the substituted variant
			// returns a hit with a masked identifier.
			return recordsPayload(t, company.SourceRecord{
				Source: "masked_filings", BRNO: "124-81-*****", CompanyName: "삼성전자",
				Raw: map[string]any{"seq": "F001234"},
			}), nil
		default:
			return []byte("[]"), nil
		}
	}}

	o, err := New(registry, WithTransport(caller))
	require.NoError(t, err)

	result, err := o.Search(context.Background(), company.Query{
		BRNO:        "1248100998",
		CompanyName: "Samsung Electronics",
	})
	require.NoError(t, err)

	// Everything resolves to one entity with the full identifier: the
	// masked search hit must not cluster as a separate company.
	require.Len(t, result.Entities, 1)
	assert.Equal(t, "1248100998", result.Entities[0].Identifiers.BRNO)
	assert.Equal(t, "1301110006246", result.Entities[0].Identifiers.CRNO)
	assert.Empty(t, result.Unmatched)
	assert.Equal(t, result.Meta.Attempted, result.Meta.Succeeded)
}

func TestPhoneticRejectsWeakContainment(t *testing.T) {
	registry := sources.NewRegistry()
	registry.Register(&stubAdapter{id: "masked_filings", keyType: sources.KeyCompanyName, pattern: sources.PatternPhonetic})

	caller := &stubCaller{respond: func(_ string, req *sources.Request) ([]byte, error) {
		// An unrelated company whose name merely starts with the query.
		return recordsPayload(t, company.SourceRecord{
			Source: "masked_filings", CompanyName: "삼성생명보험서비스",
		}), nil
	}}

	o, err := New(registry, WithTransport(caller))
	require.NoError(t, err)

	result, err := o.Search(context.Background(), company.Query{CompanyName: "삼성"})
	require.NoError(t, err)

	assert.Empty(t, result.Entities, "weakly contained candidate must not be accepted")
	assert.Empty(t, result.Unmatched)
	assert.Less(t, containmentScore("삼성", "삼성생명보험서비스"), PhoneticAcceptFloor)
}

func TestContainmentScore(t *testing.T) {
	tests := []struct {
		name      string
		target    string
		candidate string
		want      int
	}{
		{"exact", "삼성전자", "삼성전자", 100},
		{"exact after normalization", "삼성전자", "주식회사 삼성전자", 100},
		{"token prefix scores by length ratio", "삼성전자", "삼성전자판매", 66},
		{"short brand in long name", "삼성", "삼성생명보험서비스", 22},
		{"mid-token substring scores zero", "전자", "삼성전자", 0},
		{"whole word inside multi-word name", "전자", "한국 전자 공업", 25},
		{"unrelated", "현대", "삼성전자", 0},
		{"empty target", "", "삼성전자", 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, containmentScore(tt.target, tt.candidate))
		})
	}
}

func TestNameVariants(t *testing.T) {
	t.Run("korean name gets corporate-form permutations", func(t *testing.T) {
		variants := nameVariants("삼성전자")
		assert.Contains(t, variants, "삼성전자")
		assert.Contains(t, variants, "(주)삼성전자")
		assert.Contains(t, variants, "삼성전자(주)")
		assert.Contains(t, variants, "주식회사 삼성전자")
	})

	t.Run("latin brand gets phonetic substitution", func(t *testing.T) {
		variants := nameVariants("Samsung Electronics")
		assert.Contains(t, variants, "삼성 Electronics")
		assert.Contains(t, variants, "주식회사 삼성 Electronics")
	})

	t.Run("bounded and deduplicated", func(t *testing.T) {
		variants := nameVariants("주식회사 Samsung")
		assert.LessOrEqual(t, len(variants), maxNameVariants)
		seen := make(map[string]int)
		for _, v := range variants {
			seen[v]++
			assert.Equal(t, 1, seen[v], "variant %q duplicated", v)
		}
	})
}

func TestMaskedIdentifierMatch(t *testing.T) {
	query := company.Query{BRNO: "1248100998", CRNO: "1301110006246"}

	tests := []struct {
		name string
		rec  company.SourceRecord
		want bool
	}{
		{"visible brno prefix", company.SourceRecord{BRNO: "124-81-*****"}, true},
		{"full brno", company.SourceRecord{BRNO: "1248100998"}, true},
		{"wrong prefix", company.SourceRecord{BRNO: "999-81-*****"}, false},
		{"too few visible digits", company.SourceRecord{BRNO: "12-**-*****"}, false},
		{"crno prefix", company.SourceRecord{CRNO: "130111*******"}, true},
		{"no identifiers", company.SourceRecord{CompanyName: "삼성전자"}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, maskedIdentifierMatch(query, tt.rec))
		})
	}
}

func TestUnmask(t *testing.T) {
	query := company.Query{BRNO: "1248100998"}

	t.Run("confirmed prefix restored from query", func(t *testing.T) {
		rec := unmask(query, company.SourceRecord{BRNO: "124-81-*****", CompanyName: "삼성전자"})
		assert.Equal(t, "1248100998", rec.BRNO)
	})

	t.Run("unconfirmable masked identifier dropped", func(t *testing.T) {
		rec := unmask(company.Query{}, company.SourceRecord{BRNO: "124-81-*****"})
		assert.Empty(t, rec.BRNO)
	})

	t.Run("full identifier untouched", func(t *testing.T) {
		rec := unmask(query, company.SourceRecord{BRNO: "124-81-00998"})
		assert.Equal(t, "124-81-00998", rec.BRNO)
	})
}
