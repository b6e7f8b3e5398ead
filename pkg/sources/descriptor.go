package sources

import (
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"

	"github.com/goccy/go-yaml"

	"github.com/opencorpdata/corpmap/pkg/company"
	"github.com/opencorpdata/corpmap/pkg/errors"
)

// FieldMap maps standardized record fields to dot-separated paths inside a
// source's JSON response.
type FieldMap struct {
	// Items points at the array of result objects. Empty means the
	// response root is itself the single result object.
	Items          string `yaml:"items,omitempty"`
	BRNO           string `yaml:"brno,omitempty"`
	CRNO           string `yaml:"crno,omitempty"`
	CompanyName    string `yaml:"company_name,omitempty"`
	Address        string `yaml:"address,omitempty"`
	Representative string `yaml:"representative,omitempty"`
	IndustryCode   string `yaml:"industry_code,omitempty"`
	// Seq is the opaque sequence identifier used by multi-step sources
	// for follow-up detail calls.
	Seq string `yaml:"seq,omitempty"`
}

// Descriptor declares one source as data: endpoint template, query key
// substitution, and response field extraction. The per-deployment source
// catalogue is a list of these, loaded from YAML.
type Descriptor struct {
	ID             string            `yaml:"id"`
	Name           string            `yaml:"name"`
	KeyType        KeyType           `yaml:"key_type"`
	Pattern        Pattern           `yaml:"pattern"`
	Endpoint       string            `yaml:"endpoint"`
	Method         string            `yaml:"method,omitempty"`
	Params         map[string]string `yaml:"params,omitempty"`
	Fields         FieldMap          `yaml:"fields"`
	DetailEndpoint string            `yaml:"detail_endpoint,omitempty"`
	SeriesEndpoint string            `yaml:"series_endpoint,omitempty"`
}

// Validate checks the descriptor for the fields every adapter needs.
func (d Descriptor) Validate() error {
	if d.ID == "" {
		return errors.NewValidationError("id", d.ID, "adapter id is required")
	}
	if d.Endpoint == "" {
		return errors.NewValidationError("endpoint", d.Endpoint, "endpoint template is required")
	}
	if !d.KeyType.IsValid() {
		return errors.NewValidationError("key_type", string(d.KeyType), "unknown query key type")
	}
	return nil
}

// catalogue is the YAML document shape for a source catalogue file.
type catalogue struct {
	Sources []Descriptor `yaml:"sources"`
}

// Load reads a YAML source catalogue and returns a populated registry.
func Load(r io.Reader) (*Registry, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, errors.WrapParse("yaml", "", err)
	}

	var cat catalogue
	if err := yaml.Unmarshal(data, &cat); err != nil {
		return nil, errors.WrapParse("yaml", "", err)
	}

	registry := NewRegistry()
	for _, d := range cat.Sources {
		adapter, err := NewAdapter(d)
		if err != nil {
			return nil, err
		}
		registry.Register(adapter)
	}
	return registry, nil
}

// LoadFile reads a YAML source catalogue from disk.
func LoadFile(path string) (*Registry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.WrapParse("yaml", path, err)
	}
	defer f.Close()
	return Load(f)
}

// NewAdapter builds an Adapter from a descriptor.
func NewAdapter(d Descriptor) (Adapter, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}
	if d.Method == "" {
		d.Method = "GET"
	}
	return &descriptorAdapter{desc: d}, nil
}

// descriptorAdapter is the data-driven Adapter implementation.
type descriptorAdapter struct {
	desc Descriptor
}

var _ Adapter = (*descriptorAdapter)(nil)
var _ DetailFetcher = (*descriptorAdapter)(nil)

func (a *descriptorAdapter) ID() company.SourceID { return company.SourceID(a.desc.ID) }
func (a *descriptorAdapter) Name() string         { return a.desc.Name }
func (a *descriptorAdapter) KeyType() KeyType     { return a.desc.KeyType }
func (a *descriptorAdapter) Pattern() Pattern     { return a.desc.Pattern }

// BuildRequest substitutes the query key into the endpoint template and
// parameter values.
func (a *descriptorAdapter) BuildRequest(key string) (*Request, error) {
	if key == "" && a.desc.KeyType != KeyNone {
		return nil, errors.NewValidationError("key", key, "query key is required for "+a.desc.ID)
	}

	req := &Request{
		URL:    substituteKey(a.desc.Endpoint, key),
		Method: a.desc.Method,
	}
	if len(a.desc.Params) > 0 {
		req.Params = make(map[string]string, len(a.desc.Params))
		for name, value := range a.desc.Params {
			// Param values stay raw: the transport URL-encodes the query
			// string, so escaping here would double-encode the key.
			req.Params[name] = strings.ReplaceAll(value, "{key}", key)
		}
	}
	return req, nil
}

// Extract parses a JSON payload into standardized records using the
// descriptor's field map.
func (a *descriptorAdapter) Extract(payload []byte) ([]company.SourceRecord, error) {
	if len(payload) == 0 {
		return nil, nil
	}

	var root any
	if err := json.Unmarshal(payload, &root); err != nil {
		return nil, errors.WrapParse("json", a.desc.ID, err)
	}

	items := []any{root}
	if a.desc.Fields.Items != "" {
		v, ok := walkPath(root, a.desc.Fields.Items)
		if !ok {
			return nil, nil
		}
		switch t := v.(type) {
		case []any:
			items = t
		default:
			items = []any{t}
		}
	}

	records := make([]company.SourceRecord, 0, len(items))
	for _, item := range items {
		rec := a.extractRecord(item)
		if rec != nil {
			records = append(records, *rec)
		}
	}
	return records, nil
}

// extractRecord maps one response object to a record, or nil when the
// object carries none of the mapped fields.
func (a *descriptorAdapter) extractRecord(item any) *company.SourceRecord {
	rec := company.SourceRecord{
		Source:         a.ID(),
		BRNO:           stringAt(item, a.desc.Fields.BRNO),
		CRNO:           stringAt(item, a.desc.Fields.CRNO),
		CompanyName:    stringAt(item, a.desc.Fields.CompanyName),
		Address:        stringAt(item, a.desc.Fields.Address),
		Representative: stringAt(item, a.desc.Fields.Representative),
		IndustryCode:   stringAt(item, a.desc.Fields.IndustryCode),
	}
	if rec.BRNO == "" && rec.CRNO == "" && rec.CompanyName == "" {
		return nil
	}
	if obj, ok := item.(map[string]any); ok {
		rec.Raw = obj
	}
	return &rec
}

// SequenceID implements DetailFetcher.
func (a *descriptorAdapter) SequenceID(rec company.SourceRecord) (string, bool) {
	if a.desc.Fields.Seq == "" || rec.Raw == nil {
		return "", false
	}
	seq := stringAt(rec.Raw, a.desc.Fields.Seq)
	return seq, seq != ""
}

// BuildDetailRequest implements DetailFetcher.
func (a *descriptorAdapter) BuildDetailRequest(seq string) (*Request, error) {
	if a.desc.DetailEndpoint == "" {
		return nil, nil
	}
	return &Request{URL: substituteKey(a.desc.DetailEndpoint, seq), Method: a.desc.Method}, nil
}

// BuildSeriesRequest implements DetailFetcher.
func (a *descriptorAdapter) BuildSeriesRequest(seq string) (*Request, error) {
	if a.desc.SeriesEndpoint == "" {
		return nil, nil
	}
	return &Request{URL: substituteKey(a.desc.SeriesEndpoint, seq), Method: a.desc.Method}, nil
}

// substituteKey replaces the {key} placeholder with the escaped query key.
func substituteKey(template, key string) string {
	return strings.ReplaceAll(template, "{key}", url.QueryEscape(key))
}

// walkPath resolves a dot-separated path inside decoded JSON.
func walkPath(v any, path string) (any, bool) {
	current := v
	for _, part := range strings.Split(path, ".") {
		obj, ok := current.(map[string]any)
		if !ok {
			return nil, false
		}
		current, ok = obj[part]
		if !ok {
			return nil, false
		}
	}
	return current, true
}

// stringAt resolves a path to a string, stringifying JSON numbers since
// registration identifiers are numeric in some source payloads.
func stringAt(v any, path string) string {
	if path == "" {
		return ""
	}
	value, ok := walkPath(v, path)
	if !ok {
		return ""
	}
	switch t := value.(type) {
	case string:
		return strings.TrimSpace(t)
	case float64:
		return fmt.Sprintf("%.0f", t)
	default:
		return ""
	}
}
