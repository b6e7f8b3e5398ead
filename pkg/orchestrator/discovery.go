package orchestrator

import (
	"context"

	"github.com/opencorpdata/corpmap/pkg/company"
	"github.com/opencorpdata/corpmap/pkg/logging"
	"github.com/opencorpdata/corpmap/pkg/normalize"
	"github.com/opencorpdata/corpmap/pkg/sources"
)

// discover fills in missing query keys before the pattern phases run, so a
// brno-only query can still drive name-keyed sources and vice versa.
// Discovery sources are tried first; the bulk index serves as fallback for
// name-by-brno. Every failure is recorded and swallowed: the phases run
// with whatever identity is known.
func (o *Orchestrator) discover(ctx context.Context, query company.Query, col *collector) company.Query {
	if query.BRNO != "" && query.CRNO != "" && query.CompanyName != "" {
		return query
	}

	ctx = logging.WithPhase(ctx, PhaseDiscovery)
	logger := logging.FromContext(ctx)

	for _, a := range o.registry.ByPattern(sources.PatternDiscovery) {
		key := discoveryKey(a.KeyType(), query)
		if key == "" {
			continue
		}

		req, err := a.BuildRequest(key)
		if err != nil {
			col.failure(a.ID(), PhaseDiscovery, err)
			continue
		}

		col.attempt()
		payload, err := o.transport.Do(ctx, a.ID().String(), req)
		if err != nil {
			col.failure(a.ID(), PhaseDiscovery, err)
			continue
		}
		records, err := a.Extract(payload)
		if err != nil {
			col.failure(a.ID(), PhaseDiscovery, err)
			continue
		}
		col.success()

		if len(records) > 0 {
			query = mergeIdentity(query, records[0])
			if query.BRNO != "" && query.CRNO != "" && query.CompanyName != "" {
				return query
			}
		}
	}

	// Fallback: the bulk dataset can recover a name for a known brno.
	if query.CompanyName == "" && query.BRNO != "" && o.bulk != nil {
		rec, ok, err := o.bulk.Lookup(ctx, query.BRNO)
		switch {
		case err != nil:
			col.failure("bulk_index", PhaseDiscovery, err)
		case ok:
			query = mergeIdentity(query, rec)
			logger.Debug().Str("brno", query.BRNO).Str("name", query.CompanyName).
				Msg("Recovered company name from bulk index")
		}
	}

	return query
}

// discoveryKey picks the query value matching the adapter's key type.
func discoveryKey(kt sources.KeyType, q company.Query) string {
	switch kt {
	case sources.KeyBRNO:
		return q.BRNO
	case sources.KeyCRNO:
		return q.CRNO
	case sources.KeyCompanyName:
		return q.CompanyName
	default:
		return ""
	}
}

// mergeIdentity fills empty query fields from a discovered record without
// overwriting what the caller supplied.
func mergeIdentity(q company.Query, rec company.SourceRecord) company.Query {
	if q.BRNO == "" {
		q.BRNO = normalize.BRNO(rec.BRNO)
	}
	if q.CRNO == "" {
		q.CRNO = normalize.CRNO(rec.CRNO)
	}
	if q.CompanyName == "" {
		q.CompanyName = rec.CompanyName
	}
	return q
}
