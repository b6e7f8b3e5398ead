package orchestrator

import (
	"context"
	"sync"

	"github.com/opencorpdata/corpmap/pkg/company"
	"github.com/opencorpdata/corpmap/pkg/normalize"
	"github.com/opencorpdata/corpmap/pkg/resolve"
	"github.com/opencorpdata/corpmap/pkg/sources"
)

// Two-step candidate scoring. Exact identifier agreement dominates; name
// similarity contributes the remainder. The score is normalized over the
// weights that could actually be evaluated for the query, so a name-only
// query is scored purely on name similarity.
const (
	twoStepIDWeight   = 0.7
	twoStepNameWeight = 0.3
	// twoStepFloor is the minimum normalized score for a search candidate
	// to be accepted as the queried company.
	twoStepFloor = 0.60
)

// runDirect fans out to every source keyed directly by brno or crno.
func (o *Orchestrator) runDirect(ctx context.Context, query company.Query, col *collector, sem chan struct{}) {
	var wg sync.WaitGroup
	for _, a := range o.registry.ByPattern(sources.PatternDirect) {
		key := discoveryKey(a.KeyType(), query)
		if key == "" {
			continue
		}

		req, err := a.BuildRequest(key)
		if err != nil {
			col.failure(a.ID(), PhaseDirect, err)
			continue
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			col.add(o.call(ctx, a, PhaseDirect, req, col, sem)...)
		}()
	}
	wg.Wait()
}

// runTwoStep searches name-keyed sources and keeps only the best-scoring
// candidate per source. A fuzzy search can return dozens of unrelated
// companies; collecting them all would pollute resolution.
func (o *Orchestrator) runTwoStep(ctx context.Context, query company.Query, col *collector, sem chan struct{}) {
	if query.CompanyName == "" {
		return
	}

	var wg sync.WaitGroup
	for _, a := range o.registry.ByPattern(sources.PatternTwoStep) {
		if a.KeyType() != sources.KeyCompanyName {
			continue
		}

		req, err := a.BuildRequest(query.CompanyName)
		if err != nil {
			col.failure(a.ID(), PhaseTwoStep, err)
			continue
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			candidates := o.call(ctx, a, PhaseTwoStep, req, col, sem)
			if best, ok := bestCandidate(query, candidates); ok {
				col.add(best)
			}
		}()
	}
	wg.Wait()
}

// bestCandidate picks the highest-scoring search result above the floor.
func bestCandidate(query company.Query, candidates []company.SourceRecord) (company.SourceRecord, bool) {
	var best company.SourceRecord
	bestScore := 0.0
	for _, rec := range candidates {
		if score := candidateScore(query, rec); score > bestScore {
			best, bestScore = rec, score
		}
	}
	return best, bestScore >= twoStepFloor
}

func candidateScore(query company.Query, rec company.SourceRecord) float64 {
	var score, applicable float64
	if query.BRNO != "" || query.CRNO != "" {
		applicable += twoStepIDWeight
		if identifiersMatch(query, rec) {
			score += twoStepIDWeight
		}
	}
	if query.CompanyName != "" {
		applicable += twoStepNameWeight
		score += twoStepNameWeight * normalize.NameSimilarity(query.CompanyName, rec.CompanyName)
	}
	if applicable == 0 {
		return 0
	}
	return score / applicable
}

// identifiersMatch reports whether the record carries an identifier that
// exactly matches one the query knows.
func identifiersMatch(query company.Query, rec company.SourceRecord) bool {
	if query.BRNO != "" && normalize.BRNO(rec.BRNO) == query.BRNO {
		return true
	}
	if query.CRNO != "" && normalize.CRNO(rec.CRNO) == query.CRNO {
		return true
	}
	return false
}

// runReverse queries group-keyed sources with the inferred conglomerate
// name and keeps only affiliates that demonstrably are the queried company.
func (o *Orchestrator) runReverse(ctx context.Context, query company.Query, col *collector, sem chan struct{}) {
	if query.CompanyName == "" {
		return
	}
	group := groupName(query.CompanyName)
	if group == "" {
		return
	}

	var wg sync.WaitGroup
	for _, a := range o.registry.ByPattern(sources.PatternReverse) {
		req, err := a.BuildRequest(group)
		if err != nil {
			col.failure(a.ID(), PhaseReverse, err)
			continue
		}

		wg.Add(1)
		go func() {
			defer wg.Done()
			affiliates := o.call(ctx, a, PhaseReverse, req, col, sem)
			for _, rec := range affiliates {
				if identifiersMatch(query, rec) ||
					normalize.NameSimilarity(query.CompanyName, rec.CompanyName) >= resolve.MatchThreshold {
					col.add(rec)
				}
			}
		}()
	}
	wg.Wait()
}

// conglomerateGroups maps well-known affiliate names to the group name the
// reverse sources are keyed by. Names are in normalized form.
var conglomerateGroups = map[string]string{
	"삼성전자":   "삼성",
	"삼성전기":   "삼성",
	"삼성물산":   "삼성",
	"삼성에스디아이": "삼성",
	"현대자동차":  "현대자동차",
	"현대모비스":  "현대자동차",
	"기아":     "현대자동차",
	"엘지전자":   "엘지",
	"엘지화학":   "엘지",
	"에스케이하이닉스": "에스케이",
	"에스케이텔레콤":  "에스케이",
	"포스코":    "포스코",
	"롯데쇼핑":   "롯데",
	"한화솔루션":  "한화",
}

// groupName infers the conglomerate name for a company: known affiliates
// come from the lookup table, anything else falls back to the leading two
// characters of the normalized name. Names too short for the heuristic get
// no reverse lookup at all.
func groupName(companyName string) string {
	name := normalize.Name(companyName)
	if group, ok := conglomerateGroups[name]; ok {
		return group
	}
	runes := []rune(name)
	if len(runes) < 3 {
		return ""
	}
	return string(runes[:2])
}

// runBulk serves the bulk-dataset phase from the shared index. The index
// loads the full dataset once and answers by normalized brno, so there is
// at most one underlying download no matter how many queries run.
func (o *Orchestrator) runBulk(ctx context.Context, query company.Query, col *collector, sem chan struct{}) {
	if o.bulk == nil || query.BRNO == "" {
		return
	}

	sem <- struct{}{}
	defer func() { <-sem }()

	col.attempt()
	rec, ok, err := o.bulk.Lookup(ctx, query.BRNO)
	if err != nil {
		col.failure("bulk_index", PhaseBulk, err)
		return
	}
	col.success()
	if ok {
		col.add(rec)
	}
}
