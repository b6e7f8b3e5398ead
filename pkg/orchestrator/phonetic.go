package orchestrator

import (
	"context"
	"strings"
	"sync"

	"github.com/opencorpdata/corpmap/pkg/company"
	"github.com/opencorpdata/corpmap/pkg/logging"
	"github.com/opencorpdata/corpmap/pkg/normalize"
	"github.com/opencorpdata/corpmap/pkg/sources"
)

const (
	// PhoneticAcceptFloor is the minimum containment score (0-100) for a
	// candidate accepted without identifier confirmation. A precision/recall
	// knob: strict on purpose, since a source that masks identifiers gives
	// no second chance to notice a wrong company was picked up.
	PhoneticAcceptFloor = 85
	// maxNameVariants caps the generated variant list per query.
	maxNameVariants = 8
	// minVisibleDigits is how many unmasked identifier digits a search
	// candidate must expose before a prefix match counts as confirmation.
	minVisibleDigits = 5
)

// phoneticNames maps Latin brand spellings to their Korean registered
// forms. Multinationals register under the transliterated name, so a query
// for the Latin name finds nothing without this substitution.
var phoneticNames = map[string]string{
	"samsung":   "삼성",
	"hyundai":   "현대",
	"lg":        "엘지",
	"sk":        "에스케이",
	"posco":     "포스코",
	"lotte":     "롯데",
	"hanwha":    "한화",
	"kakao":     "카카오",
	"naver":     "네이버",
	"google":    "구글",
	"microsoft": "마이크로소프트",
	"apple":     "애플",
	"amazon":    "아마존",
	"coca-cola": "코카콜라",
	"cocacola":  "코카콜라",
	"nike":      "나이키",
	"toyota":    "도요타",
	"siemens":   "지멘스",
}

// runPhonetic drives sources whose search is name-only and whose results
// mask part of the identifier. Generated name variants are tried in order
// until one yields a candidate confirmed by identifier prefix; failing
// that, the best containment-scored candidate is accepted only above a
// strict floor. Accepted candidates trigger detail and series follow-up
// calls when the source supports them.
func (o *Orchestrator) runPhonetic(ctx context.Context, query company.Query, col *collector, sem chan struct{}) {
	if query.CompanyName == "" {
		return
	}
	variants := nameVariants(query.CompanyName)

	var wg sync.WaitGroup
	for _, a := range o.registry.ByPattern(sources.PatternPhonetic) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			o.phoneticSource(ctx, a, query, variants, col, sem)
		}()
	}
	wg.Wait()
}

func (o *Orchestrator) phoneticSource(ctx context.Context, a sources.Adapter, query company.Query, variants []string, col *collector, sem chan struct{}) {
	logger := logging.FromContext(logging.WithSource(ctx, a.ID().String()))

	accepted, ok := o.phoneticSearch(ctx, a, query, variants, col, sem)
	if !ok {
		logger.Debug().Str("name", query.CompanyName).Msg("No phonetic variant produced an acceptable candidate")
		return
	}
	col.add(unmask(query, accepted))

	// Follow-up calls resolve the masked search hit into full records.
	fetcher, isFetcher := a.(sources.DetailFetcher)
	if !isFetcher {
		return
	}
	seq, ok := fetcher.SequenceID(accepted)
	if !ok {
		return
	}
	if req, err := fetcher.BuildDetailRequest(seq); err != nil {
		col.failure(a.ID(), PhasePhonetic, err)
	} else if req != nil {
		col.add(o.call(ctx, a, PhasePhonetic, req, col, sem)...)
	}
	if req, err := fetcher.BuildSeriesRequest(seq); err != nil {
		col.failure(a.ID(), PhasePhonetic, err)
	} else if req != nil {
		col.add(o.call(ctx, a, PhasePhonetic, req, col, sem)...)
	}
}

// phoneticSearch tries each variant in order and returns the first
// candidate confirmed by identifier prefix, else the best-scoring
// candidate across all variants if it clears the accept floor.
func (o *Orchestrator) phoneticSearch(ctx context.Context, a sources.Adapter, query company.Query, variants []string, col *collector, sem chan struct{}) (company.SourceRecord, bool) {
	var best company.SourceRecord
	bestScore := 0

	for _, variant := range variants {
		req, err := a.BuildRequest(variant)
		if err != nil {
			col.failure(a.ID(), PhasePhonetic, err)
			continue
		}

		for _, rec := range o.call(ctx, a, PhasePhonetic, req, col, sem) {
			if maskedIdentifierMatch(query, rec) {
				return rec, true
			}
			if score := containmentScore(query.CompanyName, rec.CompanyName); score > bestScore {
				best, bestScore = rec, score
			}
		}
	}

	return best, bestScore >= PhoneticAcceptFloor
}

// maskedIdentifierMatch confirms a candidate whose partially masked
// identifier is a prefix of the queried one. Masked digits are stripped by
// identifier normalization, so only the visible prefix remains.
func maskedIdentifierMatch(query company.Query, rec company.SourceRecord) bool {
	if prefix := normalize.BRNO(rec.BRNO); query.BRNO != "" &&
		len(prefix) >= minVisibleDigits && strings.HasPrefix(query.BRNO, prefix) {
		return true
	}
	if prefix := normalize.CRNO(rec.CRNO); query.CRNO != "" &&
		len(prefix) >= minVisibleDigits && strings.HasPrefix(query.CRNO, prefix) {
		return true
	}
	return false
}

// Full identifier lengths; anything shorter after normalization is a
// masked or truncated value.
const (
	brnoDigits = 10
	crnoDigits = 13
)

// unmask replaces a candidate's partially masked identifiers before the
// record enters resolution. A truncated identifier would otherwise cluster
// as a distinct company. Prefix-confirmed values are restored from the
// query; unconfirmable ones are dropped.
func unmask(query company.Query, rec company.SourceRecord) company.SourceRecord {
	if prefix := normalize.BRNO(rec.BRNO); len(prefix) < brnoDigits {
		if query.BRNO != "" && strings.HasPrefix(query.BRNO, prefix) && len(prefix) >= minVisibleDigits {
			rec.BRNO = query.BRNO
		} else {
			rec.BRNO = ""
		}
	}
	if prefix := normalize.CRNO(rec.CRNO); len(prefix) < crnoDigits {
		if query.CRNO != "" && strings.HasPrefix(query.CRNO, prefix) && len(prefix) >= minVisibleDigits {
			rec.CRNO = query.CRNO
		} else {
			rec.CRNO = ""
		}
	}
	return rec
}

// containmentScore rates how fully the queried name is contained in the
// candidate name, 0-100, honoring word boundaries. "삼성" inside the token
// "삼성전자판매" scores by length ratio; "삼성" buried mid-token, or a
// candidate merely containing the query as an arbitrary substring, scores
// zero. This keeps a search for a short brand name from accepting an
// unrelated company whose name happens to contain it.
func containmentScore(target, candidate string) int {
	nt := normalize.Name(target)
	nc := normalize.Name(candidate)
	if nt == "" || nc == "" {
		return 0
	}
	if nt == nc {
		return 100
	}

	targetRunes := len([]rune(nt))
	candidateRunes := len([]rune(nc))
	for _, token := range strings.Fields(nc) {
		if token == nt {
			return 100 * targetRunes / candidateRunes
		}
		if strings.HasPrefix(token, nt) {
			return 100 * targetRunes / len([]rune(token))
		}
	}
	// Multi-word target matched as a whole at a word start.
	if strings.HasPrefix(nc, nt+" ") || strings.Contains(nc, " "+nt+" ") || strings.HasSuffix(nc, " "+nt) {
		return 100 * targetRunes / candidateRunes
	}
	return 0
}

// nameVariants generates the bounded, ordered list of search strings for
// the phonetic phase: the raw and normalized names first, then common
// corporate-form permutations, then phonetic substitutions of Latin brand
// words.
func nameVariants(companyName string) []string {
	base := normalize.Name(companyName)

	candidates := []string{
		strings.TrimSpace(companyName),
		base,
		"(주)" + base,
		base + "(주)",
		"주식회사 " + base,
	}
	if phonetic := substitutePhonetic(base); phonetic != base {
		candidates = append(candidates,
			phonetic,
			"(주)"+phonetic,
			"주식회사 "+phonetic,
		)
	}

	seen := make(map[string]struct{}, len(candidates))
	variants := make([]string, 0, maxNameVariants)
	for _, v := range candidates {
		if v == "" {
			continue
		}
		if _, dup := seen[v]; dup {
			continue
		}
		seen[v] = struct{}{}
		variants = append(variants, v)
		if len(variants) == maxNameVariants {
			break
		}
	}
	return variants
}

// substitutePhonetic replaces known Latin brand words with their Korean
// registered spellings, word by word.
func substitutePhonetic(name string) string {
	words := strings.Fields(name)
	changed := false
	for i, w := range words {
		if korean, ok := phoneticNames[strings.ToLower(w)]; ok {
			words[i] = korean
			changed = true
		}
	}
	if !changed {
		return name
	}
	return strings.Join(words, " ")
}
