// Package resolve implements the entity resolution engine: it clusters raw
// source records into canonical entities and scores cross-source agreement.
// Resolution is pure and performs no I/O; the final grouping is independent
// of record order.
package resolve

import (
	"fmt"
	"sort"
	"strings"

	"github.com/opencorpdata/corpmap/pkg/company"
	"github.com/opencorpdata/corpmap/pkg/normalize"
)

// Confidence thresholds shared between resolution and match-level labeling.
const (
	// MatchThreshold is the minimum name similarity for clustering two
	// groups, and the minimum confidence for MatchLevelMatch.
	MatchThreshold = 0.80
	// ProbableThreshold is the minimum confidence for MatchLevelProbable.
	ProbableThreshold = 0.60
)

// Pairwise agreement weights. A weight only counts toward a pair's score
// when both records carry a value for the field.
const (
	weightBRNO           = 0.35
	weightCRNO           = 0.35
	weightName           = 0.15
	weightAddress        = 0.08
	weightRepresentative = 0.05
	weightIndustry       = 0.02
)

// Resolve clusters records into entities plus an unmatched remainder.
//
// Clustering proceeds in passes: exact-identifier grouping via union-find,
// cross-field reconciliation for records carrying both identifiers,
// inter-group merge on strong name similarity, then fuzzy attachment of
// identifier-less records to their best-matching group.
func Resolve(records []company.SourceRecord) company.Resolution {
	if len(records) == 0 {
		return company.Resolution{Entities: []company.Entity{}, Unmatched: []company.SourceRecord{}}
	}

	uf := newUnionFind(len(records))
	brnoOwner := make(map[string]int) // normalized brno -> first record index
	crnoOwner := make(map[string]int)
	grouped := make([]bool, len(records)) // record participates in an identifier-keyed group

	// Pass 1: exact-identifier clustering.
	for i, rec := range records {
		if nb := normalize.BRNO(rec.BRNO); nb != "" {
			if owner, ok := brnoOwner[nb]; ok {
				uf.union(i, owner)
			} else {
				brnoOwner[nb] = i
			}
			grouped[i] = true
		}
		if nc := normalize.CRNO(rec.CRNO); nc != "" {
			if owner, ok := crnoOwner[nc]; ok {
				uf.union(i, owner)
			} else {
				crnoOwner[nc] = i
			}
			grouped[i] = true
		}
	}

	// Pass 2: cross-field reconciliation. A record carrying both
	// identifiers bridges the groups that first claimed each of them,
	// even when those groups diverged before this record was seen.
	for i, rec := range records {
		nb, nc := normalize.BRNO(rec.BRNO), normalize.CRNO(rec.CRNO)
		if nb == "" || nc == "" {
			continue
		}
		uf.union(i, brnoOwner[nb])
		uf.union(i, crnoOwner[nc])
	}

	// Pass 3: inter-group name merge. Catches the same company keyed once
	// by brno and once only by crno with no record holding both.
	roots := identifierRoots(uf, grouped)
	for i := 0; i < len(roots); i++ {
		for j := i + 1; j < len(roots); j++ {
			if uf.same(roots[i], roots[j]) {
				continue
			}
			if groupsShareName(records, uf, roots[i], roots[j]) {
				uf.union(roots[i], roots[j])
			}
		}
	}

	// Pass 4: fuzzy attachment of identifier-less records.
	roots = identifierRoots(uf, grouped)
	for i, rec := range records {
		if grouped[i] || normalize.Name(rec.CompanyName) == "" {
			continue
		}
		if best, ok := bestGroup(records, uf, roots, rec.CompanyName); ok {
			uf.union(i, best)
			grouped[i] = true
		}
	}

	return finalize(records, uf, grouped)
}

// identifierRoots returns the distinct roots of all identifier-keyed groups,
// in first-seen record order.
func identifierRoots(uf *unionFind, grouped []bool) []int {
	seen := make(map[int]bool)
	var roots []int
	for i, g := range grouped {
		if !g {
			continue
		}
		r := uf.find(i)
		if !seen[r] {
			seen[r] = true
			roots = append(roots, r)
		}
	}
	return roots
}

// groupsShareName reports whether any member name of group a clears
// MatchThreshold against any member name of group b.
func groupsShareName(records []company.SourceRecord, uf *unionFind, a, b int) bool {
	for i, ri := range records {
		if uf.find(i) != uf.find(a) || ri.CompanyName == "" {
			continue
		}
		for j, rj := range records {
			if uf.find(j) != uf.find(b) || rj.CompanyName == "" {
				continue
			}
			if normalize.NameSimilarity(ri.CompanyName, rj.CompanyName) >= MatchThreshold {
				return true
			}
		}
	}
	return false
}

// bestGroup finds the group whose members best match name, if the best
// similarity clears MatchThreshold.
func bestGroup(records []company.SourceRecord, uf *unionFind, roots []int, name string) (int, bool) {
	bestRoot, bestScore := -1, 0.0
	for _, root := range roots {
		for i, rec := range records {
			if uf.find(i) != uf.find(root) || rec.CompanyName == "" {
				continue
			}
			if s := normalize.NameSimilarity(name, rec.CompanyName); s > bestScore {
				bestScore = s
				bestRoot = root
			}
		}
	}
	if bestRoot >= 0 && bestScore >= MatchThreshold {
		return bestRoot, true
	}
	return -1, false
}

// finalize builds entities out of surviving groups and collects unmatched
// records.
func finalize(records []company.SourceRecord, uf *unionFind, grouped []bool) company.Resolution {
	members := make(map[int][]int) // root -> member indices in input order
	var order []int
	for i := range records {
		if !grouped[i] {
			continue
		}
		r := uf.find(i)
		if _, ok := members[r]; !ok {
			order = append(order, r)
		}
		members[r] = append(members[r], i)
	}

	entities := make([]company.Entity, 0, len(order))
	for clusterIdx, root := range order {
		entities = append(entities, buildEntity(records, members[root], clusterIdx))
	}

	unmatched := make([]company.SourceRecord, 0)
	for i, rec := range records {
		if !grouped[i] {
			unmatched = append(unmatched, rec)
		}
	}

	return company.Resolution{Entities: entities, Unmatched: unmatched}
}

// buildEntity assembles one entity from its member records.
func buildEntity(records []company.SourceRecord, idxs []int, clusterIdx int) company.Entity {
	var e company.Entity
	seenSource := make(map[company.SourceID]bool)
	seenVariant := make(map[string]bool)

	for _, i := range idxs {
		rec := records[i]
		e.Members = append(e.Members, rec)
		if e.Identifiers.BRNO == "" {
			e.Identifiers.BRNO = normalize.BRNO(rec.BRNO)
		}
		if e.Identifiers.CRNO == "" {
			e.Identifiers.CRNO = normalize.CRNO(rec.CRNO)
		}
		if !seenSource[rec.Source] {
			seenSource[rec.Source] = true
			e.Sources = append(e.Sources, rec.Source)
		}
		if rec.CompanyName != "" && !seenVariant[rec.CompanyName] {
			seenVariant[rec.CompanyName] = true
			e.NameVariants = append(e.NameVariants, rec.CompanyName)
		}
	}

	switch {
	case e.Identifiers.BRNO != "":
		e.ID = "brno-" + e.Identifiers.BRNO
	case e.Identifiers.CRNO != "":
		e.ID = "crno-" + e.Identifiers.CRNO
	default:
		e.ID = fmt.Sprintf("cluster-%d", clusterIdx)
	}

	e.CanonicalName = canonicalName(e.Members)
	e.Confidence = confidence(e.Members)
	e.MatchLevel = Level(e.Confidence)
	return e
}

// Level maps a confidence score to its coarse match-level bucket.
func Level(confidence float64) company.MatchLevel {
	switch {
	case confidence >= MatchThreshold:
		return company.MatchLevelMatch
	case confidence >= ProbableThreshold:
		return company.MatchLevelProbable
	default:
		return company.MatchLevelNoMatch
	}
}

// canonicalSeparators split a raw name from a trailing project or
// employment-type suffix ("삼성전자_판교R&D" style feeds).
const canonicalSeparators = "_/"

// canonicalName votes on the canonical surface form: most frequent
// normalized name wins, ties broken by shortest normalized length.
func canonicalName(members []company.SourceRecord) string {
	counts := make(map[string]int)
	var order []string
	for _, m := range members {
		n := normalize.Name(truncateAtSeparator(m.CompanyName))
		if n == "" {
			continue
		}
		if counts[n] == 0 {
			order = append(order, n)
		}
		counts[n]++
	}
	if len(order) == 0 {
		return ""
	}
	sort.SliceStable(order, func(i, j int) bool {
		if counts[order[i]] != counts[order[j]] {
			return counts[order[i]] > counts[order[j]]
		}
		return len([]rune(order[i])) < len([]rune(order[j]))
	})
	return order[0]
}

// truncateAtSeparator cuts a raw name at its first separator, but only when
// the remaining prefix is long enough to still name a company. Ordinary
// names with a separator inside a short leading token pass through intact.
func truncateAtSeparator(name string) string {
	idx := strings.IndexAny(name, canonicalSeparators)
	if idx <= 0 {
		return name
	}
	prefix := strings.TrimSpace(name[:idx])
	if len([]rune(prefix)) < 2 {
		return name
	}
	return prefix
}

// confidence is the mean pairwise weighted-field-agreement score across all
// member pairs. Groups of zero or one member are fully confident by
// definition.
func confidence(members []company.SourceRecord) float64 {
	if len(members) <= 1 {
		return 1.0
	}
	var total float64
	var pairs int
	for i := 0; i < len(members); i++ {
		for j := i + 1; j < len(members); j++ {
			total += pairScore(members[i], members[j])
			pairs++
		}
	}
	return total / float64(pairs)
}

// pairScore scores field agreement between two records, weighting each
// field and normalizing by the weights actually applicable (both sides
// non-empty).
func pairScore(a, b company.SourceRecord) float64 {
	var score, applicable float64

	if na, nb := normalize.BRNO(a.BRNO), normalize.BRNO(b.BRNO); na != "" && nb != "" {
		applicable += weightBRNO
		if na == nb {
			score += weightBRNO
		}
	}
	if na, nb := normalize.CRNO(a.CRNO), normalize.CRNO(b.CRNO); na != "" && nb != "" {
		applicable += weightCRNO
		if na == nb {
			score += weightCRNO
		}
	}
	if a.CompanyName != "" && b.CompanyName != "" {
		applicable += weightName
		score += weightName * normalize.NameSimilarity(a.CompanyName, b.CompanyName)
	}
	if a.Address != "" && b.Address != "" {
		applicable += weightAddress
		if fieldEqual(a.Address, b.Address) {
			score += weightAddress
		}
	}
	if a.Representative != "" && b.Representative != "" {
		applicable += weightRepresentative
		if fieldEqual(a.Representative, b.Representative) {
			score += weightRepresentative
		}
	}
	if a.IndustryCode != "" && b.IndustryCode != "" {
		applicable += weightIndustry
		if strings.TrimSpace(a.IndustryCode) == strings.TrimSpace(b.IndustryCode) {
			score += weightIndustry
		}
	}

	if applicable == 0 {
		return 0
	}
	return score / applicable
}

// fieldEqual compares free-text fields after whitespace normalization.
func fieldEqual(a, b string) bool {
	return strings.Join(strings.Fields(a), " ") == strings.Join(strings.Fields(b), " ")
}
