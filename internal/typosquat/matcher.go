package typosquat

import (
	"sort"

	"catchphish/internal/models"
	"catchphish/internal/validation"
)

// DefaultMinSimilarity is the exclusive lower bound of the confusable band.
const DefaultMinSimilarity = 0.8

// Scorer computes similarity between two normalized domains in [0,1].
type Scorer func(a, b string) float64

// Matcher selects candidates whose similarity to a protected domain lies in
// the open interval (MinSimilarity, 1).
type Matcher struct {
	MinSimilarity float64
	Scorer        Scorer
}

// NewMatcher creates a matcher using Ratio as the scorer.
func NewMatcher(minSimilarity float64) *Matcher {
	if minSimilarity <= 0 || minSimilarity >= 1 {
		minSimilarity = DefaultMinSimilarity
	}
	return &Matcher{MinSimilarity: minSimilarity, Scorer: Ratio}
}

// FindCandidates returns the confusable candidates for protected, sorted by
// similarity descending then candidate domain ascending. Candidates may be
// URLs or bare hosts; only the normalized host is compared. Unparseable
// entries and duplicates are dropped. An invalid protected domain yields nil.
func (m *Matcher) FindCandidates(protected string, candidates []string) []models.TyposquatCandidate {
	target, ok := validation.NormalizeDomain(protected)
	if !ok {
		return nil
	}
	score := m.Scorer
	if score == nil {
		score = Ratio
	}

	seen := make(map[string]struct{}, len(candidates))
	var out []models.TyposquatCandidate
	for _, raw := range candidates {
		d, ok := validation.NormalizeDomain(raw)
		if !ok || d == target {
			continue
		}
		if _, dup := seen[d]; dup {
			continue
		}
		seen[d] = struct{}{}

		sim := score(d, target)
		if sim <= m.MinSimilarity || sim >= 1 {
			continue
		}
		out = append(out, models.TyposquatCandidate{
			CandidateDomain: d,
			ProtectedDomain: target,
			Similarity:      sim,
		})
	}

	sort.Slice(out, func(i, j int) bool {
		if out[i].Similarity != out[j].Similarity {
			return out[i].Similarity > out[j].Similarity
		}
		return out[i].CandidateDomain < out[j].CandidateDomain
	})
	return out
}
