// Package matcher scores contracting opportunities against a company
// profile or a set of capability clusters. Scoring is deterministic and
// side-effect-free; the semantic sub-score is always zero here and is
// filled in later by the semantic analyzer.
package matcher

import (
	"fmt"
	"sort"
	"strings"

	"github.com/sells-group/govscout/internal/model"
)

// Sub-score caps.
const (
	naicsExact   = 30.0
	naicsRelated = 20.0
	naicsSector  = 10.0

	setAsideFull    = 20.0
	setAsidePartial = 15.0

	agencyMatch = 10.0
	geoMatch    = 10.0
)

// Config holds the match tier thresholds.
type Config struct {
	HighThreshold   float64
	MediumThreshold float64
}

// DefaultConfig returns the standard tier thresholds.
func DefaultConfig() Config {
	return Config{HighThreshold: 70, MediumThreshold: 50}
}

// Engine scores opportunities against scoring targets.
type Engine struct {
	cfg Config
}

// New creates an Engine with the given thresholds.
func New(cfg Config) *Engine {
	if cfg.HighThreshold == 0 {
		cfg.HighThreshold = 70
	}
	if cfg.MediumThreshold == 0 {
		cfg.MediumThreshold = 50
	}
	return &Engine{cfg: cfg}
}

// ScoreAll scores every opportunity against the company profile and returns
// the results sorted by overall score descending.
func (e *Engine) ScoreAll(opps []model.Opportunity, profile model.CompanyProfile) []model.ScoredOpportunity {
	target := ProfileTarget{Profile: profile}
	scored := make([]model.ScoredOpportunity, 0, len(opps))
	for _, opp := range opps {
		ms := e.score(opp, target, profile.AgencyPreferences, profile.GeographicPreferences)
		scored = append(scored, model.ScoredOpportunity{
			Opportunity: opp,
			MatchScore:  ms,
			MatchTier:   e.Tier(ms.Overall),
		})
	}
	sortByScore(scored)
	return scored
}

// ScoreAllWithClusters scores every opportunity against each cluster and
// tags the result with the highest-scoring cluster. On an exact score tie
// the first cluster in input order wins. Agency and geographic preferences
// are shared across clusters; they come from the parent profile.
//
// With no clusters configured, every opportunity comes back tier
// "unscored" and untagged so callers still see fetch volume before setup.
func (e *Engine) ScoreAllWithClusters(
	opps []model.Opportunity,
	clusters []model.CapabilityCluster,
	agencyPrefs, geoPrefs []string,
) []model.ScoredOpportunity {
	if len(clusters) == 0 {
		scored := make([]model.ScoredOpportunity, 0, len(opps))
		for _, opp := range opps {
			scored = append(scored, model.ScoredOpportunity{
				Opportunity: opp,
				MatchScore:  model.MatchScore{Explanation: "No capability clusters configured for matching"},
				MatchTier:   model.MatchTierUnscored,
			})
		}
		return scored
	}

	targets := make([]ClusterTarget, len(clusters))
	for i, c := range clusters {
		targets[i] = ClusterTarget{Cluster: c}
	}

	scored := make([]model.ScoredOpportunity, 0, len(opps))
	for _, opp := range opps {
		var best model.MatchScore
		var bestTarget ClusterTarget
		first := true
		for _, t := range targets {
			ms := e.score(opp, t, agencyPrefs, geoPrefs)
			if first || ms.Overall > best.Overall {
				best = ms
				bestTarget = t
				first = false
			}
		}
		scored = append(scored, model.ScoredOpportunity{
			Opportunity:     opp,
			MatchScore:      best,
			MatchTier:       e.Tier(best.Overall),
			BestClusterID:   bestTarget.TargetID(),
			BestClusterName: bestTarget.TargetName(),
		})
	}
	sortByScore(scored)
	return scored
}

// Tier classifies an overall score into a match tier.
func (e *Engine) Tier(score float64) string {
	switch {
	case score >= e.cfg.HighThreshold:
		return model.MatchTierHigh
	case score >= e.cfg.MediumThreshold:
		return model.MatchTierMedium
	default:
		return model.MatchTierLow
	}
}

// score computes the full sub-score breakdown for one opportunity against
// one target.
func (e *Engine) score(opp model.Opportunity, t Target, agencyPrefs, geoPrefs []string) model.MatchScore {
	ms := model.MatchScore{
		NAICS:    scoreNAICS(opp.NAICSCode, t.NAICSCodes()),
		SetAside: scoreSetAside(opp.SetAside, t.SetAsideKeywordGroups()),
		Agency:   scoreAgency(opp.Department, agencyPrefs),
		Geo:      scoreGeography(opp.PlaceOfPerformance, geoPrefs),
	}
	ms.Recompute()

	var signals []string
	if ms.NAICS > 0 {
		signals = append(signals, fmt.Sprintf("NAICS match (%.0f/30)", ms.NAICS))
	}
	if ms.SetAside > 0 {
		signals = append(signals, fmt.Sprintf("%s (%.0f/20)", t.SetAsideSignal(), ms.SetAside))
	}
	if ms.Agency > 0 {
		signals = append(signals, fmt.Sprintf("Preferred agency (%.0f/10)", ms.Agency))
	}
	if ms.Geo > 0 {
		signals = append(signals, fmt.Sprintf("Geographic fit (%.0f/10)", ms.Geo))
	}
	if len(signals) == 0 {
		signals = append(signals, "No strong signals, review manually")
	}
	ms.Explanation = strings.Join(signals, ". ")

	return ms
}

// scoreNAICS awards the single highest applicable tier: exact code 30,
// shared 4-digit prefix 20, shared 2-digit sector 10, otherwise 0.
func scoreNAICS(oppCode string, targetCodes []string) float64 {
	oppCode = strings.TrimSpace(oppCode)
	if oppCode == "" || len(targetCodes) == 0 {
		return 0
	}

	for _, code := range targetCodes {
		if code == oppCode {
			return naicsExact
		}
	}
	for _, code := range targetCodes {
		if len(code) >= 4 && len(oppCode) >= 4 && code[:4] == oppCode[:4] {
			return naicsRelated
		}
	}
	for _, code := range targetCodes {
		if len(code) >= 2 && len(oppCode) >= 2 && code[:2] == oppCode[:2] {
			return naicsSector
		}
	}
	return 0
}

// scoreSetAside awards 20 when any keyword from any group appears in the
// opportunity's set-aside text, 15 partial credit when the text mentions
// "small business" and the target holds any designation at all, else 0.
func scoreSetAside(oppSetAside string, groups [][]string) float64 {
	if oppSetAside == "" || len(groups) == 0 {
		return 0
	}

	text := strings.ToLower(oppSetAside)
	for _, group := range groups {
		for _, kw := range group {
			if kw != "" && strings.Contains(text, kw) {
				return setAsideFull
			}
		}
	}

	if strings.Contains(text, "small business") {
		return setAsidePartial
	}

	return 0
}

// scoreAgency awards 10 when a preference matches the opportunity's
// department, by substring in either direction or by any significant word
// (longer than 3 characters) of the preference appearing in the
// department. SAM.gov abbreviates agency names ("DEPT OF DEFENSE"), so a
// full-string comparison alone misses most real matches.
func scoreAgency(dept string, prefs []string) float64 {
	if dept == "" || len(prefs) == 0 {
		return 0
	}

	deptLower := strings.ToLower(dept)
	for _, pref := range prefs {
		prefLower := strings.ToLower(pref)
		if strings.Contains(deptLower, prefLower) || strings.Contains(prefLower, deptLower) {
			return agencyMatch
		}
		for _, word := range strings.Fields(prefLower) {
			if len(word) > 3 && strings.Contains(deptLower, word) {
				return agencyMatch
			}
		}
	}
	return 0
}

// scoreGeography awards 10 when any preference is a case-insensitive
// substring of the opportunity's place of performance.
func scoreGeography(placeOfPerformance string, prefs []string) float64 {
	if placeOfPerformance == "" || len(prefs) == 0 {
		return 0
	}

	pop := strings.ToLower(placeOfPerformance)
	for _, pref := range prefs {
		if strings.Contains(pop, strings.ToLower(pref)) {
			return geoMatch
		}
	}
	return 0
}

// sortByScore orders results by overall score descending. The sort is
// stable so equal scores keep their fetch order.
func sortByScore(scored []model.ScoredOpportunity) {
	sort.SliceStable(scored, func(i, j int) bool {
		return scored[i].MatchScore.Overall > scored[j].MatchScore.Overall
	})
}
