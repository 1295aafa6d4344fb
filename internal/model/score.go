package model

// Match tier labels assigned from the overall score.
const (
	MatchTierHigh     = "high"
	MatchTierMedium   = "medium"
	MatchTierLow      = "low"
	MatchTierUnscored = "unscored"
)

// MatchScore breaks down how well an opportunity matches a scoring target.
// Each sub-score has its own cap; Overall is min(sum, 100). Recomputing
// Overall after a later semantic update must reuse the four stored
// deterministic sub-scores, never a stale total.
type MatchScore struct {
	Overall     float64 `json:"overall_score"`
	NAICS       float64 `json:"naics_score"`     // 0-30
	SetAside    float64 `json:"set_aside_score"` // 0-20
	Agency      float64 `json:"agency_score"`    // 0-10
	Geo         float64 `json:"geo_score"`       // 0-10
	Semantic    float64 `json:"semantic_score"`  // 0-30
	Explanation string  `json:"explanation,omitempty"`
}

// Recompute sets Overall from the stored sub-scores, capped at 100.
func (m *MatchScore) Recompute() {
	total := m.NAICS + m.SetAside + m.Agency + m.Geo + m.Semantic
	if total > 100 {
		total = 100
	}
	m.Overall = total
}

// ScoredOpportunity pairs an opportunity with its match score, tier, and
// (in cluster mode) the best-matching cluster.
type ScoredOpportunity struct {
	Opportunity     Opportunity `json:"opportunity"`
	MatchScore      MatchScore  `json:"match_score"`
	MatchTier       string      `json:"match_tier"`
	BestClusterID   string      `json:"best_cluster_id,omitempty"`
	BestClusterName string      `json:"best_cluster_name,omitempty"`
	Analysis        string      `json:"analysis,omitempty"`
}
