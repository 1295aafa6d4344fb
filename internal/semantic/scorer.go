// Package semantic enriches deterministically scored opportunities with
// Claude-based relevance judgments, and generates proposal outlines and
// opportunity analyses.
package semantic

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/govscout/internal/matcher"
	"github.com/sells-group/govscout/internal/model"
	"github.com/sells-group/govscout/internal/resilience"
	"github.com/sells-group/govscout/internal/store"
	"github.com/sells-group/govscout/pkg/anthropic"
)

const (
	defaultModel     = "claude-haiku-4-5-20251001"
	defaultMaxPerRun = 10
	semanticCap      = 30.0

	// Pseudo cluster id for profile-based scoring, so cache rows for
	// the two modes never collide.
	profileClusterID = "profile"
)

// Options tunes the scorer.
type Options struct {
	Model     string
	MaxPerRun int // max API calls per enrich pass
}

// Scorer adds a semantic sub-score to the most promising candidates.
// Scores are cached in the store keyed by (notice id, cluster id) so a
// repeated search never re-pays for the same judgment.
type Scorer struct {
	client anthropic.Client
	store  store.Store
	engine *matcher.Engine
	opts   Options
	retry  resilience.RetryConfig
	log    *zap.Logger
}

func NewScorer(client anthropic.Client, st store.Store, engine *matcher.Engine, opts Options) *Scorer {
	if opts.Model == "" {
		opts.Model = defaultModel
	}
	if opts.MaxPerRun <= 0 {
		opts.MaxPerRun = defaultMaxPerRun
	}
	retry := resilience.DefaultRetryConfig()
	retry.OnRetry = resilience.RetryLogger("anthropic", "semantic_score")
	return &Scorer{
		client: client,
		store:  st,
		engine: engine,
		opts:   opts,
		retry:  retry,
		log:    zap.L().With(zap.String("component", "semantic")),
	}
}

// Enrich scores the top candidates by NAICS sub-score, the ones most
// likely to be real wins, against their best cluster's capability text
// (or the profile statement when no cluster is tagged). The slice is
// updated in place, re-tiered, and re-sorted by the new overall score.
func (s *Scorer) Enrich(
	ctx context.Context,
	scored []model.ScoredOpportunity,
	clusters []model.CapabilityCluster,
	profile *model.CompanyProfile,
) []model.ScoredOpportunity {
	if s.client == nil {
		s.log.Warn("semantic scoring skipped: no API key configured")
		return scored
	}

	byID := make(map[string]model.CapabilityCluster, len(clusters))
	for _, c := range clusters {
		byID[c.ID] = c
	}

	candidates := make([]int, 0, len(scored))
	for i, so := range scored {
		if _, ok := byID[so.BestClusterID]; ok || profile != nil {
			candidates = append(candidates, i)
		}
	}
	sort.SliceStable(candidates, func(a, b int) bool {
		return scored[candidates[a]].MatchScore.NAICS > scored[candidates[b]].MatchScore.NAICS
	})
	if len(candidates) > s.opts.MaxPerRun {
		candidates = candidates[:s.opts.MaxPerRun]
	}

	for _, i := range candidates {
		so := &scored[i]
		clusterID, capability := resolveCapability(so, byID, profile)
		if capability == "" {
			continue
		}

		value, err := s.scoreOne(ctx, so.Opportunity, clusterID, capability)
		if err != nil {
			s.log.Warn("semantic scoring failed",
				zap.String("notice_id", so.Opportunity.NoticeID), zap.Error(err))
			continue
		}

		so.MatchScore.Semantic = value
		so.MatchScore.Recompute()
		so.MatchScore.Explanation += fmt.Sprintf(". Semantic: %.0f/30", value)
		so.MatchTier = s.engine.Tier(so.MatchScore.Overall)
	}

	sort.SliceStable(scored, func(a, b int) bool {
		return scored[a].MatchScore.Overall > scored[b].MatchScore.Overall
	})
	return scored
}

func resolveCapability(
	so *model.ScoredOpportunity,
	byID map[string]model.CapabilityCluster,
	profile *model.CompanyProfile,
) (string, string) {
	if c, ok := byID[so.BestClusterID]; ok {
		return c.ID, c.CapabilityText()
	}
	if profile != nil {
		return profileClusterID, profile.CapabilityText()
	}
	return "", ""
}

// scoreOne returns the cached score for the pair when one exists,
// otherwise asks Claude and caches the result.
func (s *Scorer) scoreOne(ctx context.Context, opp model.Opportunity, clusterID, capability string) (float64, error) {
	cached, err := s.store.GetSemanticScore(ctx, opp.NoticeID, clusterID)
	if err == nil {
		s.log.Debug("semantic cache hit",
			zap.String("notice_id", opp.NoticeID), zap.String("cluster_id", clusterID))
		return cached.Score, nil
	}
	if !errors.Is(err, store.ErrNotFound) {
		return 0, err
	}

	raw, err := s.callClaude(ctx, opp, capability)
	if err != nil {
		return 0, err
	}
	value := roundTenth(raw * semanticCap / 100.0)

	if saveErr := s.store.SaveSemanticScore(ctx, &store.SemanticScore{
		NoticeID:  opp.NoticeID,
		ClusterID: clusterID,
		Score:     value,
	}); saveErr != nil {
		s.log.Warn("failed to cache semantic score", zap.Error(saveErr))
	}
	s.log.Info("semantic score",
		zap.String("notice_id", opp.NoticeID),
		zap.String("cluster_id", clusterID),
		zap.Float64("raw", raw),
		zap.Float64("scaled", value))
	return value, nil
}

// callClaude asks for a 0-100 relevance score. The capability text rides
// in a cached system block since it repeats across every call of a pass.
func (s *Scorer) callClaude(ctx context.Context, opp model.Opportunity, capability string) (float64, error) {
	prompt := fmt.Sprintf(
		"Score 0-100 how well this opportunity matches the capability described "+
			"in the system prompt. Return only a number.\n\n"+
			"Opportunity: %s\n%s",
		opp.Title, clip(opp.Description, 1000))

	req := anthropic.MessageRequest{
		Model:     s.opts.Model,
		MaxTokens: 10,
		System:    anthropic.BuildCachedSystemBlocks("Capability: " + clip(capability, 800)),
		Messages:  []anthropic.Message{{Role: "user", Content: prompt}},
	}
	resp, err := resilience.DoVal(ctx, s.retry, func(ctx context.Context) (*anthropic.MessageResponse, error) {
		return s.client.CreateMessage(ctx, req)
	})
	if err != nil {
		return 0, err
	}
	resp.Usage.LogCost(s.opts.Model, "semantic")

	fields := strings.Fields(resp.Text())
	if len(fields) == 0 {
		return 0, eris.New("semantic: empty response")
	}
	value, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return 0, eris.Errorf("semantic: unparseable score %q", fields[0])
	}
	return clamp(value, 0, 100), nil
}

func clip(s string, n int) string {
	runes := []rune(s)
	if len(runes) <= n {
		return s
	}
	return string(runes[:n])
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func roundTenth(v float64) float64 {
	return float64(int(v*10+0.5)) / 10
}
