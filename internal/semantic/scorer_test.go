package semantic

import (
	"context"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/govscout/internal/matcher"
	"github.com/sells-group/govscout/internal/model"
	"github.com/sells-group/govscout/internal/resilience"
	"github.com/sells-group/govscout/internal/store"
	"github.com/sells-group/govscout/pkg/anthropic"
)

type fakeClient struct {
	responses []string
	err       error
	calls     []anthropic.MessageRequest
}

func (f *fakeClient) CreateMessage(_ context.Context, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	f.calls = append(f.calls, req)
	if f.err != nil {
		return nil, f.err
	}
	text := "0"
	if len(f.responses) > 0 {
		text = f.responses[0]
		f.responses = f.responses[1:]
	}
	return &anthropic.MessageResponse{
		Content: []anthropic.ContentBlock{{Type: "text", Text: text}},
	}, nil
}

func testCluster() model.CapabilityCluster {
	return model.CapabilityCluster{
		ID:                    "cl-it",
		Name:                  "IT Services",
		NAICSCodes:            []string{"541511"},
		CapabilityDescription: "Custom software development for federal agencies.",
	}
}

func scoredFixture() []model.ScoredOpportunity {
	return []model.ScoredOpportunity{
		{
			Opportunity:   model.Opportunity{NoticeID: "a", Title: "Software Support", Description: "Build software."},
			MatchScore:    model.MatchScore{Overall: 50, NAICS: 30, SetAside: 20, Explanation: "NAICS match (30/30)"},
			MatchTier:     model.MatchTierMedium,
			BestClusterID: "cl-it",
		},
		{
			Opportunity:   model.Opportunity{NoticeID: "b", Title: "Helpdesk"},
			MatchScore:    model.MatchScore{Overall: 20, NAICS: 20},
			MatchTier:     model.MatchTierLow,
			BestClusterID: "cl-it",
		},
		{
			Opportunity: model.Opportunity{NoticeID: "c", Title: "Lawn Care"},
			MatchScore:  model.MatchScore{},
			MatchTier:   model.MatchTierLow,
		},
	}
}

func newScorer(client anthropic.Client, st store.Store, maxPerRun int) *Scorer {
	return NewScorer(client, st, matcher.New(matcher.DefaultConfig()), Options{MaxPerRun: maxPerRun})
}

func TestEnrichScoresTopCandidates(t *testing.T) {
	client := &fakeClient{responses: []string{"80", "50"}}
	mem := store.NewMemory()
	s := newScorer(client, mem, 2)

	out := s.Enrich(context.Background(), scoredFixture(), []model.CapabilityCluster{testCluster()}, nil)

	// Two candidates scored, highest NAICS first; "c" has no cluster
	// and no profile so it never becomes a candidate.
	require.Len(t, client.calls, 2)

	// 80/100 scales to 24/30; 50+24=74 crosses the high threshold.
	require.Equal(t, "a", out[0].Opportunity.NoticeID)
	assert.Equal(t, 24.0, out[0].MatchScore.Semantic)
	assert.Equal(t, 74.0, out[0].MatchScore.Overall)
	assert.Equal(t, model.MatchTierHigh, out[0].MatchTier)
	assert.Contains(t, out[0].MatchScore.Explanation, "Semantic: 24/30")

	assert.Equal(t, "b", out[1].Opportunity.NoticeID)
	assert.Equal(t, 15.0, out[1].MatchScore.Semantic)
	assert.Equal(t, 35.0, out[1].MatchScore.Overall)

	// The judgment landed in the cache.
	cached, err := mem.GetSemanticScore(context.Background(), "a", "cl-it")
	require.NoError(t, err)
	assert.Equal(t, 24.0, cached.Score)
}

func TestEnrichUsesCache(t *testing.T) {
	mem := store.NewMemory()
	require.NoError(t, mem.SaveSemanticScore(context.Background(), &store.SemanticScore{
		NoticeID: "a", ClusterID: "cl-it", Score: 27,
	}))

	client := &fakeClient{err: eris.New("should not be called for cached pairs")}
	s := newScorer(client, mem, 1)

	out := s.Enrich(context.Background(), scoredFixture()[:1], []model.CapabilityCluster{testCluster()}, nil)
	assert.Equal(t, 27.0, out[0].MatchScore.Semantic)
	assert.Equal(t, 77.0, out[0].MatchScore.Overall)
	assert.Empty(t, client.calls)
}

func TestEnrichProfileFallback(t *testing.T) {
	client := &fakeClient{responses: []string{"60"}}
	mem := store.NewMemory()
	s := newScorer(client, mem, 1)

	profile := &model.CompanyProfile{CapabilityStatement: "General IT services."}
	scored := scoredFixture()[2:] // no cluster tag

	out := s.Enrich(context.Background(), scored, nil, profile)
	assert.Equal(t, 18.0, out[0].MatchScore.Semantic)

	// Profile-based judgments cache under the pseudo cluster id.
	cached, err := mem.GetSemanticScore(context.Background(), "c", "profile")
	require.NoError(t, err)
	assert.Equal(t, 18.0, cached.Score)
}

func TestEnrichNoClient(t *testing.T) {
	s := newScorer(nil, store.NewMemory(), 10)
	scored := scoredFixture()
	out := s.Enrich(context.Background(), scored, []model.CapabilityCluster{testCluster()}, nil)
	assert.Equal(t, scored, out)
}

func TestEnrichClampsOutOfRange(t *testing.T) {
	client := &fakeClient{responses: []string{"150"}}
	s := newScorer(client, store.NewMemory(), 1)

	out := s.Enrich(context.Background(), scoredFixture()[:1], []model.CapabilityCluster{testCluster()}, nil)
	assert.Equal(t, 30.0, out[0].MatchScore.Semantic)
}

func TestEnrichSkipsUnparseableResponse(t *testing.T) {
	client := &fakeClient{responses: []string{"definitely a match"}}
	s := newScorer(client, store.NewMemory(), 1)

	out := s.Enrich(context.Background(), scoredFixture()[:1], []model.CapabilityCluster{testCluster()}, nil)
	assert.Zero(t, out[0].MatchScore.Semantic)
	assert.Equal(t, 50.0, out[0].MatchScore.Overall)
}

func TestEnrichCapabilityRidesInCachedSystemBlock(t *testing.T) {
	client := &fakeClient{responses: []string{"10"}}
	s := newScorer(client, store.NewMemory(), 1)

	s.Enrich(context.Background(), scoredFixture()[:1], []model.CapabilityCluster{testCluster()}, nil)
	require.Len(t, client.calls, 1)
	require.Len(t, client.calls[0].System, 1)
	assert.Contains(t, client.calls[0].System[0].Text, "Custom software development")
	require.NotNil(t, client.calls[0].System[0].CacheControl)
}

// flakyClient fails the first n calls, then delegates.
type flakyClient struct {
	inner    fakeClient
	failures int
	err      error
	calls    int
}

func (f *flakyClient) CreateMessage(ctx context.Context, req anthropic.MessageRequest) (*anthropic.MessageResponse, error) {
	f.calls++
	if f.calls <= f.failures {
		return nil, f.err
	}
	return f.inner.CreateMessage(ctx, req)
}

func TestEnrichRetriesTransientFailures(t *testing.T) {
	client := &flakyClient{
		inner:    fakeClient{responses: []string{"80"}},
		failures: 2,
		err:      resilience.NewTransientError(eris.New("529 overloaded"), 529),
	}
	s := newScorer(client, store.NewMemory(), 1)
	s.retry.InitialBackoff = time.Millisecond
	s.retry.JitterFraction = 0

	out := s.Enrich(context.Background(), scoredFixture()[:1], []model.CapabilityCluster{testCluster()}, nil)
	assert.Equal(t, 3, client.calls)
	assert.Equal(t, 24.0, out[0].MatchScore.Semantic)
}

func TestEnrichDoesNotRetryHardFailures(t *testing.T) {
	client := &flakyClient{failures: 5, err: eris.New("invalid request")}
	s := newScorer(client, store.NewMemory(), 1)
	s.retry.InitialBackoff = time.Millisecond

	out := s.Enrich(context.Background(), scoredFixture()[:1], []model.CapabilityCluster{testCluster()}, nil)
	assert.Equal(t, 1, client.calls)
	assert.Zero(t, out[0].MatchScore.Semantic)
}

func TestRoundTenth(t *testing.T) {
	assert.Equal(t, 24.0, roundTenth(24.0))
	assert.Equal(t, 16.7, roundTenth(16.666))
	assert.Equal(t, 0.1, roundTenth(0.05))
}
