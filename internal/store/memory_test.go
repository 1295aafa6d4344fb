package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/govscout/internal/model"
)

func TestMemoryUpsertPreservesFirstSeen(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()

	_, err := s.UpsertOpportunities(ctx, []model.Opportunity{
		{NoticeID: "sam-001", Title: "Original"},
	})
	require.NoError(t, err)

	first, err := s.GetOpportunity(ctx, "sam-001")
	require.NoError(t, err)

	time.Sleep(5 * time.Millisecond)
	_, err = s.UpsertOpportunities(ctx, []model.Opportunity{
		{NoticeID: "sam-001", Title: "Updated"},
	})
	require.NoError(t, err)

	second, err := s.GetOpportunity(ctx, "sam-001")
	require.NoError(t, err)
	assert.Equal(t, "Updated", second.Title)
	assert.Equal(t, first.FirstSeenAt, second.FirstSeenAt)
	assert.True(t, second.LastUpdatedAt.After(first.FirstSeenAt) ||
		second.LastUpdatedAt.Equal(first.FirstSeenAt))
}

func TestMemoryListFilters(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()

	_, err := s.UpsertOpportunities(ctx, []model.Opportunity{
		{NoticeID: "a", Title: "Robotics maintenance", NAICSCode: "541511", Department: "DEPT OF DEFENSE"},
		{NoticeID: "b", Title: "Lawn care", NAICSCode: "561730", Department: "GSA"},
		{NoticeID: "c", Description: "advanced robotics lab", NAICSCode: "541511", Department: "NASA"},
	})
	require.NoError(t, err)

	got, err := s.ListOpportunities(ctx, model.SearchFilters{Keywords: "ROBOTICS"})
	require.NoError(t, err)
	assert.Len(t, got, 2)

	got, err = s.ListOpportunities(ctx, model.SearchFilters{NAICSCodes: []string{"561730"}})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "b", got[0].NoticeID)

	got, err = s.ListOpportunities(ctx, model.SearchFilters{Department: "defense"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "a", got[0].NoticeID)

	got, err = s.ListOpportunities(ctx, model.SearchFilters{Limit: 2})
	require.NoError(t, err)
	assert.Len(t, got, 2)

	got, err = s.ListOpportunities(ctx, model.SearchFilters{Offset: 10})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestMemoryClusterCRUD(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()

	cluster := &model.CapabilityCluster{Name: "Robotics Division", NAICSCodes: []string{"541511"}}
	require.NoError(t, s.UpsertCluster(ctx, cluster))
	assert.NotEmpty(t, cluster.ID)

	require.NoError(t, s.UpsertCluster(ctx, &model.CapabilityCluster{Name: "Facilities"}))

	clusters, err := s.ListClusters(ctx)
	require.NoError(t, err)
	require.Len(t, clusters, 2)
	assert.Equal(t, "Facilities", clusters[0].Name)

	require.NoError(t, s.DeleteCluster(ctx, cluster.ID))
	assert.ErrorIs(t, s.DeleteCluster(ctx, cluster.ID), ErrNotFound)

	_, err = s.GetCluster(ctx, cluster.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestMemoryPursuitLifecycle(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()

	p := &model.Pursuit{OpportunityID: "sam-001"}
	require.NoError(t, s.CreatePursuit(ctx, p))
	assert.Equal(t, model.PursuitIdentified, p.Status)

	p.Status = model.PursuitCapture
	require.NoError(t, s.UpdatePursuit(ctx, p))

	captured, err := s.ListPursuits(ctx, ListPursuitsFilter{Status: model.PursuitCapture})
	require.NoError(t, err)
	require.Len(t, captured, 1)

	empty, err := s.ListPursuits(ctx, ListPursuitsFilter{Status: model.PursuitWon})
	require.NoError(t, err)
	assert.Empty(t, empty)

	require.NoError(t, s.DeletePursuit(ctx, p.ID))
	assert.ErrorIs(t, s.UpdatePursuit(ctx, p), ErrNotFound)
}

func TestMemorySemanticAndSpendingCaches(t *testing.T) {
	s := NewMemory()
	ctx := context.Background()

	require.NoError(t, s.SaveSemanticScore(ctx, &SemanticScore{
		NoticeID: "sam-001", ClusterID: "cl-1", Score: 18,
	}))
	got, err := s.GetSemanticScore(ctx, "sam-001", "cl-1")
	require.NoError(t, err)
	assert.Equal(t, 18.0, got.Score)

	_, err = s.GetSemanticScore(ctx, "sam-001", "cl-other")
	assert.ErrorIs(t, err, ErrNotFound)

	require.NoError(t, s.SaveSpendingCache(ctx, "spending:97", []byte(`{"total":1}`)))
	payload, err := s.GetSpendingCache(ctx, "spending:97", time.Hour)
	require.NoError(t, err)
	assert.JSONEq(t, `{"total":1}`, string(payload))

	_, err = s.GetSpendingCache(ctx, "missing", time.Hour)
	assert.ErrorIs(t, err, ErrNotFound)
}
