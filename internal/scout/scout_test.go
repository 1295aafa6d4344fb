package scout

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/govscout/internal/matcher"
	"github.com/sells-group/govscout/internal/model"
	"github.com/sells-group/govscout/internal/source"
	"github.com/sells-group/govscout/internal/state"
	"github.com/sells-group/govscout/internal/store"
)

type fakeSource struct {
	name  string
	opps  []model.Opportunity
	err   error
	block chan struct{}

	mu      sync.Mutex
	filters []model.SearchFilters
}

func (f *fakeSource) Name() string { return f.name }

func (f *fakeSource) Search(ctx context.Context, filters model.SearchFilters) ([]model.Opportunity, error) {
	f.mu.Lock()
	f.filters = append(f.filters, filters)
	f.mu.Unlock()
	if f.block != nil {
		<-f.block
	}
	return f.opps, f.err
}

func (f *fakeSource) lastFilters() model.SearchFilters {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.filters[len(f.filters)-1]
}

type memCheckpoints struct {
	mu    sync.Mutex
	scout *state.ScoutState
	saves int
}

func (m *memCheckpoints) LoadScout(context.Context) (*state.ScoutState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.scout == nil {
		return &state.ScoutState{}, nil
	}
	clone := *m.scout
	return &clone, nil
}

func (m *memCheckpoints) SaveScout(_ context.Context, s *state.ScoutState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	clone := *s
	m.scout = &clone
	m.saves++
	return nil
}

func (m *memCheckpoints) LoadBackfill(context.Context) (*state.BackfillState, error) {
	return state.NewBackfillState(), nil
}
func (m *memCheckpoints) SaveBackfill(context.Context, *state.BackfillState) error { return nil }
func (m *memCheckpoints) Close() error                                             { return nil }

func seedClusters(t *testing.T, s store.Store) {
	t.Helper()
	require.NoError(t, s.UpsertCluster(context.Background(), &model.CapabilityCluster{
		ID:             "cl-it",
		Name:           "IT Services",
		NAICSCodes:     []string{"541511"},
		Certifications: []model.Certification{model.CertSB},
	}))
}

func testOpportunities() []model.Opportunity {
	return []model.Opportunity{
		{NoticeID: "sam-high", Title: "Software Support", NAICSCode: "541511", SetAside: "Total Small Business Set-Aside", Source: "sam"},
		{NoticeID: "sam-mid", Title: "IT Helpdesk", NAICSCode: "541512", Source: "sam"},
		{NoticeID: "sam-low", Title: "Lawn Care", NAICSCode: "561730", Source: "sam"},
	}
}

func toAdapters(sources []*fakeSource) []source.Adapter {
	adapters := make([]source.Adapter, len(sources))
	for i, s := range sources {
		adapters[i] = s
	}
	return adapters
}

func newTestCoordinator(sources []*fakeSource, st store.Store, cp state.Store) *Coordinator {
	c := New(toAdapters(sources), st, cp, matcher.New(matcher.DefaultConfig()), Options{
		ScoreThreshold: 40,
		Interval:       6 * time.Hour,
	})
	c.now = func() time.Time { return time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC) }
	return c
}

func TestRunNoveltyFilter(t *testing.T) {
	src := &fakeSource{name: "sam", opps: testOpportunities()}
	mem := store.NewMemory()
	seedClusters(t, mem)
	cp := &memCheckpoints{}
	c := newTestCoordinator([]*fakeSource{src}, mem, cp)

	res, err := c.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, res.TotalFetched)
	assert.Equal(t, 3, res.TotalScored)
	// NAICS 30 + set-aside 20 = 50 for sam-high; sam-mid gets the
	// 4-digit NAICS tier only (20); sam-low nothing.
	require.Len(t, res.NewOpportunities, 1)
	assert.Equal(t, "sam-high", res.NewOpportunities[0].Opportunity.NoticeID)
	assert.Equal(t, "cl-it", res.NewOpportunities[0].BestClusterID)

	// Same fetch again: everything already seen, nothing new, but the
	// run is still recorded and the watermark advances.
	res2, err := c.Run(context.Background())
	require.NoError(t, err)
	assert.Empty(t, res2.NewOpportunities)
	assert.Equal(t, 3, res2.TotalFetched)

	st, err := cp.LoadScout(context.Background())
	require.NoError(t, err)
	assert.Len(t, st.Runs, 2)
	assert.Len(t, st.SeenNoticeIDs, 3)
	require.NotNil(t, st.LastRunAt)
}

func TestRunWindowUsesWatermark(t *testing.T) {
	src := &fakeSource{name: "sam"}
	mem := store.NewMemory()
	cp := &memCheckpoints{}
	c := newTestCoordinator([]*fakeSource{src}, mem, cp)

	_, err := c.Run(context.Background())
	require.NoError(t, err)
	// No watermark yet: window starts 24 hours back.
	assert.Equal(t, "08/28/2026", src.lastFilters().PostedFrom)
	assert.Equal(t, "08/29/2026", src.lastFilters().PostedTo)

	last := time.Date(2026, 8, 25, 0, 0, 0, 0, time.UTC)
	cp.scout.LastRunAt = &last
	_, err = c.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "08/25/2026", src.lastFilters().PostedFrom)
}

func TestRunSourceFailureIsolation(t *testing.T) {
	healthy := &fakeSource{name: "sam", opps: testOpportunities()[:1]}
	broken := &fakeSource{name: "subnet", err: eris.New("connection refused")}
	mem := store.NewMemory()
	seedClusters(t, mem)
	cp := &memCheckpoints{}
	c := newTestCoordinator([]*fakeSource{healthy, broken}, mem, cp)

	res, err := c.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.TotalFetched)
	require.Contains(t, res.SourceErrors, "subnet")
	assert.Contains(t, res.SourceErrors["subnet"], "connection refused")

	// Fetched rows from the healthy source still landed in the store.
	opp, err := mem.GetOpportunity(context.Background(), "sam-high")
	require.NoError(t, err)
	assert.Equal(t, "Software Support", opp.Title)
}

type failingUpsertStore struct {
	store.Store
	err error
}

func (f *failingUpsertStore) UpsertOpportunities(context.Context, []model.Opportunity) (int64, error) {
	return 0, f.err
}

func TestRunSurvivesStoreFailure(t *testing.T) {
	src := &fakeSource{name: "sam", opps: testOpportunities()}
	mem := store.NewMemory()
	seedClusters(t, mem)
	cp := &memCheckpoints{}
	broken := &failingUpsertStore{Store: mem, err: eris.New("db down")}
	c := newTestCoordinator([]*fakeSource{src}, broken, cp)

	// A dead store degrades to in-memory operation: the run still
	// scores, surfaces novel opportunities, and advances the watermark.
	res, err := c.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, res.TotalFetched)
	assert.Equal(t, 3, res.TotalScored)
	require.Len(t, res.NewOpportunities, 1)
	assert.Equal(t, "sam-high", res.NewOpportunities[0].Opportunity.NoticeID)

	st, err := cp.LoadScout(context.Background())
	require.NoError(t, err)
	assert.Len(t, st.Runs, 1)
	assert.Len(t, st.SeenNoticeIDs, 3)
	require.NotNil(t, st.LastRunAt)
}

func TestRunSingleFlight(t *testing.T) {
	block := make(chan struct{})
	src := &fakeSource{name: "sam", block: block}
	c := newTestCoordinator([]*fakeSource{src}, store.NewMemory(), &memCheckpoints{})

	done := make(chan error, 1)
	go func() {
		_, err := c.Run(context.Background())
		done <- err
	}()

	// Wait for the first run to reach the blocked source.
	require.Eventually(t, func() bool {
		src.mu.Lock()
		defer src.mu.Unlock()
		return len(src.filters) > 0
	}, time.Second, 5*time.Millisecond)

	_, err := c.Run(context.Background())
	assert.ErrorIs(t, err, ErrRunInProgress)

	close(block)
	require.NoError(t, <-done)

	// Guard released after completion.
	_, err = c.Run(context.Background())
	require.NoError(t, err)
}

func TestRunDeduplicatesAcrossSources(t *testing.T) {
	shared := testOpportunities()[:1]
	a := &fakeSource{name: "sam", opps: shared}
	b := &fakeSource{name: "portal-al", opps: shared}
	c := newTestCoordinator([]*fakeSource{a, b}, store.NewMemory(), &memCheckpoints{})

	res, err := c.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, res.TotalFetched)
}

func TestRunUnscoredWithoutClusters(t *testing.T) {
	src := &fakeSource{name: "sam", opps: testOpportunities()}
	c := newTestCoordinator([]*fakeSource{src}, store.NewMemory(), &memCheckpoints{})

	res, err := c.Run(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, res.TotalScored)
	// Unscored results never clear the threshold.
	assert.Empty(t, res.NewOpportunities)
}

func TestStatus(t *testing.T) {
	src := &fakeSource{name: "sam", opps: testOpportunities()}
	mem := store.NewMemory()
	seedClusters(t, mem)
	cp := &memCheckpoints{}
	c := newTestCoordinator([]*fakeSource{src}, mem, cp)

	status, err := c.Status(context.Background())
	require.NoError(t, err)
	assert.False(t, status.Running)
	assert.Nil(t, status.LastRunAt)
	assert.Zero(t, status.TotalRuns)

	_, err = c.Run(context.Background())
	require.NoError(t, err)

	status, err = c.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, status.TotalRuns)
	assert.Equal(t, 3, status.TotalFetched)
	assert.Equal(t, 1, status.TotalNew)
	assert.Equal(t, 3, status.TotalTrackedIDs)
	require.NotNil(t, status.NextRunAt)
	assert.Equal(t, status.LastRunAt.Add(6*time.Hour), *status.NextRunAt)
}
