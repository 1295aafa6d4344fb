package spending

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/govscout/internal/resilience"
	"github.com/sells-group/govscout/internal/store"
)

type fakePoster struct {
	calls     int
	responses map[string]categoryResponse // keyed by time period start date
	err       error
}

func (f *fakePoster) PostJSON(_ context.Context, _ string, body, out any) error {
	f.calls++
	if f.err != nil {
		return f.err
	}
	req := body.(categoryRequest)
	resp := f.responses[req.Filters.TimePeriod[0].StartDate]
	data, _ := json.Marshal(resp)
	return json.Unmarshal(data, out)
}

func fixedNow() time.Time {
	return time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
}

func newTestClient(poster Poster, st store.Store) *Client {
	c := New(poster, st, "")
	c.now = fixedNow
	return c
}

func agencyResults(rows ...[2]any) categoryResponse {
	var resp categoryResponse
	for _, r := range rows {
		resp.Results = append(resp.Results, struct {
			Name   string  `json:"name"`
			Amount float64 `json:"amount"`
		}{Name: r[0].(string), Amount: r[1].(float64)})
	}
	return resp
}

func TestGetSpendingAggregates(t *testing.T) {
	poster := &fakePoster{responses: map[string]categoryResponse{
		"2025-10-01": agencyResults([2]any{"Department of Defense", 1_000_000.0}, [2]any{"GSA", 250_000.0}),
		"2024-10-01": agencyResults([2]any{"Department of Defense", 800_000.0}),
		"2023-10-01": agencyResults([2]any{"NASA", 400_000.0}),
	}}
	mem := store.NewMemory()
	c := newTestClient(poster, mem)

	trends, err := c.GetSpending(context.Background(), "541511")
	require.NoError(t, err)
	assert.Equal(t, 3, poster.calls)
	assert.Equal(t, "541511", trends.NAICSCode)
	assert.Equal(t, "USASpending.gov", trends.Source)

	// Years come back oldest first.
	require.Len(t, trends.FiscalYears, 3)
	assert.Equal(t, 2024, trends.FiscalYears[0].FiscalYear)
	assert.Equal(t, "NASA", trends.FiscalYears[0].TopAgency)
	assert.Equal(t, 2026, trends.FiscalYears[2].FiscalYear)
	assert.Equal(t, 1_250_000.0, trends.FiscalYears[2].TotalObligated)
	assert.Equal(t, "Department of Defense", trends.FiscalYears[2].TopAgency)

	assert.Equal(t, 2_450_000.0, trends.Total3YrObligated)
}

func TestGetSpendingCacheHit(t *testing.T) {
	poster := &fakePoster{responses: map[string]categoryResponse{
		"2025-10-01": agencyResults([2]any{"GSA", 100.0}),
		"2024-10-01": {},
		"2023-10-01": {},
	}}
	mem := store.NewMemory()
	c := newTestClient(poster, mem)

	_, err := c.GetSpending(context.Background(), "541511")
	require.NoError(t, err)
	require.Equal(t, 3, poster.calls)

	// Second call inside the TTL never touches the API.
	trends, err := c.GetSpending(context.Background(), "541511")
	require.NoError(t, err)
	assert.Equal(t, 3, poster.calls)
	assert.Equal(t, 100.0, trends.Total3YrObligated)
}

func TestGetSpendingDegradesOnFailure(t *testing.T) {
	poster := &fakePoster{err: eris.New("api.usaspending.gov returned status 503")}
	c := newTestClient(poster, store.NewMemory())

	trends, err := c.GetSpending(context.Background(), "541511")
	require.NoError(t, err)
	assert.Empty(t, trends.FiscalYears)
	assert.Zero(t, trends.Total3YrObligated)

	// Empty results are not cached, so the next call retries.
	_, err = c.GetSpending(context.Background(), "541511")
	require.NoError(t, err)
	assert.Equal(t, 6, poster.calls)
}

// flakyPoster fails the first n calls with a transient error, then
// serves the canned response.
type flakyPoster struct {
	mu       sync.Mutex
	failures int
	calls    int
	resp     categoryResponse
}

func (f *flakyPoster) PostJSON(_ context.Context, _ string, _, out any) error {
	f.mu.Lock()
	f.calls++
	n := f.calls
	f.mu.Unlock()
	if n <= f.failures {
		return resilience.NewTransientError(eris.New("api.usaspending.gov returned status 502"), 502)
	}
	data, _ := json.Marshal(f.resp)
	return json.Unmarshal(data, out)
}

func TestGetSpendingRetriesTransientFailures(t *testing.T) {
	poster := &flakyPoster{failures: 1, resp: agencyResults([2]any{"GSA", 100.0})}
	c := newTestClient(poster, store.NewMemory())
	c.retry.InitialBackoff = time.Millisecond
	c.retry.JitterFraction = 0

	trends, err := c.GetSpending(context.Background(), "541511")
	require.NoError(t, err)
	// One transient failure costs one extra call; no year is lost.
	require.Len(t, trends.FiscalYears, 3)
	assert.Equal(t, 4, poster.calls)
	assert.Equal(t, 300.0, trends.Total3YrObligated)
}

func TestFiscalYears(t *testing.T) {
	// August 2026 sits inside FY2026.
	years := fiscalYears(time.Date(2026, 8, 29, 0, 0, 0, 0, time.UTC), 3)
	require.Len(t, years, 3)
	assert.Equal(t, 2026, years[0].FiscalYear)
	assert.Equal(t, "2025-10-01", years[0].Start)
	assert.Equal(t, "2026-09-30", years[0].End)
	assert.Equal(t, 2024, years[2].FiscalYear)

	// October rolls into the next fiscal year.
	years = fiscalYears(time.Date(2026, 10, 2, 0, 0, 0, 0, time.UTC), 1)
	assert.Equal(t, 2027, years[0].FiscalYear)
	assert.Equal(t, "2026-10-01", years[0].Start)
}
