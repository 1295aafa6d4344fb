package digest

import (
	"bytes"
	"context"
	"encoding/csv"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/govscout/internal/model"
)

func scoredFixture() []model.ScoredOpportunity {
	value := 1_250_000.0
	return []model.ScoredOpportunity{
		{
			Opportunity: model.Opportunity{
				NoticeID:         "sam-001",
				Title:            "Network Modernization",
				Department:       "DEPT OF DEFENSE",
				NAICSCode:        "541511",
				SetAside:         "Total Small Business",
				ResponseDeadline: "2026-09-15",
				EstimatedValue:   &value,
				Link:             "https://sam.gov/opp/sam-001/view",
				Source:           "sam",
			},
			MatchScore:      model.MatchScore{Overall: 74.5},
			MatchTier:       model.MatchTierHigh,
			BestClusterName: "IT Services",
		},
		{
			Opportunity: model.Opportunity{NoticeID: "sam-002", Title: "Janitorial"},
			MatchScore:  model.MatchScore{Overall: 20},
			MatchTier:   model.MatchTierLow,
		},
	}
}

func TestSendRunDigest(t *testing.T) {
	var got Payload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
	}))
	defer srv.Close()

	n := NewNotifier(srv.URL)
	runAt := time.Date(2026, 8, 29, 12, 0, 0, 0, time.UTC)
	require.NoError(t, n.SendRunDigest(context.Background(), runAt, 40, scoredFixture()))

	assert.Equal(t, 2, got.NewCount)
	assert.Equal(t, 40, got.TotalFetched)
	require.Len(t, got.Opportunities, 2)
	assert.Equal(t, "Network Modernization", got.Opportunities[0].Title)
	assert.Equal(t, "$1,250,000", got.Opportunities[0].EstimatedValue)
	assert.Equal(t, "IT Services", got.Opportunities[0].Cluster)
}

func TestSendRunDigestSkipsWhenUnconfigured(t *testing.T) {
	n := NewNotifier("")
	require.NoError(t, n.SendRunDigest(context.Background(), time.Now(), 10, scoredFixture()))
}

func TestSendRunDigestSkipsWhenNothingNew(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		t.Fatal("webhook should not be called")
	}))
	defer srv.Close()

	n := NewNotifier(srv.URL)
	require.NoError(t, n.SendRunDigest(context.Background(), time.Now(), 10, nil))
}

func TestSendRunDigestReportsWebhookFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	n := NewNotifier(srv.URL)
	err := n.SendRunDigest(context.Background(), time.Now(), 10, scoredFixture())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "status 500")
}

func TestWriteOpportunitiesCSV(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteOpportunitiesCSV(&buf, scoredFixture()))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 3)
	assert.Equal(t, opportunityHeaders, records[0])
	assert.Equal(t, "sam-001", records[1][0])
	assert.Equal(t, "74.5", records[1][2])
	assert.Equal(t, "$1,250,000", records[1][13])
}

func TestWritePursuitsCSV(t *testing.T) {
	var buf bytes.Buffer
	pursuits := []model.Pursuit{{
		ID:            "p-1",
		OpportunityID: "sam-001",
		Status:        model.PursuitCapture,
		AssignedTeam:  []string{"J. Rivera", "M. Chen"},
		CreatedAt:     time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC),
		UpdatedAt:     time.Date(2026, 8, 29, 0, 0, 0, 0, time.UTC),
	}}
	require.NoError(t, WritePursuitsCSV(&buf, pursuits))

	records, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 2)
	assert.Equal(t, "capture", records[1][4])
	assert.Equal(t, "J. Rivera; M. Chen", records[1][5])
	assert.Equal(t, "2026-08-29", records[1][8])
}

func TestWriteOpportunitiesXLSX(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteOpportunitiesXLSX(&buf, scoredFixture()))

	f, err := xlsx.OpenBinary(buf.Bytes())
	require.NoError(t, err)
	require.Len(t, f.Sheets, 1)
	sheet := f.Sheets[0]
	assert.Equal(t, "Opportunities", sheet.Name)
	require.Len(t, sheet.Rows, 3)
	assert.Equal(t, "Notice ID", sheet.Rows[0].Cells[0].Value)
	assert.Equal(t, "Network Modernization", sheet.Rows[1].Cells[1].Value)
}

func TestFormatDollars(t *testing.T) {
	v := 1_250_000.0
	assert.Equal(t, "$1,250,000", FormatDollars(&v))
	assert.Empty(t, FormatDollars(nil))

	small := 500.0
	assert.Equal(t, "$500", FormatDollars(&small))
}
