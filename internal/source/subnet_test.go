package source

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/govscout/internal/fetcher"
	"github.com/sells-group/govscout/internal/model"
)

const subnetListingHTML = `<html><body>
<table class="usa-table">
  <thead><tr><th>Description</th><th>Closing</th><th>Start</th><th>Place</th><th>NAICS</th><th>Contact</th></tr></thead>
  <tbody>
    <tr>
      <td>
        <span class="subnet_title"><a href="/subcontracting/opportunity/98765">Electrical Subcontractor Needed</a></span>
        <span class="subnet_business_name">MegaPrime Construction LLC</span>
        <p>Seeking licensed electrical subcontractor for federal building renovation.</p>
      </td>
      <td>12/31/2025</td>
      <td></td>
      <td>Virginia</td>
      <td>238210: Electrical Contractors</td>
      <td><a href="mailto:subs@megaprime.com">Pat Doe</a><a href="tel:+15551234567">555-123-4567</a></td>
    </tr>
    <tr>
      <td>
        <span class="subnet_title"><a href="/subcontracting/opportunity/11111">IT Support Partner</a></span>
        <p>Helpdesk staffing under a GSA schedule.</p>
      </td>
      <td></td>
      <td></td>
      <td>Texas</td>
      <td>541513: Computer Facilities Management</td>
      <td></td>
    </tr>
    <tr><td>malformed row</td></tr>
  </tbody>
</table>
</body></html>`

func newSubNetTestClient(t *testing.T, handler http.HandlerFunc) *SubNetClient {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewSubNetClient(
		fetcher.New(fetcher.Options{Timeout: 5 * time.Second, RequestsPerSecond: 1000}),
		SubNetOptions{ListURL: srv.URL, MaxPages: 2},
	)
}

func TestSubNetSearchParsesListing(t *testing.T) {
	pages := 0
	client := newSubNetTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		pages++
		if r.URL.Query().Get("page") == "0" {
			_, _ = w.Write([]byte(subnetListingHTML))
			return
		}
		_, _ = w.Write([]byte(`<html><body><table class="usa-table"><tbody></tbody></table></body></html>`))
	})

	opps, err := client.Search(context.Background(), model.SearchFilters{})
	require.NoError(t, err)
	require.Len(t, opps, 2)

	first := opps[0]
	assert.Equal(t, "subnet:98765", first.NoticeID)
	assert.Equal(t, "Electrical Subcontractor Needed", first.Title)
	assert.Equal(t, "MegaPrime Construction LLC", first.Department)
	assert.Equal(t, "238210", first.NAICSCode)
	assert.Equal(t, "Electrical Contractors", first.NAICSDescription)
	assert.Equal(t, "Virginia, UNITED STATES", first.PlaceOfPerformance)
	assert.Equal(t, "2025-12-31T23:59:00", first.ResponseDeadline)
	assert.Equal(t, "subs@megaprime.com", first.ContactEmail)
	assert.Equal(t, "https://www.sba.gov/subcontracting/opportunity/98765", first.Link)
	assert.Equal(t, "subnet", first.Source)
	assert.Equal(t, "Subcontracting Opportunity", first.OpportunityType)

	second := opps[1]
	assert.Equal(t, "subnet:11111", second.NoticeID)
	assert.Empty(t, second.ResponseDeadline)
	assert.Empty(t, second.ContactEmail)

	// Empty second page terminates pagination.
	assert.Equal(t, 2, pages)
}

func TestSubNetSearchKeywordFilter(t *testing.T) {
	client := newSubNetTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "electrical", r.URL.Query().Get("keyword"))
		_, _ = w.Write([]byte(`<html><body></body></html>`))
	})

	opps, err := client.Search(context.Background(), model.SearchFilters{Keywords: "electrical"})
	require.NoError(t, err)
	assert.Empty(t, opps)
}

func TestSubNetSearchHTTPFailureReturnsPartial(t *testing.T) {
	calls := 0
	client := newSubNetTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls == 1 {
			_, _ = w.Write([]byte(subnetListingHTML))
			return
		}
		w.WriteHeader(http.StatusInternalServerError)
	})

	opps, err := client.Search(context.Background(), model.SearchFilters{})
	require.NoError(t, err)
	assert.Len(t, opps, 2)
}

func TestParseSubNetDate(t *testing.T) {
	assert.Equal(t, "2025-12-31T23:59:00", parseSubNetDate("12/31/2025"))
	assert.Equal(t, "2025-01-05T23:59:00", parseSubNetDate("1/5/2025"))
	assert.Empty(t, parseSubNetDate(""))
	assert.Empty(t, parseSubNetDate("TBD"))
}

func TestNormalizeState(t *testing.T) {
	assert.Equal(t, "Virginia, UNITED STATES", normalizeState("Virginia"))
	assert.Equal(t, "new york, UNITED STATES", normalizeState("new york"))
	assert.Equal(t, "VA", normalizeState("VA"))
	assert.Empty(t, normalizeState(""))
}
