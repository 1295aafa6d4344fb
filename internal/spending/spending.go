// Package spending summarizes federal spending trends by NAICS code from
// USASpending.gov, giving users market-sizing context for their space.
package spending

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/govscout/internal/resilience"
	"github.com/sells-group/govscout/internal/store"
)

const (
	defaultBaseURL = "https://api.usaspending.gov/api/v2"
	cacheTTL       = 24 * time.Hour
	yearsBack      = 3
)

// Contract award type codes A-D (definitive contracts, purchase orders,
// delivery orders, BPA calls).
var contractTypeCodes = []string{"A", "B", "C", "D"}

// Poster is the JSON POST transport. fetcher.Client satisfies it.
type Poster interface {
	PostJSON(ctx context.Context, rawURL string, body, out any) error
}

// FiscalYear is one year of obligated spending for a NAICS code.
type FiscalYear struct {
	FiscalYear     int     `json:"fiscal_year"`
	TotalObligated float64 `json:"total_obligated"`
	TopAgency      string  `json:"top_agency,omitempty"`
}

// Trends is the multi-year spending summary for one NAICS code.
type Trends struct {
	NAICSCode         string       `json:"naics_code"`
	FiscalYears       []FiscalYear `json:"fiscal_years"`
	Total3YrObligated float64      `json:"total_3yr_obligated"`
	Source            string       `json:"source"`
	FetchedAt         time.Time    `json:"fetched_at"`
}

// Client fetches spending trends, caching results in the store for a day.
type Client struct {
	http    Poster
	store   store.Store
	baseURL string
	retry   resilience.RetryConfig
	log     *zap.Logger
	now     func() time.Time
}

func New(http Poster, st store.Store, baseURL string) *Client {
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	retry := resilience.DefaultRetryConfig()
	retry.OnRetry = resilience.RetryLogger("usaspending", "spending_by_category")
	return &Client{
		http:    http,
		store:   st,
		baseURL: baseURL,
		retry:   retry,
		log:     zap.L().With(zap.String("component", "spending")),
		now:     time.Now,
	}
}

type spendFilters struct {
	NAICSCodes     []string     `json:"naics_codes"`
	AwardTypeCodes []string     `json:"award_type_codes"`
	TimePeriod     []timePeriod `json:"time_period"`
}

type timePeriod struct {
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
}

type categoryRequest struct {
	Filters spendFilters `json:"filters"`
	Limit   int          `json:"limit"`
}

type categoryResponse struct {
	Results []struct {
		Name   string  `json:"name"`
		Amount float64 `json:"amount"`
	} `json:"results"`
}

// GetSpending returns obligated spending per fiscal year for the last
// three federal fiscal years, plus the top awarding agency of each.
// Failed years are skipped so a partial outage still yields data.
func (c *Client) GetSpending(ctx context.Context, naicsCode string) (*Trends, error) {
	cacheKey := "spending:" + naicsCode
	if payload, err := c.store.GetSpendingCache(ctx, cacheKey, cacheTTL); err == nil {
		var trends Trends
		if err := json.Unmarshal(payload, &trends); err == nil {
			c.log.Debug("spending cache hit", zap.String("naics", naicsCode))
			return &trends, nil
		}
	}

	years := fiscalYears(c.now().UTC(), yearsBack)
	results := make([]*FiscalYear, len(years))

	g, gctx := errgroup.WithContext(ctx)
	for i, fy := range years {
		g.Go(func() error {
			year, err := c.fetchFiscalYear(gctx, naicsCode, fy)
			if err != nil {
				c.log.Warn("fiscal year fetch failed",
					zap.String("naics", naicsCode), zap.Int("fy", fy.FiscalYear), zap.Error(err))
				return nil
			}
			results[i] = year
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	trends := &Trends{
		NAICSCode: naicsCode,
		Source:    "USASpending.gov",
		FetchedAt: c.now().UTC(),
	}
	// Oldest first for year-over-year reading.
	for i := len(results) - 1; i >= 0; i-- {
		if results[i] == nil {
			continue
		}
		trends.FiscalYears = append(trends.FiscalYears, *results[i])
		trends.Total3YrObligated += results[i].TotalObligated
	}
	trends.Total3YrObligated = round2(trends.Total3YrObligated)

	if len(trends.FiscalYears) > 0 {
		if payload, err := json.Marshal(trends); err == nil {
			if err := c.store.SaveSpendingCache(ctx, cacheKey, payload); err != nil {
				c.log.Warn("failed to cache spending trends", zap.Error(err))
			}
		}
	}
	return trends, nil
}

type fyWindow struct {
	FiscalYear int
	Start      string
	End        string
}

// fiscalYears returns the n most recent federal fiscal years, newest
// first. FY N runs Oct 1 of N-1 through Sep 30 of N.
func fiscalYears(now time.Time, n int) []fyWindow {
	current := now.Year()
	if now.Month() >= time.October {
		current++
	}
	out := make([]fyWindow, n)
	for i := 0; i < n; i++ {
		fy := current - i
		out[i] = fyWindow{
			FiscalYear: fy,
			Start:      fmt.Sprintf("%d-10-01", fy-1),
			End:        fmt.Sprintf("%d-09-30", fy),
		}
	}
	return out
}

// fetchFiscalYear queries awarding-agency spending for one fiscal year.
// The top result gives the leading agency; the page sum approximates the
// total obligated in the NAICS.
func (c *Client) fetchFiscalYear(ctx context.Context, naicsCode string, fy fyWindow) (*FiscalYear, error) {
	req := categoryRequest{
		Filters: spendFilters{
			NAICSCodes:     []string{naicsCode},
			AwardTypeCodes: contractTypeCodes,
			TimePeriod:     []timePeriod{{StartDate: fy.Start, EndDate: fy.End}},
		},
		Limit: 10,
	}

	var resp categoryResponse
	url := c.baseURL + "/search/spending_by_category/awarding_agency/"
	err := resilience.Do(ctx, c.retry, func(ctx context.Context) error {
		resp = categoryResponse{}
		return c.http.PostJSON(ctx, url, req, &resp)
	})
	if err != nil {
		return nil, err
	}

	year := &FiscalYear{FiscalYear: fy.FiscalYear}
	for i, r := range resp.Results {
		if i == 0 {
			year.TopAgency = r.Name
		}
		year.TotalObligated += r.Amount
	}
	year.TotalObligated = round2(year.TotalObligated)
	return year, nil
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}
