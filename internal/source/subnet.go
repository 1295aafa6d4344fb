package source

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.uber.org/zap"

	"github.com/sells-group/govscout/internal/fetcher"
	"github.com/sells-group/govscout/internal/model"
)

// SubNet (https://www.sba.gov/subnet) is the SBA's Subcontracting Network
// portal where prime contractors post subcontracting opportunities for
// small businesses. It has no public API; the public HTML listing page is
// scraped instead.
//
// Table columns, confirmed from live HTML:
//
//	0: description cell with title link, prime contractor, description text
//	1: closing date (M/D/YYYY, may be empty)
//	2: performance start (may be empty)
//	3: place of performance (state name)
//	4: NAICS code ("237110: Description" format)
//	5: point of contact (mailto/tel links)
const subnetSiteRoot = "https://www.sba.gov"

var naicsCellRe = regexp.MustCompile(`(\d{4,6})\s*:\s*(.+)`)

// subnetStateAbbr maps full state names to postal abbreviations; the
// listing shows full names.
var subnetStateAbbr = map[string]string{
	"alabama": "AL", "alaska": "AK", "arizona": "AZ", "arkansas": "AR",
	"california": "CA", "colorado": "CO", "connecticut": "CT", "delaware": "DE",
	"florida": "FL", "georgia": "GA", "hawaii": "HI", "idaho": "ID",
	"illinois": "IL", "indiana": "IN", "iowa": "IA", "kansas": "KS",
	"kentucky": "KY", "louisiana": "LA", "maine": "ME", "maryland": "MD",
	"massachusetts": "MA", "michigan": "MI", "minnesota": "MN",
	"mississippi": "MS", "missouri": "MO", "montana": "MT", "nebraska": "NE",
	"nevada": "NV", "new hampshire": "NH", "new jersey": "NJ",
	"new mexico": "NM", "new york": "NY", "north carolina": "NC",
	"north dakota": "ND", "ohio": "OH", "oklahoma": "OK", "oregon": "OR",
	"pennsylvania": "PA", "rhode island": "RI", "south carolina": "SC",
	"south dakota": "SD", "tennessee": "TN", "texas": "TX", "utah": "UT",
	"vermont": "VT", "virginia": "VA", "washington": "WA",
	"west virginia": "WV", "wisconsin": "WI", "wyoming": "WY",
	"district of columbia": "DC",
}

// SubNetOptions configures the SubNet scraper.
type SubNetOptions struct {
	ListURL  string
	MaxPages int
}

// SubNetClient scrapes SBA SubNet subcontracting opportunities.
type SubNetClient struct {
	http *fetcher.Client
	opts SubNetOptions
	log  *zap.Logger
}

// NewSubNetClient creates a SubNet adapter.
func NewSubNetClient(client *fetcher.Client, opts SubNetOptions) *SubNetClient {
	if opts.ListURL == "" {
		opts.ListURL = subnetSiteRoot + "/federal-contracting/contracting-guide/prime-subcontracting/subcontracting-opportunities"
	}
	if opts.MaxPages <= 0 {
		opts.MaxPages = 3
	}
	return &SubNetClient{
		http: client,
		opts: opts,
		log:  zap.L().With(zap.String("component", "subnet")),
	}
}

// Name implements Adapter.
func (c *SubNetClient) Name() string { return "subnet" }

// Search scrapes the listing pages. SubNet supports keyword filtering but
// not NAICS; NAICS relevance is handled downstream by the matcher. Paging
// stops on the first empty or failed page.
func (c *SubNetClient) Search(ctx context.Context, filters model.SearchFilters) ([]model.Opportunity, error) {
	seen := make(map[string]struct{})
	var opps []model.Opportunity

	for page := 0; page < c.opts.MaxPages; page++ {
		params := url.Values{}
		params.Set("state", "All")
		params.Set("page", fmt.Sprint(page))
		if filters.Keywords != "" {
			params.Set("keyword", filters.Keywords)
		}

		body, err := c.http.Get(ctx, c.opts.ListURL+"?"+params.Encode())
		if err != nil {
			c.log.Warn("page fetch failed", zap.Int("page", page), zap.Error(err))
			break
		}

		pageOpps, err := c.parseListing(body)
		if err != nil {
			c.log.Warn("page parse failed", zap.Int("page", page), zap.Error(err))
			break
		}
		if len(pageOpps) == 0 {
			break
		}

		for _, opp := range pageOpps {
			if _, dup := seen[opp.NoticeID]; dup {
				continue
			}
			seen[opp.NoticeID] = struct{}{}
			opps = append(opps, opp)
		}
	}

	c.log.Info("fetched opportunities", zap.Int("count", len(opps)))
	return opps, nil
}

// parseListing extracts opportunities from one listing page.
func (c *SubNetClient) parseListing(html []byte) ([]model.Opportunity, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return nil, err
	}

	table := doc.Find("table.usa-table").First()
	if table.Length() == 0 {
		c.log.Warn("listing table not found in response")
		return nil, nil
	}

	rows := table.Find("tbody tr")
	if rows.Length() == 0 {
		rows = table.Find("tr").Slice(1, goquery.ToEnd)
	}

	var opps []model.Opportunity
	rows.Each(func(_ int, row *goquery.Selection) {
		if opp, ok := c.parseRow(row); ok {
			opps = append(opps, opp)
		}
	})
	return opps, nil
}

func (c *SubNetClient) parseRow(row *goquery.Selection) (model.Opportunity, bool) {
	cells := row.Find("td")
	if cells.Length() < 4 {
		return model.Opportunity{}, false
	}

	descCell := cells.Eq(0)
	linkTag := descCell.Find("span.subnet_title a").First()
	if linkTag.Length() == 0 {
		return model.Opportunity{}, false
	}

	title := strings.TrimSpace(linkTag.Text())
	slug, _ := linkTag.Attr("href")
	if slug == "" {
		return model.Opportunity{}, false
	}

	// The slug tail is already globally unique within SubNet; prefix it so
	// ids never collide with SAM.gov notices.
	parts := strings.Split(strings.Trim(slug, "/"), "/")
	noticeID := "subnet:" + parts[len(parts)-1]

	fullLink := slug
	if strings.HasPrefix(slug, "/") {
		fullLink = subnetSiteRoot + slug
	}

	// SubNet postings come from prime contractors; the prime's name goes in
	// the department field so matching and display treat it as the posting
	// organization.
	prime := strings.TrimSpace(descCell.Find("span.subnet_business_name").First().Text())
	description := strings.TrimSpace(descCell.Find("p").First().Text())

	var closingDate string
	if cells.Length() > 1 {
		closingDate = parseSubNetDate(strings.TrimSpace(cells.Eq(1).Text()))
	}

	var pop string
	if cells.Length() > 3 {
		pop = normalizeState(strings.TrimSpace(cells.Eq(3).Text()))
	}

	var naicsCode, naicsDesc string
	if cells.Length() > 4 {
		if m := naicsCellRe.FindStringSubmatch(strings.TrimSpace(cells.Eq(4).Text())); m != nil {
			naicsCode = strings.TrimSpace(m[1])
			naicsDesc = strings.TrimSpace(m[2])
		}
	}

	var contactEmail string
	if cells.Length() > 5 {
		if href, ok := cells.Eq(5).Find(`a[href^="mailto:"]`).First().Attr("href"); ok {
			contactEmail = strings.TrimPrefix(href, "mailto:")
		}
	}

	return model.Opportunity{
		NoticeID:             noticeID,
		Title:                title,
		Department:           prime,
		NAICSCode:            naicsCode,
		NAICSDescription:     naicsDesc,
		OpportunityType:      "Subcontracting Opportunity",
		ResponseDeadline:     closingDate,
		Description:          truncate(description, descriptionLimit),
		PlaceOfPerformance:   pop,
		ContactEmail:         contactEmail,
		Link:                 fullLink,
		Active:               true,
		Source:               "subnet",
		ComplexityTier:       model.DeriveComplexityTier(nil, ""),
		EstimatedCompetition: model.DeriveCompetitionLevel(""),
	}, true
}

// parseSubNetDate converts the listing's M/D/YYYY closing date to an ISO
// end-of-day timestamp.
func parseSubNetDate(text string) string {
	if text == "" {
		return ""
	}
	for _, layout := range []string{"1/2/2006", "01/02/2006", "1/2/06"} {
		if dt, err := time.Parse(layout, text); err == nil {
			return dt.Format("2006-01-02") + "T23:59:00"
		}
	}
	return ""
}

// normalizeState appends the country to recognized state names so the
// value matches SAM.gov's place-of-performance shape for geo scoring.
func normalizeState(name string) string {
	if name == "" {
		return ""
	}
	if _, ok := subnetStateAbbr[strings.ToLower(name)]; ok {
		return name + ", UNITED STATES"
	}
	return name
}
