package source

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/govscout/internal/fetcher"
	"github.com/sells-group/govscout/internal/model"
)

// samDateFormat is the MM/dd/yyyy format the Opportunities API requires
// for postedFrom/postedTo.
const samDateFormat = "01/02/2006"

const descriptionLimit = 5000

// samTypeLabels expands the API's single-letter type codes.
var samTypeLabels = map[string]string{
	"o": "Solicitation",
	"p": "Presolicitation",
	"k": "Combined Synopsis/Solicitation",
	"a": "Award Notice",
	"s": "Special Notice",
	"r": "Sources Sought",
	"i": "Intent to Bundle",
}

// SAMOptions configures the SAM.gov client.
type SAMOptions struct {
	BaseURL string
	APIKey  string
}

// SAMClient queries the SAM.gov Opportunities API.
// API docs: https://open.gsa.gov/api/get-opportunities-public-api/
type SAMClient struct {
	http *fetcher.Client
	opts SAMOptions
	log  *zap.Logger
}

// NewSAMClient creates a SAM.gov adapter.
func NewSAMClient(client *fetcher.Client, opts SAMOptions) *SAMClient {
	if opts.BaseURL == "" {
		opts.BaseURL = "https://api.sam.gov/prod/opportunities/v2/search"
	}
	return &SAMClient{
		http: client,
		opts: opts,
		log:  zap.L().With(zap.String("component", "sam")),
	}
}

// Name implements Adapter.
func (c *SAMClient) Name() string { return "sam.gov" }

// Search queries SAM.gov with the given filters. The ncode parameter does
// not accept comma-separated values, so multiple NAICS codes fan out to
// one query per code, run concurrently and deduplicated by notice id.
func (c *SAMClient) Search(ctx context.Context, filters model.SearchFilters) ([]model.Opportunity, error) {
	params := c.baseParams(filters)

	var rawLists [][]samOpportunity
	if len(filters.NAICSCodes) <= 1 {
		if len(filters.NAICSCodes) == 1 {
			params.Set("ncode", filters.NAICSCodes[0])
		}
		items, err := c.fetchPage(ctx, params)
		if err != nil {
			return nil, err
		}
		rawLists = append(rawLists, items)
	} else {
		rawLists = make([][]samOpportunity, len(filters.NAICSCodes))
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(4)
		for i, code := range filters.NAICSCodes {
			g.Go(func() error {
				p := cloneValues(params)
				p.Set("ncode", code)
				items, err := c.fetchPage(gctx, p)
				if err != nil {
					return err
				}
				rawLists[i] = items
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return nil, err
		}
	}

	seen := make(map[string]struct{})
	var opps []model.Opportunity
	for _, items := range rawLists {
		for _, item := range items {
			opp, ok := c.parse(item)
			if !ok {
				continue
			}
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

// SearchPage fetches exactly one page at the given offset, preserving
// result order. Used by the historical crawler, which paginates
// sequentially and must see rate-limit errors raw.
func (c *SAMClient) SearchPage(ctx context.Context, filters model.SearchFilters) ([]model.Opportunity, error) {
	params := c.baseParams(filters)
	if len(filters.NAICSCodes) > 0 {
		params.Set("ncode", filters.NAICSCodes[0])
	}

	items, err := c.fetchPage(ctx, params)
	if err != nil {
		return nil, err
	}

	opps := make([]model.Opportunity, 0, len(items))
	for _, item := range items {
		if opp, ok := c.parse(item); ok {
			opps = append(opps, opp)
		}
	}
	return opps, nil
}

// GetOpportunity fetches a single notice by id, or nil when not found.
func (c *SAMClient) GetOpportunity(ctx context.Context, noticeID string) (*model.Opportunity, error) {
	params := url.Values{}
	params.Set("api_key", c.opts.APIKey)
	params.Set("noticeid", noticeID)

	items, err := c.fetchPage(ctx, params)
	if err != nil {
		return nil, eris.Wrapf(err, "fetch notice %s", noticeID)
	}
	if len(items) == 0 {
		return nil, nil
	}
	opp, ok := c.parse(items[0])
	if !ok {
		return nil, eris.Errorf("notice %s: unparseable record", noticeID)
	}
	return &opp, nil
}

func (c *SAMClient) baseParams(filters model.SearchFilters) url.Values {
	params := url.Values{}
	params.Set("api_key", c.opts.APIKey)

	limit := filters.Limit
	if limit <= 0 {
		limit = 50
	}
	params.Set("limit", strconv.Itoa(limit))
	params.Set("offset", strconv.Itoa(filters.Offset))

	// Default window: last 30 days.
	postedFrom := filters.PostedFrom
	if postedFrom == "" {
		postedFrom = time.Now().UTC().AddDate(0, 0, -30).Format(samDateFormat)
	}
	postedTo := filters.PostedTo
	if postedTo == "" {
		postedTo = time.Now().UTC().Format(samDateFormat)
	}
	params.Set("postedFrom", postedFrom)
	params.Set("postedTo", postedTo)

	if filters.Keywords != "" {
		params.Set("title", filters.Keywords)
	}
	if filters.SetAside != "" {
		params.Set("typeOfSetAside", filters.SetAside)
	}
	if filters.Department != "" {
		params.Set("deptname", filters.Department)
	}
	if len(filters.OpportunityTypes) > 0 {
		params.Set("ptype", strings.Join(filters.OpportunityTypes, ","))
	}
	return params
}

func (c *SAMClient) fetchPage(ctx context.Context, params url.Values) ([]samOpportunity, error) {
	var resp samResponse
	endpoint := c.opts.BaseURL + "?" + params.Encode()
	if err := c.http.GetJSON(ctx, endpoint, &resp); err != nil {
		return nil, err
	}
	return resp.OpportunitiesData, nil
}

// parse normalizes one raw record. A malformed record is dropped with a
// debug note rather than failing the batch.
func (c *SAMClient) parse(raw samOpportunity) (model.Opportunity, bool) {
	if raw.NoticeID == "" {
		c.log.Debug("dropping record without notice id", zap.String("title", raw.Title))
		return model.Opportunity{}, false
	}

	title := raw.Title
	if title == "" {
		title = "Untitled"
	}

	oppType := samTypeLabels[raw.Type]
	if oppType == "" {
		oppType = raw.Type
		if oppType == "" {
			oppType = "Unknown"
		}
	}

	department := raw.DepartmentName
	subTier := raw.SubtierName
	if raw.FullParentPathName != "" {
		segments := strings.Split(raw.FullParentPathName, ".")
		department = segments[0]
		if subTier == "" {
			subTier = segments[len(segments)-1]
		}
	}

	setAside := raw.TypeOfSetAsideDescription
	if setAside == "" {
		setAside = raw.TypeOfSetAside
	}

	estimatedValue := raw.estimatedValue()
	var awardAmount *float64
	if raw.Award != nil {
		awardAmount = raw.Award.Amount.Float()
	}

	return model.Opportunity{
		NoticeID:             raw.NoticeID,
		Title:                title,
		SolicitationNumber:   raw.SolicitationNumber,
		Department:           department,
		SubTier:              subTier,
		Office:               raw.OfficeName,
		NAICSCode:            raw.NAICSCode,
		NAICSDescription:     raw.NAICSDescription,
		SetAside:             setAside,
		OpportunityType:      oppType,
		PostedDate:           raw.PostedDate,
		ResponseDeadline:     raw.ResponseDeadLine,
		Description:          truncate(raw.Description, descriptionLimit),
		PlaceOfPerformance:   raw.placeOfPerformance(),
		ContactEmail:         raw.contactEmail(),
		EstimatedValue:       estimatedValue,
		AwardAmount:          awardAmount,
		Link:                 fmt.Sprintf("https://sam.gov/opp/%s/view", raw.NoticeID),
		Active:               raw.Active == "Yes" || raw.Active == "",
		Source:               "sam.gov",
		ComplexityTier:       model.DeriveComplexityTier(estimatedValue, setAside),
		EstimatedCompetition: model.DeriveCompetitionLevel(setAside),
	}, true
}

// samResponse is the Opportunities API envelope.
type samResponse struct {
	TotalRecords      int              `json:"totalRecords"`
	OpportunitiesData []samOpportunity `json:"opportunitiesData"`
}

type samOpportunity struct {
	NoticeID                     string       `json:"noticeId"`
	Title                        string       `json:"title"`
	SolicitationNumber           string       `json:"solicitationNumber"`
	FullParentPathName           string       `json:"fullParentPathName"`
	DepartmentName               string       `json:"departmentName"`
	SubtierName                  string       `json:"subtierName"`
	OfficeName                   string       `json:"officeName"`
	NAICSCode                    string       `json:"naicsCode"`
	NAICSDescription             string       `json:"naicsSolicitationDescription"`
	TypeOfSetAside               string       `json:"typeOfSetAside"`
	TypeOfSetAsideDescription    string       `json:"typeOfSetAsideDescription"`
	Type                         string       `json:"type"`
	PostedDate                   string       `json:"postedDate"`
	ResponseDeadLine             string       `json:"responseDeadLine"`
	Description                  string       `json:"description"`
	Active                       string       `json:"active"`
	Award                        *samAward    `json:"award"`
	BaseAndAllOptionsValue       flexAmount   `json:"baseAndAllOptionsValue"`
	BaseAndExercisedOptionsValue flexAmount   `json:"baseAndExercisedOptionsValue"`
	PlaceOfPerformance           *samPlace    `json:"placeOfPerformance"`
	PointOfContact               []samContact `json:"pointOfContact"`
}

type samAward struct {
	Amount flexAmount `json:"amount"`
}

type samPlace struct {
	City    samNamed `json:"city"`
	State   samNamed `json:"state"`
	Country samNamed `json:"country"`
}

type samNamed struct {
	Name string `json:"name"`
}

type samContact struct {
	FullName string `json:"fullName"`
	Email    string `json:"email"`
	Phone    string `json:"phone"`
	Type     string `json:"type"`
}

// estimatedValue extracts a dollar value where SAM.gov exposes one: the
// award amount on award notices, or the FPDS-synced option values.
func (o samOpportunity) estimatedValue() *float64 {
	if o.Award != nil {
		if v := o.Award.Amount.Float(); v != nil {
			return v
		}
	}
	if v := o.BaseAndAllOptionsValue.Float(); v != nil {
		return v
	}
	return o.BaseAndExercisedOptionsValue.Float()
}

// placeOfPerformance flattens the nested location object to
// "City, State, Country".
func (o samOpportunity) placeOfPerformance() string {
	if o.PlaceOfPerformance == nil {
		return ""
	}
	var parts []string
	for _, name := range []string{
		o.PlaceOfPerformance.City.Name,
		o.PlaceOfPerformance.State.Name,
		o.PlaceOfPerformance.Country.Name,
	} {
		if name != "" {
			parts = append(parts, name)
		}
	}
	return strings.Join(parts, ", ")
}

func (o samOpportunity) contactEmail() string {
	if len(o.PointOfContact) == 0 {
		return ""
	}
	return o.PointOfContact[0].Email
}

// flexAmount tolerates SAM.gov returning dollar amounts as either JSON
// numbers or formatted strings ("1,250,000.00").
type flexAmount string

func (f *flexAmount) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*f = flexAmount(s)
		return nil
	}
	var n float64
	if err := json.Unmarshal(data, &n); err == nil {
		*f = flexAmount(strconv.FormatFloat(n, 'f', -1, 64))
		return nil
	}
	*f = ""
	return nil
}

// Float parses the amount, returning nil when absent or malformed.
func (f flexAmount) Float() *float64 {
	return model.ParseDollarAmount(string(f))
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	runes := []rune(s)
	if len(runes) <= limit {
		return s
	}
	return string(runes[:limit])
}

func cloneValues(v url.Values) url.Values {
	out := make(url.Values, len(v))
	for k, vals := range v {
		out[k] = append([]string(nil), vals...)
	}
	return out
}
