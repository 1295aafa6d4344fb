package source

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/govscout/internal/fetcher"
	"github.com/sells-group/govscout/internal/model"
)

// PortalRegistry lists the state procurement portals to scrape. Each
// portal is driven entirely by its selector configuration, so onboarding
// a new state is a YAML change, not code.
type PortalRegistry struct {
	Portals []PortalConfig `yaml:"portals"`
}

// PortalConfig defines one state procurement portal.
type PortalConfig struct {
	ID        string          `yaml:"id"`
	Name      string          `yaml:"name"`
	State     string          `yaml:"state"`
	ListURL   string          `yaml:"list_url"`
	MaxPages  int             `yaml:"max_pages,omitempty"`
	PageParam string          `yaml:"page_param,omitempty"`
	Selectors PortalSelectors `yaml:"selectors"`
}

// PortalSelectors holds the CSS selectors for the listing page.
type PortalSelectors struct {
	Container string `yaml:"container"`
	Title     string `yaml:"title"`
	Link      string `yaml:"link,omitempty"`
	LinkAttr  string `yaml:"link_attr,omitempty"`
	Date      string `yaml:"date,omitempty"`
	Agency    string `yaml:"agency,omitempty"`
	Deadline  string `yaml:"deadline,omitempty"`
}

// LoadPortalRegistry reads a portal registry YAML file. Environment
// variables in the file (${VAR}) are expanded before parsing.
func LoadPortalRegistry(path string) (*PortalRegistry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "read portal registry %s", path)
	}

	var reg PortalRegistry
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &reg); err != nil {
		return nil, eris.Wrap(err, "parse portal registry")
	}

	for _, p := range reg.Portals {
		if p.ID == "" || p.ListURL == "" || p.Selectors.Container == "" {
			return nil, eris.Errorf("portal registry: entry %q missing id, list_url, or container selector", p.Name)
		}
	}
	return &reg, nil
}

// Adapters converts every registry entry into a source adapter.
func (r *PortalRegistry) Adapters(client *fetcher.Client) []Adapter {
	adapters := make([]Adapter, 0, len(r.Portals))
	for _, p := range r.Portals {
		adapters = append(adapters, NewPortalClient(client, p))
	}
	return adapters
}

// PortalClient scrapes one state procurement portal listing page.
type PortalClient struct {
	http *fetcher.Client
	cfg  PortalConfig
	log  *zap.Logger
}

// NewPortalClient creates an adapter for one configured portal.
func NewPortalClient(client *fetcher.Client, cfg PortalConfig) *PortalClient {
	if cfg.MaxPages <= 0 {
		cfg.MaxPages = 1
	}
	return &PortalClient{
		http: client,
		cfg:  cfg,
		log:  zap.L().With(zap.String("component", "portal"), zap.String("portal", cfg.ID)),
	}
}

// Name implements Adapter.
func (c *PortalClient) Name() string { return c.cfg.ID }

// Search scrapes the portal's listing pages. State portals have no useful
// server-side filtering; matching happens downstream.
func (c *PortalClient) Search(ctx context.Context, _ model.SearchFilters) ([]model.Opportunity, error) {
	seen := make(map[string]struct{})
	var opps []model.Opportunity

	for page := 0; page < c.cfg.MaxPages; page++ {
		pageURL := c.cfg.ListURL
		if c.cfg.PageParam != "" && page > 0 {
			sep := "?"
			if strings.Contains(pageURL, "?") {
				sep = "&"
			}
			pageURL = fmt.Sprintf("%s%s%s=%d", pageURL, sep, c.cfg.PageParam, page)
		}

		body, err := c.http.Get(ctx, pageURL)
		if err != nil {
			if page == 0 {
				return nil, eris.Wrapf(err, "portal %s", c.cfg.ID)
			}
			c.log.Warn("page fetch failed", zap.Int("page", page), zap.Error(err))
			break
		}

		pageOpps := c.parseListing(body)
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

func (c *PortalClient) parseListing(html []byte) []model.Opportunity {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		c.log.Warn("parse listing html", zap.Error(err))
		return nil
	}

	sel := c.cfg.Selectors
	var opps []model.Opportunity
	doc.Find(sel.Container).Each(func(_ int, item *goquery.Selection) {
		title := strings.TrimSpace(item.Find(sel.Title).First().Text())
		if title == "" {
			return
		}

		linkSel := item
		if sel.Link != "" {
			linkSel = item.Find(sel.Link).First()
		}
		linkAttr := sel.LinkAttr
		if linkAttr == "" {
			linkAttr = "href"
		}
		link, _ := linkSel.Attr(linkAttr)
		if link == "" {
			link, _ = item.Find("a").First().Attr("href")
		}
		if link == "" {
			c.log.Debug("dropping row without link", zap.String("title", title))
			return
		}

		parts := strings.Split(strings.Trim(link, "/"), "/")
		noticeID := c.cfg.ID + ":" + parts[len(parts)-1]

		opp := model.Opportunity{
			NoticeID:             noticeID,
			Title:                title,
			OpportunityType:      "State Solicitation",
			Link:                 link,
			Active:               true,
			Source:               c.cfg.ID,
			PlaceOfPerformance:   c.cfg.State,
			ComplexityTier:       model.DeriveComplexityTier(nil, ""),
			EstimatedCompetition: model.DeriveCompetitionLevel(""),
		}
		if sel.Date != "" {
			opp.PostedDate = strings.TrimSpace(item.Find(sel.Date).First().Text())
		}
		if sel.Deadline != "" {
			opp.ResponseDeadline = strings.TrimSpace(item.Find(sel.Deadline).First().Text())
		}
		if sel.Agency != "" {
			opp.Department = strings.TrimSpace(item.Find(sel.Agency).First().Text())
		}
		opps = append(opps, opp)
	})
	return opps
}
