// Package digest delivers new-opportunity summaries to a webhook after
// scout runs, and exports scored opportunities and pursuits to CSV/XLSX.
package digest

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/sells-group/govscout/internal/model"
)

var usd = message.NewPrinter(language.AmericanEnglish)

// Item is one opportunity entry in a digest payload.
type Item struct {
	NoticeID       string  `json:"notice_id"`
	Title          string  `json:"title"`
	Score          float64 `json:"score"`
	Tier           string  `json:"tier"`
	Cluster        string  `json:"cluster,omitempty"`
	Department     string  `json:"department,omitempty"`
	SetAside       string  `json:"set_aside,omitempty"`
	EstimatedValue string  `json:"estimated_value,omitempty"`
	Deadline       string  `json:"deadline,omitempty"`
	Link           string  `json:"link,omitempty"`
}

// Payload is the webhook body for one scout run.
type Payload struct {
	RunAt         time.Time `json:"run_at"`
	TotalFetched  int       `json:"total_fetched"`
	NewCount      int       `json:"new_count"`
	Opportunities []Item    `json:"opportunities"`
}

// Notifier posts run digests to a configured webhook. A webhook failure
// is logged and returned but callers treat it as non-fatal; scout state
// is already persisted by the time a digest goes out.
type Notifier struct {
	webhookURL string
	client     *http.Client
	log        *zap.Logger
}

func NewNotifier(webhookURL string) *Notifier {
	return &Notifier{
		webhookURL: webhookURL,
		client:     &http.Client{Timeout: 10 * time.Second},
		log:        zap.L().With(zap.String("component", "digest")),
	}
}

// SendRunDigest posts a summary of newly surfaced opportunities. No-ops
// when no webhook is configured or the run found nothing new.
func (n *Notifier) SendRunDigest(ctx context.Context, runAt time.Time, totalFetched int, newOpps []model.ScoredOpportunity) error {
	if n.webhookURL == "" || len(newOpps) == 0 {
		return nil
	}

	payload := Payload{
		RunAt:         runAt,
		TotalFetched:  totalFetched,
		NewCount:      len(newOpps),
		Opportunities: make([]Item, 0, len(newOpps)),
	}
	for _, so := range newOpps {
		payload.Opportunities = append(payload.Opportunities, Item{
			NoticeID:       so.Opportunity.NoticeID,
			Title:          so.Opportunity.Title,
			Score:          so.MatchScore.Overall,
			Tier:           so.MatchTier,
			Cluster:        so.BestClusterName,
			Department:     so.Opportunity.Department,
			SetAside:       so.Opportunity.SetAside,
			EstimatedValue: FormatDollars(so.Opportunity.EstimatedValue),
			Deadline:       so.Opportunity.ResponseDeadline,
			Link:           so.Opportunity.Link,
		})
	}

	if err := n.post(ctx, payload); err != nil {
		n.log.Error("failed to send digest",
			zap.Int("new_count", len(newOpps)), zap.Error(err))
		return err
	}
	n.log.Info("digest sent", zap.Int("new_count", len(newOpps)))
	return nil
}

func (n *Notifier) post(ctx context.Context, payload Payload) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return eris.Wrap(err, "digest: marshal payload")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.webhookURL, bytes.NewReader(body))
	if err != nil {
		return eris.Wrap(err, "digest: create webhook request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := n.client.Do(req)
	if err != nil {
		return eris.Wrap(err, "digest: webhook request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= 400 {
		return eris.Errorf("digest: webhook returned status %d", resp.StatusCode)
	}
	return nil
}

// FormatDollars renders an estimated value as "$1,250,000". Empty when
// the value is unknown.
func FormatDollars(v *float64) string {
	if v == nil {
		return ""
	}
	return usd.Sprintf("$%.0f", *v)
}
