// Package source holds the opportunity source adapters. Each adapter
// normalizes one upstream system (SAM.gov, SBA SubNet, state portals)
// into the canonical Opportunity shape.
package source

import (
	"context"

	"github.com/sells-group/govscout/internal/model"
)

// Adapter fetches opportunities from one upstream source. Search returns
// an empty slice, not an error, when there are simply no results.
type Adapter interface {
	Name() string
	Search(ctx context.Context, filters model.SearchFilters) ([]model.Opportunity, error)
}

// Result is the outcome of one adapter fetch. Coordinators collect one
// Result per adapter so a failed source never cancels its siblings.
type Result struct {
	Source        string
	Opportunities []model.Opportunity
	Err           error
}
