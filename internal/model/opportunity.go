// Package model defines the core domain types shared across the pipeline.
package model

import (
	"strconv"
	"strings"
	"time"
)

// ComplexityTier classifies a contract by estimated dollar value.
type ComplexityTier string

const (
	TierMicro      ComplexityTier = "MICRO"      // under $10K
	TierSimplified ComplexityTier = "SIMPLIFIED" // $10K-$250K
	TierStandard   ComplexityTier = "STANDARD"   // $250K-$10M
	TierMajor      ComplexityTier = "MAJOR"      // $10M+
)

// CompetitionLevel estimates the competitive landscape for an opportunity.
type CompetitionLevel string

const (
	CompetitionOpen       CompetitionLevel = "OPEN"
	CompetitionPartial    CompetitionLevel = "PARTIAL"
	CompetitionRestricted CompetitionLevel = "RESTRICTED"
)

// Opportunity is a canonical procurement notice from any source.
// NoticeID is source-prefixed so ids never collide across sources.
// Date fields keep the source-native string format; SAM.gov uses
// MM/dd/yyyy while state portals vary.
type Opportunity struct {
	NoticeID             string           `json:"notice_id"`
	Title                string           `json:"title"`
	SolicitationNumber   string           `json:"solicitation_number,omitempty"`
	Department           string           `json:"department,omitempty"`
	SubTier              string           `json:"sub_tier,omitempty"`
	Office               string           `json:"office,omitempty"`
	NAICSCode            string           `json:"naics_code,omitempty"`
	NAICSDescription     string           `json:"naics_description,omitempty"`
	SetAside             string           `json:"set_aside,omitempty"`
	OpportunityType      string           `json:"opportunity_type,omitempty"`
	PostedDate           string           `json:"posted_date,omitempty"`
	ResponseDeadline     string           `json:"response_deadline,omitempty"`
	Description          string           `json:"description,omitempty"`
	PlaceOfPerformance   string           `json:"place_of_performance,omitempty"`
	ContactEmail         string           `json:"contact_email,omitempty"`
	EstimatedValue       *float64         `json:"estimated_value,omitempty"`
	AwardAmount          *float64         `json:"award_amount,omitempty"`
	Link                 string           `json:"link,omitempty"`
	Active               bool             `json:"active"`
	Source               string           `json:"source"`
	ComplexityTier       ComplexityTier   `json:"complexity_tier"`
	EstimatedCompetition CompetitionLevel `json:"estimated_competition"`
	FirstSeenAt          time.Time        `json:"first_seen_at,omitzero"`
	LastUpdatedAt        time.Time        `json:"last_updated_at,omitzero"`
}

// Set-aside keywords that signal a partial (rather than total) set-aside.
var partialSetAsideKeywords = []string{"partial", "prsb", "pcposb"}

// DeriveComplexityTier classifies by estimated value when known, falling
// back to set-aside description keywords. STANDARD is the default because
// it is by far the most common federal contract tier.
func DeriveComplexityTier(estimatedValue *float64, setAside string) ComplexityTier {
	if estimatedValue != nil {
		switch v := *estimatedValue; {
		case v < 10_000:
			return TierMicro
		case v < 250_000:
			return TierSimplified
		case v < 10_000_000:
			return TierStandard
		default:
			return TierMajor
		}
	}

	desc := strings.ToLower(setAside)
	if strings.Contains(desc, "micro") || strings.Contains(desc, "micropurchase") {
		return TierMicro
	}
	if strings.Contains(desc, "simplified") {
		return TierSimplified
	}
	return TierStandard
}

// DeriveCompetitionLevel classifies the bidder pool from set-aside text.
func DeriveCompetitionLevel(setAside string) CompetitionLevel {
	val := strings.TrimSpace(strings.ToLower(setAside))
	if val == "" || val == "none" {
		return CompetitionOpen
	}
	for _, kw := range partialSetAsideKeywords {
		if strings.Contains(val, kw) {
			return CompetitionPartial
		}
	}
	return CompetitionRestricted
}

// ParseDollarAmount converts a raw amount string ("$1,250,000") to a float.
// Returns nil when the value is empty or unparseable.
func ParseDollarAmount(raw string) *float64 {
	cleaned := strings.NewReplacer(",", "", "$", "", " ", "").Replace(raw)
	if cleaned == "" {
		return nil
	}
	v, err := strconv.ParseFloat(cleaned, 64)
	if err != nil {
		return nil
	}
	return &v
}
