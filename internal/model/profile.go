package model

import "time"

// Certification identifies a small business certification recognized by
// federal procurement.
type Certification string

const (
	CertSB            Certification = "Small Business"
	CertSDB           Certification = "Small Disadvantaged Business"
	Cert8A            Certification = "8(a)"
	CertHUBZone       Certification = "HUBZone"
	CertSDVOSB        Certification = "Service-Disabled Veteran-Owned"
	CertVOSB          Certification = "Veteran-Owned"
	CertWOSB          Certification = "Women-Owned Small Business"
	CertEDWOSB        Certification = "Economically Disadvantaged WOSB"
	CertMinorityOwned Certification = "Minority-Owned"
	CertAbilityOne    Certification = "AbilityOne"
)

// TeamMember is a person on a capability cluster's roster.
type TeamMember struct {
	Name      string `json:"name"`
	Role      string `json:"role"`
	Clearance string `json:"clearance,omitempty"`
}

// CompanyProfile is the user's company-wide matching target.
type CompanyProfile struct {
	ID                      string    `json:"id"`
	CompanyName             string    `json:"company_name"`
	CageCode                string    `json:"cage_code,omitempty"`
	UEI                     string    `json:"uei,omitempty"`
	NAICSCodes              []string  `json:"naics_codes"`
	SetAsideTypes           []string  `json:"set_aside_types"`
	CapabilityStatement     string    `json:"capability_statement,omitempty"`
	PastPerformanceKeywords []string  `json:"past_performance_keywords,omitempty"`
	GeographicPreferences   []string  `json:"geographic_preferences,omitempty"`
	AgencyPreferences       []string  `json:"agency_preferences,omitempty"`
	RevenueRange            string    `json:"revenue_range,omitempty"`
	CreatedAt               time.Time `json:"created_at,omitzero"`
}

// CapabilityCluster is a named grouping of NAICS codes, certifications, and
// personnel representing one area of expertise. A company may hold several
// clusters ("Robotics Division", "Software Services"); the matcher scores
// every opportunity against all of them and tags the best match.
type CapabilityCluster struct {
	ID                    string          `json:"id"`
	Name                  string          `json:"name"`
	NAICSCodes            []string        `json:"naics_codes"`
	CapabilityDescription string          `json:"capability_description,omitempty"`
	TeamRoster            []TeamMember    `json:"team_roster,omitempty"`
	Certifications        []Certification `json:"certifications,omitempty"`
	CreatedAt             time.Time       `json:"created_at,omitzero"`
}

// CapabilityText returns the free-text description used for semantic scoring.
func (c CapabilityCluster) CapabilityText() string { return c.CapabilityDescription }

// CapabilityText returns the profile's capability statement.
func (p CompanyProfile) CapabilityText() string { return p.CapabilityStatement }
