package model

// SearchFilters constrain an opportunity search against a source adapter.
// PostedFrom/PostedTo use the source-native date format (SAM.gov expects
// MM/dd/yyyy).
type SearchFilters struct {
	Keywords         string   `json:"keywords,omitempty"`
	NAICSCodes       []string `json:"naics_codes,omitempty"`
	SetAside         string   `json:"set_aside,omitempty"`
	PostedFrom       string   `json:"posted_from,omitempty"`
	PostedTo         string   `json:"posted_to,omitempty"`
	Department       string   `json:"department,omitempty"`
	OpportunityTypes []string `json:"opportunity_types,omitempty"`
	MinScore         float64  `json:"min_score,omitempty"`
	Limit            int      `json:"limit,omitempty"`
	Offset           int      `json:"offset,omitempty"`
}
