package model

import "time"

// PursuitStatus is a kanban stage for a tracked contract pursuit.
type PursuitStatus string

const (
	PursuitIdentified PursuitStatus = "identified"
	PursuitQualifying PursuitStatus = "qualifying"
	PursuitCapture    PursuitStatus = "capture"
	PursuitProposal   PursuitStatus = "proposal"
	PursuitSubmitted  PursuitStatus = "submitted"
	PursuitWon        PursuitStatus = "won"
	PursuitLost       PursuitStatus = "lost"
	PursuitNoBid      PursuitStatus = "no_bid"
)

// ValidPursuitStatus reports whether s is a known kanban stage.
func ValidPursuitStatus(s PursuitStatus) bool {
	switch s {
	case PursuitIdentified, PursuitQualifying, PursuitCapture, PursuitProposal,
		PursuitSubmitted, PursuitWon, PursuitLost, PursuitNoBid:
		return true
	}
	return false
}

// Pursuit links an opportunity to a cluster and tracks its pipeline stage.
type Pursuit struct {
	ID               string        `json:"id"`
	OpportunityID    string        `json:"opportunity_id"`
	OpportunityTitle string        `json:"opportunity_title,omitempty"`
	ClusterID        string        `json:"cluster_id,omitempty"`
	ClusterName      string        `json:"cluster_name,omitempty"`
	Status           PursuitStatus `json:"status"`
	Notes            string        `json:"notes,omitempty"`
	AssignedTeam     []string      `json:"assigned_team,omitempty"`
	CreatedAt        time.Time     `json:"created_at,omitzero"`
	UpdatedAt        time.Time     `json:"updated_at,omitzero"`
}
