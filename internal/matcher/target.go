package matcher

import (
	"strings"

	"github.com/sells-group/govscout/internal/model"
)

// Target is anything the engine can score an opportunity against. The two
// concrete variants are a company-wide profile and a capability cluster;
// the engine depends only on this interface.
type Target interface {
	// TargetID identifies the target; empty for the company profile.
	TargetID() string
	TargetName() string
	NAICSCodes() []string
	// SetAsideKeywordGroups returns one keyword group per set-aside type or
	// certification the target holds. A group matches when any of its
	// keywords appears in the opportunity's set-aside text.
	SetAsideKeywordGroups() [][]string
	// SetAsideSignal is the explanation label used when the set-aside
	// sub-score fires.
	SetAsideSignal() string
	CapabilityText() string
}

// ProfileTarget adapts a CompanyProfile to the Target interface. Set-aside
// labels are split into whitespace tokens; SAM.gov names set-asides
// inconsistently, so each token matches independently.
type ProfileTarget struct {
	Profile model.CompanyProfile
}

func (t ProfileTarget) TargetID() string     { return "" }
func (t ProfileTarget) TargetName() string   { return t.Profile.CompanyName }
func (t ProfileTarget) NAICSCodes() []string { return t.Profile.NAICSCodes }

func (t ProfileTarget) SetAsideKeywordGroups() [][]string {
	groups := make([][]string, 0, len(t.Profile.SetAsideTypes))
	for _, sa := range t.Profile.SetAsideTypes {
		groups = append(groups, strings.Fields(strings.ToLower(sa)))
	}
	return groups
}

func (t ProfileTarget) SetAsideSignal() string { return "Set-aside eligible" }

func (t ProfileTarget) CapabilityText() string { return t.Profile.CapabilityText() }

// ClusterTarget adapts a CapabilityCluster to the Target interface.
// Certifications map to SAM.gov set-aside phrases via certSetAsideKeywords.
type ClusterTarget struct {
	Cluster model.CapabilityCluster
}

func (t ClusterTarget) TargetID() string     { return t.Cluster.ID }
func (t ClusterTarget) TargetName() string   { return t.Cluster.Name }
func (t ClusterTarget) NAICSCodes() []string { return t.Cluster.NAICSCodes }

func (t ClusterTarget) SetAsideKeywordGroups() [][]string {
	groups := make([][]string, 0, len(t.Cluster.Certifications))
	for _, cert := range t.Cluster.Certifications {
		groups = append(groups, certSetAsideKeywords[cert])
	}
	return groups
}

func (t ClusterTarget) SetAsideSignal() string { return "Certification eligible" }

func (t ClusterTarget) CapabilityText() string { return t.Cluster.CapabilityText() }
