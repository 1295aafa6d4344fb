package semantic

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/govscout/internal/model"
	"github.com/sells-group/govscout/pkg/anthropic"
)

const (
	proposalModel     = "claude-haiku-4-5-20251001"
	analysisModel     = "claude-sonnet-4-5-20250929"
	proposalMaxTokens = 2048
	analysisMaxTokens = 4096
)

// ProposalSections holds the six standard sections of a proposal outline.
type ProposalSections struct {
	CoverLetter        string `json:"cover_letter"`
	TechnicalApproach  string `json:"technical_approach"`
	ManagementApproach string `json:"management_approach"`
	PastPerformance    string `json:"past_performance"`
	StaffingPlan       string `json:"staffing_plan"`
	PricingPlaceholder string `json:"pricing_placeholder"`
}

// Proposal is a generated outline for one opportunity and cluster pairing.
type Proposal struct {
	NoticeID         string           `json:"notice_id"`
	OpportunityTitle string           `json:"opportunity_title"`
	ClusterName      string           `json:"cluster_name"`
	Sections         ProposalSections `json:"sections"`
	Model            string           `json:"model"`
}

// Analysis is a generated fit assessment for one opportunity.
type Analysis struct {
	Analysis         string   `json:"analysis"`
	CompetitiveIntel string   `json:"competitive_intel,omitempty"`
	KeyRequirements  []string `json:"key_requirements"`
	SuggestedActions []string `json:"suggested_actions"`
	DeadlineUrgency  string   `json:"deadline_urgency,omitempty"`
}

// Generator produces proposal outlines and opportunity analyses.
type Generator struct {
	client anthropic.Client
	log    *zap.Logger
}

func NewGenerator(client anthropic.Client) *Generator {
	return &Generator{
		client: client,
		log:    zap.L().With(zap.String("component", "generator")),
	}
}

// Proposal generates a structured outline for the opportunity using the
// cluster's capabilities and roster. Falls back to a skeleton template
// when the API is unavailable or returns something unparseable.
func (g *Generator) Proposal(ctx context.Context, opp model.Opportunity, cluster model.CapabilityCluster) (*Proposal, error) {
	if g.client == nil {
		return fallbackProposal(opp, cluster), nil
	}

	resp, err := g.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:     proposalModel,
		MaxTokens: proposalMaxTokens,
		Messages: []anthropic.Message{
			{Role: "user", Content: proposalPrompt(opp, cluster)},
		},
	})
	if err != nil {
		g.log.Warn("proposal generation failed, using template",
			zap.String("notice_id", opp.NoticeID), zap.Error(err))
		return fallbackProposal(opp, cluster), nil
	}
	resp.Usage.LogCost(proposalModel, "proposal")

	var sections ProposalSections
	if err := decodeJSONBlock(resp.Text(), &sections); err != nil {
		g.log.Warn("unparseable proposal response, using template",
			zap.String("notice_id", opp.NoticeID), zap.Error(err))
		return fallbackProposal(opp, cluster), nil
	}

	return &Proposal{
		NoticeID:         opp.NoticeID,
		OpportunityTitle: opp.Title,
		ClusterName:      cluster.Name,
		Sections:         sections,
		Model:            proposalModel,
	}, nil
}

// Analyze generates a full fit assessment against the company profile.
func (g *Generator) Analyze(ctx context.Context, opp model.Opportunity, profile model.CompanyProfile) (*Analysis, error) {
	if g.client == nil {
		return nil, eris.New("semantic: analysis requires an API key")
	}

	resp, err := g.client.CreateMessage(ctx, anthropic.MessageRequest{
		Model:     analysisModel,
		MaxTokens: analysisMaxTokens,
		Messages: []anthropic.Message{
			{Role: "user", Content: analysisPrompt(opp, profile)},
		},
	})
	if err != nil {
		return nil, eris.Wrap(err, "semantic: generate analysis")
	}
	resp.Usage.LogCost(analysisModel, "analysis")

	var analysis Analysis
	if err := decodeJSONBlock(resp.Text(), &analysis); err != nil {
		return nil, eris.Wrap(err, "semantic: decode analysis")
	}
	return &analysis, nil
}

func proposalPrompt(opp model.Opportunity, cluster model.CapabilityCluster) string {
	var team strings.Builder
	for _, m := range cluster.TeamRoster {
		fmt.Fprintf(&team, "- %s (%s)", m.Name, m.Role)
		if m.Clearance != "" {
			fmt.Fprintf(&team, ", %s clearance", m.Clearance)
		}
		team.WriteByte('\n')
	}
	teamStr := team.String()
	if teamStr == "" {
		teamStr = "(No team roster provided)"
	}

	certs := make([]string, len(cluster.Certifications))
	for i, c := range cluster.Certifications {
		certs[i] = string(c)
	}
	certStr := strings.Join(certs, ", ")
	if certStr == "" {
		certStr = "None"
	}
	naicsStr := strings.Join(cluster.NAICSCodes, ", ")
	if naicsStr == "" {
		naicsStr = "N/A"
	}

	return fmt.Sprintf(`You are a government proposal writer helping a small business respond to a federal/state contract opportunity. Generate a concise proposal template outline.

OPPORTUNITY:
Title: %s
Agency: %s
NAICS: %s
Set-Aside: %s
Description: %s

COMPANY CLUSTER: %s
Capabilities: %s
NAICS Codes: %s
Certifications: %s
Team:
%s

Generate a proposal template with exactly these 6 sections. Be specific to the opportunity and company. Keep each section to 2-4 paragraphs of actionable placeholder text that the user can customize.

Respond in this exact JSON format:
{
  "cover_letter": "...",
  "technical_approach": "...",
  "management_approach": "...",
  "past_performance": "...",
  "staffing_plan": "...",
  "pricing_placeholder": "..."
}`,
		opp.Title, orDefault(opp.Department, "Unknown"), orDefault(opp.NAICSCode, "N/A"),
		orDefault(opp.SetAside, "None"), clip(opp.Description, 800),
		cluster.Name, clip(cluster.CapabilityDescription, 600), naicsStr, certStr, teamStr)
}

func analysisPrompt(opp model.Opportunity, profile model.CompanyProfile) string {
	return fmt.Sprintf(`You are a government contracting advisor helping a small business evaluate an opportunity.

COMPANY:
- Name: %s
- Capabilities: %s
- NAICS Codes: %s
- Set-Aside Status: %s
- Past Performance: %s

OPPORTUNITY:
- Title: %s
- Solicitation #: %s
- Department: %s
- NAICS: %s - %s
- Set-Aside: %s
- Type: %s
- Deadline: %s
- Place of Performance: %s
- Description: %s

Respond with ONLY a JSON object:
{
    "analysis": "<2-3 paragraph analysis of fit, risks, and strategy>",
    "key_requirements": ["<req1>", "<req2>"],
    "suggested_actions": ["<action1>", "<action2>"],
    "competitive_intel": "<what you can infer about competition and positioning>",
    "deadline_urgency": "<urgent|soon|normal|past>"
}`,
		profile.CompanyName, clip(profile.CapabilityStatement, 2000),
		strings.Join(profile.NAICSCodes, ", "), strings.Join(profile.SetAsideTypes, ", "),
		strings.Join(profile.PastPerformanceKeywords, ", "),
		opp.Title, orDefault(opp.SolicitationNumber, "N/A"),
		orDefault(opp.Department, "Unknown"), opp.NAICSCode, opp.NAICSDescription,
		orDefault(opp.SetAside, "Full and Open"), orDefault(opp.OpportunityType, "Unknown"),
		orDefault(opp.ResponseDeadline, "Not specified"),
		orDefault(opp.PlaceOfPerformance, "Not specified"),
		clip(orDefault(opp.Description, "No description available"), 3000))
}

// decodeJSONBlock extracts and unmarshals the first JSON object in text,
// tolerating markdown fences around it.
func decodeJSONBlock(text string, v any) error {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return eris.Errorf("no JSON object in response: %.80s", text)
	}
	if err := json.Unmarshal([]byte(text[start:end+1]), v); err != nil {
		return eris.Wrap(err, "decode JSON block")
	}
	return nil
}

func orDefault(s, def string) string {
	if s == "" {
		return def
	}
	return s
}

func fallbackProposal(opp model.Opportunity, cluster model.CapabilityCluster) *Proposal {
	var team strings.Builder
	for _, m := range cluster.TeamRoster {
		fmt.Fprintf(&team, "- %s, %s\n", m.Name, m.Role)
	}
	teamStr := strings.TrimRight(team.String(), "\n")
	if teamStr == "" {
		teamStr = "- [Add key personnel here]"
	}

	naics := cluster.NAICSCodes
	if len(naics) > 3 {
		naics = naics[:3]
	}

	return &Proposal{
		NoticeID:         opp.NoticeID,
		OpportunityTitle: opp.Title,
		ClusterName:      cluster.Name,
		Model:            "fallback",
		Sections: ProposalSections{
			CoverLetter: fmt.Sprintf(
				"[Company Name] is pleased to submit this proposal in response to %s "+
					"(Solicitation: %s) issued by %s.\n\n"+
					"Our %s division brings direct experience in %s and is positioned to "+
					"deliver the required capabilities on time and within budget.",
				opp.Title, orDefault(opp.SolicitationNumber, "N/A"),
				orDefault(opp.Department, "the contracting agency"),
				cluster.Name, strings.Join(naics, ", ")),
			TechnicalApproach: fmt.Sprintf(
				"[Describe your technical approach to the %s requirements here.]\n\n"+
					"Our approach leverages: %s\n\n"+
					"[Add specific technical solution, tools, methodologies, and compliance "+
					"with SOW requirements.]",
				opp.Title, clip(cluster.CapabilityDescription, 300)),
			ManagementApproach: "[Describe your project management methodology, reporting " +
				"cadence, risk management, and quality assurance process.]\n\n" +
				"[Identify your Program Manager and key decision-making structure.]",
			PastPerformance: "[List 3-5 relevant past performance references. For each include:\n" +
				"- Contract number and title\n" +
				"- Agency/customer name and POC\n" +
				"- Period of performance\n" +
				"- Contract value\n" +
				"- Relevance to this requirement]",
			StaffingPlan: fmt.Sprintf(
				"Proposed Key Personnel:\n%s\n\n"+
					"[Add labor categories, hours per category, and qualifications that meet "+
					"the solicitation's staffing requirements.]", teamStr),
			PricingPlaceholder: "[Include fully-loaded labor rates by category, ODC estimates, " +
				"fee/profit, and total proposed price in the format required by Section B of " +
				"the solicitation.]",
		},
	}
}
