package digest

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/sells-group/govscout/internal/model"
)

var opportunityHeaders = []string{
	"Notice ID", "Title", "Score", "Tier", "Best Cluster", "Department",
	"Sub-Tier", "NAICS", "Set-Aside", "Type", "Posted", "Deadline",
	"Place of Performance", "Estimated Value", "Complexity", "Competition",
	"Source", "Link",
}

var pursuitHeaders = []string{
	"ID", "Opportunity ID", "Opportunity Title", "Cluster", "Status",
	"Assigned Team", "Notes", "Created", "Updated",
}

func opportunityRow(so model.ScoredOpportunity) []string {
	o := so.Opportunity
	return []string{
		o.NoticeID, o.Title,
		fmt.Sprintf("%.1f", so.MatchScore.Overall), so.MatchTier,
		so.BestClusterName, o.Department, o.SubTier, o.NAICSCode,
		o.SetAside, o.OpportunityType, o.PostedDate, o.ResponseDeadline,
		o.PlaceOfPerformance, FormatDollars(o.EstimatedValue),
		string(o.ComplexityTier), string(o.EstimatedCompetition),
		o.Source, o.Link,
	}
}

func pursuitRow(p model.Pursuit) []string {
	return []string{
		p.ID, p.OpportunityID, p.OpportunityTitle, p.ClusterName,
		string(p.Status), strings.Join(p.AssignedTeam, "; "), p.Notes,
		p.CreatedAt.Format("2006-01-02"), p.UpdatedAt.Format("2006-01-02"),
	}
}

// WriteOpportunitiesCSV writes scored opportunities as CSV.
func WriteOpportunitiesCSV(w io.Writer, scored []model.ScoredOpportunity) error {
	rows := make([][]string, 0, len(scored))
	for _, so := range scored {
		rows = append(rows, opportunityRow(so))
	}
	return writeCSV(w, opportunityHeaders, rows)
}

// WritePursuitsCSV writes pursuits as CSV.
func WritePursuitsCSV(w io.Writer, pursuits []model.Pursuit) error {
	rows := make([][]string, 0, len(pursuits))
	for _, p := range pursuits {
		rows = append(rows, pursuitRow(p))
	}
	return writeCSV(w, pursuitHeaders, rows)
}

func writeCSV(w io.Writer, headers []string, rows [][]string) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(headers); err != nil {
		return eris.Wrap(err, "digest: write CSV header")
	}
	for _, row := range rows {
		if err := cw.Write(row); err != nil {
			return eris.Wrap(err, "digest: write CSV row")
		}
	}
	cw.Flush()
	return eris.Wrap(cw.Error(), "digest: flush CSV")
}

// WriteOpportunitiesXLSX writes scored opportunities as an XLSX workbook
// with a single Opportunities sheet.
func WriteOpportunitiesXLSX(w io.Writer, scored []model.ScoredOpportunity) error {
	rows := make([][]string, 0, len(scored))
	for _, so := range scored {
		rows = append(rows, opportunityRow(so))
	}
	return writeXLSX(w, "Opportunities", opportunityHeaders, rows)
}

// WritePursuitsXLSX writes pursuits as an XLSX workbook.
func WritePursuitsXLSX(w io.Writer, pursuits []model.Pursuit) error {
	rows := make([][]string, 0, len(pursuits))
	for _, p := range pursuits {
		rows = append(rows, pursuitRow(p))
	}
	return writeXLSX(w, "Pursuits", pursuitHeaders, rows)
}

func writeXLSX(w io.Writer, sheetName string, headers []string, rows [][]string) error {
	f := xlsx.NewFile()
	sheet, err := f.AddSheet(sheetName)
	if err != nil {
		return eris.Wrap(err, "digest: add XLSX sheet")
	}

	headerRow := sheet.AddRow()
	for _, h := range headers {
		headerRow.AddCell().Value = h
	}
	for _, row := range rows {
		r := sheet.AddRow()
		for _, v := range row {
			r.AddCell().Value = v
		}
	}

	if err := f.Write(w); err != nil {
		return eris.Wrap(err, "digest: write XLSX")
	}
	return nil
}
