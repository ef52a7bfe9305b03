// Package report aggregates detections into per-vendor transition
// summaries and exports them as CSV or XLSX.
package report

import (
	"fmt"
	"sort"

	"github.com/sells-group/transition-cli/internal/model"
)

// Row is one summary line: all detections for a vendor within one
// awarding agency and federal fiscal year.
type Row struct {
	VendorID    string
	Agency      string
	FiscalYear  int
	Detections  int
	HighCount   int
	LikelyCount int
	MinScore    float64
	MaxScore    float64
	MeanScore   float64
}

type rowKey struct {
	vendorID   string
	agency     string
	fiscalYear int
}

// Summarize groups detections by (vendor, agency, fiscal year). Vendor
// and agency come from the antecedent award; the fiscal year is the
// award's completion year on the federal calendar. Detections whose
// award is absent from the corpus are grouped under an "unknown" vendor
// so they still appear in operator output.
func Summarize(detections []model.Detection, awards []model.ResearchAward) []Row {
	byID := make(map[string]model.ResearchAward, len(awards))
	for _, a := range awards {
		byID[a.AwardID] = a
	}

	type acc struct {
		row Row
		sum float64
	}
	groups := make(map[rowKey]*acc)

	for _, d := range detections {
		key := rowKey{vendorID: "unknown", agency: "unknown"}
		if award, ok := byID[d.AwardID]; ok {
			key = rowKey{
				vendorID:   award.VendorID,
				agency:     award.Agency,
				fiscalYear: model.FiscalYear(award.CompletionDate),
			}
		}

		g, ok := groups[key]
		if !ok {
			g = &acc{row: Row{
				VendorID:   key.vendorID,
				Agency:     key.agency,
				FiscalYear: key.fiscalYear,
				MinScore:   d.Score,
				MaxScore:   d.Score,
			}}
			groups[key] = g
		}

		g.row.Detections++
		g.sum += d.Score
		if d.Score < g.row.MinScore {
			g.row.MinScore = d.Score
		}
		if d.Score > g.row.MaxScore {
			g.row.MaxScore = d.Score
		}
		switch d.Confidence {
		case model.ConfidenceHigh:
			g.row.HighCount++
		case model.ConfidenceLikely:
			g.row.LikelyCount++
		}
	}

	rows := make([]Row, 0, len(groups))
	for _, g := range groups {
		g.row.MeanScore = g.sum / float64(g.row.Detections)
		rows = append(rows, g.row)
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].VendorID != rows[j].VendorID {
			return rows[i].VendorID < rows[j].VendorID
		}
		if rows[i].Agency != rows[j].Agency {
			return rows[i].Agency < rows[j].Agency
		}
		return rows[i].FiscalYear < rows[j].FiscalYear
	})
	return rows
}

var header = []string{
	"vendor_id", "agency", "fiscal_year", "detections",
	"high_confidence", "likely_transition",
	"min_score", "max_score", "mean_score",
}

func (r Row) cells() []string {
	return []string{
		r.VendorID,
		r.Agency,
		fmt.Sprintf("%d", r.FiscalYear),
		fmt.Sprintf("%d", r.Detections),
		fmt.Sprintf("%d", r.HighCount),
		fmt.Sprintf("%d", r.LikelyCount),
		fmt.Sprintf("%.4f", r.MinScore),
		fmt.Sprintf("%.4f", r.MaxScore),
		fmt.Sprintf("%.4f", r.MeanScore),
	}
}
