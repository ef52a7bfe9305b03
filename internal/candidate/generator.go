// Package candidate enumerates (award, contract) pairs eligible for
// transition scoring under the temporal and vendor constraints.
package candidate

import (
	"sort"
	"time"

	"go.uber.org/zap"

	"github.com/sells-group/transition-cli/internal/model"
)

// Window bounds the eligible interval after an award's completion date.
// With MinDays=1 and MaxMonths=24 a contract starting on the completion
// date is excluded, one starting the next day through 24 months after is
// included.
type Window struct {
	MinDays   int
	MaxMonths int
}

// Pair is one (award, contract) candidate.
type Pair struct {
	Award    model.ResearchAward
	Contract model.ContractVehicle
}

// Skip records an input record excluded from generation and why.
type Skip struct {
	RecordKind string `json:"record_kind"`
	RecordID   string `json:"record_id"`
	Reason     string `json:"reason"`
}

// Generator indexes a resolved contract corpus for candidate lookups.
// The index is built once per run and read concurrently by award workers;
// it is never mutated after New returns.
type Generator struct {
	window   Window
	byVendor map[string][]model.ContractVehicle // sorted by start date, then piid
	skips    []Skip
}

// New indexes contracts by canonical vendor id. Contracts missing a start
// date, piid, or vendor id are excluded and recorded as skips.
func New(window Window, contracts []model.ContractVehicle) *Generator {
	g := &Generator{
		window:   window,
		byVendor: make(map[string][]model.ContractVehicle),
	}

	for _, c := range contracts {
		if reason := requiredContractField(c); reason != "" {
			g.skips = append(g.skips, Skip{RecordKind: "contract", RecordID: c.PIID, Reason: reason})
			continue
		}
		g.byVendor[c.VendorID] = append(g.byVendor[c.VendorID], c)
	}

	for vendor := range g.byVendor {
		cs := g.byVendor[vendor]
		sort.Slice(cs, func(i, j int) bool {
			if !cs[i].StartDate.Equal(cs[j].StartDate) {
				return cs[i].StartDate.Before(cs[j].StartDate)
			}
			return cs[i].PIID < cs[j].PIID
		})
	}

	if len(g.skips) > 0 {
		zap.L().Warn("candidate: contracts excluded for missing fields",
			zap.Int("skipped", len(g.skips)),
		)
	}
	return g
}

// Skips returns the records excluded during index construction.
func (g *Generator) Skips() []Skip { return g.skips }

// Pairs returns the eligible (award, contract) pairs for one award, in
// ascending contract start date order with piid as the tie break. An award
// with no eligible contracts yields an empty slice. An award missing its
// completion date or vendor id is excluded via MissingFieldError.
func (g *Generator) Pairs(award model.ResearchAward) ([]Pair, error) {
	if award.VendorID == "" {
		return nil, &model.MissingFieldError{RecordKind: "award", RecordID: award.AwardID, Field: "vendor_id"}
	}
	if award.CompletionDate.IsZero() {
		return nil, &model.MissingFieldError{RecordKind: "award", RecordID: award.AwardID, Field: "completion_date"}
	}

	contracts := g.byVendor[award.VendorID]
	if len(contracts) == 0 {
		return nil, nil
	}

	lo := award.CompletionDate.AddDate(0, 0, g.window.MinDays)
	hi := award.CompletionDate.AddDate(0, g.window.MaxMonths, 0)

	// Contracts are sorted by start date, so the window is a contiguous
	// run found by binary search rather than a full scan.
	first := sort.Search(len(contracts), func(i int) bool {
		return !contracts[i].StartDate.Before(lo)
	})

	var pairs []Pair
	for _, c := range contracts[first:] {
		if c.StartDate.After(hi) {
			break
		}
		pairs = append(pairs, Pair{Award: award, Contract: c})
	}
	return pairs, nil
}

// InWindow reports whether a contract start date falls inside the window
// following completion. Exposed for boundary tests and evidence values.
func (g *Generator) InWindow(completion, start time.Time) bool {
	lo := completion.AddDate(0, 0, g.window.MinDays)
	hi := completion.AddDate(0, g.window.MaxMonths, 0)
	return !start.Before(lo) && !start.After(hi)
}

func requiredContractField(c model.ContractVehicle) string {
	switch {
	case c.PIID == "":
		return "missing piid"
	case c.VendorID == "":
		return "missing vendor_id"
	case c.StartDate.IsZero():
		return "missing start_date"
	}
	return ""
}
