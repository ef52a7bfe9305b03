// Package evidence assembles the immutable, auditable record backing a
// detection.
package evidence

import (
	"crypto/sha256"
	"fmt"
	"sort"
	"strings"

	"github.com/sells-group/transition-cli/internal/model"
	"github.com/sells-group/transition-cli/internal/signal"
)

// Build packages the fired signals, score, and confidence tier into an
// evidence bundle. The reason string concatenates fired signals from high
// to low weight class; the content hash covers the canonicalized inputs,
// so identical inputs always produce an identical, verifiable hash.
func Build(award model.ResearchAward, contract model.ContractVehicle, v signal.Vector, score float64, tier model.Confidence) model.EvidenceBundle {
	fired := v.Fired()
	ordered := orderByClass(fired)

	entries := make([]model.SignalEntry, 0, len(ordered))
	reasons := make([]string, 0, len(ordered))
	for _, s := range ordered {
		entries = append(entries, model.SignalEntry{
			Name:   s.Name,
			Value:  s.Value,
			Weight: s.Weight,
		})
		reasons = append(reasons, fmt.Sprintf("%s[%s]", s.Name, s.Value))
	}

	return model.EvidenceBundle{
		Reason:      strings.Join(reasons, "; "),
		Signals:     entries,
		Score:       score,
		Confidence:  tier,
		ContentHash: ContentHash(award.AwardID, contract.PIID, fired, score),
	}
}

// orderByClass sorts fired signals by weight class descending, keeping
// the canonical signal order inside a class, so the reason string is
// deterministic.
func orderByClass(fired []signal.Signal) []signal.Signal {
	out := append([]signal.Signal(nil), fired...)
	sort.SliceStable(out, func(i, j int) bool {
		return signal.Classes[out[i].Name] > signal.Classes[out[j].Name]
	})
	return out
}

// ContentHash computes the sha256 hash over the canonical string of the
// inputs that produced a detection: award id, contract id, the sorted
// fired signal set with literal values, and the final score. Recomputed
// every run, never inherited, so corrected upstream payloads cannot leave
// a stale audit trail.
func ContentHash(awardID, contractID string, fired []signal.Signal, score float64) string {
	parts := make([]string, 0, len(fired))
	for _, s := range fired {
		parts = append(parts, s.Name+"="+s.Value)
	}
	sort.Strings(parts)

	canonical := fmt.Sprintf("award=%s|contract=%s|signals=%s|score=%.6f",
		awardID, contractID, strings.Join(parts, ","), score)

	sum := sha256.Sum256([]byte(canonical))
	return fmt.Sprintf("%x", sum)
}
