// Package idv links child contract actions to their parent
// indefinite-delivery vehicles and computes per-chain aggregates.
package idv

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/transition-cli/internal/model"
)

// ChainIntegrityError signals a cycle in parent PIID references. The
// offending subtree is excluded from aggregation and flagged; the run
// continues.
type ChainIntegrityError struct {
	Chain []string
}

func (e *ChainIntegrityError) Error() string {
	return fmt.Sprintf("idv: parent reference cycle: %s", strings.Join(e.Chain, " -> "))
}

// ChainAggregate is the derived view of one IDV chain consumed by scoring.
type ChainAggregate struct {
	RootPIID       string    `json:"root_piid"`
	TotalValue     float64   `json:"total_value"`
	RootStart      time.Time `json:"start_date_of_root"`
	LastActionDate time.Time `json:"last_action_date"`
	ChildCount     int       `json:"child_count"`
}

// Duration is the span from the root start to the last action.
func (a ChainAggregate) Duration() time.Duration {
	return a.LastActionDate.Sub(a.RootStart)
}

// Tracker owns traversal over the parent/child contract forest. It never
// mutates the ContractVehicle records it is built from. Build one per run;
// aggregates are cached per tracker, so the cache dies with the run.
type Tracker struct {
	byPIID   map[string]model.ContractVehicle
	children map[string][]string // parent piid -> sorted child piids
	flagged  map[string]bool     // piids excluded because of a cycle

	aggMu    sync.Mutex
	aggCache map[string]ChainAggregate
}

// NewTracker indexes the contract corpus into a parent/child forest.
// Vehicles whose parent references form a cycle are flagged and excluded;
// each detected cycle is reported through the returned errors, which are
// all of type *ChainIntegrityError.
func NewTracker(contracts []model.ContractVehicle) (*Tracker, []error) {
	t := &Tracker{
		byPIID:   make(map[string]model.ContractVehicle, len(contracts)),
		children: make(map[string][]string),
		aggCache: make(map[string]ChainAggregate),
		flagged:  make(map[string]bool),
	}

	for _, c := range contracts {
		if c.PIID == "" {
			continue
		}
		t.byPIID[c.PIID] = c
	}
	for piid, c := range t.byPIID {
		if c.ParentPIID != "" && c.ParentPIID != piid {
			t.children[c.ParentPIID] = append(t.children[c.ParentPIID], piid)
		}
	}
	for parent := range t.children {
		sort.Strings(t.children[parent])
	}

	var errs []error
	for piid := range t.byPIID {
		if t.flagged[piid] {
			continue
		}
		if _, err := t.walkToRoot(piid); err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) > 0 {
		zap.L().Warn("idv: cycles detected in parent references",
			zap.Int("cycles", len(errs)),
			zap.Int("flagged", len(t.flagged)),
		)
	}
	return t, errs
}

// walkToRoot follows parent references from piid to the chain root,
// flagging every node on the path if a cycle is found.
func (t *Tracker) walkToRoot(piid string) (string, error) {
	visited := map[string]bool{piid: true}
	chain := []string{piid}
	cur := piid
	for {
		c, ok := t.byPIID[cur]
		if !ok || c.ParentPIID == "" {
			return cur, nil
		}
		parent := c.ParentPIID
		if _, known := t.byPIID[parent]; !known {
			// Parent outside the corpus: treat cur as the root.
			return cur, nil
		}
		if visited[parent] {
			for _, p := range chain {
				t.flagged[p] = true
			}
			t.flagged[parent] = true
			return "", &ChainIntegrityError{Chain: append(chain, parent)}
		}
		visited[parent] = true
		chain = append(chain, parent)
		cur = parent
	}
}

// Flagged reports whether piid was excluded because its chain contains a
// cycle.
func (t *Tracker) Flagged(piid string) bool { return t.flagged[piid] }

// ChainOf returns the vehicles from the root parent down to the given
// vehicle, in order. A vehicle outside the corpus is an error; a flagged
// vehicle returns a ChainIntegrityError.
func (t *Tracker) ChainOf(piid string) ([]model.ContractVehicle, error) {
	if _, ok := t.byPIID[piid]; !ok {
		return nil, eris.Errorf("idv: unknown piid %q", piid)
	}
	if t.flagged[piid] {
		return nil, &ChainIntegrityError{Chain: []string{piid}}
	}

	var lineage []string
	cur := piid
	for {
		lineage = append(lineage, cur)
		c := t.byPIID[cur]
		if c.ParentPIID == "" {
			break
		}
		if _, known := t.byPIID[c.ParentPIID]; !known {
			break
		}
		cur = c.ParentPIID
	}

	chain := make([]model.ContractVehicle, 0, len(lineage))
	for i := len(lineage) - 1; i >= 0; i-- {
		chain = append(chain, t.byPIID[lineage[i]])
	}
	return chain, nil
}

// Root returns the root PIID of the chain containing piid.
func (t *Tracker) Root(piid string) (string, error) {
	if t.flagged[piid] {
		return "", &ChainIntegrityError{Chain: []string{piid}}
	}
	if _, ok := t.byPIID[piid]; !ok {
		return "", eris.Errorf("idv: unknown piid %q", piid)
	}
	return t.walkToRoot(piid)
}

// Aggregate computes the derived totals for the chain rooted at rootPIID:
// summed obligated value, root start, latest action date, and child count.
// Flagged subtrees are excluded.
func (t *Tracker) Aggregate(rootPIID string) (ChainAggregate, error) {
	t.aggMu.Lock()
	defer t.aggMu.Unlock()

	if agg, ok := t.aggCache[rootPIID]; ok {
		return agg, nil
	}

	root, ok := t.byPIID[rootPIID]
	if !ok {
		return ChainAggregate{}, eris.Errorf("idv: unknown root piid %q", rootPIID)
	}
	if t.flagged[rootPIID] {
		return ChainAggregate{}, &ChainIntegrityError{Chain: []string{rootPIID}}
	}

	agg := ChainAggregate{
		RootPIID:       rootPIID,
		TotalValue:     root.ObligatedUSD,
		RootStart:      root.StartDate,
		LastActionDate: root.StartDate,
	}

	// Iterative breadth-first descent; flagged nodes never enter the queue.
	queue := append([]string(nil), t.children[rootPIID]...)
	for len(queue) > 0 {
		piid := queue[0]
		queue = queue[1:]
		if t.flagged[piid] {
			continue
		}
		c, ok := t.byPIID[piid]
		if !ok {
			continue
		}
		agg.TotalValue += c.ObligatedUSD
		agg.ChildCount++
		if c.StartDate.After(agg.LastActionDate) {
			agg.LastActionDate = c.StartDate
		}
		queue = append(queue, t.children[piid]...)
	}

	t.aggCache[rootPIID] = agg
	return agg, nil
}
