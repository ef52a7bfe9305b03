// Package identity maintains canonical vendor identity across UEI, DUNS,
// and CAGE identifiers, including aliases created by merges and novations.
package identity

import (
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/transition-cli/internal/model"
)

// IdentityCycleError signals that an alias chain loops back on itself.
// The affected vendor's awards are failed; the run continues.
type IdentityCycleError struct {
	Chain []string
}

func (e *IdentityCycleError) Error() string {
	return fmt.Sprintf("identity: alias chain cycle: %s", strings.Join(e.Chain, " -> "))
}

// Builder accumulates identifier, vendor, and alias records and freezes
// them into a Snapshot. Merges are append-only: the absorbed vendor id
// becomes an alias of the canonical one and is never deleted.
type Builder struct {
	vendors map[string]model.Vendor
	ids     map[model.IDType]map[string]string // value -> vendor id (current owner)
	history []model.VendorIdentifier           // every binding ever seen, novations included
	aliases map[string]string                  // from vendor id -> to vendor id
	version int
}

// NewBuilder returns an empty Builder.
func NewBuilder() *Builder {
	ids := make(map[model.IDType]map[string]string)
	for _, t := range []model.IDType{model.IDTypeUEI, model.IDTypeDUNS, model.IDTypeCAGE} {
		ids[t] = make(map[string]string)
	}
	return &Builder{
		vendors: make(map[string]model.Vendor),
		ids:     ids,
		aliases: make(map[string]string),
	}
}

// AddVendor registers a vendor record. Re-adding an existing id keeps the
// earliest creation time, so merge tie-breaking is stable.
func (b *Builder) AddVendor(v model.Vendor) {
	if existing, ok := b.vendors[v.ID]; ok {
		if existing.CreatedAt.Before(v.CreatedAt) {
			return
		}
	}
	b.vendors[v.ID] = v
}

// AddIdentifier records an identifier binding. A value already bound to a
// different vendor within the same type is a novation: the later record
// takes ownership and the earlier binding stays in history.
func (b *Builder) AddIdentifier(rec model.VendorIdentifier) error {
	if !rec.Type.Valid() {
		return eris.Errorf("identity: unknown identifier type %q", rec.Type)
	}
	if rec.Value == "" || rec.VendorID == "" {
		return eris.New("identity: identifier value and vendor id are required")
	}

	b.history = append(b.history, rec)

	if owner, ok := b.ids[rec.Type][rec.Value]; ok && owner != rec.VendorID {
		zap.L().Debug("identity: novation recorded",
			zap.String("type", string(rec.Type)),
			zap.String("value", rec.Value),
			zap.String("from", owner),
			zap.String("to", rec.VendorID),
		)
	}
	b.ids[rec.Type][rec.Value] = rec.VendorID

	if _, ok := b.vendors[rec.VendorID]; !ok {
		b.vendors[rec.VendorID] = model.Vendor{ID: rec.VendorID, CreatedAt: rec.RecordedAt}
	}
	return nil
}

// AddAlias records a pre-existing alias edge, e.g. loaded from storage.
func (b *Builder) AddAlias(a model.VendorAlias) {
	if a.FromID == "" || a.ToID == "" || a.FromID == a.ToID {
		return
	}
	b.aliases[a.FromID] = a.ToID
}

// Merge unifies two vendors. The canonical survivor is the one created
// earlier (lexically smaller id on a tie); the other becomes an alias.
// Merging an already-unified pair is a no-op. Returns the canonical id.
func (b *Builder) Merge(vendorA, vendorB string) (string, error) {
	ca, err := b.canonical(vendorA)
	if err != nil {
		return "", err
	}
	cb, err := b.canonical(vendorB)
	if err != nil {
		return "", err
	}
	if ca == cb {
		return ca, nil
	}

	winner, loser := ca, cb
	va, okA := b.vendors[ca]
	vb, okB := b.vendors[cb]
	switch {
	case okA && okB && !va.CreatedAt.Equal(vb.CreatedAt):
		if vb.CreatedAt.Before(va.CreatedAt) {
			winner, loser = cb, ca
		}
	default:
		if cb < ca {
			winner, loser = cb, ca
		}
	}

	b.aliases[loser] = winner
	b.version++

	zap.L().Info("identity: vendors merged",
		zap.String("canonical", winner),
		zap.String("alias", loser),
	)
	return winner, nil
}

// canonical walks the alias chain from id to its fixed point.
func (b *Builder) canonical(id string) (string, error) {
	return followAliases(id, b.aliases)
}

// Snapshot freezes the builder into an immutable resolved view. Every
// identifier value is pre-resolved to its canonical vendor, so alias
// chains are walked once here rather than on every lookup. A cycle in
// the alias graph does not fail the build: the affected vendors are
// poisoned, and resolving them returns the IdentityCycleError so their
// awards can be failed individually while the run continues.
func (b *Builder) Snapshot() *Snapshot {
	cycles := make(map[string]*IdentityCycleError)
	resolved := make(map[model.IDType]map[string]string, len(b.ids))
	for typ, values := range b.ids {
		resolved[typ] = make(map[string]string, len(values))
		for value, owner := range values {
			canon, err := followAliases(owner, b.aliases)
			if err != nil {
				var cycleErr *IdentityCycleError
				if eris.As(err, &cycleErr) {
					cycles[owner] = cycleErr
					resolved[typ][value] = owner
					continue
				}
			}
			resolved[typ][value] = canon
		}
	}

	aliases := make(map[string]string, len(b.aliases))
	for from, to := range b.aliases {
		aliases[from] = to
	}

	if len(cycles) > 0 {
		zap.L().Warn("identity: alias cycles detected; affected vendors poisoned",
			zap.Int("vendors", len(cycles)),
		)
	}

	return &Snapshot{
		version: b.version,
		ids:     resolved,
		aliases: aliases,
		cycles:  cycles,
		minted:  make(map[string]string),
	}
}

// followAliases walks from id to the end of its alias chain, guarding
// against cycles with a visited set.
func followAliases(id string, aliases map[string]string) (string, error) {
	visited := map[string]bool{id: true}
	chain := []string{id}
	cur := id
	for {
		next, ok := aliases[cur]
		if !ok {
			return cur, nil
		}
		if visited[next] {
			return "", &IdentityCycleError{Chain: append(chain, next)}
		}
		visited[next] = true
		chain = append(chain, next)
		cur = next
	}
}

// Snapshot is a versioned, read-mostly view of vendor identity pinned for
// the duration of one run. Lookups of unknown identifier values mint a new
// vendor id rather than failing; minted ids are stable within the snapshot.
type Snapshot struct {
	version int
	ids     map[model.IDType]map[string]string
	aliases map[string]string
	cycles  map[string]*IdentityCycleError // poisoned vendor id -> its cycle

	mu     sync.RWMutex
	minted map[string]string // "type:value" -> minted vendor id
}

// Version returns the snapshot's merge version.
func (s *Snapshot) Version() int { return s.version }

// Resolve maps an identifier to its canonical vendor id. Unknown values
// mint a new vendor, since upstream data may reference vendors not yet
// cross-walked; minted reports whether that happened.
func (s *Snapshot) Resolve(typ model.IDType, value string) (vendorID string, minted bool, err error) {
	if !typ.Valid() {
		return "", false, eris.Errorf("identity: unknown identifier type %q", typ)
	}
	if value == "" {
		return "", false, eris.New("identity: empty identifier value")
	}

	if id, ok := s.ids[typ][value]; ok {
		if cycleErr, poisoned := s.cycles[id]; poisoned {
			return "", false, cycleErr
		}
		return id, false, nil
	}

	key := string(typ) + ":" + value
	s.mu.RLock()
	id, ok := s.minted[key]
	s.mu.RUnlock()
	if ok {
		return id, false, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if id, ok := s.minted[key]; ok {
		return id, false, nil
	}
	id = uuid.NewString()
	s.minted[key] = id
	return id, true, nil
}

// ResolveVendor maps a vendor id (possibly a retired alias) to its
// canonical vendor id. A vendor caught in an alias cycle returns the
// IdentityCycleError recorded at snapshot time.
func (s *Snapshot) ResolveVendor(vendorID string) (string, error) {
	if cycleErr, poisoned := s.cycles[vendorID]; poisoned {
		return "", cycleErr
	}
	return followAliases(vendorID, s.aliases)
}

// CycleErrors returns the alias cycles found at snapshot time, one per
// poisoned vendor.
func (s *Snapshot) CycleErrors() []*IdentityCycleError {
	out := make([]*IdentityCycleError, 0, len(s.cycles))
	for _, e := range s.cycles {
		out = append(out, e)
	}
	return out
}

// MintedCount returns how many vendors this snapshot has minted for
// identifier values absent from the crosswalk.
func (s *Snapshot) MintedCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.minted)
}

// Canonicals returns the sorted set of canonical vendor ids known to the
// snapshot (minted vendors excluded).
func (s *Snapshot) Canonicals() []string {
	seen := make(map[string]bool)
	for _, values := range s.ids {
		for _, id := range values {
			seen[id] = true
		}
	}
	out := make([]string, 0, len(seen))
	for id := range seen {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
