package identity

import (
	"regexp"
	"sort"
	"strings"

	"github.com/sells-group/transition-cli/internal/model"
)

// legalSuffixes lists common legal entity suffixes to strip during name
// normalization.
var legalSuffixes = []string{
	" LLC", " L.L.C.", " L.L.C",
	" INC", " INC.", " INCORPORATED",
	" CORP", " CORP.", " CORPORATION",
	" LTD", " LTD.", " LIMITED",
	" LP", " L.P.", " L.P",
	" LLP", " L.L.P.", " L.L.P",
	" PC", " P.C.", " P.C",
	" CO", " CO.",
	" PLC", " P.L.C.",
	" DBA", " D/B/A",
	" PLLC",
}

var multiSpaceRe = regexp.MustCompile(`\s{2,}`)

// NormalizeName standardizes a vendor name for duplicate screening by
// uppercasing, stripping a trailing legal suffix, removing punctuation,
// and collapsing whitespace.
func NormalizeName(name string) string {
	name = strings.TrimSpace(name)
	if name == "" {
		return ""
	}

	name = strings.ToUpper(name)

	for _, suffix := range legalSuffixes {
		if strings.HasSuffix(name, suffix) {
			name = strings.TrimSuffix(name, suffix)
			break
		}
	}

	name = strings.NewReplacer(
		",", "",
		".", "",
		"'", "",
		"\"", "",
		"&", "AND",
		"-", " ",
	).Replace(name)

	name = multiSpaceRe.ReplaceAllString(name, " ")
	name = strings.TrimSpace(name)

	return name
}

// DuplicateGroups clusters vendors whose normalized names collide. These
// are merge candidates for operator review, not automatic merges: name
// collisions alone are too weak to unify identity.
func DuplicateGroups(vendors []model.Vendor) map[string][]model.Vendor {
	byName := make(map[string][]model.Vendor)
	for _, v := range vendors {
		norm := NormalizeName(v.Name)
		if norm == "" {
			continue
		}
		byName[norm] = append(byName[norm], v)
	}

	groups := make(map[string][]model.Vendor)
	for norm, vs := range byName {
		if len(vs) < 2 {
			continue
		}
		sort.Slice(vs, func(i, j int) bool { return vs[i].ID < vs[j].ID })
		groups[norm] = vs
	}
	return groups
}
