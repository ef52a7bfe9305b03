package model

import (
	"encoding/json"
	"strings"
	"time"
)

// ContractVehicle is a contract action or indefinite-delivery vehicle.
// Children reference their parent by PIID; a vehicle has zero or one
// parent and any number of children.
type ContractVehicle struct {
	PIID         string          `json:"piid"`
	ParentPIID   string          `json:"parent_piid,omitempty"`
	VendorID     string          `json:"vendor_id"`
	Agency       string          `json:"agency"`
	Department   string          `json:"department"`
	Office       string          `json:"office"`
	Description  string          `json:"description"`
	NAICS        string          `json:"naics"`
	PSC          string          `json:"psc"`
	Competition  string          `json:"competition"`
	StartDate    time.Time       `json:"start_date"`
	ObligatedUSD float64         `json:"obligated_usd"`
	RawPayload   json.RawMessage `json:"raw_payload,omitempty"`
}

// IsChild reports whether the vehicle references a parent IDV.
func (c ContractVehicle) IsChild() bool { return c.ParentPIID != "" }

// soleSourceMarkers are the FPDS extent-competed literals that indicate a
// non-competed action.
var soleSourceMarkers = []string{
	"not competed",
	"sole source",
	"only one source",
	"not available for competition",
}

// statuteMarker is the FPDS "other than full and open" reason literal used
// by Phase III follow-on authority.
const statuteMarker = "authorized by statute"

// SoleSource reports whether the competition details indicate the action
// was awarded without competition.
func (c ContractVehicle) SoleSource() bool {
	comp := strings.ToLower(c.Competition)
	for _, m := range soleSourceMarkers {
		if strings.Contains(comp, m) {
			return true
		}
	}
	return false
}

// AuthorizedByStatute reports whether the competition procedure carries the
// "authorized by statute" literal.
func (c ContractVehicle) AuthorizedByStatute() bool {
	return strings.Contains(strings.ToLower(c.Competition), statuteMarker)
}
