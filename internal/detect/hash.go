package detect

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"

	"github.com/sells-group/transition-cli/internal/config"
	"github.com/sells-group/transition-cli/internal/model"
)

// ConfigHash fingerprints the detection configuration so runs can be
// compared for reproducibility. JSON marshaling of DetectConfig is
// deterministic because map keys are sorted by the encoder.
func ConfigHash(cfg config.DetectConfig) string {
	raw, err := json.Marshal(cfg)
	if err != nil {
		return ""
	}
	sum := sha256.Sum256(raw)
	return hex.EncodeToString(sum[:])
}

func sortDetections(ds []model.Detection) {
	sort.Slice(ds, func(i, j int) bool {
		if ds[i].AwardID != ds[j].AwardID {
			return ds[i].AwardID < ds[j].AwardID
		}
		return ds[i].ContractID < ds[j].ContractID
	})
}

func sortOutcomes(os []AwardOutcome) {
	sort.Slice(os, func(i, j int) bool { return os[i].AwardID < os[j].AwardID })
}
