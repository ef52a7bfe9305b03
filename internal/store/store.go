// Package store persists the normalized input corpus and emitted
// detections.
package store

import (
	"context"
	"time"

	"github.com/sells-group/transition-cli/internal/model"
)

// DetectionFilter specifies criteria for listing detections.
type DetectionFilter struct {
	RunID      string           `json:"run_id,omitempty"`
	Confidence model.Confidence `json:"confidence,omitempty"`
	MinScore   float64          `json:"min_score,omitempty"`
	Limit      int              `json:"limit,omitempty"`
}

// RunRecord summarizes one engine run for the run log.
type RunRecord struct {
	ID         string    `json:"id"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Emitted    int       `json:"emitted"`
	Skipped    int       `json:"skipped"`
	Failed     int       `json:"failed"`
	ConfigHash string    `json:"config_hash"`
}

// Store defines the persistence interface for the detection engine.
// Input records arrive normalized from upstream ingestion; the engine
// never parses raw source feeds.
type Store interface {
	// Input corpus
	LoadVendors(ctx context.Context) ([]model.Vendor, error)
	LoadIdentifiers(ctx context.Context) ([]model.VendorIdentifier, error)
	LoadAliases(ctx context.Context) ([]model.VendorAlias, error)
	LoadAwards(ctx context.Context) ([]model.ResearchAward, error)
	LoadContracts(ctx context.Context) ([]model.ContractVehicle, error)

	// Output
	UpsertDetections(ctx context.Context, detections []model.Detection) (int64, error)
	ListDetections(ctx context.Context, filter DetectionFilter) ([]model.Detection, error)
	RecordRun(ctx context.Context, run RunRecord) error

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}
