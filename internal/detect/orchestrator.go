// Package detect sequences the detection pipeline per award and emits
// finalized detection records.
package detect

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/sells-group/transition-cli/internal/blend"
	"github.com/sells-group/transition-cli/internal/candidate"
	"github.com/sells-group/transition-cli/internal/config"
	"github.com/sells-group/transition-cli/internal/evidence"
	"github.com/sells-group/transition-cli/internal/identity"
	"github.com/sells-group/transition-cli/internal/idv"
	"github.com/sells-group/transition-cli/internal/model"
	"github.com/sells-group/transition-cli/internal/signal"
	"github.com/sells-group/transition-cli/internal/store"
)

// AwardOutcome is the terminal state of one award within a run.
type AwardOutcome struct {
	AwardID    string           `json:"award_id"`
	State      model.AwardState `json:"state"`
	Detections int              `json:"detections"`
	Error      string           `json:"error,omitempty"`
}

// RunResult summarizes one engine run.
type RunResult struct {
	RunID      string            `json:"run_id"`
	StartedAt  time.Time         `json:"started_at"`
	FinishedAt time.Time         `json:"finished_at"`
	Detections []model.Detection `json:"detections"`
	Outcomes   []AwardOutcome    `json:"outcomes"`
	Skips      []candidate.Skip  `json:"skips,omitempty"`
	ChainFlags []string          `json:"chain_flags,omitempty"`
	Emitted    int               `json:"emitted"`
	Skipped    int               `json:"skipped"`
	Failed     int               `json:"failed"`
}

// Orchestrator wires the identity snapshot, chain tracker, candidate
// generator, scorer, blender, and evidence builder into the per-award
// pipeline.
type Orchestrator struct {
	cfg   config.DetectConfig
	store store.Store
}

// NewOrchestrator creates an Orchestrator over the given store.
func NewOrchestrator(cfg config.DetectConfig, st store.Store) *Orchestrator {
	return &Orchestrator{cfg: cfg, store: st}
}

// Run executes one full detection pass over the corpus. Configuration
// errors are fatal and surface before any award is processed; data
// quality errors are isolated to the smallest affected unit. The run may
// be cancelled between award units without corrupting emitted output.
func (o *Orchestrator) Run(ctx context.Context) (*RunResult, error) {
	log := zap.L().With(zap.String("component", "detect.orchestrator"))

	// Fail fast on bad thresholds or weights, before loading anything.
	if err := config.ValidateDetect(o.cfg); err != nil {
		return nil, err
	}

	blender, err := blend.NewBlender(o.cfg)
	if err != nil {
		return nil, err
	}

	result := &RunResult{
		RunID:     uuid.NewString(),
		StartedAt: time.Now().UTC(),
	}

	snapshot, awards, contracts, tracker, err := o.prepare(ctx, result)
	if err != nil {
		return nil, err
	}

	gen := candidate.New(candidate.Window{
		MinDays:   o.cfg.WindowMinDays,
		MaxMonths: o.cfg.WindowMaxMonths,
	}, contracts)
	result.Skips = append(result.Skips, gen.Skips()...)

	scorer := signal.NewScorer(o.cfg.Weights)

	log.Info("detect: run starting",
		zap.String("run_id", result.RunID),
		zap.Int("awards", len(awards)),
		zap.Int("contracts", len(contracts)),
		zap.Int("workers", o.cfg.Workers),
		zap.String("model", blender.ModelName()),
	)

	var mu sync.Mutex
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(o.cfg.Workers)

	for _, award := range awards {
		g.Go(func() error {
			// Abort between award units on cancellation; detections
			// already emitted remain valid.
			select {
			case <-gCtx.Done():
				return gCtx.Err()
			default:
			}

			outcome, detections := o.processAward(award, snapshot, tracker, gen, scorer, blender)

			mu.Lock()
			result.Outcomes = append(result.Outcomes, outcome)
			result.Detections = append(result.Detections, detections...)
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, eris.Wrap(err, "detect: run aborted")
	}

	o.finalize(result)

	if err := o.emit(ctx, result); err != nil {
		return nil, err
	}

	log.Info("detect: run complete",
		zap.String("run_id", result.RunID),
		zap.Int("emitted", result.Emitted),
		zap.Int("skipped", result.Skipped),
		zap.Int("failed", result.Failed),
	)
	return result, nil
}

// prepare loads the corpus and builds the read-only reference structures
// every worker shares: the identity snapshot and the IDV chain tracker.
// Both are fully resolved before scoring begins.
func (o *Orchestrator) prepare(ctx context.Context, result *RunResult) (*identity.Snapshot, []model.ResearchAward, []model.ContractVehicle, *idv.Tracker, error) {
	identifiers, err := o.store.LoadIdentifiers(ctx)
	if err != nil {
		return nil, nil, nil, nil, eris.Wrap(err, "detect: load identifiers")
	}
	aliases, err := o.store.LoadAliases(ctx)
	if err != nil {
		return nil, nil, nil, nil, eris.Wrap(err, "detect: load aliases")
	}
	vendors, err := o.store.LoadVendors(ctx)
	if err != nil {
		return nil, nil, nil, nil, eris.Wrap(err, "detect: load vendors")
	}
	awards, err := o.store.LoadAwards(ctx)
	if err != nil {
		return nil, nil, nil, nil, eris.Wrap(err, "detect: load awards")
	}
	contracts, err := o.store.LoadContracts(ctx)
	if err != nil {
		return nil, nil, nil, nil, eris.Wrap(err, "detect: load contracts")
	}

	builder := identity.NewBuilder()
	for _, v := range vendors {
		builder.AddVendor(v)
	}
	for _, rec := range identifiers {
		if err := builder.AddIdentifier(rec); err != nil {
			result.Skips = append(result.Skips, candidate.Skip{
				RecordKind: "identifier",
				RecordID:   string(rec.Type) + ":" + rec.Value,
				Reason:     err.Error(),
			})
		}
	}
	for _, a := range aliases {
		builder.AddAlias(a)
	}
	snapshot := builder.Snapshot()

	// Rewrite contract vendor ids to canonical form so candidate indexing
	// and award lookups agree. Contracts on poisoned vendors are dropped
	// here; their awards fail individually below.
	resolved := contracts[:0]
	for _, c := range contracts {
		canon, err := snapshot.ResolveVendor(c.VendorID)
		if err != nil {
			result.Skips = append(result.Skips, candidate.Skip{
				RecordKind: "contract", RecordID: c.PIID, Reason: err.Error(),
			})
			continue
		}
		c.VendorID = canon
		resolved = append(resolved, c)
	}
	contracts = resolved

	tracker, chainErrs := idv.NewTracker(contracts)
	for _, cerr := range chainErrs {
		result.ChainFlags = append(result.ChainFlags, cerr.Error())
	}

	return snapshot, awards, contracts, tracker, nil
}

// processAward runs one award through the state machine:
// pending -> scoring -> classified -> emitted, or terminal skipped/failed.
func (o *Orchestrator) processAward(
	award model.ResearchAward,
	snapshot *identity.Snapshot,
	tracker *idv.Tracker,
	gen *candidate.Generator,
	scorer *signal.Scorer,
	blender *blend.Blender,
) (AwardOutcome, []model.Detection) {
	outcome := AwardOutcome{AwardID: award.AwardID, State: model.AwardPending}

	canon, err := snapshot.ResolveVendor(award.VendorID)
	if err != nil {
		outcome.State = model.AwardFailed
		outcome.Error = err.Error()
		return outcome, nil
	}
	award.VendorID = canon

	pairs, err := gen.Pairs(award)
	if err != nil {
		// Missing required fields exclude the award without failing it.
		var missing *model.MissingFieldError
		if eris.As(err, &missing) {
			outcome.State = model.AwardSkipped
			outcome.Error = err.Error()
			return outcome, nil
		}
		outcome.State = model.AwardFailed
		outcome.Error = err.Error()
		return outcome, nil
	}
	if len(pairs) == 0 {
		outcome.State = model.AwardSkipped
		return outcome, nil
	}

	outcome.State = model.AwardScoring
	now := time.Now().UTC()

	var detections []model.Detection
	for _, pair := range pairs {
		chain := chainAggregate(tracker, pair.Contract)

		vector := scorer.Score(pair.Award, pair.Contract, chain)
		score := blender.Blend(vector, chain)

		tier, ok := blender.Classify(score)
		if !ok {
			continue
		}

		bundle := evidence.Build(pair.Award, pair.Contract, vector, score, tier)
		detections = append(detections, model.Detection{
			AwardID:    pair.Award.AwardID,
			ContractID: pair.Contract.PIID,
			Score:      score,
			Confidence: tier,
			Evidence:   bundle,
			DetectedAt: now,
		})
	}

	outcome.State = model.AwardClassified
	if len(detections) == 0 {
		outcome.State = model.AwardSkipped
		return outcome, nil
	}

	outcome.State = model.AwardEmitted
	outcome.Detections = len(detections)
	return outcome, detections
}

// chainAggregate computes the vehicle-level context for a contract, or a
// zero aggregate when the contract sits outside any resolvable chain.
func chainAggregate(tracker *idv.Tracker, contract model.ContractVehicle) idv.ChainAggregate {
	root, err := tracker.Root(contract.PIID)
	if err != nil {
		return idv.ChainAggregate{}
	}
	agg, err := tracker.Aggregate(root)
	if err != nil {
		return idv.ChainAggregate{}
	}
	return agg
}

// finalize orders results deterministically and tallies outcome counts.
func (o *Orchestrator) finalize(result *RunResult) {
	sortDetections(result.Detections)
	sortOutcomes(result.Outcomes)

	for i := range result.Detections {
		result.Detections[i].RunID = result.RunID
	}
	for _, oc := range result.Outcomes {
		switch oc.State {
		case model.AwardEmitted:
			result.Emitted += oc.Detections
		case model.AwardSkipped:
			result.Skipped++
		case model.AwardFailed:
			result.Failed++
		}
	}
	result.FinishedAt = time.Now().UTC()
}

// emit persists detections and the run record. Emission is an idempotent
// upsert keyed by (award id, contract id).
func (o *Orchestrator) emit(ctx context.Context, result *RunResult) error {
	if _, err := o.store.UpsertDetections(ctx, result.Detections); err != nil {
		return eris.Wrap(err, "detect: emit detections")
	}
	err := o.store.RecordRun(ctx, store.RunRecord{
		ID:         result.RunID,
		StartedAt:  result.StartedAt,
		FinishedAt: result.FinishedAt,
		Emitted:    result.Emitted,
		Skipped:    result.Skipped,
		Failed:     result.Failed,
		ConfigHash: ConfigHash(o.cfg),
	})
	if err != nil {
		return eris.Wrap(err, "detect: record run")
	}
	return nil
}
