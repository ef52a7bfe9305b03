package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/transition-cli/internal/db"
	"github.com/sells-group/transition-cli/internal/model"
	"github.com/sells-group/transition-cli/internal/resilience"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}
	pgxCfg.MaxConns = 10
	pgxCfg.MinConns = 2
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}

	// The database may still be starting when detection is launched
	// alongside it; retry the initial ping on transient failures.
	err = resilience.Do(ctx, resilience.DBPolicy(), func(ctx context.Context) error {
		return pool.Ping(ctx)
	})
	if err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

// NewPostgresFromPool wraps an existing pool; used by tests with pgxmock.
func NewPostgresFromPool(pool db.Pool) *PostgresStore {
	return &PostgresStore{pool: pool, closeFn: func() {}}
}

const postgresMigration = `
CREATE SCHEMA IF NOT EXISTS transition;

CREATE TABLE IF NOT EXISTS transition.vendors (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS transition.vendor_identifiers (
	id_type     TEXT NOT NULL,
	id_value    TEXT NOT NULL,
	vendor_id   TEXT NOT NULL REFERENCES transition.vendors(id),
	recorded_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (id_type, id_value, recorded_at)
);

CREATE TABLE IF NOT EXISTS transition.vendor_aliases (
	from_id     TEXT NOT NULL,
	to_id       TEXT NOT NULL,
	recorded_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	PRIMARY KEY (from_id, to_id)
);

CREATE TABLE IF NOT EXISTS transition.research_awards (
	award_id        TEXT PRIMARY KEY,
	vendor_id       TEXT NOT NULL,
	phase           TEXT NOT NULL,
	agency          TEXT NOT NULL DEFAULT '',
	department      TEXT NOT NULL DEFAULT '',
	topic_code      TEXT NOT NULL DEFAULT '',
	naics           TEXT NOT NULL DEFAULT '',
	award_date      DATE,
	completion_date DATE,
	raw_payload     JSONB
);

CREATE TABLE IF NOT EXISTS transition.contract_vehicles (
	piid          TEXT PRIMARY KEY,
	parent_piid   TEXT NOT NULL DEFAULT '',
	vendor_id     TEXT NOT NULL,
	agency        TEXT NOT NULL DEFAULT '',
	department    TEXT NOT NULL DEFAULT '',
	office        TEXT NOT NULL DEFAULT '',
	description   TEXT NOT NULL DEFAULT '',
	naics         TEXT NOT NULL DEFAULT '',
	psc           TEXT NOT NULL DEFAULT '',
	competition   TEXT NOT NULL DEFAULT '',
	start_date    DATE,
	obligated_usd DOUBLE PRECISION NOT NULL DEFAULT 0,
	raw_payload   JSONB
);

CREATE TABLE IF NOT EXISTS transition.detections (
	award_id     TEXT NOT NULL,
	contract_id  TEXT NOT NULL,
	score        DOUBLE PRECISION NOT NULL,
	confidence   TEXT NOT NULL,
	evidence     JSONB NOT NULL,
	detected_at  TIMESTAMPTZ NOT NULL,
	run_id       TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (award_id, contract_id)
);

CREATE TABLE IF NOT EXISTS transition.detection_runs (
	id          TEXT PRIMARY KEY,
	started_at  TIMESTAMPTZ NOT NULL,
	finished_at TIMESTAMPTZ NOT NULL,
	emitted     INT NOT NULL DEFAULT 0,
	skipped     INT NOT NULL DEFAULT 0,
	failed      INT NOT NULL DEFAULT 0,
	config_hash TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_awards_vendor ON transition.research_awards(vendor_id);
CREATE INDEX IF NOT EXISTS idx_contracts_vendor_start ON transition.contract_vehicles(vendor_id, start_date);
CREATE INDEX IF NOT EXISTS idx_contracts_parent ON transition.contract_vehicles(parent_piid);
CREATE INDEX IF NOT EXISTS idx_detections_run ON transition.detections(run_id);
`

// Migrate applies the schema.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, postgresMigration); err != nil {
		return eris.Wrap(err, "postgres: migrate")
	}
	return nil
}

// Close releases the connection pool.
func (s *PostgresStore) Close() error {
	s.closeFn()
	return nil
}

// LoadVendors returns all vendor records.
func (s *PostgresStore) LoadVendors(ctx context.Context) ([]model.Vendor, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, name, created_at, updated_at
		FROM transition.vendors
		ORDER BY id`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: query vendors")
	}
	defer rows.Close()

	var out []model.Vendor
	for rows.Next() {
		var v model.Vendor
		if err := rows.Scan(&v.ID, &v.Name, &v.CreatedAt, &v.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan vendor")
		}
		out = append(out, v)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate vendors")
}

// LoadIdentifiers returns every identifier binding, novation history
// included, in recording order.
func (s *PostgresStore) LoadIdentifiers(ctx context.Context) ([]model.VendorIdentifier, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id_type, id_value, vendor_id, recorded_at
		FROM transition.vendor_identifiers
		ORDER BY recorded_at, id_type, id_value`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: query identifiers")
	}
	defer rows.Close()

	var out []model.VendorIdentifier
	for rows.Next() {
		var rec model.VendorIdentifier
		if err := rows.Scan(&rec.Type, &rec.Value, &rec.VendorID, &rec.RecordedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan identifier")
		}
		out = append(out, rec)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate identifiers")
}

// LoadAliases returns all alias edges.
func (s *PostgresStore) LoadAliases(ctx context.Context) ([]model.VendorAlias, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT from_id, to_id, recorded_at
		FROM transition.vendor_aliases
		ORDER BY recorded_at`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: query aliases")
	}
	defer rows.Close()

	var out []model.VendorAlias
	for rows.Next() {
		var a model.VendorAlias
		if err := rows.Scan(&a.FromID, &a.ToID, &a.RecordedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan alias")
		}
		out = append(out, a)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate aliases")
}

// LoadAwards returns all research awards.
func (s *PostgresStore) LoadAwards(ctx context.Context) ([]model.ResearchAward, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT award_id, vendor_id, phase, agency, department, topic_code, naics,
		       COALESCE(award_date, '0001-01-01'), COALESCE(completion_date, '0001-01-01'),
		       COALESCE(raw_payload, 'null'::jsonb)
		FROM transition.research_awards
		ORDER BY award_id`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: query awards")
	}
	defer rows.Close()

	var out []model.ResearchAward
	for rows.Next() {
		var a model.ResearchAward
		if err := rows.Scan(&a.AwardID, &a.VendorID, &a.Phase, &a.Agency, &a.Department,
			&a.TopicCode, &a.NAICS, &a.AwardDate, &a.CompletionDate, &a.RawPayload); err != nil {
			return nil, eris.Wrap(err, "postgres: scan award")
		}
		out = append(out, a)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate awards")
}

// LoadContracts returns all contract vehicles.
func (s *PostgresStore) LoadContracts(ctx context.Context) ([]model.ContractVehicle, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT piid, parent_piid, vendor_id, agency, department, office, description,
		       naics, psc, competition, COALESCE(start_date, '0001-01-01'), obligated_usd,
		       COALESCE(raw_payload, 'null'::jsonb)
		FROM transition.contract_vehicles
		ORDER BY piid`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: query contracts")
	}
	defer rows.Close()

	var out []model.ContractVehicle
	for rows.Next() {
		var c model.ContractVehicle
		if err := rows.Scan(&c.PIID, &c.ParentPIID, &c.VendorID, &c.Agency, &c.Department,
			&c.Office, &c.Description, &c.NAICS, &c.PSC, &c.Competition,
			&c.StartDate, &c.ObligatedUSD, &c.RawPayload); err != nil {
			return nil, eris.Wrap(err, "postgres: scan contract")
		}
		out = append(out, c)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate contracts")
}

// detectionColumns is the column list for bulk detection upserts.
var detectionColumns = []string{
	"award_id", "contract_id", "score", "confidence", "evidence", "detected_at", "run_id",
}

// UpsertDetections writes detections keyed by (award_id, contract_id).
// Re-running on identical inputs rewrites the same rows.
func (s *PostgresStore) UpsertDetections(ctx context.Context, detections []model.Detection) (int64, error) {
	if len(detections) == 0 {
		return 0, nil
	}

	rows := make([][]any, 0, len(detections))
	for _, d := range detections {
		evidence, err := json.Marshal(d.Evidence)
		if err != nil {
			return 0, eris.Wrapf(err, "postgres: marshal evidence for %s/%s", d.AwardID, d.ContractID)
		}
		rows = append(rows, []any{
			d.AwardID, d.ContractID, d.Score, string(d.Confidence), evidence, d.DetectedAt, d.RunID,
		})
	}

	n, err := db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "transition.detections",
		Columns:      detectionColumns,
		ConflictKeys: []string{"award_id", "contract_id"},
	}, rows)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: upsert detections")
	}
	return n, nil
}

// ListDetections returns detections matching the filter, highest score
// first.
func (s *PostgresStore) ListDetections(ctx context.Context, filter DetectionFilter) ([]model.Detection, error) {
	query := `
		SELECT award_id, contract_id, score, confidence, evidence, detected_at, run_id
		FROM transition.detections
		WHERE score >= $1`
	args := []any{filter.MinScore}
	argNum := 2

	if filter.RunID != "" {
		query += fmt.Sprintf(" AND run_id = $%d", argNum)
		args = append(args, filter.RunID)
		argNum++
	}
	if filter.Confidence != "" {
		query += fmt.Sprintf(" AND confidence = $%d", argNum)
		args = append(args, string(filter.Confidence))
		argNum++
	}
	query += " ORDER BY score DESC, award_id, contract_id"
	if filter.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argNum)
		args = append(args, filter.Limit)
	}

	pgxRows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: query detections")
	}
	defer pgxRows.Close()

	return scanDetections(pgxRows)
}

// RecordRun appends one run summary to the run log.
func (s *PostgresStore) RecordRun(ctx context.Context, run RunRecord) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO transition.detection_runs
			(id, started_at, finished_at, emitted, skipped, failed, config_hash)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		run.ID, run.StartedAt, run.FinishedAt, run.Emitted, run.Skipped, run.Failed, run.ConfigHash)
	if err != nil {
		return eris.Wrap(err, "postgres: record run")
	}
	return nil
}

func scanDetections(rows pgx.Rows) ([]model.Detection, error) {
	var out []model.Detection
	for rows.Next() {
		var d model.Detection
		var evidence []byte
		if err := rows.Scan(&d.AwardID, &d.ContractID, &d.Score, &d.Confidence,
			&evidence, &d.DetectedAt, &d.RunID); err != nil {
			return nil, eris.Wrap(err, "postgres: scan detection")
		}
		if err := json.Unmarshal(evidence, &d.Evidence); err != nil {
			return nil, eris.Wrapf(err, "postgres: unmarshal evidence for %s/%s", d.AwardID, d.ContractID)
		}
		out = append(out, d)
	}
	return out, eris.Wrap(rows.Err(), "postgres: iterate detections")
}
