package store

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/transition-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite, for local and
// offline backtest runs.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL
// mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS vendors (
	id         TEXT PRIMARY KEY,
	name       TEXT NOT NULL DEFAULT '',
	created_at DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS vendor_identifiers (
	id_type     TEXT NOT NULL,
	id_value    TEXT NOT NULL,
	vendor_id   TEXT NOT NULL,
	recorded_at DATETIME NOT NULL DEFAULT (datetime('now')),
	PRIMARY KEY (id_type, id_value, recorded_at)
);

CREATE TABLE IF NOT EXISTS vendor_aliases (
	from_id     TEXT NOT NULL,
	to_id       TEXT NOT NULL,
	recorded_at DATETIME NOT NULL DEFAULT (datetime('now')),
	PRIMARY KEY (from_id, to_id)
);

CREATE TABLE IF NOT EXISTS research_awards (
	award_id        TEXT PRIMARY KEY,
	vendor_id       TEXT NOT NULL,
	phase           TEXT NOT NULL,
	agency          TEXT NOT NULL DEFAULT '',
	department      TEXT NOT NULL DEFAULT '',
	topic_code      TEXT NOT NULL DEFAULT '',
	naics           TEXT NOT NULL DEFAULT '',
	award_date      DATETIME,
	completion_date DATETIME,
	raw_payload     TEXT
);

CREATE TABLE IF NOT EXISTS contract_vehicles (
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
	start_date    DATETIME,
	obligated_usd REAL NOT NULL DEFAULT 0,
	raw_payload   TEXT
);

CREATE TABLE IF NOT EXISTS detections (
	award_id    TEXT NOT NULL,
	contract_id TEXT NOT NULL,
	score       REAL NOT NULL,
	confidence  TEXT NOT NULL,
	evidence    TEXT NOT NULL,
	detected_at DATETIME NOT NULL,
	run_id      TEXT NOT NULL DEFAULT '',
	PRIMARY KEY (award_id, contract_id)
);

CREATE TABLE IF NOT EXISTS detection_runs (
	id          TEXT PRIMARY KEY,
	started_at  DATETIME NOT NULL,
	finished_at DATETIME NOT NULL,
	emitted     INTEGER NOT NULL DEFAULT 0,
	skipped     INTEGER NOT NULL DEFAULT 0,
	failed      INTEGER NOT NULL DEFAULT 0,
	config_hash TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS idx_awards_vendor ON research_awards(vendor_id);
CREATE INDEX IF NOT EXISTS idx_contracts_vendor_start ON contract_vehicles(vendor_id, start_date);
CREATE INDEX IF NOT EXISTS idx_contracts_parent ON contract_vehicles(parent_piid);
CREATE INDEX IF NOT EXISTS idx_detections_run ON detections(run_id);
`

// Migrate applies the schema.
func (s *SQLiteStore) Migrate(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, sqliteMigration); err != nil {
		return eris.Wrap(err, "sqlite: migrate")
	}
	return nil
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

// LoadVendors returns all vendor records.
func (s *SQLiteStore) LoadVendors(ctx context.Context) ([]model.Vendor, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, created_at, updated_at FROM vendors ORDER BY id`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: query vendors")
	}
	defer rows.Close()

	var out []model.Vendor
	for rows.Next() {
		var v model.Vendor
		if err := rows.Scan(&v.ID, &v.Name, &v.CreatedAt, &v.UpdatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan vendor")
		}
		out = append(out, v)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate vendors")
}

// LoadIdentifiers returns every identifier binding in recording order.
func (s *SQLiteStore) LoadIdentifiers(ctx context.Context) ([]model.VendorIdentifier, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id_type, id_value, vendor_id, recorded_at
		FROM vendor_identifiers
		ORDER BY recorded_at, id_type, id_value`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: query identifiers")
	}
	defer rows.Close()

	var out []model.VendorIdentifier
	for rows.Next() {
		var rec model.VendorIdentifier
		if err := rows.Scan(&rec.Type, &rec.Value, &rec.VendorID, &rec.RecordedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan identifier")
		}
		out = append(out, rec)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate identifiers")
}

// LoadAliases returns all alias edges.
func (s *SQLiteStore) LoadAliases(ctx context.Context) ([]model.VendorAlias, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT from_id, to_id, recorded_at FROM vendor_aliases ORDER BY recorded_at`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: query aliases")
	}
	defer rows.Close()

	var out []model.VendorAlias
	for rows.Next() {
		var a model.VendorAlias
		if err := rows.Scan(&a.FromID, &a.ToID, &a.RecordedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan alias")
		}
		out = append(out, a)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate aliases")
}

// LoadAwards returns all research awards.
func (s *SQLiteStore) LoadAwards(ctx context.Context) ([]model.ResearchAward, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT award_id, vendor_id, phase, agency, department, topic_code, naics,
		       award_date, completion_date, COALESCE(raw_payload, 'null')
		FROM research_awards
		ORDER BY award_id`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: query awards")
	}
	defer rows.Close()

	var out []model.ResearchAward
	for rows.Next() {
		var a model.ResearchAward
		var awardDate, completionDate sql.NullTime
		var payload string
		if err := rows.Scan(&a.AwardID, &a.VendorID, &a.Phase, &a.Agency, &a.Department,
			&a.TopicCode, &a.NAICS, &awardDate, &completionDate, &payload); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan award")
		}
		a.AwardDate = awardDate.Time
		a.CompletionDate = completionDate.Time
		a.RawPayload = json.RawMessage(payload)
		out = append(out, a)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate awards")
}

// LoadContracts returns all contract vehicles.
func (s *SQLiteStore) LoadContracts(ctx context.Context) ([]model.ContractVehicle, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT piid, parent_piid, vendor_id, agency, department, office, description,
		       naics, psc, competition, start_date, obligated_usd, COALESCE(raw_payload, 'null')
		FROM contract_vehicles
		ORDER BY piid`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: query contracts")
	}
	defer rows.Close()

	var out []model.ContractVehicle
	for rows.Next() {
		var c model.ContractVehicle
		var startDate sql.NullTime
		var payload string
		if err := rows.Scan(&c.PIID, &c.ParentPIID, &c.VendorID, &c.Agency, &c.Department,
			&c.Office, &c.Description, &c.NAICS, &c.PSC, &c.Competition,
			&startDate, &c.ObligatedUSD, &payload); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan contract")
		}
		c.StartDate = startDate.Time
		c.RawPayload = json.RawMessage(payload)
		out = append(out, c)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate contracts")
}

// UpsertDetections writes detections keyed by (award_id, contract_id)
// inside one transaction.
func (s *SQLiteStore) UpsertDetections(ctx context.Context, detections []model.Detection) (int64, error) {
	if len(detections) == 0 {
		return 0, nil
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	stmt, err := tx.PrepareContext(ctx, `
		INSERT INTO detections (award_id, contract_id, score, confidence, evidence, detected_at, run_id)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (award_id, contract_id) DO UPDATE SET
			score = excluded.score,
			confidence = excluded.confidence,
			evidence = excluded.evidence,
			detected_at = excluded.detected_at,
			run_id = excluded.run_id`)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: prepare upsert")
	}
	defer stmt.Close()

	var n int64
	for _, d := range detections {
		evidence, err := json.Marshal(d.Evidence)
		if err != nil {
			return 0, eris.Wrapf(err, "sqlite: marshal evidence for %s/%s", d.AwardID, d.ContractID)
		}
		if _, err := stmt.ExecContext(ctx, d.AwardID, d.ContractID, d.Score,
			string(d.Confidence), string(evidence), d.DetectedAt, d.RunID); err != nil {
			return 0, eris.Wrapf(err, "sqlite: upsert detection %s/%s", d.AwardID, d.ContractID)
		}
		n++
	}

	if err := tx.Commit(); err != nil {
		return 0, eris.Wrap(err, "sqlite: commit detections")
	}
	return n, nil
}

// ListDetections returns detections matching the filter, highest score
// first.
func (s *SQLiteStore) ListDetections(ctx context.Context, filter DetectionFilter) ([]model.Detection, error) {
	query := `
		SELECT award_id, contract_id, score, confidence, evidence, detected_at, run_id
		FROM detections
		WHERE score >= ?`
	args := []any{filter.MinScore}

	if filter.RunID != "" {
		query += " AND run_id = ?"
		args = append(args, filter.RunID)
	}
	if filter.Confidence != "" {
		query += " AND confidence = ?"
		args = append(args, string(filter.Confidence))
	}
	query += " ORDER BY score DESC, award_id, contract_id"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: query detections")
	}
	defer rows.Close()

	var out []model.Detection
	for rows.Next() {
		var d model.Detection
		var evidence string
		if err := rows.Scan(&d.AwardID, &d.ContractID, &d.Score, &d.Confidence,
			&evidence, &d.DetectedAt, &d.RunID); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan detection")
		}
		if err := json.Unmarshal([]byte(evidence), &d.Evidence); err != nil {
			return nil, eris.Wrapf(err, "sqlite: unmarshal evidence for %s/%s", d.AwardID, d.ContractID)
		}
		out = append(out, d)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: iterate detections")
}

// RecordRun appends one run summary to the run log.
func (s *SQLiteStore) RecordRun(ctx context.Context, run RunRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO detection_runs (id, started_at, finished_at, emitted, skipped, failed, config_hash)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		run.ID, run.StartedAt, run.FinishedAt, run.Emitted, run.Skipped, run.Failed, run.ConfigHash)
	if err != nil {
		return eris.Wrap(err, "sqlite: record run")
	}
	return nil
}

// Open constructs a Store from the store configuration.
func Open(ctx context.Context, driver, databaseURL string) (Store, error) {
	switch driver {
	case "postgres":
		return NewPostgres(ctx, databaseURL)
	case "sqlite":
		return NewSQLite(databaseURL)
	}
	return nil, eris.Errorf("store: unknown driver %q", driver)
}

// SeedForTest inserts input records directly; used by engine tests that
// run against an in-memory SQLite store.
func (s *SQLiteStore) SeedForTest(ctx context.Context, awards []model.ResearchAward, contracts []model.ContractVehicle) error {
	for _, a := range awards {
		if _, err := s.db.ExecContext(ctx, `
			INSERT OR REPLACE INTO research_awards
				(award_id, vendor_id, phase, agency, department, topic_code, naics, award_date, completion_date)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			a.AwardID, a.VendorID, string(a.Phase), a.Agency, a.Department,
			a.TopicCode, a.NAICS, a.AwardDate, a.CompletionDate); err != nil {
			return eris.Wrapf(err, "sqlite: seed award %s", a.AwardID)
		}
	}
	for _, c := range contracts {
		if _, err := s.db.ExecContext(ctx, `
			INSERT OR REPLACE INTO contract_vehicles
				(piid, parent_piid, vendor_id, agency, department, office, description,
				 naics, psc, competition, start_date, obligated_usd)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			c.PIID, c.ParentPIID, c.VendorID, c.Agency, c.Department, c.Office,
			c.Description, c.NAICS, c.PSC, c.Competition, c.StartDate, c.ObligatedUSD); err != nil {
			return eris.Wrapf(err, "sqlite: seed contract %s", c.PIID)
		}
	}
	return nil
}
