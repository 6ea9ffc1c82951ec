package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/museumatlas/curator/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
		"PRAGMA foreign_keys=ON",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS museums (
	partition TEXT NOT NULL,
	id        TEXT NOT NULL,
	record    TEXT NOT NULL,
	PRIMARY KEY (partition, id)
);

CREATE TABLE IF NOT EXISTS provenance (
	partition    TEXT NOT NULL,
	museum_id    TEXT NOT NULL,
	field        TEXT NOT NULL,
	source       TEXT NOT NULL,
	trust        TEXT NOT NULL,
	confidence   INTEGER NOT NULL,
	retrieved_at DATETIME,
	PRIMARY KEY (partition, museum_id, field)
);

CREATE TABLE IF NOT EXISTS runs (
	id         TEXT PRIMARY KEY,
	partition  TEXT NOT NULL,
	status     TEXT NOT NULL DEFAULT 'queued',
	dry_run    INTEGER NOT NULL DEFAULT 0,
	summary    TEXT,
	created_at DATETIME NOT NULL DEFAULT (datetime('now')),
	updated_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS run_stages (
	id         TEXT PRIMARY KEY,
	run_id     TEXT NOT NULL REFERENCES runs(id),
	name       TEXT NOT NULL,
	result     TEXT,
	started_at DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS recommendations (
	id             INTEGER PRIMARY KEY AUTOINCREMENT,
	run_id         TEXT NOT NULL DEFAULT '',
	museum_id      TEXT NOT NULL,
	field          TEXT NOT NULL,
	proposed_value TEXT,
	reason         TEXT NOT NULL,
	provenance     TEXT NOT NULL,
	created_at     DATETIME NOT NULL DEFAULT (datetime('now'))
);

CREATE TABLE IF NOT EXISTS lookup_cache (
	key        TEXT PRIMARY KEY,
	data       BLOB NOT NULL,
	cached_at  DATETIME NOT NULL DEFAULT (datetime('now')),
	expires_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_museums_partition ON museums(partition);
CREATE INDEX IF NOT EXISTS idx_provenance_partition ON provenance(partition);
CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_runs_partition ON runs(partition);
CREATE INDEX IF NOT EXISTS idx_run_stages_run_id ON run_stages(run_id);
CREATE INDEX IF NOT EXISTS idx_recommendations_museum_id ON recommendations(museum_id);
CREATE INDEX IF NOT EXISTS idx_recommendations_run_id ON recommendations(run_id);
CREATE INDEX IF NOT EXISTS idx_lookup_cache_expires_at ON lookup_cache(expires_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) LoadPartition(ctx context.Context, partition string) ([]*model.Museum, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT record FROM museums WHERE partition = ? ORDER BY id`, partition)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: load partition %s", partition)
	}
	defer rows.Close()

	var records []*model.Museum
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan museum")
		}
		var m model.Museum
		if err := json.Unmarshal([]byte(raw), &m); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal museum")
		}
		records = append(records, &m)
	}
	return records, rows.Err()
}

// SavePartition atomically rewrites a partition's record set inside one
// transaction.
func (s *SQLiteStore) SavePartition(ctx context.Context, partition string, records []*model.Museum) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin save partition")
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM museums WHERE partition = ?`, partition); err != nil {
		return eris.Wrapf(err, "sqlite: clear partition %s", partition)
	}
	for _, m := range records {
		raw, err := json.Marshal(m)
		if err != nil {
			return eris.Wrapf(err, "sqlite: marshal museum %s", m.ID)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO museums (partition, id, record) VALUES (?, ?, ?)`,
			partition, m.ID, string(raw)); err != nil {
			return eris.Wrapf(err, "sqlite: insert museum %s", m.ID)
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit save partition")
}

func (s *SQLiteStore) ListPartitions(ctx context.Context) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT partition FROM museums ORDER BY partition`)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list partitions")
	}
	defer rows.Close()

	var partitions []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan partition")
		}
		partitions = append(partitions, p)
	}
	return partitions, rows.Err()
}

func (s *SQLiteStore) LoadProvenance(ctx context.Context, partition string) (map[string]map[string]model.Provenance, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT museum_id, field, source, trust, confidence, retrieved_at
		 FROM provenance WHERE partition = ?`, partition)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: load provenance %s", partition)
	}
	defer rows.Close()

	prov := make(map[string]map[string]model.Provenance)
	for rows.Next() {
		var museumID, field, source, trust string
		var confidence int
		var retrievedAt sql.NullTime
		if err := rows.Scan(&museumID, &field, &source, &trust, &confidence, &retrievedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan provenance")
		}
		if prov[museumID] == nil {
			prov[museumID] = make(map[string]model.Provenance)
		}
		entry := model.Provenance{
			Source:     source,
			Trust:      model.ParseTrustLevel(trust),
			Confidence: confidence,
		}
		if retrievedAt.Valid {
			entry.RetrievedAt = retrievedAt.Time
		}
		prov[museumID][field] = entry
	}
	return prov, rows.Err()
}

func (s *SQLiteStore) SaveProvenance(ctx context.Context, partition string, prov map[string]map[string]model.Provenance) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin save provenance")
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM provenance WHERE partition = ?`, partition); err != nil {
		return eris.Wrapf(err, "sqlite: clear provenance %s", partition)
	}
	for museumID, fields := range prov {
		for field, p := range fields {
			var retrievedAt any
			if !p.RetrievedAt.IsZero() {
				retrievedAt = p.RetrievedAt.UTC()
			}
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO provenance (partition, museum_id, field, source, trust, confidence, retrieved_at)
				 VALUES (?, ?, ?, ?, ?, ?, ?)`,
				partition, museumID, field, p.Source, p.Trust.String(), p.Confidence, retrievedAt); err != nil {
				return eris.Wrapf(err, "sqlite: insert provenance %s/%s", museumID, field)
			}
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit save provenance")
}

func (s *SQLiteStore) CreateRun(ctx context.Context, partition string, dryRun bool) (*model.Run, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO runs (id, partition, status, dry_run, created_at, updated_at) VALUES (?, ?, ?, ?, ?, ?)`,
		id, partition, string(model.RunStatusQueued), dryRun, now, now)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: insert run")
	}

	return &model.Run{
		ID:        id,
		Partition: partition,
		Status:    model.RunStatusQueued,
		DryRun:    dryRun,
		CreatedAt: now,
		UpdatedAt: now,
	}, nil
}

func (s *SQLiteStore) UpdateRunStatus(ctx context.Context, runID string, status model.RunStatus) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET status = ?, updated_at = ? WHERE id = ?`,
		string(status), time.Now().UTC(), runID)
	if err != nil {
		return eris.Wrapf(err, "sqlite: update run status %s", runID)
	}
	return checkRowsAffected(res, "run", runID)
}

func (s *SQLiteStore) FinishRun(ctx context.Context, runID string, status model.RunStatus, summary *model.RunSummary) error {
	summaryJSON, err := json.Marshal(summary)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal summary")
	}

	res, err := s.db.ExecContext(ctx,
		`UPDATE runs SET summary = ?, status = ?, updated_at = ? WHERE id = ?`,
		string(summaryJSON), string(status), time.Now().UTC(), runID)
	if err != nil {
		return eris.Wrapf(err, "sqlite: finish run %s", runID)
	}
	return checkRowsAffected(res, "run", runID)
}

func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, partition, status, dry_run, summary, created_at, updated_at FROM runs WHERE id = ?`,
		runID)
	return scanRun(row)
}

func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := `SELECT id, partition, status, dry_run, summary, created_at, updated_at FROM runs WHERE 1=1`
	var args []any

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	if filter.Partition != "" {
		query += ` AND partition = ?`
		args = append(args, filter.Partition)
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	if filter.Offset > 0 {
		query += ` OFFSET ?`
		args = append(args, filter.Offset)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, *r)
	}
	return runs, rows.Err()
}

func (s *SQLiteStore) CreateStage(ctx context.Context, runID, name string) (string, error) {
	id := uuid.New().String()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO run_stages (id, run_id, name, started_at) VALUES (?, ?, ?, ?)`,
		id, runID, name, time.Now().UTC())
	if err != nil {
		return "", eris.Wrapf(err, "sqlite: insert stage %s", name)
	}
	return id, nil
}

func (s *SQLiteStore) CompleteStage(ctx context.Context, stageID string, result *model.StageResult) error {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal stage result")
	}
	res, err := s.db.ExecContext(ctx,
		`UPDATE run_stages SET result = ? WHERE id = ?`, string(resultJSON), stageID)
	if err != nil {
		return eris.Wrapf(err, "sqlite: complete stage %s", stageID)
	}
	return checkRowsAffected(res, "stage", stageID)
}

func (s *SQLiteStore) AddRecommendations(ctx context.Context, recs []model.Recommendation) error {
	if len(recs) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin add recommendations")
	}
	defer tx.Rollback()

	for _, rec := range recs {
		valueJSON, err := json.Marshal(rec.ProposedValue)
		if err != nil {
			return eris.Wrap(err, "sqlite: marshal proposed value")
		}
		provJSON, err := json.Marshal(rec.Provenance)
		if err != nil {
			return eris.Wrap(err, "sqlite: marshal rec provenance")
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO recommendations (run_id, museum_id, field, proposed_value, reason, provenance, created_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?)`,
			rec.RunID, rec.MuseumID, rec.Field, string(valueJSON), string(rec.Reason), string(provJSON), rec.CreatedAt.UTC()); err != nil {
			return eris.Wrapf(err, "sqlite: insert recommendation %s/%s", rec.MuseumID, rec.Field)
		}
	}
	return eris.Wrap(tx.Commit(), "sqlite: commit add recommendations")
}

func (s *SQLiteStore) ListRecommendations(ctx context.Context, filter RecommendationFilter) ([]model.Recommendation, error) {
	query := `SELECT id, run_id, museum_id, field, proposed_value, reason, provenance, created_at FROM recommendations WHERE 1=1`
	var args []any
	if filter.MuseumID != "" {
		query += ` AND museum_id = ?`
		args = append(args, filter.MuseumID)
	}
	if filter.RunID != "" {
		query += ` AND run_id = ?`
		args = append(args, filter.RunID)
	}
	query += ` ORDER BY created_at DESC, id DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	query += ` LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list recommendations")
	}
	defer rows.Close()

	var recs []model.Recommendation
	for rows.Next() {
		var rec model.Recommendation
		var valueJSON, provJSON string
		if err := rows.Scan(&rec.ID, &rec.RunID, &rec.MuseumID, &rec.Field, &valueJSON, &rec.Reason, &provJSON, &rec.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan recommendation")
		}
		if err := json.Unmarshal([]byte(valueJSON), &rec.ProposedValue); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal proposed value")
		}
		if err := json.Unmarshal([]byte(provJSON), &rec.Provenance); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal rec provenance")
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

func (s *SQLiteStore) GetCachedLookup(ctx context.Context, key string) ([]byte, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT data FROM lookup_cache WHERE key = ? AND expires_at > ?`,
		key, time.Now().UTC())
	var data []byte
	if err := row.Scan(&data); err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "sqlite: get cached lookup %s", key)
	}
	return data, nil
}

func (s *SQLiteStore) SetCachedLookup(ctx context.Context, key string, data []byte, ttl time.Duration) error {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO lookup_cache (key, data, cached_at, expires_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(key) DO UPDATE SET data = excluded.data, cached_at = excluded.cached_at, expires_at = excluded.expires_at`,
		key, data, now, now.Add(ttl))
	return eris.Wrapf(err, "sqlite: set cached lookup %s", key)
}

func (s *SQLiteStore) DeleteExpiredLookups(ctx context.Context) (int, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM lookup_cache WHERE expires_at <= ?`, time.Now().UTC())
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: delete expired lookups")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: expired rows affected")
	}
	return int(n), nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*model.Run, error) {
	var r model.Run
	var summaryJSON sql.NullString
	if err := row.Scan(&r.ID, &r.Partition, &r.Status, &r.DryRun, &summaryJSON, &r.CreatedAt, &r.UpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			return nil, eris.Wrap(err, "store: run not found")
		}
		return nil, eris.Wrap(err, "store: scan run")
	}
	if summaryJSON.Valid && summaryJSON.String != "" {
		var summary model.RunSummary
		if err := json.Unmarshal([]byte(summaryJSON.String), &summary); err != nil {
			return nil, eris.Wrap(err, "store: unmarshal summary")
		}
		r.Summary = &summary
	}
	return &r, nil
}

func checkRowsAffected(res sql.Result, kind, id string) error {
	n, err := res.RowsAffected()
	if err != nil {
		return eris.Wrapf(err, "store: rows affected for %s %s", kind, id)
	}
	if n == 0 {
		return eris.Errorf("store: %s %s not found", kind, id)
	}
	return nil
}
