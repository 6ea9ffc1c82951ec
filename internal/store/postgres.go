package store

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/museumatlas/curator/internal/model"
)

// Pool is the subset of pgxpool.Pool the store uses. Narrow so tests can
// substitute pgxmock.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Begin(ctx context.Context) (pgx.Tx, error)
	Ping(ctx context.Context) error
	Close()
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool Pool
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(10)
	minConns := int32(2)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS museums (
	partition TEXT NOT NULL,
	id        TEXT NOT NULL,
	record    JSONB NOT NULL,
	PRIMARY KEY (partition, id)
);

CREATE TABLE IF NOT EXISTS provenance (
	partition    TEXT NOT NULL,
	museum_id    TEXT NOT NULL,
	field        TEXT NOT NULL,
	source       TEXT NOT NULL,
	trust        TEXT NOT NULL,
	confidence   INTEGER NOT NULL,
	retrieved_at TIMESTAMPTZ,
	PRIMARY KEY (partition, museum_id, field)
);

CREATE TABLE IF NOT EXISTS runs (
	id         TEXT PRIMARY KEY,
	partition  TEXT NOT NULL,
	status     TEXT NOT NULL DEFAULT 'queued',
	dry_run    BOOLEAN NOT NULL DEFAULT false,
	summary    JSONB,
	created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS run_stages (
	id         TEXT PRIMARY KEY,
	run_id     TEXT NOT NULL REFERENCES runs(id),
	name       TEXT NOT NULL,
	result     JSONB,
	started_at TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS recommendations (
	id             BIGSERIAL PRIMARY KEY,
	run_id         TEXT NOT NULL DEFAULT '',
	museum_id      TEXT NOT NULL,
	field          TEXT NOT NULL,
	proposed_value JSONB,
	reason         TEXT NOT NULL,
	provenance     JSONB NOT NULL,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);

CREATE TABLE IF NOT EXISTS lookup_cache (
	key        TEXT PRIMARY KEY,
	data       BYTEA NOT NULL,
	cached_at  TIMESTAMPTZ NOT NULL DEFAULT now(),
	expires_at TIMESTAMPTZ NOT NULL
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

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresStore) LoadPartition(ctx context.Context, partition string) ([]*model.Museum, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT record FROM museums WHERE partition = $1 ORDER BY id`, partition)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: load partition %s", partition)
	}
	defer rows.Close()

	var records []*model.Museum
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, eris.Wrap(err, "postgres: scan museum")
		}
		var m model.Museum
		if err := json.Unmarshal(raw, &m); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal museum")
		}
		records = append(records, &m)
	}
	return records, rows.Err()
}

// SavePartition rewrites a partition under a transaction-scoped advisory
// lock, enforcing the single-writer contract across processes.
func (s *PostgresStore) SavePartition(ctx context.Context, partition string, records []*model.Museum) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin save partition")
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, partition); err != nil {
		return eris.Wrapf(err, "postgres: lock partition %s", partition)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM museums WHERE partition = $1`, partition); err != nil {
		return eris.Wrapf(err, "postgres: clear partition %s", partition)
	}
	for _, m := range records {
		raw, err := json.Marshal(m)
		if err != nil {
			return eris.Wrapf(err, "postgres: marshal museum %s", m.ID)
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO museums (partition, id, record) VALUES ($1, $2, $3)`,
			partition, m.ID, raw); err != nil {
			return eris.Wrapf(err, "postgres: insert museum %s", m.ID)
		}
	}
	return eris.Wrap(tx.Commit(ctx), "postgres: commit save partition")
}

func (s *PostgresStore) ListPartitions(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `SELECT DISTINCT partition FROM museums ORDER BY partition`)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list partitions")
	}
	defer rows.Close()

	var partitions []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, eris.Wrap(err, "postgres: scan partition")
		}
		partitions = append(partitions, p)
	}
	return partitions, rows.Err()
}

func (s *PostgresStore) LoadProvenance(ctx context.Context, partition string) (map[string]map[string]model.Provenance, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT museum_id, field, source, trust, confidence, retrieved_at
		 FROM provenance WHERE partition = $1`, partition)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: load provenance %s", partition)
	}
	defer rows.Close()

	prov := make(map[string]map[string]model.Provenance)
	for rows.Next() {
		var museumID, field, source, trust string
		var confidence int
		var retrievedAt *time.Time
		if err := rows.Scan(&museumID, &field, &source, &trust, &confidence, &retrievedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan provenance")
		}
		if prov[museumID] == nil {
			prov[museumID] = make(map[string]model.Provenance)
		}
		entry := model.Provenance{
			Source:     source,
			Trust:      model.ParseTrustLevel(trust),
			Confidence: confidence,
		}
		if retrievedAt != nil {
			entry.RetrievedAt = *retrievedAt
		}
		prov[museumID][field] = entry
	}
	return prov, rows.Err()
}

func (s *PostgresStore) SaveProvenance(ctx context.Context, partition string, prov map[string]map[string]model.Provenance) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin save provenance")
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, partition); err != nil {
		return eris.Wrapf(err, "postgres: lock partition %s", partition)
	}
	if _, err := tx.Exec(ctx, `DELETE FROM provenance WHERE partition = $1`, partition); err != nil {
		return eris.Wrapf(err, "postgres: clear provenance %s", partition)
	}
	for museumID, fields := range prov {
		for field, p := range fields {
			var retrievedAt *time.Time
			if !p.RetrievedAt.IsZero() {
				t := p.RetrievedAt.UTC()
				retrievedAt = &t
			}
			if _, err := tx.Exec(ctx,
				`INSERT INTO provenance (partition, museum_id, field, source, trust, confidence, retrieved_at)
				 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
				partition, museumID, field, p.Source, p.Trust.String(), p.Confidence, retrievedAt); err != nil {
				return eris.Wrapf(err, "postgres: insert provenance %s/%s", museumID, field)
			}
		}
	}
	return eris.Wrap(tx.Commit(ctx), "postgres: commit save provenance")
}

func (s *PostgresStore) CreateRun(ctx context.Context, partition string, dryRun bool) (*model.Run, error) {
	id := uuid.New().String()
	now := time.Now().UTC()

	_, err := s.pool.Exec(ctx,
		`INSERT INTO runs (id, partition, status, dry_run, created_at, updated_at) VALUES ($1, $2, $3, $4, $5, $6)`,
		id, partition, string(model.RunStatusQueued), dryRun, now, now)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: insert run")
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

func (s *PostgresStore) UpdateRunStatus(ctx context.Context, runID string, status model.RunStatus) error {
	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET status = $1, updated_at = $2 WHERE id = $3`,
		string(status), time.Now().UTC(), runID)
	if err != nil {
		return eris.Wrapf(err, "postgres: update run status %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("postgres: run %s not found", runID)
	}
	return nil
}

func (s *PostgresStore) FinishRun(ctx context.Context, runID string, status model.RunStatus, summary *model.RunSummary) error {
	summaryJSON, err := json.Marshal(summary)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal summary")
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE runs SET summary = $1, status = $2, updated_at = $3 WHERE id = $4`,
		summaryJSON, string(status), time.Now().UTC(), runID)
	if err != nil {
		return eris.Wrapf(err, "postgres: finish run %s", runID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("postgres: run %s not found", runID)
	}
	return nil
}

func (s *PostgresStore) GetRun(ctx context.Context, runID string) (*model.Run, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, partition, status, dry_run, summary, created_at, updated_at FROM runs WHERE id = $1`,
		runID)
	r, err := scanPgRun(row)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get run %s", runID)
	}
	return r, nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, filter RunFilter) ([]model.Run, error) {
	query := `SELECT id, partition, status, dry_run, summary, created_at, updated_at FROM runs WHERE 1=1`
	var args []any

	if filter.Status != "" {
		args = append(args, string(filter.Status))
		query += ` AND status = $` + strconv.Itoa(len(args))
	}
	if filter.Partition != "" {
		args = append(args, filter.Partition)
		query += ` AND partition = $` + strconv.Itoa(len(args))
	}
	query += ` ORDER BY created_at DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	args = append(args, limit)
	query += ` LIMIT $` + strconv.Itoa(len(args))

	if filter.Offset > 0 {
		args = append(args, filter.Offset)
		query += ` OFFSET $` + strconv.Itoa(len(args))
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var runs []model.Run
	for rows.Next() {
		r, err := scanPgRun(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		runs = append(runs, *r)
	}
	return runs, rows.Err()
}

func (s *PostgresStore) CreateStage(ctx context.Context, runID, name string) (string, error) {
	id := uuid.New().String()
	_, err := s.pool.Exec(ctx,
		`INSERT INTO run_stages (id, run_id, name, started_at) VALUES ($1, $2, $3, $4)`,
		id, runID, name, time.Now().UTC())
	if err != nil {
		return "", eris.Wrapf(err, "postgres: insert stage %s", name)
	}
	return id, nil
}

func (s *PostgresStore) CompleteStage(ctx context.Context, stageID string, result *model.StageResult) error {
	resultJSON, err := json.Marshal(result)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal stage result")
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE run_stages SET result = $1 WHERE id = $2`, resultJSON, stageID)
	if err != nil {
		return eris.Wrapf(err, "postgres: complete stage %s", stageID)
	}
	if tag.RowsAffected() == 0 {
		return eris.Errorf("postgres: stage %s not found", stageID)
	}
	return nil
}

func (s *PostgresStore) AddRecommendations(ctx context.Context, recs []model.Recommendation) error {
	if len(recs) == 0 {
		return nil
	}
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return eris.Wrap(err, "postgres: begin add recommendations")
	}
	defer tx.Rollback(ctx)

	for _, rec := range recs {
		valueJSON, err := json.Marshal(rec.ProposedValue)
		if err != nil {
			return eris.Wrap(err, "postgres: marshal proposed value")
		}
		provJSON, err := json.Marshal(rec.Provenance)
		if err != nil {
			return eris.Wrap(err, "postgres: marshal rec provenance")
		}
		if _, err := tx.Exec(ctx,
			`INSERT INTO recommendations (run_id, museum_id, field, proposed_value, reason, provenance, created_at)
			 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
			rec.RunID, rec.MuseumID, rec.Field, valueJSON, string(rec.Reason), provJSON, rec.CreatedAt.UTC()); err != nil {
			return eris.Wrapf(err, "postgres: insert recommendation %s/%s", rec.MuseumID, rec.Field)
		}
	}
	return eris.Wrap(tx.Commit(ctx), "postgres: commit add recommendations")
}

func (s *PostgresStore) ListRecommendations(ctx context.Context, filter RecommendationFilter) ([]model.Recommendation, error) {
	query := `SELECT id, run_id, museum_id, field, proposed_value, reason, provenance, created_at FROM recommendations WHERE 1=1`
	var args []any
	if filter.MuseumID != "" {
		args = append(args, filter.MuseumID)
		query += ` AND museum_id = $` + strconv.Itoa(len(args))
	}
	if filter.RunID != "" {
		args = append(args, filter.RunID)
		query += ` AND run_id = $` + strconv.Itoa(len(args))
	}
	query += ` ORDER BY created_at DESC, id DESC`

	limit := filter.Limit
	if limit <= 0 {
		limit = 100
	}
	args = append(args, limit)
	query += ` LIMIT $` + strconv.Itoa(len(args))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list recommendations")
	}
	defer rows.Close()

	var recs []model.Recommendation
	for rows.Next() {
		var rec model.Recommendation
		var valueJSON, provJSON []byte
		if err := rows.Scan(&rec.ID, &rec.RunID, &rec.MuseumID, &rec.Field, &valueJSON, &rec.Reason, &provJSON, &rec.CreatedAt); err != nil {
			return nil, eris.Wrap(err, "postgres: scan recommendation")
		}
		if err := json.Unmarshal(valueJSON, &rec.ProposedValue); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal proposed value")
		}
		if err := json.Unmarshal(provJSON, &rec.Provenance); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal rec provenance")
		}
		recs = append(recs, rec)
	}
	return recs, rows.Err()
}

func (s *PostgresStore) GetCachedLookup(ctx context.Context, key string) ([]byte, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT data FROM lookup_cache WHERE key = $1 AND expires_at > now()`, key)
	var data []byte
	if err := row.Scan(&data); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, eris.Wrapf(err, "postgres: get cached lookup %s", key)
	}
	return data, nil
}

func (s *PostgresStore) SetCachedLookup(ctx context.Context, key string, data []byte, ttl time.Duration) error {
	now := time.Now().UTC()
	_, err := s.pool.Exec(ctx,
		`INSERT INTO lookup_cache (key, data, cached_at, expires_at) VALUES ($1, $2, $3, $4)
		 ON CONFLICT (key) DO UPDATE SET data = EXCLUDED.data, cached_at = EXCLUDED.cached_at, expires_at = EXCLUDED.expires_at`,
		key, data, now, now.Add(ttl))
	return eris.Wrapf(err, "postgres: set cached lookup %s", key)
}

func (s *PostgresStore) DeleteExpiredLookups(ctx context.Context) (int, error) {
	tag, err := s.pool.Exec(ctx, `DELETE FROM lookup_cache WHERE expires_at <= now()`)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: delete expired lookups")
	}
	return int(tag.RowsAffected()), nil
}

func scanPgRun(row pgx.Row) (*model.Run, error) {
	var r model.Run
	var summaryJSON []byte
	if err := row.Scan(&r.ID, &r.Partition, &r.Status, &r.DryRun, &summaryJSON, &r.CreatedAt, &r.UpdatedAt); err != nil {
		return nil, err
	}
	if len(summaryJSON) > 0 {
		var summary model.RunSummary
		if err := json.Unmarshal(summaryJSON, &summary); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal summary")
		}
		r.Summary = &summary
	}
	return &r, nil
}
