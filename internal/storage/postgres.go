package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/lib/pq"
	"github.com/rs/zerolog/log"

	"github.com/hormur/event-syndicator/internal/models"
)

type PostgresJobStore struct {
	db *sql.DB
}

func NewPostgresJobStore(host, port, user, password, dbName, sslMode string) (*PostgresJobStore, error) {
	connStr := fmt.Sprintf("host=%s port=%s user=%s password=%s dbname=%s sslmode=%s",
		host, port, user, password, dbName, sslMode)

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("failed to open db connection: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping db: %w", err)
	}

	store := &PostgresJobStore{db: db}
	if err := store.Init(); err != nil {
		return nil, fmt.Errorf("failed to initialize db schema: %w", err)
	}

	return store, nil
}

// Init creates necessary tables
func (s *PostgresJobStore) Init() error {
	query := `
	CREATE TABLE IF NOT EXISTS publish_jobs (
		id VARCHAR(36) PRIMARY KEY,
		platform VARCHAR(32) NOT NULL,
		payload JSONB NOT NULL,
		state VARCHAR(16) NOT NULL,
		result JSONB,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_publish_jobs_platform_state ON publish_jobs(platform, state);
	CREATE INDEX IF NOT EXISTS idx_publish_jobs_updated_at ON publish_jobs(updated_at);`

	_, err := s.db.Exec(query)
	return err
}

func (s *PostgresJobStore) Close() error {
	return s.db.Close()
}

// Create inserts all records in one transaction.
func (s *PostgresJobStore) Create(ctx context.Context, records []models.JobRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	query := `
	INSERT INTO publish_jobs (id, platform, payload, state, created_at, updated_at)
	VALUES ($1, $2, $3, $4, $5, $6)`

	for _, rec := range records {
		payload, err := json.Marshal(rec.Payload)
		if err != nil {
			return fmt.Errorf("failed to marshal payload: %w", err)
		}
		if _, err := tx.ExecContext(ctx, query,
			rec.ID, string(rec.Platform), payload, string(rec.State), rec.CreatedAt, rec.UpdatedAt,
		); err != nil {
			log.Error().Err(err).Str("job_id", rec.ID).Msg("Failed to insert job")
			return fmt.Errorf("failed to insert job %s: %w", rec.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit jobs: %w", err)
	}
	return nil
}

func (s *PostgresJobStore) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	if _, err := s.db.ExecContext(ctx, deleteJobsQuery, pq.Array(ids)); err != nil {
		return fmt.Errorf("failed to delete jobs: %w", err)
	}
	return nil
}

const deleteJobsQuery = `DELETE FROM publish_jobs WHERE id = ANY($1)`

func (s *PostgresJobStore) Get(ctx context.Context, id string) (models.JobRecord, error) {
	query := `
	SELECT id, platform, payload, state, result, created_at, updated_at
	FROM publish_jobs WHERE id = $1`

	var (
		rec      models.JobRecord
		platform string
		state    string
		payload  []byte
		result   []byte
	)
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&rec.ID, &platform, &payload, &state, &result, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if err == sql.ErrNoRows {
		return models.JobRecord{}, ErrJobNotFound
	}
	if err != nil {
		return models.JobRecord{}, fmt.Errorf("failed to get job %s: %w", id, err)
	}

	rec.Platform = models.Platform(platform)
	rec.State = models.JobState(state)
	if err := json.Unmarshal(payload, &rec.Payload); err != nil {
		return models.JobRecord{}, fmt.Errorf("failed to decode payload of job %s: %w", id, err)
	}
	if len(result) > 0 {
		rec.Result = &models.JobResult{}
		if err := json.Unmarshal(result, rec.Result); err != nil {
			return models.JobRecord{}, fmt.Errorf("failed to decode result of job %s: %w", id, err)
		}
	}
	return rec, nil
}

func (s *PostgresJobStore) MarkActive(ctx context.Context, id string) error {
	query := `
	UPDATE publish_jobs SET state = $2, updated_at = $3
	WHERE id = $1 AND state IN ($4, $2)`

	res, err := s.db.ExecContext(ctx, query, id, string(models.JobActive), time.Now().UTC(), string(models.JobEnqueued))
	if err != nil {
		return fmt.Errorf("failed to mark job %s active: %w", id, err)
	}
	return expectOneRow(res)
}

func (s *PostgresJobStore) Finish(ctx context.Context, id string, jobResult models.JobResult) error {
	result, err := json.Marshal(jobResult)
	if err != nil {
		return fmt.Errorf("failed to marshal result: %w", err)
	}

	query := `
	UPDATE publish_jobs SET state = $2, result = $3, updated_at = $4
	WHERE id = $1 AND state IN ($5, $6)`

	res, err := s.db.ExecContext(ctx, query,
		id, string(terminalState(jobResult)), result, time.Now().UTC(),
		string(models.JobEnqueued), string(models.JobActive),
	)
	if err != nil {
		return fmt.Errorf("failed to finish job %s: %w", id, err)
	}
	return expectOneRow(res)
}

func (s *PostgresJobStore) Counts(ctx context.Context, platform models.Platform) (models.QueueCounts, error) {
	query := `SELECT state, COUNT(*) FROM publish_jobs WHERE platform = $1 GROUP BY state`

	rows, err := s.db.QueryContext(ctx, query, string(platform))
	if err != nil {
		return models.QueueCounts{}, fmt.Errorf("failed to count jobs: %w", err)
	}
	defer rows.Close()

	var c models.QueueCounts
	for rows.Next() {
		var state string
		var n int
		if err := rows.Scan(&state, &n); err != nil {
			return models.QueueCounts{}, err
		}
		switch models.JobState(state) {
		case models.JobEnqueued:
			c.Waiting = n
		case models.JobActive:
			c.Active = n
		case models.JobCompleted:
			c.Completed = n
		case models.JobFailed:
			c.Failed = n
		}
	}
	return c, rows.Err()
}

func (s *PostgresJobStore) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	query := `DELETE FROM publish_jobs WHERE state IN ($1, $2) AND updated_at < $3`

	res, err := s.db.ExecContext(ctx, query, string(models.JobCompleted), string(models.JobFailed), cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to prune jobs: %w", err)
	}
	return res.RowsAffected()
}

func (s *PostgresJobStore) HealthCheck(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("postgres health check failed: %w", err)
	}
	return nil
}

func expectOneRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrJobNotFound
	}
	return nil
}
