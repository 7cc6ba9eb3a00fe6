package repositories

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"rendernode/internal/models"
)

var ErrJobNotFound = errors.New("job not found")

const schema = `
CREATE TABLE IF NOT EXISTS render_jobs (
	message_id     TEXT PRIMARY KEY,
	state          TEXT NOT NULL,
	stage          TEXT NOT NULL DEFAULT '',
	hostname       TEXT NOT NULL DEFAULT '',
	scene_bucket   TEXT NOT NULL,
	scene_key      TEXT NOT NULL,
	scene_index    INTEGER,
	output_bucket  TEXT NOT NULL,
	output_key     TEXT NOT NULL,
	receive_count  INTEGER NOT NULL DEFAULT 0,
	error_text     TEXT,
	exit_code      INTEGER,
	received_at    TIMESTAMPTZ,
	started_at     TIMESTAMPTZ,
	finished_at    TIMESTAMPTZ,
	uploaded_at    TIMESTAMPTZ,
	created_at     TIMESTAMPTZ NOT NULL DEFAULT now(),
	updated_at     TIMESTAMPTZ NOT NULL DEFAULT now()
);
ALTER TABLE render_jobs ADD COLUMN IF NOT EXISTS exit_code INTEGER;
CREATE INDEX IF NOT EXISTS render_jobs_created_at_idx ON render_jobs (created_at DESC);
`

const selectColumns = `
	message_id, state, stage, hostname, scene_bucket, scene_key, scene_index,
	output_bucket, output_key, receive_count, error_text, exit_code,
	received_at, started_at, finished_at, uploaded_at, created_at, updated_at
`

// querier is the subset of *pgxpool.Pool the repository uses.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Ping(ctx context.Context) error
}

type JobRepository struct {
	db querier
}

func NewJobRepository(db *pgxpool.Pool) *JobRepository {
	return &JobRepository{db: db}
}

// EnsureSchema creates the ledger table if it does not exist yet.
func (r *JobRepository) EnsureSchema(ctx context.Context) error {
	_, err := r.db.Exec(ctx, schema)
	return err
}

// RecordSubmitted inserts a row for a job accepted by the intake API. An
// existing row is left untouched.
func (r *JobRepository) RecordSubmitted(ctx context.Context, rec models.JobRecord) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO render_jobs (message_id, state, scene_bucket, scene_key, scene_index, output_bucket, output_key)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT (message_id) DO NOTHING
	`, rec.MessageID, models.JobSubmitted, rec.SceneBucket, rec.SceneKey, rec.SceneIndex, rec.OutputBucket, rec.OutputKey)
	return err
}

// upsertOutcome never lets a failed or stale attempt replace a row that
// already records a success.
const upsertOutcome = `
	INSERT INTO render_jobs (
		message_id, state, stage, hostname, scene_bucket, scene_key, scene_index,
		output_bucket, output_key, receive_count, error_text, exit_code,
		received_at, started_at, finished_at, uploaded_at
	)
	VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16)
	ON CONFLICT (message_id) DO UPDATE SET
		state         = EXCLUDED.state,
		stage         = EXCLUDED.stage,
		hostname      = EXCLUDED.hostname,
		receive_count = GREATEST(render_jobs.receive_count, EXCLUDED.receive_count),
		error_text    = EXCLUDED.error_text,
		exit_code     = EXCLUDED.exit_code,
		received_at   = EXCLUDED.received_at,
		started_at    = EXCLUDED.started_at,
		finished_at   = EXCLUDED.finished_at,
		uploaded_at   = EXCLUDED.uploaded_at,
		updated_at    = now()
	WHERE render_jobs.state <> 'succeeded' OR EXCLUDED.state = 'succeeded'
`

// RecordOutcome upserts the terminal outcome of one delivery attempt. A
// later attempt of the same message overwrites an earlier one unless the
// row already records a success.
func (r *JobRepository) RecordOutcome(ctx context.Context, rec models.JobRecord) error {
	_, err := r.db.Exec(ctx, upsertOutcome,
		rec.MessageID, rec.State, rec.Stage, rec.Hostname, rec.SceneBucket, rec.SceneKey, rec.SceneIndex,
		rec.OutputBucket, rec.OutputKey, rec.ReceiveCount, rec.ErrorText, rec.ExitCode,
		rec.ReceivedAt, rec.StartedAt, rec.FinishedAt, rec.UploadedAt,
	)
	return err
}

// List returns the most recent jobs first. An absent table reads as empty.
func (r *JobRepository) List(ctx context.Context, limit int) ([]models.JobRecord, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}

	rows, err := r.db.Query(ctx, `SELECT `+selectColumns+` FROM render_jobs ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		if isUndefinedTable(err) {
			return []models.JobRecord{}, nil
		}
		return nil, err
	}
	defer rows.Close()

	out := []models.JobRecord{}
	for rows.Next() {
		rec, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

func (r *JobRepository) Get(ctx context.Context, messageID string) (*models.JobRecord, error) {
	rec, err := scanJob(r.db.QueryRow(ctx, `SELECT `+selectColumns+` FROM render_jobs WHERE message_id=$1`, messageID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) || isUndefinedTable(err) {
			return nil, ErrJobNotFound
		}
		return nil, err
	}
	return &rec, nil
}

// Ping checks the database connection.
func (r *JobRepository) Ping(ctx context.Context) error {
	return r.db.Ping(ctx)
}

func scanJob(row pgx.Row) (models.JobRecord, error) {
	var rec models.JobRecord
	err := row.Scan(
		&rec.MessageID,
		&rec.State,
		&rec.Stage,
		&rec.Hostname,
		&rec.SceneBucket,
		&rec.SceneKey,
		&rec.SceneIndex,
		&rec.OutputBucket,
		&rec.OutputKey,
		&rec.ReceiveCount,
		&rec.ErrorText,
		&rec.ExitCode,
		&rec.ReceivedAt,
		&rec.StartedAt,
		&rec.FinishedAt,
		&rec.UploadedAt,
		&rec.CreatedAt,
		&rec.UpdatedAt,
	)
	return rec, err
}
