package runlog

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"github.com/xkilldash9x/mailpilot/api/schemas"
)

// DBPool abstracts pgxpool.Pool so the sink can be tested with a mock pool.
type DBPool interface {
	Ping(ctx context.Context) error
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

const sqlCreateRuns = `
    CREATE TABLE IF NOT EXISTS mail_runs (
        run_id          TEXT PRIMARY KEY,
        ts              TIMESTAMPTZ NOT NULL,
        provider        TEXT NOT NULL,
        status          TEXT NOT NULL,
        dry_run         BOOLEAN NOT NULL,
        raw_instruction TEXT NOT NULL,
        subject         TEXT NOT NULL,
        error           TEXT,
        payload         JSONB NOT NULL
    );
`

const sqlInsertRun = `
    INSERT INTO mail_runs (run_id, ts, provider, status, dry_run, raw_instruction, subject, error, payload)
    VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
    ON CONFLICT (run_id) DO NOTHING;
`

const sqlRecentRuns = `
    SELECT payload
    FROM mail_runs
    ORDER BY ts DESC
    LIMIT $1;
`

// PostgresSink stores outcomes in the mail_runs table.
type PostgresSink struct {
	pool DBPool
	log  *zap.Logger
	// closeFn releases the pool when the sink owns it.
	closeFn func()
}

var _ Sink = (*PostgresSink)(nil)

// NewPostgresSink verifies the connection and makes sure the table exists.
func NewPostgresSink(ctx context.Context, pool DBPool, logger *zap.Logger) (*PostgresSink, error) {
	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}
	if _, err := pool.Exec(ctx, sqlCreateRuns); err != nil {
		return nil, fmt.Errorf("failed to ensure mail_runs table: %w", err)
	}
	return &PostgresSink{
		pool: pool,
		log:  logger.Named("runlog.postgres"),
	}, nil
}

// OpenPostgres connects to databaseURL and returns a sink that owns the pool.
func OpenPostgres(ctx context.Context, databaseURL string, logger *zap.Logger) (*PostgresSink, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}
	sink, err := NewPostgresSink(ctx, pool, logger)
	if err != nil {
		pool.Close()
		return nil, err
	}
	return sink.WithCloser(pool.Close), nil
}

// WithCloser registers fn to be called by Close.
func (s *PostgresSink) WithCloser(fn func()) *PostgresSink {
	s.closeFn = fn
	return s
}

func (s *PostgresSink) Append(ctx context.Context, outcome schemas.RunOutcome) error {
	if outcome.Timestamp.IsZero() {
		outcome.Timestamp = time.Now().UTC()
	}
	payload, err := json.Marshal(outcome)
	if err != nil {
		return fmt.Errorf("encode run outcome: %w", err)
	}

	tag, err := s.pool.Exec(ctx, sqlInsertRun,
		outcome.RunID,
		outcome.Timestamp.UTC(),
		string(outcome.Provider),
		string(outcome.Status),
		outcome.DryRun,
		outcome.RawInstruction,
		outcome.Subject,
		outcome.Error,
		payload,
	)
	if err != nil {
		return fmt.Errorf("failed to insert run %s: %w", outcome.RunID, err)
	}
	if tag.RowsAffected() == 0 {
		s.log.Warn("Run already recorded, skipping.", zap.String("run_id", outcome.RunID))
	}
	return nil
}

// Recent returns up to limit outcomes, oldest first.
func (s *PostgresSink) Recent(ctx context.Context, limit int) ([]schemas.RunOutcome, error) {
	rows, err := s.pool.Query(ctx, sqlRecentRuns, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query runs: %w", err)
	}
	defer rows.Close()

	var out []schemas.RunOutcome
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, fmt.Errorf("failed to scan run row: %w", err)
		}
		var o schemas.RunOutcome
		if err := json.Unmarshal(payload, &o); err != nil {
			return nil, fmt.Errorf("failed to decode run payload: %w", err)
		}
		out = append(out, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during row iteration: %w", err)
	}

	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

func (s *PostgresSink) Close() error {
	if s.closeFn != nil {
		s.closeFn()
		s.closeFn = nil
	}
	return nil
}
