package store

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/codeready-toolchain/taskengine/internal/eventmodel"
)

//go:embed migrations/*.sql
var migrationFiles embed.FS

// Config is the connection configuration for the PostgreSQL store. Field
// names and defaults mirror the teacher's DB_* environment variables
// (pkg/database/config.go LoadConfigFromEnv).
type Config struct {
	Host            string
	Port            int
	User            string
	Password        string
	Database        string
	SSLMode         string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

func (c Config) dsn() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Database, c.SSLMode)
}

// Postgres is the reference DurableStore backed by database/sql over the
// pgx stdlib driver. Unlike the teacher, this does not go through an ORM:
// ent requires generated client code this repository does not carry, so
// every statement here is hand-written SQL (see DESIGN.md).
type Postgres struct {
	db *sql.DB
}

// Open connects to PostgreSQL, applies migrations embedded at build time,
// and returns a ready Postgres store. Mirrors the shape of the teacher's
// database.NewClient (pkg/database/client.go): connect, configure pool,
// migrate.
func Open(ctx context.Context, cfg Config) (*Postgres, error) {
	db, err := sql.Open("pgx", cfg.dsn())
	if err != nil {
		return nil, fmt.Errorf("store: open: %w", err)
	}

	if cfg.MaxOpenConns > 0 {
		db.SetMaxOpenConns(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		db.SetMaxIdleConns(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		db.SetConnMaxLifetime(cfg.ConnMaxLifetime)
	}

	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: ping: %w", err)
	}

	if err := runMigrations(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: migrate: %w", err)
	}

	return &Postgres{db: db}, nil
}

func runMigrations(db *sql.DB) error {
	srcDriver, err := iofs.New(migrationFiles, "migrations")
	if err != nil {
		return fmt.Errorf("migration source: %w", err)
	}

	dbDriver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		return fmt.Errorf("migration driver: %w", err)
	}

	m, err := migrate.NewWithInstance("iofs", srcDriver, "postgres", dbDriver)
	if err != nil {
		return fmt.Errorf("migration setup: %w", err)
	}

	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return err
	}
	return nil
}

// Close releases the underlying connection pool.
func (p *Postgres) Close() error {
	return p.db.Close()
}

// Health mirrors the teacher's database.Health: a ping plus pool stats.
// The /health endpoint does not call it.
func (p *Postgres) Health(ctx context.Context) (sql.DBStats, error) {
	if err := p.db.PingContext(ctx); err != nil {
		return sql.DBStats{}, err
	}
	return p.db.Stats(), nil
}

func (p *Postgres) CreateTask(ctx context.Context, taskID, title, inputPrompt string) (TaskRecord, error) {
	const q = `
		INSERT INTO tasks (id, title, input_prompt, status)
		VALUES ($1, $2, $3, $4)
		RETURNING id, title, input_prompt, status, result_summary, error_message, created_at, updated_at`

	var rec TaskRecord
	err := p.db.QueryRowContext(ctx, q, taskID, title, inputPrompt, eventmodel.StatusPending).Scan(
		&rec.ID, &rec.Title, &rec.InputPrompt, &rec.Status, &rec.ResultSummary, &rec.ErrorMessage, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if isUniqueViolation(err) {
		return TaskRecord{}, ErrTaskAlreadyExists
	}
	if err != nil {
		return TaskRecord{}, fmt.Errorf("store: create task: %w", err)
	}
	return rec, nil
}

func (p *Postgres) FetchTask(ctx context.Context, taskID string) (TaskRecord, error) {
	const q = `
		SELECT id, title, input_prompt, status, result_summary, error_message, created_at, updated_at
		FROM tasks WHERE id = $1`

	var rec TaskRecord
	err := p.db.QueryRowContext(ctx, q, taskID).Scan(
		&rec.ID, &rec.Title, &rec.InputPrompt, &rec.Status, &rec.ResultSummary, &rec.ErrorMessage, &rec.CreatedAt, &rec.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return TaskRecord{}, ErrTaskNotFound
	}
	if err != nil {
		return TaskRecord{}, fmt.Errorf("store: fetch task: %w", err)
	}
	return rec, nil
}

func (p *Postgres) UpdateTaskStatus(ctx context.Context, taskID string, status eventmodel.TaskStatus, resultSummary, errorMessage string) error {
	const q = `
		UPDATE tasks SET status = $2, result_summary = $3, error_message = $4, updated_at = now()
		WHERE id = $1`

	res, err := p.db.ExecContext(ctx, q, taskID, status, resultSummary, errorMessage)
	if err != nil {
		return fmt.Errorf("store: update task status: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("store: update task status: %w", err)
	}
	if n == 0 {
		return ErrTaskNotFound
	}
	return nil
}

// InsertEvent persists a row at the Worker-assigned eventID.
func (p *Postgres) InsertEvent(ctx context.Context, taskID string, eventID int64, kind eventmodel.Kind, stageName string, payloadJSON string) error {
	_, err := p.db.ExecContext(ctx,
		`INSERT INTO event_log (id, task_id, kind, stage_name, payload) VALUES ($1, $2, $3, $4, $5)`,
		eventID, taskID, kind, stageName, json.RawMessage(payloadJSON),
	)
	if err != nil {
		return fmt.Errorf("store: insert event: %w", err)
	}
	return nil
}

func (p *Postgres) FetchEvents(ctx context.Context, taskID string, sinceID int64, limit int) ([]StoredEvent, error) {
	if limit <= 0 {
		limit = 500
	}

	rows, err := p.db.QueryContext(ctx,
		`SELECT id, task_id, kind, stage_name, payload, created_at
		 FROM event_log WHERE task_id = $1 AND id > $2
		 ORDER BY id ASC LIMIT $3`,
		taskID, sinceID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("store: fetch events: %w", err)
	}
	defer rows.Close()

	var out []StoredEvent
	for rows.Next() {
		var e StoredEvent
		var payload []byte
		if err := rows.Scan(&e.ID, &e.TaskID, &e.Kind, &e.StageName, &payload, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("store: scan event: %w", err)
		}
		e.Payload = string(payload)
		out = append(out, e)
	}
	return out, rows.Err()
}

func (p *Postgres) StartAgentRun(ctx context.Context, taskID, stageName string) (int64, error) {
	var id int64
	err := p.db.QueryRowContext(ctx,
		`INSERT INTO agent_runs (task_id, stage_name, status) VALUES ($1, $2, $3) RETURNING id`,
		taskID, stageName, AgentRunStarted,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("store: start agent run: %w", err)
	}
	return id, nil
}

func (p *Postgres) FinishAgentRun(ctx context.Context, runID int64, status AgentRunStatus, outputSummary string) error {
	res, err := p.db.ExecContext(ctx,
		`UPDATE agent_runs SET status = $2, output_summary = $3, finished_at = now() WHERE id = $1`,
		runID, status, outputSummary,
	)
	if err != nil {
		return fmt.Errorf("store: finish agent run: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("store: finish agent run: %w", err)
	}
	if n == 0 {
		return ErrAgentRunNotFound
	}
	return nil
}

func (p *Postgres) FetchAgentRuns(ctx context.Context, taskID string) ([]AgentRunRecord, error) {
	rows, err := p.db.QueryContext(ctx,
		`SELECT id, task_id, stage_name, status, started_at, finished_at, output_summary
		 FROM agent_runs WHERE task_id = $1 ORDER BY id ASC`,
		taskID,
	)
	if err != nil {
		return nil, fmt.Errorf("store: fetch agent runs: %w", err)
	}
	defer rows.Close()

	var out []AgentRunRecord
	for rows.Next() {
		var r AgentRunRecord
		var finishedAt sql.NullTime
		if err := rows.Scan(&r.ID, &r.TaskID, &r.StageName, &r.Status, &r.StartedAt, &finishedAt, &r.OutputSummary); err != nil {
			return nil, fmt.Errorf("store: scan agent run: %w", err)
		}
		if finishedAt.Valid {
			r.FinishedAt = finishedAt.Time
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// unique_violation, per https://www.postgresql.org/docs/current/errcodes-appendix.html
const pgErrCodeUniqueViolation = "23505"

func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgErrCodeUniqueViolation
}
