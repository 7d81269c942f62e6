package sqlite

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"strings"

	"github.com/felixgeelhaar/repoagent/domain/run"
)

// RunStore is a SQLite-backed implementation of run.Store. The checkpoint
// is stored as JSON next to the columns List filters on.
type RunStore struct {
	db *sql.DB
}

// NewRunStore creates a new SQLite checkpoint store.
func NewRunStore(cfg Config, opts ...Option) (*RunStore, error) {
	for _, opt := range opts {
		opt(&cfg)
	}

	db, err := openDB(cfg)
	if err != nil {
		return nil, err
	}

	s := &RunStore{db: db}
	if cfg.AutoMigrate {
		if err := s.migrate(); err != nil {
			_ = db.Close()
			return nil, err
		}
	}
	return s, nil
}

// NewRunStoreFromDB creates a store from an existing database connection.
func NewRunStoreFromDB(db *sql.DB) (*RunStore, error) {
	s := &RunStore{db: db}
	if err := s.migrate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *RunStore) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS checkpoints (
			run_id TEXT PRIMARY KEY,
			agent TEXT NOT NULL,
			status TEXT NOT NULL,
			iteration INTEGER NOT NULL,
			data BLOB NOT NULL,
			created_at INTEGER NOT NULL,
			updated_at INTEGER NOT NULL
		);
		CREATE INDEX IF NOT EXISTS idx_checkpoints_agent ON checkpoints(agent);
		CREATE INDEX IF NOT EXISTS idx_checkpoints_status ON checkpoints(status);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return errors.Join(ErrMigrationFailed, err)
	}
	return nil
}

// Save upserts a checkpoint.
func (s *RunStore) Save(ctx context.Context, cp *run.Checkpoint) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if cp.RunID == "" {
		return run.ErrInvalidRunID
	}

	data, err := json.Marshal(cp)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx,
		`INSERT INTO checkpoints (run_id, agent, status, iteration, data, created_at, updated_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?)
		 ON CONFLICT(run_id) DO UPDATE SET
			agent = excluded.agent,
			status = excluded.status,
			iteration = excluded.iteration,
			data = excluded.data,
			updated_at = excluded.updated_at`,
		cp.RunID, cp.Agent, string(cp.Status), cp.Iteration, data,
		cp.CreatedAt.UnixNano(), cp.UpdatedAt.UnixNano(),
	)
	return err
}

// Get retrieves a checkpoint by run ID.
func (s *RunStore) Get(ctx context.Context, runID string) (*run.Checkpoint, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if runID == "" {
		return nil, run.ErrInvalidRunID
	}

	var data []byte
	err := s.db.QueryRowContext(ctx, "SELECT data FROM checkpoints WHERE run_id = ?", runID).Scan(&data)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, run.ErrRunNotFound
	}
	if err != nil {
		return nil, err
	}

	var cp run.Checkpoint
	if err := json.Unmarshal(data, &cp); err != nil {
		return nil, err
	}
	return &cp, nil
}

// Delete removes a checkpoint by run ID.
func (s *RunStore) Delete(ctx context.Context, runID string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if runID == "" {
		return run.ErrInvalidRunID
	}

	result, err := s.db.ExecContext(ctx, "DELETE FROM checkpoints WHERE run_id = ?", runID)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return run.ErrRunNotFound
	}
	return nil
}

// List returns checkpoints matching the filter, most recently updated first.
func (s *RunStore) List(ctx context.Context, filter run.ListFilter) ([]*run.Checkpoint, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	query, args := buildListQuery(filter)
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []*run.Checkpoint
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, err
		}
		var cp run.Checkpoint
		if err := json.Unmarshal(data, &cp); err != nil {
			continue // Skip malformed entries
		}
		out = append(out, &cp)
	}
	return out, rows.Err()
}

func buildListQuery(filter run.ListFilter) (string, []any) {
	var conditions []string
	var args []any

	if filter.Agent != "" {
		conditions = append(conditions, "agent = ?")
		args = append(args, filter.Agent)
	}
	if len(filter.Status) > 0 {
		placeholders := make([]string, len(filter.Status))
		for i, status := range filter.Status {
			placeholders[i] = "?"
			args = append(args, string(status))
		}
		conditions = append(conditions, "status IN ("+strings.Join(placeholders, ", ")+")")
	}

	query := "SELECT data FROM checkpoints"
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " ORDER BY updated_at DESC"
	if filter.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, filter.Limit)
	}
	return query, args
}

// Close closes the database connection.
func (s *RunStore) Close() error {
	return s.db.Close()
}

var _ run.Store = (*RunStore)(nil)
