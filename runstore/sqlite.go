package runstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/kbukum/taskflow/dag"
)

// SQLiteStore keeps runs in one SQLite table with JSON columns.
type SQLiteStore struct {
	db *sql.DB
}

var _ Store = (*SQLiteStore)(nil)

// NewSQLiteStore opens (or creates) the database at path.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("runstore: open %s: %w", path, err)
	}
	db.SetMaxOpenConns(1)

	store := &SQLiteStore{db: db}
	if err := store.init(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return store, nil
}

func (s *SQLiteStore) init() error {
	const schema = `
	CREATE TABLE IF NOT EXISTS runs (
		id TEXT PRIMARY KEY,
		parent_id TEXT,
		stage TEXT NOT NULL,
		result TEXT NOT NULL,
		node_count INTEGER NOT NULL,
		graph TEXT NOT NULL,
		events TEXT NOT NULL,
		snapshot TEXT NOT NULL,
		created_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_runs_created ON runs(created_at);
	`
	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("runstore: create schema: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Save(ctx context.Context, rec *RunRecord) error {
	if err := rec.check(); err != nil {
		return err
	}
	graphJSON, err := json.Marshal(rec.Graph)
	if err != nil {
		return fmt.Errorf("runstore: encode graph: %w", err)
	}
	events := rec.Events
	if events == nil {
		events = []dag.Event{}
	}
	eventsJSON, err := json.Marshal(events)
	if err != nil {
		return fmt.Errorf("runstore: encode events: %w", err)
	}
	snapJSON, err := json.Marshal(rec.Snapshot)
	if err != nil {
		return fmt.Errorf("runstore: encode snapshot: %w", err)
	}
	info := rec.Info()

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO runs (id, parent_id, stage, result, node_count, graph, events, snapshot, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			parent_id = excluded.parent_id,
			stage = excluded.stage,
			result = excluded.result,
			node_count = excluded.node_count,
			graph = excluded.graph,
			events = excluded.events,
			snapshot = excluded.snapshot
	`, rec.ID, rec.ParentID, string(info.Stage), string(info.Result), info.Nodes,
		string(graphJSON), string(eventsJSON), string(snapJSON), rec.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("runstore: save %s: %w", rec.ID, err)
	}
	return nil
}

func (s *SQLiteStore) Load(ctx context.Context, id string) (*RunRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, parent_id, graph, events, snapshot, created_at
		FROM runs WHERE id = ?
	`, id)

	var (
		rec                             RunRecord
		parent                          sql.NullString
		graphJSON, eventsJSON, snapJSON string
	)
	err := row.Scan(&rec.ID, &parent, &graphJSON, &eventsJSON, &snapJSON, &rec.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("runstore: load %s: %w", id, err)
	}
	rec.ParentID = parent.String
	if err := json.Unmarshal([]byte(graphJSON), &rec.Graph); err != nil {
		return nil, fmt.Errorf("runstore: decode graph: %w", err)
	}
	if err := json.Unmarshal([]byte(eventsJSON), &rec.Events); err != nil {
		return nil, fmt.Errorf("runstore: decode events: %w", err)
	}
	if err := json.Unmarshal([]byte(snapJSON), &rec.Snapshot); err != nil {
		return nil, fmt.Errorf("runstore: decode snapshot: %w", err)
	}
	return &rec, nil
}

func (s *SQLiteStore) List(ctx context.Context) ([]Info, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, parent_id, stage, result, node_count, created_at
		FROM runs ORDER BY created_at DESC, id
	`)
	if err != nil {
		return nil, fmt.Errorf("runstore: list: %w", err)
	}
	defer rows.Close()

	var infos []Info
	for rows.Next() {
		var (
			info          Info
			parent        sql.NullString
			stage, result string
			created       time.Time
		)
		if err := rows.Scan(&info.ID, &parent, &stage, &result, &info.Nodes, &created); err != nil {
			return nil, fmt.Errorf("runstore: scan: %w", err)
		}
		info.ParentID = parent.String
		info.Stage = dag.Stage(stage)
		info.Result = dag.Result(result)
		info.CreatedAt = created
		infos = append(infos, info)
	}
	return infos, rows.Err()
}

// Close closes the database connection.
func (s *SQLiteStore) Close() error { return s.db.Close() }
