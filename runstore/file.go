package runstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/kbukum/taskflow/dag"
)

const (
	graphFile    = "graph.json"
	workflowFile = "workflow.json"
	resultFile   = "result.json"
)

// resultDoc is the content of result.json.
type resultDoc struct {
	ID        string       `json:"id"`
	ParentID  string       `json:"parent_id,omitempty"`
	CreatedAt time.Time    `json:"created_at"`
	Summary   *dag.Summary `json:"summary"`
	Snapshot  dag.Snapshot `json:"snapshot"`
}

// FileStore keeps each run in its own directory under root.
type FileStore struct {
	root string
	mu   sync.Mutex
}

var _ Store = (*FileStore)(nil)

// NewFileStore creates root if needed.
func NewFileStore(root string) (*FileStore, error) {
	if err := os.MkdirAll(root, 0o755); err != nil {
		return nil, fmt.Errorf("runstore: create %s: %w", root, err)
	}
	return &FileStore{root: root}, nil
}

// Root returns the runs directory.
func (s *FileStore) Root() string { return s.root }

func (s *FileStore) dir(id string) (string, error) {
	if id == "" || id != filepath.Base(id) || id == "." || id == ".." {
		return "", fmt.Errorf("runstore: invalid run id %q", id)
	}
	return filepath.Join(s.root, id), nil
}

// Save writes graph.json, workflow.json and result.json. result.json is
// written last, so a directory without it is an incomplete save.
func (s *FileStore) Save(_ context.Context, rec *RunRecord) error {
	if err := rec.check(); err != nil {
		return err
	}
	dir, err := s.dir(rec.ID)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("runstore: create %s: %w", dir, err)
	}
	result := resultDoc{
		ID:        rec.ID,
		ParentID:  rec.ParentID,
		CreatedAt: rec.CreatedAt,
		Summary:   rec.Summary(),
		Snapshot:  rec.Snapshot,
	}
	events := rec.Events
	if events == nil {
		events = []dag.Event{}
	}
	for _, f := range []struct {
		name string
		v    any
	}{
		{graphFile, rec.Graph},
		{workflowFile, events},
		{resultFile, result},
	} {
		if err := writeJSON(filepath.Join(dir, f.name), f.v); err != nil {
			return err
		}
	}
	return nil
}

func (s *FileStore) Load(_ context.Context, id string) (*RunRecord, error) {
	dir, err := s.dir(id)
	if err != nil {
		return nil, err
	}
	var result resultDoc
	if err := readJSON(filepath.Join(dir, resultFile), &result); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, err
	}
	rec := &RunRecord{ID: result.ID, ParentID: result.ParentID, CreatedAt: result.CreatedAt, Snapshot: result.Snapshot}
	if err := readJSON(filepath.Join(dir, graphFile), &rec.Graph); err != nil {
		return nil, err
	}
	if err := readJSON(filepath.Join(dir, workflowFile), &rec.Events); err != nil {
		return nil, err
	}
	return rec, nil
}

// List reads every run's result.json concurrently. Directories without
// one are skipped.
func (s *FileStore) List(ctx context.Context) ([]Info, error) {
	entries, err := os.ReadDir(s.root)
	if err != nil {
		return nil, fmt.Errorf("runstore: list %s: %w", s.root, err)
	}

	var (
		mu    sync.Mutex
		infos []Info
	)
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		path := filepath.Join(s.root, e.Name(), resultFile)
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			var result resultDoc
			if err := readJSON(path, &result); err != nil {
				if errors.Is(err, fs.ErrNotExist) {
					return nil
				}
				return err
			}
			rec := RunRecord{ID: result.ID, ParentID: result.ParentID, CreatedAt: result.CreatedAt, Snapshot: result.Snapshot}
			mu.Lock()
			infos = append(infos, rec.Info())
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	sortInfos(infos)
	return infos, nil
}

func (s *FileStore) Close() error { return nil }

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("runstore: encode %s: %w", filepath.Base(path), err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("runstore: write %s: %w", path, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("runstore: write %s: %w", path, err)
	}
	return nil
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("runstore: decode %s: %w", path, err)
	}
	return nil
}
