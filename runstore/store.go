package runstore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/kbukum/taskflow/dag"
)

var (
	// ErrNotFound is returned by Load for an unknown run id.
	ErrNotFound = errors.New("runstore: run not found")
	// ErrNotTerminal is returned by Save for a run that has not finished.
	ErrNotTerminal = errors.New("runstore: run has not finished")
)

// RunRecord is everything stored for one finished run.
type RunRecord struct {
	ID        string        `json:"id"`
	ParentID  string        `json:"parent_id,omitempty"`
	Graph     *dag.Document `json:"graph"`
	Events    []dag.Event   `json:"events"`
	Snapshot  dag.Snapshot  `json:"snapshot"`
	CreatedAt time.Time     `json:"created_at"`
}

// Summary derives the run summary from the stored snapshot.
func (r *RunRecord) Summary() *dag.Summary { return dag.Summarize(r.Snapshot) }

// Info describes a stored run without its payloads.
func (r *RunRecord) Info() Info {
	return Info{
		ID:        r.ID,
		ParentID:  r.ParentID,
		Stage:     r.Snapshot.Stage,
		Result:    r.Summary().Result(),
		Nodes:     len(r.Snapshot.Nodes),
		CreatedAt: r.CreatedAt,
	}
}

func (r *RunRecord) check() error {
	if r.ID == "" {
		return fmt.Errorf("runstore: record has no id")
	}
	if !r.Snapshot.Terminal() {
		return fmt.Errorf("%w: %s is %s", ErrNotTerminal, r.ID, r.Snapshot.Stage)
	}
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	return nil
}

// Info is a stored run's listing entry.
type Info struct {
	ID        string     `json:"id"`
	ParentID  string     `json:"parent_id,omitempty"`
	Stage     dag.Stage  `json:"stage"`
	Result    dag.Result `json:"result"`
	Nodes     int        `json:"nodes"`
	CreatedAt time.Time  `json:"created_at"`
}

// Store persists finished runs.
type Store interface {
	// Save writes rec, replacing any record with the same id.
	Save(ctx context.Context, rec *RunRecord) error
	// Load returns the record for id or ErrNotFound.
	Load(ctx context.Context, id string) (*RunRecord, error)
	// List returns every stored run, newest first.
	List(ctx context.Context) ([]Info, error)
	Close() error
}

func sortInfos(infos []Info) {
	sort.Slice(infos, func(i, j int) bool {
		if infos[i].CreatedAt.Equal(infos[j].CreatedAt) {
			return infos[i].ID < infos[j].ID
		}
		return infos[i].CreatedAt.After(infos[j].CreatedAt)
	})
}

// Config selects and configures a backend.
type Config struct {
	// Driver is "file", "sqlite" or "memory".
	Driver string `yaml:"driver" mapstructure:"driver" validate:"omitempty,oneof=file sqlite memory"`
	// Path is the runs directory for "file" and the database file for "sqlite".
	Path string `yaml:"path" mapstructure:"path"`
}

// ApplyDefaults sets default values for unset fields.
func (c *Config) ApplyDefaults() {
	if c.Driver == "" {
		c.Driver = "file"
	}
	if c.Path == "" {
		switch c.Driver {
		case "file":
			c.Path = "runs"
		case "sqlite":
			c.Path = "taskflow.db"
		}
	}
}

// Validate checks the configuration.
func (c *Config) Validate() error {
	switch c.Driver {
	case "file", "sqlite":
		if c.Path == "" {
			return fmt.Errorf("store.path is required for driver %q", c.Driver)
		}
	case "memory":
	default:
		return fmt.Errorf("store.driver must be one of file, sqlite, memory (got: %s)", c.Driver)
	}
	return nil
}

// Open creates the configured store.
func Open(cfg Config) (Store, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	switch cfg.Driver {
	case "sqlite":
		return NewSQLiteStore(cfg.Path)
	case "memory":
		return NewMemoryStore(), nil
	}
	return NewFileStore(cfg.Path)
}
