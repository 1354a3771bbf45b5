package runstore

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
)

// MemoryStore keeps records in memory. Records are deep-copied on Save
// and Load.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string][]byte
	infos   map[string]Info
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{records: make(map[string][]byte), infos: make(map[string]Info)}
}

func (s *MemoryStore) Save(_ context.Context, rec *RunRecord) error {
	if err := rec.check(); err != nil {
		return err
	}
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("runstore: encode %s: %w", rec.ID, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[rec.ID] = data
	s.infos[rec.ID] = rec.Info()
	return nil
}

func (s *MemoryStore) Load(_ context.Context, id string) (*RunRecord, error) {
	s.mu.RLock()
	data, ok := s.records[id]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	var rec RunRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("runstore: decode %s: %w", id, err)
	}
	return &rec, nil
}

func (s *MemoryStore) List(context.Context) ([]Info, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	infos := make([]Info, 0, len(s.infos))
	for _, info := range s.infos {
		infos = append(infos, info)
	}
	sortInfos(infos)
	return infos, nil
}

func (s *MemoryStore) Close() error { return nil }
