package transmission

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemoryStore is an in-process Store with the same dedup semantics as hl7log
type MemoryStore struct {
	mu      sync.Mutex
	nextID  int64
	records []*Record
	dedup   map[string]struct{}
}

// NewMemoryStore creates an empty store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{dedup: make(map[string]struct{})}
}

func (s *MemoryStore) InsertRecord(_ context.Context, r *Record) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if r.DedupKey != "" {
		if _, ok := s.dedup[r.DedupKey]; ok {
			return false, nil
		}
		s.dedup[r.DedupKey] = struct{}{}
	}

	s.nextID++
	r.ID = s.nextID
	r.CreatedAt = time.Now().UTC()
	cp := *r
	s.records = append(s.records, &cp)
	return true, nil
}

func (s *MemoryStore) ListRecords(_ context.Context, f Filter) ([]*Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*Record
	for i := len(s.records) - 1; i >= 0; i-- {
		r := s.records[i]
		if f.Type != "" && r.Type != f.Type {
			continue
		}
		if f.Result != nil && r.Result != *f.Result {
			continue
		}
		if f.Source != "" && r.Source != f.Source {
			continue
		}
		if f.Key != "" && r.Key != f.Key {
			continue
		}
		cp := *r
		out = append(out, &cp)
		if f.Limit > 0 && len(out) == f.Limit {
			break
		}
	}
	return out, nil
}

func (s *MemoryStore) SummarizeRecords(_ context.Context) ([]SummaryRow, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	counts := make(map[SummaryRow]int64)
	for _, r := range s.records {
		counts[SummaryRow{Type: r.Type, Result: r.Result}]++
	}
	out := make([]SummaryRow, 0, len(counts))
	for row, n := range counts {
		row.Count = n
		out = append(out, row)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Type != out[j].Type {
			return out[i].Type < out[j].Type
		}
		return out[i].Result < out[j].Result
	})
	return out, nil
}

func (s *MemoryStore) FindRecords(_ context.Context, t MessageType, source, key string) ([]*Record, error) {
	return s.ListRecords(context.Background(), Filter{Type: t, Source: source, Key: key})
}

// Len returns the number of stored rows
func (s *MemoryStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}
