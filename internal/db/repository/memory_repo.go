package repository

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Jackzmc/flashforge-api-server/internal/models"
)

// MemoryJobRepository keeps job history in process when no database is configured.
// Each printer keeps at most max records; the oldest are evicted first.
type MemoryJobRepository struct {
	mu      sync.RWMutex
	max     int
	seen    map[uuid.UUID]struct{}
	records map[string][]models.JobRecord
}

func NewMemoryJobRepository(max int) *MemoryJobRepository {
	if max <= 0 {
		max = DefaultListLimit
	}
	return &MemoryJobRepository{
		max:     max,
		seen:    make(map[uuid.UUID]struct{}),
		records: make(map[string][]models.JobRecord),
	}
}

func (r *MemoryJobRepository) Record(_ context.Context, record models.JobRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, dup := r.seen[record.ID]; dup {
		return nil
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = time.Now().UTC()
	}
	r.seen[record.ID] = struct{}{}

	list := append(r.records[record.Printer], record)
	if len(list) > r.max {
		evicted := list[0]
		delete(r.seen, evicted.ID)
		list = list[1:]
	}
	r.records[record.Printer] = list
	return nil
}

func (r *MemoryJobRepository) ListByPrinter(_ context.Context, printer string, limit int) ([]models.JobRecord, error) {
	r.mu.RLock()
	out := append([]models.JobRecord(nil), r.records[printer]...)
	r.mu.RUnlock()

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].FinishedAt.After(out[j].FinishedAt)
	})
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if len(out) > limit {
		out = out[:limit]
	}
	if out == nil {
		out = []models.JobRecord{}
	}
	return out, nil
}
