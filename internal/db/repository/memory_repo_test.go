package repository

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/Jackzmc/flashforge-api-server/internal/models"
)

var (
	_ JobRepository = (*PostgresJobRepository)(nil)
	_ JobRepository = (*MemoryJobRepository)(nil)
)

func record(printer string, jobID int64, finished time.Time) models.JobRecord {
	return models.JobRecord{
		ID:         uuid.New(),
		Printer:    printer,
		JobID:      jobID,
		Outcome:    models.JobCompleted,
		FinishedAt: finished,
	}
}

func TestMemoryJobRepository(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryJobRepository(3)
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	for i := int64(1); i <= 4; i++ {
		if err := repo.Record(ctx, record("p1", i, base.Add(time.Duration(i)*time.Hour))); err != nil {
			t.Fatalf("Record() error = %v", err)
		}
	}
	if err := repo.Record(ctx, record("p2", 1, base)); err != nil {
		t.Fatal(err)
	}

	got, err := repo.ListByPrinter(ctx, "p1", 0)
	if err != nil {
		t.Fatalf("ListByPrinter() error = %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("len = %d, want 3 (oldest evicted)", len(got))
	}
	if got[0].JobID != 4 || got[2].JobID != 2 {
		t.Errorf("order = %d..%d, want newest first 4..2", got[0].JobID, got[2].JobID)
	}
	if got[0].CreatedAt.IsZero() {
		t.Error("CreatedAt not set")
	}

	limited, _ := repo.ListByPrinter(ctx, "p1", 1)
	if len(limited) != 1 || limited[0].JobID != 4 {
		t.Errorf("limited = %+v", limited)
	}

	empty, _ := repo.ListByPrinter(ctx, "nobody", 10)
	if empty == nil || len(empty) != 0 {
		t.Errorf("unknown printer = %#v, want empty slice", empty)
	}
}

func TestMemoryJobRepositoryIgnoresDuplicates(t *testing.T) {
	ctx := context.Background()
	repo := NewMemoryJobRepository(10)
	r := record("p1", 1, time.Now())

	repo.Record(ctx, r)
	repo.Record(ctx, r)

	got, _ := repo.ListByPrinter(ctx, "p1", 10)
	if len(got) != 1 {
		t.Errorf("len = %d, want 1", len(got))
	}
}
