package repository

import (
	"github.com/Jackzmc/flashforge-api-server/internal/db"
)

// Repositories provides access to all repository instances
type Repositories struct {
	Jobs JobRepository
}

// NewRepositories creates a repositories container backed by Postgres
func NewRepositories(database *db.Postgres) *Repositories {
	return &Repositories{
		Jobs: NewJobRepository(database.DB),
	}
}

// NewMemoryRepositories creates a repositories container that lives in process
func NewMemoryRepositories(historyPerPrinter int) *Repositories {
	return &Repositories{
		Jobs: NewMemoryJobRepository(historyPerPrinter),
	}
}
