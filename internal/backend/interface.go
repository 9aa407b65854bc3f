package backend

import (
	"context"
	"slices"
	"time"

	"insights/internal/ledger"
)

// CleanupFunc represents a cleanup function for resources
type CleanupFunc func() error

// Pinger is implemented by sources that can report readiness.
type Pinger interface {
	Ping(ctx context.Context) error
}

// Refresher is implemented by sources that cache a snapshot of their data.
type Refresher interface {
	Refresh()
}

// BackendResult is a ready ledger source plus the optional hooks the
// process wires around it. Pinger and Refresher are nil when the source has
// no such capability.
type BackendResult struct {
	Source    ledger.Source
	Pinger    Pinger
	Refresher Refresher
	Cleanup   CleanupFunc
}

// Factory creates ledger sources based on configuration
type Factory interface {
	CreateBackend(ctx context.Context, config Config) (*BackendResult, error)
}

// Config holds configuration for backend creation
type Config struct {
	Type BackendType

	// SQLite specific
	SQLiteDBPath string

	// Seed dataset, loaded into memory or imported into SQLite
	SeedFile string

	// Google Sheets specific
	GoogleSpreadsheetID     string
	GoogleCredentialsFile   string
	GoogleCredentialsJSON   string
	GoogleOAuthClientJSON   string
	GoogleOAuthClientFile   string
	GoogleOAuthTokenFile    string
	GoogleAccountsSheet     string
	GoogleTransactionsSheet string
	GoogleCategoriesSheet   string
	GoogleBudgetSheet       string
	GoogleSnapshotTTL       time.Duration
	DefaultUserID           string
}

// BackendType represents the type of backend
type BackendType string

const (
	SQLiteBackend BackendType = "sqlite"
	SheetsBackend BackendType = "sheets"
	MemoryBackend BackendType = "memory"
)

func (bt BackendType) String() string {
	return string(bt)
}

func (bt BackendType) IsValid() bool {
	return slices.Contains(GetBackendTypes(), bt)
}
