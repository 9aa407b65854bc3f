package backend

import (
	"context"
	"fmt"
	"log/slog"

	"insights/internal/ledger"
	"insights/internal/ledger/google"
	"insights/internal/ledger/memory"
	"insights/internal/storage"
)

type DefaultFactory struct {
	logger *slog.Logger
}

func NewFactory(logger *slog.Logger) Factory {
	if logger == nil {
		logger = slog.Default()
	}
	return &DefaultFactory{logger: logger}
}

// CreateBackend implements Factory.CreateBackend
func (f *DefaultFactory) CreateBackend(ctx context.Context, config Config) (*BackendResult, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	switch config.Type {
	case SQLiteBackend:
		return f.createSQLiteBackend(ctx, config)
	case SheetsBackend:
		return f.createSheetsBackend(ctx, config)
	case MemoryBackend:
		return f.createMemoryBackend(config)
	default:
		return nil, fmt.Errorf("unsupported backend type: %s", config.Type)
	}
}

// createSQLiteBackend opens (and migrates) the database. A seed file, when
// given, is upserted on every start.
func (f *DefaultFactory) createSQLiteBackend(ctx context.Context, config Config) (*BackendResult, error) {
	repo, err := storage.NewSQLiteRepository(config.SQLiteDBPath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize SQLite repository: %w", err)
	}

	if config.SeedFile != "" {
		ds, err := ledger.LoadDataset(config.SeedFile)
		if err != nil {
			repo.Close()
			return nil, err
		}
		stats, err := repo.Import(ctx, ds)
		if err != nil {
			repo.Close()
			return nil, fmt.Errorf("import seed: %w", err)
		}
		f.logger.Info("Imported seed into SQLite",
			"seed_file", config.SeedFile,
			"accounts", stats.Accounts,
			"categories", stats.Categories,
			"transactions", stats.Transactions,
			"budgets", stats.Budgets)
	}

	f.logger.Info("Initialized SQLite backend", "db_path", config.SQLiteDBPath)

	return &BackendResult{
		Source:  repo,
		Pinger:  repo,
		Cleanup: repo.Close,
	}, nil
}

func (f *DefaultFactory) createSheetsBackend(ctx context.Context, config Config) (*BackendResult, error) {
	cli, err := google.New(ctx, google.Config{
		SpreadsheetID:     config.GoogleSpreadsheetID,
		CredentialsJSON:   config.GoogleCredentialsJSON,
		CredentialsFile:   config.GoogleCredentialsFile,
		OAuthClientJSON:   config.GoogleOAuthClientJSON,
		OAuthClientFile:   config.GoogleOAuthClientFile,
		OAuthTokenFile:    config.GoogleOAuthTokenFile,
		AccountsSheet:     config.GoogleAccountsSheet,
		TransactionsSheet: config.GoogleTransactionsSheet,
		CategoriesSheet:   config.GoogleCategoriesSheet,
		BudgetSheet:       config.GoogleBudgetSheet,
		DefaultUser:       config.DefaultUserID,
		SnapshotTTL:       config.GoogleSnapshotTTL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize Google Sheets client: %w", err)
	}

	f.logger.Info("Initialized Google Sheets backend", "spreadsheet_id", config.GoogleSpreadsheetID)

	return &BackendResult{
		Source:    cli,
		Pinger:    cli,
		Refresher: cli,
	}, nil
}

func (f *DefaultFactory) createMemoryBackend(config Config) (*BackendResult, error) {
	if config.SeedFile == "" {
		f.logger.Info("Initialized empty memory backend")
		return &BackendResult{Source: memory.New()}, nil
	}

	store, err := memory.NewFromFile(config.SeedFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load memory backend: %w", err)
	}

	f.logger.Info("Initialized memory backend", "seed_file", config.SeedFile)
	return &BackendResult{Source: store}, nil
}
