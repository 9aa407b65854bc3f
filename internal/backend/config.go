package backend

import (
	"fmt"

	"insights/internal/config"
)

// FromAppConfig converts the application config to backend config
func FromAppConfig(appConfig *config.Config) (Config, error) {
	if appConfig == nil {
		return Config{}, fmt.Errorf("app config is nil")
	}

	backendType := BackendType(appConfig.DataBackend)
	if !backendType.IsValid() {
		return Config{}, fmt.Errorf("invalid backend type in config: %s (want one of %v)", appConfig.DataBackend, GetBackendTypeStrings())
	}

	return Config{
		Type: backendType,

		SQLiteDBPath: appConfig.SQLiteDBPath,
		SeedFile:     appConfig.SeedFile,

		GoogleSpreadsheetID:     appConfig.GoogleSpreadsheetID,
		GoogleCredentialsFile:   appConfig.GoogleCredentialsFile,
		GoogleCredentialsJSON:   appConfig.GoogleCredentialsJSON,
		GoogleOAuthClientJSON:   appConfig.GoogleOAuthClientJSON,
		GoogleOAuthClientFile:   appConfig.GoogleOAuthClientFile,
		GoogleOAuthTokenFile:    appConfig.GoogleOAuthTokenFile,
		GoogleAccountsSheet:     appConfig.GoogleAccountsSheet,
		GoogleTransactionsSheet: appConfig.GoogleTransactionsSheet,
		GoogleCategoriesSheet:   appConfig.GoogleCategoriesSheet,
		GoogleBudgetSheet:       appConfig.GoogleBudgetSheet,
		GoogleSnapshotTTL:       appConfig.GoogleSnapshotTTL,
		DefaultUserID:           appConfig.DefaultUserID,
	}, nil
}

// Validate validates the backend configuration
func (c Config) Validate() error {
	if !c.Type.IsValid() {
		return fmt.Errorf("invalid backend type: %s", c.Type)
	}

	switch c.Type {
	case SQLiteBackend:
		if c.SQLiteDBPath == "" {
			return fmt.Errorf("SQLite database path is required for sqlite backend")
		}
	case SheetsBackend:
		if c.GoogleSpreadsheetID == "" {
			return fmt.Errorf("Google Spreadsheet ID is required for sheets backend")
		}
		if c.GoogleCredentialsFile == "" && c.GoogleCredentialsJSON == "" && c.GoogleOAuthTokenFile == "" {
			return fmt.Errorf("either GoogleCredentialsFile, GoogleCredentialsJSON or GoogleOAuthTokenFile must be provided for sheets backend")
		}
	case MemoryBackend:
		// An empty memory backend is valid.
	}
	return nil
}

func GetBackendTypes() []BackendType {
	return []BackendType{SQLiteBackend, SheetsBackend, MemoryBackend}
}

func GetBackendTypeStrings() []string {
	types := GetBackendTypes()
	out := make([]string, len(types))
	for i, t := range types {
		out[i] = t.String()
	}
	return out
}
