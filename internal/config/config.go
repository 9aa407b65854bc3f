package config

import (
	"fmt"
	"net/netip"
	"net/url"
	"os"
	"path/filepath"
	"slices"
	"strconv"
	"strings"
	"time"

	"insights/internal/core"
	"insights/internal/currency"
)

type Config struct {
	// HTTP Server
	Port           string
	RequestTimeout time.Duration
	RateLimitRPM   int
	TrustedProxies []string

	// Backend selection
	DataBackend string

	// Database
	SQLiteDBPath string

	// Memory backend seed
	SeedFile string

	// AMQP ledger events, optional
	AMQPURL      string
	AMQPExchange string
	AMQPQueue    string

	// Google Sheets
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

	// Exchange rates
	RatesURL      string
	RatesTimeout  time.Duration
	RatesCacheTTL time.Duration
	StaticRates   string

	// Reports
	DefaultCurrency string
	DefaultUserID   string
	ReportCacheTTL  time.Duration
	ReportCacheSize int
}

var validBackends = []string{"memory", "sheets", "sqlite"}

func Load() *Config {
	return &Config{
		Port:           getEnv("PORT", "8081"),
		RequestTimeout: getEnvDuration("REQUEST_TIMEOUT", 30*time.Second),
		RateLimitRPM:   getEnvInt("RATE_LIMIT_RPM", 120),
		TrustedProxies: getEnvList("TRUSTED_PROXIES"),

		DataBackend:  getEnv("DATA_BACKEND", "memory"),
		SQLiteDBPath: getEnv("SQLITE_DB_PATH", "./data/insights.db"),
		SeedFile:     getEnv("SEED_FILE", ""),

		AMQPURL:      getEnv("AMQP_URL", ""),
		AMQPExchange: getEnv("AMQP_EXCHANGE", "insights"),
		AMQPQueue:    getEnv("AMQP_QUEUE", "ledger_changed"),

		GoogleSpreadsheetID:     getEnv("GOOGLE_SPREADSHEET_ID", ""),
		GoogleCredentialsFile:   getEnv("GOOGLE_CREDENTIALS_FILE", ""),
		GoogleCredentialsJSON:   getEnv("GOOGLE_CREDENTIALS_JSON", ""),
		GoogleOAuthClientJSON:   getEnv("GOOGLE_OAUTH_CLIENT_JSON", ""),
		GoogleOAuthClientFile:   getEnv("GOOGLE_OAUTH_CLIENT_FILE", ""),
		GoogleOAuthTokenFile:    getEnv("GOOGLE_OAUTH_TOKEN_FILE", ""),
		GoogleAccountsSheet:     getEnv("GOOGLE_ACCOUNTS_SHEET", "Accounts"),
		GoogleTransactionsSheet: getEnv("GOOGLE_TRANSACTIONS_SHEET", "Transactions"),
		GoogleCategoriesSheet:   getEnv("GOOGLE_CATEGORIES_SHEET", "Categories"),
		GoogleBudgetSheet:       getEnv("GOOGLE_BUDGET_SHEET", "Budget"),
		GoogleSnapshotTTL:       getEnvDuration("GOOGLE_SNAPSHOT_TTL", 30*time.Second),

		RatesURL:      getEnv("RATES_URL", "https://api.frankfurter.app"),
		RatesTimeout:  getEnvDuration("RATES_TIMEOUT", 5*time.Second),
		RatesCacheTTL: getEnvDuration("RATES_CACHE_TTL", time.Hour),
		StaticRates:   getEnv("STATIC_RATES", ""),

		DefaultCurrency: getEnv("DEFAULT_CURRENCY", core.DefaultCurrency),
		DefaultUserID:   getEnv("DEFAULT_USER_ID", "default"),
		ReportCacheTTL:  getEnvDuration("REPORT_CACHE_TTL", 5*time.Minute),
		ReportCacheSize: getEnvInt("REPORT_CACHE_SIZE", 500),
	}
}

// Validate validates the configuration and returns every problem at once.
func (c *Config) Validate() error {
	var errors []string

	if port, err := strconv.Atoi(c.Port); err != nil {
		errors = append(errors, fmt.Sprintf("invalid port '%s': must be a number", c.Port))
	} else if port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("invalid port %d: must be between 1 and 65535", port))
	}

	if !slices.Contains(validBackends, c.DataBackend) {
		errors = append(errors, fmt.Sprintf("invalid data backend '%s': must be one of %v", c.DataBackend, validBackends))
	}

	switch c.DataBackend {
	case "sqlite":
		errors = append(errors, c.validateSQLite()...)
	case "sheets":
		errors = append(errors, c.validateSheets()...)
	case "memory":
		if c.SeedFile != "" {
			if _, err := os.Stat(c.SeedFile); os.IsNotExist(err) {
				errors = append(errors, fmt.Sprintf("seed file does not exist: %s", c.SeedFile))
			}
		}
	}

	if c.AMQPURL != "" {
		if parsedURL, err := url.Parse(c.AMQPURL); err != nil {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL '%s': %v", c.AMQPURL, err))
		} else if parsedURL.Scheme != "amqp" && parsedURL.Scheme != "amqps" {
			errors = append(errors, fmt.Sprintf("invalid AMQP URL scheme '%s': must be 'amqp' or 'amqps'", parsedURL.Scheme))
		}
		if c.AMQPExchange == "" {
			errors = append(errors, "AMQP exchange name cannot be empty when AMQP URL is provided")
		}
		if c.AMQPQueue == "" {
			errors = append(errors, "AMQP queue name cannot be empty when AMQP URL is provided")
		}
	}

	errors = append(errors, c.validateRates()...)

	if _, err := core.NormalizeCurrency(c.DefaultCurrency); err != nil {
		errors = append(errors, fmt.Sprintf("invalid default currency '%s': must be a 3-letter code", c.DefaultCurrency))
	}
	if strings.TrimSpace(c.DefaultUserID) == "" {
		errors = append(errors, "default user id cannot be empty")
	}

	if c.ReportCacheSize < 1 {
		errors = append(errors, fmt.Sprintf("invalid report cache size %d: must be at least 1", c.ReportCacheSize))
	} else if c.ReportCacheSize > 100000 {
		errors = append(errors, fmt.Sprintf("invalid report cache size %d: must be at most 100000", c.ReportCacheSize))
	}
	if c.ReportCacheTTL < time.Second {
		errors = append(errors, fmt.Sprintf("invalid report cache TTL %v: must be at least 1 second", c.ReportCacheTTL))
	} else if c.ReportCacheTTL > 24*time.Hour {
		errors = append(errors, fmt.Sprintf("invalid report cache TTL %v: must be at most 24 hours", c.ReportCacheTTL))
	}

	if c.RateLimitRPM < 0 {
		errors = append(errors, fmt.Sprintf("invalid rate limit %d: must not be negative", c.RateLimitRPM))
	}
	for _, cidr := range c.TrustedProxies {
		if _, err := netip.ParsePrefix(cidr); err != nil {
			errors = append(errors, fmt.Sprintf("invalid trusted proxy '%s': must be a CIDR range", cidr))
		}
	}
	if c.RequestTimeout < time.Second {
		errors = append(errors, fmt.Sprintf("invalid request timeout %v: must be at least 1 second", c.RequestTimeout))
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed:\n- %s", strings.Join(errors, "\n- "))
	}
	return nil
}

func (c *Config) validateSQLite() []string {
	if c.SQLiteDBPath == "" {
		return []string{"SQLite database path cannot be empty when using sqlite backend"}
	}
	dir := filepath.Dir(c.SQLiteDBPath)
	if dir != "." && dir != "" {
		if _, err := os.Stat(dir); os.IsNotExist(err) {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return []string{fmt.Sprintf("cannot create SQLite database directory '%s': %v", dir, err)}
			}
		}
	}
	return nil
}

func (c *Config) validateSheets() []string {
	var errors []string
	if c.GoogleSpreadsheetID == "" {
		errors = append(errors, "Google Spreadsheet ID is required when using sheets backend")
	}
	for name, sheet := range map[string]string{
		"GOOGLE_ACCOUNTS_SHEET":     c.GoogleAccountsSheet,
		"GOOGLE_TRANSACTIONS_SHEET": c.GoogleTransactionsSheet,
		"GOOGLE_CATEGORIES_SHEET":   c.GoogleCategoriesSheet,
		"GOOGLE_BUDGET_SHEET":       c.GoogleBudgetSheet,
	} {
		if strings.TrimSpace(sheet) == "" {
			errors = append(errors, fmt.Sprintf("%s cannot be empty when using sheets backend", name))
		}
	}
	if c.GoogleOAuthTokenFile != "" {
		return append(errors, c.validateSheetsOAuth()...)
	}
	hasFile := c.GoogleCredentialsFile != ""
	if !hasFile && c.GoogleCredentialsJSON == "" {
		errors = append(errors, "either GOOGLE_CREDENTIALS_FILE, GOOGLE_CREDENTIALS_JSON or GOOGLE_OAUTH_TOKEN_FILE must be provided for sheets backend")
	}
	if hasFile {
		if _, err := os.Stat(c.GoogleCredentialsFile); os.IsNotExist(err) {
			errors = append(errors, fmt.Sprintf("Google credentials file does not exist: %s", c.GoogleCredentialsFile))
		}
	}
	return errors
}

func (c *Config) validateSheetsOAuth() []string {
	var errors []string
	if _, err := os.Stat(c.GoogleOAuthTokenFile); os.IsNotExist(err) {
		errors = append(errors, fmt.Sprintf("Google OAuth token file does not exist: %s (run oauth-init)", c.GoogleOAuthTokenFile))
	}
	if c.GoogleOAuthClientJSON == "" && c.GoogleOAuthClientFile == "" {
		errors = append(errors, "either GOOGLE_OAUTH_CLIENT_JSON or GOOGLE_OAUTH_CLIENT_FILE must be provided with GOOGLE_OAUTH_TOKEN_FILE")
	}
	return errors
}

func (c *Config) validateRates() []string {
	var errors []string
	if c.StaticRates != "" {
		if _, err := currency.ParseStaticRates(c.StaticRates); err != nil {
			errors = append(errors, fmt.Sprintf("invalid STATIC_RATES: %v", err))
		}
	} else if c.RatesURL == "" {
		errors = append(errors, "either RATES_URL or STATIC_RATES must be provided")
	} else if u, err := url.Parse(c.RatesURL); err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		errors = append(errors, fmt.Sprintf("invalid rates URL '%s': must be http or https", c.RatesURL))
	}
	if c.RatesTimeout <= 0 {
		errors = append(errors, fmt.Sprintf("invalid rates timeout %v: must be positive", c.RatesTimeout))
	}
	if c.RatesCacheTTL < 0 {
		errors = append(errors, fmt.Sprintf("invalid rates cache TTL %v: must not be negative", c.RatesCacheTTL))
	}
	return errors
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvList splits a comma-separated variable, dropping blanks.
func getEnvList(key string) []string {
	var out []string
	for _, v := range strings.Split(os.Getenv(key), ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getEnvDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
