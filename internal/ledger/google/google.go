// Package google reads a ledger kept in a Google spreadsheet. The sheets are
// read-only from this side: a user without budget rows gets the default
// budget for the lifetime of the cached snapshot.
package google

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"insights/internal/core"
	"insights/internal/ledger"
	"insights/internal/ledger/memory"

	"golang.org/x/oauth2"
	goauth "golang.org/x/oauth2/google"
	goption "google.golang.org/api/option"
	gsheet "google.golang.org/api/sheets/v4"
)

type Config struct {
	SpreadsheetID   string
	CredentialsJSON string
	CredentialsFile string
	// OAuth user credentials, used instead of a service account when
	// OAuthTokenFile is set. cmd/oauth-init writes the token.
	OAuthClientJSON   string
	OAuthClientFile   string
	OAuthTokenFile    string
	AccountsSheet     string
	TransactionsSheet string
	CategoriesSheet   string
	BudgetSheet       string
	// DefaultUser owns rows that have no User column.
	DefaultUser string
	// SnapshotTTL bounds how stale a read may be.
	SnapshotTTL time.Duration
}

type Client struct {
	svc *gsheet.Service
	cfg Config

	mu        sync.Mutex
	snapshot  *memory.Store
	expiresAt time.Time
	now       func() time.Time
}

var _ ledger.Source = (*Client)(nil)

// New creates a read-only Sheets client using service account or OAuth user
// credentials.
func New(ctx context.Context, cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.SpreadsheetID) == "" {
		return nil, errors.New("missing spreadsheet id")
	}
	cfg = withDefaults(cfg)

	svc, err := newSheetsService(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("sheets service: %w", err)
	}
	return &Client{svc: svc, cfg: cfg, now: time.Now}, nil
}

func withDefaults(cfg Config) Config {
	if cfg.AccountsSheet == "" {
		cfg.AccountsSheet = "Accounts"
	}
	if cfg.TransactionsSheet == "" {
		cfg.TransactionsSheet = "Transactions"
	}
	if cfg.CategoriesSheet == "" {
		cfg.CategoriesSheet = "Categories"
	}
	if cfg.BudgetSheet == "" {
		cfg.BudgetSheet = "Budget"
	}
	if cfg.SnapshotTTL <= 0 {
		cfg.SnapshotTTL = 30 * time.Second
	}
	return cfg
}

func newSheetsService(ctx context.Context, cfg Config) (*gsheet.Service, error) {
	auth, err := credentialsOption(ctx, cfg)
	if err != nil {
		return nil, err
	}

	service, err := gsheet.NewService(ctx, auth)
	if err != nil {
		return nil, fmt.Errorf("create sheets service: %w", err)
	}

	slog.InfoContext(ctx, "Google Sheets service created", "spreadsheet_id", cfg.SpreadsheetID)
	return service, nil
}

func credentialsOption(ctx context.Context, cfg Config) (goption.ClientOption, error) {
	if strings.TrimSpace(cfg.OAuthTokenFile) != "" {
		return oauthOption(ctx, cfg)
	}

	var (
		credentialsJSON []byte
		err             error
	)
	switch {
	case strings.TrimSpace(cfg.CredentialsJSON) != "":
		credentialsJSON = []byte(cfg.CredentialsJSON)
	case strings.TrimSpace(cfg.CredentialsFile) != "":
		credentialsJSON, err = os.ReadFile(cfg.CredentialsFile)
		if err != nil {
			return nil, fmt.Errorf("read service account file: %w", err)
		}
	default:
		return nil, errors.New("missing credentials (set GOOGLE_CREDENTIALS_JSON, GOOGLE_CREDENTIALS_FILE or GOOGLE_OAUTH_TOKEN_FILE)")
	}
	return goption.WithCredentialsJSON(credentialsJSON), nil
}

// oauthOption builds an HTTP client that refreshes the stored user token.
func oauthOption(ctx context.Context, cfg Config) (goption.ClientOption, error) {
	var (
		clientJSON []byte
		err        error
	)
	switch {
	case strings.TrimSpace(cfg.OAuthClientJSON) != "":
		clientJSON = []byte(cfg.OAuthClientJSON)
	case strings.TrimSpace(cfg.OAuthClientFile) != "":
		clientJSON, err = os.ReadFile(cfg.OAuthClientFile)
		if err != nil {
			return nil, fmt.Errorf("read oauth client file: %w", err)
		}
	default:
		return nil, errors.New("missing oauth client (set GOOGLE_OAUTH_CLIENT_JSON or GOOGLE_OAUTH_CLIENT_FILE)")
	}

	oauthCfg, err := goauth.ConfigFromJSON(clientJSON, gsheet.SpreadsheetsReadonlyScope)
	if err != nil {
		return nil, fmt.Errorf("oauth config: %w", err)
	}

	raw, err := os.ReadFile(cfg.OAuthTokenFile)
	if err != nil {
		return nil, fmt.Errorf("read oauth token: %w", err)
	}
	var token oauth2.Token
	if err := json.Unmarshal(raw, &token); err != nil {
		return nil, fmt.Errorf("decode oauth token: %w", err)
	}
	return goption.WithHTTPClient(oauthCfg.Client(ctx, &token)), nil
}

func (c *Client) ListTransactions(ctx context.Context, userID string, filter ledger.TransactionFilter) ([]core.Transaction, error) {
	store, err := c.load(ctx)
	if err != nil {
		return nil, err
	}
	return store.ListTransactions(ctx, userID, filter)
}

func (c *Client) ListCategories(ctx context.Context, userID string) ([]core.Category, error) {
	store, err := c.load(ctx)
	if err != nil {
		return nil, err
	}
	return store.ListCategories(ctx, userID)
}

func (c *Client) GetOrCreateBudget(ctx context.Context, userID string) (core.Budget, error) {
	store, err := c.load(ctx)
	if err != nil {
		return core.Budget{}, err
	}
	return store.GetOrCreateBudget(ctx, userID)
}

// Refresh drops the cached snapshot so the next read hits the API.
func (c *Client) Refresh() {
	c.mu.Lock()
	c.expiresAt = time.Time{}
	c.mu.Unlock()
}

// load returns the cached snapshot or reads all sheets in one batch. The
// lock is held across the fetch so concurrent readers share one API call.
func (c *Client) load(ctx context.Context) (*memory.Store, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.snapshot != nil && c.now().Before(c.expiresAt) {
		return c.snapshot, nil
	}
	if c.svc == nil {
		return nil, errors.New("sheets service not initialized")
	}

	ranges := []string{c.cfg.AccountsSheet, c.cfg.TransactionsSheet, c.cfg.CategoriesSheet, c.cfg.BudgetSheet}
	start := time.Now()
	resp, err := c.svc.Spreadsheets.Values.BatchGet(c.cfg.SpreadsheetID).
		Ranges(ranges...).
		ValueRenderOption("UNFORMATTED_VALUE").
		DateTimeRenderOption("FORMATTED_STRING").
		Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("read sheets %v: %w", ranges, err)
	}
	if len(resp.ValueRanges) != len(ranges) {
		return nil, fmt.Errorf("read sheets: got %d ranges, want %d", len(resp.ValueRanges), len(ranges))
	}

	ds, skipped, err := buildDataset(
		resp.ValueRanges[0].Values,
		resp.ValueRanges[1].Values,
		resp.ValueRanges[2].Values,
		resp.ValueRanges[3].Values,
		c.cfg.DefaultUser,
	)
	if err != nil {
		return nil, err
	}
	store, err := memory.NewFromDataset(ds)
	if err != nil {
		return nil, fmt.Errorf("load sheet ledger: %w", err)
	}

	c.snapshot = store
	c.expiresAt = c.now().Add(c.cfg.SnapshotTTL)

	slog.InfoContext(ctx, "Ledger snapshot loaded from Google Sheets",
		"accounts", len(ds.Accounts),
		"transactions", len(ds.Transactions),
		"categories", len(ds.Categories),
		"budgets", len(ds.Budgets),
		"skipped_rows", skipped,
		"duration_ms", time.Since(start).Milliseconds())

	return store, nil
}

func buildDataset(accounts, txns, categories, budgets [][]interface{}, defaultUser string) (*ledger.Dataset, int, error) {
	accs, skippedAccounts, err := parseAccounts(accounts, defaultUser)
	if err != nil {
		return nil, 0, err
	}
	records, skippedTxns, err := parseTransactions(txns, accs)
	if err != nil {
		return nil, 0, err
	}
	cats, skippedCats, err := parseCategories(categories, defaultUser)
	if err != nil {
		return nil, 0, err
	}
	bs, skippedBudget, err := parseBudgets(budgets, defaultUser)
	if err != nil {
		return nil, 0, err
	}
	ds := &ledger.Dataset{Accounts: accs, Transactions: records, Categories: cats, Budgets: bs}
	return ds, skippedAccounts + skippedTxns + skippedCats + skippedBudget, nil
}

// Ping loads the snapshot, reading the spreadsheet when the cached one is stale.
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.load(ctx)
	return err
}
