package storage

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"insights/internal/core"
	"insights/internal/ledger"
	"insights/internal/log"

	_ "modernc.org/sqlite"
)

type SQLiteRepository struct {
	db *sql.DB
}

var _ ledger.Source = (*SQLiteRepository)(nil)

func NewSQLiteRepository(dbPath string) (*SQLiteRepository, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	version, err := RunMigrations(dbPath)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("run migrations: %w", err)
	}
	slog.Debug("Ledger schema ready", log.FieldComponent, log.ComponentStorage, "path", dbPath, "version", version)

	return &SQLiteRepository{db: db}, nil
}

func (r *SQLiteRepository) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Ping implements the readiness check.
func (r *SQLiteRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// ListTransactions implements ledger.TransactionSource
func (r *SQLiteRepository) ListTransactions(ctx context.Context, userID string, filter ledger.TransactionFilter) ([]core.Transaction, error) {
	var (
		where = []string{"a.user_id = ?", "t.deleted_at IS NULL"}
		args  = []any{userID}
	)
	if !filter.Range.From.IsZero() {
		where = append(where, "t.date BETWEEN ? AND ?")
		args = append(args, filter.Range.From.String(), filter.Range.Until.String())
	}
	if len(filter.Types) > 0 {
		where = append(where, "t.type IN ("+placeholders(len(filter.Types))+")")
		args = appendTypes(args, filter.Types)
	}
	if len(filter.ExcludeTypes) > 0 {
		where = append(where, "t.type NOT IN ("+placeholders(len(filter.ExcludeTypes))+")")
		args = appendTypes(args, filter.ExcludeTypes)
	}
	if len(filter.AccountIDs) > 0 {
		where = append(where, "t.account_id IN ("+placeholders(len(filter.AccountIDs))+")")
		args = appendStrings(args, filter.AccountIDs)
	}
	if len(filter.CategoryIDs) > 0 {
		where = append(where, "t.category_id IN ("+placeholders(len(filter.CategoryIDs))+")")
		args = appendStrings(args, filter.CategoryIDs)
	}

	query := `SELECT t.id, t.amount, a.currency, t.date, t.type, t.category_id, t.account_id
		FROM transactions t
		JOIN accounts a ON a.id = t.account_id
		WHERE ` + strings.Join(where, " AND ") + `
		ORDER BY t.date, t.rowid`

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query transactions: %w", err)
	}
	defer rows.Close()

	out := make([]core.Transaction, 0)
	for rows.Next() {
		var (
			t        core.Transaction
			amount   decimal.Decimal
			date     string
			txnType  string
			category sql.NullString
		)
		if err := rows.Scan(&t.ID, &amount, &t.Currency, &date, &txnType, &category, &t.AccountID); err != nil {
			return nil, fmt.Errorf("scan transaction: %w", err)
		}
		t.Amount = amount
		if t.Date, err = core.ParseDate(date); err != nil {
			return nil, fmt.Errorf("transaction %s date %q: %w", t.ID, date, err)
		}
		if t.Type, err = core.ParseTransactionType(txnType); err != nil {
			return nil, fmt.Errorf("transaction %s: %w", t.ID, err)
		}
		if category.Valid && category.String != "" {
			id := category.String
			t.CategoryID = &id
		}
		out = append(out, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate transactions: %w", err)
	}
	return out, nil
}

// ListCategories implements ledger.CategorySource
func (r *SQLiteRepository) ListCategories(ctx context.Context, userID string) ([]core.Category, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id, name, user_id FROM categories WHERE user_id = ? AND deleted_at IS NULL ORDER BY rowid`, userID)
	if err != nil {
		return nil, fmt.Errorf("query categories: %w", err)
	}
	defer rows.Close()

	out := make([]core.Category, 0)
	for rows.Next() {
		var c core.Category
		if err := rows.Scan(&c.ID, &c.Name, &c.UserID); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		out = append(out, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate categories: %w", err)
	}
	return out, nil
}

// GetOrCreateBudget implements ledger.BudgetSource
func (r *SQLiteRepository) GetOrCreateBudget(ctx context.Context, userID string) (core.Budget, error) {
	res, err := r.db.ExecContext(ctx,
		`INSERT INTO budgets (id, user_id, granularity) VALUES (?, ?, ?) ON CONFLICT(user_id) DO NOTHING`,
		uuid.NewString(), userID, string(core.Monthly))
	if err != nil {
		return core.Budget{}, fmt.Errorf("ensure budget: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		slog.InfoContext(ctx, "Default budget created", "user_id", userID)
	}

	b := core.Budget{UserID: userID, Entries: make([]core.BudgetEntry, 0)}
	var granularity string
	err = r.db.QueryRowContext(ctx,
		`SELECT id, granularity FROM budgets WHERE user_id = ?`, userID).Scan(&b.ID, &granularity)
	if err != nil {
		return core.Budget{}, fmt.Errorf("get budget: %w", err)
	}
	b.Granularity = core.ParseGranularity(granularity)

	rows, err := r.db.QueryContext(ctx,
		`SELECT category_id, type, target FROM budget_entries WHERE budget_id = ? ORDER BY position, rowid`, b.ID)
	if err != nil {
		return core.Budget{}, fmt.Errorf("query budget entries: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			e       core.BudgetEntry
			txnType string
		)
		if err := rows.Scan(&e.CategoryID, &txnType, &e.Target); err != nil {
			return core.Budget{}, fmt.Errorf("scan budget entry: %w", err)
		}
		if e.Type, err = core.ParseTransactionType(txnType); err != nil {
			return core.Budget{}, fmt.Errorf("budget entry %s: %w", e.CategoryID, err)
		}
		b.Entries = append(b.Entries, e)
	}
	if err := rows.Err(); err != nil {
		return core.Budget{}, fmt.Errorf("iterate budget entries: %w", err)
	}
	return b, nil
}

// ImportStats counts the rows written by Import.
type ImportStats struct {
	Accounts     int
	Categories   int
	Transactions int
	Budgets      int
}

// Import upserts a dataset in one transaction. Budgets replace their stored
// entries wholesale.
func (r *SQLiteRepository) Import(ctx context.Context, ds *ledger.Dataset) (ImportStats, error) {
	var stats ImportStats
	if err := ds.Validate(); err != nil {
		return stats, fmt.Errorf("validate dataset: %w", err)
	}

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return stats, fmt.Errorf("begin import: %w", err)
	}
	defer tx.Rollback()

	for _, a := range ds.Accounts {
		cur, _ := core.NormalizeCurrency(a.Currency)
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO accounts (id, user_id, name, currency) VALUES (?, ?, ?, ?)
			 ON CONFLICT(id) DO UPDATE SET user_id = excluded.user_id, name = excluded.name, currency = excluded.currency`,
			a.ID, a.UserID, a.Name, cur); err != nil {
			return stats, fmt.Errorf("import account %s: %w", a.ID, err)
		}
		stats.Accounts++
	}

	for _, c := range ds.Categories {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO categories (id, user_id, name) VALUES (?, ?, ?)
			 ON CONFLICT(id) DO UPDATE SET user_id = excluded.user_id, name = excluded.name`,
			c.ID, c.UserID, c.Name); err != nil {
			return stats, fmt.Errorf("import category %s: %w", c.ID, err)
		}
		stats.Categories++
	}

	for _, t := range ds.Transactions {
		typ, _ := core.ParseTransactionType(t.Type)
		var deletedAt any
		if t.DeletedAt != nil {
			deletedAt = t.DeletedAt.UTC().Format(time.RFC3339)
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO transactions (id, account_id, category_id, amount, date, type, description, deleted_at)
			 VALUES (?, ?, ?, ?, ?, ?, ?, ?)
			 ON CONFLICT(id) DO UPDATE SET account_id = excluded.account_id, category_id = excluded.category_id,
			   amount = excluded.amount, date = excluded.date, type = excluded.type,
			   description = excluded.description, deleted_at = excluded.deleted_at`,
			t.ID, t.AccountID, nullable(t.CategoryID), t.Amount.String(), core.DateOf(t.Date.Time).String(),
			string(typ), t.Description, deletedAt); err != nil {
			return stats, fmt.Errorf("import transaction %s: %w", t.ID, err)
		}
		stats.Transactions++
	}

	for _, rec := range ds.Budgets {
		b := rec.Budget()
		if b.ID == "" {
			b.ID = uuid.NewString()
		}
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO budgets (id, user_id, granularity) VALUES (?, ?, ?)
			 ON CONFLICT(user_id) DO UPDATE SET granularity = excluded.granularity`,
			b.ID, b.UserID, string(b.Granularity)); err != nil {
			return stats, fmt.Errorf("import budget %s: %w", b.UserID, err)
		}
		var budgetID string
		if err := tx.QueryRowContext(ctx, `SELECT id FROM budgets WHERE user_id = ?`, b.UserID).Scan(&budgetID); err != nil {
			return stats, fmt.Errorf("import budget %s: %w", b.UserID, err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM budget_entries WHERE budget_id = ?`, budgetID); err != nil {
			return stats, fmt.Errorf("clear budget entries %s: %w", b.UserID, err)
		}
		for i, e := range b.Entries {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO budget_entries (budget_id, category_id, type, target, position) VALUES (?, ?, ?, ?, ?)`,
				budgetID, e.CategoryID, string(e.Type), e.Target.String(), i); err != nil {
				return stats, fmt.Errorf("import budget entry %s/%s: %w", b.UserID, e.CategoryID, err)
			}
		}
		stats.Budgets++
	}

	if err := tx.Commit(); err != nil {
		return stats, fmt.Errorf("commit import: %w", err)
	}

	slog.InfoContext(ctx, "Dataset imported to SQLite",
		log.FieldComponent, log.ComponentStorage,
		log.FieldOperation, log.OpImport,
		"accounts", stats.Accounts,
		"categories", stats.Categories,
		"transactions", stats.Transactions,
		"budgets", stats.Budgets)

	return stats, nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func appendStrings(args []any, values []string) []any {
	for _, v := range values {
		args = append(args, v)
	}
	return args
}

func appendTypes(args []any, types []core.TransactionType) []any {
	for _, t := range types {
		args = append(args, string(t))
	}
	return args
}

func nullable(s *string) any {
	if s == nil || *s == "" {
		return nil
	}
	return *s
}
