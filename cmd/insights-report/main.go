package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"insights/internal/amqp"
	"insights/internal/backend"
	"insights/internal/cli"
	"insights/internal/config"
	"insights/internal/core"
	"insights/internal/ledger"
	"insights/internal/ledger/memory"
	"insights/internal/log"
	"insights/internal/services"
	"insights/internal/storage"
)

func main() {
	cli.LoadEnvFile()
	logger := cli.SetupLogger(log.ComponentApp)

	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	var err error
	switch os.Args[1] {
	case "categories":
		err = runCategories(logger, os.Args[2:], os.Stdout)
	case "budget":
		err = runBudget(logger, os.Args[2:], os.Stdout)
	case "import":
		err = runImport(logger, os.Args[2:])
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
	if err != nil {
		logger.Error("Command failed", "command", os.Args[1], "error", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println("Insights report CLI")
	fmt.Println("\nUsage:")
	fmt.Println("  insights-report <command> [options]")
	fmt.Println("\nCommands:")
	fmt.Println("  categories  Print the per-category totals of one transaction type")
	fmt.Println("  budget      Print the budget with targets and actuals")
	fmt.Println("  import      Load a seed file into the SQLite database")
	fmt.Println("  help        Show this help message")
	fmt.Println("\nWithout -seed the backend configured through the environment is used.")
	fmt.Println("Run 'insights-report <command> -h' for more information on a command.")
}

// commonFlags are shared by the report commands.
type commonFlags struct {
	seed        string
	user        string
	date        string
	granularity string
	currency    string
}

func (c *commonFlags) register(fs *flag.FlagSet) {
	fs.StringVar(&c.seed, "seed", "", "Dataset JSON file to report on instead of the configured backend")
	fs.StringVar(&c.user, "user", "", "User id (defaults to DEFAULT_USER_ID)")
	fs.StringVar(&c.date, "date", "", "Reference date YYYY-MM-DD (defaults to today)")
	fs.StringVar(&c.granularity, "granularity", "", "monthly, quarterly or yearly")
	fs.StringVar(&c.currency, "currency", "", "Display currency (defaults to DEFAULT_CURRENCY)")
}

func (c *commonFlags) reference() (time.Time, error) {
	if c.date == "" {
		return time.Time{}, nil
	}
	d, err := core.ParseDate(c.date)
	if err != nil {
		return time.Time{}, fmt.Errorf("-date %q: %w", c.date, err)
	}
	return d.Time, nil
}

// parseGranularity is strict: a typo on the command line is an error, not a
// silent monthly report.
func (c *commonFlags) parseGranularity() (core.Granularity, error) {
	if c.granularity == "" {
		return "", nil
	}
	g, err := core.ParseGranularityStrict(c.granularity)
	if err != nil {
		return "", fmt.Errorf("-granularity %q: %w", c.granularity, err)
	}
	return g, nil
}

func (c *commonFlags) parseCurrency() (string, error) {
	if c.currency == "" {
		return "", nil
	}
	code, err := core.NormalizeCurrency(c.currency)
	if err != nil {
		return "", fmt.Errorf("-currency %q: %w", c.currency, err)
	}
	return code, nil
}

func buildCategoryQuery(c commonFlags, typ, accounts, categories string) (services.CategoryReportQuery, error) {
	var q services.CategoryReportQuery

	t, err := core.ParseTransactionType(typ)
	if err != nil {
		return q, fmt.Errorf("-type %q: %w", typ, err)
	}
	q.Type = t
	if q.DateReference, err = c.reference(); err != nil {
		return q, err
	}
	if q.Granularity, err = c.parseGranularity(); err != nil {
		return q, err
	}
	if q.Currency, err = c.parseCurrency(); err != nil {
		return q, err
	}
	q.AccountIDs = splitList(accounts)
	q.CategoryIDs = splitList(categories)
	return q, nil
}

func buildBudgetQuery(c commonFlags) (services.BudgetQuery, error) {
	var (
		q   services.BudgetQuery
		err error
	)
	if q.DateReference, err = c.reference(); err != nil {
		return q, err
	}
	if q.Granularity, err = c.parseGranularity(); err != nil {
		return q, err
	}
	if q.Currency, err = c.parseCurrency(); err != nil {
		return q, err
	}
	return q, nil
}

func runCategories(logger *log.Logger, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("categories", flag.ExitOnError)
	var common commonFlags
	common.register(fs)
	typ := fs.String("type", "", "income, expense or transfer (required)")
	accounts := fs.String("accounts", "", "Comma separated account ids to include")
	categories := fs.String("categories", "", "Comma separated category ids to include")
	fs.Parse(args)

	q, err := buildCategoryQuery(common, *typ, *accounts, *categories)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	svc, user, cleanup, err := openService(ctx, logger, common)
	if err != nil {
		return err
	}
	defer cleanup()

	report, err := svc.GetCategoryReport(ctx, user, q)
	if err != nil {
		return err
	}
	return writeJSON(out, report)
}

func runBudget(logger *log.Logger, args []string, out io.Writer) error {
	fs := flag.NewFlagSet("budget", flag.ExitOnError)
	var common commonFlags
	common.register(fs)
	fs.Parse(args)

	q, err := buildBudgetQuery(common)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	svc, user, cleanup, err := openService(ctx, logger, common)
	if err != nil {
		return err
	}
	defer cleanup()

	report, err := svc.GetBudget(ctx, user, q)
	if err != nil {
		return err
	}
	return writeJSON(out, report)
}

// openService builds a report service over the seed file or the configured
// backend. Reports are computed once, so no result cache is wired.
func openService(ctx context.Context, logger *log.Logger, common commonFlags) (*services.ReportService, string, func(), error) {
	cfg := config.Load()
	user := common.user
	if user == "" {
		user = cfg.DefaultUserID
	}

	rates, closeRates, err := cli.NewRateFetcher(cfg)
	if err != nil {
		return nil, "", nil, err
	}

	var (
		source  ledger.Source
		cleanup = closeRates
	)
	if common.seed != "" {
		store, err := memory.NewFromFile(common.seed)
		if err != nil {
			closeRates()
			return nil, "", nil, err
		}
		source = store
	} else {
		if err := cfg.Validate(); err != nil {
			closeRates()
			return nil, "", nil, err
		}
		backendCfg, err := backend.FromAppConfig(cfg)
		if err != nil {
			closeRates()
			return nil, "", nil, err
		}
		result, err := backend.NewFactory(logger.Logger.With("component", log.ComponentBackend)).CreateBackend(ctx, backendCfg)
		if err != nil {
			closeRates()
			return nil, "", nil, err
		}
		source = result.Source
		if result.Cleanup != nil {
			cleanup = func() {
				_ = result.Cleanup()
				closeRates()
			}
		}
	}

	svc := services.NewReportService(source, rates, services.WithDefaultCurrency(cfg.DefaultCurrency))
	return svc, user, cleanup, nil
}

// runImport upserts a seed file into SQLite and, when AMQP is configured,
// announces the change for every imported user so running servers drop
// their cached reports.
func runImport(logger *log.Logger, args []string) error {
	cfg := config.Load()

	fs := flag.NewFlagSet("import", flag.ExitOnError)
	seed := fs.String("seed", cfg.SeedFile, "Dataset JSON file to import (required)")
	dbPath := fs.String("db", cfg.SQLiteDBPath, "SQLite database path")
	fs.Parse(args)

	if *seed == "" {
		return fmt.Errorf("-seed is required")
	}

	ds, err := ledger.LoadDataset(*seed)
	if err != nil {
		return err
	}

	repo, err := storage.NewSQLiteRepository(*dbPath)
	if err != nil {
		return err
	}
	defer repo.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	stats, err := repo.Import(ctx, ds)
	if err != nil {
		return fmt.Errorf("import %s: %w", *seed, err)
	}
	logger.Info("Imported dataset",
		"seed_file", *seed,
		"db_path", *dbPath,
		"accounts", stats.Accounts,
		"categories", stats.Categories,
		"transactions", stats.Transactions,
		"budgets", stats.Budgets)

	if cfg.AMQPURL == "" {
		return nil
	}
	client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange, cfg.AMQPQueue)
	if err != nil {
		logger.Warn("Imported without notifying: AMQP unavailable", "error", err)
		return nil
	}
	defer client.Close()

	for _, user := range datasetUsers(ds) {
		if err := client.PublishLedgerChanged(ctx, user, "import"); err != nil {
			logger.Warn("Failed to publish ledger change", "user_id", user, "error", err)
		}
	}
	return nil
}

// datasetUsers lists every user owning a record in ds, sorted.
func datasetUsers(ds *ledger.Dataset) []string {
	seen := map[string]struct{}{}
	for _, a := range ds.Accounts {
		seen[a.UserID] = struct{}{}
	}
	for _, c := range ds.Categories {
		seen[c.UserID] = struct{}{}
	}
	for _, b := range ds.Budgets {
		seen[b.UserID] = struct{}{}
	}
	users := make([]string, 0, len(seen))
	for u := range seen {
		users = append(users, u)
	}
	sort.Strings(users)
	return users
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
