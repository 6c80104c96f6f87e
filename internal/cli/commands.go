package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/gocarina/gocsv"
	"github.com/spf13/cobra"

	"tally/internal/amqp"
	"tally/internal/backend"
	"tally/internal/core"
	"tally/internal/ledger"
	"tally/internal/services"
)

// Env is what the commands need from the outside world.
type Env struct {
	// Open returns a ready backend. The caller runs Cleanup.
	Open func(ctx context.Context) (*backend.BackendResult, error)
	// Subscribe tails ledger events matching pattern until ctx is done.
	Subscribe func(ctx context.Context, pattern string, handler func(ledger.Event) error) error
	Clock     func() time.Time
}

// DefaultEnv wires the commands to the environment configuration.
func DefaultEnv() Env {
	return Env{
		Open: func(ctx context.Context) (*backend.BackendResult, error) {
			cfg, err := LoadAndValidateConfig()
			if err != nil {
				return nil, err
			}
			logger, err := SetupLogger(cfg, os.Stderr)
			if err != nil {
				return nil, err
			}
			return OpenBackend(ctx, cfg, logger)
		},
		Subscribe: func(ctx context.Context, pattern string, handler func(ledger.Event) error) error {
			cfg, err := LoadAndValidateConfig()
			if err != nil {
				return err
			}
			if cfg.AMQPURL == "" {
				return errors.New("AMQP_URL is not set")
			}
			client, err := amqp.NewClient(cfg.AMQPURL, cfg.AMQPExchange)
			if err != nil {
				return err
			}
			defer client.Close()
			return client.Subscribe(ctx, pattern, handler)
		},
		Clock: time.Now,
	}
}

type rootOptions struct {
	env   Env
	owner int64
}

// NewRootCommand builds the tallyctl command tree.
func NewRootCommand(env Env) *cobra.Command {
	if env.Clock == nil {
		env.Clock = time.Now
	}
	opts := &rootOptions{env: env}

	cmd := &cobra.Command{
		Use:           "tallyctl",
		Short:         "Operate on a tally ledger from the command line",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().Int64VarP(&opts.owner, "user", "u", 0, "Owner user id")

	cmd.AddCommand(
		newImportCommand(opts),
		newSummaryCommand(opts),
		newYearsCommand(opts),
		newExportCommand(opts),
		newEventsCommand(opts),
	)
	return cmd
}

// withBackend runs fn against a freshly opened backend for the --user owner.
func (o *rootOptions) withBackend(cmd *cobra.Command, fn func(ctx context.Context, b *backend.Backend) error) error {
	if o.owner < 1 {
		return errors.New("--user must be a positive user id")
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	result, err := o.env.Open(ctx)
	if err != nil {
		return err
	}
	defer result.Cleanup()
	return fn(ctx, result.Backend)
}

type monthFlags struct {
	year  int
	month int
}

func (m *monthFlags) register(cmd *cobra.Command) {
	cmd.Flags().IntVar(&m.year, "year", 0, "Year (default current)")
	cmd.Flags().IntVar(&m.month, "month", 0, "Month 1-12 (default current)")
}

func (m *monthFlags) resolve(now time.Time) (int, int, error) {
	year, month := m.year, m.month
	if year == 0 {
		year = now.Year()
	}
	if month == 0 {
		month = int(now.Month())
	}
	if month < 1 || month > 12 {
		return 0, 0, fmt.Errorf("month must be between 1 and 12, got %d", month)
	}
	return year, month, nil
}

func newImportCommand(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "import FILE",
		Short: "Import a CSV of date,amount,description,category rows",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return o.withBackend(cmd, func(ctx context.Context, b *backend.Backend) error {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()

				result, err := b.Importer.Import(ctx, o.owner, f)
				if err != nil {
					return fmt.Errorf("import %s: %w", args[0], err)
				}
				printImportResult(cmd.OutOrStdout(), result)
				return nil
			})
		},
	}
}

func printImportResult(out io.Writer, result services.ImportResult) {
	fmt.Fprintf(out, "batch %s: %d imported, %d skipped\n", result.BatchID, result.Imported, result.Skipped)
	for _, row := range result.Rows {
		if row.Imported {
			continue
		}
		if row.Detail != "" {
			fmt.Fprintf(out, "  line %d: %s (%s)\n", row.Line, row.Reason, row.Detail)
		} else {
			fmt.Fprintf(out, "  line %d: %s\n", row.Line, row.Reason)
		}
	}
}

func newSummaryCommand(o *rootOptions) *cobra.Command {
	var month monthFlags
	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Show totals, averages and budget alerts for a month",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			year, m, err := month.resolve(o.env.Clock())
			if err != nil {
				return err
			}
			return o.withBackend(cmd, func(ctx context.Context, b *backend.Backend) error {
				overview, err := b.Dashboard.Overview(ctx, o.owner, year, m)
				if err != nil {
					return err
				}
				printOverview(cmd.OutOrStdout(), overview)
				return nil
			})
		},
	}
	month.register(cmd)
	return cmd
}

func printOverview(out io.Writer, ov core.MonthOverview) {
	fmt.Fprintf(out, "%04d-%02d total %.2f\n\n", ov.Year, ov.Month, ov.Total)

	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "CATEGORY\tTOTAL\tSHARE")
	for _, row := range ov.Totals {
		fmt.Fprintf(tw, "%s\t%.2f\t%.1f%%\n", row.Category, row.Value, row.Percentage)
	}
	tw.Flush()

	if len(ov.Averages) > 0 {
		fmt.Fprintln(out)
		tw = tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "CATEGORY\tAVERAGE")
		for _, row := range ov.Averages {
			fmt.Fprintf(tw, "%s\t%.2f\n", row.Category, row.Value)
		}
		tw.Flush()
	}

	fmt.Fprintln(out)
	for _, a := range ov.Alerts {
		fmt.Fprintf(out, "[%s] %s\n", a.Type, a.Message)
	}
}

func newYearsCommand(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "years",
		Short: "List the years with expenses, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return o.withBackend(cmd, func(ctx context.Context, b *backend.Backend) error {
				years, err := b.Expenses.AvailableYears(ctx, o.owner)
				if err != nil {
					return err
				}
				for _, y := range years {
					fmt.Fprintln(cmd.OutOrStdout(), y)
				}
				return nil
			})
		},
	}
}

type exportRow struct {
	Date        string `csv:"date"`
	Amount      string `csv:"amount"`
	Description string `csv:"description"`
	Category    string `csv:"category"`
}

func newExportCommand(o *rootOptions) *cobra.Command {
	var (
		month    monthFlags
		output   string
		noHeader bool
	)
	cmd := &cobra.Command{
		Use:   "export",
		Short: "Write a month's expenses as CSV",
		Long: `Write a month's expenses as CSV with date, amount, description and category
columns. With --no-header the file can be fed straight back to "tallyctl import".`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			year, m, err := month.resolve(o.env.Clock())
			if err != nil {
				return err
			}
			return o.withBackend(cmd, func(ctx context.Context, b *backend.Backend) error {
				rows, err := exportMonth(ctx, b.Expenses, o.owner, year, m)
				if err != nil {
					return err
				}

				out := cmd.OutOrStdout()
				if output != "" && output != "-" {
					f, err := os.Create(output)
					if err != nil {
						return err
					}
					defer f.Close()
					out = f
				}
				if noHeader {
					return gocsv.MarshalWithoutHeaders(rows, out)
				}
				return gocsv.Marshal(rows, out)
			})
		},
	}
	month.register(cmd)
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output file (default stdout)")
	cmd.Flags().BoolVar(&noHeader, "no-header", false, "Omit the header row")
	return cmd
}

func exportMonth(ctx context.Context, expenses *services.ExpenseService, owner int64, year, month int) ([]exportRow, error) {
	n, err := expenses.Count(ctx, owner, year, month)
	if err != nil {
		return nil, err
	}
	rows := make([]exportRow, 0, n)
	if n == 0 {
		return rows, nil
	}
	items, err := expenses.List(ctx, owner, year, month, 1, n)
	if err != nil {
		return nil, err
	}
	for _, e := range items {
		rows = append(rows, exportRow{
			Date:        e.Date.String(),
			Amount:      e.Amount.String(),
			Description: e.Description,
			Category:    e.Category,
		})
	}
	return rows, nil
}

func newEventsCommand(o *rootOptions) *cobra.Command {
	var pattern string
	cmd := &cobra.Command{
		Use:   "events",
		Short: "Print ledger events from the AMQP exchange as JSON lines",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if o.env.Subscribe == nil {
				return errors.New("event subscription is not available")
			}
			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			err := o.env.Subscribe(ctx, pattern, func(evt ledger.Event) error {
				if o.owner > 0 && evt.OwnerID != o.owner {
					return nil
				}
				return enc.Encode(evt)
			})
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}
	cmd.Flags().StringVar(&pattern, "pattern", "#", "Routing key pattern, e.g. expense.*")
	return cmd
}
