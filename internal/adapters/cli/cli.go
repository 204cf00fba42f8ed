package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"github.com/ibrahim-bhat/Billflow-updated-sub001/internal/app"
	"github.com/ibrahim-bhat/Billflow-updated-sub001/internal/logger"
)

var version = "0.1.0"

// Backend connects the command tree to the database lazily, so commands such
// as schema run without one.
type Backend interface {
	Service(ctx context.Context) (app.ApplicationService, error)
	Migrate(ctx context.Context) error
}

// NewRootCommand builds the billflow command tree.
func NewRootCommand(backend Backend) *cobra.Command {
	root := &cobra.Command{
		Use:   "billflow",
		Short: "Billing, stock and ledger core for a produce wholesaler",
		Long: `billflow posts invoices against dated vendor stock batches, records payments,
issues watak commission settlements to vendors and reports party ledgers.

Draft documents are read as JSON from a file or from stdin ("-").
Run "billflow schema" to print the JSON Schema of every draft shape.

Required environment variables:
  DATABASE_URL - Postgres connection string`,
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.PersistentFlags().Bool("json", false, "Print results as JSON")

	root.AddCommand(
		newMigrateCmd(backend),
		newSchemaCmd(),
		newPartyCmd(backend),
		newItemCmd(backend),
		newStockCmd(backend),
		newInvoiceCmd(backend),
		newPaymentCmd(backend),
		newWatakCmd(backend),
		newRuleCmd(backend),
		newLedgerCmd(backend),
	)
	return root
}

// Execute runs the command tree and returns the process exit code.
func Execute(ctx context.Context, backend Backend, args []string) int {
	log := logger.WithComponent("cli")

	root := NewRootCommand(backend)
	root.SetArgs(args)
	if err := root.ExecuteContext(ctx); err != nil {
		log.Debug().Err(err).Msg("command execution failed")
		fmt.Fprintf(os.Stderr, "Error: %s\n", describeError(err))
		return 1
	}
	return 0
}

func newMigrateCmd(backend Backend) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := backend.Migrate(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Migrations applied.")
			return nil
		},
	}
}

// ── input helpers ─────────────────────────────────────────────────────────────

// readJSON decodes path into v; "-" or an empty path reads stdin.
// Unknown fields are rejected so typos in drafts fail loudly.
func readJSON(cmd *cobra.Command, path string, v any) error {
	var r io.Reader = cmd.InOrStdin()
	if path != "" && path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("open %s: %w", path, err)
		}
		defer f.Close()
		r = f
	}
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	return nil
}

func decimalFlag(cmd *cobra.Command, name string) (decimal.Decimal, error) {
	raw, _ := cmd.Flags().GetString(name)
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return decimal.Zero, nil
	}
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("--%s: invalid amount %q", name, raw)
	}
	return d, nil
}

func optionalDecimalFlag(cmd *cobra.Command, name string) (*decimal.Decimal, error) {
	if !cmd.Flags().Changed(name) {
		return nil, nil
	}
	d, err := decimalFlag(cmd, name)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func optionalIntFlag(cmd *cobra.Command, name string) *int {
	if !cmd.Flags().Changed(name) {
		return nil
	}
	v, _ := cmd.Flags().GetInt(name)
	return &v
}

func parseID(raw, what string) (int, error) {
	id, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("invalid %s id %q", what, raw)
	}
	return id, nil
}

func wantJSON(cmd *cobra.Command) bool {
	v, _ := cmd.Flags().GetBool("json")
	return v
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
