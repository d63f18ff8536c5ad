package cli

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/LeJamon/bookkeep/internal/engine"
	"github.com/LeJamon/bookkeep/internal/ledger/transaction"
	"github.com/LeJamon/bookkeep/internal/storage"
)

var (
	rollupLedgerID string
	rollupParentID string
	rollupBatch    int
)

// rollupCmd folds every persisted, not-yet-rolled-up Transaction on a
// ledger into a new TxRollup, the operation a cron-scheduled caller (or an
// operator by hand) runs periodically per the engine's data-flow in
// spec.md: "periodically TxRollup.prepare folds a batch of Transactions".
var rollupCmd = &cobra.Command{
	Use:   "rollup",
	Short: "Fold pending transactions on a ledger into a new TxRollup",
	RunE:  runRollup,
}

func init() {
	rootCmd.AddCommand(rollupCmd)
	rollupCmd.Flags().StringVar(&rollupLedgerID, "ledger", "", "ledger id to roll up (required)")
	rollupCmd.Flags().StringVar(&rollupParentID, "parent", "", "parent rollup id, if any")
	rollupCmd.Flags().IntVar(&rollupBatch, "batch", 0, "max transactions to include (0 = config default)")
	rollupCmd.MarkFlagRequired("ledger")
}

func runRollup(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("loading configuration: %w", err)
	}
	batch := rollupBatch
	if batch <= 0 {
		batch = cfg.Rollup.BatchSize
	}

	ctx := context.Background()
	eng, err := engine.Open(ctx, cfg)
	if err != nil {
		return fmt.Errorf("opening engine: %w", err)
	}

	txns, err := pendingTransactions(ctx, eng, rollupLedgerID, batch)
	if err != nil {
		return err
	}
	if len(txns) == 0 {
		if !quiet {
			fmt.Println("no pending transactions to roll up")
		}
		return nil
	}

	r, err := eng.Rollups.Prepare(ctx, txns, rollupParentID, nil)
	if err != nil {
		return fmt.Errorf("preparing rollup: %w", err)
	}
	if !quiet {
		fmt.Printf("rollup %s: height=%d txns=%d\n", r.ID, r.Height, len(txns))
	}
	return nil
}

// pendingTransactions loads up to limit Transactions touching ledgerID
// that aren't already referenced by a persisted TxRollup.
func pendingTransactions(ctx context.Context, eng *engine.Engine, ledgerID string, limit int) ([]*transaction.Transaction, error) {
	rows, err := eng.Backend.Query(transaction.TableTransactions, nil).Contains("ledger_ids", ledgerID).Get(ctx)
	if err != nil {
		return nil, storage.WrapErr("cli.rollup", err)
	}
	rolled, err := alreadyRolledUp(ctx, eng)
	if err != nil {
		return nil, err
	}

	var out []*transaction.Transaction
	for _, row := range rows {
		if limit > 0 && len(out) >= limit {
			break
		}
		t, err := transaction.FromRow(row, eng.Serializer)
		if err != nil {
			return nil, err
		}
		if rolled[t.ID] {
			continue
		}
		out = append(out, t)
	}
	return out, nil
}

func alreadyRolledUp(ctx context.Context, eng *engine.Engine) (map[string]bool, error) {
	rows, err := eng.Backend.Query("tx_rollups", nil).Get(ctx)
	if err != nil {
		return nil, storage.WrapErr("cli.rollup", err)
	}
	seen := map[string]bool{}
	for _, row := range rows {
		csv, _ := row["tx_ids"].(string)
		if csv == "" {
			continue
		}
		for _, id := range strings.Split(csv, ",") {
			seen[id] = true
		}
	}
	return seen, nil
}
