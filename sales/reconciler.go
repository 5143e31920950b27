/*
reconciler.go - Preview/commit split for bulk sales import

PURPOSE:
  Preview runs the full analysis without writing anything. Commit
  re-runs the SAME analysis inside one transaction (a preview may be
  minutes stale by the time the user confirms) and inserts only the
  rows that still pass, reporting the rest as an ignored count.

FAILURE SEMANTICS:
  Commit is best-effort partial insert. The one hard boundary: when
  ZERO rows are insertable the whole commit is rejected with a
  conflict carrying the full analysis, so the UI can show exactly why
  nothing went in. This partial-success design is deliberate and is
  the only exception to the engine's all-or-nothing transactions.
*/
package sales

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/hidrapink/cycle-engine/cycle"
	"github.com/hidrapink/cycle-engine/points"
)

// Reconciler turns raw bulk input into persisted sale records.
type Reconciler struct {
	Store    cycle.TxStore
	Importer *Importer
	Logger   *slog.Logger
}

func NewReconciler(store cycle.TxStore, ledger *points.Ledger, logger *slog.Logger) *Reconciler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Reconciler{Store: store, Importer: NewImporter(ledger), Logger: logger}
}

// CommitResult reports what a confirmed import actually inserted.
type CommitResult struct {
	Inserted int                `json:"inserted"`
	Ignored  int                `json:"ignored"`
	Records  []cycle.SaleRecord `json:"records"`
	Summary  Summary            `json:"summary"`
	Analysis *Analysis          `json:"analysis"`
}

// NoImportableRowsError carries the analysis of a commit in which no
// row was insertable.
type NoImportableRowsError struct {
	Analysis *Analysis
}

func (e *NoImportableRowsError) Error() string {
	return fmt.Sprintf("no importable rows among %d", e.Analysis.Summary.TotalCount)
}

func (e *NoImportableRowsError) Unwrap() error { return cycle.ErrNoImportableRows }

// Preview analyzes a batch without mutating anything.
func (r *Reconciler) Preview(ctx context.Context, rawText string) (*Analysis, error) {
	return r.Importer.Analyze(ctx, r.Store, rawText)
}

// Commit re-analyzes the batch inside one transaction and inserts the
// rows that pass. Rows with errors are excluded and counted as
// ignored; zero insertable rows rejects the whole commit.
func (r *Reconciler) Commit(ctx context.Context, rawText string) (*CommitResult, error) {
	var result *CommitResult

	err := r.Store.WithTx(ctx, func(tx cycle.Store) error {
		// Re-run against the transaction's view: previews race with
		// other writers, this analysis cannot.
		analysis, err := r.Importer.Analyze(ctx, tx, rawText)
		if err != nil {
			return err
		}

		var valid []Row
		for _, row := range analysis.Rows {
			if row.Valid() {
				valid = append(valid, row)
			}
		}
		if len(valid) == 0 {
			return &NoImportableRowsError{Analysis: analysis}
		}

		result = &CommitResult{
			Ignored:  analysis.Summary.TotalCount - len(valid),
			Summary:  analysis.Summary,
			Analysis: analysis,
		}
		for _, row := range valid {
			sale, err := tx.CreateSale(ctx, &cycle.SaleRecord{
				InfluencerID: row.InfluencerID,
				OrderNumber:  row.OrderNumber,
				Coupon:       row.Coupon,
				Date:         *row.Date,
				Points:       row.Points,
				Value:        row.Value,
				Items:        row.Items,
			})
			if err != nil {
				return fmt.Errorf("insert order %q: %w", row.OrderNumber, err)
			}
			result.Records = append(result.Records, *sale)
		}
		result.Inserted = len(result.Records)
		return nil
	})
	if err != nil {
		return nil, err
	}

	r.Logger.Info("sales import committed",
		"inserted", result.Inserted, "ignored", result.Ignored,
		"total_points", result.Summary.TotalPoints)
	return result, nil
}
