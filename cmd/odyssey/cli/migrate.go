package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/odyssey-erp/odyssey-quotes/internal/snapshots"
)

// DiscountMigrator rewrites legacy discount configurations.
type DiscountMigrator interface {
	MigrateLegacy(ctx context.Context, dryRun bool) ([]snapshots.MigrationResult, error)
}

// MigrateOptions defines the flags of the migrate-discounts command.
type MigrateOptions struct {
	DryRun     bool
	JSONOutput bool
	Stdout     io.Writer
	Stderr     io.Writer
}

// MigrateSummary is the JSON report of migrate-discounts.
type MigrateSummary struct {
	DryRun bool                        `json:"dry_run"`
	Count  int                         `json:"count"`
	Rows   []snapshots.MigrationResult `json:"rows"`
}

// MigrateDiscountsCommand runs the legacy discount migration and prints a per-row report.
func MigrateDiscountsCommand(ctx context.Context, migrator DiscountMigrator, opts MigrateOptions) int {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	if migrator == nil {
		_, _ = fmt.Fprintln(opts.Stderr, "migrate-discounts: migrator not configured")
		return 1
	}
	results, err := migrator.MigrateLegacy(ctx, opts.DryRun)
	if err != nil {
		// Rows before the failure were already rewritten.
		renderMigrateHuman(opts.Stdout, opts.DryRun, results)
		_, _ = fmt.Fprintf(opts.Stderr, "migrate-discounts: %v\n", err)
		return 1
	}
	if opts.JSONOutput {
		if results == nil {
			results = []snapshots.MigrationResult{}
		}
		summary := MigrateSummary{DryRun: opts.DryRun, Count: len(results), Rows: results}
		if err := json.NewEncoder(opts.Stdout).Encode(summary); err != nil {
			_, _ = fmt.Fprintf(opts.Stderr, "migrate-discounts: encode json: %v\n", err)
			return 1
		}
		return 0
	}
	renderMigrateHuman(opts.Stdout, opts.DryRun, results)
	return 0
}

func renderMigrateHuman(out io.Writer, dryRun bool, results []snapshots.MigrationResult) {
	if len(results) == 0 {
		_, _ = fmt.Fprintln(out, "No legacy discount configurations found.")
		return
	}
	verb := "migrated"
	if dryRun {
		verb = "would migrate"
	}
	for _, r := range results {
		_, _ = fmt.Fprintf(out, "  #%d %s: %s (mode %s)\n", r.ID, r.Name, verb, r.Mode)
	}
	_, _ = fmt.Fprintf(out, "%d snapshot(s) %s.\n", len(results), verb)
}
