package cli

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/eshaffer321/reconciler/internal/application/reconcile"
	"github.com/eshaffer321/reconciler/internal/application/service"
	"github.com/eshaffer321/reconciler/internal/domain/records"
	"github.com/eshaffer321/reconciler/internal/domain/resolver"
	"github.com/eshaffer321/reconciler/internal/infrastructure/storage"
)

const rule = 60

// PrintRunSummary prints one user's reconciliation result
func PrintRunSummary(w io.Writer, result *reconcile.Result) {
	fmt.Fprintln(w, strings.Repeat("-", rule))
	fmt.Fprintf(w, "User: %s | Run: %s\n", result.UserID, orDash(result.RunID))
	fmt.Fprintf(w, "Summary: Matched=%d Created=%d Conflicts=%d Skipped=%d Unmatched=%d Processed=%d\n",
		result.Matched,
		result.Created,
		result.ConflictsResolved,
		result.Skipped,
		result.Unmatched,
		result.TotalProcessed)

	for _, t := range records.AllEntityTypes {
		tr, ok := result.ByType[t]
		if !ok || tr.TotalProcessed == 0 {
			continue
		}
		fmt.Fprintf(w, "  %-8s matched=%d created=%d skipped=%d unmatched=%d\n",
			t, tr.Matched, tr.Created, tr.Skipped, tr.Unmatched)
	}

	if len(result.Strategies) > 0 {
		names := make([]string, 0, len(result.Strategies))
		for s := range result.Strategies {
			names = append(names, string(s))
		}
		sort.Strings(names)
		parts := make([]string, 0, len(names))
		for _, name := range names {
			parts = append(parts, fmt.Sprintf("%s=%d", name, result.Strategies[resolver.Strategy(name)]))
		}
		fmt.Fprintf(w, "Strategies: %s\n", strings.Join(parts, " "))
	}

	// Print errors if any
	if result.HasErrors() {
		fmt.Fprintln(w, "\nErrors:")
		for _, err := range result.Errors {
			fmt.Fprintf(w, "  - %v\n", err)
		}
	}
}

// PrintStatus prints a user's pending counts
func PrintStatus(w io.Writer, status *service.Status) {
	last := "never"
	if status.LastReconciledAt != nil {
		last = status.LastReconciledAt.Local().Format(time.DateTime)
	}
	state := "pending"
	if status.IsReconciled {
		state = "reconciled"
	}
	fmt.Fprintf(w, "User: %s | Status: %s | Last run: %s\n", status.UserID, state, last)
	fmt.Fprintf(w, "Records: %d total, %d pending\n", status.TotalItems, status.PendingItems)
	for _, t := range records.AllEntityTypes {
		if n := status.PendingByType[t]; n > 0 {
			fmt.Fprintf(w, "  %-8s %d pending\n", t, n)
		}
	}
}

// PrintLog prints log entries as a table, newest first
func PrintLog(w io.Writer, entries []storage.LogEntry) {
	if len(entries) == 0 {
		fmt.Fprintln(w, "No log entries.")
		return
	}
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "TIME\tTYPE\tACTION\tRECORD\tEXTERNAL\tCONFIDENCE\tREASON")
	for _, e := range entries {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			e.CreatedAt.Local().Format(time.DateTime),
			e.EntityType,
			e.Action,
			orDash(e.ManualID),
			orDash(e.ExternalID),
			orDash(e.Confidence),
			e.Reason)
	}
	_ = tw.Flush()
}

// PrintRecord prints the key fields of a manual record
func PrintRecord(w io.Writer, rec *records.ManualRecord) {
	fmt.Fprintf(w, "%s %s (%s) source=%s reconciled=%t\n",
		rec.Type, rec.ID, rec.Label(), rec.DataSource, rec.Reconciled)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
