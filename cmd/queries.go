package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/kevinvandever/secureask/internal/model"
	"github.com/kevinvandever/secureask/internal/monitoring"
	"github.com/kevinvandever/secureask/internal/store"
)

var queriesCmd = &cobra.Command{
	Use:   "queries",
	Short: "Inspect query history",
	Long:  "Commands for listing, viewing, and summarizing processed queries.",
}

// -- queries list --

var queriesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List processed queries",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		status, _ := cmd.Flags().GetString("status")
		user, _ := cmd.Flags().GetString("user")
		limit, _ := cmd.Flags().GetInt("limit")

		filter := store.QueryFilter{
			Status: model.QueryStatus(status),
			UserID: user,
			Limit:  limit,
		}

		entries, err := st.ListQueries(ctx, filter)
		if err != nil {
			return eris.Wrap(err, "queries list")
		}

		if len(entries) == 0 {
			fmt.Fprintln(os.Stderr, "No queries found.")
			return nil
		}

		formatQueriesList(os.Stdout, entries)
		return nil
	},
}

// -- queries show --

var queriesShowCmd = &cobra.Command{
	Use:   "show <query-id>",
	Short: "Show full details of a query",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		entry, err := st.GetQuery(ctx, args[0])
		if err != nil {
			return eris.Wrap(err, "queries show")
		}

		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(entry)
	},
}

// -- queries stats --

var queriesStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show aggregate query statistics",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		st, err := initStore(ctx)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck
		if err := st.Migrate(ctx); err != nil {
			return err
		}

		lookback, _ := cmd.Flags().GetInt("lookback")

		snap, err := monitoring.NewCollector(st).Collect(ctx, lookback)
		if err != nil {
			return eris.Wrap(err, "queries stats")
		}

		formatQueryStats(os.Stdout, snap)

		alerts := monitoring.NewAlerter(cfg.Monitoring).Evaluate(snap)
		for _, a := range alerts {
			fmt.Fprintf(os.Stderr, "ALERT [%s] %s\n", a.Severity, a.Message)
		}
		return nil
	},
}

func init() {
	queriesListCmd.Flags().String("status", "", "filter by query status (processing, completed, failed)")
	queriesListCmd.Flags().String("user", "", "filter by user ID")
	queriesListCmd.Flags().Int("limit", 50, "max number of queries to display")

	queriesStatsCmd.Flags().Int("lookback", 24, "time window for stats in hours")

	queriesCmd.AddCommand(queriesListCmd)
	queriesCmd.AddCommand(queriesShowCmd)
	queriesCmd.AddCommand(queriesStatsCmd)
	rootCmd.AddCommand(queriesCmd)
}

// formatQueriesList writes a tabular list of query log entries to w.
func formatQueriesList(out io.Writer, entries []model.QueryLogEntry) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "ID\tQUESTION\tSTATUS\tCITATIONS\tCREATED\tTIME")
	_, _ = fmt.Fprintln(w, "--\t--------\t------\t---------\t-------\t----")

	for _, e := range entries {
		question := e.Question
		if len(question) > 40 {
			question = question[:37] + "..."
		}

		elapsed := "-"
		if e.ProcessingTimeMS > 0 {
			elapsed = fmt.Sprintf("%dms", e.ProcessingTimeMS)
		}

		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%s\t%s\n",
			truncateID(e.ID),
			question,
			e.Status,
			e.CitationCount,
			e.CreatedAt.Format("2006-01-02 15:04"),
			elapsed,
		)
	}
	_ = w.Flush()
}

// formatQueryStats writes a metrics snapshot to w.
func formatQueryStats(out io.Writer, snap *monitoring.MetricsSnapshot) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "Window:\tlast %dh\n", snap.LookbackHours)
	_, _ = fmt.Fprintf(w, "Total queries:\t%d\n", snap.QueriesTotal)
	_, _ = fmt.Fprintf(w, "Completed:\t%d\n", snap.QueriesCompleted)
	_, _ = fmt.Fprintf(w, "Failed:\t%d\n", snap.QueriesFailed)
	_, _ = fmt.Fprintf(w, "Processing:\t%d\n", snap.QueriesProcessing)
	if snap.QueryFailRate > 0 {
		_, _ = fmt.Fprintf(w, "Failure rate:\t%.1f%%\n", snap.QueryFailRate*100)
	}
	if snap.AvgProcessingMS > 0 {
		_, _ = fmt.Fprintf(w, "Avg processing:\t%.0fms\n", snap.AvgProcessingMS)
	}
	if snap.AvgCitations > 0 {
		_, _ = fmt.Fprintf(w, "Avg citations:\t%.1f\n", snap.AvgCitations)
	}
	_, _ = fmt.Fprintf(w, "Cache entries:\t%d live, %d expired\n", snap.CacheLiveEntries, snap.CacheExpiredEntries)
	_ = w.Flush()
}

// truncateID returns the first 8 characters of a UUID for compact display.
func truncateID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
