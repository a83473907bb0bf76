package cli

import (
	"fmt"
	"io"
	"log/slog"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"stemdeck.click/internal/history"
)

type historyOptions struct {
	since   string
	session string
	failed  bool
	limit   int
	summary bool
}

// newHistoryCommand creates the history command
func newHistoryCommand() *cobra.Command {
	var opts historyOptions

	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "Show recently loaded tracks",
		Long: `Show tracks loaded by earlier play and bounce runs, newest first,
including loads that failed and why.

Examples:
  stemdeck history
  stemdeck history --since yesterday
  stemdeck history --since "3 days ago" --failed
  stemdeck history --session 1b9d6bcd --summary`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runHistory(cmd, opts)
		},
	}

	historyCmd.Flags().StringVar(&opts.since, "since", "", "Only loads since this time (today, yesterday, week, month, or e.g. \"3 days ago\")")
	historyCmd.Flags().StringVar(&opts.session, "session", "", "Only loads from this session id")
	historyCmd.Flags().BoolVar(&opts.failed, "failed", false, "Only loads that failed")
	historyCmd.Flags().IntVar(&opts.limit, "limit", history.DefaultLimit, "Maximum number of loads to show")
	historyCmd.Flags().BoolVar(&opts.summary, "summary", false, "Show totals instead of individual loads")

	return historyCmd
}

func runHistory(cmd *cobra.Command, opts historyOptions) error {
	slog.Debug("running history command", "since", opts.since, "session", opts.session, "failed", opts.failed, "limit", opts.limit)

	cli := cliFromContext(cmd.Context())
	if cli == nil {
		return fmt.Errorf("CLI instance not found in context")
	}

	filter := history.Filter{
		SessionID:  opts.session,
		FailedOnly: opts.failed,
		Limit:      opts.limit,
	}
	if opts.since != "" {
		since, err := history.ParseSince(opts.since, time.Now())
		if err != nil {
			return err
		}
		filter.Since = &since
	}

	cli.initializeHistory()
	if cli.historyDB == nil {
		return fmt.Errorf("load history is not enabled or database is not available")
	}

	out := cmd.OutOrStdout()

	if opts.summary {
		summary, err := history.Summarize(cli.historyDB, filter)
		if err != nil {
			return err
		}
		printSummary(out, summary)
		return nil
	}

	records, err := history.Query(cli.historyDB, filter)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		fmt.Fprintln(out, "No track loads found.")
		return nil
	}

	for _, rec := range records {
		printRecord(out, rec)
	}
	return nil
}

func printRecord(w io.Writer, rec history.LoadRecord) {
	session := rec.SessionID
	if len(session) > 8 {
		session = session[:8]
	}
	stamp := rec.Time.Local().Format("2006-01-02 15:04:05")

	if rec.Failed() {
		fmt.Fprintf(w, "%s  %s  FAILED  %s: %s\n", stamp, session, rec.Path, rec.Error)
		return
	}
	fmt.Fprintf(w, "%s  %s  %-4s  %s  %dch %dHz %s\n",
		stamp, session, rec.Format, rec.Path, rec.Channels, rec.SampleRate, rec.Duration)
}

func printSummary(w io.Writer, summary *history.Summary) {
	fmt.Fprintf(w, "Loads:    %d\n", summary.Loads)
	fmt.Fprintf(w, "Failures: %d\n", summary.Failures)
	fmt.Fprintf(w, "Sessions: %d\n", summary.Sessions)

	formats := make([]string, 0, len(summary.Formats))
	for format := range summary.Formats {
		formats = append(formats, format)
	}
	sort.Strings(formats)
	for _, format := range formats {
		fmt.Fprintf(w, "  %-5s %d\n", format, summary.Formats[format])
	}
}
