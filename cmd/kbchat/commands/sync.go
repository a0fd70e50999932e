package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/54b3r/kbchat-go/internal/logging"
)

// NewSyncCmd returns the sync command, which forces an index sync and can
// list recent sync runs from the journal.
func NewSyncCmd() *cobra.Command {
	var history int

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Sync the index with the content source",
		Long: `Sync attaches to (or bootstraps) the vector collection, then fetches
the content source and rebuilds the index if the corpus fingerprint changed.
With --history N it also prints the N most recent sync runs.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			st, err := buildStack(ctx, log, nil)
			if err != nil {
				return err
			}
			defer st.close()

			if err := st.engine.EnsureReady(ctx); err != nil {
				return fmt.Errorf("initialising index: %w", err)
			}
			outcome, err := st.engine.Refresh(ctx)
			if err != nil {
				return fmt.Errorf("refreshing index: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "sync complete: %s (collection %q)\n", outcome, st.collection)

			if history > 0 {
				if st.journal == nil {
					fmt.Fprintln(cmd.OutOrStdout(), "journal is disabled; no run history available")
					return nil
				}
				entries, err := st.journal.Recent(ctx, history)
				if err != nil {
					return fmt.Errorf("reading journal: %w", err)
				}
				if len(entries) == 0 {
					fmt.Fprintln(cmd.OutOrStdout(), "no recorded sync runs")
					return nil
				}
				fmt.Fprintln(cmd.OutOrStdout(), "\nRecent sync runs:")
				for _, e := range entries {
					line := fmt.Sprintf("  %s  %-12s docs=%d chunks=%d took=%s",
						e.CreatedAt.Format("2006-01-02 15:04:05"), e.Outcome, e.Documents, e.Chunks, e.Duration.Round(time.Millisecond))
					if e.Error != "" {
						line += "  error=" + e.Error
					}
					fmt.Fprintln(cmd.OutOrStdout(), line)
				}
			}
			return nil
		},
	}

	cmd.Flags().IntVar(&history, "history", 0, "print the N most recent sync runs from the journal")

	return cmd
}
