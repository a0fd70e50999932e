package commands

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/54b3r/kbchat-go/internal/logging"
)

// NewAskCmd returns the ask command, a one-shot question against the
// knowledge base without running the HTTP server.
func NewAskCmd() *cobra.Command {
	var showSources bool

	cmd := &cobra.Command{
		Use:   "ask [question]",
		Short: "Ask the knowledge base a single question",
		Long: `Ask runs one question through the full pipeline: the index is
synced if needed, relevant passages are retrieved, and a grounded answer is
generated. Useful for smoke-testing a deployment from the shell.`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			log := logging.New()
			ctx = logging.WithLogger(ctx, log)

			st, err := buildStack(ctx, log, nil)
			if err != nil {
				return err
			}
			defer st.close()

			question := strings.Join(args, " ")
			result, err := st.pipeline.Answer(ctx, question, nil)
			if err != nil {
				return fmt.Errorf("answering question: %w", err)
			}

			fmt.Fprintln(cmd.OutOrStdout(), result.Answer)

			if showSources && len(result.Context) > 0 {
				fmt.Fprintln(cmd.OutOrStdout(), "\nSources:")
				for _, p := range result.Context {
					title := p.Title
					if title == "" {
						title = p.DocumentID
					}
					fmt.Fprintf(cmd.OutOrStdout(), "  - %s (%d)\n", title, p.ID)
				}
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&showSources, "sources", false, "print the retrieved passages used as context")

	return cmd
}
