// Package cleanup provides the retention sweep command.
package cleanup

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/mkarling/podkeeper/internal/conf"
	"github.com/mkarling/podkeeper/internal/core"
)

// Command creates and returns the cleanup command
func Command(settings *conf.Settings) *cobra.Command {
	var (
		dryRun bool
		limit  int
	)

	cmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Run the retention sweep over expired documents",
		Long: `Cleanup evaluates every retention policy against stored documents and
applies the due lifecycle transition per document: archive, soft delete or
hard delete. Per-document failures are reported without aborting the run.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := core.Build(settings)
			if err != nil {
				return err
			}
			defer c.Close()

			result, err := c.Retention.RunCleanup(cmd.Context(), dryRun, limit)
			if err != nil {
				return err
			}

			verb := "applied"
			if result.DryRun {
				verb = "would apply"
			}
			fmt.Printf("Evaluated %d documents in %s, %s %d actions, skipped %d\n",
				result.Evaluated, result.Duration.Round(time.Millisecond), verb, len(result.Applied), result.Skipped)
			for _, item := range result.Applied {
				fmt.Printf("  %s %s (policy %s)\n", item.Action, item.DocumentID, item.PolicyID)
			}
			for _, failure := range result.Failures {
				fmt.Printf("  FAILED %s %s: %s\n", failure.Action, failure.DocumentID, failure.Error)
			}
			if len(result.Failures) > 0 {
				return fmt.Errorf("%d of %d actions failed", len(result.Failures), result.Evaluated)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&dryRun, "dry-run", false, "Report due actions without applying them")
	cmd.Flags().IntVar(&limit, "limit", 0, "Maximum documents per run across all policies (0 uses the configured limit)")

	return cmd
}
