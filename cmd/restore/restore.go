// Package restore provides the archive restore command.
package restore

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mkarling/podkeeper/internal/conf"
	"github.com/mkarling/podkeeper/internal/core"
)

// Command creates and returns the restore command
func Command(settings *conf.Settings) *cobra.Command {
	var actor string

	cmd := &cobra.Command{
		Use:   "restore [archive id]",
		Short: "Restore an archived bundle into a new document",
		Long: `Restore unpacks an archive bundle, verifies its checksum and mints a
new document in status RESTORED. The original archived document id is never
reactivated.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := core.Build(settings)
			if err != nil {
				return err
			}
			defer c.Close()

			doc, err := c.Archiver.Restore(cmd.Context(), args[0], actor)
			if err != nil {
				return err
			}
			fmt.Printf("Archive %s restored as new document %s\n", args[0], doc.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&actor, "actor", "cli", "Who is restoring the archive")

	return cmd
}
