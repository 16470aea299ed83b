// Package archive provides the archive and verify commands.
package archive

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mkarling/podkeeper/internal/conf"
	"github.com/mkarling/podkeeper/internal/core"
)

// Command creates and returns the archive command
func Command(settings *conf.Settings) *cobra.Command {
	var actor string

	cmd := &cobra.Command{
		Use:   "archive [document id]",
		Short: "Bundle a document and transition it to ARCHIVED",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := core.Build(settings)
			if err != nil {
				return err
			}
			defer c.Close()

			rec, err := c.Archiver.Archive(cmd.Context(), args[0], actor)
			if err != nil {
				return err
			}
			fmt.Printf("Archived document %s as %s (%s)\n", args[0], rec.ID, rec.ArchiveLocation)
			fmt.Printf("Manifest checksum %s\n", rec.Checksum)
			return nil
		},
	}

	cmd.Flags().StringVar(&actor, "actor", "cli", "Who is archiving the document")

	cmd.AddCommand(verifyCommand(settings))
	return cmd
}

func verifyCommand(settings *conf.Settings) *cobra.Command {
	return &cobra.Command{
		Use:   "verify [archive id]",
		Short: "Re-read a bundle and verify its manifest checksum",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := core.Build(settings)
			if err != nil {
				return err
			}
			defer c.Close()

			if err := c.Archiver.Verify(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Printf("Archive %s verified\n", args[0])
			return nil
		},
	}
}
