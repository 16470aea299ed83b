// Package hold provides legal hold management commands.
package hold

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/mkarling/podkeeper/internal/conf"
	"github.com/mkarling/podkeeper/internal/core"
)

// Command creates and returns the hold command
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "hold",
		Short: "Manage legal holds",
		RunE: func(cmd *cobra.Command, args []string) error {
			return fmt.Errorf("please specify a subcommand: create, release or list")
		},
	}

	cmd.AddCommand(createCommand(settings))
	cmd.AddCommand(releaseCommand(settings))
	cmd.AddCommand(listCommand(settings))
	return cmd
}

func createCommand(settings *conf.Settings) *cobra.Command {
	var (
		reason    string
		createdBy string
		expires   string
	)

	cmd := &cobra.Command{
		Use:   "create [document id]",
		Short: "Place a legal hold on a document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var expiresAt *time.Time
			if expires != "" {
				t, err := time.Parse(time.RFC3339, expires)
				if err != nil {
					return fmt.Errorf("invalid expiry %q, want RFC 3339: %w", expires, err)
				}
				expiresAt = &t
			}

			c, err := core.Build(settings)
			if err != nil {
				return err
			}
			defer c.Close()

			hold, err := c.Holds.CreateHold(cmd.Context(), args[0], reason, createdBy, expiresAt)
			if err != nil {
				return err
			}
			fmt.Printf("Hold %s placed on document %s\n", hold.ID, hold.DocumentID)
			return nil
		},
	}

	cmd.Flags().StringVarP(&reason, "reason", "r", "", "Why the hold is being placed")
	cmd.Flags().StringVar(&createdBy, "created-by", "cli", "Who is placing the hold")
	cmd.Flags().StringVar(&expires, "expires", "", "Optional expiry timestamp (RFC 3339)")
	_ = cmd.MarkFlagRequired("reason")

	return cmd
}

func releaseCommand(settings *conf.Settings) *cobra.Command {
	var (
		reason     string
		releasedBy string
	)

	cmd := &cobra.Command{
		Use:   "release [hold id]",
		Short: "Release an active legal hold",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := core.Build(settings)
			if err != nil {
				return err
			}
			defer c.Close()

			hold, err := c.Holds.ReleaseHold(cmd.Context(), args[0], releasedBy, reason)
			if err != nil {
				return err
			}
			fmt.Printf("Hold %s on document %s released\n", hold.ID, hold.DocumentID)
			return nil
		},
	}

	cmd.Flags().StringVarP(&reason, "reason", "r", "", "Why the hold is being released")
	cmd.Flags().StringVar(&releasedBy, "released-by", "cli", "Who is releasing the hold")
	_ = cmd.MarkFlagRequired("reason")

	return cmd
}

func listCommand(settings *conf.Settings) *cobra.Command {
	return &cobra.Command{
		Use:   "list [document id]",
		Short: "List the holds recorded for a document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := core.Build(settings)
			if err != nil {
				return err
			}
			defer c.Close()

			holds, err := c.Holds.ListHolds(args[0])
			if err != nil {
				return err
			}
			if len(holds) == 0 {
				fmt.Println("No holds recorded")
				return nil
			}
			protected, err := c.Holds.IsProtected(args[0])
			if err != nil {
				return err
			}
			fmt.Printf("Document %s, currently protected: %v\n", args[0], protected)
			for i := range holds {
				h := &holds[i]
				line := fmt.Sprintf("  %s %s created %s by %s: %s",
					h.ID, h.Status, h.CreatedAt.Format(time.RFC3339), h.CreatedBy, h.Reason)
				if h.ExpiresAt != nil {
					line += ", expires " + h.ExpiresAt.Format(time.RFC3339)
				}
				fmt.Println(line)
			}
			return nil
		},
	}
}
