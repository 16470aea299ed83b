// Package document provides document lifecycle commands: status, delete,
// undelete and routing overrides.
package document

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/mkarling/podkeeper/internal/conf"
	"github.com/mkarling/podkeeper/internal/core"
	"github.com/mkarling/podkeeper/internal/routing"
)

// Command creates and returns the document command
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "document",
		Short: "Inspect and transition documents",
		RunE: func(cmd *cobra.Command, args []string) error {
			return fmt.Errorf("please specify a subcommand: status, delete, undelete, force-send or reject")
		},
	}

	cmd.AddCommand(statusCommand(settings))
	cmd.AddCommand(deleteCommand(settings))
	cmd.AddCommand(undeleteCommand(settings))
	cmd.AddCommand(forceSendCommand(settings))
	cmd.AddCommand(rejectCommand(settings))
	return cmd
}

func statusCommand(settings *conf.Settings) *cobra.Command {
	return &cobra.Command{
		Use:   "status [document id]",
		Short: "Show a document's current lifecycle status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := core.Build(settings)
			if err != nil {
				return err
			}
			defer c.Close()

			doc, err := c.Store.GetDocument(args[0])
			if err != nil {
				return err
			}
			fmt.Printf("Document %s\n", doc.ID)
			fmt.Printf("  status:     %s\n", doc.Status)
			fmt.Printf("  supplier:   %s\n", doc.Supplier)
			fmt.Printf("  created:    %s\n", doc.CreatedAt.Format(time.RFC3339))
			if doc.MatchedJobID != "" {
				fmt.Printf("  matched:    job %s (%s)\n", doc.MatchedJobID, doc.MatchedJobRef)
			}
			if doc.PreDeleteStatus != "" {
				fmt.Printf("  pre-delete: %s\n", doc.PreDeleteStatus)
			}
			return nil
		},
	}
}

func deleteCommand(settings *conf.Settings) *cobra.Command {
	var (
		hard  bool
		actor string
	)

	cmd := &cobra.Command{
		Use:   "delete [document id]",
		Short: "Soft-delete a document, or hard-delete one pending deletion",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := core.Build(settings)
			if err != nil {
				return err
			}
			defer c.Close()

			if hard {
				if err := c.Archiver.HardDelete(cmd.Context(), args[0], actor); err != nil {
					return err
				}
				fmt.Printf("Document %s deleted\n", args[0])
				return nil
			}
			if err := c.Archiver.SoftDelete(cmd.Context(), args[0], actor); err != nil {
				return err
			}
			fmt.Printf("Document %s is pending deletion\n", args[0])
			return nil
		},
	}

	cmd.Flags().BoolVar(&hard, "hard", false, "Irreversibly delete a PENDING_DELETE document")
	cmd.Flags().StringVar(&actor, "actor", "cli", "Who is deleting the document")

	return cmd
}

func undeleteCommand(settings *conf.Settings) *cobra.Command {
	var actor string

	cmd := &cobra.Command{
		Use:   "undelete [document id]",
		Short: "Return a pending-delete document to its pre-delete status",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := core.Build(settings)
			if err != nil {
				return err
			}
			defer c.Close()

			if err := c.Archiver.Undelete(cmd.Context(), args[0], actor); err != nil {
				return err
			}
			doc, err := c.Store.GetDocument(args[0])
			if err != nil {
				return err
			}
			fmt.Printf("Document %s restored to status %s\n", doc.ID, doc.Status)
			return nil
		},
	}

	cmd.Flags().StringVar(&actor, "actor", "cli", "Who is undeleting the document")

	return cmd
}

func forceSendCommand(settings *conf.Settings) *cobra.Command {
	var (
		reason string
		actor  string
	)

	cmd := &cobra.Command{
		Use:   "force-send [document id]",
		Short: "Override routing and send a review document out",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := core.Build(settings)
			if err != nil {
				return err
			}
			defer c.Close()

			doc, err := c.Store.GetDocument(args[0])
			if err != nil {
				return err
			}
			decision := c.Routing.ForceSend(routing.DocumentInput{
				ID:       doc.ID,
				Supplier: doc.Supplier,
			}, reason)
			if err := c.Machine.ApplyRouting(cmd.Context(), doc.ID, decision, actor); err != nil {
				return err
			}
			fmt.Printf("Document %s force-sent\n", doc.ID)
			return nil
		},
	}

	cmd.Flags().StringVarP(&reason, "reason", "r", "", "Why routing is being overridden")
	cmd.Flags().StringVar(&actor, "actor", "cli", "Who is overriding routing")
	_ = cmd.MarkFlagRequired("reason")

	return cmd
}

func rejectCommand(settings *conf.Settings) *cobra.Command {
	var (
		reason string
		actor  string
	)

	cmd := &cobra.Command{
		Use:   "reject [document id]",
		Short: "Reject a review document into quarantine",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := core.Build(settings)
			if err != nil {
				return err
			}
			defer c.Close()

			doc, err := c.Store.GetDocument(args[0])
			if err != nil {
				return err
			}
			decision := c.Routing.Reject(routing.DocumentInput{
				ID:       doc.ID,
				Supplier: doc.Supplier,
			}, reason)
			if err := c.Machine.ApplyRouting(cmd.Context(), doc.ID, decision, actor); err != nil {
				return err
			}
			fmt.Printf("Document %s rejected\n", doc.ID)
			return nil
		},
	}

	cmd.Flags().StringVarP(&reason, "reason", "r", "", "Why the document is being rejected")
	cmd.Flags().StringVar(&actor, "actor", "cli", "Who is rejecting the document")
	_ = cmd.MarkFlagRequired("reason")

	return cmd
}
