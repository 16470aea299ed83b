package cmd

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	archivecmd "github.com/mkarling/podkeeper/cmd/archive"
	"github.com/mkarling/podkeeper/cmd/cleanup"
	"github.com/mkarling/podkeeper/cmd/document"
	"github.com/mkarling/podkeeper/cmd/hold"
	"github.com/mkarling/podkeeper/cmd/process"
	"github.com/mkarling/podkeeper/cmd/restore"
	"github.com/mkarling/podkeeper/internal/conf"
)

// RootCommand creates and returns the root command
func RootCommand(settings *conf.Settings) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "podkeeper",
		Short: "Proof-of-delivery document matching, routing and compliance engine",
	}

	setupFlags(rootCmd, settings)

	subcommands := []*cobra.Command{
		process.Command(settings),
		cleanup.Command(settings),
		hold.Command(settings),
		archivecmd.Command(settings),
		restore.Command(settings),
		document.Command(settings),
	}
	rootCmd.AddCommand(subcommands...)

	return rootCmd
}

// setupFlags configures the global flags for the root command
func setupFlags(rootCmd *cobra.Command, settings *conf.Settings) {
	rootCmd.PersistentFlags().BoolVarP(&settings.Main.Debug, "debug", "d", viper.GetBool("main.debug"), "Enable debug output")

	if err := viper.BindPFlags(rootCmd.PersistentFlags()); err != nil {
		cobra.CheckErr(err)
	}
}
