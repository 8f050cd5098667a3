// Package cmd implements the modhub command line.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

// Version information
var (
	Version = "dev"
	Commit  = "none"
	Date    = "unknown"
)

// OsExit is replaced in tests.
var OsExit = os.Exit

// PrintVersion returns the version line.
func PrintVersion() string {
	return fmt.Sprintf("modhub v%s (commit: %s, built on: %s)", Version, Commit, Date)
}

// NewRootCommand creates the root command for the modhub binary.
func NewRootCommand() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "modhub",
		Short: "modhub - dynamic module registry and router",
		Long: `modhub runs the module registry: feature modules register at runtime,
declare dependencies on each other and are served under /api/v{n}/modules/{namespace}.`,
		Version:       PrintVersion(),
		SilenceUsage:  true,
		SilenceErrors: true,
		Run: func(cmd *cobra.Command, args []string) {
			_ = cmd.Help()
		},
	}
	cmd.SetVersionTemplate("{{.Version}}\n")
	cmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Configuration file (.yaml, .yml or .toml)")

	cmd.AddCommand(NewServeCommand(&configPath))
	cmd.AddCommand(NewValidateCommand(&configPath))
	cmd.AddCommand(NewSignCommand(&configPath))
	cmd.AddCommand(NewConfigCommand())
	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintln(cmd.OutOrStdout(), PrintVersion())
		},
	})

	return cmd
}
