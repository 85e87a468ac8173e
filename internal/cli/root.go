package cli

import (
	"github.com/spf13/cobra"

	"ledger/internal/config"
	"ledger/internal/log"
)

// environment is what every subcommand gets after the root pre-run.
type environment struct {
	cfg    *config.Config
	logger *log.Logger
}

// NewRootCommand creates the root CLI command with all subcommands registered.
func NewRootCommand(version string) *cobra.Command {
	env := &environment{}
	var envFile string

	rootCmd := &cobra.Command{
		Use:     "ledger",
		Short:   "Envelope budgeting ledger",
		Version: version,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		SilenceUsage: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := LoadEnvFile(envFile); err != nil {
				return err
			}
			cfg, err := LoadAndValidateConfig()
			if err != nil {
				return err
			}
			env.cfg = cfg
			env.logger = SetupLogger(cfg, cmd.OutOrStdout())
			return nil
		},
	}
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", "", "load environment variables from this file (default .env when present)")

	rootCmd.AddCommand(
		newServeCommand(env),
		newWorkerCommand(env),
		newMigrateCommand(env),
		newRecomputeCommand(env),
	)
	return rootCmd
}
