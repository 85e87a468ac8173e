package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"ledger/internal/log"
	"ledger/internal/storage"
)

func newMigrateCommand(env *environment) *cobra.Command {
	var statusOnly bool

	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			dialect := storage.Dialect(env.cfg.DataBackend)
			dsn := env.cfg.DSN()

			if !statusOnly {
				if err := storage.RunMigrations(dialect, dsn); err != nil {
					return err
				}
			}
			version, dirty, err := storage.MigrationVersion(dialect, dsn)
			if err != nil {
				return err
			}
			env.logger.WithComponent(log.ComponentCLI).Info("Schema version",
				"backend", string(dialect),
				"version", version,
				"dirty", dirty,
				log.FieldOperation, log.OpMigrate)
			fmt.Fprintf(cmd.OutOrStdout(), "version %d (dirty=%t)\n", version, dirty)
			return nil
		},
	}
	cmd.Flags().BoolVar(&statusOnly, "status", false, "only report the applied version")
	return cmd
}
