package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/telhawk-systems/feedgen/internal/repository"
)

var migrateCmd = &cobra.Command{
	Use:       "migrate [up|down]",
	Short:     "Apply or roll back the database schema",
	Args:      cobra.MatchAll(cobra.MaximumNArgs(1), cobra.OnlyValidArgs),
	ValidArgs: []string{repository.MigrateUp, repository.MigrateDown},
	RunE: func(cmd *cobra.Command, args []string) error {
		direction := repository.MigrateUp
		if len(args) == 1 {
			direction = args[0]
		}

		changed, err := repository.Migrate(cfg.Database.ConnString(), direction)
		if err != nil {
			return err
		}
		if changed {
			fmt.Fprintf(cmd.OutOrStdout(), "migrations applied (%s)\n", direction)
		} else {
			fmt.Fprintln(cmd.OutOrStdout(), "no change")
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(migrateCmd)
}
