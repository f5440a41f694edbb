// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"context"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/evlog/migrator/cmd/flags"
	"github.com/evlog/migrator/pkg/engine"
	"github.com/evlog/migrator/pkg/migration"
)

// Version is the engine's version string, overridden at build time.
var Version = "development"

// registry holds the step chain the hosting application wires in; this
// engine never supplies concrete migration steps itself (spec.md §1).
var registry = migration.NewRegistry()

func init() {
	viper.SetEnvPrefix("EVLOG")
	viper.AutomaticEnv()

	flags.PgConnectionFlags(rootCmd)
	rootCmd.PersistentFlags().Int("target", 1, "Target migration index")
	rootCmd.PersistentFlags().Bool("finalize", false, "Finalize immediately after migrating")
	viper.BindPFlag("TARGET", rootCmd.PersistentFlags().Lookup("target"))
	viper.BindPFlag("FINALIZE", rootCmd.PersistentFlags().Lookup("finalize"))
}

var rootCmd = &cobra.Command{
	Use:          "evlog-migrator",
	SilenceUsage: true,
	Version:      Version,
}

// NewEngine opens an Engine using the flags bound on cmd's root.
func NewEngine(ctx context.Context) (*engine.Engine, error) {
	return engine.New(ctx, flags.PostgresURL(), flags.Schema(), engine.WithLogger(migration.NewLogger()))
}

// Execute runs the root command with the given step registry. Callers
// embedding this engine supply their own concrete migration steps here;
// an empty registry only supports target_migration_index == 1 (no steps
// to run).
func Execute(r *migration.Registry) error {
	if r != nil {
		registry = r
	}

	rootCmd.AddCommand(initCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(finalizeCmd)
	rootCmd.AddCommand(statusCmd)

	return rootCmd.Execute()
}
