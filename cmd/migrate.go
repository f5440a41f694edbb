// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"fmt"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/evlog/migrator/cmd/flags"
	"github.com/evlog/migrator/pkg/migration"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Migrate the event log up to --target, optionally finalizing",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		target := flags.TargetMigrationIndex()

		if path := flags.ManifestPath(); path != "" {
			m, err := migration.LoadManifest(path)
			if err != nil {
				return err
			}
			if err := m.CheckAgainst(registry); err != nil {
				return err
			}
		}

		e, err := NewEngine(ctx)
		if err != nil {
			return err
		}
		defer e.Close()

		progress, _ := pterm.DefaultProgressbar.WithTitle("migrating positions").Start()
		finalizeNeeded, err := e.Migrate(ctx, target, registry)
		progress.Stop()
		if err != nil {
			return err
		}

		if !finalizeNeeded {
			fmt.Println("already at target migration index, nothing to do")
			return nil
		}

		if flags.Finalize() {
			return e.Finalize(ctx, target)
		}

		fmt.Println("migrate complete, finalize is pending")
		return nil
	},
}
