// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/evlog/migrator/cmd/flags"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Print the current bookkeeping state against --target",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()
		target := flags.TargetMigrationIndex()

		e, err := NewEngine(ctx)
		if err != nil {
			return err
		}
		defer e.Close()

		stats, err := e.Stats(ctx, target)
		if err != nil {
			return err
		}

		fmt.Printf("target migration index:              %d\n", stats.TargetMigrationIndex)
		fmt.Printf("min migration index (positions):      %d\n", stats.MinMigrationIndexPositions)
		fmt.Printf("position count:                       %d\n", stats.CountPositions)
		fmt.Printf("min migration index (staged):         %d\n", stats.MinMigrationIndexMigrationPositions)
		fmt.Printf("staged position count:                %d\n", stats.CountMigrationPositions)

		switch {
		case stats.CountPositions == 0:
			fmt.Println("state: empty, nothing to do")
		case stats.MinMigrationIndexPositions == target:
			fmt.Println("state: up to date")
		case stats.MinMigrationIndexMigrationPositions == target && stats.CountPositions == stats.CountMigrationPositions:
			fmt.Println("state: migrated, finalize is pending")
		default:
			fmt.Println("state: migration needed")
		}

		return nil
	},
}
