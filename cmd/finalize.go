// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"github.com/pterm/pterm"
	"github.com/spf13/cobra"

	"github.com/evlog/migrator/cmd/flags"
)

var finalizeCmd = &cobra.Command{
	Use:   "finalize",
	Short: "Promote staged rewrites into the live event log",
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
		if stats.MinMigrationIndexMigrationPositions != target || stats.CountPositions != stats.CountMigrationPositions {
			return errFinalizeNotNeeded
		}

		spinner, _ := pterm.DefaultSpinner.Start("finalizing")
		err = e.Finalize(ctx, target)
		if err != nil {
			spinner.Fail(err.Error())
			return err
		}
		spinner.Success("finalized")
		return nil
	},
}
