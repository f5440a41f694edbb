// SPDX-License-Identifier: Apache-2.0

package cmd

import (
	"github.com/spf13/cobra"
)

var initCmd = &cobra.Command{
	Use:   "init",
	Short: "Bootstrap the event log and migration bookkeeping schema",
	RunE: func(cmd *cobra.Command, _ []string) error {
		ctx := cmd.Context()

		e, err := NewEngine(ctx)
		if err != nil {
			return err
		}
		defer e.Close()

		return e.Init(ctx)
	},
}
