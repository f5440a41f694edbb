// SPDX-License-Identifier: Apache-2.0

package main

import (
	"os"

	"github.com/evlog/migrator/cmd"
)

func main() {
	err := cmd.Execute(nil)
	os.Exit(cmd.ExitCode(err))
}
