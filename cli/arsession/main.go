// Package main is the arsession command.
package main

import (
	"fmt"
	"os"

	"go.viam.com/arsession/cli"
)

func main() {
	app := cli.NewApp(os.Stdout, os.Stderr)
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err.Error()) //nolint:errcheck
		os.Exit(1)
	}
}
