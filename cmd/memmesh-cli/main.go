// Package main provides the entry point for memmesh-cli.
//
// memmesh-cli is the command-line management tool for MemMesh,
// talking to a federation node's admin HTTP surface.
package main

import (
	"fmt"
	"os"

	"github.com/yndnr/memmesh-go/internal/cli/command"
)

func main() {
	app := command.App()

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}
