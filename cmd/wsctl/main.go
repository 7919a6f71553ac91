// Package main is the entry point for the boring-ui CLI.
// The CLI is the developer terminal tool for interacting with the control plane API.
package main

import (
	"os"

	"github.com/boringdata/boring-ui/cmd/wsctl/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
