// Package main provides the entry point for the clawmongo CLI.
package main

import (
	"os"

	"github.com/romiluz13/clawmongo/cmd/clawmongo/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
