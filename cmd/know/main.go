// Package main provides the entry point for the know CLI.
package main

import (
	"os"

	"github.com/knowtools/know/cmd/know/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
