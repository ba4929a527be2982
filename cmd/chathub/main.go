// Package main provides the entry point for the ChatHub CLI.
package main

import (
	"os"

	"github.com/chathub/chathub/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
