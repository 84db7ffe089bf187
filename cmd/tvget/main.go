// Package main is the entry point for the tvget application.
package main

import (
	"os"

	"github.com/jmylchreest/tvget/cmd/tvget/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
