// Package main is the entry point for the restreamer application.
package main

import (
	"os"

	"github.com/jmylchreest/restreamer/cmd/restreamer/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
