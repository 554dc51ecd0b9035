// Package main is the entry point for the stationdaq capture agent.
package main

import (
	"fmt"
	"os"

	"github.com/skalabs/stationdaq/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
