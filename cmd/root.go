// Package cmd implements the stationdaq CLI using the cobra framework.
package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var configFile string

var rootCmd = &cobra.Command{
	Use:   "stationdaq",
	Short: "High-throughput DAQ pipeline for a digital radio-telescope station",
	Long: `stationdaq captures SPEAD/UDP streams emitted by a station's Tile
Processing Modules, reassembles them into time-ordered buffers per
stream type, and hands each completed buffer to a downstream consumer:
a file writer, a correlator, or a statistics engine.`,
	Version: "0.1.0",
}

// Execute adds all child commands to the root command and parses args.
// Called once from main.main.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "config.yaml", "path to the DAQ configuration file")
}

func exitWithError(msg string, err error) {
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %s: %v\n", msg, err)
	} else {
		fmt.Fprintf(os.Stderr, "Error: %s\n", msg)
	}
	os.Exit(1)
}
