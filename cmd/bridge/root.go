// Command bridge is the onms-alertmanager-bridge binary: it consumes the
// alarms and nodes Kafka topics, joins alarms against cached node state,
// and forwards Alertmanager v2 alerts with a periodic resend loop and a
// read-only admin HTTP surface.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var cfgFile string

var rootCmd = &cobra.Command{
	Use:   "bridge",
	Short: "Bridges OpenNMS alarms and nodes into Alertmanager alerts",
	Long: `bridge consumes two partitioned Kafka streams (alarms, nodes),
joins each alarm against the latest cached node record, and forwards the
result to Prometheus Alertmanager as v2 alerts, resending on a fixed
cadence so the aggregator never garbage-collects a still-active alarm.`,
}

// Execute runs the root command, exiting the process on error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "path to an optional YAML config file")
	rootCmd.AddCommand(runCmd)
}
