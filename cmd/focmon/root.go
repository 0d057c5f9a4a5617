package main

import (
	"github.com/spf13/cobra"
	"go.uber.org/zap/zapcore"

	"gofoc/hostlog"
)

var (
	logFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "focmon",
	Short: "Servo controller monitor",
	Long: `focmon - monitor a running servo controller.

Decodes the controller's continuous debug stream from a serial port, or
follows named telemetry snapshots over a websocket.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := zapcore.InfoLevel
		if verbose {
			level = zapcore.DebugLevel
		}
		hostlog.Init(level, logFile)
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		hostlog.Sync()
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "Also log to this file (rotated)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
}
