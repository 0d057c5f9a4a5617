package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"gofoc/host/monitor"
	"gofoc/host/serial"
	"gofoc/hostlog"
	"gofoc/protocol"
)

var (
	device string
	baud   int
	every  uint64
)

var monitorCmd = &cobra.Command{
	Use:   "monitor",
	Short: "Decode the live debug stream from a serial port",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := serial.DefaultConfig(device)
		cfg.Baud = baud

		// The reconnector rides out controller reboots and USB
		// re-enumeration; the scanner resyncs on the next frame.
		port := serial.NewReconnector(cfg)
		defer port.Close()

		// The stream runs at the full 40kHz cycle rate; only print a
		// subsample.
		var n uint64
		mon := monitor.New(port, func(f protocol.Frame) {
			n++
			if every > 0 && n%every != 0 {
				return
			}
			printFrame(f)
		})

		err := mon.Run()
		st := mon.Stats()
		hostlog.Infof("%d frames decoded, %d bytes skipped", st.Frames, st.Skipped)
		return err
	},
}

func printFrame(f protocol.Frame) {
	fmt.Printf("theta=%5.3f id*=%6.2fA id=%7.3fA pid.p=%7.3fV pid.i=%7.3fV d_V=%7.3fV vel=%7.2f\n",
		f.ElectricalTheta, f.CommandDA, f.MeasuredDA,
		f.PidDP, f.PidDIntegral, f.ControlDV, f.Velocity)
}

func init() {
	monitorCmd.Flags().StringVarP(&device, "device", "d", "/dev/ttyUSB0", "Serial device path")
	monitorCmd.Flags().IntVarP(&baud, "baud", "b", 5000000, "Baud rate")
	monitorCmd.Flags().Uint64Var(&every, "every", 4000, "Print every Nth frame (0 = all)")
	rootCmd.AddCommand(monitorCmd)
}
