package main

import (
	"fmt"
	"net/url"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"gofoc/hostlog"
)

var (
	wsURL    string
	names    string
	periodMs int
)

var telemetryCmd = &cobra.Command{
	Use:   "telemetry",
	Short: "Follow telemetry snapshots over a websocket",
	RunE: func(cmd *cobra.Command, args []string) error {
		u, err := url.Parse(wsURL)
		if err != nil {
			return fmt.Errorf("bad url %q: %w", wsURL, err)
		}
		q := u.Query()
		if names != "" {
			q.Set("names", names)
		}
		q.Set("period_ms", fmt.Sprint(periodMs))
		u.RawQuery = q.Encode()

		conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
		if err != nil {
			return fmt.Errorf("dial %s: %w", u, err)
		}
		defer conn.Close()

		hostlog.Infof("connected to %s", u)

		for {
			_, msg, err := conn.ReadMessage()
			if err != nil {
				if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					return nil
				}
				return err
			}
			fmt.Println(string(msg))
		}
	},
}

func init() {
	telemetryCmd.Flags().StringVarP(&wsURL, "url", "u", "ws://localhost:8080/telemetry", "Telemetry websocket URL")
	telemetryCmd.Flags().StringVar(&names, "names", "servo_stats", "Comma-separated snapshot names (empty = all)")
	telemetryCmd.Flags().IntVar(&periodMs, "period-ms", 100, "Snapshot period in milliseconds")
	rootCmd.AddCommand(telemetryCmd)
}
