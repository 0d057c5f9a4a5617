// focsim runs the servo control core on the host against simulated
// hardware: the full cycle pipeline, the persistent config store and the
// telemetry websocket, with no board attached. Point `focmon telemetry`
// at it to watch the snapshots move.
package main

import (
	"flag"
	"net/http"
	"os"

	"go.uber.org/zap/zapcore"

	"gofoc/foc"
	"gofoc/hostlog"
	"gofoc/persist"
	"gofoc/telemetry"
)

var (
	listenAddr = flag.String("listen", ":8080", "Telemetry listen address")
	configPath = flag.String("config", "", "Persisted config store (CBOR)")
	busVolts   = flag.Float64("bus-voltage", 24.0, "Simulated bus voltage")
)

func main() {
	flag.Parse()
	hostlog.Init(zapcore.InfoLevel, "")
	defer hostlog.Sync()

	store := persist.NewRegistry()
	tel := telemetry.NewManager()
	board := newSimBoard(*busVolts)

	servo, err := foc.New(store, tel, board.sensor, board.driver, foc.Options{
		Pwm:      board.pwm,
		Currents: board.adc,
	})
	if err != nil {
		hostlog.Errorf("servo: %v", err)
		os.Exit(1)
	}
	defer servo.Close()

	if *configPath != "" {
		if err := loadConfig(store, *configPath); err != nil {
			hostlog.Warnf("config %s: %v (running on defaults)",
				*configPath, err)
		} else {
			hostlog.Infof("config loaded from %s", *configPath)
		}
	}

	go runCycles(servo)

	mux := http.NewServeMux()
	mux.Handle("/telemetry", tel)

	hostlog.Infof("telemetry on %s/telemetry, snapshots: %v",
		*listenAddr, tel.Names())
	if err := http.ListenAndServe(*listenAddr, mux); err != nil {
		hostlog.Errorf("listen: %v", err)
		os.Exit(1)
	}
}

// loadConfig decodes a saved block map into the registered blocks.
func loadConfig(store *persist.Registry, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	return store.Load(f)
}
