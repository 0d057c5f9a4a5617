// Package telemetry exposes named read-only snapshots for external
// observation, locally by value and remotely as a JSON stream over a
// websocket.
package telemetry

import (
	"encoding/json"
	"net/http"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
)

// defaultPeriod is the snapshot streaming period when the client does not
// ask for one.
const defaultPeriod = 100 * time.Millisecond

// Manager is the snapshot registry. Snapshot functions must be safe to
// call from any goroutine; they are expected to return a value copy.
type Manager struct {
	mu    sync.RWMutex
	snaps map[string]func() any

	upgrader websocket.Upgrader
}

// NewManager returns an empty manager.
func NewManager() *Manager {
	return &Manager{snaps: make(map[string]func() any)}
}

// Register adds a named snapshot source. Registering a name twice is a
// programmer error.
func (m *Manager) Register(name string, snapshot func() any) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.snaps[name]; ok {
		panic("telemetry: snapshot " + name + " already registered")
	}
	m.snaps[name] = snapshot
}

// Names returns the registered snapshot names, sorted.
func (m *Manager) Names() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.snaps))
	for name := range m.snaps {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Snapshot returns the current value of one source.
func (m *Manager) Snapshot(name string) (any, bool) {
	m.mu.RLock()
	snap, ok := m.snaps[name]
	m.mu.RUnlock()
	if !ok {
		return nil, false
	}
	return snap(), true
}

// collect gathers the requested snapshots into one message.
func (m *Manager) collect(names []string) map[string]any {
	msg := make(map[string]any, len(names))
	for _, name := range names {
		if v, ok := m.Snapshot(name); ok {
			msg[name] = v
		}
	}
	return msg
}

// ServeHTTP upgrades the request to a websocket and streams the requested
// snapshots as JSON objects. Query parameters: names (comma separated,
// empty for all) and period_ms.
func (m *Manager) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	names := m.Names()
	if q := r.URL.Query().Get("names"); q != "" {
		names = strings.Split(q, ",")
	}

	period := defaultPeriod
	if q := r.URL.Query().Get("period_ms"); q != "" {
		ms, err := strconv.Atoi(q)
		if err != nil || ms < 1 {
			http.Error(w, "bad period_ms", http.StatusBadRequest)
			return
		}
		period = time.Duration(ms) * time.Millisecond
	}

	conn, err := m.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	ticker := time.NewTicker(period)
	defer ticker.Stop()

	for range ticker.C {
		data, err := json.Marshal(m.collect(names))
		if err != nil {
			return
		}
		if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
			return
		}
	}
}
