// Package telemetry writes local JSONL observability events and carries
// per-call correlation ids on the context.
//
// Events never contain raw tool arguments or results; only names, sizes,
// durations and counters.
package telemetry

import (
	"encoding/json"
	"errors"
	"log/slog"
	"maps"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// EventsFile is the file name inside ArtifactsDir.
const EventsFile = "events.jsonl"

var writeMu sync.Mutex

// Emit appends one event to ArtifactsDir()/events.jsonl when observing is on.
// The "event" and "time" keys are reserved. Write failures are logged and
// dropped.
func Emit(name string, fields map[string]any) {
	if !ObserveEnabled() {
		return
	}
	line, err := encodeEvent(name, time.Now(), fields)
	if err != nil {
		slog.Warn("telemetry: dropping event", "event", name, "error", err)
		return
	}
	if err := appendLine(filepath.Join(ArtifactsDir(), EventsFile), line); err != nil {
		slog.Warn("telemetry: write event", "event", name, "error", err)
	}
}

func encodeEvent(name string, at time.Time, fields map[string]any) ([]byte, error) {
	m := maps.Clone(fields)
	if m == nil {
		m = make(map[string]any, 2)
	}
	m["time"] = at.UTC().Format(time.RFC3339Nano)
	m["event"] = name
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return append(b, '\n'), nil
}

func appendLine(path string, line []byte) error {
	writeMu.Lock()
	defer writeMu.Unlock()

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	_, werr := f.Write(line)
	return errors.Join(werr, f.Close())
}
