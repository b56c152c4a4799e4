package telemetry

import (
	"os"
	"sync/atomic"
)

const (
	// EnvObserve turns event emission on when set to "1".
	EnvObserve = "TOOLCHAT_OBSERVE_JSON"
	// EnvArtifactsDir overrides where events.jsonl is written.
	EnvArtifactsDir = "TOOLCHAT_ARTIFACTS_DIR"

	defaultArtifactsDir = ".toolchat"
)

var (
	observe       atomic.Bool
	configuredDir atomic.Pointer[string]
)

func init() {
	observe.Store(os.Getenv(EnvObserve) == "1")
}

// SetObserve flips the gate read from the environment at startup.
func SetObserve(on bool) { observe.Store(on) }

// ObserveEnabled reports whether events are written. EnvObserve=1 set after
// startup also counts.
func ObserveEnabled() bool {
	return observe.Load() || os.Getenv(EnvObserve) == "1"
}

// SetArtifactsDir sets the directory used when EnvArtifactsDir is unset.
// An empty dir restores the default.
func SetArtifactsDir(dir string) {
	if dir == "" {
		configuredDir.Store(nil)
		return
	}
	configuredDir.Store(&dir)
}

// ArtifactsDir resolves the events directory: the environment, then
// SetArtifactsDir, then ".toolchat".
func ArtifactsDir() string {
	if v := os.Getenv(EnvArtifactsDir); v != "" {
		return v
	}
	if p := configuredDir.Load(); p != nil {
		return *p
	}
	return defaultArtifactsDir
}
