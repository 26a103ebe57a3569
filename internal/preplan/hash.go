package preplan

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"

	"github.com/buildbotics/bbctrl-motion/internal/planner"
)

// configSnapshot is the JSON-safe mirror of planner.Config: byte-keyed
// axis maps aren't valid JSON object keys, so axes are re-keyed by their
// single-letter name. encoding/json sorts map[string]T keys on marshal,
// giving the "canonical, sorted-keys" form the hash needs for free.
type configSnapshot struct {
	Axes         map[string]planner.AxisLimits `json:"axes"`
	DefaultUnits bool                           `json:"defaultUnits"`
	WithDefaults bool                           `json:"withDefaults"`
}

func snapshotConfig(cfg planner.Config) configSnapshot {
	axes := make(map[string]planner.AxisLimits, len(cfg.Axes))
	for axis, limits := range cfg.Axes {
		axes[string(axis)] = limits
	}
	return configSnapshot{Axes: axes, DefaultUnits: cfg.DefaultUnits, WithDefaults: cfg.WithDefaults}
}

// Hash computes the cache key for a (config, file) pair: a version tag,
// the canonical configuration snapshot, and the file's raw bytes, per
// spec §4.F "cache key".
func Hash(cfg planner.Config, fileBytes []byte) (string, error) {
	cfgJSON, err := json.Marshal(snapshotConfig(cfg))
	if err != nil {
		return "", err
	}
	h := sha256.New()
	h.Write([]byte("v2"))
	h.Write(cfgJSON)
	h.Write(fileBytes)
	return hex.EncodeToString(h.Sum(nil)), nil
}
