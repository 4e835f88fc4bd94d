// Package nvram persists the settings M500/M501/M502/M503 manage (axis
// limits, steps/mm, PID constants, probe offsets) to a config-override
// file, the way the reference firmware appends an autosave block to
// config.g. The teacher carries github.com/BurntSushi/toml as an unused
// indirect dependency; this gives it a concrete call site. Save writes
// through common/file.WriteFileWithSync so a power loss mid-autosave
// can't leave config an empty or half-written file.
package nvram

import (
	"bytes"
	"os"

	"github.com/BurntSushi/toml"

	"reprapcore/common/file"
)

// Settings is the subset of modal/config state that M500 persists and
// M501 restores. Kept flat and TOML-friendly rather than mirroring the
// in-memory modal.State shape exactly.
type Settings struct {
	StepsPerMM    map[string]float64 `toml:"steps_per_mm"`
	AxisMin       map[string]float64 `toml:"axis_min"`
	AxisMax       map[string]float64 `toml:"axis_max"`
	PID           map[string][3]float64 `toml:"pid"` // heater name -> [P,I,D]
	ProbeOffset   [3]float64         `toml:"probe_offset"`
	PrintRadius   float64            `toml:"print_radius"`
}

func DefaultSettings() Settings {
	return Settings{
		StepsPerMM: map[string]float64{},
		AxisMin:    map[string]float64{},
		AxisMax:    map[string]float64{},
		PID:        map[string][3]float64{},
	}
}

// Save writes Settings to path as a TOML document (M500).
func Save(path string, s Settings) error {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(s); err != nil {
		return err
	}
	return file.WriteFileWithSync(path, buf.Bytes())
}

// Load reads Settings from path (M501). Returns DefaultSettings() with no
// error if the file does not yet exist, matching M502's "restore factory
// defaults" fallback behavior when no override has ever been saved.
func Load(path string) (Settings, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return DefaultSettings(), nil
	}
	var s Settings
	if _, err := toml.DecodeFile(path, &s); err != nil {
		return Settings{}, err
	}
	return s, nil
}

// ResetToDefaults overwrites path with DefaultSettings() (M502).
func ResetToDefaults(path string) error {
	return Save(path, DefaultSettings())
}
