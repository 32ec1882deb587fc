// Package config loads the two configuration surfaces the capture
// program accepts: the TOML radar/digdar defaults file (spec §6's
// "register preset" predecessor, grounded on the teacher's viper-based
// loader) and the YAML register preset file that overwrites individual
// detector-block registers by name before the capture loop starts.
package config

import (
	"fmt"
	"os"

	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/chslab/digdar/fpga"
)

// Radar holds the [radar] section of ogdar.toml: descriptive and
// timing information about the physical radar the PL is wired to.
type Radar struct {
	Model           string  `mapstructure:"model"`
	PRF             float64 `mapstructure:"prf"`
	ACPsPerRotation uint32  `mapstructure:"acps_per_rotation"`
	Power           float64 `mapstructure:"power"`
}

// Digdar holds the [digdar] section of ogdar.toml: default register
// values. Load parses them; nothing in this module writes them to the
// PL registers.
type Digdar struct {
	DecRate          uint32 `mapstructure:"dec_rate"`
	NumSamp          uint32 `mapstructure:"num_samp"`
	Options          uint32 `mapstructure:"options"`
	TrigSource       uint32 `mapstructure:"trig_source"`
	TrigThreshExcite uint32 `mapstructure:"trig_thresh_excite"`
	TrigThreshRelax  uint32 `mapstructure:"trig_thresh_relax"`
	TrigLatency      uint32 `mapstructure:"trig_latency"`
	TrigDelay        uint32 `mapstructure:"trig_delay"`
	ACPThreshExcite  uint32 `mapstructure:"acp_thresh_excite"`
	ACPThreshRelax   uint32 `mapstructure:"acp_thresh_relax"`
	ACPLatency       uint32 `mapstructure:"acp_latency"`
	ARPThreshExcite  uint32 `mapstructure:"arp_thresh_excite"`
	ARPThreshRelax   uint32 `mapstructure:"arp_thresh_relax"`
	ARPLatency       uint32 `mapstructure:"arp_latency"`
}

// Config is the parsed contents of ogdar.toml.
type Config struct {
	Radar  Radar
	Digdar Digdar
}

// Default returns the sane-default configuration used when no
// ogdar.toml is found, carried over from the teacher's
// setDefaultConfig — not guaranteed to suit any particular radar, but
// known to work for at least one test installation.
func Default() Config {
	return Config{
		Radar: Radar{
			Model:           "WARNING: using default (bogus!) config because file ogdar.toml not found",
			PRF:             2100,
			ACPsPerRotation: 450,
			Power:           25000,
		},
		Digdar: Digdar{
			DecRate:          1,
			NumSamp:          4000,
			Options:          7,
			TrigSource:       2,
			TrigThreshExcite: uint32(int32(-6550)),
			TrigThreshRelax:  uint32(int32(-8000)),
			TrigLatency:      12500,
			TrigDelay:        30,
			ACPThreshExcite:  uint32(int32(-1638)),
			ACPThreshRelax:   1228,
			ACPLatency:       500000,
			ARPThreshExcite:  uint32(int32(-1638)),
			ARPThreshRelax:   1228,
			ARPLatency:       125000000,
		},
	}
}

// Load reads ogdar.toml, searching /opt then the working directory
// (the teacher's search order, matching the Red Pitaya SD card layout
// where /opt is the card's top level). If no config file is found, it
// returns Default() and ok=false so the caller can warn the operator.
func Load() (cfg Config, ok bool) {
	viper.SetConfigName("ogdar")
	viper.AddConfigPath("/opt")
	viper.AddConfigPath(".")
	if err := viper.ReadInConfig(); err != nil {
		return Default(), false
	}

	cfg = Default()
	if err := viper.UnmarshalKey("radar", &cfg.Radar); err != nil {
		return Default(), false
	}
	if err := viper.UnmarshalKey("digdar", &cfg.Digdar); err != nil {
		return Default(), false
	}
	return cfg, true
}

// LoadPreset parses a YAML register-preset file: a flat map of
// register name to u32 value, applied against fpga.ControlMap before
// the capture loop starts (spec §6's "parameter loader" external
// collaborator). The core treats this as opaque, best-effort
// configuration — but a name absent from ControlMap is an operator
// typo and is treated as a fatal parameter-validation error (spec §7).
func LoadPreset(path string) (map[string]uint32, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read preset file: %w", err)
	}

	var raw map[string]uint32
	if err := yaml.Unmarshal(b, &raw); err != nil {
		return nil, fmt.Errorf("config: parse preset file: %w", err)
	}

	for name := range raw {
		if _, ok := fpga.ControlMap[name]; !ok {
			return nil, fmt.Errorf("config: preset file: unknown register %q", name)
		}
	}
	return raw, nil
}

// ApplyPreset writes each name/value pair in preset into the detector
// register block addressed by w, through fpga.ControlMap.
func ApplyPreset(w *fpga.Window, preset map[string]uint32) {
	for name, value := range preset {
		if reg, ok := w.RegisterAt(name); ok {
			*reg = value
		}
	}
}
