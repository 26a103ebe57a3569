// Package config loads the host-level service configuration: the
// serial device and I2C bus the Firmware Link binds to, and the
// directories and concurrency the Preplanner uses. This is distinct
// from internal/machineconfig's firmware machine-configuration document
// (spec SPEC_FULL.md "Configuration").
package config

import (
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the service's host-level configuration.
type Config struct {
	Serial struct {
		Device string `yaml:"device"`
		Baud   int    `yaml:"baud"`
	} `yaml:"serial"`

	I2C struct {
		Bus     string `yaml:"bus"`
		Address uint16 `yaml:"address"`
	} `yaml:"i2c"`

	Dirs struct {
		Upload string `yaml:"upload"`
		Plans  string `yaml:"plans"`
		Meta   string `yaml:"meta"`
	} `yaml:"dirs"`

	MachineConfigPath string `yaml:"machineConfigPath"`

	Preplanner struct {
		Workers        int           `yaml:"workers"`
		KeepPerFile    int           `yaml:"keepPerFile"`
		MaxPreplanTime time.Duration `yaml:"maxPreplanTime"`
		MaxLoopTime    time.Duration `yaml:"maxLoopTime"`
	} `yaml:"preplanner"`

	StateDebounce time.Duration `yaml:"stateDebounce"`
}

// Default returns the built-in defaults, overridden by flags/file.
func Default() *Config {
	c := &Config{}
	c.Serial.Device = "/dev/ttyS0"
	c.Serial.Baud = 230400
	c.I2C.Bus = "/dev/i2c-1"
	c.I2C.Address = 0x2b
	c.Dirs.Upload = "/var/lib/bbctrl/upload"
	c.Dirs.Plans = "/var/lib/bbctrl/plans"
	c.Dirs.Meta = "/var/lib/bbctrl/meta"
	c.MachineConfigPath = "/var/lib/bbctrl/config.json"
	c.Preplanner.Workers = 4
	c.Preplanner.KeepPerFile = 2
	c.Preplanner.MaxPreplanTime = 600 * time.Second
	c.Preplanner.MaxLoopTime = 30 * time.Second
	c.StateDebounce = 250 * time.Millisecond
	return c
}

// Load reads a YAML service configuration file over the defaults. A
// missing file is not an error; the defaults are returned as-is.
func Load(path string) (*Config, error) {
	c := Default()
	if path == "" {
		return c, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return c, nil
		}
		return nil, err
	}
	if err := yaml.Unmarshal(data, c); err != nil {
		return nil, err
	}
	return c, nil
}
