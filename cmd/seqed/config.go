package main

import (
	"encoding/json"
	"os"
	"path/filepath"

	"github.com/jangler/seqed/seq"
)

// Config is the persistent tool configuration.
type Config struct {
	PortName    string          `json:"portName,omitempty"`
	TicsPerBeat uint            `json:"ticsPerBeat,omitempty"`
	CtlDefaults map[uint8]uint8 `json:"ctlDefaults,omitempty"`
	FineCtls    []uint8         `json:"fineCtls,omitempty"`
}

// DefaultConfig returns a config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		TicsPerBeat: seq.DefaultTPB,
	}
}

// ConfigPath returns the full path to config.json.
func ConfigPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, ".config", "seqed", "config.json"), nil
}

// LoadConfig reads the config from disk, or returns defaults if not
// found.
func LoadConfig() (*Config, error) {
	path, err := ConfigPath()
	if err != nil {
		return DefaultConfig(), nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultConfig(), nil
		}
		return nil, err
	}
	cfg := DefaultConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the config to disk.
func (c *Config) Save() error {
	path, err := ConfigPath()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0644)
}

// Apply wires the configured controller behavior into the sequencing
// core.
func (c *Config) Apply() {
	for num, val := range c.CtlDefaults {
		seq.SetCtlDefault(num, val)
	}
	for _, num := range c.FineCtls {
		seq.SetFineCtl(num, true)
	}
}
