// Package config holds curator's own settings file, loaded from
// ~/.config/curator/config.yaml. Everything has a working default; the
// file is optional.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Settings represents the complete curator configuration.
type Settings struct {
	// VMRoot is the directory whose subdirectories are VMs.
	VMRoot string `yaml:"vm_root"`

	// QemuImgBinary overrides the qemu-img executable path.
	QemuImgBinary string `yaml:"qemu_img_binary,omitempty"`

	// StopEscalateSeconds is how long a graceful stop may stay pending
	// before curator recommends a force kill.
	StopEscalateSeconds int `yaml:"stop_escalate_seconds,omitempty"`

	// DefaultBridge is the bridge device used when a script names none.
	DefaultBridge string `yaml:"default_bridge,omitempty"`
}

// Default returns the settings used when no config file exists.
func Default() *Settings {
	return &Settings{
		VMRoot:              defaultVMRoot(),
		QemuImgBinary:       "qemu-img",
		StopEscalateSeconds: 10,
		DefaultBridge:       "qemubr0",
	}
}

func defaultVMRoot() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return "vms"
	}
	return filepath.Join(home, "vms")
}

// DefaultPath returns the conventional config file location.
func DefaultPath() string {
	if dir, err := os.UserConfigDir(); err == nil {
		return filepath.Join(dir, "curator", "config.yaml")
	}
	return filepath.Join(defaultVMRoot(), "curator.yaml")
}

// StopEscalateAfter returns the stop escalation threshold as a duration.
func (s *Settings) StopEscalateAfter() time.Duration {
	return time.Duration(s.StopEscalateSeconds) * time.Second
}

// Normalize fills unset fields with defaults. Called automatically by
// LoadFromFile before validation.
func (s *Settings) Normalize() {
	d := Default()
	if s.VMRoot == "" {
		s.VMRoot = d.VMRoot
	}
	if s.QemuImgBinary == "" {
		s.QemuImgBinary = d.QemuImgBinary
	}
	if s.StopEscalateSeconds == 0 {
		s.StopEscalateSeconds = d.StopEscalateSeconds
	}
	if s.DefaultBridge == "" {
		s.DefaultBridge = d.DefaultBridge
	}
}

// Validate checks the configuration for errors.
func (s *Settings) Validate() error {
	if s.VMRoot == "" {
		return fmt.Errorf("vm_root is required")
	}
	if s.StopEscalateSeconds < 0 {
		return fmt.Errorf("stop_escalate_seconds must be >= 0, got %d", s.StopEscalateSeconds)
	}
	return nil
}

// LoadFromFile loads curator settings from a YAML file. A missing file is
// not an error; defaults apply.
func LoadFromFile(path string) (*Settings, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var settings Settings
	if err := yaml.Unmarshal(data, &settings); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	settings.Normalize()

	if err := settings.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &settings, nil
}
