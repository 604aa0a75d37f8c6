// Package output provides formatters for displaying curator resources
// in various formats (table, YAML, JSON).
package output

import (
	"fmt"
	"time"
)

// Format represents an output format type.
type Format string

const (
	// FormatTable is a human-readable table format.
	FormatTable Format = "table"
	// FormatYAML is a YAML format for declarative configs.
	FormatYAML Format = "yaml"
	// FormatJSON is a JSON format for machine consumption.
	FormatJSON Format = "json"
)

// VMView is the display form of a virtual machine. Formatters render views
// rather than internal types so display fields stay decoupled from the
// configuration model.
type VMView struct {
	Name         string   `json:"name" yaml:"name"`
	Status       string   `json:"status" yaml:"status"`
	Architecture string   `json:"architecture" yaml:"architecture"`
	MemoryMB     uint32   `json:"memory_mb" yaml:"memory_mb"`
	CPUCores     uint32   `json:"cpu_cores" yaml:"cpu_cores"`
	Disks        []string `json:"disks" yaml:"disks"`
	Network      string   `json:"network,omitempty" yaml:"network,omitempty"`
	KVM          bool     `json:"kvm" yaml:"kvm"`
}

// SnapshotView is the display form of one disk snapshot.
type SnapshotView struct {
	ID      string        `json:"id" yaml:"id"`
	Name    string        `json:"name" yaml:"name"`
	Size    uint64        `json:"vm_state_size" yaml:"vm_state_size"`
	Created time.Time     `json:"created" yaml:"created"`
	VMClock time.Duration `json:"vm_clock_ns" yaml:"vm_clock_ns"`
}

// Formatter formats curator resources for output.
type Formatter interface {
	// FormatVM formats a single VM.
	FormatVM(v *VMView) (string, error)

	// FormatVMList formats a list of VMs.
	FormatVMList(vms []*VMView) (string, error)

	// FormatSnapshots formats a VM's snapshot list.
	FormatSnapshots(snaps []SnapshotView) (string, error)
}

// Options contains options for formatting output.
type Options struct {
	// Format specifies the output format.
	Format Format
	// NoHeaders omits headers in table format.
	NoHeaders bool
}

// NewFormatter creates a new Formatter based on the specified format.
func NewFormatter(opts Options) (Formatter, error) {
	switch opts.Format {
	case FormatTable:
		return &TableFormatter{NoHeaders: opts.NoHeaders}, nil
	case FormatYAML:
		return &YAMLFormatter{}, nil
	case FormatJSON:
		return &JSONFormatter{}, nil
	default:
		return nil, fmt.Errorf("unsupported output format: %s (supported: table, yaml, json)", opts.Format)
	}
}

// ValidateFormat checks if a format string is valid.
func ValidateFormat(format string) error {
	switch Format(format) {
	case FormatTable, FormatYAML, FormatJSON:
		return nil
	default:
		return fmt.Errorf("invalid format: %s (valid formats: table, yaml, json)", format)
	}
}
