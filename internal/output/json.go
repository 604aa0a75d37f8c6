package output

import (
	"encoding/json"
	"fmt"
)

// JSONFormatter formats resources as JSON.
type JSONFormatter struct{}

// FormatVM formats a single VM as JSON.
func (f *JSONFormatter) FormatVM(v *VMView) (string, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal VM to JSON: %w", err)
	}
	return string(data) + "\n", nil
}

// FormatVMList formats a list of VMs as a JSON array.
func (f *JSONFormatter) FormatVMList(vms []*VMView) (string, error) {
	if len(vms) == 0 {
		return "[]\n", nil
	}
	data, err := json.MarshalIndent(vms, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal VMs to JSON: %w", err)
	}
	return string(data) + "\n", nil
}

// FormatSnapshots formats a snapshot list as a JSON array.
func (f *JSONFormatter) FormatSnapshots(snaps []SnapshotView) (string, error) {
	if len(snaps) == 0 {
		return "[]\n", nil
	}
	data, err := json.MarshalIndent(snaps, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal snapshots to JSON: %w", err)
	}
	return string(data) + "\n", nil
}
