package output

import (
	"bytes"
	"fmt"

	"gopkg.in/yaml.v3"
)

// YAMLFormatter formats resources as YAML.
type YAMLFormatter struct{}

// FormatVM formats a single VM as YAML.
func (f *YAMLFormatter) FormatVM(v *VMView) (string, error) {
	data, err := yaml.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("failed to marshal VM to YAML: %w", err)
	}
	return string(data), nil
}

// FormatVMList formats a list of VMs as a YAML stream (multiple documents
// separated by ---).
func (f *YAMLFormatter) FormatVMList(vms []*VMView) (string, error) {
	if len(vms) == 0 {
		return "", nil
	}

	var buf bytes.Buffer
	for i, v := range vms {
		data, err := yaml.Marshal(v)
		if err != nil {
			return "", fmt.Errorf("failed to marshal VM %s to YAML: %w", v.Name, err)
		}
		if i > 0 {
			buf.WriteString("---\n")
		}
		buf.Write(data)
	}
	return buf.String(), nil
}

// FormatSnapshots formats a snapshot list as a single YAML document.
func (f *YAMLFormatter) FormatSnapshots(snaps []SnapshotView) (string, error) {
	data, err := yaml.Marshal(snaps)
	if err != nil {
		return "", fmt.Errorf("failed to marshal snapshots to YAML: %w", err)
	}
	return string(data), nil
}
