package output

import (
	"bytes"
	"fmt"
	"strings"
	"text/tabwriter"
	"time"
)

// TableFormatter formats resources as human-readable tables.
type TableFormatter struct {
	// NoHeaders omits the header row.
	NoHeaders bool
}

// FormatVM formats a single VM as a table row.
func (f *TableFormatter) FormatVM(v *VMView) (string, error) {
	return f.FormatVMList([]*VMView{v})
}

// FormatVMList formats a list of VMs as a table.
func (f *TableFormatter) FormatVMList(vms []*VMView) (string, error) {
	if len(vms) == 0 {
		return "No VMs found\n", nil
	}

	var buf bytes.Buffer
	w := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)

	if !f.NoHeaders {
		_, _ = fmt.Fprintln(w, "NAME\tSTATUS\tARCH\tMEMORY\tCPUS\tDISKS\tKVM")
	}

	for _, v := range vms {
		disks := strings.Join(v.Disks, ",")
		if disks == "" {
			disks = "-"
		}
		kvm := "no"
		if v.KVM {
			kvm = "yes"
		}
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%d MB\t%d\t%s\t%s\n",
			v.Name, v.Status, v.Architecture, v.MemoryMB, v.CPUCores, disks, kvm)
	}

	_ = w.Flush()
	return buf.String(), nil
}

// FormatSnapshots formats a snapshot list as a table.
func (f *TableFormatter) FormatSnapshots(snaps []SnapshotView) (string, error) {
	if len(snaps) == 0 {
		return "No snapshots found\n", nil
	}

	var buf bytes.Buffer
	w := tabwriter.NewWriter(&buf, 0, 0, 2, ' ', 0)

	if !f.NoHeaders {
		_, _ = fmt.Fprintln(w, "ID\tNAME\tVM STATE\tCREATED\tVM CLOCK")
	}

	for _, s := range snaps {
		_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			s.ID, s.Name, formatSize(s.Size),
			s.Created.Format("2006-01-02 15:04:05"), formatVMClock(s.VMClock))
	}

	_ = w.Flush()
	return buf.String(), nil
}

// formatSize renders a byte count with binary units, one decimal place.
// Examples: "0 B", "512 B", "1.5 KiB", "2.0 GiB"
func formatSize(n uint64) string {
	const (
		kib = 1 << 10
		mib = 1 << 20
		gib = 1 << 30
	)
	switch {
	case n >= gib:
		return fmt.Sprintf("%.1f GiB", float64(n)/gib)
	case n >= mib:
		return fmt.Sprintf("%.1f MiB", float64(n)/mib)
	case n >= kib:
		return fmt.Sprintf("%.1f KiB", float64(n)/kib)
	default:
		return fmt.Sprintf("%d B", n)
	}
}

// formatVMClock renders a guest clock reading as HH:MM:SS.
func formatVMClock(d time.Duration) string {
	total := int64(d / time.Second)
	return fmt.Sprintf("%02d:%02d:%02d", total/3600, (total/60)%60, total%60)
}
