// Package snapshot manages internal qcow2 snapshots and backing-file
// overlays for a VM's primary disk. All operations refuse to run against
// formats that cannot hold snapshots rather than letting qemu-img fail
// with an obscure message.
package snapshot

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"unicode"

	"github.com/curatorproject/curator/internal/qemu"
	"github.com/curatorproject/curator/internal/qemuimg"
)

// Sentinel errors callers branch on.
var (
	// ErrNoDisk is returned when the VM has no disk to snapshot.
	ErrNoDisk = errors.New("vm has no disk")

	// ErrUnsupportedFormat is returned for disks whose format cannot hold
	// internal snapshots.
	ErrUnsupportedFormat = errors.New("disk format does not support snapshots")

	// ErrNoSafeDefault is returned by Reset when neither a backing file nor
	// a recognizable clean-state snapshot exists. Resetting anyway would
	// destroy the only copy of the disk, so the caller must choose.
	ErrNoSafeDefault = errors.New("no backing file or clean-state snapshot to reset to")

	// ErrBackingMissing is returned by Reset when the disk declares a
	// backing file that is gone. The overlay is the only surviving state
	// and must not be deleted.
	ErrBackingMissing = errors.New("backing file does not exist")

	// ErrInvalidName is returned for snapshot names that cannot be made safe.
	ErrInvalidName = errors.New("invalid snapshot name")
)

// MaxNameLength caps snapshot names. qcow2 stores names in a fixed header
// region; longer names are rejected rather than silently truncated.
const MaxNameLength = 128

// ImageTool is the subset of the qemu-img gateway the manager needs.
// *qemuimg.Tool satisfies it; tests substitute fakes.
type ImageTool interface {
	Info(path string) (*qemuimg.ImageInfo, error)
	SnapshotCreate(path, name string) error
	SnapshotApply(path, name string) error
	SnapshotDelete(path, name string) error
	CreateOverlay(path, backing, backingFormat string) error
	Compact(path string) error
}

// Manager performs snapshot operations on a single disk image.
type Manager struct {
	tool ImageTool
}

// NewManager returns a Manager backed by the given image tool.
func NewManager(tool ImageTool) *Manager {
	return &Manager{tool: tool}
}

// SanitizeName normalizes a user-supplied snapshot name. Surrounding
// whitespace is trimmed; empty names, names containing a path separator,
// and names longer than MaxNameLength are rejected outright. Every other
// rune outside letters, digits, '-', '_', and '.' becomes '_'. A leading
// dash is replaced so the name can never be mistaken for a qemu-img flag.
func SanitizeName(name string) (string, error) {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidName)
	}
	if strings.ContainsRune(trimmed, '/') {
		return "", fmt.Errorf("%w: contains path separator: %q", ErrInvalidName, name)
	}
	if len(trimmed) > MaxNameLength {
		return "", fmt.Errorf("%w: longer than %d characters", ErrInvalidName, MaxNameLength)
	}

	var b strings.Builder
	for _, r := range trimmed {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-' || r == '_' || r == '.' {
			b.WriteRune(r)
		} else {
			b.WriteRune('_')
		}
	}

	s := b.String()
	if strings.HasPrefix(s, "-") {
		s = "_" + s[1:]
	}
	return s, nil
}

// checkDisk validates that the disk exists in the config and supports
// snapshots, returning its path.
func checkDisk(cfg *qemu.Config) (string, error) {
	disk := cfg.PrimaryDisk()
	if disk == nil {
		return "", ErrNoDisk
	}
	if !disk.Format.SupportsSnapshots() {
		return "", fmt.Errorf("%w: %s is %s", ErrUnsupportedFormat, disk.Path, disk.Format)
	}
	return disk.Path, nil
}

// List returns the snapshots recorded in the VM's primary disk, in the
// order qemu-img reports them.
func (m *Manager) List(cfg *qemu.Config) ([]qemuimg.SnapshotRecord, error) {
	path, err := checkDisk(cfg)
	if err != nil {
		return nil, err
	}
	info, err := m.tool.Info(path)
	if err != nil {
		return nil, err
	}
	return info.Snapshots, nil
}

// Create records a new named snapshot. The name is sanitized first; the
// sanitized form is returned so callers can report what was actually stored.
func (m *Manager) Create(cfg *qemu.Config, name string) (string, error) {
	path, err := checkDisk(cfg)
	if err != nil {
		return "", err
	}
	clean, err := SanitizeName(name)
	if err != nil {
		return "", err
	}
	if err := m.tool.SnapshotCreate(path, clean); err != nil {
		return "", err
	}
	return clean, nil
}

// Restore rolls the disk back to a named snapshot. The disk contents after
// a successful restore are exactly the snapshot's; there is no undo.
func (m *Manager) Restore(cfg *qemu.Config, name string) error {
	path, err := checkDisk(cfg)
	if err != nil {
		return err
	}
	clean, err := SanitizeName(name)
	if err != nil {
		return err
	}
	return m.tool.SnapshotApply(path, clean)
}

// Delete removes a named snapshot. The disk's current state is unaffected.
func (m *Manager) Delete(cfg *qemu.Config, name string) error {
	path, err := checkDisk(cfg)
	if err != nil {
		return err
	}
	clean, err := SanitizeName(name)
	if err != nil {
		return err
	}
	return m.tool.SnapshotDelete(path, clean)
}

// Compact rewrites the primary disk to reclaim space freed by deleted
// snapshots. The VM must not be running.
func (m *Manager) Compact(cfg *qemu.Config) error {
	path, err := checkDisk(cfg)
	if err != nil {
		return err
	}
	return m.tool.Compact(path)
}

// cleanStateMarkers are substrings that identify a snapshot as a known-good
// baseline a reset may safely return to.
var cleanStateMarkers = []string{"fresh", "clean", "initial"}

// Reset returns the disk to a known-clean state. An overlay disk is thrown
// away and recreated over its backing file; otherwise the first snapshot
// whose name marks it as a baseline is restored. When neither exists the
// reset is refused with ErrNoSafeDefault. The returned description says
// which path was taken.
func (m *Manager) Reset(cfg *qemu.Config) (string, error) {
	path, err := checkDisk(cfg)
	if err != nil {
		return "", err
	}

	info, err := m.tool.Info(path)
	if err != nil {
		return "", err
	}

	if info.BackingFile != "" {
		// The overlay is only deleted once its base is confirmed present.
		if _, err := os.Stat(info.BackingFile); err != nil {
			return "", fmt.Errorf("%w: %s", ErrBackingMissing, info.BackingFile)
		}
		if err := os.Remove(path); err != nil {
			return "", fmt.Errorf("remove overlay %s: %w", path, err)
		}
		if err := m.tool.CreateOverlay(path, info.BackingFile, string(qemu.FormatQCOW2)); err != nil {
			return "", fmt.Errorf("recreate overlay over %s: %w", info.BackingFile, err)
		}
		return fmt.Sprintf("recreated overlay over %s", info.BackingFile), nil
	}

	for _, snap := range info.Snapshots {
		lower := strings.ToLower(snap.Name)
		for _, marker := range cleanStateMarkers {
			if strings.Contains(lower, marker) {
				if err := m.tool.SnapshotApply(path, snap.Name); err != nil {
					return "", err
				}
				return fmt.Sprintf("restored snapshot %q", snap.Name), nil
			}
		}
	}

	return "", ErrNoSafeDefault
}
