package snapshot

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/curatorproject/curator/internal/qemu"
	"github.com/curatorproject/curator/internal/qemuimg"
)

// fakeTool is an in-memory ImageTool recording operations.
type fakeTool struct {
	info    *qemuimg.ImageInfo
	infoErr error

	created  []string
	applied  []string
	deleted  []string
	overlays [][3]string
	compacts []string

	opErr error
}

func (f *fakeTool) Info(path string) (*qemuimg.ImageInfo, error) {
	if f.infoErr != nil {
		return nil, f.infoErr
	}
	return f.info, nil
}

func (f *fakeTool) SnapshotCreate(path, name string) error {
	f.created = append(f.created, name)
	return f.opErr
}

func (f *fakeTool) SnapshotApply(path, name string) error {
	f.applied = append(f.applied, name)
	return f.opErr
}

func (f *fakeTool) SnapshotDelete(path, name string) error {
	f.deleted = append(f.deleted, name)
	return f.opErr
}

func (f *fakeTool) CreateOverlay(path, backing, backingFormat string) error {
	f.overlays = append(f.overlays, [3]string{path, backing, backingFormat})
	return f.opErr
}

func (f *fakeTool) Compact(path string) error {
	f.compacts = append(f.compacts, path)
	return f.opErr
}

func qcow2Config(path string) *qemu.Config {
	cfg := qemu.DefaultConfig()
	cfg.Disks = []qemu.DiskSpec{{Path: path, Format: qemu.FormatQCOW2, Interface: "ide"}}
	return &cfg
}

func TestSanitizeName(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr error
	}{
		{"plain", "before-update", "before-update", nil},
		{"spaces mapped", "pre install 2024", "pre_install_2024", nil},
		{"surrounding whitespace trimmed", "  padded  ", "padded", nil},
		{"shell metacharacters", "bad;rm -rf$(x)", "bad_rm_-rf__x_", nil},
		{"leading dash replaced", "-a", "_a", nil},
		{"empty rejected", "", "", ErrInvalidName},
		{"whitespace only rejected", "   ", "", ErrInvalidName},
		{"path separator rejected", "a/b", "", ErrInvalidName},
		{"long name rejected", strings.Repeat("x", 200), "", ErrInvalidName},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := SanitizeName(tt.input)
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("error = %v, want %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("SanitizeName(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestManagerRefusesUnsupportedFormats(t *testing.T) {
	tool := &fakeTool{}
	mgr := NewManager(tool)

	cfg := qemu.DefaultConfig()
	if _, err := mgr.Create(&cfg, "snap"); !errors.Is(err, ErrNoDisk) {
		t.Errorf("diskless create error = %v, want ErrNoDisk", err)
	}

	cfg.Disks = []qemu.DiskSpec{{Path: "/vms/dos/c.img", Format: qemu.FormatRaw}}
	if _, err := mgr.Create(&cfg, "snap"); !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("raw create error = %v, want ErrUnsupportedFormat", err)
	}
	if err := mgr.Restore(&cfg, "snap"); !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("raw restore error = %v, want ErrUnsupportedFormat", err)
	}
	if _, err := mgr.List(&cfg); !errors.Is(err, ErrUnsupportedFormat) {
		t.Errorf("raw list error = %v, want ErrUnsupportedFormat", err)
	}

	if len(tool.created)+len(tool.applied)+len(tool.deleted) != 0 {
		t.Error("no tool operation should run for unsupported disks")
	}
}

func TestManagerCreateSanitizes(t *testing.T) {
	tool := &fakeTool{}
	mgr := NewManager(tool)
	cfg := qcow2Config("/vms/a/disk.qcow2")

	stored, err := mgr.Create(cfg, "with spaces & stars*")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if stored != "with_spaces___stars_" {
		t.Errorf("stored name = %q", stored)
	}
	if len(tool.created) != 1 || tool.created[0] != stored {
		t.Errorf("tool saw %v, want [%q]", tool.created, stored)
	}
}

func TestManagerList(t *testing.T) {
	tool := &fakeTool{info: &qemuimg.ImageInfo{
		Snapshots: []qemuimg.SnapshotRecord{
			{ID: "1", Name: "fresh-install"},
			{ID: "2", Name: "day2"},
		},
	}}
	mgr := NewManager(tool)

	snaps, err := mgr.List(qcow2Config("/vms/a/disk.qcow2"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(snaps) != 2 || snaps[0].Name != "fresh-install" {
		t.Errorf("snapshots = %+v", snaps)
	}
}

func TestResetRecreatesOverlay(t *testing.T) {
	dir := t.TempDir()
	overlay := filepath.Join(dir, "overlay.qcow2")
	base := filepath.Join(dir, "base.qcow2")
	for _, path := range []string{overlay, base} {
		if err := os.WriteFile(path, []byte("img"), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	tool := &fakeTool{info: &qemuimg.ImageInfo{
		BackingFile:   base,
		BackingFormat: "qcow2",
	}}
	mgr := NewManager(tool)

	action, err := mgr.Reset(qcow2Config(overlay))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !strings.Contains(action, "base.qcow2") {
		t.Errorf("action = %q, want mention of backing file", action)
	}

	if _, err := os.Stat(overlay); !os.IsNotExist(err) {
		t.Error("dirty overlay should have been removed")
	}
	want := [3]string{overlay, base, "qcow2"}
	if len(tool.overlays) != 1 || tool.overlays[0] != want {
		t.Errorf("overlay recreation = %v, want %v", tool.overlays, want)
	}
	if len(tool.applied) != 0 {
		t.Error("overlay reset must not touch snapshots")
	}
}

func TestResetRefusesWhenBackingMissing(t *testing.T) {
	dir := t.TempDir()
	overlay := filepath.Join(dir, "overlay.qcow2")
	if err := os.WriteFile(overlay, []byte("only copy"), 0o644); err != nil {
		t.Fatal(err)
	}

	tool := &fakeTool{info: &qemuimg.ImageInfo{
		BackingFile: filepath.Join(dir, "gone.qcow2"),
	}}
	mgr := NewManager(tool)

	if _, err := mgr.Reset(qcow2Config(overlay)); !errors.Is(err, ErrBackingMissing) {
		t.Fatalf("error = %v, want ErrBackingMissing", err)
	}
	if _, err := os.Stat(overlay); err != nil {
		t.Error("overlay must survive a refused reset")
	}
	if len(tool.overlays) != 0 {
		t.Error("no overlay recreation should run")
	}
}

func TestResetRestoresCleanSnapshot(t *testing.T) {
	tool := &fakeTool{info: &qemuimg.ImageInfo{
		Snapshots: []qemuimg.SnapshotRecord{
			{ID: "1", Name: "day1"},
			{ID: "2", Name: "Fresh-Install"},
			{ID: "3", Name: "day2"},
		},
	}}
	mgr := NewManager(tool)

	action, err := mgr.Reset(qcow2Config("/vms/a/disk.qcow2"))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(tool.applied) != 1 || tool.applied[0] != "Fresh-Install" {
		t.Errorf("applied = %v, want [Fresh-Install]", tool.applied)
	}
	if !strings.Contains(action, "Fresh-Install") {
		t.Errorf("action = %q", action)
	}
}

func TestResetRefusesWithoutSafeDefault(t *testing.T) {
	tool := &fakeTool{info: &qemuimg.ImageInfo{
		Snapshots: []qemuimg.SnapshotRecord{
			{ID: "1", Name: "day1"},
			{ID: "2", Name: "day2"},
		},
	}}
	mgr := NewManager(tool)

	if _, err := mgr.Reset(qcow2Config("/vms/a/disk.qcow2")); !errors.Is(err, ErrNoSafeDefault) {
		t.Errorf("error = %v, want ErrNoSafeDefault", err)
	}
	if len(tool.applied)+len(tool.overlays) != 0 {
		t.Error("refused reset must not change anything")
	}
}
