package vm

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/curatorproject/curator/internal/qemu"
)

func writeScript(t *testing.T, dir, content string) {
	t.Helper()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, ScriptName), []byte(content), 0o755); err != nil {
		t.Fatal(err)
	}
}

func TestLoad(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "win98")
	writeScript(t, dir, `#!/bin/bash
qemu-system-i386 -m 512M -hda "$DIR/win98.qcow2"
`)

	v, err := Load(dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if v.Name != "win98" {
		t.Errorf("name = %q, want win98", v.Name)
	}
	if v.Dir != dir {
		t.Errorf("dir = %q, want %q", v.Dir, dir)
	}
	if v.Script != filepath.Join(dir, ScriptName) {
		t.Errorf("script = %q", v.Script)
	}
	if v.Config.MemoryMB != 512 {
		t.Errorf("memory = %d, want 512", v.Config.MemoryMB)
	}
	if len(v.Config.Disks) != 1 {
		t.Fatalf("disks = %+v, want one", v.Config.Disks)
	}
	if want := filepath.Join(dir, "win98.qcow2"); v.Config.Disks[0].Path != want {
		t.Errorf("disk path = %q, want %q", v.Config.Disks[0].Path, want)
	}
}

func TestLoadRefinesDiskFormat(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "mislabeled")
	writeScript(t, dir, `qemu-system-x86_64 -hda disk.img`)

	// A qcow2 image hiding behind a .img extension.
	header := append([]byte{0x51, 0x46, 0x49, 0xfb}, make([]byte, 100)...)
	if err := os.WriteFile(filepath.Join(dir, "disk.img"), header, 0o644); err != nil {
		t.Fatal(err)
	}

	v, err := Load(dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := v.Config.Disks[0].Format; got != qemu.FormatQCOW2 {
		t.Errorf("format = %q, want qcow2 from header sniffing", got)
	}
}

func TestLoadKeepsGuessForMissingDisk(t *testing.T) {
	root := t.TempDir()
	dir := filepath.Join(root, "new")
	writeScript(t, dir, `qemu-system-x86_64 -hda notyet.qcow2`)

	v, err := Load(dir)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got := v.Config.Disks[0].Format; got != qemu.FormatQCOW2 {
		t.Errorf("format = %q, want extension guess for missing file", got)
	}
}

func TestLoadMissingScript(t *testing.T) {
	if _, err := Load(t.TempDir()); err == nil {
		t.Error("directory without launch script must fail to load")
	}
}

func TestLoadAll(t *testing.T) {
	root := t.TempDir()

	writeScript(t, filepath.Join(root, "zeta"), "qemu-system-x86_64\n")
	writeScript(t, filepath.Join(root, "alpha"), "qemu-system-i386\n")

	// Neither a stray file nor a script-less directory is a VM.
	if err := os.WriteFile(filepath.Join(root, "notes.txt"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}
	if err := os.MkdirAll(filepath.Join(root, "empty"), 0o755); err != nil {
		t.Fatal(err)
	}

	vms, err := LoadAll(root)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(vms) != 2 {
		t.Fatalf("got %d VMs, want 2", len(vms))
	}
	if vms[0].Name != "alpha" || vms[1].Name != "zeta" {
		t.Errorf("order = [%s, %s], want sorted by name", vms[0].Name, vms[1].Name)
	}
}
