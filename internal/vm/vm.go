// Package vm discovers virtual machines on disk. A VM is a directory
// containing a launch.sh script; the script is the single source of truth
// for the machine's configuration.
package vm

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/curatorproject/curator/internal/qemu"
	"github.com/curatorproject/curator/internal/qemuimg"
	"github.com/curatorproject/curator/internal/script"
)

// ScriptName is the launch script filename every VM directory must contain.
const ScriptName = "launch.sh"

// VM is a virtual machine rooted at a directory.
type VM struct {
	Name   string
	Dir    string
	Script string
	Config qemu.Config
}

// Load reads a VM from its directory, parsing launch.sh into a Config.
// Disk formats guessed from file extensions are refined by sniffing the
// image headers of disks that actually exist.
func Load(dir string) (*VM, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, fmt.Errorf("resolve vm directory: %w", err)
	}

	scriptPath := filepath.Join(abs, ScriptName)
	content, err := os.ReadFile(scriptPath)
	if err != nil {
		return nil, fmt.Errorf("read launch script: %w", err)
	}

	cfg := script.Parse(abs, string(content))
	refineDiskFormats(&cfg)

	return &VM{
		Name:   filepath.Base(abs),
		Dir:    abs,
		Script: scriptPath,
		Config: cfg,
	}, nil
}

// refineDiskFormats replaces extension-guessed formats with header-sniffed
// ones for disks present on the filesystem. Missing disks keep the guess;
// a VM with a not-yet-created disk is still loadable.
func refineDiskFormats(cfg *qemu.Config) {
	for i := range cfg.Disks {
		format, err := qemuimg.DetectFormat(cfg.Disks[i].Path)
		if err != nil {
			continue
		}
		cfg.Disks[i].Format = format
	}
}

// LoadAll loads every VM directly under root, sorted by name. Directories
// without a launch script are skipped; a VM whose script fails to read is
// an error, since that indicates a broken VM rather than a stray directory.
func LoadAll(root string) ([]*VM, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, fmt.Errorf("read vm root %s: %w", root, err)
	}

	var vms []*VM
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		dir := filepath.Join(root, entry.Name())
		if _, err := os.Stat(filepath.Join(dir, ScriptName)); err != nil {
			continue
		}
		v, err := Load(dir)
		if err != nil {
			return nil, fmt.Errorf("load vm %s: %w", entry.Name(), err)
		}
		vms = append(vms, v)
	}

	sort.Slice(vms, func(i, j int) bool { return vms[i].Name < vms[j].Name })
	return vms, nil
}
