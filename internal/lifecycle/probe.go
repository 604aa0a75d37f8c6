package lifecycle

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/curatorproject/curator/internal/qemuimg"
	"github.com/curatorproject/curator/internal/vm"
)

// Prober answers whether a VM's emulator process is alive and asks it to
// stop. Process discovery matches on the command line because curator does
// not hold on to pids: a VM launched by hand, or before curator restarted,
// is still its VM.
type Prober struct {
	runner qemuimg.Runner
}

// NewProber returns a Prober using the system pgrep and pkill.
func NewProber() *Prober {
	return &Prober{runner: qemuimg.ExecRunner{}}
}

// NewProberWithRunner returns a Prober with a custom process runner.
func NewProberWithRunner(r qemuimg.Runner) *Prober {
	return &Prober{runner: r}
}

// processPattern is the pgrep -f pattern identifying a VM's emulator.
// The primary disk's filename is the most stable identifier across script
// edits; diskless VMs fall back to the launch script's path.
func processPattern(v *vm.VM) string {
	if disk := v.Config.PrimaryDisk(); disk != nil {
		return "qemu.*" + filepath.Base(disk.Path)
	}
	return v.Script
}

// IsRunning reports whether the VM's emulator process exists.
func (p *Prober) IsRunning(v *vm.VM) bool {
	stdout, _, err := p.runner.Run("pgrep", "-f", processPattern(v))
	if err != nil {
		// pgrep exits 1 when nothing matched.
		return false
	}
	return strings.TrimSpace(string(stdout)) != ""
}

// Stop sends SIGTERM to the VM's emulator, giving the guest a chance to
// shut down cleanly.
func (p *Prober) Stop(v *vm.VM) error {
	if _, stderr, err := p.runner.Run("pkill", "-f", processPattern(v)); err != nil {
		return fmt.Errorf("stop %s: %s: %w", v.Name, strings.TrimSpace(string(stderr)), err)
	}
	return nil
}

// Kill sends SIGKILL to the VM's emulator. Used after a graceful stop has
// been pending past the escalation threshold.
func (p *Prober) Kill(v *vm.VM) error {
	if _, stderr, err := p.runner.Run("pkill", "-9", "-f", processPattern(v)); err != nil {
		return fmt.Errorf("kill %s: %s: %w", v.Name, strings.TrimSpace(string(stderr)), err)
	}
	return nil
}
