// Package lifecycle starts, probes, and stops virtual machines. Launching
// prefers the VM's own launch script so hand-edited scripts keep working;
// the direct path builds the command line itself for VMs managed entirely
// by curator.
package lifecycle

import (
	"fmt"
	"io"
	"os"
	"os/exec"

	"github.com/kdomanski/iso9660"

	"github.com/curatorproject/curator/internal/qemu"
	"github.com/curatorproject/curator/internal/vm"
)

// Starter spawns a detached process. Tests substitute a fake to capture
// the command line without running anything.
type Starter interface {
	// Start launches name with args in dir, detached from curator's own
	// stdio, and returns the child's pid.
	Start(dir, name string, args ...string) (int, error)
}

// ExecStarter runs processes with os/exec, discarding their output and
// reaping them in the background so no zombies accumulate.
type ExecStarter struct{}

func (ExecStarter) Start(dir, name string, args ...string) (int, error) {
	cmd := exec.Command(name, args...)
	cmd.Dir = dir
	cmd.Stdin = nil
	cmd.Stdout = io.Discard
	cmd.Stderr = io.Discard
	if err := cmd.Start(); err != nil {
		return 0, err
	}
	go func() { _ = cmd.Wait() }()
	return cmd.Process.Pid, nil
}

// Launcher starts VMs.
type Launcher struct {
	starter Starter
}

// NewLauncher returns a Launcher that spawns real processes.
func NewLauncher() *Launcher {
	return &Launcher{starter: ExecStarter{}}
}

// NewLauncherWithStarter returns a Launcher using a custom process starter.
func NewLauncherWithStarter(s Starter) *Launcher {
	return &Launcher{starter: s}
}

// Launch starts a VM through its launch script. Boot-mode overrides become
// script arguments; generated scripts understand them and hand-written ones
// see them as positional arguments they may ignore. Returns the script
// interpreter's pid.
func (l *Launcher) Launch(v *vm.VM, opts qemu.LaunchOptions) (int, error) {
	if err := validateBootMedia(opts.BootMode); err != nil {
		return 0, err
	}

	args := []string{vm.ScriptName}
	if iso, ok := opts.BootMode.CdromPath(); ok {
		args = append(args, "--cdrom", iso)
	} else if opts.BootMode.IsInstall() {
		args = append(args, "--install")
	} else if opts.BootMode.IsNetwork() {
		args = append(args, "--netboot")
	}
	args = append(args, opts.ExtraArgs...)
	if len(opts.USBDevices) > 0 {
		args = append(args, "-usb")
		for _, dev := range opts.USBDevices {
			args = append(args, dev.Args()...)
		}
	}

	pid, err := l.starter.Start(v.Dir, "bash", args...)
	if err != nil {
		return 0, fmt.Errorf("launch %s: %w", v.Name, err)
	}
	return pid, nil
}

// LaunchDirect starts the emulator without the launch script, building the
// full command line from the VM's configuration and the launch options.
// Returns the emulator's pid.
func (l *Launcher) LaunchDirect(v *vm.VM, opts qemu.LaunchOptions) (int, error) {
	if err := validateBootMedia(opts.BootMode); err != nil {
		return 0, err
	}
	// A diskless direct launch is only meaningful when installing or
	// booting from other media.
	if v.Config.PrimaryDisk() == nil && opts.BootMode.IsNormal() && v.Config.BootMode.IsNormal() {
		return 0, fmt.Errorf("launch %s: no disks configured", v.Name)
	}

	args := qemu.BuildArgs(&v.Config, &opts)
	pid, err := l.starter.Start(v.Dir, v.Config.Emulator.Command(), args...)
	if err != nil {
		return 0, fmt.Errorf("launch %s: %w", v.Name, err)
	}
	return pid, nil
}

// validateBootMedia checks a cdrom boot's ISO before anything is spawned.
// A bad path or a non-ISO file would otherwise surface as an opaque
// emulator error after the process is already detached.
func validateBootMedia(mode qemu.BootMode) error {
	iso, ok := mode.CdromPath()
	if !ok {
		return nil
	}

	fi, err := os.Stat(iso)
	if err != nil {
		return fmt.Errorf("cdrom image: %w", err)
	}
	if !fi.Mode().IsRegular() {
		return fmt.Errorf("cdrom image %s is not a regular file", iso)
	}

	f, err := os.Open(iso)
	if err != nil {
		return fmt.Errorf("cdrom image: %w", err)
	}
	defer func() { _ = f.Close() }()

	if _, err := iso9660.OpenImage(f); err != nil {
		return fmt.Errorf("cdrom image %s is not a valid ISO 9660 image: %w", iso, err)
	}
	return nil
}
