package qemu

import (
	"fmt"
	"strings"
)

// diskSlots are the legacy IDE slots disks are assigned to by position.
// QEMU's -hda..-hdd shorthand caps out at four disks; anything past that is
// dropped rather than erroring.
var diskSlots = [...]string{"-hda", "-hdb", "-hdc", "-hdd"}

// MaxDisks is the number of -hd? slots available to a launch.
const MaxDisks = len(diskSlots)

// BuildArgs translates a Config plus run-time LaunchOptions into the
// ordered argument list for the emulator binary. The function is pure and
// deterministic; flag order is fixed because emulator compatibility and
// golden-file tests both depend on it.
//
// A boot mode in opts overrides the Config's stored default. Config-level
// extra arguments come before option-level ones, so run-time options can
// append but never remove Configuration defaults.
func BuildArgs(cfg *Config, opts *LaunchOptions) []string {
	if opts == nil {
		opts = &LaunchOptions{}
	}

	args := []string{
		"-m", fmt.Sprintf("%dM", cfg.MemoryMB),
		"-smp", fmt.Sprintf("%d", cfg.CPUCores),
	}

	if cfg.CPUModel != "" {
		args = append(args, "-cpu", cfg.CPUModel)
	}
	if cfg.Machine != "" {
		args = append(args, "-M", cfg.Machine)
	}
	// KVM is opt-in only: absence of the flag means disabled, there is no
	// disabling spelling.
	if cfg.EnableKVM {
		args = append(args, "-enable-kvm")
	}

	vga := cfg.VGA
	if vga == "" {
		vga = VGAStd
	}
	args = append(args, "-vga", string(vga))

	for i, disk := range cfg.Disks {
		if i >= MaxDisks {
			break
		}
		args = append(args, diskSlots[i], disk.Path)
	}

	args = append(args, networkArgs(cfg.Network, opts.DefaultBridge)...)
	args = append(args, bootArgs(effectiveBootMode(cfg, opts))...)

	if len(opts.USBDevices) > 0 {
		args = append(args, "-usb")
		for _, dev := range opts.USBDevices {
			args = append(args, dev.Args()...)
		}
	}

	args = append(args, splitExtraArgs(cfg.ExtraArgs)...)
	args = append(args, splitExtraArgs(opts.ExtraArgs)...)

	return args
}

// effectiveBootMode applies the one-shot override precedence: a non-Normal
// option wins over whatever the Config stores.
func effectiveBootMode(cfg *Config, opts *LaunchOptions) BootMode {
	if !opts.BootMode.IsNormal() {
		return opts.BootMode
	}
	return cfg.BootMode
}

// FallbackBridge is the bridge device used when neither the network spec
// nor the launch options name one.
const FallbackBridge = "qemubr0"

func networkArgs(net *NetworkSpec, defaultBridge string) []string {
	if net == nil || net.Backend == BackendNone {
		return nil
	}

	model := net.Model
	if model == "" {
		model = "e1000"
	}
	args := []string{"-net", "nic,model=" + model}

	switch net.Backend {
	case BackendBridge:
		bridge := net.Bridge
		if bridge == "" {
			bridge = defaultBridge
		}
		if bridge == "" {
			bridge = FallbackBridge
		}
		args = append(args, "-net", "bridge,br="+bridge)
	default:
		user := "user"
		for _, pf := range net.PortForwards {
			user += fmt.Sprintf(",hostfwd=%s::%d-:%d", pf.Protocol, pf.HostPort, pf.GuestPort)
		}
		args = append(args, "-net", user)
	}

	return args
}

func bootArgs(mode BootMode) []string {
	switch {
	case mode.IsInstall():
		return []string{"-boot", "d"}
	case mode.IsNetwork():
		return []string{"-boot", "n"}
	default:
		if iso, ok := mode.CdromPath(); ok {
			return []string{"-cdrom", iso, "-boot", "d"}
		}
		return nil
	}
}

// splitExtraArgs turns stored extra-argument entries like "-display gtk"
// into individual argv tokens.
func splitExtraArgs(extra []string) []string {
	var out []string
	for _, e := range extra {
		out = append(out, strings.Fields(e)...)
	}
	return out
}

// Args returns the command fragment attaching this host USB device to the
// guest.
func (d USBDevice) Args() []string {
	return []string{
		"-device",
		fmt.Sprintf("usb-host,vendorid=0x%04x,productid=0x%04x", d.VendorID, d.ProductID),
	}
}

// CommandLine renders the full invocation, emulator binary included, as a
// single shell-style string. Display helper only; process spawning uses the
// argv form.
func CommandLine(cfg *Config, opts *LaunchOptions) string {
	parts := append([]string{cfg.Emulator.Command()}, BuildArgs(cfg, opts)...)
	return strings.Join(parts, " ")
}
