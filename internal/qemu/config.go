// Package qemu models a QEMU invocation: the configuration extracted from a
// VM's launch script, the run-time launch options layered on top of it, and
// the deterministic translation of both into a command line.
package qemu

// Default values applied when a launch script does not state a field.
const (
	DefaultMemoryMB = 512
	DefaultCPUCores = 1
)

// Config is the structured form of a launch script's QEMU invocation.
// Configs are values; transformations produce new ones rather than mutating
// in place.
type Config struct {
	Emulator     Emulator
	MemoryMB     uint32
	CPUCores     uint32
	CPUModel     string
	Machine      string
	VGA          VGAType
	AudioDevices []AudioDevice
	Network      *NetworkSpec
	Disks        []DiskSpec
	BootMode     BootMode
	EnableKVM    bool
	UEFI         bool
	TPM          bool
	ExtraArgs    []string

	// RawScript keeps the original launch script text verbatim for display
	// and audit.
	RawScript string
}

// DefaultConfig returns a Config with the documented defaults: 512 MB
// memory, one CPU core, standard VGA, user-mode networking.
func DefaultConfig() Config {
	return Config{
		Emulator: EmulatorX86_64,
		MemoryMB: DefaultMemoryMB,
		CPUCores: DefaultCPUCores,
		VGA:      VGAStd,
		Network:  DefaultNetwork(),
		BootMode: BootNormal,
	}
}

// SupportsSnapshots reports whether any configured disk can hold internal
// snapshots.
func (c *Config) SupportsSnapshots() bool {
	for _, d := range c.Disks {
		if d.Format.SupportsSnapshots() {
			return true
		}
	}
	return false
}

// PrimaryDisk returns the first configured disk, which all snapshot
// operations target, or nil when the VM has no disks.
func (c *Config) PrimaryDisk() *DiskSpec {
	if len(c.Disks) == 0 {
		return nil
	}
	return &c.Disks[0]
}

// USBDevice identifies a host USB device to pass through to the guest.
type USBDevice struct {
	VendorID  uint16
	ProductID uint16
}

// LaunchOptions are run-time-only overrides for a single launch. They are
// never persisted; they combine with a Config only at argument-build time.
type LaunchOptions struct {
	BootMode   BootMode
	ExtraArgs  []string
	USBDevices []USBDevice

	// DefaultBridge names the bridge device used when the Config's network
	// wants a bridge but names none. Empty falls back to FallbackBridge.
	DefaultBridge string
}
