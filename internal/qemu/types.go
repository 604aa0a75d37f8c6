package qemu

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Emulator identifies a qemu-system binary. Unrecognized binaries are
// preserved as EmulatorOther so round-tripping a script never loses the
// command it named.
type Emulator struct {
	kind string
	name string
}

const (
	emulatorX86_64  = "x86_64"
	emulatorI386    = "i386"
	emulatorPPC     = "ppc"
	emulatorM68K    = "m68k"
	emulatorARM     = "arm"
	emulatorAArch64 = "aarch64"
	emulatorOther   = "other"
)

var (
	EmulatorX86_64  = Emulator{kind: emulatorX86_64}
	EmulatorI386    = Emulator{kind: emulatorI386}
	EmulatorPPC     = Emulator{kind: emulatorPPC}
	EmulatorM68K    = Emulator{kind: emulatorM68K}
	EmulatorARM     = Emulator{kind: emulatorARM}
	EmulatorAArch64 = Emulator{kind: emulatorAArch64}
)

// KnownEmulatorCommands lists the qemu-system binaries curator recognizes,
// in detection order.
var KnownEmulatorCommands = []string{
	"qemu-system-x86_64",
	"qemu-system-i386",
	"qemu-system-ppc",
	"qemu-system-m68k",
	"qemu-system-arm",
	"qemu-system-aarch64",
}

// EmulatorOther wraps an unrecognized emulator command name.
func EmulatorOther(command string) Emulator {
	return Emulator{kind: emulatorOther, name: command}
}

// EmulatorFromCommand maps a qemu-system binary name to an Emulator.
func EmulatorFromCommand(cmd string) Emulator {
	switch cmd {
	case "qemu-system-x86_64":
		return EmulatorX86_64
	case "qemu-system-i386":
		return EmulatorI386
	case "qemu-system-ppc":
		return EmulatorPPC
	case "qemu-system-m68k":
		return EmulatorM68K
	case "qemu-system-arm":
		return EmulatorARM
	case "qemu-system-aarch64":
		return EmulatorAArch64
	default:
		return EmulatorOther(cmd)
	}
}

// Command returns the executable name for this emulator.
func (e Emulator) Command() string {
	switch e.kind {
	case emulatorX86_64:
		return "qemu-system-x86_64"
	case emulatorI386:
		return "qemu-system-i386"
	case emulatorPPC:
		return "qemu-system-ppc"
	case emulatorM68K:
		return "qemu-system-m68k"
	case emulatorARM:
		return "qemu-system-arm"
	case emulatorAArch64:
		return "qemu-system-aarch64"
	default:
		return e.name
	}
}

// Architecture returns a human-readable architecture label.
func (e Emulator) Architecture() string {
	switch e.kind {
	case emulatorX86_64:
		return "x86_64"
	case emulatorI386:
		return "i386"
	case emulatorPPC:
		return "PowerPC"
	case emulatorM68K:
		return "Motorola 68k"
	case emulatorARM:
		return "ARM"
	case emulatorAArch64:
		return "ARM64"
	default:
		return "Unknown"
	}
}

func (e Emulator) String() string { return e.Command() }

// VGAType is the value passed to the emulator's -vga flag. Unrecognized
// values pass through unchanged.
type VGAType string

const (
	VGAStd    VGAType = "std"
	VGACirrus VGAType = "cirrus"
	VGAVMware VGAType = "vmware"
	VGAQXL    VGAType = "qxl"
	VGAVirtio VGAType = "virtio"
	VGANone   VGAType = "none"
)

// VGATypeFromString normalizes a -vga value. Anything outside the known set
// is kept verbatim (lowercased) as a forward-compatibility escape.
func VGATypeFromString(s string) VGAType {
	switch v := VGAType(strings.ToLower(s)); v {
	case VGAStd, VGACirrus, VGAVMware, VGAQXL, VGAVirtio, VGANone:
		return v
	default:
		return v
	}
}

// AudioDevice is a guest audio device model.
type AudioDevice string

const (
	AudioSB16   AudioDevice = "sb16"
	AudioAC97   AudioDevice = "ac97"
	AudioES1370 AudioDevice = "es1370"
	AudioHDA    AudioDevice = "hda"
	AudioPCSpk  AudioDevice = "pcspk"
)

// AudioDeviceFromString normalizes an audio device name, passing unknown
// values through.
func AudioDeviceFromString(s string) AudioDevice {
	switch strings.ToLower(s) {
	case "sb16":
		return AudioSB16
	case "ac97":
		return AudioAC97
	case "es1370":
		return AudioES1370
	case "hda", "intel-hda":
		return AudioHDA
	case "pcspk":
		return AudioPCSpk
	default:
		return AudioDevice(strings.ToLower(s))
	}
}

// DiskFormat is a disk image format.
type DiskFormat string

const (
	FormatQCOW2 DiskFormat = "qcow2"
	FormatRaw   DiskFormat = "raw"
	FormatVMDK  DiskFormat = "vmdk"
	FormatVDI   DiskFormat = "vdi"
)

// DiskFormatFromExtension guesses a format from a file extension (without
// the leading dot). Unknown extensions are preserved as-is.
func DiskFormatFromExtension(ext string) DiskFormat {
	switch strings.ToLower(ext) {
	case "qcow2":
		return FormatQCOW2
	case "raw", "img":
		return FormatRaw
	case "vmdk":
		return FormatVMDK
	case "vdi":
		return FormatVDI
	default:
		return DiskFormat(strings.ToLower(ext))
	}
}

// DiskFormatFromPath guesses a format from a file path's extension,
// defaulting to raw when there is none.
func DiskFormatFromPath(path string) DiskFormat {
	ext := strings.TrimPrefix(filepath.Ext(path), ".")
	if ext == "" {
		return FormatRaw
	}
	return DiskFormatFromExtension(ext)
}

// SupportsSnapshots reports whether the format can hold internal snapshots.
// Only qcow2 can; the snapshot manager relies on this invariant.
func (f DiskFormat) SupportsSnapshots() bool {
	return f == FormatQCOW2
}

// DiskSpec describes one disk attached to a VM.
type DiskSpec struct {
	Path      string
	Format    DiskFormat
	Interface string // ide, virtio, scsi
}

// PortProtocol is a port forwarding protocol.
type PortProtocol string

const (
	ProtocolTCP PortProtocol = "tcp"
	ProtocolUDP PortProtocol = "udp"
)

// PortForward is a single user-mode networking forwarding rule.
type PortForward struct {
	Protocol  PortProtocol
	HostPort  uint16
	GuestPort uint16
}

func (p PortForward) String() string {
	return fmt.Sprintf("%s %d -> %d", strings.ToUpper(string(p.Protocol)), p.HostPort, p.GuestPort)
}

// NetworkBackend selects how guest traffic reaches the host network.
type NetworkBackend string

const (
	BackendUser   NetworkBackend = "user"
	BackendPasst  NetworkBackend = "passt"
	BackendBridge NetworkBackend = "bridge"
	BackendNone   NetworkBackend = "none"
)

// NetworkSpec describes the guest NIC and its backend.
type NetworkSpec struct {
	Model        string
	Backend      NetworkBackend
	Bridge       string // set when Backend is BackendBridge
	PortForwards []PortForward
}

// DefaultNetwork returns the conventional user-mode network with an e1000
// NIC.
func DefaultNetwork() *NetworkSpec {
	return &NetworkSpec{
		Model:   "e1000",
		Backend: BackendUser,
	}
}

// UserMode reports whether the backend is user-mode (SLIRP) networking.
func (n *NetworkSpec) UserMode() bool {
	return n.Backend == BackendUser
}

// BootMode selects how a single launch boots. Normal is the persistent
// steady state; the others are one-shot overrides and are never stored as
// a VM's default.
type BootMode struct {
	kind string
	iso  string
}

const (
	bootNormal  = "normal"
	bootInstall = "install"
	bootCdrom   = "cdrom"
	bootNetwork = "network"
)

var (
	BootNormal  = BootMode{kind: bootNormal}
	BootInstall = BootMode{kind: bootInstall}
	BootNetwork = BootMode{kind: bootNetwork}
)

// BootCdrom boots once from the given ISO image.
func BootCdrom(isoPath string) BootMode {
	return BootMode{kind: bootCdrom, iso: isoPath}
}

// IsNormal reports whether this is the steady-state boot mode.
func (b BootMode) IsNormal() bool { return b.kind == bootNormal || b.kind == "" }

// IsInstall reports whether this is the one-shot install boot mode.
func (b BootMode) IsInstall() bool { return b.kind == bootInstall }

// IsNetwork reports whether this is the one-shot network boot mode.
func (b BootMode) IsNetwork() bool { return b.kind == bootNetwork }

// CdromPath returns the ISO path and true when this is a cdrom boot.
func (b BootMode) CdromPath() (string, bool) {
	return b.iso, b.kind == bootCdrom
}

func (b BootMode) String() string {
	switch b.kind {
	case bootInstall:
		return "install"
	case bootCdrom:
		return "cdrom:" + b.iso
	case bootNetwork:
		return "network"
	default:
		return "normal"
	}
}
