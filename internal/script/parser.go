// Package script extracts a structured QEMU configuration from a VM launch
// script.
//
// Parsing is best-effort over maintainer-authored shell: recognized flags
// populate Config fields, a handful of known directives (-display, -usb,
// -rtc) are captured as opaque extra arguments so re-emission never loses
// them, and everything unrecognized is ignored. Parsing never fails; fields
// without a detected value take the package qemu defaults. The parser is a
// pure function of the script text — it executes no processes and probes no
// image files, so disk formats are extension guesses until a caller refines
// them.
package script

import (
	"path/filepath"
	"strconv"
	"strings"
	"unicode"

	"github.com/curatorproject/curator/internal/qemu"
)

// Parse extracts a Config from launch-script text. vmDir anchors relative
// disk paths and the $DIR / $VM_DIR / $(dirname $0) conventions generated
// scripts use.
func Parse(vmDir, content string) qemu.Config {
	cfg := qemu.DefaultConfig()
	cfg.RawScript = content

	if emu, ok := extractEmulator(content); ok {
		cfg.Emulator = emu
	}
	if mem, ok := extractMemory(content); ok {
		cfg.MemoryMB = mem
	}
	if cores, ok := extractCPUCores(content); ok {
		cfg.CPUCores = cores
	}
	cfg.CPUModel = extractFlagToken(content, "-cpu ")
	cfg.Machine = extractMachine(content)
	if vga := extractFlagToken(content, "-vga "); vga != "" {
		cfg.VGA = qemu.VGATypeFromString(vga)
	}
	cfg.AudioDevices = extractAudioDevices(content)

	cfg.EnableKVM = strings.Contains(content, "-enable-kvm") ||
		strings.Contains(content, "-accel kvm")
	cfg.UEFI = strings.Contains(content, "OVMF") ||
		(strings.Contains(content, "-bios") && strings.Contains(content, "efi"))
	cfg.TPM = strings.Contains(content, "-tpmdev") || strings.Contains(content, "swtpm")

	cfg.Disks = extractDisks(content, vmDir)
	cfg.Network = extractNetwork(content)
	cfg.ExtraArgs = extractExtraArgs(content)

	return cfg
}

// nonCommentLines yields the script's lines with comment lines dropped.
func nonCommentLines(content string) []string {
	var lines []string
	for _, line := range strings.Split(content, "\n") {
		if strings.HasPrefix(strings.TrimSpace(line), "#") {
			continue
		}
		lines = append(lines, line)
	}
	return lines
}

func extractEmulator(content string) (qemu.Emulator, bool) {
	for _, cmd := range qemu.KnownEmulatorCommands {
		if strings.Contains(content, cmd) {
			return qemu.EmulatorFromCommand(cmd), true
		}
	}
	return qemu.Emulator{}, false
}

// extractMemory reads the -m flag. A G suffix means GiB; bare values below
// 64 are assumed to be GiB too, since nobody runs a VM on 63 MB.
func extractMemory(content string) (uint32, bool) {
	for _, line := range nonCommentLines(content) {
		idx := strings.Index(line, "-m ")
		if idx < 0 {
			continue
		}
		rest := line[idx+3:]
		digits := leadingDigits(rest)
		if digits == "" {
			continue
		}
		mem, err := strconv.ParseUint(digits, 10, 32)
		if err != nil {
			continue
		}
		if strings.HasPrefix(rest[len(digits):], "G") || mem < 64 {
			return uint32(mem) * 1024, true
		}
		return uint32(mem), true
	}
	return 0, false
}

func extractCPUCores(content string) (uint32, bool) {
	for _, line := range nonCommentLines(content) {
		idx := strings.Index(line, "-smp ")
		if idx < 0 {
			continue
		}
		digits := leadingDigits(line[idx+5:])
		if digits == "" {
			continue
		}
		cores, err := strconv.ParseUint(digits, 10, 32)
		if err != nil {
			continue
		}
		return uint32(cores), true
	}
	return 0, false
}

// extractFlagToken returns the whitespace-delimited token following the
// first occurrence of flag on a non-comment line.
func extractFlagToken(content, flag string) string {
	for _, line := range nonCommentLines(content) {
		idx := strings.Index(line, flag)
		if idx < 0 {
			continue
		}
		token := takeToken(line[idx+len(flag):], "")
		if token != "" {
			return token
		}
	}
	return ""
}

func extractMachine(content string) string {
	for _, line := range nonCommentLines(content) {
		if idx := strings.Index(line, "-M "); idx >= 0 {
			if machine := takeToken(line[idx+3:], ""); machine != "" {
				return machine
			}
		}
		if idx := strings.Index(line, "-machine "); idx >= 0 {
			// -machine takes comma-joined options; only the type matters.
			if machine := takeToken(line[idx+9:], ","); machine != "" {
				return machine
			}
		}
	}
	return ""
}

func extractAudioDevices(content string) []qemu.AudioDevice {
	var devices []qemu.AudioDevice
	if strings.Contains(content, "sb16") || strings.Contains(content, "SB16") {
		devices = append(devices, qemu.AudioSB16)
	}
	if strings.Contains(content, "ac97") || strings.Contains(content, "AC97") {
		devices = append(devices, qemu.AudioAC97)
	}
	if strings.Contains(content, "intel-hda") || strings.Contains(content, "hda-duplex") {
		devices = append(devices, qemu.AudioHDA)
	}
	if strings.Contains(content, "es1370") {
		devices = append(devices, qemu.AudioES1370)
	}
	return devices
}

func extractDisks(content, vmDir string) []qemu.DiskSpec {
	var disks []qemu.DiskSpec
	vars := extractShellVariables(content, vmDir)

	for _, line := range nonCommentLines(content) {
		for _, hd := range []string{"-hda ", "-hdb ", "-hdc ", "-hdd "} {
			idx := strings.Index(line, hd)
			if idx < 0 {
				continue
			}
			path, ok := extractPathArg(line[idx+len(hd):])
			if !ok {
				continue
			}
			full := resolvePath(expandVariables(path, vars, vmDir), vmDir)
			disks = append(disks, qemu.DiskSpec{
				Path:      full,
				Format:    qemu.DiskFormatFromPath(full),
				Interface: "ide",
			})
		}

		if strings.Contains(line, "-drive") && strings.Contains(line, "file=") {
			path, ok := extractDriveFile(line)
			if !ok {
				continue
			}
			full := resolvePath(expandVariables(path, vars, vmDir), vmDir)
			iface := "ide"
			if strings.Contains(line, "if=virtio") {
				iface = "virtio"
			} else if strings.Contains(line, "if=scsi") {
				iface = "scsi"
			}
			disks = append(disks, qemu.DiskSpec{
				Path:      full,
				Format:    qemu.DiskFormatFromPath(full),
				Interface: iface,
			})
		}
	}

	return disks
}

func extractDriveFile(line string) (string, bool) {
	idx := strings.Index(line, "file=")
	if idx < 0 {
		return "", false
	}
	rest := line[idx+5:]
	if inner, ok := strings.CutPrefix(rest, `"`); ok {
		end := strings.Index(inner, `"`)
		if end < 0 {
			return "", false
		}
		return inner[:end], true
	}
	path := takeToken(rest, ",")
	return path, path != ""
}

// extractPathArg reads a path argument that may be quoted. A value starting
// with '-' is the next flag, not a path.
func extractPathArg(arg string) (string, bool) {
	trimmed := strings.TrimSpace(arg)
	if inner, ok := strings.CutPrefix(trimmed, `"`); ok {
		end := strings.Index(inner, `"`)
		if end < 0 {
			return "", false
		}
		return inner[:end], true
	}
	if inner, ok := strings.CutPrefix(trimmed, "'"); ok {
		end := strings.Index(inner, "'")
		if end < 0 {
			return "", false
		}
		return inner[:end], true
	}
	path := takeToken(trimmed, "")
	if path == "" || strings.HasPrefix(path, "-") {
		return "", false
	}
	return path, true
}

func resolvePath(path, vmDir string) string {
	path = strings.ReplaceAll(path, "$DIR", vmDir)
	path = strings.ReplaceAll(path, "${DIR}", vmDir)
	path = strings.ReplaceAll(path, "$(dirname $0)", vmDir)

	if filepath.IsAbs(path) {
		return filepath.Clean(path)
	}
	return filepath.Join(vmDir, path)
}

func extractNetwork(content string) *qemu.NetworkSpec {
	cfg := qemu.DefaultNetwork()
	hasNetwork := false

	for _, line := range nonCommentLines(content) {
		if strings.Contains(line, "-device") {
			switch {
			case strings.Contains(line, "virtio-net"):
				cfg.Model = "virtio-net"
				hasNetwork = true
			case strings.Contains(line, "e1000") && strings.Contains(line, "netdev="):
				cfg.Model = "e1000"
				hasNetwork = true
			case strings.Contains(line, "rtl8139") && strings.Contains(line, "netdev="):
				cfg.Model = "rtl8139"
				hasNetwork = true
			}
		}

		if strings.Contains(line, "-net nic") || strings.Contains(line, "-nic") {
			hasNetwork = true
			switch {
			case strings.Contains(line, "model=virtio"):
				cfg.Model = "virtio-net"
			case strings.Contains(line, "model=e1000"):
				cfg.Model = "e1000"
			case strings.Contains(line, "model=rtl8139"):
				cfg.Model = "rtl8139"
			}
		}

		if strings.Contains(line, "-netdev") {
			hasNetwork = true
			switch {
			case strings.Contains(line, "passt"):
				cfg.Backend = qemu.BackendPasst
			case strings.Contains(line, "bridge"):
				cfg.Backend = qemu.BackendBridge
				cfg.Bridge = extractBridgeName(line)
			case strings.Contains(line, "user"):
				cfg.Backend = qemu.BackendUser
				cfg.PortForwards = extractPortForwards(line)
			}
		}

		if strings.Contains(line, "-net user") {
			hasNetwork = true
			cfg.Backend = qemu.BackendUser
			cfg.PortForwards = append(cfg.PortForwards, extractPortForwards(line)...)
		}

		if strings.Contains(line, "-net bridge") {
			hasNetwork = true
			cfg.Backend = qemu.BackendBridge
			if strings.Contains(line, "br=") {
				cfg.Bridge = extractBridgeName(line)
			}
		}
	}

	if hasNetwork || strings.Contains(content, "-net") || strings.Contains(content, "-nic") {
		return cfg
	}
	return nil
}

// extractBridgeName reads the br= value, if any. An unnamed bridge stays
// empty so launch-time defaults can fill it.
func extractBridgeName(line string) string {
	idx := strings.Index(line, "br=")
	if idx < 0 {
		return ""
	}
	var b strings.Builder
	for _, r := range line[idx+3:] {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '-' && r != '_' {
			break
		}
		b.WriteRune(r)
	}
	return b.String()
}

// extractPortForwards reads every hostfwd= segment on the line. Segments
// look like "tcp::2222-:22" or "tcp:127.0.0.1:8080-:80".
func extractPortForwards(line string) []qemu.PortForward {
	var forwards []qemu.PortForward

	rest := line
	for {
		idx := strings.Index(rest, "hostfwd=")
		if idx < 0 {
			break
		}
		rest = rest[idx+len("hostfwd="):]
		segment := takeToken(rest, ",")
		if pf, ok := parseHostFwd(segment); ok {
			forwards = append(forwards, pf)
		}
		rest = rest[len(segment):]
	}

	return forwards
}

func parseHostFwd(segment string) (qemu.PortForward, bool) {
	hostPart, guestPart, found := strings.Cut(segment, "-")
	if !found {
		return qemu.PortForward{}, false
	}

	proto := qemu.ProtocolTCP
	if strings.HasPrefix(hostPart, "udp") {
		proto = qemu.ProtocolUDP
	}

	hostPort, ok := lastPort(hostPart)
	if !ok {
		return qemu.PortForward{}, false
	}
	guestPort, ok := lastPort(guestPart)
	if !ok {
		return qemu.PortForward{}, false
	}

	return qemu.PortForward{Protocol: proto, HostPort: hostPort, GuestPort: guestPort}, true
}

func lastPort(s string) (uint16, bool) {
	if idx := strings.LastIndex(s, ":"); idx >= 0 {
		s = s[idx+1:]
	}
	port, err := strconv.ParseUint(s, 10, 16)
	if err != nil {
		return 0, false
	}
	return uint16(port), true
}

// extractExtraArgs captures directives the model has no field for but a
// rebuilt command must keep.
func extractExtraArgs(content string) []string {
	var args []string

	for _, line := range nonCommentLines(content) {
		idx := strings.Index(line, "-display ")
		if idx < 0 {
			continue
		}
		var b strings.Builder
		for _, r := range line[idx+9:] {
			if !unicode.IsLetter(r) && !unicode.IsDigit(r) && r != '-' {
				break
			}
			b.WriteRune(r)
		}
		if b.Len() > 0 {
			args = append(args, "-display "+b.String())
			break
		}
	}

	if strings.Contains(content, "-usb") {
		args = append(args, "-usb")
	}
	if strings.Contains(content, "-rtc base=localtime") {
		args = append(args, "-rtc base=localtime")
	}

	return args
}

func leadingDigits(s string) string {
	end := 0
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	return s[:end]
}

// takeToken reads characters until whitespace, a backslash continuation, or
// any rune in extraStops.
func takeToken(s, extraStops string) string {
	var b strings.Builder
	for _, r := range s {
		if unicode.IsSpace(r) || r == '\\' || strings.ContainsRune(extraStops, r) {
			break
		}
		b.WriteRune(r)
	}
	return b.String()
}
