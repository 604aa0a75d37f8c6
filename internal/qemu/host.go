package qemu

import (
	"bufio"
	"os"
	"os/exec"
	"strings"
	"sync"
)

// kvmDevicePath is the device node whose presence signals KVM support.
const kvmDevicePath = "/dev/kvm"

var (
	// Cached KVM module name; probing scans /proc/modules once.
	kvmModule string
	kvmOnce   sync.Once
)

// KVMAvailable reports whether KVM acceleration can be used on this host.
func KVMAvailable() bool {
	_, err := os.Stat(kvmDevicePath)
	return err == nil
}

// KVMModule returns the name of the loaded vendor KVM module (kvm_intel or
// kvm_amd), "kvm" when the device node exists but no vendor module could be
// identified, and "" when KVM is unavailable. Best-effort: a failed probe
// degrades to the generic answer, never to an error.
func KVMModule() string {
	if !KVMAvailable() {
		return ""
	}

	kvmOnce.Do(func() {
		kvmModule = "kvm"

		file, err := os.Open("/proc/modules")
		if err != nil {
			return
		}
		defer func() { _ = file.Close() }()

		scanner := bufio.NewScanner(file)
		for scanner.Scan() {
			line := scanner.Text()
			if strings.HasPrefix(line, "kvm_intel") || strings.HasPrefix(line, "kvm_amd") {
				if fields := strings.Fields(line); len(fields) > 0 {
					kvmModule = fields[0]
				}
				return
			}
		}
	})

	return kvmModule
}

// EmulatorAvailable reports whether the emulator binary can be found on
// PATH.
func EmulatorAvailable(command string) bool {
	_, err := exec.LookPath(command)
	return err == nil
}

// AvailableEmulators returns the known qemu-system binaries installed on
// this host, in detection order.
func AvailableEmulators() []string {
	var found []string
	for _, cmd := range KnownEmulatorCommands {
		if EmulatorAvailable(cmd) {
			found = append(found, cmd)
		}
	}
	return found
}

// EmulatorVersion returns the first line of the emulator's --version
// output.
func EmulatorVersion(command string) (string, error) {
	out, err := exec.Command(command, "--version").Output()
	if err != nil {
		return "", err
	}
	line, _, _ := strings.Cut(strings.TrimSpace(string(out)), "\n")
	return line, nil
}
