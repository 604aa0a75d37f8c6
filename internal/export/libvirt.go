// Package export converts curator VM configurations into libvirt domain
// XML so a script-managed VM can be imported into virsh or virt-manager.
package export

import (
	"fmt"

	"libvirt.org/go/libvirtxml"

	"github.com/curatorproject/curator/internal/qemu"
	"github.com/curatorproject/curator/internal/vm"
)

// diskTargets maps disk index to libvirt target device names for the IDE
// bus, matching the emulator's -hda through -hdd slots.
var diskTargets = []string{"hda", "hdb", "hdc", "hdd"}

// DomainXML renders the VM as a libvirt domain definition. The mapping is
// best effort: script-only details like extra raw arguments have no domain
// XML equivalent and are dropped.
func DomainXML(v *vm.VM) (string, error) {
	cfg := &v.Config

	domainType := "qemu"
	if cfg.EnableKVM {
		domainType = "kvm"
	}

	domain := &libvirtxml.Domain{
		Type: domainType,
		Name: v.Name,
		Memory: &libvirtxml.DomainMemory{
			Value: uint(cfg.MemoryMB),
			Unit:  "MiB",
		},
		VCPU: &libvirtxml.DomainVCPU{
			Placement: "static",
			Value:     uint(cfg.CPUCores),
		},
		OS: &libvirtxml.DomainOS{
			Type: &libvirtxml.DomainOSType{
				Arch:    osArch(cfg.Emulator),
				Type:    "hvm",
				Machine: cfg.Machine,
			},
		},
		OnPoweroff: "destroy",
		OnReboot:   "restart",
		OnCrash:    "destroy",
		Devices:    &libvirtxml.DomainDeviceList{},
	}

	if cfg.UEFI {
		domain.OS.Firmware = "efi"
	}

	if cfg.CPUModel != "" {
		domain.CPU = &libvirtxml.DomainCPU{Mode: "custom", Model: &libvirtxml.DomainCPUModel{Value: cfg.CPUModel}}
	}

	for i, disk := range cfg.Disks {
		if i >= len(diskTargets) {
			break
		}
		bus := "ide"
		if disk.Interface == "virtio" || disk.Interface == "scsi" {
			bus = disk.Interface
		}
		domain.Devices.Disks = append(domain.Devices.Disks, libvirtxml.DomainDisk{
			Device: "disk",
			Driver: &libvirtxml.DomainDiskDriver{
				Name: "qemu",
				Type: string(disk.Format),
			},
			Source: &libvirtxml.DomainDiskSource{
				File: &libvirtxml.DomainDiskSourceFile{File: disk.Path},
			},
			Target: &libvirtxml.DomainDiskTarget{
				Dev: diskTargets[i],
				Bus: bus,
			},
		})
	}

	if cfg.VGA != "" && cfg.VGA != qemu.VGANone {
		domain.Devices.Videos = []libvirtxml.DomainVideo{
			{Model: libvirtxml.DomainVideoModel{Type: videoModel(cfg.VGA)}},
		}
	}

	for _, audio := range cfg.AudioDevices {
		model := soundModel(audio)
		if model == "" {
			continue
		}
		domain.Devices.Sounds = append(domain.Devices.Sounds, libvirtxml.DomainSound{Model: model})
	}

	if iface := networkInterface(cfg.Network); iface != nil {
		domain.Devices.Interfaces = append(domain.Devices.Interfaces, *iface)
	}

	xml, err := domain.Marshal()
	if err != nil {
		return "", fmt.Errorf("marshal domain XML: %w", err)
	}
	return xml, nil
}

func osArch(e qemu.Emulator) string {
	switch e.Command() {
	case "qemu-system-x86_64":
		return "x86_64"
	case "qemu-system-i386":
		return "i686"
	case "qemu-system-ppc":
		return "ppc"
	case "qemu-system-m68k":
		return "m68k"
	case "qemu-system-arm":
		return "armv7l"
	case "qemu-system-aarch64":
		return "aarch64"
	default:
		return "x86_64"
	}
}

// videoModel maps -vga values to libvirt video model types. The names
// mostly agree; vmware is the exception.
func videoModel(v qemu.VGAType) string {
	switch v {
	case qemu.VGAStd:
		return "vga"
	case qemu.VGAVMware:
		return "vmvga"
	default:
		return string(v)
	}
}

func soundModel(a qemu.AudioDevice) string {
	switch a {
	case qemu.AudioSB16:
		return "sb16"
	case qemu.AudioAC97:
		return "ac97"
	case qemu.AudioES1370:
		return "es1370"
	case qemu.AudioHDA:
		return "ich6"
	default:
		// pcspk and unknown devices have no domain XML sound model.
		return ""
	}
}

func networkInterface(n *qemu.NetworkSpec) *libvirtxml.DomainInterface {
	if n == nil || n.Backend == qemu.BackendNone {
		return nil
	}

	iface := &libvirtxml.DomainInterface{
		Model: &libvirtxml.DomainInterfaceModel{Type: n.Model},
	}

	if n.Backend == qemu.BackendBridge {
		bridge := n.Bridge
		if bridge == "" {
			bridge = "qemubr0"
		}
		iface.Source = &libvirtxml.DomainInterfaceSource{
			Bridge: &libvirtxml.DomainInterfaceSourceBridge{Bridge: bridge},
		}
		return iface
	}

	iface.Source = &libvirtxml.DomainInterfaceSource{
		User: &libvirtxml.DomainInterfaceSourceUser{},
	}
	return iface
}
