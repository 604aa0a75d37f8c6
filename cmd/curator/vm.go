package main

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/curatorproject/curator/internal/config"
	"github.com/curatorproject/curator/internal/export"
	"github.com/curatorproject/curator/internal/lifecycle"
	"github.com/curatorproject/curator/internal/output"
	"github.com/curatorproject/curator/internal/qemu"
	"github.com/curatorproject/curator/internal/qemuimg"
	"github.com/curatorproject/curator/internal/snapshot"
	"github.com/curatorproject/curator/internal/vm"
)

var vmCmd = &cobra.Command{
	Use:   "vm",
	Short: "Manage virtual machines",
	Long: `Manage virtual machines defined by launch scripts.

A VM is a directory under the VM root containing a launch.sh script.`,
}

var (
	startInstall bool
	startCdrom   string
	startNetboot bool
	startDirect  bool
	startUSB     []string
	stopForce    bool
	stopWait     bool
)

func init() {
	startCmd.Flags().BoolVar(&startInstall, "install", false, "Boot from the first CD-ROM for installation")
	startCmd.Flags().StringVar(&startCdrom, "cdrom", "", "Boot once from the given ISO image")
	startCmd.Flags().BoolVar(&startNetboot, "netboot", false, "Boot from the network")
	startCmd.Flags().BoolVar(&startDirect, "direct", false, "Launch the emulator directly instead of via launch.sh")
	startCmd.Flags().StringArrayVar(&startUSB, "usb", nil, "Pass a host USB device through, as vendor:product hex (repeatable)")

	stopCmd.Flags().BoolVar(&stopForce, "force", false, "Kill the emulator immediately")
	stopCmd.Flags().BoolVar(&stopWait, "wait", false, "Wait for shutdown, escalating to a kill if it stalls")

	vmCmd.AddCommand(listCmd)
	vmCmd.AddCommand(showCmd)
	vmCmd.AddCommand(argsCmd)
	vmCmd.AddCommand(startCmd)
	vmCmd.AddCommand(stopCmd)
	vmCmd.AddCommand(statusCmd)
	vmCmd.AddCommand(resetCmd)
	vmCmd.AddCommand(exportCmd)
}

// makeView converts a VM into its display form.
func makeView(v *vm.VM, running bool) *output.VMView {
	status := "stopped"
	if running {
		status = "running"
	}

	var disks []string
	for _, d := range v.Config.Disks {
		disks = append(disks, fmt.Sprintf("%s (%s)", d.Path, d.Format))
	}

	network := ""
	if n := v.Config.Network; n != nil {
		network = string(n.Backend)
		if n.Model != "" {
			network = fmt.Sprintf("%s/%s", n.Model, n.Backend)
		}
	}

	return &output.VMView{
		Name:         v.Name,
		Status:       status,
		Architecture: v.Config.Emulator.Architecture(),
		MemoryMB:     v.Config.MemoryMB,
		CPUCores:     v.Config.CPUCores,
		Disks:        disks,
		Network:      network,
		KVM:          v.Config.EnableKVM,
	}
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List VMs",
	Long:  `List all virtual machines under the VM root with their status.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := output.ValidateFormat(outputFormat); err != nil {
			return err
		}
		settings, err := loadSettings()
		if err != nil {
			return err
		}

		vms, err := vm.LoadAll(settings.VMRoot)
		if err != nil {
			return fmt.Errorf("failed to list VMs: %w", err)
		}

		prober := lifecycle.NewProber()
		views := make([]*output.VMView, 0, len(vms))
		for _, v := range vms {
			views = append(views, makeView(v, prober.IsRunning(v)))
		}

		formatter, err := output.NewFormatter(output.Options{
			Format:    output.Format(outputFormat),
			NoHeaders: noHeaders,
		})
		if err != nil {
			return err
		}

		result, err := formatter.FormatVMList(views)
		if err != nil {
			return fmt.Errorf("failed to format output: %w", err)
		}
		fmt.Print(result)
		return nil
	},
}

var showCmd = &cobra.Command{
	Use:   "show <vm>",
	Short: "Show details about a VM",
	Long: `Show a VM's parsed configuration and status.

Output formats:
  -o table  Human-readable table (default)
  -o yaml   Full YAML view
  -o json   Full JSON view`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := output.ValidateFormat(outputFormat); err != nil {
			return err
		}
		settings, err := loadSettings()
		if err != nil {
			return err
		}

		v, err := loadVM(settings, args[0])
		if err != nil {
			return fmt.Errorf("failed to load VM: %w", err)
		}

		prober := lifecycle.NewProber()
		formatter, err := output.NewFormatter(output.Options{
			Format:    output.Format(outputFormat),
			NoHeaders: noHeaders,
		})
		if err != nil {
			return err
		}

		result, err := formatter.FormatVM(makeView(v, prober.IsRunning(v)))
		if err != nil {
			return fmt.Errorf("failed to format output: %w", err)
		}
		fmt.Print(result)
		return nil
	},
}

var argsCmd = &cobra.Command{
	Use:   "args <vm>",
	Short: "Print the emulator command line for a VM",
	Long: `Print the full emulator command line curator would use to launch
the VM directly. Useful for debugging a launch script or migrating a VM
to direct launching.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		settings, err := loadSettings()
		if err != nil {
			return err
		}
		v, err := loadVM(settings, args[0])
		if err != nil {
			return fmt.Errorf("failed to load VM: %w", err)
		}
		fmt.Println(qemu.CommandLine(&v.Config, &qemu.LaunchOptions{
			DefaultBridge: settings.DefaultBridge,
		}))
		return nil
	},
}

// startOptions translates the start flags into launch options.
func startOptions(settings *config.Settings, extra []string) (qemu.LaunchOptions, error) {
	opts := qemu.LaunchOptions{
		ExtraArgs:     extra,
		DefaultBridge: settings.DefaultBridge,
	}
	switch {
	case startCdrom != "":
		opts.BootMode = qemu.BootCdrom(startCdrom)
	case startInstall:
		opts.BootMode = qemu.BootInstall
	case startNetboot:
		opts.BootMode = qemu.BootNetwork
	}
	for _, spec := range startUSB {
		dev, err := parseUSBDevice(spec)
		if err != nil {
			return qemu.LaunchOptions{}, err
		}
		opts.USBDevices = append(opts.USBDevices, dev)
	}
	return opts, nil
}

// parseUSBDevice reads a "vendor:product" pair of hex IDs, lsusb-style.
func parseUSBDevice(spec string) (qemu.USBDevice, error) {
	vendor, product, ok := strings.Cut(spec, ":")
	if !ok {
		return qemu.USBDevice{}, fmt.Errorf("invalid USB device %q, want vendor:product", spec)
	}
	v, err := strconv.ParseUint(vendor, 16, 16)
	if err != nil {
		return qemu.USBDevice{}, fmt.Errorf("invalid USB vendor ID %q: %w", vendor, err)
	}
	p, err := strconv.ParseUint(product, 16, 16)
	if err != nil {
		return qemu.USBDevice{}, fmt.Errorf("invalid USB product ID %q: %w", product, err)
	}
	return qemu.USBDevice{VendorID: uint16(v), ProductID: uint16(p)}, nil
}

var startCmd = &cobra.Command{
	Use:   "start <vm> [-- extra-args...]",
	Short: "Start a VM",
	Long: `Start a virtual machine via its launch script.

Boot mode flags apply to this launch only; the script on disk is not
modified. Arguments after -- are passed through to the emulator.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		settings, err := loadSettings()
		if err != nil {
			return err
		}
		v, err := loadVM(settings, args[0])
		if err != nil {
			return fmt.Errorf("failed to load VM: %w", err)
		}

		prober := lifecycle.NewProber()
		if prober.IsRunning(v) {
			return fmt.Errorf("VM %s is already running", v.Name)
		}

		launcher := lifecycle.NewLauncher()
		opts, err := startOptions(settings, args[1:])
		if err != nil {
			return err
		}

		var pid int
		if startDirect {
			pid, err = launcher.LaunchDirect(v, opts)
		} else {
			pid, err = launcher.Launch(v, opts)
		}
		if err != nil {
			return fmt.Errorf("failed to start VM: %w", err)
		}

		fmt.Printf("✓ VM %s started (pid %d)\n", v.Name, pid)
		return nil
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop <vm>",
	Short: "Stop a VM",
	Long: `Ask a running VM's emulator to stop.

By default a SIGTERM is sent and curator returns immediately. With --wait
curator polls until the VM is down, force-killing it if the shutdown
stalls past the configured threshold. --force kills immediately.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		settings, err := loadSettings()
		if err != nil {
			return err
		}
		v, err := loadVM(settings, args[0])
		if err != nil {
			return fmt.Errorf("failed to load VM: %w", err)
		}

		prober := lifecycle.NewProber()
		if !prober.IsRunning(v) {
			fmt.Printf("VM %s is not running\n", v.Name)
			return nil
		}

		if stopForce {
			if err := prober.Kill(v); err != nil {
				return fmt.Errorf("failed to kill VM: %w", err)
			}
			fmt.Printf("✓ VM %s killed\n", v.Name)
			return nil
		}

		if err := prober.Stop(v); err != nil {
			return fmt.Errorf("failed to stop VM: %w", err)
		}

		if !stopWait {
			fmt.Printf("✓ Stop requested for VM %s\n", v.Name)
			return nil
		}

		tracker := lifecycle.NewStopTrackerWithThreshold(settings.StopEscalateAfter())
		tracker.Request(v.Name)

		for prober.IsRunning(v) {
			if tracker.Escalate(v.Name) {
				fmt.Printf("VM %s did not stop in time, killing\n", v.Name)
				if err := prober.Kill(v); err != nil {
					return fmt.Errorf("failed to kill VM: %w", err)
				}
				break
			}
			time.Sleep(500 * time.Millisecond)
		}
		tracker.Clear(v.Name)

		fmt.Printf("✓ VM %s stopped\n", v.Name)
		return nil
	},
}

var statusCmd = &cobra.Command{
	Use:   "status <vm>",
	Short: "Show whether a VM is running",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		settings, err := loadSettings()
		if err != nil {
			return err
		}
		v, err := loadVM(settings, args[0])
		if err != nil {
			return fmt.Errorf("failed to load VM: %w", err)
		}

		prober := lifecycle.NewProber()
		if prober.IsRunning(v) {
			fmt.Printf("%s: running\n", v.Name)
		} else {
			fmt.Printf("%s: stopped\n", v.Name)
		}
		return nil
	},
}

var resetCmd = &cobra.Command{
	Use:   "reset <vm>",
	Short: "Reset a VM's disk to a clean state",
	Long: `Reset a VM's primary disk to a known-clean state.

An overlay disk is recreated over its backing file. Otherwise the first
snapshot whose name contains "fresh", "clean", or "initial" is restored.
When neither exists the reset is refused rather than guessing.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		settings, err := loadSettings()
		if err != nil {
			return err
		}
		v, err := loadVM(settings, args[0])
		if err != nil {
			return fmt.Errorf("failed to load VM: %w", err)
		}

		prober := lifecycle.NewProber()
		if prober.IsRunning(v) {
			return fmt.Errorf("VM %s is running; stop it before resetting", v.Name)
		}

		mgr := snapshot.NewManager(qemuimg.NewWithRunner(settings.QemuImgBinary, qemuimg.ExecRunner{}))
		action, err := mgr.Reset(&v.Config)
		if err != nil {
			return fmt.Errorf("failed to reset VM: %w", err)
		}

		fmt.Printf("✓ VM %s reset: %s\n", v.Name, action)
		return nil
	},
}

var exportCmd = &cobra.Command{
	Use:   "export <vm>",
	Short: "Export a VM as libvirt domain XML",
	Long: `Render a VM's configuration as a libvirt domain definition,
suitable for virsh define or virt-manager import. Script-only details
with no domain XML equivalent are dropped.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		settings, err := loadSettings()
		if err != nil {
			return err
		}
		v, err := loadVM(settings, args[0])
		if err != nil {
			return fmt.Errorf("failed to load VM: %w", err)
		}

		xml, err := export.DomainXML(v)
		if err != nil {
			return fmt.Errorf("failed to export VM: %w", err)
		}
		fmt.Println(xml)
		return nil
	},
}
