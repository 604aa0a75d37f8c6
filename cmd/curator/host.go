package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/curatorproject/curator/internal/qemu"
)

var hostCmd = &cobra.Command{
	Use:   "host",
	Short: "Show host virtualization capabilities",
	Long: `Report the host's virtualization support: KVM availability, the
loaded KVM module, and which emulator binaries are installed.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if qemu.KVMAvailable() {
			module := qemu.KVMModule()
			if module == "" {
				module = "unknown"
			}
			fmt.Printf("KVM: available (%s)\n", module)
		} else {
			fmt.Println("KVM: not available")
		}

		emulators := qemu.AvailableEmulators()
		if len(emulators) == 0 {
			fmt.Println("Emulators: none found")
			return nil
		}

		fmt.Println("Emulators:")
		for _, name := range emulators {
			version, err := qemu.EmulatorVersion(name)
			if err != nil {
				version = "unknown version"
			}
			fmt.Printf("  %s (%s)\n", name, version)
		}
		return nil
	},
}
