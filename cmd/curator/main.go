package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/curatorproject/curator/internal/config"
	"github.com/curatorproject/curator/internal/vm"
)

var (
	version = "dev"
	commit  = "unknown"
)

var (
	outputFormat string
	noHeaders    bool
	configPath   string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "curator",
	Short: "Curator - QEMU VM management tool",
	Long: `Curator manages QEMU virtual machines defined by launch scripts.

Each VM is a directory containing a launch.sh script. Curator parses the
script into a structured configuration and provides commands to launch,
stop, snapshot, and maintain the VM's disks.`,
	Version: fmt.Sprintf("%s (commit: %s)", version, commit),
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&outputFormat, "output", "o", "table", "Output format (table, yaml, json)")
	rootCmd.PersistentFlags().BoolVar(&noHeaders, "no-headers", false, "Omit headers in table output")
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Path to curator config file")

	rootCmd.AddCommand(vmCmd)
	rootCmd.AddCommand(diskCmd)
	rootCmd.AddCommand(snapshotCmd)
	rootCmd.AddCommand(hostCmd)
}

// loadSettings loads curator's settings from --config or the default path.
func loadSettings() (*config.Settings, error) {
	path := configPath
	if path == "" {
		path = config.DefaultPath()
	}
	settings, err := config.LoadFromFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load settings: %w", err)
	}
	return settings, nil
}

// loadVM resolves a VM by name under the configured VM root, or by a path
// to a VM directory. Paths win so a VM outside the root is still reachable.
func loadVM(settings *config.Settings, nameOrPath string) (*vm.VM, error) {
	if filepath.IsAbs(nameOrPath) || fileExists(filepath.Join(nameOrPath, vm.ScriptName)) {
		return vm.Load(nameOrPath)
	}
	return vm.Load(filepath.Join(settings.VMRoot, nameOrPath))
}

func fileExists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}
