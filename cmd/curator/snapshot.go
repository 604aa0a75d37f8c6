package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/curatorproject/curator/internal/lifecycle"
	"github.com/curatorproject/curator/internal/output"
	"github.com/curatorproject/curator/internal/qemuimg"
	"github.com/curatorproject/curator/internal/snapshot"
	"github.com/curatorproject/curator/internal/vm"
)

var snapshotCmd = &cobra.Command{
	Use:   "snapshot",
	Short: "Manage VM disk snapshots",
	Long: `Manage internal snapshots on a VM's primary disk.

Snapshots live inside the qcow2 image itself. Other formats cannot hold
snapshots and these commands refuse to run against them.`,
}

func init() {
	snapshotCmd.AddCommand(snapListCmd)
	snapshotCmd.AddCommand(snapCreateCmd)
	snapshotCmd.AddCommand(snapRestoreCmd)
	snapshotCmd.AddCommand(snapDeleteCmd)
	snapshotCmd.AddCommand(snapCompactCmd)
}

// snapshotManager loads the named VM and a manager for its disks.
func snapshotManager(nameOrPath string) (*vm.VM, *snapshot.Manager, error) {
	settings, err := loadSettings()
	if err != nil {
		return nil, nil, err
	}
	v, err := loadVM(settings, nameOrPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load VM: %w", err)
	}
	tool := qemuimg.NewWithRunner(settings.QemuImgBinary, qemuimg.ExecRunner{})
	return v, snapshot.NewManager(tool), nil
}

// requireStopped refuses disk-mutating snapshot operations while the VM's
// emulator is running.
func requireStopped(v *vm.VM) error {
	if lifecycle.NewProber().IsRunning(v) {
		return fmt.Errorf("VM %s is running; stop it first", v.Name)
	}
	return nil
}

var snapListCmd = &cobra.Command{
	Use:   "list <vm>",
	Short: "List a VM's snapshots",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := output.ValidateFormat(outputFormat); err != nil {
			return err
		}
		v, mgr, err := snapshotManager(args[0])
		if err != nil {
			return err
		}

		records, err := mgr.List(&v.Config)
		if err != nil {
			return fmt.Errorf("failed to list snapshots: %w", err)
		}

		views := make([]output.SnapshotView, 0, len(records))
		for _, r := range records {
			views = append(views, output.SnapshotView{
				ID:      r.ID,
				Name:    r.Name,
				Size:    r.VMStateSize,
				Created: r.Created(),
				VMClock: r.VMClock(),
			})
		}

		formatter, err := output.NewFormatter(output.Options{
			Format:    output.Format(outputFormat),
			NoHeaders: noHeaders,
		})
		if err != nil {
			return err
		}

		result, err := formatter.FormatSnapshots(views)
		if err != nil {
			return fmt.Errorf("failed to format output: %w", err)
		}
		fmt.Print(result)
		return nil
	},
}

var snapCreateCmd = &cobra.Command{
	Use:   "create <vm> <name>",
	Short: "Create a snapshot",
	Long: `Record a named snapshot of the VM's primary disk.

Names are sanitized: characters outside letters, digits, and -_. become
underscores, and very long names are truncated.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		v, mgr, err := snapshotManager(args[0])
		if err != nil {
			return err
		}
		if err := requireStopped(v); err != nil {
			return err
		}

		stored, err := mgr.Create(&v.Config, args[1])
		if err != nil {
			return fmt.Errorf("failed to create snapshot: %w", err)
		}
		fmt.Printf("✓ Snapshot %q created\n", stored)
		return nil
	},
}

var snapRestoreCmd = &cobra.Command{
	Use:   "restore <vm> <name>",
	Short: "Restore a snapshot",
	Long: `Roll the VM's primary disk back to a named snapshot.

All changes made after the snapshot are lost. There is no undo.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		v, mgr, err := snapshotManager(args[0])
		if err != nil {
			return err
		}
		if err := requireStopped(v); err != nil {
			return err
		}

		if err := mgr.Restore(&v.Config, args[1]); err != nil {
			return fmt.Errorf("failed to restore snapshot: %w", err)
		}
		fmt.Printf("✓ Restored snapshot %q\n", args[1])
		return nil
	},
}

var snapDeleteCmd = &cobra.Command{
	Use:   "delete <vm> <name>",
	Short: "Delete a snapshot",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		v, mgr, err := snapshotManager(args[0])
		if err != nil {
			return err
		}
		if err := requireStopped(v); err != nil {
			return err
		}

		if err := mgr.Delete(&v.Config, args[1]); err != nil {
			return fmt.Errorf("failed to delete snapshot: %w", err)
		}
		fmt.Printf("✓ Deleted snapshot %q\n", args[1])
		return nil
	},
}

var snapCompactCmd = &cobra.Command{
	Use:   "compact <vm>",
	Short: "Reclaim space on a VM's primary disk",
	Long: `Rewrite the VM's primary disk to reclaim space left behind by
deleted snapshots. The image is replaced atomically.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		v, mgr, err := snapshotManager(args[0])
		if err != nil {
			return err
		}
		if err := requireStopped(v); err != nil {
			return err
		}

		if err := mgr.Compact(&v.Config); err != nil {
			return fmt.Errorf("failed to compact disk: %w", err)
		}
		fmt.Printf("✓ Compacted primary disk of %s\n", v.Name)
		return nil
	},
}
