package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/curatorproject/curator/internal/qemuimg"
)

var diskCmd = &cobra.Command{
	Use:   "disk",
	Short: "Manage disk images",
	Long: `Manage disk images with qemu-img.

These commands operate on image files directly and do not require the
image to belong to a VM.`,
}

var (
	overlayBackingFormat string
	convertFormat        string
)

func init() {
	diskOverlayCmd.Flags().StringVar(&overlayBackingFormat, "backing-format", "qcow2", "Format of the backing file")
	diskConvertCmd.Flags().StringVarP(&convertFormat, "format", "f", "qcow2", "Output format")

	diskCmd.AddCommand(diskCreateCmd)
	diskCmd.AddCommand(diskOverlayCmd)
	diskCmd.AddCommand(diskConvertCmd)
	diskCmd.AddCommand(diskResizeCmd)
	diskCmd.AddCommand(diskCheckCmd)
	diskCmd.AddCommand(diskCompactCmd)
	diskCmd.AddCommand(diskRebaseCmd)
	diskCmd.AddCommand(diskCommitCmd)
	diskCmd.AddCommand(diskInfoCmd)
}

// imageTool returns the qemu-img gateway configured from settings.
func imageTool() (*qemuimg.Tool, error) {
	settings, err := loadSettings()
	if err != nil {
		return nil, err
	}
	return qemuimg.NewWithRunner(settings.QemuImgBinary, qemuimg.ExecRunner{}), nil
}

var diskCreateCmd = &cobra.Command{
	Use:   "create <path> <size>",
	Short: "Create a new qcow2 image",
	Long: `Create a new empty qcow2 image.

Size uses qemu-img notation, e.g. 20G or 512M.

Example:
  curator disk create disk.qcow2 20G`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		tool, err := imageTool()
		if err != nil {
			return err
		}
		if err := tool.Create(args[0], args[1]); err != nil {
			return fmt.Errorf("failed to create image: %w", err)
		}
		fmt.Printf("✓ Created %s (%s)\n", args[0], args[1])
		return nil
	},
}

var diskOverlayCmd = &cobra.Command{
	Use:   "overlay <path> <backing>",
	Short: "Create a qcow2 overlay backed by an existing image",
	Long: `Create a copy-on-write overlay over an existing image.

The backing image is never written to; all changes go to the overlay.
A VM using an overlay can be reset by recreating the overlay.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		tool, err := imageTool()
		if err != nil {
			return err
		}
		if err := tool.CreateOverlay(args[0], args[1], overlayBackingFormat); err != nil {
			return fmt.Errorf("failed to create overlay: %w", err)
		}
		fmt.Printf("✓ Created overlay %s over %s\n", args[0], args[1])
		return nil
	},
}

var diskConvertCmd = &cobra.Command{
	Use:   "convert <src> <dst>",
	Short: "Convert an image to another format",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		tool, err := imageTool()
		if err != nil {
			return err
		}
		if err := tool.Convert(args[0], args[1], convertFormat); err != nil {
			return fmt.Errorf("failed to convert image: %w", err)
		}
		fmt.Printf("✓ Converted %s to %s (%s)\n", args[0], args[1], convertFormat)
		return nil
	},
}

var diskResizeCmd = &cobra.Command{
	Use:   "resize <path> <size>",
	Short: "Resize an image",
	Long: `Resize an image. Size uses qemu-img notation, including relative
forms like +10G. Shrinking can destroy data; the guest filesystem must be
shrunk first.`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		tool, err := imageTool()
		if err != nil {
			return err
		}
		if err := tool.Resize(args[0], args[1]); err != nil {
			return fmt.Errorf("failed to resize image: %w", err)
		}
		fmt.Printf("✓ Resized %s to %s\n", args[0], args[1])
		return nil
	},
}

var diskCheckCmd = &cobra.Command{
	Use:   "check <path>",
	Short: "Check an image for consistency",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		tool, err := imageTool()
		if err != nil {
			return err
		}
		result, err := tool.Check(args[0])
		if err != nil {
			return fmt.Errorf("failed to check image: %w", err)
		}
		if result.Output != "" {
			fmt.Println(result.Output)
		}
		if !result.OK {
			return fmt.Errorf("image %s has errors", args[0])
		}
		fmt.Printf("✓ Image %s is consistent\n", args[0])
		return nil
	},
}

var diskCompactCmd = &cobra.Command{
	Use:   "compact <path>",
	Short: "Rewrite an image to reclaim unused space",
	Long: `Rewrite a qcow2 image to reclaim space left behind by deleted
files and snapshots. The image is replaced atomically: a failed compaction
leaves the original untouched.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		tool, err := imageTool()
		if err != nil {
			return err
		}
		if err := tool.Compact(args[0]); err != nil {
			return fmt.Errorf("failed to compact image: %w", err)
		}
		fmt.Printf("✓ Compacted %s\n", args[0])
		return nil
	},
}

var diskRebaseCmd = &cobra.Command{
	Use:   "rebase <path> <new-backing>",
	Short: "Repoint an overlay at a new backing file",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		tool, err := imageTool()
		if err != nil {
			return err
		}
		if err := tool.Rebase(args[0], args[1], overlayBackingFormat); err != nil {
			return fmt.Errorf("failed to rebase image: %w", err)
		}
		fmt.Printf("✓ Rebased %s onto %s\n", args[0], args[1])
		return nil
	},
}

var diskCommitCmd = &cobra.Command{
	Use:   "commit <path>",
	Short: "Merge an overlay's changes into its backing file",
	Long: `Merge an overlay's changes down into its backing file.

The backing file is modified. Other overlays sharing it see the merged
changes, which usually corrupts them; commit only when this overlay is
the backing file's sole user.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		tool, err := imageTool()
		if err != nil {
			return err
		}
		if err := tool.Commit(args[0]); err != nil {
			return fmt.Errorf("failed to commit image: %w", err)
		}
		fmt.Printf("✓ Committed %s\n", args[0])
		return nil
	},
}

var diskInfoCmd = &cobra.Command{
	Use:   "info <path>",
	Short: "Show detailed information about an image",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		tool, err := imageTool()
		if err != nil {
			return err
		}
		info, err := tool.Info(args[0])
		if err != nil {
			return fmt.Errorf("failed to inspect image: %w", err)
		}

		fmt.Printf("Image: %s\n", args[0])
		fmt.Printf("Format: %s\n", info.Format)
		fmt.Printf("Virtual size: %d bytes\n", info.VirtualSize)
		fmt.Printf("Actual size: %d bytes\n", info.ActualSize)
		if info.BackingFile != "" {
			fmt.Printf("Backing file: %s (%s)\n", info.BackingFile, info.BackingFormat)
		}
		fmt.Printf("Snapshots: %d\n", len(info.Snapshots))
		return nil
	},
}
