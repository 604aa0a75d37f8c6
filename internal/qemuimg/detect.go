package qemuimg

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"github.com/curatorproject/curator/internal/qemu"
)

// Magic bytes for format detection without invoking the external tool.
var (
	// qcow2Magic is "QFI" + 0xfb, the first four bytes of every QCOW2 file.
	// Reference: https://www.qemu.org/docs/master/interop/qcow2.html
	qcow2Magic = []byte{0x51, 0x46, 0x49, 0xfb}

	// vmdkMagic is "KDMV", the sparse-extent VMDK header.
	vmdkMagic = []byte{0x4b, 0x44, 0x4d, 0x56}

	// vdiSignature appears at offset 64 in VirtualBox VDI images.
	vdiSignature = []byte{0x7f, 0x10, 0xda, 0xbe}
)

// DetectFormat sniffs an existing image file's format from its header,
// falling back to the path's extension when the header matches nothing.
// Script parsing cannot touch the filesystem, so callers use this to refine
// the parser's extension guesses once a real file is in hand.
func DetectFormat(path string) (qemu.DiskFormat, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("open image: %w", err)
	}
	defer func() { _ = f.Close() }()

	header := make([]byte, 68)
	n, err := io.ReadFull(f, header)
	if err != nil && n < 4 {
		return "", fmt.Errorf("image too small to identify: %w", err)
	}
	header = header[:n]

	switch {
	case bytes.Equal(header[:4], qcow2Magic):
		return qemu.FormatQCOW2, nil
	case bytes.Equal(header[:4], vmdkMagic):
		return qemu.FormatVMDK, nil
	case len(header) >= 68 && bytes.Equal(header[64:68], vdiSignature):
		return qemu.FormatVDI, nil
	}

	return qemu.DiskFormatFromPath(path), nil
}
