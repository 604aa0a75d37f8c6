// Package qemuimg wraps the external qemu-img tool as individual,
// synchronous operations with typed failures. Argument order on every
// subcommand is part of the tool's compatibility contract and must not be
// reordered. The gateway owns no state; the one place it adds behavior of
// its own is Compact, which qemu-img cannot do atomically and which is
// therefore implemented as copy-then-rename here.
package qemuimg

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"
)

// DefaultBinary is the image tool executable.
const DefaultBinary = "qemu-img"

// ToolError is a qemu-img invocation that exited non-zero, with the
// captured standard-error text attached.
type ToolError struct {
	Op     string
	Stderr string
	Err    error
}

func (e *ToolError) Error() string {
	msg := fmt.Sprintf("qemu-img %s failed", e.Op)
	if s := strings.TrimSpace(e.Stderr); s != "" {
		msg += ": " + s
	}
	return msg
}

func (e *ToolError) Unwrap() error { return e.Err }

// Tool invokes qemu-img operations.
type Tool struct {
	binary string
	runner Runner
}

// New returns a Tool running the system qemu-img.
func New() *Tool {
	return NewWithRunner(DefaultBinary, ExecRunner{})
}

// NewWithRunner returns a Tool with a custom binary path and runner;
// used by tests and by callers with a configured tool location.
func NewWithRunner(binary string, r Runner) *Tool {
	if binary == "" {
		binary = DefaultBinary
	}
	return &Tool{binary: binary, runner: r}
}

// checkPath rejects paths the platform cannot pass to an external process
// before anything is spawned.
func checkPath(path string) error {
	if path == "" {
		return fmt.Errorf("empty path")
	}
	if !utf8.ValidString(path) || strings.ContainsRune(path, 0) {
		return fmt.Errorf("path is not representable: %q", path)
	}
	return nil
}

func (t *Tool) run(op string, args ...string) ([]byte, error) {
	stdout, stderr, err := t.runner.Run(t.binary, args...)
	if err != nil {
		return stdout, &ToolError{Op: op, Stderr: string(stderr), Err: err}
	}
	return stdout, nil
}

// Create makes a new empty qcow2 image. Size uses qemu-img notation
// ("20G", "512M").
func (t *Tool) Create(path, size string) error {
	if err := checkPath(path); err != nil {
		return err
	}
	_, err := t.run("create", "create", "-f", "qcow2", path, size)
	return err
}

// CreateOverlay makes a new qcow2 overlay backed by an existing image.
func (t *Tool) CreateOverlay(path, backing, backingFormat string) error {
	if err := checkPath(path); err != nil {
		return err
	}
	if err := checkPath(backing); err != nil {
		return err
	}
	_, err := t.run("create", "create", "-f", "qcow2", "-F", backingFormat, "-b", backing, path)
	return err
}

// Convert copies src into dst in the given format.
func (t *Tool) Convert(src, dst, format string) error {
	if err := checkPath(src); err != nil {
		return err
	}
	if err := checkPath(dst); err != nil {
		return err
	}
	_, err := t.run("convert", "convert", "-f", "auto", "-O", format, src, dst)
	return err
}

// Resize grows or shrinks an image. Size uses qemu-img notation, including
// relative forms like "+10G".
func (t *Tool) Resize(path, size string) error {
	if err := checkPath(path); err != nil {
		return err
	}
	_, err := t.run("resize", "resize", path, size)
	return err
}

// CheckResult is the outcome of an image consistency check.
type CheckResult struct {
	OK     bool
	Output string
}

// Check runs a consistency check. A failed check is a result, not an error;
// errors mean the tool itself could not run.
func (t *Tool) Check(path string) (CheckResult, error) {
	if err := checkPath(path); err != nil {
		return CheckResult{}, err
	}
	stdout, stderr, err := t.runner.Run(t.binary, "check", path)
	output := strings.TrimSpace(strings.TrimSpace(string(stdout)) + "\n" + strings.TrimSpace(string(stderr)))
	if err != nil {
		var exit *exec.ExitError
		if !errors.As(err, &exit) {
			return CheckResult{}, &ToolError{Op: "check", Stderr: string(stderr), Err: err}
		}
		// The tool ran and found problems.
		return CheckResult{OK: false, Output: output}, nil
	}
	return CheckResult{OK: true, Output: output}, nil
}

// SnapshotRecord is one internal snapshot as reported by qemu-img info.
type SnapshotRecord struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	VMStateSize uint64 `json:"vm-state-size"`
	DateSec     int64  `json:"date-sec"`
	DateNsec    int64  `json:"date-nsec"`
	VMClockSec  int64  `json:"vm-clock-sec"`
	VMClockNsec int64  `json:"vm-clock-nsec"`
}

// Created returns the snapshot creation time.
func (s SnapshotRecord) Created() time.Time {
	return time.Unix(s.DateSec, s.DateNsec)
}

// VMClock returns the guest clock at snapshot time.
func (s SnapshotRecord) VMClock() time.Duration {
	return time.Duration(s.VMClockSec)*time.Second + time.Duration(s.VMClockNsec)
}

// ImageInfo is the parsed output of qemu-img info --output=json.
type ImageInfo struct {
	Format        string           `json:"format"`
	VirtualSize   uint64           `json:"virtual-size"`
	ActualSize    uint64           `json:"actual-size"`
	ClusterSize   uint64           `json:"cluster-size"`
	BackingFile   string           `json:"backing-filename"`
	BackingFormat string           `json:"backing-filename-format"`
	Snapshots     []SnapshotRecord `json:"snapshots"`
}

// Info inspects an image, returning its format, backing relationship, and
// embedded snapshots.
func (t *Tool) Info(path string) (*ImageInfo, error) {
	if err := checkPath(path); err != nil {
		return nil, err
	}
	stdout, err := t.run("info", "info", "--output=json", path)
	if err != nil {
		return nil, err
	}
	var info ImageInfo
	if err := json.Unmarshal(stdout, &info); err != nil {
		return nil, fmt.Errorf("parse qemu-img info output: %w", err)
	}
	return &info, nil
}

// Compact rewrites an image to reclaim unused space. qemu-img convert is
// not atomic, so the copy goes to a uniquely named temporary sibling and
// only replaces the original after the tool succeeds; on failure the
// temporary file is removed and the original is left untouched.
func (t *Tool) Compact(path string) error {
	if err := checkPath(path); err != nil {
		return err
	}

	tmp := filepath.Join(filepath.Dir(path),
		fmt.Sprintf(".%s.compact-%s.tmp", filepath.Base(path), uuid.NewString()))

	if _, err := t.run("convert", "convert", "-O", "qcow2", path, tmp); err != nil {
		_ = os.Remove(tmp)
		return err
	}

	if err := os.Rename(tmp, path); err != nil {
		_ = os.Remove(tmp)
		return fmt.Errorf("replace %s with compacted image: %w", path, err)
	}

	return nil
}

// Rebase repoints an overlay at a new backing file.
func (t *Tool) Rebase(path, newBacking, backingFormat string) error {
	if err := checkPath(path); err != nil {
		return err
	}
	if err := checkPath(newBacking); err != nil {
		return err
	}
	_, err := t.run("rebase", "rebase", "-b", newBacking, "-F", backingFormat, path)
	return err
}

// Commit merges an overlay's changes down into its backing file.
func (t *Tool) Commit(path string) error {
	if err := checkPath(path); err != nil {
		return err
	}
	_, err := t.run("commit", "commit", path)
	return err
}

// SnapshotCreate records a named internal snapshot in a qcow2 image.
func (t *Tool) SnapshotCreate(path, name string) error {
	if err := checkPath(path); err != nil {
		return err
	}
	_, err := t.run("snapshot -c", "snapshot", "-c", name, path)
	return err
}

// SnapshotApply rolls the image back to a named internal snapshot.
func (t *Tool) SnapshotApply(path, name string) error {
	if err := checkPath(path); err != nil {
		return err
	}
	_, err := t.run("snapshot -a", "snapshot", "-a", name, path)
	return err
}

// SnapshotDelete removes a named internal snapshot.
func (t *Tool) SnapshotDelete(path, name string) error {
	if err := checkPath(path); err != nil {
		return err
	}
	_, err := t.run("snapshot -d", "snapshot", "-d", name, path)
	return err
}
