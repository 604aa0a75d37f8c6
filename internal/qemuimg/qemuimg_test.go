package qemuimg

import (
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
)

// fakeRunner records invocations and plays back configured results.
type fakeRunner struct {
	calls  [][]string
	stdout []byte
	stderr []byte
	err    error

	// onRun, when set, runs before the canned result is returned.
	onRun func(name string, args []string)
}

func (f *fakeRunner) Run(name string, args ...string) ([]byte, []byte, error) {
	call := append([]string{name}, args...)
	f.calls = append(f.calls, call)
	if f.onRun != nil {
		f.onRun(name, args)
	}
	return f.stdout, f.stderr, f.err
}

func TestToolSubcommandArguments(t *testing.T) {
	tests := []struct {
		name string
		op   func(*Tool) error
		want []string
	}{
		{
			name: "create",
			op:   func(tool *Tool) error { return tool.Create("/d/a.qcow2", "20G") },
			want: []string{"qemu-img", "create", "-f", "qcow2", "/d/a.qcow2", "20G"},
		},
		{
			name: "create overlay",
			op:   func(tool *Tool) error { return tool.CreateOverlay("/d/over.qcow2", "/d/base.qcow2", "qcow2") },
			want: []string{"qemu-img", "create", "-f", "qcow2", "-F", "qcow2", "-b", "/d/base.qcow2", "/d/over.qcow2"},
		},
		{
			name: "convert",
			op:   func(tool *Tool) error { return tool.Convert("/d/src.vdi", "/d/dst.qcow2", "qcow2") },
			want: []string{"qemu-img", "convert", "-f", "auto", "-O", "qcow2", "/d/src.vdi", "/d/dst.qcow2"},
		},
		{
			name: "resize",
			op:   func(tool *Tool) error { return tool.Resize("/d/a.qcow2", "+10G") },
			want: []string{"qemu-img", "resize", "/d/a.qcow2", "+10G"},
		},
		{
			name: "rebase",
			op:   func(tool *Tool) error { return tool.Rebase("/d/over.qcow2", "/d/new.qcow2", "qcow2") },
			want: []string{"qemu-img", "rebase", "-b", "/d/new.qcow2", "-F", "qcow2", "/d/over.qcow2"},
		},
		{
			name: "commit",
			op:   func(tool *Tool) error { return tool.Commit("/d/over.qcow2") },
			want: []string{"qemu-img", "commit", "/d/over.qcow2"},
		},
		{
			name: "snapshot create",
			op:   func(tool *Tool) error { return tool.SnapshotCreate("/d/a.qcow2", "before-update") },
			want: []string{"qemu-img", "snapshot", "-c", "before-update", "/d/a.qcow2"},
		},
		{
			name: "snapshot apply",
			op:   func(tool *Tool) error { return tool.SnapshotApply("/d/a.qcow2", "before-update") },
			want: []string{"qemu-img", "snapshot", "-a", "before-update", "/d/a.qcow2"},
		},
		{
			name: "snapshot delete",
			op:   func(tool *Tool) error { return tool.SnapshotDelete("/d/a.qcow2", "before-update") },
			want: []string{"qemu-img", "snapshot", "-d", "before-update", "/d/a.qcow2"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			runner := &fakeRunner{}
			tool := NewWithRunner("", runner)

			if err := tt.op(tool); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if len(runner.calls) != 1 {
				t.Fatalf("got %d invocations, want 1", len(runner.calls))
			}
			if !reflect.DeepEqual(runner.calls[0], tt.want) {
				t.Errorf("invocation = %v, want %v", runner.calls[0], tt.want)
			}
		})
	}
}

func TestToolRejectsBadPaths(t *testing.T) {
	runner := &fakeRunner{}
	tool := NewWithRunner("", runner)

	if err := tool.Create("", "10G"); err == nil {
		t.Error("empty path must be rejected")
	}
	if err := tool.Resize("bad\x00path", "10G"); err == nil {
		t.Error("NUL in path must be rejected")
	}
	if len(runner.calls) != 0 {
		t.Errorf("nothing should be spawned for invalid paths, got %v", runner.calls)
	}
}

func TestToolErrorCarriesStderr(t *testing.T) {
	runner := &fakeRunner{
		stderr: []byte("qemu-img: /d/a.qcow2: No such file or directory\n"),
		err:    errors.New("exit status 1"),
	}
	tool := NewWithRunner("", runner)

	err := tool.Commit("/d/a.qcow2")
	if err == nil {
		t.Fatal("expected error")
	}

	var toolErr *ToolError
	if !errors.As(err, &toolErr) {
		t.Fatalf("error %T is not a ToolError", err)
	}
	if toolErr.Op != "commit" {
		t.Errorf("Op = %q, want commit", toolErr.Op)
	}
	if !strings.Contains(err.Error(), "No such file or directory") {
		t.Errorf("error %q does not carry stderr", err)
	}
}

func TestCheckFailureIsResultNotError(t *testing.T) {
	runner := &fakeRunner{
		stdout: []byte("ERROR cluster 5 refcount=0 reference=1\n"),
		err:    &exec.ExitError{},
	}
	tool := NewWithRunner("", runner)

	result, err := tool.Check("/d/a.qcow2")
	if err != nil {
		t.Fatalf("failed check must not be an error: %v", err)
	}
	if result.OK {
		t.Error("check should report not OK")
	}
	if !strings.Contains(result.Output, "refcount") {
		t.Errorf("output %q missing tool detail", result.Output)
	}
}

func TestCheckSpawnFailureIsError(t *testing.T) {
	runner := &fakeRunner{err: errors.New("executable file not found in $PATH")}
	tool := NewWithRunner("", runner)

	_, err := tool.Check("/d/a.qcow2")
	if err == nil {
		t.Fatal("an unrunnable tool must surface as an error, not a failed check")
	}
	var toolErr *ToolError
	if !errors.As(err, &toolErr) {
		t.Fatalf("error %T is not a ToolError", err)
	}
	if toolErr.Op != "check" {
		t.Errorf("Op = %q, want check", toolErr.Op)
	}
}

func TestInfoParsesImageDetails(t *testing.T) {
	runner := &fakeRunner{stdout: []byte(`{
  "format": "qcow2",
  "virtual-size": 21474836480,
  "actual-size": 1638400,
  "cluster-size": 65536,
  "backing-filename": "/d/base.qcow2",
  "backing-filename-format": "qcow2",
  "snapshots": [
    {"id": "1", "name": "fresh-install", "vm-state-size": 0,
     "date-sec": 1700000000, "date-nsec": 0,
     "vm-clock-sec": 3600, "vm-clock-nsec": 500000000}
  ]
}`)}
	tool := NewWithRunner("", runner)

	info, err := tool.Info("/d/a.qcow2")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if info.Format != "qcow2" {
		t.Errorf("format = %q, want qcow2", info.Format)
	}
	if info.VirtualSize != 21474836480 {
		t.Errorf("virtual size = %d", info.VirtualSize)
	}
	if info.BackingFile != "/d/base.qcow2" || info.BackingFormat != "qcow2" {
		t.Errorf("backing = %q (%q)", info.BackingFile, info.BackingFormat)
	}
	if len(info.Snapshots) != 1 {
		t.Fatalf("snapshots = %+v, want one", info.Snapshots)
	}

	snap := info.Snapshots[0]
	if snap.Name != "fresh-install" {
		t.Errorf("snapshot name = %q", snap.Name)
	}
	if got := snap.Created().Unix(); got != 1700000000 {
		t.Errorf("created = %d, want 1700000000", got)
	}
	if got := snap.VMClock().Seconds(); got != 3600.5 {
		t.Errorf("vm clock = %v, want 3600.5s", got)
	}
}

func TestCompactReplacesImage(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "disk.qcow2")
	if err := os.WriteFile(path, []byte("bloated"), 0o644); err != nil {
		t.Fatal(err)
	}

	runner := &fakeRunner{}
	runner.onRun = func(name string, args []string) {
		// convert's last argument is the temporary destination.
		tmp := args[len(args)-1]
		if err := os.WriteFile(tmp, []byte("compacted"), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	tool := NewWithRunner("", runner)

	if err := tool.Compact(path); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "compacted" {
		t.Errorf("image content = %q, want compacted copy", data)
	}
	assertOnlyFile(t, dir, "disk.qcow2")
}

func TestCompactFailureLeavesOriginal(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "disk.qcow2")
	if err := os.WriteFile(path, []byte("original"), 0o644); err != nil {
		t.Fatal(err)
	}

	runner := &fakeRunner{
		stderr: []byte("qemu-img: error while compressing\n"),
		err:    errors.New("exit status 1"),
	}
	tool := NewWithRunner("", runner)

	if err := tool.Compact(path); err == nil {
		t.Fatal("expected error from failed convert")
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "original" {
		t.Errorf("original image was modified: %q", data)
	}
	assertOnlyFile(t, dir, "disk.qcow2")
}

// assertOnlyFile fails when dir contains anything besides the named file,
// catching leaked compaction temporaries.
func assertOnlyFile(t *testing.T, dir, name string) {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Name() != name {
		var names []string
		for _, e := range entries {
			names = append(names, e.Name())
		}
		t.Errorf("directory contains %v, want only %s", names, name)
	}
}
