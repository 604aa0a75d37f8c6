package lifecycle

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	"github.com/curatorproject/curator/internal/qemu"
	"github.com/curatorproject/curator/internal/qemuimg"
	"github.com/curatorproject/curator/internal/vm"
)

// fakeStarter records the command line instead of spawning.
type fakeStarter struct {
	dir  string
	name string
	args []string
}

func (f *fakeStarter) Start(dir, name string, args ...string) (int, error) {
	f.dir = dir
	f.name = name
	f.args = args
	return 4242, nil
}

func testVM() *vm.VM {
	cfg := qemu.DefaultConfig()
	cfg.Disks = []qemu.DiskSpec{{Path: "/vms/box/disk.qcow2", Format: qemu.FormatQCOW2}}
	return &vm.VM{
		Name:   "box",
		Dir:    "/vms/box",
		Script: "/vms/box/launch.sh",
		Config: cfg,
	}
}

func TestLaunchViaScript(t *testing.T) {
	tests := []struct {
		name string
		opts qemu.LaunchOptions
		want []string
	}{
		{
			name: "normal boot",
			opts: qemu.LaunchOptions{},
			want: []string{"launch.sh"},
		},
		{
			name: "install boot",
			opts: qemu.LaunchOptions{BootMode: qemu.BootInstall},
			want: []string{"launch.sh", "--install"},
		},
		{
			name: "network boot",
			opts: qemu.LaunchOptions{BootMode: qemu.BootNetwork},
			want: []string{"launch.sh", "--netboot"},
		},
		{
			name: "extra args pass through",
			opts: qemu.LaunchOptions{ExtraArgs: []string{"-serial", "stdio"}},
			want: []string{"launch.sh", "-serial", "stdio"},
		},
		{
			name: "usb passthrough after extra args",
			opts: qemu.LaunchOptions{
				ExtraArgs:  []string{"-serial", "stdio"},
				USBDevices: []qemu.USBDevice{{VendorID: 0x046d, ProductID: 0xc52b}},
			},
			want: []string{
				"launch.sh", "-serial", "stdio",
				"-usb", "-device", "usb-host,vendorid=0x046d,productid=0xc52b",
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			starter := &fakeStarter{}
			launcher := NewLauncherWithStarter(starter)

			pid, err := launcher.Launch(testVM(), tt.opts)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if pid != 4242 {
				t.Errorf("pid = %d, want 4242", pid)
			}
			if starter.name != "bash" {
				t.Errorf("interpreter = %q, want bash", starter.name)
			}
			if starter.dir != "/vms/box" {
				t.Errorf("working dir = %q, want /vms/box", starter.dir)
			}
			if !reflect.DeepEqual(starter.args, tt.want) {
				t.Errorf("args = %v, want %v", starter.args, tt.want)
			}
		})
	}
}

func TestLaunchDirect(t *testing.T) {
	starter := &fakeStarter{}
	launcher := NewLauncherWithStarter(starter)

	if _, err := launcher.LaunchDirect(testVM(), qemu.LaunchOptions{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if starter.name != "qemu-system-x86_64" {
		t.Errorf("binary = %q, want qemu-system-x86_64", starter.name)
	}
	got := strings.Join(starter.args, " ")
	if !strings.Contains(got, "-hda /vms/box/disk.qcow2") {
		t.Errorf("args %q missing disk", got)
	}
}

func TestLaunchValidatesCdrom(t *testing.T) {
	launcher := NewLauncherWithStarter(&fakeStarter{})

	t.Run("missing file", func(t *testing.T) {
		opts := qemu.LaunchOptions{BootMode: qemu.BootCdrom("/nonexistent/install.iso")}
		if _, err := launcher.Launch(testVM(), opts); err == nil {
			t.Error("missing ISO must fail before launch")
		}
	})

	t.Run("not an iso", func(t *testing.T) {
		bogus := filepath.Join(t.TempDir(), "bogus.iso")
		if err := os.WriteFile(bogus, []byte("not an iso image"), 0o644); err != nil {
			t.Fatal(err)
		}
		opts := qemu.LaunchOptions{BootMode: qemu.BootCdrom(bogus)}
		if _, err := launcher.Launch(testVM(), opts); err == nil {
			t.Error("non-ISO file must fail validation")
		}
	})

	t.Run("directory", func(t *testing.T) {
		opts := qemu.LaunchOptions{BootMode: qemu.BootCdrom(t.TempDir())}
		if _, err := launcher.Launch(testVM(), opts); err == nil {
			t.Error("directory must fail validation")
		}
	})
}

// stubRunner plays back pgrep/pkill results.
type stubRunner struct {
	stdout string
	err    error
	calls  [][]string
}

func (s *stubRunner) Run(name string, args ...string) ([]byte, []byte, error) {
	s.calls = append(s.calls, append([]string{name}, args...))
	return []byte(s.stdout), nil, s.err
}

var _ qemuimg.Runner = (*stubRunner)(nil)

func TestProberIsRunning(t *testing.T) {
	running := &stubRunner{stdout: "12345\n"}
	if !NewProberWithRunner(running).IsRunning(testVM()) {
		t.Error("pgrep output means running")
	}
	want := []string{"pgrep", "-f", "qemu.*disk.qcow2"}
	if !reflect.DeepEqual(running.calls[0], want) {
		t.Errorf("pgrep invocation = %v, want %v", running.calls[0], want)
	}

	stopped := &stubRunner{err: os.ErrNotExist}
	if NewProberWithRunner(stopped).IsRunning(testVM()) {
		t.Error("pgrep failure means not running")
	}
}

func TestProberStopAndKill(t *testing.T) {
	runner := &stubRunner{}
	prober := NewProberWithRunner(runner)
	v := testVM()

	if err := prober.Stop(v); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := prober.Kill(v); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	wantStop := []string{"pkill", "-f", "qemu.*disk.qcow2"}
	wantKill := []string{"pkill", "-9", "-f", "qemu.*disk.qcow2"}
	if !reflect.DeepEqual(runner.calls[0], wantStop) {
		t.Errorf("stop invocation = %v, want %v", runner.calls[0], wantStop)
	}
	if !reflect.DeepEqual(runner.calls[1], wantKill) {
		t.Errorf("kill invocation = %v, want %v", runner.calls[1], wantKill)
	}
}
