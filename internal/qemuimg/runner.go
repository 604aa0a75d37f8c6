package qemuimg

import (
	"bytes"
	"os/exec"
)

// Runner spawns an external binary and captures its output. The gateway and
// the lifecycle probes both run through this seam so tests can substitute a
// fake instead of real binaries.
type Runner interface {
	// Run executes name with args, waits for exit, and returns captured
	// stdout and stderr. A non-zero exit is reported through err with the
	// output still populated.
	Run(name string, args ...string) (stdout, stderr []byte, err error)
}

// ExecRunner runs commands with os/exec.
type ExecRunner struct{}

func (ExecRunner) Run(name string, args ...string) ([]byte, []byte, error) {
	var outBuf, errBuf bytes.Buffer
	cmd := exec.Command(name, args...)
	cmd.Stdout = &outBuf
	cmd.Stderr = &errBuf
	err := cmd.Run()
	return outBuf.Bytes(), errBuf.Bytes(), err
}
