//go:build windows

package process

import (
	"errors"
	"os"
	"os/exec"
	"strconv"
)

// terminateTree asks taskkill to end p and every process it started; cmd.exe
// does not forward termination to npm/node children on its own.
func terminateTree(p *os.Process) error {
	// #nosec G204
	if err := exec.Command("taskkill", "/T", "/F", "/PID", strconv.Itoa(p.Pid)).Run(); err == nil {
		return nil
	}
	return killTree(p)
}

func killTree(p *os.Process) error {
	err := p.Kill()
	if errors.Is(err, os.ErrProcessDone) {
		return nil
	}
	return err
}
