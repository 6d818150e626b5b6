//go:build !windows

package process

import (
	"errors"
	"os"
	"syscall"
)

// signalTree sends sig to the process group led by p, falling back to p alone
// when the group is already gone.
func signalTree(p *os.Process, sig syscall.Signal) error {
	if err := syscall.Kill(-p.Pid, sig); err == nil {
		return nil
	}
	err := p.Signal(sig)
	if errors.Is(err, os.ErrProcessDone) {
		return nil
	}
	return err
}

func terminateTree(p *os.Process) error { return signalTree(p, syscall.SIGTERM) }

func killTree(p *os.Process) error { return signalTree(p, syscall.SIGKILL) }
