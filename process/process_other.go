//go:build !unix

package process

import (
	"os"
	"os/exec"
)

// TerminateSignal is the default graceful stop signal.
var TerminateSignal = os.Interrupt

func setProcessGroup(*exec.Cmd) {}

func signalGroup(p *os.Process, sig os.Signal) error {
	return p.Signal(sig)
}

func killGroup(p *os.Process) error {
	return p.Kill()
}
