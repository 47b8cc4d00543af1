//go:build unix

package ffmpeg

import (
	"os"
	"os/exec"
	"syscall"
)

// ownProcessGroup starts the child as leader of a new process group so a
// shell wrapper and everything it spawns stop together.
func ownProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

func terminateGroup(p *os.Process) error {
	return syscall.Kill(-p.Pid, syscall.SIGTERM)
}
