//go:build !unix

package ffmpeg

import (
	"os"
	"os/exec"
)

func ownProcessGroup(*exec.Cmd) {}

// terminateGroup kills the child outright; there is no SIGTERM here.
func terminateGroup(p *os.Process) error {
	return p.Kill()
}
