//go:build !windows

package mount

import (
	"os/exec"
	"path/filepath"

	"golang.org/x/sys/unix"
)

// setProcessGroup starts the command in its own process group.
func setProcessGroup(cmd *exec.Cmd) {
	cmd.SysProcAttr = &unix.SysProcAttr{Setpgid: true}
}

// isMountPoint reports whether path sits on a different device than its
// parent directory.
func isMountPoint(path string) (bool, error) {
	parent := filepath.Dir(path)
	var st, parentSt unix.Stat_t
	if err := unix.Stat(path, &st); err != nil {
		return false, err
	}
	if err := unix.Stat(parent, &parentSt); err != nil {
		return false, err
	}
	return st.Dev != parentSt.Dev || path == parent, nil
}
