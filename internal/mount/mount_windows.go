//go:build windows

package mount

import "os/exec"

func setProcessGroup(*exec.Cmd) {}

func isMountPoint(string) (bool, error) { return false, nil }
