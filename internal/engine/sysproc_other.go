//go:build !windows

package engine

import "os/exec"

func configureSysProcAttr(*exec.Cmd) {}
