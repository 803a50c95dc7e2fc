//go:build !windows

package engine

import "syscall"

// sessionAttr places the engine in its own session so terminal signals sent
// to the parent do not interrupt a running stage.
func sessionAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{Setsid: true}
}
