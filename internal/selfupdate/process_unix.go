// SPDX-License-Identifier: MPL-2.0

//go:build unix

package selfupdate

import (
	"errors"

	"golang.org/x/sys/unix"
)

// isProcessAlive probes pid with signal 0, which performs the existence and
// permission checks without delivering anything. EPERM means the process
// exists but belongs to another user.
func isProcessAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := unix.Kill(pid, 0)
	return err == nil || errors.Is(err, unix.EPERM)
}
