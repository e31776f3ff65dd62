// SPDX-License-Identifier: MPL-2.0

package selfupdate

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/charmbracelet/log"
)

// ReplaceBinary moves the staged binary at tempPath onto installPath.
//
// On POSIX systems this is a single rename: a running process keeps its old
// inode, the directory entry simply points at the new file. Windows refuses
// to overwrite a running executable but allows renaming it, so the current
// binary is first moved aside to oldPath (see replaceWindows).
func ReplaceBinary(tempPath, installPath string) error {
	if goos == goosWindows {
		return replaceWindows(tempPath, installPath)
	}
	if err := os.Rename(tempPath, installPath); err != nil {
		return fmt.Errorf("replacing binary: %w", err)
	}
	return nil
}

// replaceWindows renames installPath to its .old sibling, then tempPath to
// installPath. If the first rename fails, either installPath does not exist
// yet (fresh install) or a previous .old is in the way; the .old is deleted
// and the rename retried once. A second failure is treated as a fresh
// install. The orphaned .old is removed later by CleanupOldBinary.
func replaceWindows(tempPath, installPath string) error {
	oldPath := PathsFor(installPath).OldPath

	if err := os.Rename(installPath, oldPath); err != nil {
		_ = os.Remove(oldPath)
		if retryErr := os.Rename(installPath, oldPath); retryErr != nil {
			log.Debug("no previous binary moved aside", "path", installPath, "error", retryErr)
		}
	}

	if err := os.Rename(tempPath, installPath); err != nil {
		return fmt.Errorf("replacing binary: %w", err)
	}
	return nil
}

// CleanupOldBinary deletes the .old sibling left behind by a Windows
// replacement. It is fire-and-forget: the file may be absent, still locked
// by the exiting process, or removed concurrently by another invocation,
// and none of these are errors.
func CleanupOldBinary(installPath string) {
	oldPath := PathsFor(installPath).OldPath
	if err := os.Remove(oldPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Debug("old binary cleanup skipped", "path", oldPath, "error", err)
	}
}
