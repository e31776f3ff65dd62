// SPDX-License-Identifier: MPL-2.0

package selfupdate

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/charmbracelet/log"
)

// NoHandoff disables the parent hand-off exception in AcquireLock.
const NoHandoff = 0

var (
	// lockMaxRetries bounds how many times acquisition restarts after a race
	// (holder released between our create and read, or a stale lock removed).
	//
	//nolint:gochecknoglobals // Tuned down in tests.
	lockMaxRetries uint64 = 6

	//nolint:gochecknoglobals // Tuned down in tests.
	lockInitialInterval = 50 * time.Millisecond

	//nolint:gochecknoglobals // Test seam for PID liveness.
	processAlive = isProcessAlive

	//nolint:gochecknoglobals // Test seam for the caller's PID.
	getpid = os.Getpid

	//nolint:gochecknoglobals // Test seam for stale lock removal.
	removeStaleLock = os.Remove

	// errLockRace marks outcomes that restart acquisition from the top.
	errLockRace = errors.New("lock changed hands")
)

// AcquireLock takes the install lock at lockPath for the calling process.
//
// The lock file is created exclusively and holds the caller's PID. When the
// file already exists, the holder PID decides the outcome:
//   - holder is alive and equals allowedHandoffPID: the caller is the child
//     continuing its parent's upgrade; the file is overwritten in place with
//     the caller's PID and the lock is taken over
//   - holder is alive otherwise: a *LockHeldError (ErrUpgradeInProgress)
//   - holder is dead or the content is not a PID: the stale file is removed
//     and acquisition starts over
//
// Restarts are bounded with exponential backoff; exhausting them returns
// ErrLockContention. Pass NoHandoff when no parent hand-off is expected.
func AcquireLock(ctx context.Context, lockPath string, allowedHandoffPID int) error {
	pid := getpid()

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = lockInitialInterval
	b.MaxInterval = time.Second
	b.MaxElapsedTime = 0
	policy := backoff.WithContext(backoff.WithMaxRetries(b, lockMaxRetries), ctx)

	// An empty lock file normally means its creator has not written the PID
	// yet. Seeing it empty twice in a row means the creator died in between.
	sawEmpty := false

	err := backoff.Retry(func() error {
		err := tryAcquireLock(lockPath, pid, allowedHandoffPID, &sawEmpty)
		switch {
		case err == nil:
			return nil
		case errors.Is(err, errLockRace):
			log.Debug("lock acquisition restarting", "path", lockPath, "reason", err)
			return err
		default:
			return backoff.Permanent(err)
		}
	}, policy)

	if errors.Is(err, errLockRace) {
		return fmt.Errorf("%w: %s", ErrLockContention, lockPath)
	}
	return err
}

// tryAcquireLock performs a single acquisition attempt.
func tryAcquireLock(lockPath string, pid, allowedHandoffPID int, sawEmpty *bool) error {
	err := createLockFile(lockPath, pid)
	if err == nil {
		return nil
	}
	if !errors.Is(err, fs.ErrExist) {
		return err
	}

	data, err := os.ReadFile(lockPath)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return fmt.Errorf("%w: released before it could be read", errLockRace)
		}
		return fmt.Errorf("reading lock file %s: %w", lockPath, err)
	}

	content := strings.TrimSpace(string(data))
	if content == "" && !*sawEmpty {
		*sawEmpty = true
		return fmt.Errorf("%w: holder has not written its pid yet", errLockRace)
	}
	*sawEmpty = false

	holder, parseErr := strconv.Atoi(content)
	if parseErr == nil && holder > 0 && processAlive(holder) {
		if holder == allowedHandoffPID {
			if err := os.WriteFile(lockPath, []byte(strconv.Itoa(pid)), 0o600); err != nil {
				return fmt.Errorf("taking over lock file %s: %w", lockPath, err)
			}
			log.Debug("took over install lock from parent", "path", lockPath, "parent", holder)
			return nil
		}
		return &LockHeldError{LockPath: lockPath, PID: holder}
	}

	log.Debug("removing stale install lock", "path", lockPath, "content", content)
	if err := removeStaleLock(lockPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("removing stale lock file %s: %w", lockPath, err)
	}
	return fmt.Errorf("%w: stale lock removed", errLockRace)
}

// createLockFile exclusively creates lockPath containing pid. It never opens
// an existing file, so an fs.ErrExist result means someone else holds it.
func createLockFile(lockPath string, pid int) error {
	f, err := os.OpenFile(lockPath, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o600)
	if err != nil {
		if errors.Is(err, fs.ErrExist) {
			return err
		}
		return fmt.Errorf("creating lock file %s: %w", lockPath, err)
	}

	_, writeErr := f.WriteString(strconv.Itoa(pid))
	closeErr := f.Close()
	if err := errors.Join(writeErr, closeErr); err != nil {
		_ = os.Remove(lockPath)
		return fmt.Errorf("writing lock file %s: %w", lockPath, err)
	}
	return nil
}

// ReleaseLock removes the lock file. It is best-effort: every error,
// including a missing file, is discarded so that release can run from
// deferred cleanup without masking the operation's own result.
func ReleaseLock(lockPath string) {
	if err := os.Remove(lockPath); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Debug("lock release failed", "path", lockPath, "error", err)
	}
}
