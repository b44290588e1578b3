// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package process

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"golang.org/x/sys/unix"
)

// LockFileName is the instance lock file inside the stack root.
const LockFileName = ".lock"

// ErrLockHeld is returned (wrapped in *LockHeldError) when another
// orchestrator owns the stack.
var ErrLockHeld = errors.New("another botstack instance holds the stack lock")

// LockHeldError names the process holding the lock.
type LockHeldError struct {
	// HolderPID is the PID recorded in the lock file, 0 if unknown.
	HolderPID int

	// LockPath is the lock file path.
	LockPath string
}

// Error implements the error interface.
func (e *LockHeldError) Error() string {
	if e.HolderPID > 0 {
		return fmt.Sprintf("another botstack instance is running (PID %d). If this is stale, remove %s",
			e.HolderPID, e.LockPath)
	}
	return fmt.Sprintf("another botstack instance is running. Check: lsof %s", e.LockPath)
}

// Unwrap returns ErrLockHeld.
func (e *LockHeldError) Unwrap() error {
	return ErrLockHeld
}

// InstanceLock prevents two orchestrators from operating one stack.
//
// # Description
//
// Holds an exclusive flock(2) on <stack>/.lock and records the holder PID
// as the file's only content. When the filesystem does not support flock
// the PID alone is authoritative: a recorded PID that is alive and not ours
// means the lock is held.
//
// # Thread Safety
//
// InstanceLock is NOT safe for concurrent use from multiple goroutines.
//
// # Limitations
//
//   - Advisory lock only
//   - The OS drops the flock if the process crashes; the stale PID file is
//     reclaimed by the next Acquire
type InstanceLock struct {
	path string
	file *os.File
	held bool
}

// NewInstanceLock creates a lock for the stack rooted at stackDir.
// It does not acquire the lock.
func NewInstanceLock(stackDir string) *InstanceLock {
	return &InstanceLock{path: filepath.Join(stackDir, LockFileName)}
}

// Path returns the lock file path.
func (l *InstanceLock) Path() string { return l.path }

// Acquire takes the lock or fails immediately.
//
// # Description
//
// The lock file is never unlinked by Release. If it was replaced while
// Acquire waited on the old inode (an operator removed a stale file), the
// flock is retaken on the file now at the path.
//
// # Outputs
//
//   - error: nil if acquired; *LockHeldError if another instance holds it;
//     a wrapped OS error if the file cannot be created
func (l *InstanceLock) Acquire() error {
	if l.held {
		return nil
	}

	if err := os.MkdirAll(filepath.Dir(l.path), 0755); err != nil {
		return fmt.Errorf("failed to create lock directory: %w", err)
	}

	for attempt := 0; attempt < maxLockAttempts; attempt++ {
		f, err := l.lockFile()
		if err != nil {
			return err
		}
		if !samePath(f, l.path) {
			_ = unix.Flock(int(f.Fd()), unix.LOCK_UN)
			f.Close()
			continue
		}

		if err := writePID(f); err != nil {
			_ = unix.Flock(int(f.Fd()), unix.LOCK_UN)
			f.Close()
			return fmt.Errorf("failed to write lock file: %w", err)
		}
		l.file = f
		l.held = true
		return nil
	}
	return fmt.Errorf("failed to acquire lock: %s keeps being replaced", l.path)
}

// maxLockAttempts bounds Acquire's retries when the lock file is replaced.
const maxLockAttempts = 3

// lockFile opens the lock file and takes the flock without blocking.
func (l *InstanceLock) lockFile() (*os.File, error) {
	f, err := os.OpenFile(l.path, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		return nil, fmt.Errorf("failed to create lock file %s: %w", l.path, err)
	}

	err = unix.Flock(int(f.Fd()), unix.LOCK_EX|unix.LOCK_NB)
	switch {
	case err == nil:
	case errors.Is(err, unix.EWOULDBLOCK):
		f.Close()
		return nil, &LockHeldError{HolderPID: l.HolderPID(), LockPath: l.path}
	case errors.Is(err, unix.ENOLCK), errors.Is(err, unix.EOPNOTSUPP):
		if pid := l.HolderPID(); pid > 0 && pid != os.Getpid() && pidAlive(pid) {
			f.Close()
			return nil, &LockHeldError{HolderPID: pid, LockPath: l.path}
		}
	default:
		f.Close()
		return nil, fmt.Errorf("failed to acquire lock: %w", err)
	}
	return f, nil
}

// samePath reports whether f is still the file at path.
func samePath(f *os.File, path string) bool {
	var open, cur unix.Stat_t
	if err := unix.Fstat(int(f.Fd()), &open); err != nil {
		return false
	}
	if err := unix.Stat(path, &cur); err != nil {
		return false
	}
	return open.Dev == cur.Dev && open.Ino == cur.Ino
}

// Release clears the recorded PID and drops the lock. The file stays in
// place so a concurrent Acquire never locks an unlinked inode. Safe to call
// multiple times or if the lock was never acquired.
func (l *InstanceLock) Release() error {
	if !l.held || l.file == nil {
		return nil
	}

	_ = l.file.Truncate(0)
	err := unix.Flock(int(l.file.Fd()), unix.LOCK_UN)
	l.file.Close()
	l.file = nil
	l.held = false

	if err != nil {
		return fmt.Errorf("failed to release lock: %w", err)
	}
	return nil
}

// IsHeld reports whether this instance holds the lock.
func (l *InstanceLock) IsHeld() bool { return l.held }

// HolderPID returns the PID recorded in the lock file, or 0.
func (l *InstanceLock) HolderPID() int {
	data, err := os.ReadFile(l.path)
	if err != nil {
		return 0
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0
	}
	return pid
}

func writePID(f *os.File) error {
	if err := f.Truncate(0); err != nil {
		return err
	}
	if _, err := f.WriteAt([]byte(strconv.Itoa(os.Getpid())), 0); err != nil {
		return err
	}
	return f.Sync()
}

// pidAlive probes pid with signal 0.
func pidAlive(pid int) bool {
	err := unix.Kill(pid, 0)
	return err == nil || errors.Is(err, unix.EPERM)
}
