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
	"os"
	"path/filepath"
	"strconv"
	"testing"
)

func TestInstanceLock_AcquireRelease(t *testing.T) {
	stack := t.TempDir()
	lock := NewInstanceLock(stack)

	if err := lock.Acquire(); err != nil {
		t.Fatalf("Acquire() failed: %v", err)
	}
	if !lock.IsHeld() {
		t.Error("IsHeld() = false after Acquire")
	}

	data, err := os.ReadFile(filepath.Join(stack, LockFileName))
	if err != nil {
		t.Fatalf("lock file not written: %v", err)
	}
	if string(data) != strconv.Itoa(os.Getpid()) {
		t.Errorf("lock file content = %q, want raw PID %d", data, os.Getpid())
	}

	if err := lock.Release(); err != nil {
		t.Fatalf("Release() failed: %v", err)
	}
	data, err = os.ReadFile(lock.Path())
	if err != nil {
		t.Fatalf("lock file should stay after Release: %v", err)
	}
	if len(data) != 0 {
		t.Errorf("lock file content after Release = %q, want empty", data)
	}
	if got := lock.HolderPID(); got != 0 {
		t.Errorf("HolderPID() after Release = %d, want 0", got)
	}

	// Second release is a no-op
	if err := lock.Release(); err != nil {
		t.Errorf("second Release() = %v, want nil", err)
	}
}

func TestInstanceLock_Contention(t *testing.T) {
	stack := t.TempDir()
	first := NewInstanceLock(stack)
	if err := first.Acquire(); err != nil {
		t.Fatalf("first Acquire() failed: %v", err)
	}
	defer first.Release()

	second := NewInstanceLock(stack)
	err := second.Acquire()
	if err == nil {
		second.Release()
		t.Fatal("second Acquire() succeeded while lock held")
	}

	var held *LockHeldError
	if !errors.As(err, &held) {
		t.Fatalf("error type = %T, want *LockHeldError", err)
	}
	if held.HolderPID != os.Getpid() {
		t.Errorf("HolderPID = %d, want %d", held.HolderPID, os.Getpid())
	}
	if !errors.Is(err, ErrLockHeld) {
		t.Error("error should unwrap to ErrLockHeld")
	}
	if second.IsHeld() {
		t.Error("second lock reports held after failed Acquire")
	}
}

func TestInstanceLock_ReclaimsStaleFile(t *testing.T) {
	stack := t.TempDir()
	path := filepath.Join(stack, LockFileName)
	if err := os.WriteFile(path, []byte("999999999"), 0644); err != nil {
		t.Fatal(err)
	}

	lock := NewInstanceLock(stack)
	if err := lock.Acquire(); err != nil {
		t.Fatalf("Acquire() over stale file failed: %v", err)
	}
	defer lock.Release()

	if got := lock.HolderPID(); got != os.Getpid() {
		t.Errorf("HolderPID() = %d, want %d", got, os.Getpid())
	}
}

func TestInstanceLock_HolderPIDWithoutFile(t *testing.T) {
	lock := NewInstanceLock(t.TempDir())
	if got := lock.HolderPID(); got != 0 {
		t.Errorf("HolderPID() = %d, want 0", got)
	}
}

func TestInstanceLock_ReacquireKeepsInode(t *testing.T) {
	stack := t.TempDir()
	first := NewInstanceLock(stack)
	if err := first.Acquire(); err != nil {
		t.Fatalf("Acquire() failed: %v", err)
	}
	before, err := os.Stat(first.Path())
	if err != nil {
		t.Fatal(err)
	}
	if err := first.Release(); err != nil {
		t.Fatalf("Release() failed: %v", err)
	}

	second := NewInstanceLock(stack)
	if err := second.Acquire(); err != nil {
		t.Fatalf("Acquire() after Release failed: %v", err)
	}
	defer second.Release()

	after, err := os.Stat(second.Path())
	if err != nil {
		t.Fatal(err)
	}
	if !os.SameFile(before, after) {
		t.Error("lock file was replaced between holders")
	}
	if got := second.HolderPID(); got != os.Getpid() {
		t.Errorf("HolderPID() = %d, want %d", got, os.Getpid())
	}
}

func TestSamePath_ReplacedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), LockFileName)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR, 0644)
	if err != nil {
		t.Fatal(err)
	}
	defer f.Close()

	if !samePath(f, path) {
		t.Fatal("samePath() = false for the open file")
	}

	replacement := path + ".new"
	if err := os.WriteFile(replacement, nil, 0644); err != nil {
		t.Fatal(err)
	}
	if err := os.Rename(replacement, path); err != nil {
		t.Fatal(err)
	}
	if samePath(f, path) {
		t.Error("samePath() = true after the path was replaced")
	}

	if err := os.Remove(path); err != nil {
		t.Fatal(err)
	}
	if samePath(f, path) {
		t.Error("samePath() = true after the path was removed")
	}
}

func TestInstanceLock_AcquireAfterHeldFileRemoved(t *testing.T) {
	stack := t.TempDir()
	first := NewInstanceLock(stack)
	if err := first.Acquire(); err != nil {
		t.Fatalf("Acquire() failed: %v", err)
	}
	defer first.Release()

	// An operator deletes what looks like a stale lock.
	if err := os.Remove(first.Path()); err != nil {
		t.Fatal(err)
	}

	second := NewInstanceLock(stack)
	if err := second.Acquire(); err != nil {
		t.Fatalf("Acquire() on a fresh file failed: %v", err)
	}
	defer second.Release()
	if got := second.HolderPID(); got != os.Getpid() {
		t.Errorf("HolderPID() = %d, want %d", got, os.Getpid())
	}
}
