package lockfile

import (
	"testing"
)

func TestLockExcludesSecondOpen(t *testing.T) {
	dir := t.TempDir()

	l1, err := Lock(dir)
	if err != nil {
		t.Fatalf("Lock: %v", err)
	}
	defer l1.Unlock()

	_, err = Lock(dir)
	if !IsLocked(err) {
		t.Fatalf("expected ErrLockBusy from a second Lock, got %v", err)
	}
}

func TestUnlockAllowsReacquire(t *testing.T) {
	dir := t.TempDir()

	l1, err := Lock(dir)
	if err != nil {
		t.Fatalf("Lock: %v", err)
	}
	if err := l1.Unlock(); err != nil {
		t.Fatalf("Unlock: %v", err)
	}

	l2, err := Lock(dir)
	if err != nil {
		t.Fatalf("Lock after Unlock: %v", err)
	}
	defer l2.Unlock()
}

func TestUnlockNilIsNoop(t *testing.T) {
	var l *InstanceLock
	if err := l.Unlock(); err != nil {
		t.Fatalf("Unlock on nil lock: %v", err)
	}
}
