package kvstore

import (
	"fmt"
	"testing"

	"github.com/dirserv/ldbm/internal/ldbmerr"
)

func TestIsHelpersMatchWrappedSentinels(t *testing.T) {
	wrapped := fmt.Errorf("id2entry: %w", ldbmerr.ErrNotFound)
	if !IsNotFound(wrapped) {
		t.Fatal("IsNotFound should see through wrapping")
	}
	if IsDeadlock(wrapped) {
		t.Fatal("IsDeadlock should not match ErrNotFound")
	}
	if !IsDeadlock(ldbmerr.ErrDeadlock) {
		t.Fatal("IsDeadlock should match ErrDeadlock")
	}
	if !IsRunRecovery(ldbmerr.ErrRunRecovery) {
		t.Fatal("IsRunRecovery should match ErrRunRecovery")
	}
	if !IsDiskFull(ldbmerr.ErrDiskFull) {
		t.Fatal("IsDiskFull should match ErrDiskFull")
	}
}
