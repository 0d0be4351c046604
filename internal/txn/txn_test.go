package txn_test

import (
	"context"
	"errors"
	"testing"

	"github.com/dirserv/ldbm/internal/kvstore"
	"github.com/dirserv/ldbm/internal/kvstore/memkv"
	"github.com/dirserv/ldbm/internal/ldbmerr"
	"github.com/dirserv/ldbm/internal/txn"
)

// flakyStore wraps a real Store and makes the first failCommits calls to
// Commit on a top-level transaction return ldbmerr.ErrDeadlock, so the
// retry loop in txn.Envelope.Run has something real to retry against.
type flakyStore struct {
	kvstore.Store
	failCommits int
}

func (f *flakyStore) Begin(ctx context.Context, parent kvstore.Txn) (kvstore.Txn, error) {
	inner, err := f.Store.Begin(ctx, parent)
	if err != nil {
		return nil, err
	}
	return &flakyTxn{Txn: inner, store: f}, nil
}

type flakyTxn struct {
	kvstore.Txn
	store *flakyStore
}

func (t *flakyTxn) Commit() error {
	if t.store.failCommits > 0 {
		t.store.failCommits--
		return ldbmerr.ErrDeadlock
	}
	return t.Txn.Commit()
}

func TestRunCommitsOnFirstSuccess(t *testing.T) {
	env := txn.NewEnvelope(memkv.New(), 3)
	called := 0
	err := env.Run(context.Background(), nil, nil, func(ctx context.Context, tx kvstore.Txn) error {
		called++
		return nil
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if called != 1 {
		t.Fatalf("expected fn called once, got %d", called)
	}
}

func TestRunPropagatesNonRetryableError(t *testing.T) {
	env := txn.NewEnvelope(memkv.New(), 3)
	wantErr := errors.New("boom")
	err := env.Run(context.Background(), nil, nil, func(ctx context.Context, tx kvstore.Txn) error {
		return wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("got %v, want %v", err, wantErr)
	}
}

func TestRunRetriesOnDeadlockThenSucceeds(t *testing.T) {
	store := &flakyStore{Store: memkv.New(), failCommits: 2}
	env := txn.NewEnvelope(store, 5)

	restoreCalls := 0
	attempts := 0
	err := env.Run(context.Background(), nil, func() { restoreCalls++ }, func(ctx context.Context, tx kvstore.Txn) error {
		attempts++
		return nil
	})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if attempts != 3 {
		t.Fatalf("expected 3 attempts (2 deadlocks + 1 success), got %d", attempts)
	}
	if restoreCalls != 2 {
		t.Fatalf("expected restore called once per retry (2), got %d", restoreCalls)
	}
}

func TestRunExhaustsRetriesAndReturnsErrBusy(t *testing.T) {
	store := &flakyStore{Store: memkv.New(), failCommits: 100}
	env := txn.NewEnvelope(store, 3)

	err := env.Run(context.Background(), nil, nil, func(ctx context.Context, tx kvstore.Txn) error {
		return nil
	})
	if !errors.Is(err, ldbmerr.ErrBusy) {
		t.Fatalf("got %v, want ErrBusy", err)
	}
}

func TestRunAbortsOnAttemptError(t *testing.T) {
	env := txn.NewEnvelope(memkv.New(), 1)
	wantErr := errors.New("attempt failed")
	err := env.Run(context.Background(), nil, nil, func(ctx context.Context, tx kvstore.Txn) error {
		return wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("got %v, want %v", err, wantErr)
	}
}

func TestStateStringValues(t *testing.T) {
	cases := map[txn.State]string{
		txn.StateSetup:      "setup",
		txn.StateInTxn:      "in_txn",
		txn.StateCommitted:  "committed",
		txn.StateRetrying:   "retrying",
		txn.StateExhausted:  "exhausted",
	}
	for state, want := range cases {
		if got := state.String(); got != want {
			t.Fatalf("State(%d).String() = %q, want %q", state, got, want)
		}
	}
}
