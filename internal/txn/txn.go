// Package txn implements the transactional envelope every write
// operation runs inside: begin a child transaction, run the caller's
// attempt, commit; on deadlock, restore caller state and retry with
// backoff up to a bounded number of times (spec.md §4.4's shared
// mutation skeleton, §5's "deadlock is a normal outcome" model, §9's
// {setup, in_txn, committed, retrying, exhausted} state machine).
//
// Grounded on the teacher's retry-with-backoff usage for its own
// external-call resilience (cenkalti/backoff/v4), generalized here to
// wrap a KV transaction attempt instead of an HTTP call, and on its
// OpenTelemetry instrumentation of operation spans, carried over onto
// each attempt so a slow or retried write is visible in traces exactly
// like the teacher's own instrumented call paths.
package txn

import (
	"context"
	"errors"

	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/dirserv/ldbm/internal/kvstore"
	"github.com/dirserv/ldbm/internal/ldbmerr"
)

// State is one node of the retry state machine spec.md §9 calls for.
type State int

const (
	StateSetup State = iota
	StateInTxn
	StateCommitted
	StateRetrying
	StateExhausted
)

func (s State) String() string {
	switch s {
	case StateInTxn:
		return "in_txn"
	case StateCommitted:
		return "committed"
	case StateRetrying:
		return "retrying"
	case StateExhausted:
		return "exhausted"
	default:
		return "setup"
	}
}

// Attempt is the caller's unit of work for one transaction attempt: read
// prior state, compute the new state, write it, all against txn.
type Attempt func(ctx context.Context, txn kvstore.Txn) error

// Envelope runs Attempts inside retried transactions against one Store.
type Envelope struct {
	Store      kvstore.Store
	RetryTimes int // RETRY_TIMES; <= 0 means a package default of 3

	tracer  trace.Tracer
	retries metric.Int64Counter
}

// NewEnvelope wires OpenTelemetry instrumentation from the global
// tracer and meter providers, which are no-ops until an SDK is
// installed by the caller.
func NewEnvelope(store kvstore.Store, retryTimes int) *Envelope {
	tracer := otel.Tracer("github.com/dirserv/ldbm/internal/txn")
	meter := otel.Meter("github.com/dirserv/ldbm/internal/txn")
	retries, _ := meter.Int64Counter("ldbm.txn.retries",
		metric.WithDescription("deadlock-triggered transaction retries"))
	return &Envelope{Store: store, RetryTimes: retryTimes, tracer: tracer, retries: retries}
}

// Run executes fn inside a transaction that is a child of parent (which
// may be nil). On ldbmerr.ErrDeadlock it calls restore (to reset any
// caller-owned mutable state — saved cache entries, recomputed mods —
// back to the pre-attempt snapshot spec.md §5 requires) and retries with
// exponential backoff, up to RetryTimes attempts. Exhausting retries
// returns ldbmerr.ErrBusy. restore may be nil if fn has no external state
// to roll back.
func (e *Envelope) Run(ctx context.Context, parent kvstore.Txn, restore func(), fn Attempt) error {
	ctx, span := e.tracer.Start(ctx, "txn.Run")
	defer span.End()

	retryTimes := e.RetryTimes
	if retryTimes <= 0 {
		retryTimes = 3
	}

	state := StateSetup
	attempt := 0
	op := func() error {
		if state == StateRetrying && restore != nil {
			restore()
		}
		state = StateInTxn
		attempt++

		tx, err := e.Store.Begin(ctx, parent)
		if err != nil {
			return err
		}
		if err := fn(ctx, tx); err != nil {
			_ = tx.Abort()
			return err
		}
		if err := tx.Commit(); err != nil {
			return err
		}
		state = StateCommitted
		return nil
	}

	bo := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), uint64(retryTimes-1))
	err := backoff.Retry(func() error {
		err := op()
		if err != nil && isRetryable(err) {
			state = StateRetrying
			if e.retries != nil {
				e.retries.Add(ctx, 1, metric.WithAttributes(attribute.Int("attempt", attempt)))
			}
			return err // retryable: backoff.Retry will call op() again
		}
		if err != nil {
			return backoff.Permanent(err)
		}
		return nil
	}, backoff.WithContext(bo, ctx))

	if err != nil {
		var perm *backoff.PermanentError
		if errors.As(err, &perm) {
			span.SetStatus(codes.Error, perm.Err.Error())
			return perm.Err
		}
		state = StateExhausted
		span.SetStatus(codes.Error, "retries exhausted")
		return ldbmerr.ErrBusy
	}
	span.SetAttributes(attribute.Int("attempts", attempt))
	return nil
}

func isRetryable(err error) bool {
	return ldbmerr.IsRetryable(err)
}
