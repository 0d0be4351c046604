// Package ldbmerr defines the error kinds the storage core surfaces across
// its operation API, and the sentinel values callers use with errors.Is.
package ldbmerr

import (
	"errors"
	"fmt"
)

// Kind classifies an error by how the caller is expected to react to it.
type Kind int

const (
	// KindInternal covers invariant violations and protocol-parsing bugs.
	KindInternal Kind = iota
	KindTransient
	KindLogical
	KindResource
)

func (k Kind) String() string {
	switch k {
	case KindTransient:
		return "transient"
	case KindLogical:
		return "logical"
	case KindResource:
		return "resource"
	default:
		return "internal"
	}
}

// Sentinel errors. Wrap with fmt.Errorf("%s: %w", op, err) at call sites and
// unwrap with errors.Is.
var (
	// Transient
	ErrDeadlock         = errors.New("deadlock detected")
	ErrBusy             = errors.New("retries exhausted")
	ErrAbandoned        = errors.New("operation abandoned")
	ErrTimeLimitExceeded = errors.New("time limit exceeded")
	ErrAdminLimitExceeded = errors.New("administrative limit exceeded")

	// Logical
	ErrNoSuchObject        = errors.New("no such object")
	ErrAlreadyExists       = errors.New("already exists")
	ErrNotAllowedOnNonLeaf = errors.New("not allowed on non-leaf entry")
	ErrInvalidDNSyntax     = errors.New("invalid DN syntax")
	ErrObjectClassViolation = errors.New("object class violation")
	ErrInvalidSyntax       = errors.New("invalid syntax")
	ErrUnwillingToPerform  = errors.New("unwilling to perform")

	// Resource
	ErrOutOfMemory  = errors.New("out of memory")
	ErrDiskFull     = errors.New("disk full")
	ErrRunRecovery  = errors.New("database requires recovery")

	// Internal
	ErrProtocol       = errors.New("protocol error")
	ErrOperationsError = errors.New("operations error")

	// ErrNoop signals a plugin veto: the core treats the operation as a
	// successful no-op without writing anything.
	ErrNoop = errors.New("plugin vetoed operation (noop)")

	// ErrNotFound is the store-level "key absent" condition. It is not a
	// client-visible error on its own; callers convert it as appropriate
	// (often into ErrNoSuchObject, sometimes swallowed as idempotent).
	ErrNotFound = errors.New("not found")

	// ErrPermission is a store-level access-denied condition (file
	// permissions, read-only instance).
	ErrPermission = errors.New("permission denied")
)

var kinds = map[error]Kind{
	ErrDeadlock:            KindTransient,
	ErrBusy:                KindTransient,
	ErrAbandoned:           KindTransient,
	ErrTimeLimitExceeded:   KindTransient,
	ErrAdminLimitExceeded:  KindTransient,
	ErrNoSuchObject:        KindLogical,
	ErrAlreadyExists:       KindLogical,
	ErrNotAllowedOnNonLeaf: KindLogical,
	ErrInvalidDNSyntax:     KindLogical,
	ErrObjectClassViolation: KindLogical,
	ErrInvalidSyntax:       KindLogical,
	ErrUnwillingToPerform:  KindLogical,
	ErrOutOfMemory:         KindResource,
	ErrDiskFull:            KindResource,
	ErrRunRecovery:         KindResource,
	ErrProtocol:            KindInternal,
	ErrOperationsError:     KindInternal,
}

// ClassOf returns the Kind of err, walking the wrap chain. Unrecognized
// errors are KindInternal.
func ClassOf(err error) Kind {
	for sentinel, kind := range kinds {
		if errors.Is(err, sentinel) {
			return kind
		}
	}
	return KindInternal
}

// IsRetryable reports whether the retry loop in package txn should retry
// the operation that produced err.
func IsRetryable(err error) bool {
	return errors.Is(err, ErrDeadlock)
}

// Wrap annotates err with an operation label, preserving errors.Is chains.
// Mirrors the teacher's wrapDBError/wrapDBErrorf idiom.
func Wrap(op string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", op, err)
}

// WithAttr annotates a logical error with the offending attribute type, as
// required by the propagation policy in section 7 of the specification.
func WithAttr(err error, attrType string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("attribute %q: %w", attrType, err)
}
