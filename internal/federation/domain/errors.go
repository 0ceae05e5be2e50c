// Package domain defines the core federation domain models.
package domain

import (
	"errors"
	"fmt"
)

// DomainError is a federation error with a structured error code.
// Error codes follow the format MM-<AREA>-<NNNN>.
type DomainError struct {
	Code    string // error code, e.g. "MM-CONS-5030"
	Message string // human-readable message
	Details string // optional additional details
	Cause   error  // underlying error, if any
}

// Error implements the error interface.
func (e *DomainError) Error() string {
	if e.Details != "" {
		return fmt.Sprintf("[%s] %s: %s", e.Code, e.Message, e.Details)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying error for errors.Unwrap() support.
func (e *DomainError) Unwrap() error {
	return e.Cause
}

// Is implements errors.Is() support, comparing by code.
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return e.Code == t.Code
}

// WithDetails returns a copy of the error with additional details.
func (e *DomainError) WithDetails(details string) *DomainError {
	return &DomainError{Code: e.Code, Message: e.Message, Details: details, Cause: e.Cause}
}

// WithCause returns a copy of the error wrapping the given cause.
func (e *DomainError) WithCause(cause error) *DomainError {
	return &DomainError{Code: e.Code, Message: e.Message, Details: e.Details, Cause: cause}
}

// Coordinator errors.
var (
	ErrNodeIDRequired   = &DomainError{Code: "MM-COOR-4001", Message: "node ID is required"}
	ErrNodeAddrRequired = &DomainError{Code: "MM-COOR-4002", Message: "node address is required"}
	ErrInvalidLoadScore = &DomainError{Code: "MM-COOR-4003", Message: "invalid load score"}
	ErrNodeNotFound     = &DomainError{Code: "MM-COOR-4040", Message: "node not found"}
	ErrNoHealthyNodes   = &DomainError{Code: "MM-COOR-5030", Message: "no healthy node available"}
	ErrUnknownAlgorithm = &DomainError{Code: "MM-COOR-4004", Message: "unknown selection algorithm"}
)

// Consensus errors.
var (
	// ErrNotLeader is returned for proposals on a non-leader node.
	// The caller should retry against the hinted leader.
	ErrNotLeader = &DomainError{Code: "MM-CONS-4210", Message: "not the leader"}

	// ErrNoLeader means no leader is currently known.
	ErrNoLeader = &DomainError{Code: "MM-CONS-5031", Message: "no leader available"}

	// ErrNoQuorum means a majority is unreachable; the group is in
	// read-only degraded mode and rejects strongly consistent writes.
	ErrNoQuorum = &DomainError{Code: "MM-CONS-5032", Message: "quorum lost, consensus group is read-only"}

	// ErrStaleTerm means an RPC carried a term older than the local one.
	ErrStaleTerm = &DomainError{Code: "MM-CONS-4220", Message: "stale term"}
)

// Replication errors.
var (
	// ErrCorruptRecord means a record's checksum did not match; the
	// record is quarantined and excluded from merges.
	ErrCorruptRecord = &DomainError{Code: "MM-REPL-4400", Message: "record checksum mismatch, quarantined"}

	// ErrKeyNotFound means no live record exists for the key.
	ErrKeyNotFound = &DomainError{Code: "MM-REPL-4040", Message: "replicated key not found"}

	// ErrUnknownStrategy means the configured conflict strategy is not recognized.
	ErrUnknownStrategy = &DomainError{Code: "MM-REPL-4001", Message: "unknown conflict resolution strategy"}
)

// Transport errors.
var (
	// ErrPeerUnreachable wraps RPC timeouts and connection failures.
	// It is retried with backoff and counts toward health degradation.
	ErrPeerUnreachable = &DomainError{Code: "MM-NET-5040", Message: "peer unreachable"}

	// ErrIdentityRejected means a peer's sealed payload failed verification.
	ErrIdentityRejected = &DomainError{Code: "MM-NET-4010", Message: "peer identity verification failed"}
)

// ErrorCode extracts the structured code from an error chain,
// falling back to the generic system code.
func ErrorCode(err error) string {
	var de *DomainError
	if errors.As(err, &de) {
		return de.Code
	}
	return "MM-SYS-5000"
}

// IsDomainError checks if an error is a DomainError with the given
// code. An empty code matches any DomainError.
func IsDomainError(err error, code string) bool {
	var de *DomainError
	if !errors.As(err, &de) {
		return false
	}
	return code == "" || de.Code == code
}
