/*
errors.go - Centralized error types for the ROB engine

PURPOSE:
  All error types in one place for consistency and discoverability.
  The API layer maps these onto HTTP statuses; callers use errors.Is/As.

ERROR CATEGORIES:
  1. Sequencing errors - chronological constraints on the report stream
  2. Validation errors - field-level rule violations, keyed by field path
  3. State machine errors - illegal report transitions
  4. Ledger errors - posting and store failures

SEE ALSO:
  - sequencer.go: produces sequencing errors
  - validate.go: produces ValidationErrors
  - workflow.go: wraps everything into the submit transaction
*/
package rob

import (
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrOutOfOrder is returned when a report's UTC time precedes the latest
	// Submitted report for the same ship.
	ErrOutOfOrder = errors.New("report out of chronological order")

	// ErrGapExceeded is returned when the gap to the preceding Submitted
	// report exceeds the configured ceiling.
	ErrGapExceeded = errors.New("inter-report gap exceeded")

	// ErrPrecedingNotSubmitted is returned when the chronologically previous
	// report for the ship is still Draft.
	ErrPrecedingNotSubmitted = errors.New("preceding report not submitted")

	// ErrInvalidNoonTime is returned when a noon-type report does not carry a
	// local wall-clock time of exactly 12:00:00.
	ErrInvalidNoonTime = errors.New("noon report must have local time 12:00:00")

	// ErrCannotRevertSubmitted is returned on any attempt to move a Submitted
	// report back to Draft. Submission is irreversible.
	ErrCannotRevertSubmitted = errors.New("cannot revert submitted report to draft")

	// ErrLedgerPostingFailed is returned when a ledger row cannot be written.
	// The whole submit transaction rolls back.
	ErrLedgerPostingFailed = errors.New("ledger posting failed")

	// ErrReportNotFound is returned when a referenced report doesn't exist or
	// has been soft-deleted.
	ErrReportNotFound = errors.New("report not found")

	// ErrDosingEventNotFound is returned when a referenced dosing event
	// doesn't exist.
	ErrDosingEventNotFound = errors.New("dosing event not found")

	// ErrDuplicateReportTime is returned when two reports for the same ship
	// would resolve to an identical UTC instant.
	ErrDuplicateReportTime = errors.New("duplicate report time for ship")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// SequenceError reports a chronological violation with both instants so the
// caller can surface the offending timestamp.
type SequenceError struct {
	ShipID       ShipID
	CandidateUTC time.Time
	PrecedingUTC time.Time
	GapMinutes   int
	Sentinel     error
}

func (e *SequenceError) Error() string {
	return fmt.Sprintf("%v: candidate %s vs preceding %s (gap %d min)",
		e.Sentinel, e.CandidateUTC.Format(time.RFC3339), e.PrecedingUTC.Format(time.RFC3339), e.GapMinutes)
}

func (e *SequenceError) Unwrap() error { return e.Sentinel }

// ValidationErrors is a field-path → message map, built up by the validators
// and surfaced as structured detail so a UI can highlight offending inputs.
type ValidationErrors map[string]string

func (v ValidationErrors) Add(field, message string) {
	v[field] = message
}

func (v ValidationErrors) Error() string {
	fields := make([]string, 0, len(v))
	for f := range v {
		fields = append(fields, f)
	}
	sort.Strings(fields)
	parts := make([]string, len(fields))
	for i, f := range fields {
		parts[i] = f + ": " + v[f]
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// PostingError wraps a store failure during ledger posting with the partition
// that was being written.
type PostingError struct {
	Partition PartitionKey
	Cause     error
}

func (e *PostingError) Error() string {
	return fmt.Sprintf("ledger posting failed for %s: %v", e.Partition, e.Cause)
}

func (e *PostingError) Unwrap() error { return ErrLedgerPostingFailed }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsSequenceError reports whether err is any of the chronological violations.
func IsSequenceError(err error) bool {
	return errors.Is(err, ErrOutOfOrder) ||
		errors.Is(err, ErrGapExceeded) ||
		errors.Is(err, ErrPrecedingNotSubmitted) ||
		errors.Is(err, ErrInvalidNoonTime) ||
		errors.Is(err, ErrDuplicateReportTime)
}

// IsClientError reports whether err is due to invalid caller input rather
// than a store failure.
func IsClientError(err error) bool {
	var verrs ValidationErrors
	return IsSequenceError(err) ||
		errors.Is(err, ErrCannotRevertSubmitted) ||
		errors.As(err, &verrs)
}
