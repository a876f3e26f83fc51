/*
sequencer.go - Chronological ordering of a ship's report stream

PURPOSE:
  Validates a candidate report's temporal position relative to the ship's
  existing stream and derives the inter-report duration. For a fixed ship,
  Submitted reports are totally ordered by UTC time: a new report must not
  precede the latest Submitted one, must not duplicate its instant, and must
  not open a gap wider than the configured ceiling (26 hours).

PRECEDING-DRAFT RULE:
  The chronologically previous report must itself already be Submitted.
  Submitting around an unfinished Draft would let gaps form silently, so the
  submission fails with ErrPrecedingNotSubmitted instead.

NOON RULE:
  A noon-type report must carry a local wall clock of exactly 12:00:00. The
  check is on the stored local time as-is, never re-derived from the offset -
  the stored local value is authoritative.
*/
package rob

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// DefaultMaxGap is the ceiling on the gap between consecutive Submitted
// reports.
const DefaultMaxGap = 26 * time.Hour

// Sequencer enforces the chronological constraints of a ship's report stream.
type Sequencer struct {
	Store  ReportStore
	MaxGap time.Duration
}

func NewSequencer(store ReportStore) *Sequencer {
	return &Sequencer{Store: store, MaxGap: DefaultMaxGap}
}

func (s *Sequencer) maxGap() time.Duration {
	if s.MaxGap <= 0 {
		return DefaultMaxGap
	}
	return s.MaxGap
}

// ValidateAndSequence checks the candidate's position in the ship's stream
// and returns the derived duration in hours (0 for the ship's first report).
// No state is written; the caller submits inside its own transaction.
func (s *Sequencer) ValidateAndSequence(ctx context.Context, r *Report) (float64, error) {
	if err := s.checkNoonTime(r); err != nil {
		return 0, err
	}

	latest, err := s.Store.LatestSubmitted(ctx, r.ShipID)
	if err != nil {
		return 0, fmt.Errorf("looking up latest submitted report: %w", err)
	}

	if latest == nil {
		// First report for the ship: accepted unconditionally.
		return 0, nil
	}

	gap := r.UTC.Sub(latest.UTC)
	gapMinutes := int(gap.Minutes())

	switch {
	case gap < 0:
		return 0, &SequenceError{
			ShipID: r.ShipID, CandidateUTC: r.UTC, PrecedingUTC: latest.UTC,
			GapMinutes: gapMinutes, Sentinel: ErrOutOfOrder,
		}
	case gap == 0:
		return 0, &SequenceError{
			ShipID: r.ShipID, CandidateUTC: r.UTC, PrecedingUTC: latest.UTC,
			Sentinel: ErrDuplicateReportTime,
		}
	case gap > s.maxGap():
		return 0, &SequenceError{
			ShipID: r.ShipID, CandidateUTC: r.UTC, PrecedingUTC: latest.UTC,
			GapMinutes: gapMinutes, Sentinel: ErrGapExceeded,
		}
	}

	// The chronologically previous report must not be a lingering Draft.
	prior, err := s.Store.LatestBefore(ctx, r.ShipID, r.UTC, r.ID)
	if err != nil {
		return 0, fmt.Errorf("looking up preceding report: %w", err)
	}
	if prior != nil && prior.Status == StatusDraft {
		return 0, &SequenceError{
			ShipID: r.ShipID, CandidateUTC: r.UTC, PrecedingUTC: prior.UTC,
			Sentinel: ErrPrecedingNotSubmitted,
		}
	}

	return durationHours(gap), nil
}

// checkNoonTime enforces the literal 12:00:00 local wall clock on noon-type
// reports, independent of any offset arithmetic.
func (s *Sequencer) checkNoonTime(r *Report) error {
	if !TypeSpec(r.TypeKey).IsNoon {
		return nil
	}
	h, m, sec := r.Local.Clock()
	if h != 12 || m != 0 || sec != 0 {
		return fmt.Errorf("%w: got %02d:%02d:%02d", ErrInvalidNoonTime, h, m, sec)
	}
	return nil
}

// durationHours converts a gap to hours rounded to 2 decimals, computed over
// whole minutes as the report stream stores minute granularity.
func durationHours(gap time.Duration) float64 {
	minutes := decimal.NewFromFloat(gap.Minutes())
	hrs, _ := minutes.Div(decimal.NewFromInt(60)).Round(2).Float64()
	return hrs
}
