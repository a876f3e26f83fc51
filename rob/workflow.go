/*
workflow.go - Report state machine and submit orchestration

PURPOSE:
  Drives the Draft → Submitted lifecycle:

  create            → Draft, structural checks only
  update → Draft    → full replace of master and child lines, relaxed rules
  update → Submitted (from Draft) → full validation + sequencing + ledger
                      posting + status flip, all inside ONE store transaction
  update → Draft (from Submitted) → rejected, submission is irreversible
  delete            → soft delete from either state; posted ledger rows stay

ATOMICITY:
  On submit, persisting the children, sequencing, posting every ledger row,
  and flipping the status either all happen or none do. A failed sequencing
  or posting step leaves the report Draft with zero new ledger rows.

EDITS AFTER SUBMIT:
  A full update of an already-Submitted report still replaces its child
  lines (delete-all, re-insert) but never retracts or reposts ledger rows.
  The ledger keeps the history as posted at submit time; the report record
  reflects the last write. The report's type and timestamps are frozen at
  submission so the stream's ordering cannot be edited out from under the
  sequencer. This asymmetry is deliberate - see DESIGN.md.
*/
package rob

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// SubmitResult is what the caller gets back from a successful submission.
type SubmitResult struct {
	Status      ReportStatus
	DurationHrs float64
	Posted      []LedgerEntry
}

// Workflow is the report lifecycle service.
type Workflow struct {
	Store     TxStore
	Sequencer *Sequencer
	Posting   *PostingEngine
}

func NewWorkflow(store TxStore) *Workflow {
	return &Workflow{
		Store:     store,
		Sequencer: NewSequencer(store),
		Posting:   &PostingEngine{},
	}
}

// CreateReport creates a new Draft. Only the structural required fields are
// enforced at this point.
func (w *Workflow) CreateReport(ctx context.Context, r *Report) (*Report, error) {
	if err := ValidateDraft(r); err != nil {
		return nil, err
	}
	if r.ID == "" {
		r.ID = ReportID(uuid.NewString())
	}
	now := time.Now().UTC()
	r.Status = StatusDraft
	r.CreatedAt = now
	r.UpdatedAt = now

	if err := w.Store.SaveReport(ctx, r); err != nil {
		return nil, fmt.Errorf("saving draft: %w", err)
	}
	return r, nil
}

// UpdateReport applies a full replace of master fields and child lines, then
// moves the report toward the target status. Replace means replace: the
// supplied child lines become the report's only child lines.
func (w *Workflow) UpdateReport(ctx context.Context, id ReportID, updated *Report, target ReportStatus) (*SubmitResult, error) {
	existing, err := w.Store.GetReport(ctx, id)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, ErrReportNotFound
	}
	if existing.Status == StatusSubmitted && target == StatusDraft {
		return nil, ErrCannotRevertSubmitted
	}

	updated.ID = existing.ID
	updated.ShipID = existing.ShipID
	updated.CreatedAt = existing.CreatedAt
	updated.UpdatedAt = time.Now().UTC()

	switch {
	case target == StatusDraft:
		return w.saveDraft(ctx, updated)

	case target == StatusSubmitted && existing.Status == StatusSubmitted:
		return w.resaveSubmitted(ctx, existing, updated)

	case target == StatusSubmitted:
		return w.submit(ctx, updated)

	default:
		return nil, fmt.Errorf("unsupported target status %q", target)
	}
}

// SubmitReport submits a stored Draft as-is.
func (w *Workflow) SubmitReport(ctx context.Context, id ReportID) (*SubmitResult, error) {
	existing, err := w.Store.GetReport(ctx, id)
	if err != nil {
		return nil, err
	}
	if existing == nil {
		return nil, ErrReportNotFound
	}
	if existing.Status == StatusSubmitted {
		// Already final; nothing to post again.
		return &SubmitResult{Status: StatusSubmitted, DurationHrs: existing.DurationHrs}, nil
	}
	return w.submit(ctx, existing)
}

// DeleteReport soft-deletes from either state, cascading to child lines.
// Ledger rows already posted are immutable history and stay.
func (w *Workflow) DeleteReport(ctx context.Context, id ReportID) error {
	existing, err := w.Store.GetReport(ctx, id)
	if err != nil {
		return err
	}
	if existing == nil {
		return ErrReportNotFound
	}
	return w.Store.SoftDeleteReport(ctx, id)
}

func (w *Workflow) saveDraft(ctx context.Context, r *Report) (*SubmitResult, error) {
	if err := ValidateDraft(r); err != nil {
		return nil, err
	}
	r.Status = StatusDraft
	if err := w.Store.SaveReport(ctx, r); err != nil {
		return nil, fmt.Errorf("saving draft: %w", err)
	}
	return &SubmitResult{Status: StatusDraft}, nil
}

// resaveSubmitted handles a full update of an already-Submitted report:
// full validation, child lines replaced, ledger untouched. The report's
// place in the stream is frozen: type and timestamps keep their submitted
// values, otherwise an edit could slide a Submitted report past its
// neighbours or off its noon slot without re-sequencing.
func (w *Workflow) resaveSubmitted(ctx context.Context, existing, updated *Report) (*SubmitResult, error) {
	updated.TypeKey = existing.TypeKey
	updated.UTC = existing.UTC
	updated.Local = existing.Local
	updated.OffsetMinutes = existing.OffsetMinutes
	if err := ValidateSubmit(updated); err != nil {
		return nil, err
	}
	updated.Status = StatusSubmitted
	updated.DurationHrs = existing.DurationHrs
	if err := w.Store.SaveReport(ctx, updated); err != nil {
		return nil, fmt.Errorf("resaving submitted report: %w", err)
	}
	return &SubmitResult{Status: StatusSubmitted, DurationHrs: existing.DurationHrs}, nil
}

// submit runs the full Draft → Submitted transition in one transaction.
func (w *Workflow) submit(ctx context.Context, r *Report) (*SubmitResult, error) {
	if err := ValidateSubmit(r); err != nil {
		return nil, err
	}

	var result SubmitResult
	err := w.Store.WithTx(ctx, func(s Store) error {
		// Persist master + replaced children, status still Draft.
		r.Status = StatusDraft
		if err := s.SaveReport(ctx, r); err != nil {
			return fmt.Errorf("persisting report for submit: %w", err)
		}

		seq := &Sequencer{Store: s, MaxGap: w.Sequencer.maxGap()}
		durationHrs, err := seq.ValidateAndSequence(ctx, r)
		if err != nil {
			return err
		}

		posted, err := w.Posting.PostReport(ctx, s, r)
		if err != nil {
			return err
		}

		if err := s.MarkSubmitted(ctx, r.ID, durationHrs); err != nil {
			return fmt.Errorf("flipping status: %w", err)
		}

		result = SubmitResult{Status: StatusSubmitted, DurationHrs: durationHrs, Posted: posted}
		return nil
	})
	if err != nil {
		return nil, err
	}

	r.Status = StatusSubmitted
	r.DurationHrs = result.DurationHrs
	return &result, nil
}
