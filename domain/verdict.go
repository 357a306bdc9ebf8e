package domain

import "errors"

// VerdictOutcome is the adjudication result of a warranty evaluation.
type VerdictOutcome string

const (
	// MeetsConditions accepts the claim; the item proceeds to repair.
	MeetsConditions VerdictOutcome = "meets-conditions"
	// DoesNotMeet denies the claim.
	DoesNotMeet VerdictOutcome = "does-not-meet"
	// MeetsNoRepairNeeded accepts the claim but no repair work is required.
	MeetsNoRepairNeeded VerdictOutcome = "meets-but-no-repair-needed"
)

// SelectedItem references one candidate part chosen during evaluation.
type SelectedItem struct {
	CandidateID string `json:"candidateId"`
	Note        string `json:"note,omitempty"`
}

// Verdict is the structured outcome of the warranty evaluation sub-flow.
type Verdict struct {
	ItemID        string         `json:"itemId"`
	Outcome       VerdictOutcome `json:"outcome"`
	Selected      []SelectedItem `json:"selected,omitempty"`
	Justification string         `json:"justification,omitempty"`
}

var (
	ErrUnknownOutcome       = errors.New("unknown verdict outcome")
	ErrJustificationMissing = errors.New("justification text is required for this outcome")
	ErrNoSelectedItems      = errors.New("at least one candidate item must be selected")
)

// Validate checks the verdict against the candidate list it was produced from.
// candidateCount is the number of candidates offered by the sub-flow; when it
// is zero, meets-conditions needs no selection.
func (v Verdict) Validate(candidateCount int) error {
	switch v.Outcome {
	case MeetsConditions:
		if candidateCount > 0 && len(v.Selected) == 0 {
			return ErrNoSelectedItems
		}
	case DoesNotMeet, MeetsNoRepairNeeded:
		if v.Justification == "" {
			return ErrJustificationMissing
		}
	default:
		return ErrUnknownOutcome
	}
	return nil
}
