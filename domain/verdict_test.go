package domain

import (
	"errors"
	"testing"
)

func TestVerdictValidate(t *testing.T) {
	cases := []struct {
		name       string
		verdict    Verdict
		candidates int
		wantErr    error
	}{
		{
			name:       "meets with selection",
			verdict:    Verdict{Outcome: MeetsConditions, Selected: []SelectedItem{{CandidateID: "p1"}}},
			candidates: 2,
		},
		{
			name:       "meets without selection when candidates exist",
			verdict:    Verdict{Outcome: MeetsConditions},
			candidates: 2,
			wantErr:    ErrNoSelectedItems,
		},
		{
			name:       "meets without selection when no candidates",
			verdict:    Verdict{Outcome: MeetsConditions},
			candidates: 0,
		},
		{
			name:    "does not meet without justification",
			verdict: Verdict{Outcome: DoesNotMeet},
			wantErr: ErrJustificationMissing,
		},
		{
			name:    "does not meet with justification",
			verdict: Verdict{Outcome: DoesNotMeet, Justification: "not covered"},
		},
		{
			name:    "no repair needed without justification",
			verdict: Verdict{Outcome: MeetsNoRepairNeeded},
			wantErr: ErrJustificationMissing,
		},
		{
			name:    "unknown outcome",
			verdict: Verdict{Outcome: "maybe"},
			wantErr: ErrUnknownOutcome,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			err := tc.verdict.Validate(tc.candidates)
			if !errors.Is(err, tc.wantErr) {
				t.Fatalf("got %v, want %v", err, tc.wantErr)
			}
		})
	}
}
