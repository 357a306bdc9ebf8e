package engine

import (
	"fmt"

	"workshop-board/domain"
)

// ColumnSpec declares one rendered column of a board.
type ColumnSpec struct {
	State domain.State
	Label string
}

// Policy describes one board kind: its columns, the display remap for states
// without a column of their own, the legal transition edges, and which
// destinations are gated behind the evaluation sub-flow. Policies are static
// tables; nothing is computed at runtime.
type Policy struct {
	Kind    domain.Kind
	Columns []ColumnSpec

	remap map[domain.State]domain.State
	edges map[domain.State][]domain.State

	// gateOrigin/gateDestinations describe the evaluation gate: a move from
	// gateOrigin into any gated destination must hold a verdict first.
	gateOrigin       domain.State
	gateDestinations map[domain.State]bool
	outcomeStates    map[domain.VerdictOutcome]domain.State
}

// ColumnState resolves a state to the column state that displays it.
func (p *Policy) ColumnState(state domain.State) domain.State {
	if mapped, ok := p.remap[state]; ok {
		return mapped
	}
	return state
}

// IsLegalTransition reports whether from→to is a declared edge. Unknown
// states fail closed.
func (p *Policy) IsLegalTransition(from, to domain.State) bool {
	for _, dst := range p.edges[from] {
		if dst == to {
			return true
		}
	}
	return false
}

// RequiresEvaluation reports whether the move must be preceded by an
// evaluation verdict.
func (p *Policy) RequiresEvaluation(from, to domain.State) bool {
	return from == p.gateOrigin && p.gateDestinations[to]
}

// OutcomeDestination maps an evaluation outcome to the state it commits.
func (p *Policy) OutcomeDestination(outcome domain.VerdictOutcome) (domain.State, bool) {
	dst, ok := p.outcomeStates[outcome]
	return dst, ok
}

// PolicyFor returns the board policy for the given kind.
func PolicyFor(kind domain.Kind) (*Policy, error) {
	switch kind {
	case domain.KindService:
		return serviceBoardPolicy, nil
	case domain.KindBudget:
		return budgetBoardPolicy, nil
	case domain.KindWorkOrder:
		return workOrderBoardPolicy, nil
	case domain.KindWarranty:
		return warrantyBoardPolicy, nil
	}
	return nil, fmt.Errorf("no board policy for kind %q", kind)
}

var serviceBoardPolicy = &Policy{
	Kind: domain.KindService,
	Columns: []ColumnSpec{
		{State: domain.ServiceReceived, Label: "Received"},
		{State: domain.ServiceInDiagnosis, Label: "In diagnosis"},
		{State: domain.ServiceAwaitingApproval, Label: "Awaiting approval"},
		{State: domain.ServiceInRepair, Label: "In repair"},
		{State: domain.ServiceDeclined, Label: "Declined"},
		{State: domain.ServiceReady, Label: "Ready"},
		{State: domain.ServiceDelivered, Label: "Delivered"},
	},
	edges: map[domain.State][]domain.State{
		domain.ServiceReceived:         {domain.ServiceInDiagnosis},
		domain.ServiceInDiagnosis:      {domain.ServiceAwaitingApproval},
		domain.ServiceAwaitingApproval: {domain.ServiceInRepair, domain.ServiceDeclined},
		domain.ServiceInRepair:         {domain.ServiceReady},
		domain.ServiceReady:            {domain.ServiceDelivered},
	},
}

var budgetBoardPolicy = &Policy{
	Kind: domain.KindBudget,
	Columns: []ColumnSpec{
		{State: domain.BudgetDraft, Label: "Draft"},
		{State: domain.BudgetSent, Label: "Sent"},
		{State: domain.BudgetApproved, Label: "Approved"},
		{State: domain.BudgetRejected, Label: "Rejected"},
	},
	// Expired budgets have no column of their own and render in "Sent".
	remap: map[domain.State]domain.State{
		domain.BudgetExpired: domain.BudgetSent,
	},
	edges: map[domain.State][]domain.State{
		domain.BudgetDraft:   {domain.BudgetSent},
		domain.BudgetSent:    {domain.BudgetApproved, domain.BudgetRejected, domain.BudgetExpired},
		domain.BudgetExpired: {domain.BudgetSent},
	},
}

var workOrderBoardPolicy = &Policy{
	Kind: domain.KindWorkOrder,
	Columns: []ColumnSpec{
		{State: domain.OrderOpen, Label: "Open"},
		{State: domain.OrderInProgress, Label: "In progress"},
		{State: domain.OrderOnHold, Label: "On hold"},
		{State: domain.OrderCompleted, Label: "Completed"},
		{State: domain.OrderInvoiced, Label: "Invoiced"},
	},
	edges: map[domain.State][]domain.State{
		domain.OrderOpen:       {domain.OrderInProgress},
		domain.OrderInProgress: {domain.OrderOnHold, domain.OrderCompleted},
		domain.OrderOnHold:     {domain.OrderInProgress},
		domain.OrderCompleted:  {domain.OrderInvoiced},
	},
}

var warrantyBoardPolicy = &Policy{
	Kind: domain.KindWarranty,
	Columns: []ColumnSpec{
		{State: domain.WarrantyReceived, Label: "Received"},
		{State: domain.WarrantyAwaitingEvaluation, Label: "Awaiting evaluation"},
		{State: domain.WarrantyInRepair, Label: "In repair"},
		{State: domain.WarrantyRepaired, Label: "Repaired"},
		{State: domain.WarrantyDelivered, Label: "Delivered"},
		{State: domain.WarrantyClaimRejected, Label: "Rejected"},
	},
	// Claims accepted without repair render among the repaired items.
	remap: map[domain.State]domain.State{
		domain.WarrantyAcceptedNoRepair: domain.WarrantyRepaired,
	},
	edges: map[domain.State][]domain.State{
		domain.WarrantyReceived: {domain.WarrantyAwaitingEvaluation},
		domain.WarrantyAwaitingEvaluation: {
			domain.WarrantyInRepair,
			domain.WarrantyClaimRejected,
			domain.WarrantyAcceptedNoRepair,
		},
		// The only back-edge: a claim can return to evaluation from repair.
		domain.WarrantyInRepair: {domain.WarrantyAwaitingEvaluation, domain.WarrantyRepaired},
		domain.WarrantyRepaired: {domain.WarrantyDelivered},
	},
	gateOrigin: domain.WarrantyAwaitingEvaluation,
	gateDestinations: map[domain.State]bool{
		domain.WarrantyInRepair:         true,
		domain.WarrantyClaimRejected:    true,
		domain.WarrantyAcceptedNoRepair: true,
	},
	outcomeStates: map[domain.VerdictOutcome]domain.State{
		domain.MeetsConditions:     domain.WarrantyInRepair,
		domain.DoesNotMeet:         domain.WarrantyClaimRejected,
		domain.MeetsNoRepairNeeded: domain.WarrantyAcceptedNoRepair,
	},
}
