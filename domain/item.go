package domain

import "time"

// Kind identifies which board an item belongs to.
type Kind string

const (
	KindService   Kind = "service"
	KindBudget    Kind = "budget"
	KindWorkOrder Kind = "workorder"
	KindWarranty  Kind = "warranty"
)

// Kinds lists every board kind served by this process.
var Kinds = []Kind{KindService, KindBudget, KindWorkOrder, KindWarranty}

// Valid reports whether k names a known board kind.
func (k Kind) Valid() bool {
	switch k {
	case KindService, KindBudget, KindWorkOrder, KindWarranty:
		return true
	}
	return false
}

// State is a workflow state of a board item. The legal values depend on the
// item's kind; the engine's board policy owns the per-kind state space.
type State string

// Service ticket states.
const (
	ServiceReceived         State = "received"
	ServiceInDiagnosis      State = "in-diagnosis"
	ServiceAwaitingApproval State = "awaiting-approval"
	ServiceInRepair         State = "in-repair"
	ServiceDeclined         State = "declined"
	ServiceReady            State = "ready"
	ServiceDelivered        State = "delivered"
)

// Budget states.
const (
	BudgetDraft    State = "draft"
	BudgetSent     State = "sent"
	BudgetApproved State = "approved"
	BudgetRejected State = "rejected"
	BudgetExpired  State = "expired"
)

// Work order states.
const (
	OrderOpen       State = "open"
	OrderInProgress State = "in-progress"
	OrderOnHold     State = "on-hold"
	OrderCompleted  State = "completed"
	OrderInvoiced   State = "invoiced"
)

// Warranty claim states.
const (
	WarrantyReceived           State = "received"
	WarrantyAwaitingEvaluation State = "awaiting-evaluation"
	WarrantyInRepair           State = "in-repair"
	WarrantyClaimRejected      State = "claim-rejected"
	WarrantyAcceptedNoRepair   State = "claim-accepted-no-repair"
	WarrantyRepaired           State = "repaired"
	WarrantyDelivered          State = "delivered"
)

// Item is a snapshot of a single board entity. Snapshots are replaced whole on
// every mutation; the board store never edits one in place.
type Item struct {
	ID              string    `json:"id"`
	Kind            Kind      `json:"kind"`
	State           State     `json:"state"`
	Title           string    `json:"title"`
	Notes           string    `json:"notes,omitempty"`
	ClientRef       string    `json:"clientRef,omitempty"`
	EquipmentRef    string    `json:"equipmentRef,omitempty"`
	PriorServiceRef string    `json:"priorServiceRef,omitempty"`
	Amount          float64   `json:"amount,omitempty"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt,omitempty"`
}

// CandidateItem is a part or component of a prior service that the warranty
// evaluation sub-flow offers for selection.
type CandidateItem struct {
	ID          string  `json:"id"`
	Description string  `json:"description"`
	Cost        float64 `json:"cost,omitempty"`
}
