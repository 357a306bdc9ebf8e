package api

import (
	"context"

	"workshop-board/domain"
)

// ItemStore abstracts persistence for handlers and board sessions. It is a
// superset of engine.ItemService: sessions confirm moves through it, the
// registry bulk-loads boards through it.
type ItemStore interface {
	ListItems(ctx context.Context, kind domain.Kind) ([]domain.Item, error)
	SetState(ctx context.Context, kind domain.Kind, id string, to domain.State, verdict *domain.Verdict) (*domain.Item, error)
	ListCandidateItems(ctx context.Context, priorServiceRef string) ([]domain.CandidateItem, error)
	CreateZeroCostWorkOrder(ctx context.Context, warrantyID string, verdict domain.Verdict) (*domain.Item, error)
}

// Authenticator is implemented by types able to extract user IDs from headers.
type Authenticator interface {
	UserIDFromAuthHeader(string) (string, error)
}
