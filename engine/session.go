package engine

import (
	"context"
	"encoding/json"
	"sync"

	log "github.com/sirupsen/logrus"

	"workshop-board/domain"
)

// ItemService is the set of authoritative collaborators a session confirms
// its mutations against.
type ItemService interface {
	// SetState is the confirming request behind an optimistic move. The
	// returned snapshot, when non-nil, carries authoritative fields to merge.
	SetState(ctx context.Context, kind domain.Kind, id string, to domain.State, verdict *domain.Verdict) (*domain.Item, error)
	// ListCandidateItems fetches the parts of a prior service for the
	// warranty evaluation sub-flow.
	ListCandidateItems(ctx context.Context, priorServiceRef string) ([]domain.CandidateItem, error)
	// CreateZeroCostWorkOrder is the chained follow-up after a claim is
	// accepted into repair.
	CreateZeroCostWorkOrder(ctx context.Context, warrantyID string, verdict domain.Verdict) (*domain.Item, error)
}

// BoardView is the wire shape broadcast to attached viewers after every
// board mutation.
type BoardView struct {
	Kind    domain.Kind `json:"kind"`
	Columns []Column    `json:"columns"`
}

// Session owns one board instance for the lifetime of a board view. All
// mutations are serialized; confirming requests run outside the critical
// section so push events interleave with in-flight moves, matching the
// source's event-loop model.
type Session struct {
	policy *Policy
	svc    ItemService
	logger *log.Logger

	mu     sync.Mutex
	board  *Board
	eval   *evaluation
	closed bool
	subs   map[chan []byte]struct{}
}

// NewSession builds a session for one board kind seeded with a bulk load.
func NewSession(policy *Policy, svc ItemService, logger *log.Logger, seed []domain.Item) *Session {
	board := NewBoard(policy)
	board.Seed(seed)
	return &Session{
		policy: policy,
		svc:    svc,
		logger: logger,
		board:  board,
		subs:   make(map[chan []byte]struct{}),
	}
}

// Snapshot returns the current column-partitioned view.
func (s *Session) Snapshot() BoardView {
	s.mu.Lock()
	defer s.mu.Unlock()
	return BoardView{Kind: s.policy.Kind, Columns: s.board.Snapshot()}
}

// Subscribe registers a viewer channel that receives a marshaled BoardView
// after every mutation. Slow viewers drop frames rather than block the board.
func (s *Session) Subscribe() chan []byte {
	ch := make(chan []byte, 8)
	s.mu.Lock()
	s.subs[ch] = struct{}{}
	s.mu.Unlock()
	return ch
}

// Unsubscribe detaches a viewer channel.
func (s *Session) Unsubscribe(ch chan []byte) {
	s.mu.Lock()
	delete(s.subs, ch)
	s.mu.Unlock()
}

// Close marks the session dead. The registry cancels the push subscription
// alongside this; further mutations fail with ErrSessionClosed.
func (s *Session) Close() {
	s.mu.Lock()
	s.closed = true
	s.eval = nil
	s.subs = make(map[chan []byte]struct{})
	s.mu.Unlock()
}

// broadcastLocked fans the current snapshot out to every subscriber. The
// caller must hold s.mu.
func (s *Session) broadcastLocked() {
	if len(s.subs) == 0 {
		return
	}
	view := BoardView{Kind: s.policy.Kind, Columns: s.board.Snapshot()}
	data, err := json.Marshal(view)
	if err != nil {
		s.logger.WithError(err).WithField("kind", s.policy.Kind).Error("failed to marshal board view")
		return
	}
	for ch := range s.subs {
		select {
		case ch <- data:
		default:
		}
	}
}
