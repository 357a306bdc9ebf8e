package api

import (
	"context"
	"sync"

	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"

	"workshop-board/domain"
	"workshop-board/engine"
	"workshop-board/subscription"
)

// Registry hands out refcounted board sessions, one per entity kind. The
// first viewer of a kind triggers the bulk load and the topic subscription;
// when the last viewer releases, the subscription is cancelled and the
// session closed.
type Registry struct {
	store  ItemStore
	rc     *redis.Client
	logger *log.Logger

	mu       sync.Mutex
	sessions map[domain.Kind]*sessionEntry
}

type sessionEntry struct {
	session *engine.Session
	cancel  context.CancelFunc
	refs    int
}

func NewRegistry(store ItemStore, rc *redis.Client, logger *log.Logger) *Registry {
	return &Registry{
		store:    store,
		rc:       rc,
		logger:   logger,
		sessions: make(map[domain.Kind]*sessionEntry),
	}
}

// Attach returns the live session for kind, creating it on first use. The
// returned release func must be called exactly once when the caller is done.
func (r *Registry) Attach(ctx context.Context, kind domain.Kind) (*engine.Session, func(), error) {
	policy, err := engine.PolicyFor(kind)
	if err != nil {
		return nil, nil, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	entry, ok := r.sessions[kind]
	if !ok {
		seed, err := r.store.ListItems(ctx, kind)
		if err != nil {
			return nil, nil, err
		}
		session := engine.NewSession(policy, r.store, r.logger, seed)
		subCtx, cancel := context.WithCancel(context.Background())
		go subscription.Subscribe(subCtx, r.logger, r.rc, kind, session.Apply)
		entry = &sessionEntry{session: session, cancel: cancel}
		r.sessions[kind] = entry
		r.logger.WithField("kind", kind).Debug("board session opened")
	}
	entry.refs++
	return entry.session, func() { r.release(kind, entry) }, nil
}

func (r *Registry) release(kind domain.Kind, entry *sessionEntry) {
	r.mu.Lock()
	defer r.mu.Unlock()

	entry.refs--
	if entry.refs > 0 {
		return
	}
	entry.cancel()
	entry.session.Close()
	delete(r.sessions, kind)
	r.logger.WithField("kind", kind).Debug("board session closed")
}

// Close tears down all live sessions, regardless of refcounts. Used on
// shutdown only.
func (r *Registry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for kind, entry := range r.sessions {
		entry.cancel()
		entry.session.Close()
		delete(r.sessions, kind)
	}
}
