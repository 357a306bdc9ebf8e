package engine

import (
	"workshop-board/domain"

	log "github.com/sirupsen/logrus"
)

// Apply folds one push event into the board. Events are applied
// independently; delivery may be duplicated or arrive out of order for the
// same id, in which case the last write wins until the next event corrects
// it. An event never disturbs a pending evaluation and never throws the
// partition invariant off: insert is idempotent and replace re-partitions
// atomically.
func (s *Session) Apply(ev domain.Event) {
	if ev.Kind != s.policy.Kind {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return
	}

	changed := false
	switch ev.Type {
	case domain.ItemCreated:
		if ev.Item != nil {
			changed = s.board.Insert(*ev.Item)
		}
	case domain.ItemUpdated, domain.ItemStateChanged:
		if ev.Item != nil {
			changed = s.board.Replace(*ev.Item)
		}
	case domain.ItemDeleted:
		changed = s.board.Remove(ev.ItemID)
	default:
		s.logger.WithFields(log.Fields{"kind": s.policy.Kind, "type": ev.Type}).
			Warn("ignoring push event of unknown type")
	}
	if changed {
		s.broadcastLocked()
	}
}
