package engine

import (
	"sort"

	"workshop-board/domain"
)

// Column is one display bucket of a board. Items are ordered newest-first.
type Column struct {
	State domain.State  `json:"state"`
	Label string        `json:"label"`
	Items []domain.Item `json:"items"`
}

// Board partitions item snapshots into the columns declared by its policy.
// It is a plain data structure with no locking; the owning session serializes
// access to it.
type Board struct {
	policy  *Policy
	columns []*Column
	index   map[domain.State]*Column
}

// NewBoard creates an empty board laid out per the policy's column list.
func NewBoard(policy *Policy) *Board {
	b := &Board{
		policy: policy,
		index:  make(map[domain.State]*Column, len(policy.Columns)),
	}
	for _, spec := range policy.Columns {
		col := &Column{State: spec.State, Label: spec.Label, Items: []domain.Item{}}
		b.columns = append(b.columns, col)
		b.index[spec.State] = col
	}
	return b
}

// Seed bulk-loads items, partitioning them into columns sorted newest-first.
// Items whose state resolves to no column are dropped.
func (b *Board) Seed(items []domain.Item) {
	sorted := make([]domain.Item, len(items))
	copy(sorted, items)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].CreatedAt.After(sorted[j].CreatedAt)
	})
	for _, it := range sorted {
		if col, ok := b.columnFor(it.State); ok {
			col.Items = append(col.Items, it)
		}
	}
}

// columnFor resolves a state to its display column, applying the policy's
// alias remap table first.
func (b *Board) columnFor(state domain.State) (*Column, bool) {
	col, ok := b.index[b.policy.ColumnState(state)]
	return col, ok
}

// Insert adds the item to the column matching its state unless an item with
// the same id already exists anywhere on the board. It reports whether an
// insertion happened, which makes replayed created-events a no-op.
func (b *Board) Insert(item domain.Item) bool {
	if _, _, ok := b.Locate(item.ID); ok {
		return false
	}
	col, ok := b.columnFor(item.State)
	if !ok {
		return false
	}
	col.Items = append([]domain.Item{item}, col.Items...)
	return true
}

// Replace updates the snapshot held for item.ID. If the item's state resolves
// to a different column than the one currently holding it, the item is moved
// there (prepended); otherwise it is replaced in place, preserving position.
// An unknown id behaves like Insert.
func (b *Board) Replace(item domain.Item) bool {
	target, ok := b.columnFor(item.State)
	if !ok {
		// No column can display the new state; drop the stale copy so the
		// partition invariant still holds.
		b.Remove(item.ID)
		return false
	}
	cur, idx, found := b.locateColumn(item.ID)
	if !found {
		target.Items = append([]domain.Item{item}, target.Items...)
		return true
	}
	if cur == target {
		cur.Items[idx] = item
		return true
	}
	cur.Items = append(cur.Items[:idx], cur.Items[idx+1:]...)
	target.Items = append([]domain.Item{item}, target.Items...)
	return true
}

// Remove deletes the id from whichever column holds it. No-op when absent.
func (b *Board) Remove(id string) bool {
	col, idx, ok := b.locateColumn(id)
	if !ok {
		return false
	}
	col.Items = append(col.Items[:idx], col.Items[idx+1:]...)
	return true
}

// Reorder moves the item to the given position within its current column.
// The position is clamped to the column bounds.
func (b *Board) Reorder(id string, position int) bool {
	col, idx, ok := b.locateColumn(id)
	if !ok {
		return false
	}
	item := col.Items[idx]
	col.Items = append(col.Items[:idx], col.Items[idx+1:]...)
	if position < 0 {
		position = 0
	}
	if position > len(col.Items) {
		position = len(col.Items)
	}
	col.Items = append(col.Items[:position], append([]domain.Item{item}, col.Items[position:]...)...)
	return true
}

// Locate returns the column state and position currently holding the id.
func (b *Board) Locate(id string) (domain.State, int, bool) {
	col, idx, ok := b.locateColumn(id)
	if !ok {
		return "", 0, false
	}
	return col.State, idx, true
}

// Get returns the snapshot held for the id.
func (b *Board) Get(id string) (domain.Item, bool) {
	col, idx, ok := b.locateColumn(id)
	if !ok {
		return domain.Item{}, false
	}
	return col.Items[idx], true
}

// restoreAt puts an item back into a specific column at a specific position.
// It is the undo half of an optimistic move and must reproduce the pre-move
// shape exactly.
func (b *Board) restoreAt(item domain.Item, columnState domain.State, position int) {
	b.Remove(item.ID)
	col, ok := b.index[columnState]
	if !ok {
		return
	}
	if position < 0 {
		position = 0
	}
	if position > len(col.Items) {
		position = len(col.Items)
	}
	col.Items = append(col.Items[:position], append([]domain.Item{item}, col.Items[position:]...)...)
}

// Snapshot returns a deep copy of every column for rendering or broadcast.
func (b *Board) Snapshot() []Column {
	out := make([]Column, 0, len(b.columns))
	for _, col := range b.columns {
		items := make([]domain.Item, len(col.Items))
		copy(items, col.Items)
		out = append(out, Column{State: col.State, Label: col.Label, Items: items})
	}
	return out
}

// Len reports the total number of items across all columns.
func (b *Board) Len() int {
	n := 0
	for _, col := range b.columns {
		n += len(col.Items)
	}
	return n
}

func (b *Board) locateColumn(id string) (*Column, int, bool) {
	for _, col := range b.columns {
		for i, it := range col.Items {
			if it.ID == id {
				return col, i, true
			}
		}
	}
	return nil, 0, false
}
