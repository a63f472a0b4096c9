// Package slot holds the per-kind table of session slots. Indices are stable
// for the registry's lifetime: freed entries become empty, never removed, and
// the table only grows until ResetAll clears it.
package slot

import (
	"sync"

	apperrors "github.com/tausound/server/internal/errors"
	"github.com/tausound/server/internal/session"
)

// Entry is what a registry can hold.
type Entry interface {
	State() session.State
	// Reset tears the session down best-effort. It must not fail and must
	// not call back into the registry while holding its own locks.
	Reset()
}

// Registry is the ordered slot table for one session kind.
type Registry[S Entry] struct {
	mu      sync.RWMutex
	entries []*S
}

func New[S Entry]() *Registry[S] {
	return &Registry[S]{}
}

// Len returns the logical table length, including empty entries.
func (r *Registry[S]) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.entries)
}

// Next returns the slot the next append would occupy.
func (r *Registry[S]) Next() int {
	return r.Len()
}

// Resolve returns the live session at slot. A slot outside [0, Len] is
// InvalidSlot; the next index (Len) and freed entries are SessionNotFound.
func (r *Registry[S]) Resolve(slot int) (S, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var zero S
	if slot < 0 || slot > len(r.entries) {
		return zero, apperrors.InvalidSlot(slot, len(r.entries))
	}
	if slot == len(r.entries) || r.entries[slot] == nil {
		return zero, apperrors.SessionNotFound(slot)
	}
	return *r.entries[slot], nil
}

// Claim binds s to slot. The slot must be the next index or a freed entry.
func (r *Registry[S]) Claim(slot int, s S) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch {
	case slot < 0 || slot > len(r.entries):
		return apperrors.InvalidSlot(slot, len(r.entries))
	case slot == len(r.entries):
		r.entries = append(r.entries, &s)
	case r.entries[slot] != nil:
		return apperrors.SlotInUse(slot)
	default:
		r.entries[slot] = &s
	}
	return nil
}

// Free empties slot. Freeing an empty or unknown slot is a no-op.
func (r *Registry[S]) Free(slot int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if slot >= 0 && slot < len(r.entries) {
		r.entries[slot] = nil
	}
}

// Release empties slot only while it still holds s, so a session that was
// already replaced cannot free its successor.
func (r *Registry[S]) Release(slot int, s S) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if slot >= 0 && slot < len(r.entries) && r.entries[slot] != nil && any(*r.entries[slot]) == any(s) {
		r.entries[slot] = nil
	}
}

// ResetAll resets every live session and clears the table back to empty.
// Sessions are reset outside the lock since their teardown frees slots; a
// session claimed while a pass is running is picked up by the next pass, so
// the table is only cleared once every entry in it has been reset.
func (r *Registry[S]) ResetAll() {
	done := make(map[*S]bool)
	for {
		r.mu.Lock()
		var pending []*S
		for _, e := range r.entries {
			if e != nil && !done[e] {
				pending = append(pending, e)
			}
		}
		if len(pending) == 0 {
			r.entries = nil
			r.mu.Unlock()
			return
		}
		r.mu.Unlock()

		for _, e := range pending {
			done[e] = true
			(*e).Reset()
		}
	}
}

// StateOf reports the state of the session at slot, if any.
func (r *Registry[S]) StateOf(slot int) (session.State, bool) {
	s, err := r.Resolve(slot)
	if err != nil {
		return 0, false
	}
	return s.State(), true
}

// Info is a point-in-time view of one live slot.
type Info struct {
	Slot  int           `json:"slotNo"`
	State session.State `json:"state"`
}

// Live returns the occupied slots in index order.
func (r *Registry[S]) Live() []Info {
	r.mu.RLock()
	live := make([]S, 0, len(r.entries))
	slots := make([]int, 0, len(r.entries))
	for i, e := range r.entries {
		if e != nil {
			live = append(live, *e)
			slots = append(slots, i)
		}
	}
	r.mu.RUnlock()

	result := make([]Info, len(live))
	for i, s := range live {
		result[i] = Info{Slot: slots[i], State: s.State()}
	}
	return result
}

// ActiveCount returns the number of live sessions that are not terminal.
func (r *Registry[S]) ActiveCount() int {
	count := 0
	for _, info := range r.Live() {
		if !info.State.IsTerminal() {
			count++
		}
	}
	return count
}
