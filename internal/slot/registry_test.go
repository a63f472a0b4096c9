package slot

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	apperrors "github.com/tausound/server/internal/errors"
	"github.com/tausound/server/internal/session"
)

type fakeSession struct {
	mu      sync.Mutex
	state   session.State
	resets  int
	onReset func()
}

func (f *fakeSession) State() session.State {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.state
}

func (f *fakeSession) Reset() {
	f.mu.Lock()
	f.resets++
	f.state = session.Closed
	hook := f.onReset
	f.mu.Unlock()
	if hook != nil {
		hook()
	}
}

func newFake() *fakeSession { return &fakeSession{state: session.Opened} }

func TestNewRegistry(t *testing.T) {
	r := New[*fakeSession]()
	if r == nil {
		t.Fatal("New() returned nil")
	}
	if got := r.Len(); got != 0 {
		t.Errorf("new registry Len() = %d, want 0", got)
	}
	if got := len(r.Live()); got != 0 {
		t.Errorf("new registry has %d live slots, want 0", got)
	}
}

func TestSlotMonotonicity(t *testing.T) {
	r := New[*fakeSession]()
	for want := 0; want < 5; want++ {
		slot := r.Next()
		if slot != want {
			t.Fatalf("Next() = %d, want %d", slot, want)
		}
		if err := r.Claim(slot, newFake()); err != nil {
			t.Fatalf("Claim(%d): %v", slot, err)
		}
	}
	if got := r.Len(); got != 5 {
		t.Errorf("Len() = %d, want 5", got)
	}
}

func TestResolveBounds(t *testing.T) {
	r := New[*fakeSession]()
	for i := 0; i < 3; i++ {
		if err := r.Claim(i, newFake()); err != nil {
			t.Fatalf("Claim(%d): %v", i, err)
		}
	}

	tests := []struct {
		slot int
		want error
	}{
		{-1, apperrors.ErrInvalidSlot},
		{4, apperrors.ErrInvalidSlot},
		{3, apperrors.ErrSessionNotFound},
		{0, nil},
		{2, nil},
	}
	for _, tt := range tests {
		t.Run(fmt.Sprint(tt.slot), func(t *testing.T) {
			_, err := r.Resolve(tt.slot)
			if tt.want == nil {
				if err != nil {
					t.Fatalf("Resolve(%d) unexpected error: %v", tt.slot, err)
				}
				return
			}
			if !errors.Is(err, tt.want) {
				t.Errorf("Resolve(%d) = %v, want %v", tt.slot, err, tt.want)
			}
		})
	}
}

func TestClaimRejectsGapsAndOccupiedSlots(t *testing.T) {
	r := New[*fakeSession]()
	if err := r.Claim(1, newFake()); !errors.Is(err, apperrors.ErrInvalidSlot) {
		t.Errorf("Claim past the end = %v, want InvalidSlot", err)
	}
	if err := r.Claim(0, newFake()); err != nil {
		t.Fatalf("Claim(0): %v", err)
	}
	if err := r.Claim(0, newFake()); !errors.Is(err, apperrors.ErrInvalidSlot) {
		t.Errorf("Claim on occupied slot = %v, want InvalidSlot", err)
	}
}

func TestFreeIdempotent(t *testing.T) {
	r := New[*fakeSession]()
	_ = r.Claim(0, newFake())
	_ = r.Claim(1, newFake())

	r.Free(0)
	r.Free(0)
	r.Free(17)
	r.Free(-3)

	if got := r.Len(); got != 2 {
		t.Errorf("Len() after free = %d, want 2 (table never shrinks)", got)
	}
	if _, err := r.Resolve(0); !errors.Is(err, apperrors.ErrSessionNotFound) {
		t.Errorf("Resolve(freed) = %v, want SessionNotFound", err)
	}
	if _, err := r.Resolve(1); err != nil {
		t.Errorf("Resolve(1) after freeing 0: %v", err)
	}
}

func TestFreedSlotIsReused(t *testing.T) {
	r := New[*fakeSession]()
	_ = r.Claim(0, newFake())
	_ = r.Claim(1, newFake())
	r.Free(0)

	replacement := newFake()
	if err := r.Claim(0, replacement); err != nil {
		t.Fatalf("Claim(freed 0): %v", err)
	}
	got, err := r.Resolve(0)
	if err != nil || got != replacement {
		t.Errorf("Resolve(0) = %p, %v; want replacement", got, err)
	}
	if r.Next() != 2 {
		t.Errorf("Next() = %d, want 2", r.Next())
	}
}

func TestResetAll(t *testing.T) {
	r := New[*fakeSession]()
	sessions := []*fakeSession{newFake(), newFake(), newFake()}
	for i, s := range sessions {
		slot := i
		s.onReset = func() { r.Free(slot) }
		_ = r.Claim(i, s)
	}
	r.Free(1)

	r.ResetAll()

	if got := r.Len(); got != 0 {
		t.Errorf("Len() after ResetAll = %d, want 0", got)
	}
	if sessions[0].resets != 1 || sessions[2].resets != 1 {
		t.Errorf("live sessions reset %d/%d times, want 1/1", sessions[0].resets, sessions[2].resets)
	}
	if sessions[1].resets != 0 {
		t.Errorf("freed session reset %d times, want 0", sessions[1].resets)
	}
	if r.Next() != 0 {
		t.Errorf("Next() after ResetAll = %d, want 0", r.Next())
	}
}

func TestResetAllResetsSessionsClaimedDuringReset(t *testing.T) {
	r := New[*fakeSession]()
	first, late := newFake(), newFake()
	first.onReset = func() {
		if err := r.Claim(1, late); err != nil {
			t.Errorf("Claim during reset: %v", err)
		}
		r.Free(0)
	}
	_ = r.Claim(0, first)

	r.ResetAll()

	if got := r.Len(); got != 0 {
		t.Errorf("Len() after ResetAll = %d, want 0", got)
	}
	if late.resets != 1 {
		t.Errorf("session claimed during reset was reset %d times, want 1", late.resets)
	}
	if first.resets != 1 {
		t.Errorf("first session reset %d times, want 1", first.resets)
	}
}

func TestResetAllDoesNotRepeatStuckEntries(t *testing.T) {
	r := New[*fakeSession]()
	stuck := newFake() // Reset never frees its slot
	_ = r.Claim(0, stuck)

	r.ResetAll()

	if stuck.resets != 1 {
		t.Errorf("stuck session reset %d times, want 1", stuck.resets)
	}
	if got := r.Len(); got != 0 {
		t.Errorf("Len() after ResetAll = %d, want 0", got)
	}
}

func TestLiveAndActiveCount(t *testing.T) {
	r := New[*fakeSession]()
	a, b, c := newFake(), newFake(), newFake()
	b.state = session.Active
	c.state = session.Closed
	_ = r.Claim(0, a)
	_ = r.Claim(1, b)
	_ = r.Claim(2, c)
	_ = r.Claim(3, newFake())
	r.Free(3)

	live := r.Live()
	if len(live) != 3 {
		t.Fatalf("Live() returned %d entries, want 3", len(live))
	}
	for i, info := range live {
		if info.Slot != i {
			t.Errorf("Live()[%d].Slot = %d, want %d", i, info.Slot, i)
		}
	}
	if live[1].State != session.Active {
		t.Errorf("Live()[1].State = %v, want active", live[1].State)
	}
	if got := r.ActiveCount(); got != 2 {
		t.Errorf("ActiveCount() = %d, want 2", got)
	}

	if st, ok := r.StateOf(1); !ok || st != session.Active {
		t.Errorf("StateOf(1) = %v, %v", st, ok)
	}
	if _, ok := r.StateOf(3); ok {
		t.Error("StateOf(freed) reported a state")
	}
}

func TestConcurrentAccess(t *testing.T) {
	r := New[*fakeSession]()
	for i := 0; i < 10; i++ {
		_ = r.Claim(i, newFake())
	}

	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(3)
		slot := i
		go func() {
			defer wg.Done()
			_, _ = r.Resolve(slot)
		}()
		go func() {
			defer wg.Done()
			r.Free(slot)
		}()
		go func() {
			defer wg.Done()
			_ = r.Live()
		}()
	}
	wg.Wait()

	if got := len(r.Live()); got != 0 {
		t.Errorf("Live() after freeing all = %d, want 0", got)
	}
}

func TestReleaseOnlyFreesOwner(t *testing.T) {
	r := New[*fakeSession]()
	owner := newFake()
	_ = r.Claim(0, owner)

	r.Release(0, newFake())
	if _, err := r.Resolve(0); err != nil {
		t.Fatalf("Release by a stranger freed the slot: %v", err)
	}

	r.Release(0, owner)
	if _, err := r.Resolve(0); !errors.Is(err, apperrors.ErrSessionNotFound) {
		t.Errorf("Resolve after owner release = %v, want SessionNotFound", err)
	}
}
