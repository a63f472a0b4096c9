package session

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReleaseWinsOverLateTransition(t *testing.T) {
	freed := make(chan int, 1)
	b := NewBase(Options{Kind: PlayerKind, Slot: 2, Release: func(slot int) { freed <- slot }})

	_, err := b.Run(context.Background(), func() (any, error) {
		return nil, b.Transition(OpOpen, nil)
	})
	require.NoError(t, err)

	started := make(chan struct{})
	unblock := make(chan struct{})
	b.Post(func() {
		_ = b.Transition(OpStart, func() error {
			close(started)
			<-unblock
			return nil
		})
	})
	<-started

	b.Release()
	assert.Equal(t, 2, <-freed)
	close(unblock)

	select {
	case <-b.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("executor did not exit")
	}
	assert.Equal(t, Closed, b.State())
}

func TestMachineClosedIsTerminal(t *testing.T) {
	m := machineIn(Closed)
	for _, s := range []State{Created, Opened, Active, Paused, Stopped} {
		m.Set(s)
		assert.Equal(t, Closed, m.State(), "set %s", s)
	}
}
