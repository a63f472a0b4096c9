package ws

import (
	"context"
	"sync"
)

// slotlessLane carries commands without a slot number.
const slotlessLane = -1

// lanes runs one connection's commands in per-slot order while letting
// different slots proceed independently, so a hung slot stalls only its own
// lane. A lane exists only while it has queued or running work.
type lanes struct {
	run func(Request)

	mu     sync.Mutex
	queues map[int]*lane
	closed bool
	wg     sync.WaitGroup
}

type lane struct {
	ch      chan Request
	pending int // queued plus running, guarded by lanes.mu
}

func newLanes(run func(Request)) *lanes {
	return &lanes{run: run, queues: make(map[int]*lane)}
}

func laneOf(req Request) int {
	if req.Slot == nil {
		return slotlessLane
	}
	return *req.Slot
}

// submit queues req on its lane, blocking while the lane is full.
func (l *lanes) submit(ctx context.Context, req Request) bool {
	key := laneOf(req)
	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return false
	}
	ln, ok := l.queues[key]
	if !ok {
		ln = &lane{ch: make(chan Request, sendBuffer)}
		l.queues[key] = ln
		l.wg.Add(1)
		go l.drain(key, ln)
	}
	ln.pending++
	l.mu.Unlock()

	select {
	case ln.ch <- req:
		return true
	case <-ctx.Done():
		l.mu.Lock()
		ln.pending--
		if ln.pending == 0 && !l.closed && l.queues[key] == ln {
			delete(l.queues, key)
			close(ln.ch)
		}
		l.mu.Unlock()
		return false
	}
}

// drain runs ln's commands and retires the lane once it has nothing left.
func (l *lanes) drain(key int, ln *lane) {
	defer l.wg.Done()
	for req := range ln.ch {
		l.run(req)

		l.mu.Lock()
		ln.pending--
		if ln.pending == 0 && !l.closed {
			delete(l.queues, key)
			l.mu.Unlock()
			return
		}
		l.mu.Unlock()
	}
}

func (l *lanes) count() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.queues)
}

// close stops accepting work and waits for queued commands to finish.
// Callers must not submit concurrently with close.
func (l *lanes) close() {
	l.mu.Lock()
	l.closed = true
	for _, ln := range l.queues {
		close(ln.ch)
	}
	l.mu.Unlock()
	l.wg.Wait()
}
