package player

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tausound/server/internal/dispatch"
	"github.com/tausound/server/internal/engine"
	"github.com/tausound/server/internal/engine/enginetest"
	apperrors "github.com/tausound/server/internal/errors"
	"github.com/tausound/server/internal/event"
	"github.com/tausound/server/internal/media"
	"github.com/tausound/server/internal/session"
	"github.com/tausound/server/internal/slot"
)

type captureSink struct {
	mu     sync.Mutex
	events []event.Event
}

func (c *captureSink) Deliver(ev event.Event) error {
	c.mu.Lock()
	c.events = append(c.events, ev)
	c.mu.Unlock()
	return nil
}

func (c *captureSink) find(method string) (event.Event, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, ev := range c.events {
		if ev.Method == method {
			return ev, true
		}
	}
	return event.Event{}, false
}

func (c *captureSink) methods() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.events))
	for i, ev := range c.events {
		out[i] = ev.Method
	}
	return out
}

type harness struct {
	t        *testing.T
	eng      *enginetest.Engine
	sink     *captureSink
	registry *slot.Registry[*Player]
	d        *dispatch.Dispatcher[*Player]
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	eng := enginetest.New()
	sink := &captureSink{}
	reg := slot.New[*Player]()
	deps := &Deps{
		Engine:   eng,
		Emitter:  event.NewEmitter(session.PlayerKind, sink, reg.StateOf, nil),
		Registry: reg,
		Media:    &media.Policy{Root: t.TempDir()},
		LogLevel: engine.LogInfo,
	}
	h := &harness{t: t, eng: eng, sink: sink, registry: reg}
	h.d = dispatch.New(Namespace(deps), reg, nil)
	t.Cleanup(func() { reg.ResetAll() })
	return h
}

func (h *harness) do(method string, slotNo int, args string) dispatch.Result {
	h.t.Helper()
	cmd := dispatch.Command{Method: method, Slot: &slotNo}
	if args != "" {
		cmd.Args = json.RawMessage(args)
	}
	return h.d.Handle(context.Background(), cmd)
}

func (h *harness) ok(method string, slotNo int, args string) any {
	h.t.Helper()
	res := h.do(method, slotNo, args)
	require.Equal(h.t, dispatch.StatusOK, res.Status, "%s: %v", method, res.Err)
	return res.Value
}

func (h *harness) state(slotNo int) session.State {
	h.t.Helper()
	p, err := h.registry.Resolve(slotNo)
	require.NoError(h.t, err)
	return p.State()
}

func TestOpenStartStopClose(t *testing.T) {
	h := newHarness(t)

	h.ok("openPlayer", 0, "")
	assert.Equal(t, session.Opened, h.state(0))

	dur := h.ok("startPlayer", 0, `{"fromURI":"song.wav","codec":"pcm16WAV"}`)
	assert.Equal(t, int64(3000), dur)
	assert.Equal(t, session.Active, h.state(0))

	h.ok("stopPlayer", 0, "")
	assert.Equal(t, session.Stopped, h.state(0))

	h.ok("closePlayer", 0, "")
	_, err := h.registry.Resolve(0)
	assert.ErrorIs(t, err, apperrors.ErrSessionNotFound)

	assert.Equal(t, []string{EventOpened, EventStarted, EventStopped, EventClosed}, h.sink.methods())
	closed, _ := h.sink.find(EventClosed)
	assert.Equal(t, session.Closed, closed.State)
	assert.True(t, h.eng.Player(0).Released())
}

func TestStartResolvesRelativePaths(t *testing.T) {
	h := newHarness(t)
	h.ok("openPlayer", 0, "")
	h.ok("startPlayer", 0, `{"fromURI":"a/b.mp3","codec":4}`)

	req := h.eng.Player(0).Request()
	assert.True(t, len(req.Path) > len("a/b.mp3"))
	assert.Equal(t, engine.MP3, req.Codec)
}

func TestEndToEndFinishedCallback(t *testing.T) {
	h := newHarness(t)
	h.ok("openPlayer", 0, "")
	h.ok("startPlayer", 0, `{"fromDataBuffer":"AAAA","codec":"pcm16"}`)

	h.eng.Player(0).Finish()

	require.Eventually(t, func() bool {
		_, ok := h.sink.find(EventFinished)
		return ok
	}, time.Second, 5*time.Millisecond)
	ev, _ := h.sink.find(EventFinished)
	assert.Equal(t, 0, ev.Slot)
	assert.Equal(t, session.Stopped, ev.State)
	assert.True(t, ev.Success)

	h.ok("closePlayer", 0, "")
	_, err := h.registry.Resolve(0)
	assert.ErrorIs(t, err, apperrors.ErrSessionNotFound)
}

func TestPauseResume(t *testing.T) {
	h := newHarness(t)
	h.ok("openPlayer", 0, "")

	res := h.do("pausePlayer", 0, "")
	assert.Equal(t, apperrors.CodeInvalidStateTransition, res.Code())

	h.ok("startPlayer", 0, `{}`)
	h.ok("pausePlayer", 0, "")
	assert.Equal(t, session.Paused, h.state(0))

	res = h.do("pausePlayer", 0, "")
	assert.Equal(t, apperrors.CodeInvalidStateTransition, res.Code())

	h.ok("resumePlayer", 0, "")
	assert.Equal(t, session.Active, h.state(0))

	res = h.do("startPlayer", 0, `{}`)
	assert.Equal(t, apperrors.CodeAlreadyActive, res.Code())
}

func TestEngineStartFailureLeavesState(t *testing.T) {
	h := newHarness(t)
	h.ok("openPlayer", 0, "")
	h.eng.Player(0).FailOn("start", nil)

	res := h.do("startPlayer", 0, `{}`)
	assert.Equal(t, apperrors.CodeEngine, res.Code())
	assert.Equal(t, session.Opened, h.state(0))
}

func TestEngineInitFailureFreesSlot(t *testing.T) {
	h := newHarness(t)
	h.eng.FailPlayers = fmt.Errorf("no output device")

	res := h.do("openPlayer", 0, "")
	assert.Equal(t, apperrors.CodeEngineInit, res.Code())
	_, err := h.registry.Resolve(0)
	assert.ErrorIs(t, err, apperrors.ErrSessionNotFound)

	h.eng.FailPlayers = nil
	h.ok("openPlayer", 0, "")
}

func TestCloseFromActiveStopsAndReleases(t *testing.T) {
	h := newHarness(t)
	h.ok("openPlayer", 0, "")
	h.ok("startPlayer", 0, `{}`)
	h.ok("pausePlayer", 0, "")

	h.ok("closePlayer", 0, "")

	assert.Equal(t, []string{"start", "pause", "stop", "release"}, h.eng.Player(0).Calls())
}

func TestCallbacksAfterCloseAreDiscarded(t *testing.T) {
	h := newHarness(t)
	h.ok("openPlayer", 0, "")
	h.ok("startPlayer", 0, `{}`)
	p := h.eng.Player(0)
	h.ok("closePlayer", 0, "")
	before := len(h.sink.methods())

	p.Finish()
	p.Tick(time.Second)
	p.Crash(fmt.Errorf("late"))

	time.Sleep(20 * time.Millisecond)
	assert.Len(t, h.sink.methods(), before)
}

func TestProgressAndUnderrunEvents(t *testing.T) {
	h := newHarness(t)
	h.ok("openPlayer", 0, "")
	h.ok("startPlayer", 0, `{"codec":"pcm16","sampleRate":16000,"numChannels":1}`)
	p := h.eng.Player(0)

	p.Tick(1500 * time.Millisecond)
	p.Underrun(4096)

	require.Eventually(t, func() bool {
		_, a := h.sink.find(EventProgress)
		_, b := h.sink.find(EventNeedData)
		return a && b
	}, time.Second, 5*time.Millisecond)
	ev, _ := h.sink.find(EventProgress)
	assert.Equal(t, Progress{Position: 1500, Duration: 3000}, ev.Arg)
	ev, _ = h.sink.find(EventNeedData)
	assert.Equal(t, 4096, ev.Arg)
}

func TestFeedRequiresActiveStream(t *testing.T) {
	h := newHarness(t)
	h.ok("openPlayer", 0, "")

	res := h.do("feed", 0, `{"data":"AQID"}`)
	assert.Equal(t, apperrors.CodeInvalidStateTransition, res.Code())

	h.ok("startPlayer", 0, `{}`)
	n := h.ok("feed", 0, `{"data":"AQID"}`)
	assert.Equal(t, 3, n)
	assert.Equal(t, []byte{1, 2, 3}, h.eng.Player(0).Fed())

	res = h.do("feed", 0, `{}`)
	assert.Equal(t, apperrors.CodeInvalidArgument, res.Code())
}

func TestAsyncFailureStopsSession(t *testing.T) {
	h := newHarness(t)
	h.ok("openPlayer", 0, "")
	h.ok("startPlayer", 0, `{}`)

	h.eng.Player(0).Crash(fmt.Errorf("decoder underflow"))

	require.Eventually(t, func() bool {
		_, ok := h.sink.find(EventError)
		return ok
	}, time.Second, 5*time.Millisecond)
	ev, _ := h.sink.find(EventError)
	assert.False(t, ev.Success)
	assert.Equal(t, "decoder underflow", ev.Arg)
	assert.Equal(t, session.Stopped, h.state(0))
}

func TestFatalFailureDestroysSession(t *testing.T) {
	h := newHarness(t)
	h.ok("openPlayer", 0, "")
	h.ok("startPlayer", 0, `{}`)
	p := h.eng.Player(0)

	p.Crash(fmt.Errorf("device lost: %w", engine.ErrFatal))

	require.Eventually(t, func() bool {
		_, err := h.registry.Resolve(0)
		return err != nil
	}, time.Second, 5*time.Millisecond)
	assert.True(t, p.Released())
	ev, ok := h.sink.find(EventError)
	require.True(t, ok)
	assert.Equal(t, session.Closed, ev.State)
}

func TestHungEngineCallBlocksOnlyItsSlot(t *testing.T) {
	h := newHarness(t)
	h.ok("openPlayer", 0, "")
	h.ok("openPlayer", 1, "")
	release := h.eng.Player(0).Hang("start")
	defer release()

	go h.do("startPlayer", 0, `{}`)

	done := make(chan struct{})
	go func() {
		defer close(done)
		h.ok("startPlayer", 1, `{}`)
		h.ok("stopPlayer", 1, "")
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("slot 1 blocked behind slot 0's hung engine call")
	}
}

func TestSettersValidate(t *testing.T) {
	h := newHarness(t)
	h.ok("openPlayer", 0, "")
	p := h.eng.Player(0)

	h.ok("setVolume", 0, `{"volume":0.5}`)
	assert.InDelta(t, 0.5, p.Volume(), 1e-9)
	assert.Equal(t, apperrors.CodeInvalidArgument, h.do("setVolume", 0, `{"volume":2}`).Code())

	h.ok("setSpeed", 0, `{"speed":1.5}`)
	assert.InDelta(t, 1.5, p.Speed(), 1e-9)
	assert.Equal(t, apperrors.CodeInvalidArgument, h.do("setSpeed", 0, `{"speed":0}`).Code())

	h.ok("setSubscriptionDuration", 0, `{"duration":250}`)
	assert.Equal(t, 250*time.Millisecond, p.Interval())

	h.ok("setAudioFocus", 0, `{"focus":"requestFocusAndDuckOthers"}`)
	assert.Equal(t, engine.RequestFocusAndDuckOthers, p.Focus())
	h.ok("setActive", 0, `{"enabled":false}`)
	assert.Equal(t, engine.AbandonFocus, p.Focus())

	assert.Equal(t, true, h.ok("isDecoderSupported", 0, `{"codec":"mp3"}`))
	assert.Equal(t, false, h.ok("isDecoderSupported", 0, `{"codec":"opusOGG"}`))
}

func TestSeekRequiresPlayback(t *testing.T) {
	h := newHarness(t)
	h.ok("openPlayer", 0, "")
	assert.Equal(t, apperrors.CodeInvalidStateTransition, h.do("seekToPlayer", 0, `{"duration":1000}`).Code())

	h.ok("startPlayer", 0, `{}`)
	h.ok("seekToPlayer", 0, `{"duration":1000}`)
	assert.Equal(t, Progress{Position: 1000, Duration: 3000}, h.ok("getProgress", 0, ""))
}

func TestLogLevelFiltersDiagnostics(t *testing.T) {
	h := newHarness(t)
	h.ok("openPlayer", 0, `{"logLevel":"warning"}`)
	p := h.eng.Player(0)

	p.Say(engine.LogDebug, "chatty")
	p.Say(engine.LogError, "codec %s failed", "mp3")

	require.Eventually(t, func() bool {
		_, ok := h.sink.find(event.MethodLog)
		return ok
	}, time.Second, 5*time.Millisecond)
	ev, _ := h.sink.find(event.MethodLog)
	assert.Equal(t, "codec mp3 failed", ev.Msg)
	require.NotNil(t, ev.Level)
	assert.Equal(t, engine.LogError, *ev.Level)
}

func TestUnregisteredUIMethods(t *testing.T) {
	h := newHarness(t)
	for _, m := range []string{"setUIProgressBar", "nowPlaying", "androidAudioFocusRequest"} {
		assert.Equal(t, dispatch.StatusNotImplemented, h.do(m, 0, "").Status, m)
	}
}

func TestResetPluginReleasesEveryHandle(t *testing.T) {
	h := newHarness(t)
	for i := 0; i < 3; i++ {
		h.ok("openPlayer", i, "")
	}
	h.ok("startPlayer", 1, `{}`)

	res := h.d.Handle(context.Background(), dispatch.Command{Method: dispatch.MethodResetPlugin})

	assert.Equal(t, dispatch.OK(0), res)
	assert.Equal(t, 0, h.registry.Len())
	for i := 0; i < 3; i++ {
		assert.True(t, h.eng.Player(i).Released(), "player %d", i)
	}
	assert.Contains(t, h.eng.Player(1).Calls(), "stop")
}
