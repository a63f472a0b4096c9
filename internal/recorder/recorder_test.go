package recorder

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
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

func (c *captureSink) byMethod(method string) []event.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []event.Event
	for _, ev := range c.events {
		if ev.Method == method {
			out = append(out, ev)
		}
	}
	return out
}

type harness struct {
	t        *testing.T
	dir      string
	eng      *enginetest.Engine
	sink     *captureSink
	registry *slot.Registry[*Recorder]
	d        *dispatch.Dispatcher[*Recorder]
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	dir := t.TempDir()
	eng := enginetest.New()
	sink := &captureSink{}
	reg := slot.New[*Recorder]()
	deps := &Deps{
		Engine:   eng,
		Emitter:  event.NewEmitter(session.RecorderKind, sink, reg.StateOf, nil),
		Registry: reg,
		Media:    &media.Policy{Root: dir, AllowedPaths: []string{dir}},
	}
	t.Cleanup(func() { reg.ResetAll() })
	return &harness{t: t, dir: dir, eng: eng, sink: sink, registry: reg, d: dispatch.New(Namespace(deps), reg, nil)}
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

func TestRecordLifecycle(t *testing.T) {
	h := newHarness(t)
	h.ok("openRecorder", 0, "")

	path := h.ok("startRecorder", 0, `{"path":"take.wav","codec":"pcm16WAV","sampleRate":16000,"numChannels":1}`)
	assert.Equal(t, filepath.Join(h.dir, "take.wav"), path)
	req := h.eng.Recorder(0).Request()
	assert.Equal(t, engine.PCM16WAV, req.Codec)
	assert.Equal(t, 16000, req.SampleRate)

	h.ok("pauseRecorder", 0, "")
	h.ok("resumeRecorder", 0, "")
	stopped := h.ok("stopRecorder", 0, "")
	assert.Equal(t, path, stopped)

	evs := h.sink.byMethod(EventStopped)
	require.Len(t, evs, 1)
	assert.Equal(t, path, evs[0].Arg)
	assert.Equal(t, session.Stopped, evs[0].State)

	h.ok("closeRecorder", 0, "")
	closed := h.sink.byMethod(EventClosed)
	require.Len(t, closed, 1)
	assert.Equal(t, session.Closed, closed[0].State)
	assert.True(t, h.eng.Recorder(0).Released())
}

func TestStartWithoutPathPicksFreshFile(t *testing.T) {
	h := newHarness(t)
	h.ok("openRecorder", 0, "")

	path := h.ok("startRecorder", 0, `{"codec":"pcm16"}`).(string)
	assert.Equal(t, h.dir, filepath.Dir(path))
	assert.True(t, strings.HasSuffix(path, ".pcm"))
}

func TestStartRejectsUnsupportedCodecAndForbiddenPath(t *testing.T) {
	h := newHarness(t)
	h.ok("openRecorder", 0, "")

	assert.Equal(t, apperrors.CodeInvalidArgument, h.do("startRecorder", 0, `{"codec":"aacADTS"}`).Code())
	assert.Equal(t, apperrors.CodeInvalidArgument, h.do("startRecorder", 0, `{"path":"/etc/x.wav"}`).Code())
	assert.Equal(t, apperrors.CodeInvalidArgument, h.do("startRecorder", 0, `{"numChannels":7}`).Code())
}

func TestStopWhenIdleIsNoop(t *testing.T) {
	h := newHarness(t)
	h.ok("openRecorder", 0, "")
	assert.Equal(t, "", h.ok("stopRecorder", 0, ""))
	assert.Empty(t, h.sink.byMethod(EventStopped))
	assert.NotContains(t, h.eng.Recorder(0).Calls(), "stop")
}

func TestProgressAndDataEvents(t *testing.T) {
	h := newHarness(t)
	h.ok("openRecorder", 0, "")
	h.ok("startRecorder", 0, `{"toStream":true,"codec":"pcm16"}`)
	rec := h.eng.Recorder(0)

	rec.Tick(2*time.Second, -12.5)
	rec.Chunk([]byte{1, 2})

	require.Eventually(t, func() bool {
		return len(h.sink.byMethod(EventProgress)) == 1 && len(h.sink.byMethod(EventData)) == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, Progress{Duration: 2000, DBPeakLevel: -12.5}, h.sink.byMethod(EventProgress)[0].Arg)
	assert.Equal(t, []byte{1, 2}, h.sink.byMethod(EventData)[0].Arg)
}

func TestDeleteRecord(t *testing.T) {
	h := newHarness(t)
	h.ok("openRecorder", 0, "")
	path := filepath.Join(h.dir, "old.wav")
	require.NoError(t, os.WriteFile(path, []byte("RIFF"), 0o600))

	assert.Equal(t, true, h.ok("deleteRecord", 0, `{"path":"old.wav"}`))
	assert.Equal(t, false, h.ok("deleteRecord", 0, `{"path":"old.wav"}`))
	assert.Equal(t, apperrors.CodeInvalidArgument, h.do("deleteRecord", 0, `{}`).Code())

	h.ok("startRecorder", 0, `{"path":"live.wav"}`)
	assert.Equal(t, apperrors.CodeInvalidStateTransition, h.do("deleteRecord", 0, `{"path":"live.wav"}`).Code())
}

func TestGetRecordURL(t *testing.T) {
	h := newHarness(t)
	h.ok("openRecorder", 0, "")
	assert.Equal(t, filepath.Join(h.dir, "x.wav"), h.ok("getRecordURL", 0, `{"path":"x.wav"}`))
}

func TestFatalFailureDestroysRecorder(t *testing.T) {
	h := newHarness(t)
	h.ok("openRecorder", 0, "")
	h.ok("startRecorder", 0, `{}`)
	rec := h.eng.Recorder(0)
	rec.FailOn("pause", fmt.Errorf("mic gone: %w", engine.ErrFatal))

	res := h.do("pauseRecorder", 0, "")
	assert.Equal(t, apperrors.CodeEngine, res.Code())

	_, err := h.registry.Resolve(0)
	assert.ErrorIs(t, err, apperrors.ErrSessionNotFound)
	assert.True(t, rec.Released())
	assert.Len(t, h.sink.byMethod(EventError), 1)

	assert.Equal(t, apperrors.CodeSessionNotFound, h.do("resumeRecorder", 0, "").Code())
}

func TestEncoderSupport(t *testing.T) {
	h := newHarness(t)
	h.ok("openRecorder", 0, "")
	assert.Equal(t, true, h.ok("isEncoderSupported", 0, `{"codec":"pcm16WAV"}`))
	assert.Equal(t, false, h.ok("isEncoderSupported", 0, `{"codec":"mp3"}`))
	assert.Equal(t, apperrors.CodeInvalidArgument, h.do("isEncoderSupported", 0, `{}`).Code())
}

func TestRecorderResetPlugin(t *testing.T) {
	h := newHarness(t)
	h.ok("openRecorder", 0, "")
	h.ok("openRecorder", 1, "")
	h.ok("startRecorder", 1, `{}`)

	res := h.d.Handle(context.Background(), dispatch.Command{Method: "resetPlugin"})
	assert.Equal(t, dispatch.OK(0), res)
	assert.Equal(t, 0, h.registry.Len())
	assert.Equal(t, []string{"start", "stop", "release"}, h.eng.Recorder(1).Calls())
}
