// Package enginetest provides a scripted engine for session tests. Handles
// record the calls made on them, fail on demand, and raise listener
// callbacks from goroutines the session does not own.
package enginetest

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/tausound/server/internal/engine"
)

// ErrInjected is the default failure returned by FailOn.
var ErrInjected = errors.New("injected engine failure")

// Engine hands out scripted players and recorders.
type Engine struct {
	mu sync.Mutex

	// FailPlayers and FailRecorders make allocation fail.
	FailPlayers   error
	FailRecorders error
	// Duration is what new players report from Start.
	Duration time.Duration

	decoders  map[engine.Codec]bool
	encoders  map[engine.Codec]bool
	players   []*Player
	recorders []*Recorder
}

// New returns an engine supporting pcm16 and pcm16WAV in both directions.
func New() *Engine {
	return &Engine{
		Duration: 3 * time.Second,
		decoders: map[engine.Codec]bool{engine.PCM16: true, engine.PCM16WAV: true, engine.MP3: true},
		encoders: map[engine.Codec]bool{engine.PCM16: true, engine.PCM16WAV: true},
	}
}

func (e *Engine) NewPlayer(l engine.PlayerListener) (engine.Player, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.FailPlayers != nil {
		return nil, e.FailPlayers
	}
	p := &Player{listener: l, duration: e.Duration, volume: 1, speed: 1}
	e.players = append(e.players, p)
	return p, nil
}

func (e *Engine) NewRecorder(l engine.RecorderListener) (engine.Recorder, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.FailRecorders != nil {
		return nil, e.FailRecorders
	}
	r := &Recorder{listener: l}
	e.recorders = append(e.recorders, r)
	return r, nil
}

func (e *Engine) DecoderSupported(c engine.Codec) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.decoders[c]
}

func (e *Engine) EncoderSupported(c engine.Codec) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.encoders[c]
}

// Player returns the i-th player allocated.
func (e *Engine) Player(i int) *Player {
	e.mu.Lock()
	defer e.mu.Unlock()
	if i < 0 || i >= len(e.players) {
		return nil
	}
	return e.players[i]
}

// Recorder returns the i-th recorder allocated.
func (e *Engine) Recorder(i int) *Recorder {
	e.mu.Lock()
	defer e.mu.Unlock()
	if i < 0 || i >= len(e.recorders) {
		return nil
	}
	return e.recorders[i]
}

// handle is the call log and failure script shared by both instance kinds.
type handle struct {
	mu       sync.Mutex
	calls    []string
	fail     map[string]error
	hang     map[string]chan struct{}
	released bool
	focus    engine.Focus
	interval time.Duration
}

// Heal clears a failure scripted with FailOn.
func (h *handle) Heal(op string) {
	h.mu.Lock()
	delete(h.fail, op)
	h.mu.Unlock()
}

// FailOn makes the next calls of op return err, or ErrInjected when err is nil.
func (h *handle) FailOn(op string, err error) {
	if err == nil {
		err = ErrInjected
	}
	h.mu.Lock()
	if h.fail == nil {
		h.fail = make(map[string]error)
	}
	h.fail[op] = err
	h.mu.Unlock()
}

// Hang makes calls of op block until the returned function is called.
func (h *handle) Hang(op string) (release func()) {
	ch := make(chan struct{})
	h.mu.Lock()
	if h.hang == nil {
		h.hang = make(map[string]chan struct{})
	}
	h.hang[op] = ch
	h.mu.Unlock()
	var once sync.Once
	return func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.hang, op)
			h.mu.Unlock()
			close(ch)
		})
	}
}

// Calls returns the ops invoked so far, in order.
func (h *handle) Calls() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]string(nil), h.calls...)
}

// Released reports whether Release was called.
func (h *handle) Released() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.released
}

// Focus returns the last focus mode set.
func (h *handle) Focus() engine.Focus {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.focus
}

// Interval returns the last subscription interval set.
func (h *handle) Interval() time.Duration {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.interval
}

func (h *handle) call(op string) error {
	h.mu.Lock()
	h.calls = append(h.calls, op)
	err := h.fail[op]
	wait := h.hang[op]
	h.mu.Unlock()
	if wait != nil {
		<-wait
	}
	return err
}

// raise runs fn on a fresh goroutine and waits for it to return, the way a
// native engine thread delivers a callback.
func raise(fn func()) {
	done := make(chan struct{})
	go func() {
		defer close(done)
		fn()
	}()
	<-done
}

// Player is a scripted playback instance.
type Player struct {
	handle
	listener engine.PlayerListener

	duration time.Duration
	position time.Duration
	volume   float64
	speed    float64
	request  engine.PlayRequest
	fed      []byte
}

var _ engine.Player = (*Player)(nil)

func (p *Player) Start(req engine.PlayRequest) (time.Duration, error) {
	if err := p.call("start"); err != nil {
		return 0, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.request = req
	p.position = 0
	if req.Streaming() {
		return 0, nil
	}
	return p.duration, nil
}

func (p *Player) StartFromMic(engine.MicRequest) error { return p.call("startFromMic") }
func (p *Player) Stop() error                          { return p.call("stop") }
func (p *Player) Pause() error                         { return p.call("pause") }
func (p *Player) Resume() error                        { return p.call("resume") }

func (p *Player) Seek(pos time.Duration) error {
	if err := p.call("seek"); err != nil {
		return err
	}
	p.mu.Lock()
	p.position = pos
	p.mu.Unlock()
	return nil
}

func (p *Player) SetVolume(v float64) error {
	if err := p.call("setVolume"); err != nil {
		return err
	}
	p.mu.Lock()
	p.volume = v
	p.mu.Unlock()
	return nil
}

func (p *Player) SetSpeed(s float64) error {
	if err := p.call("setSpeed"); err != nil {
		return err
	}
	p.mu.Lock()
	p.speed = s
	p.mu.Unlock()
	return nil
}

func (p *Player) Progress() (time.Duration, time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.position, p.duration
}

func (p *Player) Feed(data []byte) (int, error) {
	if err := p.call("feed"); err != nil {
		return 0, err
	}
	p.mu.Lock()
	p.fed = append(p.fed, data...)
	p.mu.Unlock()
	return len(data), nil
}

func (p *Player) SetSubscriptionInterval(d time.Duration) {
	p.mu.Lock()
	p.interval = d
	p.mu.Unlock()
}

func (p *Player) SetFocus(f engine.Focus) error {
	if err := p.call("setFocus"); err != nil {
		return err
	}
	p.mu.Lock()
	p.focus = f
	p.mu.Unlock()
	return nil
}

func (p *Player) Release() error {
	err := p.call("release")
	p.mu.Lock()
	p.released = true
	p.mu.Unlock()
	return err
}

// Volume returns the last volume set.
func (p *Player) Volume() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.volume
}

// Speed returns the last speed set.
func (p *Player) Speed() float64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.speed
}

// Request returns the last PlayRequest passed to Start.
func (p *Player) Request() engine.PlayRequest {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.request
}

// Fed returns every byte fed so far.
func (p *Player) Fed() []byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]byte(nil), p.fed...)
}

// Finish reports end of media.
func (p *Player) Finish() {
	p.mu.Lock()
	p.position = p.duration
	p.mu.Unlock()
	raise(p.listener.Finished)
}

// Tick reports playback progress.
func (p *Player) Tick(pos time.Duration) {
	p.mu.Lock()
	p.position = pos
	dur := p.duration
	p.mu.Unlock()
	raise(func() { p.listener.Progress(pos, dur) })
}

// Underrun asks for n more bytes of fed audio.
func (p *Player) Underrun(n int) {
	raise(func() { p.listener.NeedsData(n) })
}

// Crash reports an asynchronous failure. Wrap engine.ErrFatal to make it
// unrecoverable.
func (p *Player) Crash(err error) {
	raise(func() { p.listener.Failed(err) })
}

// Say emits an engine diagnostic.
func (p *Player) Say(level engine.LogLevel, format string, args ...any) {
	raise(func() { p.listener.Log(level, fmt.Sprintf(format, args...)) })
}

// Recorder is a scripted capture instance.
type Recorder struct {
	handle
	listener engine.RecorderListener
	request  engine.RecordRequest
}

var _ engine.Recorder = (*Recorder)(nil)

func (r *Recorder) Start(req engine.RecordRequest) error {
	if err := r.call("start"); err != nil {
		return err
	}
	r.mu.Lock()
	r.request = req
	r.mu.Unlock()
	return nil
}

func (r *Recorder) Stop() (string, error) {
	if err := r.call("stop"); err != nil {
		return "", err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.request.Path, nil
}

func (r *Recorder) Pause() error  { return r.call("pause") }
func (r *Recorder) Resume() error { return r.call("resume") }

func (r *Recorder) SetSubscriptionInterval(d time.Duration) {
	r.mu.Lock()
	r.interval = d
	r.mu.Unlock()
}

func (r *Recorder) SetFocus(f engine.Focus) error {
	if err := r.call("setFocus"); err != nil {
		return err
	}
	r.mu.Lock()
	r.focus = f
	r.mu.Unlock()
	return nil
}

func (r *Recorder) Release() error {
	err := r.call("release")
	r.mu.Lock()
	r.released = true
	r.mu.Unlock()
	return err
}

// Request returns the last RecordRequest passed to Start.
func (r *Recorder) Request() engine.RecordRequest {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.request
}

// Tick reports recording progress.
func (r *Recorder) Tick(d time.Duration, dbPeak float64) {
	raise(func() { r.listener.Progress(d, dbPeak) })
}

// Chunk delivers captured audio.
func (r *Recorder) Chunk(data []byte) {
	raise(func() { r.listener.Data(data) })
}

// Crash reports an asynchronous failure.
func (r *Recorder) Crash(err error) {
	raise(func() { r.listener.Failed(err) })
}

// Say emits an engine diagnostic.
func (r *Recorder) Say(level engine.LogLevel, format string, args ...any) {
	raise(func() { r.listener.Log(level, fmt.Sprintf(format, args...)) })
}
