package software

import (
	"errors"
	"fmt"
	"io"
	"math"
	"sync"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/effects"

	"github.com/tausound/server/internal/engine"
)

var (
	errNotPlaying  = errors.New("nothing is playing")
	errNotSeekable = errors.New("source is not seekable")
	errNotFed      = errors.New("player was not started for fed audio")
)

// Player renders one source through resample, volume and pause stages.
type Player struct {
	eng *Engine
	l   engine.PlayerListener

	mu        sync.Mutex
	ctrl      *beep.Ctrl
	vol       *effects.Volume
	resampler *beep.Resampler
	seeker    beep.StreamSeeker
	closer    io.Closer
	feed      *feedStreamer
	format    beep.Format
	baseRatio float64
	volume    float64
	speed     float64
	interval  time.Duration
	focus     engine.Focus
	rendered  int
	duration  time.Duration

	stop chan struct{}
	done chan struct{}
}

var _ engine.Player = (*Player)(nil)

func (p *Player) Start(req engine.PlayRequest) (time.Duration, error) {
	p.halt()

	var (
		src    beep.Streamer
		format beep.Format
		dur    time.Duration
	)
	if req.Streaming() {
		format = pcmFormat(req.SampleRate, req.NumChannels)
		feed := newFeedStreamer(format.NumChannels, func() {
			p.l.NeedsData(p.eng.opts.FeedLowWater)
		})
		p.mu.Lock()
		p.feed = feed
		p.seeker, p.closer = nil, nil
		p.mu.Unlock()
		src = feed
	} else {
		s, f, err := decode(req)
		if err != nil {
			return 0, err
		}
		format = f
		dur = format.SampleRate.D(s.Len())
		p.mu.Lock()
		p.feed = nil
		p.seeker, p.closer = s, s
		p.mu.Unlock()
		src = s
	}

	p.begin(src, format, dur)
	p.l.Log(engine.LogDebug, fmt.Sprintf("playing %s at %d Hz", codecFor(req), format.SampleRate))
	return dur, nil
}

func (p *Player) StartFromMic(req engine.MicRequest) error {
	p.halt()
	format := pcmFormat(req.SampleRate, req.NumChannels)
	p.mu.Lock()
	p.feed, p.seeker, p.closer = nil, nil, nil
	p.mu.Unlock()
	p.begin(p.eng.opts.Mic(format), format, 0)
	return nil
}

// begin builds the render chain over src and starts the pump.
func (p *Player) begin(src beep.Streamer, format beep.Format, dur time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.format = format
	p.duration = dur
	p.rendered = 0
	p.baseRatio = float64(format.SampleRate) / float64(p.eng.rate)
	p.resampler = beep.ResampleRatio(resampleQuality, p.baseRatio*p.speed, src)
	p.vol = &effects.Volume{Streamer: p.resampler, Base: 2}
	p.applyVolumeLocked()
	p.ctrl = &beep.Ctrl{Streamer: p.vol}

	p.stop = make(chan struct{})
	p.done = make(chan struct{})
	go p.pump(p.stop, p.done)
}

func (p *Player) pump(stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	tick := p.eng.opts.Tick
	ticker := time.NewTicker(tick)
	defer ticker.Stop()

	buf := make([][2]float64, p.eng.rate.N(tick))
	var sinceProgress time.Duration
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}

		p.mu.Lock()
		n, ok := p.ctrl.Stream(buf)
		paused := p.ctrl.Paused
		if !paused {
			p.rendered += n
		}
		interval := p.interval
		pos, dur := p.progressLocked()
		p.mu.Unlock()

		if n > 0 && p.eng.opts.Sink != nil {
			p.eng.opts.Sink(buf[:n])
		}
		if !ok || n < len(buf) {
			p.l.Finished()
			return
		}
		if paused {
			continue
		}
		sinceProgress += tick
		if interval > 0 && sinceProgress >= interval {
			sinceProgress = 0
			p.l.Progress(pos, dur)
		}
	}
}

// halt stops the pump and closes the source. Safe to call when idle.
func (p *Player) halt() {
	p.mu.Lock()
	stop, done, closer := p.stop, p.done, p.closer
	p.stop, p.done, p.closer = nil, nil, nil
	p.ctrl = nil
	p.mu.Unlock()

	if stop != nil {
		close(stop)
		<-done
	}
	if closer != nil {
		_ = closer.Close()
	}
}

func (p *Player) Stop() error {
	p.halt()
	return nil
}

func (p *Player) Pause() error  { return p.setPaused(true) }
func (p *Player) Resume() error { return p.setPaused(false) }

func (p *Player) setPaused(paused bool) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ctrl == nil {
		return errNotPlaying
	}
	p.ctrl.Paused = paused
	return nil
}

func (p *Player) Seek(pos time.Duration) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.ctrl == nil {
		return errNotPlaying
	}
	if p.seeker == nil {
		return errNotSeekable
	}
	n := p.format.SampleRate.N(pos)
	if n > p.seeker.Len() {
		n = p.seeker.Len()
	}
	return p.seeker.Seek(n)
}

func (p *Player) SetVolume(v float64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.volume = v
	p.applyVolumeLocked()
	return nil
}

// applyVolumeLocked maps a linear gain onto the base-2 volume effect.
func (p *Player) applyVolumeLocked() {
	if p.vol == nil {
		return
	}
	p.vol.Silent = p.volume <= 0
	if p.volume > 0 {
		p.vol.Volume = math.Log2(p.volume)
	}
}

func (p *Player) SetSpeed(s float64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.speed = s
	if p.resampler != nil {
		p.resampler.SetRatio(p.baseRatio * s)
	}
	return nil
}

func (p *Player) Progress() (time.Duration, time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.progressLocked()
}

func (p *Player) progressLocked() (time.Duration, time.Duration) {
	if p.seeker != nil {
		return p.format.SampleRate.D(p.seeker.Position()), p.duration
	}
	return p.eng.rate.D(p.rendered), p.duration
}

func (p *Player) Feed(data []byte) (int, error) {
	p.mu.Lock()
	feed := p.feed
	p.mu.Unlock()
	if feed == nil {
		return 0, errNotFed
	}
	return feed.Push(data), nil
}

func (p *Player) SetSubscriptionInterval(d time.Duration) {
	p.mu.Lock()
	p.interval = d
	p.mu.Unlock()
}

// SetFocus records the requested mode; there is no device to arbitrate.
func (p *Player) SetFocus(f engine.Focus) error {
	p.mu.Lock()
	p.focus = f
	p.mu.Unlock()
	return nil
}

func (p *Player) Release() error {
	p.halt()
	return nil
}

// feedStreamer plays PCM16 pushed by the caller and emits silence while
// starved, asking for more once per underrun.
type feedStreamer struct {
	mu       sync.Mutex
	channels int
	pending  [][2]float64
	starving bool
	onStarve func()
}

func newFeedStreamer(channels int, onStarve func()) *feedStreamer {
	return &feedStreamer{channels: channels, onStarve: onStarve}
}

// Push queues data and returns the number of bytes accepted.
func (f *feedStreamer) Push(data []byte) int {
	samples := decodePCM16(data, f.channels)
	f.mu.Lock()
	f.pending = append(f.pending, samples...)
	f.starving = false
	f.mu.Unlock()
	return len(samples) * 2 * f.channels
}

func (f *feedStreamer) Stream(out [][2]float64) (int, bool) {
	f.mu.Lock()
	n := copy(out, f.pending)
	f.pending = f.pending[n:]
	for i := n; i < len(out); i++ {
		out[i] = [2]float64{}
	}
	starve := n < len(out) && !f.starving
	if starve {
		f.starving = true
	}
	f.mu.Unlock()

	if starve && f.onStarve != nil {
		f.onStarve()
	}
	return len(out), true
}

func (f *feedStreamer) Err() error { return nil }
