package software

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/wav"

	"github.com/tausound/server/internal/engine"
)

var errNotRecording = errors.New("nothing is being recorded")

// Recorder captures the microphone source to a file.
type Recorder struct {
	eng *Engine
	l   engine.RecorderListener

	mu       sync.Mutex
	interval time.Duration
	focus    engine.Focus
	capture  *capture
	file     *os.File
	path     string
	done     chan error
}

var _ engine.Recorder = (*Recorder)(nil)

func (r *Recorder) Start(req engine.RecordRequest) error {
	if _, err := r.Stop(); err != nil && !errors.Is(err, errNotRecording) {
		return err
	}
	if !r.eng.EncoderSupported(req.Codec) {
		return fmt.Errorf("no encoder for %s", req.Codec)
	}
	if err := os.MkdirAll(filepath.Dir(req.Path), 0o755); err != nil {
		return err
	}
	f, err := os.Create(req.Path)
	if err != nil {
		return err
	}

	format := pcmFormat(req.SampleRate, req.NumChannels)
	r.mu.Lock()
	interval := r.interval
	r.mu.Unlock()
	c := newCapture(r.eng.opts.Mic(format), format, r.eng.opts.Tick, interval, func(samples [][2]float64, recorded time.Duration, peak float64, report bool) {
		if req.ToStream {
			r.l.Data(encodePCM16(samples, format.NumChannels))
		}
		if report {
			r.l.Progress(recorded, peak)
		}
	})

	done := make(chan error, 1)
	go func() {
		if req.Codec == engine.PCM16 {
			done <- writeRaw(f, c, format.NumChannels)
			return
		}
		done <- wav.Encode(f, c, format)
	}()

	r.mu.Lock()
	r.capture, r.file, r.path, r.done = c, f, req.Path, done
	r.mu.Unlock()
	r.l.Log(engine.LogDebug, fmt.Sprintf("recording %s at %d Hz to %s", req.Codec, format.SampleRate, filepath.Base(req.Path)))
	return nil
}

func writeRaw(f *os.File, s beep.Streamer, channels int) error {
	buf := make([][2]float64, 512)
	for {
		n, ok := s.Stream(buf)
		if n > 0 {
			if _, err := f.Write(encodePCM16(buf[:n], channels)); err != nil {
				return err
			}
		}
		if !ok {
			return s.Err()
		}
	}
}

// Stop finalises the file and returns its path.
func (r *Recorder) Stop() (string, error) {
	r.mu.Lock()
	c, f, path, done := r.capture, r.file, r.path, r.done
	r.capture, r.file, r.done = nil, nil, nil
	r.mu.Unlock()
	if c == nil {
		return path, errNotRecording
	}

	c.halt()
	encErr := <-done
	closeErr := f.Close()
	if encErr != nil {
		return path, encErr
	}
	return path, closeErr
}

func (r *Recorder) Pause() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.capture == nil {
		return errNotRecording
	}
	r.capture.pause()
	return nil
}

func (r *Recorder) Resume() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.capture == nil {
		return errNotRecording
	}
	r.capture.resume()
	return nil
}

func (r *Recorder) SetSubscriptionInterval(d time.Duration) {
	r.mu.Lock()
	r.interval = d
	if r.capture != nil {
		r.capture.setInterval(d)
	}
	r.mu.Unlock()
}

func (r *Recorder) SetFocus(f engine.Focus) error {
	r.mu.Lock()
	r.focus = f
	r.mu.Unlock()
	return nil
}

func (r *Recorder) Release() error {
	if _, err := r.Stop(); err != nil && !errors.Is(err, errNotRecording) {
		return err
	}
	return nil
}

// capture paces a source in real time, blocks while paused and ends when
// halted. It is the streamer the encoders pull from.
type capture struct {
	src    beep.Streamer
	format beep.Format
	frame  int
	tick   time.Duration
	ticker *time.Ticker
	stop   chan struct{}
	once   sync.Once
	onRead func(samples [][2]float64, recorded time.Duration, peak float64, report bool)

	mu            sync.Mutex
	paused        chan struct{} // closed on resume; nil while running
	interval      time.Duration
	recorded      int
	sinceProgress time.Duration
}

func newCapture(src beep.Streamer, format beep.Format, tick, interval time.Duration, onRead func([][2]float64, time.Duration, float64, bool)) *capture {
	return &capture{
		src:      src,
		format:   format,
		frame:    format.SampleRate.N(tick),
		tick:     tick,
		ticker:   time.NewTicker(tick),
		stop:     make(chan struct{}),
		onRead:   onRead,
		interval: interval,
	}
}

func (c *capture) Stream(out [][2]float64) (int, bool) {
	for {
		c.mu.Lock()
		wait := c.paused
		c.mu.Unlock()
		if wait == nil {
			break
		}
		select {
		case <-wait:
		case <-c.stop:
			return 0, false
		}
	}

	select {
	case <-c.stop:
		return 0, false
	case <-c.ticker.C:
	}

	if len(out) > c.frame {
		out = out[:c.frame]
	}
	n, ok := c.src.Stream(out)

	c.mu.Lock()
	c.recorded += n
	c.sinceProgress += c.format.SampleRate.D(n)
	report := c.interval > 0 && c.sinceProgress >= c.interval
	if report {
		c.sinceProgress = 0
	}
	recorded := c.format.SampleRate.D(c.recorded)
	c.mu.Unlock()

	if n > 0 && c.onRead != nil {
		c.onRead(out[:n], recorded, peakDB(out[:n]), report)
	}
	return n, ok
}

func (c *capture) Err() error { return c.src.Err() }

func (c *capture) pause() {
	c.mu.Lock()
	if c.paused == nil {
		c.paused = make(chan struct{})
	}
	c.mu.Unlock()
}

func (c *capture) resume() {
	c.mu.Lock()
	if c.paused != nil {
		close(c.paused)
		c.paused = nil
	}
	c.mu.Unlock()
}

func (c *capture) setInterval(d time.Duration) {
	c.mu.Lock()
	c.interval = d
	c.mu.Unlock()
}

func (c *capture) halt() {
	c.once.Do(func() {
		close(c.stop)
		c.ticker.Stop()
	})
}
