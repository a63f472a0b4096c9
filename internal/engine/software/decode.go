package software

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"strings"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/flac"
	"github.com/gopxl/beep/v2/mp3"
	"github.com/gopxl/beep/v2/vorbis"
	"github.com/gopxl/beep/v2/wav"

	"github.com/tausound/server/internal/engine"
)

type bytesSource struct{ *bytes.Reader }

func (bytesSource) Close() error { return nil }

func openSource(req engine.PlayRequest) (io.ReadSeekCloser, error) {
	if req.Path != "" {
		return os.Open(req.Path)
	}
	return bytesSource{bytes.NewReader(req.Data)}, nil
}

// codecFor picks a decoder for the default codec from the file extension.
func codecFor(req engine.PlayRequest) engine.Codec {
	if req.Codec != engine.DefaultCodec {
		return req.Codec
	}
	switch strings.ToLower(filepath.Ext(req.Path)) {
	case ".mp3":
		return engine.MP3
	case ".flac":
		return engine.FLAC
	case ".ogg":
		return engine.VorbisOGG
	case ".pcm", ".raw":
		return engine.PCM16
	}
	return engine.PCM16WAV
}

// decode opens the request's audio as a seekable stream.
func decode(req engine.PlayRequest) (beep.StreamSeekCloser, beep.Format, error) {
	src, err := openSource(req)
	if err != nil {
		return nil, beep.Format{}, err
	}

	codec := codecFor(req)
	var (
		s      beep.StreamSeekCloser
		format beep.Format
	)
	switch codec {
	case engine.PCM16:
		data, rerr := io.ReadAll(src)
		src.Close()
		if rerr != nil {
			return nil, beep.Format{}, rerr
		}
		format = pcmFormat(req.SampleRate, req.NumChannels)
		return newPCMStreamer(data, format), format, nil
	case engine.PCM16WAV:
		s, format, err = wav.Decode(src)
	case engine.MP3:
		s, format, err = mp3.Decode(src)
	case engine.FLAC:
		s, format, err = flac.Decode(src)
	case engine.VorbisOGG:
		s, format, err = vorbis.Decode(src)
	default:
		src.Close()
		return nil, beep.Format{}, fmt.Errorf("no decoder for %s", codec)
	}
	if err != nil {
		src.Close()
		return nil, beep.Format{}, fmt.Errorf("decode %s: %w", codec, err)
	}
	return s, format, nil
}

func pcmFormat(sampleRate, channels int) beep.Format {
	if sampleRate <= 0 {
		sampleRate = defaultSampleRate
	}
	if channels <= 0 {
		channels = 1
	}
	return beep.Format{SampleRate: beep.SampleRate(sampleRate), NumChannels: channels, Precision: 2}
}

// decodePCM16 converts little-endian signed 16-bit frames to samples. A
// trailing partial frame is dropped.
func decodePCM16(data []byte, channels int) [][2]float64 {
	if channels <= 0 {
		channels = 1
	}
	frame := 2 * channels
	out := make([][2]float64, len(data)/frame)
	for i := range out {
		off := i * frame
		l := float64(int16(binary.LittleEndian.Uint16(data[off:]))) / 32768
		r := l
		if channels > 1 {
			r = float64(int16(binary.LittleEndian.Uint16(data[off+2:]))) / 32768
		}
		out[i] = [2]float64{l, r}
	}
	return out
}

// encodePCM16 is the inverse of decodePCM16.
func encodePCM16(samples [][2]float64, channels int) []byte {
	if channels <= 0 {
		channels = 1
	}
	out := make([]byte, len(samples)*2*channels)
	for i, s := range samples {
		off := i * 2 * channels
		binary.LittleEndian.PutUint16(out[off:], uint16(toInt16(s[0])))
		if channels > 1 {
			binary.LittleEndian.PutUint16(out[off+2:], uint16(toInt16(s[1])))
		}
	}
	return out
}

func toInt16(v float64) int16 {
	v = math.Max(-1, math.Min(1, v))
	return int16(math.Round(v * 32767))
}

// pcmStreamer plays decoded PCM held in memory.
type pcmStreamer struct {
	samples [][2]float64
	pos     int
}

func newPCMStreamer(data []byte, format beep.Format) *pcmStreamer {
	return &pcmStreamer{samples: decodePCM16(data, format.NumChannels)}
}

func (s *pcmStreamer) Stream(out [][2]float64) (int, bool) {
	if s.pos >= len(s.samples) {
		return 0, false
	}
	n := copy(out, s.samples[s.pos:])
	s.pos += n
	return n, true
}

func (s *pcmStreamer) Err() error    { return nil }
func (s *pcmStreamer) Len() int      { return len(s.samples) }
func (s *pcmStreamer) Position() int { return s.pos }
func (s *pcmStreamer) Close() error  { return nil }

func (s *pcmStreamer) Seek(p int) error {
	if p < 0 || p > len(s.samples) {
		return fmt.Errorf("seek position %d out of range [0, %d]", p, len(s.samples))
	}
	s.pos = p
	return nil
}

// peakDB returns the peak level of samples in dBFS, floored at -160.
func peakDB(samples [][2]float64) float64 {
	peak := 0.0
	for _, s := range samples {
		peak = math.Max(peak, math.Max(math.Abs(s[0]), math.Abs(s[1])))
	}
	if peak == 0 {
		return -160
	}
	return math.Max(-160, 20*math.Log10(peak))
}
