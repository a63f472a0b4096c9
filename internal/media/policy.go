// Package media resolves the file paths sessions play from and record to.
package media

import (
	"os"
	"path/filepath"
	"runtime"
	"strings"

	"github.com/google/uuid"

	"github.com/tausound/server/internal/engine"
	apperrors "github.com/tausound/server/internal/errors"
)

// Policy resolves caller-supplied paths against a root directory and
// restricts them to permitted locations. The zero value accepts absolute
// paths anywhere and resolves relative paths against the working directory.
type Policy struct {
	Root         string
	AllowedPaths []string
	BlockedPaths []string
	MaskPaths    bool
}

// Confined returns a policy that resolves paths against dir and permits
// nothing outside it. A relative dir is taken from the working directory.
func Confined(dir string) (*Policy, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	return &Policy{Root: abs, AllowedPaths: []string{escapeGlob(abs)}}, nil
}

// escapeGlob quotes the filepath.Match metacharacters in a literal path.
// Windows has no glob escape character, so paths pass through unchanged.
func escapeGlob(path string) string {
	if runtime.GOOS == "windows" {
		return path
	}
	var b strings.Builder
	for _, r := range path {
		switch r {
		case '*', '?', '[', ']', '\\':
			b.WriteRune('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// IsAllowed reports whether path may be read or written. When AllowedPaths
// is non-empty the path must match at least one pattern. If it passes the
// allowlist, it must not match any BlockedPaths pattern.
func (p *Policy) IsAllowed(path string) bool {
	if len(p.AllowedPaths) > 0 {
		allowed := false
		for _, pattern := range p.AllowedPaths {
			if matchPathOrParent(pattern, path) {
				allowed = true
				break
			}
		}
		if !allowed {
			return false
		}
	}

	for _, pattern := range p.BlockedPaths {
		if matchPathOrParent(pattern, path) {
			return false
		}
	}

	return true
}

// matchPathOrParent checks if pattern matches path or any of its parent
// directories, so "/srv/audio/*" also covers "/srv/audio/a/b.wav".
func matchPathOrParent(pattern, path string) bool {
	for p := path; p != "." && p != "" && p != filepath.Dir(p); p = filepath.Dir(p) {
		if matched, _ := filepath.Match(pattern, p); matched {
			return true
		}
	}
	return false
}

// Resolve turns a caller path into a clean absolute path, or fails with
// InvalidArgument naming field.
func (p *Policy) Resolve(field, path string) (string, error) {
	if strings.TrimSpace(path) == "" {
		return "", apperrors.InvalidArgument(field, "path is empty")
	}
	if !filepath.IsAbs(path) {
		path = filepath.Join(p.Root, path)
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", apperrors.InvalidArgument(field, "cannot resolve %q", path)
	}
	if !p.IsAllowed(abs) {
		return "", apperrors.InvalidArgument(field, "path %q is not permitted", p.Mask(abs))
	}
	return abs, nil
}

// NewRecordingPath returns a fresh path under Root for a recording in codec c.
func (p *Policy) NewRecordingPath(c engine.Codec) (string, error) {
	return p.Resolve("path", "tau_"+uuid.NewString()+Extension(c))
}

// Delete removes a recorded file. A file that is already gone reports false.
func (p *Policy) Delete(path string) (bool, error) {
	abs, err := p.Resolve("path", path)
	if err != nil {
		return false, err
	}
	if err := os.Remove(abs); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// Mask hides directories from a path shown to callers or logs when masking
// is enabled.
func (p *Policy) Mask(path string) string {
	if p.MaskPaths && path != "" {
		return filepath.Base(path)
	}
	return path
}

// IsNoop reports whether the policy neither restricts nor masks.
func (p *Policy) IsNoop() bool {
	return !p.MaskPaths && len(p.AllowedPaths) == 0 && len(p.BlockedPaths) == 0
}

var extensions = map[engine.Codec]string{
	engine.DefaultCodec: ".wav",
	engine.AACADTS:      ".aac",
	engine.OpusOGG:      ".opus",
	engine.OpusCAF:      ".caf",
	engine.MP3:          ".mp3",
	engine.VorbisOGG:    ".ogg",
	engine.PCM16:        ".pcm",
	engine.PCM16WAV:     ".wav",
	engine.PCM16AIFF:    ".aiff",
	engine.PCM16CAF:     ".caf",
	engine.FLAC:         ".flac",
	engine.AACMP4:       ".mp4",
	engine.AMRNB:        ".amr",
	engine.AMRWB:        ".amr",
	engine.PCM8:         ".pcm",
	engine.PCMFloat32:   ".pcm",
	engine.PCMWebM:      ".webm",
	engine.OpusWebM:     ".webm",
	engine.VorbisWebM:   ".webm",
}

// Extension returns the conventional file extension for c.
func Extension(c engine.Codec) string {
	if ext, ok := extensions[c]; ok {
		return ext
	}
	return ".bin"
}
