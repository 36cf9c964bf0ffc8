package playback

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/Southclaws/fault"
	"github.com/Southclaws/fault/fmsg"
	"github.com/Southclaws/fault/ftag"
	ebitaudio "github.com/hajimehoshi/ebiten/v2/audio"
	"github.com/hajimehoshi/ebiten/v2/audio/mp3"
	"github.com/hajimehoshi/ebiten/v2/audio/vorbis"
	"github.com/hajimehoshi/ebiten/v2/audio/wav"

	"go-cue/debug"
)

// SampleRate of the shared audio context
const SampleRate = 48000

var ErrUnsupportedFormat = errors.New("unsupported audio format")

// stream is what the ebiten decoders return
type stream interface {
	io.ReadSeeker
	Length() int64
	SampleRate() int
}

type decodeFunc func(io.ReadSeeker) (stream, error)

var decoders = map[string]decodeFunc{
	".mp3": func(r io.ReadSeeker) (stream, error) { return mp3.DecodeF32(r) },
	".ogg": func(r io.ReadSeeker) (stream, error) { return vorbis.DecodeF32(r) },
	".wav": func(r io.ReadSeeker) (stream, error) { return wav.DecodeF32(r) },
}

func decoderFor(path string) (decodeFunc, error) {
	ext := strings.ToLower(filepath.Ext(path))
	if d, ok := decoders[ext]; ok {
		return d, nil
	}
	return nil, fault.Wrap(ErrUnsupportedFormat,
		fmsg.WithDesc(ext, fmt.Sprintf("Cannot play %s files", ext)),
		ftag.With(ftag.InvalidArgument))
}

var (
	audioContextOnce sync.Once
	audioContext     *ebitaudio.Context
)

func sharedAudioContext() *ebitaudio.Context {
	audioContextOnce.Do(func() {
		audioContext = ebitaudio.NewContext(SampleRate)
	})
	return audioContext
}

// Resolver maps a song name to its backing track path ("" when it has none)
type Resolver func(songName string) string

// Player plays a song's backing track next to the cue engine. Play never
// fails loudly: a missing or broken file is logged and kept in Err.
type Player struct {
	resolve Resolver

	mu      sync.Mutex
	current *ebitaudio.Player
	file    *os.File
	song    string
	err     error
}

func New(resolve Resolver) *Player {
	return &Player{resolve: resolve}
}

// Play stops whatever is playing and starts the backing track of songName.
// It has the signature of engine.PlayFunc.
func (p *Player) Play(songName string) {
	p.Stop()

	path := p.resolve(songName)
	if path == "" {
		debug.Log("play", "%s has no backing track", songName)
		return
	}
	if err := p.start(songName, path); err != nil {
		debug.Log("play", "%s: %v", songName, err)
		p.mu.Lock()
		p.err = err
		p.mu.Unlock()
	}
}

func (p *Player) start(songName, path string) error {
	decode, err := decoderFor(path)
	if err != nil {
		return err
	}

	f, err := os.Open(path)
	if err != nil {
		return fault.Wrap(err, fmsg.WithDesc("open backing track", "Backing track "+path+" could not be opened"))
	}
	s, err := decode(f)
	if err != nil {
		f.Close()
		return fault.Wrap(err, fmsg.With("decode "+filepath.Base(path)))
	}

	var src io.Reader = s
	if s.SampleRate() != SampleRate {
		src = ebitaudio.ResampleF32(s, s.Length(), s.SampleRate(), SampleRate)
	}
	pl, err := sharedAudioContext().NewPlayerF32(src)
	if err != nil {
		f.Close()
		return fault.Wrap(err, fmsg.With("create player"))
	}
	pl.Play()
	debug.Log("play", "playing %s (%s)", songName, filepath.Base(path))

	p.mu.Lock()
	p.current, p.file, p.song, p.err = pl, f, songName, nil
	p.mu.Unlock()
	return nil
}

// Stop halts the current backing track, if any
func (p *Player) Stop() {
	p.mu.Lock()
	pl, f, name := p.current, p.file, p.song
	p.current, p.file, p.song = nil, nil, ""
	p.mu.Unlock()

	if pl != nil {
		pl.Pause()
		pl.Close()
		debug.Log("play", "stopped %s", name)
	}
	if f != nil {
		f.Close()
	}
}

// Playing returns the song whose backing track is playing
func (p *Player) Playing() string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.current == nil || !p.current.IsPlaying() {
		return ""
	}
	return p.song
}

// Err returns the error of the last failed Play
func (p *Player) Err() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.err
}
