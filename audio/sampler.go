package audio

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gopxl/beep/v2"
	"github.com/gopxl/beep/v2/mp3"
	"github.com/gopxl/beep/v2/wav"
	"github.com/mitchellh/go-homedir"

	"gridseq/debug"
	"gridseq/sequencer"
)

// ErrRemoteSource is returned for sample URLs that are not local files.
var ErrRemoteSource = errors.New("only local sample files are supported")

// Bank holds one decoded buffer per sample key.
type Bank struct {
	e       *Engine
	buffers map[string]*beep.Buffer

	mu     sync.Mutex
	volume float64
	mute   bool

	disposed atomic.Bool
}

// LoadBank decodes every source into memory. A source that cannot be read
// or decoded fails the whole bank.
func (e *Engine) LoadBank(sources []sequencer.SampleSource, s sequencer.Settings) (sequencer.PlayerBank, error) {
	b := &Bank{e: e, buffers: make(map[string]*beep.Buffer, len(sources))}
	for _, src := range sources {
		buf, err := e.decode(src.URL)
		if err != nil {
			return nil, fmt.Errorf("sample %q: %w", src.Key, err)
		}
		b.buffers[src.Key] = buf
	}
	if err := b.Set(s); err != nil {
		return nil, err
	}
	debug.Log("audio", "loaded bank with %d samples", len(b.buffers))
	return b, nil
}

// samplePath turns a source URL into a file path. Plain paths, ~ paths and
// file:// URLs are accepted.
func samplePath(raw string) (string, error) {
	if strings.Contains(raw, "://") {
		u, err := url.Parse(raw)
		if err != nil {
			return "", err
		}
		if u.Scheme != "file" {
			return "", fmt.Errorf("%s: %w", raw, ErrRemoteSource)
		}
		return filepath.FromSlash(u.Path), nil
	}
	return homedir.Expand(raw)
}

func (e *Engine) decode(raw string) (*beep.Buffer, error) {
	path, err := samplePath(raw)
	if err != nil {
		return nil, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}

	var (
		stream beep.StreamSeekCloser
		format beep.Format
	)
	switch strings.ToLower(filepath.Ext(path)) {
	case ".wav":
		stream, format, err = wav.Decode(f)
	case ".mp3":
		stream, format, err = mp3.Decode(f)
	default:
		f.Close()
		return nil, fmt.Errorf("%s: unsupported sample format", path)
	}
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	defer stream.Close()

	var src beep.Streamer = stream
	if format.SampleRate != e.sr {
		src = beep.Resample(4, format.SampleRate, e.sr, stream)
	}
	buf := beep.NewBuffer(beep.Format{SampleRate: e.sr, NumChannels: 2, Precision: 2})
	buf.Append(src)
	if err := stream.Err(); err != nil {
		return nil, fmt.Errorf("decode %s: %w", path, err)
	}
	return buf, nil
}

// Player returns a fresh player for key, or nil when the bank has no such
// sample.
func (b *Bank) Player(key string) sequencer.Player {
	buf, ok := b.buffers[key]
	if !ok {
		return nil
	}
	return &player{bank: b, buf: buf}
}

// Set applies volume and mute. Sources are fixed for the life of a bank.
func (b *Bank) Set(p sequencer.Settings) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if p.Volume != nil {
		b.volume = *p.Volume
	}
	if p.Mute != nil {
		b.mute = *p.Mute
	}
	return nil
}

// Dispose stops every voice of the bank and drops the buffers' voices from
// the mix as they next stream.
func (b *Bank) Dispose() {
	b.disposed.Store(true)
}

// Len returns the number of samples in the bank.
func (b *Bank) Len() int {
	return len(b.buffers)
}

// player is one playback of one sample.
type player struct {
	bank  *Bank
	buf   *beep.Buffer
	at    time.Time
	voice *limit
}

func (p *player) Start(at time.Time) sequencer.Player {
	b := p.bank
	if b.disposed.Load() {
		return p
	}
	b.mu.Lock()
	vol, mute := b.volume, b.mute
	b.mu.Unlock()

	p.at = at
	p.voice = &limit{src: p.buf.Streamer(0, p.buf.Len()), stop: &b.disposed}
	p.voice.remaining.Store(-1)
	b.e.playAt(at, volume(p.voice, vol, mute))
	return p
}

func (p *player) Stop(at time.Time) sequencer.Player {
	if p.voice == nil {
		return p
	}
	n := p.bank.e.sr.N(at.Sub(p.at))
	p.voice.remaining.Store(int64(max(n, 0)))
	return p
}

// limit plays src until remaining samples have been streamed (-1 is no
// limit) or stop is set.
type limit struct {
	src       beep.Streamer
	remaining atomic.Int64
	stop      *atomic.Bool
}

func (l *limit) Stream(samples [][2]float64) (n int, ok bool) {
	if l.stop.Load() {
		return 0, false
	}
	rem := l.remaining.Load()
	if rem == 0 {
		return 0, false
	}
	if rem > 0 && int64(len(samples)) > rem {
		samples = samples[:rem]
	}
	n, ok = l.src.Stream(samples)
	if rem > 0 {
		l.remaining.Add(-int64(n))
	}
	return n, ok
}

func (l *limit) Err() error {
	return l.src.Err()
}
