package alerting

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/ebitengine/oto/v3"

	"github.com/oshokin/alarm-clock/internal/logger"
)

var (
	// errNoSound is returned when every source of the chain failed.
	errNoSound = errors.New("no sound source could be played")
	// errFormatMismatch is returned when a WAV does not match the audio context.
	errFormatMismatch = errors.New("WAV format differs from the audio context")
)

// Speaker plays PCM samples in a loop.
type Speaker interface {
	// Loop starts playing pcm repeatedly and returns a func that stops it.
	Loop(format Format, pcm []byte, volume float64) (stop func(), err error)
}

// SoundChannel plays the first usable source of a fallback chain.
type SoundChannel struct {
	// speaker renders the samples.
	speaker Speaker
	// readFile loads a WAV file.
	readFile func(name string) ([]byte, error)
	// mu protects stop.
	mu sync.Mutex
	// stop ends the current playback, nil when silent.
	stop func()
}

// NewSoundChannel creates a channel over the given speaker.
func NewSoundChannel(speaker Speaker) *SoundChannel {
	return &SoundChannel{
		speaker:  speaker,
		readFile: os.ReadFile,
	}
}

// Play stops any current playback and walks the chain until one source
// plays. It returns the source that plays, or errNoSound.
func (c *SoundChannel) Play(ctx context.Context, sources []SoundSource, volume float64) (SoundSource, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.stopLocked()

	for _, source := range sources {
		if source.Path == "" {
			continue
		}

		stop, err := c.start(source, volume)
		if err != nil {
			logger.WarnKV(ctx, "Sound source unavailable, trying the next one",
				"kind", string(source.Kind),
				"path", source.Path,
				"error", err,
			)

			continue
		}

		c.stop = stop

		logger.InfoKV(ctx, "Sound started", "kind", string(source.Kind), "path", source.Path)

		return source, nil
	}

	return SoundSource{}, errNoSound
}

// Stop ends playback. It is a no-op when nothing plays.
func (c *SoundChannel) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.stopLocked()
}

// Playing reports whether a source is currently playing.
func (c *SoundChannel) Playing() bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	return c.stop != nil
}

func (c *SoundChannel) start(source SoundSource, volume float64) (func(), error) {
	data, err := c.readFile(filepath.Clean(source.Path))
	if err != nil {
		return nil, fmt.Errorf("read sound: %w", err)
	}

	format, pcm, err := ParseWAV(data)
	if err != nil {
		return nil, fmt.Errorf("parse sound: %w", err)
	}

	stop, err := c.speaker.Loop(format, pcm, volume)
	if err != nil {
		return nil, fmt.Errorf("play sound: %w", err)
	}

	return stop, nil
}

func (c *SoundChannel) stopLocked() {
	if c.stop == nil {
		return
	}

	c.stop()
	c.stop = nil
}

// OtoSpeaker plays through the system audio device with oto.
// oto allows a single context per process, so the first played format
// fixes the sample rate and channel count.
type OtoSpeaker struct {
	// mu protects the fields below.
	mu sync.Mutex
	// device is created by the first Loop call.
	device *oto.Context
	// format is the format the context was created with.
	format Format
	// err is the context creation failure, sticky.
	err error
}

// NewOtoSpeaker returns a speaker that opens the audio device lazily.
func NewOtoSpeaker() *OtoSpeaker {
	return &OtoSpeaker{}
}

// Loop implements Speaker.
func (s *OtoSpeaker) Loop(format Format, pcm []byte, volume float64) (func(), error) {
	audio, err := s.audioContext(format)
	if err != nil {
		return nil, err
	}

	player := audio.NewPlayer(&loopReader{data: pcm})
	player.SetVolume(volume)
	player.Play()

	var once sync.Once

	return func() {
		once.Do(func() {
			player.Pause()
			_ = player.Close()
		})
	}, nil
}

func (s *OtoSpeaker) audioContext(format Format) (*oto.Context, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.err != nil {
		return nil, s.err
	}

	if s.device != nil {
		if s.format.SampleRate != format.SampleRate || s.format.Channels != format.Channels {
			return nil, errFormatMismatch
		}

		return s.device, nil
	}

	audio, ready, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   format.SampleRate,
		ChannelCount: format.Channels,
		Format:       oto.FormatSignedInt16LE,
	})
	if err != nil {
		s.err = fmt.Errorf("open audio device: %w", err)

		return nil, s.err
	}

	// Wait for the audio device to be ready.
	<-ready

	s.device = audio
	s.format = format

	return audio, nil
}

// loopReader repeats data forever.
type loopReader struct {
	data []byte
	pos  int
}

func (r *loopReader) Read(p []byte) (int, error) {
	if len(r.data) == 0 {
		return 0, io.EOF
	}

	n := copy(p, r.data[r.pos:])
	r.pos = (r.pos + n) % len(r.data)

	return n, nil
}
