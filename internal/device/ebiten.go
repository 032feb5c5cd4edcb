package device

import (
	"fmt"
	"io"
	"sync"

	ebitaudio "github.com/hajimehoshi/ebiten/v2/audio"
)

// The ebiten audio context is process-global and can only be created once.
var (
	audioContextOnce sync.Once
	audioContext     *ebitaudio.Context
	audioSampleRate  int
)

func sharedAudioContext(sampleRate int) (*ebitaudio.Context, error) {
	audioContextOnce.Do(func() {
		audioSampleRate = sampleRate
		audioContext = ebitaudio.NewContext(sampleRate)
	})
	if audioSampleRate != sampleRate {
		return nil, fmt.Errorf("audio context already initialized at %d Hz (requested %d Hz)", audioSampleRate, sampleRate)
	}
	return audioContext, nil
}

// Ebiten plays through the ebiten/v2 audio context. src must supply
// float32 little-endian interleaved stereo at sampleRate.
type Ebiten struct {
	player *ebitaudio.Player
}

// NewEbiten opens the shared context and starts playback immediately.
func NewEbiten(sampleRate int, src io.Reader) (*Ebiten, error) {
	ctx, err := sharedAudioContext(sampleRate)
	if err != nil {
		return nil, err
	}
	player, err := ctx.NewPlayerF32(src)
	if err != nil {
		return nil, err
	}
	player.Play()
	return &Ebiten{player: player}, nil
}

func (e *Ebiten) SampleRate() int { return audioSampleRate }

func (e *Ebiten) Close() error {
	e.player.Pause()
	return e.player.Close()
}
