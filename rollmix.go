// Package rollmix is a rollback-tolerant real-time audio pipeline for
// deterministic, netcode-driven simulations. The simulation describes what
// should be audible once per confirmed tick; a background generation
// actor reconciles those snapshots against its own running playback state
// and keeps the hardware fed with a continuous waveform, crossfading over
// the discontinuities that rollbacks introduce.
package rollmix

import (
	"fmt"
	"log"
	"sync"

	"github.com/cbegin/rollmix-go/internal/bank"
	"github.com/cbegin/rollmix-go/internal/device"
	"github.com/cbegin/rollmix-go/internal/generator"
	"github.com/cbegin/rollmix-go/internal/ring"
	"github.com/cbegin/rollmix-go/internal/state"
	"github.com/cbegin/rollmix-go/internal/tracker"
)

// Re-exported pipeline types. The simulation builds these and hands them
// over in a Snapshot; see internal packages for field documentation.
type (
	ChannelState       = state.ChannelState
	AudioPlaybackState = state.AudioPlaybackState
	TrackerState       = state.TrackerState
	TrackerEngine      = tracker.Engine
	EngineSnapshot     = tracker.EngineSnapshot
	Sound              = bank.Sound
	SoundTable         = bank.Table
	Snapshot           = generator.Snapshot
	WireFormat         = ring.Format
	ChipEngine         = tracker.ChipEngine
	ChipModule         = tracker.Module
	ChipPattern        = tracker.Pattern
)

const (
	// NumChannels is the number of SFX polyphony voices.
	NumChannels = state.NumChannels
	// SourceSampleRate is the fixed rate of stored sounds.
	SourceSampleRate = bank.SourceSampleRate

	TrackerPlaying = state.TrackerPlaying
	TrackerPaused  = state.TrackerPaused

	FormatFloat32LE  = ring.FormatFloat32LE
	FormatSigned16LE = ring.FormatSigned16LE
)

// NewSound copies mono PCM16 data at SourceSampleRate into a shareable Sound.
func NewSound(pcm []int16) *Sound { return bank.NewSound(pcm) }

// NewSoundTable returns an empty handle-indexed table (handle 0 reserved).
func NewSoundTable() *SoundTable { return bank.NewTable() }

// NewChipEngine returns the built-in pattern-sequencer music engine.
func NewChipEngine(module ChipModule) *ChipEngine { return tracker.NewChipEngine(module) }

// ChipDemoModule returns a short song for NewChipEngine.
func ChipDemoModule() ChipModule { return tracker.DemoModule() }

// BackendKind selects the output device implementation.
type BackendKind string

const (
	BackendEbiten BackendKind = "ebiten"
	BackendOto    BackendKind = "oto"
	BackendNull   BackendKind = "null"
)

type Option func(*outputConfig)

type outputConfig struct {
	backend    BackendKind
	sampleRate int
	format     ring.Format
	engine     tracker.Engine
	fadeFrames int
}

func defaultOutputConfig() outputConfig {
	return outputConfig{
		backend:    BackendEbiten,
		sampleRate: device.DefaultSampleRate,
		format:     ring.FormatFloat32LE,
		engine:     tracker.NullEngine{},
	}
}

func WithBackend(kind BackendKind) Option {
	return func(cfg *outputConfig) {
		cfg.backend = kind
	}
}

func WithSampleRate(rate int) Option {
	return func(cfg *outputConfig) {
		cfg.sampleRate = rate
	}
}

// WithTrackerEngine installs the music-module engine the generation actor
// drives. The engine must not be used by any other goroutine afterwards.
func WithTrackerEngine(engine TrackerEngine) Option {
	return func(cfg *outputConfig) {
		cfg.engine = engine
	}
}

// WithCrossfadeFrames overrides the crossfade ramp length in stereo frames.
func WithCrossfadeFrames(frames int) Option {
	return func(cfg *outputConfig) {
		cfg.fadeFrames = frames
	}
}

// WithWireFormat sets the sample encoding at the device boundary. The
// ebiten backend always uses FormatFloat32LE; this applies to the oto and
// null backends.
func WithWireFormat(format WireFormat) Option {
	return func(cfg *outputConfig) {
		cfg.format = format
	}
}

// Output owns the whole playback side of the pipeline: ring buffer,
// generation actor, and device backend.
type Output struct {
	mu      sync.Mutex
	gen     *generator.Generator
	backend device.Backend
	closed  bool

	sampleRate int
}

// NewOutput wires up and starts the pipeline. A missing or failing audio
// device is not an error: the pipeline degrades to the silent null
// backend and playback proceeds inaudibly at the default sample rate.
func NewOutput(opts ...Option) (*Output, error) {
	cfg := defaultOutputConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.sampleRate <= 0 {
		return nil, fmt.Errorf("rollmix: invalid sample rate %d", cfg.sampleRate)
	}
	if cfg.backend == BackendEbiten {
		cfg.format = ring.FormatFloat32LE
	}

	buf := ring.New(ring.CapacityFor(cfg.sampleRate))
	gen := generator.New(buf, cfg.engine, cfg.sampleRate, cfg.fadeFrames)
	reader := ring.NewReader(buf, cfg.format, gen.Wake)

	var backend device.Backend
	var err error
	switch cfg.backend {
	case BackendEbiten:
		backend, err = device.NewEbiten(cfg.sampleRate, reader)
	case BackendOto:
		backend, err = device.NewOto(cfg.sampleRate, cfg.format, reader)
	case BackendNull:
		backend = device.NewNull(cfg.sampleRate, cfg.format.BytesPerSample(), reader)
	default:
		return nil, fmt.Errorf("rollmix: unknown backend %q", cfg.backend)
	}
	if err != nil {
		log.Printf("rollmix: audio device unavailable (%v); output is silent", err)
		backend = device.NewNull(cfg.sampleRate, cfg.format.BytesPerSample(), reader)
	}

	gen.Start()
	return &Output{
		gen:        gen,
		backend:    backend,
		sampleRate: cfg.sampleRate,
	}, nil
}

// SendSnapshot hands one confirmed tick's playback state to the generation
// actor. Non-blocking; returns false if the snapshot was dropped.
func (o *Output) SendSnapshot(s Snapshot) bool {
	return o.gen.SendSnapshot(s)
}

// SampleRate returns the negotiated output rate.
func (o *Output) SampleRate() int { return o.sampleRate }

// SetMasterVolume sets the output volume scalar, clamped to [0, 1].
func (o *Output) SetMasterVolume(volume float64) {
	o.gen.SetMasterVolume(float32(volume))
}

// MasterVolume returns the current output volume scalar.
func (o *Output) MasterVolume() float64 {
	return float64(o.gen.MasterVolume())
}

// Close tears down the backend and stops the generation actor. Bounded:
// it returns within about a second even if a thread is stuck.
func (o *Output) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.closed {
		return nil
	}
	o.closed = true

	backendErr := o.backend.Close()
	genErr := o.gen.Close()
	if backendErr != nil {
		return backendErr
	}
	return genErr
}
