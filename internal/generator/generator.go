// Package generator runs the background audio-generation actor. It owns a
// private mirror of the playback state, reconciles it against snapshots
// arriving from the simulation thread, and keeps the output ring buffer
// fed with mixed samples.
//
// The mirror deliberately runs ahead of the simulation: the actor keeps
// generating on its own clock between snapshots, so channel positions in
// the mirror are authoritative for timing. Snapshots contribute game
// events (new sounds, volume changes) and are merged, never adopted
// wholesale - except on rollback, when the mirror's speculative history is
// discarded behind a short crossfade.
package generator

import (
	"errors"
	"log"
	"math"
	"sync/atomic"
	"time"

	"github.com/cbegin/rollmix-go/internal/bank"
	"github.com/cbegin/rollmix-go/internal/mixer"
	"github.com/cbegin/rollmix-go/internal/ring"
	"github.com/cbegin/rollmix-go/internal/state"
	"github.com/cbegin/rollmix-go/internal/tracker"
)

// Snapshot is the immutable envelope the simulation sends once per
// confirmed tick. It is handed over by value; the sound table it points at
// is shared read-only.
type Snapshot struct {
	Audio          state.AudioPlaybackState
	Tracker        state.TrackerState
	EngineSnapshot tracker.EngineSnapshot
	Sounds         *bank.Table
	FrameNumber    int64
	TickRate       int
	SampleRate     int
	IsRollback     bool
}

// DefaultCrossfadeFrames is the crossfade ramp length in stereo frames,
// about one millisecond at 44.1 kHz.
const DefaultCrossfadeFrames = 44

// snapshotQueueDepth bounds the snapshot channel; deep enough to ride out
// scheduling jitter without accumulating stale state.
const snapshotQueueDepth = 8

const defaultTickRate = 60

// Generator is the audio-generation actor. Create one with New, call
// Start to spawn its goroutine, feed it with SendSnapshot, and Close it
// when done. All mirror state below the exported methods is owned
// exclusively by the actor goroutine.
type Generator struct {
	snapshots chan Snapshot
	out       *ring.Buffer
	engine    tracker.Engine
	wake      chan struct{}
	stop      chan struct{}
	done      chan struct{}

	sampleRate   int
	fadeFrames   int
	masterVolume atomic.Uint32 // float32 bits

	// Local mirror, reconciled from snapshots.
	genAudio   state.AudioPlaybackState
	genTracker state.TrackerState
	sounds     *bank.Table
	tickRate   int
	hasState   bool

	lastEmitted [2]float32
	fade        crossfade
	buf         []float32

	metrics metrics
}

// New creates a generator feeding out. engine must not be shared with any
// other goroutine once Start is called.
func New(out *ring.Buffer, engine tracker.Engine, sampleRate, fadeFrames int) *Generator {
	if fadeFrames <= 0 {
		fadeFrames = DefaultCrossfadeFrames
	}
	g := &Generator{
		snapshots:  make(chan Snapshot, snapshotQueueDepth),
		out:        out,
		engine:     engine,
		wake:       make(chan struct{}, 1),
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
		sampleRate: sampleRate,
		fadeFrames: fadeFrames,
		tickRate:   defaultTickRate,
		buf:        make([]float32, 0, 2048),
	}
	g.masterVolume.Store(math.Float32bits(1))
	return g
}

// Start spawns the actor goroutine.
func (g *Generator) Start() {
	go g.run()
}

// SendSnapshot queues a snapshot for the actor. Non-blocking: when the
// queue is full the snapshot is dropped and false returned, so the
// simulation thread never stalls on audio.
func (g *Generator) SendSnapshot(s Snapshot) bool {
	select {
	case g.snapshots <- s:
		return true
	default:
		g.metrics.snapshotsDropped++
		log.Printf("generator: snapshot queue full, dropping frame %d", s.FrameNumber)
		return false
	}
}

// Wake nudges the actor to check buffer headroom. Safe to call from the
// output callback: it never blocks or allocates.
func (g *Generator) Wake() {
	select {
	case g.wake <- struct{}{}:
	default:
	}
}

// SetMasterVolume scales all generated output. Clamped to [0, 1].
func (g *Generator) SetMasterVolume(v float32) {
	if v < 0 {
		v = 0
	}
	if v > 1 {
		v = 1
	}
	g.masterVolume.Store(math.Float32bits(v))
}

// MasterVolume returns the current output scale.
func (g *Generator) MasterVolume() float32 {
	return math.Float32frombits(g.masterVolume.Load())
}

// ErrCloseTimeout reports that the actor failed to acknowledge the stop
// signal in time.
var ErrCloseTimeout = errors.New("generator: close timed out")

// Close signals the actor to stop and waits for it, bounded so shutdown
// can never hang on a stuck audio device.
func (g *Generator) Close() error {
	select {
	case <-g.stop:
		// already closed
	default:
		close(g.stop)
	}
	select {
	case <-g.done:
		return nil
	case <-time.After(time.Second):
		return ErrCloseTimeout
	}
}

func (g *Generator) run() {
	defer close(g.done)
	log.Printf("generator: started (sample rate %d)", g.sampleRate)

	for {
		// Fold in everything the simulation has sent since last pass.
	drain:
		for {
			select {
			case s := <-g.snapshots:
				g.handleSnapshot(s)
			default:
				break drain
			}
		}

		if g.out.Vacant() >= g.frameSize() {
			if g.hasState {
				g.generateFrame()
			} else {
				g.pushSilence()
			}
		}
		g.metrics.observe(g.out)

		select {
		case <-g.stop:
			log.Printf("generator: stopped")
			return
		case <-g.wake:
		case <-time.After(time.Millisecond):
		}
	}
}

func (g *Generator) frameSize() int {
	return mixer.SamplesPerTick(g.tickRate, g.sampleRate) * 2
}

// handleSnapshot reconciles the local mirror with one snapshot.
//
// Three rules per channel (and their analogues for music and tracker):
//
//   - A: a fresh trigger (position 0) or a different sound handle is
//     adopted verbatim; replacing an already-sounding source arms a
//     crossfade from the last emitted sample.
//   - B: a snapshot-silent channel clears the local one immediately.
//   - C: a continuing sound merges volume and pan only; the mirror's
//     position is ahead of the snapshot's and must not be dragged back.
//
// Rollback snapshots skip the rules and overwrite the whole mirror.
func (g *Generator) handleSnapshot(s Snapshot) {
	g.metrics.snapshotsReceived++

	if s.IsRollback {
		g.handleRollback(s)
		return
	}

	if !g.hasState {
		g.adoptAll(s)
		return
	}

	for i := range s.Audio.Channels {
		g.reconcileChannel(&g.genAudio.Channels[i], s.Audio.Channels[i])
	}
	g.reconcileChannel(&g.genAudio.Music, s.Audio.Music)
	g.reconcileTracker(s)

	g.sounds = s.Sounds
	g.tickRate = s.TickRate
}

func (g *Generator) reconcileChannel(local *state.ChannelState, snap state.ChannelState) {
	changed := snap.Sound != local.Sound
	switch {
	case snap.Sound != 0 && (snap.Position == 0 || changed):
		// Rule A: new or replaced sound starts fresh from the snapshot.
		if changed && local.Sound != 0 {
			g.fade.arm(g.lastEmitted, g.fadeFrames)
		}
		*local = snap
	case snap.Sound == 0 && local.Sound != 0:
		// Rule B: stopped by the game. Immediate, no crossfade.
		local.Clear()
	case snap.Sound != 0:
		// Rule C: same sound continuing; our position is further along.
		local.Volume = snap.Volume
		local.Pan = snap.Pan
	}
}

func (g *Generator) reconcileTracker(s Snapshot) {
	changed := s.Tracker.Handle != g.genTracker.Handle
	switch {
	case changed && s.Tracker.Handle != 0:
		// New module: full engine reload, crossfade if one was playing.
		if g.genTracker.Handle != 0 {
			g.fade.arm(g.lastEmitted, g.fadeFrames)
		}
		g.genTracker = s.Tracker
		g.engine.ApplySnapshot(s.EngineSnapshot)
	case s.Tracker.Handle == 0 && g.genTracker.Handle != 0:
		g.genTracker.Handle = 0
		g.genTracker.Flags = 0
	case s.Tracker.Handle != 0:
		// Continuing module: merge the controllable subset. OrderPos, Row
		// and Tick stay with our engine, which owns sequencing time.
		g.genTracker.Volume = s.Tracker.Volume
		g.genTracker.Flags = s.Tracker.Flags
		g.genTracker.BPM = s.Tracker.BPM
		g.genTracker.Speed = s.Tracker.Speed
	}
}

// handleRollback discards the mirror: the actor's speculative playback
// history was wrong. A crossfade from the last emitted sample hides the
// discontinuity.
func (g *Generator) handleRollback(s Snapshot) {
	g.metrics.rollbacks++

	// Anything still queued predates the rollback.
	for {
		select {
		case <-g.snapshots:
			continue
		default:
		}
		break
	}

	g.fade.arm(g.lastEmitted, g.fadeFrames)
	g.adoptAll(s)
	log.Printf("generator: rollback at frame %d, crossfade armed", s.FrameNumber)
}

// adoptAll replaces the whole mirror with the snapshot's contents.
func (g *Generator) adoptAll(s Snapshot) {
	g.genAudio = s.Audio
	g.genTracker = s.Tracker
	g.engine.ApplySnapshot(s.EngineSnapshot)
	g.sounds = s.Sounds
	g.tickRate = s.TickRate
	g.hasState = true
}

// generateFrame advances the mirror by one tick, mixes it, applies any
// pending crossfade and master volume, and pushes the result best-effort.
func (g *Generator) generateFrame() {
	g.buf = mixer.GenerateFrame(&g.genAudio, &g.genTracker, g.engine, g.sounds, g.tickRate, g.sampleRate, g.buf[:0])

	g.fade.apply(g.buf)

	if vol := g.MasterVolume(); vol != 1 {
		for i := range g.buf {
			g.buf[i] *= vol
		}
	}

	g.metrics.checkContinuity(g.lastEmitted, g.buf)

	if n := len(g.buf); n >= 2 {
		g.lastEmitted = [2]float32{g.buf[n-2], g.buf[n-1]}
	}

	pushed := g.out.Push(g.buf)
	if dropped := len(g.buf) - pushed; dropped > 0 {
		g.metrics.samplesDropped += uint64(dropped)
	}
	g.metrics.framesGenerated++
}

// pushSilence keeps the output primed before the first snapshot arrives.
func (g *Generator) pushSilence() {
	n := g.frameSize()
	if cap(g.buf) < n {
		g.buf = make([]float32, n)
	}
	g.buf = g.buf[:n]
	for i := range g.buf {
		g.buf[i] = 0
	}
	g.out.Push(g.buf)
}
