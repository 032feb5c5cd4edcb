// Package tracker defines the capability interface the audio pipeline uses
// to drive a music-module playback engine. The engine's note sequencing and
// internal DSP state are opaque to the pipeline: it only loads and saves
// engine snapshots and asks for mixed samples.
package tracker

import (
	"github.com/cbegin/rollmix-go/internal/bank"
	"github.com/cbegin/rollmix-go/internal/state"
)

// EngineSnapshot is an opaque serialized capture of an engine's internal
// state. The pipeline moves snapshots between actors but never inspects
// their contents.
type EngineSnapshot []byte

// Engine is a music-module playback engine. Implementations own all
// sequencing state (order position, row, tick) once playback starts; the
// reconciliation protocol only replaces that state wholesale via
// ApplySnapshot on a module change or rollback.
//
// RenderSample and AdvancePositions mutate both the engine and st, so an
// Engine instance must only be driven from a single goroutine.
type Engine interface {
	// ApplySnapshot restores the engine from a serialized capture.
	ApplySnapshot(snap EngineSnapshot)

	// Snapshot serializes the engine's current internal state.
	Snapshot() EngineSnapshot

	// SyncToState aligns the engine with the tick's descriptor before any
	// samples are rendered for that tick.
	SyncToState(st *state.TrackerState, sounds *bank.Table)

	// RenderSample mixes one stereo output sample and advances playback.
	RenderSample(st *state.TrackerState, sounds *bank.Table, sampleRate int) (left, right float32)

	// AdvancePositions moves playback forward by n output samples without
	// producing audio.
	AdvancePositions(st *state.TrackerState, sounds *bank.Table, n int, sampleRate int)
}

// NullEngine is a silent Engine for configurations with no tracker music.
type NullEngine struct{}

func (NullEngine) ApplySnapshot(EngineSnapshot)                                {}
func (NullEngine) Snapshot() EngineSnapshot                                    { return nil }
func (NullEngine) SyncToState(*state.TrackerState, *bank.Table)                {}
func (NullEngine) AdvancePositions(*state.TrackerState, *bank.Table, int, int) {}

func (NullEngine) RenderSample(*state.TrackerState, *bank.Table, int) (float32, float32) {
	return 0, 0
}
