package tracker

import (
	"encoding/binary"
	"math"

	"github.com/cbegin/rollmix-go/internal/bank"
	"github.com/cbegin/rollmix-go/internal/state"
)

// PatternRows is the fixed number of rows per pattern.
const PatternRows = 16

// Cell is one pattern row for one voice: a MIDI-style note number, or one
// of the two control values.
type Cell uint8

const (
	// CellSustain keeps the previous note sounding.
	CellSustain Cell = 0
	// CellOff releases the voice.
	CellOff Cell = 255
)

// Pattern holds PatternRows rows for every voice.
type Pattern [PatternRows][chipVoices]Cell

// Module is the song data a ChipEngine plays: an order list indexing into
// the pattern bank. Module data is immutable once playback starts.
type Module struct {
	Orders   []uint8
	Patterns []Pattern
}

const chipVoices = 2

type chipWave int

const (
	chipPulse chipWave = iota
	chipTriangle
)

// Per-voice gain and pan placement. The lead pulse sits slightly left,
// the triangle bass slightly right.
var chipVoiceGain = [chipVoices]float32{0.22, 0.30}
var chipVoicePanL = [chipVoices]float32{0.8, 0.6}
var chipVoicePanR = [chipVoices]float32{0.6, 0.8}

var chipVoiceWave = [chipVoices]chipWave{chipPulse, chipTriangle}

type chipVoice struct {
	note  uint8
	freq  float64
	phase float64
}

// ChipEngine is a small deterministic pattern sequencer with a pulse lead
// and a triangle bass. It exists so configurations without an external
// module player still have a real Engine: sequencing time (order, row,
// tick) lives here and is written back to the TrackerState descriptor
// every tick, and the whole internal state round-trips through Snapshot.
type ChipEngine struct {
	module Module

	order   uint32
	row     uint32
	tick    uint32
	counter uint32 // samples rendered inside the current engine tick

	voices [chipVoices]chipVoice
}

// NewChipEngine creates an engine playing module from the top.
func NewChipEngine(module Module) *ChipEngine {
	e := &ChipEngine{module: module}
	e.applyRow()
	return e
}

// DemoModule returns a short two-pattern song usable out of the box.
func DemoModule() Module {
	a := Pattern{
		0:  {69, 45},
		2:  {CellOff, CellSustain},
		4:  {72, CellSustain},
		6:  {CellOff, CellOff},
		8:  {76, 45},
		10: {CellOff, CellSustain},
		12: {72, 48},
		14: {CellOff, CellOff},
	}
	b := Pattern{
		0:  {71, 43},
		4:  {74, CellSustain},
		8:  {79, 43},
		12: {74, 47},
		15: {CellOff, CellOff},
	}
	return Module{Orders: []uint8{0, 0, 1, 0}, Patterns: []Pattern{a, b}}
}

// chipSnapshotLen is the serialized size: four sequencing counters plus
// note and phase per voice.
const chipSnapshotLen = 16 + chipVoices*(1+8)

// Snapshot serializes the sequencing counters and voice phases. Module
// data is not included; it is immutable and identified by the descriptor's
// handle.
func (e *ChipEngine) Snapshot() EngineSnapshot {
	buf := make([]byte, chipSnapshotLen)
	binary.LittleEndian.PutUint32(buf[0:], e.order)
	binary.LittleEndian.PutUint32(buf[4:], e.row)
	binary.LittleEndian.PutUint32(buf[8:], e.tick)
	binary.LittleEndian.PutUint32(buf[12:], e.counter)
	off := 16
	for i := range e.voices {
		buf[off] = e.voices[i].note
		binary.LittleEndian.PutUint64(buf[off+1:], math.Float64bits(e.voices[i].phase))
		off += 9
	}
	return buf
}

// ApplySnapshot restores a capture made by Snapshot. Short or foreign
// captures reset the engine to the top of the module.
func (e *ChipEngine) ApplySnapshot(snap EngineSnapshot) {
	if len(snap) != chipSnapshotLen {
		e.order, e.row, e.tick, e.counter = 0, 0, 0, 0
		e.voices = [chipVoices]chipVoice{}
		e.applyRow()
		return
	}
	e.order = binary.LittleEndian.Uint32(snap[0:])
	e.row = binary.LittleEndian.Uint32(snap[4:])
	e.tick = binary.LittleEndian.Uint32(snap[8:])
	e.counter = binary.LittleEndian.Uint32(snap[12:])
	off := 16
	for i := range e.voices {
		e.voices[i].note = snap[off]
		e.voices[i].phase = math.Float64frombits(binary.LittleEndian.Uint64(snap[off+1:]))
		e.voices[i].freq = noteFreq(e.voices[i].note)
		off += 9
	}
}

// SyncToState publishes the engine's sequencing position into the tick
// descriptor. The pipeline treats these fields as engine-owned.
func (e *ChipEngine) SyncToState(st *state.TrackerState, _ *bank.Table) {
	if st.BPM == 0 {
		st.BPM = 125
	}
	if st.Speed == 0 {
		st.Speed = 6
	}
	st.OrderPos = e.order
	st.Row = e.row
	st.Tick = e.tick
}

// RenderSample mixes one stereo sample and advances playback.
func (e *ChipEngine) RenderSample(st *state.TrackerState, sounds *bank.Table, sampleRate int) (float32, float32) {
	var left, right float32
	for i := range e.voices {
		v := &e.voices[i]
		if v.note == 0 {
			continue
		}
		s := chipSample(chipVoiceWave[i], v.phase) * chipVoiceGain[i] * st.Volume
		left += s * chipVoicePanL[i]
		right += s * chipVoicePanR[i]
		v.phase += v.freq / float64(sampleRate)
		if v.phase >= 1 {
			v.phase -= 1
		}
	}
	e.step(st, 1, sampleRate)
	return left, right
}

// AdvancePositions moves sequencing forward by n samples without touching
// the waveform phases; the crossfade hides the phase seam after rollback.
func (e *ChipEngine) AdvancePositions(st *state.TrackerState, _ *bank.Table, n int, sampleRate int) {
	e.step(st, uint32(n), sampleRate)
}

// step consumes n output samples of sequencing time, crossing engine-tick
// and row boundaries as the classic tempo formula dictates: one engine
// tick lasts 2.5/BPM seconds, one row lasts Speed ticks.
func (e *ChipEngine) step(st *state.TrackerState, n uint32, sampleRate int) {
	bpm := st.BPM
	if bpm == 0 {
		bpm = 125
	}
	speed := st.Speed
	if speed == 0 {
		speed = 6
	}
	perTick := uint32(float64(sampleRate) * 2.5 / float64(bpm))
	if perTick == 0 {
		perTick = 1
	}

	e.counter += n
	for e.counter >= perTick {
		e.counter -= perTick
		e.tick++
		if e.tick >= speed {
			e.tick = 0
			e.advanceRow()
		}
	}
	st.OrderPos = e.order
	st.Row = e.row
	st.Tick = e.tick
}

func (e *ChipEngine) advanceRow() {
	e.row++
	if e.row >= PatternRows {
		e.row = 0
		e.order++
		if int(e.order) >= len(e.module.Orders) {
			e.order = 0
		}
	}
	e.applyRow()
}

// applyRow fires the note events of the current row into the voices.
func (e *ChipEngine) applyRow() {
	p := e.currentPattern()
	if p == nil {
		return
	}
	for i := range e.voices {
		switch c := p[e.row][i]; c {
		case CellSustain:
		case CellOff:
			e.voices[i].note = 0
		default:
			e.voices[i] = chipVoice{note: uint8(c), freq: noteFreq(uint8(c))}
		}
	}
}

func (e *ChipEngine) currentPattern() *Pattern {
	if len(e.module.Orders) == 0 || int(e.order) >= len(e.module.Orders) {
		return nil
	}
	idx := int(e.module.Orders[e.order])
	if idx >= len(e.module.Patterns) {
		return nil
	}
	return &e.module.Patterns[idx]
}

// chipSample evaluates one waveform at phase in [0, 1).
func chipSample(w chipWave, phase float64) float32 {
	switch w {
	case chipPulse:
		if phase < 0.25 {
			return 1
		}
		return -1
	default: // triangle
		if phase < 0.5 {
			return float32(4*phase - 1)
		}
		return float32(3 - 4*phase)
	}
}

// noteFreq converts a MIDI note number to Hz (A4 = 69 = 440 Hz).
func noteFreq(note uint8) float64 {
	if note == 0 {
		return 0
	}
	return 440 * math.Pow(2, (float64(note)-69)/12)
}
