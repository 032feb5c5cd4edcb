// Package bank holds decoded sound data: immutable mono PCM16 buffers
// indexed by handle. A Table is built once at load time and then shared
// read-only across the simulation and audio-generation threads.
package bank

// SourceSampleRate is the fixed rate of all stored sounds.
const SourceSampleRate = 22050

// Sound is an immutable mono PCM16 buffer at SourceSampleRate.
type Sound struct {
	data []int16
}

// NewSound copies pcm into an immutable Sound.
func NewSound(pcm []int16) *Sound {
	data := make([]int16, len(pcm))
	copy(data, pcm)
	return &Sound{data: data}
}

// Len returns the number of source samples.
func (s *Sound) Len() int { return len(s.data) }

// At returns the source sample at index i as a float in [-1, 1).
func (s *Sound) At(i int) float32 {
	return float32(s.data[i]) / 32768.0
}

// Table is a handle-indexed collection of sounds. Handle 0 is reserved to
// mean "no sound". Add all sounds before sharing the table with other
// threads; a shared table must not be mutated.
type Table struct {
	sounds []*Sound
}

// NewTable returns an empty table with handle 0 reserved.
func NewTable() *Table {
	return &Table{sounds: []*Sound{nil}}
}

// Add stores a sound and returns its handle.
func (t *Table) Add(s *Sound) uint32 {
	t.sounds = append(t.sounds, s)
	return uint32(len(t.sounds) - 1)
}

// Lookup returns the sound for a handle, or nil if the handle is 0,
// out of range, or has no data.
func (t *Table) Lookup(handle uint32) *Sound {
	if handle == 0 || int(handle) >= len(t.sounds) {
		return nil
	}
	return t.sounds[handle]
}

// Len returns the number of slots including the reserved handle 0.
func (t *Table) Len() int { return len(t.sounds) }
