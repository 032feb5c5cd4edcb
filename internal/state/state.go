// Package state defines the plain-data playback state shared between the
// simulation and the audio generator: per-channel sound assignments, a
// dedicated music channel, and the tracker-module position descriptor.
package state

// NumChannels is the number of polyphony voices available to sound effects.
const NumChannels = 16

// Fixed-point layout of ChannelState.Position: 24 integer bits for the
// source-sample index and 8 fractional bits for sub-sample tracking.
const (
	FracBits = 8
	FracOne  = 1 << FracBits
)

// ChannelState describes one playback voice. Sound handle 0 means the
// channel is silent and Position carries no meaning.
type ChannelState struct {
	Sound    uint32
	Position uint32 // 24.8 fixed-point source-sample index
	Volume   float32
	Pan      float32
	Looping  bool
}

// SamplePos splits the fixed-point position into an integer source index
// and a fractional remainder in [0, 1).
func (c *ChannelState) SamplePos() (int, float32) {
	return int(c.Position >> FracBits), float32(c.Position&(FracOne-1)) / FracOne
}

// SetSamplePos stores a floating-point source-sample position.
func (c *ChannelState) SetSamplePos(pos float32) {
	if pos < 0 {
		pos = 0
	}
	c.Position = uint32(pos * FracOne)
}

// AdvanceFixed moves the position forward by a pre-scaled fixed-point delta.
func (c *ChannelState) AdvanceFixed(delta uint32) {
	c.Position += delta
}

// ResetPosition rewinds the channel to the start of its sound.
func (c *ChannelState) ResetPosition() {
	c.Position = 0
}

// Clear silences the channel.
func (c *ChannelState) Clear() {
	c.Sound = 0
	c.Position = 0
	c.Looping = false
}

// AudioPlaybackState is the full declarative description of what should be
// audible on one simulation tick: all SFX voices plus the music channel.
// The music channel mixes centered regardless of its Pan field.
type AudioPlaybackState struct {
	Channels [NumChannels]ChannelState
	Music    ChannelState
}

// Tracker flag bits.
const (
	TrackerPlaying uint32 = 1 << 0
	TrackerPaused  uint32 = 1 << 1
)

// TrackerState is the per-tick descriptor of music-module playback. Handle 0
// means no module is loaded. OrderPos, Row and Tick belong to whichever
// tracker engine is advancing playback; the reconciliation protocol never
// merges them across actors.
type TrackerState struct {
	Handle   uint32
	Volume   float32
	Flags    uint32
	BPM      uint32
	Speed    uint32
	OrderPos uint32
	Row      uint32
	Tick     uint32
}

// Active reports whether the tracker should be producing audio.
func (t *TrackerState) Active() bool {
	return t.Handle != 0 && t.Flags&TrackerPlaying != 0 && t.Flags&TrackerPaused == 0
}
