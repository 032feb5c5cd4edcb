// Package mixer turns one tick's playback state into interleaved stereo
// samples. Mixing is deterministic given the same state and sound table,
// but uses floating point, so it is not bit-identical across CPUs.
package mixer

import (
	"log"

	"github.com/cbegin/rollmix-go/internal/bank"
	"github.com/cbegin/rollmix-go/internal/state"
	"github.com/cbegin/rollmix-go/internal/tracker"
)

// SamplesPerTick returns the number of stereo frames one tick produces.
func SamplesPerTick(tickRate, sampleRate int) int {
	return sampleRate / tickRate
}

// resampleStep returns the per-output-sample position advance in 24.8
// fixed point. Both GenerateFrame and AdvancePositions derive their motion
// from this one value so their final positions agree exactly.
func resampleStep(sampleRate int) uint32 {
	return uint32(float32(bank.SourceSampleRate) / float32(sampleRate) * state.FracOne)
}

// GenerateFrame mixes one tick's worth of audio into out and returns the
// extended slice. Channel positions in audio (and the tracker engine, when
// active) are advanced by exactly one tick, so repeated calls stream
// playback forward. out is appended to; pass out[:0] to reuse a buffer.
func GenerateFrame(audio *state.AudioPlaybackState, trk *state.TrackerState, eng tracker.Engine, sounds *bank.Table, tickRate, sampleRate int, out []float32) []float32 {
	frames := SamplesPerTick(tickRate, sampleRate)
	step := resampleStep(sampleRate)

	trackerActive := trk.Active()
	if trackerActive {
		eng.SyncToState(trk, sounds)
	}

	for i := 0; i < frames; i++ {
		var left, right float32

		for c := range audio.Channels {
			ch := &audio.Channels[c]
			if ch.Sound == 0 {
				continue
			}
			sample, ok := mixChannel(ch, sounds, step)
			if !ok {
				continue
			}
			lg, rg := panGains(ch.Pan)
			scaled := sample * ch.Volume
			left += scaled * lg
			right += scaled * rg
		}

		// Tracker music and PCM music are mutually exclusive.
		if trackerActive {
			tl, tr := eng.RenderSample(trk, sounds, sampleRate)
			left += tl
			right += tr
		} else if audio.Music.Sound != 0 {
			if sample, ok := mixChannel(&audio.Music, sounds, step); ok {
				// Music is centered: no pan law, equal into both sides.
				left += sample * audio.Music.Volume
				right += sample * audio.Music.Volume
			}
		}

		out = append(out, softClip(left), softClip(right))
	}
	return out
}

// AdvancePositions moves every active channel (and the tracker engine)
// forward by one tick without producing samples. The simulation thread uses
// this to keep its rollback state in step with the generation thread, which
// renders the audible samples from snapshots of the same state.
func AdvancePositions(audio *state.AudioPlaybackState, trk *state.TrackerState, eng tracker.Engine, sounds *bank.Table, tickRate, sampleRate int) {
	frames := SamplesPerTick(tickRate, sampleRate)
	step := resampleStep(sampleRate)

	trackerActive := trk.Active()
	if trackerActive {
		eng.SyncToState(trk, sounds)
	}

	for c := range audio.Channels {
		if audio.Channels[c].Sound != 0 {
			advanceChannel(&audio.Channels[c], sounds, step, frames)
		}
	}
	if !trackerActive && audio.Music.Sound != 0 {
		advanceChannel(&audio.Music, sounds, step, frames)
	}
	if trackerActive {
		eng.AdvancePositions(trk, sounds, frames, sampleRate)
	}
}

// mixChannel interpolates one output sample from ch and advances its
// position. Returns false when the channel contributed silence (ended,
// invalid handle, or empty sound). Callers must ensure ch.Sound != 0.
func mixChannel(ch *state.ChannelState, sounds *bank.Table, step uint32) (float32, bool) {
	sound := sounds.Lookup(ch.Sound)
	if sound == nil {
		warnBadHandle(ch.Sound, sounds.Len())
		ch.Clear()
		return 0, false
	}
	n := sound.Len()
	if n == 0 {
		return 0, false
	}

	idx, frac := ch.SamplePos()
	if idx >= n {
		if !ch.Looping {
			ch.Clear()
			return 0, false
		}
		ch.ResetPosition()
		idx, frac = 0, 0
	}

	// Linear interpolation between the two bracketing source samples.
	s1 := sound.At(idx)
	var s2 float32
	switch {
	case idx+1 < n:
		s2 = sound.At(idx + 1)
	case ch.Looping:
		s2 = sound.At(0)
	default:
		s2 = s1
	}
	sample := s1 + (s2-s1)*frac

	ch.AdvanceFixed(step)
	return sample, true
}

// advanceChannel is the sample-free twin of mixChannel: it applies the same
// per-sample fixed-point step frames times, with the same end-of-sound and
// loop handling, so both paths land on identical positions.
func advanceChannel(ch *state.ChannelState, sounds *bank.Table, step uint32, frames int) {
	sound := sounds.Lookup(ch.Sound)
	if sound == nil {
		ch.Clear()
		return
	}
	n := sound.Len()
	if n == 0 {
		return
	}

	endFixed := uint32(n) << state.FracBits
	for i := 0; i < frames; i++ {
		if ch.Position >= endFixed {
			if !ch.Looping {
				ch.Clear()
				return
			}
			ch.ResetPosition()
		}
		ch.AdvanceFixed(step)
	}
	// A non-looping sound that ran out exactly at the tick boundary is
	// cleared on the next tick, matching mixChannel's end check.
}

var badHandleLogs int

// warnBadHandle logs invalid sound handles, capped so a stuck handle in a
// 60 Hz state cannot flood the log.
func warnBadHandle(handle uint32, tableLen int) {
	badHandleLogs++
	if badHandleLogs <= 16 || badHandleLogs%1000 == 0 {
		log.Printf("mixer: invalid sound handle %d (table size %d), channel stopped", handle, tableLen)
	}
}
