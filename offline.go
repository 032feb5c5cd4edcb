package rollmix

import (
	"encoding/binary"
	"math"

	"github.com/cbegin/rollmix-go/internal/mixer"
	"github.com/cbegin/rollmix-go/internal/tracker"
)

// RenderTicks mixes the given playback state forward by ticks simulation
// ticks without any device, returning interleaved stereo float32 samples.
// audio and trk are mutated (positions advance) exactly as they would in
// the live pipeline; pass engine nil for no tracker music.
func RenderTicks(audio *AudioPlaybackState, trk *TrackerState, engine TrackerEngine, sounds *SoundTable, tickRate, sampleRate, ticks int) []float32 {
	if engine == nil {
		engine = tracker.NullEngine{}
	}
	perTick := mixer.SamplesPerTick(tickRate, sampleRate) * 2
	out := make([]float32, 0, perTick*ticks)
	for i := 0; i < ticks; i++ {
		out = mixer.GenerateFrame(audio, trk, engine, sounds, tickRate, sampleRate, out)
	}
	return out
}

// AdvanceTicks moves playback positions forward by ticks simulation ticks
// without producing samples. The simulation side uses this to stay in step
// with the generation actor when the actor renders the audible output.
func AdvanceTicks(audio *AudioPlaybackState, trk *TrackerState, engine TrackerEngine, sounds *SoundTable, tickRate, sampleRate, ticks int) {
	if engine == nil {
		engine = tracker.NullEngine{}
	}
	for i := 0; i < ticks; i++ {
		mixer.AdvancePositions(audio, trk, engine, sounds, tickRate, sampleRate)
	}
}

// EncodeWAVFloat32LE wraps interleaved float32 samples in a WAV container.
func EncodeWAVFloat32LE(samples []float32, sampleRate int, channels int) []byte {
	dataSize := len(samples) * 4
	byteRate := sampleRate * channels * 4
	blockAlign := channels * 4
	chunkSize := 36 + dataSize
	out := make([]byte, 44+dataSize)
	copy(out[0:], []byte("RIFF"))
	binary.LittleEndian.PutUint32(out[4:], uint32(chunkSize))
	copy(out[8:], []byte("WAVE"))
	copy(out[12:], []byte("fmt "))
	binary.LittleEndian.PutUint32(out[16:], 16)
	binary.LittleEndian.PutUint16(out[20:], 3)
	binary.LittleEndian.PutUint16(out[22:], uint16(channels))
	binary.LittleEndian.PutUint32(out[24:], uint32(sampleRate))
	binary.LittleEndian.PutUint32(out[28:], uint32(byteRate))
	binary.LittleEndian.PutUint16(out[32:], uint16(blockAlign))
	binary.LittleEndian.PutUint16(out[34:], 32)
	copy(out[36:], []byte("data"))
	binary.LittleEndian.PutUint32(out[40:], uint32(dataSize))
	for i, s := range samples {
		binary.LittleEndian.PutUint32(out[44+i*4:], math.Float32bits(s))
	}
	return out
}
