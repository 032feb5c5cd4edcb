package mixer

import (
	"math"
	"testing"

	"github.com/cbegin/rollmix-go/internal/bank"
	"github.com/cbegin/rollmix-go/internal/state"
	"github.com/cbegin/rollmix-go/internal/tracker"
)

// toneEngine renders a constant stereo level, enough to observe the
// tracker mixing path without a real module engine.
type toneEngine struct {
	level  float32
	synced int
}

func (e *toneEngine) ApplySnapshot(tracker.EngineSnapshot) {}
func (e *toneEngine) Snapshot() tracker.EngineSnapshot     { return nil }

func (e *toneEngine) SyncToState(*state.TrackerState, *bank.Table) { e.synced++ }

func (e *toneEngine) RenderSample(*state.TrackerState, *bank.Table, int) (float32, float32) {
	return e.level, e.level
}

func (e *toneEngine) AdvancePositions(*state.TrackerState, *bank.Table, int, int) {}

func rampTable(t *testing.T, n int) (*bank.Table, uint32) {
	t.Helper()
	pcm := make([]int16, n)
	for i := range pcm {
		pcm[i] = int16(i % 1000)
	}
	tbl := bank.NewTable()
	return tbl, tbl.Add(bank.NewSound(pcm))
}

func TestSilentStateProducesExactSilence(t *testing.T) {
	var audio state.AudioPlaybackState
	var trk state.TrackerState
	out := GenerateFrame(&audio, &trk, tracker.NullEngine{}, bank.NewTable(), 60, 44100, nil)
	if len(out) != 735*2 {
		t.Fatalf("generated %d samples, want %d", len(out), 735*2)
	}
	for i, s := range out {
		if s != 0 {
			t.Fatalf("sample %d = %v, want silence", i, s)
		}
	}
}

func TestGenerateFrameAdvancesPosition(t *testing.T) {
	tbl, h := rampTable(t, 22050)
	var audio state.AudioPlaybackState
	audio.Channels[0] = state.ChannelState{Sound: h, Volume: 1}
	var trk state.TrackerState

	GenerateFrame(&audio, &trk, tracker.NullEngine{}, tbl, 60, 44100, nil)

	// 735 output samples, each stepping 22050/44100 = 0.5 source samples:
	// exactly 128 fixed-point units per sample.
	want := uint32(735 * 128)
	if got := audio.Channels[0].Position; got != want {
		t.Fatalf("position = %d, want %d", got, want)
	}
}

func TestFinishedSoundClearsChannel(t *testing.T) {
	tbl, h := rampTable(t, 100)
	var audio state.AudioPlaybackState
	audio.Channels[0] = state.ChannelState{Sound: h, Volume: 1}
	var trk state.TrackerState

	GenerateFrame(&audio, &trk, tracker.NullEngine{}, tbl, 60, 44100, nil)

	if audio.Channels[0].Sound != 0 {
		t.Fatal("channel should be cleared once its sound runs out")
	}
}

func TestLoopingSoundWrapsInsteadOfStopping(t *testing.T) {
	tbl, h := rampTable(t, 100)
	var audio state.AudioPlaybackState
	audio.Channels[0] = state.ChannelState{Sound: h, Volume: 1, Looping: true}
	var trk state.TrackerState

	GenerateFrame(&audio, &trk, tracker.NullEngine{}, tbl, 60, 44100, nil)

	ch := audio.Channels[0]
	if ch.Sound != h {
		t.Fatal("looping channel must stay active")
	}
	if idx, _ := ch.SamplePos(); idx >= 100 {
		t.Fatalf("looping position %d should have wrapped below 100", idx)
	}
}

func TestInvalidHandleDeactivatesChannel(t *testing.T) {
	var audio state.AudioPlaybackState
	audio.Channels[0] = state.ChannelState{Sound: 42, Volume: 1}
	var trk state.TrackerState

	out := GenerateFrame(&audio, &trk, tracker.NullEngine{}, bank.NewTable(), 60, 44100, nil)

	if audio.Channels[0].Sound != 0 {
		t.Fatal("invalid handle should deactivate the channel")
	}
	for _, s := range out {
		if s != 0 {
			t.Fatal("invalid handle should contribute silence")
		}
	}
}

func TestMusicMixesCentered(t *testing.T) {
	pcm := make([]int16, 22050)
	for i := range pcm {
		pcm[i] = 16384
	}
	tbl := bank.NewTable()
	h := tbl.Add(bank.NewSound(pcm))

	var audio state.AudioPlaybackState
	audio.Music = state.ChannelState{Sound: h, Volume: 0.5, Pan: -1, Looping: true}
	var trk state.TrackerState

	out := GenerateFrame(&audio, &trk, tracker.NullEngine{}, tbl, 60, 44100, nil)

	// Music ignores pan entirely: both sides carry sample*volume.
	want := float32(16384) / 32768 * 0.5
	if math.Abs(float64(out[0]-want)) > 1e-4 || math.Abs(float64(out[1]-want)) > 1e-4 {
		t.Fatalf("music frame = (%v, %v), want (%v, %v)", out[0], out[1], want, want)
	}
}

func TestTrackerExcludesPCMMusic(t *testing.T) {
	pcm := make([]int16, 22050)
	for i := range pcm {
		pcm[i] = 16384
	}
	tbl := bank.NewTable()
	h := tbl.Add(bank.NewSound(pcm))

	var audio state.AudioPlaybackState
	audio.Music = state.ChannelState{Sound: h, Volume: 1, Looping: true}
	trk := state.TrackerState{Handle: 1, Flags: state.TrackerPlaying}
	eng := &toneEngine{level: 0.25}

	out := GenerateFrame(&audio, &trk, eng, tbl, 60, 44100, nil)

	if eng.synced != 1 {
		t.Fatalf("engine synced %d times, want 1", eng.synced)
	}
	// Only the tracker tone should be audible; PCM music is suppressed
	// while a module is playing.
	if math.Abs(float64(out[0]-0.25)) > 1e-4 {
		t.Fatalf("left = %v, want tracker tone 0.25", out[0])
	}
	if music := audio.Music.Position; music != 0 {
		t.Fatalf("music position advanced to %d while tracker active", music)
	}
}

func TestAdvancePositionsMatchesGenerateFrame(t *testing.T) {
	tbl, h := rampTable(t, 22050)

	var byMix, byAdvance state.AudioPlaybackState
	for _, s := range []*state.AudioPlaybackState{&byMix, &byAdvance} {
		s.Channels[0] = state.ChannelState{Sound: h, Volume: 0.8, Pan: 0.3, Looping: true}
		s.Music = state.ChannelState{Sound: h, Volume: 0.5}
		s.Music.Position = 5000 << state.FracBits
	}
	var trkMix, trkAdvance state.TrackerState

	for i := 0; i < 4; i++ {
		GenerateFrame(&byMix, &trkMix, tracker.NullEngine{}, tbl, 60, 44100, nil)
		AdvancePositions(&byAdvance, &trkAdvance, tracker.NullEngine{}, tbl, 60, 44100)
	}

	if byMix.Channels[0].Position != byAdvance.Channels[0].Position {
		t.Fatalf("channel position diverged: mix=%d advance=%d",
			byMix.Channels[0].Position, byAdvance.Channels[0].Position)
	}
	if byMix.Music.Position != byAdvance.Music.Position {
		t.Fatalf("music position diverged: mix=%d advance=%d",
			byMix.Music.Position, byAdvance.Music.Position)
	}
	if byMix.Music.Sound != byAdvance.Music.Sound {
		t.Fatal("music handle diverged between mix and advance paths")
	}
}

func TestAdvancePositionsClearsFinishedSound(t *testing.T) {
	tbl, h := rampTable(t, 100)
	var audio state.AudioPlaybackState
	audio.Channels[0] = state.ChannelState{Sound: h, Volume: 1}
	var trk state.TrackerState

	AdvancePositions(&audio, &trk, tracker.NullEngine{}, tbl, 60, 44100)

	if audio.Channels[0].Sound != 0 {
		t.Fatal("advance path should clear a finished sound like the mix path")
	}
}

func TestPanGainsEqualPower(t *testing.T) {
	l, r := panGains(0)
	if math.Abs(float64(l)-0.707) > 0.01 || math.Abs(float64(r)-0.707) > 0.01 {
		t.Fatalf("center gains = (%v, %v), want ~0.707 each", l, r)
	}

	l, r = panGains(-1)
	if math.Abs(float64(l)-1) > 0.01 || math.Abs(float64(r)) > 0.01 {
		t.Fatalf("full-left gains = (%v, %v)", l, r)
	}

	l, r = panGains(1)
	if math.Abs(float64(l)) > 0.01 || math.Abs(float64(r)-1) > 0.01 {
		t.Fatalf("full-right gains = (%v, %v)", l, r)
	}
}

func TestSoftClipPassesNormalRange(t *testing.T) {
	for _, x := range []float32{-1, -0.5, 0, 0.5, 1} {
		if got := softClip(x); got != x {
			t.Fatalf("softClip(%v) = %v, want unchanged", x, got)
		}
	}
}

func TestSoftClipCompressesOutOfRange(t *testing.T) {
	hi := softClip(2)
	if hi <= 1 || hi >= 2 {
		t.Fatalf("softClip(2) = %v, want in (1, 2)", hi)
	}
	lo := softClip(-2)
	if lo >= -1 || lo <= -2 {
		t.Fatalf("softClip(-2) = %v, want in (-2, -1)", lo)
	}
	if extreme := softClip(20); extreme >= 2 {
		t.Fatalf("softClip(20) = %v, want bounded below 2", extreme)
	}
}
