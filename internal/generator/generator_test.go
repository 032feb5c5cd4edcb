package generator

import (
	"testing"
	"time"

	"github.com/cbegin/rollmix-go/internal/bank"
	"github.com/cbegin/rollmix-go/internal/ring"
	"github.com/cbegin/rollmix-go/internal/state"
	"github.com/cbegin/rollmix-go/internal/tracker"
)

// recordingEngine counts snapshot loads so tests can observe when the
// reconciliation protocol reloads the opaque engine state.
type recordingEngine struct {
	tracker.NullEngine
	applied []tracker.EngineSnapshot
}

func (e *recordingEngine) ApplySnapshot(s tracker.EngineSnapshot) {
	e.applied = append(e.applied, s)
}

func newTestGenerator() (*Generator, *recordingEngine) {
	eng := &recordingEngine{}
	g := New(ring.New(ring.CapacityFor(44100)), eng, 44100, 0)
	return g, eng
}

func testTable(t *testing.T) (*bank.Table, uint32) {
	t.Helper()
	pcm := make([]int16, 22050)
	for i := range pcm {
		pcm[i] = int16(i % 500 * 60)
	}
	tbl := bank.NewTable()
	return tbl, tbl.Add(bank.NewSound(pcm))
}

func baseSnapshot(tbl *bank.Table) Snapshot {
	return Snapshot{
		Sounds:     tbl,
		TickRate:   60,
		SampleRate: 44100,
	}
}

func TestFirstSnapshotInitializesWithoutCrossfade(t *testing.T) {
	g, _ := newTestGenerator()
	tbl, h := testTable(t)

	s := baseSnapshot(tbl)
	s.Audio.Channels[0] = state.ChannelState{Sound: h, Volume: 1}
	g.handleSnapshot(s)

	if !g.hasState {
		t.Fatal("first snapshot should initialize the mirror")
	}
	if g.genAudio.Channels[0].Sound != h {
		t.Fatal("mirror should adopt the first snapshot verbatim")
	}
	if g.fade.active {
		t.Fatal("first snapshot must not arm a crossfade")
	}
}

func TestFreshTriggerAdoptsChannelAtPositionZero(t *testing.T) {
	g, _ := newTestGenerator()
	tbl, h := testTable(t)
	g.handleSnapshot(baseSnapshot(tbl))

	s := baseSnapshot(tbl)
	s.Audio.Channels[3] = state.ChannelState{Sound: h, Volume: 0.9, Pan: 0.5}
	g.handleSnapshot(s)

	ch := g.genAudio.Channels[3]
	if ch.Sound != h || ch.Position != 0 {
		t.Fatalf("channel = %+v, want sound %d at position 0", ch, h)
	}
	if g.fade.active {
		t.Fatal("starting from silence must not crossfade")
	}
}

func TestSoundReplacementArmsCrossfadeAtLastEmitted(t *testing.T) {
	g, _ := newTestGenerator()
	tbl, h := testTable(t)
	h2 := tbl.Add(bank.NewSound(make([]int16, 1000)))

	s := baseSnapshot(tbl)
	s.Audio.Channels[0] = state.ChannelState{Sound: h, Volume: 1}
	g.handleSnapshot(s)
	g.lastEmitted = [2]float32{0.6, -0.4}

	s.Audio.Channels[0] = state.ChannelState{Sound: h2, Volume: 1, Position: 77}
	g.handleSnapshot(s)

	if g.genAudio.Channels[0].Sound != h2 {
		t.Fatal("replacement sound should be adopted")
	}
	if g.genAudio.Channels[0].Position != 77 {
		t.Fatal("replacement adopts the snapshot position verbatim")
	}
	if !g.fade.active {
		t.Fatal("replacing an audible sound must arm a crossfade")
	}
	if g.fade.anchor != [2]float32{0.6, -0.4} {
		t.Fatalf("crossfade anchor = %v, want last emitted pair", g.fade.anchor)
	}
}

func TestStoppedChannelClearsImmediately(t *testing.T) {
	g, _ := newTestGenerator()
	tbl, h := testTable(t)

	s := baseSnapshot(tbl)
	s.Audio.Channels[0] = state.ChannelState{Sound: h, Volume: 1}
	g.handleSnapshot(s)
	g.lastEmitted = [2]float32{0.9, 0.9}

	g.handleSnapshot(baseSnapshot(tbl))

	if g.genAudio.Channels[0].Sound != 0 {
		t.Fatal("snapshot-silent channel should clear the mirror")
	}
	if g.fade.active {
		t.Fatal("stopping a channel does not crossfade")
	}
}

func TestContinuingChannelKeepsLocalPosition(t *testing.T) {
	g, _ := newTestGenerator()
	tbl, h := testTable(t)

	s := baseSnapshot(tbl)
	s.Audio.Channels[0] = state.ChannelState{Sound: h, Volume: 1}
	g.handleSnapshot(s)

	// The mirror has generated ahead of the simulation.
	g.genAudio.Channels[0].Position = 9000 << state.FracBits

	s.Audio.Channels[0] = state.ChannelState{
		Sound:    h,
		Position: 4000 << state.FracBits, // simulation lags behind
		Volume:   0.3,
		Pan:      -0.8,
	}
	g.handleSnapshot(s)

	ch := g.genAudio.Channels[0]
	if ch.Position != 9000<<state.FracBits {
		t.Fatalf("position = %d, snapshot must never drag it back", ch.Position)
	}
	if ch.Volume != 0.3 || ch.Pan != -0.8 {
		t.Fatalf("volume/pan = (%v, %v), want snapshot values (0.3, -0.8)", ch.Volume, ch.Pan)
	}
}

func TestRollbackOverwritesMirrorAndArmsCrossfade(t *testing.T) {
	g, eng := newTestGenerator()
	tbl, h := testTable(t)

	s := baseSnapshot(tbl)
	s.Audio.Channels[0] = state.ChannelState{Sound: h, Volume: 1}
	g.handleSnapshot(s)
	g.genAudio.Channels[0].Position = 8000 << state.FracBits
	g.lastEmitted = [2]float32{0.2, 0.1}

	rb := baseSnapshot(tbl)
	rb.IsRollback = true
	rb.Audio.Channels[0] = state.ChannelState{Sound: h, Position: 1000 << state.FracBits, Volume: 1}
	rb.Tracker = state.TrackerState{Handle: 5, Volume: 0.7, Flags: state.TrackerPlaying}
	rb.EngineSnapshot = tracker.EngineSnapshot{1, 2, 3}
	g.handleSnapshot(rb)

	if got := g.genAudio.Channels[0].Position; got != 1000<<state.FracBits {
		t.Fatalf("position = %d, rollback must adopt the snapshot wholesale", got)
	}
	if g.genTracker.Handle != 5 {
		t.Fatal("rollback must overwrite the tracker mirror")
	}
	if len(eng.applied) != 2 { // first snapshot + rollback
		t.Fatalf("engine snapshot applied %d times, want 2", len(eng.applied))
	}
	if !g.fade.active || g.fade.anchor != [2]float32{0.2, 0.1} {
		t.Fatalf("crossfade = %+v, want active and anchored at last emitted", g.fade)
	}
}

func TestRollbackDrainsStaleSnapshots(t *testing.T) {
	g, _ := newTestGenerator()
	tbl, _ := testTable(t)
	g.handleSnapshot(baseSnapshot(tbl))

	// Queue snapshots that predate the rollback.
	g.snapshots <- baseSnapshot(tbl)
	g.snapshots <- baseSnapshot(tbl)

	rb := baseSnapshot(tbl)
	rb.IsRollback = true
	g.handleSnapshot(rb)

	if n := len(g.snapshots); n != 0 {
		t.Fatalf("%d stale snapshots left after rollback, want 0", n)
	}
}

func TestTrackerContinuingMergesControllableSubset(t *testing.T) {
	g, eng := newTestGenerator()
	tbl, _ := testTable(t)

	s := baseSnapshot(tbl)
	s.Tracker = state.TrackerState{Handle: 2, Volume: 1, Flags: state.TrackerPlaying, BPM: 125, Speed: 6}
	g.handleSnapshot(s)

	// The mirror's engine has advanced beyond the simulation's descriptor.
	g.genTracker.OrderPos = 4
	g.genTracker.Row = 31
	g.genTracker.Tick = 2

	s.Tracker = state.TrackerState{
		Handle: 2, Volume: 0.5, Flags: state.TrackerPlaying, BPM: 140, Speed: 3,
		OrderPos: 1, Row: 7, Tick: 0,
	}
	g.handleSnapshot(s)

	trk := g.genTracker
	if trk.Volume != 0.5 || trk.BPM != 140 || trk.Speed != 3 {
		t.Fatalf("controllable fields not merged: %+v", trk)
	}
	if trk.OrderPos != 4 || trk.Row != 31 || trk.Tick != 2 {
		t.Fatalf("sequencing fields must stay with the engine, got %+v", trk)
	}
	if len(eng.applied) != 1 {
		t.Fatalf("continuing module reloaded the engine %d extra times", len(eng.applied)-1)
	}
}

func TestTrackerModuleChangeReloadsEngineWithCrossfade(t *testing.T) {
	g, eng := newTestGenerator()
	tbl, _ := testTable(t)

	s := baseSnapshot(tbl)
	s.Tracker = state.TrackerState{Handle: 2, Flags: state.TrackerPlaying, Volume: 1}
	g.handleSnapshot(s)
	g.lastEmitted = [2]float32{0.5, 0.5}

	s.Tracker = state.TrackerState{Handle: 3, Flags: state.TrackerPlaying, Volume: 1}
	s.EngineSnapshot = tracker.EngineSnapshot{9}
	g.handleSnapshot(s)

	if g.genTracker.Handle != 3 {
		t.Fatal("module change should adopt the new handle")
	}
	if len(eng.applied) != 2 {
		t.Fatalf("engine snapshot applied %d times, want reload on module change", len(eng.applied))
	}
	if !g.fade.active {
		t.Fatal("replacing a playing module must arm a crossfade")
	}
}

func TestTrackerStopClearsHandle(t *testing.T) {
	g, _ := newTestGenerator()
	tbl, _ := testTable(t)

	s := baseSnapshot(tbl)
	s.Tracker = state.TrackerState{Handle: 2, Flags: state.TrackerPlaying, Volume: 1}
	g.handleSnapshot(s)

	g.handleSnapshot(baseSnapshot(tbl))

	if g.genTracker.Handle != 0 || g.genTracker.Flags != 0 {
		t.Fatalf("tracker mirror = %+v, want stopped", g.genTracker)
	}
	if g.fade.active {
		t.Fatal("stopping the tracker does not crossfade")
	}
}

func TestSpawnedGeneratorFillsRingFromSnapshot(t *testing.T) {
	tbl, h := testTable(t)
	out := ring.New(ring.CapacityFor(44100))
	g := New(out, tracker.NullEngine{}, 44100, 0)
	g.Start()
	defer g.Close()

	s := baseSnapshot(tbl)
	s.Audio.Channels[0] = state.ChannelState{Sound: h, Volume: 1, Looping: true}
	if !g.SendSnapshot(s) {
		t.Fatal("snapshot should be accepted by an empty queue")
	}

	deadline := time.Now().Add(500 * time.Millisecond)
	for out.Len() < 735*2 {
		if time.Now().After(deadline) {
			t.Fatalf("ring holds %d samples, want at least %d", out.Len(), 735*2)
		}
		time.Sleep(time.Millisecond)
	}
}

func TestGeneratorPrimesSilenceBeforeFirstSnapshot(t *testing.T) {
	out := ring.New(ring.CapacityFor(44100))
	g := New(out, tracker.NullEngine{}, 44100, 0)
	g.Start()
	defer g.Close()

	deadline := time.Now().Add(500 * time.Millisecond)
	for out.Len() < 735*2 {
		if time.Now().After(deadline) {
			t.Fatal("generator should prime the ring with silence")
		}
		time.Sleep(time.Millisecond)
	}

	buf := make([]float32, 735*2)
	out.Pop(buf)
	for i, v := range buf {
		if v != 0 {
			t.Fatalf("pre-state sample %d = %v, want silence", i, v)
		}
	}
}

func TestCloseCompletesWithinOneSecond(t *testing.T) {
	out := ring.New(ring.CapacityFor(44100))
	g := New(out, tracker.NullEngine{}, 44100, 0)
	g.Start()

	start := time.Now()
	if err := g.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if elapsed := time.Since(start); elapsed > time.Second {
		t.Fatalf("close took %v, want under 1s", elapsed)
	}
}

func TestSnapshotQueueDropsWhenFull(t *testing.T) {
	g, _ := newTestGenerator()
	tbl, _ := testTable(t)

	// Not started, so nothing drains the queue.
	for i := 0; i < snapshotQueueDepth; i++ {
		if !g.SendSnapshot(baseSnapshot(tbl)) {
			t.Fatalf("send %d should fit in the queue", i)
		}
	}
	if g.SendSnapshot(baseSnapshot(tbl)) {
		t.Fatal("send into a full queue must drop, not block")
	}
}

func TestMasterVolumeClamps(t *testing.T) {
	g, _ := newTestGenerator()
	g.SetMasterVolume(1.5)
	if got := g.MasterVolume(); got != 1 {
		t.Fatalf("master volume = %v, want clamp to 1", got)
	}
	g.SetMasterVolume(-0.5)
	if got := g.MasterVolume(); got != 0 {
		t.Fatalf("master volume = %v, want clamp to 0", got)
	}
}
