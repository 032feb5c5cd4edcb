// Command rollback_demo drives the audio pipeline the way a netcode
// simulation would: a 60 Hz loop fires synthesized sounds, sends a playback
// snapshot every confirmed tick, and periodically rewinds a few ticks to
// exercise the rollback reconciliation and crossfade paths.
package main

import (
	"flag"
	"fmt"
	"log"
	"math"
	"math/rand"
	"os"
	"time"

	"github.com/cbegin/rollmix-go"
)

const tickRate = 60

func main() {
	var (
		backendName   = flag.String("backend", "ebiten", "output backend: ebiten|oto|null")
		sampleRate    = flag.Int("sample-rate", 44100, "output sample rate")
		seconds       = flag.Int("seconds", 10, "how long to run")
		rollbackEvery = flag.Int("rollback-every", 120, "ticks between simulated rollbacks (0 = never)")
		rollbackDepth = flag.Int("rollback-depth", 5, "ticks rewound per rollback")
		volume        = flag.Float64("volume", 1.0, "master volume scalar")
		music         = flag.Bool("music", true, "play the built-in chip module alongside the effects")
		wavPath       = flag.String("wav", "", "also render offline to a WAV file")
	)
	flag.Parse()

	backend, err := parseBackend(*backendName)
	if err != nil {
		log.Fatal(err)
	}

	table := rollmix.NewSoundTable()
	blip := table.Add(synthSine(880, 150*time.Millisecond))
	thud := table.Add(synthSine(110, 300*time.Millisecond))
	hiss := table.Add(synthNoise(200 * time.Millisecond))
	drone := table.Add(synthSine(220, time.Second))

	opts := []rollmix.Option{rollmix.WithBackend(backend), rollmix.WithSampleRate(*sampleRate)}
	if *music {
		// The generation actor gets its own engine instance; the
		// simulation keeps a twin and ships its serialized state in
		// every snapshot so rollbacks can restore it.
		opts = append(opts, rollmix.WithTrackerEngine(rollmix.NewChipEngine(rollmix.ChipDemoModule())))
	}
	out, err := rollmix.NewOutput(opts...)
	if err != nil {
		log.Fatal(err)
	}
	defer out.Close()
	out.SetMasterVolume(*volume)

	sim := newSimulation(table, *sampleRate, blip, thud, hiss, drone)
	if *music {
		sim.enableMusic()
	}

	if *wavPath != "" {
		if err := renderWAV(sim, *wavPath, *sampleRate, *seconds); err != nil {
			log.Fatal(err)
		}
		fmt.Printf("wrote %s\n", *wavPath)
	}

	ticker := time.NewTicker(time.Second / tickRate)
	defer ticker.Stop()

	total := *seconds * tickRate
	for tick := 0; tick < total; tick++ {
		<-ticker.C

		if *rollbackEvery > 0 && tick > 0 && tick%*rollbackEvery == 0 {
			sim.rollback(*rollbackDepth)
			fmt.Printf("tick %d: rolled back %d ticks\n", tick, *rollbackDepth)
		}

		sim.step()
		if !out.SendSnapshot(sim.snapshot()) {
			log.Printf("tick %d: snapshot dropped", tick)
		}
	}
	fmt.Println("done")
}

func parseBackend(name string) (rollmix.BackendKind, error) {
	switch name {
	case "ebiten":
		return rollmix.BackendEbiten, nil
	case "oto":
		return rollmix.BackendOto, nil
	case "null":
		return rollmix.BackendNull, nil
	default:
		return "", fmt.Errorf("invalid -backend %q (expected ebiten|oto|null)", name)
	}
}

// simulation is a toy deterministic game loop: a few timers trigger sounds,
// and the confirmed-state history is kept so a rollback can rewind and
// replay exactly as real netcode would.
type simulation struct {
	table      *rollmix.SoundTable
	sampleRate int
	rng        *rand.Rand

	blip, thud, hiss, drone uint32

	tick    int64
	audio   rollmix.AudioPlaybackState
	trk     rollmix.TrackerState
	engine  rollmix.TrackerEngine
	history []savedState
	rolled  bool
}

type savedState struct {
	tick   int64
	audio  rollmix.AudioPlaybackState
	trk    rollmix.TrackerState
	engine rollmix.EngineSnapshot
}

func newSimulation(table *rollmix.SoundTable, sampleRate int, blip, thud, hiss, drone uint32) *simulation {
	s := &simulation{
		table:      table,
		sampleRate: sampleRate,
		rng:        rand.New(rand.NewSource(1)),
		blip:       blip,
		thud:       thud,
		hiss:       hiss,
		drone:      drone,
	}
	s.audio.Music = rollmix.ChannelState{Sound: drone, Volume: 0.3, Looping: true}
	return s
}

// enableMusic swaps the looping PCM drone for the chip module. The tracker
// and the music channel are mutually exclusive in the mix, so the drone
// channel is cleared.
func (s *simulation) enableMusic() {
	s.engine = rollmix.NewChipEngine(rollmix.ChipDemoModule())
	s.audio.Music = rollmix.ChannelState{}
	s.trk = rollmix.TrackerState{
		Handle: 1,
		Volume: 0.6,
		Flags:  rollmix.TrackerPlaying,
		BPM:    125,
		Speed:  6,
	}
}

func (s *simulation) step() {
	s.save()
	s.tick++

	switch {
	case s.tick%30 == 0:
		s.trigger(s.blip, 0.8, float32(s.rng.Float64()*2-1))
	case s.tick%45 == 0:
		s.trigger(s.thud, 1.0, 0)
	case s.tick%97 == 0:
		s.trigger(s.hiss, 0.4, 0.5)
	}

	rollmix.AdvanceTicks(&s.audio, &s.trk, s.engine, s.table, tickRate, s.sampleRate, 1)
}

// trigger fires a sound on the first idle channel.
func (s *simulation) trigger(sound uint32, volume, pan float32) {
	for i := range s.audio.Channels {
		if s.audio.Channels[i].Sound == 0 {
			s.audio.Channels[i] = rollmix.ChannelState{Sound: sound, Volume: volume, Pan: pan}
			return
		}
	}
}

func (s *simulation) save() {
	saved := savedState{tick: s.tick, audio: s.audio, trk: s.trk}
	if s.engine != nil {
		saved.engine = s.engine.Snapshot()
	}
	s.history = append(s.history, saved)
	if len(s.history) > 32 {
		s.history = s.history[1:]
	}
}

// rollback rewinds depth ticks and replays them, as if a late remote input
// had invalidated the speculative frames.
func (s *simulation) rollback(depth int) {
	if depth >= len(s.history) {
		depth = len(s.history) - 1
	}
	if depth <= 0 {
		return
	}
	saved := s.history[len(s.history)-depth]
	s.history = s.history[:len(s.history)-depth]
	s.tick = saved.tick
	s.audio = saved.audio
	s.trk = saved.trk
	if s.engine != nil {
		s.engine.ApplySnapshot(saved.engine)
	}

	// Replay with the corrected timeline: fire an extra thud the
	// speculative run never had, then re-step to the present.
	s.trigger(s.thud, 1.0, -0.5)
	for i := 0; i < depth; i++ {
		s.step()
	}
	s.rolled = true
}

func (s *simulation) snapshot() rollmix.Snapshot {
	snap := rollmix.Snapshot{
		Audio:       s.audio,
		Tracker:     s.trk,
		Sounds:      s.table,
		FrameNumber: s.tick,
		TickRate:    tickRate,
		SampleRate:  s.sampleRate,
		IsRollback:  s.rolled,
	}
	if s.engine != nil {
		snap.EngineSnapshot = s.engine.Snapshot()
	}
	s.rolled = false
	return snap
}

func renderWAV(sim *simulation, path string, sampleRate, seconds int) error {
	audio := sim.audio
	trk := sim.trk
	var engine rollmix.TrackerEngine
	if sim.engine != nil {
		engine = rollmix.NewChipEngine(rollmix.ChipDemoModule())
	}
	samples := rollmix.RenderTicks(&audio, &trk, engine, sim.table, tickRate, sampleRate, seconds*tickRate)
	return os.WriteFile(path, rollmix.EncodeWAVFloat32LE(samples, sampleRate, 2), 0o644)
}

func synthSine(freq float64, d time.Duration) *rollmix.Sound {
	n := int(float64(rollmix.SourceSampleRate) * d.Seconds())
	pcm := make([]int16, n)
	for i := range pcm {
		env := 1 - float64(i)/float64(n)
		v := math.Sin(2*math.Pi*freq*float64(i)/rollmix.SourceSampleRate) * env
		pcm[i] = int16(v * 24000)
	}
	return rollmix.NewSound(pcm)
}

func synthNoise(d time.Duration) *rollmix.Sound {
	rng := rand.New(rand.NewSource(7))
	n := int(float64(rollmix.SourceSampleRate) * d.Seconds())
	pcm := make([]int16, n)
	for i := range pcm {
		env := 1 - float64(i)/float64(n)
		pcm[i] = int16((rng.Float64()*2 - 1) * env * 12000)
	}
	return rollmix.NewSound(pcm)
}
