package generator

import (
	"log"
	"time"

	"github.com/cbegin/rollmix-go/internal/ring"
)

// metricsLogInterval spaces out the periodic health line.
const metricsLogInterval = 30 * time.Second

// discontinuityThreshold is the sample jump at a frame boundary considered
// an audible pop.
const discontinuityThreshold = 0.3

// metrics tracks pipeline health. Owned by the actor goroutine; nothing
// here is synchronized.
type metrics struct {
	snapshotsReceived uint64
	snapshotsDropped  uint64
	rollbacks         uint64
	framesGenerated   uint64
	samplesDropped    uint64
	discontinuities   uint64
	minFill           int
	lastLog           time.Time
}

// checkContinuity compares the first samples of the new frame against the
// last emitted pair. A large jump here is exactly where a pop would be
// heard; it means a reconciliation or rollback slipped past the crossfade.
func (m *metrics) checkContinuity(prev [2]float32, buf []float32) {
	if len(buf) < 2 {
		return
	}
	jumpL := abs32(buf[0] - prev[0])
	jumpR := abs32(buf[1] - prev[1])
	if jumpL > discontinuityThreshold || jumpR > discontinuityThreshold {
		m.discontinuities++
		if m.discontinuities <= 10 || m.discontinuities%100 == 0 {
			log.Printf("generator: discontinuity at frame boundary: L %.3f->%.3f, R %.3f->%.3f",
				prev[0], buf[0], prev[1], buf[1])
		}
	}
}

// observe records buffer fill and emits the periodic summary line.
func (m *metrics) observe(out *ring.Buffer) {
	fill := out.Len()
	if fill < m.minFill || m.framesGenerated == 0 {
		m.minFill = fill
	}
	if m.lastLog.IsZero() {
		m.lastLog = time.Now()
		return
	}
	if time.Since(m.lastLog) < metricsLogInterval {
		return
	}
	m.lastLog = time.Now()
	log.Printf("generator: frames=%d snapshots=%d (dropped %d) rollbacks=%d sampleDrops=%d discontinuities=%d minFill=%d",
		m.framesGenerated, m.snapshotsReceived, m.snapshotsDropped, m.rollbacks,
		m.samplesDropped, m.discontinuities, m.minFill)
	m.minFill = fill
}

func abs32(x float32) float32 {
	if x < 0 {
		return -x
	}
	return x
}
