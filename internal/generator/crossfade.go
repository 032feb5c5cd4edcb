package generator

// crossfade is a small state machine hiding discontinuities: inactive, or
// active with the anchor sample pair and the number of ramp frames left.
// At most one crossfade is in flight; arming while active re-anchors and
// restarts the ramp, always from the last sample that actually reached the
// output.
type crossfade struct {
	active    bool
	anchor    [2]float32
	length    int
	remaining int
}

// arm starts (or restarts) a ramp from the given anchor sample.
func (f *crossfade) arm(anchor [2]float32, frames int) {
	f.active = true
	f.anchor = anchor
	f.length = frames
	f.remaining = frames
}

// apply blends the leading stereo frames of buf toward the anchor with a
// linear ramp: frame i becomes anchor*(1-t) + buf[i]*t for t = i/length.
// The ramp may span several buffers; the fade deactivates once it has
// consumed length frames.
func (f *crossfade) apply(buf []float32) {
	if !f.active {
		return
	}
	frames := len(buf) / 2
	if frames == 0 {
		return
	}
	if frames > f.remaining {
		frames = f.remaining
	}

	consumed := f.length - f.remaining
	for i := 0; i < frames; i++ {
		t := float32(consumed+i) / float32(f.length)
		buf[i*2] = f.anchor[0]*(1-t) + buf[i*2]*t
		buf[i*2+1] = f.anchor[1]*(1-t) + buf[i*2+1]*t
	}

	f.remaining -= frames
	if f.remaining <= 0 {
		f.active = false
	}
}
