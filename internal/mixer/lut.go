package mixer

// 17-point quarter-cosine table for equal-power panning: cos(i*pi/32) for
// i = 0..16, scaled to 0-255. The sine curve is the same table read
// backwards.
var panCosLUT = [17]uint8{
	255, 254, 251, 245, 237, 226, 213, 198, 181, 162, 142, 121, 98, 75, 51, 26, 0,
}

// panGains maps pan in [-1, 1] to equal-power left/right gains. Center pan
// yields about 0.707 on each side so perceived loudness is constant across
// the stereo field.
func panGains(pan float32) (left, right float32) {
	pos := (pan + 1) * 8
	idx := int(pos)
	if idx > 15 {
		idx = 15
	}
	if idx < 0 {
		idx = 0
	}
	frac := pos - float32(idx)

	cosVal := float32(panCosLUT[idx])*(1-frac) + float32(panCosLUT[idx+1])*frac
	sinVal := float32(panCosLUT[16-idx])*(1-frac) + float32(panCosLUT[15-idx])*frac
	return cosVal / 255, sinVal / 255
}

// tanh(t) for t = 0.00, 0.25, ..., 7.00. Used to soft-clip without calling
// math.Tanh per sample.
var tanhLUT = [29]float32{
	0.0,
	0.244919,
	0.462117,
	0.635149,
	0.761594,
	0.848284,
	0.905148,
	0.941389,
	0.964028,
	0.978034,
	0.986614,
	0.991815,
	0.995055,
	0.997109,
	0.998396,
	0.999198,
	0.999665,
	0.999892,
	0.999988,
	0.999998,
	1.0,
	1.0, 1.0, 1.0, 1.0, 1.0, 1.0, 1.0, 1.0,
}

// softClip passes values inside [-1, 1] through unchanged and compresses
// anything outside via sign(x) * (1 + tanh(|x|-1)), bounding the output
// near +/-2 instead of hard-clipping.
func softClip(x float32) float32 {
	abs := x
	sign := float32(1)
	if x < 0 {
		abs = -x
		sign = -1
	}
	if abs <= 1 {
		return x
	}

	t := abs - 1
	if t > 7 {
		t = 7
	}
	pos := t * 4
	idx := int(pos)
	if idx > 27 {
		idx = 27
	}
	frac := pos - float32(idx)
	tanhVal := tanhLUT[idx]*(1-frac) + tanhLUT[idx+1]*frac

	return sign * (1 + tanhVal)
}
