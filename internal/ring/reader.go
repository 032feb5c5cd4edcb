package ring

import (
	"encoding/binary"
	"math"
)

// Format is the wire sample format negotiated with the output backend.
// Conversion from the pipeline's float32 samples happens only here, at the
// hand-off to the hardware; mixing and generation always work in float32.
type Format int

const (
	FormatFloat32LE Format = iota
	FormatSigned16LE
	FormatUnsigned16LE
)

// BytesPerSample returns the encoded size of one sample.
func (f Format) BytesPerSample() int {
	if f == FormatFloat32LE {
		return 4
	}
	return 2
}

// Reader adapts a Buffer to the io.Reader the output backend pulls from.
// Read never blocks and never allocates after the first call: whatever the
// buffer cannot supply is filled with silence, so an underrun degrades to
// quiet output instead of a stall in the audio callback.
type Reader struct {
	buf    *Buffer
	format Format
	tmp    []float32
	wake   func()
}

// NewReader creates a reader in the given format. wake, if non-nil, is
// invoked after each pop so the generation thread can be nudged to refill;
// it must be non-blocking.
func NewReader(buf *Buffer, format Format, wake func()) *Reader {
	return &Reader{buf: buf, format: format, wake: wake}
}

func (r *Reader) Read(p []byte) (int, error) {
	bps := r.format.BytesPerSample()
	samples := len(p) / bps
	if samples == 0 {
		return 0, nil
	}

	if cap(r.tmp) < samples {
		r.tmp = make([]float32, samples)
	}
	r.tmp = r.tmp[:samples]

	popped := r.buf.Pop(r.tmp)
	for i := popped; i < samples; i++ {
		r.tmp[i] = 0
	}
	if r.wake != nil {
		r.wake()
	}

	switch r.format {
	case FormatFloat32LE:
		for i, s := range r.tmp {
			binary.LittleEndian.PutUint32(p[i*4:], math.Float32bits(s))
		}
	case FormatSigned16LE:
		for i, s := range r.tmp {
			binary.LittleEndian.PutUint16(p[i*2:], uint16(clampS16(s)))
		}
	case FormatUnsigned16LE:
		for i, s := range r.tmp {
			binary.LittleEndian.PutUint16(p[i*2:], clampU16(s))
		}
	}
	return samples * bps, nil
}

func clampS16(s float32) int16 {
	v := s * 32767
	if v > 32767 {
		v = 32767
	}
	if v < -32768 {
		v = -32768
	}
	return int16(v)
}

// clampU16 biases the signed sample into unsigned range; 0x8000 is silence.
func clampU16(s float32) uint16 {
	v := s*32767 + 32768
	if v > 65535 {
		v = 65535
	}
	if v < 0 {
		v = 0
	}
	return uint16(v)
}
