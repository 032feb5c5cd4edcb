// Package device opens the platform audio output and pulls encoded samples
// from an io.Reader at the hardware's own cadence. Callers always receive
// a usable Backend: when no device is available the pipeline degrades to
// the silent Null backend instead of failing startup.
package device

import (
	"io"
	"time"
)

// DefaultSampleRate is assumed when no device negotiates a rate, keeping
// downstream timing math valid even without audio hardware.
const DefaultSampleRate = 44100

// Backend is a running audio output. Close must be bounded-time and safe
// to call more than once.
type Backend interface {
	SampleRate() int
	Close() error
}

// Null is the silent backend. It consumes src at real-time rate and
// discards the bytes, so the generation side of the pipeline behaves
// exactly as it would with a real device.
type Null struct {
	sampleRate int
	stop       chan struct{}
	done       chan struct{}
}

// NewNull starts a silent backend draining src. bytesPerSample describes
// src's encoding so the drain rate matches real time.
func NewNull(sampleRate int, bytesPerSample int, src io.Reader) *Null {
	n := &Null{
		sampleRate: sampleRate,
		stop:       make(chan struct{}),
		done:       make(chan struct{}),
	}
	go n.drain(bytesPerSample, src)
	return n
}

func (n *Null) drain(bytesPerSample int, src io.Reader) {
	defer close(n.done)

	const interval = 10 * time.Millisecond
	chunk := make([]byte, n.sampleRate/100*2*bytesPerSample)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-n.stop:
			return
		case <-ticker.C:
			if _, err := io.ReadFull(src, chunk); err != nil {
				return
			}
		}
	}
}

func (n *Null) SampleRate() int { return n.sampleRate }

func (n *Null) Close() error {
	select {
	case <-n.stop:
	default:
		close(n.stop)
	}
	<-n.done
	return nil
}
