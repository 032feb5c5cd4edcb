package device

import (
	"fmt"
	"io"

	"github.com/ebitengine/oto/v3"

	"github.com/cbegin/rollmix-go/internal/ring"
)

// Oto plays through an oto/v3 context directly, skipping the ebiten layer.
// Useful for headless hosts and for negotiating a non-float wire format.
type Oto struct {
	sampleRate int
	player     *oto.Player
}

// NewOto opens an oto context for the given wire format and starts
// playback. src must encode samples in that format.
func NewOto(sampleRate int, format ring.Format, src io.Reader) (*Oto, error) {
	var otoFormat oto.Format
	switch format {
	case ring.FormatFloat32LE:
		otoFormat = oto.FormatFloat32LE
	case ring.FormatSigned16LE:
		otoFormat = oto.FormatSignedInt16LE
	default:
		return nil, fmt.Errorf("oto backend does not support format %d", format)
	}

	ctx, ready, err := oto.NewContext(&oto.NewContextOptions{
		SampleRate:   sampleRate,
		ChannelCount: 2,
		Format:       otoFormat,
	})
	if err != nil {
		return nil, err
	}
	<-ready

	player := ctx.NewPlayer(src)
	player.Play()
	return &Oto{sampleRate: sampleRate, player: player}, nil
}

func (o *Oto) SampleRate() int { return o.sampleRate }

func (o *Oto) Close() error {
	return o.player.Close()
}
