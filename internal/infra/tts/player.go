package tts

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/faiface/beep"
	"github.com/faiface/beep/mp3"
	"github.com/faiface/beep/speaker"
)

// Player plays mp3 audio on the default output device.
type Player struct {
	mu         sync.Mutex
	sampleRate beep.SampleRate
}

func NewPlayer() *Player {
	return &Player{}
}

// Play decodes data and blocks until playback finishes or ctx is cancelled.
func (p *Player) Play(ctx context.Context, data []byte) error {
	streamer, format, err := mp3.Decode(io.NopCloser(bytes.NewReader(data)))
	if err != nil {
		return fmt.Errorf("decoding mp3: %w", err)
	}
	defer streamer.Close()

	rate, err := p.init(format.SampleRate)
	if err != nil {
		return err
	}

	var source beep.Streamer = streamer
	if format.SampleRate != rate {
		source = beep.Resample(4, format.SampleRate, rate, streamer)
	}

	done := make(chan struct{})
	speaker.Play(beep.Seq(source, beep.Callback(func() {
		close(done)
	})))

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		speaker.Clear()
		return ctx.Err()
	}
}

// init opens the output device once, at the rate of the first clip.
func (p *Player) init(rate beep.SampleRate) (beep.SampleRate, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.sampleRate != 0 {
		return p.sampleRate, nil
	}
	if err := speaker.Init(rate, rate.N(time.Second/10)); err != nil {
		return 0, fmt.Errorf("initializing speaker: %w", err)
	}
	p.sampleRate = rate
	return rate, nil
}
