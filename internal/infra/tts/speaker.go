package tts

import (
	"context"
	"errors"
	"log/slog"
	"sync"
)

const queueSize = 8

var ErrQueueFull = errors.New("speech queue full")

// Engine speaks one text and returns when playback has finished.
type Engine interface {
	Say(ctx context.Context, text string) error
	Name() string
}

// Speaker plays texts one after another on a background goroutine so Speak
// never waits for audio.
type Speaker struct {
	engine Engine
	logger *slog.Logger
	texts  chan string

	cancel    context.CancelFunc
	done      chan struct{}
	closeOnce sync.Once
}

func NewSpeaker(engine Engine, logger *slog.Logger) *Speaker {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Speaker{
		engine: engine,
		logger: logger,
		texts:  make(chan string, queueSize),
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go s.run(ctx)
	return s
}

func (s *Speaker) Speak(_ context.Context, text string) error {
	select {
	case <-s.done:
		return errors.New("speaker closed")
	default:
	}

	select {
	case s.texts <- text:
		return nil
	default:
		return ErrQueueFull
	}
}

// Close stops the current playback and waits for the worker to exit.
func (s *Speaker) Close() {
	s.closeOnce.Do(func() {
		s.cancel()
		<-s.done
	})
}

func (s *Speaker) run(ctx context.Context) {
	defer close(s.done)

	for {
		select {
		case <-ctx.Done():
			return
		case text := <-s.texts:
			if err := s.engine.Say(ctx, text); err != nil && ctx.Err() == nil {
				s.logger.Warn("speech playback failed", "engine", s.engine.Name(), "error", err)
			}
		}
	}
}
