//go:build portaudio
// +build portaudio

package audio

import (
	"context"
	"encoding/binary"
	"fmt"
	"log/slog"
	"sync"

	"github.com/gordonklaus/portaudio"

	"voice-assistant/internal/application"
	"voice-assistant/internal/domain"
)

const framesPerBuffer = 1024

// Microphone captures 16-bit PCM from the default input device.
type Microphone struct {
	format application.AudioFormat
	logger *slog.Logger

	mu     sync.Mutex
	stream *portaudio.Stream
	stop   chan struct{}
	done   chan struct{}
}

func NewMicrophone(format application.AudioFormat, logger *slog.Logger) *Microphone {
	return &Microphone{
		format: format,
		logger: logger,
	}
}

func (m *Microphone) Name() string {
	return "portaudio"
}

func (m *Microphone) MediaType() string {
	return domain.MediaTypeWAV
}

func (m *Microphone) Encode(raw []byte) ([]byte, error) {
	return EncodeWAV(raw, m.format)
}

func (m *Microphone) Start(_ context.Context, onChunk func([]byte)) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stream != nil {
		return nil
	}

	if err := portaudio.Initialize(); err != nil {
		return fmt.Errorf("%w: initializing portaudio: %w", domain.ErrDeviceUnavailable, err)
	}

	buffer := make([]int16, framesPerBuffer*m.format.Channels)

	stream, err := portaudio.OpenDefaultStream(
		m.format.Channels,
		0,
		float64(m.format.SampleRate),
		framesPerBuffer,
		buffer,
	)
	if err != nil {
		portaudio.Terminate()
		return fmt.Errorf("%w: opening stream: %w", domain.ErrDeviceUnavailable, err)
	}

	if err := stream.Start(); err != nil {
		stream.Close()
		portaudio.Terminate()
		return fmt.Errorf("%w: starting stream: %w", domain.ErrDeviceUnavailable, err)
	}

	m.stream = stream
	m.stop = make(chan struct{})
	m.done = make(chan struct{})

	go m.read(buffer, onChunk, m.stop, m.done)

	m.logger.Info("microphone started", "sampleRate", m.format.SampleRate)
	return nil
}

func (m *Microphone) read(buffer []int16, onChunk func([]byte), stop, done chan struct{}) {
	defer close(done)

	for {
		select {
		case <-stop:
			return
		default:
		}

		if err := m.stream.Read(); err != nil {
			m.logger.Warn("reading from stream", "error", err)
			return
		}

		chunk := make([]byte, len(buffer)*2)
		for i, sample := range buffer {
			binary.LittleEndian.PutUint16(chunk[i*2:], uint16(sample))
		}
		onChunk(chunk)
	}
}

// Stop waits for the reader to exit before closing the stream, so no chunk
// is delivered after it returns.
func (m *Microphone) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.stream == nil {
		return nil
	}

	close(m.stop)
	<-m.done

	var firstErr error
	if err := m.stream.Stop(); err != nil {
		firstErr = fmt.Errorf("stopping stream: %w", err)
	}
	if err := m.stream.Close(); err != nil && firstErr == nil {
		firstErr = fmt.Errorf("closing stream: %w", err)
	}
	portaudio.Terminate()

	m.stream = nil
	m.logger.Info("microphone stopped")
	return firstErr
}
