//go:build !portaudio
// +build !portaudio

package audio

import (
	"context"
	"fmt"
	"log/slog"

	"voice-assistant/internal/application"
	"voice-assistant/internal/domain"
)

// Microphone stub when portaudio is not available
type Microphone struct {
	format application.AudioFormat
	logger *slog.Logger
}

func NewMicrophone(format application.AudioFormat, logger *slog.Logger) *Microphone {
	return &Microphone{format: format, logger: logger}
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

func (m *Microphone) Start(_ context.Context, _ func([]byte)) error {
	return fmt.Errorf("%w: rebuild with -tags portaudio", domain.ErrDeviceUnavailable)
}

func (m *Microphone) Stop() error {
	return nil
}
