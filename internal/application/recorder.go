package application

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"voice-assistant/internal/domain"
)

// Recorder turns a microphone session into a single AudioClip.
type Recorder struct {
	mic     Microphone
	metrics Metrics
	logger  *slog.Logger

	mu        sync.Mutex
	state     domain.RecordingState
	capturing bool
	chunks    [][]byte
	clip      *domain.AudioClip
}

func NewRecorder(mic Microphone, logger *slog.Logger) *Recorder {
	return &Recorder{
		mic:     mic,
		metrics: NoopMetrics{},
		logger:  logger,
		state:   domain.RecordingIdle,
	}
}

func (r *Recorder) WithMetrics(m Metrics) *Recorder {
	r.metrics = m
	return r
}

func (r *Recorder) State() domain.RecordingState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Clip returns the clip produced by the last Stop, or nil.
func (r *Recorder) Clip() *domain.AudioClip {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.clip
}

// Start opens the microphone. On failure the recorder keeps its previous
// state. A successful start discards any clip from the previous session.
func (r *Recorder) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.state == domain.RecordingActive {
		r.mu.Unlock()
		return nil
	}
	r.capturing = true
	r.chunks = nil
	r.mu.Unlock()

	if err := r.mic.Start(ctx, r.appendChunk); err != nil {
		r.mu.Lock()
		r.capturing = false
		r.chunks = nil
		r.mu.Unlock()
		return classifyMicError(err)
	}

	r.mu.Lock()
	r.state = domain.RecordingActive
	r.clip = nil
	r.mu.Unlock()

	r.logger.Info("recording started", "microphone", r.mic.Name())
	return nil
}

// Stop finalizes the session into a clip. It returns nil, nil when the
// recorder is not recording.
func (r *Recorder) Stop() (*domain.AudioClip, error) {
	if r.State() != domain.RecordingActive {
		return nil, nil
	}

	if err := r.mic.Stop(); err != nil {
		r.logger.Warn("stopping microphone", "error", err)
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	r.capturing = false
	raw := bytes.Join(r.chunks, nil)
	chunks := len(r.chunks)
	r.chunks = nil

	data, err := r.mic.Encode(raw)
	if err != nil {
		r.state = domain.RecordingIdle
		return nil, fmt.Errorf("encoding clip: %w", err)
	}

	id := uuid.NewString()
	r.clip = &domain.AudioClip{
		ID:        id,
		Data:      data,
		MediaType: r.mic.MediaType(),
		URL:       domain.ClipURL(id),
	}
	r.state = domain.RecordingStopped
	r.metrics.ObserveRecording(len(data))

	r.logger.Info("recording stopped", "clip_id", id, "chunks", chunks, "bytes", len(data))
	return r.clip, nil
}

func (r *Recorder) appendChunk(chunk []byte) {
	if len(chunk) == 0 {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.capturing {
		return
	}
	r.chunks = append(r.chunks, bytes.Clone(chunk))
}

func classifyMicError(err error) error {
	if errors.Is(err, domain.ErrPermissionDenied) || errors.Is(err, domain.ErrDeviceUnavailable) {
		return err
	}
	return fmt.Errorf("%w: %w", domain.ErrDeviceUnavailable, err)
}
