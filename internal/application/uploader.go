package application

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"voice-assistant/internal/domain"
)

// Uploader sends finished clips to the transcription service and keeps the
// reference of the most recent one.
type Uploader struct {
	svc     TranscriptionService
	metrics Metrics
	logger  *slog.Logger

	mu      sync.Mutex
	current string
	ref     domain.UploadReference
}

func NewUploader(svc TranscriptionService, metrics Metrics, logger *slog.Logger) *Uploader {
	return &Uploader{
		svc:     svc,
		metrics: metrics,
		logger:  logger,
	}
}

// Upload sends the clip once. If Invalidate or another Upload is called while
// the request is in flight, the result is discarded and ErrStaleUpload is
// returned.
func (u *Uploader) Upload(ctx context.Context, clip *domain.AudioClip) (domain.UploadReference, error) {
	u.mu.Lock()
	u.current = clip.ID
	u.ref = ""
	u.mu.Unlock()

	u.logger.Info("uploading clip", "clip_id", clip.ID, "bytes", len(clip.Data))

	ref, err := u.svc.Upload(ctx, clip.Data)
	if err == nil && ref == "" {
		err = errors.New("empty upload reference")
	}

	u.mu.Lock()
	defer u.mu.Unlock()

	if u.current != clip.ID {
		u.metrics.ObserveUpload(domain.ErrStaleUpload)
		return "", domain.ErrStaleUpload
	}

	u.metrics.ObserveUpload(err)
	if err != nil {
		return "", fmt.Errorf("%w: %w", domain.ErrUploadFailed, err)
	}

	u.ref = ref
	return ref, nil
}

// Invalidate drops the current reference and any upload still in flight.
func (u *Uploader) Invalidate() {
	u.mu.Lock()
	defer u.mu.Unlock()

	u.current = ""
	u.ref = ""
}

func (u *Uploader) Reference() domain.UploadReference {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.ref
}

// MarkSubmitted consumes ref so it cannot be submitted a second time.
func (u *Uploader) MarkSubmitted(ref domain.UploadReference) {
	u.mu.Lock()
	defer u.mu.Unlock()

	if u.ref == ref {
		u.ref = ""
	}
}
