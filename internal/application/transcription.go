package application

import (
	"context"

	"voice-assistant/internal/domain"
)

// TranscriptionService is the upload/submit/poll API of the speech-to-text
// provider.
type TranscriptionService interface {
	Upload(ctx context.Context, audio []byte) (domain.UploadReference, error)
	RequestTranscript(ctx context.Context, ref domain.UploadReference) (string, error)
	Transcript(ctx context.Context, id string) (domain.TranscriptUpdate, error)
}
