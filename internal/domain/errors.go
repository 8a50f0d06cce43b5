package domain

import "errors"

var (
	ErrPermissionDenied     = errors.New("microphone permission denied")
	ErrDeviceUnavailable    = errors.New("microphone unavailable")
	ErrUploadFailed         = errors.New("upload failed")
	ErrTranscriptionFailed  = errors.New("transcription failed")
	ErrTranscriptionTimeout = errors.New("transcription timed out")
	ErrCompletionFailed     = errors.New("completion failed")

	// ErrStaleUpload is returned for an upload whose clip was replaced by a
	// newer recording while the request was in flight.
	ErrStaleUpload     = errors.New("upload result is stale")
	ErrNothingToSubmit = errors.New("no uploaded audio to submit")
	ErrJobTerminal     = errors.New("transcription job already finished")
)
