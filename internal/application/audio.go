package application

import "context"

// Microphone is the capture primitive behind the Recorder.
//
// Start begins capture and delivers data chunks to onChunk in arrival order.
// It returns an error wrapping domain.ErrPermissionDenied or
// domain.ErrDeviceUnavailable when capture cannot begin. Stop ends capture;
// once it returns, onChunk is not called again for that session.
type Microphone interface {
	Start(ctx context.Context, onChunk func([]byte)) error
	Stop() error
	Name() string
	MediaType() string
	// Encode wraps the concatenated chunks in the device's container format.
	Encode(raw []byte) ([]byte, error)
}

type AudioFormat struct {
	SampleRate int
	Channels   int
	BitDepth   int
}

func DefaultAudioFormat() AudioFormat {
	return AudioFormat{
		SampleRate: 16000,
		Channels:   1,
		BitDepth:   16,
	}
}
