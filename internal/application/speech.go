package application

import "context"

// SpeechSynthesizer speaks text aloud. Speak starts playback and returns; it
// does not wait for the audio to finish.
type SpeechSynthesizer interface {
	Speak(ctx context.Context, text string) error
}

// NoopSpeech is used when speech output is disabled.
type NoopSpeech struct{}

func (n *NoopSpeech) Speak(_ context.Context, _ string) error {
	return nil
}
