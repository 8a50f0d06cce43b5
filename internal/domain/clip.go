package domain

// MediaTypeWebM is what browser MediaRecorder produces by default.
const MediaTypeWebM = "audio/webm"

// MediaTypeWAV is used for clips recorded from raw PCM sources.
const MediaTypeWAV = "audio/wav"

// AudioClip is a finished recording. It is never modified after Stop.
type AudioClip struct {
	ID        string
	Data      []byte
	MediaType string
	URL       string
}

func (c *AudioClip) Size() int {
	if c == nil {
		return 0
	}
	return len(c.Data)
}

// UploadReference identifies audio stored by the transcription service.
type UploadReference string

type RecordingState string

const (
	RecordingIdle    RecordingState = "idle"
	RecordingActive  RecordingState = "recording"
	RecordingStopped RecordingState = "stopped"
)

// ClipPathPrefix is where the web view serves recorded clips for playback.
const ClipPathPrefix = "/clips/"

func ClipURL(id string) string {
	return ClipPathPrefix + id
}
