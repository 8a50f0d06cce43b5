package application_test

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"sync"
	"testing"
	"time"

	"voice-assistant/internal/application"
	"voice-assistant/internal/domain"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeMic struct {
	mu            sync.Mutex
	startGate     chan struct{}
	startErr      error
	chunksOnStart [][]byte
	onChunk       func([]byte)
	starts        int
	stops         int
}

func (m *fakeMic) Start(ctx context.Context, onChunk func([]byte)) error {
	m.mu.Lock()
	gate := m.startGate
	m.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	m.mu.Lock()
	m.starts++
	if m.startErr != nil {
		m.mu.Unlock()
		return m.startErr
	}
	m.onChunk = onChunk
	chunks := m.chunksOnStart
	m.mu.Unlock()

	for _, c := range chunks {
		onChunk(c)
	}
	return nil
}

func (m *fakeMic) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stops++
	m.onChunk = nil
	return nil
}

func (m *fakeMic) Name() string                      { return "fake" }
func (m *fakeMic) MediaType() string                 { return domain.MediaTypeWebM }
func (m *fakeMic) Encode(raw []byte) ([]byte, error) { return raw, nil }

func (m *fakeMic) emit(chunk []byte) {
	m.mu.Lock()
	fn := m.onChunk
	m.mu.Unlock()
	if fn != nil {
		fn(chunk)
	}
}

type fakeTranscription struct {
	mu         sync.Mutex
	uploadRef  domain.UploadReference
	uploadErr  error
	uploadGate chan struct{}
	uploads    int
	uploaded   [][]byte
	jobID      string
	requestErr error
	requests   []domain.UploadReference
	updates    []domain.TranscriptUpdate
	pollErrs   map[int]error
	polls      int
}

func (f *fakeTranscription) Upload(ctx context.Context, audio []byte) (domain.UploadReference, error) {
	f.mu.Lock()
	gate := f.uploadGate
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	f.uploads++
	f.uploaded = append(f.uploaded, bytes.Clone(audio))
	if f.uploadErr != nil {
		return "", f.uploadErr
	}
	return f.uploadRef, nil
}

func (f *fakeTranscription) RequestTranscript(_ context.Context, ref domain.UploadReference) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.requests = append(f.requests, ref)
	if f.requestErr != nil {
		return "", f.requestErr
	}
	return f.jobID, nil
}

func (f *fakeTranscription) Transcript(_ context.Context, _ string) (domain.TranscriptUpdate, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.polls++
	if err, ok := f.pollErrs[f.polls]; ok {
		return domain.TranscriptUpdate{}, err
	}
	if len(f.updates) == 0 {
		return domain.TranscriptUpdate{Status: domain.JobProcessing}, nil
	}
	u := f.updates[0]
	if len(f.updates) > 1 {
		f.updates = f.updates[1:]
	}
	return u, nil
}

func (f *fakeTranscription) pollCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.polls
}

func (f *fakeTranscription) uploadCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.uploads
}

type fakeChat struct {
	mu      sync.Mutex
	reply   string
	err     error
	prompts []string
}

func (f *fakeChat) Complete(_ context.Context, prompt string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.prompts = append(f.prompts, prompt)
	if f.err != nil {
		return "", f.err
	}
	return f.reply, nil
}

func (f *fakeChat) calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.prompts)
}

type fakeSpeech struct {
	mu     sync.Mutex
	spoken []string
}

func (f *fakeSpeech) Speak(_ context.Context, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.spoken = append(f.spoken, text)
	return nil
}

func (f *fakeSpeech) said() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.spoken...)
}

type manualTicker struct {
	ch      chan time.Time
	mu      sync.Mutex
	stopped bool
}

func newManualTicker() *manualTicker {
	return &manualTicker{ch: make(chan time.Time)}
}

func (m *manualTicker) C() <-chan time.Time { return m.ch }

func (m *manualTicker) Stop() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stopped = true
}

func (m *manualTicker) isStopped() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.stopped
}

func (m *manualTicker) tick(t *testing.T) {
	t.Helper()
	select {
	case m.ch <- time.Now():
	case <-time.After(2 * time.Second):
		t.Fatal("poller did not accept tick")
	}
}

func fastTicker(time.Duration) application.Ticker {
	return application.NewTicker(5 * time.Millisecond)
}

type recordingView struct {
	mu     sync.Mutex
	latest application.State
	count  int
}

func (v *recordingView) Render(s application.State) {
	v.mu.Lock()
	defer v.mu.Unlock()
	v.latest = s
	v.count++
}

func (v *recordingView) state() application.State {
	v.mu.Lock()
	defer v.mu.Unlock()
	return v.latest
}

func (v *recordingView) waitFor(t *testing.T, what string, cond func(application.State) bool) application.State {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if s := v.state(); cond(s) {
			return s
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("timeout waiting for %s; last state: %+v", what, v.state())
	return application.State{}
}

type syncBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
