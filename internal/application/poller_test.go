package application_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"voice-assistant/internal/application"
	"voice-assistant/internal/domain"
)

func newTestPoller(svc application.TranscriptionService, maxPolls int, ticker *manualTicker) *application.Poller {
	cfg := application.PollerConfig{Interval: time.Second, MaxPolls: maxPolls}
	return application.NewPoller(svc, cfg, application.NoopMetrics{}, discardLogger()).
		WithTicker(func(time.Duration) application.Ticker { return ticker })
}

func runPoller(p *application.Poller, job *domain.TranscriptionJob, onUpdate func(domain.TranscriptionJob)) <-chan error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- p.Run(context.Background(), job, onUpdate)
	}()
	return errCh
}

func waitErr(t *testing.T, errCh <-chan error) error {
	t.Helper()
	select {
	case err := <-errCh:
		return err
	case <-time.After(2 * time.Second):
		t.Fatal("poller did not finish")
		return nil
	}
}

func assertNoMoreTicks(t *testing.T, ticker *manualTicker) {
	t.Helper()
	if !ticker.isStopped() {
		t.Error("ticker should be stopped")
	}
	select {
	case ticker.ch <- time.Now():
		t.Error("poller still consuming ticks after finishing")
	case <-time.After(50 * time.Millisecond):
	}
}

func TestPoller_Submit(t *testing.T) {
	svc := &fakeTranscription{jobID: "job1"}
	p := application.NewPoller(svc, application.DefaultPollerConfig(), application.NoopMetrics{}, discardLogger())

	job, err := p.Submit(context.Background(), "https://cdn.example/upload/1")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if job.ID != "job1" || job.Status != domain.JobQueued {
		t.Errorf("job: got %+v, want queued job1", job)
	}
	if svc.requests[0] != "https://cdn.example/upload/1" {
		t.Errorf("requested ref: got %s", svc.requests[0])
	}
}

func TestPoller_SubmitFailure(t *testing.T) {
	svc := &fakeTranscription{requestErr: errors.New("401 unauthorized")}
	p := application.NewPoller(svc, application.DefaultPollerConfig(), application.NoopMetrics{}, discardLogger())

	if _, err := p.Submit(context.Background(), "ref"); !errors.Is(err, domain.ErrTranscriptionFailed) {
		t.Fatalf("error: got %v, want ErrTranscriptionFailed", err)
	}
}

func TestPoller_StopsAfterCompleted(t *testing.T) {
	svc := &fakeTranscription{
		updates: []domain.TranscriptUpdate{
			{Status: domain.JobQueued},
			{Status: domain.JobProcessing},
			{Status: domain.JobCompleted, Text: "hello"},
		},
	}
	ticker := newManualTicker()
	p := newTestPoller(svc, 0, ticker)

	var seen []domain.JobStatus
	job := domain.NewTranscriptionJob("job1")
	errCh := runPoller(p, job, func(j domain.TranscriptionJob) {
		seen = append(seen, j.Status)
	})

	ticker.tick(t)
	ticker.tick(t)
	ticker.tick(t)

	if err := waitErr(t, errCh); err != nil {
		t.Fatalf("Run: %v", err)
	}

	if job.Status != domain.JobCompleted || job.Text != "hello" {
		t.Errorf("job: got %+v", job)
	}
	if len(seen) != 2 || seen[0] != domain.JobProcessing || seen[1] != domain.JobCompleted {
		t.Errorf("updates: got %v, want [processing completed]", seen)
	}

	assertNoMoreTicks(t, ticker)
	if svc.pollCount() != 3 {
		t.Errorf("polls: got %d, want 3", svc.pollCount())
	}
}

func TestPoller_StopsAfterError(t *testing.T) {
	svc := &fakeTranscription{
		updates: []domain.TranscriptUpdate{
			{Status: domain.JobError, Error: "audio too short"},
		},
	}
	ticker := newManualTicker()
	p := newTestPoller(svc, 0, ticker)

	job := domain.NewTranscriptionJob("job1")
	errCh := runPoller(p, job, nil)
	ticker.tick(t)

	err := waitErr(t, errCh)
	if !errors.Is(err, domain.ErrTranscriptionFailed) {
		t.Fatalf("error: got %v, want ErrTranscriptionFailed", err)
	}
	if job.ErrorDetail != "audio too short" {
		t.Errorf("detail: got %q", job.ErrorDetail)
	}

	assertNoMoreTicks(t, ticker)
	if svc.pollCount() != 1 {
		t.Errorf("polls: got %d, want 1", svc.pollCount())
	}
}

func TestPoller_ToleratesTransientErrors(t *testing.T) {
	svc := &fakeTranscription{
		pollErrs: map[int]error{1: errors.New("connection refused")},
		updates: []domain.TranscriptUpdate{
			{Status: domain.JobCompleted, Text: "hello"},
		},
	}
	ticker := newManualTicker()
	p := newTestPoller(svc, 0, ticker)

	job := domain.NewTranscriptionJob("job1")
	errCh := runPoller(p, job, nil)

	ticker.tick(t)
	ticker.tick(t)

	if err := waitErr(t, errCh); err != nil {
		t.Fatalf("Run: %v", err)
	}
	if job.Text != "hello" {
		t.Errorf("text: got %q", job.Text)
	}
	if job.Polls != 2 {
		t.Errorf("polls: got %d, want 2", job.Polls)
	}
}

func TestPoller_Timeout(t *testing.T) {
	svc := &fakeTranscription{
		updates: []domain.TranscriptUpdate{{Status: domain.JobProcessing}},
	}
	ticker := newManualTicker()
	p := newTestPoller(svc, 3, ticker)

	errCh := runPoller(p, domain.NewTranscriptionJob("job1"), nil)
	for i := 0; i < 3; i++ {
		ticker.tick(t)
	}

	if err := waitErr(t, errCh); !errors.Is(err, domain.ErrTranscriptionTimeout) {
		t.Fatalf("error: got %v, want ErrTranscriptionTimeout", err)
	}
	assertNoMoreTicks(t, ticker)
	if svc.pollCount() != 3 {
		t.Errorf("polls: got %d, want 3", svc.pollCount())
	}
}

func TestPoller_CancelStopsPolling(t *testing.T) {
	svc := &fakeTranscription{}
	ticker := newManualTicker()
	p := newTestPoller(svc, 0, ticker)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		errCh <- p.Run(ctx, domain.NewTranscriptionJob("job1"), nil)
	}()

	ticker.tick(t)
	cancel()

	if err := waitErr(t, errCh); !errors.Is(err, context.Canceled) {
		t.Fatalf("error: got %v, want context.Canceled", err)
	}
	assertNoMoreTicks(t, ticker)
	if svc.pollCount() != 1 {
		t.Errorf("polls: got %d, want 1", svc.pollCount())
	}
}
