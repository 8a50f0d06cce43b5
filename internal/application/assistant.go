package application

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"

	"voice-assistant/internal/domain"
)

// State is the snapshot handed to the view after every change.
type State struct {
	Recording    domain.RecordingState      `json:"recording"`
	Starting     bool                       `json:"starting"`
	Stopping     bool                       `json:"stopping"`
	Clip         *domain.AudioClip          `json:"-"`
	Uploading    bool                       `json:"uploading"`
	CanSubmit    bool                       `json:"can_submit"`
	Job          *domain.TranscriptionJob   `json:"job,omitempty"`
	Thinking     bool                       `json:"thinking"`
	Conversation []domain.ConversationEntry `json:"conversation"`
	Notice       string                     `json:"notice,omitempty"`
}

func (s State) CanStart() bool {
	return s.Recording != domain.RecordingActive && !s.Starting && !s.Stopping
}

// CanStop also holds while the microphone is still starting; the stop is
// applied once capture has begun.
func (s State) CanStop() bool {
	return (s.Recording == domain.RecordingActive || s.Starting) && !s.Stopping
}

type Renderer interface {
	Render(State)
}

type (
	startCmd  struct{}
	stopCmd   struct{}
	submitCmd struct{}

	captureStarted struct {
		err error
	}
	captureStopped struct {
		clip *domain.AudioClip
		err  error
	}
	uploadResult struct {
		clipID string
		ref    domain.UploadReference
		err    error
	}
	submitResult struct {
		ref domain.UploadReference
		job *domain.TranscriptionJob
		err error
	}
	jobUpdate struct {
		job domain.TranscriptionJob
	}
	jobResult struct {
		job domain.TranscriptionJob
		err error
	}
	replyResult struct {
		jobID string
		reply string
		err   error
	}
)

// Assistant owns the application state. Commands from the view and results
// of network calls arrive as messages and are applied one at a time by Run;
// nothing else mutates the state.
type Assistant struct {
	recorder     *Recorder
	uploader     *Uploader
	poller       *Poller
	conversation *Conversation
	view         Renderer
	notifier     Notifier
	logger       *slog.Logger

	events   chan any
	done     chan struct{}
	captures sync.WaitGroup

	recording      domain.RecordingState
	starting       bool
	stopping       bool
	stopAfterStart bool

	clip         *domain.AudioClip
	uploading    bool
	uploadFailed bool
	submitting   bool
	job          *domain.TranscriptionJob
	stopPolling  context.CancelFunc
	thinking     int
	notice       string
}

func NewAssistant(
	recorder *Recorder,
	uploader *Uploader,
	poller *Poller,
	conversation *Conversation,
	view Renderer,
	notifier Notifier,
	logger *slog.Logger,
) *Assistant {
	return &Assistant{
		recorder:     recorder,
		uploader:     uploader,
		poller:       poller,
		conversation: conversation,
		view:         view,
		notifier:     notifier,
		logger:       logger,
		events:       make(chan any, 64),
		done:         make(chan struct{}),
		recording:    domain.RecordingIdle,
	}
}

func (a *Assistant) StartRecording() { a.post(startCmd{}) }
func (a *Assistant) StopRecording()  { a.post(stopCmd{}) }
func (a *Assistant) Submit()         { a.post(submitCmd{}) }

// Run processes messages until ctx is cancelled. On return any poll loop is
// cancelled and an active recording is stopped.
func (a *Assistant) Run(ctx context.Context) error {
	defer a.teardown()
	defer close(a.done)

	a.logger.Info("assistant ready")
	a.render()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev := <-a.events:
			a.handle(ctx, ev)
			a.render()
		}
	}
}

func (a *Assistant) post(ev any) {
	select {
	case a.events <- ev:
	case <-a.done:
	}
}

func (a *Assistant) handle(ctx context.Context, ev any) {
	switch ev := ev.(type) {
	case startCmd:
		a.startRecording(ctx)
	case stopCmd:
		a.stopRecording(ctx)
	case submitCmd:
		a.submit(ctx)
	case captureStarted:
		a.captureStarted(ctx, ev)
	case captureStopped:
		a.captureStopped(ctx, ev)
	case uploadResult:
		a.uploadDone(ctx, ev)
	case submitResult:
		a.submitDone(ctx, ev)
	case jobUpdate:
		if a.job != nil && a.job.ID == ev.job.ID && !a.job.Status.Terminal() {
			job := ev.job
			a.job = &job
		}
	case jobResult:
		a.jobDone(ctx, ev)
	case replyResult:
		a.replyDone(ctx, ev)
	default:
		a.logger.Warn("unknown event", "event", ev)
	}
}

// startRecording opens the microphone in the background. A browser page may
// sit on its permission prompt for a long time; the loop keeps serving
// other messages until captureStarted arrives.
func (a *Assistant) startRecording(ctx context.Context) {
	if a.starting || a.stopping || a.recording == domain.RecordingActive {
		return
	}
	a.starting = true
	a.notice = ""

	a.captures.Add(1)
	go func() {
		defer a.captures.Done()
		err := a.recorder.Start(ctx)
		a.post(captureStarted{err: err})
	}()
}

func (a *Assistant) captureStarted(ctx context.Context, ev captureStarted) {
	a.starting = false
	stop := a.stopAfterStart
	a.stopAfterStart = false

	if ev.err != nil {
		a.recording = a.recorder.State()
		a.fail(ctx, "starting recording", ev.err)
		return
	}

	a.recording = domain.RecordingActive
	a.uploader.Invalidate()
	a.clip = nil
	a.uploading = false
	a.uploadFailed = false
	a.notice = ""

	if stop {
		a.stopRecording(ctx)
	}
}

func (a *Assistant) stopRecording(ctx context.Context) {
	if a.starting {
		a.stopAfterStart = true
		return
	}
	if a.stopping || a.recording != domain.RecordingActive {
		return
	}
	a.stopping = true

	a.captures.Add(1)
	go func() {
		defer a.captures.Done()
		clip, err := a.recorder.Stop()
		a.post(captureStopped{clip: clip, err: err})
	}()
}

func (a *Assistant) captureStopped(ctx context.Context, ev captureStopped) {
	a.stopping = false
	a.recording = a.recorder.State()

	if ev.err != nil {
		a.fail(ctx, "stopping recording", ev.err)
		return
	}
	if ev.clip == nil {
		return
	}

	a.clip = ev.clip
	a.upload(ctx, ev.clip)
}

func (a *Assistant) upload(ctx context.Context, clip *domain.AudioClip) {
	a.uploading = true
	a.uploadFailed = false

	go func() {
		ref, err := a.uploader.Upload(ctx, clip)
		a.post(uploadResult{clipID: clip.ID, ref: ref, err: err})
	}()
}

func (a *Assistant) uploadDone(ctx context.Context, ev uploadResult) {
	if a.clip == nil || a.clip.ID != ev.clipID || errors.Is(ev.err, domain.ErrStaleUpload) {
		a.logger.Debug("discarding stale upload", "clip_id", ev.clipID)
		return
	}

	a.uploading = false
	if ev.err != nil {
		a.uploadFailed = true
		a.fail(ctx, "uploading clip", ev.err)
		return
	}

	a.logger.Info("clip uploaded", "clip_id", ev.clipID)
}

func (a *Assistant) submit(ctx context.Context) {
	if a.submitting {
		return
	}

	ref := a.uploader.Reference()
	if ref == "" {
		if a.clip != nil && a.uploadFailed {
			a.notice = ""
			a.upload(ctx, a.clip)
			return
		}
		a.fail(ctx, "submitting", domain.ErrNothingToSubmit)
		return
	}

	a.submitting = true
	a.notice = ""

	go func() {
		job, err := a.poller.Submit(ctx, ref)
		a.post(submitResult{ref: ref, job: job, err: err})
	}()
}

func (a *Assistant) submitDone(ctx context.Context, ev submitResult) {
	a.submitting = false
	if ev.err != nil {
		a.fail(ctx, "submitting transcript", ev.err)
		return
	}

	a.uploader.MarkSubmitted(ev.ref)

	if a.stopPolling != nil {
		a.stopPolling()
	}
	pollCtx, cancel := context.WithCancel(ctx)
	a.stopPolling = cancel

	snapshot := *ev.job
	a.job = &snapshot

	job := ev.job
	go func() {
		err := a.poller.Run(pollCtx, job, func(j domain.TranscriptionJob) {
			a.post(jobUpdate{job: j})
		})
		a.post(jobResult{job: *job, err: err})
	}()
}

func (a *Assistant) jobDone(ctx context.Context, ev jobResult) {
	if a.job == nil || a.job.ID != ev.job.ID {
		return
	}

	job := ev.job
	a.job = &job
	if a.stopPolling != nil {
		a.stopPolling()
		a.stopPolling = nil
	}

	if ev.err != nil {
		if errors.Is(ev.err, context.Canceled) {
			return
		}
		a.fail(ctx, "transcribing", ev.err)
		return
	}

	a.logger.Info("transcript completed", "job_id", job.ID, "text", job.Text)

	text, ok := a.conversation.Begin(job)
	if !ok {
		return
	}

	a.thinking++
	go func() {
		reply, err := a.conversation.Complete(ctx, text)
		a.post(replyResult{jobID: job.ID, reply: reply, err: err})
	}()
}

func (a *Assistant) replyDone(ctx context.Context, ev replyResult) {
	a.thinking--
	if ev.err != nil {
		a.fail(ctx, "requesting completion", ev.err)
		return
	}

	a.logger.Info("reply received", "job_id", ev.jobID)
	a.conversation.Finish(ctx, ev.reply)
}

func (a *Assistant) fail(ctx context.Context, op string, err error) {
	a.logger.Error(op, "error", err)
	a.notice = noticeFor(err)

	message := a.notice
	go func() {
		if err := a.notifier.Notify(context.WithoutCancel(ctx), message); err != nil {
			a.logger.Error("notifying failure", "error", err)
		}
	}()
}

func (a *Assistant) teardown() {
	if a.stopPolling != nil {
		a.stopPolling()
		a.stopPolling = nil
	}
	a.captures.Wait()
	if a.recorder.State() == domain.RecordingActive {
		if _, err := a.recorder.Stop(); err != nil {
			a.logger.Warn("stopping recording on shutdown", "error", err)
		}
	}
}

func (a *Assistant) render() {
	a.view.Render(a.snapshot())
}

func (a *Assistant) snapshot() State {
	s := State{
		Recording:    a.recording,
		Starting:     a.starting,
		Stopping:     a.stopping || a.stopAfterStart,
		Clip:         a.clip,
		Uploading:    a.uploading,
		Thinking:     a.thinking > 0,
		Conversation: a.conversation.Entries(),
		Notice:       a.notice,
	}
	s.CanSubmit = !a.submitting && !a.uploading &&
		(a.uploader.Reference() != "" || (a.clip != nil && a.uploadFailed))
	if a.job != nil {
		job := *a.job
		s.Job = &job
	}
	return s
}

func noticeFor(err error) string {
	switch {
	case errors.Is(err, domain.ErrPermissionDenied):
		return "Microphone access was denied."
	case errors.Is(err, domain.ErrDeviceUnavailable):
		return "No microphone is available."
	case errors.Is(err, domain.ErrUploadFailed):
		return "Uploading the recording failed. Press Submit to try again."
	case errors.Is(err, domain.ErrTranscriptionTimeout):
		return "Transcription is taking too long. Record again to retry."
	case errors.Is(err, domain.ErrTranscriptionFailed):
		detail := strings.TrimPrefix(err.Error(), domain.ErrTranscriptionFailed.Error()+": ")
		return "Transcription failed: " + detail
	case errors.Is(err, domain.ErrCompletionFailed):
		return "The assistant could not answer. Record again to retry."
	case errors.Is(err, domain.ErrNothingToSubmit):
		return "Record something before submitting."
	default:
		return err.Error()
	}
}
