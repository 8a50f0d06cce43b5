package application

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"voice-assistant/internal/domain"
)

// Ticker drives the poll loop. It mirrors time.Ticker so tests can supply
// their own ticks.
type Ticker interface {
	C() <-chan time.Time
	Stop()
}

type TickerFunc func(d time.Duration) Ticker

type timeTicker struct {
	t *time.Ticker
}

func NewTicker(d time.Duration) Ticker {
	return &timeTicker{t: time.NewTicker(d)}
}

func (t *timeTicker) C() <-chan time.Time { return t.t.C }
func (t *timeTicker) Stop()               { t.t.Stop() }

type PollerConfig struct {
	Interval time.Duration
	// MaxPolls bounds the number of status requests per job. Zero polls
	// until the job finishes.
	MaxPolls int
}

func DefaultPollerConfig() PollerConfig {
	return PollerConfig{
		Interval: 3 * time.Second,
		MaxPolls: 200,
	}
}

type Poller struct {
	svc       TranscriptionService
	cfg       PollerConfig
	metrics   Metrics
	logger    *slog.Logger
	newTicker TickerFunc
}

func NewPoller(svc TranscriptionService, cfg PollerConfig, metrics Metrics, logger *slog.Logger) *Poller {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultPollerConfig().Interval
	}
	return &Poller{
		svc:       svc,
		cfg:       cfg,
		metrics:   metrics,
		logger:    logger,
		newTicker: NewTicker,
	}
}

// WithTicker replaces the ticker used by Run.
func (p *Poller) WithTicker(fn TickerFunc) *Poller {
	p.newTicker = fn
	return p
}

// Submit asks the service to transcribe the uploaded audio.
func (p *Poller) Submit(ctx context.Context, ref domain.UploadReference) (*domain.TranscriptionJob, error) {
	id, err := p.svc.RequestTranscript(ctx, ref)
	if err != nil {
		return nil, fmt.Errorf("%w: requesting transcript: %w", domain.ErrTranscriptionFailed, err)
	}

	p.logger.Info("transcript requested", "job_id", id)
	return domain.NewTranscriptionJob(id), nil
}

// Run polls job on every tick until it reaches a terminal status, the poll
// budget runs out or ctx is cancelled. The ticker is stopped before Run
// returns, so no status request is made after that point.
//
// onUpdate, when set, receives a copy of the job after every change.
func (p *Poller) Run(ctx context.Context, job *domain.TranscriptionJob, onUpdate func(domain.TranscriptionJob)) error {
	ticker := p.newTicker(p.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C():
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		job.Polls++
		update, err := p.svc.Transcript(ctx, job.ID)
		p.metrics.ObservePoll(err)

		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			p.logger.Warn("polling transcript", "job_id", job.ID, "poll", job.Polls, "error", err)
		} else {
			changed, err := job.Advance(update)
			if err != nil {
				p.logger.Warn("ignoring transcript update", "job_id", job.ID, "error", err)
			}
			if changed {
				p.logger.Debug("transcript status", "job_id", job.ID, "status", job.Status)
				if onUpdate != nil {
					onUpdate(*job)
				}
			}
			if job.Status.Terminal() {
				p.metrics.ObserveTranscription(string(job.Status))
				return job.Err()
			}
		}

		if p.cfg.MaxPolls > 0 && job.Polls >= p.cfg.MaxPolls {
			p.metrics.ObserveTranscription("timeout")
			return fmt.Errorf("%w after %d polls", domain.ErrTranscriptionTimeout, job.Polls)
		}
	}
}
