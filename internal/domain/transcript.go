package domain

import "fmt"

type JobStatus string

const (
	JobQueued     JobStatus = "queued"
	JobProcessing JobStatus = "processing"
	JobCompleted  JobStatus = "completed"
	JobError      JobStatus = "error"
)

func (s JobStatus) Valid() bool {
	switch s {
	case JobQueued, JobProcessing, JobCompleted, JobError:
		return true
	}
	return false
}

func (s JobStatus) Terminal() bool {
	return s == JobCompleted || s == JobError
}

// TranscriptUpdate is one status response from the transcription service.
type TranscriptUpdate struct {
	Status JobStatus
	Text   string
	Error  string
}

type TranscriptionJob struct {
	ID          string
	Status      JobStatus
	Text        string
	ErrorDetail string
	Polls       int
}

func NewTranscriptionJob(id string) *TranscriptionJob {
	return &TranscriptionJob{ID: id, Status: JobQueued}
}

// Advance applies a polled update to the job.
//
// Allowed transitions are queued -> processing and queued|processing ->
// completed|error. A job that has reached a terminal status rejects every
// further update with ErrJobTerminal. Updates that would move the job
// backwards are ignored. The returned bool reports whether the job changed.
func (j *TranscriptionJob) Advance(u TranscriptUpdate) (bool, error) {
	if j.Status.Terminal() {
		return false, ErrJobTerminal
	}
	if !u.Status.Valid() {
		return false, fmt.Errorf("unknown transcript status %q", u.Status)
	}

	switch u.Status {
	case JobCompleted:
		j.Status = JobCompleted
		j.Text = u.Text
		return true, nil
	case JobError:
		j.Status = JobError
		j.ErrorDetail = u.Error
		return true, nil
	case JobProcessing:
		if j.Status == JobQueued {
			j.Status = JobProcessing
			return true, nil
		}
	}

	return false, nil
}

// Err returns the failure carried by a job in the error state.
func (j *TranscriptionJob) Err() error {
	if j.Status != JobError {
		return nil
	}
	return fmt.Errorf("%w: %s", ErrTranscriptionFailed, j.ErrorDetail)
}
