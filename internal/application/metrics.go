package application

import "time"

type Metrics interface {
	ObserveRecording(bytes int)
	ObserveUpload(err error)
	ObservePoll(err error)
	ObserveTranscription(outcome string)
	ObserveCompletion(elapsed time.Duration, err error)
}

type NoopMetrics struct{}

func (NoopMetrics) ObserveRecording(int)                   {}
func (NoopMetrics) ObserveUpload(error)                    {}
func (NoopMetrics) ObservePoll(error)                      {}
func (NoopMetrics) ObserveTranscription(string)            {}
func (NoopMetrics) ObserveCompletion(time.Duration, error) {}
