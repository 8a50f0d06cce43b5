package metrics_test

import (
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"

	"voice-assistant/internal/application"
	"voice-assistant/internal/infra/metrics"
)

var _ application.Metrics = (*metrics.Metrics)(nil)

func TestMetrics_Observe(t *testing.T) {
	m := metrics.NewMetrics("assistant")

	m.ObserveRecording(2048)
	m.ObserveUpload(nil)
	m.ObserveUpload(errors.New("reset"))
	m.ObservePoll(nil)
	m.ObservePoll(nil)
	m.ObserveTranscription("completed")
	m.ObserveCompletion(1500*time.Millisecond, nil)

	tests := []struct {
		name string
		got  float64
		want float64
	}{
		{name: "recordings", got: testutil.ToFloat64(m.Recordings), want: 1},
		{name: "uploads ok", got: testutil.ToFloat64(m.Uploads.WithLabelValues("ok")), want: 1},
		{name: "uploads error", got: testutil.ToFloat64(m.Uploads.WithLabelValues("error")), want: 1},
		{name: "polls ok", got: testutil.ToFloat64(m.Polls.WithLabelValues("ok")), want: 2},
		{name: "transcriptions", got: testutil.ToFloat64(m.Transcriptions.WithLabelValues("completed")), want: 1},
		{name: "completions", got: testutil.ToFloat64(m.Completions.WithLabelValues("ok")), want: 1},
	}

	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s: got %v, want %v", tt.name, tt.got, tt.want)
		}
	}
}

func TestMetrics_IndependentRegistries(t *testing.T) {
	a := metrics.NewMetrics("assistant")
	b := metrics.NewMetrics("assistant")

	a.ObserveRecording(100)
	if testutil.ToFloat64(b.Recordings) != 0 {
		t.Error("registries should not share collectors")
	}
}

func TestMetrics_Handler(t *testing.T) {
	m := metrics.NewMetrics("assistant")
	m.ObserveUpload(nil)

	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), `assistant_uploads_total{result="ok"} 1`) {
		t.Errorf("exposition missing upload counter:\n%s", body)
	}
}
