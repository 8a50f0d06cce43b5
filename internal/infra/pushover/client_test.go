package pushover_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"voice-assistant/internal/infra"
	"voice-assistant/internal/infra/pushover"
)

func TestClient_Notify(t *testing.T) {
	var form map[string]string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		r.ParseForm()
		form = map[string]string{
			"token":   r.PostForm.Get("token"),
			"user":    r.PostForm.Get("user"),
			"title":   r.PostForm.Get("title"),
			"message": r.PostForm.Get("message"),
		}
		w.Write([]byte(`{"status":1}`))
	}))
	defer server.Close()

	client := pushover.NewClientWithURL("app-token", "user-key", "", server.URL)

	if err := client.Notify(context.Background(), "Transcription failed"); err != nil {
		t.Fatalf("Notify: %v", err)
	}

	want := map[string]string{
		"token":   "app-token",
		"user":    "user-key",
		"title":   "Voice Assistant",
		"message": "Transcription failed",
	}
	for k, v := range want {
		if form[k] != v {
			t.Errorf("%s: got %q, want %q", k, form[k], v)
		}
	}
}

func TestClient_NotConfigured(t *testing.T) {
	called := false
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		called = true
	}))
	defer server.Close()

	client := pushover.NewClientWithURL("", "", "", server.URL)

	if err := client.Notify(context.Background(), "hello"); err != nil {
		t.Fatalf("Notify: %v", err)
	}
	if called {
		t.Error("no request expected without credentials")
	}
}

func TestClient_StatusError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"status":0,"errors":["user key is invalid"]}`, http.StatusBadRequest)
	}))
	defer server.Close()

	client := pushover.NewClientWithURL("app-token", "bad", "", server.URL)

	err := client.Notify(context.Background(), "hello")

	var statusErr *infra.StatusError
	if !errors.As(err, &statusErr) || statusErr.Code != http.StatusBadRequest {
		t.Fatalf("error: got %v, want StatusError 400", err)
	}
}
