package web_test

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"voice-assistant/internal/domain"
	"voice-assistant/internal/infra/web"
)

type chunks struct {
	mu   sync.Mutex
	data [][]byte
}

func (c *chunks) add(b []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.data = append(c.data, bytes.Clone(b))
}

func (c *chunks) joined() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return string(bytes.Join(c.data, nil))
}

func audioFrame(session uint64, data string) []byte {
	return append(binary.BigEndian.AppendUint64(nil, session), data...)
}

func TestBrowserMicrophone_Session(t *testing.T) {
	env := newTestEnv(t, web.ServerConfig{})
	mic := web.NewBrowserMicrophone(env.hub, time.Second)
	conn := dialPage(t, env, "")

	got := &chunks{}
	startErr := make(chan error, 1)
	go func() { startErr <- mic.Start(context.Background(), got.add) }()

	msg := readMessage(t, conn)
	if msg.Type != "capture" || msg.Action != "start" {
		t.Fatalf("message: got %+v, want capture start", msg)
	}

	conn.WriteJSON(map[string]any{"type": "capture", "event": "started", "session": msg.Session, "mime": "audio/ogg"})
	if err := <-startErr; err != nil {
		t.Fatalf("Start: %v", err)
	}

	conn.WriteMessage(websocket.BinaryMessage, audioFrame(msg.Session, "he"))
	conn.WriteMessage(websocket.BinaryMessage, audioFrame(msg.Session, "ll"))

	stopErr := make(chan error, 1)
	go func() { stopErr <- mic.Stop() }()

	stop := readMessage(t, conn)
	if stop.Type != "capture" || stop.Action != "stop" || stop.Session != msg.Session {
		t.Fatalf("message: got %+v, want capture stop", stop)
	}

	conn.WriteMessage(websocket.BinaryMessage, audioFrame(msg.Session, "o"))
	conn.WriteJSON(map[string]any{"type": "capture", "event": "stopped", "session": msg.Session})

	select {
	case err := <-stopErr:
		if err != nil {
			t.Fatalf("Stop: %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return")
	}

	if got.joined() != "hello" {
		t.Errorf("chunks: got %q, want hello", got.joined())
	}
	if mic.MediaType() != "audio/ogg" {
		t.Errorf("media type: got %s", mic.MediaType())
	}

	conn.WriteMessage(websocket.BinaryMessage, audioFrame(msg.Session, "late"))
	time.Sleep(30 * time.Millisecond)
	if got.joined() != "hello" {
		t.Errorf("chunk delivered after Stop: %q", got.joined())
	}
}

func TestBrowserMicrophone_StartErrors(t *testing.T) {
	tests := []struct {
		name    string
		errName string
		want    error
	}{
		{name: "denied", errName: "NotAllowedError", want: domain.ErrPermissionDenied},
		{name: "no device", errName: "NotFoundError", want: domain.ErrDeviceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestEnv(t, web.ServerConfig{})
			mic := web.NewBrowserMicrophone(env.hub, time.Second)
			conn := dialPage(t, env, "")

			startErr := make(chan error, 1)
			go func() { startErr <- mic.Start(context.Background(), func([]byte) {}) }()

			msg := readMessage(t, conn)
			conn.WriteJSON(map[string]any{"type": "capture", "event": "error", "session": msg.Session, "error": tt.errName})

			if err := <-startErr; !errors.Is(err, tt.want) {
				t.Fatalf("error: got %v, want %v", err, tt.want)
			}
			if err := mic.Stop(); err != nil {
				t.Errorf("Stop after failed start: %v", err)
			}
		})
	}
}

func TestBrowserMicrophone_NoPage(t *testing.T) {
	env := newTestEnv(t, web.ServerConfig{})
	mic := web.NewBrowserMicrophone(env.hub, time.Second)

	err := mic.Start(context.Background(), func([]byte) {})
	if !errors.Is(err, domain.ErrDeviceUnavailable) {
		t.Fatalf("error: got %v, want ErrDeviceUnavailable", err)
	}
}

func TestBrowserMicrophone_Timeout(t *testing.T) {
	env := newTestEnv(t, web.ServerConfig{})
	mic := web.NewBrowserMicrophone(env.hub, 50*time.Millisecond)
	dialPage(t, env, "")

	err := mic.Start(context.Background(), func([]byte) {})
	if !errors.Is(err, domain.ErrDeviceUnavailable) {
		t.Fatalf("error: got %v, want ErrDeviceUnavailable", err)
	}
}

func TestBrowserMicrophone_LateStartAfterTimeout(t *testing.T) {
	env := newTestEnv(t, web.ServerConfig{})
	mic := web.NewBrowserMicrophone(env.hub, 100*time.Millisecond)
	conn := dialPage(t, env, "")

	startErr := make(chan error, 1)
	go func() { startErr <- mic.Start(context.Background(), func([]byte) {}) }()

	first := readMessage(t, conn)
	if first.Action != "start" {
		t.Fatalf("message: got %+v, want capture start", first)
	}
	if err := <-startErr; !errors.Is(err, domain.ErrDeviceUnavailable) {
		t.Fatalf("error: got %v, want ErrDeviceUnavailable", err)
	}
	if msg := readMessage(t, conn); msg.Action != "stop" || msg.Session != first.Session {
		t.Fatalf("message: got %+v, want stop for timed out session", msg)
	}

	// The permission prompt resolves after the server gave up.
	conn.WriteJSON(map[string]any{"type": "capture", "event": "started", "session": first.Session})
	if msg := readMessage(t, conn); msg.Action != "stop" || msg.Session != first.Session {
		t.Fatalf("message: got %+v, want stop for abandoned recorder", msg)
	}

	got := &chunks{}
	go func() { startErr <- mic.Start(context.Background(), got.add) }()

	second := readMessage(t, conn)
	if second.Action != "start" || second.Session == first.Session {
		t.Fatalf("message: got %+v, want start for a new session", second)
	}
	conn.WriteJSON(map[string]any{"type": "capture", "event": "started", "session": second.Session})
	if err := <-startErr; err != nil {
		t.Fatalf("second Start: %v", err)
	}

	conn.WriteMessage(websocket.BinaryMessage, audioFrame(second.Session, "new"))
	conn.WriteMessage(websocket.BinaryMessage, audioFrame(first.Session, "OLD"))
	conn.WriteMessage(websocket.BinaryMessage, []byte("short"))

	stopErr := make(chan error, 1)
	go func() { stopErr <- mic.Stop() }()
	readMessage(t, conn)
	conn.WriteJSON(map[string]any{"type": "capture", "event": "stopped", "session": second.Session})
	if err := <-stopErr; err != nil {
		t.Fatalf("Stop: %v", err)
	}

	if got.joined() != "new" {
		t.Errorf("chunks: got %q, want new", got.joined())
	}
}

func TestBrowserMicrophone_StopWithoutAck(t *testing.T) {
	env := newTestEnv(t, web.ServerConfig{})
	mic := web.NewBrowserMicrophone(env.hub, 100*time.Millisecond)
	conn := dialPage(t, env, "")

	got := &chunks{}
	startErr := make(chan error, 1)
	go func() { startErr <- mic.Start(context.Background(), got.add) }()

	msg := readMessage(t, conn)
	conn.WriteJSON(map[string]any{"type": "capture", "event": "started", "session": msg.Session})
	if err := <-startErr; err != nil {
		t.Fatalf("Start: %v", err)
	}

	conn.WriteMessage(websocket.BinaryMessage, audioFrame(msg.Session, "kept"))
	waitFor(t, "first chunk", func() bool { return got.joined() == "kept" })

	stopErr := make(chan error, 1)
	go func() { stopErr <- mic.Stop() }()
	if stop := readMessage(t, conn); stop.Action != "stop" {
		t.Fatalf("message: got %+v, want capture stop", stop)
	}

	select {
	case err := <-stopErr:
		if err == nil {
			t.Fatal("expected an error when the page never confirms the stop")
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Stop did not return")
	}

	conn.WriteMessage(websocket.BinaryMessage, audioFrame(msg.Session, "late"))
	conn.WriteJSON(map[string]any{"type": "capture", "event": "stopped", "session": msg.Session})
	time.Sleep(30 * time.Millisecond)
	if got.joined() != "kept" {
		t.Errorf("chunk delivered after Stop gave up: %q", got.joined())
	}
}

func TestBrowserSpeech(t *testing.T) {
	env := newTestEnv(t, web.ServerConfig{})
	speech := web.NewBrowserSpeech(env.hub)

	if err := speech.Speak(context.Background(), "hi"); err == nil {
		t.Error("expected error with no page connected")
	}

	conn := dialPage(t, env, "")
	if err := speech.Speak(context.Background(), "hi there"); err != nil {
		t.Fatalf("Speak: %v", err)
	}

	msg := readMessage(t, conn)
	if msg.Type != "speak" || msg.Text != "hi there" {
		t.Errorf("message: got %+v, want speak hi there", msg)
	}
}
