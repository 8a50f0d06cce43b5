package web

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"sync"
	"time"

	"voice-assistant/internal/domain"
)

const DefaultCaptureTimeout = 30 * time.Second

// Audio frames from the page start with the capture session id as a
// big-endian uint64.
const frameHeaderSize = 8

var errNoPage = errors.New("no page connected")

// BrowserMicrophone records through the page's MediaRecorder. Audio arrives
// as binary websocket frames tagged with the session they belong to; frames
// for any other session are dropped.
type BrowserMicrophone struct {
	hub     *Hub
	timeout time.Duration

	mu        sync.Mutex
	session   uint64
	active    *capture
	mediaType string
}

type capture struct {
	session uint64
	client  *client
	onChunk func([]byte)
	started chan error

	stopOnce sync.Once
	stopped  chan struct{}
}

func (c *capture) report(err error) {
	select {
	case c.started <- err:
	default:
	}
}

func (c *capture) markStopped() {
	c.stopOnce.Do(func() { close(c.stopped) })
}

func NewBrowserMicrophone(hub *Hub, timeout time.Duration) *BrowserMicrophone {
	if timeout <= 0 {
		timeout = DefaultCaptureTimeout
	}
	m := &BrowserMicrophone{
		hub:       hub,
		timeout:   timeout,
		mediaType: domain.MediaTypeWebM,
	}
	hub.setCapture(m)
	return m
}

func (m *BrowserMicrophone) Name() string {
	return "browser"
}

func (m *BrowserMicrophone) MediaType() string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.mediaType
}

// Encode returns the data unchanged; MediaRecorder output is already a
// complete container once all chunks are joined.
func (m *BrowserMicrophone) Encode(raw []byte) ([]byte, error) {
	return raw, nil
}

// Start asks the most recently active page to begin recording and waits for
// it to report whether microphone access was granted.
func (m *BrowserMicrophone) Start(ctx context.Context, onChunk func([]byte)) error {
	c := m.hub.primaryClient()
	if c == nil {
		return fmt.Errorf("%w: %w", domain.ErrDeviceUnavailable, errNoPage)
	}

	m.mu.Lock()
	if m.active != nil {
		m.mu.Unlock()
		return nil
	}
	m.session++
	sess := &capture{
		session: m.session,
		client:  c,
		onChunk: onChunk,
		started: make(chan error, 1),
		stopped: make(chan struct{}),
	}
	m.active = sess
	m.mu.Unlock()

	if !m.hub.Send(c, serverMessage{Type: "capture", Action: "start", Session: sess.session}) {
		m.clear(sess)
		return fmt.Errorf("%w: %w", domain.ErrDeviceUnavailable, errNoPage)
	}

	timer := time.NewTimer(m.timeout)
	defer timer.Stop()

	select {
	case err := <-sess.started:
		if err != nil {
			m.clear(sess)
			return err
		}
		return nil
	case <-sess.stopped:
		m.clear(sess)
		return fmt.Errorf("%w: page disconnected", domain.ErrDeviceUnavailable)
	case <-timer.C:
		m.clear(sess)
		m.hub.Send(c, serverMessage{Type: "capture", Action: "stop", Session: sess.session})
		return fmt.Errorf("%w: page did not answer within %s", domain.ErrDeviceUnavailable, m.timeout)
	case <-ctx.Done():
		m.clear(sess)
		return ctx.Err()
	}
}

// Stop asks the page to finish recording and waits until it has flushed its
// last chunk. No chunk is delivered after Stop returns.
func (m *BrowserMicrophone) Stop() error {
	m.mu.Lock()
	sess := m.active
	m.mu.Unlock()

	if sess == nil {
		return nil
	}
	defer m.clear(sess)

	if !m.hub.Send(sess.client, serverMessage{Type: "capture", Action: "stop", Session: sess.session}) {
		return fmt.Errorf("requesting capture stop: %w", errNoPage)
	}

	timer := time.NewTimer(m.timeout)
	defer timer.Stop()

	select {
	case <-sess.stopped:
		return nil
	case <-timer.C:
		return fmt.Errorf("page did not finish recording within %s", m.timeout)
	}
}

func (m *BrowserMicrophone) clear(sess *capture) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.active == sess {
		m.active = nil
	}
}

func (m *BrowserMicrophone) handleAudio(c *client, data []byte) {
	if len(data) < frameHeaderSize {
		return
	}
	session := binary.BigEndian.Uint64(data[:frameHeaderSize])

	m.mu.Lock()
	defer m.mu.Unlock()

	sess := m.active
	if sess == nil || sess.client != c || sess.session != session {
		return
	}
	select {
	case <-sess.stopped:
		return
	default:
	}
	sess.onChunk(data[frameHeaderSize:])
}

func (m *BrowserMicrophone) handleCaptureEvent(c *client, msg clientMessage) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sess := m.active
	if sess == nil || sess.client != c || sess.session != msg.Session {
		// A page that starts recording after its session was abandoned
		// must release the microphone again.
		if msg.Event == "started" {
			m.hub.Send(c, serverMessage{Type: "capture", Action: "stop", Session: msg.Session})
		}
		return
	}

	switch msg.Event {
	case "started":
		if msg.Mime != "" {
			m.mediaType = msg.Mime
		}
		sess.report(nil)
	case "error":
		sess.report(classifyCaptureError(msg.Error))
	case "stopped":
		sess.markStopped()
	}
}

func (m *BrowserMicrophone) clientLeft(c *client) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.active != nil && m.active.client == c {
		m.active.markStopped()
	}
}

// classifyCaptureError maps getUserMedia DOMException names.
func classifyCaptureError(name string) error {
	switch name {
	case "NotAllowedError", "SecurityError", "PermissionDeniedError":
		return fmt.Errorf("%w: %s", domain.ErrPermissionDenied, name)
	case "":
		return domain.ErrDeviceUnavailable
	default:
		return fmt.Errorf("%w: %s", domain.ErrDeviceUnavailable, name)
	}
}
