package audio

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"voice-assistant/internal/domain"
)

const (
	DefaultChunkSize     = 4096
	DefaultChunkInterval = 100 * time.Millisecond
)

// FileMicrophone replays a prerecorded file as if it were being captured.
// Each Start replays the file from the beginning.
type FileMicrophone struct {
	path      string
	chunkSize int
	interval  time.Duration
	logger    *slog.Logger

	mu   sync.Mutex
	stop chan struct{}
	done chan struct{}
}

func NewFileMicrophone(path string, logger *slog.Logger) *FileMicrophone {
	return &FileMicrophone{
		path:      path,
		chunkSize: DefaultChunkSize,
		interval:  DefaultChunkInterval,
		logger:    logger,
	}
}

func (f *FileMicrophone) WithChunking(size int, interval time.Duration) *FileMicrophone {
	if size > 0 {
		f.chunkSize = size
	}
	f.interval = interval
	return f
}

func (f *FileMicrophone) Name() string {
	return "file"
}

func (f *FileMicrophone) MediaType() string {
	switch strings.ToLower(filepath.Ext(f.path)) {
	case ".wav":
		return domain.MediaTypeWAV
	case ".mp3":
		return "audio/mpeg"
	case ".ogg", ".oga":
		return "audio/ogg"
	case ".m4a":
		return "audio/mp4"
	default:
		return domain.MediaTypeWebM
	}
}

// Encode returns the data unchanged; the file is already in its container.
func (f *FileMicrophone) Encode(raw []byte) ([]byte, error) {
	return raw, nil
}

func (f *FileMicrophone) Start(ctx context.Context, onChunk func([]byte)) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.stop != nil {
		return nil
	}

	data, err := os.ReadFile(f.path)
	if err != nil {
		if errors.Is(err, fs.ErrPermission) {
			return fmt.Errorf("%w: %w", domain.ErrPermissionDenied, err)
		}
		return fmt.Errorf("%w: reading %s: %w", domain.ErrDeviceUnavailable, f.path, err)
	}

	f.stop = make(chan struct{})
	f.done = make(chan struct{})

	go f.replay(ctx, data, onChunk, f.stop, f.done)

	f.logger.Info("replaying audio file", "path", f.path, "bytes", len(data))
	return nil
}

func (f *FileMicrophone) replay(ctx context.Context, data []byte, onChunk func([]byte), stop, done chan struct{}) {
	defer close(done)

	for len(data) > 0 {
		n := min(f.chunkSize, len(data))
		onChunk(data[:n])
		data = data[n:]

		if f.interval <= 0 {
			continue
		}
		select {
		case <-stop:
			return
		case <-ctx.Done():
			return
		case <-time.After(f.interval):
		}
	}
}

func (f *FileMicrophone) Stop() error {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.stop == nil {
		return nil
	}

	close(f.stop)
	<-f.done
	f.stop = nil
	f.done = nil
	return nil
}
