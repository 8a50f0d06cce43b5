package tts

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// Espeak runs the espeak-ng command line synthesizer.
type Espeak struct {
	binary string
	voice  string
	speed  int
}

func NewEspeak(binary, voice string, speed int) *Espeak {
	if binary == "" {
		binary = "espeak-ng"
	}
	return &Espeak{binary: binary, voice: voice, speed: speed}
}

func (e *Espeak) Name() string {
	return "espeak"
}

func (e *Espeak) Say(ctx context.Context, text string) error {
	cmd := e.command(ctx, text)

	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return fmt.Errorf("running %s: %w: %s", e.binary, err, msg)
		}
		return fmt.Errorf("running %s: %w", e.binary, err)
	}
	return nil
}

func (e *Espeak) command(ctx context.Context, text string) *exec.Cmd {
	args := make([]string, 0, 6)
	if e.voice != "" {
		args = append(args, "-v", e.voice)
	}
	if e.speed > 0 {
		args = append(args, "-s", strconv.Itoa(e.speed))
	}
	// "--" keeps replies starting with a dash from being read as flags.
	args = append(args, "--", text)
	return exec.CommandContext(ctx, e.binary, args...)
}
