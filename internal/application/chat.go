package application

import "context"

// ChatCompleter sends a single-turn prompt and returns the reply text.
type ChatCompleter interface {
	Complete(ctx context.Context, prompt string) (string, error)
}
