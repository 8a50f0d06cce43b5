package web

import (
	"context"
	"fmt"
)

// BrowserSpeech speaks through the page's speechSynthesis API.
type BrowserSpeech struct {
	hub *Hub
}

func NewBrowserSpeech(hub *Hub) *BrowserSpeech {
	return &BrowserSpeech{hub: hub}
}

func (s *BrowserSpeech) Speak(_ context.Context, text string) error {
	if s.hub.Broadcast(serverMessage{Type: "speak", Text: text}) == 0 {
		return fmt.Errorf("speaking: %w", errNoPage)
	}
	return nil
}
