package application

import "context"

// Notifier delivers the failure notices shown in the view to an out-of-band
// channel such as a push service.
type Notifier interface {
	Notify(ctx context.Context, message string) error
}

type NoopNotifier struct{}

func (n *NoopNotifier) Notify(_ context.Context, _ string) error {
	return nil
}
