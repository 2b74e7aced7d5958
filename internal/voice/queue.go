package voice

import (
	"context"
	"time"
)

// QueueCapturer is a Capturer fed by clients that upload recorded
// utterances instead of a local microphone.
type QueueCapturer struct {
	ch chan *Audio
}

// NewQueueCapturer buffers up to size pending utterances.
func NewQueueCapturer(size int) *QueueCapturer {
	if size <= 0 {
		size = 8
	}
	return &QueueCapturer{ch: make(chan *Audio, size)}
}

// Submit enqueues audio without blocking.
func (q *QueueCapturer) Submit(a *Audio) error {
	if a.CapturedAt.IsZero() {
		a.CapturedAt = time.Now()
	}
	select {
	case q.ch <- a:
		return nil
	default:
		return ErrQueueFull
	}
}

// Capture implements Capturer.
func (q *QueueCapturer) Capture(ctx context.Context, timeout time.Duration) (*Audio, error) {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	t := time.NewTimer(timeout)
	defer t.Stop()

	select {
	case a := <-q.ch:
		return a, nil
	case <-t.C:
		return nil, ErrNoSpeech
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
