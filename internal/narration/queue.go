package narration

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

const (
	DefaultQueueSize = 16
	DefaultTimeout   = 15 * time.Second
)

// Announcer speaks one text. Implementations may reject concurrent calls.
type Announcer interface {
	Announce(ctx context.Context, text string) error
}

// Queue serializes announcements: one provider call at a time, failures are logged and dropped.
type Queue struct {
	logger    *slog.Logger
	announcer Announcer
	timeout   time.Duration

	texts chan string
	once  sync.Once
	done  chan struct{}
}

func NewQueue(logger *slog.Logger, announcer Announcer, size int, timeout time.Duration) *Queue {
	if size < 1 {
		size = DefaultQueueSize
	}

	if timeout <= 0 {
		timeout = DefaultTimeout
	}

	return &Queue{
		logger:    logger.With("component", "narration"),
		announcer: announcer,
		timeout:   timeout,

		texts: make(chan string, size),
		done:  make(chan struct{}),
	}
}

// Say - enqueues a text without waiting. A full queue drops the text.
func (that *Queue) Say(text string) {
	if text == "" {
		return
	}

	select {
	case that.texts <- text:
	default:
		that.logger.Warn("narration queue is full, dropping text", "text", text)
	}
}

// Run - processes the queue until the context is done.
func (that *Queue) Run(ctx context.Context) {
	defer that.once.Do(func() { close(that.done) })

	for {
		select {
		case <-ctx.Done():
			return
		case text := <-that.texts:
			that.announce(ctx, text)
		}
	}
}

// Done is closed when Run returns.
func (that *Queue) Done() <-chan struct{} {
	return that.done
}

func (that *Queue) announce(ctx context.Context, text string) {
	log := that.logger.With("method", "announce")

	callCtx, cancel := context.WithTimeout(ctx, that.timeout)
	defer cancel()

	if err := that.announcer.Announce(callCtx, text); err != nil {
		log.Error("narration failed", "error", err, "text", text)
	}
}

// Discard is an Announcer that does nothing. Used when no provider is configured.
type Discard struct{}

func (Discard) Announce(context.Context, string) error {
	return nil
}
