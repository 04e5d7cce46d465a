package convlog

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

const saveTimeout = 10 * time.Second

// Writer decouples the user-visible reply from the conversation save: the
// handler enqueues and moves on, a single goroutine drains the queue in
// order. When the queue is full the exchange is dropped with a log line
// rather than blocking the handler.
type Writer struct {
	store  *Store
	logger *slog.Logger
	queue  chan Exchange

	mu     sync.Mutex
	closed bool
	done   chan struct{}
}

func NewWriter(store *Store, logger *slog.Logger, queueSize int) *Writer {
	if logger == nil {
		logger = slog.Default()
	}
	if queueSize <= 0 {
		queueSize = 256
	}
	w := &Writer{
		store:  store,
		logger: logger,
		queue:  make(chan Exchange, queueSize),
		done:   make(chan struct{}),
	}
	go w.run()
	return w
}

// Enqueue schedules a best-effort save and returns immediately. After
// Close the exchange is dropped like any other overflow.
func (w *Writer) Enqueue(ex Exchange) {
	if w == nil {
		return
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.closed {
		w.logger.Warn("conversation save dropped: writer closed",
			"telegram_id", ex.TelegramID)
		return
	}
	select {
	case w.queue <- ex:
	default:
		w.logger.Warn("conversation save dropped: queue full",
			"telegram_id", ex.TelegramID)
	}
}

// Close stops accepting work and drains what was already queued.
func (w *Writer) Close() {
	if w == nil {
		return
	}
	w.mu.Lock()
	if w.closed {
		w.mu.Unlock()
		return
	}
	w.closed = true
	close(w.queue)
	w.mu.Unlock()
	<-w.done
}

func (w *Writer) run() {
	defer close(w.done)
	for ex := range w.queue {
		ctx, cancel := context.WithTimeout(context.Background(), saveTimeout)
		if err := w.store.Save(ctx, ex); err != nil {
			w.logger.Warn("conversation save failed",
				"telegram_id", ex.TelegramID, "error", err)
		}
		cancel()
	}
}
