// Package notify delivers failure notifications off the reconciliation path.
package notify

import (
	"context"
	"errors"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/eleven-am/warden/internal/domain"
	"github.com/eleven-am/warden/internal/logging"
	"github.com/eleven-am/warden/internal/metrics"
)

const (
	DefaultQueueSize = 256
	sendTimeout      = 10 * time.Second
)

var ErrClosed = errors.New("notification queue closed")

type message struct {
	subject string
	body    string
}

type Options struct {
	QueueSize int
	Metrics   *metrics.Metrics
	Logger    log.FieldLogger
}

// Queue is a domain.Notifier that never blocks. Messages are handed to a
// single worker; when the buffer is full the message is dropped and counted.
type Queue struct {
	target  domain.Notifier
	ch      chan message
	metrics *metrics.Metrics
	logger  log.FieldLogger

	mu     sync.RWMutex
	closed bool
	done   chan struct{}
}

func NewQueue(target domain.Notifier, opts Options) *Queue {
	size := opts.QueueSize
	if size <= 0 {
		size = DefaultQueueSize
	}
	q := &Queue{
		target:  target,
		ch:      make(chan message, size),
		metrics: opts.Metrics,
		logger:  logging.OrDefault(opts.Logger, "notify"),
		done:    make(chan struct{}),
	}
	go q.run()
	return q
}

// Notify enqueues the message. It only fails after Close.
func (q *Queue) Notify(ctx context.Context, subject, body string) error {
	q.mu.RLock()
	defer q.mu.RUnlock()
	if q.closed {
		return ErrClosed
	}
	select {
	case q.ch <- message{subject: subject, body: body}:
	default:
		q.metrics.NotificationDropped()
		q.logger.WithField("subject", subject).Warn("notification queue full, dropping message")
	}
	return nil
}

// Close stops accepting messages and waits until the buffered ones are sent
// or ctx expires.
func (q *Queue) Close(ctx context.Context) error {
	q.mu.Lock()
	if !q.closed {
		q.closed = true
		close(q.ch)
	}
	q.mu.Unlock()

	select {
	case <-q.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (q *Queue) run() {
	defer close(q.done)
	for msg := range q.ch {
		ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
		if err := q.target.Notify(ctx, msg.subject, msg.body); err != nil {
			q.logger.WithError(err).WithField("subject", msg.subject).Warn("failed to deliver notification")
		}
		cancel()
	}
}
