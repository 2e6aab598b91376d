package telegram

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"golang.org/x/time/rate"

	"github.com/Rajchodisetti/price-alerts/internal/adapters"
	"github.com/Rajchodisetti/price-alerts/internal/observ"
)

var (
	ErrQueueFull = errors.New("notification queue full")
	ErrClosed    = errors.New("notifier closed")
)

type messageSender interface {
	SendMessage(ctx context.Context, msg OutgoingMessage) error
}

type NotifierConfig struct {
	QueueSize     int
	MaxRetries    int
	BackoffBase   time.Duration
	RatePerSecond float64
	Burst         int
}

type NotifierMetrics struct {
	Sent       int64 `json:"sent"`
	Failed     int64 `json:"failed"`
	Dropped    int64 `json:"dropped"`
	Retries    int64 `json:"retries"`
	QueueDepth int   `json:"queue_depth"`
}

type queuedMessage struct {
	msg      OutgoingMessage
	enqueued time.Time
}

// Notifier delivers chat messages from a bounded queue on one worker, paced
// by a token bucket and retried with exponential backoff
type Notifier struct {
	sender  messageSender
	cfg     NotifierConfig
	queue   chan queuedMessage
	limiter *rate.Limiter
	sleep   adapters.Sleeper

	mu     sync.RWMutex
	closed bool

	sent    atomic.Int64
	failed  atomic.Int64
	dropped atomic.Int64
	retries atomic.Int64

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
}

func NewNotifier(sender messageSender, cfg NotifierConfig) *Notifier {
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = 100
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = 500 * time.Millisecond
	}
	if cfg.RatePerSecond <= 0 {
		cfg.RatePerSecond = 25 // Bot API allows ~30 msg/s
	}
	if cfg.Burst <= 0 {
		cfg.Burst = 5
	}

	ctx, cancel := context.WithCancel(context.Background())
	n := &Notifier{
		sender:  sender,
		cfg:     cfg,
		queue:   make(chan queuedMessage, cfg.QueueSize), // bounded queue
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSecond), cfg.Burst),
		sleep:   adapters.ContextSleep,
		ctx:     ctx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}

	go n.worker()
	return n
}

// Send queues a plain text message
func (n *Notifier) Send(ctx context.Context, chatID int64, text string) error {
	return n.Enqueue(OutgoingMessage{ChatID: chatID, Text: text})
}

// SendMenu queues a message with an inline keyboard
func (n *Notifier) SendMenu(ctx context.Context, chatID int64, text string, markup *tgbotapi.InlineKeyboardMarkup) error {
	return n.Enqueue(OutgoingMessage{ChatID: chatID, Text: text, Markup: markup})
}

// Enqueue never blocks; a full queue drops the new message
func (n *Notifier) Enqueue(msg OutgoingMessage) error {
	n.mu.RLock()
	defer n.mu.RUnlock()
	if n.closed {
		return ErrClosed
	}

	select {
	case n.queue <- queuedMessage{msg: msg, enqueued: time.Now()}:
		return nil
	default:
		n.countDropped()
		observ.Warn("notification_dropped", map[string]any{
			"chat_id":    msg.ChatID,
			"queue_size": n.cfg.QueueSize,
		})
		return ErrQueueFull
	}
}

// Close stops accepting messages and waits for the queue to drain. If ctx
// ends first, in-flight delivery is abandoned.
func (n *Notifier) Close(ctx context.Context) error {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		<-n.done
		return nil
	}
	n.closed = true
	close(n.queue)
	n.mu.Unlock()

	select {
	case <-n.done:
		n.cancel()
		return nil
	case <-ctx.Done():
		n.cancel()
		<-n.done
		return ctx.Err()
	}
}

func (n *Notifier) Metrics() NotifierMetrics {
	return NotifierMetrics{
		Sent:       n.sent.Load(),
		Failed:     n.failed.Load(),
		Dropped:    n.dropped.Load(),
		Retries:    n.retries.Load(),
		QueueDepth: len(n.queue),
	}
}

func (n *Notifier) worker() {
	defer close(n.done)
	for qm := range n.queue {
		n.deliver(qm)
	}
}

func (n *Notifier) deliver(qm queuedMessage) {
	var err error
	for attempt := 0; attempt < n.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			backoff := n.cfg.BackoffBase * time.Duration(1<<(attempt-1))
			if wait := RetryAfter(err); wait > backoff {
				backoff = wait
			}
			n.countRetry()
			if sleepErr := n.sleep(n.ctx, backoff); sleepErr != nil {
				break
			}
		}

		if waitErr := n.limiter.Wait(n.ctx); waitErr != nil {
			err = waitErr
			break
		}

		err = n.sender.SendMessage(n.ctx, qm.msg)
		if err == nil {
			n.countSent()
			observ.Debug("notification_sent", map[string]any{
				"chat_id":   qm.msg.ChatID,
				"attempts":  attempt + 1,
				"queued_ms": time.Since(qm.enqueued).Milliseconds(),
			})
			return
		}
		if !IsRetryable(err) {
			break
		}
	}

	n.countFailed()
	observ.Error("notification_failed", err, map[string]any{
		"chat_id": qm.msg.ChatID,
	})
}

func (n *Notifier) countSent() {
	n.sent.Add(1)
	observ.RecordNotification("sent")
}

func (n *Notifier) countFailed() {
	n.failed.Add(1)
	observ.RecordNotification("failed")
}

func (n *Notifier) countRetry() {
	n.retries.Add(1)
	observ.RecordNotification("retry")
}

func (n *Notifier) countDropped() {
	n.dropped.Add(1)
	observ.RecordNotification("dropped")
}
