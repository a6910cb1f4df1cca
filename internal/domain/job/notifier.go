package job

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrWaiterRequired indicates a notifier cannot be constructed without a waiter.
var ErrWaiterRequired = errors.New("notifier waiter is required")

// Waiter blocks until a job is added to the queue or ctx ends.
type Waiter interface {
	WaitForNotification(ctx context.Context, queue string) error
}

// Notifier fans queue wakeups out to idle workers.
type Notifier interface {
	Subscribe(queue string) (func(), <-chan struct{})
	StopAll()
}

// NotifierOptions configure DefaultNotifier.
type NotifierOptions struct {
	Waiter Waiter
	// WaitWindow bounds a single wait so delayed jobs become visible without a NOTIFY.
	WaitWindow time.Duration
	// RetryDelay is the pause after a failed wait.
	RetryDelay time.Duration
}

type topic struct {
	cancel context.CancelFunc
	subs   map[chan struct{}]struct{}
}

// DefaultNotifier runs one listener goroutine per subscribed queue and
// broadcasts every wakeup (or wait-window expiry) to that queue's subscribers.
type DefaultNotifier struct {
	waiter     Waiter
	waitWindow time.Duration
	retryDelay time.Duration

	mu     sync.Mutex
	topics map[string]*topic
}

// NewNotifier constructs a DefaultNotifier.
func NewNotifier(opts NotifierOptions) (*DefaultNotifier, error) {
	if opts.Waiter == nil {
		return nil, ErrWaiterRequired
	}
	n := &DefaultNotifier{
		waiter:     opts.Waiter,
		waitWindow: opts.WaitWindow,
		retryDelay: opts.RetryDelay,
		topics:     make(map[string]*topic),
	}
	if n.waitWindow <= 0 {
		n.waitWindow = 5 * time.Second
	}
	if n.retryDelay <= 0 {
		n.retryDelay = 250 * time.Millisecond
	}
	return n, nil
}

// Subscribe registers a wakeup channel for queue. The returned func unsubscribes;
// the channel is closed on unsubscribe or StopAll.
func (n *DefaultNotifier) Subscribe(queue string) (func(), <-chan struct{}) {
	n.mu.Lock()
	defer n.mu.Unlock()

	t, ok := n.topics[queue]
	if !ok {
		ctx, cancel := context.WithCancel(context.Background())
		t = &topic{cancel: cancel, subs: make(map[chan struct{}]struct{})}
		n.topics[queue] = t
		go n.listen(ctx, queue)
	}

	ch := make(chan struct{}, 1)
	t.subs[ch] = struct{}{}

	var once sync.Once
	unsub := func() {
		once.Do(func() { n.unsubscribe(queue, ch) })
	}
	return unsub, ch
}

func (n *DefaultNotifier) unsubscribe(queue string, ch chan struct{}) {
	n.mu.Lock()
	defer n.mu.Unlock()

	t, ok := n.topics[queue]
	if !ok {
		return
	}
	if _, ok := t.subs[ch]; !ok {
		return
	}
	delete(t.subs, ch)
	drainAndClose(ch)
	if len(t.subs) == 0 {
		t.cancel()
		delete(n.topics, queue)
	}
}

// StopAll cancels every listener and closes every subscription.
func (n *DefaultNotifier) StopAll() {
	n.mu.Lock()
	defer n.mu.Unlock()

	for queue, t := range n.topics {
		t.cancel()
		for ch := range t.subs {
			drainAndClose(ch)
		}
		delete(n.topics, queue)
	}
}

func (n *DefaultNotifier) listen(ctx context.Context, queue string) {
	for ctx.Err() == nil {
		waitCtx, cancel := context.WithTimeout(ctx, n.waitWindow)
		err := n.waiter.WaitForNotification(waitCtx, queue)
		cancel()

		n.broadcast(queue)

		if err == nil || ctx.Err() != nil || errors.Is(err, context.DeadlineExceeded) {
			continue
		}
		select {
		case <-ctx.Done():
			return
		case <-time.After(n.retryDelay):
		}
	}
}

func (n *DefaultNotifier) broadcast(queue string) {
	n.mu.Lock()
	defer n.mu.Unlock()

	t, ok := n.topics[queue]
	if !ok {
		return
	}
	for ch := range t.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// drainAndClose empties the buffer first so receivers observe the close immediately.
func drainAndClose(ch chan struct{}) {
	for {
		select {
		case <-ch:
		default:
			close(ch)
			return
		}
	}
}

var _ Notifier = (*DefaultNotifier)(nil)
