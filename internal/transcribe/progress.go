package transcribe

import (
	"context"
	"sync"
	"time"
)

// DefaultPollInterval is how long Forward waits for an event before it
// re-checks whether the run has finished.
const DefaultPollInterval = 100 * time.Millisecond

// ProgressChannel is an unbounded FIFO handoff from one producer to one
// consumer. Push never blocks; event volume is bounded by the chunk count.
type ProgressChannel struct {
	mu     sync.Mutex
	queue  []ProgressEvent
	notify chan struct{}
}

func NewProgressChannel() *ProgressChannel {
	return &ProgressChannel{notify: make(chan struct{}, 1)}
}

// Push enqueues ev. It is usable directly as a Sink.
func (p *ProgressChannel) Push(ev ProgressEvent) {
	p.mu.Lock()
	p.queue = append(p.queue, ev)
	p.mu.Unlock()
	select {
	case p.notify <- struct{}{}:
	default:
	}
}

func (p *ProgressChannel) pop() (ProgressEvent, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.queue) == 0 {
		return ProgressEvent{}, false
	}
	ev := p.queue[0]
	p.queue[0] = ProgressEvent{}
	p.queue = p.queue[1:]
	return ev, true
}

// Poll returns the oldest event, waiting up to timeout for one to arrive.
// A timeout is reported as ok == false and is not an error.
func (p *ProgressChannel) Poll(ctx context.Context, timeout time.Duration) (ProgressEvent, bool) {
	if ev, ok := p.pop(); ok {
		return ev, true
	}
	t := time.NewTimer(timeout)
	defer t.Stop()
	select {
	case <-p.notify:
		return p.pop()
	case <-t.C:
		return p.pop()
	case <-ctx.Done():
		return ProgressEvent{}, false
	}
}

// Drain removes and returns every buffered event in order.
func (p *ProgressChannel) Drain() []ProgressEvent {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := p.queue
	p.queue = nil
	return out
}

// Len reports the number of buffered events.
func (p *ProgressChannel) Len() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.queue)
}

// Forward delivers events to fn until done is closed, then drains whatever
// is left so nothing pushed before done closed is lost. It stops early when
// ctx ends or fn fails.
func (p *ProgressChannel) Forward(ctx context.Context, done <-chan struct{}, interval time.Duration, fn func(ProgressEvent) error) error {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	for {
		select {
		case <-done:
			for _, ev := range p.Drain() {
				if err := fn(ev); err != nil {
					return err
				}
			}
			return nil
		default:
		}

		ev, ok := p.Poll(ctx, interval)
		if err := ctx.Err(); err != nil {
			return err
		}
		if !ok {
			continue
		}
		if err := fn(ev); err != nil {
			return err
		}
	}
}
