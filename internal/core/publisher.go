package core

import (
	"context"
	"sync/atomic"

	"cockpit-service/internal/logger"
)

const publishQueueSize = 256

// publisher carries host and mirror writes off the scheduler goroutine so a
// slow Redis or broker never stretches a tick.
type publisher struct {
	queue   chan func()
	logger  *logger.Logger
	dropped atomic.Uint64
}

func newPublisher(size int, l *logger.Logger) *publisher {
	return &publisher{queue: make(chan func(), size), logger: l}
}

// enqueue never blocks. When the queue is full the write is dropped.
func (p *publisher) enqueue(fn func()) {
	select {
	case p.queue <- fn:
	default:
		if n := p.dropped.Add(1); n == 1 || n%100 == 0 {
			p.logger.Warnf("Publish queue full, %d writes dropped", n)
		}
	}
}

// run performs queued writes until ctx is cancelled.
func (p *publisher) run(ctx context.Context) {
	for {
		select {
		case fn := <-p.queue:
			fn()
		case <-ctx.Done():
			return
		}
	}
}

// drain performs every queued write on the calling goroutine.
func (p *publisher) drain() {
	for {
		select {
		case fn := <-p.queue:
			fn()
		default:
			return
		}
	}
}
