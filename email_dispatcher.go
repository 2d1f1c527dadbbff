package goGate

import (
	"context"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
)

// emailDispatcher hands messages to the EmailSender, inline or through a buffered
// worker. Send failures are logged and counted and never reach the caller.
type emailDispatcher struct {
	cfg       EmailConfig
	sender    EmailSender
	logger    *zap.Logger
	onFailure func()
	ch        chan EmailMessage
	done      chan struct{}
	wg        sync.WaitGroup
	failed    atomic.Uint64
	mu        sync.RWMutex
	closed    bool
	closeOnce sync.Once
}

func newEmailDispatcher(cfg EmailConfig, sender EmailSender, logger *zap.Logger, onFailure func()) *emailDispatcher {
	if sender == nil {
		return nil
	}
	if cfg.BufferSize <= 0 {
		cfg.BufferSize = 1
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if onFailure == nil {
		onFailure = func() {}
	}

	d := &emailDispatcher{
		cfg:       cfg,
		sender:    sender,
		logger:    logger,
		onFailure: onFailure,
		done:      make(chan struct{}),
	}

	if cfg.Async {
		d.ch = make(chan EmailMessage, cfg.BufferSize)
		d.wg.Add(1)
		go d.run()
	}

	return d
}

func (d *emailDispatcher) run() {
	defer d.wg.Done()

	for {
		select {
		case msg := <-d.ch:
			d.deliver(context.Background(), msg)
		case <-d.done:
			for {
				select {
				case msg := <-d.ch:
					d.deliver(context.Background(), msg)
				default:
					return
				}
			}
		}
	}
}

func (d *emailDispatcher) deliver(ctx context.Context, msg EmailMessage) {
	if err := d.sender.Send(ctx, msg); err != nil {
		d.fail(msg, err)
	}
}

func (d *emailDispatcher) fail(msg EmailMessage, err error) {
	d.failed.Add(1)
	d.onFailure()
	d.logger.Warn("email send failed",
		zap.String("kind", string(msg.Kind)),
		zap.Error(err),
	)
}

// Send never blocks past a full buffer. An overflow or a send after Close counts as a
// failed send.
func (d *emailDispatcher) Send(ctx context.Context, msg EmailMessage) {
	if d == nil {
		return
	}
	if ctx == nil {
		ctx = context.Background()
	}

	// Close waits for the write lock, so anything enqueued here is drained.
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		d.fail(msg, errEmailDispatcherClosed)
		return
	}

	if !d.cfg.Async {
		d.deliver(context.WithoutCancel(ctx), msg)
		return
	}

	select {
	case d.ch <- msg:
	default:
		d.fail(msg, errEmailBufferFull)
	}
}

func (d *emailDispatcher) Close() {
	if d == nil {
		return
	}
	d.closeOnce.Do(func() {
		d.mu.Lock()
		d.closed = true
		close(d.done)
		d.mu.Unlock()
		d.wg.Wait()
	})
}

func (d *emailDispatcher) Failed() uint64 {
	if d == nil {
		return 0
	}
	return d.failed.Load()
}
