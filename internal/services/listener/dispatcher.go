package listener

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	dLog "pglisten/internal/domain/log"
	"pglisten/internal/domain/notify"
)

// dispatcher fans one notification stream out to independent per-channel
// delivery loops. The routing loop is the sole writer of every queue, each
// delivery loop the sole reader of its own, so channels never contend
// with each other.
type dispatcher struct {
	timeout time.Duration
	log     dLog.Logger
	regs    map[string]notify.Registration
	queues  map[string]*queue
}

func newDispatcher(regs []notify.Registration, timeout time.Duration, log dLog.Logger) (*dispatcher, error) {
	d := &dispatcher{
		timeout: timeout,
		log:     log,
		regs:    make(map[string]notify.Registration, len(regs)),
		queues:  make(map[string]*queue, len(regs)),
	}
	for _, reg := range regs {
		if reg.Channel == "" {
			return nil, errors.New("listener: registration with empty channel")
		}
		if reg.Handler == nil {
			return nil, fmt.Errorf("listener: nil handler for channel %s", reg.Channel)
		}
		if _, dup := d.regs[reg.Channel]; dup {
			return nil, fmt.Errorf("listener: duplicate registration for channel %s", reg.Channel)
		}
		if reg.Policy == "" {
			reg.Policy = notify.ListenAll
		}
		d.regs[reg.Channel] = reg
		d.queues[reg.Channel] = newQueue(reg.Policy)
	}
	return d, nil
}

// run routes the stream and drives the delivery loops. It returns once
// ctx is cancelled (or the stream closed) and every loop has unwound.
func (d *dispatcher) run(ctx context.Context, stream <-chan notify.Notification) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg sync.WaitGroup
	for ch, reg := range d.regs {
		wg.Add(1)
		go func(reg notify.Registration, q *queue) {
			defer wg.Done()
			d.deliver(ctx, reg, q)
		}(reg, d.queues[ch])
	}

	d.route(ctx, stream)
	cancel()
	wg.Wait()
}

func (d *dispatcher) route(ctx context.Context, stream <-chan notify.Notification) {
	for {
		select {
		case <-ctx.Done():
			return
		case n, ok := <-stream:
			if !ok {
				return
			}
			q, ok := d.queues[n.Channel]
			if !ok {
				// NOTIFY from an unrelated session; drop it.
				d.log.Debug("no registration for channel", dLog.Field{Key: "channel", Value: n.Channel})
				continue
			}
			q.push(n)
		}
	}
}

// deliver is one channel's loop: drain the queue, otherwise wait up to
// timeout for the next item and emit a Timeout heartbeat when the window
// elapses. With NoTimeout the wait is unbounded and no heartbeat exists.
func (d *dispatcher) deliver(ctx context.Context, reg notify.Registration, q *queue) {
	var timer *time.Timer
	if d.timeout > notify.NoTimeout {
		timer = time.NewTimer(d.timeout)
		defer timer.Stop()
	}

	for {
		if n, ok := q.pop(); ok {
			d.invoke(ctx, reg, n)
			continue
		}

		var timeoutC <-chan time.Time
		if timer != nil {
			if !timer.Stop() {
				select {
				case <-timer.C:
				default:
				}
			}
			timer.Reset(d.timeout)
			timeoutC = timer.C
		}

		select {
		case <-ctx.Done():
			return
		case <-q.wake:
		case <-timeoutC:
			d.invoke(ctx, reg, notify.Timeout{Channel: reg.Channel})
		}
	}
}

// invoke shields the loop from a misbehaving handler: errors are logged,
// panics recovered, the loop continues either way.
func (d *dispatcher) invoke(ctx context.Context, reg notify.Registration, ev notify.Event) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Error("handler panicked",
				dLog.Field{Key: "channel", Value: reg.Channel},
				dLog.Field{Key: "panic", Value: r})
		}
	}()
	if err := reg.Handler(ctx, ev); err != nil {
		d.log.Error("handler failed",
			dLog.Field{Key: "channel", Value: reg.Channel},
			dLog.Field{Key: "err", Value: err})
	}
}
