// Package pgnotify implements notify.Connector on top of PostgreSQL
// LISTEN/NOTIFY via pgx. It owns exactly one live connection at a time and
// reconnects with backoff until its context is cancelled.
package pgnotify

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"regexp"
	"sync"
	"sync/atomic"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"pglisten/internal/adapters/logger"
	dLog "pglisten/internal/domain/log"
	"pglisten/internal/domain/notify"
)

// Conn is the subset of *pgx.Conn the connector relies on. Kept small so
// tests can drive reconnect scenarios without a server.
type Conn interface {
	Exec(ctx context.Context, sql string, arguments ...any) (pgconn.CommandTag, error)
	WaitForNotification(ctx context.Context) (*pgconn.Notification, error)
	Close(ctx context.Context) error
}

// ConnectFunc opens a fresh connection to the database server.
type ConnectFunc func(ctx context.Context) (Conn, error)

// Dial returns a pgx-backed ConnectFunc for the given DSN.
func Dial(dsn string) ConnectFunc {
	return func(ctx context.Context) (Conn, error) {
		return pgx.Connect(ctx, dsn)
	}
}

const (
	defaultMinBackoff = time.Second
	defaultMaxBackoff = 10 * time.Second
	streamBuffer      = 128
)

// Config tunes the reconnect delay. Zero values take the defaults.
type Config struct {
	MinBackoff time.Duration
	MaxBackoff time.Duration
}

type Connector struct {
	connect    ConnectFunc
	log        dLog.Logger
	minBackoff time.Duration
	maxBackoff time.Duration

	listening atomic.Bool

	mu       sync.Mutex
	conn     Conn
	channels []string
}

func New(connect ConnectFunc, log dLog.Logger, cfg Config) *Connector {
	if log == nil {
		log = logger.Nop()
	}
	if cfg.MinBackoff <= 0 {
		cfg.MinBackoff = defaultMinBackoff
	}
	if cfg.MaxBackoff < cfg.MinBackoff {
		cfg.MaxBackoff = defaultMaxBackoff
	}
	return &Connector{
		connect:    connect,
		log:        log,
		minBackoff: cfg.MinBackoff,
		maxBackoff: cfg.MaxBackoff,
	}
}

var channelNameRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// validateChannel guards against injection through the LISTEN statement.
func validateChannel(ch string) error {
	if !channelNameRe.MatchString(ch) {
		return fmt.Errorf("invalid channel name: %q", ch)
	}
	return nil
}

// Listen subscribes to the given channels and returns the notification
// stream. The first connect+subscribe happens synchronously: a server-side
// rejection of the subscription is returned to the caller and never
// retried. Everything after that (network drops, dial failures, receive
// errors) is handled internally with backoff until ctx is cancelled, at
// which point the stream closes.
func (c *Connector) Listen(ctx context.Context, channels ...string) (<-chan notify.Notification, error) {
	if len(channels) == 0 {
		return nil, errors.New("pgnotify: no channels to listen on")
	}
	for _, ch := range channels {
		if err := validateChannel(ch); err != nil {
			return nil, err
		}
	}
	if !c.listening.CompareAndSwap(false, true) {
		return nil, errors.New("pgnotify: Listen already running on this instance")
	}
	c.channels = append([]string(nil), channels...)

	conn, err := c.connect(ctx)
	if err != nil {
		if ctx.Err() != nil {
			c.listening.Store(false)
			return nil, ctx.Err()
		}
		// Not fatal: the receive loop keeps dialing.
		c.log.Warn("initial connect failed", dLog.Field{Key: "err", Value: err})
		conn = nil
	} else if err := c.subscribe(ctx, conn); err != nil {
		_ = conn.Close(context.Background())
		conn = nil
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) {
			// The server rejected the subscription itself; retrying
			// with the same channel set cannot succeed.
			c.listening.Store(false)
			return nil, fmt.Errorf("subscribe rejected: %w", err)
		}
		c.log.Warn("initial subscribe failed", dLog.Field{Key: "err", Value: err})
	}
	c.setConn(conn)

	out := make(chan notify.Notification, streamBuffer)
	go c.receiveLoop(ctx, conn, out)
	return out, nil
}

func (c *Connector) receiveLoop(ctx context.Context, conn Conn, out chan<- notify.Notification) {
	defer close(out)
	defer c.listening.Store(false)

	for {
		if conn == nil {
			var err error
			if conn, err = c.reconnect(ctx); err != nil {
				return
			}
		}

		ntf, err := conn.WaitForNotification(ctx)
		if err != nil {
			_ = conn.Close(context.Background())
			c.setConn(nil)
			conn = nil
			if ctx.Err() != nil {
				return
			}
			c.log.Warn("connection lost", dLog.Field{Key: "err", Value: err})
			continue
		}

		n := notify.Notification{
			Channel:    ntf.Channel,
			Payload:    ntf.Payload,
			ReceivedAt: time.Now(),
		}
		select {
		case out <- n:
		case <-ctx.Done():
			_ = conn.Close(context.Background())
			c.setConn(nil)
			return
		}
	}
}

// reconnect dials and resubscribes until it succeeds or ctx is cancelled.
// The delay doubles from minBackoff up to maxBackoff, with up to 50%
// jitter on top so a fleet of listeners does not resubscribe in lockstep.
func (c *Connector) reconnect(ctx context.Context) (Conn, error) {
	delay := c.minBackoff
	for {
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(withJitter(delay)):
		}

		conn, err := c.connect(ctx)
		if err == nil {
			if err = c.subscribe(ctx, conn); err == nil {
				c.setConn(conn)
				c.log.Info("listening resumed", dLog.Field{Key: "channels", Value: c.channels})
				return conn, nil
			}
			_ = conn.Close(context.Background())
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		c.log.Warn("reconnect failed", dLog.Field{Key: "err", Value: err})

		if delay < c.maxBackoff {
			delay *= 2
			if delay > c.maxBackoff {
				delay = c.maxBackoff
			}
		}
	}
}

// subscribe resets any leftover subscriptions on the connection and issues
// one LISTEN per channel. Channel names were validated in Listen.
func (c *Connector) subscribe(ctx context.Context, conn Conn) error {
	if _, err := conn.Exec(ctx, "UNLISTEN *"); err != nil {
		return fmt.Errorf("UNLISTEN *: %w", err)
	}
	for _, ch := range c.channels {
		if _, err := conn.Exec(ctx, "LISTEN "+ch); err != nil {
			return fmt.Errorf("LISTEN %s: %w", ch, err)
		}
	}
	return nil
}

func withJitter(d time.Duration) time.Duration {
	return d + rand.N(d/2+1)
}

func (c *Connector) setConn(conn Conn) {
	c.mu.Lock()
	c.conn = conn
	c.mu.Unlock()
}

// Close closes the currently held connection, if any. Idempotent.
func (c *Connector) Close() error {
	c.mu.Lock()
	conn := c.conn
	c.conn = nil
	c.mu.Unlock()
	if conn == nil {
		return nil
	}
	return conn.Close(context.Background())
}
