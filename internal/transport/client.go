package transport

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/danmuck/cxlctl/internal/logging"
	"github.com/danmuck/cxlctl/internal/observability"
	"github.com/danmuck/cxlctl/internal/protocol/mctp"
)

// Client is a Bus over one stream connection to a switch endpoint.
type Client struct {
	cfg    Config
	conn   net.Conn
	pool   *Pool
	outbox *Outbox
	log    zerolog.Logger

	rngMu sync.Mutex
	rng   *rand.Rand

	writeMu   sync.Mutex
	closeOnce sync.Once
	closed    chan struct{}
	wg        sync.WaitGroup
}

// Dial connects to the endpoint in cfg, through the SSH jump host when one
// is configured.
func Dial(ctx context.Context, cfg Config) (*Client, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	dialer, err := NewDialer(cfg)
	if err != nil {
		return nil, err
	}
	dctx, cancel := context.WithTimeout(ctx, cfg.DialTimeout)
	defer cancel()
	conn, err := dialer.DialContext(dctx, "tcp", cfg.Endpoint())
	if err != nil {
		return nil, fmt.Errorf("%w: dial %s: %v", ErrNotReady, cfg.Endpoint(), err)
	}
	return NewClient(conn, cfg), nil
}

// NewClient starts a client on an established connection.
func NewClient(conn net.Conn, cfg Config) *Client {
	if cfg.PoolSize < 2 {
		cfg.PoolSize = DefaultConfig().PoolSize
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}
	c := &Client{
		cfg:    cfg,
		conn:   conn,
		pool:   NewPool(cfg.PoolSize),
		outbox: NewOutbox(),
		log:    logging.Component("mctp", cfg.Verbosity),
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
		closed: make(chan struct{}),
	}
	c.wg.Add(1)
	go c.readLoop()
	return c
}

func (c *Client) Pool() *Pool { return c.pool }

// Submit copies the payload into a pooled buffer, assigns a message tag and
// sends the request. The returned action completes on response, timeout
// after the last retry, or connection close.
func (c *Client) Submit(ctx context.Context, s Submission) (*Action, error) {
	select {
	case <-c.closed:
		return nil, ErrClosed
	default:
	}
	if len(s.Payload) > mctp.MaxBodyLen {
		return nil, fmt.Errorf("%w: %d bytes", mctp.ErrBodyTooLarge, len(s.Payload))
	}
	if s.Timeout <= 0 {
		s.Timeout = c.cfg.Timeout
	}

	req, err := c.pool.Acquire(ctx)
	if err != nil {
		return nil, err
	}
	if err := req.Set(s.Payload); err != nil {
		req.Release()
		return nil, err
	}

	a := newAction(s, req)
	tag, err := c.outbox.Reserve(a)
	if err != nil {
		req.Release()
		return nil, err
	}

	if err := c.send(a); err != nil {
		c.outbox.Remove(tag, a)
		req.Release()
		return nil, err
	}
	observability.RecordSubmitted(s.Type.String())

	c.wg.Add(1)
	go c.watch(a)
	return a, nil
}

// Retire frees the tag and buffers held by a.
func (c *Client) Retire(a *Action) {
	if a == nil {
		return
	}
	c.outbox.Remove(a.Tag, a)
	a.release()
}

// Close stops the reader, fails every in-flight action and closes the
// connection.
func (c *Client) Close() error {
	var err error
	c.closeOnce.Do(func() {
		close(c.closed)
		err = c.conn.Close()
		for _, a := range c.outbox.Drain() {
			c.complete(a, nil, ErrClosed)
		}
	})
	c.wg.Wait()
	return err
}

func (c *Client) send(a *Action) error {
	n := a.attempt()
	f := mctp.Frame{
		Header: mctp.Header{
			Dest:     c.cfg.DestEID,
			Source:   c.cfg.SourceEID,
			TagOwner: true,
			Tag:      a.Tag,
			Type:     a.Type,
		},
		Body: a.Request(),
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.cfg.WriteTimeout > 0 {
		_ = c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	}
	if err := mctp.WriteFrame(c.conn, f); err != nil {
		return fmt.Errorf("%w: write: %v", ErrNotReady, err)
	}
	c.log.Trace().
		Str("action", a.ID.String()).
		Str("family", a.Type.String()).
		Uint8("tag", a.Tag).
		Int("attempt", n).
		Int("len", len(f.Body)).
		Msg("request sent")
	return nil
}

// watch enforces the per-attempt timeout and resends while retries remain.
func (c *Client) watch(a *Action) {
	defer c.wg.Done()
	for {
		timer := time.NewTimer(a.Timeout)
		select {
		case <-a.done:
			timer.Stop()
			return
		case <-c.closed:
			timer.Stop()
			return
		case <-timer.C:
		}

		attempts := a.Attempts()
		if attempts > a.Retries {
			if c.outbox.Remove(a.Tag, a) {
				c.log.Debug().Str("action", a.ID.String()).Int("attempts", attempts).Msg("request timed out")
				c.complete(a, nil, ErrTimeout)
			}
			return
		}

		delay := c.backoff(attempts)
		c.log.Debug().Str("action", a.ID.String()).Int("attempt", attempts).Dur("delay", delay).Msg("retrying request")
		select {
		case <-a.done:
			return
		case <-c.closed:
			return
		case <-time.After(delay):
		}
		if err := c.send(a); err != nil {
			if c.outbox.Remove(a.Tag, a) {
				c.complete(a, nil, err)
			}
			return
		}
	}
}

func (c *Client) backoff(attempt int) time.Duration {
	c.rngMu.Lock()
	defer c.rngMu.Unlock()
	return NextBackoffDelay(c.cfg.Backoff, attempt, c.rng)
}

func (c *Client) readLoop() {
	defer c.wg.Done()
	for {
		f, err := mctp.ReadFrame(c.conn)
		if err != nil {
			select {
			case <-c.closed:
			default:
				if !errors.Is(err, net.ErrClosed) {
					c.log.Warn().Err(err).Msg("read failed, closing connection")
				}
				go c.Close()
			}
			return
		}
		if f.Header.TagOwner {
			c.log.Debug().Uint8("tag", f.Header.Tag).Str("family", f.Header.Type.String()).Msg("ignoring request from endpoint")
			continue
		}

		a, ok := c.outbox.Take(f.Header.Tag, f.Header.Type)
		if !ok {
			c.log.Warn().Uint8("tag", f.Header.Tag).Str("family", f.Header.Type.String()).Msg("response without pending request")
			continue
		}

		rsp, ok := c.pool.TryAcquire()
		if !ok {
			c.complete(a, nil, ErrPoolExhausted)
			continue
		}
		if err := rsp.Set(f.Body); err != nil {
			rsp.Release()
			c.complete(a, nil, err)
			continue
		}
		c.log.Trace().Str("action", a.ID.String()).Uint8("tag", a.Tag).Int("len", len(f.Body)).Msg("response received")
		c.complete(a, rsp, nil)
	}
}

func (c *Client) complete(a *Action, rsp *Buffer, err error) {
	if !a.finish(rsp, err) {
		rsp.Release()
		return
	}
	observability.RecordCompleted(a.Type.String(), a.Elapsed())
	if a.completed == nil {
		return
	}
	select {
	case a.completed <- a:
	default:
		c.log.Warn().Str("action", a.ID.String()).Msg("completion channel full, dropping notification")
	}
}
