// Package relay is the websocket transport to Nostr relays of spec.md §4.3,
// §6.1-§6.2: connection lifecycle, event publication, atomic filter-set
// subscriptions and the inbound event stream.
package relay

import (
	"context"
	"encoding/json"
	"sync"

	"github.com/cenkalti/backoff/v4"
	"github.com/gorilla/websocket"
	"github.com/hashicorp/go-multierror"
	"go.uber.org/zap"

	"dialogcore/internal/domain"
	domaintypes "dialogcore/internal/domain/types"
	"dialogcore/internal/errtyp"
)

// Client is a multi-relay websocket client. A single subscription set is
// mirrored to every connected relay; publishes fan out to all of them.
type Client struct {
	log *zap.Logger

	mu     sync.Mutex
	urls   []string
	conns  map[string]*connection
	subs   map[string]domaintypes.FilterSet
	out    chan domaintypes.InboundEvent
	status domaintypes.ConnectionStatus
	cancel context.CancelFunc
}

type connection struct {
	url  string
	conn *websocket.Conn
	mu   sync.Mutex // guards WriteJSON; gorilla connections aren't write-concurrent-safe
}

// New constructs a Client with no active connections. log is nil-safe and
// defaults to zap.NewNop().
func New(log *zap.Logger) *Client {
	if log == nil {
		log = zap.NewNop()
	}
	return &Client{
		log:    log,
		conns:  make(map[string]*connection),
		subs:   make(map[string]domaintypes.FilterSet),
		out:    make(chan domaintypes.InboundEvent, 256),
		status: domaintypes.Disconnected,
	}
}

func (c *Client) Status() domaintypes.ConnectionStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.status
}

// Connect dials every relay URL in turn and starts a read/reconnect loop for
// each one that answers. It returns after every dial has been attempted,
// succeeding if at least one of them did.
func (c *Client) Connect(ctx context.Context, urls []string) error {
	c.mu.Lock()
	c.urls = urls
	c.status = domaintypes.Connecting
	runCtx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	c.mu.Unlock()

	var anyOK bool
	var dialErrs *multierror.Error
	for _, u := range urls {
		conn, _, err := websocket.DefaultDialer.DialContext(ctx, u, nil)
		if err != nil {
			dialErrs = multierror.Append(dialErrs, err)
			continue
		}
		anyOK = true
		c.registerConn(u, conn)
		go c.readLoop(runCtx, u, conn)
	}
	if !anyOK {
		c.mu.Lock()
		c.status = domaintypes.Disconnected
		c.mu.Unlock()
		if ctx.Err() == context.DeadlineExceeded {
			c.log.Warn("connect deadline exceeded", zap.Strings("urls", urls))
			return errtyp.Wrap(errtyp.Timeout, "dialing relays", dialErrs.ErrorOrNil())
		}
		c.log.Error("dialed no relay successfully", zap.Strings("urls", urls), zap.Error(dialErrs.ErrorOrNil()))
		return errtyp.Wrap(errtyp.ConnectionError, "dialed no relay successfully", dialErrs.ErrorOrNil()).Retry()
	}

	c.mu.Lock()
	c.status = domaintypes.Connected
	c.mu.Unlock()
	c.log.Info("connected", zap.Int("relays", len(urls)))
	return nil
}

func (c *Client) registerConn(url string, ws *websocket.Conn) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.conns[url] = &connection{url: url, conn: ws}
}

// readLoop owns one relay's socket for its lifetime, reconnecting with
// exponential backoff and reinstalling the live subscription set on every
// successful reconnect, per spec.md's resubscribe-on-reconnect requirement.
func (c *Client) readLoop(ctx context.Context, url string, ws *websocket.Conn) {
	conn := &connection{url: url, conn: ws}
	for {
		c.pump(ctx, conn)
		if ctx.Err() != nil {
			return
		}

		c.mu.Lock()
		c.status = domaintypes.Reconnecting
		c.mu.Unlock()

		c.log.Warn("relay connection lost, reconnecting", zap.String("url", url))
		bo := backoff.NewExponentialBackOff()
		var reconnected *websocket.Conn
		err := backoff.Retry(func() error {
			if ctx.Err() != nil {
				return backoff.Permanent(ctx.Err())
			}
			dialed, _, dialErr := websocket.DefaultDialer.DialContext(ctx, url, nil)
			if dialErr != nil {
				return dialErr
			}
			reconnected = dialed
			return nil
		}, backoff.WithContext(bo, ctx))
		if err != nil {
			c.log.Error("reconnect abandoned", zap.String("url", url), zap.Error(err))
			return
		}

		conn = &connection{url: url, conn: reconnected}
		c.mu.Lock()
		c.conns[url] = conn
		c.status = domaintypes.Connected
		sets := make([]domaintypes.FilterSet, 0, len(c.subs))
		for _, s := range c.subs {
			sets = append(sets, s)
		}
		c.mu.Unlock()
		c.log.Info("reconnected", zap.String("url", url))

		for _, s := range sets {
			_ = writeSubscribe(conn, s)
		}
	}
}

// pump reads frames off conn until it errors or ctx is done.
func (c *Client) pump(ctx context.Context, conn *connection) {
	for {
		if ctx.Err() != nil {
			return
		}
		var frame []json.RawMessage
		if err := conn.conn.ReadJSON(&frame); err != nil {
			return
		}
		c.dispatch(frame)
	}
}

func (c *Client) dispatch(frame []json.RawMessage) {
	if len(frame) < 2 {
		return
	}
	var label string
	if err := json.Unmarshal(frame[0], &label); err != nil {
		return
	}
	switch label {
	case "EVENT":
		if len(frame) < 3 {
			return
		}
		var subID string
		if err := json.Unmarshal(frame[1], &subID); err != nil {
			return
		}
		var ev domaintypes.Event
		if err := json.Unmarshal(frame[2], &ev); err != nil {
			return
		}
		select {
		case c.out <- domaintypes.InboundEvent{SubscriptionName: subID, Event: ev}:
		default:
			c.log.Warn("slow consumer: dropping inbound event", zap.String("event_id", string(ev.ID)))
		}
	case "EOSE", "OK", "NOTICE", "CLOSED":
		// acknowledged but not otherwise actioned
	}
}

func (c *Client) Disconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.cancel != nil {
		c.cancel()
	}
	var first error
	for url, conn := range c.conns {
		if err := conn.conn.Close(); err != nil && first == nil {
			first = err
		}
		delete(c.conns, url)
	}
	c.status = domaintypes.Disconnected
	c.log.Info("disconnected")
	return first
}

// Publish sends event to every connected relay, returning the write errors
// of all relays that failed, aggregated into one error (if any); relays that
// succeeded still receive it. A ctx
// whose deadline has already expired surfaces as Timeout rather than being
// attempted, per spec.md §5's implicit per-call timeout.
func (c *Client) Publish(ctx context.Context, event domaintypes.Event) error {
	if ctx.Err() == context.DeadlineExceeded {
		c.log.Warn("publish called with an already-expired deadline", zap.String("event_id", string(event.ID)))
		return errtyp.New(errtyp.Timeout, "publish deadline exceeded")
	}

	c.mu.Lock()
	conns := make([]*connection, 0, len(c.conns))
	for _, conn := range c.conns {
		conns = append(conns, conn)
	}
	c.mu.Unlock()

	if len(conns) == 0 {
		return errtyp.New(errtyp.ConnectionError, "publish with no connected relay").Retry()
	}

	frame := []any{"EVENT", event}
	var writeErrs *multierror.Error
	for _, conn := range conns {
		conn.mu.Lock()
		err := conn.conn.WriteJSON(frame)
		conn.mu.Unlock()
		if err != nil {
			writeErrs = multierror.Append(writeErrs, err)
		}
	}
	if err := writeErrs.ErrorOrNil(); err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			c.log.Warn("publish deadline exceeded", zap.Error(err))
			return errtyp.Wrap(errtyp.Timeout, "publish deadline exceeded", err)
		}
		c.log.Error("publish failed", zap.Error(err))
		return errtyp.Wrap(errtyp.ConnectionError, "publish", err).Retry()
	}
	return nil
}

// Subscribe atomically replaces the named filter set on every connected
// relay. Callers must always pass the complete set; partial updates are not
// supported, matching spec.md's rewrite-not-append contract.
func (c *Client) Subscribe(ctx context.Context, set domaintypes.FilterSet) error {
	c.mu.Lock()
	c.subs[set.SubscriptionName] = set
	conns := make([]*connection, 0, len(c.conns))
	for _, conn := range c.conns {
		conns = append(conns, conn)
	}
	c.mu.Unlock()

	var subErrs *multierror.Error
	for _, conn := range conns {
		if err := writeSubscribe(conn, set); err != nil {
			subErrs = multierror.Append(subErrs, err)
		}
	}
	if err := subErrs.ErrorOrNil(); err != nil {
		return errtyp.Wrap(errtyp.SubscriptionError, "subscribe", err).Retry()
	}
	return nil
}

func writeSubscribe(conn *connection, set domaintypes.FilterSet) error {
	frame := make([]any, 0, len(set.Filters)+2)
	frame = append(frame, "REQ", set.SubscriptionName)
	for _, f := range set.Filters {
		frame = append(frame, f)
	}
	conn.mu.Lock()
	defer conn.mu.Unlock()
	return conn.conn.WriteJSON(frame)
}

func (c *Client) Unsubscribe(name string) error {
	c.mu.Lock()
	delete(c.subs, name)
	conns := make([]*connection, 0, len(c.conns))
	for _, conn := range c.conns {
		conns = append(conns, conn)
	}
	c.mu.Unlock()

	var firstErr error
	for _, conn := range conns {
		conn.mu.Lock()
		err := conn.conn.WriteJSON([]any{"CLOSE", name})
		conn.mu.Unlock()
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

func (c *Client) Stream() <-chan domaintypes.InboundEvent {
	return c.out
}

var _ domain.RelayClient = (*Client)(nil)
