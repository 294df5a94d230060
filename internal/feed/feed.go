// Package feed implements the Feed Client (C1): it dials the upstream
// trade stream, decodes ticks, feeds them into the rolling buffer, and
// invokes a caller-supplied callback once per tick. Grounded on the
// outbound-dial shape of adred-codev-ws_poc/loadtest/main.go (the
// teacher's own server only ever accepted inbound connections), adapted
// into a reconnecting client instead of a load generator.
package feed

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/quantpipe/cointegration-pipeline/internal/buffer"
	"github.com/quantpipe/cointegration-pipeline/internal/clock"
	"github.com/quantpipe/cointegration-pipeline/internal/model"
	"github.com/quantpipe/cointegration-pipeline/internal/obsmetrics"
)

// State names the feed client's connection lifecycle (spec §4.1).
type State string

const (
	StateIdle         State = "idle"
	StateConnecting   State = "connecting"
	StateOpen         State = "open"
	StateReceiving    State = "receiving"
	StateReconnecting State = "reconnecting"
	StateClosing      State = "closing"
)

const (
	readIdleTimeout = 30 * time.Second
	minBackoff      = 1 * time.Second
	maxBackoff      = 30 * time.Second
)

// Callback is invoked exactly once per decoded tick (spec §4.1).
type Callback func(model.Tick)

// Conn is the minimal surface the client needs from a websocket
// connection; satisfied by *websocket.Conn and fakeable in tests.
type Conn interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	SetReadDeadline(t time.Time) error
	Close() error
}

// Dialer opens a Conn to a URL. The default implementation wraps
// gorilla/websocket, the library the pack uses for outbound dials.
type Dialer interface {
	Dial(ctx context.Context, url string) (Conn, error)
}

// GorillaDialer dials with gorilla/websocket's default dialer.
type GorillaDialer struct{}

func (GorillaDialer) Dial(ctx context.Context, url string) (Conn, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

// Client owns one reconnecting feed connection for a set of symbols.
type Client struct {
	endpointBase string
	symbols      []string
	buf          *buffer.Rolling
	onTick       Callback
	dialer       Dialer
	clock        clock.Clock
	logger       zerolog.Logger

	// malformedLogLimiter bounds how often a malformed-frame debug log
	// line is emitted; the counter in obsmetrics still records every
	// occurrence, this only keeps a noisy upstream from flooding logs
	// (the same token-bucket idiom the teacher applies per-connection
	// in its broadcast rate limiter, here applied per-client instead).
	malformedLogLimiter *rate.Limiter

	mu       sync.Mutex
	state    State
	conn     Conn
	messageN int64

	stopOnce sync.Once
	stopCh   chan struct{}
	doneCh   chan struct{}
}

// New constructs a feed Client. endpointBase and symbols come from
// config (spec §6); buf is the shared rolling buffer ticks are pushed
// into; onTick is invoked once per decoded tick.
func New(endpointBase string, symbols []string, buf *buffer.Rolling, onTick Callback, dialer Dialer, clk clock.Clock, logger zerolog.Logger) *Client {
	if dialer == nil {
		dialer = GorillaDialer{}
	}
	if clk == nil {
		clk = clock.Real{}
	}
	return &Client{
		endpointBase:        endpointBase,
		symbols:             symbols,
		buf:                 buf,
		onTick:              onTick,
		dialer:              dialer,
		clock:               clk,
		logger:              logger.With().Str("component", "feed").Logger(),
		malformedLogLimiter: rate.NewLimiter(rate.Limit(1), 5),
		state:               StateIdle,
		stopCh:              make(chan struct{}),
		doneCh:              make(chan struct{}),
	}
}

// SubscriptionURL builds the subscription URL by joining
// "{symbol.lower()}@trade" streams with "/" under base (spec §6).
func SubscriptionURL(base string, symbols []string) string {
	streams := make([]string, len(symbols))
	for i, s := range symbols {
		streams[i] = strings.ToLower(s) + "@trade"
	}
	return strings.TrimRight(base, "/") + "/" + strings.Join(streams, "/")
}

func (c *Client) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Client) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

// Run drives the connect/receive/reconnect loop until ctx is cancelled
// or Stop is called. It returns nil on a cooperative stop.
func (c *Client) Run(ctx context.Context) error {
	defer close(c.doneCh)
	defer obsmetrics.FeedIsRunning.Set(0)

	backoff := minBackoff
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-c.stopCh:
			return nil
		default:
		}

		c.setState(StateConnecting)
		url := SubscriptionURL(c.endpointBase, c.symbols)
		conn, err := c.dialer.Dial(ctx, url)
		if err != nil {
			c.logger.Warn().Err(err).Dur("backoff", backoff).Msg("feed: dial failed")
			obsmetrics.FeedReconnectsTotal.Inc()
			if !c.sleepOrStop(ctx, backoff) {
				return nil
			}
			backoff = nextBackoff(backoff)
			continue
		}

		c.mu.Lock()
		c.conn = conn
		c.mu.Unlock()
		c.setState(StateOpen)
		obsmetrics.FeedIsRunning.Set(1)
		backoff = minBackoff

		recvErr := c.receiveLoop(conn)
		obsmetrics.FeedIsRunning.Set(0)
		conn.Close()

		select {
		case <-c.stopCh:
			return nil
		case <-ctx.Done():
			return nil
		default:
		}

		if recvErr != nil {
			c.logger.Warn().Err(recvErr).Msg("feed: connection lost, reconnecting")
		}
		obsmetrics.FeedReconnectsTotal.Inc()
		c.setState(StateReconnecting)
		if !c.sleepOrStop(ctx, backoff) {
			return nil
		}
		backoff = nextBackoff(backoff)
	}
}

// receiveLoop reads frames until the connection errors, timing out
// every 30s to issue a keepalive ping (spec §4.1).
func (c *Client) receiveLoop(conn Conn) error {
	c.setState(StateReceiving)
	for {
		if err := conn.SetReadDeadline(c.clock.Now().Add(readIdleTimeout)); err != nil {
			return err
		}
		_, msg, err := conn.ReadMessage()
		if err != nil {
			if isTimeout(err) {
				if pingErr := conn.WriteMessage(websocket.PingMessage, nil); pingErr != nil {
					return fmt.Errorf("keepalive ping failed: %w", pingErr)
				}
				continue
			}
			return err
		}
		c.handleFrame(msg)
	}
}

type frameEnvelope struct {
	Data *frameData `json:"data"`
}

type frameData struct {
	Symbol      string `json:"s"`
	EventTimeMs int64  `json:"T"`
	Price       string `json:"p"`
	Quantity    string `json:"q"`
}

// logMalformed emits a debug log line through malformedLogLimiter: every
// malformed frame still increments the Prometheus counter, but log
// output is capped so a sustained run of bad frames from the upstream
// feed can't flood the log stream.
func (c *Client) logMalformed(emit func(*zerolog.Event)) {
	if !c.malformedLogLimiter.Allow() {
		return
	}
	emit(c.logger.Debug())
}

func (c *Client) handleFrame(raw []byte) {
	var env frameEnvelope
	if err := json.Unmarshal(raw, &env); err != nil {
		obsmetrics.FeedMalformedTotal.Inc()
		c.logMalformed(func(e *zerolog.Event) { e.Err(err).Msg("feed: malformed frame, skipping") })
		return
	}
	if env.Data == nil {
		return // frames without "data" are ignored (spec §6), not an error
	}

	price, err := strconv.ParseFloat(env.Data.Price, 64)
	if err != nil {
		obsmetrics.FeedMalformedTotal.Inc()
		c.logMalformed(func(e *zerolog.Event) {
			e.Err(err).Str("symbol", env.Data.Symbol).Msg("feed: bad price, skipping")
		})
		return
	}
	qty, err := strconv.ParseFloat(env.Data.Quantity, 64)
	if err != nil {
		obsmetrics.FeedMalformedTotal.Inc()
		c.logMalformed(func(e *zerolog.Event) {
			e.Err(err).Str("symbol", env.Data.Symbol).Msg("feed: bad quantity, skipping")
		})
		return
	}

	tick := model.Tick{
		Timestamp: env.Data.EventTimeMs,
		Symbol:    strings.ToUpper(env.Data.Symbol),
		Price:     price,
		Quantity:  qty,
	}

	c.buf.Add(tick.Symbol, tick)
	obsmetrics.FeedMessagesTotal.Inc()
	obsmetrics.FeedBufferSize.WithLabelValues(tick.Symbol).Set(float64(c.buf.Size(tick.Symbol)))

	c.mu.Lock()
	c.messageN++
	n := c.messageN
	c.mu.Unlock()
	if n%100 == 0 {
		c.logger.Info().Int64("count", n).Msg("feed: processed messages")
	}

	if c.onTick != nil {
		c.onTick(tick)
	}
}

// Stop cooperatively shuts the client down: it marks the run loop for
// exit, closes the current socket to unblock any in-flight read, and
// waits for Run to return (spec §4.1, §5).
func (c *Client) Stop() {
	c.stopOnce.Do(func() {
		close(c.stopCh)
		c.setState(StateClosing)
		c.mu.Lock()
		conn := c.conn
		c.mu.Unlock()
		if conn != nil {
			conn.Close()
		}
	})
	<-c.doneCh
	c.setState(StateIdle)
}

func (c *Client) sleepOrStop(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	case <-c.stopCh:
		return false
	}
}

func nextBackoff(cur time.Duration) time.Duration {
	next := cur * 2
	if next > maxBackoff {
		next = maxBackoff
	}
	return next
}

func isTimeout(err error) bool {
	type timeouter interface{ Timeout() bool }
	if t, ok := err.(timeouter); ok {
		return t.Timeout()
	}
	return false
}
