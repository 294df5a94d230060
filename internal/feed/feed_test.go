package feed

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"github.com/quantpipe/cointegration-pipeline/internal/buffer"
	"github.com/quantpipe/cointegration-pipeline/internal/clock"
	"github.com/quantpipe/cointegration-pipeline/internal/model"
)

func TestSubscriptionURL(t *testing.T) {
	url := SubscriptionURL("wss://stream.example.com/stream", []string{"BTCUSDT", "ethusdt"})
	assert.Equal(t, "wss://stream.example.com/stream/btcusdt@trade/ethusdt@trade", url)
}

func TestSubscriptionURLTrimsTrailingSlash(t *testing.T) {
	url := SubscriptionURL("wss://stream.example.com/stream/", []string{"BTCUSDT"})
	assert.Equal(t, "wss://stream.example.com/stream/btcusdt@trade", url)
}

// fakeConn replays a fixed sequence of frames then blocks until closed,
// simulating a connection that stays open after its messages are
// consumed (so the keepalive/close path can be exercised deterministically).
type fakeConn struct {
	mu      sync.Mutex
	frames  [][]byte
	idx     int
	closed  bool
	closeCh chan struct{}
}

func newFakeConn(frames ...[]byte) *fakeConn {
	return &fakeConn{frames: frames, closeCh: make(chan struct{})}
}

func (c *fakeConn) ReadMessage() (int, []byte, error) {
	c.mu.Lock()
	if c.idx < len(c.frames) {
		f := c.frames[c.idx]
		c.idx++
		c.mu.Unlock()
		return 1, f, nil
	}
	c.mu.Unlock()
	<-c.closeCh
	return 0, nil, errors.New("connection closed")
}

func (c *fakeConn) WriteMessage(int, []byte) error { return nil }
func (c *fakeConn) SetReadDeadline(time.Time) error { return nil }
func (c *fakeConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		close(c.closeCh)
	}
	return nil
}

type fakeDialer struct {
	mu    sync.Mutex
	conns []*fakeConn
	calls int
	err   error
}

func (d *fakeDialer) Dial(context.Context, string) (Conn, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.err != nil && d.calls == 0 {
		d.calls++
		return nil, d.err
	}
	conn := d.conns[d.calls]
	d.calls++
	return conn, nil
}

func tradeFrame(symbol string, ts int64, price, qty string) []byte {
	b, _ := json.Marshal(map[string]any{
		"data": map[string]any{"s": symbol, "T": ts, "p": price, "q": qty},
	})
	return b
}

func TestHandleFrameDecodesAndBuffers(t *testing.T) {
	conn := newFakeConn(tradeFrame("BTCUSDT", 1000, "50000.5", "1.5"))
	dialer := &fakeDialer{conns: []*fakeConn{conn}}
	buf := buffer.New(10)

	var got []string
	var mu sync.Mutex

	client := New("wss://example.com/stream", []string{"BTCUSDT"}, buf, func(tk model.Tick) {
		mu.Lock()
		got = append(got, tk.Symbol)
		mu.Unlock()
	}, dialer, clock.NewFake(time.Unix(0, 0)), zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	go client.Run(ctx)

	assert.Eventually(t, func() bool { return buf.Size("BTCUSDT") == 1 }, time.Second, 10*time.Millisecond)

	cancel()
	client.Stop()

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"BTCUSDT"}, got)

	recent := buf.GetRecent("BTCUSDT", 1)
	assert.Len(t, recent, 1)
	assert.Equal(t, 50000.5, recent[0].Price)
	assert.Equal(t, 1.5, recent[0].Quantity)
}

func TestMalformedFrameIsSkippedNotFatal(t *testing.T) {
	conn := newFakeConn([]byte("not json"), tradeFrame("BTCUSDT", 1, "1", "1"))
	dialer := &fakeDialer{conns: []*fakeConn{conn}}
	buf := buffer.New(10)

	client := New("wss://example.com", []string{"BTCUSDT"}, buf, nil, dialer, clock.NewFake(time.Unix(0, 0)), zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	go client.Run(ctx)

	assert.Eventually(t, func() bool { return buf.Size("BTCUSDT") == 1 }, time.Second, 10*time.Millisecond)
	cancel()
	client.Stop()
}

// TestBurstOfMalformedFramesDoesNotBlockGoodTicks exercises the
// malformed-frame log rate limiter: a burst of bad frames well beyond
// its burst size must still be skipped without interrupting the
// connection, and a well-formed tick appended after the burst must
// still reach the buffer.
func TestBurstOfMalformedFramesDoesNotBlockGoodTicks(t *testing.T) {
	frames := make([][]byte, 0, 21)
	for i := 0; i < 20; i++ {
		frames = append(frames, []byte("not json"))
	}
	frames = append(frames, tradeFrame("BTCUSDT", 1, "1", "1"))

	conn := newFakeConn(frames...)
	dialer := &fakeDialer{conns: []*fakeConn{conn}}
	buf := buffer.New(10)

	client := New("wss://example.com", []string{"BTCUSDT"}, buf, nil, dialer, clock.NewFake(time.Unix(0, 0)), zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	go client.Run(ctx)

	assert.Eventually(t, func() bool { return buf.Size("BTCUSDT") == 1 }, time.Second, 10*time.Millisecond)
	cancel()
	client.Stop()
}

func TestFrameWithoutDataIsIgnored(t *testing.T) {
	b, _ := json.Marshal(map[string]any{"ping": true})
	conn := newFakeConn(b, tradeFrame("BTCUSDT", 1, "1", "1"))
	dialer := &fakeDialer{conns: []*fakeConn{conn}}
	buf := buffer.New(10)

	client := New("wss://example.com", []string{"BTCUSDT"}, buf, nil, dialer, clock.NewFake(time.Unix(0, 0)), zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	go client.Run(ctx)

	assert.Eventually(t, func() bool { return buf.Size("BTCUSDT") == 1 }, time.Second, 10*time.Millisecond)
	cancel()
	client.Stop()
}

func TestReconnectAfterDropPreservesArrivalOrder(t *testing.T) {
	first := newFakeConn(tradeFrame("BTCUSDT", 1, "1", "1"))
	second := newFakeConn(tradeFrame("BTCUSDT", 2, "2", "1"))
	dialer := &fakeDialer{conns: []*fakeConn{first, second}}
	buf := buffer.New(10)

	client := New("wss://example.com", []string{"BTCUSDT"}, buf, nil, dialer, clock.NewFake(time.Unix(0, 0)), zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	go client.Run(ctx)

	assert.Eventually(t, func() bool { return buf.Size("BTCUSDT") == 1 }, time.Second, 10*time.Millisecond)
	first.Close() // simulate the drop

	assert.Eventually(t, func() bool { return buf.Size("BTCUSDT") == 2 }, 2*time.Second, 10*time.Millisecond)

	ticks := buf.GetRecent("BTCUSDT", 2)
	assert.Equal(t, int64(1), ticks[0].Timestamp)
	assert.Equal(t, int64(2), ticks[1].Timestamp)

	cancel()
	client.Stop()
}

// blockingConn blocks ReadMessage until Close is called, and holds the
// unblock briefly so a concurrent observer has a window to see the
// client pass through StateClosing before the read actually errors out.
type blockingConn struct {
	mu      sync.Mutex
	closed  bool
	unblock chan struct{}
}

func newBlockingConn() *blockingConn {
	return &blockingConn{unblock: make(chan struct{})}
}

func (c *blockingConn) ReadMessage() (int, []byte, error) {
	<-c.unblock
	return 0, nil, errors.New("connection closed")
}

func (c *blockingConn) WriteMessage(int, []byte) error  { return nil }
func (c *blockingConn) SetReadDeadline(time.Time) error { return nil }

func (c *blockingConn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.closed {
		c.closed = true
		go func() {
			time.Sleep(50 * time.Millisecond)
			close(c.unblock)
		}()
	}
	return nil
}

type singleConnDialer struct{ conn Conn }

func (d singleConnDialer) Dial(context.Context, string) (Conn, error) { return d.conn, nil }

// TestStopTransitionsThroughClosingState exercises spec's lifecycle
// "... Receiving -> Closing -> Idle" on a cooperative Stop().
func TestStopTransitionsThroughClosingState(t *testing.T) {
	conn := newBlockingConn()
	buf := buffer.New(10)

	client := New("wss://example.com", []string{"BTCUSDT"}, buf, nil, singleConnDialer{conn: conn}, clock.NewFake(time.Unix(0, 0)), zerolog.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go client.Run(ctx)

	assert.Eventually(t, func() bool { return client.State() == StateReceiving }, time.Second, 5*time.Millisecond)

	stopped := make(chan struct{})
	go func() {
		client.Stop()
		close(stopped)
	}()

	assert.Eventually(t, func() bool { return client.State() == StateClosing }, time.Second, 5*time.Millisecond)

	<-stopped
	assert.Equal(t, StateIdle, client.State())
}

func TestBackoffSequenceDoublesAndCaps(t *testing.T) {
	cur := minBackoff
	seq := []time.Duration{cur}
	for i := 0; i < 7; i++ {
		cur = nextBackoff(cur)
		seq = append(seq, cur)
	}
	assert.Equal(t, []time.Duration{
		1 * time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second,
		16 * time.Second, 30 * time.Second, 30 * time.Second, 30 * time.Second,
	}, seq)
}
