package realtime

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	waitFor = 2 * time.Second
	tick    = 5 * time.Millisecond
)

// manualClock records scheduled callbacks and runs them on demand.
type manualClock struct {
	mu     sync.Mutex
	timers []*manualTimer
}

type manualTimer struct {
	clock   *manualClock
	delay   time.Duration
	fn      func()
	stopped bool
	fired   bool
}

func (t *manualTimer) Stop() bool {
	t.clock.mu.Lock()
	defer t.clock.mu.Unlock()
	active := !t.stopped && !t.fired
	t.stopped = true
	return active
}

func (m *manualClock) schedule(d time.Duration, fn func()) Timer {
	m.mu.Lock()
	defer m.mu.Unlock()
	t := &manualTimer{clock: m, delay: d, fn: fn}
	m.timers = append(m.timers, t)
	return t
}

// pending returns active timers with the given delay
func (m *manualClock) pending(d time.Duration) []*manualTimer {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*manualTimer
	for _, t := range m.timers {
		if t.delay == d && !t.stopped && !t.fired {
			out = append(out, t)
		}
	}
	return out
}

// delays lists every delay ever scheduled except excluded, in order
func (m *manualClock) delays(exclude time.Duration) []time.Duration {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []time.Duration
	for _, t := range m.timers {
		if t.delay != exclude {
			out = append(out, t.delay)
		}
	}
	return out
}

func (m *manualClock) fire(t *manualTimer) {
	m.mu.Lock()
	if t.stopped || t.fired {
		m.mu.Unlock()
		return
	}
	t.fired = true
	m.mu.Unlock()
	t.fn()
}

// pushServer is a tenant socket endpoint driven by the test.
type pushServer struct {
	*httptest.Server
	conns    chan *websocket.Conn
	paths    chan string
	reject   atomic.Int32
	upgrader websocket.Upgrader
}

func newPushServer(t *testing.T) *pushServer {
	t.Helper()
	s := &pushServer{
		conns: make(chan *websocket.Conn, 16),
		paths: make(chan string, 16),
	}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if status := s.reject.Load(); status != 0 {
			http.Error(w, "rejected", int(status))
			return
		}
		conn, err := s.upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		s.paths <- r.URL.Path + "?" + r.URL.RawQuery
		s.conns <- conn
	}))
	t.Cleanup(s.Close)
	return s
}

func (s *pushServer) accept(t *testing.T) *websocket.Conn {
	t.Helper()
	select {
	case conn := <-s.conns:
		t.Cleanup(func() { conn.Close() })
		return conn
	case <-time.After(waitFor):
		t.Fatal("no connection accepted")
		return nil
	}
}

func readEnvelope(t *testing.T, conn *websocket.Conn) Envelope {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(waitFor)))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var env Envelope
	require.NoError(t, env.UnmarshalJSON(data))
	return env
}

func writeEnvelope(t *testing.T, conn *websocket.Conn, raw string) {
	t.Helper()
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(raw)))
}

func closeWith(t *testing.T, conn *websocket.Conn, code int) {
	t.Helper()
	msg := websocket.FormatCloseMessage(code, "bye")
	require.NoError(t, conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(time.Second)))
}

// recorder collects observer calls in arrival order
type recorder struct {
	mu     sync.Mutex
	events []string
	msgs   []Envelope
}

func (r *recorder) add(ev string) {
	r.mu.Lock()
	r.events = append(r.events, ev)
	r.mu.Unlock()
}

func (r *recorder) snapshot() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.events...)
}

func (r *recorder) count(ev string) int {
	n := 0
	for _, e := range r.snapshot() {
		if e == ev {
			n++
		}
	}
	return n
}

func (r *recorder) options() []Option {
	return []Option{
		WithOnConnect(func() { r.add("connect") }),
		WithOnDisconnect(func() { r.add("disconnect") }),
		WithOnMessage(func(env Envelope) {
			r.mu.Lock()
			r.msgs = append(r.msgs, env)
			r.mu.Unlock()
			r.add("message:" + env.Type)
		}),
	}
}

const testKeepAlive = time.Hour

func newTestClient(t *testing.T, srv *pushServer, clock *manualClock, rec *recorder, extra ...Option) *Client {
	t.Helper()
	opts := []Option{
		WithBaseURL(srv.URL),
		WithCredentials("grace", "tok"),
		WithScheduler(clock.schedule),
		WithKeepAlive(testKeepAlive),
		WithAutoConnect(false),
	}
	opts = append(opts, rec.options()...)
	opts = append(opts, extra...)
	c := New(opts...)
	t.Cleanup(func() { c.Close() })
	return c
}

func waitState(t *testing.T, c *Client, want State) {
	t.Helper()
	require.Eventually(t, func() bool { return c.State() == want }, waitFor, tick,
		"state is %s, want %s", c.State(), want)
}

func TestConnectWithoutCredentialsIsNoop(t *testing.T) {
	tests := []struct {
		name   string
		tenant string
		token  string
	}{
		{name: "no tenant", token: "tok"},
		{name: "no token", tenant: "grace"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := New(WithCredentials(tt.tenant, tt.token), WithAutoConnect(true))
			defer c.Close()
			c.Connect()
			assert.Equal(t, Disconnected, c.State())
		})
	}
}

func TestConnectUsesTenantEndpoint(t *testing.T) {
	srv := newPushServer(t)
	c := newTestClient(t, srv, &manualClock{}, &recorder{})

	c.Connect()
	srv.accept(t)
	waitState(t, c, Connected)

	assert.Equal(t, "/ws/grace?token=tok", <-srv.paths)
	assert.NotEmpty(t, c.ConnID())
}

func TestSubscribeSentBeforeOnConnectAndMessages(t *testing.T) {
	srv := newPushServer(t)
	rec := &recorder{}
	c := newTestClient(t, srv, &manualClock{}, rec, WithSubscriptions("member.updated", "event.created"))

	c.Connect()
	conn := srv.accept(t)

	env := readEnvelope(t, conn)
	assert.Equal(t, TypeSubscribe, env.Type)
	assert.Equal(t, []any{"member.updated", "event.created"}, env.Fields["events"])

	writeEnvelope(t, conn, `{"type":"member.updated","id":7}`)

	require.Eventually(t, func() bool { return len(rec.snapshot()) == 2 }, waitFor, tick)
	assert.Equal(t, []string{"connect", "message:member.updated"}, rec.snapshot())
}

func TestNoSubscribeWithoutEvents(t *testing.T) {
	srv := newPushServer(t)
	c := newTestClient(t, srv, &manualClock{}, &recorder{})

	c.Connect()
	conn := srv.accept(t)
	waitState(t, c, Connected)

	require.True(t, c.Send(NewEnvelope("hello", nil)))
	assert.Equal(t, "hello", readEnvelope(t, conn).Type)
}

func TestPongIsFiltered(t *testing.T) {
	srv := newPushServer(t)
	rec := &recorder{}
	c := newTestClient(t, srv, &manualClock{}, rec)

	c.Connect()
	conn := srv.accept(t)

	writeEnvelope(t, conn, `{"type":"pong"}`)
	writeEnvelope(t, conn, `not json`)
	writeEnvelope(t, conn, `{"type":"donation.received","amount":25}`)
	writeEnvelope(t, conn, `{"type":"pong"}`)

	require.Eventually(t, func() bool { return rec.count("message:donation.received") == 1 }, waitFor, tick)
	assert.Zero(t, rec.count("message:pong"))

	last, ok := c.LastMessage()
	require.True(t, ok)
	assert.Equal(t, "donation.received", last.Type)
	assert.Equal(t, float64(25), last.Fields["amount"])
}

func TestMessagesDeliveredInWireOrder(t *testing.T) {
	srv := newPushServer(t)
	rec := &recorder{}
	c := newTestClient(t, srv, &manualClock{}, rec)

	c.Connect()
	conn := srv.accept(t)
	for _, typ := range []string{"a", "b", "c", "d"} {
		writeEnvelope(t, conn, `{"type":"`+typ+`"}`)
	}

	require.Eventually(t, func() bool { return len(rec.snapshot()) == 5 }, waitFor, tick)
	assert.Equal(t, []string{"connect", "message:a", "message:b", "message:c", "message:d"}, rec.snapshot())
}

func TestFatalCloseCodesDoNotReconnect(t *testing.T) {
	for _, code := range []int{CloseNormal, CloseUnauthorized, CloseForbidden} {
		t.Run(fmt.Sprintf("code_%d", code), func(t *testing.T) {
			srv := newPushServer(t)
			clock := &manualClock{}
			rec := &recorder{}
			c := newTestClient(t, srv, clock, rec)

			c.Connect()
			conn := srv.accept(t)
			waitState(t, c, Connected)

			closeWith(t, conn, code)

			require.Eventually(t, func() bool { return rec.count("disconnect") == 1 }, waitFor, tick)
			assert.Equal(t, Disconnected, c.State())
			assert.Empty(t, clock.delays(testKeepAlive), "no reconnect timer for code %d", code)
		})
	}
}

func TestAbnormalCloseSchedulesReconnect(t *testing.T) {
	srv := newPushServer(t)
	clock := &manualClock{}
	rec := &recorder{}
	c := newTestClient(t, srv, clock, rec)

	var transitions []string
	var tmu sync.Mutex
	c.OnStateChange(func(from, to State) {
		tmu.Lock()
		transitions = append(transitions, from.String()+"->"+to.String())
		tmu.Unlock()
	})

	c.Connect()
	conn := srv.accept(t)
	waitState(t, c, Connected)

	// abrupt drop surfaces as 1006
	conn.Close()

	waitState(t, c, Reconnecting)
	assert.Equal(t, 1, c.Attempt())
	assert.Equal(t, 1, rec.count("disconnect"))
	require.Len(t, clock.pending(time.Second), 1)

	tmu.Lock()
	assert.Contains(t, transitions, "connected->reconnecting")
	tmu.Unlock()

	clock.fire(clock.pending(time.Second)[0])
	srv.accept(t)
	require.Eventually(t, func() bool { return rec.count("connect") == 2 }, waitFor, tick)
	assert.Equal(t, Connected, c.State())
	assert.Equal(t, 0, c.Attempt())
}

func TestServerErrorCodeReconnects(t *testing.T) {
	srv := newPushServer(t)
	clock := &manualClock{}
	c := newTestClient(t, srv, clock, &recorder{})

	c.Connect()
	conn := srv.accept(t)
	waitState(t, c, Connected)

	closeWith(t, conn, websocket.CloseInternalServerErr)
	waitState(t, c, Reconnecting)
	assert.Len(t, clock.pending(time.Second), 1)
}

// drainUntilClosed reads raw bytes from the server end until the peer
// drops the TCP connection or the deadline passes.
func drainUntilClosed(t *testing.T, conn *websocket.Conn) error {
	t.Helper()
	raw := conn.NetConn()
	require.NoError(t, raw.SetReadDeadline(time.Now().Add(waitFor)))
	buf := make([]byte, 512)
	for {
		if _, err := raw.Read(buf); err != nil {
			return err
		}
	}
}

func TestServerCloseReleasesSocket(t *testing.T) {
	srv := newPushServer(t)
	clock := &manualClock{}
	c := newTestClient(t, srv, clock, &recorder{})

	c.Connect()
	old := srv.accept(t)
	waitState(t, c, Connected)

	closeWith(t, old, 4500)
	waitState(t, c, Reconnecting)
	clock.fire(clock.pending(time.Second)[0])
	srv.accept(t)
	waitState(t, c, Connected)

	err := drainUntilClosed(t, old)
	assert.True(t, errors.Is(err, io.EOF), "old socket still open: %v", err)
}

func TestReconnectRacingDisconnect(t *testing.T) {
	for i := 0; i < 10; i++ {
		srv := newPushServer(t)
		clock := &manualClock{}
		c := newTestClient(t, srv, clock, &recorder{})

		c.Connect()
		conn := srv.accept(t)
		waitState(t, c, Connected)
		conn.Close()
		waitState(t, c, Reconnecting)
		timer := clock.pending(time.Second)[0]

		var wg sync.WaitGroup
		wg.Add(1)
		go func() {
			defer wg.Done()
			clock.fire(timer)
		}()
		c.Disconnect()
		wg.Wait()

		assert.Never(t, func() bool { return c.State() != Disconnected }, 100*time.Millisecond, tick,
			"iteration %d", i)
	}
}

func TestBackoffGrowsWhileDialsFail(t *testing.T) {
	srv := newPushServer(t)
	clock := &manualClock{}
	rec := &recorder{}
	c := newTestClient(t, srv, clock, rec)

	c.Connect()
	conn := srv.accept(t)
	waitState(t, c, Connected)

	srv.reject.Store(http.StatusBadGateway)
	conn.Close()

	want := []time.Duration{time.Second, 2 * time.Second, 4 * time.Second, 8 * time.Second, 16 * time.Second, 30 * time.Second, 30 * time.Second}
	for i, d := range want {
		require.Eventually(t, func() bool { return len(clock.pending(d)) == 1 }, waitFor, tick, "attempt %d", i+1)
		assert.Equal(t, i+1, c.Attempt())
		if i < len(want)-1 {
			clock.fire(clock.pending(d)[0])
		}
	}

	srv.reject.Store(0)
	clock.fire(clock.pending(30 * time.Second)[0])

	srv.accept(t)
	waitState(t, c, Connected)
	assert.Equal(t, 0, c.Attempt())
	assert.Equal(t, want, clock.delays(testKeepAlive))
}

func TestHandshakeAuthFailuresAreFatal(t *testing.T) {
	tests := []struct {
		status int
		code   int
	}{
		{status: http.StatusUnauthorized, code: CloseUnauthorized},
		{status: http.StatusForbidden, code: CloseForbidden},
	}
	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			srv := newPushServer(t)
			srv.reject.Store(int32(tt.status))
			clock := &manualClock{}
			rec := &recorder{}
			c := newTestClient(t, srv, clock, rec)

			c.Connect()

			require.Eventually(t, func() bool { return rec.count("disconnect") == 1 }, waitFor, tick)
			assert.Equal(t, Disconnected, c.State())
			assert.Empty(t, clock.delays(testKeepAlive))
			assert.True(t, IsFatalClose(tt.code))
		})
	}
}

func TestMaxReconnectAttempts(t *testing.T) {
	srv := newPushServer(t)
	srv.reject.Store(http.StatusServiceUnavailable)
	clock := &manualClock{}
	c := newTestClient(t, srv, clock, &recorder{}, WithMaxReconnectAttempts(2))

	c.Connect()
	require.Eventually(t, func() bool { return len(clock.pending(time.Second)) == 1 }, waitFor, tick)
	clock.fire(clock.pending(time.Second)[0])
	require.Eventually(t, func() bool { return len(clock.pending(2*time.Second)) == 1 }, waitFor, tick)
	clock.fire(clock.pending(2 * time.Second)[0])

	waitState(t, c, Disconnected)
	assert.Len(t, clock.delays(testKeepAlive), 2)
}

func TestDisconnectIsFinal(t *testing.T) {
	srv := newPushServer(t)
	clock := &manualClock{}
	rec := &recorder{}
	c := newTestClient(t, srv, clock, rec)

	c.Connect()
	conn := srv.accept(t)
	require.Eventually(t, func() bool { return len(clock.pending(testKeepAlive)) == 1 }, waitFor, tick)

	c.Disconnect()

	assert.Equal(t, Disconnected, c.State())
	assert.Equal(t, 1, rec.count("disconnect"))
	assert.Empty(t, clock.pending(testKeepAlive), "keep-alive stopped")
	assert.Empty(t, clock.delays(testKeepAlive))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(waitFor)))
	_, _, err := conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, CloseNormal), "got %v", err)

	assert.False(t, c.Send(NewEnvelope("late", nil)))
}

func TestDisconnectCancelsPendingReconnect(t *testing.T) {
	srv := newPushServer(t)
	clock := &manualClock{}
	c := newTestClient(t, srv, clock, &recorder{})

	c.Connect()
	conn := srv.accept(t)
	waitState(t, c, Connected)
	conn.Close()
	waitState(t, c, Reconnecting)

	timer := clock.pending(time.Second)[0]
	c.Disconnect()

	assert.False(t, timer.Stop(), "already stopped by Disconnect")
	clock.fire(timer)
	assert.Equal(t, Disconnected, c.State())
}

func TestKeepAliveSendsPing(t *testing.T) {
	srv := newPushServer(t)
	clock := &manualClock{}
	c := newTestClient(t, srv, clock, &recorder{})

	c.Connect()
	conn := srv.accept(t)
	waitState(t, c, Connected)

	for i := 0; i < 3; i++ {
		require.Eventually(t, func() bool { return len(clock.pending(testKeepAlive)) == 1 }, waitFor, tick)
		clock.fire(clock.pending(testKeepAlive)[0])
		assert.Equal(t, TypePing, readEnvelope(t, conn).Type)
	}
}

func TestSendWhenNotConnected(t *testing.T) {
	c := New(WithAutoConnect(false))
	defer c.Close()
	assert.False(t, c.Send(Ping()))
}

func TestConnectReplacesTransport(t *testing.T) {
	srv := newPushServer(t)
	rec := &recorder{}
	c := newTestClient(t, srv, &manualClock{}, rec)

	c.Connect()
	first := srv.accept(t)
	waitState(t, c, Connected)
	firstID := c.ConnID()

	c.Connect()
	srv.accept(t)
	require.Eventually(t, func() bool { return rec.count("connect") == 2 }, waitFor, tick)

	assert.NotEqual(t, firstID, c.ConnID())
	require.NoError(t, first.SetReadDeadline(time.Now().Add(waitFor)))
	_, _, err := first.ReadMessage()
	assert.Error(t, err, "old transport closed")
	assert.Zero(t, rec.count("disconnect"))
}

func TestSetCredentials(t *testing.T) {
	srv := newPushServer(t)
	rec := &recorder{}
	c := newTestClient(t, srv, &manualClock{}, rec)

	c.Connect()
	srv.accept(t)
	<-srv.paths
	require.Eventually(t, func() bool { return rec.count("connect") == 1 }, waitFor, tick)

	c.SetCredentials("grace", "tok")
	assert.Equal(t, Connected, c.State())
	assert.Equal(t, 1, rec.count("connect"))

	c.SetCredentials("st-marks", "tok2")
	srv.accept(t)
	assert.Equal(t, "/ws/st-marks?token=tok2", <-srv.paths)
	waitState(t, c, Connected)
	assert.Equal(t, 1, rec.count("disconnect"))
}

func TestSetSubscriptionsReconnects(t *testing.T) {
	srv := newPushServer(t)
	c := newTestClient(t, srv, &manualClock{}, &recorder{})

	c.Connect()
	srv.accept(t)
	waitState(t, c, Connected)

	c.SetSubscriptions("prayer.request")
	conn := srv.accept(t)
	env := readEnvelope(t, conn)
	assert.Equal(t, TypeSubscribe, env.Type)
	assert.Equal(t, []any{"prayer.request"}, env.Fields["events"])
}

func TestObserverSwapKeepsConnection(t *testing.T) {
	srv := newPushServer(t)
	c := newTestClient(t, srv, &manualClock{}, &recorder{})

	c.Connect()
	conn := srv.accept(t)
	waitState(t, c, Connected)
	id := c.ConnID()

	got := make(chan string, 1)
	c.OnMessage(func(env Envelope) { got <- env.Type })
	writeEnvelope(t, conn, `{"type":"swapped"}`)

	select {
	case typ := <-got:
		assert.Equal(t, "swapped", typ)
	case <-time.After(waitFor):
		t.Fatal("new observer not called")
	}
	assert.Equal(t, id, c.ConnID())
}

func TestCloseReleasesEverything(t *testing.T) {
	srv := newPushServer(t)
	clock := &manualClock{}
	rec := &recorder{}
	c := newTestClient(t, srv, clock, rec)

	c.Connect()
	conn := srv.accept(t)
	waitState(t, c, Connected)

	require.NoError(t, c.Close())
	assert.Empty(t, clock.pending(testKeepAlive))
	assert.Zero(t, rec.count("disconnect"))

	require.NoError(t, conn.SetReadDeadline(time.Now().Add(waitFor)))
	_, _, err := conn.ReadMessage()
	assert.True(t, websocket.IsCloseError(err, CloseNormal), "got %v", err)

	c.Connect()
	assert.Equal(t, Disconnected, c.State())
	require.NoError(t, c.Close())
}

func TestAutoConnect(t *testing.T) {
	srv := newPushServer(t)
	c := New(WithBaseURL(srv.URL), WithCredentials("grace", "tok"), WithKeepAlive(0))
	defer c.Close()

	srv.accept(t)
	waitState(t, c, Connected)
}

func TestEndpoint(t *testing.T) {
	tests := []struct {
		base    string
		want    string
		wantErr bool
	}{
		{base: "http://localhost:8000", want: "ws://localhost:8000/ws/grace?token=a+b"},
		{base: "https://api.example.org/v1/", want: "wss://api.example.org/v1/ws/grace?token=a+b"},
		{base: "wss://push.example.org", want: "wss://push.example.org/ws/grace?token=a+b"},
		{base: "ftp://nope", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.base, func(t *testing.T) {
			c := New(WithBaseURL(tt.base), WithCredentials("grace", "a b"), WithAutoConnect(false))
			defer c.Close()

			c.mu.Lock()
			got, err := c.endpointLocked()
			c.mu.Unlock()
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}
