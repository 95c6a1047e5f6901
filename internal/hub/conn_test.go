package hub

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/pztrick/television/internal/adapter/metrics"
	"github.com/pztrick/television/internal/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConn_SendDeliversFrame(t *testing.T) {
	server, client := newTestConnPair(t)
	c := NewConn(server, domain.Anonymous(), ConnOptions{})
	t.Cleanup(func() { c.Close("test done") })

	assert.NotEmpty(t, c.ID())
	require.True(t, c.SendJSON(domain.Reply{Payload: "pong"}))

	client.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := client.ReadMessage()
	require.NoError(t, err)
	assert.JSONEq(t, `{"replyTo":null,"payload":"pong"}`, string(data))
}

func TestConn_UniqueIDs(t *testing.T) {
	s1, _ := newTestConnPair(t)
	s2, _ := newTestConnPair(t)
	a := NewConn(s1, domain.Anonymous(), ConnOptions{})
	b := NewConn(s2, domain.Anonymous(), ConnOptions{})
	t.Cleanup(func() { a.Close(""); b.Close("") })

	assert.NotEqual(t, a.ID(), b.ID())
}

func TestConn_SendAfterCloseDrops(t *testing.T) {
	reg := prometheus.NewRegistry()
	wm := metrics.NewWebSocketMetrics(reg)

	server, _ := newTestConnPair(t)
	c := NewConn(server, domain.Anonymous(), ConnOptions{Metrics: wm})
	c.Close("bye")

	assert.False(t, c.Send([]byte(`{}`)))
	assert.Equal(t, float64(1), testutil.ToFloat64(wm.FramesDropped))
}

func TestConn_SendFullQueueDrops(t *testing.T) {
	server, _ := newTestConnPair(t)
	c := NewConn(server, domain.Anonymous(), ConnOptions{SendBufferSize: 1})
	t.Cleanup(func() { c.Close("") })

	// Nobody reads on the client side; once the socket buffers fill the queue stays full.
	dropped := false
	frame := make([]byte, 64*1024)
	for i := 0; i < 10000 && !dropped; i++ {
		dropped = !c.Send(frame)
	}
	assert.True(t, dropped, "expected a drop once the bounded queue filled")
}

func TestConn_CloseAfterFlush(t *testing.T) {
	server, client := newTestConnPair(t)
	c := NewConn(server, domain.Anonymous(), ConnOptions{})

	require.True(t, c.Send([]byte(`{"stream":"bye","payload":null,"close":true}`)))
	c.CloseAfterFlush()

	client.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := client.ReadMessage()
	require.NoError(t, err)
	assert.Contains(t, string(data), `"stream":"bye"`)

	_, _, err = client.ReadMessage()
	var closeErr *websocket.CloseError
	require.ErrorAs(t, err, &closeErr)
	assert.Equal(t, websocket.CloseNormalClosure, closeErr.Code)
}

func TestConn_ServeReadsTextFrames(t *testing.T) {
	server, client := newTestConnPair(t)
	c := NewConn(server, domain.Anonymous(), ConnOptions{})

	var received atomic.Int32
	done := make(chan int, 1)
	go func() {
		done <- c.Serve(context.Background(), func(raw []byte) {
			if string(raw) == `{"channel":"ping"}` {
				received.Add(1)
			}
		})
	}()

	require.NoError(t, client.WriteMessage(websocket.TextMessage, []byte(`{"channel":"ping"}`)))
	require.NoError(t, client.WriteMessage(websocket.BinaryMessage, []byte{1, 2}))
	require.NoError(t, client.WriteMessage(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseGoingAway, "leaving")))

	select {
	case code := <-done:
		assert.Equal(t, websocket.CloseGoingAway, code)
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after close frame")
	}
	assert.Equal(t, int32(1), received.Load())
}

func TestConn_ServeStopsOnContextCancel(t *testing.T) {
	server, client := newTestConnPair(t)
	c := NewConn(server, domain.Anonymous(), ConnOptions{})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan int, 1)
	go func() { done <- c.Serve(ctx, func([]byte) {}) }()

	cancel()

	client.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := client.ReadMessage()
	var closeErr *websocket.CloseError
	if assert.ErrorAs(t, err, &closeErr) {
		assert.Contains(t, closeErr.Text, "shutting down")
	}

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Serve did not return after cancel")
	}
}

func TestWriter_IdleTimeout(t *testing.T) {
	fakeClock := clockwork.NewFakeClock()
	server, _ := newTestConnPair(t)

	w := newWriter(server, fakeClock, 4, nil)
	t.Cleanup(w.stop)

	assert.False(t, w.checkIdleTimeout())

	fakeClock.Advance(idleWarningTime)
	assert.False(t, w.checkIdleTimeout(), "should not disconnect at warning threshold")

	w.activityMutex.Lock()
	warningSent := w.warningSent
	w.activityMutex.Unlock()
	assert.True(t, warningSent)

	fakeClock.Advance(1*time.Minute + 10*time.Second)
	assert.True(t, w.checkIdleTimeout())
}

func TestWriter_ActivityResetsIdleTimer(t *testing.T) {
	fakeClock := clockwork.NewFakeClock()
	server, _ := newTestConnPair(t)

	w := newWriter(server, fakeClock, 4, nil)
	t.Cleanup(w.stop)

	fakeClock.Advance(3 * time.Minute)
	w.recordActivity()
	fakeClock.Advance(3 * time.Minute)
	assert.False(t, w.checkIdleTimeout(), "activity should reset the idle timer")

	fakeClock.Advance(3 * time.Minute)
	assert.True(t, w.checkIdleTimeout())
}

func TestWriter_StopIdempotent(t *testing.T) {
	server, _ := newTestConnPair(t)
	w := newWriter(server, clockwork.NewRealClock(), 4, nil)

	w.stop()
	w.stop()
	w.stopGraceful("again")
	assert.False(t, w.enqueue(outbound{data: []byte("x")}))
}
