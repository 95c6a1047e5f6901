package hub

import (
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/jonboulle/clockwork"
	"github.com/pztrick/television/internal/adapter/metrics"
)

const (
	writeDeadline     = 5 * time.Second
	pingInterval      = 30 * time.Second
	pongDeadline      = 60 * time.Second
	idleTimeout       = 5 * time.Minute
	idleWarningTime   = 4 * time.Minute
	defaultBufferSize = 64
)

var idleWarning = []byte(`{"stream":"television.idle","payload":{"message":"Connection idle. Will disconnect if no activity within 1 minute."}}`)

// outbound is one queued write. A close entry ends the connection after every
// frame queued before it has been written.
type outbound struct {
	data  []byte
	close bool
}

type writer struct {
	connection    *websocket.Conn
	clock         clockwork.Clock
	metrics       *metrics.WebSocketMetrics
	sendChannel   chan outbound
	doneChannel   chan struct{}
	exited        chan struct{}
	stopOnce      sync.Once
	lastActivity  time.Time
	activityMutex sync.Mutex
	warningSent   bool
}

func newWriter(connection *websocket.Conn, clock clockwork.Clock, bufferSize int, m *metrics.WebSocketMetrics) *writer {
	if bufferSize <= 0 {
		bufferSize = defaultBufferSize
	}
	w := &writer{
		connection:   connection,
		clock:        clock,
		metrics:      m,
		sendChannel:  make(chan outbound, bufferSize),
		doneChannel:  make(chan struct{}),
		exited:       make(chan struct{}),
		lastActivity: clock.Now(),
	}
	w.configurePongHandler()
	go w.run()
	return w
}

// enqueue never blocks. It returns false when the queue is full or the writer stopped.
func (w *writer) enqueue(msg outbound) bool {
	select {
	case <-w.doneChannel:
		return false
	case <-w.exited:
		return false
	default:
	}

	select {
	case w.sendChannel <- msg:
		return true
	default:
		return false
	}
}

func (w *writer) run() {
	defer close(w.exited)
	if w.loop() {
		// The writer ended on its own (write error, idle, server close): unblock the reader.
		_ = w.connection.Close()
	}
}

// loop returns true when it exits for a reason other than stop.
func (w *writer) loop() bool {
	ticker := w.clock.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case msg := <-w.sendChannel:
			if msg.close {
				w.writeClose("closed by server")
				return true
			}
			start := w.clock.Now()
			w.updateWriteDeadline()
			if err := w.connection.WriteMessage(websocket.TextMessage, msg.data); err != nil {
				return true
			}
			if w.metrics != nil {
				w.metrics.FramesSent.Inc()
				w.metrics.SendDuration.Observe(w.clock.Since(start).Seconds())
			}
		case <-ticker.Chan():
			if w.checkIdleTimeout() {
				w.writeClose("idle timeout")
				return true
			}
			w.updateWriteDeadline()
			if err := w.connection.WriteMessage(websocket.PingMessage, nil); err != nil {
				if w.metrics != nil {
					w.metrics.PingFailures.Inc()
				}
				return true
			}
		case <-w.doneChannel:
			return false
		}
	}
}

func (w *writer) stop() {
	w.stopOnce.Do(func() {
		close(w.doneChannel)
	})
	<-w.exited
	_ = w.connection.Close()
}

// stopGraceful sends a close frame with reason before closing.
func (w *writer) stopGraceful(reason string) {
	w.stopOnce.Do(func() {
		close(w.doneChannel)
		// Wait for run to exit so the close frame is not written concurrently.
		<-w.exited
		w.writeClose(reason)
	})
	<-w.exited
	_ = w.connection.Close()
}

func (w *writer) writeClose(reason string) {
	closeMsg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, reason)
	w.updateWriteDeadline()
	_ = w.connection.WriteMessage(websocket.CloseMessage, closeMsg)
}

func (w *writer) configurePongHandler() {
	w.updateReadDeadline()
	w.connection.SetPongHandler(func(string) error {
		w.updateReadDeadline()
		w.recordActivity()
		return nil
	})
}

func (w *writer) updateWriteDeadline() {
	_ = w.connection.SetWriteDeadline(w.clock.Now().Add(writeDeadline))
}

func (w *writer) updateReadDeadline() {
	_ = w.connection.SetReadDeadline(w.clock.Now().Add(pongDeadline))
}

func (w *writer) recordActivity() {
	w.activityMutex.Lock()
	defer w.activityMutex.Unlock()
	w.lastActivity = w.clock.Now()
	w.warningSent = false
}

// checkIdleTimeout sends a warning when the connection approaches the idle limit.
// Returns true if the connection should be terminated.
func (w *writer) checkIdleTimeout() bool {
	w.activityMutex.Lock()
	idleDuration := w.clock.Since(w.lastActivity)
	warningSent := w.warningSent
	w.activityMutex.Unlock()

	if idleDuration >= idleTimeout {
		if w.metrics != nil {
			w.metrics.IdleDisconnects.Inc()
		}
		return true
	}

	if !warningSent && idleDuration >= idleWarningTime {
		w.updateWriteDeadline()
		if err := w.connection.WriteMessage(websocket.TextMessage, idleWarning); err == nil {
			w.activityMutex.Lock()
			w.warningSent = true
			w.activityMutex.Unlock()
		}
	}
	return false
}
