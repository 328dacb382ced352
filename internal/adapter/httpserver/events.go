package httpserver

import (
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/hogliux/collect/internal/adapter/metrics"
	"github.com/hogliux/collect/internal/app"
)

const (
	clientBufferSize = 16
	writeTimeout     = 5 * time.Second
	pingInterval     = 30 * time.Second
	pongTimeout      = 2 * pingInterval
)

// streamClient owns the write side of one connection.
type streamClient struct {
	conn   *websocket.Conn
	sendCh chan []byte
	done   chan struct{}
	once   sync.Once
}

func newStreamClient(conn *websocket.Conn) *streamClient {
	return &streamClient{
		conn:   conn,
		sendCh: make(chan []byte, clientBufferSize),
		done:   make(chan struct{}),
	}
}

func (sc *streamClient) run() {
	ping := time.NewTicker(pingInterval)
	defer ping.Stop()
	for {
		select {
		case msg := <-sc.sendCh:
			_ = sc.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := sc.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				sc.stop()
				return
			}
		case <-ping.C:
			if err := sc.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout)); err != nil {
				sc.stop()
				return
			}
		case <-sc.done:
			return
		}
	}
}

func (sc *streamClient) stop() {
	sc.once.Do(func() {
		close(sc.done)
		_ = sc.conn.Close()
	})
}

// eventStream fans app events out to every connected client. A client whose
// buffer is full is disconnected rather than slowing the others down.
type eventStream struct {
	metrics *metrics.StreamMetrics

	mu          sync.Mutex
	clients     map[*streamClient]struct{}
	closed      bool
	unsubscribe func()
	wg          sync.WaitGroup
}

func newEventStream(m *metrics.StreamMetrics) *eventStream {
	return &eventStream{
		metrics: m,
		clients: make(map[*streamClient]struct{}),
	}
}

func (es *eventStream) attach(svc interface{ Subscribe(func(app.Event)) func() }) {
	es.unsubscribe = svc.Subscribe(es.broadcast)
}

func (es *eventStream) register(sc *streamClient) bool {
	es.mu.Lock()
	defer es.mu.Unlock()
	if es.closed {
		return false
	}
	es.clients[sc] = struct{}{}
	es.wg.Add(1)
	go func() {
		defer es.wg.Done()
		sc.run()
	}()
	if es.metrics != nil {
		es.metrics.ActiveConnections.Inc()
	}
	return true
}

func (es *eventStream) unregister(sc *streamClient) {
	es.mu.Lock()
	_, ok := es.clients[sc]
	delete(es.clients, sc)
	es.mu.Unlock()

	sc.stop()
	if ok && es.metrics != nil {
		es.metrics.ActiveConnections.Dec()
	}
}

func (es *eventStream) broadcast(ev app.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		slog.Error("Failed to marshal event", "type", ev.Type, "error", err)
		return
	}

	es.mu.Lock()
	var slow []*streamClient
	for sc := range es.clients {
		select {
		case sc.sendCh <- data:
			if es.metrics != nil {
				es.metrics.EventsSent.WithLabelValues(string(ev.Type)).Inc()
			}
		default:
			slow = append(slow, sc)
		}
	}
	es.mu.Unlock()

	for _, sc := range slow {
		slog.Warn("Disconnecting slow event stream client", "remote_addr", sc.conn.RemoteAddr().String())
		if es.metrics != nil {
			es.metrics.EventsDropped.Inc()
		}
		es.unregister(sc)
	}
}

// send queues one message for a single client, used for the initial
// snapshot.
func (es *eventStream) send(sc *streamClient, ev app.Event) {
	data, err := json.Marshal(ev)
	if err != nil {
		return
	}
	select {
	case sc.sendCh <- data:
	default:
	}
}

func (es *eventStream) close() {
	es.mu.Lock()
	es.closed = true
	clients := make([]*streamClient, 0, len(es.clients))
	for sc := range es.clients {
		clients = append(clients, sc)
	}
	es.mu.Unlock()

	if es.unsubscribe != nil {
		es.unsubscribe()
	}
	for _, sc := range clients {
		es.unregister(sc)
	}
	es.wg.Wait()
}

func (s *Server) handleEvents(c echo.Context) error {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}
	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		// Upgrade has already written the error response.
		return nil
	}

	sc := newStreamClient(conn)
	if !s.stream.register(sc) {
		_ = conn.Close()
		return nil
	}
	defer s.stream.unregister(sc)

	ctx := c.Request().Context()
	if menu, err := s.app.Menu(ctx); err == nil {
		s.stream.send(sc, app.Event{Type: app.EventMenuUpdated, Menu: &menu})
	} else {
		slog.WarnContext(ctx, "Initial menu snapshot failed", "error", err)
	}

	// The read side only exists to notice when the client goes away.
	_ = conn.SetReadDeadline(time.Now().Add(pongTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongTimeout))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return nil
		}
	}
}
