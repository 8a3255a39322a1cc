package web

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/mbocsi/radiofleet/fleet"
)

const writeWait = time.Second

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // Allow all origins for now
	},
}

// wsClient is one WebSocket viewer. It satisfies fleet.RowSubscriber.
type wsClient struct {
	id   string
	conn *websocket.Conn
	wmu  sync.Mutex
}

func newWSClient(conn *websocket.Conn) *wsClient {
	return &wsClient{id: "ws-" + uuid.NewString()[:8], conn: conn}
}

func (c *wsClient) ID() string { return c.id }

func (c *wsClient) Send(entry fleet.LogEntry) error {
	return c.writeJSON(entry)
}

// writeJSON is bounded by writeWait so a stalled viewer cannot hold up the
// node's dispatch loop.
func (c *wsClient) writeJSON(v any) error {
	c.wmu.Lock()
	defer c.wmu.Unlock()
	c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteJSON(v)
}

// drain reads until the peer goes away.
func (c *wsClient) drain() {
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Warn("WebSocket connection error", "client", c.id, "error", err)
			}
			return
		}
	}
}

// HandleRowStream pushes every ingested row as JSON. ?sensor= narrows the
// feed to one sensor, by any accepted name.
func (s *Server) HandleRowStream(wr http.ResponseWriter, r *http.Request) {
	topic := fleet.AllSensors
	if name := r.URL.Query().Get("sensor"); name != "" {
		info, err := s.services.Sensor.GetSensor(name)
		if err != nil {
			s.handleError(wr, err)
			return
		}
		topic = info.Name
	}

	conn, err := upgrader.Upgrade(wr, r, nil)
	if err != nil {
		slog.Error("Failed to upgrade connection", "error", err)
		return
	}
	client := newWSClient(conn)
	slog.Info("Row viewer connected", "client", client.id, "sensor", topic)

	s.rows.Subscribe(topic, client)
	defer func() {
		s.rows.UnsubscribeAll(client)
		conn.Close()
		slog.Info("Row viewer disconnected", "client", client.id)
	}()

	client.drain()
}

// HandleTargetStream pushes the target registry after every poll. Polling
// runs only while at least one viewer is connected.
func (s *Server) HandleTargetStream(wr http.ResponseWriter, r *http.Request) {
	if _, err := s.services.Target.ListTargets(); err != nil {
		s.handleError(wr, err)
		return
	}

	conn, err := upgrader.Upgrade(wr, r, nil)
	if err != nil {
		slog.Error("Failed to upgrade connection", "error", err)
		return
	}
	client := newWSClient(conn)
	slog.Info("Target viewer connected", "client", client.id)

	s.addViewer(client)
	defer func() {
		s.removeViewer(client)
		conn.Close()
		slog.Info("Target viewer disconnected", "client", client.id)
	}()

	client.drain()
}

// Press and Release happen under vmu so a leave racing a join cannot stop
// the loop a new viewer needs.
func (s *Server) addViewer(c *wsClient) {
	s.vmu.Lock()
	defer s.vmu.Unlock()
	s.viewers[c] = struct{}{}
	if len(s.viewers) == 1 {
		s.watch.Press(s.ctx)
	}
}

func (s *Server) removeViewer(c *wsClient) {
	s.vmu.Lock()
	defer s.vmu.Unlock()
	delete(s.viewers, c)
	if len(s.viewers) == 0 {
		s.watch.Release()
	}
}

func (s *Server) pushTargets(ids []int) {
	s.vmu.Lock()
	viewers := make([]*wsClient, 0, len(s.viewers))
	for c := range s.viewers {
		viewers = append(viewers, c)
	}
	s.vmu.Unlock()

	update := map[string]any{"targets": ids, "at": time.Now()}
	for _, c := range viewers {
		if err := c.writeJSON(update); err != nil {
			slog.Debug("Failed to push targets", "client", c.id, "error", err)
		}
	}
}
