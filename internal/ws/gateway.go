// README: WebSocket gateway; one connection per client session, multiplexing order subscriptions.
package ws

import (
	"context"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"porter/internal/modules/tracking"
	"porter/internal/types"
)

const outboundBuffer = 32

type Gateway struct {
	tracking *tracking.Service
	upgrader websocket.Upgrader
}

func NewGateway(svc *tracking.Service) *Gateway {
	return &Gateway{
		tracking: svc,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
			// Origin policy is enforced upstream at the edge proxy.
			CheckOrigin: func(*http.Request) bool { return true },
		},
	}
}

type clientMsg struct {
	Event   string     `json:"event"`
	OrderID string     `json:"order_id"`
	Role    string     `json:"role,omitempty"`
	Lat     float64    `json:"lat,omitempty"`
	Lng     float64    `json:"lng,omitempty"`
	At      *time.Time `json:"at,omitempty"`
}

type errorMsg struct {
	Event   string `json:"event"`
	Message string `json:"message"`
}

// Handle upgrades the request and runs the connection until the peer goes
// away. Every subscription made on the connection is reaped on disconnect.
func (g *Gateway) Handle(c *gin.Context) {
	conn, err := g.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		return
	}
	sess := &session{
		id:       types.ID(uuid.NewString()),
		conn:     conn,
		tracking: g.tracking,
		out:      make(chan any, outboundBuffer),
		joined:   make(map[types.ID]struct{}),
	}
	sess.run(c.Request.Context())
}

type session struct {
	id       types.ID
	conn     *websocket.Conn
	tracking *tracking.Service
	out      chan any

	mu       sync.Mutex
	joined   map[types.ID]struct{}
	forwards sync.WaitGroup
}

func (s *session) run(ctx context.Context) {
	writerDone := make(chan struct{})
	go s.writeLoop(writerDone)

	s.readLoop(ctx)

	// Disconnect: leave every room. Leaving closes the room channels, which
	// ends the forwarders; only then is the outbound queue closed.
	s.mu.Lock()
	orders := make([]types.ID, 0, len(s.joined))
	for id := range s.joined {
		orders = append(orders, id)
	}
	s.joined = make(map[types.ID]struct{})
	s.mu.Unlock()
	for _, id := range orders {
		s.tracking.Leave(id, s.id)
	}
	s.forwards.Wait()
	close(s.out)
	<-writerDone
	_ = s.conn.Close()
}

func (s *session) readLoop(ctx context.Context) {
	for {
		var msg clientMsg
		if err := s.conn.ReadJSON(&msg); err != nil {
			return
		}
		orderID := types.ID(msg.OrderID)
		if orderID == "" {
			s.sendError("order_id is required")
			continue
		}

		switch msg.Event {
		case "join-order":
			s.join(ctx, orderID)
		case "leave-order":
			s.leave(orderID)
		case "update-location":
			s.publish(ctx, orderID, msg)
		default:
			s.sendError("unknown event: " + msg.Event)
		}
	}
}

func (s *session) join(ctx context.Context, orderID types.ID) {
	// Always consult tracking first: Join is idempotent, and a torn-down
	// order must surface an error instead of a silent no-op.
	ch, err := s.tracking.Join(ctx, orderID, s.id)
	if err != nil {
		s.sendError(err.Error())
		return
	}

	s.mu.Lock()
	if _, already := s.joined[orderID]; already {
		s.mu.Unlock()
		return
	}
	s.joined[orderID] = struct{}{}
	s.mu.Unlock()

	s.forwards.Add(1)
	go func() {
		defer s.forwards.Done()
		for ev := range ch {
			select {
			case s.out <- ev:
			default:
				// Slow consumer: drop rather than stall the gateway.
			}
		}
		// Channel closed by teardown or leave: forget the order so a later
		// join is re-evaluated.
		s.mu.Lock()
		delete(s.joined, orderID)
		s.mu.Unlock()
	}()
}

func (s *session) leave(orderID types.ID) {
	s.mu.Lock()
	delete(s.joined, orderID)
	s.mu.Unlock()
	s.tracking.Leave(orderID, s.id)
}

func (s *session) publish(ctx context.Context, orderID types.ID, msg clientMsg) {
	at := time.Now()
	if msg.At != nil {
		at = *msg.At
	}
	_, err := s.tracking.PublishLocation(ctx, orderID, s.id, tracking.Role(msg.Role),
		types.Point{Lat: msg.Lat, Lng: msg.Lng}, at)
	switch err {
	case nil, tracking.ErrStaleUpdate:
		// Stale packets are dropped silently.
	default:
		s.sendError(err.Error())
	}
}

func (s *session) sendError(message string) {
	select {
	case s.out <- errorMsg{Event: "error", Message: message}:
	default:
	}
}

func (s *session) writeLoop(done chan<- struct{}) {
	defer close(done)
	for v := range s.out {
		if err := s.conn.WriteJSON(v); err != nil {
			log.Printf("ws: write: %v", err)
			// Keep draining so forwarders are never blocked on a dead peer.
		}
	}
}
