package videosync

import (
	"fmt"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/leandrodaf/trackmix/sdk/contracts"
)

const (
	writeWait    = 5 * time.Second
	pongWait     = 30 * time.Second
	pingInterval = 10 * time.Second
	sendBuffer   = 64
)

// Hub serves render surfaces over WebSocket. A renderer connects to
// /surface/{slot}; the media it should load is served from /media/{token}.
type Hub struct {
	clk      contracts.Clock
	logger   contracts.Logger
	upgrader websocket.Upgrader
	media    *MediaRegistry
	mux      *http.ServeMux

	mu       sync.Mutex
	surfaces map[int]*wsSurface
}

// NewHub creates a hub delivering inbound messages on clk.
func NewHub(clk contracts.Clock, logger contracts.Logger) *Hub {
	h := &Hub{
		clk:    clk,
		logger: logger,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		media:    NewMediaRegistry("/media/"),
		surfaces: map[int]*wsSurface{},
	}
	h.mux = http.NewServeMux()
	h.mux.HandleFunc("GET /surface/{slot}", h.serveSurface)
	h.mux.Handle("GET /media/{token}", h.media)
	return h
}

// Media returns the registry of files exposed to renderers.
func (h *Hub) Media() *MediaRegistry {
	return h.media
}

func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	h.mux.ServeHTTP(w, r)
}

// Open creates a surface for slot that stays pending until a renderer connects.
func (h *Hub) Open(slot int) (contracts.Surface, error) {
	s := &wsSurface{
		id:     uuid.NewString(),
		slot:   slot,
		clk:    h.clk,
		logger: h.logger,
		done:   make(chan struct{}),
	}
	h.mu.Lock()
	old := h.surfaces[slot]
	h.surfaces[slot] = s
	h.mu.Unlock()
	if old != nil {
		old.Close()
	}
	return s, nil
}

func (h *Hub) serveSurface(w http.ResponseWriter, r *http.Request) {
	slot, err := strconv.Atoi(r.PathValue("slot"))
	if err != nil {
		http.Error(w, "invalid slot", http.StatusBadRequest)
		return
	}
	h.mu.Lock()
	s := h.surfaces[slot]
	h.mu.Unlock()
	if s == nil || s.Closed() {
		http.Error(w, "no surface open for slot", http.StatusNotFound)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("Surface upgrade failed", h.logger.Field().Int("slot", slot), h.logger.Field().Error("error", err))
		return
	}
	if err := s.attach(conn); err != nil {
		h.logger.Warn("Surface connection rejected", h.logger.Field().Int("slot", slot), h.logger.Field().Error("error", err))
		conn.Close()
		return
	}
	h.logger.Info("Renderer connected", h.logger.Field().Int("slot", slot), h.logger.Field().String("remote", r.RemoteAddr))
}

// wsSurface is one renderer connection. Messages sent before the renderer
// connects are queued and flushed on connect.
type wsSurface struct {
	id     string
	slot   int
	clk    contracts.Clock
	logger contracts.Logger

	mu        sync.Mutex
	conn      *websocket.Conn
	pending   []contracts.SurfaceMessage
	out       chan contracts.SurfaceMessage
	handler   func(contracts.SurfaceMessage)
	closed    bool
	done      chan struct{}
	closeOnce sync.Once
}

func (s *wsSurface) ID() string { return s.id }

func (s *wsSurface) Send(msg contracts.SurfaceMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return fmt.Errorf("%w: surface %s closed", contracts.ErrSurfaceUnavailable, s.id)
	}
	if s.conn == nil {
		s.pending = append(s.pending, msg)
		return nil
	}
	select {
	case s.out <- msg:
		return nil
	default:
		return fmt.Errorf("surface %s send buffer full; dropped %s", s.id, msg.Type)
	}
}

func (s *wsSurface) OnMessage(fn func(contracts.SurfaceMessage)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.handler = fn
}

func (s *wsSurface) Closed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *wsSurface) Close() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		conn := s.conn
		s.mu.Unlock()
		close(s.done)
		if conn != nil {
			conn.Close()
		}
	})
	return nil
}

func (s *wsSurface) attach(conn *websocket.Conn) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return fmt.Errorf("%w: surface %s closed", contracts.ErrSurfaceUnavailable, s.id)
	}
	if s.conn != nil {
		s.mu.Unlock()
		return fmt.Errorf("surface %s already has a renderer", s.id)
	}
	s.conn = conn
	s.out = make(chan contracts.SurfaceMessage, max(sendBuffer, len(s.pending)))
	for _, msg := range s.pending {
		s.out <- msg
	}
	s.pending = nil
	s.mu.Unlock()

	go s.writePump(conn)
	go s.readPump(conn)
	return nil
}

func (s *wsSurface) readPump(conn *websocket.Conn) {
	defer s.Close()
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		var msg contracts.SurfaceMessage
		if err := conn.ReadJSON(&msg); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				s.logger.Warn("Renderer connection lost", s.logger.Field().Int("slot", s.slot), s.logger.Field().Error("error", err))
			}
			return
		}
		s.mu.Lock()
		h := s.handler
		s.mu.Unlock()
		if h != nil {
			s.clk.AfterFunc(0, func() { h(msg) })
		}
	}
}

func (s *wsSurface) writePump(conn *websocket.Conn) {
	ping := time.NewTicker(pingInterval)
	defer ping.Stop()
	for {
		select {
		case <-s.done:
			conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
			return
		case msg := <-s.out:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(msg); err != nil {
				s.Close()
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				s.Close()
				return
			}
		}
	}
}
