// Package gateway is the demo server surface the avatar client talks
// to: health and synthesizer status endpoints plus a per-session
// websocket relay that broadcasts chat events to subscribers.
package gateway

import (
	"context"
	"sync"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/websocket/v2"

	"github.com/jon-soong-msft/azure-avatar-ai/internal/log"
	"github.com/jon-soong-msft/azure-avatar-ai/pkg/hub"
)

// ServiceName is reported by the health endpoint.
const ServiceName = "avatar-gateway"

// Event is one chat event relayed to a session's subscribers.
type Event struct {
	Type      string `json:"type"`
	SessionID string `json:"sessionId"`
	Text      string `json:"text,omitempty"`
}

// StatusFunc reports whether the speech synthesizer is connected.
type StatusFunc func(ctx context.Context) (bool, error)

// InboundFunc receives user chat messages sent by subscribers.
type InboundFunc func(sessionID, text string)

// Server is the gateway HTTP/websocket server.
type Server struct {
	app  *fiber.App
	port string

	status  StatusFunc
	inbound InboundFunc

	hubs   map[string]*hub.Hub
	hubsMu sync.Mutex

	runCtx context.Context
	cancel context.CancelFunc
}

// NewServer builds the gateway. status is required; inbound may be nil
// for a broadcast-only relay.
func NewServer(port string, status StatusFunc, inbound InboundFunc) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		port:    port,
		status:  status,
		inbound: inbound,
		hubs:    make(map[string]*hub.Hub),
		runCtx:  ctx,
		cancel:  cancel,
	}

	app := fiber.New(fiber.Config{
		AppName:               ServiceName,
		DisableStartupMessage: true,
	})
	app.Use(cors.New())

	app.Get("/health", s.handleHealth)
	app.Get("/api/status", s.handleStatus)

	app.Use("/ws", func(c *fiber.Ctx) error {
		if websocket.IsWebSocketUpgrade(c) {
			return c.Next()
		}
		return fiber.ErrUpgradeRequired
	})
	app.Get("/ws/chat/:session", websocket.New(s.handleChatWS))

	s.app = app
	return s
}

// Start listens on the configured port. Blocks.
func (s *Server) Start() error {
	log.Info("gateway listening", "port", s.port)
	return s.app.Listen(":" + s.port)
}

// Shutdown stops the listener and closes every session hub.
func (s *Server) Shutdown() error {
	s.cancel()
	return s.app.Shutdown()
}

// App exposes the fiber app for tests.
func (s *Server) App() *fiber.App { return s.app }

// Publish broadcasts a chat event to the session's subscribers. Events
// for sessions nobody subscribed to are dropped.
func (s *Server) Publish(ev Event) error {
	s.hubsMu.Lock()
	h, ok := s.hubs[ev.SessionID]
	s.hubsMu.Unlock()
	if !ok {
		return nil
	}
	return h.BroadcastJSON(ev)
}

// sessionHub returns the hub for a session, creating and starting it
// on first use.
func (s *Server) sessionHub(sessionID string) *hub.Hub {
	s.hubsMu.Lock()
	defer s.hubsMu.Unlock()
	if h, ok := s.hubs[sessionID]; ok {
		return h
	}
	var inbound hub.InboundHandler
	if s.inbound != nil {
		fn := s.inbound
		inbound = func(data []byte) { fn(sessionID, string(data)) }
	}
	h := hub.New(sessionID, inbound)
	s.hubs[sessionID] = h
	go h.Run(s.runCtx)
	return h
}
