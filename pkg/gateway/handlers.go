package gateway

import (
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/websocket/v2"

	"github.com/jon-soong-msft/azure-avatar-ai/internal/log"
	"github.com/jon-soong-msft/azure-avatar-ai/pkg/hub"
)

func (s *Server) handleHealth(c *fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"status":  "healthy",
		"service": ServiceName,
	})
}

func (s *Server) handleStatus(c *fiber.Ctx) error {
	connected, err := s.status(c.Context())
	if err != nil {
		log.Warn("synthesizer status probe failed", "error", err)
		return c.Status(fiber.StatusBadGateway).JSON(fiber.Map{
			"error": err.Error(),
		})
	}
	return c.JSON(fiber.Map{
		"speechSynthesizerConnected": connected,
	})
}

func (s *Server) handleChatWS(c *websocket.Conn) {
	sessionID := c.Params("session")
	if sessionID == "" {
		c.Close()
		return
	}
	h := s.sessionHub(sessionID)
	client := hub.NewClient(h, c)
	client.Run()
}
