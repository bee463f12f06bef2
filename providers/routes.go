package providers

import (
	"github.com/gofiber/fiber/v3"
)

// registerRoutes registers the non-WebSocket routes on the Fiber app.
func (s *Server) registerRoutes(app *fiber.App) {
	app.Get("/healthz", s.handleHealth)
	app.Get("/ws/info", s.handleInfo)
}

func (s *Server) handleHealth(c fiber.Ctx) error {
	return c.JSON(fiber.Map{"status": "ok"})
}

func (s *Server) handleInfo(c fiber.Ctx) error {
	return c.JSON(fiber.Map{
		"websocket": true,
		"endpoint":  "/ws",
		"sessions":  s.hub.SessionCount(),
		"rooms":     len(s.hub.Rooms()),
	})
}
