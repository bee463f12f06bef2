// Package providers wires the realtime hub into an HTTP server: a Fiber
// app for the info/health routes and a raw fasthttp handler for the
// WebSocket upgrade itself.
package providers

import (
	"fmt"

	"github.com/gofiber/fiber/v3"
	"github.com/rs/zerolog"
	"github.com/salesdeck/realtime/config"
	"github.com/salesdeck/realtime/src/bridge"
	"github.com/salesdeck/realtime/src/hub"
	"github.com/salesdeck/realtime/src/service"
	"github.com/valyala/fasthttp"
)

// TokenValidator checks the bearer token presented on the connection
// handshake. Returning an error rejects the upgrade with 401.
type TokenValidator func(token string) error

// Server assembles the hub, service, optional Redis bridge, and HTTP
// surface of one realtime server instance.
type Server struct {
	cfg      *config.SocketConfig
	hub      *hub.Hub
	service  *service.Service
	bridge   bridge.Bridge
	app      *fiber.App
	validate TokenValidator
	logger   zerolog.Logger
}

// NewServer creates a server instance. validate must not be nil: an
// unauthenticated realtime endpoint is a configuration error, not a
// default.
func NewServer(cfg *config.SocketConfig, validate TokenValidator, logger zerolog.Logger) (*Server, error) {
	if validate == nil {
		return nil, fmt.Errorf("providers: token validator required")
	}
	if cfg == nil {
		cfg = config.DefaultSocketConfig()
	}

	h := hub.New(logger)
	s := &Server{
		cfg:      cfg,
		hub:      h,
		service:  service.New(h, logger),
		app:      fiber.New(),
		validate: validate,
		logger:   logger.With().Str("component", "server").Logger(),
	}
	s.registerRoutes(s.app)
	return s, nil
}

// Service exposes the high-level API for host applications.
func (s *Server) Service() *service.Service { return s.service }

// Hub exposes the underlying hub.
func (s *Server) Hub() *hub.Hub { return s.hub }

// Start runs the hub loop and connects the Redis bridge. The bridge is
// optional: if Redis is unreachable the instance runs standalone.
func (s *Server) Start() {
	go s.hub.Run()
	s.initBridge()
}

// initBridge tries to start the Redis pub/sub bridge.
func (s *Server) initBridge() {
	cfg := bridge.RedisConfigFromEnv()
	rb := bridge.NewRedisBridge(cfg, s.hub, s.logger)

	if err := rb.Start(); err != nil {
		s.logger.Warn().Err(err).Msg("redis bridge unavailable, running standalone")
		return
	}

	s.bridge = rb
	s.hub.SetBridge(rb)
	s.logger.Info().Str("redis_addr", cfg.Addr).Msg("redis bridge connected")
}

// Stop shuts the bridge and hub down.
func (s *Server) Stop() {
	if s.bridge != nil {
		if err := s.bridge.Stop(); err != nil {
			s.logger.Error().Err(err).Msg("bridge stop error")
		}
		s.bridge = nil
	}
	s.hub.Stop()
}

// Handler returns the root fasthttp handler: the WebSocket upgrade on /ws,
// everything else served by the Fiber app. Fiber v3 does not expose the
// raw *fasthttp.RequestCtx, so the upgrade is routed at this level.
func (s *Server) Handler() fasthttp.RequestHandler {
	wsHandler := s.upgradeHandler()
	appHandler := s.app.Handler()
	return func(ctx *fasthttp.RequestCtx) {
		if string(ctx.Path()) == "/ws" {
			wsHandler(ctx)
			return
		}
		appHandler(ctx)
	}
}

// Listen serves the realtime endpoint until the listener fails.
func (s *Server) Listen(addr string) error {
	s.logger.Info().Str("addr", addr).Msg("realtime server listening")
	return fasthttp.ListenAndServe(addr, s.Handler())
}
