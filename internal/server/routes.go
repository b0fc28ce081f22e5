package server

import (
	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
)

func (s *FiberServer) RegisterFiberRoutes() {
	s.App.Use(cors.New(cors.Config{
		AllowOrigins:     "*",
		AllowMethods:     "GET,POST,PUT,DELETE,OPTIONS,PATCH",
		AllowHeaders:     "Accept,Authorization,Content-Type",
		AllowCredentials: false, // credentials require explicit origins
		MaxAge:           300,
	}))

	s.App.Get("/health", s.healthHandler)

	api := s.App.Group("/api/v1")

	api.Get("/round/state", s.roundStateHandler)
	api.Post("/round/bet", s.placeBetHandler)
	api.Post("/round/cashout", s.cashOutHandler)
	api.Get("/round/verify", s.verifySeedHandler)
	api.Get("/rounds/recent", s.recentRoundsHandler)
	api.Get("/rounds/:roundId/verify", s.verifyRoundHandler)
	api.Get("/user/:userId/balance", s.getBalanceHandler)
	api.Post("/user/:userId/balance", s.setBalanceHandler)

	s.App.Get("/ws", websocket.New(s.streamHandler))
}

func (s *FiberServer) healthHandler(c *fiber.Ctx) error {
	health := fiber.Map{
		"database": s.db.Health(),
		"game": fiber.Map{
			"phase":             s.engine.Phase(),
			"halted":            s.engine.Halted(),
			"connected_clients": s.hub.GetClientCount(),
		},
	}
	if s.cache != nil {
		health["cache"] = s.cache.Health()
	}
	return c.JSON(health)
}
