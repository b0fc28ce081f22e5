package server

import (
	"context"
	"log"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/limiter"
	"github.com/gofiber/fiber/v2/middleware/recover"

	"crash/internal/cache"
	"crash/internal/database"
	"crash/internal/game"
	"crash/internal/wallet"
)

// balanceStore is the wallet surface the server needs: the engine's ledger
// plus the admin set-balance operation.
type balanceStore interface {
	wallet.Ledger
	SetBalance(ctx context.Context, userID string, amount float64) error
}

type FiberServer struct {
	*fiber.App

	cfg      game.Config
	db       database.Service
	cache    cache.Service
	engine   *game.Engine
	hub      *game.Hub
	balances balanceStore
}

func New() *FiberServer {
	cfg := game.ConfigFromEnv()

	db := database.New()

	cacheService := cache.New()

	var balances balanceStore
	if cacheService != nil {
		balances = wallet.NewRedisLedger(cacheService.GetClient())
	} else {
		log.Println("[SERVER] Redis unavailable, falling back to in-memory balances")
		balances = wallet.NewMemoryLedger()
	}

	hub := game.NewHub()
	engine := game.NewEngine(cfg, balances, db, hub)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if lastRoundID, err := db.LatestRoundID(ctx); err != nil {
		log.Printf("[SERVER] Could not read latest archived round id: %v", err)
	} else {
		engine.StartFromRound(lastRoundID)
	}

	server := &FiberServer{
		App: fiber.New(fiber.Config{
			ServerHeader:  "crash",
			AppName:       "crash",
			ReadTimeout:   10 * time.Second,
			WriteTimeout:  10 * time.Second,
			IdleTimeout:   120 * time.Second,
			StrictRouting: false,
		}),

		cfg:      cfg,
		db:       db,
		cache:    cacheService,
		engine:   engine,
		hub:      hub,
		balances: balances,
	}

	server.App.Use(recover.New())
	server.App.Use(limiter.New(limiter.Config{
		Max:        100,
		Expiration: 1 * time.Minute,
	}))

	go hub.Run()
	go engine.Run()

	log.Println("[SERVER] Round engine started")

	return server
}

// Shutdown drains the engine before closing connections. The in-flight
// round settles (refunding placed stakes) rather than being abandoned.
func (s *FiberServer) Shutdown() error {
	log.Println("[SERVER] Shutting down...")

	s.engine.Stop()
	select {
	case <-s.engine.Done():
	case <-time.After(10 * time.Second):
		log.Println("[SERVER] Engine drain timed out")
	}

	if s.cache != nil {
		s.cache.Close()
	}
	if s.db != nil {
		s.db.Close()
	}

	return nil
}
