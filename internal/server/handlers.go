package server

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"strconv"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"

	"crash/internal/game"
	"crash/internal/wallet"
)

// statusForError maps the engine's rejection taxonomy onto HTTP statuses.
func statusForError(err error) int {
	switch {
	case errors.Is(err, game.ErrInvalidStake), errors.Is(err, game.ErrBetAlreadyPlaced):
		return fiber.StatusBadRequest
	case errors.Is(err, wallet.ErrInsufficientFunds):
		return fiber.StatusPaymentRequired
	case errors.Is(err, game.ErrRoundNotAcceptingBets), errors.Is(err, game.ErrRoundNotRunning):
		return fiber.StatusConflict
	case errors.Is(err, game.ErrNoActiveBet):
		return fiber.StatusNotFound
	case errors.Is(err, game.ErrEngineHalted):
		return fiber.StatusServiceUnavailable
	default:
		return fiber.StatusInternalServerError
	}
}

// roundStateHandler returns the same snapshot a websocket subscriber gets
// on join.
func (s *FiberServer) roundStateHandler(c *fiber.Ctx) error {
	return c.JSON(s.engine.Snapshot())
}

func (s *FiberServer) placeBetHandler(c *fiber.Ctx) error {
	var req game.BetRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if req.UserID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "User ID is required",
		})
	}

	bet, err := s.engine.PlaceBet(c.Context(), req.UserID, req.Stake)
	if err != nil {
		return c.Status(statusForError(err)).JSON(game.BetResponse{
			Success: false,
			Message: err.Error(),
		})
	}

	balance, _ := s.balances.Balance(c.Context(), req.UserID)
	return c.JSON(game.BetResponse{
		Success: true,
		Bet:     &bet,
		Balance: balance,
	})
}

func (s *FiberServer) cashOutHandler(c *fiber.Ctx) error {
	var req game.CashOutRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}
	if req.UserID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "User ID is required",
		})
	}

	bet, err := s.engine.CashOut(c.Context(), req.UserID)
	if err != nil {
		return c.Status(statusForError(err)).JSON(game.CashOutResponse{
			Success: false,
			Message: err.Error(),
		})
	}

	balance, _ := s.balances.Balance(c.Context(), req.UserID)
	return c.JSON(game.CashOutResponse{
		Success:    true,
		Bet:        &bet,
		Multiplier: bet.CashOutMultiplier,
		Payout:     bet.Payout,
		Balance:    balance,
	})
}

// verifySeedHandler lets any observer check a revealed seed against its
// published commitment and recompute the crash point it implies.
func (s *FiberServer) verifySeedHandler(c *fiber.Ctx) error {
	seed := c.Query("seed")
	hash := c.Query("hash")
	if seed == "" || hash == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "seed and hash query parameters are required",
		})
	}

	gen := game.NewFairnessGenerator(s.cfg.HouseEdge)
	return c.JSON(fiber.Map{
		"valid":       game.Verify(seed, hash),
		"crash_point": gen.DeriveCrashPoint(seed),
	})
}

// verifyRoundHandler replays an archived round and reports whether the
// recorded settlement matches what the revealed seed implies.
func (s *FiberServer) verifyRoundHandler(c *fiber.Ctx) error {
	roundID, err := strconv.ParseInt(c.Params("roundId"), 10, 64)
	if err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid round id",
		})
	}

	record, err := s.db.GetRound(c.Context(), roundID)
	if err != nil {
		return c.Status(fiber.StatusNotFound).JSON(fiber.Map{
			"error": "Round not found",
		})
	}

	if err := game.VerifyRecord(record, s.cfg.HouseEdge); err != nil {
		return c.JSON(fiber.Map{
			"round_id": roundID,
			"valid":    false,
			"reason":   err.Error(),
		})
	}
	return c.JSON(fiber.Map{
		"round_id":    roundID,
		"valid":       true,
		"crash_point": record.CrashPoint,
		"seed":        record.Seed,
		"hash":        record.Hash,
	})
}

func (s *FiberServer) recentRoundsHandler(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", 20)
	if limit < 1 || limit > 100 {
		limit = 20
	}

	records, err := s.db.RecentRounds(c.Context(), limit)
	if err != nil {
		log.Printf("[SERVER] Recent rounds query failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to load round history",
		})
	}
	return c.JSON(fiber.Map{"rounds": records})
}

func (s *FiberServer) getBalanceHandler(c *fiber.Ctx) error {
	userID := c.Params("userId")
	if userID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "User ID is required",
		})
	}

	balance, err := s.balances.Balance(c.Context(), userID)
	if err != nil {
		return c.Status(fiber.StatusServiceUnavailable).JSON(fiber.Map{
			"error": "Balance ledger unavailable",
		})
	}
	return c.JSON(fiber.Map{
		"user_id": userID,
		"balance": balance,
	})
}

// setBalanceHandler overwrites a balance. Testing/admin surface only.
func (s *FiberServer) setBalanceHandler(c *fiber.Ctx) error {
	userID := c.Params("userId")
	if userID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "User ID is required",
		})
	}

	var body struct {
		Balance float64 `json:"balance"`
	}
	if err := c.BodyParser(&body); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(fiber.Map{
			"error": "Invalid request body",
		})
	}

	if err := s.balances.SetBalance(c.Context(), userID, body.Balance); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(fiber.Map{
			"error": "Failed to set balance",
		})
	}
	return c.JSON(fiber.Map{
		"user_id": userID,
		"balance": body.Balance,
	})
}

// streamHandler serves the live event stream. The client gets a snapshot
// of the in-flight round before any live event, then bets and cash-outs
// arrive as messages on the same connection.
func (s *FiberServer) streamHandler(conn *websocket.Conn) {
	userID := conn.Query("user_id", "anonymous")

	client := s.hub.RegisterClient(conn, userID, s.engine.Snapshot)
	defer s.hub.UnregisterClient(client)

	for {
		messageType, message, err := conn.ReadMessage()
		if err != nil {
			log.Printf("[WS] Read error for user %s: %v", userID, err)
			return
		}
		if messageType != websocket.TextMessage {
			continue
		}

		var msg struct {
			Type  string  `json:"type"`
			Stake float64 `json:"stake"`
		}
		if err := json.Unmarshal(message, &msg); err != nil {
			continue
		}

		switch msg.Type {
		case "place_bet":
			bet, err := s.engine.PlaceBet(context.Background(), userID, msg.Stake)
			if err != nil {
				client.Send(game.BetResponse{Success: false, Message: err.Error()})
				continue
			}
			client.Send(game.BetResponse{Success: true, Bet: &bet})

		case "cashout":
			bet, err := s.engine.CashOut(context.Background(), userID)
			if err != nil {
				client.Send(game.CashOutResponse{Success: false, Message: err.Error()})
				continue
			}
			client.Send(game.CashOutResponse{
				Success:    true,
				Bet:        &bet,
				Multiplier: bet.CashOutMultiplier,
				Payout:     bet.Payout,
			})

		case "ping":
			client.Send(map[string]string{"type": "pong"})
		}
	}
}
