package database

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"os"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/joho/godotenv/autoload"

	"crash/internal/game"
)

// Service is the durable round archive. The engine appends settled rounds
// here; the REST surface reads history from it.
type Service interface {
	Append(ctx context.Context, record game.RoundRecord) error
	RecentRounds(ctx context.Context, limit int) ([]game.RoundRecord, error)
	GetRound(ctx context.Context, roundID int64) (game.RoundRecord, error)
	LatestRoundID(ctx context.Context) (int64, error)
	Health() map[string]string
	Close() error
}

type service struct {
	db *sql.DB
}

var (
	database   = os.Getenv("CRASH_DB_DATABASE")
	password   = os.Getenv("CRASH_DB_PASSWORD")
	username   = os.Getenv("CRASH_DB_USERNAME")
	port       = os.Getenv("CRASH_DB_PORT")
	host       = os.Getenv("CRASH_DB_HOST")
	schema     = os.Getenv("CRASH_DB_SCHEMA")
	dbInstance *service
)

func New() Service {
	if dbInstance != nil {
		return dbInstance
	}

	connStr := fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable&search_path=%s",
		username, password, host, port, database, schema)
	db, err := sql.Open("pgx", connStr)
	if err != nil {
		log.Fatalf("[DB] Open failed: %v", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	dbInstance = &service{db: db}
	return dbInstance
}

// Append archives a settled round and its bets in one transaction.
func (s *service) Append(ctx context.Context, record game.RoundRecord) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("db: begin append round %d: %w", record.RoundID, err)
	}
	defer tx.Rollback()

	// No conflict clause: a duplicate round id is a real fault (ids must
	// keep growing across restarts) and has to surface, not vanish.
	_, err = tx.ExecContext(ctx, `
		INSERT INTO rounds (id, seed, hash, crash_point, started_at, crashed_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		record.RoundID, record.Seed, record.Hash, record.CrashPoint, record.StartedAt, record.CrashedAt)
	if err != nil {
		return fmt.Errorf("db: insert round %d: %w", record.RoundID, err)
	}

	for _, bet := range record.Bets {
		_, err = tx.ExecContext(ctx, `
			INSERT INTO bets (id, round_id, user_id, stake, status, cashout_multiplier, payout, placed_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			ON CONFLICT (id) DO NOTHING`,
			bet.BetID, record.RoundID, bet.UserID, bet.Stake, string(bet.Status),
			bet.CashOutMultiplier, bet.Payout, bet.PlacedAt)
		if err != nil {
			return fmt.Errorf("db: insert bet %s for round %d: %w", bet.BetID, record.RoundID, err)
		}
	}

	return tx.Commit()
}

// RecentRounds returns the latest settled rounds, newest first, bets
// included.
func (s *service) RecentRounds(ctx context.Context, limit int) ([]game.RoundRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, seed, hash, crash_point, started_at, crashed_at
		FROM rounds ORDER BY id DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("db: query recent rounds: %w", err)
	}
	defer rows.Close()

	var records []game.RoundRecord
	for rows.Next() {
		var r game.RoundRecord
		if err := rows.Scan(&r.RoundID, &r.Seed, &r.Hash, &r.CrashPoint, &r.StartedAt, &r.CrashedAt); err != nil {
			return nil, fmt.Errorf("db: scan round: %w", err)
		}
		records = append(records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range records {
		bets, err := s.roundBets(ctx, records[i].RoundID)
		if err != nil {
			return nil, err
		}
		records[i].Bets = bets
	}
	return records, nil
}

func (s *service) GetRound(ctx context.Context, roundID int64) (game.RoundRecord, error) {
	var r game.RoundRecord
	err := s.db.QueryRowContext(ctx, `
		SELECT id, seed, hash, crash_point, started_at, crashed_at
		FROM rounds WHERE id = $1`, roundID).
		Scan(&r.RoundID, &r.Seed, &r.Hash, &r.CrashPoint, &r.StartedAt, &r.CrashedAt)
	if err != nil {
		return game.RoundRecord{}, fmt.Errorf("db: get round %d: %w", roundID, err)
	}

	bets, err := s.roundBets(ctx, roundID)
	if err != nil {
		return game.RoundRecord{}, err
	}
	r.Bets = bets
	return r, nil
}

// LatestRoundID returns the highest archived round id, 0 when the archive
// is empty. The engine resumes numbering from it at startup.
func (s *service) LatestRoundID(ctx context.Context) (int64, error) {
	var id int64
	err := s.db.QueryRowContext(ctx, `SELECT COALESCE(MAX(id), 0) FROM rounds`).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("db: latest round id: %w", err)
	}
	return id, nil
}

func (s *service) roundBets(ctx context.Context, roundID int64) ([]game.Bet, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, user_id, stake, status, cashout_multiplier, payout, placed_at
		FROM bets WHERE round_id = $1 ORDER BY placed_at`, roundID)
	if err != nil {
		return nil, fmt.Errorf("db: query bets for round %d: %w", roundID, err)
	}
	defer rows.Close()

	var bets []game.Bet
	for rows.Next() {
		var b game.Bet
		var status string
		if err := rows.Scan(&b.BetID, &b.UserID, &b.Stake, &status, &b.CashOutMultiplier, &b.Payout, &b.PlacedAt); err != nil {
			return nil, fmt.Errorf("db: scan bet: %w", err)
		}
		b.Status = game.BetStatus(status)
		bets = append(bets, b)
	}
	return bets, rows.Err()
}

func (s *service) Health() map[string]string {
	ctx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
	defer cancel()

	stats := make(map[string]string)

	if err := s.db.PingContext(ctx); err != nil {
		stats["status"] = "down"
		stats["error"] = fmt.Sprintf("db down: %v", err)
		return stats
	}

	stats["status"] = "up"
	stats["message"] = "It's healthy"

	dbStats := s.db.Stats()
	stats["open_connections"] = fmt.Sprintf("%d", dbStats.OpenConnections)
	stats["in_use"] = fmt.Sprintf("%d", dbStats.InUse)
	stats["idle"] = fmt.Sprintf("%d", dbStats.Idle)
	stats["wait_count"] = fmt.Sprintf("%d", dbStats.WaitCount)

	return stats
}

func (s *service) Close() error {
	log.Printf("[DB] Disconnecting from database: %s", database)
	return s.db.Close()
}
