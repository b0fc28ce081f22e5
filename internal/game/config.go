package game

import (
	"os"
	"strconv"
	"time"

	_ "github.com/joho/godotenv/autoload"
)

// Config fixes every tunable of the round engine. Late-bet acceptance is a
// deliberate configuration choice, never decided per round.
type Config struct {
	HouseEdge     float64
	BettingWindow time.Duration
	TickInterval  time.Duration
	RoundPause    time.Duration

	// Growth curve of the round clock.
	ClockStep      time.Duration
	ClockIncrement float64

	MinBet float64
	MaxBet float64

	// AllowLateBets accepts bets after launch while elapsed time is still
	// inside LateBetWindow. Off by default: betting closes at launch.
	AllowLateBets bool
	LateBetWindow time.Duration
}

func DefaultConfig() Config {
	return Config{
		HouseEdge:      0.03,
		BettingWindow:  5 * time.Second,
		TickInterval:   100 * time.Millisecond,
		RoundPause:     3 * time.Second,
		ClockStep:      100 * time.Millisecond,
		ClockIncrement: 0.02,
		MinBet:         1.0,
		MaxBet:         10000.0,
		AllowLateBets:  false,
		LateBetWindow:  time.Second,
	}
}

// ConfigFromEnv starts from defaults and applies CRASH_* overrides.
func ConfigFromEnv() Config {
	cfg := DefaultConfig()

	cfg.HouseEdge = getEnvAsFloat("CRASH_HOUSE_EDGE", cfg.HouseEdge)
	cfg.BettingWindow = getEnvAsDuration("CRASH_BETTING_WINDOW", cfg.BettingWindow)
	cfg.TickInterval = getEnvAsDuration("CRASH_TICK_INTERVAL", cfg.TickInterval)
	cfg.RoundPause = getEnvAsDuration("CRASH_ROUND_PAUSE", cfg.RoundPause)
	cfg.ClockStep = getEnvAsDuration("CRASH_CLOCK_STEP", cfg.ClockStep)
	cfg.ClockIncrement = getEnvAsFloat("CRASH_CLOCK_INCREMENT", cfg.ClockIncrement)
	cfg.MinBet = getEnvAsFloat("CRASH_MIN_BET", cfg.MinBet)
	cfg.MaxBet = getEnvAsFloat("CRASH_MAX_BET", cfg.MaxBet)
	cfg.AllowLateBets = getEnvAsBool("CRASH_ALLOW_LATE_BETS", cfg.AllowLateBets)
	cfg.LateBetWindow = getEnvAsDuration("CRASH_LATE_BET_WINDOW", cfg.LateBetWindow)

	return cfg
}

func getEnvAsFloat(key string, defaultVal float64) float64 {
	if val := os.Getenv(key); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			return f
		}
	}
	return defaultVal
}

func getEnvAsBool(key string, defaultVal bool) bool {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			return b
		}
	}
	return defaultVal
}

func getEnvAsDuration(key string, defaultVal time.Duration) time.Duration {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			return d
		}
	}
	return defaultVal
}
