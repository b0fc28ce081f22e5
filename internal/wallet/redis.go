package wallet

import (
	"context"
	"fmt"
	"log"

	"github.com/redis/go-redis/v9"
)

const REDIS_KEY_BALANCE = "crash:balance:"

// RedisLedger keeps balances in Redis. Debits go through a Lua script so the
// check-and-decrement is a single atomic step; a concurrent debit can never
// drive a balance negative.
type RedisLedger struct {
	client *redis.Client
}

var debitScript = redis.NewScript(`
local balance = tonumber(redis.call('GET', KEYS[1]) or '0')
local amount = tonumber(ARGV[1])
if balance < amount then
	return redis.error_reply('INSUFFICIENT')
end
return redis.call('INCRBYFLOAT', KEYS[1], -amount)
`)

func NewRedisLedger(client *redis.Client) *RedisLedger {
	return &RedisLedger{client: client}
}

func (l *RedisLedger) Debit(ctx context.Context, userID string, amount float64) error {
	if amount <= 0 {
		return fmt.Errorf("wallet: debit amount must be positive, got %.2f", amount)
	}

	key := REDIS_KEY_BALANCE + userID
	err := debitScript.Run(ctx, l.client, []string{key}, amount).Err()
	if err != nil {
		if err.Error() == "INSUFFICIENT" {
			return ErrInsufficientFunds
		}
		log.Printf("[WALLET] Debit failed for user %s: %v", userID, err)
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func (l *RedisLedger) Credit(ctx context.Context, userID string, amount float64) error {
	if amount <= 0 {
		return fmt.Errorf("wallet: credit amount must be positive, got %.2f", amount)
	}

	key := REDIS_KEY_BALANCE + userID
	if err := l.client.IncrByFloat(ctx, key, amount).Err(); err != nil {
		log.Printf("[WALLET] Credit failed for user %s: %v", userID, err)
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func (l *RedisLedger) Balance(ctx context.Context, userID string) (float64, error) {
	key := REDIS_KEY_BALANCE + userID
	balance, err := l.client.Get(ctx, key).Float64()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return balance, nil
}

// SetBalance overwrites a user's balance. Admin/testing surface only.
func (l *RedisLedger) SetBalance(ctx context.Context, userID string, amount float64) error {
	key := REDIS_KEY_BALANCE + userID
	return l.client.Set(ctx, key, amount, 0).Err()
}
