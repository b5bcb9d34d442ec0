// Пакет ratelimit — ограничение частоты запросов фиксированным окном в Redis.
// Счётчик окна общий для всех экземпляров сервиса.
package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// keyPrefix — префикс ключей счётчиков в Redis.
const keyPrefix = "hg:ratelimit:"

// Decision — результат проверки лимита.
type Decision struct {
	Allowed   bool
	Limit     int
	Remaining int
	// ResetAt — момент окончания текущего окна
	ResetAt time.Time
}

// Limiter — проверка лимита для ключа.
type Limiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (Decision, error)
}

// INCR и PEXPIRE выполняются атомарно: окно начинается с первого запроса.
var allowScript = redis.NewScript(`
local current = redis.call("INCR", KEYS[1])
if current == 1 then
  redis.call("PEXPIRE", KEYS[1], ARGV[1])
end
local ttl = redis.call("PTTL", KEYS[1])
return {current, ttl}
`)

// RedisLimiter — реализация Limiter на Redis.
type RedisLimiter struct {
	client *redis.Client
	now    func() time.Time
}

// NewRedisLimiter создаёт лимитер с собственным клиентом Redis.
func NewRedisLimiter(addr, password string, db int) (*RedisLimiter, error) {
	if addr == "" {
		return nil, errors.New("не задан адрес Redis")
	}
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	return &RedisLimiter{client: client, now: time.Now}, nil
}

// Allow увеличивает счётчик ключа и сообщает, укладывается ли запрос в лимит.
func (r *RedisLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (Decision, error) {
	if limit <= 0 {
		return Decision{Allowed: true, Limit: limit, Remaining: limit}, nil
	}
	windowMillis := window.Milliseconds()
	if windowMillis <= 0 {
		windowMillis = 1000
	}

	result, err := allowScript.Run(ctx, r.client, []string{keyPrefix + key}, windowMillis).Result()
	if err != nil {
		return Decision{}, fmt.Errorf("выполнение скрипта лимита: %w", err)
	}
	values, ok := result.([]any)
	if !ok || len(values) < 2 {
		return Decision{}, errors.New("неожиданный ответ Redis на скрипт лимита")
	}
	current, ok := values[0].(int64)
	if !ok {
		return Decision{}, errors.New("некорректное значение счётчика в ответе Redis")
	}
	ttlMillis, _ := values[1].(int64)

	resetAt := r.now()
	if ttlMillis > 0 {
		resetAt = resetAt.Add(time.Duration(ttlMillis) * time.Millisecond)
	}
	remaining := limit - int(current)
	if remaining < 0 {
		remaining = 0
	}
	return Decision{
		Allowed:   current <= int64(limit),
		Limit:     limit,
		Remaining: remaining,
		ResetAt:   resetAt,
	}, nil
}

// CheckReady проверяет доступность Redis для /health/ready.
func (r *RedisLimiter) CheckReady() (status, message string) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	if err := r.client.Ping(ctx).Err(); err != nil {
		// Лимитер пропускает запросы при недоступном Redis
		return "degraded", fmt.Sprintf("Redis недоступен: %v", err)
	}
	return "ok", "Redis доступен"
}

// Close закрывает соединения с Redis.
func (r *RedisLimiter) Close() error {
	return r.client.Close()
}
