package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/xela07ax/vitalpolicy-relay/internal/domain"
	"github.com/xela07ax/vitalpolicy-relay/internal/infra"
)

// InflightGuard — не более одного запроса в полете на (вид действия, ресурс).
// Второй вызов, пока первый не завершен, получает domain.ErrInFlight.
type InflightGuard interface {
	Acquire(ctx context.Context, action, resource string) (release func(), err error)
}

// releaseScript снимает блокировку, только если она все еще наша
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0`)

// RedisInflight — распределенный вариант (SetNX), общий для всех инстансов релея.
type RedisInflight struct {
	rdb *redis.Client
	ttl time.Duration // страховка на случай падения инстанса посреди запроса
}

func NewRedisInflight(rdb *redis.Client, ttl time.Duration) *RedisInflight {
	return &RedisInflight{rdb: rdb, ttl: ttl}
}

func (g *RedisInflight) Acquire(ctx context.Context, action, resource string) (func(), error) {
	key := infra.GetInflightKey(action, resource)
	token := uuid.New().String()

	ok, err := g.rdb.SetNX(ctx, key, token, g.ttl).Result()
	if err != nil {
		return func() {}, fmt.Errorf("inflight lock %s: %w", key, err)
	}
	if !ok {
		return func() {}, fmt.Errorf("%w: %s %s", domain.ErrInFlight, action, resource)
	}

	return func() {
		// Контекст запроса может быть уже отменен — снимаем блокировку в любом случае
		releaseScript.Run(context.Background(), g.rdb, []string{key}, token)
	}, nil
}

// LocalInflight — тот же контракт в памяти процесса (клиент, тесты, релей без Redis).
type LocalInflight struct {
	mu   sync.Mutex
	busy map[string]struct{}
}

func NewLocalInflight() *LocalInflight {
	return &LocalInflight{busy: make(map[string]struct{})}
}

func (g *LocalInflight) Acquire(_ context.Context, action, resource string) (func(), error) {
	key := action + ":" + resource

	g.mu.Lock()
	defer g.mu.Unlock()
	if _, ok := g.busy[key]; ok {
		return func() {}, fmt.Errorf("%w: %s %s", domain.ErrInFlight, action, resource)
	}
	g.busy[key] = struct{}{}

	var once sync.Once
	return func() {
		once.Do(func() {
			g.mu.Lock()
			delete(g.busy, key)
			g.mu.Unlock()
		})
	}, nil
}
