package pathmem

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-redis/redis/v8"

	"github.com/annel0/nav-core/internal/logging"
	"github.com/annel0/nav-core/internal/planner"
)

const (
	mirrorKeyPrefix = "nav:path:"
	mirrorTTL       = 30 * time.Minute
)

// redisMirror — best-effort зеркало памяти маршрутов в Redis.
// Позволяет соседним процессам подхватывать свежие маршруты без общего
// диска. Ошибки записи логируются и не влияют на локальную память.
type redisMirror struct {
	client *redis.Client
	ctx    context.Context
	cancel context.CancelFunc
	log    *logging.Logger
}

// openRedisMirror подключается к Redis и проверяет соединение
func openRedisMirror(url string, db int) (*redisMirror, error) {
	client := redis.NewClient(&redis.Options{
		Addr: url,
		DB:   db,
	})

	ctx, cancel := context.WithCancel(context.Background())
	pingCtx, pingCancel := context.WithTimeout(ctx, 3*time.Second)
	defer pingCancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		cancel()
		client.Close()
		return nil, fmt.Errorf("не удалось подключиться к Redis: %w", err)
	}

	return &redisMirror{
		client: client,
		ctx:    ctx,
		cancel: cancel,
		log:    logging.GetLoggerManager().MustGetLogger("pathmem-mirror"),
	}, nil
}

func (m *redisMirror) close() {
	m.cancel()
	if err := m.client.Close(); err != nil {
		m.log.Warn("Ошибка закрытия Redis-клиента: %v", err)
	}
}

// publish записывает маршрут в зеркало
func (m *redisMirror) publish(p *planner.Path) {
	data, err := json.Marshal(p)
	if err != nil {
		m.log.Error("Ошибка сериализации маршрута %s для зеркала: %v", p.ID, err)
		return
	}
	key := mirrorKeyPrefix + p.ID
	if err := m.client.Set(m.ctx, key, data, mirrorTTL).Err(); err != nil {
		m.log.Warn("Не удалось записать маршрут %s в зеркало: %v", p.ID, err)
	}
}
