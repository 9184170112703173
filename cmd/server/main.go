package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/annel0/nav-core/internal/api"
	"github.com/annel0/nav-core/internal/config"
	"github.com/annel0/nav-core/internal/eventbus"
	"github.com/annel0/nav-core/internal/hazard"
	"github.com/annel0/nav-core/internal/logging"
	"github.com/annel0/nav-core/internal/mission"
	"github.com/annel0/nav-core/internal/pathmem"
	"github.com/annel0/nav-core/internal/planner"
	"github.com/annel0/nav-core/internal/worldgen"
)

// missionRegistry — реестр активных миссий. Реализует api.MissionIndex
// и ведёт общий цикл тиков координаторов.
type missionRegistry struct {
	mu       sync.RWMutex
	missions map[string]*mission.Controller
}

func newMissionRegistry() *missionRegistry {
	return &missionRegistry{missions: make(map[string]*mission.Controller)}
}

func (r *missionRegistry) Add(c *mission.Controller) {
	r.mu.Lock()
	r.missions[c.ID] = c
	r.mu.Unlock()
}

func (r *missionRegistry) Snapshot(id string) (mission.Snapshot, bool) {
	r.mu.RLock()
	c, ok := r.missions[id]
	r.mu.RUnlock()
	if !ok {
		return mission.Snapshot{}, false
	}
	return c.Status(), true
}

// tickAll продвигает миссии параллельно: долгий поиск маршрута в
// одной миссии не задерживает тики остальных
func (r *missionRegistry) tickAll(ctx context.Context) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var wg sync.WaitGroup
	for _, c := range r.missions {
		wg.Add(1)
		go func(c *mission.Controller) {
			defer wg.Done()
			c.Tick(ctx)
		}(c)
	}
	wg.Wait()
}

func main() {
	// Инициализируем систему логирования
	if err := logging.InitDefaultLogger("server"); err != nil {
		log.Fatalf("❌ Ошибка инициализации логирования: %v", err)
	}
	defer logging.CloseDefaultLogger()

	logging.Info("🧭 Запуск навигационного ядра...")

	// === КОНФИГУРАЦИЯ ===
	cfg, err := config.Load("")
	if err != nil {
		logging.Error("❌ Ошибка загрузки конфигурации: %v", err)
		log.Fatalf("❌ Ошибка загрузки конфигурации: %v", err)
	}
	logging.Info("📡 Конфигурация: REST=%d, metrics=%d, data=%s",
		cfg.Server.GetRESTPort(), cfg.Server.GetMetricsPort(), cfg.Storage.DataPath)

	// === ШИНА СОБЫТИЙ ===
	var bus eventbus.EventBus
	if url := cfg.EventBus.GetBusURL(); url != "" {
		logging.Debug("Подключение к NATS JetStream: %s", url)
		retention := time.Duration(cfg.EventBus.Retention) * time.Hour
		jsBus, jsErr := eventbus.NewJetStreamBus(url, cfg.EventBus.Stream, retention)
		if jsErr != nil {
			logging.Warn("JetStream недоступен (%v), используется in-memory шина", jsErr)
			bus = eventbus.NewMemoryBus(cfg.EventBus.Buffer)
		} else {
			bus = jsBus
		}
	} else {
		bus = eventbus.NewMemoryBus(cfg.EventBus.Buffer)
	}
	eventbus.Init(bus)
	if err := eventbus.StartLoggingListener(bus); err != nil {
		logging.Warn("Слушатель журналирования событий не запущен: %v", err)
	}

	// === МИР И ОПАСНОСТИ ===
	world := worldgen.NewPerlinWorld(1337, 64, 12, 58)
	hazardIndex := hazard.NewIndex()
	hazardEngine := hazard.NewEngine(hazardIndex)
	logging.Debug("Мир и индекс опасностей готовы")

	// === ПАМЯТЬ МАРШРУТОВ ===
	store, err := pathmem.OpenPersistent(cfg.Storage)
	if err != nil {
		logging.Error("❌ Ошибка открытия памяти маршрутов: %v", err)
		log.Fatalf("❌ Ошибка открытия памяти маршрутов: %v", err)
	}
	defer store.Close()

	// === ПЛАНИРОВЩИК ===
	routePlanner := planner.New(cfg.Planner, world, hazardEngine, store)

	// === МИССИИ ===
	registry := newMissionRegistry()

	// === МЕТРИКИ ===
	exporter := eventbus.NewMetricsExporter(bus)
	exporter.StartHTTP(fmt.Sprintf(":%d", cfg.Server.GetMetricsPort()))
	defer exporter.Stop()

	// === REST API ===
	restServer := api.NewRestServer(api.Config{
		Port:     cfg.Server.GetRESTPort(),
		Planner:  routePlanner,
		Memory:   store,
		Missions: registry,
	})
	go func() {
		if err := restServer.Start(); err != nil {
			logging.Error("❌ REST-сервер: %v", err)
		}
	}()

	// === ЦИКЛ ТИКОВ МИССИЙ ===
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		ticker := time.NewTicker(cfg.Mission.TickInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				registry.tickAll(ctx)
			}
		}
	}()

	logging.Info("✅ Навигационное ядро готово")

	// === GRACEFUL SHUTDOWN ===
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logging.Info("🛑 Остановка навигационного ядра...")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := restServer.Stop(shutdownCtx); err != nil {
		logging.Warn("REST-сервер остановлен с ошибкой: %v", err)
	}
	logging.Info("✅ Навигационное ядро остановлено")
}
