package config

import (
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"
)

// Config корневая структура конфигурации навигационного ядра.
// Все секции имеют рабочие значения по умолчанию; YAML-файл и
// переменные окружения перекрывают их по необходимости.

type Config struct {
	Planner  PlannerConfig  `yaml:"planner"`
	Stuck    StuckConfig    `yaml:"stuck"`
	Mission  MissionConfig  `yaml:"mission"`
	Storage  StorageConfig  `yaml:"storage"`
	Server   ServerConfig   `yaml:"server"`
	EventBus EventBusConfig `yaml:"eventbus"`
}

// PlannerConfig — параметры поиска маршрутов
type PlannerConfig struct {
	MaxNodes        int           `yaml:"max_nodes"`         // Бюджет узлов поиска
	SearchTimeout   time.Duration `yaml:"search_timeout"`    // Дедлайн одного plan()
	SwimThreshold   int           `yaml:"swim_threshold"`    // Предел ширины водной преграды для плавания
	MaxRange        int           `yaml:"max_range"`         // Максимальная дальность планирования (ячеек)
	SmoothPaths     bool          `yaml:"smooth_paths"`      // Элизия коллинеарных точек
	RerouteAttempts int           `yaml:"reroute_attempts"`  // Итерации перепрокладки по вердикту hazard
}

// StuckConfig — параметры детектора застревания и восстановления
type StuckConfig struct {
	Epsilon            float64 `yaml:"epsilon"`              // Минимальная дельта позиции за тик
	StuckTicks         int     `yaml:"stuck_ticks"`          // Тиков без прогресса до перехода в Stuck
	RetreatCells       int     `yaml:"retreat_cells"`        // Отступ для первой ступени восстановления
	RecoveryTickBudget int     `yaml:"recovery_tick_budget"` // Бюджет тиков на одну попытку восстановления
	MaxAttempts        int     `yaml:"max_attempts"`         // Общий предел попыток до эскалации
}

// MissionConfig — параметры координации миссий
type MissionConfig struct {
	SpacingTolerance float64 `yaml:"spacing_tolerance"` // Допуск дистанции строя
	RegroupQuorum    int     `yaml:"regroup_quorum"`    // 0 = все участники
	ThrottleStep     float64 `yaml:"throttle_step"`     // Шаг снижения темпа лидера
	TickInterval     time.Duration `yaml:"tick_interval"`
}

// StorageConfig — параметры памяти маршрутов
type StorageConfig struct {
	DataPath             string        `yaml:"data_path"`               // Каталог BadgerDB
	MaxCandidatesPerPair int           `yaml:"max_candidates_per_pair"` // Кандидатов на пару регионов
	StaleAfter           time.Duration `yaml:"stale_after"`             // Возраст до перехода Fresh -> Stale
	RedisURL             string        `yaml:"redis_url"`               // Пустая строка — без Redis-зеркала
	RedisDB              int           `yaml:"redis_db"`
}

// ServerConfig — порты демо-сервера
type ServerConfig struct {
	RESTPort    int `yaml:"rest_port"`
	MetricsPort int `yaml:"metrics_port"`
}

// EventBusConfig — шина событий
type EventBusConfig struct {
	URL       string `yaml:"url"`    // Пустая строка — in-memory шина
	Stream    string `yaml:"stream"`
	Retention int    `yaml:"retention_hours"`
	Buffer    int    `yaml:"buffer"`
}

// Default возвращает конфигурацию по умолчанию
func Default() *Config {
	return &Config{
		Planner: PlannerConfig{
			MaxNodes:        10000,
			SearchTimeout:   2 * time.Second,
			SwimThreshold:   12,
			MaxRange:        512,
			SmoothPaths:     true,
			RerouteAttempts: 3,
		},
		Stuck: StuckConfig{
			Epsilon:            0.5,
			StuckTicks:         5,
			RetreatCells:       3,
			RecoveryTickBudget: 40,
			MaxAttempts:        4,
		},
		Mission: MissionConfig{
			SpacingTolerance: 5.0,
			RegroupQuorum:    0,
			ThrottleStep:     0.25,
			TickInterval:     50 * time.Millisecond,
		},
		Storage: StorageConfig{
			DataPath:             "data",
			MaxCandidatesPerPair: 4,
			StaleAfter:           10 * time.Minute,
		},
		Server: ServerConfig{},
		EventBus: EventBusConfig{
			Stream: "NAV_EVENTS",
			Buffer: 1024,
		},
	}
}

// GetRESTPort возвращает REST API порт с поддержкой fallback значений
func (s *ServerConfig) GetRESTPort() int {
	return getPortWithEnvFallback(s.RESTPort, "NAV_REST_PORT", 8088)
}

// GetMetricsPort возвращает Prometheus метрики порт с поддержкой fallback значений
func (s *ServerConfig) GetMetricsPort() int {
	return getPortWithEnvFallback(s.MetricsPort, "NAV_METRICS_PORT", 2112)
}

// GetBusURL возвращает URL NATS с приоритетом: config -> env -> пусто (in-memory)
func (e *EventBusConfig) GetBusURL() string {
	if e.URL != "" {
		return e.URL
	}
	return os.Getenv("NAV_NATS_URL")
}

// GetRedisURL возвращает адрес Redis с приоритетом: config -> env -> пусто (без зеркала)
func (s *StorageConfig) GetRedisURL() string {
	if s.RedisURL != "" {
		return s.RedisURL
	}
	return os.Getenv("NAV_REDIS_URL")
}

// getPortWithEnvFallback возвращает порт с приоритетом: config -> env -> default
func getPortWithEnvFallback(configPort int, envVar string, defaultPort int) int {
	// Если порт задан в конфиге и больше 0, используем его
	if configPort > 0 {
		return configPort
	}

	// Пробуем прочитать из environment variable
	if envVal := os.Getenv(envVar); envVal != "" {
		if port, err := strconv.Atoi(envVal); err == nil && port > 0 {
			return port
		}
	}

	// Используем дефолтное значение
	return defaultPort
}

// Load читает YAML файл конфигурации поверх значений по умолчанию.
// Если path == "", пытается прочитать из ENV NAV_CONFIG или возвращает дефолты.
func Load(path string) (*Config, error) {
	cfg := Default()

	if path == "" {
		path = os.Getenv("NAV_CONFIG")
		if path == "" {
			return cfg, nil // конфиг не задан — использовать дефолты
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}
