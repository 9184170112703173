// Package api экспонирует статусную поверхность навигационного ядра:
// REST-маршруты для запроса маршрутов, сводок миссий и памяти
// маршрутов, плюс метрики prometheus.
package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/annel0/nav-core/internal/logging"
	"github.com/annel0/nav-core/internal/middleware"
	"github.com/annel0/nav-core/internal/mission"
	"github.com/annel0/nav-core/internal/naverr"
	"github.com/annel0/nav-core/internal/pathmem"
	"github.com/annel0/nav-core/internal/planner"
	"github.com/annel0/nav-core/internal/terrain"
	"github.com/annel0/nav-core/internal/vec"
)

// PathPlanner — планировщик с точки зрения REST-поверхности
type PathPlanner interface {
	Plan(ctx context.Context, origin, dest vec.Vec3, caps terrain.CapabilitySet) (*planner.Path, error)
}

// MemoryStats — поставщик сводки памяти маршрутов
type MemoryStats interface {
	Snapshot() pathmem.Stats
}

// MissionIndex — реестр активных миссий
type MissionIndex interface {
	Snapshot(id string) (mission.Snapshot, bool)
}

// RestServer — REST-поверхность навигационного ядра
type RestServer struct {
	router   *gin.Engine
	server   *http.Server
	planner  PathPlanner
	memory   MemoryStats
	missions MissionIndex
	log      *logging.Logger
}

// Config содержит зависимости REST-сервера. Memory и Missions могут
// быть nil — соответствующие маршруты отвечают 503.
type Config struct {
	Port     int
	Planner  PathPlanner
	Memory   MemoryStats
	Missions MissionIndex
}

// NewRestServer создаёт REST-сервер со стандартной обвязкой:
// recovery, логирование запросов, prometheus-метрики.
func NewRestServer(cfg Config) *RestServer {
	gin.SetMode(gin.ReleaseMode)

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(middleware.NewRequestLogger().Handler())

	promMw := middleware.NewPrometheusMiddleware("nav_api")
	router.Use(promMw.Handler())
	promMw.RegisterMetricsEndpoint(router)

	rs := &RestServer{
		router:   router,
		planner:  cfg.Planner,
		memory:   cfg.Memory,
		missions: cfg.Missions,
		log:      logging.GetLoggerManager().MustGetLogger("api"),
		server: &http.Server{
			Addr:    fmt.Sprintf(":%d", cfg.Port),
			Handler: router,
		},
	}
	rs.setupRoutes()
	return rs
}

func (rs *RestServer) setupRoutes() {
	rs.router.GET("/health", rs.handleHealth)

	api := rs.router.Group("/api")
	{
		api.POST("/paths", rs.handlePlanPath)
		api.GET("/pathmem/stats", rs.handleMemoryStats)
		api.GET("/missions/:id/status", rs.handleMissionStatus)
	}
}

// Start запускает HTTP-сервер (блокирует до остановки)
func (rs *RestServer) Start() error {
	rs.log.Info("REST-сервер слушает %s", rs.server.Addr)
	if err := rs.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("REST-сервер: %w", err)
	}
	return nil
}

// Stop останавливает сервер, дожидаясь активных запросов
func (rs *RestServer) Stop(ctx context.Context) error {
	return rs.server.Shutdown(ctx)
}

// Handler возвращает корневой http.Handler (для тестов)
func (rs *RestServer) Handler() http.Handler { return rs.router }

func (rs *RestServer) handleHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// planRequest — тело запроса построения маршрута
type planRequest struct {
	Origin vec.Vec3                `json:"origin"`
	Dest   vec.Vec3                `json:"dest"`
	Caps   *terrain.CapabilitySet `json:"caps,omitempty"`
}

func (rs *RestServer) handlePlanPath(c *gin.Context) {
	if rs.planner == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "планировщик не подключён"})
		return
	}

	var req planRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "некорректное тело запроса"})
		return
	}

	caps := terrain.DefaultCapabilities()
	if req.Caps != nil {
		caps = *req.Caps
	}

	path, err := rs.planner.Plan(c.Request.Context(), req.Origin, req.Dest, caps)
	if err != nil {
		status := http.StatusInternalServerError
		code := ""
		switch {
		case errors.Is(err, naverr.ErrNoPathFound):
			status = http.StatusNotFound
			code = string(naverr.ReasonNoPath)
		case errors.Is(err, naverr.ErrHazardCritical):
			status = http.StatusConflict
			code = string(naverr.ReasonHazardCritical)
		}
		c.JSON(status, gin.H{"error": err.Error(), "code": code})
		return
	}

	c.JSON(http.StatusOK, path)
}

func (rs *RestServer) handleMemoryStats(c *gin.Context) {
	if rs.memory == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "память маршрутов не подключена"})
		return
	}
	c.JSON(http.StatusOK, rs.memory.Snapshot())
}

func (rs *RestServer) handleMissionStatus(c *gin.Context) {
	if rs.missions == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "реестр миссий не подключён"})
		return
	}
	snap, ok := rs.missions.Snapshot(c.Param("id"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "миссия не найдена"})
		return
	}
	c.JSON(http.StatusOK, snap)
}
