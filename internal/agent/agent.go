// Package agent реализует исполнение маршрута агентом: мониторинг
// прогресса, детекцию застревания и конечный автомат восстановления.
// Позиции поступают извне (хост двигает агента), ядро решает, что
// делать — продолжать, отступать, перепрокладывать или звать помощь.
package agent

import (
	"github.com/annel0/nav-core/internal/config"
	"github.com/annel0/nav-core/internal/logging"
	"github.com/annel0/nav-core/internal/naverr"
	"github.com/annel0/nav-core/internal/planner"
	"github.com/annel0/nav-core/internal/terrain"
	"github.com/annel0/nav-core/internal/vec"
)

// State представляет состояние конечного автомата агента
type State interface {
	Enter(a *Agent)
	Update(a *Agent, nav NavAPI) State
	Exit(a *Agent)

	// Name возвращает имя состояния для логов и статусной поверхности
	Name() string
}

// NavAPI — навигационные возможности, доступные состояниям агента.
// Реализуется обвязкой миссии; ядро автомата не знает про транспорт.
type NavAPI interface {
	// Plan строит маршрут от origin к dest для возможностей caps
	Plan(origin, dest vec.Vec3, caps terrain.CapabilitySet) (*planner.Path, error)

	// ReportTraversal сообщает памяти маршрутов итог обхода
	ReportTraversal(pathID string, success bool)

	// Invalidate выводит маршрут из памяти: обход провалился на
	// указанной точке и маршрут не должен предлагаться повторно
	Invalidate(pathID string, failingWaypoint int)

	// Assist рассылает приоритетный запрос помощи соседям
	Assist(agentID string, pos vec.Vec3)

	// Escalated уведомляет координатора, что агент исчерпал
	// самостоятельное восстановление
	Escalated(agentID string, reason *naverr.Reason)
}

// Agent — исполняющий маршрут агент с конечным автоматом
type Agent struct {
	ID   string
	Pos  vec.Vec3f
	Caps terrain.CapabilitySet

	Dest        vec.Vec3
	Path        *planner.Path
	WaypointIdx int

	// RecoveryTarget — точка, куда хост должен вести агента во время
	// восстановления (отступление, вертикальный обход). nil вне
	// восстановления.
	RecoveryTarget *vec.Vec3f

	Monitor  *ProgressMonitor
	Attempts int
	Reason   *naverr.Reason

	CurrentState State

	cfg config.StuckConfig
	log *logging.Logger
}

// arrivalRadius — дистанция, на которой точка маршрута считается
// достигнутой
const arrivalRadius = 0.75

// NewAgent создаёт агента в состоянии бездействия
func NewAgent(id string, pos vec.Vec3f, caps terrain.CapabilitySet, cfg config.StuckConfig) *Agent {
	a := &Agent{
		ID:      id,
		Pos:     pos,
		Caps:    caps,
		Monitor: NewProgressMonitor(cfg.Epsilon, cfg.StuckTicks),
		cfg:     cfg,
		log:     logging.GetLoggerManager().MustGetLogger("agent"),
	}
	a.SetState(NewIdleState())
	return a
}

// StartMission назначает агенту маршрут и переводит его в движение
func (a *Agent) StartMission(path *planner.Path) {
	a.Path = path
	a.Dest = path.Dest
	a.WaypointIdx = 0
	a.Attempts = 0
	a.Reason = nil
	a.Monitor.Reset()
	a.SetState(NewMovingState())
}

// SetPosition фиксирует наблюдаемую позицию агента.
// Вызывается хостом каждый тик до Update.
func (a *Agent) SetPosition(pos vec.Vec3f) {
	a.Pos = pos
	a.Monitor.Observe(pos)
}

// Update продвигает конечный автомат на один тик
func (a *Agent) Update(nav NavAPI) {
	if a.CurrentState == nil {
		return
	}
	next := a.CurrentState.Update(a, nav)
	if next != a.CurrentState {
		a.transition(next)
	}
}

// SetState устанавливает состояние агента напрямую
func (a *Agent) SetState(state State) {
	if a.CurrentState != nil {
		a.CurrentState.Exit(a)
	}
	a.CurrentState = state
	if a.CurrentState != nil {
		a.CurrentState.Enter(a)
	}
}

func (a *Agent) transition(next State) {
	a.log.Debug("Агент %s: %s -> %s", a.ID, a.CurrentState.Name(), next.Name())
	a.CurrentState.Exit(a)
	a.CurrentState = next
	a.CurrentState.Enter(a)
}

// StateName возвращает имя текущего состояния
func (a *Agent) StateName() string {
	if a.CurrentState == nil {
		return "none"
	}
	return a.CurrentState.Name()
}

// Abort принудительно завершает миссию агента с указанной причиной.
// Команда односторонняя: подтверждения не требуется.
func (a *Agent) Abort(reason *naverr.Reason) {
	a.Reason = reason
	a.SetState(NewAbortedState())
}

// Cell возвращает ячейку, в которой находится агент
func (a *Agent) Cell() vec.Vec3 {
	return a.Pos.Cell()
}

// currentWaypoint возвращает текущую целевую точку маршрута
func (a *Agent) currentWaypoint() (planner.Waypoint, bool) {
	if a.Path == nil || a.WaypointIdx >= len(a.Path.Waypoints) {
		return planner.Waypoint{}, false
	}
	return a.Path.Waypoints[a.WaypointIdx], true
}
