package agent

import (
	"fmt"

	"github.com/annel0/nav-core/internal/naverr"
	"github.com/annel0/nav-core/internal/planner"
	"github.com/annel0/nav-core/internal/vec"
)

// === Конкретные состояния ===

// IdleState — агент без маршрута
type IdleState struct{}

// NewIdleState создаёт состояние бездействия
func NewIdleState() *IdleState { return &IdleState{} }

func (s *IdleState) Enter(a *Agent)                 {}
func (s *IdleState) Update(a *Agent, _ NavAPI) State { return s }
func (s *IdleState) Exit(a *Agent)                  {}
func (s *IdleState) Name() string                   { return "idle" }

// MovingState — агент следует маршруту точка за точкой
type MovingState struct{}

// NewMovingState создаёт состояние движения
func NewMovingState() *MovingState { return &MovingState{} }

func (s *MovingState) Enter(a *Agent) {
	a.RecoveryTarget = nil
	a.Monitor.Reset()
}

func (s *MovingState) Update(a *Agent, nav NavAPI) State {
	wp, ok := a.currentWaypoint()
	if !ok {
		// Маршрут пройден
		if a.Path != nil {
			nav.ReportTraversal(a.Path.ID, true)
			a.log.Info("Агент %s завершил маршрут %s", a.ID, a.Path.ID)
			a.Path = nil
		}
		return NewIdleState()
	}

	// Продвижение по точкам маршрута
	for a.Pos.DistanceTo(wp.Pos.ToVec3f()) <= arrivalRadius {
		a.WaypointIdx++
		next, more := a.currentWaypoint()
		if !more {
			return s.Update(a, nav) // Финальная точка достигнута
		}
		wp = next
	}

	if a.Monitor.Stalled() {
		return NewStuckState()
	}
	return s
}

func (s *MovingState) Exit(a *Agent) {}
func (s *MovingState) Name() string  { return "moving" }

// StuckState — застревание подтверждено; маршрут получает провал
// обхода, агент переходит к восстановлению
type StuckState struct{}

// NewStuckState создаёт состояние застревания
func NewStuckState() *StuckState { return &StuckState{} }

func (s *StuckState) Enter(a *Agent) {
	a.log.Warn("Агент %s застрял в %v (%d тиков без прогресса)",
		a.ID, a.Pos, a.Monitor.StillTicks())
}

func (s *StuckState) Update(a *Agent, nav NavAPI) State {
	if a.Path != nil {
		nav.ReportTraversal(a.Path.ID, false)
	}
	// Первая ступень восстановления стартует в этот же тик
	rec := NewRecoveringState()
	if next := rec.begin(a, nav); next != nil {
		return next
	}
	return rec
}

func (s *StuckState) Exit(a *Agent) {}
func (s *StuckState) Name() string  { return "stuck" }

// RecoveringState — лестница восстановления: отступление по маршруту,
// вертикальный обход, перепрокладка, запрос помощи. Каждая ступень
// ограничена бюджетом тиков; исчерпание ступеней — эскалация.
type RecoveringState struct {
	ticksInAttempt int
	started        bool

	// pending — итог фоновой перепрокладки; канал ёмкости 1,
	// заполняется ровно один раз
	pending chan planOutcome
}

// planOutcome — результат перепрокладки, выполненной вне тика
type planOutcome struct {
	path *planner.Path
	err  error
}

// NewRecoveringState создаёт состояние восстановления
func NewRecoveringState() *RecoveringState { return &RecoveringState{} }

func (s *RecoveringState) Enter(a *Agent) {
	a.Monitor.ClearProgress()
}

// begin открывает очередную ступень лестницы. Ненулевой результат —
// немедленный переход состояния.
func (s *RecoveringState) begin(a *Agent, nav NavAPI) State {
	if a.Attempts >= a.cfg.MaxAttempts {
		return NewEscalatedState()
	}
	s.started = true
	s.ticksInAttempt = 0
	a.Attempts++
	return s.beginAttempt(a, nav)
}

// launchPlan запускает перепрокладку в фоне: поиск ограничен своим
// таймаутом и не должен останавливать тики остальных агентов
func (s *RecoveringState) launchPlan(a *Agent, nav NavAPI) {
	ch := make(chan planOutcome, 1)
	origin, dest, caps := a.Cell(), a.Dest, a.Caps
	go func() {
		path, err := nav.Plan(origin, dest, caps)
		ch <- planOutcome{path: path, err: err}
	}()
	s.pending = ch
}

func (s *RecoveringState) Update(a *Agent, nav NavAPI) State {
	if !s.started {
		if next := s.begin(a, nav); next != nil {
			return next
		}
	}

	s.ticksInAttempt++

	// Итог фоновой перепрокладки, если она шла
	if s.pending != nil {
		select {
		case out := <-s.pending:
			s.pending = nil
			if out.err == nil {
				a.log.Info("Агент %s восстановился на попытке %d, маршрут перепроложен", a.ID, a.Attempts)
				a.Path = out.path
				a.WaypointIdx = 0
				return NewMovingState()
			}
			a.log.Warn("Агент %s: перепрокладка не удалась: %v", a.ID, out.err)
			s.started = false // Следующий тик начнёт следующую ступень
		default:
			// Поиск ещё идёт
		}
		return s
	}

	// Прогресс возобновился — перепрокладываем к цели
	if a.Monitor.Progressed() {
		s.launchPlan(a, nav)
		return s
	}

	if s.ticksInAttempt >= a.cfg.RecoveryTickBudget {
		a.log.Warn("Агент %s: попытка восстановления %d исчерпала бюджет тиков", a.ID, a.Attempts)
		s.started = false // Следующий тик начнёт следующую ступень
	}
	return s
}

// beginAttempt запускает очередную ступень лестницы. Ненулевой результат
// означает немедленный переход состояния.
func (s *RecoveringState) beginAttempt(a *Agent, nav NavAPI) State {
	switch a.Attempts {
	case 1:
		// Отступление на несколько точек назад по маршруту
		target := s.retreatTarget(a)
		a.RecoveryTarget = &target
		a.log.Info("Агент %s: отступление к %v", a.ID, target)
	case 2:
		// Вертикальный обход: подняться над препятствием
		target := a.Pos.Add(vec.Vec3f{Y: 2})
		a.RecoveryTarget = &target
		a.log.Info("Агент %s: вертикальный обход к %v", a.ID, target)
	case 3:
		// Провальная точка выводится из памяти, маршрут прокладывается
		// заново с текущей позиции
		a.RecoveryTarget = nil
		if a.Path != nil {
			nav.Invalidate(a.Path.ID, a.WaypointIdx)
		}
		a.log.Info("Агент %s: перепрокладка с позиции %v", a.ID, a.Cell())
		s.launchPlan(a, nav)
	default:
		// Последняя ступень: запрос помощи и эскалация
		a.RecoveryTarget = nil
		nav.Assist(a.ID, a.Cell())
		return NewEscalatedState()
	}
	a.Monitor.ClearProgress()
	return nil
}

// retreatSideOffset — боковое смещение точки отступления в ячейках
const retreatSideOffset = 1.5

// retreatTarget возвращает точку отступления: несколько точек назад по
// маршруту со сдвигом вбок, чтобы повторный подход шёл под другим углом
func (s *RecoveringState) retreatTarget(a *Agent) vec.Vec3f {
	if a.Path == nil || len(a.Path.Waypoints) == 0 {
		return a.Pos
	}
	idx := a.WaypointIdx - a.cfg.RetreatCells
	if idx < 0 {
		idx = 0
	}
	if idx >= len(a.Path.Waypoints) {
		idx = len(a.Path.Waypoints) - 1
	}
	base := a.Path.Waypoints[idx].Pos.ToVec3f()

	// Перпендикуляр к направлению подхода в горизонтальной плоскости
	dir := a.Pos.Sub(base)
	side := vec.Vec3f{X: -dir.Z, Z: dir.X}
	if n := side.Length(); n > 1e-6 {
		side = side.Mul(retreatSideOffset / n)
	} else {
		side = vec.Vec3f{X: retreatSideOffset}
	}
	return base.Add(side)
}

func (s *RecoveringState) Exit(a *Agent) {
	a.RecoveryTarget = nil
}
func (s *RecoveringState) Name() string { return "recovering" }

// EscalatedState — самостоятельное восстановление исчерпано; агент
// ждёт решения координатора (помощь или прерывание)
type EscalatedState struct {
	notified bool
}

// NewEscalatedState создаёт состояние эскалации
func NewEscalatedState() *EscalatedState { return &EscalatedState{} }

func (s *EscalatedState) Enter(a *Agent) {
	lastPathID := ""
	if a.Path != nil {
		lastPathID = a.Path.ID
	}
	a.Reason = naverr.NewReason(naverr.ReasonEscalated, a.ID, lastPathID,
		fmt.Sprintf("исчерпано %d попыток восстановления в %v", a.Attempts, a.Cell()))
	a.log.Error("Агент %s эскалирован: %s", a.ID, a.Reason.Detail)
}

func (s *EscalatedState) Update(a *Agent, nav NavAPI) State {
	if !s.notified {
		s.notified = true
		nav.Escalated(a.ID, a.Reason)
	}
	// Решение принимает координатор: StartMission или Abort
	return s
}

func (s *EscalatedState) Exit(a *Agent) {}
func (s *EscalatedState) Name() string  { return "escalated" }

// AbortedState — терминальное состояние прерванной миссии
type AbortedState struct{}

// NewAbortedState создаёт терминальное состояние
func NewAbortedState() *AbortedState { return &AbortedState{} }

func (s *AbortedState) Enter(a *Agent) {
	a.RecoveryTarget = nil
	a.Path = nil
	if a.Reason != nil {
		a.log.Warn("Агент %s прерван: %s", a.ID, a.Reason)
	} else {
		a.log.Warn("Агент %s прерван без указания причины", a.ID)
	}
}

func (s *AbortedState) Update(a *Agent, _ NavAPI) State { return s }
func (s *AbortedState) Exit(a *Agent)                   {}
func (s *AbortedState) Name() string                    { return "aborted" }
