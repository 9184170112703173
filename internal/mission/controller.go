package mission

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/annel0/nav-core/internal/agent"
	"github.com/annel0/nav-core/internal/config"
	"github.com/annel0/nav-core/internal/eventbus"
	"github.com/annel0/nav-core/internal/logging"
	"github.com/annel0/nav-core/internal/naverr"
	"github.com/annel0/nav-core/internal/planner"
	"github.com/annel0/nav-core/internal/terrain"
	"github.com/annel0/nav-core/internal/vec"
)

// Status — статус миссии
type Status uint8

const (
	StatusPlanning   Status = iota // Маршруты назначаются
	StatusEnRoute                  // Группа в движении
	StatusRegrouping               // Сбор в точке регруппировки
	StatusComplete                 // Цель достигнута всеми участниками
	StatusAborted                  // Миссия прервана (терминально)
)

// String возвращает строковое представление статуса
func (s Status) String() string {
	switch s {
	case StatusPlanning:
		return "planning"
	case StatusEnRoute:
		return "en-route"
	case StatusRegrouping:
		return "regrouping"
	case StatusComplete:
		return "complete"
	case StatusAborted:
		return "aborted"
	default:
		return "unknown"
	}
}

// RoutePlanner — планировщик с точки зрения координатора
type RoutePlanner interface {
	Plan(ctx context.Context, origin, dest vec.Vec3, caps terrain.CapabilitySet) (*planner.Path, error)
}

// TraversalSink принимает итоги обходов маршрутов (память маршрутов)
type TraversalSink interface {
	ReportTraversal(pathID string, success bool)
	Invalidate(pathID string, failingWaypoint int)
}

// Member — участник миссии
type Member struct {
	Agent *agent.Agent
	Role  Role
	Slot  int
	Lost  bool // Выведен из строя (эскалация); в кворуме не участвует
}

// Дросселирование темпа лидера
const minThrottle = 0.25

// Controller координирует группу агентов: назначает маршруты по
// слотам строя, дросселирует темп лидера при отставании ведомых,
// собирает группу при эскалациях и прерывает миссию односторонне.
//
// Tick вызывается одной горутиной планировщика тиков; колбэки NavAPI
// исполняются только изнутри Tick и потому не берут мьютекс повторно.
type Controller struct {
	mu sync.Mutex

	ID        string
	cfg       config.MissionConfig
	routes    RoutePlanner
	memory    TraversalSink
	bus       eventbus.EventBus
	log       *logging.Logger
	formation FormationType

	members []*Member
	leader  *Member

	goal         vec.Vec3
	status       Status
	throttle     float64
	regroupPoint *vec.Vec3
	reason       *naverr.Reason

	ctx    context.Context
	cancel context.CancelFunc

	aborts    prometheus.Counter
	regroups  prometheus.Counter
	paceGauge prometheus.Gauge
}

// NewController создаёт координатор миссии. memory может быть nil.
func NewController(cfg config.MissionConfig, routes RoutePlanner, memory TraversalSink, bus eventbus.EventBus) *Controller {
	ctx, cancel := context.WithCancel(context.Background())
	c := &Controller{
		ID:       uuid.NewString(),
		cfg:      cfg,
		routes:   routes,
		memory:   memory,
		bus:      bus,
		log:      logging.GetLoggerManager().MustGetLogger("mission"),
		status:   StatusPlanning,
		throttle: 1.0,
		ctx:      ctx,
		cancel:   cancel,
		aborts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "mission",
			Name:      "aborts_total",
			Help:      "Прерванные миссии.",
		}),
		regroups: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "mission",
			Name:      "regroups_total",
			Help:      "Запущенные регруппировки.",
		}),
		paceGauge: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "mission",
			Name:      "leader_pace_scale",
			Help:      "Текущий множитель темпа лидера (1.0 — полный темп).",
		}),
	}
	_ = prometheus.Register(c.aborts)
	_ = prometheus.Register(c.regroups)
	_ = prometheus.Register(c.paceGauge)
	c.paceGauge.Set(1.0)
	return c
}

// publish отправляет событие в шину миссии, либо в глобальную шину,
// если собственная не задана
func (c *Controller) publish(ev *eventbus.Envelope) {
	if c.bus != nil {
		_ = c.bus.Publish(c.ctx, ev)
		return
	}
	_ = eventbus.Publish(c.ctx, ev)
}

// AddMember добавляет участника до старта миссии. Первый участник с
// ролью Lead становится лидером.
func (c *Controller) AddMember(a *agent.Agent, role Role) *Member {
	c.mu.Lock()
	defer c.mu.Unlock()

	m := &Member{Agent: a, Role: role, Slot: len(c.members)}
	c.members = append(c.members, m)
	if role == RoleLead && c.leader == nil {
		c.leader = m
	}
	return m
}

// Start назначает маршруты и переводит миссию в движение.
// Лидер идёт к цели, ведомые — к мировым ячейкам своих слотов.
func (c *Controller) Start(ctx context.Context, goal vec.Vec3) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.leader == nil {
		return fmt.Errorf("миссия %s: нет лидера", c.ID)
	}
	c.goal = goal

	leaderPath, err := c.routes.Plan(ctx, c.leader.Agent.Cell(), goal, c.leader.Agent.Caps)
	if err != nil {
		return fmt.Errorf("миссия %s: маршрут лидера: %w", c.ID, err)
	}
	c.leader.Agent.StartMission(leaderPath)

	facing := vec.FacingBetween(c.leader.Agent.Cell(), goal)
	for _, m := range c.members {
		if m == c.leader {
			continue
		}
		slotGoal := WorldSlot(goal.ToVec3f(), facing, c.formation, m.Slot, c.cfg.SpacingTolerance)
		path, err := c.routes.Plan(ctx, m.Agent.Cell(), slotGoal, m.Agent.Caps)
		if err != nil {
			// Ведомый без маршрута не роняет миссию: идёт к цели лидера
			c.log.Warn("Миссия %s: слот %d недостижим (%v), ведомый %s ведётся к цели лидера",
				c.ID, m.Slot, err, m.Agent.ID)
			path, err = c.routes.Plan(ctx, m.Agent.Cell(), goal, m.Agent.Caps)
			if err != nil {
				return fmt.Errorf("миссия %s: маршрут ведомого %s: %w", c.ID, m.Agent.ID, err)
			}
		}
		m.Agent.StartMission(path)
	}

	c.setStatus(StatusEnRoute)
	c.log.Info("Миссия %s стартовала: %d участников, строй %s, цель %v",
		c.ID, len(c.members), c.formation, goal)
	return nil
}

// SetFormation задаёт строй (до старта)
func (c *Controller) SetFormation(f FormationType) {
	c.mu.Lock()
	c.formation = f
	c.mu.Unlock()
}

// Tick продвигает миссию на один тик: обновляет автоматы агентов,
// следит за строем и регруппировкой, проверяет завершение.
func (c *Controller) Tick(ctx context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.status == StatusAborted || c.status == StatusComplete {
		return
	}
	select {
	case <-c.ctx.Done():
		return // Abort виден не позже следующего тика
	default:
	}

	for _, m := range c.members {
		if !m.Lost {
			m.Agent.Update(c)
		}
	}

	switch c.status {
	case StatusEnRoute:
		c.supervise()
	case StatusRegrouping:
		c.checkRegroup(ctx)
	}
}

// supervise следит за сцеплением строя и завершением миссии
func (c *Controller) supervise() {
	if c.allIdle() {
		c.setStatus(StatusComplete)
		c.log.Info("Миссия %s завершена", c.ID)
		return
	}

	// Отставание ведомых дросселирует темп лидера; группа никогда не
	// бросает отставшего
	lag := c.maxLag()
	switch {
	case lag > c.cfg.SpacingTolerance:
		c.throttle -= c.cfg.ThrottleStep
		if c.throttle < minThrottle {
			c.throttle = minThrottle
		}
		c.paceGauge.Set(c.throttle)
		c.log.Debug("Миссия %s: отставание %.1f > %.1f, темп лидера %.2f",
			c.ID, lag, c.cfg.SpacingTolerance, c.throttle)
	case c.throttle < 1.0:
		c.throttle += c.cfg.ThrottleStep
		if c.throttle > 1.0 {
			c.throttle = 1.0
		}
		c.paceGauge.Set(c.throttle)
	}
}

// maxLag возвращает наибольшее отклонение ведомого от его слота
func (c *Controller) maxLag() float64 {
	if c.leader == nil {
		return 0
	}
	anchor := c.leader.Agent.Pos
	facing := vec.FacingBetween(c.leader.Agent.Cell(), c.goal)

	worst := 0.0
	for _, m := range c.members {
		if m == c.leader || m.Lost {
			continue
		}
		slot := WorldSlot(anchor, facing, c.formation, m.Slot, c.cfg.SpacingTolerance)
		if d := m.Agent.Pos.DistanceTo(slot.ToVec3f()); d > worst {
			worst = d
		}
	}
	return worst
}

// allIdle возвращает true, когда все действующие участники прошли
// свои маршруты
func (c *Controller) allIdle() bool {
	for _, m := range c.members {
		if m.Lost {
			continue
		}
		if m.Agent.StateName() != "idle" {
			return false
		}
	}
	return true
}

// PaceScale возвращает текущий множитель темпа лидера для хоста
func (c *Controller) PaceScale() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.throttle
}

// beginRegroup переводит миссию в сбор у точки регруппировки
func (c *Controller) beginRegroup(point vec.Vec3) {
	if c.status == StatusRegrouping || c.status == StatusAborted {
		return
	}
	c.regroupPoint = &point
	c.setStatus(StatusRegrouping)
	c.regroups.Inc()
	c.log.Warn("Миссия %s: регруппировка в %v", c.ID, point)

	c.publish(eventbus.NewEnvelope("mission", eventbus.TypeRegroupEvent, c.ID, 8,
		map[string]interface{}{"mission_id": c.ID, "point": point}))

	for _, m := range c.members {
		if m.Lost {
			continue
		}
		path, err := c.routes.Plan(c.ctx, m.Agent.Cell(), point, m.Agent.Caps)
		if err != nil {
			c.log.Warn("Миссия %s: участник %s не может дойти до точки сбора: %v",
				c.ID, m.Agent.ID, err)
			continue
		}
		m.Agent.StartMission(path)
	}
}

// checkRegroup проверяет кворум в точке сбора и возобновляет движение
func (c *Controller) checkRegroup(ctx context.Context) {
	if c.regroupPoint == nil {
		return
	}

	arrived := 0
	active := 0
	for _, m := range c.members {
		if m.Lost {
			continue
		}
		active++
		if m.Agent.Pos.DistanceTo(c.regroupPoint.ToVec3f()) <= c.cfg.SpacingTolerance {
			arrived++
		}
	}

	quorum := c.cfg.RegroupQuorum
	if quorum <= 0 || quorum > active {
		quorum = active // 0 — ждём всех действующих
	}
	if arrived < quorum {
		return
	}

	c.log.Info("Миссия %s: кворум собран (%d/%d), движение возобновляется", c.ID, arrived, active)
	c.regroupPoint = nil

	// Возобновление: лидер к цели, ведомые к слотам
	facing := vec.FacingBetween(c.leader.Agent.Cell(), c.goal)
	for _, m := range c.members {
		if m.Lost {
			continue
		}
		dest := c.goal
		if m != c.leader {
			dest = WorldSlot(c.goal.ToVec3f(), facing, c.formation, m.Slot, c.cfg.SpacingTolerance)
		}
		path, err := c.routes.Plan(ctx, m.Agent.Cell(), dest, m.Agent.Caps)
		if err != nil {
			c.log.Warn("Миссия %s: возобновление для %s не удалось: %v", c.ID, m.Agent.ID, err)
			continue
		}
		m.Agent.StartMission(path)
	}
	c.setStatus(StatusEnRoute)
}

// Abort прерывает миссию. Переход односторонний: подтверждения не
// требуется, все агенты останавливаются, событие уходит с приоритетом 9.
func (c *Controller) Abort(reason *naverr.Reason) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.abortLocked(reason)
}

func (c *Controller) abortLocked(reason *naverr.Reason) {
	if c.status == StatusAborted {
		return
	}
	c.reason = reason
	c.setStatus(StatusAborted)
	c.aborts.Inc()
	c.cancel() // Отменяет движение и планирование в полёте

	for _, m := range c.members {
		m.Agent.Abort(reason)
	}

	if c.bus != nil {
		_ = eventbus.PublishAbort(context.Background(), c.bus, "mission", c.ID, reason)
	}
	c.log.Error("Миссия %s прервана: %s", c.ID, reason)
}

// setStatus меняет статус и публикует MissionEvent
func (c *Controller) setStatus(next Status) {
	if c.status == next {
		return
	}
	c.status = next
	c.publish(eventbus.NewEnvelope("mission", eventbus.TypeMissionEvent, c.ID, 5,
		map[string]interface{}{"mission_id": c.ID, "status": next.String()}))
}

// === agent.NavAPI: колбэки исполняются изнутри Tick ===

// Plan строит маршрут для агента
func (c *Controller) Plan(origin, dest vec.Vec3, caps terrain.CapabilitySet) (*planner.Path, error) {
	return c.routes.Plan(c.ctx, origin, dest, caps)
}

// ReportTraversal передаёт итог обхода в память маршрутов
func (c *Controller) ReportTraversal(pathID string, success bool) {
	if c.memory != nil {
		c.memory.ReportTraversal(pathID, success)
	}
}

// Invalidate выводит маршрут из памяти после провала обхода
func (c *Controller) Invalidate(pathID string, failingWaypoint int) {
	if c.memory != nil {
		c.memory.Invalidate(pathID, failingWaypoint)
	}
}

// Assist транслирует запрос помощи застрявшего агента
func (c *Controller) Assist(agentID string, pos vec.Vec3) {
	c.log.Warn("Миссия %s: агент %s запросил помощь в %v", c.ID, agentID, pos)
	c.publish(eventbus.NewEnvelope("mission", eventbus.TypeAssistEvent, c.ID, 7,
		map[string]interface{}{"mission_id": c.ID, "agent_id": agentID, "pos": pos}))
}

// Escalated обрабатывает исчерпание восстановления участника.
// Эскалация лидера прерывает миссию; эскалация ведомого выводит его из
// строя и собирает остальных у лидера.
func (c *Controller) Escalated(agentID string, reason *naverr.Reason) {
	c.publish(eventbus.NewEnvelope("mission", eventbus.TypeEscalatedEvent, c.ID, 8, reason))

	if c.leader != nil && c.leader.Agent.ID == agentID {
		c.abortLocked(reason)
		return
	}
	for _, m := range c.members {
		if m.Agent.ID == agentID {
			m.Lost = true
			break
		}
	}
	if c.leader != nil {
		c.beginRegroup(c.leader.Agent.Cell())
	}
}

// ReportStuck — внешний колбэк о застревании участника (для хостов,
// детектирующих застревание своими средствами); публикует StuckEvent
func (c *Controller) ReportStuck(agentID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.log.Warn("Миссия %s: внешний сигнал о застревании агента %s", c.ID, agentID)
	c.publish(eventbus.NewEnvelope("mission", eventbus.TypeStuckEvent, c.ID, 6,
		map[string]interface{}{"mission_id": c.ID, "agent_id": agentID}))
}

// MemberStatus — состояние участника в сводке миссии
type MemberStatus struct {
	AgentID string    `json:"agent_id"`
	Role    string    `json:"role"`
	State   string    `json:"state"`
	Pos     vec.Vec3f `json:"pos"`
	Lost    bool      `json:"lost,omitempty"`
}

// Snapshot — сводка состояния миссии
type Snapshot struct {
	ID           string         `json:"id"`
	Status       string         `json:"status"`
	Goal         vec.Vec3       `json:"goal"`
	Formation    string         `json:"formation"`
	PaceScale    float64        `json:"pace_scale"`
	RegroupPoint *vec.Vec3      `json:"regroup_point,omitempty"`
	Reason       *naverr.Reason `json:"reason,omitempty"`
	Members      []MemberStatus `json:"members"`
}

// Status возвращает сводку состояния миссии
func (c *Controller) Status() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap := Snapshot{
		ID:           c.ID,
		Status:       c.status.String(),
		Goal:         c.goal,
		Formation:    c.formation.String(),
		PaceScale:    c.throttle,
		RegroupPoint: c.regroupPoint,
		Reason:       c.reason,
	}
	for _, m := range c.members {
		snap.Members = append(snap.Members, MemberStatus{
			AgentID: m.Agent.ID,
			Role:    m.Role.String(),
			State:   m.Agent.StateName(),
			Pos:     m.Agent.Pos,
			Lost:    m.Lost,
		})
	}
	return snap
}
