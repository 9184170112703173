package planner

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"

	"github.com/annel0/nav-core/internal/config"
	"github.com/annel0/nav-core/internal/hazard"
	"github.com/annel0/nav-core/internal/logging"
	"github.com/annel0/nav-core/internal/naverr"
	"github.com/annel0/nav-core/internal/terrain"
	"github.com/annel0/nav-core/internal/vec"
)

// Planner строит маршруты между ячейками мира: консультирует общую
// память маршрутов, фильтрует кандидатов против опасностей и при
// необходимости запускает поиск с итеративным ужесточением клиренса.
type Planner struct {
	cfg     config.PlannerConfig
	world   WorldQuery
	hazards *hazard.Engine
	memory  Memory
	log     *logging.Logger

	nodesExplored prometheus.Counter
	timeouts      prometheus.Counter
	cacheHits     prometheus.Counter
	cacheMisses   prometheus.Counter
	planSeconds   prometheus.Histogram
}

// New создаёт планировщик. memory может быть nil — тогда каждый запрос
// идёт через полный поиск.
func New(cfg config.PlannerConfig, world WorldQuery, hazards *hazard.Engine, memory Memory) *Planner {
	p := &Planner{
		cfg:     cfg,
		world:   world,
		hazards: hazards,
		memory:  memory,
		log:     logging.GetLoggerManager().MustGetLogger("planner"),
		nodesExplored: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "planner",
			Name:      "nodes_explored_total",
			Help:      "Узлы, раскрытые поиском маршрута.",
		}),
		timeouts: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "planner",
			Name:      "search_timeouts_total",
			Help:      "Поиски, прерванные по бюджету узлов или дедлайну.",
		}),
		cacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "planner",
			Name:      "memory_hits_total",
			Help:      "Запросы, закрытые маршрутом из общей памяти.",
		}),
		cacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "planner",
			Name:      "memory_misses_total",
			Help:      "Запросы, потребовавшие полного поиска.",
		}),
		planSeconds: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "planner",
			Name:      "plan_duration_seconds",
			Help:      "Длительность построения маршрута.",
			Buckets:   prometheus.ExponentialBuckets(0.0005, 4, 8),
		}),
	}
	_ = prometheus.Register(p.nodesExplored)
	_ = prometheus.Register(p.timeouts)
	_ = prometheus.Register(p.cacheHits)
	_ = prometheus.Register(p.cacheMisses)
	_ = prometheus.Register(p.planSeconds)
	return p
}

// Plan строит маршрут от origin к dest для агента с возможностями caps.
// Сначала консультируется общая память: свежий кандидат с совместимым
// хэшем возможностей перепроверяется против текущих опасностей и при
// успехе возвращается без поиска. Иначе выполняется A* с итеративной
// перепрокладкой при пересечении летальных объёмов.
func (p *Planner) Plan(ctx context.Context, origin, dest vec.Vec3, caps terrain.CapabilitySet) (*Path, error) {
	started := time.Now()
	defer func() { p.planSeconds.Observe(time.Since(started).Seconds()) }()

	if origin.Equals(dest) {
		return p.trivialPath(origin, caps), nil
	}
	if origin.DistanceTo(dest) > float64(p.cfg.MaxRange) {
		return nil, fmt.Errorf("цель вне радиуса планирования (%d): %w", p.cfg.MaxRange, naverr.ErrNoPathFound)
	}

	pair := vec.PairOf(origin, dest)

	if cached := p.consultMemory(pair, origin, dest, caps); cached != nil {
		p.cacheHits.Inc()
		p.log.Debug("Маршрут %s взят из памяти (пара %s, уверенность %.2f)",
			cached.ID, pair, cached.Confidence)
		return cached, nil
	}
	p.cacheMisses.Inc()

	ctx, cancel := context.WithTimeout(ctx, p.cfg.SearchTimeout)
	defer cancel()

	clearance := 0
	for attempt := 0; attempt <= p.cfg.RerouteAttempts; attempt++ {
		goal := p.search(ctx, searchParams{
			origin:    origin,
			dest:      dest,
			caps:      caps,
			clearance: clearance,
		})
		if goal == nil {
			return nil, fmt.Errorf("поиск %s исчерпал бюджет (попытка %d, клиренс %d): %w",
				pair, attempt, clearance, naverr.ErrNoPathFound)
		}

		path := p.assemble(goal, pair, origin, dest, caps)
		verdict := p.hazards.Filter(path.Centerline(), path.SegmentSeconds(), caps.AllowAdvisory)
		switch verdict.Decision {
		case hazard.DecisionAccept:
			if p.memory != nil {
				p.memory.Record(path)
			}
			p.log.Info("Маршрут %s построен: %d точек, оценка %.1f сек, режимы %v",
				path.ID, len(path.Waypoints), path.TimeEstimate.Seconds(), path.ModeSeq)
			return path, nil
		case hazard.DecisionReroute:
			if verdict.MinClearance > clearance {
				clearance = verdict.MinClearance
			} else {
				clearance++
			}
			p.log.Warn("Маршрут отклонён (%s), перепрокладка с клиренсом %d", verdict.Reason, clearance)
		case hazard.DecisionReject:
			return nil, fmt.Errorf("%s: %w", verdict.Reason, naverr.ErrHazardCritical)
		}
	}

	return nil, fmt.Errorf("перепрокладка %s исчерпала %d попыток: %w",
		pair, p.cfg.RerouteAttempts, naverr.ErrHazardCritical)
}

// nearMissRadius — допуск на несовпадение концов кандидата с запросом.
// Кандидат из соседней ячейки пригоден: до его начала и от его конца
// достраиваются короткие подводящие отрезки.
const nearMissRadius = 2.0

// consultMemory ищет пригодный кандидат в общей памяти и перепроверяет
// его против текущих опасностей. Непрошедший проверку кандидат
// инвалидируется, чтобы не предлагался повторно.
func (p *Planner) consultMemory(pair vec.RegionPair, origin, dest vec.Vec3, caps terrain.CapabilitySet) *Path {
	if p.memory == nil {
		return nil
	}
	for _, cand := range p.memory.Lookup(pair, caps) {
		if cand.Status == StatusDeprecated {
			continue
		}
		if cand.Origin.DistanceTo(origin) > nearMissRadius || cand.Dest.DistanceTo(dest) > nearMissRadius {
			continue
		}
		fitted := p.spliceEnds(cand, origin, dest)
		verdict := p.hazards.Filter(fitted.Centerline(), fitted.SegmentSeconds(), caps.AllowAdvisory)
		if verdict.Decision == hazard.DecisionAccept {
			p.memory.Revalidate(cand.ID)
			return fitted
		}
		p.log.Debug("Кандидат %s из памяти не прошёл перепроверку: %s", cand.ID, verdict.Reason)
		p.memory.Invalidate(cand.ID, -1)
	}
	return nil
}

// spliceEnds достраивает кандидату подводящие отрезки, когда его концы
// не совпадают с запросом точь-в-точь. Идентификатор сохраняется:
// статистика обходов копится на исходном маршруте.
func (p *Planner) spliceEnds(cand *Path, origin, dest vec.Vec3) *Path {
	sameOrigin := cand.Origin.Equals(origin)
	sameDest := cand.Dest.Equals(dest)
	if sameOrigin && sameDest {
		return cand
	}

	fitted := *cand
	fitted.Origin = origin
	fitted.Dest = dest

	extra := 0.0
	fitted.Waypoints = make([]Waypoint, 0, len(cand.Waypoints)+2)
	if !sameOrigin {
		fitted.Waypoints = append(fitted.Waypoints, Waypoint{
			Pos:    origin,
			Mode:   terrain.ModeWalk,
			Facing: vec.FacingBetween(origin, cand.Origin),
			Factor: 1.0,
		})
		extra += origin.DistanceTo(cand.Origin)
	}
	fitted.Waypoints = append(fitted.Waypoints, cand.Waypoints...)
	if !sameDest {
		fitted.Waypoints = append(fitted.Waypoints, Waypoint{
			Pos:    dest,
			Mode:   terrain.ModeWalk,
			Facing: vec.FacingBetween(cand.Dest, dest),
			Factor: 1.0,
		})
		extra += cand.Dest.DistanceTo(dest)
	}

	modes := make([]terrain.Mode, 0, len(cand.ModeSeq)+2)
	if !sameOrigin && (len(cand.ModeSeq) == 0 || cand.ModeSeq[0] != terrain.ModeWalk) {
		modes = append(modes, terrain.ModeWalk)
	}
	modes = append(modes, cand.ModeSeq...)
	if !sameDest && (len(modes) == 0 || modes[len(modes)-1] != terrain.ModeWalk) {
		modes = append(modes, terrain.ModeWalk)
	}
	fitted.ModeSeq = modes

	fitted.TimeEstimate += time.Duration(extra / terrain.BaseSpeed(terrain.ModeWalk) * float64(time.Second))
	return &fitted
}

// trivialPath строит маршрут нулевой длины для совпадающих начала и цели
func (p *Planner) trivialPath(pos vec.Vec3, caps terrain.CapabilitySet) *Path {
	now := time.Now()
	return &Path{
		ID:              uuid.NewString(),
		From:            vec.RegionOf(pos),
		To:              vec.RegionOf(pos),
		Origin:          pos,
		Dest:            pos,
		Waypoints:       []Waypoint{{Pos: pos, Mode: terrain.ModeWalk, Factor: 1.0}},
		ModeSeq:         []terrain.Mode{terrain.ModeWalk},
		Confidence:      1.0,
		CapsHash:        caps.Hash(),
		CreatedAt:       now,
		LastValidatedAt: now,
		Status:          StatusFresh,
	}
}

// assemble разворачивает цепочку узлов цель→начало в готовый маршрут:
// точки с ориентацией и режимом, последовательность режимов, оценка
// времени, затем сглаживание коллинеарных отрезков.
func (p *Planner) assemble(goal *node, pair vec.RegionPair, origin, dest vec.Vec3, caps terrain.CapabilitySet) *Path {
	var chain []*node
	for n := goal; n != nil; n = n.parent {
		chain = append(chain, n)
	}
	// Разворот: chain собран от цели к началу
	for i, j := 0, len(chain)-1; i < j; i, j = i+1, j-1 {
		chain[i], chain[j] = chain[j], chain[i]
	}

	waypoints := make([]Waypoint, 0, len(chain))
	modeSeq := make([]terrain.Mode, 0, 4)
	for i, n := range chain {
		wp := Waypoint{
			Pos:      n.pos,
			Mode:     n.mode,
			EdgeKind: n.kind,
			Factor:   n.factor,
		}
		if i+1 < len(chain) {
			wp.Facing = vec.FacingBetween(n.pos, chain[i+1].pos)
		} else if i > 0 {
			wp.Facing = vec.FacingBetween(chain[i-1].pos, n.pos)
		}
		for _, rec := range p.hazards.Index().Near(n.pos, 0) {
			if rec.Severity == hazard.SeverityDangerous || rec.Severity == hazard.SeverityAdvisory {
				if rec.Location.DistanceTo(n.pos) <= float64(rec.Radius) {
					wp.HazardRefs = append(wp.HazardRefs, rec.ID)
				}
			}
		}
		waypoints = append(waypoints, wp)

		if len(modeSeq) == 0 || modeSeq[len(modeSeq)-1] != n.mode {
			modeSeq = append(modeSeq, n.mode)
		}
	}

	if p.cfg.SmoothPaths {
		waypoints = smooth(waypoints)
	}

	now := time.Now()
	return &Path{
		ID:              uuid.NewString(),
		From:            pair.From,
		To:              pair.To,
		Origin:          origin,
		Dest:            dest,
		Waypoints:       waypoints,
		ModeSeq:         modeSeq,
		TimeEstimate:    time.Duration(goal.travel * float64(time.Second)),
		Confidence:      initialConfidence,
		CapsHash:        caps.Hash(),
		CreatedAt:       now,
		LastValidatedAt: now,
		Status:          StatusFresh,
	}
}

// initialConfidence — уверенность только что построенного маршрута
const initialConfidence = 0.6
