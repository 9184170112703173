package planner

import (
	"container/heap"
	"context"
	"math"

	"github.com/annel0/nav-core/internal/terrain"
	"github.com/annel0/nav-core/internal/vec"
)

// Политики рёбер. Пороговые значения провалов — жёсткое проектное
// решение, а не настройка: прыжок через >= 3 ячейки эмпирически
// ненадёжен и никогда не моделируется.
const (
	// jumpSuccessWeight — вероятностный вес успеха прыжка через провал
	// ровно в 2 ячейки; стоимость ребра делится на него.
	jumpSuccessWeight = 0.85

	// bridgeSecondsPerCell — время постройки одной ячейки моста
	bridgeSecondsPerCell = 2.5

	// ascentSecondsPerCell — время возведения одной ячейки подъёма
	// (лестница/леса/столб) при перепаде >= 3
	ascentSecondsPerCell = 1.8

	// maxGapScan — предел сканирования ширины провала/водной преграды
	maxGapScan = 24

	// maxAscent — предел высоты выделенного подъёма
	maxAscent = 8
)

// edgeSeconds возвращает время прохождения дистанции с учётом
// физического потолка: множитель местности разгоняет агента, но не
// выше предельной скорости среди всех режимов. На этом ограничении
// держится инвариант оценки времени маршрута.
func edgeSeconds(dist, speed float64) float64 {
	if ceiling := terrain.MaxModeSpeed(); speed > ceiling {
		speed = ceiling
	}
	return dist / speed
}

// edge — ребро графа поиска
type edge struct {
	to       vec.Vec3
	mode     terrain.Mode
	kind     EdgeKind
	seconds  float64 // Чистое время прохождения (без штрафов)
	penalty  float64 // Штраф dangerous-экспозиции
	risk     float64 // Риск местности (скользкие ячейки и т.п.)
	factor   float64
}

// node — узел открытого/закрытого множества
type node struct {
	pos         vec.Vec3
	gSeconds    float64 // Накопленное время с учётом штрафов (приоритет)
	travel      float64 // Чистое накопленное время (для TimeEstimate)
	hSeconds    float64
	exposure    float64 // Суммарный штраф опасностей (tie-break 1)
	transitions int     // Число смен режима (tie-break 2)
	mode        terrain.Mode
	kind        EdgeKind
	factor      float64
	parent      *node
	seq         int // Порядок вставки — стабильность и детерминизм
	index       int // Индекс в куче
}

func (n *node) f() float64 { return n.gSeconds + n.hSeconds }

// less сравнивает узлы: f-стоимость, затем экспозиция опасностей,
// затем число смен режима, затем чистое время, затем порядок вставки.
func less(a, b *node) bool {
	if a.f() != b.f() {
		return a.f() < b.f()
	}
	if a.exposure != b.exposure {
		return a.exposure < b.exposure
	}
	if a.transitions != b.transitions {
		return a.transitions < b.transitions
	}
	if a.travel != b.travel {
		return a.travel < b.travel
	}
	return a.seq < b.seq
}

// openHeap — очередь с приоритетом для открытого множества
type openHeap []*node

func (h openHeap) Len() int            { return len(h) }
func (h openHeap) Less(i, j int) bool  { return less(h[i], h[j]) }
func (h openHeap) Swap(i, j int)       { h[i], h[j] = h[j], h[i]; h[i].index = i; h[j].index = j }
func (h *openHeap) Push(x interface{}) { n := x.(*node); n.index = len(*h); *h = append(*h, n) }
func (h *openHeap) Pop() interface{} {
	old := *h
	n := old[len(old)-1]
	old[len(old)-1] = nil
	*h = old[:len(old)-1]
	return n
}

// searchParams — параметры одной итерации поиска
type searchParams struct {
	origin    vec.Vec3
	dest      vec.Vec3
	caps      terrain.CapabilitySet
	clearance int // Дополнительный клиренс летальных опасностей (от reroute)
}

// search выполняет одну итерацию A*. Возвращает цепочку узлов от цели
// к началу, либо nil, если маршрут не найден в рамках бюджета.
func (p *Planner) search(ctx context.Context, sp searchParams) *node {
	open := &openHeap{}
	heap.Init(open)
	best := make(map[vec.Vec3]float64)
	closed := make(map[vec.Vec3]struct{})

	seq := 0
	start := &node{
		pos:      sp.origin,
		hSeconds: p.heuristic(sp.origin, sp.dest, sp.caps),
		mode:     terrain.ModeWalk,
		factor:   1.0,
		seq:      seq,
	}
	heap.Push(open, start)
	best[sp.origin] = 0

	explored := 0
	for open.Len() > 0 {
		// Дедлайн проверяем периодически, чтобы не дёргать ctx на каждом узле
		if explored%64 == 0 {
			select {
			case <-ctx.Done():
				p.timeouts.Inc()
				return nil
			default:
			}
		}
		if explored >= p.cfg.MaxNodes {
			p.timeouts.Inc()
			return nil
		}

		current := heap.Pop(open).(*node)
		if _, done := closed[current.pos]; done {
			continue
		}
		closed[current.pos] = struct{}{}
		explored++
		p.nodesExplored.Inc()

		if current.pos.Equals(sp.dest) {
			return current
		}

		for _, e := range p.expand(current.pos, sp) {
			if _, done := closed[e.to]; done {
				continue
			}

			g := current.gSeconds + e.seconds + e.penalty
			if prev, ok := best[e.to]; ok && g >= prev {
				continue
			}
			best[e.to] = g

			seq++
			transitions := current.transitions
			if e.mode != current.mode {
				transitions++
			}
			heap.Push(open, &node{
				pos:         e.to,
				gSeconds:    g,
				travel:      current.travel + e.seconds,
				hSeconds:    p.heuristic(e.to, sp.dest, sp.caps),
				exposure:    current.exposure + e.penalty + e.risk,
				transitions: transitions,
				mode:        e.mode,
				kind:        e.kind,
				factor:      e.factor,
				parent:      current,
				seq:         seq,
			})
		}
	}

	return nil
}

// heuristic — допустимая эвристика: прямая дистанция на максимальной
// разрешённой скорости. Никогда не переоценивает остаток пути.
func (p *Planner) heuristic(from, to vec.Vec3, caps terrain.CapabilitySet) float64 {
	maxSpeed := caps.MaxSpeed()
	if maxSpeed <= 0 {
		return math.Inf(1)
	}
	return from.DistanceTo(to) / maxSpeed
}

// standableAt возвращает классификацию ячейки и признак того, что на
// ней можно стоять: твёрдая или лазаемая поверхность со свободной
// ячейкой над ней. Проверка головного пространства отсекает внутренние
// ячейки рельефа — сквозь стену или холм ребро не строится.
func (p *Planner) standableAt(pos vec.Vec3) (terrain.Sample, bool) {
	s := p.world.Sample(pos)
	if s.Surface != terrain.SurfaceSolid && s.Surface != terrain.SurfaceClimbable {
		return s, false
	}
	above := p.world.Sample(vec.Vec3{X: pos.X, Y: pos.Y + 1, Z: pos.Z})
	if above.Surface == terrain.SurfaceSolid {
		return s, false
	}
	return s, true
}

// bestGroundMode выбирает самый быстрый разрешённый наземный режим
func bestGroundMode(caps terrain.CapabilitySet) terrain.Mode {
	switch {
	case caps.Allows(terrain.ModeRide):
		return terrain.ModeRide
	case caps.Allows(terrain.ModeSprint):
		return terrain.ModeSprint
	default:
		return terrain.ModeWalk
	}
}

var cardinals = [4]vec.Vec3{{X: 1}, {X: -1}, {Z: 1}, {Z: -1}}
var diagonals = [4]vec.Vec3{{X: 1, Z: 1}, {X: 1, Z: -1}, {X: -1, Z: 1}, {X: -1, Z: -1}}

// expand порождает рёбра из ячейки согласно политикам §4.2.
// Порядок направлений фиксирован — поиск детерминирован.
func (p *Planner) expand(from vec.Vec3, sp searchParams) []edge {
	edges := make([]edge, 0, 12)

	for _, d := range cardinals {
		edges = p.expandCardinal(edges, from, d, sp)
	}

	// Диагонали: только простой шаг по той же высоте
	for _, d := range diagonals {
		target := from.Add(d)
		if e, ok := p.groundEdge(from, target, math.Sqrt2, sp); ok {
			edges = append(edges, e)
		}
	}

	// Вертикальный колодец: лазание по climbable-столбу
	if sp.caps.Allows(terrain.ModeClimb) {
		for _, dy := range [2]int{1, -1} {
			target := vec.Vec3{X: from.X, Y: from.Y + dy, Z: from.Z}
			s := p.world.Sample(target)
			if s.Surface == terrain.SurfaceClimbable && !p.blocked(target, sp.clearance) {
				speed, risk, err := terrain.Cost(s, terrain.ModeClimb)
				if err == nil {
					seconds := edgeSeconds(1.0, speed)
					edges = append(edges, edge{
						to: target, mode: terrain.ModeClimb, kind: EdgeClimb,
						seconds: seconds, penalty: p.hazards.Penalty(target, seconds),
						risk: risk, factor: s.Factor(terrain.ModeClimb),
					})
				}
			}
		}
	}

	return edges
}

// expandCardinal порождает рёбра в одном кардинальном направлении:
// шаг, подъём, спуск, преодоление провала или водной преграды.
func (p *Planner) expandCardinal(edges []edge, from, d vec.Vec3, sp searchParams) []edge {
	target := from.Add(d)
	s, ok := p.standableAt(target)

	switch {
	case ok:
		if e, ok := p.groundEdge(from, target, 1.0, sp); ok {
			edges = append(edges, e)
		}

	case s.Surface == terrain.SurfaceLiquid:
		edges = p.liquidEdges(edges, from, d, sp)

	case s.Surface == terrain.SurfaceVoid:
		edges = p.gapEdges(edges, from, d, sp)
	}

	// Подъём на 1-2 ячейки: шаг/лазание на соседнюю возвышенность
	for rise := 1; rise <= 2; rise++ {
		up := vec.Vec3{X: target.X, Y: target.Y + rise, Z: target.Z}
		su, canStand := p.standableAt(up)
		if !canStand || p.blocked(up, sp.clearance) {
			continue
		}
		canRise := rise == 1 || sp.caps.Allows(terrain.ModeClimb) || sp.caps.CanScaffold
		if !canRise {
			continue
		}
		mode := bestGroundMode(sp.caps)
		if rise == 2 && sp.caps.Allows(terrain.ModeClimb) {
			mode = terrain.ModeClimb
		}
		speed, risk, err := terrain.Cost(su, mode)
		if err != nil {
			continue
		}
		dist := math.Sqrt(1 + float64(rise*rise))
		seconds := edgeSeconds(dist, speed)
		edges = append(edges, edge{
			to: up, mode: mode, kind: EdgeClimb,
			seconds: seconds, penalty: p.hazards.Penalty(up, seconds),
			risk: risk, factor: su.Factor(mode),
		})
		break // Берём наименьший достаточный подъём
	}

	// Выделенный подъём >= 3 ячеек (лестница/леса) — собственная модель стоимости
	if sp.caps.CanScaffold {
		for rise := 3; rise <= maxAscent; rise++ {
			up := vec.Vec3{X: target.X, Y: target.Y + rise, Z: target.Z}
			su, canStand := p.standableAt(up)
			if !canStand || p.blocked(up, sp.clearance) {
				continue
			}
			seconds := float64(rise) * ascentSecondsPerCell
			edges = append(edges, edge{
				to: up, mode: terrain.ModeClimb, kind: EdgeAscent,
				seconds: seconds, penalty: p.hazards.Penalty(up, seconds),
				factor: su.Factor(terrain.ModeClimb),
			})
			break
		}
	}

	// Спуск в пределах безопасной высоты падения
	for drop := 1; drop <= sp.caps.MaxFall; drop++ {
		down := vec.Vec3{X: target.X, Y: target.Y - drop, Z: target.Z}
		sd, canStand := p.standableAt(down)
		if !canStand {
			continue
		}
		if p.blocked(down, sp.clearance) {
			break
		}
		mode := bestGroundMode(sp.caps)
		speed, risk, err := terrain.Cost(sd, mode)
		if err != nil {
			break
		}
		dist := math.Sqrt(1 + float64(drop*drop))
		seconds := edgeSeconds(dist, speed)
		edges = append(edges, edge{
			to: down, mode: mode, kind: EdgeDescend,
			seconds: seconds, penalty: p.hazards.Penalty(down, seconds),
			risk: risk, factor: sd.Factor(mode),
		})
		break
	}

	return edges
}

// groundEdge строит обычное наземное ребро, если ячейка проходима
func (p *Planner) groundEdge(from, target vec.Vec3, dist float64, sp searchParams) (edge, bool) {
	if p.blocked(target, sp.clearance) {
		return edge{}, false
	}
	s, ok := p.standableAt(target)
	if !ok {
		return edge{}, false
	}
	mode := bestGroundMode(sp.caps)
	speed, risk, err := terrain.Cost(s, mode)
	if err != nil || speed <= 0 {
		return edge{}, false
	}
	seconds := edgeSeconds(dist, speed)
	return edge{
		to: target, mode: mode, kind: EdgeWalk,
		seconds: seconds, penalty: p.hazards.Penalty(target, seconds),
		risk: risk, factor: s.Factor(mode),
	}, true
}

// gapEdges обрабатывает провал по направлению d.
// Ширина 1 — перешагивается; ровно 2 — прыжок с фиксированным весом
// успеха; >= 3 — никогда не прыжок: только мост или обход.
func (p *Planner) gapEdges(edges []edge, from, d vec.Vec3, sp searchParams) []edge {
	width := 0
	landing := vec.Vec3{}
	found := false

	for i := 1; i <= maxGapScan; i++ {
		cell := from.Add(vec.Vec3{X: d.X * i, Y: 0, Z: d.Z * i})
		s, ok := p.standableAt(cell)
		if ok {
			landing = cell
			found = true
			break
		}
		if s.Surface != terrain.SurfaceVoid {
			return edges // Не провал — преграду обрабатывают другие ветки
		}
		width++
	}
	if !found || width == 0 {
		return edges
	}
	if p.blocked(landing, sp.clearance) {
		return edges
	}

	mode := bestGroundMode(sp.caps)
	ls := p.world.Sample(landing)
	speed, risk, err := terrain.Cost(ls, mode)
	if err != nil || speed <= 0 {
		return edges
	}
	dist := from.DistanceTo(landing)

	switch {
	case width == 1:
		// Провал в 1 ячейку перешагивается
		seconds := edgeSeconds(dist, speed)
		edges = append(edges, edge{
			to: landing, mode: mode, kind: EdgeWalk,
			seconds: seconds, penalty: p.hazards.Penalty(landing, seconds),
			risk: risk, factor: ls.Factor(mode),
		})

	case width == 2:
		// Прыжок с разбега: стоимость инфлируется весом успеха
		seconds := edgeSeconds(dist, speed) / jumpSuccessWeight
		edges = append(edges, edge{
			to: landing, mode: mode, kind: EdgeJump,
			seconds: seconds, penalty: p.hazards.Penalty(landing, seconds),
			risk: risk + (1 - jumpSuccessWeight), factor: ls.Factor(mode),
		})

	default:
		// width >= 3: прыжок не моделируется. Мост, если агент умеет.
		if sp.caps.CanBridge {
			seconds := float64(width)*bridgeSecondsPerCell + edgeSeconds(dist, speed)
			edges = append(edges, edge{
				to: landing, mode: mode, kind: EdgeBridge,
				seconds: seconds, penalty: p.hazards.Penalty(landing, seconds),
				risk: risk, factor: ls.Factor(mode),
			})
		}
	}

	return edges
}

// liquidEdges обрабатывает водную преграду: узкая — плавание,
// широкая — мост/переправа (отражает разрыв скоростей).
func (p *Planner) liquidEdges(edges []edge, from, d vec.Vec3, sp searchParams) []edge {
	width := 0
	farShore := vec.Vec3{}
	foundShore := false

	for i := 1; i <= maxGapScan; i++ {
		cell := from.Add(vec.Vec3{X: d.X * i, Y: 0, Z: d.Z * i})
		s, ok := p.standableAt(cell)
		if s.Surface == terrain.SurfaceLiquid {
			width++
			continue
		}
		if ok {
			farShore = cell
			foundShore = true
		}
		break
	}
	if width == 0 {
		return edges
	}

	canSwim := sp.caps.Allows(terrain.ModeSwimSurface)
	if canSwim && width <= p.cfg.SwimThreshold {
		// Узкая преграда: шаг в воду, дальше гребём по ячейкам
		target := from.Add(d)
		if !p.blocked(target, sp.clearance) {
			s := p.world.Sample(target)
			speed, risk, err := terrain.Cost(s, terrain.ModeSwimSurface)
			if err == nil && speed > 0 {
				seconds := edgeSeconds(1.0, speed)
				edges = append(edges, edge{
					to: target, mode: terrain.ModeSwimSurface, kind: EdgeSwim,
					seconds: seconds, penalty: p.hazards.Penalty(target, seconds),
					risk: risk, factor: s.Factor(terrain.ModeSwimSurface),
				})
			}
		}
	}

	if foundShore && sp.caps.CanBridge && width > p.cfg.SwimThreshold {
		// Широкая преграда: мост/переправа вместо долгого заплыва
		if !p.blocked(farShore, sp.clearance) {
			mode := bestGroundMode(sp.caps)
			ls := p.world.Sample(farShore)
			speed, risk, err := terrain.Cost(ls, mode)
			if err == nil && speed > 0 {
				seconds := float64(width)*bridgeSecondsPerCell + edgeSeconds(from.DistanceTo(farShore), speed)
				edges = append(edges, edge{
					to: farShore, mode: mode, kind: EdgeBridge,
					seconds: seconds, penalty: p.hazards.Penalty(farShore, seconds),
					risk: risk, factor: ls.Factor(mode),
				})
			}
		}
	}

	return edges
}

// blocked проверяет, накрыта ли ячейка запретным объёмом летальной
// опасности с учётом дополнительного клиренса итерации перепрокладки.
func (p *Planner) blocked(pos vec.Vec3, extraClearance int) bool {
	return p.hazards.BlockedAt(pos, extraClearance)
}
