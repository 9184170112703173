package planner

import (
	"context"
	"errors"
	"testing"

	"github.com/annel0/nav-core/internal/config"
	"github.com/annel0/nav-core/internal/hazard"
	"github.com/annel0/nav-core/internal/naverr"
	"github.com/annel0/nav-core/internal/terrain"
	"github.com/annel0/nav-core/internal/vec"
	"github.com/annel0/nav-core/internal/worldgen"
)

func newTestPlanner(world WorldQuery, mem Memory) (*Planner, *hazard.Index) {
	idx := hazard.NewIndex()
	engine := hazard.NewEngine(idx)
	return New(config.Default().Planner, world, engine, mem), idx
}

func TestPlanFlatGround(t *testing.T) {
	world := worldgen.NewGridWorld(0)
	p, _ := newTestPlanner(world, nil)

	origin := vec.Vec3{X: 0, Y: 0, Z: 0}
	dest := vec.Vec3{X: 12, Y: 0, Z: 0}
	path, err := p.Plan(context.Background(), origin, dest, terrain.DefaultCapabilities())
	if err != nil {
		t.Fatalf("Plan вернул ошибку на плоском мире: %v", err)
	}

	if !path.Origin.Equals(origin) || !path.Dest.Equals(dest) {
		t.Errorf("Начало/цель маршрута не совпадают с запросом")
	}
	last := path.Waypoints[len(path.Waypoints)-1]
	if !last.Pos.Equals(dest) {
		t.Errorf("Маршрут заканчивается в %v, ожидалась цель %v", last.Pos, dest)
	}
	if err := path.CheckPlausibility(); err != nil {
		t.Errorf("Нарушен физический инвариант: %v", err)
	}
}

func TestPlanDeterminism(t *testing.T) {
	world := worldgen.NewGridWorld(0)
	world.CarveTrench(6, 2, -20, 20, 10)
	p, _ := newTestPlanner(world, nil)

	origin := vec.Vec3{X: 0, Y: 0, Z: 0}
	dest := vec.Vec3{X: 15, Y: 0, Z: 3}
	caps := terrain.DefaultCapabilities()

	first, err := p.Plan(context.Background(), origin, dest, caps)
	if err != nil {
		t.Fatalf("Первое планирование: %v", err)
	}
	second, err := p.Plan(context.Background(), origin, dest, caps)
	if err != nil {
		t.Fatalf("Второе планирование: %v", err)
	}

	a, b := first.Centerline(), second.Centerline()
	if len(a) != len(b) {
		t.Fatalf("Маршруты разной длины: %d и %d точек", len(a), len(b))
	}
	for i := range a {
		if !a[i].Equals(b[i]) {
			t.Errorf("Точка %d различается: %v и %v", i, a[i], b[i])
		}
	}
	if d := (first.TimeEstimate - second.TimeEstimate).Seconds(); d < -0.01 || d > 0.01 {
		t.Errorf("Оценки времени расходятся: %v и %v", first.TimeEstimate, second.TimeEstimate)
	}
}

func TestPlanFlatEstimate(t *testing.T) {
	world := worldgen.NewGridWorld(0)
	p, _ := newTestPlanner(world, nil)

	origin := vec.Vec3{X: 0, Y: 0, Z: 0}
	dest := vec.Vec3{X: 100, Y: 0, Z: 0}
	path, err := p.Plan(context.Background(), origin, dest, terrain.DefaultCapabilities())
	if err != nil {
		t.Fatalf("Plan вернул ошибку: %v", err)
	}

	// Прямая по ровной местности: вся дистанция спринтом
	want := 100.0 / terrain.BaseSpeed(terrain.ModeSprint)
	got := path.TimeEstimate.Seconds()
	if got < want-0.1 || got > want+0.1 {
		t.Errorf("Оценка времени %0.2f с, ожидалось %0.2f с", got, want)
	}
}

func TestPlanEstimateWithSpeedBoost(t *testing.T) {
	// Ускоряющее покрытие (множитель > 1) вдоль всего маршрута:
	// оценка времени обязана остаться над физическим минимумом
	world := worldgen.NewGridWorld(0)
	for x := 0; x <= 20; x++ {
		world.SetFactor(vec.Vec3{X: x, Y: 0, Z: 0}, terrain.ModeSprint, 3.0)
	}
	p, _ := newTestPlanner(world, nil)

	origin := vec.Vec3{X: 0, Y: 0, Z: 0}
	dest := vec.Vec3{X: 20, Y: 0, Z: 0}
	path, err := p.Plan(context.Background(), origin, dest, terrain.DefaultCapabilities())
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}

	if err := path.CheckPlausibility(); err != nil {
		t.Errorf("Нарушен физический инвариант на ускоряющем покрытии: %v", err)
	}
	floor := origin.DistanceTo(dest) / terrain.MaxModeSpeed()
	if got := path.TimeEstimate.Seconds(); got < floor {
		t.Errorf("Оценка времени %0.3f с ниже минимума %0.3f с", got, floor)
	}
}

func TestGapPolicies(t *testing.T) {
	t.Run("провал в 2 ячейки преодолевается прыжком", func(t *testing.T) {
		world := worldgen.NewGridWorld(0)
		world.CarveTrench(5, 2, -30, 30, 10)
		p, _ := newTestPlanner(world, nil)

		path, err := p.Plan(context.Background(),
			vec.Vec3{X: 0, Y: 0, Z: 0}, vec.Vec3{X: 10, Y: 0, Z: 0},
			terrain.DefaultCapabilities())
		if err != nil {
			t.Fatalf("Plan: %v", err)
		}

		jumped := false
		for _, wp := range path.Waypoints {
			if wp.EdgeKind == EdgeJump {
				jumped = true
			}
		}
		if !jumped {
			t.Errorf("Ожидался прыжок через провал шириной 2, рёбра: %v", edgeKinds(path))
		}
	})

	t.Run("провал в 4 ячейки никогда не прыгается", func(t *testing.T) {
		world := worldgen.NewGridWorld(0)
		world.CarveTrench(5, 4, -30, 30, 10)
		p, _ := newTestPlanner(world, nil)

		path, err := p.Plan(context.Background(),
			vec.Vec3{X: 0, Y: 0, Z: 0}, vec.Vec3{X: 12, Y: 0, Z: 0},
			terrain.DefaultCapabilities())
		if err != nil {
			t.Fatalf("Plan: %v", err)
		}

		bridged := false
		for _, wp := range path.Waypoints {
			if wp.EdgeKind == EdgeJump {
				t.Fatalf("Прыжок через провал >= 3 ячеек запрещён политикой")
			}
			if wp.EdgeKind == EdgeBridge {
				bridged = true
			}
		}
		if !bridged {
			t.Errorf("Ожидался мост через широкий провал, рёбра: %v", edgeKinds(path))
		}
	})

	t.Run("без моста широкий провал непроходим", func(t *testing.T) {
		world := worldgen.NewGridWorld(0)
		// Траншея во всю ширину мира в пределах радиуса поиска
		world.CarveTrench(5, 4, -600, 600, 10)
		p, _ := newTestPlanner(world, nil)

		caps := terrain.DefaultCapabilities()
		caps.CanBridge = false
		caps.MaxFall = 1 // Спуск в траншею тоже недоступен

		_, err := p.Plan(context.Background(),
			vec.Vec3{X: 0, Y: 0, Z: 0}, vec.Vec3{X: 12, Y: 0, Z: 0}, caps)
		if err == nil {
			t.Fatalf("Ожидался отказ: агент не умеет строить мосты")
		}
		if !errors.Is(err, naverr.ErrNoPathFound) {
			t.Errorf("Ожидался ErrNoPathFound, получено: %v", err)
		}
	})
}

func TestLiquidPolicies(t *testing.T) {
	t.Run("узкая вода переплывается", func(t *testing.T) {
		world := worldgen.NewGridWorld(0)
		world.FillCanal(4, 5, -30, 30)
		p, _ := newTestPlanner(world, nil)

		path, err := p.Plan(context.Background(),
			vec.Vec3{X: 0, Y: 0, Z: 0}, vec.Vec3{X: 12, Y: 0, Z: 0},
			terrain.DefaultCapabilities())
		if err != nil {
			t.Fatalf("Plan: %v", err)
		}

		swam := false
		for _, m := range path.ModeSeq {
			if m == terrain.ModeSwimSurface {
				swam = true
			}
		}
		if !swam {
			t.Errorf("Ожидалось плавание через узкий канал, режимы: %v", path.ModeSeq)
		}
	})

	t.Run("широкая вода требует моста", func(t *testing.T) {
		world := worldgen.NewGridWorld(0)
		world.FillCanal(4, 16, -600, 600) // Шире порога плавания
		p, _ := newTestPlanner(world, nil)

		path, err := p.Plan(context.Background(),
			vec.Vec3{X: 0, Y: 0, Z: 0}, vec.Vec3{X: 24, Y: 0, Z: 0},
			terrain.DefaultCapabilities())
		if err != nil {
			t.Fatalf("Plan: %v", err)
		}

		bridged := false
		for _, wp := range path.Waypoints {
			if wp.EdgeKind == EdgeBridge {
				bridged = true
			}
			if wp.Mode == terrain.ModeSwimSurface {
				t.Errorf("Заплыв через преграду шире порога не должен планироваться")
			}
		}
		if !bridged {
			t.Errorf("Ожидался мост через широкую воду, рёбра: %v", edgeKinds(path))
		}
	})
}

func TestLethalHazardAvoidance(t *testing.T) {
	world := worldgen.NewGridWorld(0)
	p, idx := newTestPlanner(world, nil)

	lava := &hazard.Record{
		ID:       "lava-1",
		Type:     hazard.TypeLiquidDamage,
		Location: vec.Vec3{X: 8, Y: 0, Z: 0},
		Radius:   1,
		Severity: hazard.SeverityLethal,
	}
	idx.Upsert(lava)

	path, err := p.Plan(context.Background(),
		vec.Vec3{X: 0, Y: 0, Z: 0}, vec.Vec3{X: 16, Y: 0, Z: 0},
		terrain.DefaultCapabilities())
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}

	minClearance := float64(lava.Radius + hazard.LethalClearance)
	for i, wp := range path.Waypoints {
		if d := lava.Location.DistanceTo(wp.Pos); d < minClearance {
			t.Errorf("Точка %d в %v нарушает клиренс летальной опасности: %.2f < %.2f",
				i, wp.Pos, d, minClearance)
		}
	}
}

func TestDangerousHazardPenalty(t *testing.T) {
	// Dangerous-опасность не блокирует, но делает прямую дороже обхода
	world := worldgen.NewGridWorld(0)
	p, idx := newTestPlanner(world, nil)

	idx.Upsert(&hazard.Record{
		ID:       "mobs-1",
		Type:     hazard.TypeHostilePresence,
		Location: vec.Vec3{X: 8, Y: 0, Z: 0},
		Radius:   2,
		Severity: hazard.SeverityDangerous,
	})

	path, err := p.Plan(context.Background(),
		vec.Vec3{X: 0, Y: 0, Z: 0}, vec.Vec3{X: 16, Y: 0, Z: 0},
		terrain.DefaultCapabilities())
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}

	for i, wp := range path.Waypoints {
		d := vec.Vec3{X: 8, Y: 0, Z: 0}.DistanceTo(wp.Pos)
		if d <= 2 {
			t.Errorf("Точка %d в %v внутри радиуса dangerous-опасности: штраф должен был вытолкнуть маршрут", i, wp.Pos)
		}
	}
}

func TestPlanRangeLimit(t *testing.T) {
	world := worldgen.NewGridWorld(0)
	p, _ := newTestPlanner(world, nil)

	_, err := p.Plan(context.Background(),
		vec.Vec3{X: 0, Y: 0, Z: 0}, vec.Vec3{X: 10000, Y: 0, Z: 0},
		terrain.DefaultCapabilities())
	if !errors.Is(err, naverr.ErrNoPathFound) {
		t.Errorf("Цель вне радиуса должна давать ErrNoPathFound, получено: %v", err)
	}
}

func TestPlanTrivial(t *testing.T) {
	world := worldgen.NewGridWorld(0)
	p, _ := newTestPlanner(world, nil)

	pos := vec.Vec3{X: 3, Y: 0, Z: 3}
	path, err := p.Plan(context.Background(), pos, pos, terrain.DefaultCapabilities())
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if len(path.Waypoints) != 1 {
		t.Errorf("Тривиальный маршрут должен содержать одну точку, получено %d", len(path.Waypoints))
	}
}

// fakeMemory — минимальная реализация памяти для тестов планировщика
type fakeMemory struct {
	candidates  map[vec.RegionPair][]*Path
	recorded    []*Path
	revalidated []string
	invalidated []string
}

func newFakeMemory() *fakeMemory {
	return &fakeMemory{candidates: make(map[vec.RegionPair][]*Path)}
}

func (m *fakeMemory) Lookup(pair vec.RegionPair, caps terrain.CapabilitySet) []*Path {
	var out []*Path
	for _, p := range m.candidates[pair] {
		if p.CapsHash == caps.Hash() {
			out = append(out, p)
		}
	}
	return out
}

func (m *fakeMemory) Record(p *Path)              { m.recorded = append(m.recorded, p) }
func (m *fakeMemory) Revalidate(id string)        { m.revalidated = append(m.revalidated, id) }
func (m *fakeMemory) Invalidate(id string, _ int) { m.invalidated = append(m.invalidated, id) }

func TestPlanConsultsMemory(t *testing.T) {
	world := worldgen.NewGridWorld(0)
	mem := newFakeMemory()
	p, idx := newTestPlanner(world, mem)

	origin := vec.Vec3{X: 0, Y: 0, Z: 0}
	dest := vec.Vec3{X: 40, Y: 0, Z: 0}
	caps := terrain.DefaultCapabilities()

	first, err := p.Plan(context.Background(), origin, dest, caps)
	if err != nil {
		t.Fatalf("Первое планирование: %v", err)
	}
	if len(mem.recorded) != 1 {
		t.Fatalf("Маршрут должен быть записан в память, записано %d", len(mem.recorded))
	}

	pair := vec.PairOf(origin, dest)
	mem.candidates[pair] = []*Path{first}

	second, err := p.Plan(context.Background(), origin, dest, caps)
	if err != nil {
		t.Fatalf("Повторное планирование: %v", err)
	}
	if second.ID != first.ID {
		t.Errorf("Ожидался маршрут из памяти (%s), получен новый (%s)", first.ID, second.ID)
	}
	if len(mem.revalidated) != 1 {
		t.Errorf("Кандидат из памяти должен быть ре-валидирован")
	}

	// Новая летальная опасность на кеше — кандидат инвалидируется
	idx.Upsert(&hazard.Record{
		ID:       "lava-2",
		Type:     hazard.TypeLiquidDamage,
		Location: vec.Vec3{X: 20, Y: 0, Z: 0},
		Radius:   1,
		Severity: hazard.SeverityLethal,
	})

	third, err := p.Plan(context.Background(), origin, dest, caps)
	if err != nil {
		t.Fatalf("Планирование после инъекции опасности: %v", err)
	}
	if third.ID == first.ID {
		t.Errorf("Кандидат, пересекающий новую опасность, не должен выдаваться из памяти")
	}
	if len(mem.invalidated) != 1 {
		t.Errorf("Непрошедший перепроверку кандидат должен быть инвалидирован")
	}
}

func TestPlanNearMissReuse(t *testing.T) {
	world := worldgen.NewGridWorld(0)
	mem := newFakeMemory()
	p, _ := newTestPlanner(world, mem)

	caps := terrain.DefaultCapabilities()
	dest := vec.Vec3{X: 40, Y: 0, Z: 0}
	cached, err := p.Plan(context.Background(), vec.Vec3{X: 1, Y: 0, Z: 0}, dest, caps)
	if err != nil {
		t.Fatalf("Подготовка кандидата: %v", err)
	}

	// Запрос из соседней ячейки: кандидат пригоден после достройки
	// подводящего отрезка
	origin := vec.Vec3{X: 0, Y: 0, Z: 0}
	mem.candidates[vec.PairOf(origin, dest)] = []*Path{cached}

	got, err := p.Plan(context.Background(), origin, dest, caps)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if got.ID != cached.ID {
		t.Fatalf("Ожидалось переиспользование кандидата %s, получен %s", cached.ID, got.ID)
	}
	if !got.Origin.Equals(origin) || !got.Waypoints[0].Pos.Equals(origin) {
		t.Errorf("Маршрут должен начинаться в запрошенной точке, начало %v", got.Waypoints[0].Pos)
	}
	if got.TimeEstimate <= cached.TimeEstimate {
		t.Errorf("Подводящий отрезок должен удлинять оценку времени")
	}
	if len(mem.revalidated) != 1 {
		t.Errorf("Переиспользованный кандидат должен быть ре-валидирован")
	}
	if err := got.CheckPlausibility(); err != nil {
		t.Errorf("Нарушен физический инвариант: %v", err)
	}

	// Далёкий кандидат непригоден — выполняется полный поиск
	farOrigin := vec.Vec3{X: 12, Y: 0, Z: 0}
	mem.candidates[vec.PairOf(farOrigin, dest)] = []*Path{cached}
	fresh, err := p.Plan(context.Background(), farOrigin, dest, caps)
	if err != nil {
		t.Fatalf("Plan с далёким кандидатом: %v", err)
	}
	if fresh.ID == cached.ID {
		t.Errorf("Кандидат дальше допуска не должен переиспользоваться")
	}
}

func TestClimbAndDescend(t *testing.T) {
	world := worldgen.NewGridWorld(0)
	world.RaisePlateau(5, 10, -30, 30, 1)
	p, _ := newTestPlanner(world, nil)

	path, err := p.Plan(context.Background(),
		vec.Vec3{X: 0, Y: 0, Z: 0}, vec.Vec3{X: 8, Y: 1, Z: 0},
		terrain.DefaultCapabilities())
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}

	climbed := false
	for _, wp := range path.Waypoints {
		if wp.EdgeKind == EdgeClimb {
			climbed = true
		}
	}
	if !climbed {
		t.Errorf("Ожидался подъём на плато, рёбра: %v", edgeKinds(path))
	}
}

func edgeKinds(p *Path) []EdgeKind {
	kinds := make([]EdgeKind, len(p.Waypoints))
	for i, wp := range p.Waypoints {
		kinds[i] = wp.EdgeKind
	}
	return kinds
}
