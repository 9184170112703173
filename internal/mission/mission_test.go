package mission

import (
	"context"
	"math"
	"testing"
	"time"

	"github.com/annel0/nav-core/internal/agent"
	"github.com/annel0/nav-core/internal/config"
	"github.com/annel0/nav-core/internal/eventbus"
	"github.com/annel0/nav-core/internal/naverr"
	"github.com/annel0/nav-core/internal/planner"
	"github.com/annel0/nav-core/internal/terrain"
	"github.com/annel0/nav-core/internal/vec"
)

// fakeRoutes — планировщик прямых маршрутов для тестов координатора
type fakeRoutes struct {
	planned int
}

func (r *fakeRoutes) Plan(ctx context.Context, origin, dest vec.Vec3, caps terrain.CapabilitySet) (*planner.Path, error) {
	r.planned++
	waypoints := []planner.Waypoint{{Pos: origin, Mode: terrain.ModeWalk, Factor: 1.0}}
	step := origin
	for i := 0; i < 1024 && !step.Equals(dest); i++ {
		switch {
		case step.X != dest.X:
			step.X += sign(dest.X - step.X)
		case step.Z != dest.Z:
			step.Z += sign(dest.Z - step.Z)
		default:
			step.Y += sign(dest.Y - step.Y)
		}
		waypoints = append(waypoints, planner.Waypoint{Pos: step, Mode: terrain.ModeWalk, Factor: 1.0})
	}
	now := time.Now()
	return &planner.Path{
		ID:              "route",
		From:            vec.RegionOf(origin),
		To:              vec.RegionOf(dest),
		Origin:          origin,
		Dest:            dest,
		Waypoints:       waypoints,
		ModeSeq:         []terrain.Mode{terrain.ModeWalk},
		TimeEstimate:    time.Duration(len(waypoints)) * 250 * time.Millisecond,
		Confidence:      0.6,
		CreatedAt:       now,
		LastValidatedAt: now,
	}, nil
}

func sign(v int) int {
	if v < 0 {
		return -1
	}
	if v > 0 {
		return 1
	}
	return 0
}

type traversalLog struct {
	reports map[string][]bool
}

func (t *traversalLog) Invalidate(id string, _ int) {}

func (t *traversalLog) ReportTraversal(id string, ok bool) {
	if t.reports == nil {
		t.reports = make(map[string][]bool)
	}
	t.reports[id] = append(t.reports[id], ok)
}

func newSquad(t *testing.T, bus eventbus.EventBus) (*Controller, *agent.Agent, *agent.Agent) {
	t.Helper()
	cfg := config.Default()
	c := NewController(cfg.Mission, &fakeRoutes{}, &traversalLog{}, bus)
	c.SetFormation(FormationLine)

	lead := agent.NewAgent("lead", vec.Vec3f{}, terrain.DefaultCapabilities(), cfg.Stuck)
	follower := agent.NewAgent("follower", vec.Vec3f{Z: 5}, terrain.DefaultCapabilities(), cfg.Stuck)
	c.AddMember(lead, RoleLead)
	c.AddMember(follower, RoleSupport)
	return c, lead, follower
}

func TestSlotOffsets(t *testing.T) {
	t.Run("шеренга чередует стороны", func(t *testing.T) {
		right := SlotOffset(FormationLine, 1, 5)
		left := SlotOffset(FormationLine, 2, 5)
		if right.Z != 5 || left.Z != -5 {
			t.Errorf("Слоты 1/2 должны стоять по бокам на дистанции строя: %v, %v", right, left)
		}
		if SlotOffset(FormationLine, 3, 5).Z != 10 {
			t.Errorf("Слот 3 должен стоять на втором ранге")
		}
	})

	t.Run("колонна строится в затылок", func(t *testing.T) {
		for slot := 1; slot <= 3; slot++ {
			off := SlotOffset(FormationColumn, slot, 4)
			if off.X != -float64(slot)*4 || off.Z != 0 {
				t.Errorf("Слот %d колонны: получено %v", slot, off)
			}
		}
	})

	t.Run("кольцо держит радиус", func(t *testing.T) {
		for slot := 1; slot <= 8; slot++ {
			off := SlotOffset(FormationCircle, slot, 6)
			r := math.Hypot(off.X, off.Z)
			if math.Abs(r-6) > 1e-9 {
				t.Errorf("Слот %d кольца: радиус %.2f, ожидалось 6", slot, r)
			}
		}
	})

	t.Run("поворот слота следует направлению лидера", func(t *testing.T) {
		anchor := vec.Vec3f{X: 10, Y: 0, Z: 10}
		// Лидер смотрит на +Z: слот колонны должен оказаться позади по Z
		cell := WorldSlot(anchor, vec.Facing{Z: 1}, FormationColumn, 1, 4)
		if cell.Z >= 10 {
			t.Errorf("Слот колонны должен быть позади лидера, получено %v", cell)
		}
	})
}

func TestLeaderThrottle(t *testing.T) {
	c, lead, follower := newSquad(t, nil)
	if err := c.Start(context.Background(), vec.Vec3{X: 50}); err != nil {
		t.Fatalf("Start: %v", err)
	}

	// Ведомый отстал дальше допуска строя
	lead.SetPosition(vec.Vec3f{X: 20})
	follower.SetPosition(vec.Vec3f{X: 2, Z: 5})
	c.Tick(context.Background())

	if c.PaceScale() >= 1.0 {
		t.Fatalf("Отставание ведомого должно дросселировать темп лидера, темп %.2f", c.PaceScale())
	}

	// Ведомый догнал слот — темп восстанавливается за ограниченное
	// число тиков
	for i := 0; i < 20 && c.PaceScale() < 1.0; i++ {
		lead.SetPosition(vec.Vec3f{X: 20})
		follower.SetPosition(vec.Vec3f{X: 20, Z: 5})
		c.Tick(context.Background())
	}
	if c.PaceScale() < 1.0 {
		t.Errorf("Темп лидера должен восстановиться после сцепления строя, темп %.2f", c.PaceScale())
	}
}

func TestFollowerEscalationTriggersRegroup(t *testing.T) {
	c, lead, follower := newSquad(t, nil)
	if err := c.Start(context.Background(), vec.Vec3{X: 50}); err != nil {
		t.Fatalf("Start: %v", err)
	}

	lead.SetPosition(vec.Vec3f{X: 20})
	reason := naverr.NewReason(naverr.ReasonEscalated, follower.ID, "route", "тест")
	c.Escalated(follower.ID, reason)

	snap := c.Status()
	if snap.Status != "regrouping" {
		t.Fatalf("Эскалация ведомого должна запускать регруппировку, статус %s", snap.Status)
	}
	if snap.RegroupPoint == nil {
		t.Fatalf("Точка регруппировки не назначена")
	}

	// Лидер (единственный действующий участник) дошёл до точки сбора —
	// кворум собран, движение возобновляется
	lead.SetPosition(snap.RegroupPoint.ToVec3f())
	c.Tick(context.Background())

	if got := c.Status().Status; got != "en-route" {
		t.Errorf("После кворума ожидалось en-route, получено %s", got)
	}
}

func TestLeaderEscalationAborts(t *testing.T) {
	c, lead, follower := newSquad(t, nil)
	if err := c.Start(context.Background(), vec.Vec3{X: 50}); err != nil {
		t.Fatalf("Start: %v", err)
	}

	reason := naverr.NewReason(naverr.ReasonEscalated, lead.ID, "route", "лидер исчерпал восстановление")
	c.Escalated(lead.ID, reason)

	snap := c.Status()
	if snap.Status != "aborted" {
		t.Fatalf("Эскалация лидера должна прерывать миссию, статус %s", snap.Status)
	}
	if snap.Reason == nil || snap.Reason.Code != naverr.ReasonEscalated {
		t.Errorf("Причина прерывания должна сохраняться")
	}
	if lead.StateName() != "aborted" || follower.StateName() != "aborted" {
		t.Errorf("Все агенты должны быть остановлены: %s / %s", lead.StateName(), follower.StateName())
	}
}

func TestAbortIsOneWayAndBroadcast(t *testing.T) {
	bus := eventbus.NewMemoryBus(16)
	got := make(chan *eventbus.Envelope, 1)
	_, err := bus.Subscribe(context.Background(),
		eventbus.Filter{Types: []string{eventbus.TypeAbortEvent}},
		func(ctx context.Context, ev *eventbus.Envelope) {
			select {
			case got <- ev:
			default:
			}
		})
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	c, _, _ := newSquad(t, bus)
	if err := c.Start(context.Background(), vec.Vec3{X: 30}); err != nil {
		t.Fatalf("Start: %v", err)
	}

	reason := naverr.NewReason(naverr.ReasonExternalAbort, "", "route", "команда оператора")
	c.Abort(reason)

	select {
	case ev := <-got:
		if ev.Priority != 9 {
			t.Errorf("Abort обязан идти с приоритетом 9, получен %d", ev.Priority)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("AbortEvent не дошёл до шины")
	}

	// Односторонность: последующие тики не оживляют миссию
	c.Tick(context.Background())
	if got := c.Status().Status; got != "aborted" {
		t.Errorf("Статус aborted терминален, получено %s", got)
	}
}

func TestMissionCompletes(t *testing.T) {
	c, lead, follower := newSquad(t, nil)
	goal := vec.Vec3{X: 6}
	if err := c.Start(context.Background(), goal); err != nil {
		t.Fatalf("Start: %v", err)
	}

	// Хост ведёт обоих агентов по их маршрутам до конца
	for i := 0; i < 64 && c.Status().Status != "complete"; i++ {
		advance(lead)
		advance(follower)
		c.Tick(context.Background())
	}

	if got := c.Status().Status; got != "complete" {
		t.Errorf("Миссия должна завершиться после прохождения маршрутов, статус %s", got)
	}
}

// advance телепортирует агента к его текущей точке маршрута
func advance(a *agent.Agent) {
	if a.Path == nil || a.WaypointIdx >= len(a.Path.Waypoints) {
		a.SetPosition(a.Pos)
		return
	}
	a.SetPosition(a.Path.Waypoints[a.WaypointIdx].Pos.ToVec3f())
}
