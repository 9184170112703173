package tests

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annel0/nav-core/internal/agent"
	"github.com/annel0/nav-core/internal/config"
	"github.com/annel0/nav-core/internal/eventbus"
	"github.com/annel0/nav-core/internal/hazard"
	"github.com/annel0/nav-core/internal/mission"
	"github.com/annel0/nav-core/internal/naverr"
	"github.com/annel0/nav-core/internal/pathmem"
	"github.com/annel0/nav-core/internal/terrain"
	"github.com/annel0/nav-core/internal/vec"
)

// newMissionPipeline собирает миссию поверх настоящего планировщика
// и плоского мира: лидер и один ведомый в линейном строю.
func newMissionPipeline(t *testing.T) (*mission.Controller, []*agent.Agent) {
	t.Helper()

	store := pathmem.NewStore(config.Default().Storage)
	p, _, _ := newPipeline(store)
	bus := eventbus.NewMemoryBus(64)

	c := mission.NewController(config.Default().Mission, p, store, bus)
	c.SetFormation(mission.FormationLine)

	caps := terrain.DefaultCapabilities()
	stuck := config.Default().Stuck
	lead := agent.NewAgent("lead", vec.Vec3f{X: 0, Y: 0, Z: 0}, caps, stuck)
	follower := agent.NewAgent("f1", vec.Vec3f{X: 0, Y: 0, Z: 4}, caps, stuck)
	c.AddMember(lead, mission.RoleLead)
	c.AddMember(follower, mission.RoleSupport)
	return c, []*agent.Agent{lead, follower}
}

// teleportAlongPath переносит агента к его текущей точке маршрута,
// имитируя исполнение движения хостом.
func teleportAlongPath(a *agent.Agent) {
	if a.Path != nil && a.WaypointIdx < len(a.Path.Waypoints) {
		wp := a.Path.Waypoints[a.WaypointIdx]
		a.SetPosition(wp.Pos.ToVec3f())
	}
}

func TestMissionCompletesOverTerrain(t *testing.T) {
	c, agents := newMissionPipeline(t)
	ctx := context.Background()

	goal := vec.Vec3{X: 20, Y: 0, Z: 0}
	require.NoError(t, c.Start(ctx, goal))

	for i := 0; i < 300 && c.Status().Status != "complete"; i++ {
		for _, a := range agents {
			teleportAlongPath(a)
		}
		c.Tick(ctx)
	}

	snap := c.Status()
	require.Equal(t, "complete", snap.Status, "миссия должна завершиться: %+v", snap)
	for _, ms := range snap.Members {
		assert.Equal(t, "idle", ms.State, "агент %s должен вернуться в бездействие", ms.AgentID)
	}
}

func TestMissionAbortStopsAllAgents(t *testing.T) {
	c, _ := newMissionPipeline(t)
	ctx := context.Background()

	require.NoError(t, c.Start(ctx, vec.Vec3{X: 20, Y: 0, Z: 0}))
	c.Tick(ctx)

	c.Abort(naverr.NewReason(naverr.ReasonExternalAbort, "", "", "остановка оператором"))

	snap := c.Status()
	assert.Equal(t, "aborted", snap.Status)
	require.NotNil(t, snap.Reason)
	assert.Equal(t, naverr.ReasonExternalAbort, snap.Reason.Code)
	for _, ms := range snap.Members {
		assert.Equal(t, "aborted", ms.State)
	}

	// Прерывание одностороннее: дальнейшие тики ничего не меняют
	for i := 0; i < 5; i++ {
		c.Tick(ctx)
	}
	assert.Equal(t, "aborted", c.Status().Status)
}

func TestMissionRoutesAroundLethalHazard(t *testing.T) {
	store := pathmem.NewStore(config.Default().Storage)
	p, _, idx := newPipeline(store)
	bus := eventbus.NewMemoryBus(64)

	idx.Upsert(&hazard.Record{
		ID:       "pit",
		Type:     hazard.TypeFall,
		Location: vec.Vec3{X: 10, Y: 0, Z: 0},
		Radius:   1,
		Severity: hazard.SeverityLethal,
	})

	c := mission.NewController(config.Default().Mission, p, store, bus)
	lead := agent.NewAgent("lead", vec.Vec3f{X: 0, Y: 0, Z: 0}, terrain.DefaultCapabilities(), config.Default().Stuck)
	c.AddMember(lead, mission.RoleLead)

	require.NoError(t, c.Start(context.Background(), vec.Vec3{X: 20, Y: 0, Z: 0}))
	require.NotNil(t, lead.Path)

	minClearance := float64(1 + hazard.LethalClearance)
	for _, wp := range lead.Path.Waypoints {
		d := wp.Pos.DistanceTo(vec.Vec3{X: 10, Y: 0, Z: 0})
		assert.GreaterOrEqual(t, d, minClearance,
			"маршрут лидера проходит через летальную зону: %v", wp.Pos)
	}
}
