package pathmem

import (
	"fmt"
	"testing"
	"time"

	"github.com/annel0/nav-core/internal/config"
	"github.com/annel0/nav-core/internal/planner"
	"github.com/annel0/nav-core/internal/terrain"
	"github.com/annel0/nav-core/internal/vec"
)

func testPath(id string, confidence float64, caps terrain.CapabilitySet) *planner.Path {
	origin := vec.Vec3{X: 0, Y: 64, Z: 0}
	dest := vec.Vec3{X: 40, Y: 64, Z: 0}
	now := time.Now()
	return &planner.Path{
		ID:     id,
		From:   vec.RegionOf(origin),
		To:     vec.RegionOf(dest),
		Origin: origin,
		Dest:   dest,
		Waypoints: []planner.Waypoint{
			{Pos: origin, Mode: terrain.ModeWalk, Factor: 1.0},
			{Pos: dest, Mode: terrain.ModeWalk, Factor: 1.0},
		},
		ModeSeq:         []terrain.Mode{terrain.ModeWalk},
		TimeEstimate:    10 * time.Second,
		Confidence:      confidence,
		CapsHash:        caps.Hash(),
		CreatedAt:       now,
		LastValidatedAt: now,
		Status:          planner.StatusFresh,
	}
}

func testPair() vec.RegionPair {
	return vec.PairOf(vec.Vec3{X: 0, Y: 64, Z: 0}, vec.Vec3{X: 40, Y: 64, Z: 0})
}

func TestStoreLookup(t *testing.T) {
	caps := terrain.DefaultCapabilities()
	s := NewStore(config.Default().Storage)

	s.Record(testPath("a", 0.5, caps))
	s.Record(testPath("b", 0.9, caps))

	got := s.Lookup(testPair(), caps)
	if len(got) != 2 {
		t.Fatalf("Ожидалось 2 кандидата, получено %d", len(got))
	}
	if got[0].ID != "b" {
		t.Errorf("Кандидаты должны идти по убыванию уверенности, первый: %s", got[0].ID)
	}
}

func TestStoreCapsMismatch(t *testing.T) {
	caps := terrain.DefaultCapabilities()
	s := NewStore(config.Default().Storage)
	s.Record(testPath("swimmer", 0.8, caps))

	other := caps
	other.Modes = terrain.Mask(terrain.ModeWalk)
	if got := s.Lookup(testPair(), other); len(got) != 0 {
		t.Errorf("Маршрут с несовместимым хэшем возможностей не должен выдаваться, получено %d", len(got))
	}
}

func TestStoreTraversalFeedback(t *testing.T) {
	caps := terrain.DefaultCapabilities()

	t.Run("успех наращивает уверенность", func(t *testing.T) {
		s := NewStore(config.Default().Storage)
		s.Record(testPath("ok", 0.6, caps))

		s.ReportTraversal("ok", true)
		got := s.Lookup(testPair(), caps)
		if len(got) != 1 {
			t.Fatalf("Маршрут пропал из выдачи")
		}
		if got[0].Confidence <= 0.6 {
			t.Errorf("Уверенность должна вырасти, получено %.2f", got[0].Confidence)
		}
	})

	t.Run("серия провалов выводит маршрут из выдачи", func(t *testing.T) {
		s := NewStore(config.Default().Storage)
		s.Record(testPath("bad", 0.6, caps))

		for i := 0; i < 10; i++ {
			s.ReportTraversal("bad", false)
		}
		if got := s.Lookup(testPair(), caps); len(got) != 0 {
			t.Errorf("Деградировавший маршрут должен быть deprecated, получено %d кандидатов", len(got))
		}
		if s.Snapshot().Deprecated != 1 {
			t.Errorf("Snapshot должен учитывать deprecated-маршрут")
		}
	})
}

func TestStoreInvalidate(t *testing.T) {
	caps := terrain.DefaultCapabilities()
	s := NewStore(config.Default().Storage)
	s.Record(testPath("x", 0.9, caps))

	s.Invalidate("x", 4)
	if got := s.Lookup(testPair(), caps); len(got) != 0 {
		t.Errorf("Инвалидированный маршрут не должен выдаваться")
	}
}

func TestStoreStaleMarking(t *testing.T) {
	caps := terrain.DefaultCapabilities()
	cfg := config.Default().Storage
	cfg.StaleAfter = time.Millisecond
	s := NewStore(cfg)

	s.Record(testPath("old", 0.8, caps))
	time.Sleep(5 * time.Millisecond)

	got := s.Lookup(testPair(), caps)
	if len(got) != 1 {
		t.Fatalf("Просроченный маршрут должен оставаться в выдаче")
	}
	if got[0].Status != planner.StatusStale {
		t.Errorf("Ожидался статус stale, получен %s", got[0].Status)
	}

	// Ре-валидация возвращает маршрут в fresh
	s.Revalidate("old")
	got = s.Lookup(testPair(), caps)
	if got[0].Status != planner.StatusFresh {
		t.Errorf("После ре-валидации ожидался fresh, получен %s", got[0].Status)
	}
}

func TestStoreEviction(t *testing.T) {
	caps := terrain.DefaultCapabilities()
	cfg := config.Default().Storage
	cfg.MaxCandidatesPerPair = 2
	s := NewStore(cfg)

	for i := 0; i < 4; i++ {
		s.Record(testPath(fmt.Sprintf("p%d", i), 0.3+0.1*float64(i), caps))
	}

	got := s.Lookup(testPair(), caps)
	if len(got) != 2 {
		t.Fatalf("Пара ограничена 2 кандидатами, получено %d", len(got))
	}
	for _, p := range got {
		if p.Confidence < 0.5 {
			t.Errorf("Вытесняться должны слабейшие кандидаты, остался %s (%.2f)", p.ID, p.Confidence)
		}
	}
}

func TestStoreCopyOnWrite(t *testing.T) {
	caps := terrain.DefaultCapabilities()
	s := NewStore(config.Default().Storage)
	s.Record(testPath("cow", 0.7, caps))

	got := s.Lookup(testPair(), caps)
	got[0].Waypoints[0].Pos = vec.Vec3{X: 999, Y: 999, Z: 999}
	got[0].Confidence = 0.0

	again := s.Lookup(testPair(), caps)
	if again[0].Confidence != 0.7 {
		t.Errorf("Мутация выданной копии не должна влиять на хранилище")
	}
	if again[0].Waypoints[0].Pos.X == 999 {
		t.Errorf("Точки выдаются копией, а не ссылкой на хранимый срез")
	}
}
