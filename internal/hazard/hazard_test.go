package hazard

import (
	"testing"

	"github.com/annel0/nav-core/internal/vec"
)

func TestIndex(t *testing.T) {
	idx := NewIndex()

	t.Run("Upsert и Near", func(t *testing.T) {
		idx.Upsert(&Record{
			ID:       "lava-1",
			Type:     TypeLiquidDamage,
			Location: vec.Vec3{X: 10, Y: 4, Z: 10},
			Radius:   2,
			Severity: SeverityLethal,
		})

		found := idx.Near(vec.Vec3{X: 11, Y: 4, Z: 10}, 1)
		if len(found) != 1 {
			t.Fatalf("Ожидалась 1 запись, получено %d", len(found))
		}
		if found[0].ID != "lava-1" {
			t.Errorf("Неверная запись: %v", found[0])
		}
	})

	t.Run("Near не находит далёкие записи", func(t *testing.T) {
		found := idx.Near(vec.Vec3{X: 100, Y: 4, Z: 100}, 3)
		if len(found) != 0 {
			t.Errorf("Ожидался пустой результат, получено %d записей", len(found))
		}
	})

	t.Run("Запись на границе регионов видна из обоих", func(t *testing.T) {
		idx.Upsert(&Record{
			ID:       "edge-1",
			Type:     TypeHostilePresence,
			Location: vec.Vec3{X: 15, Y: 0, Z: 0}, // у границы региона (RegionSize=16)
			Radius:   3,
			Severity: SeverityDangerous,
		})

		if found := idx.Near(vec.Vec3{X: 17, Y: 0, Z: 0}, 1); len(found) != 1 {
			t.Errorf("Запись не видна из соседнего региона: %d", len(found))
		}
	})

	t.Run("Remove удаляет из всех бакетов", func(t *testing.T) {
		idx.Remove("edge-1")
		if found := idx.Near(vec.Vec3{X: 15, Y: 0, Z: 0}, 3); len(found) != 0 {
			t.Errorf("Запись осталась после Remove: %d", len(found))
		}
	})
}

func TestEngineFilter(t *testing.T) {
	t.Run("Летальная опасность в 2 ячейках от линии — перепрокладка с клиренсом >= 3", func(t *testing.T) {
		idx := NewIndex()
		idx.Upsert(&Record{
			ID:       "pit",
			Type:     TypeFall,
			Location: vec.Vec3{X: 5, Y: 0, Z: 2},
			Radius:   0,
			Severity: SeverityLethal,
		})
		engine := NewEngine(idx)

		// Осевая линия проходит в 2 ячейках от опасности
		line := []vec.Vec3{{X: 0, Y: 0, Z: 0}, {X: 5, Y: 0, Z: 0}, {X: 10, Y: 0, Z: 0}}
		verdict := engine.Filter(line, nil, true)

		if verdict.Decision != DecisionReroute {
			t.Fatalf("Ожидалась перепрокладка, получено %v", verdict.Decision)
		}
		if verdict.MinClearance < LethalClearance {
			t.Errorf("Клиренс %d меньше категорического минимума %d", verdict.MinClearance, LethalClearance)
		}
	})

	t.Run("Dangerous даёт штраф, но не блокирует", func(t *testing.T) {
		idx := NewIndex()
		idx.Upsert(&Record{
			ID:       "mob",
			Type:     TypeHostilePresence,
			Location: vec.Vec3{X: 3, Y: 0, Z: 0},
			Radius:   2,
			Severity: SeverityDangerous,
		})
		engine := NewEngine(idx)

		line := []vec.Vec3{{X: 2, Y: 0, Z: 0}, {X: 3, Y: 0, Z: 0}, {X: 4, Y: 0, Z: 0}}
		seconds := []float64{0.5, 0.5, 0.5}
		verdict := engine.Filter(line, seconds, true)

		if verdict.Decision != DecisionAccept {
			t.Fatalf("Dangerous не должна отклонять маршрут: %v", verdict.Decision)
		}
		if verdict.Penalty <= 0 {
			t.Errorf("Ожидался положительный штраф экспозиции, получен %v", verdict.Penalty)
		}
	})

	t.Run("Advisory логируется и пропускается", func(t *testing.T) {
		idx := NewIndex()
		idx.Upsert(&Record{
			ID:       "note",
			Type:     TypeBlockedGap,
			Location: vec.Vec3{X: 1, Y: 0, Z: 0},
			Radius:   1,
			Severity: SeverityAdvisory,
		})
		engine := NewEngine(idx)

		verdict := engine.Filter([]vec.Vec3{{X: 1, Y: 0, Z: 0}}, nil, true)
		if verdict.Decision != DecisionAccept {
			t.Errorf("Advisory с разрешённым override должна приниматься: %v", verdict.Decision)
		}

		// Без разрешения на override advisory требует обхода
		verdict = engine.Filter([]vec.Vec3{{X: 1, Y: 0, Z: 0}}, nil, false)
		if verdict.Decision != DecisionReroute {
			t.Errorf("Advisory без override должна перепрокладываться: %v", verdict.Decision)
		}
	})

	t.Run("Чистая линия принимается", func(t *testing.T) {
		engine := NewEngine(NewIndex())
		verdict := engine.Filter([]vec.Vec3{{X: 0, Y: 0, Z: 0}, {X: 50, Y: 0, Z: 0}}, nil, true)
		if verdict.Decision != DecisionAccept {
			t.Errorf("Пустой индекс должен принимать любой маршрут: %v", verdict.Decision)
		}
	})
}
