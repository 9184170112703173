// Package planner реализует прокладку маршрутов: A*-поиск по
// динамически дискретизируемому графу ячеек с политиками рёбер для
// провалов, подъёмов и водных преград, интеграцией памяти маршрутов
// и фильтра опасностей.
package planner

import (
	"fmt"
	"time"

	"github.com/annel0/nav-core/internal/terrain"
	"github.com/annel0/nav-core/internal/vec"
)

// Status — статус маршрута в памяти
type Status uint8

const (
	StatusFresh      Status = iota // Недавно проверен, пригоден без повторного поиска
	StatusStale                    // Устарел; требует ре-валидации перед выдачей
	StatusDeprecated               // Провален при обходе; исключён из выдачи навсегда
)

// String возвращает строковое представление статуса
func (s Status) String() string {
	switch s {
	case StatusFresh:
		return "fresh"
	case StatusStale:
		return "stale"
	case StatusDeprecated:
		return "deprecated"
	default:
		return "unknown"
	}
}

// Waypoint — одна запланированная точка маршрута с аннотациями
// местности и опасностей. Позиция неизменяема после записи.
type Waypoint struct {
	Pos        vec.Vec3     `json:"pos"`
	Facing     vec.Facing   `json:"facing"`
	Factor     float64      `json:"factor"`      // Множитель местности в точке
	Mode       terrain.Mode `json:"mode"`        // Режим движения к этой точке
	EdgeKind   EdgeKind     `json:"edge_kind"`   // Тип ребра, ведущего в точку
	HazardRefs []string     `json:"hazard_refs,omitempty"`
}

// Path — упорядоченная последовательность точек с оценкой времени и
// рейтингом уверенности. Инвариант: TimeEstimate не может быть меньше
// прямой дистанции, делённой на физический потолок скорости.
type Path struct {
	ID              string         `json:"id"`
	From            vec.Region     `json:"from"`
	To              vec.Region     `json:"to"`
	Origin          vec.Vec3       `json:"origin"`
	Dest            vec.Vec3       `json:"dest"`
	Waypoints       []Waypoint     `json:"waypoints"`
	ModeSeq         []terrain.Mode `json:"mode_seq"`
	TimeEstimate    time.Duration  `json:"time_estimate"`
	Confidence      float64        `json:"confidence"`
	CapsHash        uint32         `json:"caps_hash"`
	CreatedAt       time.Time      `json:"created_at"`
	LastValidatedAt time.Time      `json:"last_validated_at"`
	Status          Status         `json:"status"`
}

// Centerline возвращает осевую линию маршрута (позиции точек)
func (p *Path) Centerline() []vec.Vec3 {
	line := make([]vec.Vec3, len(p.Waypoints))
	for i, wp := range p.Waypoints {
		line[i] = wp.Pos
	}
	return line
}

// SegmentSeconds возвращает оценку времени прохождения каждой точки
// (равномерное распределение TimeEstimate по точкам — достаточная
// аппроксимация для расчёта экспозиции опасностей).
func (p *Path) SegmentSeconds() []float64 {
	if len(p.Waypoints) == 0 {
		return nil
	}
	per := p.TimeEstimate.Seconds() / float64(len(p.Waypoints))
	seconds := make([]float64, len(p.Waypoints))
	for i := range seconds {
		seconds[i] = per
	}
	return seconds
}

// CheckPlausibility проверяет физический инвариант маршрута:
// оценка времени не меньше прямой дистанции на потолке скорости.
func (p *Path) CheckPlausibility() error {
	maxSpeed := terrain.MaxModeSpeed()
	floor := p.Origin.DistanceTo(p.Dest) / maxSpeed
	if p.TimeEstimate.Seconds() < floor-1e-9 {
		return fmt.Errorf("маршрут %s быстрее физического потолка: %.3fs < %.3fs",
			p.ID, p.TimeEstimate.Seconds(), floor)
	}
	return nil
}

// EdgeKind — тип ребра графа маршрута
type EdgeKind uint8

const (
	EdgeWalk    EdgeKind = iota // Обычный шаг
	EdgeJump                    // Прыжок через провал ровно в 2 ячейки
	EdgeBridge                  // Постройка моста (провал >= 3 или широкая вода)
	EdgeClimb                   // Подъём на 1-2 ячейки
	EdgeAscent                  // Выделенный подъём (>= 3 ячеек: лестница/столб)
	EdgeSwim                    // Плавание
	EdgeDescend                 // Спуск/падение в пределах безопасной высоты
)

// String возвращает строковое представление типа ребра
func (k EdgeKind) String() string {
	switch k {
	case EdgeWalk:
		return "walk"
	case EdgeJump:
		return "jump"
	case EdgeBridge:
		return "bridge"
	case EdgeClimb:
		return "climb"
	case EdgeAscent:
		return "ascent"
	case EdgeSwim:
		return "swim"
	case EdgeDescend:
		return "descend"
	default:
		return "unknown"
	}
}
