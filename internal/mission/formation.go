// Package mission реализует координацию групп агентов: роли, строевые
// слоты, дросселирование темпа лидера, регруппировку и одностороннее
// прерывание миссии.
package mission

import (
	"math"

	"github.com/annel0/nav-core/internal/vec"
)

// Role — роль участника миссии. Назначается при создании и
// экспонируется наружу; ядро её не интерпретирует.
type Role uint8

const (
	RoleLead Role = iota
	RoleSupport
	RoleRearGuard
)

// String возвращает строковое представление роли
func (r Role) String() string {
	switch r {
	case RoleLead:
		return "lead"
	case RoleSupport:
		return "support"
	case RoleRearGuard:
		return "rear-guard"
	default:
		return "unknown"
	}
}

// FormationType — тип строя
type FormationType uint8

const (
	FormationLine   FormationType = iota // Шеренга: ведомые слева/справа
	FormationColumn                      // Колонна: ведомые в затылок
	FormationWedge                       // Клин: ведомые уступом назад
	FormationCircle                      // Кольцо вокруг лидера
)

// String возвращает строковое представление строя
func (f FormationType) String() string {
	switch f {
	case FormationLine:
		return "line"
	case FormationColumn:
		return "column"
	case FormationWedge:
		return "wedge"
	case FormationCircle:
		return "circle"
	default:
		return "unknown"
	}
}

// circleSlots — число слотов кольцевого строя
const circleSlots = 8

// SlotOffset возвращает смещение слота в локальной системе лидера:
// +X — вперёд по ходу, +Z — вправо. Слот 0 — сам лидер.
func SlotOffset(f FormationType, slot int, spacing float64) vec.Vec3f {
	if slot <= 0 {
		return vec.Vec3f{}
	}

	switch f {
	case FormationLine:
		// Чередование вправо/влево: 1=право, 2=лево, 3=дальше вправо...
		rank := float64((slot + 1) / 2)
		side := 1.0
		if slot%2 == 0 {
			side = -1.0
		}
		return vec.Vec3f{Z: side * rank * spacing}

	case FormationColumn:
		return vec.Vec3f{X: -float64(slot) * spacing}

	case FormationWedge:
		rank := float64((slot + 1) / 2)
		side := 1.0
		if slot%2 == 0 {
			side = -1.0
		}
		return vec.Vec3f{X: -rank * spacing, Z: side * rank * spacing}

	case FormationCircle:
		angle := 2 * math.Pi * float64(slot%circleSlots) / circleSlots
		return vec.Vec3f{X: math.Cos(angle) * spacing, Z: math.Sin(angle) * spacing}

	default:
		return vec.Vec3f{}
	}
}

// WorldSlot переводит слот строя в мировую ячейку: локальное смещение
// поворачивается по горизонтальной составляющей направления лидера.
func WorldSlot(anchor vec.Vec3f, facing vec.Facing, f FormationType, slot int, spacing float64) vec.Vec3 {
	local := SlotOffset(f, slot, spacing)

	fx, fz := facing.X, facing.Z
	norm := math.Hypot(fx, fz)
	if norm < 1e-9 {
		fx, fz = 1, 0 // Направление не задано — считаем вперёд по +X
	} else {
		fx, fz = fx/norm, fz/norm
	}

	// Вперёд = facing, вправо = facing, повёрнутый на -90° в плоскости XZ
	world := vec.Vec3f{
		X: anchor.X + local.X*fx - local.Z*fz,
		Y: anchor.Y,
		Z: anchor.Z + local.X*fz + local.Z*fx,
	}
	return world.Cell()
}
