// Package terrain реализует чистый слой модели местности и движения:
// классификация ячеек и расчёт скорости/риска для каждого режима.
// Функции детерминированы и не имеют побочных эффектов — на этом
// построены property-тесты планировщика.
package terrain

import (
	"errors"
	"fmt"
)

// SurfaceKind классифицирует проходимую поверхность ячейки
type SurfaceKind uint8

const (
	SurfaceSolid     SurfaceKind = iota // Твёрдая поверхность
	SurfaceLiquid                       // Жидкость (вода)
	SurfaceClimbable                    // Лестница, лоза и т.п.
	SurfaceVoid                         // Пустота (пропасть, воздух без опоры)
)

// String возвращает строковое представление типа поверхности
func (s SurfaceKind) String() string {
	switch s {
	case SurfaceSolid:
		return "solid"
	case SurfaceLiquid:
		return "liquid"
	case SurfaceClimbable:
		return "climbable"
	case SurfaceVoid:
		return "void"
	default:
		return "unknown"
	}
}

// Mode — режим передвижения агента
type Mode uint8

const (
	ModeWalk Mode = iota
	ModeSprint
	ModeSwimSurface
	ModeSwimSubmerged
	ModeClimb
	ModeRide
	ModeGlide
	modeCount
)

// String возвращает строковое представление режима
func (m Mode) String() string {
	switch m {
	case ModeWalk:
		return "walk"
	case ModeSprint:
		return "sprint"
	case ModeSwimSurface:
		return "swim_surface"
	case ModeSwimSubmerged:
		return "swim_submerged"
	case ModeClimb:
		return "climb"
	case ModeRide:
		return "ride"
	case ModeGlide:
		return "glide"
	default:
		return fmt.Sprintf("mode(%d)", uint8(m))
	}
}

// Базовые скорости режимов в ячейках/сек.
// Константы, не конфигурация: инвариант time_estimate >= dist/maxSpeed
// опирается на их неизменность.
var baseSpeeds = [modeCount]float64{
	ModeWalk:          4.3,
	ModeSprint:        5.6,
	ModeSwimSurface:   2.2,
	ModeSwimSubmerged: 1.8,
	ModeClimb:         2.35,
	ModeRide:          9.8,
	ModeGlide:         15.5,
}

// BaseSpeed возвращает базовую скорость режима (ячеек/сек)
func BaseSpeed(m Mode) float64 {
	if m >= modeCount {
		return 0
	}
	return baseSpeeds[m]
}

// MaxModeSpeed возвращает физический потолок скорости среди всех режимов
func MaxModeSpeed() float64 {
	max := 0.0
	for _, s := range baseSpeeds {
		if s > max {
			max = s
		}
	}
	return max
}

// Sample — классификация одной проходимой ячейки. Производится внешним
// world-query коллаборатором; ядро её никогда не мутирует.
type Sample struct {
	Surface SurfaceKind      `json:"surface"`
	Factors map[Mode]float64 `json:"factors,omitempty"` // Множитель скорости по режимам (по умолчанию 1.0)
	Hazards []string         `json:"hazards,omitempty"` // Ссылки на известные опасности в ячейке
}

// Factor возвращает множитель скорости ячейки для режима (1.0 по умолчанию)
func (s Sample) Factor(m Mode) float64 {
	if s.Factors == nil {
		return 1.0
	}
	if f, ok := s.Factors[m]; ok {
		return f
	}
	return 1.0
}

// ErrImpassable — ячейка непроходима для указанного режима
var ErrImpassable = errors.New("ячейка непроходима для режима")

// Порог множителя, выше которого ячейка считается «скользкой»:
// скорость растёт, но точность управления падает, что слой опасностей
// трактует как повышенный риск у кромок.
const slipperyFactor = 1.0

// Cost вычисляет (скорость, риск) для ячейки и режима.
// Чистая функция: одинаковые входы всегда дают одинаковый результат.
//
// Скорость = базовая скорость режима * множитель ячейки.
// Риск ∈ [0,1]: 0 — обычное движение, растёт для скользких ячеек
// (множитель > 1) пропорционально избытку скорости.
func Cost(s Sample, m Mode) (speed, risk float64, err error) {
	base := BaseSpeed(m)
	if base == 0 {
		return 0, 0, fmt.Errorf("неизвестный режим %v: %w", m, ErrImpassable)
	}

	// Совместимость поверхности и режима
	switch s.Surface {
	case SurfaceVoid:
		// В пустоте держит только планирование
		if m != ModeGlide {
			return 0, 0, fmt.Errorf("поверхность %s: %w", s.Surface, ErrImpassable)
		}
	case SurfaceLiquid:
		if m != ModeSwimSurface && m != ModeSwimSubmerged && m != ModeGlide {
			return 0, 0, fmt.Errorf("поверхность %s: %w", s.Surface, ErrImpassable)
		}
	case SurfaceClimbable:
		if m != ModeClimb && m != ModeWalk {
			return 0, 0, fmt.Errorf("поверхность %s: %w", s.Surface, ErrImpassable)
		}
	case SurfaceSolid:
		if m == ModeSwimSurface || m == ModeSwimSubmerged {
			return 0, 0, fmt.Errorf("поверхность %s: %w", s.Surface, ErrImpassable)
		}
	}

	factor := s.Factor(m)
	if factor <= 0 {
		return 0, 0, fmt.Errorf("нулевой множитель местности: %w", ErrImpassable)
	}

	speed = base * factor

	// Скользкая ячейка: скорость выше базовой, контроль хуже
	if factor > slipperyFactor {
		risk = (factor - slipperyFactor) / factor
		if risk > 1 {
			risk = 1
		}
	}

	return speed, risk, nil
}
