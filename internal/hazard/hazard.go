// Package hazard реализует движок избегания опасностей: хранение
// известных опасностей, пространственные запросы и фильтрацию
// маршрутов-кандидатов. Записи поступают извне (world-query, боевая
// подсистема) и потребляются только для чтения.
package hazard

import (
	"fmt"

	"github.com/annel0/nav-core/internal/vec"
)

// Type классифицирует опасность
type Type uint8

const (
	TypeFall            Type = iota // Падение с фатальной высоты
	TypeLiquidDamage                // Повреждающая жидкость (лава и т.п.)
	TypeHostilePresence             // Присутствие враждебной сущности
	TypeBlockedGap                  // Непроходимый провал
)

// String возвращает строковое представление типа
func (t Type) String() string {
	switch t {
	case TypeFall:
		return "fall"
	case TypeLiquidDamage:
		return "liquid-damage"
	case TypeHostilePresence:
		return "hostile-presence"
	case TypeBlockedGap:
		return "blocked-gap"
	default:
		return "unknown"
	}
}

// Severity — серьёзность опасности
type Severity uint8

const (
	SeverityAdvisory  Severity = iota // Лишь предупреждение; не блокирует планирование
	SeverityDangerous                 // Штраф стоимости, пропорциональный времени экспозиции
	SeverityLethal                    // Категорический запрет с минимальным клиренсом
)

// String возвращает строковое представление серьёзности
func (s Severity) String() string {
	switch s {
	case SeverityAdvisory:
		return "advisory"
	case SeverityDangerous:
		return "dangerous"
	case SeverityLethal:
		return "lethal"
	default:
		return "unknown"
	}
}

// Record — локализованная типизированная опасность.
// Неизменяема после создания; ядро никогда её не мутирует.
type Record struct {
	ID       string   `json:"id"`
	Type     Type     `json:"type"`
	Location vec.Vec3 `json:"location"`
	Radius   int      `json:"radius"`
	Severity Severity `json:"severity"`
}

// String возвращает краткое описание записи
func (r *Record) String() string {
	return fmt.Sprintf("%s/%s@%v r=%d", r.Type, r.Severity, r.Location, r.Radius)
}

// LethalClearance — категорический минимальный клиренс (в ячейках)
// вокруг ограничивающего объёма летальной опасности. Сегмент маршрута,
// входящий в этот радиус, отклоняется, а не штрафуется.
const LethalClearance = 3

// DangerPenaltyPerSecond — штраф стоимости за секунду экспозиции
// в радиусе dangerous-опасности.
const DangerPenaltyPerSecond = 4.0
