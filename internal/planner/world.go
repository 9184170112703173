package planner

import (
	"github.com/annel0/nav-core/internal/terrain"
	"github.com/annel0/nav-core/internal/vec"
)

// WorldQuery — внешний коллаборатор, классифицирующий ячейки мира.
// Ядро не генерирует мир и не мутирует образцы.
type WorldQuery interface {
	// Sample возвращает классификацию ячейки
	Sample(pos vec.Vec3) terrain.Sample
}

// Memory — абстракция памяти маршрутов с точки зрения планировщика.
// Реализуется pathmem.Store; интерфейс объявлен у потребителя, чтобы
// пакеты не зависели друг от друга циклически.
type Memory interface {
	// Lookup возвращает кандидатов для пары регионов (без deprecated),
	// упорядоченных по убыванию уверенности
	Lookup(pair vec.RegionPair, caps terrain.CapabilitySet) []*Path

	// Record добавляет новый маршрут
	Record(path *Path)

	// Revalidate подтверждает пригодность кандидата (обновляет
	// LastValidatedAt и возвращает статус Fresh)
	Revalidate(pathID string)

	// Invalidate помечает кандидата deprecated: он провалил
	// перепроверку против опасностей или обход и не должен
	// предлагаться повторно. failingWaypoint — индекс точки провала,
	// -1 если провал не привязан к точке.
	Invalidate(pathID string, failingWaypoint int)
}
