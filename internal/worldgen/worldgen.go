// Package worldgen предоставляет реализации world-query: процедурный
// мир на шуме Перлина для демонстрации и нагрузочных прогонов, а также
// редактируемая фикстура на карте высот для тестов.
package worldgen

import (
	"sync"

	"github.com/annel0/nav-core/internal/terrain"
	"github.com/annel0/nav-core/internal/vec"
)

// column — ключ колонки мира
type column struct{ X, Z int }

// GridWorld — редактируемый мир на карте высот: каждая колонка имеет
// высоту поверхности (по умолчанию ground), ячейки на поверхности и
// ниже твёрдые, выше — пустота. Точечные переопределения ячеек
// позволяют вырезать траншеи, заливать каналы и ставить лазаемые
// поверхности. Мутации и чтения из разных горутин защищены мьютексом.
type GridWorld struct {
	mu      sync.RWMutex
	ground  int
	heights map[column]int
	cells   map[vec.Vec3]terrain.Sample
}

// NewGridWorld создаёт плоский мир с поверхностью на высоте ground
func NewGridWorld(ground int) *GridWorld {
	return &GridWorld{
		ground:  ground,
		heights: make(map[column]int),
		cells:   make(map[vec.Vec3]terrain.Sample),
	}
}

// Sample возвращает классификацию ячейки
func (w *GridWorld) Sample(pos vec.Vec3) terrain.Sample {
	w.mu.RLock()
	defer w.mu.RUnlock()

	if s, ok := w.cells[pos]; ok {
		return s
	}
	h := w.ground
	if override, ok := w.heights[column{pos.X, pos.Z}]; ok {
		h = override
	}
	if pos.Y <= h {
		return terrain.Sample{Surface: terrain.SurfaceSolid}
	}
	return terrain.Sample{Surface: terrain.SurfaceVoid}
}

// Ground возвращает базовую высоту поверхности
func (w *GridWorld) Ground() int { return w.ground }

// Set переопределяет ячейку целиком
func (w *GridWorld) Set(pos vec.Vec3, s terrain.Sample) {
	w.mu.Lock()
	w.cells[pos] = s
	w.mu.Unlock()
}

// SetVoid превращает ячейку в пустоту
func (w *GridWorld) SetVoid(pos vec.Vec3) {
	w.Set(pos, terrain.Sample{Surface: terrain.SurfaceVoid})
}

// SetLiquid превращает ячейку в жидкость
func (w *GridWorld) SetLiquid(pos vec.Vec3) {
	w.Set(pos, terrain.Sample{Surface: terrain.SurfaceLiquid})
}

// SetClimbable превращает ячейку в лазаемую поверхность
func (w *GridWorld) SetClimbable(pos vec.Vec3) {
	w.Set(pos, terrain.Sample{Surface: terrain.SurfaceClimbable})
}

// SetHeight задаёт высоту поверхности колонки
func (w *GridWorld) SetHeight(x, z, height int) {
	w.mu.Lock()
	w.heights[column{x, z}] = height
	w.mu.Unlock()
}

// SetHazardTag помечает твёрдую ячейку тегом опасности для world-query
func (w *GridWorld) SetHazardTag(pos vec.Vec3, tag string) {
	w.mu.Lock()
	defer w.mu.Unlock()

	s, ok := w.cells[pos]
	if !ok {
		s = terrain.Sample{Surface: terrain.SurfaceSolid}
	}
	s.Hazards = append(s.Hazards, tag)
	w.cells[pos] = s
}

// SetFactor переопределяет множитель режима для твёрдой ячейки
func (w *GridWorld) SetFactor(pos vec.Vec3, mode terrain.Mode, factor float64) {
	w.mu.Lock()
	defer w.mu.Unlock()

	s, ok := w.cells[pos]
	if !ok {
		s = terrain.Sample{Surface: terrain.SurfaceSolid}
	}
	if s.Factors == nil {
		s.Factors = make(map[terrain.Mode]float64)
	}
	s.Factors[mode] = factor
	w.cells[pos] = s
}

// CarveTrench вырезает пустотную траншею: колонки x..x+width-1 на всех
// z из [zMin, zMax] опускаются на depth ячеек ниже базовой поверхности
func (w *GridWorld) CarveTrench(x, width, zMin, zMax, depth int) {
	for dx := 0; dx < width; dx++ {
		for z := zMin; z <= zMax; z++ {
			w.SetHeight(x+dx, z, w.ground-depth)
		}
	}
}

// FillCanal заливает жидкостью канал шириной width поперёк оси X
func (w *GridWorld) FillCanal(x, width, zMin, zMax int) {
	for dx := 0; dx < width; dx++ {
		for z := zMin; z <= zMax; z++ {
			w.SetLiquid(vec.Vec3{X: x + dx, Y: w.ground, Z: z})
		}
	}
}

// RaiseWall поднимает стену высотой height поперёк оси X
func (w *GridWorld) RaiseWall(x, zMin, zMax, height int) {
	for z := zMin; z <= zMax; z++ {
		w.SetHeight(x, z, w.ground+height)
	}
}

// RaisePlateau поднимает прямоугольное плато на height ячеек
func (w *GridWorld) RaisePlateau(xMin, xMax, zMin, zMax, height int) {
	for x := xMin; x <= xMax; x++ {
		for z := zMin; z <= zMax; z++ {
			w.SetHeight(x, z, w.ground+height)
		}
	}
}
