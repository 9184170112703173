package vec

import "fmt"

// RegionSize — размер грубого региона в ячейках по каждой оси.
// Регион намеренно крупный: ключи памяти маршрутов агрегируются по
// парам регионов, чтобы ограничить объём хранилища и позволить
// переиспользование «почти совпадающих» маршрутов.
const RegionSize = 16

// Region представляет координату грубого региона мира
type Region struct {
	X int `json:"x"`
	Y int `json:"y"`
	Z int `json:"z"`
}

// RegionOf возвращает регион, содержащий указанную ячейку
func RegionOf(v Vec3) Region {
	return Region{
		X: floorDiv(v.X, RegionSize),
		Y: floorDiv(v.Y, RegionSize),
		Z: floorDiv(v.Z, RegionSize),
	}
}

// Center возвращает ячейку в центре региона
func (r Region) Center() Vec3 {
	return Vec3{
		X: r.X*RegionSize + RegionSize/2,
		Y: r.Y*RegionSize + RegionSize/2,
		Z: r.Z*RegionSize + RegionSize/2,
	}
}

// String возвращает строковое представление региона
func (r Region) String() string {
	return fmt.Sprintf("(%d,%d,%d)", r.X, r.Y, r.Z)
}

// RegionPair — ключ памяти маршрутов: пара (регион-источник, регион-назначение)
type RegionPair struct {
	From Region `json:"from"`
	To   Region `json:"to"`
}

// PairOf возвращает ключ пары регионов для двух ячеек
func PairOf(origin, dest Vec3) RegionPair {
	return RegionPair{From: RegionOf(origin), To: RegionOf(dest)}
}

// String возвращает строковое представление пары (используется как ключ BadgerDB/Redis)
func (p RegionPair) String() string {
	return fmt.Sprintf("%s->%s", p.From, p.To)
}

// floorDiv делит с округлением вниз (для отрицательных координат)
func floorDiv(a, b int) int {
	q := a / b
	if a%b != 0 && (a < 0) != (b < 0) {
		q--
	}
	return q
}
