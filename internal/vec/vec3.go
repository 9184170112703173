package vec

import "math"

// Vec3 представляет трехмерную координату ячейки мира (целочисленную).
type Vec3 struct {
	X int `json:"x"`
	Y int `json:"y"`
	Z int `json:"z"`
}

// Equals проверяет равенство векторов
func (v Vec3) Equals(other Vec3) bool {
	return v.X == other.X && v.Y == other.Y && v.Z == other.Z
}

// Add складывает два вектора
func (v Vec3) Add(other Vec3) Vec3 {
	return Vec3{X: v.X + other.X, Y: v.Y + other.Y, Z: v.Z + other.Z}
}

// Sub вычитает вектор
func (v Vec3) Sub(other Vec3) Vec3 {
	return Vec3{X: v.X - other.X, Y: v.Y - other.Y, Z: v.Z - other.Z}
}

// DistanceTo вычисляет евклидово расстояние до другой ячейки
func (v Vec3) DistanceTo(other Vec3) float64 {
	dx := float64(v.X - other.X)
	dy := float64(v.Y - other.Y)
	dz := float64(v.Z - other.Z)
	return math.Sqrt(dx*dx + dy*dy + dz*dz)
}

// DistanceSq возвращает квадрат расстояния (без извлечения корня).
// Используется при сравнениях, где сам корень не нужен.
func (v Vec3) DistanceSq(other Vec3) int {
	dx := v.X - other.X
	dy := v.Y - other.Y
	dz := v.Z - other.Z
	return dx*dx + dy*dy + dz*dz
}

// Manhattan возвращает манхэттенское расстояние до другой ячейки.
// Это admissible-эвристика для поиска маршрута без диагональных рёбер.
func (v Vec3) Manhattan(other Vec3) int {
	return absInt(v.X-other.X) + absInt(v.Y-other.Y) + absInt(v.Z-other.Z)
}

// Chebyshev возвращает расстояние Чебышёва (максимум по осям).
// Admissible-эвристика при разрешённых диагональных рёбрах.
func (v Vec3) Chebyshev(other Vec3) int {
	return maxInt(absInt(v.X-other.X), maxInt(absInt(v.Y-other.Y), absInt(v.Z-other.Z)))
}

// HorizontalDistance возвращает расстояние в плоскости XZ (без учёта высоты)
func (v Vec3) HorizontalDistance(other Vec3) float64 {
	dx := float64(v.X - other.X)
	dz := float64(v.Z - other.Z)
	return math.Sqrt(dx*dx + dz*dz)
}

// ToVec3f преобразует в вектор с плавающей точкой
func (v Vec3) ToVec3f() Vec3f {
	return Vec3f{X: float64(v.X), Y: float64(v.Y), Z: float64(v.Z)}
}

func absInt(a int) int {
	if a < 0 {
		return -a
	}
	return a
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
