package vec

import "math"

// Vec3f представляет трехмерный вектор с плавающими координатами.
// Используется для производных величин: дистанций, направлений взгляда,
// дельт прогресса. Позиции ячеек всегда целочисленные (Vec3).
type Vec3f struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// ToVec3 преобразует в целочисленные координаты (с отбрасыванием дробной части)
func (v Vec3f) ToVec3() Vec3 {
	return Vec3{X: int(v.X), Y: int(v.Y), Z: int(v.Z)}
}

// Cell возвращает ячейку, содержащую точку (округление к полу)
func (v Vec3f) Cell() Vec3 {
	return Vec3{
		X: int(math.Floor(v.X)),
		Y: int(math.Floor(v.Y)),
		Z: int(math.Floor(v.Z)),
	}
}

// Add складывает два вектора
func (v Vec3f) Add(other Vec3f) Vec3f {
	return Vec3f{X: v.X + other.X, Y: v.Y + other.Y, Z: v.Z + other.Z}
}

// Sub вычитает вектор
func (v Vec3f) Sub(other Vec3f) Vec3f {
	return Vec3f{X: v.X - other.X, Y: v.Y - other.Y, Z: v.Z - other.Z}
}

// Mul умножает вектор на скаляр
func (v Vec3f) Mul(scalar float64) Vec3f {
	return Vec3f{X: v.X * scalar, Y: v.Y * scalar, Z: v.Z * scalar}
}

// Length возвращает длину вектора
func (v Vec3f) Length() float64 {
	return math.Sqrt(v.X*v.X + v.Y*v.Y + v.Z*v.Z)
}

// Normalized возвращает нормализованный вектор.
// Нулевой вектор остаётся нулевым.
func (v Vec3f) Normalized() Vec3f {
	length := v.Length()
	if length == 0 {
		return Vec3f{}
	}
	return Vec3f{X: v.X / length, Y: v.Y / length, Z: v.Z / length}
}

// DistanceTo вычисляет расстояние до другой точки
func (v Vec3f) DistanceTo(other Vec3f) float64 {
	return v.Sub(other).Length()
}

// Facing описывает направление взгляда агента в точке маршрута.
// Хранится нормализованным; неизменяемо после записи в Waypoint.
type Facing = Vec3f

// FacingBetween возвращает направление взгляда из from в to
func FacingBetween(from, to Vec3) Facing {
	return to.ToVec3f().Sub(from.ToVec3f()).Normalized()
}
