package worldgen

import (
	"math"

	"github.com/aquilax/go-perlin"

	"github.com/annel0/nav-core/internal/terrain"
	"github.com/annel0/nav-core/internal/vec"
)

// Параметры процедурного рельефа
const (
	perlinAlpha   = 2.0
	perlinBeta    = 2.0
	perlinOctaves = 3
	noiseScale    = 0.04
)

// PerlinWorld — процедурный мир на шуме Перлина: холмистый рельеф с
// водоёмами ниже уровня моря. Детерминирован по seed, безопасен для
// конкурентных чтений (генератор не мутирует после создания).
type PerlinWorld struct {
	noise     *perlin.Perlin
	baseY     int
	amplitude int
	seaLevel  int
}

// NewPerlinWorld создаёт процедурный мир. baseY — средний уровень
// поверхности, amplitude — размах рельефа, seaLevel — уровень воды.
func NewPerlinWorld(seed int64, baseY, amplitude, seaLevel int) *PerlinWorld {
	return &PerlinWorld{
		noise:     perlin.NewPerlin(perlinAlpha, perlinBeta, perlinOctaves, seed),
		baseY:     baseY,
		amplitude: amplitude,
		seaLevel:  seaLevel,
	}
}

// SurfaceY возвращает высоту поверхности колонки
func (w *PerlinWorld) SurfaceY(x, z int) int {
	n := w.noise.Noise2D(float64(x)*noiseScale, float64(z)*noiseScale)
	return w.baseY + int(math.Round(n*float64(w.amplitude)))
}

// Sample возвращает классификацию ячейки
func (w *PerlinWorld) Sample(pos vec.Vec3) terrain.Sample {
	h := w.SurfaceY(pos.X, pos.Z)
	switch {
	case pos.Y <= h:
		return terrain.Sample{Surface: terrain.SurfaceSolid}
	case pos.Y <= w.seaLevel:
		return terrain.Sample{Surface: terrain.SurfaceLiquid}
	default:
		return terrain.Sample{Surface: terrain.SurfaceVoid}
	}
}

// SpawnSurface возвращает ближайшую стоячую ячейку поверхности для
// колонки: на суше — поверхность, над водой — nil-признак (false)
func (w *PerlinWorld) SpawnSurface(x, z int) (vec.Vec3, bool) {
	h := w.SurfaceY(x, z)
	if h < w.seaLevel {
		return vec.Vec3{}, false
	}
	return vec.Vec3{X: x, Y: h, Z: z}, true
}
