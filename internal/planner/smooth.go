package planner

import "github.com/annel0/nav-core/internal/vec"

// smooth убирает промежуточные коллинеарные точки с одинаковым режимом
// и типом ребра. Начало, конец и любые точки со специальными рёбрами
// (прыжок, мост, подъём) сохраняются: они несут семантику исполнения.
func smooth(waypoints []Waypoint) []Waypoint {
	if len(waypoints) <= 2 {
		return waypoints
	}

	out := make([]Waypoint, 0, len(waypoints))
	out = append(out, waypoints[0])

	for i := 1; i < len(waypoints)-1; i++ {
		prev := out[len(out)-1]
		cur := waypoints[i]
		next := waypoints[i+1]

		if cur.EdgeKind != EdgeWalk || next.EdgeKind != EdgeWalk {
			out = append(out, cur)
			continue
		}
		if cur.Mode != prev.Mode || cur.Mode != next.Mode {
			out = append(out, cur)
			continue
		}
		if len(cur.HazardRefs) > 0 {
			out = append(out, cur)
			continue
		}
		if !collinear(prev.Pos, cur.Pos, next.Pos) {
			out = append(out, cur)
		}
	}

	out = append(out, waypoints[len(waypoints)-1])
	return out
}

// collinear проверяет, лежат ли три точки на одной прямой с равным шагом
func collinear(a, b, c vec.Vec3) bool {
	d1 := b.Sub(a)
	d2 := c.Sub(b)
	return d1.Equals(d2)
}
