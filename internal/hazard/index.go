package hazard

import (
	"sync"

	"github.com/annel0/nav-core/internal/vec"
)

// Index — пространственный индекс опасностей с бакетами по регионам.
// Читатели преобладают (каждое расширение узла планировщика — запрос),
// поэтому бакеты защищены RWMutex, а записи редки (инъекции от боевой
// подсистемы и world-query).
type Index struct {
	mu      sync.RWMutex
	buckets map[vec.Region]map[string]*Record
	byID    map[string]*Record
}

// NewIndex создаёт пустой индекс опасностей
func NewIndex() *Index {
	return &Index{
		buckets: make(map[vec.Region]map[string]*Record),
		byID:    make(map[string]*Record),
	}
}

// regionsCovering возвращает регионы, затронутые сферой опасности.
// Клиренс включается сразу: запрос Near никогда не должен пропустить
// летальную запись, чей ограничивающий объём лежит в соседнем регионе.
func regionsCovering(center vec.Vec3, radius int) []vec.Region {
	reach := radius + LethalClearance
	min := vec.RegionOf(vec.Vec3{X: center.X - reach, Y: center.Y - reach, Z: center.Z - reach})
	max := vec.RegionOf(vec.Vec3{X: center.X + reach, Y: center.Y + reach, Z: center.Z + reach})

	var regions []vec.Region
	for x := min.X; x <= max.X; x++ {
		for y := min.Y; y <= max.Y; y++ {
			for z := min.Z; z <= max.Z; z++ {
				regions = append(regions, vec.Region{X: x, Y: y, Z: z})
			}
		}
	}
	return regions
}

// Upsert добавляет или заменяет запись об опасности
func (idx *Index) Upsert(rec *Record) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if old, ok := idx.byID[rec.ID]; ok {
		idx.removeLocked(old)
	}

	idx.byID[rec.ID] = rec
	for _, region := range regionsCovering(rec.Location, rec.Radius) {
		bucket, ok := idx.buckets[region]
		if !ok {
			bucket = make(map[string]*Record)
			idx.buckets[region] = bucket
		}
		bucket[rec.ID] = rec
	}
}

// Remove удаляет запись по идентификатору
func (idx *Index) Remove(id string) {
	idx.mu.Lock()
	defer idx.mu.Unlock()

	if rec, ok := idx.byID[id]; ok {
		idx.removeLocked(rec)
	}
}

func (idx *Index) removeLocked(rec *Record) {
	delete(idx.byID, rec.ID)
	for _, region := range regionsCovering(rec.Location, rec.Radius) {
		if bucket, ok := idx.buckets[region]; ok {
			delete(bucket, rec.ID)
			if len(bucket) == 0 {
				delete(idx.buckets, region)
			}
		}
	}
}

// Near возвращает записи, чья сфера (с клиренсом) пересекает сферу
// запроса. Соответствует интерфейсу hazards_near(position, radius).
func (idx *Index) Near(pos vec.Vec3, radius int) []*Record {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	seen := make(map[string]struct{})
	var result []*Record

	min := vec.RegionOf(vec.Vec3{X: pos.X - radius, Y: pos.Y - radius, Z: pos.Z - radius})
	max := vec.RegionOf(vec.Vec3{X: pos.X + radius, Y: pos.Y + radius, Z: pos.Z + radius})

	for x := min.X; x <= max.X; x++ {
		for y := min.Y; y <= max.Y; y++ {
			for z := min.Z; z <= max.Z; z++ {
				bucket, ok := idx.buckets[vec.Region{X: x, Y: y, Z: z}]
				if !ok {
					continue
				}
				for id, rec := range bucket {
					if _, dup := seen[id]; dup {
						continue
					}
					reach := float64(rec.Radius + radius)
					if rec.Location.DistanceTo(pos) <= reach {
						seen[id] = struct{}{}
						result = append(result, rec)
					}
				}
			}
		}
	}
	return result
}

// Count возвращает число записей в индексе
func (idx *Index) Count() int {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	return len(idx.byID)
}
