// Package pathmem реализует общую память маршрутов: кеш успешных
// маршрутов между парами регионов с рейтингом уверенности,
// персистентностью в BadgerDB и опциональным зеркалом в Redis для
// обмена между процессами.
package pathmem

import (
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/annel0/nav-core/internal/config"
	"github.com/annel0/nav-core/internal/logging"
	"github.com/annel0/nav-core/internal/planner"
	"github.com/annel0/nav-core/internal/terrain"
	"github.com/annel0/nav-core/internal/vec"
)

// Параметры EMA-обновления уверенности. Провал режет сильнее, чем
// успех наращивает: плохой маршрут должен выпадать из выдачи быстро.
const (
	confidenceGain  = 0.25 // Сдвиг к 1.0 при успешном обходе
	confidenceDecay = 0.3  // Относительное падение при провале
	confidenceFloor = 0.2  // Ниже порога маршрут становится deprecated
)

// bucket — кандидаты одной пары регионов. Читатели берут снимок
// атомарно без блокировки; писатели сериализуются мьютексом ведра и
// никогда не меняют опубликованный снимок на месте, только подменяют
// его целиком.
type bucket struct {
	mu   sync.Mutex
	snap atomic.Pointer[[]*planner.Path]
}

func newBucket() *bucket {
	b := &bucket{}
	empty := []*planner.Path{}
	b.snap.Store(&empty)
	return b
}

// Store — память маршрутов. Несвязанные пары регионов не конкурируют:
// у каждой пары собственное ведро с собственным писательским мьютексом,
// общий мьютекс защищает только индексные карты.
type Store struct {
	mu    sync.RWMutex
	pairs map[vec.RegionPair]*bucket
	byID  map[string]vec.RegionPair

	cfg     config.StorageConfig
	log     *logging.Logger
	persist *diskStore   // nil — без персистентности
	mirror  *redisMirror // nil — без зеркала

	hits       prometheus.Counter
	misses     prometheus.Counter
	deprecated prometheus.Counter
	stored     prometheus.Gauge
}

// NewStore создаёт память маршрутов без персистентности
func NewStore(cfg config.StorageConfig) *Store {
	s := &Store{
		pairs: make(map[vec.RegionPair]*bucket),
		byID:  make(map[string]vec.RegionPair),
		cfg:   cfg,
		log:   logging.GetLoggerManager().MustGetLogger("pathmem"),
		hits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "pathmem",
			Name:      "lookup_hits_total",
			Help:      "Запросы пары регионов, вернувшие хотя бы одного кандидата.",
		}),
		misses: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "pathmem",
			Name:      "lookup_misses_total",
			Help:      "Запросы пары регионов без пригодных кандидатов.",
		}),
		deprecated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "pathmem",
			Name:      "paths_deprecated_total",
			Help:      "Маршруты, выведенные из выдачи по провалам обхода.",
		}),
		stored: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: "pathmem",
			Name:      "paths_stored",
			Help:      "Текущее число маршрутов в памяти.",
		}),
	}
	_ = prometheus.Register(s.hits)
	_ = prometheus.Register(s.misses)
	_ = prometheus.Register(s.deprecated)
	_ = prometheus.Register(s.stored)
	return s
}

// OpenPersistent создаёт память маршрутов с BadgerDB-персистентностью
// и, при непустом RedisURL, зеркалом в Redis. Сохранённые маршруты
// загружаются в память сразу.
func OpenPersistent(cfg config.StorageConfig) (*Store, error) {
	s := NewStore(cfg)

	disk, err := openDiskStore(cfg.DataPath)
	if err != nil {
		return nil, err
	}
	s.persist = disk

	if url := cfg.GetRedisURL(); url != "" {
		mirror, err := openRedisMirror(url, cfg.RedisDB)
		if err != nil {
			// Зеркало — ускоритель обмена, не источник истины
			s.log.Warn("Redis-зеркало недоступно, работаем без него: %v", err)
		} else {
			s.mirror = mirror
		}
	}

	paths, err := disk.loadAll()
	if err != nil {
		return nil, err
	}
	for _, p := range paths {
		s.insert(p, false)
	}
	s.log.Info("Память маршрутов загружена: %d маршрутов, %d пар", len(paths), s.pairCount())
	return s, nil
}

// Close закрывает персистентность и зеркало
func (s *Store) Close() error {
	if s.mirror != nil {
		s.mirror.close()
	}
	if s.persist != nil {
		return s.persist.close()
	}
	return nil
}

// bucketFor возвращает ведро пары, создавая его при первом обращении
func (s *Store) bucketFor(pair vec.RegionPair) *bucket {
	s.mu.RLock()
	b := s.pairs[pair]
	s.mu.RUnlock()
	if b != nil {
		return b
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if b = s.pairs[pair]; b == nil {
		b = newBucket()
		s.pairs[pair] = b
	}
	return b
}

// Lookup возвращает кандидатов для пары регионов, совместимых с
// возможностями агента, по убыванию уверенности. Чтение не блокируется
// писателями: снимок кандидатов неизменяем. Deprecated-записи
// исключаются; просроченные возвращаются со статусом Stale — решение
// о ре-валидации принимает планировщик.
func (s *Store) Lookup(pair vec.RegionPair, caps terrain.CapabilitySet) []*planner.Path {
	s.mu.RLock()
	b := s.pairs[pair]
	s.mu.RUnlock()
	if b == nil {
		s.misses.Inc()
		return nil
	}

	now := time.Now()
	var out []*planner.Path
	for _, p := range *b.snap.Load() {
		if p.Status == planner.StatusDeprecated {
			continue
		}
		if p.CapsHash != caps.Hash() {
			continue
		}
		cand := clonePath(p)
		if now.Sub(cand.LastValidatedAt) > s.cfg.StaleAfter {
			cand.Status = planner.StatusStale
		}
		out = append(out, cand)
	}

	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Confidence > out[j].Confidence
	})

	if len(out) > 0 {
		s.hits.Inc()
	} else {
		s.misses.Inc()
	}
	return out
}

// Record добавляет маршрут в память. При переполнении пары вытесняется
// кандидат с наименьшей уверенностью.
func (s *Store) Record(path *planner.Path) {
	s.insert(clonePath(path), true)
}

// insert публикует маршрут в ведре его пары регионов
func (s *Store) insert(p *planner.Path, persist bool) {
	pair := vec.RegionPair{From: p.From, To: p.To}
	b := s.bucketFor(pair)

	b.mu.Lock()
	defer b.mu.Unlock()

	cur := *b.snap.Load()
	next := make([]*planner.Path, 0, len(cur)+1)
	replaced := false
	for _, old := range cur {
		if old.ID == p.ID {
			next = append(next, p)
			replaced = true
		} else {
			next = append(next, old)
		}
	}

	var evicted *planner.Path
	if !replaced {
		next = append(next, p)
		sort.SliceStable(next, func(i, j int) bool {
			return next[i].Confidence > next[j].Confidence
		})
		if max := s.cfg.MaxCandidatesPerPair; max > 0 && len(next) > max {
			evicted = next[len(next)-1]
			next = next[:max]
		}
	}
	b.snap.Store(&next)

	s.mu.Lock()
	s.byID[p.ID] = pair
	if evicted != nil {
		delete(s.byID, evicted.ID)
	}
	s.stored.Set(float64(len(s.byID)))
	s.mu.Unlock()

	if evicted != nil {
		if s.persist != nil && persist {
			if err := s.persist.remove(evicted.ID); err != nil {
				s.log.Warn("Не удалось удалить вытесненный маршрут %s: %v", evicted.ID, err)
			}
		}
		s.log.Debug("Пара %s переполнена, вытеснен маршрут %s (уверенность %.2f)",
			pair, evicted.ID, evicted.Confidence)
	}
	s.flush(p, persist)
}

// flush сохраняет маршрут в персистентность и зеркало (best-effort)
func (s *Store) flush(p *planner.Path, persist bool) {
	if !persist {
		return
	}
	if s.persist != nil {
		if err := s.persist.save(p); err != nil {
			s.log.Error("Не удалось сохранить маршрут %s: %v", p.ID, err)
		}
	}
	if s.mirror != nil {
		s.mirror.publish(p)
	}
}

// Revalidate подтверждает пригодность маршрута: статус Fresh, отметка
// времени проверки обновляется.
func (s *Store) Revalidate(pathID string) {
	s.update(pathID, func(p *planner.Path) {
		p.Status = planner.StatusFresh
		p.LastValidatedAt = time.Now()
	})
}

// Invalidate выводит маршрут из выдачи навсегда. failingWaypoint —
// индекс точки, на которой обход провалился; -1, если провал не
// привязан к конкретной точке.
func (s *Store) Invalidate(pathID string, failingWaypoint int) {
	s.update(pathID, func(p *planner.Path) {
		if p.Status != planner.StatusDeprecated {
			p.Status = planner.StatusDeprecated
			s.deprecated.Inc()
			if failingWaypoint >= 0 {
				s.log.Info("Маршрут %s инвалидирован: провал на точке %d", pathID, failingWaypoint)
			} else {
				s.log.Info("Маршрут %s инвалидирован", pathID)
			}
		}
	})
}

// ReportTraversal обновляет уверенность маршрута по итогу обхода.
// Успех сдвигает уверенность к 1.0, провал режет её мультипликативно;
// падение ниже порога переводит маршрут в deprecated.
func (s *Store) ReportTraversal(pathID string, success bool) {
	s.update(pathID, func(p *planner.Path) {
		if success {
			p.Confidence += confidenceGain * (1.0 - p.Confidence)
			p.Status = planner.StatusFresh
			p.LastValidatedAt = time.Now()
			return
		}
		p.Confidence *= 1.0 - confidenceDecay
		if p.Confidence < confidenceFloor {
			p.Status = planner.StatusDeprecated
			s.deprecated.Inc()
			s.log.Info("Маршрут %s деградировал ниже порога уверенности и выведен из выдачи", pathID)
		}
	})
}

// update применяет мутацию через копию при записи: изменённая запись
// подменяет старую в новом снимке ведра.
func (s *Store) update(pathID string, mutate func(*planner.Path)) {
	s.mu.RLock()
	pair, ok := s.byID[pathID]
	var b *bucket
	if ok {
		b = s.pairs[pair]
	}
	s.mu.RUnlock()
	if b == nil {
		return
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	cur := *b.snap.Load()
	for i, p := range cur {
		if p.ID != pathID {
			continue
		}
		next := make([]*planner.Path, len(cur))
		copy(next, cur)
		changed := clonePath(p)
		mutate(changed)
		next[i] = changed
		b.snap.Store(&next)
		s.flush(changed, true)
		return
	}
}

// Stats — сводка состояния памяти для статусной поверхности
type Stats struct {
	Paths      int `json:"paths"`
	Pairs      int `json:"pairs"`
	Deprecated int `json:"deprecated"`
}

// Snapshot возвращает сводку состояния памяти
func (s *Store) Snapshot() Stats {
	s.mu.RLock()
	buckets := make([]*bucket, 0, len(s.pairs))
	for _, b := range s.pairs {
		buckets = append(buckets, b)
	}
	st := Stats{Paths: len(s.byID), Pairs: len(s.pairs)}
	s.mu.RUnlock()

	for _, b := range buckets {
		for _, p := range *b.snap.Load() {
			if p.Status == planner.StatusDeprecated {
				st.Deprecated++
			}
		}
	}
	return st
}

func (s *Store) pairCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.pairs)
}

// clonePath возвращает глубокую копию маршрута
func clonePath(p *planner.Path) *planner.Path {
	next := *p
	next.Waypoints = append([]planner.Waypoint(nil), p.Waypoints...)
	next.ModeSeq = append([]terrain.Mode(nil), p.ModeSeq...)
	for i := range next.Waypoints {
		if refs := next.Waypoints[i].HazardRefs; refs != nil {
			next.Waypoints[i].HazardRefs = append([]string(nil), refs...)
		}
	}
	return &next
}
