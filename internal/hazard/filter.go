package hazard

import (
	"fmt"

	"github.com/annel0/nav-core/internal/logging"
	"github.com/annel0/nav-core/internal/vec"
	"github.com/prometheus/client_golang/prometheus"
)

// Decision — результат фильтрации маршрута-кандидата
type Decision uint8

const (
	DecisionAccept  Decision = iota // Маршрут допустим
	DecisionReject                  // Маршрут отклонён окончательно
	DecisionReroute                 // Требуется перепрокладка с ограничением клиренса
)

// String возвращает строковое представление решения
func (d Decision) String() string {
	switch d {
	case DecisionAccept:
		return "accept"
	case DecisionReject:
		return "reject"
	case DecisionReroute:
		return "reroute"
	default:
		return "unknown"
	}
}

// Verdict — вердикт фильтра по маршруту.
// При DecisionReroute MinClearance передаётся обратно планировщику как
// ограничение следующей итерации поиска.
type Verdict struct {
	Decision     Decision
	MinClearance int     // Ячейки клиренса для перепрокладки
	Reason       string  // Человекочитаемая причина
	Penalty      float64 // Суммарный штраф dangerous-экспозиции (информационно)
}

// Engine фильтрует маршруты против известных опасностей
type Engine struct {
	idx *Index
	log *logging.Logger

	rejected  prometheus.Counter
	rerouted  prometheus.Counter
	penalized prometheus.Counter
}

// NewEngine создаёт движок поверх индекса опасностей
func NewEngine(idx *Index) *Engine {
	e := &Engine{
		idx: idx,
		log: logging.GetLoggerManager().MustGetLogger("hazard"),
		rejected: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "hazard",
			Name:      "paths_rejected_total",
			Help:      "Маршруты, отклонённые из-за летальных опасностей.",
		}),
		rerouted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "hazard",
			Name:      "paths_rerouted_total",
			Help:      "Маршруты, отправленные на перепрокладку с ограничением клиренса.",
		}),
		penalized: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "hazard",
			Name:      "segments_penalized_total",
			Help:      "Сегменты, оштрафованные за dangerous-экспозицию.",
		}),
	}
	// Коллизии регистрации допустимы в тестах: регистрируем мягко
	_ = prometheus.Register(e.rejected)
	_ = prometheus.Register(e.rerouted)
	_ = prometheus.Register(e.penalized)
	return e
}

// Index возвращает индекс опасностей движка
func (e *Engine) Index() *Index { return e.idx }

// LethalAt возвращает летальную запись, чей запретный объём (радиус +
// клиренс) накрывает ячейку, если такая есть.
func (e *Engine) LethalAt(pos vec.Vec3) (*Record, bool) {
	for _, rec := range e.idx.Near(pos, LethalClearance) {
		if rec.Severity != SeverityLethal {
			continue
		}
		if rec.Location.DistanceTo(pos) <= float64(rec.Radius+LethalClearance) {
			return rec, true
		}
	}
	return nil, false
}

// BlockedAt проверяет, накрыта ли ячейка запретным объёмом летальной
// записи с дополнительным клиренсом extra сверх категорического.
// Используется поиском при перепрокладке с ужесточённым ограничением.
func (e *Engine) BlockedAt(pos vec.Vec3, extra int) bool {
	for _, rec := range e.idx.Near(pos, LethalClearance+extra) {
		if rec.Severity != SeverityLethal {
			continue
		}
		if rec.Location.DistanceTo(pos) <= float64(rec.Radius+LethalClearance+extra) {
			return true
		}
	}
	return false
}

// Penalty возвращает штраф стоимости для ячейки при заданном времени
// экспозиции (сек). Летальные опасности здесь не участвуют — они
// обрабатываются категорически через LethalAt/Filter.
func (e *Engine) Penalty(pos vec.Vec3, exposure float64) float64 {
	total := 0.0
	for _, rec := range e.idx.Near(pos, 0) {
		if rec.Severity != SeverityDangerous {
			continue
		}
		if rec.Location.DistanceTo(pos) <= float64(rec.Radius) {
			total += DangerPenaltyPerSecond * exposure
		}
	}
	if total > 0 {
		e.penalized.Inc()
	}
	return total
}

// Filter проверяет осевую линию маршрута против известных опасностей.
// allowAdvisory=false превращает advisory-записи в повод для перепрокладки
// (явное требование override), иначе они только логируются.
func (e *Engine) Filter(waypoints []vec.Vec3, segmentSeconds []float64, allowAdvisory bool) Verdict {
	totalPenalty := 0.0

	for i, wp := range waypoints {
		if rec, ok := e.LethalAt(wp); ok {
			e.rerouted.Inc()
			e.log.Warn("Летальная опасность %s в %d ячейках от точки %d маршрута — перепрокладка",
				rec, int(rec.Location.DistanceTo(wp)), i)
			return Verdict{
				Decision:     DecisionReroute,
				MinClearance: rec.Radius + LethalClearance,
				Reason:       fmt.Sprintf("летальная опасность %s у точки %d", rec.Type, i),
			}
		}

		exposure := 0.0
		if i < len(segmentSeconds) {
			exposure = segmentSeconds[i]
		}
		totalPenalty += e.Penalty(wp, exposure)

		for _, rec := range e.idx.Near(wp, 0) {
			if rec.Severity != SeverityAdvisory {
				continue
			}
			if rec.Location.DistanceTo(wp) > float64(rec.Radius) {
				continue
			}
			if allowAdvisory {
				e.log.Info("Advisory-опасность %s на маршруте (точка %d) — допускается", rec, i)
			} else {
				e.rerouted.Inc()
				return Verdict{
					Decision:     DecisionReroute,
					MinClearance: rec.Radius + 1,
					Reason:       fmt.Sprintf("advisory-опасность %s без разрешения на override", rec.Type),
				}
			}
		}
	}

	return Verdict{Decision: DecisionAccept, Penalty: totalPenalty}
}
