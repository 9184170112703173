// Package naverr содержит таксономию ошибок навигационного ядра.
//
// Политика распространения: локальные ограниченные повторы исчерпываются
// до поднятия ошибки наверх; после поднятия решение (abort / substitute /
// re-plan) принимает контроллер миссии, а не компонент-источник.
package naverr

import (
	"errors"
	"fmt"
)

// Ошибки-сентинелы навигационного ядра
var (
	// ErrNoPathFound — жизнеспособный маршрут не найден при текущих
	// опасностях и способностях агента. Наверх, без автоповтора.
	ErrNoPathFound = errors.New("маршрут не найден")

	// ErrStuckTimeout — агент не продвигается; запускает локальную
	// лестницу восстановления.
	ErrStuckTimeout = errors.New("агент застрял: прогресс отсутствует")

	// ErrHazardCritical — летальная опасность обнаружена на активном
	// маршруте; требуется немедленная перепрокладка.
	ErrHazardCritical = errors.New("критическая опасность на маршруте")

	// ErrFormationBroken — последователь невосстановимо отстал;
	// запускает сбор в точке регруппировки.
	ErrFormationBroken = errors.New("строй нарушен")

	// ErrAgentEscalated — лестница восстановления исчерпана;
	// решение за контроллером миссии.
	ErrAgentEscalated = errors.New("восстановление агента исчерпано")
)

// ReasonCode — машинно-читаемый код причины для abort/escalation
type ReasonCode string

const (
	ReasonNoPath         ReasonCode = "NO_PATH_FOUND"
	ReasonStuckTimeout   ReasonCode = "STUCK_TIMEOUT"
	ReasonHazardCritical ReasonCode = "HAZARD_CRITICAL"
	ReasonFormation      ReasonCode = "FORMATION_BROKEN"
	ReasonEscalated      ReasonCode = "AGENT_ESCALATED"
	ReasonExternalAbort  ReasonCode = "EXTERNAL_ABORT"
)

// Reason сопровождает каждый abort и каждую эскалацию: код причины и
// идентификатор последнего успешного маршрута, чтобы диагностика была
// возможна без повторного поиска.
type Reason struct {
	Code       ReasonCode `json:"code"`
	AgentID    string     `json:"agent_id,omitempty"`
	LastPathID string     `json:"last_path_id,omitempty"`
	Detail     string     `json:"detail,omitempty"`
}

// Error реализует интерфейс error
func (r *Reason) Error() string {
	if r.AgentID != "" {
		return fmt.Sprintf("%s (agent=%s, last_path=%s): %s", r.Code, r.AgentID, r.LastPathID, r.Detail)
	}
	return fmt.Sprintf("%s: %s", r.Code, r.Detail)
}

// NewReason создаёт причину с кодом и деталями
func NewReason(code ReasonCode, agentID, lastPathID, detail string) *Reason {
	return &Reason{Code: code, AgentID: agentID, LastPathID: lastPathID, Detail: detail}
}
