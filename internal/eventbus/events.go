package eventbus

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Типы событий навигационного ядра
const (
	TypeMissionEvent    = "MissionEvent"    // Смена статуса миссии
	TypeStuckEvent      = "StuckEvent"      // Агент застрял / восстановился
	TypeEscalatedEvent  = "EscalatedEvent"  // Восстановление исчерпано
	TypeAbortEvent      = "AbortEvent"      // Прерывание миссии (односторонний переход)
	TypeRegroupEvent    = "RegroupEvent"    // Запрос сбора в точке регруппировки
	TypeAssistEvent     = "AssistEvent"     // Запрос помощи от застрявшего агента
	TypePathEvent       = "PathEvent"       // Маршрут найден / инвалидирован
	TypeHazardEvent     = "HazardEvent"     // Новая опасность на активном маршруте
)

// NewEnvelope собирает конверт события с заполненными служебными полями.
// payload сериализуется в JSON; ошибки сериализации доменных структур
// здесь невозможны, поэтому игнорируются.
func NewEnvelope(source, eventType, correlationID string, priority int, payload interface{}) *Envelope {
	data, _ := json.Marshal(payload)
	return &Envelope{
		ID:            uuid.NewString(),
		Timestamp:     time.Now().UTC(),
		Source:        source,
		EventType:     eventType,
		Version:       1,
		CorrelationID: correlationID,
		Priority:      priority,
		Payload:       data,
	}
}

// PublishAbort публикует событие прерывания с максимальным приоритетом.
// Abort обязан быть доставлен: приоритет 9 не подлежит дропу в memoryBus.
func PublishAbort(ctx context.Context, bus EventBus, source, missionID string, payload interface{}) error {
	return bus.Publish(ctx, NewEnvelope(source, TypeAbortEvent, missionID, 9, payload))
}
