package eventbus

import "context"

var globalBus EventBus

// Init устанавливает глобальную шину процесса. Вызывается один раз
// при старте; компоненты без собственной шины публикуют через неё.
func Init(bus EventBus) { globalBus = bus }

// Publish отправляет событие в глобальную шину. До инициализации
// события молча отбрасываются: ядро работает и без шины.
func Publish(ctx context.Context, ev *Envelope) error {
	if globalBus == nil {
		return nil
	}
	return globalBus.Publish(ctx, ev)
}
