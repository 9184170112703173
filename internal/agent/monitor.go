package agent

import "github.com/annel0/nav-core/internal/vec"

// ProgressMonitor следит за смещением агента между тиками.
// Опорная точка сдвигается только при смещении не меньше эпсилона:
// медленный дрейф и микро-осцилляции накапливаются как отсутствие
// прогресса, а не обнуляют счётчик.
type ProgressMonitor struct {
	epsilon float64
	window  int

	anchor      vec.Vec3f
	initialized bool
	stillTicks  int
	moved       bool
}

// NewProgressMonitor создаёт монитор с порогом смещения epsilon
// и окном подтверждения window тиков
func NewProgressMonitor(epsilon float64, window int) *ProgressMonitor {
	return &ProgressMonitor{epsilon: epsilon, window: window}
}

// Observe фиксирует наблюдаемую позицию за тик
func (m *ProgressMonitor) Observe(pos vec.Vec3f) {
	if !m.initialized {
		m.anchor = pos
		m.initialized = true
		return
	}
	if pos.DistanceTo(m.anchor) < m.epsilon {
		m.stillTicks++
		return
	}
	m.anchor = pos
	m.stillTicks = 0
	m.moved = true
}

// Progressed возвращает true, если с последнего сброса было хотя бы
// одно смещение не меньше эпсилона
func (m *ProgressMonitor) Progressed() bool {
	return m.moved
}

// Stalled возвращает true, если агент простоял не меньше окна тиков
func (m *ProgressMonitor) Stalled() bool {
	return m.initialized && m.stillTicks >= m.window
}

// StillTicks возвращает число тиков без прогресса
func (m *ProgressMonitor) StillTicks() int {
	return m.stillTicks
}

// ClearProgress очищает флаг прогресса, сохраняя опорную точку.
// Используется восстановлением: смещение меряется от места застревания.
func (m *ProgressMonitor) ClearProgress() {
	m.moved = false
}

// Reset полностью сбрасывает монитор (назначение нового маршрута)
func (m *ProgressMonitor) Reset() {
	m.initialized = false
	m.stillTicks = 0
	m.moved = false
}
