package terrain

// CapabilitySet описывает способности передвижения агента.
// Передаётся в планировщик и участвует в ключе кеша маршрутов:
// маршрут, требующий плавания, нельзя выдать агенту без ModeSwim*.
type CapabilitySet struct {
	Modes         ModeMask `json:"modes"`
	MaxFall       int      `json:"max_fall"`        // Предельная безопасная высота падения (ячеек)
	AllowAdvisory bool     `json:"allow_advisory"`  // Разрешить проход через advisory-опасности
	CanBridge     bool     `json:"can_bridge"`      // Умеет строить мосты через провалы/воду
	CanScaffold   bool     `json:"can_scaffold"`    // Умеет возводить подъёмы (лестница/столб)
}

// ModeMask — битовая маска разрешённых режимов
type ModeMask uint16

// Mask возвращает битовую маску одного режима
func Mask(modes ...Mode) ModeMask {
	var mm ModeMask
	for _, m := range modes {
		mm |= 1 << m
	}
	return mm
}

// Has проверяет наличие режима в маске
func (mm ModeMask) Has(m Mode) bool {
	return mm&(1<<m) != 0
}

// DefaultCapabilities возвращает типовой набор пешего агента
func DefaultCapabilities() CapabilitySet {
	return CapabilitySet{
		Modes:         Mask(ModeWalk, ModeSprint, ModeSwimSurface, ModeSwimSubmerged, ModeClimb),
		MaxFall:       3,
		AllowAdvisory: true,
		CanBridge:     true,
		CanScaffold:   true,
	}
}

// Allows проверяет, разрешён ли режим для агента
func (c CapabilitySet) Allows(m Mode) bool {
	return c.Modes.Has(m)
}

// Hash возвращает стабильный хеш способностей для ключей кеша
func (c CapabilitySet) Hash() uint32 {
	h := uint32(c.Modes)
	h = h*31 + uint32(c.MaxFall)
	if c.AllowAdvisory {
		h = h*31 + 1
	} else {
		h = h * 31
	}
	if c.CanBridge {
		h = h*31 + 1
	} else {
		h = h * 31
	}
	if c.CanScaffold {
		h = h*31 + 1
	} else {
		h = h * 31
	}
	return h
}

// MaxSpeed возвращает максимальную базовую скорость среди разрешённых режимов
func (c CapabilitySet) MaxSpeed() float64 {
	max := 0.0
	for m := Mode(0); m < modeCount; m++ {
		if c.Allows(m) {
			if s := BaseSpeed(m); s > max {
				max = s
			}
		}
	}
	return max
}
