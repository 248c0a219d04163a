package appliance

// Option is a tagged optional value: either Set(v) or Unchanged.
//
// The zero value is Unchanged, so an ActionIntent{} changes nothing. Using a
// tag rather than a reserved sentinel means no legal value can ever be
// mistaken for "leave as is".
type Option[T comparable] struct {
	value T
	set   bool
}

// Set returns an option holding v.
func Set[T comparable](v T) Option[T] {
	return Option[T]{value: v, set: true}
}

// Unchanged returns an empty option.
func Unchanged[T comparable]() Option[T] {
	return Option[T]{}
}

// Get returns the held value and whether one is present.
func (o Option[T]) Get() (T, bool) {
	return o.value, o.set
}

// IsSet reports whether the option holds a value.
func (o Option[T]) IsSet() bool {
	return o.set
}

// OrElse returns the held value, or def when Unchanged.
func (o Option[T]) OrElse(def T) T {
	if o.set {
		return o.value
	}
	return def
}

// ActionIntent is a partial desired appliance configuration.
//
// ACMode and ACLevel only take effect when ACPower is Set(PowerOn); switching
// the unit off leaves them as they were.
type ActionIntent struct {
	LEDs       [LEDCount]Option[bool]
	ACPower    Option[Power]
	ACMode     Option[ACMode]
	ACLevel    Option[ACLevel]
	Multimedia Option[Multimedia]
}

// IsEmpty reports whether the intent would change nothing.
func (a ActionIntent) IsEmpty() bool {
	for _, o := range a.LEDs {
		if o.IsSet() {
			return false
		}
	}
	return !a.ACPower.IsSet() && !a.ACMode.IsSet() && !a.ACLevel.IsSet() && !a.Multimedia.IsSet()
}

// Validate checks that every Set field holds a legal value.
func (a ActionIntent) Validate() error {
	if p, ok := a.ACPower.Get(); ok && !p.Valid() {
		return invalidIntent("air_conditioner.state %q", p)
	}
	if m, ok := a.ACMode.Get(); ok && !m.Valid() {
		return invalidIntent("air_conditioner.mode %q", m)
	}
	if l, ok := a.ACLevel.Get(); ok && !l.Valid() {
		return invalidIntent("air_conditioner.level %d", l)
	}
	if m, ok := a.Multimedia.Get(); ok && !m.Valid() {
		return invalidIntent("multimedia %q", m)
	}
	return nil
}

// AllLEDs returns an LED option array with every channel Set to on.
func AllLEDs(on bool) [LEDCount]Option[bool] {
	var leds [LEDCount]Option[bool]
	for i := range leds {
		leds[i] = Set(on)
	}
	return leds
}
