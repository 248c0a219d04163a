package appliance

import "fmt"

// LEDCount is the number of lighting channels in the classroom.
const LEDCount = 4

// LEDChannel names a lighting channel on the wire ("led1".."led4").
type LEDChannel string

// Lighting channels.
const (
	LED1 LEDChannel = "led1"
	LED2 LEDChannel = "led2"
	LED3 LEDChannel = "led3"
	LED4 LEDChannel = "led4"
)

// LEDChannels returns the channels in index order.
func LEDChannels() [LEDCount]LEDChannel {
	return [LEDCount]LEDChannel{LED1, LED2, LED3, LED4}
}

// ledIndex maps a wire channel name to its array index.
func ledIndex(ch LEDChannel) (int, bool) {
	for i, c := range LEDChannels() {
		if c == ch {
			return i, true
		}
	}
	return 0, false
}

// Power is an on/off switch position.
type Power string

const (
	PowerOn  Power = "on"
	PowerOff Power = "off"
)

// Valid reports whether p is a legal switch position.
func (p Power) Valid() bool {
	return p == PowerOn || p == PowerOff
}

// ACMode is the air conditioner operating mode.
type ACMode string

const (
	ModeCool ACMode = "cool"
	ModeHeat ACMode = "heat"
)

// Valid reports whether m is a known mode.
func (m ACMode) Valid() bool {
	return m == ModeCool || m == ModeHeat
}

// ACLevel is the air conditioner fan/power level.
type ACLevel int

// Level bounds.
const (
	MinLevel ACLevel = 1
	MaxLevel ACLevel = 3
)

// Valid reports whether l is within MinLevel..MaxLevel.
func (l ACLevel) Valid() bool {
	return l >= MinLevel && l <= MaxLevel
}

// Multimedia is the multimedia unit's power state.
type Multimedia string

const (
	MultimediaOn      Multimedia = "on"
	MultimediaOff     Multimedia = "off"
	MultimediaStandby Multimedia = "standby"
)

// Valid reports whether m is a known multimedia state.
func (m Multimedia) Valid() bool {
	return m == MultimediaOn || m == MultimediaOff || m == MultimediaStandby
}

// ACState is the air conditioner configuration. Mode and Level are retained
// while the unit is off so that switching it back on resumes them.
type ACState struct {
	Power Power
	Mode  ACMode
	Level ACLevel
}

// DeviceState is the complete appliance configuration for the classroom.
//
// DeviceState is a comparable value type; copies never share memory.
type DeviceState struct {
	LEDs       [LEDCount]bool
	AC         ACState
	Multimedia Multimedia
}

// DefaultState returns the all-off state used whenever no observed state exists.
func DefaultState() DeviceState {
	return DeviceState{
		AC: ACState{
			Power: PowerOff,
			Mode:  ModeCool,
			Level: MinLevel,
		},
		Multimedia: MultimediaOff,
	}
}

// Valid reports whether every field of s is present and in range.
func (s DeviceState) Valid() bool {
	return s.AC.Power.Valid() && s.AC.Mode.Valid() && s.AC.Level.Valid() && s.Multimedia.Valid()
}

// Normalize returns s with every missing or out-of-range field replaced by
// its all-off default. Valid fields are left untouched.
func Normalize(s DeviceState) DeviceState {
	def := DefaultState()
	if !s.AC.Power.Valid() {
		s.AC.Power = def.AC.Power
	}
	if !s.AC.Mode.Valid() {
		s.AC.Mode = def.AC.Mode
	}
	if !s.AC.Level.Valid() {
		s.AC.Level = def.AC.Level
	}
	if !s.Multimedia.Valid() {
		s.Multimedia = def.Multimedia
	}
	return s
}

// LEDsOn returns the number of lighting channels switched on.
func (s DeviceState) LEDsOn() int {
	n := 0
	for _, on := range s.LEDs {
		if on {
			n++
		}
	}
	return n
}

// String renders a compact single-line summary, used in logs.
func (s DeviceState) String() string {
	leds := ""
	for _, on := range s.LEDs {
		if on {
			leds += "1"
		} else {
			leds += "0"
		}
	}
	return fmt.Sprintf("led=%s ac=%s/%s/%d multimedia=%s", leds, s.AC.Power, s.AC.Mode, s.AC.Level, s.Multimedia)
}
