package appliance

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Wire keys shared by states and intents.
const (
	keyLED            = "led"
	keyAirConditioner = "air_conditioner"
	keyMultimedia     = "multimedia"
)

// wireAC is the air conditioner object as the firmware publishes it.
type wireAC struct {
	State Power   `json:"state"`
	Mode  ACMode  `json:"mode"`
	Level ACLevel `json:"level"`
}

type wireState struct {
	LED            map[LEDChannel]int `json:"led"`
	AirConditioner wireAC             `json:"air_conditioner"`
	Multimedia     Multimedia         `json:"multimedia"`
}

// rawAC and rawState keep every leaf undecoded so each one can be
// interpreted on its own.
type rawAC struct {
	State json.RawMessage `json:"state"`
	Mode  json.RawMessage `json:"mode"`
	Level json.RawMessage `json:"level"`
}

type rawState struct {
	LED            map[string]json.RawMessage `json:"led"`
	AirConditioner *rawAC                     `json:"air_conditioner"`
	Multimedia     json.RawMessage            `json:"multimedia"`
}

// MarshalJSON encodes s in the firmware wire form. LEDs are written as 0/1.
func (s DeviceState) MarshalJSON() ([]byte, error) {
	w := wireState{
		LED: make(map[LEDChannel]int, LEDCount),
		AirConditioner: wireAC{
			State: s.AC.Power,
			Mode:  s.AC.Mode,
			Level: s.AC.Level,
		},
		Multimedia: s.Multimedia,
	}
	for i, ch := range LEDChannels() {
		if s.LEDs[i] {
			w.LED[ch] = 1
		} else {
			w.LED[ch] = 0
		}
	}
	return json.Marshal(w)
}

// UnmarshalJSON decodes a device-reported state.
//
// Decoding is lenient: unknown LED keys are ignored and missing or
// unrecognised leaves are left zero, for Normalize to repair. Only JSON that
// does not have the expected shape is an error.
func (s *DeviceState) UnmarshalJSON(data []byte) error {
	var raw rawState
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decoding device state: %w", err)
	}

	var out DeviceState
	for key, v := range raw.LED {
		if i, ok := ledIndex(LEDChannel(strings.ToLower(key))); ok {
			out.LEDs[i] = looseBool(v)
		}
	}
	if raw.AirConditioner != nil {
		out.AC.Power = Power(looseString(raw.AirConditioner.State))
		out.AC.Mode = ACMode(looseString(raw.AirConditioner.Mode))
		out.AC.Level = looseLevel(raw.AirConditioner.Level)
	}
	out.Multimedia = Multimedia(looseString(raw.Multimedia))

	*s = out
	return nil
}

// looseBool reads 1/0, true/false or "on"/"off" style values. Anything
// else is off.
func looseBool(raw json.RawMessage) bool {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return false
	}
	switch x := v.(type) {
	case bool:
		return x
	case float64:
		return x != 0
	case string:
		switch strings.ToLower(strings.TrimSpace(x)) {
		case "1", "on", "true":
			return true
		}
	}
	return false
}

func looseString(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return strings.ToLower(strings.TrimSpace(s))
}

func looseLevel(raw json.RawMessage) ACLevel {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return 0
	}
	switch x := v.(type) {
	case float64:
		if x == float64(int(x)) {
			return ACLevel(int(x))
		}
	case string:
		if n, err := strconv.Atoi(strings.TrimSpace(x)); err == nil {
			return ACLevel(n)
		}
	}
	return 0
}

// MarshalJSON encodes only the Set fields of a. An empty intent encodes as {}.
func (a ActionIntent) MarshalJSON() ([]byte, error) {
	out := make(map[string]any, 3)

	leds := make(map[LEDChannel]int)
	for i, ch := range LEDChannels() {
		if on, ok := a.LEDs[i].Get(); ok {
			if on {
				leds[ch] = 1
			} else {
				leds[ch] = 0
			}
		}
	}
	if len(leds) > 0 {
		out[keyLED] = leds
	}

	ac := make(map[string]any)
	if p, ok := a.ACPower.Get(); ok {
		ac["state"] = p
	}
	if m, ok := a.ACMode.Get(); ok {
		ac["mode"] = m
	}
	if l, ok := a.ACLevel.Get(); ok {
		ac["level"] = l
	}
	if len(ac) > 0 {
		out[keyAirConditioner] = ac
	}

	if m, ok := a.Multimedia.Get(); ok {
		out[keyMultimedia] = m
	}
	return json.Marshal(out)
}

// UnmarshalJSON decodes an intent strictly. Absent leaves, null,
// "unchanged", "no-change" and -1 decode to Unchanged; any other value must
// be legal for its field or ErrInvalidIntent is returned.
func (a *ActionIntent) UnmarshalJSON(data []byte) error {
	var raw rawState
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&raw); err != nil {
		return invalidIntent("%v", err)
	}

	var out ActionIntent
	for key, v := range raw.LED {
		i, ok := ledIndex(LEDChannel(strings.ToLower(key)))
		if !ok {
			return invalidIntent("unknown LED channel %q", key)
		}
		opt, err := decodeLEDOption(v)
		if err != nil {
			return invalidIntent("led.%s: %v", key, err)
		}
		out.LEDs[i] = opt
	}

	if ac := raw.AirConditioner; ac != nil {
		var err error
		if out.ACPower, err = decodeEnum(ac.State, Power.Valid); err != nil {
			return invalidIntent("air_conditioner.state: %v", err)
		}
		if out.ACMode, err = decodeEnum(ac.Mode, ACMode.Valid); err != nil {
			return invalidIntent("air_conditioner.mode: %v", err)
		}
		if out.ACLevel, err = decodeLevelOption(ac.Level); err != nil {
			return invalidIntent("air_conditioner.level: %v", err)
		}
	}

	var err error
	if out.Multimedia, err = decodeEnum(raw.Multimedia, Multimedia.Valid); err != nil {
		return invalidIntent("multimedia: %v", err)
	}

	*a = out
	return nil
}

// isUnchanged reports whether raw is one of the "leave as is" markers.
func isUnchanged(raw json.RawMessage) bool {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) || bytes.Equal(trimmed, []byte("-1")) {
		return true
	}
	var s string
	if json.Unmarshal(trimmed, &s) == nil {
		switch strings.ToLower(strings.TrimSpace(s)) {
		case "unchanged", "no-change":
			return true
		}
	}
	return false
}

func decodeLEDOption(raw json.RawMessage) (Option[bool], error) {
	if isUnchanged(raw) {
		return Unchanged[bool](), nil
	}
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		return Option[bool]{}, err
	}
	switch x := v.(type) {
	case bool:
		return Set(x), nil
	case float64:
		switch x {
		case 0:
			return Set(false), nil
		case 1:
			return Set(true), nil
		}
	case string:
		switch strings.ToLower(strings.TrimSpace(x)) {
		case "on", "1", "true":
			return Set(true), nil
		case "off", "0", "false":
			return Set(false), nil
		}
	}
	return Option[bool]{}, fmt.Errorf("unrecognised value %s", bytes.TrimSpace(raw))
}

func decodeEnum[T ~string](raw json.RawMessage, valid func(T) bool) (Option[T], error) {
	if isUnchanged(raw) {
		return Unchanged[T](), nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return Option[T]{}, fmt.Errorf("expected a string, got %s", bytes.TrimSpace(raw))
	}
	v := T(strings.ToLower(strings.TrimSpace(s)))
	if !valid(v) {
		return Option[T]{}, fmt.Errorf("unrecognised value %q", s)
	}
	return Set(v), nil
}

func decodeLevelOption(raw json.RawMessage) (Option[ACLevel], error) {
	if isUnchanged(raw) {
		return Unchanged[ACLevel](), nil
	}
	l := looseLevel(raw)
	if !l.Valid() {
		return Option[ACLevel]{}, fmt.Errorf("level must be %d..%d, got %s", MinLevel, MaxLevel, bytes.TrimSpace(raw))
	}
	return Set(l), nil
}

func invalidIntent(format string, args ...any) error {
	return fmt.Errorf("%w: "+format, append([]any{ErrInvalidIntent}, args...)...)
}
