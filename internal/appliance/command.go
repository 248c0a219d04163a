package appliance

import (
	"fmt"
	"strings"
)

// DeviceType selects the appliance a Command targets.
type DeviceType string

const (
	DeviceLED            DeviceType = "led"
	DeviceAirConditioner DeviceType = "air_conditioner"
	DeviceMultimedia     DeviceType = "multimedia"
	DeviceAll            DeviceType = "all"
)

// Action is a semantic operation on a device.
type Action string

const (
	ActionOn        Action = "on"
	ActionOff       Action = "off"
	ActionStandby   Action = "standby"
	ActionLevelUp   Action = "level_up"
	ActionLevelDown Action = "level_down"
)

// Command is a semantic control request such as "turn LED 2 off" or
// "AC one level up". Zero-valued parameters mean "not given".
type Command struct {
	Device DeviceType `json:"device_type"`
	Action Action     `json:"action"`

	// LEDs lists 1-based channel numbers. Empty means every channel.
	LEDs []int `json:"led_numbers,omitempty"`

	Mode         ACMode  `json:"mode,omitempty"`
	Level        ACLevel `json:"level,omitempty"`
	TurnOffIfMin bool    `json:"turn_off_if_min,omitempty"`
}

// ApplyCommand applies cmd to current and returns the resulting state with a
// short description of what changed.
//
// Plain on/off commands are translated to an ActionIntent and go through
// Merge. Level stepping reads the current level, so it is computed here and
// then merged as an absolute intent.
func ApplyCommand(current DeviceState, cmd Command) (DeviceState, string, error) {
	base := Normalize(current)

	switch cmd.Device {
	case DeviceLED:
		return applyLED(base, cmd)
	case DeviceAirConditioner:
		return applyAC(base, cmd)
	case DeviceMultimedia:
		return applyMultimedia(base, cmd)
	case DeviceAll:
		return applyAll(base, cmd)
	default:
		return base, "", fmt.Errorf("%w: device type %q", ErrUnsupportedCommand, cmd.Device)
	}
}

func applyLED(base DeviceState, cmd Command) (DeviceState, string, error) {
	var on bool
	switch cmd.Action {
	case ActionOn:
		on = true
	case ActionOff:
		on = false
	default:
		return base, "", unsupportedAction(cmd)
	}

	numbers := cmd.LEDs
	if len(numbers) == 0 {
		numbers = []int{1, 2, 3, 4}
	}

	var intent ActionIntent
	for _, n := range numbers {
		if n < 1 || n > LEDCount {
			return base, "", fmt.Errorf("%w: LED number %d out of range 1..%d", ErrInvalidCommand, n, LEDCount)
		}
		intent.LEDs[n-1] = Set(on)
	}

	return Merge(base, intent), Describe(intent), nil
}

func applyAC(base DeviceState, cmd Command) (DeviceState, string, error) {
	if cmd.Mode != "" && !cmd.Mode.Valid() {
		return base, "", fmt.Errorf("%w: AC mode %q", ErrInvalidCommand, cmd.Mode)
	}
	if cmd.Level != 0 && !cmd.Level.Valid() {
		return base, "", fmt.Errorf("%w: AC level %d", ErrInvalidCommand, cmd.Level)
	}

	intent := ActionIntent{}
	switch cmd.Action {
	case ActionOn:
		intent.ACPower = Set(PowerOn)
		if cmd.Mode != "" {
			intent.ACMode = Set(cmd.Mode)
		}
		if cmd.Level != 0 {
			intent.ACLevel = Set(cmd.Level)
		}
	case ActionOff:
		intent.ACPower = Set(PowerOff)
	case ActionLevelUp:
		level := min(base.AC.Level+1, MaxLevel)
		intent.ACPower = Set(PowerOn)
		intent.ACLevel = Set(level)
		next := Merge(base, intent)
		return next, fmt.Sprintf("AC level raised to %d", level), nil
	case ActionLevelDown:
		level := max(base.AC.Level-1, MinLevel)
		// Lowering the level while off adjusts the stored level only.
		next := base
		next.AC.Level = level
		if level == MinLevel && cmd.TurnOffIfMin {
			next.AC.Power = PowerOff
			return next, "AC at minimum level, switched off", nil
		}
		return next, fmt.Sprintf("AC level lowered to %d", level), nil
	default:
		return base, "", unsupportedAction(cmd)
	}

	return Merge(base, intent), Describe(intent), nil
}

func applyMultimedia(base DeviceState, cmd Command) (DeviceState, string, error) {
	var m Multimedia
	switch cmd.Action {
	case ActionOn:
		m = MultimediaOn
	case ActionOff:
		m = MultimediaOff
	case ActionStandby:
		m = MultimediaStandby
	default:
		return base, "", unsupportedAction(cmd)
	}
	intent := ActionIntent{Multimedia: Set(m)}
	return Merge(base, intent), Describe(intent), nil
}

func applyAll(base DeviceState, cmd Command) (DeviceState, string, error) {
	var intent ActionIntent
	switch cmd.Action {
	case ActionOn:
		intent = ActionIntent{
			LEDs:       AllLEDs(true),
			ACPower:    Set(PowerOn),
			Multimedia: Set(MultimediaOn),
		}
	case ActionOff:
		intent = ActionIntent{
			LEDs:       AllLEDs(false),
			ACPower:    Set(PowerOff),
			Multimedia: Set(MultimediaOff),
		}
	default:
		return base, "", unsupportedAction(cmd)
	}
	return Merge(base, intent), "all appliances " + string(cmd.Action), nil
}

func unsupportedAction(cmd Command) error {
	return fmt.Errorf("%w: action %q for %s", ErrUnsupportedCommand, cmd.Action, cmd.Device)
}

// ParseDeviceType maps a free-form device name onto a DeviceType.
func ParseDeviceType(s string) (DeviceType, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "led", "leds", "light", "lights":
		return DeviceLED, true
	case "air_conditioner", "ac", "aircon":
		return DeviceAirConditioner, true
	case "multimedia", "media", "projector":
		return DeviceMultimedia, true
	case "all":
		return DeviceAll, true
	}
	return "", false
}
