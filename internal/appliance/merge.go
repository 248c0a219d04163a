package appliance

// Merge applies intent on top of current and returns a complete, valid state.
//
// Merge never fails. current is normalized first so a corrupt or partially
// initialised snapshot cannot leak into a published command. Rules:
//
//   - LEDs: each Set channel is overwritten, Unchanged channels keep their value.
//   - AC power Set(on): power on, mode and level from the intent or else the
//     current values.
//   - AC power Set(off): power off, mode and level kept for the next power-on.
//   - AC power Unchanged: the AC is left exactly as it was.
//   - Multimedia: overwritten when Set.
//
// This is the only merge used by direct control, semantic commands and the
// scheduler.
func Merge(current DeviceState, intent ActionIntent) DeviceState {
	next := Normalize(current)

	for i, opt := range intent.LEDs {
		if on, ok := opt.Get(); ok {
			next.LEDs[i] = on
		}
	}

	if p, ok := intent.ACPower.Get(); ok {
		switch p {
		case PowerOn:
			next.AC.Power = PowerOn
			next.AC.Mode = intent.ACMode.OrElse(next.AC.Mode)
			next.AC.Level = intent.ACLevel.OrElse(next.AC.Level)
		case PowerOff:
			next.AC.Power = PowerOff
		}
	}

	if m, ok := intent.Multimedia.Get(); ok {
		next.Multimedia = m
	}

	// An intent built in code may carry an out-of-range Set value.
	return Normalize(next)
}
