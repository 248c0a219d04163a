package appliance

// Fixed power draws in watts.
const (
	multimediaOnWatts      = 450.0
	multimediaStandbyWatts = 0.5
	ledOnWatts             = 100.0
)

// acWatts is the air conditioner draw by mode and level.
var acWatts = map[ACMode]map[ACLevel]float64{
	ModeCool: {1: 800, 2: 3000, 3: 6200},
	ModeHeat: {1: 800, 2: 4000, 3: 8400},
}

// ComputePower returns the instantaneous draw of s in watts.
//
// The result depends only on s and is used both for live readings and for
// recomputing historical aggregates from stored states, so it must stay
// stable across releases. An unknown AC mode or level contributes 0 W.
func ComputePower(s DeviceState) float64 {
	total := 0.0

	switch s.Multimedia {
	case MultimediaOn:
		total += multimediaOnWatts
	case MultimediaStandby:
		total += multimediaStandbyWatts
	}

	for _, on := range s.LEDs {
		if on {
			total += ledOnWatts
		}
	}

	if s.AC.Power == PowerOn {
		total += acWatts[s.AC.Mode][s.AC.Level]
	}

	return total
}
