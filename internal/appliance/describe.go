package appliance

import (
	"fmt"
	"strings"
)

// Describe renders a short human summary of the Set fields of a, for example
// "LED1 on, LED2 off, AC on cool level 2, multimedia standby". An empty intent
// is described as "no change".
func Describe(a ActionIntent) string {
	var parts []string

	for i, opt := range a.LEDs {
		if on, ok := opt.Get(); ok {
			parts = append(parts, fmt.Sprintf("LED%d %s", i+1, onOff(on)))
		}
	}

	if p, ok := a.ACPower.Get(); ok {
		ac := "AC " + string(p)
		if p == PowerOn {
			if m, ok := a.ACMode.Get(); ok {
				ac += " " + string(m)
			}
			if l, ok := a.ACLevel.Get(); ok {
				ac += fmt.Sprintf(" level %d", l)
			}
		}
		parts = append(parts, ac)
	}

	if m, ok := a.Multimedia.Get(); ok {
		parts = append(parts, "multimedia "+string(m))
	}

	if len(parts) == 0 {
		return "no change"
	}
	return strings.Join(parts, ", ")
}

func onOff(on bool) string {
	if on {
		return "on"
	}
	return "off"
}
