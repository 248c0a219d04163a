package automation

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/nerrad567/classroom-core/internal/appliance"
)

// Validation constants.
const (
	maxNameLength     = 100
	maxDescriptionLen = 500
	clockLayout       = "15:04"
)

// ValidateRule checks r and canonicalises its schedule in place: weekly
// days are deduplicated and sorted, daily rules drop their days.
// Returns an error describing the first validation failure found.
func ValidateRule(r *Rule) error {
	if r == nil {
		return ErrInvalidRule
	}
	if err := ValidateName(r.Name); err != nil {
		return err
	}
	if len(r.Description) > maxDescriptionLen {
		return fmt.Errorf("%w: description exceeds %d characters", ErrInvalidRule, maxDescriptionLen)
	}
	if err := validateSchedule(&r.Schedule); err != nil {
		return err
	}
	if err := r.Actions.Validate(); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidRule, err)
	}
	if !changesSomething(r.Actions) {
		return ErrNoActions
	}
	return nil
}

// changesSomething reports whether merging a could alter a state. AC mode
// and level alone do not: they only apply when the intent switches the
// unit on.
func changesSomething(a appliance.ActionIntent) bool {
	for _, o := range a.LEDs {
		if o.IsSet() {
			return true
		}
	}
	return a.ACPower.IsSet() || a.Multimedia.IsSet()
}

// ValidateName checks if a rule name is valid.
func ValidateName(name string) error {
	if strings.TrimSpace(name) == "" {
		return fmt.Errorf("%w: name cannot be empty", ErrInvalidName)
	}
	if len(name) > maxNameLength {
		return fmt.Errorf("%w: name exceeds %d characters", ErrInvalidName, maxNameLength)
	}
	return nil
}

func validateSchedule(s *Schedule) error {
	if !s.Type.Valid() {
		return fmt.Errorf("%w: unknown type %q", ErrInvalidSchedule, s.Type)
	}
	if _, _, err := ParseClock(s.Time); err != nil {
		return err
	}

	if s.Type == ScheduleDaily {
		s.Days = nil
		return nil
	}

	if len(s.Days) == 0 {
		return fmt.Errorf("%w: weekly schedule needs at least one day", ErrInvalidSchedule)
	}
	for _, d := range s.Days {
		if d < 1 || d > 7 {
			return fmt.Errorf("%w: day %d outside 1-7", ErrInvalidSchedule, d)
		}
	}
	days := slices.Clone(s.Days)
	slices.Sort(days)
	s.Days = slices.Compact(days)
	return nil
}

// ParseClock parses a 24 hour "HH:MM" time of day.
func ParseClock(s string) (hour, minute int, err error) {
	t, err := time.Parse(clockLayout, strings.TrimSpace(s))
	if err != nil {
		return 0, 0, fmt.Errorf("%w: time %q is not HH:MM", ErrInvalidSchedule, s)
	}
	return t.Hour(), t.Minute(), nil
}

// GenerateID creates a new UUID for a rule.
func GenerateID() string {
	return uuid.New().String()
}
