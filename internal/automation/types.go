package automation

import (
	"time"

	"github.com/nerrad567/classroom-core/internal/appliance"
)

// ScheduleType selects how a rule's days are interpreted.
type ScheduleType string

const (
	// ScheduleDaily fires every day at the scheduled time.
	ScheduleDaily ScheduleType = "daily"
	// ScheduleWeekly fires only on the listed ISO weekdays.
	ScheduleWeekly ScheduleType = "weekly"
)

// Valid reports whether t is a known schedule type.
func (t ScheduleType) Valid() bool {
	return t == ScheduleDaily || t == ScheduleWeekly
}

// Schedule says when a rule fires, in device wall-clock time.
type Schedule struct {
	Type ScheduleType `json:"type"`

	// Time is "HH:MM" on a 24 hour clock.
	Time string `json:"time"`

	// Days are ISO weekdays, 1 = Monday .. 7 = Sunday. Weekly only.
	Days []int `json:"days,omitempty"`
}

// Rule is a named, scheduled action intent.
type Rule struct {
	ID          string                 `json:"id"`
	Name        string                 `json:"name"`
	Description string                 `json:"description"`
	Enabled     bool                   `json:"enabled"`
	Schedule    Schedule               `json:"schedule"`
	Actions     appliance.ActionIntent `json:"actions"`
	CreatedAt   time.Time              `json:"created_at"`
	UpdatedAt   time.Time              `json:"updated_at"`
}

// DeepCopy creates an independent copy of the rule. The Days slice is the
// only shared memory; ActionIntent is a value type.
func (r *Rule) DeepCopy() *Rule {
	if r == nil {
		return nil
	}
	cpy := *r
	if r.Schedule.Days != nil {
		cpy.Schedule.Days = append([]int(nil), r.Schedule.Days...)
	}
	return &cpy
}

// Command is what the scheduler hands to a Dispatcher: the complete state
// to apply plus where it came from.
type Command struct {
	State    appliance.DeviceState
	Source   string
	RuleID   string
	RuleName string

	// Timestamp is the wall-clock dispatch time (UTC).
	Timestamp time.Time

	// OccurrenceAt is the device minute the rule was due.
	OccurrenceAt time.Time
}

// SourceAutomation tags commands issued by the scheduler.
const SourceAutomation = "automation"

// Firing is one entry of the scheduler's execution log.
type Firing struct {
	RuleID       string    `json:"rule_id"`
	RuleName     string    `json:"rule_name"`
	OccurrenceAt time.Time `json:"occurrence_at"`
	FiredAt      time.Time `json:"fired_at"`
	Dispatched   bool      `json:"dispatched"`
	Error        string    `json:"error,omitempty"`
	State        string    `json:"state"`
}
