package automation

import "time"

// DefaultLedgerRetention is how long fired entries are remembered.
const DefaultLedgerRetention = 24 * time.Hour

// Ledger remembers the last occurrence each rule fired for, so catch-up
// walks and repeated device times never fire a rule twice for the same
// minute. It is in-memory only and not safe for concurrent use; the
// Scheduler serialises access.
type Ledger struct {
	fired     map[string]time.Time
	newest    time.Time
	retention time.Duration
}

// NewLedger creates an empty ledger. A non-positive retention uses
// DefaultLedgerRetention.
func NewLedger(retention time.Duration) *Ledger {
	if retention <= 0 {
		retention = DefaultLedgerRetention
	}
	return &Ledger{
		fired:     make(map[string]time.Time),
		retention: retention,
	}
}

// RecentlyFired reports whether ruleID last fired for the same date, hour
// and minute as t.
func (l *Ledger) RecentlyFired(ruleID string, t time.Time) bool {
	last, ok := l.fired[ruleID]
	if !ok {
		return false
	}
	return sameMinute(last, t)
}

// Mark records that ruleID fired for t, then drops entries strictly older
// than the retention window before the newest recorded instant.
func (l *Ledger) Mark(ruleID string, t time.Time) {
	l.fired[ruleID] = t
	if t.After(l.newest) {
		l.newest = t
	}

	cutoff := l.newest.Add(-l.retention)
	for id, at := range l.fired {
		if at.Before(cutoff) {
			delete(l.fired, id)
		}
	}
}

// Last returns the occurrence ruleID last fired for.
func (l *Ledger) Last(ruleID string) (time.Time, bool) {
	t, ok := l.fired[ruleID]
	return t, ok
}

// Len returns the number of remembered rules.
func (l *Ledger) Len() int {
	return len(l.fired)
}

func sameMinute(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd && a.Hour() == b.Hour() && a.Minute() == b.Minute()
}
