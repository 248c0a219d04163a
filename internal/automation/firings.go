package automation

import "sync"

// DefaultFiringLogSize is the number of firings the scheduler remembers.
const DefaultFiringLogSize = 100

// firingLog is a fixed-size ring of recent firings.
type firingLog struct {
	mu      sync.Mutex
	entries []Firing
	next    int
	full    bool
}

func newFiringLog(size int) *firingLog {
	if size <= 0 {
		size = DefaultFiringLogSize
	}
	return &firingLog{entries: make([]Firing, size)}
}

func (l *firingLog) add(f Firing) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.entries[l.next] = f
	l.next = (l.next + 1) % len(l.entries)
	if l.next == 0 {
		l.full = true
	}
}

// recent returns the remembered firings, newest first.
func (l *firingLog) recent() []Firing {
	l.mu.Lock()
	defer l.mu.Unlock()

	n := l.next
	if l.full {
		n = len(l.entries)
	}
	out := make([]Firing, 0, n)
	for i := 1; i <= n; i++ {
		idx := (l.next - i + len(l.entries)) % len(l.entries)
		out = append(out, l.entries[idx])
	}
	return out
}
