// Package state implements the in-memory tracking state machine.
//
// The machine owns three pieces of shared mutable state: the current
// tracking state, the open session, and the open break. Every transition
// and every read happens under one mutex, and each transition returns a
// Snapshot taken in the same critical section so callers never act on a
// stale session or break id.
package state

import (
	"sync"
	"time"

	"github.com/groblegark/tempo/internal/model"
)

// Error indicates an invalid state transition.
// Transport layers map this to HTTP 400-class responses.
type Error string

func (e Error) Error() string { return string(e) }

const (
	ErrAlreadyTracking Error = "already tracking"
	ErrAlreadyPaused   Error = "already paused"
	ErrNotTracking     Error = "not tracking"
	ErrNotInSession    Error = "not in a session"
	ErrNoActiveSession Error = "no active session"
)

// Snapshot is a consistent view of the machine taken under its lock.
type Snapshot struct {
	State   model.TrackingState
	Session *model.Session     // nil when stopped
	Break   *model.BreakPeriod // nil unless paused
	TakenAt time.Time
}

// Machine is the session state machine. The zero value is not usable;
// call New.
type Machine struct {
	mu      sync.Mutex
	state   model.TrackingState
	session *model.Session
	brk     *model.BreakPeriod
	now     func() time.Time
}

// New returns a machine in the Stopped state.
func New() *Machine {
	return &Machine{state: model.StateStopped, now: time.Now}
}

// NewWithClock returns a machine using the given clock, for tests.
func NewWithClock(now func() time.Time) *Machine {
	return &Machine{state: model.StateStopped, now: now}
}

// Snapshot returns a consistent view of the current state.
func (m *Machine) Snapshot() Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshotLocked()
}

func (m *Machine) snapshotLocked() Snapshot {
	s := Snapshot{State: m.state, TakenAt: m.now()}
	if m.session != nil {
		c := *m.session
		s.Session = &c
	}
	if m.brk != nil {
		c := *m.brk
		s.Break = &c
	}
	return s
}

// Start begins tracking. From Stopped it opens the given session; from
// Paused it closes the open break and resumes (the session id argument is
// ignored in that case).
func (m *Machine) Start(sessionID string) (Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch m.state {
	case model.StateStopped:
		m.state = model.StateTracking
		m.session = &model.Session{
			ID:        sessionID,
			StartedAt: m.now(),
			State:     model.StateTracking,
		}
		m.brk = nil
		return m.snapshotLocked(), nil
	case model.StatePaused:
		return m.resumeLocked(), nil
	default:
		return m.snapshotLocked(), ErrAlreadyTracking
	}
}

// Pause opens a break on the current session.
func (m *Machine) Pause(breakID string) (Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch m.state {
	case model.StateTracking:
		if m.session == nil {
			return m.snapshotLocked(), ErrNoActiveSession
		}
		m.state = model.StatePaused
		m.session.State = model.StatePaused
		m.brk = &model.BreakPeriod{
			ID:        breakID,
			SessionID: m.session.ID,
			StartedAt: m.now(),
		}
		return m.snapshotLocked(), nil
	case model.StatePaused:
		return m.snapshotLocked(), ErrAlreadyPaused
	default:
		return m.snapshotLocked(), ErrNotTracking
	}
}

// Resume closes the open break and returns to Tracking.
func (m *Machine) Resume() (Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch m.state {
	case model.StatePaused:
		return m.resumeLocked(), nil
	case model.StateTracking:
		return m.snapshotLocked(), ErrAlreadyTracking
	default:
		return m.snapshotLocked(), ErrNotInSession
	}
}

func (m *Machine) resumeLocked() Snapshot {
	m.state = model.StateTracking
	if m.session != nil {
		m.session.State = model.StateTracking
	}
	if m.brk != nil {
		t := m.now()
		m.brk.EndedAt = &t
	}
	snap := m.snapshotLocked()
	m.brk = nil
	return snap
}

// Stop ends the session, closing any open break. The returned snapshot
// carries the closed session and break so callers can persist their end
// times.
func (m *Machine) Stop() (Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	switch m.state {
	case model.StateTracking, model.StatePaused:
		t := m.now()
		m.state = model.StateStopped
		if m.session != nil {
			m.session.EndedAt = &t
			m.session.State = model.StateStopped
		}
		if m.brk != nil && m.brk.EndedAt == nil {
			m.brk.EndedAt = &t
		}
		snap := m.snapshotLocked()
		m.session = nil
		m.brk = nil
		return snap, nil
	default:
		return m.snapshotLocked(), ErrNotTracking
	}
}
