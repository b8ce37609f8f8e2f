package alarm

import "time"

// SessionState is the ringing session state.
type SessionState int

const (
	// SessionTriggered means the alarm is ringing and waits for the user.
	SessionTriggered SessionState = iota + 1
	// SessionAcknowledged is terminal: the user dismissed or snoozed the alarm.
	SessionAcknowledged
)

// String implements fmt.Stringer.
func (s SessionState) String() string {
	switch s {
	case SessionTriggered:
		return "triggered"
	case SessionAcknowledged:
		return "acknowledged"
	default:
		return "unknown"
	}
}

// Acknowledgement tells how a session was closed.
type Acknowledgement string

const (
	// AckNone is used while the session is still ringing.
	AckNone Acknowledgement = ""
	// AckDismissed means the user stopped the alarm for good.
	AckDismissed Acknowledgement = "dismissed"
	// AckSnoozed means the user asked for another trigger later.
	AckSnoozed Acknowledgement = "snoozed"
)

// Session is one delivery of a fired alarm.
type Session struct {
	// Token identifies this particular delivery. Actions carrying a stale
	// token are ignored.
	Token string
	// AlarmID refers to the record that fired.
	AlarmID int64
	// Label is the display label captured at trigger time.
	Label string
	// TimeString is the HH:MM of the record captured at trigger time.
	TimeString string
	// State is Triggered until the user acts.
	State SessionState
	// FiredAt is when the delivery started.
	FiredAt time.Time
	// AcknowledgedAt is when the session left Triggered.
	AcknowledgedAt time.Time
	// Acknowledgement records how the session was closed.
	Acknowledgement Acknowledgement
}

// IsTriggered reports whether the session still rings.
func (s *Session) IsTriggered() bool {
	return s != nil && s.State == SessionTriggered
}

// Clone returns a copy of the session.
func (s *Session) Clone() *Session {
	if s == nil {
		return nil
	}

	cloned := *s

	return &cloned
}
