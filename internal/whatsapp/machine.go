package whatsapp

import "github.com/georgeshao/clinic-crm/pkg/types"

// Session is the connection state. Challenge is only non-empty in the qr
// state.
type Session struct {
	Status    types.ConnectionStatus
	Challenge string
}

// Effects are the side effects a transition asks the service to run.
type Effects struct {
	Broadcast         bool
	LoadHistory       bool
	ScheduleReconnect bool
}

// Transition computes the next session for an event. It has no side
// effects; events that do not change the connection state return the
// session unchanged with no effects.
func Transition(s Session, ev Event) (Session, Effects) {
	switch e := ev.(type) {
	case startEvent:
		return Session{Status: types.ConnectionConnecting}, Effects{Broadcast: true}

	case QREvent:
		return Session{Status: types.ConnectionQR, Challenge: e.Code}, Effects{Broadcast: true}

	case OpenEvent:
		return Session{Status: types.ConnectionConnected}, Effects{Broadcast: true, LoadHistory: true}

	case CloseEvent:
		// a close after an explicit stop or a failed setup is the transport
		// winding down, not a dropped connection
		if s.Status == types.ConnectionDisconnected || s.Status == types.ConnectionError {
			return s, Effects{}
		}
		return Session{Status: types.ConnectionDisconnected}, Effects{
			Broadcast:         true,
			ScheduleReconnect: !e.LoggedOut,
		}

	case setupFailedEvent:
		return Session{Status: types.ConnectionError}, Effects{Broadcast: true}

	case stopEvent:
		return Session{Status: types.ConnectionDisconnected}, Effects{Broadcast: true}
	}

	return s, Effects{}
}

// IsConnected reports whether messages can be sent.
func (s Session) IsConnected() bool {
	return s.Status == types.ConnectionConnected
}
