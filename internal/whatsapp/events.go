package whatsapp

import "time"

// Event is a transport callback delivered to Service.HandleEvent.
type Event interface {
	event()
}

// QREvent carries a fresh pairing challenge. Any earlier challenge is stale.
type QREvent struct {
	Code string
}

// OpenEvent reports that the transport finished logging in.
type OpenEvent struct{}

// CloseEvent reports that the connection went away. LoggedOut is set when the
// remote side invalidated the credentials; no reconnect follows such a close.
type CloseEvent struct {
	Reason     string
	StatusCode int
	LoggedOut  bool
}

// CredentialsEvent carries updated credentials that must be persisted
// before anything else happens.
type CredentialsEvent struct {
	Data []byte
}

type MessagesEvent struct {
	Messages []InboundMessage
}

// InboundMessage is one message as the transport saw it.
type InboundMessage struct {
	ConversationID string
	MessageID      string
	PushName       string
	FromMe         bool
	Timestamp      time.Time
	Content        Content
}

func (QREvent) event()          {}
func (OpenEvent) event()        {}
func (CloseEvent) event()       {}
func (CredentialsEvent) event() {}
func (MessagesEvent) event()    {}

// Control events raised by the service itself, never by a transport.
type (
	startEvent       struct{}
	setupFailedEvent struct{ err error }
	stopEvent        struct{}
)

func (startEvent) event()       {}
func (setupFailedEvent) event() {}
func (stopEvent) event()        {}
