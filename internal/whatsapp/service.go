// Package whatsapp owns the connection lifecycle of the clinic's WhatsApp
// account and mirrors its messages into the CRM.
//
// Transport callbacks are funnelled through Service.HandleEvent, which runs
// one event at a time. State changes are computed by Transition and the
// service applies the returned effects.
package whatsapp

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/georgeshao/clinic-crm/internal/storage"
	"github.com/georgeshao/clinic-crm/pkg/types"
)

// Broadcast event names.
const (
	EventStatus      = "status"
	EventNewMessage  = "new-message"
	EventNewLead     = "new-lead"
	EventChatsLoaded = "chats-loaded"
)

const LeadSourceWhatsApp = "whatsapp"

var (
	ErrNotConnected = errors.New("whatsapp is not connected")
	ErrEmptyMessage = errors.New("message text is empty")
)

// SentMessage is what the transport reports for an accepted outbound message.
type SentMessage struct {
	MessageID string
	Timestamp time.Time
}

// Transport is the gateway connection. Connect returns once setup is done;
// everything after that arrives through handler.
type Transport interface {
	Connect(ctx context.Context, handler func(Event)) error
	Send(ctx context.Context, conversationID, text string) (SentMessage, error)
	Disconnect()
	Logout(ctx context.Context) error
}

type MessageStore interface {
	UpsertMessage(ctx context.Context, msg *storage.MessageRecord) error
	ListChats(ctx context.Context, limit int) ([]*storage.ChatSummary, error)
}

// LeadStore returns (nil, nil) from FindLeadByPhone when no lead matches.
type LeadStore interface {
	FindLeadByPhone(ctx context.Context, phone string) (*storage.LeadRecord, error)
	CreateLead(ctx context.Context, lead *storage.LeadRecord) error
}

type CredentialStore interface {
	Save(ctx context.Context, data []byte) error
	Reset(ctx context.Context) error
}

type Broadcaster interface {
	Broadcast(event string, payload any)
}

type Config struct {
	ReconnectDelay time.Duration
	HistoryLimit   int
}

func DefaultConfig() Config {
	return Config{
		ReconnectDelay: 5 * time.Second,
		HistoryLimit:   50,
	}
}

type Service struct {
	config      Config
	transport   Transport
	messages    MessageStore
	leads       LeadStore
	credentials CredentialStore
	broadcaster Broadcaster

	mu        sync.Mutex
	session   Session
	qrImage   string
	reconnect func() bool
	// reconnectGen changes whenever a pending reconnect is cancelled, so a
	// timer that already fired can tell it is stale.
	reconnectGen uint64

	afterFunc func(d time.Duration, f func()) func() bool
	renderQR  func(code string) (string, error)
	now       func() time.Time
}

func New(config Config, transport Transport, messages MessageStore, leads LeadStore, credentials CredentialStore, broadcaster Broadcaster) *Service {
	defaults := DefaultConfig()
	if config.ReconnectDelay <= 0 {
		config.ReconnectDelay = defaults.ReconnectDelay
	}
	if config.HistoryLimit <= 0 {
		config.HistoryLimit = defaults.HistoryLimit
	}

	return &Service{
		config:      config,
		transport:   transport,
		messages:    messages,
		leads:       leads,
		credentials: credentials,
		broadcaster: broadcaster,
		session:     Session{Status: types.ConnectionDisconnected},
		afterFunc: func(d time.Duration, f func()) func() bool {
			return time.AfterFunc(d, f).Stop
		},
		renderQR: RenderQR,
		now:      time.Now,
	}
}

// Status returns the current connection status.
func (s *Service) Status() types.WhatsAppStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.statusLocked()
}

func (s *Service) statusLocked() types.WhatsAppStatus {
	status := types.WhatsAppStatus{
		Status:      s.session.Status,
		IsConnected: s.session.IsConnected(),
	}
	if s.session.Status == types.ConnectionQR && s.qrImage != "" {
		qr := s.qrImage
		status.QR = &qr
	}
	return status
}

// Connect starts the transport. It is a no-op while a connection is already
// up or being set up. A setup failure moves the session to error and is
// returned; the operator has to call Connect again.
func (s *Service) Connect(ctx context.Context) error {
	return s.connect(ctx, nil)
}

// connect skips the attempt when stale, checked under the lock, reports true.
func (s *Service) connect(ctx context.Context, stale func() bool) error {
	s.mu.Lock()
	if stale != nil && stale() {
		s.mu.Unlock()
		log.Printf("[whatsapp] Skipping cancelled reconnect")
		return nil
	}
	switch s.session.Status {
	case types.ConnectionConnecting, types.ConnectionQR, types.ConnectionConnected:
		s.mu.Unlock()
		return nil
	}
	s.stopReconnectLocked()
	s.applyLocked(ctx, startEvent{})
	s.mu.Unlock()

	log.Printf("[whatsapp] Connecting")

	// the transport outlives the caller's request
	handler := func(ev Event) {
		s.HandleEvent(context.Background(), ev)
	}
	if err := s.transport.Connect(context.WithoutCancel(ctx), handler); err != nil {
		log.Printf("[whatsapp] Connection setup failed: %v", err)
		s.HandleEvent(ctx, setupFailedEvent{err: err})
		return fmt.Errorf("failed to connect: %w", err)
	}
	return nil
}

// Disconnect closes the connection and keeps the credentials, so the next
// Connect logs in without a new QR code.
func (s *Service) Disconnect(ctx context.Context) {
	s.mu.Lock()
	s.stopReconnectLocked()
	s.applyLocked(ctx, stopEvent{})
	s.mu.Unlock()

	s.transport.Disconnect()
	log.Printf("[whatsapp] Disconnected")
}

// Reset logs out, wipes the stored credentials and leaves the session
// disconnected. Calling it on a disconnected session is fine.
func (s *Service) Reset(ctx context.Context) error {
	s.mu.Lock()
	wasConnected := s.session.IsConnected()
	s.stopReconnectLocked()
	s.applyLocked(ctx, stopEvent{})
	s.mu.Unlock()

	if wasConnected {
		if err := s.transport.Logout(ctx); err != nil {
			log.Printf("[whatsapp] Logout failed, wiping credentials anyway: %v", err)
		}
	}
	s.transport.Disconnect()

	if err := s.credentials.Reset(ctx); err != nil {
		return fmt.Errorf("failed to reset credentials: %w", err)
	}
	log.Printf("[whatsapp] Session reset")
	return nil
}

// SendMessage sends a text message. It fails fast with ErrNotConnected
// instead of queueing.
func (s *Service) SendMessage(ctx context.Context, conversationID, text string) (*storage.MessageRecord, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyMessage
	}

	s.mu.Lock()
	connected := s.session.IsConnected()
	s.mu.Unlock()
	if !connected {
		return nil, ErrNotConnected
	}

	conversationID = NormalizeConversationID(conversationID)
	sent, err := s.transport.Send(ctx, conversationID, text)
	if err != nil {
		return nil, fmt.Errorf("failed to send message: %w", err)
	}

	ts := sent.Timestamp
	if ts.IsZero() {
		ts = s.now()
	}
	record := &storage.MessageRecord{
		ConversationID: conversationID,
		MessageID:      sent.MessageID,
		SenderName:     DisplayName("", conversationID),
		Body:           text,
		Kind:           KindText,
		FromMe:         true,
		Timestamp:      ts,
	}
	if err := s.messages.UpsertMessage(ctx, record); err != nil {
		return nil, fmt.Errorf("failed to store sent message: %w", err)
	}
	s.broadcaster.Broadcast(EventNewMessage, record.ToType())

	return record, nil
}

// HandleEvent processes one transport event. Calls are serialised; an event
// and its broadcasts complete before the next event is looked at.
func (s *Service) HandleEvent(ctx context.Context, ev Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch e := ev.(type) {
	case CredentialsEvent:
		if err := s.credentials.Save(ctx, e.Data); err != nil {
			log.Printf("[whatsapp] Failed to save credentials: %v", err)
		}
	case MessagesEvent:
		for _, msg := range e.Messages {
			s.handleMessageLocked(ctx, msg)
		}
	default:
		s.applyLocked(ctx, ev)
	}
}

func (s *Service) applyLocked(ctx context.Context, ev Event) {
	prev := s.session.Status
	next, effects := Transition(s.session, ev)

	if next.Challenge != s.session.Challenge {
		s.qrImage = ""
		if next.Challenge != "" {
			image, err := s.renderQR(next.Challenge)
			if err != nil {
				log.Printf("[whatsapp] Failed to render qr: %v", err)
			}
			s.qrImage = image
		}
	}
	s.session = next

	if prev != next.Status {
		log.Printf("[whatsapp] Status %s -> %s", prev, next.Status)
	}
	if ce, ok := ev.(CloseEvent); ok && effects.Broadcast {
		log.Printf("[whatsapp] Connection closed (code %d, logged out %t): %s", ce.StatusCode, ce.LoggedOut, ce.Reason)
	}

	if effects.Broadcast {
		s.broadcaster.Broadcast(EventStatus, s.statusLocked())
	}
	if effects.LoadHistory {
		go s.loadHistory()
	}
	if effects.ScheduleReconnect {
		s.scheduleReconnectLocked()
	}
}

func (s *Service) scheduleReconnectLocked() {
	s.stopReconnectLocked()
	log.Printf("[whatsapp] Reconnecting in %s", s.config.ReconnectDelay)
	gen := s.reconnectGen
	s.reconnect = s.afterFunc(s.config.ReconnectDelay, func() {
		stale := func() bool { return s.reconnectGen != gen }
		if err := s.connect(context.Background(), stale); err != nil {
			log.Printf("[whatsapp] Reconnect failed: %v", err)
		}
	})
}

func (s *Service) stopReconnectLocked() {
	s.reconnectGen++
	if s.reconnect != nil {
		s.reconnect()
		s.reconnect = nil
	}
}

// loadHistory announces the most recent chats after a login. Failures only
// get logged; the connection is up either way.
func (s *Service) loadHistory() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	chats, err := s.messages.ListChats(ctx, s.config.HistoryLimit)
	if err != nil {
		log.Printf("[whatsapp] Failed to load recent chats: %v", err)
		return
	}

	payload := make([]types.Chat, len(chats))
	for i, chat := range chats {
		payload[i] = chat.ToType()
	}
	s.broadcaster.Broadcast(EventChatsLoaded, payload)
}

func (s *Service) handleMessageLocked(ctx context.Context, msg InboundMessage) {
	if msg.ConversationID == "" || msg.MessageID == "" {
		return
	}

	body, kind := ExtractBody(msg.Content)
	ts := msg.Timestamp
	if ts.IsZero() {
		ts = s.now()
	}
	record := &storage.MessageRecord{
		ConversationID: msg.ConversationID,
		MessageID:      msg.MessageID,
		SenderName:     DisplayName(msg.PushName, msg.ConversationID),
		Body:           body,
		Kind:           kind,
		FromMe:         msg.FromMe,
		Timestamp:      ts,
	}

	if err := s.messages.UpsertMessage(ctx, record); err != nil {
		log.Printf("[whatsapp] Failed to store message %s: %v", msg.MessageID, err)
		return
	}
	s.broadcaster.Broadcast(EventNewMessage, record.ToType())

	if !msg.FromMe && IsDirectChat(msg.ConversationID) {
		s.ensureLead(ctx, record)
	}
}

// ensureLead creates a lead the first time an unknown number writes in.
func (s *Service) ensureLead(ctx context.Context, msg *storage.MessageRecord) {
	phone := PhoneFromConversation(msg.ConversationID)

	existing, err := s.leads.FindLeadByPhone(ctx, phone)
	if err != nil {
		log.Printf("[whatsapp] Failed to look up lead %s: %v", phone, err)
		return
	}
	if existing != nil {
		return
	}

	now := s.now()
	lead := &storage.LeadRecord{
		ID:        uuid.New().String(),
		Name:      msg.SenderName,
		Phone:     phone,
		Source:    LeadSourceWhatsApp,
		Status:    types.LeadStatusNew,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.leads.CreateLead(ctx, lead); err != nil {
		log.Printf("[whatsapp] Failed to create lead %s: %v", phone, err)
		return
	}

	log.Printf("[whatsapp] New lead %s from %s", lead.ID, phone)
	s.broadcaster.Broadcast(EventNewLead, lead.ToType())
}
