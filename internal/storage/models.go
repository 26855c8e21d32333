package storage

import (
	"time"

	"github.com/georgeshao/clinic-crm/pkg/types"
)

// MessageRecord is a WhatsApp message mirrored into the store. The pair
// (ConversationID, MessageID) is unique; writing it again replaces the row.
type MessageRecord struct {
	ConversationID string
	MessageID      string
	SenderName     string
	Body           string
	Kind           string
	FromMe         bool
	Timestamp      time.Time
}

type ChatSummary struct {
	ConversationID string
	DisplayName    string
	LastBody       string
	LastKind       string
	LastFromMe     bool
	LastAt         time.Time
	MessageCount   int
}

type LeadRecord struct {
	ID        string
	Name      string
	Phone     string
	Email     *string
	Source    string
	Status    types.LeadStatus
	Notes     string
	CreatedAt time.Time
	UpdatedAt time.Time
}

type LeadFilter struct {
	Status *types.LeadStatus
	Limit  int
	Cursor *time.Time // created_at cursor for pagination (get items before this time)
}

// MessageFilter pages newest first. With Before set, only messages older
// than it are returned; BeforeID extends that to messages at exactly Before
// whose id sorts below BeforeID.
type MessageFilter struct {
	ConversationID string
	Limit          int
	Before         *time.Time
	BeforeID       string
}

func (r *MessageRecord) ToType() types.Message {
	return types.Message{
		ConversationID: r.ConversationID,
		MessageID:      r.MessageID,
		SenderName:     r.SenderName,
		Body:           r.Body,
		Kind:           r.Kind,
		FromMe:         r.FromMe,
		Timestamp:      r.Timestamp.UTC().Format(time.RFC3339),
	}
}

func (c *ChatSummary) ToType() types.Chat {
	return types.Chat{
		ConversationID: c.ConversationID,
		DisplayName:    c.DisplayName,
		LastBody:       c.LastBody,
		LastKind:       c.LastKind,
		LastFromMe:     c.LastFromMe,
		LastAt:         c.LastAt.UTC().Format(time.RFC3339),
		MessageCount:   c.MessageCount,
	}
}

func (l *LeadRecord) ToType() types.Lead {
	return types.Lead{
		ID:        l.ID,
		Name:      l.Name,
		Phone:     l.Phone,
		Email:     l.Email,
		Source:    l.Source,
		Status:    l.Status,
		Notes:     l.Notes,
		CreatedAt: l.CreatedAt.UTC().Format(time.RFC3339),
		UpdatedAt: l.UpdatedAt.UTC().Format(time.RFC3339),
	}
}
