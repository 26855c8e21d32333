package storage

import (
	"context"

	"github.com/georgeshao/clinic-crm/pkg/types"
)

type Store interface {
	UpsertMessage(ctx context.Context, msg *MessageRecord) error
	GetMessage(ctx context.Context, conversationID, messageID string) (*MessageRecord, error)
	ListMessages(ctx context.Context, filter MessageFilter) ([]*MessageRecord, error)
	ListChats(ctx context.Context, limit int) ([]*ChatSummary, error)

	CreateLead(ctx context.Context, lead *LeadRecord) error
	GetLead(ctx context.Context, id string) (*LeadRecord, error)
	FindLeadByPhone(ctx context.Context, phone string) (*LeadRecord, error)
	ListLeads(ctx context.Context, filter LeadFilter) ([]*LeadRecord, int, error)
	UpdateLead(ctx context.Context, lead *LeadRecord) error
	GetLeadStats(ctx context.Context) (*types.LeadStats, error)

	Close() error
}
