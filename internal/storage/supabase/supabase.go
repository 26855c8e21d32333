// Package supabase stores messages and leads in a hosted Postgres reached
// through Supabase's PostgREST API. The tables and the chat_summaries view
// are created by schema.sql.
package supabase

import (
	"context"
	_ "embed"
	"fmt"
	"strings"
	"time"

	"github.com/supabase-community/postgrest-go"
	"github.com/supabase-community/supabase-go"

	"github.com/georgeshao/clinic-crm/internal/storage"
	"github.com/georgeshao/clinic-crm/pkg/types"
)

// Schema is the SQL to run once in the Supabase project.
//
//go:embed schema.sql
var Schema string

const (
	tableMessages = "messages"
	tableLeads    = "leads"
	viewChats     = "chat_summaries"

	defaultLimit = 100
)

type Config struct {
	URL    string
	APIKey string
}

type SupabaseStore struct {
	client *supabase.Client
}

type messageRow struct {
	ConversationID string    `json:"conversation_id"`
	MessageID      string    `json:"message_id"`
	SenderName     string    `json:"sender_name"`
	Body           string    `json:"body"`
	Kind           string    `json:"kind"`
	FromMe         bool      `json:"from_me"`
	Timestamp      time.Time `json:"timestamp"`
}

type chatRow struct {
	ConversationID string    `json:"conversation_id"`
	DisplayName    string    `json:"display_name"`
	LastBody       string    `json:"last_body"`
	LastKind       string    `json:"last_kind"`
	LastFromMe     bool      `json:"last_from_me"`
	LastAt         time.Time `json:"last_at"`
	MessageCount   int       `json:"message_count"`
}

type leadRow struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Phone     string    `json:"phone"`
	Email     *string   `json:"email"`
	Source    string    `json:"source"`
	Status    string    `json:"status"`
	Notes     string    `json:"notes"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type leadUpdate struct {
	Name      string    `json:"name"`
	Email     *string   `json:"email"`
	Status    string    `json:"status"`
	Notes     string    `json:"notes"`
	UpdatedAt time.Time `json:"updated_at"`
}

func New(cfg Config) (*SupabaseStore, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("supabase URL is required")
	}
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("supabase API key is required")
	}

	client, err := supabase.NewClient(cfg.URL, cfg.APIKey, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create supabase client: %w", err)
	}

	return &SupabaseStore{client: client}, nil
}

// Close is a no-op; PostgREST calls are plain HTTP requests.
func (s *SupabaseStore) Close() error {
	return nil
}

func (s *SupabaseStore) UpsertMessage(ctx context.Context, msg *storage.MessageRecord) error {
	row := messageRow{
		ConversationID: msg.ConversationID,
		MessageID:      msg.MessageID,
		SenderName:     msg.SenderName,
		Body:           msg.Body,
		Kind:           msg.Kind,
		FromMe:         msg.FromMe,
		Timestamp:      msg.Timestamp.UTC(),
	}

	_, _, err := s.client.From(tableMessages).
		Upsert(row, "conversation_id,message_id", "minimal", "").
		Execute()
	if err != nil {
		return fmt.Errorf("failed to upsert message: %w", err)
	}
	return nil
}

func (s *SupabaseStore) GetMessage(ctx context.Context, conversationID, messageID string) (*storage.MessageRecord, error) {
	var rows []messageRow
	_, err := s.client.From(tableMessages).
		Select("*", "", false).
		Eq("conversation_id", conversationID).
		Eq("message_id", messageID).
		Limit(1, "").
		ExecuteTo(&rows)
	if err != nil {
		return nil, fmt.Errorf("failed to get message: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return toMessageRecord(&rows[0]), nil
}

func (s *SupabaseStore) ListMessages(ctx context.Context, filter storage.MessageFilter) ([]*storage.MessageRecord, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultLimit
	}

	query := s.client.From(tableMessages).
		Select("*", "", false).
		Eq("conversation_id", filter.ConversationID)
	if filter.Before != nil {
		before := filter.Before.UTC().Format(time.RFC3339Nano)
		query = query.Or(fmt.Sprintf(`timestamp.lt.%s,and(timestamp.eq.%s,message_id.lt."%s")`,
			before, before, strings.ReplaceAll(filter.BeforeID, `"`, `\"`)), "")
	}

	var rows []messageRow
	_, err := query.
		Order("timestamp", &postgrest.OrderOpts{Ascending: false}).
		Order("message_id", &postgrest.OrderOpts{Ascending: false}).
		Limit(limit, "").
		ExecuteTo(&rows)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}

	records := make([]*storage.MessageRecord, len(rows))
	for i := range rows {
		records[i] = toMessageRecord(&rows[i])
	}
	return records, nil
}

func (s *SupabaseStore) ListChats(ctx context.Context, limit int) ([]*storage.ChatSummary, error) {
	if limit <= 0 {
		limit = defaultLimit
	}

	var rows []chatRow
	_, err := s.client.From(viewChats).
		Select("*", "", false).
		Order("last_at", &postgrest.OrderOpts{Ascending: false}).
		Limit(limit, "").
		ExecuteTo(&rows)
	if err != nil {
		return nil, fmt.Errorf("failed to list chats: %w", err)
	}

	chats := make([]*storage.ChatSummary, len(rows))
	for i, row := range rows {
		chats[i] = &storage.ChatSummary{
			ConversationID: row.ConversationID,
			DisplayName:    row.DisplayName,
			LastBody:       row.LastBody,
			LastKind:       row.LastKind,
			LastFromMe:     row.LastFromMe,
			LastAt:         row.LastAt,
			MessageCount:   row.MessageCount,
		}
	}
	return chats, nil
}

func (s *SupabaseStore) CreateLead(ctx context.Context, lead *storage.LeadRecord) error {
	_, _, err := s.client.From(tableLeads).
		Insert(fromLeadRecord(lead), false, "", "minimal", "").
		Execute()
	if err != nil {
		return fmt.Errorf("failed to create lead: %w", err)
	}
	return nil
}

func (s *SupabaseStore) GetLead(ctx context.Context, id string) (*storage.LeadRecord, error) {
	return s.findLead(tableLeads, "id", id, "get lead")
}

func (s *SupabaseStore) FindLeadByPhone(ctx context.Context, phone string) (*storage.LeadRecord, error) {
	return s.findLead(tableLeads, "phone", phone, "find lead")
}

func (s *SupabaseStore) findLead(table, column, value, op string) (*storage.LeadRecord, error) {
	var rows []leadRow
	_, err := s.client.From(table).
		Select("*", "", false).
		Eq(column, value).
		Order("created_at", &postgrest.OrderOpts{Ascending: true}).
		Limit(1, "").
		ExecuteTo(&rows)
	if err != nil {
		return nil, fmt.Errorf("failed to %s: %w", op, err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return toLeadRecord(&rows[0]), nil
}

func (s *SupabaseStore) ListLeads(ctx context.Context, filter storage.LeadFilter) ([]*storage.LeadRecord, int, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultLimit
	}

	total, err := s.countLeads(filter.Status)
	if err != nil {
		return nil, 0, err
	}

	query := s.client.From(tableLeads).Select("*", "", false)
	if filter.Status != nil {
		query = query.Eq("status", string(*filter.Status))
	}
	if filter.Cursor != nil {
		query = query.Lt("created_at", filter.Cursor.UTC().Format(time.RFC3339Nano))
	}

	var rows []leadRow
	_, err = query.
		Order("created_at", &postgrest.OrderOpts{Ascending: false}).
		Limit(limit, "").
		ExecuteTo(&rows)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list leads: %w", err)
	}

	records := make([]*storage.LeadRecord, len(rows))
	for i := range rows {
		records[i] = toLeadRecord(&rows[i])
	}
	return records, total, nil
}

func (s *SupabaseStore) countLeads(status *types.LeadStatus) (int, error) {
	query := s.client.From(tableLeads).Select("id", "exact", true)
	if status != nil {
		query = query.Eq("status", string(*status))
	}
	_, count, err := query.Execute()
	if err != nil {
		return 0, fmt.Errorf("failed to count leads: %w", err)
	}
	return int(count), nil
}

func (s *SupabaseStore) UpdateLead(ctx context.Context, lead *storage.LeadRecord) error {
	update := leadUpdate{
		Name:      lead.Name,
		Email:     lead.Email,
		Status:    string(lead.Status),
		Notes:     lead.Notes,
		UpdatedAt: lead.UpdatedAt.UTC(),
	}

	_, _, err := s.client.From(tableLeads).
		Update(update, "minimal", "").
		Eq("id", lead.ID).
		Execute()
	if err != nil {
		return fmt.Errorf("failed to update lead: %w", err)
	}
	return nil
}

func (s *SupabaseStore) GetLeadStats(ctx context.Context) (*types.LeadStats, error) {
	stats := &types.LeadStats{}

	for _, status := range []types.LeadStatus{
		types.LeadStatusNew,
		types.LeadStatusContacted,
		types.LeadStatusScheduled,
		types.LeadStatusClosed,
		types.LeadStatusLost,
	} {
		status := status
		count, err := s.countLeads(&status)
		if err != nil {
			return nil, err
		}
		switch status {
		case types.LeadStatusNew:
			stats.New = count
		case types.LeadStatusContacted:
			stats.Contacted = count
		case types.LeadStatusScheduled:
			stats.Scheduled = count
		case types.LeadStatusClosed:
			stats.Closed = count
		case types.LeadStatusLost:
			stats.Lost = count
		}
		stats.Total += count
	}

	return stats, nil
}

func toMessageRecord(row *messageRow) *storage.MessageRecord {
	return &storage.MessageRecord{
		ConversationID: row.ConversationID,
		MessageID:      row.MessageID,
		SenderName:     row.SenderName,
		Body:           row.Body,
		Kind:           row.Kind,
		FromMe:         row.FromMe,
		Timestamp:      row.Timestamp,
	}
}

func fromLeadRecord(lead *storage.LeadRecord) leadRow {
	return leadRow{
		ID:        lead.ID,
		Name:      lead.Name,
		Phone:     lead.Phone,
		Email:     lead.Email,
		Source:    lead.Source,
		Status:    string(lead.Status),
		Notes:     lead.Notes,
		CreatedAt: lead.CreatedAt.UTC(),
		UpdatedAt: lead.UpdatedAt.UTC(),
	}
}

func toLeadRecord(row *leadRow) *storage.LeadRecord {
	return &storage.LeadRecord{
		ID:        row.ID,
		Name:      row.Name,
		Phone:     row.Phone,
		Email:     row.Email,
		Source:    row.Source,
		Status:    types.LeadStatus(row.Status),
		Notes:     row.Notes,
		CreatedAt: row.CreatedAt,
		UpdatedAt: row.UpdatedAt,
	}
}
