package sqlite

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/georgeshao/clinic-crm/internal/storage"
	"github.com/georgeshao/clinic-crm/pkg/types"
)

//go:embed schema.sql
var schemaSQL string

const defaultLimit = 100

type SQLiteStore struct {
	db *sql.DB
}

func New(dbPath string) (*SQLiteStore, error) {
	// Ensure directory exists
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	db.SetMaxOpenConns(1) // SQLite works best with single writer
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	store := &SQLiteStore{db: db}

	if err := store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return store, nil
}

func (s *SQLiteStore) initSchema() error {
	_, err := s.db.Exec(schemaSQL)
	return err
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) UpsertMessage(ctx context.Context, msg *storage.MessageRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO messages (conversation_id, message_id, sender_name, body, kind, from_me, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (conversation_id, message_id) DO UPDATE SET
			sender_name = excluded.sender_name,
			body = excluded.body,
			kind = excluded.kind,
			from_me = excluded.from_me,
			timestamp = excluded.timestamp`,
		msg.ConversationID, msg.MessageID, msg.SenderName, msg.Body, msg.Kind, msg.FromMe, msg.Timestamp.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to upsert message: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetMessage(ctx context.Context, conversationID, messageID string) (*storage.MessageRecord, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT conversation_id, message_id, sender_name, body, kind, from_me, timestamp
		FROM messages WHERE conversation_id = ? AND message_id = ?`,
		conversationID, messageID,
	)
	msg, err := scanMessage(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get message: %w", err)
	}
	return msg, nil
}

// ListMessages returns the newest messages of a conversation first.
func (s *SQLiteStore) ListMessages(ctx context.Context, filter storage.MessageFilter) ([]*storage.MessageRecord, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultLimit
	}

	query := `SELECT conversation_id, message_id, sender_name, body, kind, from_me, timestamp
		FROM messages WHERE conversation_id = ?`
	args := []any{filter.ConversationID}
	if filter.Before != nil {
		before := filter.Before.UnixMilli()
		query += ` AND (timestamp < ? OR (timestamp = ? AND message_id < ?))`
		args = append(args, before, before, filter.BeforeID)
	}
	query += ` ORDER BY timestamp DESC, message_id DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list messages: %w", err)
	}
	defer rows.Close()

	var records []*storage.MessageRecord
	for rows.Next() {
		msg, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan message: %w", err)
		}
		records = append(records, msg)
	}
	return records, rows.Err()
}

// ListChats summarises each conversation by its latest message. The display
// name is the latest inbound sender name, falling back to whatever the latest
// message carries.
func (s *SQLiteStore) ListChats(ctx context.Context, limit int) ([]*storage.ChatSummary, error) {
	if limit <= 0 {
		limit = defaultLimit
	}

	rows, err := s.db.QueryContext(ctx, `
		SELECT m.conversation_id,
			COALESCE((
				SELECT i.sender_name FROM messages i
				WHERE i.conversation_id = m.conversation_id AND i.from_me = 0 AND i.sender_name != ''
				ORDER BY i.timestamp DESC LIMIT 1
			), m.sender_name),
			m.body, m.kind, m.from_me, m.timestamp, c.total
		FROM messages m
		JOIN (
			SELECT conversation_id, MAX(timestamp) AS last_ts, COUNT(*) AS total
			FROM messages GROUP BY conversation_id
		) c ON c.conversation_id = m.conversation_id AND c.last_ts = m.timestamp
		GROUP BY m.conversation_id
		ORDER BY m.timestamp DESC
		LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list chats: %w", err)
	}
	defer rows.Close()

	var chats []*storage.ChatSummary
	for rows.Next() {
		var chat storage.ChatSummary
		var lastAt int64
		if err := rows.Scan(&chat.ConversationID, &chat.DisplayName, &chat.LastBody, &chat.LastKind, &chat.LastFromMe, &lastAt, &chat.MessageCount); err != nil {
			return nil, fmt.Errorf("failed to scan chat: %w", err)
		}
		chat.LastAt = time.UnixMilli(lastAt)
		chats = append(chats, &chat)
	}
	return chats, rows.Err()
}

func (s *SQLiteStore) CreateLead(ctx context.Context, lead *storage.LeadRecord) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO leads (id, name, phone, email, source, status, notes, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		lead.ID, lead.Name, lead.Phone, toNullString(lead.Email), lead.Source, string(lead.Status), lead.Notes,
		lead.CreatedAt.UnixMilli(), lead.UpdatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("failed to create lead: %w", err)
	}
	return nil
}

const leadColumns = `id, name, phone, email, source, status, notes, created_at, updated_at`

func (s *SQLiteStore) GetLead(ctx context.Context, id string) (*storage.LeadRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+leadColumns+` FROM leads WHERE id = ?`, id)
	lead, err := scanLead(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get lead: %w", err)
	}
	return lead, nil
}

func (s *SQLiteStore) FindLeadByPhone(ctx context.Context, phone string) (*storage.LeadRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+leadColumns+` FROM leads WHERE phone = ? ORDER BY created_at LIMIT 1`, phone)
	lead, err := scanLead(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to find lead: %w", err)
	}
	return lead, nil
}

func (s *SQLiteStore) ListLeads(ctx context.Context, filter storage.LeadFilter) ([]*storage.LeadRecord, int, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultLimit
	}

	var where []string
	var args []any
	if filter.Status != nil {
		where = append(where, "status = ?")
		args = append(args, string(*filter.Status))
	}

	var total int
	countQuery := `SELECT COUNT(*) FROM leads`
	if len(where) > 0 {
		countQuery += ` WHERE ` + strings.Join(where, " AND ")
	}
	if err := s.db.QueryRowContext(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count leads: %w", err)
	}

	if filter.Cursor != nil {
		where = append(where, "created_at < ?")
		args = append(args, filter.Cursor.UnixMilli())
	}
	query := `SELECT ` + leadColumns + ` FROM leads`
	if len(where) > 0 {
		query += ` WHERE ` + strings.Join(where, " AND ")
	}
	query += ` ORDER BY created_at DESC LIMIT ?`
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to list leads: %w", err)
	}
	defer rows.Close()

	var records []*storage.LeadRecord
	for rows.Next() {
		lead, err := scanLead(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("failed to scan lead: %w", err)
		}
		records = append(records, lead)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("failed to list leads: %w", err)
	}

	return records, total, nil
}

func (s *SQLiteStore) UpdateLead(ctx context.Context, lead *storage.LeadRecord) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE leads SET name = ?, email = ?, status = ?, notes = ?, updated_at = ?
		WHERE id = ?`,
		lead.Name, toNullString(lead.Email), string(lead.Status), lead.Notes, lead.UpdatedAt.UnixMilli(), lead.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update lead: %w", err)
	}
	return nil
}

func (s *SQLiteStore) GetLeadStats(ctx context.Context) (*types.LeadStats, error) {
	var stats types.LeadStats
	err := s.db.QueryRowContext(ctx, `
		SELECT COUNT(*),
			COALESCE(SUM(CASE WHEN status = 'new' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = 'contacted' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = 'scheduled' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = 'closed' THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN status = 'lost' THEN 1 ELSE 0 END), 0)
		FROM leads`).Scan(&stats.Total, &stats.New, &stats.Contacted, &stats.Scheduled, &stats.Closed, &stats.Lost)
	if err != nil {
		return nil, fmt.Errorf("failed to get lead stats: %w", err)
	}
	return &stats, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanMessage(row scanner) (*storage.MessageRecord, error) {
	var msg storage.MessageRecord
	var ts int64
	if err := row.Scan(&msg.ConversationID, &msg.MessageID, &msg.SenderName, &msg.Body, &msg.Kind, &msg.FromMe, &ts); err != nil {
		return nil, err
	}
	msg.Timestamp = time.UnixMilli(ts)
	return &msg, nil
}

func scanLead(row scanner) (*storage.LeadRecord, error) {
	var lead storage.LeadRecord
	var email sql.NullString
	var status string
	var createdAt, updatedAt int64
	if err := row.Scan(&lead.ID, &lead.Name, &lead.Phone, &email, &lead.Source, &status, &lead.Notes, &createdAt, &updatedAt); err != nil {
		return nil, err
	}
	lead.Email = fromNullString(email)
	lead.Status = types.LeadStatus(status)
	lead.CreatedAt = time.UnixMilli(createdAt)
	lead.UpdatedAt = time.UnixMilli(updatedAt)
	return &lead, nil
}

func toNullString(s *string) sql.NullString {
	if s == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: *s, Valid: true}
}

func fromNullString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	return &ns.String
}
