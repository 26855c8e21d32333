package pebbledb

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/cockroachdb/pebble"

	"github.com/georgeshao/clinic-crm/internal/storage"
	"github.com/georgeshao/clinic-crm/pkg/types"
)

// Key prefixes
const (
	prefixMsg       = "msg:"    // msg:{conv}:{id} → message JSON
	prefixMsgTs     = "mts:"    // mts:{conv}:{ts}:{id} → empty
	prefixChat      = "chat:"   // chat:{conv} → chat JSON
	prefixLead      = "lead:"   // lead:{id} → lead JSON
	prefixLeadPhone = "lphone:" // lphone:{phone}:{id} → empty
	prefixLeadTs    = "lts:"    // lts:{ts}:{id} → empty
	prefixLeadSt    = "lst:"    // lst:{status}:{ts}:{id} → empty
	prefixCount     = "count:"  // count:chat:{conv} / count:lead:{status} → int64
)

const defaultLimit = 100

var leadStatuses = []types.LeadStatus{
	types.LeadStatusNew,
	types.LeadStatusContacted,
	types.LeadStatusScheduled,
	types.LeadStatusClosed,
	types.LeadStatusLost,
}

// PebbleStore keeps messages and leads in an embedded LSM store. Secondary
// indexes are empty-valued keys next to the records; per-chat and per-status
// totals are merge counters.
type PebbleStore struct {
	db *pebble.DB

	// serialises read-modify-write sequences; pebble batches are not
	// transactions
	mu sync.Mutex
}

type messageData struct {
	ConversationID string `json:"conversation_id"`
	MessageID      string `json:"message_id"`
	SenderName     string `json:"sender_name"`
	Body           string `json:"body"`
	Kind           string `json:"kind"`
	FromMe         bool   `json:"from_me"`
	Timestamp      int64  `json:"timestamp"` // Unix nano
}

type chatData struct {
	ConversationID string `json:"conversation_id"`
	DisplayName    string `json:"display_name"`
	LastBody       string `json:"last_body"`
	LastKind       string `json:"last_kind"`
	LastFromMe     bool   `json:"last_from_me"`
	LastAt         int64  `json:"last_at"` // Unix nano
}

type leadData struct {
	ID        string  `json:"id"`
	Name      string  `json:"name"`
	Phone     string  `json:"phone"`
	Email     *string `json:"email,omitempty"`
	Source    string  `json:"source"`
	Status    string  `json:"status"`
	Notes     string  `json:"notes,omitempty"`
	CreatedAt int64   `json:"created_at"` // Unix nano
	UpdatedAt int64   `json:"updated_at"` // Unix nano
}

func New(dbPath string) (*PebbleStore, error) {
	dir := filepath.Dir(dbPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	opts := &pebble.Options{
		Merger: &pebble.Merger{
			Name: "int64_add",
			Merge: func(key, value []byte) (pebble.ValueMerger, error) {
				return &int64Merger{sum: decodeInt64(value)}, nil
			},
		},
	}

	db, err := pebble.Open(dbPath, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open pebble database: %w", err)
	}

	return &PebbleStore{db: db}, nil
}

func (s *PebbleStore) Close() error {
	return s.db.Close()
}

func msgKey(conv, id string) []byte {
	return []byte(prefixMsg + conv + ":" + id)
}

func msgTsKey(conv string, ts int64, id string) []byte {
	return []byte(fmt.Sprintf("%s%s:%020d:%s", prefixMsgTs, conv, ts, id))
}

func msgTsPrefix(conv string) []byte {
	return []byte(prefixMsgTs + conv + ":")
}

func chatKey(conv string) []byte {
	return []byte(prefixChat + conv)
}

func leadKey(id string) []byte {
	return []byte(prefixLead + id)
}

func leadPhoneKey(phone, id string) []byte {
	return []byte(prefixLeadPhone + phone + ":" + id)
}

func leadPhonePrefix(phone string) []byte {
	return []byte(prefixLeadPhone + phone + ":")
}

func leadTsKey(ts int64, id string) []byte {
	return []byte(fmt.Sprintf("%s%020d:%s", prefixLeadTs, ts, id))
}

func leadStKey(status string, ts int64, id string) []byte {
	return []byte(fmt.Sprintf("%s%s:%020d:%s", prefixLeadSt, status, ts, id))
}

func leadStPrefix(status string) []byte {
	return []byte(prefixLeadSt + status + ":")
}

func chatCountKey(conv string) []byte {
	return []byte(prefixCount + "chat:" + conv)
}

func leadCountKey(status string) []byte {
	return []byte(prefixCount + "lead:" + status)
}

func encodeInt64(n int64) []byte {
	b := make([]byte, 8)
	binary.BigEndian.PutUint64(b, uint64(n))
	return b
}

func decodeInt64(b []byte) int64 {
	if len(b) != 8 {
		return 0
	}
	return int64(binary.BigEndian.Uint64(b))
}

type int64Merger struct {
	sum int64
}

func (m *int64Merger) MergeNewer(value []byte) error {
	m.sum += decodeInt64(value)
	return nil
}

func (m *int64Merger) MergeOlder(value []byte) error {
	m.sum += decodeInt64(value)
	return nil
}

func (m *int64Merger) Finish(includesBase bool) ([]byte, io.Closer, error) {
	return encodeInt64(m.sum), nil, nil
}

func upperBound(prefix []byte) []byte {
	ub := make([]byte, len(prefix))
	copy(ub, prefix)
	for i := len(ub) - 1; i >= 0; i-- {
		if ub[i] < 0xff {
			ub[i]++
			return ub
		}
		ub[i] = 0
	}
	return append(ub, 0)
}

// cursorBound is the exclusive upper bound for index keys older than ts.
func cursorBound(prefix []byte, ts int64) []byte {
	return []byte(fmt.Sprintf("%s%020d:", prefix, ts))
}

func (s *PebbleStore) getJSON(key []byte, v any) (bool, error) {
	value, closer, err := s.db.Get(key)
	if err == pebble.ErrNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	defer closer.Close()

	if err := json.Unmarshal(value, v); err != nil {
		return false, err
	}
	return true, nil
}

func (s *PebbleStore) getCount(key []byte) int64 {
	value, closer, err := s.db.Get(key)
	if err != nil {
		return 0
	}
	defer closer.Close()
	return decodeInt64(value)
}

func (s *PebbleStore) UpsertMessage(ctx context.Context, msg *storage.MessageRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data := messageData{
		ConversationID: msg.ConversationID,
		MessageID:      msg.MessageID,
		SenderName:     msg.SenderName,
		Body:           msg.Body,
		Kind:           msg.Kind,
		FromMe:         msg.FromMe,
		Timestamp:      msg.Timestamp.UnixNano(),
	}
	value, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	var existing messageData
	found, err := s.getJSON(msgKey(msg.ConversationID, msg.MessageID), &existing)
	if err != nil {
		return fmt.Errorf("failed to get message: %w", err)
	}

	var chat chatData
	if _, err := s.getJSON(chatKey(msg.ConversationID), &chat); err != nil {
		return fmt.Errorf("failed to get chat: %w", err)
	}
	chat.ConversationID = msg.ConversationID
	if data.Timestamp >= chat.LastAt {
		chat.LastBody = data.Body
		chat.LastKind = data.Kind
		chat.LastFromMe = data.FromMe
		chat.LastAt = data.Timestamp
		if chat.DisplayName == "" || (!data.FromMe && data.SenderName != "") {
			chat.DisplayName = data.SenderName
		}
	}
	chatValue, err := json.Marshal(chat)
	if err != nil {
		return fmt.Errorf("failed to marshal chat: %w", err)
	}

	batch := s.db.NewBatch()
	defer batch.Close()

	batch.Set(msgKey(msg.ConversationID, msg.MessageID), value, nil)
	if found {
		batch.Delete(msgTsKey(existing.ConversationID, existing.Timestamp, existing.MessageID), nil)
	} else {
		batch.Merge(chatCountKey(msg.ConversationID), encodeInt64(1), nil)
	}
	batch.Set(msgTsKey(msg.ConversationID, data.Timestamp, msg.MessageID), nil, nil)
	batch.Set(chatKey(msg.ConversationID), chatValue, nil)

	return batch.Commit(pebble.Sync)
}

func (s *PebbleStore) GetMessage(ctx context.Context, conversationID, messageID string) (*storage.MessageRecord, error) {
	var data messageData
	found, err := s.getJSON(msgKey(conversationID, messageID), &data)
	if err != nil {
		return nil, fmt.Errorf("failed to get message: %w", err)
	}
	if !found {
		return nil, nil
	}
	return toMessageRecord(&data), nil
}

func (s *PebbleStore) ListMessages(ctx context.Context, filter storage.MessageFilter) ([]*storage.MessageRecord, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultLimit
	}

	prefix := msgTsPrefix(filter.ConversationID)
	opts := &pebble.IterOptions{LowerBound: prefix, UpperBound: upperBound(prefix)}
	if filter.Before != nil {
		// exclusive, so same-instant keys with a lower id stay in range
		opts.UpperBound = msgTsKey(filter.ConversationID, filter.Before.UnixNano(), filter.BeforeID)
	}
	iter, err := s.db.NewIter(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to create iterator: %w", err)
	}
	defer iter.Close()

	var records []*storage.MessageRecord
	for iter.Last(); iter.Valid() && len(records) < limit; iter.Prev() {
		id := lastSegment(iter.Key())
		var data messageData
		found, err := s.getJSON(msgKey(filter.ConversationID, id), &data)
		if err != nil {
			return nil, fmt.Errorf("failed to get message: %w", err)
		}
		if found {
			records = append(records, toMessageRecord(&data))
		}
	}

	return records, nil
}

func (s *PebbleStore) ListChats(ctx context.Context, limit int) ([]*storage.ChatSummary, error) {
	if limit <= 0 {
		limit = defaultLimit
	}

	prefix := []byte(prefixChat)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: upperBound(prefix),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create iterator: %w", err)
	}
	defer iter.Close()

	var chats []*storage.ChatSummary
	for iter.First(); iter.Valid(); iter.Next() {
		var data chatData
		if err := json.Unmarshal(iter.Value(), &data); err != nil {
			return nil, fmt.Errorf("failed to unmarshal chat: %w", err)
		}
		chats = append(chats, &storage.ChatSummary{
			ConversationID: data.ConversationID,
			DisplayName:    data.DisplayName,
			LastBody:       data.LastBody,
			LastKind:       data.LastKind,
			LastFromMe:     data.LastFromMe,
			LastAt:         time.Unix(0, data.LastAt),
			MessageCount:   int(s.getCount(chatCountKey(data.ConversationID))),
		})
	}

	sort.SliceStable(chats, func(i, j int) bool {
		return chats[i].LastAt.After(chats[j].LastAt)
	})
	if len(chats) > limit {
		chats = chats[:limit]
	}
	return chats, nil
}

func (s *PebbleStore) CreateLead(ctx context.Context, lead *storage.LeadRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	data := fromLeadRecord(lead)
	value, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal lead: %w", err)
	}

	batch := s.db.NewBatch()
	defer batch.Close()

	batch.Set(leadKey(lead.ID), value, nil)
	batch.Set(leadPhoneKey(lead.Phone, lead.ID), nil, nil)
	batch.Set(leadTsKey(data.CreatedAt, lead.ID), nil, nil)
	batch.Set(leadStKey(data.Status, data.CreatedAt, lead.ID), nil, nil)
	batch.Merge(leadCountKey(data.Status), encodeInt64(1), nil)

	return batch.Commit(pebble.Sync)
}

func (s *PebbleStore) GetLead(ctx context.Context, id string) (*storage.LeadRecord, error) {
	data, err := s.getLeadData(id)
	if err != nil {
		return nil, err
	}
	if data == nil {
		return nil, nil
	}
	return toLeadRecord(data), nil
}

func (s *PebbleStore) getLeadData(id string) (*leadData, error) {
	var data leadData
	found, err := s.getJSON(leadKey(id), &data)
	if err != nil {
		return nil, fmt.Errorf("failed to get lead: %w", err)
	}
	if !found {
		return nil, nil
	}
	return &data, nil
}

func (s *PebbleStore) FindLeadByPhone(ctx context.Context, phone string) (*storage.LeadRecord, error) {
	prefix := leadPhonePrefix(phone)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: upperBound(prefix),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create iterator: %w", err)
	}
	defer iter.Close()

	var oldest *leadData
	for iter.First(); iter.Valid(); iter.Next() {
		data, err := s.getLeadData(lastSegment(iter.Key()))
		if err != nil {
			return nil, err
		}
		if data != nil && (oldest == nil || data.CreatedAt < oldest.CreatedAt) {
			oldest = data
		}
	}
	if oldest == nil {
		return nil, nil
	}
	return toLeadRecord(oldest), nil
}

func (s *PebbleStore) ListLeads(ctx context.Context, filter storage.LeadFilter) ([]*storage.LeadRecord, int, error) {
	limit := filter.Limit
	if limit <= 0 {
		limit = defaultLimit
	}

	prefix := []byte(prefixLeadTs)
	total := 0
	if filter.Status != nil {
		prefix = leadStPrefix(string(*filter.Status))
		total = int(s.getCount(leadCountKey(string(*filter.Status))))
	} else {
		for _, status := range leadStatuses {
			total += int(s.getCount(leadCountKey(string(status))))
		}
	}

	opts := &pebble.IterOptions{LowerBound: prefix, UpperBound: upperBound(prefix)}
	if filter.Cursor != nil {
		opts.UpperBound = cursorBound(prefix, filter.Cursor.UnixNano())
	}
	iter, err := s.db.NewIter(opts)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create iterator: %w", err)
	}
	defer iter.Close()

	var records []*storage.LeadRecord
	for iter.Last(); iter.Valid() && len(records) < limit; iter.Prev() {
		data, err := s.getLeadData(lastSegment(iter.Key()))
		if err != nil {
			return nil, 0, err
		}
		if data != nil {
			records = append(records, toLeadRecord(data))
		}
	}

	return records, total, nil
}

func (s *PebbleStore) UpdateLead(ctx context.Context, lead *storage.LeadRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	existing, err := s.getLeadData(lead.ID)
	if err != nil {
		return err
	}
	if existing == nil {
		return fmt.Errorf("lead not found: %s", lead.ID)
	}

	data := *existing
	data.Name = lead.Name
	data.Email = lead.Email
	data.Status = string(lead.Status)
	data.Notes = lead.Notes
	data.UpdatedAt = lead.UpdatedAt.UnixNano()

	value, err := json.Marshal(data)
	if err != nil {
		return fmt.Errorf("failed to marshal lead: %w", err)
	}

	batch := s.db.NewBatch()
	defer batch.Close()

	batch.Set(leadKey(lead.ID), value, nil)
	if existing.Status != data.Status {
		batch.Delete(leadStKey(existing.Status, existing.CreatedAt, lead.ID), nil)
		batch.Set(leadStKey(data.Status, data.CreatedAt, lead.ID), nil, nil)
		batch.Merge(leadCountKey(existing.Status), encodeInt64(-1), nil)
		batch.Merge(leadCountKey(data.Status), encodeInt64(1), nil)
	}

	return batch.Commit(pebble.Sync)
}

func (s *PebbleStore) GetLeadStats(ctx context.Context) (*types.LeadStats, error) {
	stats := &types.LeadStats{}

	for _, status := range leadStatuses {
		count := int(s.getCount(leadCountKey(string(status))))
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

// --- Conversion helpers ---

func toMessageRecord(data *messageData) *storage.MessageRecord {
	return &storage.MessageRecord{
		ConversationID: data.ConversationID,
		MessageID:      data.MessageID,
		SenderName:     data.SenderName,
		Body:           data.Body,
		Kind:           data.Kind,
		FromMe:         data.FromMe,
		Timestamp:      time.Unix(0, data.Timestamp),
	}
}

func fromLeadRecord(lead *storage.LeadRecord) leadData {
	return leadData{
		ID:        lead.ID,
		Name:      lead.Name,
		Phone:     lead.Phone,
		Email:     lead.Email,
		Source:    lead.Source,
		Status:    string(lead.Status),
		Notes:     lead.Notes,
		CreatedAt: lead.CreatedAt.UnixNano(),
		UpdatedAt: lead.UpdatedAt.UnixNano(),
	}
}

func toLeadRecord(data *leadData) *storage.LeadRecord {
	return &storage.LeadRecord{
		ID:        data.ID,
		Name:      data.Name,
		Phone:     data.Phone,
		Email:     data.Email,
		Source:    data.Source,
		Status:    types.LeadStatus(data.Status),
		Notes:     data.Notes,
		CreatedAt: time.Unix(0, data.CreatedAt),
		UpdatedAt: time.Unix(0, data.UpdatedAt),
	}
}

// lastSegment extracts the record id from an index key,
// e.g. lts:{ts}:{id} → {id}
func lastSegment(key []byte) string {
	i := bytes.LastIndexByte(key, ':')
	if i < 0 {
		return ""
	}
	return string(key[i+1:])
}
