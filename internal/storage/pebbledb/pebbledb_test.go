package pebbledb

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"
	"time"

	"github.com/georgeshao/clinic-crm/internal/storage"
	"github.com/georgeshao/clinic-crm/pkg/types"
)

func setupTestStore(t *testing.T) *PebbleStore {
	t.Helper()

	store, err := New(filepath.Join(t.TempDir(), "pebble"))
	if err != nil {
		t.Fatalf("Failed to create store: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Logf("Failed to close store: %v", err)
		}
	})
	return store
}

func TestUpsertMessageKeepsOneRowAndCount(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	base := time.Now()

	msg := &storage.MessageRecord{
		ConversationID: "5511988887777@s.whatsapp.net",
		MessageID:      "M1",
		SenderName:     "Maria",
		Body:           "oi",
		Kind:           "text",
		Timestamp:      base,
	}
	if err := store.UpsertMessage(ctx, msg); err != nil {
		t.Fatalf("UpsertMessage failed: %v", err)
	}

	msg.Body = "oi, tudo bem?"
	msg.Timestamp = base.Add(time.Second)
	if err := store.UpsertMessage(ctx, msg); err != nil {
		t.Fatalf("UpsertMessage (redelivery) failed: %v", err)
	}

	messages, err := store.ListMessages(ctx, storage.MessageFilter{ConversationID: msg.ConversationID})
	if err != nil {
		t.Fatalf("ListMessages failed: %v", err)
	}
	if len(messages) != 1 {
		t.Fatalf("Expected 1 message, got %d", len(messages))
	}
	if messages[0].Body != "oi, tudo bem?" {
		t.Errorf("Body mismatch: got %s", messages[0].Body)
	}

	chats, err := store.ListChats(ctx, 10)
	if err != nil {
		t.Fatalf("ListChats failed: %v", err)
	}
	if len(chats) != 1 || chats[0].MessageCount != 1 {
		t.Fatalf("Expected one chat with one message, got %+v", chats)
	}
	if chats[0].DisplayName != "Maria" {
		t.Errorf("DisplayName mismatch: got %s", chats[0].DisplayName)
	}
}

func TestListMessagesNewestFirst(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	base := time.Now()

	for i := 0; i < 4; i++ {
		err := store.UpsertMessage(ctx, &storage.MessageRecord{
			ConversationID: "c1@s.whatsapp.net",
			MessageID:      fmt.Sprintf("M%d", i),
			Kind:           "text",
			FromMe:         i%2 == 1,
			Timestamp:      base.Add(time.Duration(i) * time.Second),
		})
		if err != nil {
			t.Fatalf("UpsertMessage failed: %v", err)
		}
	}

	page, err := store.ListMessages(ctx, storage.MessageFilter{ConversationID: "c1@s.whatsapp.net", Limit: 3})
	if err != nil {
		t.Fatalf("ListMessages failed: %v", err)
	}
	if len(page) != 3 || page[0].MessageID != "M3" || page[2].MessageID != "M1" {
		t.Fatalf("Unexpected page: %+v", page)
	}

	before := page[2].Timestamp
	page, err = store.ListMessages(ctx, storage.MessageFilter{ConversationID: "c1@s.whatsapp.net", Before: &before})
	if err != nil {
		t.Fatalf("ListMessages with cursor failed: %v", err)
	}
	if len(page) != 1 || page[0].MessageID != "M0" {
		t.Errorf("Unexpected page after cursor: %+v", page)
	}

	chats, err := store.ListChats(ctx, 10)
	if err != nil {
		t.Fatalf("ListChats failed: %v", err)
	}
	if chats[0].MessageCount != 4 || !chats[0].LastFromMe {
		t.Errorf("Chat summary mismatch: %+v", chats[0])
	}
}

func TestListMessagesSameSecondPaging(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	sent := time.Date(2024, 5, 10, 14, 30, 0, 0, time.UTC)

	for _, id := range []string{"3EB0A", "3EB0B", "3EB0C"} {
		err := store.UpsertMessage(ctx, &storage.MessageRecord{
			ConversationID: "c1@s.whatsapp.net",
			MessageID:      id,
			Kind:           "text",
			Timestamp:      sent,
		})
		if err != nil {
			t.Fatalf("UpsertMessage failed: %v", err)
		}
	}

	filter := storage.MessageFilter{ConversationID: "c1@s.whatsapp.net", Limit: 2}
	var seen []string
	for i := 0; i < 3; i++ {
		page, err := store.ListMessages(ctx, filter)
		if err != nil {
			t.Fatalf("ListMessages failed: %v", err)
		}
		for _, msg := range page {
			seen = append(seen, msg.MessageID)
		}
		if len(page) < filter.Limit {
			break
		}
		last := page[len(page)-1]
		filter.Before = &last.Timestamp
		filter.BeforeID = last.MessageID
	}

	if fmt.Sprint(seen) != "[3EB0C 3EB0B 3EB0A]" {
		t.Errorf("Expected every same-second message once, got %v", seen)
	}
}

func TestLeadLifecycle(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()
	base := time.Now()

	for i := 0; i < 3; i++ {
		err := store.CreateLead(ctx, &storage.LeadRecord{
			ID:        fmt.Sprintf("lead-%d", i),
			Name:      fmt.Sprintf("Lead %d", i),
			Phone:     fmt.Sprintf("551190000000%d", i),
			Source:    "whatsapp",
			Status:    types.LeadStatusNew,
			CreatedAt: base.Add(time.Duration(i) * time.Second),
			UpdatedAt: base.Add(time.Duration(i) * time.Second),
		})
		if err != nil {
			t.Fatalf("CreateLead failed: %v", err)
		}
	}

	found, err := store.FindLeadByPhone(ctx, "5511900000001")
	if err != nil {
		t.Fatalf("FindLeadByPhone failed: %v", err)
	}
	if found == nil || found.ID != "lead-1" {
		t.Fatalf("FindLeadByPhone returned %+v", found)
	}

	found.Status = types.LeadStatusContacted
	found.UpdatedAt = time.Now()
	if err := store.UpdateLead(ctx, found); err != nil {
		t.Fatalf("UpdateLead failed: %v", err)
	}

	stats, err := store.GetLeadStats(ctx)
	if err != nil {
		t.Fatalf("GetLeadStats failed: %v", err)
	}
	if stats.Total != 3 || stats.New != 2 || stats.Contacted != 1 {
		t.Errorf("Stats mismatch: %+v", stats)
	}

	leads, total, err := store.ListLeads(ctx, storage.LeadFilter{Limit: 2})
	if err != nil {
		t.Fatalf("ListLeads failed: %v", err)
	}
	if total != 3 || len(leads) != 2 || leads[0].ID != "lead-2" {
		t.Fatalf("Unexpected page: total=%d leads=%d", total, len(leads))
	}

	cursor := leads[1].CreatedAt
	leads, _, err = store.ListLeads(ctx, storage.LeadFilter{Cursor: &cursor})
	if err != nil {
		t.Fatalf("ListLeads with cursor failed: %v", err)
	}
	if len(leads) != 1 || leads[0].ID != "lead-0" {
		t.Errorf("Unexpected page after cursor: %+v", leads)
	}

	status := types.LeadStatusContacted
	leads, total, err = store.ListLeads(ctx, storage.LeadFilter{Status: &status})
	if err != nil {
		t.Fatalf("ListLeads by status failed: %v", err)
	}
	if total != 1 || len(leads) != 1 || leads[0].ID != "lead-1" {
		t.Errorf("Unexpected contacted leads: total=%d %+v", total, leads)
	}

	if err := store.UpdateLead(ctx, &storage.LeadRecord{ID: "missing"}); err == nil {
		t.Error("Expected error updating a missing lead")
	}
}
