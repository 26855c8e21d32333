package supabase

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/georgeshao/clinic-crm/internal/storage"
)

type capturedRequest struct {
	Method string
	Path   string
	Query  map[string][]string
	Prefer string
	Body   string
}

// fakePostgREST answers PostgREST calls from canned bodies keyed by table.
type fakePostgREST struct {
	mu       sync.Mutex
	requests []capturedRequest
	bodies   map[string]string
	total    string
}

func (f *fakePostgREST) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)

	f.mu.Lock()
	f.requests = append(f.requests, capturedRequest{
		Method: r.Method,
		Path:   r.URL.Path,
		Query:  r.URL.Query(),
		Prefer: r.Header.Get("Prefer"),
		Body:   string(body),
	})
	f.mu.Unlock()

	table := strings.TrimPrefix(r.URL.Path, "/rest/v1/")
	w.Header().Set("Content-Type", "application/json")
	if f.total != "" {
		w.Header().Set("Content-Range", "0-0/"+f.total)
	}
	if r.Method == http.MethodGet {
		if b, ok := f.bodies[table]; ok {
			io.WriteString(w, b)
			return
		}
		io.WriteString(w, "[]")
		return
	}
	w.WriteHeader(http.StatusCreated)
}

func setupTestStore(t *testing.T, fake *fakePostgREST) *SupabaseStore {
	t.Helper()
	server := httptest.NewServer(fake)
	t.Cleanup(server.Close)

	store, err := New(Config{URL: server.URL, APIKey: "service-key"})
	require.NoError(t, err)
	return store
}

func TestNew_RequiresCredentials(t *testing.T) {
	_, err := New(Config{APIKey: "k"})
	assert.Error(t, err)
	_, err = New(Config{URL: "https://x.supabase.co"})
	assert.Error(t, err)
}

func TestUpsertMessage_ConflictsOnCompositeKey(t *testing.T) {
	fake := &fakePostgREST{}
	store := setupTestStore(t, fake)

	err := store.UpsertMessage(context.Background(), &storage.MessageRecord{
		ConversationID: "5511988887777@s.whatsapp.net",
		MessageID:      "M1",
		Body:           "oi",
		Kind:           "text",
		Timestamp:      time.Unix(1700000000, 0),
	})
	require.NoError(t, err)

	require.Len(t, fake.requests, 1)
	req := fake.requests[0]
	assert.Equal(t, http.MethodPost, req.Method)
	assert.Equal(t, "/rest/v1/messages", req.Path)
	assert.Equal(t, []string{"conversation_id,message_id"}, req.Query["on_conflict"])
	assert.Contains(t, req.Prefer, "merge-duplicates")

	var row map[string]any
	require.NoError(t, json.Unmarshal([]byte(req.Body), &row))
	assert.Equal(t, "M1", row["message_id"])
	assert.Equal(t, "2023-11-14T22:13:20Z", row["timestamp"])
}

func TestGetLead(t *testing.T) {
	fake := &fakePostgREST{bodies: map[string]string{
		"leads": `[{"id":"lead-1","name":"Maria","phone":"5511988887777","email":null,"source":"whatsapp","status":"new","notes":"","created_at":"2024-05-01T12:00:00Z","updated_at":"2024-05-01T12:00:00Z"}]`,
	}}
	store := setupTestStore(t, fake)

	lead, err := store.GetLead(context.Background(), "lead-1")
	require.NoError(t, err)
	require.NotNil(t, lead)
	assert.Equal(t, "Maria", lead.Name)
	assert.Nil(t, lead.Email)
	assert.Equal(t, []string{"eq.lead-1"}, fake.requests[0].Query["id"])
}

func TestFindLeadByPhone_Missing(t *testing.T) {
	store := setupTestStore(t, &fakePostgREST{})

	lead, err := store.FindLeadByPhone(context.Background(), "000")
	require.NoError(t, err)
	assert.Nil(t, lead)
}

func TestListLeads_UsesExactCount(t *testing.T) {
	fake := &fakePostgREST{
		total: "7",
		bodies: map[string]string{
			"leads": `[{"id":"lead-1","status":"new","created_at":"2024-05-01T12:00:00Z","updated_at":"2024-05-01T12:00:00Z"}]`,
		},
	}
	store := setupTestStore(t, fake)

	leads, total, err := store.ListLeads(context.Background(), storage.LeadFilter{Limit: 1})
	require.NoError(t, err)
	assert.Equal(t, 7, total)
	require.Len(t, leads, 1)
	assert.Equal(t, "lead-1", leads[0].ID)
}
