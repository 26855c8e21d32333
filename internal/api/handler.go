package api

import (
	"context"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/georgeshao/clinic-crm/internal/adsapi"
	"github.com/georgeshao/clinic-crm/internal/broadcast"
	"github.com/georgeshao/clinic-crm/internal/storage"
	"github.com/georgeshao/clinic-crm/internal/whatsapp"
	"github.com/georgeshao/clinic-crm/pkg/types"
)

const (
	defaultLeadLimit    = 100
	defaultChatLimit    = 50
	defaultMessageLimit = 50

	LeadSourceManual = "manual"
)

// AdsService is the part of *adsapi.Client the handlers use.
type AdsService interface {
	Campaigns(ctx context.Context, status string) ([]types.Campaign, error)
	CampaignInsights(ctx context.Context, status, preset string) (adsapi.Range, []types.InsightRow, error)
	CostPerLeadByRegion(ctx context.Context, preset string) (adsapi.Range, []types.InsightRow, error)
	AdSetGeoInsights(ctx context.Context, campaignID, preset string) (adsapi.Range, []types.InsightRow, error)
}

// WhatsAppService is the part of *whatsapp.Service the handlers use.
type WhatsAppService interface {
	Status() types.WhatsAppStatus
	Connect(ctx context.Context) error
	Disconnect(ctx context.Context)
	Reset(ctx context.Context) error
	SendMessage(ctx context.Context, conversationID, text string) (*storage.MessageRecord, error)
}

type Handler struct {
	store       storage.Store
	ads         AdsService
	whatsapp    WhatsAppService
	hub         *broadcast.Hub
	broadcaster broadcast.Broadcaster
}

// NewHandler wires the handlers. Lead events are published through
// broadcaster; the SSE endpoint reads from hub. Pass the same hub for both
// when nothing else listens.
func NewHandler(store storage.Store, ads AdsService, wa WhatsAppService, hub *broadcast.Hub, broadcaster broadcast.Broadcaster) *Handler {
	if broadcaster == nil {
		broadcaster = hub
	}
	return &Handler{
		store:       store,
		ads:         ads,
		whatsapp:    wa,
		hub:         hub,
		broadcaster: broadcaster,
	}
}

func (h *Handler) ListCampaigns(c *fiber.Ctx) error {
	status := c.Query("status")

	campaigns, err := h.ads.Campaigns(c.Context(), status)
	if err != nil {
		return adsError(c, err)
	}
	if campaigns == nil {
		campaigns = []types.Campaign{}
	}

	return c.JSON(types.CampaignsResponse{
		Status:    strings.ToLower(status),
		Campaigns: campaigns,
	})
}

func (h *Handler) CampaignInsights(c *fiber.Ctx) error {
	r, rows, err := h.ads.CampaignInsights(c.Context(), c.Query("status"), c.Query("range"))
	if err != nil {
		return adsError(c, err)
	}
	return c.JSON(insightsResponse(r, rows))
}

func (h *Handler) RegionInsights(c *fiber.Ctx) error {
	r, rows, err := h.ads.CostPerLeadByRegion(c.Context(), c.Query("range"))
	if err != nil {
		return adsError(c, err)
	}
	return c.JSON(insightsResponse(r, rows))
}

func (h *Handler) CampaignGeoInsights(c *fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return c.Status(fiber.StatusBadRequest).JSON(types.ErrorResponse{Error: "Campaign ID is required"})
	}

	r, rows, err := h.ads.AdSetGeoInsights(c.Context(), id, c.Query("range"))
	if err != nil {
		return adsError(c, err)
	}
	return c.JSON(insightsResponse(r, rows))
}

func (h *Handler) WhatsAppStatus(c *fiber.Ctx) error {
	return c.JSON(h.whatsapp.Status())
}

func (h *Handler) ConnectWhatsApp(c *fiber.Ctx) error {
	if err := h.whatsapp.Connect(c.Context()); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(types.ErrorResponse{Error: "Failed to connect to WhatsApp"})
	}
	return c.Status(fiber.StatusAccepted).JSON(h.whatsapp.Status())
}

func (h *Handler) DisconnectWhatsApp(c *fiber.Ctx) error {
	h.whatsapp.Disconnect(c.Context())
	return c.JSON(h.whatsapp.Status())
}

func (h *Handler) ResetWhatsApp(c *fiber.Ctx) error {
	if err := h.whatsapp.Reset(c.Context()); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(types.ErrorResponse{Error: "Failed to reset WhatsApp session"})
	}
	return c.JSON(h.whatsapp.Status())
}

func (h *Handler) SendMessage(c *fiber.Ctx) error {
	var req types.SendMessageRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(types.ErrorResponse{Error: "Invalid request body"})
	}
	if strings.TrimSpace(req.ConversationID) == "" {
		return c.Status(fiber.StatusBadRequest).JSON(types.ErrorResponse{Error: "Conversation ID is required"})
	}

	record, err := h.whatsapp.SendMessage(c.Context(), req.ConversationID, req.Text)
	if err != nil {
		return whatsappError(c, err)
	}

	return c.Status(fiber.StatusCreated).JSON(record.ToType())
}

func (h *Handler) ListChats(c *fiber.Ctx) error {
	limit := c.QueryInt("limit", defaultChatLimit)

	records, err := h.store.ListChats(c.Context(), limit)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(types.ErrorResponse{Error: "Failed to list chats"})
	}

	chats := make([]types.Chat, len(records))
	for i, record := range records {
		chats[i] = record.ToType()
	}

	return c.JSON(types.ListChatsResponse{Chats: chats})
}

func (h *Handler) ListMessages(c *fiber.Ctx) error {
	conversationID := whatsapp.NormalizeConversationID(c.Params("id"))
	if conversationID == "" {
		return c.Status(fiber.StatusBadRequest).JSON(types.ErrorResponse{Error: "Conversation ID is required"})
	}
	limit := c.QueryInt("limit", defaultMessageLimit)
	if limit <= 0 {
		limit = defaultMessageLimit
	}

	filter := storage.MessageFilter{
		ConversationID: conversationID,
		Limit:          limit,
	}
	if before := c.Query("before"); before != "" {
		t, id, err := parseMessageCursor(before)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(types.ErrorResponse{Error: "Invalid cursor format"})
		}
		filter.Before = &t
		filter.BeforeID = id
	}

	records, err := h.store.ListMessages(c.Context(), filter)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(types.ErrorResponse{Error: "Failed to list messages"})
	}

	messages := make([]types.Message, len(records))
	for i, record := range records {
		messages[i] = record.ToType()
	}

	var nextCursor *string
	if len(records) > 0 && len(records) == limit {
		last := messageCursor(records[len(records)-1])
		nextCursor = &last
	}

	return c.JSON(types.ListMessagesResponse{
		ConversationID: conversationID,
		Messages:       messages,
		NextCursor:     nextCursor,
	})
}

func (h *Handler) CreateLead(c *fiber.Ctx) error {
	var req types.CreateLeadRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(types.ErrorResponse{Error: "Invalid request body"})
	}

	phone := normalizePhone(req.Phone)
	if phone == "" {
		return c.Status(fiber.StatusBadRequest).JSON(types.ErrorResponse{Error: "Phone is required"})
	}

	existing, err := h.store.FindLeadByPhone(c.Context(), phone)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(types.ErrorResponse{Error: "Failed to check lead"})
	}
	if existing != nil {
		return c.Status(fiber.StatusConflict).JSON(types.ErrorResponse{Error: "Lead with this phone already exists"})
	}

	source := strings.TrimSpace(req.Source)
	if source == "" {
		source = LeadSourceManual
	}

	now := time.Now()
	record := &storage.LeadRecord{
		ID:        uuid.New().String(),
		Name:      strings.TrimSpace(req.Name),
		Phone:     phone,
		Email:     req.Email,
		Source:    source,
		Status:    types.LeadStatusNew,
		Notes:     req.Notes,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if record.Name == "" {
		record.Name = phone
	}

	if err := h.store.CreateLead(c.Context(), record); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(types.ErrorResponse{Error: "Failed to create lead"})
	}

	lead := record.ToType()
	h.broadcaster.Broadcast(whatsapp.EventNewLead, lead)

	return c.Status(fiber.StatusCreated).JSON(lead)
}

func (h *Handler) GetLead(c *fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return c.Status(fiber.StatusBadRequest).JSON(types.ErrorResponse{Error: "ID is required"})
	}

	record, err := h.store.GetLead(c.Context(), id)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(types.ErrorResponse{Error: "Failed to get lead"})
	}
	if record == nil {
		return c.Status(fiber.StatusNotFound).JSON(types.ErrorResponse{Error: "Lead not found"})
	}

	return c.JSON(record.ToType())
}

func (h *Handler) UpdateLead(c *fiber.Ctx) error {
	id := c.Params("id")
	if id == "" {
		return c.Status(fiber.StatusBadRequest).JSON(types.ErrorResponse{Error: "ID is required"})
	}

	var req types.UpdateLeadRequest
	if err := c.BodyParser(&req); err != nil {
		return c.Status(fiber.StatusBadRequest).JSON(types.ErrorResponse{Error: "Invalid request body"})
	}
	if req.Status != nil && !req.Status.Valid() {
		return c.Status(fiber.StatusBadRequest).JSON(types.ErrorResponse{Error: "Invalid lead status"})
	}

	existing, err := h.store.GetLead(c.Context(), id)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(types.ErrorResponse{Error: "Failed to get lead"})
	}
	if existing == nil {
		return c.Status(fiber.StatusNotFound).JSON(types.ErrorResponse{Error: "Lead not found"})
	}

	applyLeadUpdate(existing, &req)
	existing.UpdatedAt = time.Now()

	if err := h.store.UpdateLead(c.Context(), existing); err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(types.ErrorResponse{Error: "Failed to update lead"})
	}

	return c.JSON(existing.ToType())
}

func (h *Handler) ListLeads(c *fiber.Ctx) error {
	status := c.Query("status")
	cursor := c.Query("cursor")
	limit := c.QueryInt("limit", defaultLeadLimit)
	if limit <= 0 {
		limit = defaultLeadLimit
	}

	filter := storage.LeadFilter{
		Limit: limit,
	}

	if status != "" {
		s := types.LeadStatus(status)
		if !s.Valid() {
			return c.Status(fiber.StatusBadRequest).JSON(types.ErrorResponse{Error: "Invalid lead status"})
		}
		filter.Status = &s
	}
	if cursor != "" {
		t, err := time.Parse(time.RFC3339Nano, cursor)
		if err != nil {
			return c.Status(fiber.StatusBadRequest).JSON(types.ErrorResponse{Error: "Invalid cursor format"})
		}
		filter.Cursor = &t
	}

	records, total, err := h.store.ListLeads(c.Context(), filter)
	if err != nil {
		return c.Status(fiber.StatusInternalServerError).JSON(types.ErrorResponse{Error: "Failed to list leads"})
	}

	leads := make([]types.Lead, len(records))
	for i, record := range records {
		leads[i] = record.ToType()
	}

	var nextCursor *string
	if len(records) > 0 && len(records) == limit {
		lastCreatedAt := records[len(records)-1].CreatedAt.UTC().Format(time.RFC3339Nano)
		nextCursor = &lastCreatedAt
	}

	resp := types.ListLeadsResponse{
		Leads:      leads,
		Total:      total,
		Limit:      limit,
		NextCursor: nextCursor,
	}

	if c.QueryBool("stats") {
		stats, err := h.store.GetLeadStats(c.Context())
		if err != nil {
			return c.Status(fiber.StatusInternalServerError).JSON(types.ErrorResponse{Error: "Failed to get lead stats"})
		}
		resp.Stats = stats
	}

	return c.JSON(resp)
}
