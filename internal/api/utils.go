package api

import (
	"context"
	"errors"
	"log"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/gofiber/fiber/v2"

	"github.com/georgeshao/clinic-crm/internal/adsapi"
	"github.com/georgeshao/clinic-crm/internal/storage"
	"github.com/georgeshao/clinic-crm/internal/whatsapp"
	"github.com/georgeshao/clinic-crm/pkg/types"
)

// defaultRetryAfterSeconds is sent with 429 answers when the client could
// not tell when its limiter frees up.
const defaultRetryAfterSeconds = 5

func adsError(c *fiber.Ctx, err error) error {
	var throttled *adsapi.ThrottledError
	var remote *adsapi.RemoteError

	switch {
	case errors.Is(err, adsapi.ErrNotConfigured):
		return c.Status(fiber.StatusServiceUnavailable).JSON(types.ErrorResponse{Error: "Ads API is not configured"})
	case errors.As(err, &throttled):
		log.Printf("[api] Ads query throttled: %v", err)
		c.Set(fiber.HeaderRetryAfter, strconv.Itoa(retryAfterSeconds(throttled.RetryAfter)))
		return c.Status(fiber.StatusTooManyRequests).JSON(types.ErrorResponse{Error: "Ads API rate limit reached, try again later"})
	case errors.As(err, &remote):
		log.Printf("[api] Ads query failed: %v", err)
		return c.Status(fiber.StatusBadGateway).JSON(types.ErrorResponse{Error: "Ads API request failed"})
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return c.Status(fiber.StatusGatewayTimeout).JSON(types.ErrorResponse{Error: "Ads API request timed out"})
	default:
		log.Printf("[api] Ads query failed: %v", err)
		return c.Status(fiber.StatusInternalServerError).JSON(types.ErrorResponse{Error: "Failed to query ads API"})
	}
}

// retryAfterSeconds rounds up so clients never retry before the limiter
// allows it.
func retryAfterSeconds(d time.Duration) int {
	if d <= 0 {
		return defaultRetryAfterSeconds
	}
	return int((d + time.Second - 1) / time.Second)
}

// messageCursor marks the oldest message of a page. The message id breaks
// ties between messages sent within the same second.
func messageCursor(record *storage.MessageRecord) string {
	return record.Timestamp.UTC().Format(time.RFC3339Nano) + "|" + record.MessageID
}

// parseMessageCursor also accepts a bare timestamp, which pages strictly
// before that instant.
func parseMessageCursor(cursor string) (time.Time, string, error) {
	ts, id, _ := strings.Cut(cursor, "|")
	t, err := time.Parse(time.RFC3339Nano, ts)
	if err != nil {
		return time.Time{}, "", err
	}
	return t, id, nil
}

func whatsappError(c *fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, whatsapp.ErrNotConnected):
		return c.Status(fiber.StatusConflict).JSON(types.ErrorResponse{Error: "WhatsApp is not connected"})
	case errors.Is(err, whatsapp.ErrEmptyMessage):
		return c.Status(fiber.StatusBadRequest).JSON(types.ErrorResponse{Error: "Text is required"})
	default:
		log.Printf("[api] Send failed: %v", err)
		return c.Status(fiber.StatusBadGateway).JSON(types.ErrorResponse{Error: "Failed to send message"})
	}
}

func insightsResponse(r adsapi.Range, rows []types.InsightRow) types.InsightsResponse {
	if rows == nil {
		rows = []types.InsightRow{}
	}
	return types.InsightsResponse{
		Range: r.ToType(),
		Rows:  rows,
	}
}

// normalizePhone keeps only the digits, so "+55 (11) 98888-7777" and the
// phone derived from a WhatsApp jid compare equal.
func normalizePhone(phone string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsDigit(r) {
			return r
		}
		return -1
	}, phone)
}

func applyLeadUpdate(record *storage.LeadRecord, req *types.UpdateLeadRequest) {
	if req.Name != nil {
		record.Name = strings.TrimSpace(*req.Name)
	}
	if req.Email != nil {
		if *req.Email == "" {
			record.Email = nil
		} else {
			email := *req.Email
			record.Email = &email
		}
	}
	if req.Status != nil {
		record.Status = *req.Status
	}
	if req.Notes != nil {
		record.Notes = *req.Notes
	}
}
