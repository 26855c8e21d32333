package api

import (
	"bufio"
	"encoding/json"
	"fmt"
	"time"

	"github.com/gofiber/fiber/v2"

	"github.com/georgeshao/clinic-crm/internal/whatsapp"
)

const keepAliveInterval = 25 * time.Second

// StreamEvents serves broadcasts as server-sent events. The first event is
// always the current WhatsApp status so a fresh tab can render right away.
func (h *Handler) StreamEvents(c *fiber.Ctx) error {
	c.Set(fiber.HeaderContentType, "text/event-stream")
	c.Set(fiber.HeaderCacheControl, "no-cache")
	c.Set(fiber.HeaderConnection, "keep-alive")
	c.Set("X-Accel-Buffering", "no")

	sub := h.hub.Subscribe()
	initial, err := json.Marshal(h.whatsapp.Status())
	if err != nil {
		sub.Close()
		return err
	}

	c.Context().SetBodyStreamWriter(func(w *bufio.Writer) {
		defer sub.Close()

		if err := writeEvent(w, whatsapp.EventStatus, initial); err != nil {
			return
		}

		ticker := time.NewTicker(keepAliveInterval)
		defer ticker.Stop()

		for {
			select {
			case msg, ok := <-sub.C:
				if !ok {
					return
				}
				if err := writeEvent(w, msg.Event, msg.Payload); err != nil {
					return
				}
			case <-ticker.C:
				if _, err := w.WriteString(": ping\n\n"); err != nil {
					return
				}
				if err := w.Flush(); err != nil {
					return
				}
			}
		}
	})

	return nil
}

// writeEvent writes one SSE frame and flushes it. A flush error means the
// client went away.
func writeEvent(w *bufio.Writer, event string, data []byte) error {
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", event, data); err != nil {
		return err
	}
	return w.Flush()
}
