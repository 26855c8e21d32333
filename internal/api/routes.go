package api

import (
	"github.com/gofiber/fiber/v2"
)

// SetupRoutes registers the API. A non-empty jwtSecret puts every /v1
// route behind RequireJWT; /health stays open.
func SetupRoutes(app *fiber.App, h *Handler, jwtSecret string) {
	app.Get("/health", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"status": "ok"})
	})

	v1 := app.Group("/v1")
	if jwtSecret != "" {
		v1.Use(RequireJWT(jwtSecret))
	}

	ads := v1.Group("/ads")
	ads.Get("/campaigns", h.ListCampaigns)
	ads.Get("/campaigns/:id/geo", h.CampaignGeoInsights)
	ads.Get("/insights", h.CampaignInsights)
	ads.Get("/regions", h.RegionInsights)

	wa := v1.Group("/whatsapp")
	wa.Get("/status", h.WhatsAppStatus)
	wa.Post("/connect", h.ConnectWhatsApp)
	wa.Post("/disconnect", h.DisconnectWhatsApp)
	wa.Post("/reset", h.ResetWhatsApp)
	wa.Post("/send", h.SendMessage)
	wa.Get("/chats", h.ListChats)
	wa.Get("/chats/:id/messages", h.ListMessages)

	v1.Get("/events", h.StreamEvents)

	v1.Get("/leads", h.ListLeads)
	v1.Post("/leads", h.CreateLead)
	v1.Get("/leads/:id", h.GetLead)
	v1.Patch("/leads/:id", h.UpdateLead)
}
