package routes

import (
	"net/http"

	"github.com/gofiber/fiber/v2"

	"github.com/solwave/solwave/internal/journal"
)

// RegisterJournalRoutes exposes recent session events.
func RegisterJournalRoutes(r fiber.Router, repo journal.Repository) {
	r.Get("/journal", func(c *fiber.Ctx) error {
		limit := c.QueryInt("limit", journal.DefaultLimit)
		records, err := repo.List(c.UserContext(), limit)
		if err != nil {
			return fiber.NewError(http.StatusInternalServerError, "journal unavailable")
		}
		if records == nil {
			records = []journal.Record{}
		}
		return c.JSON(fiber.Map{"records": records})
	})
}
