package routes

import (
	"github.com/gofiber/fiber/v2"

	"github.com/solwave/solwave/internal/address"
)

// RegisterAddressRoutes exposes identity validation and formatting.
func RegisterAddressRoutes(r fiber.Router, network string) {
	r.Get("/address/:identity", func(c *fiber.Ctx) error {
		identity := c.Params("identity")
		if err := address.Validate(identity); err != nil {
			return c.JSON(fiber.Map{
				"identity": identity,
				"valid":    false,
				"error":    err.Error(),
			})
		}
		return c.JSON(fiber.Map{
			"identity":     identity,
			"valid":        true,
			"short":        address.Short(identity),
			"explorer_url": address.ExplorerURL(identity, network),
		})
	})
}
