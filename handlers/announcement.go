package handlers

import (
	"github.com/gofiber/fiber/v2"

	"conference-central/errors"
	"conference-central/middleware"
)

func (h *Handlers) GetAnnouncement(c *fiber.Ctx) error {
	a, err := h.api.GetAnnouncement(c.UserContext(), middleware.Identity(c))
	if err != nil {
		return errors.RaiseFromError(c, err)
	}
	return errors.Success(c, "announcement", a)
}
