package handlers

import (
	"github.com/gofiber/fiber/v2"

	"conference-central/errors"
	"conference-central/middleware"
)

func (h *Handlers) RegisterForConference(c *fiber.Ctx) error {
	res, err := h.api.Register(c.UserContext(), middleware.Identity(c), c.Params("key"))
	if err != nil {
		return errors.RaiseFromRegistrationError(c, err)
	}
	return errors.Success(c, "registered", res.Conference)
}

func (h *Handlers) UnregisterFromConference(c *fiber.Ctx) error {
	res, err := h.api.Unregister(c.UserContext(), middleware.Identity(c), c.Params("key"))
	if err != nil {
		return errors.RaiseFromRegistrationError(c, err)
	}
	return errors.Success(c, "registration cancelled", res.Conference)
}
