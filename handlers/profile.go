package handlers

import (
	"fmt"

	"github.com/gofiber/fiber/v2"

	"conference-central/errors"
	"conference-central/middleware"
	"conference-central/model"
)

func (h *Handlers) GetProfile(c *fiber.Ctx) error {
	p, err := h.api.GetProfile(c.UserContext(), middleware.Identity(c))
	if err != nil {
		return errors.RaiseFromError(c, err)
	}
	return errors.Success(c, "profile", p)
}

func (h *Handlers) SaveProfile(c *fiber.Ctx) error {
	form := new(model.ProfileForm)
	if err := parseBody(c, form); err != nil {
		return errors.RaiseBadRequestError(c, fmt.Sprintf("unacceptable profile parameters: %v", err))
	}
	p, err := h.api.SaveProfile(c.UserContext(), middleware.Identity(c), *form)
	if err != nil {
		return errors.RaiseFromError(c, err)
	}
	return errors.Success(c, "profile saved", p)
}
