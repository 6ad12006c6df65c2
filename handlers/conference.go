package handlers

import (
	"fmt"

	"github.com/gofiber/fiber/v2"

	"conference-central/errors"
	"conference-central/middleware"
	"conference-central/model"
	"conference-central/query"
)

func (h *Handlers) CreateConference(c *fiber.Ctx) error {
	form := new(model.ConferenceForm)
	if err := c.BodyParser(form); err != nil {
		return errors.RaiseBadRequestError(c, fmt.Sprintf("unacceptable conference parameters: %v", err))
	}
	conf, err := h.api.CreateConference(c.UserContext(), middleware.Identity(c), *form)
	if err != nil {
		return errors.RaiseFromError(c, err)
	}
	c.Status(fiber.StatusCreated)
	return errors.Success(c, "conference created", conf)
}

func (h *Handlers) GetConference(c *fiber.Ctx) error {
	conf, err := h.api.GetConference(c.UserContext(), c.Params("key"))
	if err != nil {
		return errors.RaiseFromError(c, err)
	}
	return errors.Success(c, "conference", conf)
}

// QueryConferences runs the filters and sort order in the request body.
// An empty body lists every conference by name.
func (h *Handlers) QueryConferences(c *fiber.Ctx) error {
	form := new(query.Form)
	if err := parseBody(c, form); err != nil {
		return errors.RaiseBadRequestError(c, fmt.Sprintf("unacceptable query: %v", err))
	}
	cs, err := h.api.ListConferences(c.UserContext(), *form)
	if err != nil {
		return errors.RaiseFromError(c, err)
	}
	return errors.Success(c, "conferences", cs)
}

func (h *Handlers) GetConferencesCreated(c *fiber.Ctx) error {
	cs, err := h.api.ListConferencesOwnedBy(c.UserContext(), middleware.Identity(c))
	if err != nil {
		return errors.RaiseFromError(c, err)
	}
	return errors.Success(c, "conferences", cs)
}

func (h *Handlers) GetConferencesToAttend(c *fiber.Ctx) error {
	cs, err := h.api.ListConferencesAttendedBy(c.UserContext(), middleware.Identity(c))
	if err != nil {
		return errors.RaiseFromError(c, err)
	}
	return errors.Success(c, "conferences", cs)
}
