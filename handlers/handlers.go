// Package handlers adapts the conference operations to HTTP. Each handler
// reads the caller from the verified token, calls the service and writes
// the JSON envelope.
package handlers

import (
	"time"

	"github.com/gofiber/fiber/v2"

	"conference-central/errors"
	"conference-central/model"
	"conference-central/service"
)

// AuthSettings configures token issuing at /login.
type AuthSettings struct {
	SigningKey string
	TokenTTL   time.Duration
	Accounts   []model.UserData
}

type Handlers struct {
	api  *service.ConferenceAPI
	auth AuthSettings
	now  func() time.Time
}

func New(api *service.ConferenceAPI, auth AuthSettings) *Handlers {
	return &Handlers{api: api, auth: auth, now: time.Now}
}

// Health reports that the process is serving requests.
func (h *Handlers) Health(c *fiber.Ctx) error {
	return errors.Success(c, "ok", nil)
}

// parseBody decodes an optional body into out. An empty body leaves out
// untouched.
func parseBody(c *fiber.Ctx, out any) error {
	if len(c.Body()) == 0 {
		return nil
	}
	return c.BodyParser(out)
}
