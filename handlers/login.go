package handlers

import (
	"fmt"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v4"
	"golang.org/x/crypto/bcrypt"

	"conference-central/errors"
	"conference-central/logging"
	"conference-central/model"
)

func isPasswordHashCorrect(dbHash, pass string) bool {
	err := bcrypt.CompareHashAndPassword([]byte(dbHash), []byte(pass))
	return err == nil
}

func (h *Handlers) findAccount(login string) (model.UserData, bool) {
	for _, a := range h.auth.Accounts {
		if a.Login == login {
			return a, true
		}
	}
	return model.UserData{}, false
}

// Login exchanges account credentials for a signed token carrying the
// user ID and email.
func (h *Handlers) Login(c *fiber.Ctx) error {
	type Credentials struct {
		Login    string `json:"login"`
		Password string `json:"password"`
	}

	creds := new(Credentials)
	if err := parseBody(c, creds); err != nil {
		return errors.RaiseBadRequestError(c, fmt.Sprintf("unacceptable credentials: %v", err))
	}

	user, found := h.findAccount(creds.Login)
	if !found || !isPasswordHashCorrect(user.HashedPassword, creds.Password) {
		return errors.RaiseUnauthorizedError(c, "invalid login or password")
	}

	claims := jwt.MapClaims{
		"sub":   user.UserID,
		"email": user.Email,
		"exp":   h.now().Add(h.auth.TokenTTL).Unix(),
	}
	t, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(h.auth.SigningKey))
	if err != nil {
		logging.Ctx(c.UserContext()).Error().Err(err).Msg("signing token failed")
		return errors.RaiseInternalServerError(c, "token could not be issued")
	}

	return errors.Success(c, "Success login", t)
}
