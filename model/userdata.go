package model

// UserData is a login account allowed to obtain an API token. Accounts are
// provisioned through configuration; the password is stored as a bcrypt hash.
type UserData struct {
	Login          string `json:"login" koanf:"login" validate:"required"`
	HashedPassword string `json:"-" koanf:"password_hash" validate:"required"`
	UserID         string `json:"userId" koanf:"user_id" validate:"required"`
	Email          string `json:"email" koanf:"email" validate:"required,email"`
}
