package model

type Announcement struct {
	Message string `json:"message"`
}
