package model

import "time"

// ProfileForm carries the editable profile fields sent by a client.
type ProfileForm struct {
	DisplayName  string       `json:"displayName" validate:"max=100"`
	TeeShirtSize TeeShirtSize `json:"teeShirtSize" validate:"omitempty,oneof=NOT_SPECIFIED XS S M L XL XXL XXXL"`
}

// ConferenceForm carries the fields an organizer supplies when creating a
// conference.
type ConferenceForm struct {
	Name         string     `json:"name" validate:"required,min=2,max=200"`
	Description  string     `json:"description" validate:"max=2000"`
	City         string     `json:"city" validate:"max=100"`
	Topics       []string   `json:"topics" validate:"max=20,dive,max=100"`
	StartDate    *time.Time `json:"startDate"`
	EndDate      *time.Time `json:"endDate" validate:"omitempty,gtefield=StartDate"`
	Month        int        `json:"month" validate:"min=0,max=12"`
	MaxAttendees int        `json:"maxAttendees" validate:"min=0"`
}
