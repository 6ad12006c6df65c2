package model

import (
	"strings"

	"conference-central/keys"
)

type TeeShirtSize string

const (
	TeeShirtNotSpecified TeeShirtSize = "NOT_SPECIFIED"
	TeeShirtXS           TeeShirtSize = "XS"
	TeeShirtS            TeeShirtSize = "S"
	TeeShirtM            TeeShirtSize = "M"
	TeeShirtL            TeeShirtSize = "L"
	TeeShirtXL           TeeShirtSize = "XL"
	TeeShirtXXL          TeeShirtSize = "XXL"
	TeeShirtXXXL         TeeShirtSize = "XXXL"
)

// Profile is keyed by UserID; there is at most one per user.
type Profile struct {
	UserID                 string       `json:"userId" bson:"user_id"`
	DisplayName            string       `json:"displayName" bson:"display_name"`
	MainEmail              string       `json:"mainEmail" bson:"main_email"`
	TeeShirtSize           TeeShirtSize `json:"teeShirtSize" bson:"tee_shirt_size"`
	ConferenceKeysToAttend []string     `json:"conferenceKeysToAttend" bson:"conference_keys_to_attend"`
}

// NewProfile creates a profile for a caller. An empty display name falls
// back to the local part of the email address, an empty size to
// NOT_SPECIFIED.
func NewProfile(id Identity, displayName string, size TeeShirtSize) Profile {
	if displayName == "" {
		displayName = DefaultDisplayName(id.Email)
	}
	if size == "" {
		size = TeeShirtNotSpecified
	}
	return Profile{
		UserID:                 id.UserID,
		DisplayName:            displayName,
		MainEmail:              id.Email,
		TeeShirtSize:           size,
		ConferenceKeysToAttend: []string{},
	}
}

// DefaultDisplayName returns "lemoncake" for "lemoncake@example.com".
func DefaultDisplayName(email string) string {
	if i := strings.Index(email, "@"); i >= 0 {
		return email[:i]
	}
	return email
}

func (p Profile) Key() keys.Key {
	return keys.ProfileKey(p.UserID)
}

// Update changes the mutable fields and reports whether anything changed.
func (p *Profile) Update(displayName string, size TeeShirtSize) bool {
	if displayName == p.DisplayName && size == p.TeeShirtSize {
		return false
	}
	p.DisplayName = displayName
	p.TeeShirtSize = size
	return true
}

// IsRegistered reports whether the websafe conference key is in the
// attendance list.
func (p Profile) IsRegistered(websafeKey string) bool {
	for _, k := range p.ConferenceKeysToAttend {
		if k == websafeKey {
			return true
		}
	}
	return false
}

// AddConferenceKey appends websafeKey unless already present.
func (p *Profile) AddConferenceKey(websafeKey string) bool {
	if p.IsRegistered(websafeKey) {
		return false
	}
	p.ConferenceKeysToAttend = append(p.ConferenceKeysToAttend, websafeKey)
	return true
}

// RemoveConferenceKey removes websafeKey, preserving the order of the rest.
func (p *Profile) RemoveConferenceKey(websafeKey string) bool {
	for i, k := range p.ConferenceKeysToAttend {
		if k == websafeKey {
			p.ConferenceKeysToAttend = append(p.ConferenceKeysToAttend[:i:i], p.ConferenceKeysToAttend[i+1:]...)
			return true
		}
	}
	return false
}
