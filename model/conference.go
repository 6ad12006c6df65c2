package model

import (
	"fmt"
	"strings"
	"time"

	"conference-central/keys"
)

// Conference is owned by its organizer's profile; its key is the organizer's
// profile key plus a store-assigned ID.
type Conference struct {
	ID              int64      `json:"id" bson:"conference_id"`
	WebsafeKey      string     `json:"websafeConferenceKey" bson:"websafe_key"`
	OrganizerUserID string     `json:"organizerUserId" bson:"organizer_user_id"`
	Name            string     `json:"name" bson:"name"`
	Description     string     `json:"description" bson:"description"`
	City            string     `json:"city" bson:"city"`
	Topics          []string   `json:"topics" bson:"topics"`
	StartDate       *time.Time `json:"startDate,omitempty" bson:"start_date,omitempty"`
	EndDate         *time.Time `json:"endDate,omitempty" bson:"end_date,omitempty"`
	Month           int        `json:"month" bson:"month"`
	MaxAttendees    int        `json:"maxAttendees" bson:"max_attendees"`
	SeatsAvailable  int        `json:"seatsAvailable" bson:"seats_available"`
}

// NewConference builds a conference from the organizer's form. All seats
// start out available.
func NewConference(key keys.Key, form ConferenceForm) Conference {
	conf := Conference{
		ID:              key.ID,
		OrganizerUserID: key.UserID,
		Name:            strings.TrimSpace(form.Name),
		Description:     strings.TrimSpace(form.Description),
		City:            strings.TrimSpace(form.City),
		Topics:          normalizeTopics(form.Topics),
		StartDate:       form.StartDate,
		EndDate:         form.EndDate,
		Month:           form.Month,
		MaxAttendees:    form.MaxAttendees,
		SeatsAvailable:  form.MaxAttendees,
	}
	if conf.Month == 0 && conf.StartDate != nil {
		conf.Month = int(conf.StartDate.Month())
	}
	return conf
}

// normalizeTopics trims topics and drops blanks and duplicates, keeping the
// first occurrence order.
func normalizeTopics(topics []string) []string {
	out := make([]string, 0, len(topics))
	seen := make(map[string]struct{}, len(topics))
	for _, t := range topics {
		t = strings.TrimSpace(t)
		if t == "" {
			continue
		}
		if _, dup := seen[t]; dup {
			continue
		}
		seen[t] = struct{}{}
		out = append(out, t)
	}
	return out
}

// Key returns the conference's key, derived from organizer and ID.
func (c Conference) Key() keys.Key {
	return keys.Key{Kind: keys.KindConference, UserID: c.OrganizerUserID, ID: c.ID}
}

// HasTopic reports whether topic is one of the conference's topics.
func (c Conference) HasTopic(topic string) bool {
	for _, t := range c.Topics {
		if t == topic {
			return true
		}
	}
	return false
}

// Summary is the short descriptor sent with notifications.
func (c Conference) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "Conference %q", c.Name)
	if c.City != "" {
		fmt.Fprintf(&b, " in %s", c.City)
	}
	if c.StartDate != nil {
		fmt.Fprintf(&b, " starting %s", c.StartDate.Format("2006-01-02"))
	} else if c.Month != 0 {
		fmt.Fprintf(&b, " (%s)", time.Month(c.Month))
	}
	if len(c.Topics) > 0 {
		fmt.Fprintf(&b, ", topics: %s", strings.Join(c.Topics, ", "))
	}
	fmt.Fprintf(&b, ", %d of %d seats available", c.SeatsAvailable, c.MaxAttendees)
	return b.String()
}
