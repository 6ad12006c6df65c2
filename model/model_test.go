package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"conference-central/keys"
)

func TestNewProfileDefaults(t *testing.T) {
	p := NewProfile(Identity{UserID: "u1", Email: "lemoncake@example.com"}, "", "")

	assert.Equal(t, "lemoncake", p.DisplayName)
	assert.Equal(t, TeeShirtNotSpecified, p.TeeShirtSize)
	assert.Equal(t, "lemoncake@example.com", p.MainEmail)
	assert.Empty(t, p.ConferenceKeysToAttend)
	assert.Equal(t, keys.ProfileKey("u1"), p.Key())
	assert.Equal(t, "no-at-sign", DefaultDisplayName("no-at-sign"))
}

func TestProfileUpdate(t *testing.T) {
	p := NewProfile(Identity{UserID: "u1", Email: "a@b.c"}, "Ann", TeeShirtM)

	assert.False(t, p.Update("Ann", TeeShirtM))
	assert.True(t, p.Update("Ann", TeeShirtL))
	assert.Equal(t, TeeShirtL, p.TeeShirtSize)
}

func TestProfileConferenceKeys(t *testing.T) {
	p := NewProfile(Identity{UserID: "u1"}, "x", "")

	assert.True(t, p.AddConferenceKey("a"))
	assert.True(t, p.AddConferenceKey("b"))
	assert.True(t, p.AddConferenceKey("c"))
	assert.False(t, p.AddConferenceKey("b"), "duplicates are rejected")
	assert.Equal(t, []string{"a", "b", "c"}, p.ConferenceKeysToAttend)

	assert.True(t, p.RemoveConferenceKey("b"))
	assert.False(t, p.RemoveConferenceKey("b"))
	assert.Equal(t, []string{"a", "c"}, p.ConferenceKeysToAttend)
	assert.True(t, p.IsRegistered("c"))
	assert.False(t, p.IsRegistered("b"))
}

func TestNewConference(t *testing.T) {
	start := time.Date(2026, time.June, 3, 0, 0, 0, 0, time.UTC)
	key, err := keys.ConferenceKey(keys.ProfileKey("org"), 9)
	require.NoError(t, err)

	c := NewConference(key, ConferenceForm{
		Name:         "  GopherCon ",
		City:         "London",
		Topics:       []string{"Go", " ", "Go", "Cloud"},
		StartDate:    &start,
		MaxAttendees: 50,
	})

	assert.Equal(t, "GopherCon", c.Name)
	assert.Equal(t, []string{"Go", "Cloud"}, c.Topics)
	assert.Equal(t, 6, c.Month)
	assert.Equal(t, 50, c.SeatsAvailable)
	assert.Equal(t, key, c.Key())
	assert.True(t, c.HasTopic("Cloud"))
	assert.Equal(t, `Conference "GopherCon" in London starting 2026-06-03, topics: Go, Cloud, 50 of 50 seats available`, c.Summary())
}

func TestBookAndGiveBackSeats(t *testing.T) {
	c := Conference{MaxAttendees: 2, SeatsAvailable: 2}

	require.NoError(t, c.BookSeats(1))
	require.NoError(t, c.BookSeats(1))
	assert.True(t, c.IsFull())
	assert.Equal(t, 2, c.BookedSeats())
	assert.ErrorIs(t, c.BookSeats(1), ErrNoSeatsAvailable)
	assert.Equal(t, 0, c.SeatsAvailable)

	require.NoError(t, c.GiveBackSeats(2))
	assert.ErrorIs(t, c.GiveBackSeats(1), ErrSeatOverflow)
	assert.Equal(t, 2, c.SeatsAvailable)
	assert.Error(t, c.BookSeats(0))
}
