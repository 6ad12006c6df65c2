// Package keys implements the hierarchical entity identifiers used across
// the store and the API boundary.
//
// A Profile key is derived from the caller's user id. A Conference key is a
// child of the organizer's Profile key plus a numeric id assigned by the
// store, so the owning Profile can always be recovered from it.
//
// Keys cross the boundary only as websafe strings produced by Encode. The
// string is the base64url form of a deterministic CBOR encoding of the key
// path; Decode accepts nothing but the exact bytes Encode would produce.
package keys

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
)

const (
	KindProfile    = "Profile"
	KindConference = "Conference"
)

// ErrMalformedKey is returned by Decode for any string Encode could not
// have produced.
var ErrMalformedKey = errors.New("malformed key")

// Key identifies a Profile or a Conference. Keys are comparable values.
type Key struct {
	Kind string
	// UserID is the profile's own id for Profile keys and the owning
	// (organizer) profile's id for Conference keys.
	UserID string
	// ID is the store-assigned component of a Conference key; zero for
	// Profile keys.
	ID int64
}

// ProfileKey returns the key of the profile owned by userID.
func ProfileKey(userID string) Key {
	return Key{Kind: KindProfile, UserID: userID}
}

// ConferenceKey builds the key of conference id owned by the given profile.
func ConferenceKey(owner Key, id int64) (Key, error) {
	if owner.Kind != KindProfile || owner.UserID == "" {
		return Key{}, fmt.Errorf("conference owner must be a profile key, got %s", owner)
	}
	if id <= 0 {
		return Key{}, fmt.Errorf("conference id must be positive, got %d", id)
	}
	return Key{Kind: KindConference, UserID: owner.UserID, ID: id}, nil
}

// IDAllocator hands out store-assigned numeric ids scoped under a parent key.
type IDAllocator interface {
	AllocateID(ctx context.Context, parent Key, kind string) (int64, error)
}

// NewConferenceKey allocates a fresh conference key under owner.
func NewConferenceKey(ctx context.Context, a IDAllocator, owner Key) (Key, error) {
	if owner.Kind != KindProfile || owner.UserID == "" {
		return Key{}, fmt.Errorf("conference owner must be a profile key, got %s", owner)
	}
	id, err := a.AllocateID(ctx, owner, KindConference)
	if err != nil {
		return Key{}, fmt.Errorf("allocate conference id: %w", err)
	}
	return ConferenceKey(owner, id)
}

// IsZero reports whether the key is incomplete.
func (k Key) IsZero() bool {
	switch k.Kind {
	case KindProfile:
		return k.UserID == ""
	case KindConference:
		return k.UserID == "" || k.ID <= 0
	default:
		return true
	}
}

// Parent returns the owning profile key of a conference key. A profile key
// has no parent.
func (k Key) Parent() (Key, bool) {
	if k.Kind != KindConference {
		return Key{}, false
	}
	return ProfileKey(k.UserID), true
}

// IsDescendantOf reports whether k lives under ancestor.
func (k Key) IsDescendantOf(ancestor Key) bool {
	parent, ok := k.Parent()
	return ok && parent == ancestor
}

// String returns a readable form such as Profile("u1")/Conference(7).
func (k Key) String() string {
	switch k.Kind {
	case KindProfile:
		return fmt.Sprintf("Profile(%q)", k.UserID)
	case KindConference:
		return fmt.Sprintf("Profile(%q)/Conference(%d)", k.UserID, k.ID)
	case "":
		return "<empty>"
	default:
		return fmt.Sprintf("<unknown %s>", k.Kind)
	}
}

const (
	profileStoragePrefix    = "profile/"
	conferenceStoragePrefix = "conference/"
)

// StorageID is the flat, order-preserving identifier stores use as the
// primary key. Conferences of one owner share the OwnedConferencesPrefix.
func (k Key) StorageID() string {
	switch k.Kind {
	case KindProfile:
		return profileStoragePrefix + url.PathEscape(k.UserID)
	case KindConference:
		return OwnedConferencesPrefix(ProfileKey(k.UserID)) + strconv.FormatInt(k.ID, 10)
	default:
		return ""
	}
}

// AllConferencesPrefix prefixes the StorageID of every conference.
func AllConferencesPrefix() string {
	return conferenceStoragePrefix
}

// OwnedConferencesPrefix prefixes the StorageID of every conference owned
// by the given profile.
func OwnedConferencesPrefix(owner Key) string {
	return conferenceStoragePrefix + url.PathEscape(owner.UserID) + "/"
}
