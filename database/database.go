// Package database implements the entity store for profiles and conferences.
//
// Two backends satisfy EntityStore: an embedded Badger store and a MongoDB
// store. Both run transactions over an explicit set of keys; transactions
// touching the same keys never interleave, and a transaction that loses a
// race reports ErrContention so the caller can retry it (see
// RunInTransaction).
package database

import (
	"context"
	"errors"
	"fmt"

	"conference-central/apperrors"
	"conference-central/keys"
	"conference-central/model"
)

var (
	// ErrContention is reported when a transaction conflicted with a
	// concurrent one and was not applied.
	ErrContention = apperrors.New(apperrors.Contention, "transaction contention")

	// ErrKeyOutOfScope is reported when a transaction touches a key it did
	// not declare.
	ErrKeyOutOfScope = errors.New("key not declared in transaction")

	ErrWrongKind = errors.New("key has the wrong kind")
)

// Txn is the view of the store inside RunTransaction. Reads see a
// consistent snapshot; writes are applied together on commit or not at all.
type Txn interface {
	GetProfile(k keys.Key) (model.Profile, bool, error)
	GetConference(k keys.Key) (model.Conference, bool, error)
	PutProfile(p model.Profile) error
	PutConference(c model.Conference) error
}

// EntityStore is key-addressed storage for profiles and conferences.
type EntityStore interface {
	keys.IDAllocator

	// Name identifies the backend in logs and metrics.
	Name() string

	GetProfile(ctx context.Context, k keys.Key) (model.Profile, bool, error)
	GetConference(ctx context.Context, k keys.Key) (model.Conference, bool, error)
	// GetConferences loads several conferences, skipping missing ones and
	// preserving the order of ks.
	GetConferences(ctx context.Context, ks []keys.Key) ([]model.Conference, error)
	PutProfile(ctx context.Context, p model.Profile) error
	PutConference(ctx context.Context, c model.Conference) error

	// RunTransaction runs fn once against a snapshot of ks. It returns
	// ErrContention if the commit lost a race; fn's own error aborts the
	// transaction and is returned as is.
	RunTransaction(ctx context.Context, ks []keys.Key, fn func(Txn) error) error

	// Query returns conferences matching q, at most q.Limit of them.
	Query(ctx context.Context, q Query) ([]model.Conference, error)

	Close() error
}

// Operator is a filter comparison.
type Operator string

const (
	OpEqual          Operator = "="
	OpLess           Operator = "<"
	OpLessOrEqual    Operator = "<="
	OpGreater        Operator = ">"
	OpGreaterOrEqual Operator = ">="
)

// IsOrdering reports whether o is a range (inequality) operator.
func (o Operator) IsOrdering() bool {
	switch o {
	case OpLess, OpLessOrEqual, OpGreater, OpGreaterOrEqual:
		return true
	default:
		return false
	}
}

// Condition restricts one conference field. Value is a string for string
// and string-list fields and an int for integer fields.
type Condition struct {
	Field string
	Op    Operator
	Value any
}

// Query is an executable conference query. Planners build and validate it;
// stores execute it as is.
type Query struct {
	// Ancestor restricts results to conferences owned by this profile.
	Ancestor *keys.Key
	// Conditions are ANDed together.
	Conditions []Condition
	// Order lists ascending sort fields; ties are broken by key.
	Order []string
	Limit int
}

type FieldType int

const (
	StringField FieldType = iota
	IntField
	// StringListField matches an equality condition when any element
	// equals the value.
	StringListField
)

// FieldInfo describes a queryable conference field.
type FieldInfo struct {
	Name     string
	Type     FieldType
	Sortable bool

	bsonName string
	value    func(model.Conference) any
}

var conferenceFields = map[string]FieldInfo{
	"name": {
		Name: "name", Type: StringField, Sortable: true, bsonName: "name",
		value: func(c model.Conference) any { return c.Name },
	},
	"city": {
		Name: "city", Type: StringField, Sortable: true, bsonName: "city",
		value: func(c model.Conference) any { return c.City },
	},
	"organizerUserId": {
		Name: "organizerUserId", Type: StringField, Sortable: true, bsonName: "organizer_user_id",
		value: func(c model.Conference) any { return c.OrganizerUserID },
	},
	"topics": {
		Name: "topics", Type: StringListField, bsonName: "topics",
		value: func(c model.Conference) any { return c.Topics },
	},
	"month": {
		Name: "month", Type: IntField, Sortable: true, bsonName: "month",
		value: func(c model.Conference) any { return c.Month },
	},
	"maxAttendees": {
		Name: "maxAttendees", Type: IntField, Sortable: true, bsonName: "max_attendees",
		value: func(c model.Conference) any { return c.MaxAttendees },
	},
	"seatsAvailable": {
		Name: "seatsAvailable", Type: IntField, Sortable: true, bsonName: "seats_available",
		value: func(c model.Conference) any { return c.SeatsAvailable },
	},
}

// ConferenceField looks up a queryable field by its API name.
func ConferenceField(name string) (FieldInfo, bool) {
	f, ok := conferenceFields[name]
	return f, ok
}

func checkKind(k keys.Key, kind string) error {
	if k.Kind != kind || k.IsZero() {
		return fmt.Errorf("%w: want %s, got %s", ErrWrongKind, kind, k)
	}
	return nil
}

// txnScope records the storage ids a transaction declared.
type txnScope map[string]struct{}

func newTxnScope(ks []keys.Key) txnScope {
	s := make(txnScope, len(ks))
	for _, k := range ks {
		s[k.StorageID()] = struct{}{}
	}
	return s
}

func (s txnScope) check(k keys.Key) error {
	if _, ok := s[k.StorageID()]; !ok {
		return fmt.Errorf("%w: %s", ErrKeyOutOfScope, k)
	}
	return nil
}

func storageIDs(ks []keys.Key) ([]string, error) {
	ids := make([]string, 0, len(ks))
	for _, k := range ks {
		if k.IsZero() {
			return nil, fmt.Errorf("incomplete key %s in transaction", k)
		}
		ids = append(ids, k.StorageID())
	}
	return ids, nil
}

func checkProfile(p model.Profile) error {
	return checkKind(p.Key(), keys.KindProfile)
}

// checkConference guards the seat inventory: 0 <= seatsAvailable <= maxAttendees.
func checkConference(c model.Conference) error {
	if err := checkKind(c.Key(), keys.KindConference); err != nil {
		return err
	}
	if c.SeatsAvailable < 0 || c.SeatsAvailable > c.MaxAttendees {
		return fmt.Errorf("conference %s: %d seats available out of %d", c.Key(), c.SeatsAvailable, c.MaxAttendees)
	}
	return nil
}
