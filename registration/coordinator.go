// Package registration books and releases conference seats.
//
// Register and Unregister each run a single transaction over exactly two
// entities, the caller's profile and the conference, so the profile's
// attendance list and the conference's seat count always change together.
// Business rejections come back as an Outcome; nothing is raised.
package registration

import (
	"context"
	"errors"
	"fmt"

	"conference-central/apperrors"
	"conference-central/database"
	"conference-central/keys"
	"conference-central/logging"
	"conference-central/metrics"
	"conference-central/model"
)

type Outcome int

const (
	OutcomeInternalError Outcome = iota
	OutcomeBooked
	OutcomeCancelled
	OutcomeNotFound
	OutcomeAlreadyRegistered
	OutcomeSeatsExhausted
	OutcomeNotRegistered
	OutcomeUnauthenticated
)

func (o Outcome) String() string {
	switch o {
	case OutcomeBooked:
		return "booked"
	case OutcomeCancelled:
		return "cancelled"
	case OutcomeNotFound:
		return "not_found"
	case OutcomeAlreadyRegistered:
		return "already_registered"
	case OutcomeSeatsExhausted:
		return "seats_exhausted"
	case OutcomeNotRegistered:
		return "not_registered"
	case OutcomeUnauthenticated:
		return "unauthenticated"
	default:
		return "internal_error"
	}
}

// Kind maps the outcome onto the shared error taxonomy. Successful
// outcomes have no kind and report ok=false.
func (o Outcome) Kind() (apperrors.Kind, bool) {
	switch o {
	case OutcomeBooked, OutcomeCancelled:
		return 0, false
	case OutcomeNotFound:
		return apperrors.NotFound, true
	case OutcomeAlreadyRegistered, OutcomeSeatsExhausted, OutcomeNotRegistered:
		return apperrors.Conflict, true
	case OutcomeUnauthenticated:
		return apperrors.Unauthenticated, true
	default:
		return apperrors.Internal, true
	}
}

// Result is what Register and Unregister return. Conference and Profile
// hold the committed state after a Booked or Cancelled outcome.
type Result struct {
	Outcome    Outcome
	Reason     string
	Conference model.Conference
	Profile    model.Profile
}

func (r Result) OK() bool {
	return r.Outcome == OutcomeBooked || r.Outcome == OutcomeCancelled
}

// Err converts a rejected result into an *apperrors.Error.
func (r Result) Err() error {
	kind, failed := r.Outcome.Kind()
	if !failed {
		return nil
	}
	return apperrors.New(kind, r.Reason)
}

func reject(o Outcome, format string, args ...any) Result {
	return Result{Outcome: o, Reason: fmt.Sprintf(format, args...)}
}

// Notifier receives a message after a seat is booked. Delivery is best
// effort and happens after the transaction commits.
type Notifier interface {
	Enqueue(ctx context.Context, recipient, summary string) error
}

type Coordinator struct {
	store    database.EntityStore
	notifier Notifier
	retry    database.RetryPolicy
}

// NewCoordinator wires a coordinator. notifier may be nil.
func NewCoordinator(store database.EntityStore, notifier Notifier, retry database.RetryPolicy) *Coordinator {
	return &Coordinator{store: store, notifier: notifier, retry: retry}
}

// Register books one seat of the conference for the caller.
func (c *Coordinator) Register(ctx context.Context, id *model.Identity, websafeKey string) Result {
	res := c.run(ctx, "register", id, websafeKey, book)
	if res.Outcome == OutcomeBooked {
		c.notify(ctx, res)
	}
	return res
}

// Unregister gives the caller's seat back.
func (c *Coordinator) Unregister(ctx context.Context, id *model.Identity, websafeKey string) Result {
	return c.run(ctx, "unregister", id, websafeKey, cancel)
}

type workUnit func(tx database.Txn, pk, ck keys.Key, websafeKey string) (Result, error)

func (c *Coordinator) run(ctx context.Context, op string, id *model.Identity, websafeKey string, work workUnit) Result {
	res := c.attempt(ctx, id, websafeKey, work)
	metrics.RecordRegistration(op, res.Outcome.String())

	log := logging.Ctx(ctx)
	if res.Outcome == OutcomeInternalError {
		log.Error().Str("operation", op).Str("conference", websafeKey).Str("reason", res.Reason).Msg("registration failed")
	} else {
		log.Debug().Str("operation", op).Str("conference", websafeKey).Stringer("outcome", res.Outcome).Msg("registration finished")
	}
	return res
}

func (c *Coordinator) attempt(ctx context.Context, id *model.Identity, websafeKey string, work workUnit) Result {
	if id == nil || id.UserID == "" {
		return reject(OutcomeUnauthenticated, "Authorization required")
	}
	ck, err := keys.Decode(websafeKey)
	if err != nil || ck.Kind != keys.KindConference {
		return reject(OutcomeNotFound, "No conference found with key: %s", websafeKey)
	}
	pk := keys.ProfileKey(id.UserID)

	res, err := database.RunInTransaction(ctx, c.store, c.retry, []keys.Key{pk, ck}, func(tx database.Txn) (res Result, err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("panic in registration transaction: %v", r)
			}
		}()
		return work(tx, pk, ck, websafeKey)
	})
	if err != nil {
		if errors.Is(err, database.ErrContention) {
			return reject(OutcomeInternalError, "Conference is busy, please try again")
		}
		logging.Ctx(ctx).Error().Err(err).Str("user_id", id.UserID).Str("conference", websafeKey).Msg("registration transaction failed")
		return reject(OutcomeInternalError, "Unknown exception")
	}
	return res
}

// book: profile must exist, conference must exist, caller not yet
// registered, at least one seat left.
func book(tx database.Txn, pk, ck keys.Key, websafeKey string) (Result, error) {
	profile, found, err := tx.GetProfile(pk)
	if err != nil {
		return Result{}, err
	}
	if !found {
		return reject(OutcomeNotFound, "Profile not found, save your profile first"), nil
	}
	conf, found, err := tx.GetConference(ck)
	if err != nil {
		return Result{}, err
	}
	if !found {
		return reject(OutcomeNotFound, "No conference found with key: %s", websafeKey), nil
	}
	if profile.IsRegistered(websafeKey) {
		return reject(OutcomeAlreadyRegistered, "You have already registered for this conference"), nil
	}
	if conf.IsFull() {
		return reject(OutcomeSeatsExhausted, "There are no seats available"), nil
	}

	if err := conf.BookSeats(1); err != nil {
		return Result{}, err
	}
	profile.AddConferenceKey(websafeKey)
	if err := tx.PutConference(conf); err != nil {
		return Result{}, err
	}
	if err := tx.PutProfile(profile); err != nil {
		return Result{}, err
	}
	return Result{Outcome: OutcomeBooked, Conference: conf, Profile: profile}, nil
}

func cancel(tx database.Txn, pk, ck keys.Key, websafeKey string) (Result, error) {
	profile, found, err := tx.GetProfile(pk)
	if err != nil {
		return Result{}, err
	}
	if !found {
		return reject(OutcomeNotFound, "Profile not found, save your profile first"), nil
	}
	if !profile.IsRegistered(websafeKey) {
		return reject(OutcomeNotRegistered, "You are not registered for this conference"), nil
	}
	conf, found, err := tx.GetConference(ck)
	if err != nil {
		return Result{}, err
	}
	if !found {
		return reject(OutcomeNotFound, "No conference found with key: %s", websafeKey), nil
	}

	if err := conf.GiveBackSeats(1); err != nil {
		return Result{}, err
	}
	profile.RemoveConferenceKey(websafeKey)
	if err := tx.PutConference(conf); err != nil {
		return Result{}, err
	}
	if err := tx.PutProfile(profile); err != nil {
		return Result{}, err
	}
	return Result{Outcome: OutcomeCancelled, Conference: conf, Profile: profile}, nil
}

func (c *Coordinator) notify(ctx context.Context, res Result) {
	if c.notifier == nil || res.Profile.MainEmail == "" {
		return
	}
	if err := c.notifier.Enqueue(ctx, res.Profile.MainEmail, res.Conference.Summary()); err != nil {
		logging.Ctx(ctx).Warn().Err(err).Str("recipient", res.Profile.MainEmail).Msg("registration notification not enqueued")
	}
}
