// Package service exposes the conference operations independent of any
// transport. Every method that needs a caller takes a *model.Identity and
// fails with Unauthenticated before touching the store when it is nil.
package service

import (
	"context"
	"errors"

	"conference-central/announcement"
	"conference-central/apperrors"
	"conference-central/database"
	"conference-central/keys"
	"conference-central/logging"
	"conference-central/model"
	"conference-central/notification"
	"conference-central/query"
	"conference-central/registration"
	"conference-central/validation"
)

// Emailer queues an email for later delivery.
type Emailer interface {
	EnqueueEmail(ctx context.Context, e notification.Email) error
}

type ConferenceAPI struct {
	store         database.EntityStore
	planner       *query.Planner
	coordinator   *registration.Coordinator
	emails        Emailer
	announcements *announcement.Cache
	retry         database.RetryPolicy
}

type Options struct {
	Store         database.EntityStore
	Planner       *query.Planner
	Coordinator   *registration.Coordinator
	Emails        Emailer
	Announcements *announcement.Cache
	Retry         database.RetryPolicy
}

func New(opts Options) *ConferenceAPI {
	return &ConferenceAPI{
		store:         opts.Store,
		planner:       opts.Planner,
		coordinator:   opts.Coordinator,
		emails:        opts.Emails,
		announcements: opts.Announcements,
		retry:         opts.Retry,
	}
}

// internal reports store failures, including an exhausted retry budget,
// as Internal.
func internal(err error, reason string) error {
	if errors.Is(err, database.ErrContention) {
		return apperrors.Wrap(apperrors.Internal, err, "the service is busy, please try again")
	}
	var ae *apperrors.Error
	if errors.As(err, &ae) {
		return err
	}
	return apperrors.Wrap(apperrors.Internal, err, reason)
}

func conferenceNotFound(websafeKey string) error {
	return apperrors.Newf(apperrors.NotFound, "No conference found with key: %s", websafeKey)
}

// SaveProfile creates the caller's profile or updates its display name and
// tee shirt size. Empty form fields leave the stored value unchanged.
func (a *ConferenceAPI) SaveProfile(ctx context.Context, id *model.Identity, form model.ProfileForm) (model.Profile, error) {
	if id == nil {
		return model.Profile{}, apperrors.Unauthorized()
	}
	if err := validation.Struct(form); err != nil {
		return model.Profile{}, err
	}
	pk := keys.ProfileKey(id.UserID)

	p, err := database.RunInTransaction(ctx, a.store, a.retry, []keys.Key{pk}, func(tx database.Txn) (model.Profile, error) {
		p, found, err := tx.GetProfile(pk)
		if err != nil {
			return p, err
		}
		if !found {
			p = model.NewProfile(*id, form.DisplayName, form.TeeShirtSize)
			return p, tx.PutProfile(p)
		}

		displayName, size := p.DisplayName, p.TeeShirtSize
		if form.DisplayName != "" {
			displayName = form.DisplayName
		}
		if form.TeeShirtSize != "" {
			size = form.TeeShirtSize
		}
		if !p.Update(displayName, size) {
			return p, nil
		}
		return p, tx.PutProfile(p)
	})
	if err != nil {
		return model.Profile{}, internal(err, "saving profile failed")
	}
	return p, nil
}

func (a *ConferenceAPI) GetProfile(ctx context.Context, id *model.Identity) (model.Profile, error) {
	if id == nil {
		return model.Profile{}, apperrors.Unauthorized()
	}
	p, found, err := a.store.GetProfile(ctx, keys.ProfileKey(id.UserID))
	if err != nil {
		return model.Profile{}, internal(err, "loading profile failed")
	}
	if !found {
		return model.Profile{}, apperrors.New(apperrors.NotFound, "Profile not found, save your profile first")
	}
	return p, nil
}

// CreateConference stores a new conference owned by the caller, creating
// the caller's profile on the way if needed, and queues a confirmation
// email.
func (a *ConferenceAPI) CreateConference(ctx context.Context, id *model.Identity, form model.ConferenceForm) (model.Conference, error) {
	if id == nil {
		return model.Conference{}, apperrors.Unauthorized()
	}
	if err := validation.Struct(form); err != nil {
		return model.Conference{}, err
	}

	pk := keys.ProfileKey(id.UserID)
	ck, err := keys.NewConferenceKey(ctx, a.store, pk)
	if err != nil {
		return model.Conference{}, internal(err, "allocating conference key failed")
	}
	conf := model.NewConference(ck, form)
	conf.WebsafeKey, err = keys.Encode(ck)
	if err != nil {
		return model.Conference{}, internal(err, "encoding conference key failed")
	}

	profile, err := database.RunInTransaction(ctx, a.store, a.retry, []keys.Key{pk, ck}, func(tx database.Txn) (model.Profile, error) {
		p, found, err := tx.GetProfile(pk)
		if err != nil {
			return p, err
		}
		if !found {
			p = model.NewProfile(*id, "", "")
			if err := tx.PutProfile(p); err != nil {
				return p, err
			}
		}
		return p, tx.PutConference(conf)
	})
	if err != nil {
		return model.Conference{}, internal(err, "creating conference failed")
	}

	if a.emails != nil && profile.MainEmail != "" {
		email := notification.Email{Recipient: profile.MainEmail, Subject: notification.CreationSubject, Body: conf.Summary()}
		if err := a.emails.EnqueueEmail(ctx, email); err != nil {
			logging.Ctx(ctx).Warn().Err(err).Str("conference", conf.WebsafeKey).Msg("creation email not enqueued")
		}
	}
	return conf, nil
}

// GetConference loads a conference by websafe key. Keys that do not
// decode to a conference are reported as NotFound.
func (a *ConferenceAPI) GetConference(ctx context.Context, websafeKey string) (model.Conference, error) {
	ck, err := keys.Decode(websafeKey)
	if err != nil || ck.Kind != keys.KindConference {
		return model.Conference{}, conferenceNotFound(websafeKey)
	}
	c, found, err := a.store.GetConference(ctx, ck)
	if err != nil {
		return model.Conference{}, internal(err, "loading conference failed")
	}
	if !found {
		return model.Conference{}, conferenceNotFound(websafeKey)
	}
	return c, nil
}

func (a *ConferenceAPI) ListConferences(ctx context.Context, form query.Form) ([]model.Conference, error) {
	if err := validation.Struct(form); err != nil {
		return nil, apperrors.New(apperrors.InvalidQuery, apperrors.ReasonOf(err))
	}
	plan, err := a.planner.Plan(form.Filters, form.Sort...)
	if err != nil {
		return nil, err
	}
	cs, err := a.planner.Run(plan).All(ctx)
	if err != nil {
		return nil, internal(err, "querying conferences failed")
	}
	return cs, nil
}

func (a *ConferenceAPI) ListConferencesOwnedBy(ctx context.Context, id *model.Identity) ([]model.Conference, error) {
	if id == nil {
		return nil, apperrors.Unauthorized()
	}
	plan, err := a.planner.PlanOwnedBy(keys.ProfileKey(id.UserID))
	if err != nil {
		return nil, err
	}
	cs, err := a.planner.Run(plan).All(ctx)
	if err != nil {
		return nil, internal(err, "querying conferences failed")
	}
	return cs, nil
}

// Register books a seat for the caller. The error is the result's Err.
func (a *ConferenceAPI) Register(ctx context.Context, id *model.Identity, websafeKey string) (registration.Result, error) {
	res := a.coordinator.Register(ctx, id, websafeKey)
	return res, res.Err()
}

func (a *ConferenceAPI) Unregister(ctx context.Context, id *model.Identity, websafeKey string) (registration.Result, error) {
	res := a.coordinator.Unregister(ctx, id, websafeKey)
	return res, res.Err()
}

// ListConferencesAttendedBy loads the conferences in the caller's
// attendance list, in list order. Conferences that no longer load are
// skipped.
func (a *ConferenceAPI) ListConferencesAttendedBy(ctx context.Context, id *model.Identity) ([]model.Conference, error) {
	p, err := a.GetProfile(ctx, id)
	if err != nil {
		return nil, err
	}

	ks := make([]keys.Key, 0, len(p.ConferenceKeysToAttend))
	for _, s := range p.ConferenceKeysToAttend {
		k, err := keys.Decode(s)
		if err != nil || k.Kind != keys.KindConference {
			logging.Ctx(ctx).Warn().Str("user_id", p.UserID).Str("key", s).Msg("skipping malformed key in attendance list")
			continue
		}
		ks = append(ks, k)
	}
	cs, err := a.store.GetConferences(ctx, ks)
	if err != nil {
		return nil, internal(err, "loading conferences failed")
	}
	return cs, nil
}

// GetAnnouncement returns the cached announcement, or an empty one.
func (a *ConferenceAPI) GetAnnouncement(ctx context.Context, id *model.Identity) (model.Announcement, error) {
	if id == nil {
		return model.Announcement{}, apperrors.Unauthorized()
	}
	msg, _ := a.announcements.Get(ctx, announcement.Key)
	return model.Announcement{Message: msg}, nil
}
