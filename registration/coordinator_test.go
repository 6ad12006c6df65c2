package registration

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"conference-central/apperrors"
	"conference-central/database"
	"conference-central/keys"
	"conference-central/model"
)

type sentMail struct {
	recipient, summary string
}

type recordingNotifier struct {
	mu   sync.Mutex
	sent []sentMail
	err  error
}

func (n *recordingNotifier) Enqueue(_ context.Context, recipient, summary string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.err != nil {
		return n.err
	}
	n.sent = append(n.sent, sentMail{recipient, summary})
	return nil
}

type fixture struct {
	store    *database.BadgerStore
	notifier *recordingNotifier
	coord    *Coordinator
}

func newFixture(t testing.TB) *fixture {
	t.Helper()
	s, err := database.OpenBadger(database.BadgerOptions{InMemory: true})
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	n := &recordingNotifier{}
	policy := database.RetryPolicy{MaxRetries: 10, Initial: time.Millisecond, Max: 5 * time.Millisecond}
	return &fixture{store: s, notifier: n, coord: NewCoordinator(s, n, policy)}
}

func (f *fixture) user(t testing.TB, name string) *model.Identity {
	t.Helper()
	id := &model.Identity{UserID: name, Email: name + "@example.com"}
	require.NoError(t, f.store.PutProfile(context.Background(), model.NewProfile(*id, "", "")))
	return id
}

func (f *fixture) conference(t testing.TB, seats int) string {
	t.Helper()
	ctx := context.Background()
	k, err := keys.NewConferenceKey(ctx, f.store, keys.ProfileKey("organizer"))
	require.NoError(t, err)
	c := model.NewConference(k, model.ConferenceForm{Name: "GopherCon", City: "Denver", MaxAttendees: seats})
	c.WebsafeKey = keys.MustEncode(k)
	require.NoError(t, f.store.PutConference(ctx, c))
	return c.WebsafeKey
}

func (f *fixture) seats(t testing.TB, websafeKey string) int {
	t.Helper()
	k, err := keys.Decode(websafeKey)
	require.NoError(t, err)
	c, found, err := f.store.GetConference(context.Background(), k)
	require.NoError(t, err)
	require.True(t, found)
	return c.SeatsAvailable
}

func (f *fixture) attending(t testing.TB, id *model.Identity) []string {
	t.Helper()
	p, found, err := f.store.GetProfile(context.Background(), keys.ProfileKey(id.UserID))
	require.NoError(t, err)
	require.True(t, found)
	return p.ConferenceKeysToAttend
}

func TestTwoSeatScenario(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	conf := f.conference(t, 2)
	a, b, c := f.user(t, "a"), f.user(t, "b"), f.user(t, "c")

	steps := []struct {
		name  string
		do    func() Result
		want  Outcome
		seats int
	}{
		{"A registers", func() Result { return f.coord.Register(ctx, a, conf) }, OutcomeBooked, 1},
		{"B registers", func() Result { return f.coord.Register(ctx, b, conf) }, OutcomeBooked, 0},
		{"C registers", func() Result { return f.coord.Register(ctx, c, conf) }, OutcomeSeatsExhausted, 0},
		{"A unregisters", func() Result { return f.coord.Unregister(ctx, a, conf) }, OutcomeCancelled, 1},
		{"C registers again", func() Result { return f.coord.Register(ctx, c, conf) }, OutcomeBooked, 0},
	}
	for _, step := range steps {
		res := step.do()
		assert.Equalf(t, step.want, res.Outcome, "%s: %s", step.name, res.Reason)
		assert.Equalf(t, step.seats, f.seats(t, conf), step.name)
	}

	assert.Empty(t, f.attending(t, a))
	assert.Equal(t, []string{conf}, f.attending(t, b))
	assert.Equal(t, []string{conf}, f.attending(t, c))
	assert.Len(t, f.notifier.sent, 3)
	assert.Equal(t, "a@example.com", f.notifier.sent[0].recipient)
	assert.Contains(t, f.notifier.sent[0].summary, "GopherCon")
}

func TestRegisterTwiceIsConflict(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	conf := f.conference(t, 5)
	a := f.user(t, "a")

	require.Equal(t, OutcomeBooked, f.coord.Register(ctx, a, conf).Outcome)
	res := f.coord.Register(ctx, a, conf)

	assert.Equal(t, OutcomeAlreadyRegistered, res.Outcome)
	assert.ErrorIs(t, res.Err(), apperrors.ErrConflict)
	assert.Equal(t, 4, f.seats(t, conf))
	assert.Equal(t, []string{conf}, f.attending(t, a))
}

func TestUnregisterWithoutRegistration(t *testing.T) {
	f := newFixture(t)
	conf := f.conference(t, 3)
	a := f.user(t, "a")

	res := f.coord.Unregister(context.Background(), a, conf)

	assert.Equal(t, OutcomeNotRegistered, res.Outcome)
	assert.ErrorIs(t, res.Err(), apperrors.ErrConflict)
	assert.Equal(t, 3, f.seats(t, conf))
	assert.Empty(t, f.attending(t, a))
}

func TestRejections(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	conf := f.conference(t, 1)
	a := f.user(t, "a")
	missing, err := keys.ConferenceKey(keys.ProfileKey("organizer"), 424242)
	require.NoError(t, err)

	cases := []struct {
		name string
		id   *model.Identity
		key  string
		want Outcome
		kind apperrors.Kind
	}{
		{"no identity", nil, conf, OutcomeUnauthenticated, apperrors.Unauthenticated},
		{"malformed key", a, "not-a-key", OutcomeNotFound, apperrors.NotFound},
		{"profile key", a, keys.MustEncode(keys.ProfileKey("a")), OutcomeNotFound, apperrors.NotFound},
		{"absent conference", a, keys.MustEncode(missing), OutcomeNotFound, apperrors.NotFound},
		{"no profile", &model.Identity{UserID: "ghost"}, conf, OutcomeNotFound, apperrors.NotFound},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			for _, res := range []Result{f.coord.Register(ctx, tc.id, tc.key), f.coord.Unregister(ctx, tc.id, tc.key)} {
				assert.Equal(t, tc.want, res.Outcome)
				assert.Equal(t, tc.kind, apperrors.KindOf(res.Err()))
				assert.NotEmpty(t, res.Reason)
			}
		})
	}
	assert.Equal(t, 1, f.seats(t, conf))
	assert.Empty(t, f.notifier.sent)
}

func TestNotifierFailureDoesNotUndoBooking(t *testing.T) {
	f := newFixture(t)
	f.notifier.err = errors.New("queue down")
	conf := f.conference(t, 1)
	a := f.user(t, "a")

	res := f.coord.Register(context.Background(), a, conf)

	assert.Equal(t, OutcomeBooked, res.Outcome)
	assert.NoError(t, res.Err())
	assert.Equal(t, 0, f.seats(t, conf))
}

type alwaysContended struct {
	database.EntityStore
}

func (alwaysContended) RunTransaction(context.Context, []keys.Key, func(database.Txn) error) error {
	return fmt.Errorf("%w: simulated", database.ErrContention)
}

func TestContentionBudgetExhaustedIsInternalError(t *testing.T) {
	f := newFixture(t)
	conf := f.conference(t, 1)
	a := f.user(t, "a")
	coord := NewCoordinator(alwaysContended{f.store}, nil, database.RetryPolicy{MaxRetries: 2})

	res := coord.Register(context.Background(), a, conf)

	assert.Equal(t, OutcomeInternalError, res.Outcome)
	assert.Equal(t, apperrors.Internal, apperrors.KindOf(res.Err()))
	assert.Equal(t, 1, f.seats(t, conf))
}

type brokenStore struct {
	database.EntityStore
}

func (brokenStore) RunTransaction(context.Context, []keys.Key, func(database.Txn) error) error {
	return errors.New("badger: value log profile/secret-id truncated")
}

func TestStoreFailureHidesStorageDetails(t *testing.T) {
	f := newFixture(t)
	conf := f.conference(t, 1)
	a := f.user(t, "a")
	coord := NewCoordinator(brokenStore{f.store}, nil, database.RetryPolicy{MaxRetries: 2})

	for _, res := range []Result{
		coord.Register(context.Background(), a, conf),
		coord.Unregister(context.Background(), a, conf),
	} {
		assert.Equal(t, OutcomeInternalError, res.Outcome)
		assert.Equal(t, "Unknown exception", res.Reason)
		assert.Equal(t, "Unknown exception", apperrors.ReasonOf(res.Err()))
		assert.NotContains(t, res.Reason, "badger")
	}
	assert.Equal(t, 1, f.seats(t, conf))
}

func TestConcurrentRegistrationsNeverOverbook(t *testing.T) {
	const seats, users = 7, 40
	f := newFixture(t)
	conf := f.conference(t, seats)
	ids := make([]*model.Identity, users)
	for i := range ids {
		ids[i] = f.user(t, fmt.Sprintf("user%02d", i))
	}

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		outcomes = map[Outcome]int{}
	)
	start := make(chan struct{})
	for _, id := range ids {
		wg.Add(1)
		go func(id *model.Identity) {
			defer wg.Done()
			<-start
			res := f.coord.Register(context.Background(), id, conf)
			mu.Lock()
			outcomes[res.Outcome]++
			mu.Unlock()
		}(id)
	}
	close(start)
	wg.Wait()

	assert.Equal(t, seats, outcomes[OutcomeBooked])
	assert.Equal(t, users-seats, outcomes[OutcomeSeatsExhausted])
	assert.Equal(t, 0, f.seats(t, conf))

	registered := 0
	for _, id := range ids {
		registered += len(f.attending(t, id))
	}
	assert.Equal(t, seats, registered)
}

func TestSeatInventoryInvariant(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	run := 0

	rapid.Check(t, func(rt *rapid.T) {
		run++
		maxAttendees := rapid.IntRange(0, 4).Draw(rt, "maxAttendees")
		conf := f.conference(t, maxAttendees)
		ids := make([]*model.Identity, 5)
		for i := range ids {
			ids[i] = f.user(t, fmt.Sprintf("run%d-user%d", run, i))
		}

		steps := rapid.IntRange(1, 30).Draw(rt, "steps")
		for i := 0; i < steps; i++ {
			id := rapid.SampledFrom(ids).Draw(rt, "user")
			if rapid.Bool().Draw(rt, "register") {
				f.coord.Register(ctx, id, conf)
			} else {
				f.coord.Unregister(ctx, id, conf)
			}

			seats := f.seats(t, conf)
			if seats < 0 || seats > maxAttendees {
				rt.Fatalf("seats %d outside [0, %d]", seats, maxAttendees)
			}
			attending := 0
			for _, u := range ids {
				attending += len(f.attending(t, u))
			}
			if attending != maxAttendees-seats {
				rt.Fatalf("%d attendees but %d booked seats", attending, maxAttendees-seats)
			}
		}
	})
}
