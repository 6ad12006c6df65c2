package announcement

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"conference-central/database"
	"conference-central/keys"
	"conference-central/metrics"
	"conference-central/model"
	"conference-central/query"
)

func TestCache(t *testing.T) {
	c := NewCache()
	ctx := context.Background()

	_, ok := c.Get(ctx, Key)
	assert.False(t, ok)

	c.Set(ctx, Key, "hello", 0)
	got, ok := c.Get(ctx, Key)
	assert.True(t, ok)
	assert.Equal(t, "hello", got)

	c.Set(ctx, "short", "lived", time.Millisecond)
	assert.Eventually(t, func() bool {
		_, ok := c.Get(ctx, "short")
		return !ok
	}, time.Second, 5*time.Millisecond)

	c.Delete(ctx, Key)
	_, ok = c.Get(ctx, Key)
	assert.False(t, ok)
}

func putConference(t *testing.T, s database.EntityStore, name string, max, seats int) model.Conference {
	t.Helper()
	ctx := context.Background()
	k, err := keys.NewConferenceKey(ctx, s, keys.ProfileKey("org"))
	require.NoError(t, err)
	c := model.NewConference(k, model.ConferenceForm{Name: name, MaxAttendees: max})
	c.SeatsAvailable = seats
	c.WebsafeKey = keys.MustEncode(k)
	require.NoError(t, s.PutConference(ctx, c))
	return c
}

func TestRefresh(t *testing.T) {
	s, err := database.OpenBadger(database.BadgerOptions{InMemory: true})
	require.NoError(t, err)
	defer s.Close()
	ctx := context.Background()
	cache := NewCache()
	r := NewRefresher(query.NewPlanner(s, 100), cache, 5, time.Minute)

	msg, err := r.Refresh(ctx)
	require.NoError(t, err)
	assert.Empty(t, msg)

	putConference(t, s, "Plenty", 100, 80)
	putConference(t, s, "SoldOut", 10, 0)
	putConference(t, s, "Almost", 10, 2)
	putConference(t, s, "Borderline", 10, 5)
	putConference(t, s, "Aardvark", 10, 4)

	corrections := testutil.ToFloat64(metrics.QueryCorrections)
	msg, err = r.Refresh(ctx)
	require.NoError(t, err)
	assert.Equal(t, "Last chance to attend! The following conferences are nearly sold out: Aardvark, Almost, Borderline", msg)
	assert.Equal(t, corrections, testutil.ToFloat64(metrics.QueryCorrections), "refresh query needs no sort correction")
	cached, ok := cache.Get(ctx, Key)
	require.True(t, ok)
	assert.Equal(t, msg, cached)

	// Once nothing qualifies the entry goes away.
	s2, err := database.OpenBadger(database.BadgerOptions{InMemory: true})
	require.NoError(t, err)
	defer s2.Close()
	putConference(t, s2, "Plenty", 100, 80)
	_, err = NewRefresher(query.NewPlanner(s2, 100), cache, 5, time.Minute).Refresh(ctx)
	require.NoError(t, err)
	_, ok = cache.Get(ctx, Key)
	assert.False(t, ok)
}

func TestRunStopsWithContext(t *testing.T) {
	s, err := database.OpenBadger(database.BadgerOptions{InMemory: true})
	require.NoError(t, err)
	defer s.Close()
	putConference(t, s, "Almost", 10, 1)
	cache := NewCache()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- NewRefresher(query.NewPlanner(s, 100), cache, 5, 10*time.Millisecond).Run(ctx) }()

	assert.Eventually(t, func() bool {
		_, ok := cache.Get(context.Background(), Key)
		return ok
	}, time.Second, 5*time.Millisecond)
	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("refresher did not stop")
	}
}
