package database

import (
	"context"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"

	"conference-central/keys"
	"conference-central/model"
)

func TestBuildMongoQuery(t *testing.T) {
	owner := keys.ProfileKey("alice")
	filter, sort, err := buildMongoQuery(Query{
		Ancestor: &owner,
		Conditions: []Condition{
			{Field: "city", Op: OpEqual, Value: "London"},
			{Field: "maxAttendees", Op: OpGreaterOrEqual, Value: 10},
			{Field: "topics", Op: OpEqual, Value: "Go"},
		},
		Order: []string{"maxAttendees", "name"},
	})
	require.NoError(t, err)

	assert.Equal(t, bson.D{{Key: "$and", Value: bson.A{
		bson.D{{Key: "ancestor", Value: "profile/alice"}},
		bson.D{{Key: "city", Value: bson.D{{Key: "$eq", Value: "London"}}}},
		bson.D{{Key: "max_attendees", Value: bson.D{{Key: "$gte", Value: 10}}}},
		bson.D{{Key: "topics", Value: bson.D{{Key: "$eq", Value: "Go"}}}},
	}}}, filter)
	assert.Equal(t, bson.D{
		{Key: "max_attendees", Value: 1},
		{Key: "name", Value: 1},
		{Key: "_id", Value: 1},
	}, sort)
}

func TestBuildMongoQueryEmpty(t *testing.T) {
	filter, sort, err := buildMongoQuery(Query{})
	require.NoError(t, err)
	assert.Equal(t, bson.D{}, filter)
	assert.Equal(t, bson.D{{Key: "_id", Value: 1}}, sort)
}

func TestBuildMongoQueryRejects(t *testing.T) {
	_, _, err := buildMongoQuery(Query{Conditions: []Condition{{Field: "venue", Op: OpEqual, Value: "x"}}})
	assert.Error(t, err)
	_, _, err = buildMongoQuery(Query{Conditions: []Condition{{Field: "city", Op: "!=", Value: "x"}}})
	assert.Error(t, err)
	_, _, err = buildMongoQuery(Query{Order: []string{"topics"}})
	assert.Error(t, err)
	conf, err := keys.ConferenceKey(keys.ProfileKey("a"), 1)
	require.NoError(t, err)
	_, _, err = buildMongoQuery(Query{Ancestor: &conf})
	assert.ErrorIs(t, err, ErrWrongKind)
}

// openTestMongo connects to MONGODB_TEST_URI, which must point at a
// replica set, using a throwaway database.
func openTestMongo(t *testing.T) *MongoStore {
	t.Helper()
	uri := os.Getenv("MONGODB_TEST_URI")
	if uri == "" {
		t.Skip("MONGODB_TEST_URI not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	s, err := ConnectMongo(ctx, MongoOptions{URI: uri, Database: "conference_test_" + uuid.NewString()[:8]})
	require.NoError(t, err)
	t.Cleanup(func() {
		s.db.Drop(context.Background())
		s.Close()
	})
	return s
}

func TestMongoStoreIntegration(t *testing.T) {
	s := openTestMongo(t)
	ctx := context.Background()

	conf := seedConference(t, s, "org", model.ConferenceForm{Name: "MongoConf", City: "Oslo", MaxAttendees: 3})
	pk := keys.ProfileKey("u1")
	require.NoError(t, s.PutProfile(ctx, model.NewProfile(model.Identity{UserID: "u1"}, "U", "")))

	got, found, err := s.GetConference(ctx, conf.Key())
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, conf.Name, got.Name)

	err = s.RunTransaction(ctx, []keys.Key{pk, conf.Key()}, func(tx Txn) error {
		c, _, err := tx.GetConference(conf.Key())
		if err != nil {
			return err
		}
		p, _, err := tx.GetProfile(pk)
		if err != nil {
			return err
		}
		if err := c.BookSeats(1); err != nil {
			return err
		}
		p.AddConferenceKey(c.WebsafeKey)
		if err := tx.PutConference(c); err != nil {
			return err
		}
		return tx.PutProfile(p)
	})
	require.NoError(t, err)

	oslo, err := s.Query(ctx, Query{Conditions: []Condition{{Field: "city", Op: OpEqual, Value: "Oslo"}}})
	require.NoError(t, err)
	require.Len(t, oslo, 1)
	assert.Equal(t, 2, oslo[0].SeatsAvailable)
}

func TestMongoConcurrentBookings(t *testing.T) {
	s := openTestMongo(t)
	ctx := context.Background()
	const seats, workers = 3, 8
	conf := seedConference(t, s, "org", model.ConferenceForm{Name: "Rush", MaxAttendees: seats})

	var (
		wg     sync.WaitGroup
		mu     sync.Mutex
		booked int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, err := RunInTransaction(ctx, s, fastPolicy(50), []keys.Key{conf.Key()}, func(tx Txn) (struct{}, error) {
				c, _, err := tx.GetConference(conf.Key())
				if err != nil {
					return struct{}{}, err
				}
				if err := c.BookSeats(1); err != nil {
					return struct{}{}, fmt.Errorf("worker %d: %w", i, err)
				}
				return struct{}{}, tx.PutConference(c)
			})
			if err == nil {
				mu.Lock()
				booked++
				mu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	c, _, err := s.GetConference(ctx, conf.Key())
	require.NoError(t, err)
	assert.Equal(t, seats, booked)
	assert.Equal(t, 0, c.SeatsAvailable)
}
