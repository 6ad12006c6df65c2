package database

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readconcern"
	"go.mongodb.org/mongo-driver/mongo/writeconcern"

	"conference-central/keys"
	"conference-central/model"
)

const (
	profilesCollection    = "profiles"
	conferencesCollection = "conferences"
	countersCollection    = "counters"

	transientTransactionError = "TransientTransactionError"
)

type MongoOptions struct {
	URI      string
	Database string
}

// MongoStore keeps profiles and conferences in two collections keyed by
// StorageID. Conference documents carry their owner's StorageID in the
// ancestor field. Transactions need a replica set.
type MongoStore struct {
	client *mongo.Client
	db     *mongo.Database
}

var _ EntityStore = (*MongoStore)(nil)

type profileDoc struct {
	ID            string `bson:"_id"`
	model.Profile `bson:",inline"`
}

type conferenceDoc struct {
	ID               string `bson:"_id"`
	Ancestor         string `bson:"ancestor"`
	model.Conference `bson:",inline"`
}

func newConferenceDoc(c model.Conference) conferenceDoc {
	owner, _ := c.Key().Parent()
	return conferenceDoc{ID: c.Key().StorageID(), Ancestor: owner.StorageID(), Conference: c}
}

// ConnectMongo connects, pings and makes sure the indexes exist.
func ConnectMongo(ctx context.Context, opts MongoOptions) (*MongoStore, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(opts.URI))
	if err != nil {
		return nil, fmt.Errorf("cannot connect to the db: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		client.Disconnect(ctx)
		return nil, fmt.Errorf("db is not available: %w", err)
	}

	s := &MongoStore{client: client, db: client.Database(opts.Database)}
	if err := s.ensureIndexes(ctx); err != nil {
		client.Disconnect(ctx)
		return nil, err
	}
	return s, nil
}

func (s *MongoStore) ensureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "ancestor", Value: 1}, {Key: "name", Value: 1}}},
		{Keys: bson.D{{Key: "city", Value: 1}}},
		{Keys: bson.D{{Key: "topics", Value: 1}}},
		{Keys: bson.D{{Key: "month", Value: 1}}},
		{Keys: bson.D{{Key: "max_attendees", Value: 1}}},
		{Keys: bson.D{{Key: "seats_available", Value: 1}}},
	}
	if _, err := s.conferences().Indexes().CreateMany(ctx, indexes); err != nil {
		return fmt.Errorf("create conference indexes: %w", err)
	}
	return nil
}

func (s *MongoStore) profiles() *mongo.Collection    { return s.db.Collection(profilesCollection) }
func (s *MongoStore) conferences() *mongo.Collection { return s.db.Collection(conferencesCollection) }
func (s *MongoStore) counters() *mongo.Collection    { return s.db.Collection(countersCollection) }

func (s *MongoStore) Name() string { return "mongo" }

func (s *MongoStore) Close() error {
	return s.client.Disconnect(context.Background())
}

// AllocateID increments a per-kind counter document.
func (s *MongoStore) AllocateID(ctx context.Context, parent keys.Key, kind string) (int64, error) {
	if kind != keys.KindConference {
		return 0, fmt.Errorf("cannot allocate ids for kind %q", kind)
	}
	if err := checkKind(parent, keys.KindProfile); err != nil {
		return 0, err
	}

	var counter struct {
		Seq int64 `bson:"seq"`
	}
	err := s.counters().FindOneAndUpdate(ctx,
		bson.M{"_id": kind},
		bson.M{"$inc": bson.M{"seq": int64(1)}},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&counter)
	if err != nil {
		return 0, fmt.Errorf("next %s id: %w", kind, err)
	}
	return counter.Seq, nil
}

func (s *MongoStore) GetProfile(ctx context.Context, k keys.Key) (model.Profile, bool, error) {
	if err := checkKind(k, keys.KindProfile); err != nil {
		return model.Profile{}, false, err
	}
	return findProfile(ctx, s.profiles(), k)
}

func (s *MongoStore) GetConference(ctx context.Context, k keys.Key) (model.Conference, bool, error) {
	if err := checkKind(k, keys.KindConference); err != nil {
		return model.Conference{}, false, err
	}
	return findConference(ctx, s.conferences(), k)
}

func (s *MongoStore) GetConferences(ctx context.Context, ks []keys.Key) ([]model.Conference, error) {
	if len(ks) == 0 {
		return []model.Conference{}, nil
	}
	ids := make([]string, 0, len(ks))
	for _, k := range ks {
		if err := checkKind(k, keys.KindConference); err != nil {
			return nil, err
		}
		ids = append(ids, k.StorageID())
	}

	cur, err := s.conferences().Find(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return nil, fmt.Errorf("find conferences: %w", err)
	}
	var docs []conferenceDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode conferences: %w", err)
	}

	byID := make(map[string]model.Conference, len(docs))
	for _, d := range docs {
		byID[d.ID] = d.Conference
	}
	out := make([]model.Conference, 0, len(docs))
	for _, id := range ids {
		if c, ok := byID[id]; ok {
			out = append(out, c)
		}
	}
	return out, nil
}

func (s *MongoStore) PutProfile(ctx context.Context, p model.Profile) error {
	return replaceProfile(ctx, s.profiles(), p)
}

func (s *MongoStore) PutConference(ctx context.Context, c model.Conference) error {
	return replaceConference(ctx, s.conferences(), c)
}

func (s *MongoStore) RunTransaction(ctx context.Context, ks []keys.Key, fn func(Txn) error) error {
	if _, err := storageIDs(ks); err != nil {
		return err
	}

	sess, err := s.client.StartSession()
	if err != nil {
		return fmt.Errorf("start session: %w", err)
	}
	defer sess.EndSession(ctx)

	txnOpts := options.Transaction().
		SetReadConcern(readconcern.Snapshot()).
		SetWriteConcern(writeconcern.New(writeconcern.WMajority()))

	err = mongo.WithSession(ctx, sess, func(sc mongo.SessionContext) error {
		if err := sess.StartTransaction(txnOpts); err != nil {
			return fmt.Errorf("start transaction: %w", err)
		}
		if err := fn(&mongoTxn{ctx: sc, s: s, scope: newTxnScope(ks)}); err != nil {
			sess.AbortTransaction(context.Background())
			return err
		}
		return sess.CommitTransaction(sc)
	})
	if err != nil && isTransient(err) {
		return fmt.Errorf("%w: %v", ErrContention, err)
	}
	return err
}

func isTransient(err error) bool {
	var se mongo.ServerError
	return errors.As(err, &se) && se.HasErrorLabel(transientTransactionError)
}

func (s *MongoStore) Query(ctx context.Context, q Query) ([]model.Conference, error) {
	filter, sort, err := buildMongoQuery(q)
	if err != nil {
		return nil, err
	}
	opts := options.Find().SetSort(sort)
	if q.Limit > 0 {
		opts.SetLimit(int64(q.Limit))
	}

	cur, err := s.conferences().Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("query conferences: %w", err)
	}
	var docs []conferenceDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode conferences: %w", err)
	}
	out := make([]model.Conference, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.Conference)
	}
	return out, nil
}

var mongoOperators = map[Operator]string{
	OpEqual:          "$eq",
	OpLess:           "$lt",
	OpLessOrEqual:    "$lte",
	OpGreater:        "$gt",
	OpGreaterOrEqual: "$gte",
}

// buildMongoQuery translates q into a filter and sort document. Matching a
// list field with $eq already has "any element" semantics.
func buildMongoQuery(q Query) (bson.D, bson.D, error) {
	var clauses bson.A
	if q.Ancestor != nil {
		if err := checkKind(*q.Ancestor, keys.KindProfile); err != nil {
			return nil, nil, err
		}
		clauses = append(clauses, bson.D{{Key: "ancestor", Value: q.Ancestor.StorageID()}})
	}
	for _, cond := range q.Conditions {
		info, ok := conferenceFields[cond.Field]
		if !ok {
			return nil, nil, fmt.Errorf("unknown conference field %q", cond.Field)
		}
		op, ok := mongoOperators[cond.Op]
		if !ok {
			return nil, nil, fmt.Errorf("unknown operator %q", cond.Op)
		}
		clauses = append(clauses, bson.D{{Key: info.bsonName, Value: bson.D{{Key: op, Value: cond.Value}}}})
	}

	filter := bson.D{}
	if len(clauses) > 0 {
		filter = bson.D{{Key: "$and", Value: clauses}}
	}

	sort := bson.D{}
	for _, f := range q.Order {
		info, ok := conferenceFields[f]
		if !ok || !info.Sortable {
			return nil, nil, fmt.Errorf("cannot sort by %q", f)
		}
		sort = append(sort, bson.E{Key: info.bsonName, Value: 1})
	}
	sort = append(sort, bson.E{Key: "_id", Value: 1})
	return filter, sort, nil
}

type mongoTxn struct {
	ctx   mongo.SessionContext
	s     *MongoStore
	scope txnScope
}

func (t *mongoTxn) GetProfile(k keys.Key) (model.Profile, bool, error) {
	if err := checkKind(k, keys.KindProfile); err != nil {
		return model.Profile{}, false, err
	}
	if err := t.scope.check(k); err != nil {
		return model.Profile{}, false, err
	}
	return findProfile(t.ctx, t.s.profiles(), k)
}

func (t *mongoTxn) GetConference(k keys.Key) (model.Conference, bool, error) {
	if err := checkKind(k, keys.KindConference); err != nil {
		return model.Conference{}, false, err
	}
	if err := t.scope.check(k); err != nil {
		return model.Conference{}, false, err
	}
	return findConference(t.ctx, t.s.conferences(), k)
}

func (t *mongoTxn) PutProfile(p model.Profile) error {
	if err := t.scope.check(p.Key()); err != nil {
		return err
	}
	return replaceProfile(t.ctx, t.s.profiles(), p)
}

func (t *mongoTxn) PutConference(c model.Conference) error {
	if err := t.scope.check(c.Key()); err != nil {
		return err
	}
	return replaceConference(t.ctx, t.s.conferences(), c)
}

func findProfile(ctx context.Context, coll *mongo.Collection, k keys.Key) (model.Profile, bool, error) {
	var doc profileDoc
	err := coll.FindOne(ctx, bson.M{"_id": k.StorageID()}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return model.Profile{}, false, nil
	}
	if err != nil {
		return model.Profile{}, false, fmt.Errorf("get %s: %w", k, err)
	}
	return doc.Profile, true, nil
}

func findConference(ctx context.Context, coll *mongo.Collection, k keys.Key) (model.Conference, bool, error) {
	var doc conferenceDoc
	err := coll.FindOne(ctx, bson.M{"_id": k.StorageID()}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return model.Conference{}, false, nil
	}
	if err != nil {
		return model.Conference{}, false, fmt.Errorf("get %s: %w", k, err)
	}
	return doc.Conference, true, nil
}

func replaceProfile(ctx context.Context, coll *mongo.Collection, p model.Profile) error {
	if err := checkProfile(p); err != nil {
		return err
	}
	id := p.Key().StorageID()
	_, err := coll.ReplaceOne(ctx, bson.M{"_id": id}, profileDoc{ID: id, Profile: p}, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("put %s: %w", p.Key(), err)
	}
	return nil
}

func replaceConference(ctx context.Context, coll *mongo.Collection, c model.Conference) error {
	if err := checkConference(c); err != nil {
		return err
	}
	doc := newConferenceDoc(c)
	_, err := coll.ReplaceOne(ctx, bson.M{"_id": doc.ID}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("put %s: %w", c.Key(), err)
	}
	return nil
}
