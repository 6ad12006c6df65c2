package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/goccy/go-json"

	"conference-central/keys"
	"conference-central/model"
)

const conferenceSequenceKey = "sequence/conference"

type BadgerOptions struct {
	Path     string
	InMemory bool
}

// BadgerStore keeps entities as JSON values under their key's StorageID.
//
// Transactions lock their declared keys for their whole duration, so
// transactions over the same entities run one after another. Writes made
// outside a transaction are still caught by Badger's optimistic conflict
// check, which surfaces as ErrContention.
type BadgerStore struct {
	db    *badger.DB
	seq   *badger.Sequence
	locks *keyLocker
}

var _ EntityStore = (*BadgerStore)(nil)

// OpenBadger opens (or creates) a Badger store.
func OpenBadger(opts BadgerOptions) (*BadgerStore, error) {
	var o badger.Options
	if opts.InMemory {
		o = badger.DefaultOptions("").WithInMemory(true)
	} else {
		o = badger.DefaultOptions(opts.Path)
	}
	o = o.WithLogger(nil)

	db, err := badger.Open(o)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}
	seq, err := db.GetSequence([]byte(conferenceSequenceKey), 100)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("open conference sequence: %w", err)
	}
	return &BadgerStore{db: db, seq: seq, locks: newKeyLocker()}, nil
}

func (s *BadgerStore) Name() string { return "badger" }

func (s *BadgerStore) Close() error {
	serr := s.seq.Release()
	if err := s.db.Close(); err != nil {
		return err
	}
	return serr
}

// AllocateID returns the next conference id. Ids are unique across all
// owners, which is stronger than uniqueness under parent.
func (s *BadgerStore) AllocateID(ctx context.Context, parent keys.Key, kind string) (int64, error) {
	if kind != keys.KindConference {
		return 0, fmt.Errorf("cannot allocate ids for kind %q", kind)
	}
	if err := checkKind(parent, keys.KindProfile); err != nil {
		return 0, err
	}
	n, err := s.seq.Next()
	if err != nil {
		return 0, fmt.Errorf("next conference id: %w", err)
	}
	// Sequences start at zero; conference ids are positive.
	return int64(n) + 1, nil
}

func (s *BadgerStore) GetProfile(ctx context.Context, k keys.Key) (model.Profile, bool, error) {
	var (
		p     model.Profile
		found bool
	)
	if err := checkKind(k, keys.KindProfile); err != nil {
		return p, false, err
	}
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		found, err = getJSON(txn, k.StorageID(), &p)
		return err
	})
	return p, found, err
}

func (s *BadgerStore) GetConference(ctx context.Context, k keys.Key) (model.Conference, bool, error) {
	var (
		c     model.Conference
		found bool
	)
	if err := checkKind(k, keys.KindConference); err != nil {
		return c, false, err
	}
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		found, err = getJSON(txn, k.StorageID(), &c)
		return err
	})
	return c, found, err
}

func (s *BadgerStore) GetConferences(ctx context.Context, ks []keys.Key) ([]model.Conference, error) {
	out := make([]model.Conference, 0, len(ks))
	err := s.db.View(func(txn *badger.Txn) error {
		for _, k := range ks {
			if err := checkKind(k, keys.KindConference); err != nil {
				return err
			}
			var c model.Conference
			found, err := getJSON(txn, k.StorageID(), &c)
			if err != nil {
				return err
			}
			if found {
				out = append(out, c)
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *BadgerStore) PutProfile(ctx context.Context, p model.Profile) error {
	return s.update(func(txn *badger.Txn) error { return putProfile(txn, p) })
}

func (s *BadgerStore) PutConference(ctx context.Context, c model.Conference) error {
	return s.update(func(txn *badger.Txn) error { return putConference(txn, c) })
}

func (s *BadgerStore) update(fn func(txn *badger.Txn) error) error {
	err := s.db.Update(fn)
	if errors.Is(err, badger.ErrConflict) {
		return fmt.Errorf("%w: %v", ErrContention, err)
	}
	return err
}

func (s *BadgerStore) RunTransaction(ctx context.Context, ks []keys.Key, fn func(Txn) error) error {
	ids, err := storageIDs(ks)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	unlock := s.locks.Lock(ids)
	defer unlock()

	txn := s.db.NewTransaction(true)
	defer txn.Discard()

	if err := fn(&badgerTxn{txn: txn, scope: newTxnScope(ks)}); err != nil {
		return err
	}
	if err := txn.Commit(); err != nil {
		if errors.Is(err, badger.ErrConflict) {
			return fmt.Errorf("%w: %v", ErrContention, err)
		}
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

func (s *BadgerStore) Query(ctx context.Context, q Query) ([]model.Conference, error) {
	prefix := keys.AllConferencesPrefix()
	if q.Ancestor != nil {
		if err := checkKind(*q.Ancestor, keys.KindProfile); err != nil {
			return nil, err
		}
		prefix = keys.OwnedConferencesPrefix(*q.Ancestor)
	}

	var all []model.Conference
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte(prefix)
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Seek(opts.Prefix); it.ValidForPrefix(opts.Prefix); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var c model.Conference
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &c)
			})
			if err != nil {
				return fmt.Errorf("decode %s: %w", it.Item().Key(), err)
			}
			all = append(all, c)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("scan conferences: %w", err)
	}
	return filterAndSort(all, q)
}

type badgerTxn struct {
	txn   *badger.Txn
	scope txnScope
}

func (t *badgerTxn) GetProfile(k keys.Key) (model.Profile, bool, error) {
	var p model.Profile
	if err := checkKind(k, keys.KindProfile); err != nil {
		return p, false, err
	}
	if err := t.scope.check(k); err != nil {
		return p, false, err
	}
	found, err := getJSON(t.txn, k.StorageID(), &p)
	return p, found, err
}

func (t *badgerTxn) GetConference(k keys.Key) (model.Conference, bool, error) {
	var c model.Conference
	if err := checkKind(k, keys.KindConference); err != nil {
		return c, false, err
	}
	if err := t.scope.check(k); err != nil {
		return c, false, err
	}
	found, err := getJSON(t.txn, k.StorageID(), &c)
	return c, found, err
}

func (t *badgerTxn) PutProfile(p model.Profile) error {
	if err := t.scope.check(p.Key()); err != nil {
		return err
	}
	return putProfile(t.txn, p)
}

func (t *badgerTxn) PutConference(c model.Conference) error {
	if err := t.scope.check(c.Key()); err != nil {
		return err
	}
	return putConference(t.txn, c)
}

func putProfile(txn *badger.Txn, p model.Profile) error {
	if err := checkProfile(p); err != nil {
		return err
	}
	return setJSON(txn, p.Key().StorageID(), p)
}

func putConference(txn *badger.Txn, c model.Conference) error {
	if err := checkConference(c); err != nil {
		return err
	}
	return setJSON(txn, c.Key().StorageID(), c)
}

func getJSON(txn *badger.Txn, id string, v any) (bool, error) {
	item, err := txn.Get([]byte(id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("get %s: %w", id, err)
	}
	err = item.Value(func(val []byte) error {
		return json.Unmarshal(val, v)
	})
	if err != nil {
		return false, fmt.Errorf("decode %s: %w", id, err)
	}
	return true, nil
}

func setJSON(txn *badger.Txn, id string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode %s: %w", id, err)
	}
	if err := txn.Set([]byte(id), data); err != nil {
		return fmt.Errorf("set %s: %w", id, err)
	}
	return nil
}
