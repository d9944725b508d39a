package kvstore

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/vmihailenco/msgpack/v5"

	"github.com/roach88/fieldsync/internal/mutation"
)

func mutationKey(id int64) []byte {
	key := make([]byte, len(mutationPrefix)+8)
	copy(key, mutationPrefix)
	binary.BigEndian.PutUint64(key[len(mutationPrefix):], uint64(id))
	return key
}

// InsertMutation appends a record and returns its assigned id.
// The record's ID field is ignored.
func (s *Store) InsertMutation(ctx context.Context, rec mutation.Record) (int64, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	if !rec.Method.Valid() {
		return 0, fmt.Errorf("insert mutation: invalid method %q", rec.Method)
	}
	if rec.Status == "" {
		rec.Status = mutation.StatusPending
	}
	if !rec.Status.Valid() {
		return 0, fmt.Errorf("insert mutation: invalid status %q", rec.Status)
	}

	next, err := s.seq.Next()
	if err != nil {
		return 0, fmt.Errorf("insert mutation: next id: %w", err)
	}
	rec.ID = int64(next) + 1

	err = s.db.Update(func(txn *badger.Txn) error {
		return putRecord(txn, rec)
	})
	if err != nil {
		return 0, fmt.Errorf("insert mutation: %w", err)
	}
	return rec.ID, nil
}

// GetMutation retrieves a single record by id.
// Returns mutation.ErrNotFound if the record does not exist.
func (s *Store) GetMutation(ctx context.Context, id int64) (mutation.Record, error) {
	if err := ctx.Err(); err != nil {
		return mutation.Record{}, err
	}

	var rec mutation.Record
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		rec, err = getRecord(txn, id)
		return err
	})
	if err != nil {
		return mutation.Record{}, fmt.Errorf("get mutation %d: %w", id, err)
	}
	return rec, nil
}

// DeleteMutation removes a record. Deleting a missing id is not an error.
func (s *Store) DeleteMutation(ctx context.Context, id int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	err := s.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(mutationKey(id))
	})
	if err != nil {
		return fmt.Errorf("delete mutation %d: %w", id, err)
	}
	return nil
}

// ListMutations returns every record with the given status in ascending id
// order. Returns an empty slice (not nil) when there are none.
func (s *Store) ListMutations(ctx context.Context, status mutation.Status) ([]mutation.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	records := []mutation.Record{}
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = mutationPrefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			var rec mutation.Record
			err := it.Item().Value(func(val []byte) error {
				return msgpack.Unmarshal(val, &rec)
			})
			if err != nil {
				return fmt.Errorf("decode %x: %w", it.Item().Key(), err)
			}
			if rec.Status == status {
				records = append(records, rec)
			}
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("list mutations: %w", err)
	}
	return records, nil
}

// UpdateMutationTarget rewrites the url and body of a record in place.
// A missing id is a no-op.
func (s *Store) UpdateMutationTarget(ctx context.Context, id int64, url string, body json.RawMessage) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	err := s.db.Update(func(txn *badger.Txn) error {
		rec, err := getRecord(txn, id)
		if errors.Is(err, mutation.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		rec.URL = url
		rec.Body = body
		return putRecord(txn, rec)
	})
	if err != nil {
		return fmt.Errorf("update mutation %d: %w", id, err)
	}
	return nil
}

// CountMutations returns the number of records per status.
// Statuses with no records are absent from the map.
func (s *Store) CountMutations(ctx context.Context) (map[mutation.Status]int, error) {
	counts := make(map[mutation.Status]int)
	for _, status := range []mutation.Status{mutation.StatusPending, mutation.StatusProcessing, mutation.StatusFailed} {
		recs, err := s.ListMutations(ctx, status)
		if err != nil {
			return nil, fmt.Errorf("count mutations: %w", err)
		}
		if len(recs) > 0 {
			counts[status] = len(recs)
		}
	}
	return counts, nil
}

func getRecord(txn *badger.Txn, id int64) (mutation.Record, error) {
	item, err := txn.Get(mutationKey(id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return mutation.Record{}, mutation.ErrNotFound
	}
	if err != nil {
		return mutation.Record{}, err
	}

	var rec mutation.Record
	err = item.Value(func(val []byte) error {
		return msgpack.Unmarshal(val, &rec)
	})
	return rec, err
}

func putRecord(txn *badger.Txn, rec mutation.Record) error {
	val, err := msgpack.Marshal(&rec)
	if err != nil {
		return fmt.Errorf("encode record: %w", err)
	}
	return txn.Set(mutationKey(rec.ID), val)
}
