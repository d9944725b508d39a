package kvstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/vmihailenco/msgpack/v5"
)

type lease struct {
	Holder    string `msgpack:"holder"`
	ExpiresAt int64  `msgpack:"expires_at"` // epoch ms
}

func leaseKey(name string) []byte {
	return append(append([]byte{}, leasePrefix...), name...)
}

// AcquireLease claims the named lease for holder until now+ttl, judging
// expiry against the caller's now.
//
// The claim succeeds when no lease exists, when the existing lease has
// expired, or when holder already owns it. A concurrent claim that loses the
// transaction conflict reports false without error.
func (s *Store) AcquireLease(ctx context.Context, name, holder string, now time.Time, ttl time.Duration) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}

	nowMs := now.UnixMilli()
	acquired := false
	err := s.db.Update(func(txn *badger.Txn) error {
		current, found, err := readLease(txn, name)
		if err != nil {
			return err
		}
		if found && current.Holder != holder && current.ExpiresAt > nowMs {
			return nil
		}

		val, err := msgpack.Marshal(&lease{Holder: holder, ExpiresAt: nowMs + ttl.Milliseconds()})
		if err != nil {
			return fmt.Errorf("encode lease: %w", err)
		}
		if err := txn.Set(leaseKey(name), val); err != nil {
			return err
		}
		acquired = true
		return nil
	})
	if errors.Is(err, badger.ErrConflict) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("acquire lease %q: %w", name, err)
	}
	return acquired, nil
}

// ReleaseLease drops the named lease if holder owns it.
func (s *Store) ReleaseLease(ctx context.Context, name, holder string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	err := s.db.Update(func(txn *badger.Txn) error {
		current, found, err := readLease(txn, name)
		if err != nil || !found || current.Holder != holder {
			return err
		}
		return txn.Delete(leaseKey(name))
	})
	if err != nil {
		return fmt.Errorf("release lease %q: %w", name, err)
	}
	return nil
}

func readLease(txn *badger.Txn, name string) (lease, bool, error) {
	item, err := txn.Get(leaseKey(name))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return lease{}, false, nil
	}
	if err != nil {
		return lease{}, false, err
	}

	var l lease
	err = item.Value(func(val []byte) error {
		return msgpack.Unmarshal(val, &l)
	})
	if err != nil {
		return lease{}, false, fmt.Errorf("decode lease: %w", err)
	}
	return l, true, nil
}
