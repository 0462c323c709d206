package bbolt

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/TecharoHQ/botcha/lib/store"
	"go.etcd.io/bbolt"
)

// Sentinel error values used for testing and in admin-visible error messages.
var (
	ErrBucketDoesNotExist = errors.New("bbolt: bucket does not exist")
	ErrNotExists          = errors.New("bbolt: value does not exist in store")
)

var (
	keyData   = []byte("data")
	keyExpiry = []byte("expiry")
)

// Store implements store.Interface backed by bbolt[1].
//
// Every value gets its own bucket with two keys:
//
// 1. data - The raw data, usually in JSON
// 2. expiry - The expiry time formatted as a time.RFC3339Nano timestamp string
//
// Sweep walks the top level buckets and only has to parse the expiry key of
// each one to decide whether to drop it.
//
// bbolt holds an exclusive file lock, so a database can only be shared by one
// BOTCHA process. Use the valkey backend when running more than one.
//
// [1]: https://github.com/etcd-io/bbolt
type Store struct {
	bdb *bbolt.DB
	now func() time.Time
}

// Delete a key from the datastore. If the key does not exist, return an error.
func (s *Store) Delete(ctx context.Context, key string) error {
	return s.bdb.Update(func(tx *bbolt.Tx) error {
		if tx.Bucket([]byte(key)) == nil {
			return fmt.Errorf("%w: %w: %q", store.ErrNotFound, ErrNotExists, key)
		}

		return tx.DeleteBucket([]byte(key))
	})
}

// read pulls a live value out of its bucket. The returned slice is a copy
// and stays valid after the transaction ends.
func (s *Store) read(key string, itemBucket *bbolt.Bucket) ([]byte, error) {
	if itemBucket == nil {
		return nil, fmt.Errorf("%w: %q", store.ErrNotFound, key)
	}

	expiryStr := itemBucket.Get(keyExpiry)
	if expiryStr == nil {
		return nil, fmt.Errorf("[unexpected] %w: %q (expiry is nil)", store.ErrNotFound, key)
	}

	expiry, err := time.Parse(time.RFC3339Nano, string(expiryStr))
	if err != nil {
		return nil, fmt.Errorf("[unexpected] %w: %w", store.ErrCantDecode, err)
	}

	if s.now().After(expiry) {
		return nil, fmt.Errorf("%w: %q", store.ErrNotFound, key)
	}

	dataStr := itemBucket.Get(keyData)
	if dataStr == nil {
		return nil, fmt.Errorf("[unexpected] %w: %q (data is nil)", store.ErrNotFound, key)
	}

	result := make([]byte, len(dataStr))
	copy(result, dataStr)

	return result, nil
}

// Get a value from the datastore. Expired values are reported as missing and
// left for Sweep to remove.
func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	var result []byte

	if err := s.bdb.View(func(tx *bbolt.Tx) error {
		var err error
		result, err = s.read(key, tx.Bucket([]byte(key)))
		return err
	}); err != nil {
		return nil, err
	}

	return result, nil
}

// Take reads and removes a value in one read-write transaction. bbolt only
// allows a single writer at a time, so concurrent Takes are serialized.
func (s *Store) Take(ctx context.Context, key string) ([]byte, error) {
	var (
		result  []byte
		readErr error
	)

	if err := s.bdb.Update(func(tx *bbolt.Tx) error {
		bkt := tx.Bucket([]byte(key))
		result, readErr = s.read(key, bkt)
		if bkt == nil {
			return nil
		}

		// expired buckets are dropped too, so the transaction has to commit
		// even when the read failed
		return tx.DeleteBucket([]byte(key))
	}); err != nil {
		return nil, err
	}

	if readErr != nil {
		return nil, readErr
	}

	return result, nil
}

// Set a value into the store with a given expiry.
func (s *Store) Set(ctx context.Context, key string, value []byte, expiry time.Duration) error {
	expires := s.now().Add(expiry)

	return s.bdb.Update(func(tx *bbolt.Tx) error {
		valueBkt, err := tx.CreateBucketIfNotExists([]byte(key))
		if err != nil {
			return fmt.Errorf("%w: %w: %q (create bucket)", store.ErrCantEncode, err, key)
		}

		if err := valueBkt.Put(keyExpiry, []byte(expires.Format(time.RFC3339Nano))); err != nil {
			return fmt.Errorf("%w: %q (expiry)", store.ErrCantEncode, key)
		}

		if err := valueBkt.Put(keyData, value); err != nil {
			return fmt.Errorf("%w: %q (data)", store.ErrCantEncode, key)
		}

		return nil
	})
}

// Sweep removes every expired bucket and reports how many were dropped.
func (s *Store) Sweep(ctx context.Context) (int, error) {
	now := s.now()
	var expired [][]byte

	err := s.bdb.Update(func(tx *bbolt.Tx) error {
		if err := tx.ForEach(func(key []byte, valueBkt *bbolt.Bucket) error {
			expiryStr := valueBkt.Get(keyExpiry)
			if expiryStr == nil {
				slog.Warn("while running sweep, expiry is not set somehow, file a bug?", "key", string(key))
				return nil
			}

			expiry, err := time.Parse(time.RFC3339Nano, string(expiryStr))
			if err != nil {
				return fmt.Errorf("[unexpected] %w in bucket %q: %w", store.ErrCantDecode, string(key), err)
			}

			if now.After(expiry) {
				expired = append(expired, append([]byte(nil), key...))
			}

			return nil
		}); err != nil {
			return err
		}

		// buckets can't be dropped while ForEach is iterating over them
		for _, key := range expired {
			if err := tx.DeleteBucket(key); err != nil {
				return err
			}
		}

		return nil
	})
	if err != nil {
		return 0, err
	}

	return len(expired), nil
}

// Close releases the database file lock.
func (s *Store) Close() error {
	return s.bdb.Close()
}
