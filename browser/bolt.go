package browser

import (
	"fmt"

	"go.etcd.io/bbolt"
)

// Bucket names used by hosts that keep both storage scopes in one file.
const (
	DurableBucket = "local"
	TabBucket     = "session"
)

// BoltStorage is a Storage backed by one bucket of a BBolt database.  It
// survives process restarts, which is how cmd/portal gives durable storage
// "page reload" semantics.
type BoltStorage struct {
	db     *bbolt.DB
	bucket []byte
}

// ensure that BoltStorage implements the Storage interface
var _ Storage = (*BoltStorage)(nil)

// OpenBolt opens (creating if needed) the BBolt database at path.
func OpenBolt(path string, options *bbolt.Options) (*bbolt.DB, error) {
	const op = "browser.OpenBolt"
	db, err := bbolt.Open(path, 0o600, options)
	if err != nil {
		return nil, fmt.Errorf("%s: opening bbolt db: %w", op, err)
	}
	return db, nil
}

// NewBoltStorage returns a Storage using bucket in db.  The bucket is
// created if it doesn't exist.
func NewBoltStorage(db *bbolt.DB, bucket string) (*BoltStorage, error) {
	const op = "browser.NewBoltStorage"
	if db == nil {
		return nil, fmt.Errorf("%s: db is nil: %w", op, ErrNilParameter)
	}
	if bucket == "" {
		return nil, fmt.Errorf("%s: bucket is empty: %w", op, ErrInvalidParameter)
	}
	err := db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(bucket))
		return err
	})
	if err != nil {
		return nil, fmt.Errorf("%s: unable to create bucket %q: %w", op, bucket, err)
	}
	return &BoltStorage{db: db, bucket: []byte(bucket)}, nil
}

// GetItem implements Storage.GetItem.  Read failures are reported as a
// missing entry.
func (s *BoltStorage) GetItem(key string) (string, bool) {
	var (
		v  string
		ok bool
	)
	_ = s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(s.bucket)
		if b == nil {
			return nil
		}
		if data := b.Get([]byte(key)); data != nil {
			// data is only valid for the life of the transaction
			v, ok = string(data), true
		}
		return nil
	})
	return v, ok
}

// SetItem implements Storage.SetItem.
func (s *BoltStorage) SetItem(key, value string) error {
	const op = "browser.(BoltStorage).SetItem"
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b, err := tx.CreateBucketIfNotExists(s.bucket)
		if err != nil {
			return err
		}
		return b.Put([]byte(key), []byte(value))
	})
	if err != nil {
		return fmt.Errorf("%s: %s: %v: %w", op, key, err, ErrStorage)
	}
	return nil
}

// RemoveItem implements Storage.RemoveItem.
func (s *BoltStorage) RemoveItem(key string) error {
	const op = "browser.(BoltStorage).RemoveItem"
	err := s.db.Update(func(tx *bbolt.Tx) error {
		b := tx.Bucket(s.bucket)
		if b == nil {
			return nil
		}
		return b.Delete([]byte(key))
	})
	if err != nil {
		return fmt.Errorf("%s: %s: %v: %w", op, key, err, ErrStorage)
	}
	return nil
}

// Clear removes every entry in the bucket.  Hosts call it on tab storage
// when a new browsing session starts.
func (s *BoltStorage) Clear() error {
	const op = "browser.(BoltStorage).Clear"
	err := s.db.Update(func(tx *bbolt.Tx) error {
		if tx.Bucket(s.bucket) != nil {
			if err := tx.DeleteBucket(s.bucket); err != nil {
				return err
			}
		}
		_, err := tx.CreateBucket(s.bucket)
		return err
	})
	if err != nil {
		return fmt.Errorf("%s: %v: %w", op, err, ErrStorage)
	}
	return nil
}

// Keys returns every key in the bucket, in byte order.
func (s *BoltStorage) Keys() ([]string, error) {
	const op = "browser.(BoltStorage).Keys"
	var keys []string
	err := s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(s.bucket)
		if b == nil {
			return nil
		}
		return b.ForEach(func(k, _ []byte) error {
			keys = append(keys, string(k))
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return keys, nil
}
