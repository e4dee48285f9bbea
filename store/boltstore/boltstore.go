// Package boltstore stores objects in a single bbolt database file
package boltstore

import (
	"context"
	"fmt"
	"time"

	"github.com/airbusgeo/rastercache/store"
	bolt "go.etcd.io/bbolt"
)

var defaultBucket = []byte("objects")

// Store keeps all objects in one bucket of a bbolt database
type Store struct {
	db     *bolt.DB
	bucket []byte
}

var _ store.Store = (*Store)(nil)

// Option is an option that can be passed to Open
type Option func(o *Store)

// Bucket sets the bbolt bucket holding the objects. Defaults to "objects".
func Bucket(name string) Option {
	if name == "" {
		panic("empty bucket name")
	}
	return func(o *Store) {
		o.bucket = []byte(name)
	}
}

// Open opens or creates the database at path
func Open(path string, opts ...Option) (*Store, error) {
	s := &Store{bucket: defaultBucket}
	for _, o := range opts {
		o(s)
	}
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: 5 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("bolt.open %s: %w", path, err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(s.bucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create bucket: %w", err)
	}
	s.db = db
	return s, nil
}

// Close releases the database file
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) Get(ctx context.Context, key string) ([]byte, error) {
	var data []byte
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(s.bucket).Get([]byte(key))
		if v == nil {
			return fmt.Errorf("%s: %w", key, store.ErrNotExist)
		}
		//v is only valid for the lifetime of the transaction
		data = append([]byte{}, v...)
		return nil
	})
	return data, err
}

func (s *Store) Put(ctx context.Context, key string, data []byte) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(s.bucket).Put([]byte(key), data)
	})
}

func (s *Store) Delete(ctx context.Context, key string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(s.bucket).Delete([]byte(key))
	})
}
