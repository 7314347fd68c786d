package routing

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/skycoin/skycoin/src/util/logging"
	"go.etcd.io/bbolt"
)

var boltDBBucket = []byte("rtables")
var log = logging.MustGetLogger("routing")

// boltDBStore persists packed tables in BoltDB and serves reads from memory,
// since next-hop lookups happen once per forwarded chunk.
type boltDBStore struct {
	db    *bbolt.DB
	cache Store
}

// BoltDBStore opens (or creates) a BoltDB backed Store at path. Tables
// already present in the database are loaded.
func BoltDBStore(path string) (Store, error) {
	db, err := bbolt.Open(path, 0600, nil)
	if err != nil {
		return nil, err
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(boltDBBucket); err != nil {
			return fmt.Errorf("failed to create bucket: %s", err)
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	s := &boltDBStore{db: db, cache: InMemoryStore()}
	err = db.View(func(tx *bbolt.Tx) error {
		return tx.Bucket(boltDBBucket).ForEach(func(k, v []byte) error {
			tbl := new(Table)
			if err := tbl.UnmarshalBinary(v); err != nil {
				return fmt.Errorf("failed to load table %d: %s", binary.BigEndian.Uint32(k), err)
			}
			_, err := s.cache.Put(tbl)
			return err
		})
	})
	if err != nil {
		db.Close() // nolint: errcheck
		return nil, err
	}

	return s, nil
}

// Put stores the table in BoltDB and in the read cache.
func (s *boltDBStore) Put(tbl *Table) (bool, error) {
	if s.cache.Get(tbl.Src) != nil {
		return false, nil
	}

	raw, err := tbl.MarshalBinary()
	if err != nil {
		return false, err
	}

	err = s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(boltDBBucket).Put(binaryID(tbl.Src), raw)
	})
	if err != nil {
		return false, err
	}

	return s.cache.Put(tbl)
}

// Get returns the table computed by src.
func (s *boltDBStore) Get(src int) *Table {
	return s.cache.Get(src)
}

// Range iterates over the persisted tables in ascending source order.
func (s *boltDBStore) Range(rangeFunc RangeFunc) error {
	return s.db.View(func(tx *bbolt.Tx) error {
		b := tx.Bucket(boltDBBucket)
		f := func(k, _ []byte) error {
			src := int(binary.BigEndian.Uint32(k))
			if !rangeFunc(src, s.cache.Get(src)) {
				return errors.New("iterator stopped")
			}

			return nil
		}
		if err := b.ForEach(f); err != nil {
			log.Debug(err)
		}
		return nil
	})
}

// Count returns the number of tables persisted.
func (s *boltDBStore) Count() (count int) {
	err := s.db.View(func(tx *bbolt.Tx) error {
		count = tx.Bucket(boltDBBucket).Stats().KeyN
		return nil
	})
	if err != nil {
		return 0
	}

	return count
}

// Close closes underlying BoltDB instance.
func (s *boltDBStore) Close() error {
	if s == nil {
		return nil
	}
	return s.db.Close()
}

func binaryID(src int) []byte {
	b := make([]byte, 4)
	binary.BigEndian.PutUint32(b, uint32(src))
	return b
}
