package store

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"time"

	bolt "go.etcd.io/bbolt"
)

var taskBucket = []byte("scheduled_tasks")

// Bolt persists tasks as JSON blobs in a single bbolt bucket, keyed by the
// big-endian task id so a cursor walk yields id order.
type Bolt struct{ db *bolt.DB }

func OpenBolt(path string) (*Bolt, error) {
	db, err := bolt.Open(path, 0600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, err
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(taskBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, err
	}
	return &Bolt{db: db}, nil
}

func boltKey(id uint64) []byte {
	k := make([]byte, 8)
	binary.BigEndian.PutUint64(k, id)
	return k
}

func (s *Bolt) LoadAll(ctx context.Context) ([]Record, error) {
	var recs []Record
	err := s.db.View(func(tx *bolt.Tx) error {
		c := tx.Bucket(taskBucket).Cursor()
		for k, v := c.First(); k != nil; k, v = c.Next() {
			var r Record
			if err := json.Unmarshal(v, &r); err != nil {
				continue // skip corrupt rows
			}
			recs = append(recs, r)
		}
		return nil
	})
	return recs, err
}

func (s *Bolt) put(rec Record) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		data, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		return tx.Bucket(taskBucket).Put(boltKey(rec.ID), data)
	})
}

func (s *Bolt) Insert(ctx context.Context, rec Record) error { return s.put(rec) }

func (s *Bolt) Update(ctx context.Context, rec Record) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(taskBucket)
		if b.Get(boltKey(rec.ID)) == nil {
			return ErrNotFound
		}
		data, err := json.Marshal(rec)
		if err != nil {
			return err
		}
		return b.Put(boltKey(rec.ID), data)
	})
}

func (s *Bolt) Delete(ctx context.Context, id uint64) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(taskBucket).Delete(boltKey(id))
	})
}

func (s *Bolt) Close() error { return s.db.Close() }
