package store

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"

	"github.com/agentic-traveler/traveler/internal/traveler"
)

var (
	bucketRecords  = []byte("records")
	bucketExternal = []byte("external_ids")
)

// BoltStore persists traveler records in an embedded bbolt file.
type BoltStore struct {
	db *bolt.DB
}

func NewBoltStore(path string) (*BoltStore, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, errors.New("bolt path is required")
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("open bolt: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		for _, name := range [][]byte{bucketRecords, bucketExternal} {
			if _, err := tx.CreateBucketIfNotExists(name); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init buckets: %w", err)
	}
	return &BoltStore{db: db}, nil
}

func (s *BoltStore) Lookup(_ context.Context, externalID string) (traveler.Record, Ref, error) {
	var (
		ref Ref
		raw []byte
	)
	err := s.db.View(func(tx *bolt.Tx) error {
		id := tx.Bucket(bucketExternal).Get([]byte(externalID))
		if id == nil {
			return ErrNotFound
		}
		doc := tx.Bucket(bucketRecords).Get(id)
		if doc == nil {
			return ErrNotFound
		}
		ref = Ref(id)
		raw = append([]byte(nil), doc...)
		return nil
	})
	if err != nil {
		return traveler.Record{}, "", err
	}
	rec, err := decodeRecord(raw)
	if err != nil {
		return traveler.Record{}, "", err
	}
	return rec, ref, nil
}

func (s *BoltStore) Merge(_ context.Context, ref Ref, patch Patch) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketRecords)
		raw := b.Get([]byte(ref))
		if raw == nil {
			return ErrNotFound
		}
		next, err := patchDocument(raw, patch)
		if err != nil {
			return err
		}
		return b.Put([]byte(ref), next)
	})
}

func (s *BoltStore) Create(_ context.Context, rec traveler.Record) (Ref, error) {
	if err := validateNew(rec); err != nil {
		return "", err
	}
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	raw, err := encodeRecord(rec)
	if err != nil {
		return "", err
	}
	err = s.db.Update(func(tx *bolt.Tx) error {
		ext := tx.Bucket(bucketExternal)
		records := tx.Bucket(bucketRecords)
		if ext.Get([]byte(rec.ExternalID)) != nil || records.Get([]byte(rec.ID)) != nil {
			return ErrAlreadyExists
		}
		if err := records.Put([]byte(rec.ID), raw); err != nil {
			return err
		}
		return ext.Put([]byte(rec.ExternalID), []byte(rec.ID))
	})
	if err != nil {
		return "", err
	}
	return Ref(rec.ID), nil
}

func (s *BoltStore) List(_ context.Context, limit int) ([]traveler.Record, error) {
	var out []traveler.Record
	err := s.db.View(func(tx *bolt.Tx) error {
		records := tx.Bucket(bucketRecords)
		// Keys in the external bucket are byte-sorted, which matches string order.
		return tx.Bucket(bucketExternal).ForEach(func(_, id []byte) error {
			if limit > 0 && len(out) >= limit {
				return nil
			}
			raw := records.Get(id)
			if raw == nil {
				return nil
			}
			rec, err := decodeRecord(raw)
			if err != nil {
				return err
			}
			out = append(out, rec)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *BoltStore) Close() error {
	return s.db.Close()
}
