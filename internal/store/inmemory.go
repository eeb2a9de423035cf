package store

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/agentic-traveler/traveler/internal/traveler"
)

// InMemoryStore keeps encoded record documents in process memory for local/dev use.
type InMemoryStore struct {
	mu         sync.RWMutex
	docs       map[Ref][]byte
	byExternal map[string]Ref
}

func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{
		docs:       make(map[Ref][]byte),
		byExternal: make(map[string]Ref),
	}
}

func (s *InMemoryStore) Lookup(_ context.Context, externalID string) (traveler.Record, Ref, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ref, ok := s.byExternal[externalID]
	if !ok {
		return traveler.Record{}, "", ErrNotFound
	}
	rec, err := decodeRecord(s.docs[ref])
	if err != nil {
		return traveler.Record{}, "", err
	}
	return rec, ref, nil
}

func (s *InMemoryStore) Merge(_ context.Context, ref Ref, patch Patch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	raw, ok := s.docs[ref]
	if !ok {
		return ErrNotFound
	}
	next, err := patchDocument(raw, patch)
	if err != nil {
		return err
	}
	s.docs[ref] = next
	return nil
}

func (s *InMemoryStore) Create(_ context.Context, rec traveler.Record) (Ref, error) {
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

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.byExternal[rec.ExternalID]; exists {
		return "", ErrAlreadyExists
	}
	ref := Ref(rec.ID)
	if _, exists := s.docs[ref]; exists {
		return "", ErrAlreadyExists
	}
	s.docs[ref] = raw
	s.byExternal[rec.ExternalID] = ref
	return ref, nil
}

func (s *InMemoryStore) List(_ context.Context, limit int) ([]traveler.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ids := make([]string, 0, len(s.byExternal))
	for ext := range s.byExternal {
		ids = append(ids, ext)
	}
	sort.Strings(ids)
	if limit > 0 && limit < len(ids) {
		ids = ids[:limit]
	}
	out := make([]traveler.Record, 0, len(ids))
	for _, ext := range ids {
		rec, err := decodeRecord(s.docs[s.byExternal[ext]])
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

func (s *InMemoryStore) Close() error { return nil }
