package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/agentic-traveler/traveler/internal/traveler"
)

var (
	ErrNotFound      = errors.New("record not found")
	ErrAlreadyExists = errors.New("record already exists")
	ErrInvalidPatch  = errors.New("invalid patch")
)

// Ref is the store-internal reference to a record document.
type Ref string

// Patch maps dot-addressed paths to new values. Applying a patch sets
// exactly those paths and leaves every other field of the document intact.
type Patch map[string]any

// Paths returns the patch keys in sorted order.
func (p Patch) Paths() []string {
	out := make([]string, 0, len(p))
	for k := range p {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

// Store persists traveler records as documents.
type Store interface {
	// Lookup finds a record by external user identifier. It returns
	// ErrNotFound when no record exists.
	Lookup(ctx context.Context, externalID string) (traveler.Record, Ref, error)
	// Merge atomically applies patch to the referenced document.
	Merge(ctx context.Context, ref Ref, patch Patch) error
	Create(ctx context.Context, rec traveler.Record) (Ref, error)
	// List returns records ordered by external identifier. limit <= 0 means all.
	List(ctx context.Context, limit int) ([]traveler.Record, error)
	Close() error
}

var reservedPaths = map[string]bool{
	"id":          true,
	"external_id": true,
}

// ApplyPatch sets each patch path on doc, creating intermediate maps as needed.
func ApplyPatch(doc map[string]any, patch Patch) error {
	for _, path := range patch.Paths() {
		parts := strings.Split(path, ".")
		for _, p := range parts {
			if strings.TrimSpace(p) == "" {
				return fmt.Errorf("%w: empty segment in %q", ErrInvalidPatch, path)
			}
		}
		if reservedPaths[parts[0]] {
			return fmt.Errorf("%w: %q is read-only", ErrInvalidPatch, path)
		}

		value, err := normalize(patch[path])
		if err != nil {
			return fmt.Errorf("%w: %s: %v", ErrInvalidPatch, path, err)
		}

		cur := doc
		for _, p := range parts[:len(parts)-1] {
			next, ok := cur[p].(map[string]any)
			if !ok {
				next = make(map[string]any)
				cur[p] = next
			}
			cur = next
		}
		cur[parts[len(parts)-1]] = value
	}
	return nil
}

// normalize converts typed values into their generic JSON form.
func normalize(v any) (any, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out any
	if err := json.Unmarshal(b, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func encodeRecord(rec traveler.Record) ([]byte, error) {
	b, err := json.Marshal(rec)
	if err != nil {
		return nil, fmt.Errorf("encode record: %w", err)
	}
	return b, nil
}

func decodeRecord(b []byte) (traveler.Record, error) {
	var rec traveler.Record
	if err := json.Unmarshal(b, &rec); err != nil {
		return traveler.Record{}, fmt.Errorf("decode record: %w", err)
	}
	return rec, nil
}

// patchDocument applies patch to an encoded document and re-encodes it.
func patchDocument(raw []byte, patch Patch) ([]byte, error) {
	doc := make(map[string]any)
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("decode document: %w", err)
	}
	if err := ApplyPatch(doc, patch); err != nil {
		return nil, err
	}
	b, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("encode document: %w", err)
	}
	return b, nil
}

func validateNew(rec traveler.Record) error {
	if strings.TrimSpace(rec.ExternalID) == "" {
		return errors.New("external_id is required")
	}
	return nil
}
