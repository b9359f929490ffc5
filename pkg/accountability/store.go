// ABOUTME: Accountability store with party index
// ABOUTME: Exposes the head-version reference to the chain manager inside a transaction

package accountability

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/nainya/orgstore/pkg/storage"
)

// Prefixes for accountability storage
const (
	PREFIX_ACCOUNTABILITY       = uint32(1000)
	PREFIX_ACCOUNTABILITY_PARTY = uint32(1100) // Index by (partyID, accountabilityID)
)

var (
	// ErrNotFound indicates an unknown accountability
	ErrNotFound = fmt.Errorf("accountability: %w", storage.ErrNotFound)

	// ErrExists indicates an accountability with the same ID is registered
	ErrExists = errors.New("accountability: already exists")

	// ErrInvalid indicates missing required attributes
	ErrInvalid = errors.New("accountability: invalid")
)

// Store manages accountability anchors
type Store struct {
	kv  *storage.KV
	now func() time.Time
}

// NewStore creates a new accountability store
func NewStore(kv *storage.KV) *Store {
	return &Store{kv: kv, now: func() time.Time { return time.Now().UTC() }}
}

// Create registers a new accountability. ID and CreatedAt are filled in when empty.
// A new accountability never has a head version.
func (s *Store) Create(acc *Accountability) error {
	if acc == nil {
		return fmt.Errorf("%w: nil accountability", ErrInvalid)
	}
	if acc.Type == "" || acc.Parent == "" || acc.Child == "" {
		return fmt.Errorf("%w: type, parent and child are required", ErrInvalid)
	}
	if acc.ID == "" {
		acc.ID = uuid.NewString()
	}
	if acc.CreatedAt.IsZero() {
		acc.CreatedAt = s.now()
	}
	acc.Head = ""

	return s.kv.Update(func(tx *storage.KVTX) error {
		key := accountabilityKey(acc.ID)
		_, exists, err := tx.Get(key)
		if err != nil {
			return err
		}
		if exists {
			return fmt.Errorf("%w: %s", ErrExists, acc.ID)
		}

		if err := tx.Set(key, encodeAccountability(acc)); err != nil {
			return err
		}
		for _, party := range []string{acc.Parent, acc.Child} {
			if err := tx.Set(partyKey(party, acc.ID), []byte{}); err != nil {
				return err
			}
		}
		return nil
	})
}

// Get retrieves an accountability by ID
func (s *Store) Get(id string) (*Accountability, error) {
	var acc *Accountability
	err := s.kv.View(func(tx *storage.KVTX) error {
		var err error
		acc, err = s.load(tx, id)
		return err
	})
	return acc, err
}

// List returns registered accountabilities in key order
func (s *Store) List(limit int) ([]*Accountability, error) {
	var result []*Accountability
	var decodeErr error

	err := s.kv.View(func(tx *storage.KVTX) error {
		prefix := storage.EncodeKey(PREFIX_ACCOUNTABILITY, nil)
		return tx.ScanPrefix(prefix, func(key, val []byte) bool {
			if limit > 0 && len(result) >= limit {
				return false
			}
			acc, err := decodeAccountability(val)
			if err != nil {
				decodeErr = err
				return false
			}
			result = append(result, acc)
			return true
		})
	})
	if err != nil {
		return nil, err
	}
	return result, decodeErr
}

// ByParty returns the accountabilities a party takes part in, as parent or child
func (s *Store) ByParty(partyID string) ([]*Accountability, error) {
	var result []*Accountability

	err := s.kv.View(func(tx *storage.KVTX) error {
		var ids []string
		prefix := storage.EncodeKey(PREFIX_ACCOUNTABILITY_PARTY, []storage.Value{
			storage.NewStringValue(partyID),
		})
		err := tx.ScanPrefix(prefix, func(key, val []byte) bool {
			vals, err := storage.ExtractValues(key)
			if err != nil || len(vals) < 2 {
				return true
			}
			ids = append(ids, vals[1].String())
			return true
		})
		if err != nil {
			return err
		}

		for _, id := range ids {
			acc, err := s.load(tx, id)
			if err != nil {
				return err
			}
			result = append(result, acc)
		}
		return nil
	})
	return result, err
}

// HeadVersion returns the head version ID of an accountability's chain,
// or "" when no version was recorded yet.
func (s *Store) HeadVersion(tx *storage.KVTX, id string) (string, error) {
	acc, err := s.load(tx, id)
	if err != nil {
		return "", err
	}
	return acc.Head, nil
}

// SetHeadVersion moves the head reference; "" clears it
func (s *Store) SetHeadVersion(tx *storage.KVTX, id, versionID string) error {
	acc, err := s.load(tx, id)
	if err != nil {
		return err
	}
	acc.Head = versionID
	return tx.Set(accountabilityKey(id), encodeAccountability(acc))
}

func (s *Store) load(tx *storage.KVTX, id string) (*Accountability, error) {
	val, ok, err := tx.Get(accountabilityKey(id))
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return decodeAccountability(val)
}

// Helper functions

func accountabilityKey(id string) []byte {
	return storage.EncodeKey(PREFIX_ACCOUNTABILITY, []storage.Value{
		storage.NewStringValue(id),
	})
}

func partyKey(partyID, id string) []byte {
	return storage.EncodeKey(PREFIX_ACCOUNTABILITY_PARTY, []storage.Value{
		storage.NewStringValue(partyID),
		storage.NewStringValue(id),
	})
}

func encodeAccountability(acc *Accountability) []byte {
	return storage.EncodeValues([]storage.Value{
		storage.NewStringValue(acc.ID),
		storage.NewStringValue(acc.Type),
		storage.NewStringValue(acc.Parent),
		storage.NewStringValue(acc.Child),
		storage.NewTimeValue(acc.CreatedAt),
		storage.NewStringValue(acc.Head),
	})
}

func decodeAccountability(val []byte) (*Accountability, error) {
	vals, err := storage.DecodeValues(val)
	if err != nil {
		return nil, err
	}
	if len(vals) < 6 {
		return nil, fmt.Errorf("%w: incomplete accountability data", storage.ErrCorrupted)
	}
	return &Accountability{
		ID:        vals[0].String(),
		Type:      vals[1].String(),
		Parent:    vals[2].String(),
		Child:     vals[3].String(),
		CreatedAt: vals[4].Time,
		Head:      vals[5].String(),
	}, nil
}
