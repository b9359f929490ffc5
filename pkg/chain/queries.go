// ABOUTME: Read-only queries over version chains
// ABOUTME: History walks, point-in-time lookups and duplicate detection

package chain

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"cloud.google.com/go/civil"

	"github.com/nainya/orgstore/pkg/storage"
)

// Get retrieves a version by ID
func (m *Manager) Get(versionID string) (*Version, error) {
	var v *Version
	err := m.kv.View(func(tx *storage.KVTX) error {
		var err error
		v, err = getVersion(tx, versionID)
		return err
	})
	return v, err
}

// Head returns the current head of an accountability's chain
func (m *Manager) Head(accountabilityID string) (*Version, error) {
	var head *Version
	err := m.kv.View(func(tx *storage.KVTX) error {
		headID, err := m.anchors.HeadVersion(tx, accountabilityID)
		if err != nil {
			return m.anchorErr(err, accountabilityID)
		}
		if headID == "" {
			return fmt.Errorf("%w: accountability %s", ErrEmptyChain, accountabilityID)
		}
		head, err = getVersion(tx, headID)
		return err
	})
	return head, err
}

// History returns the chain newest first. An accountability without
// versions yields an empty slice.
func (m *Manager) History(accountabilityID string) ([]*Version, error) {
	var versions []*Version
	err := m.kv.View(func(tx *storage.KVTX) error {
		var err error
		versions, err = m.walk(tx, accountabilityID)
		return err
	})
	return versions, err
}

// VersionAsOf returns the version that was the head at instant, i.e. the
// newest version recorded at or before it. InsertVersion never stamps a
// version earlier than its predecessor, so creation times are non-decreasing
// from tail to head even when the clock steps back.
func (m *Manager) VersionAsOf(accountabilityID string, instant time.Time) (*Version, error) {
	versions, err := m.History(accountabilityID)
	if err != nil {
		return nil, err
	}
	for _, v := range versions {
		if !v.CreatedAt.After(instant) {
			return v, nil
		}
	}
	return nil, fmt.Errorf("%w: no version of %s recorded as of %s", ErrNotFound, accountabilityID, instant.Format(time.RFC3339))
}

// ActiveOn reports whether the accountability is in force on date d:
// its head is not erased and its validity interval covers d.
func (m *Manager) ActiveOn(accountabilityID string, d civil.Date) (bool, error) {
	head, err := m.Head(accountabilityID)
	if errors.Is(err, ErrEmptyChain) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return !head.Erased && head.Covers(d), nil
}

// CreatedBy returns the versions recorded by user, newest first
func (m *Manager) CreatedBy(user string) ([]*Version, error) {
	var versions []*Version
	err := m.kv.View(func(tx *storage.KVTX) error {
		var ids []string
		err := tx.ScanPrefix(creatorPrefix(user), func(key, val []byte) bool {
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
			v, err := getVersion(tx, id)
			if err != nil {
				return err
			}
			versions = append(versions, v)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	sort.SliceStable(versions, func(i, j int) bool {
		return versions[i].CreatedAt.After(versions[j].CreatedAt)
	})
	return versions, nil
}

// Verify runs every chain check without modifying anything
func (m *Manager) Verify(accountabilityID string) error {
	return m.kv.View(func(tx *storage.KVTX) error {
		err := verifyChain(tx, m.anchors, accountabilityID)
		if errors.Is(err, storage.ErrNotFound) {
			return m.anchorErr(err, accountabilityID)
		}
		return err
	})
}

// Duplicates finds every pair of versions in a chain that record the same
// state. Adjacent pairs cannot be produced by InsertVersion; non-adjacent
// ones appear when a change is reverted.
func (m *Manager) Duplicates(accountabilityID string) ([]DuplicatePair, error) {
	versions, err := m.History(accountabilityID)
	if err != nil {
		return nil, err
	}

	var pairs []DuplicatePair
	for i := 0; i < len(versions); i++ {
		for j := i + 1; j < len(versions); j++ {
			if IsRedundant(versions[i], versions[j]) {
				pairs = append(pairs, DuplicatePair{Newer: versions[i], Older: versions[j]})
			}
		}
	}
	return pairs, nil
}

func (m *Manager) walk(tx *storage.KVTX, accountabilityID string) ([]*Version, error) {
	headID, err := m.anchors.HeadVersion(tx, accountabilityID)
	if err != nil {
		return nil, m.anchorErr(err, accountabilityID)
	}

	versions := []*Version{}
	seen := make(map[string]bool)
	for id := headID; id != ""; {
		if seen[id] {
			return nil, violation(InvariantConnectivity, id, "cycle in chain of accountability %s", accountabilityID)
		}
		seen[id] = true

		v, err := getVersion(tx, id)
		if errors.Is(err, ErrNotFound) {
			return nil, violation(InvariantConnectivity, id, "chain of accountability %s links to a missing version", accountabilityID)
		}
		if err != nil {
			return nil, err
		}
		versions = append(versions, v)
		id = v.Previous
	}
	return versions, nil
}
