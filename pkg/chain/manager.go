// ABOUTME: Version chain manager for accountabilities
// ABOUTME: Inserts, suppresses redundant updates and deletes heads inside one transaction each

package chain

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/nainya/orgstore/pkg/storage"
)

// Anchors gives access to the head-version reference held by each
// accountability. Both calls run inside the caller's transaction.
type Anchors interface {
	// HeadVersion returns "" when the accountability has no chain yet and
	// an error wrapping storage.ErrNotFound for unknown accountabilities.
	HeadVersion(tx *storage.KVTX, accountabilityID string) (string, error)
	SetHeadVersion(tx *storage.KVTX, accountabilityID, versionID string) error
}

// Manager owns creation, linkage and invariant enforcement of version chains
type Manager struct {
	kv       *storage.KV
	anchors  Anchors
	clock    Clock
	identity Identity
	newID    func() string
	log      zerolog.Logger
}

// Option configures a Manager
type Option func(*Manager)

// WithClock overrides the creation timestamp source
func WithClock(c Clock) Option {
	return func(m *Manager) { m.clock = c }
}

// WithIdentity overrides the acting user source
func WithIdentity(i Identity) Option {
	return func(m *Manager) { m.identity = i }
}

// WithLogger sets the logger used for no-ops and rejected mutations
func WithLogger(l zerolog.Logger) Option {
	return func(m *Manager) { m.log = l }
}

// NewManager creates a chain manager over kv
func NewManager(kv *storage.KV, anchors Anchors, opts ...Option) *Manager {
	m := &Manager{
		kv:       kv,
		anchors:  anchors,
		clock:    SystemClock,
		identity: ContextIdentity{},
		newID:    uuid.NewString,
		log:      zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// InsertVersion records a new state for an accountability.
//
// The first version of a chain may not be erased. When the requested state
// equals the head's (begin date, erased, end date) nothing is written and the
// current head is returned with created == false. Otherwise the new version
// becomes the head and the former head is linked behind it. The whole chain
// is re-validated before commit; a violation aborts the transaction.
func (m *Manager) InsertVersion(ctx context.Context, accountabilityID string, attrs Attributes) (*Version, bool, error) {
	if accountabilityID == "" {
		return nil, false, fmt.Errorf("%w: accountability is required", ErrInvalidArgument)
	}
	if err := CheckDateInterval(attrs.BeginDate, attrs.EndDate); err != nil {
		return nil, false, err
	}

	tx, err := m.kv.Begin()
	if err != nil {
		return nil, false, err
	}
	defer tx.Abort()

	headID, err := m.anchors.HeadVersion(tx, accountabilityID)
	if err != nil {
		return nil, false, m.anchorErr(err, accountabilityID)
	}

	candidate := &Version{
		BeginDate:      attrs.BeginDate,
		EndDate:        attrs.EndDate,
		Erased:         attrs.Erased,
		Justification:  attrs.Justification,
		Accountability: accountabilityID,
	}
	var head *Version

	if headID == "" {
		if attrs.Erased {
			return nil, false, fmt.Errorf("%w: first version of accountability %s cannot be erased", ErrInvalidArgument, accountabilityID)
		}
	} else {
		if head, err = getVersion(tx, headID); errors.Is(err, ErrNotFound) {
			return nil, false, violation(InvariantConnectivity, headID, "accountability %s references a missing head", accountabilityID)
		}
		if err != nil {
			return nil, false, err
		}

		if IsRedundant(head, candidate) {
			m.log.Debug().
				Str("accountability", accountabilityID).
				Str("head", head.ID).
				Msg("redundant version ignored")
			return head, false, nil
		}
	}

	candidate.ID = m.newID()
	candidate.CreatedAt = m.clock.Now()
	if user, ok := m.identity.CurrentUser(ctx); ok {
		candidate.CreatedBy = user
	}

	if head != nil {
		// CreatedAt never decreases toward the head; VersionAsOf relies on it
		if candidate.CreatedAt.Before(head.CreatedAt) {
			candidate.CreatedAt = head.CreatedAt
		}
		candidate.Previous = head.ID
		head.Accountability = ""
		head.SupersededBy = candidate.ID
		if err := putVersion(tx, head); err != nil {
			return nil, false, err
		}
	}

	if err := putVersion(tx, candidate); err != nil {
		return nil, false, err
	}
	if candidate.CreatedBy != "" {
		if err := tx.Set(creatorKey(candidate.CreatedBy, candidate.ID), []byte{}); err != nil {
			return nil, false, err
		}
	}
	if err := m.anchors.SetHeadVersion(tx, accountabilityID, candidate.ID); err != nil {
		return nil, false, err
	}

	if err := m.verify(tx, accountabilityID); err != nil {
		return nil, false, err
	}
	if err := tx.Commit(); err != nil {
		return nil, false, err
	}

	m.log.Debug().
		Str("accountability", accountabilityID).
		Str("version", candidate.ID).
		Str("previous", candidate.Previous).
		Msg("version inserted")
	return candidate, true, nil
}

// Delete removes the head version of a chain. The creator association is
// dropped first, then the record; the predecessor, if any, becomes the new
// head. Deleting any other version fails with ErrNotHead.
func (m *Manager) Delete(ctx context.Context, versionID string) error {
	if versionID == "" {
		return fmt.Errorf("%w: version is required", ErrInvalidArgument)
	}

	tx, err := m.kv.Begin()
	if err != nil {
		return err
	}
	defer tx.Abort()

	v, err := getVersion(tx, versionID)
	if err != nil {
		return err
	}
	if !v.IsHead() {
		return fmt.Errorf("%w: version %s", ErrNotHead, versionID)
	}

	accountabilityID := v.Accountability
	headID, err := m.anchors.HeadVersion(tx, accountabilityID)
	if err != nil {
		return m.anchorErr(err, accountabilityID)
	}
	if headID != v.ID {
		return violation(InvariantConnectivity, v.ID, "claims accountability %s whose head is %q", accountabilityID, headID)
	}

	if _, err := m.deleteHead(tx, v); err != nil {
		return err
	}
	if err := m.verify(tx, accountabilityID); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}

	actor, _ := m.identity.CurrentUser(ctx)
	m.log.Debug().
		Str("accountability", accountabilityID).
		Str("version", versionID).
		Str("actor", actor).
		Msg("head version deleted")
	return nil
}

// Purge deletes a whole chain head first and returns the number of versions removed
func (m *Manager) Purge(ctx context.Context, accountabilityID string) (int, error) {
	if accountabilityID == "" {
		return 0, fmt.Errorf("%w: accountability is required", ErrInvalidArgument)
	}

	tx, err := m.kv.Begin()
	if err != nil {
		return 0, err
	}
	defer tx.Abort()

	headID, err := m.anchors.HeadVersion(tx, accountabilityID)
	if err != nil {
		return 0, m.anchorErr(err, accountabilityID)
	}

	removed := 0
	for headID != "" {
		v, err := getVersion(tx, headID)
		if errors.Is(err, ErrNotFound) {
			return 0, violation(InvariantConnectivity, headID, "chain of accountability %s links to a missing version", accountabilityID)
		}
		if err != nil {
			return 0, err
		}
		if headID, err = m.deleteHead(tx, v); err != nil {
			return 0, err
		}
		removed++
	}

	if err := m.verify(tx, accountabilityID); err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, err
	}

	actor, _ := m.identity.CurrentUser(ctx)
	m.log.Debug().
		Str("accountability", accountabilityID).
		Int("removed", removed).
		Str("actor", actor).
		Msg("chain purged")
	return removed, nil
}

// deleteHead unlinks and removes head, promoting its predecessor.
// It returns the new head ID ("" when the chain became empty).
func (m *Manager) deleteHead(tx *storage.KVTX, head *Version) (string, error) {
	accountabilityID := head.Accountability

	if head.CreatedBy != "" {
		if _, err := tx.Del(creatorKey(head.CreatedBy, head.ID)); err != nil {
			return "", err
		}
		head.CreatedBy = ""
	}
	if _, err := tx.Del(versionKey(head.ID)); err != nil {
		return "", err
	}

	next := ""
	if head.Previous != "" {
		prev, err := getVersion(tx, head.Previous)
		if errors.Is(err, ErrNotFound) {
			return "", violation(InvariantConnectivity, head.Previous, "predecessor of %s is missing", head.ID)
		}
		if err != nil {
			return "", err
		}
		prev.SupersededBy = ""
		prev.Accountability = accountabilityID
		if err := putVersion(tx, prev); err != nil {
			return "", err
		}
		next = prev.ID
	}

	if err := m.anchors.SetHeadVersion(tx, accountabilityID, next); err != nil {
		return "", err
	}
	return next, nil
}

// verify runs the chain checks and logs violations before they abort the transaction
func (m *Manager) verify(tx *storage.KVTX, accountabilityID string) error {
	err := verifyChain(tx, m.anchors, accountabilityID)
	var iv *InvariantViolation
	if errors.As(err, &iv) {
		m.log.Warn().
			Str("accountability", accountabilityID).
			Str("invariant", iv.Invariant).
			Str("version", iv.VersionID).
			Msg(iv.Detail)
	}
	return err
}

func (m *Manager) anchorErr(err error, accountabilityID string) error {
	if errors.Is(err, storage.ErrNotFound) {
		return fmt.Errorf("%w: accountability %s: %v", ErrNotFound, accountabilityID, err)
	}
	return err
}
