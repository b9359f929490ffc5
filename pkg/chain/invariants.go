// ABOUTME: Structural checks for accountability version chains
// ABOUTME: Run inside the mutating transaction before commit

package chain

import (
	"errors"

	"cloud.google.com/go/civil"

	"github.com/nainya/orgstore/pkg/storage"
)

// CheckConnected verifies that a version is either superseded and detached
// from the accountability, or the head holding the accountability reference.
func CheckConnected(v *Version) error {
	superseded := v.SupersededBy != ""
	owning := v.Accountability != ""
	if superseded == owning {
		if owning {
			return violation(InvariantConnectivity, v.ID, "version is superseded but still owns accountability %s", v.Accountability)
		}
		return violation(InvariantConnectivity, v.ID, "version is neither superseded nor owning an accountability")
	}
	return nil
}

// CheckErasedAtHead verifies that only the head can carry the erased flag
func CheckErasedAtHead(v *Version) error {
	if v.Erased && v.Accountability == "" {
		return violation(InvariantErasedAtHead, v.ID, "erased version is not the head of its chain")
	}
	return nil
}

// CheckDateInterval verifies a begin date is present and precedes the end date
func CheckDateInterval(begin civil.Date, end *civil.Date) error {
	if !begin.IsValid() {
		return violation(InvariantDateInterval, "", "begin date %s is not a valid date", begin)
	}
	if end == nil {
		return nil
	}
	if !end.IsValid() {
		return violation(InvariantDateInterval, "", "end date %s is not a valid date", *end)
	}
	if begin.After(*end) {
		return violation(InvariantDateInterval, "", "begin date %s is after end date %s", begin, *end)
	}
	return nil
}

// Validate runs every per-version check
func (v *Version) Validate() error {
	if err := CheckConnected(v); err != nil {
		return err
	}
	if err := CheckErasedAtHead(v); err != nil {
		return err
	}
	if err := CheckDateInterval(v.BeginDate, v.EndDate); err != nil {
		var iv *InvariantViolation
		if errors.As(err, &iv) {
			iv.VersionID = v.ID
		}
		return err
	}
	return nil
}

// verifyChain walks a whole chain from its head and checks every version
// plus the symmetry of the links between neighbours.
func verifyChain(tx *storage.KVTX, anchors Anchors, accountabilityID string) error {
	headID, err := anchors.HeadVersion(tx, accountabilityID)
	if err != nil {
		return err
	}

	seen := make(map[string]bool)
	var newer *Version
	for id := headID; id != ""; {
		if seen[id] {
			return violation(InvariantConnectivity, id, "cycle in chain of accountability %s", accountabilityID)
		}
		seen[id] = true

		v, err := getVersion(tx, id)
		if errors.Is(err, ErrNotFound) {
			return violation(InvariantConnectivity, id, "chain of accountability %s links to a missing version", accountabilityID)
		}
		if err != nil {
			return err
		}

		if err := v.Validate(); err != nil {
			return err
		}

		if newer == nil {
			if v.Accountability != accountabilityID {
				return violation(InvariantConnectivity, v.ID, "head is owned by %q instead of %s", v.Accountability, accountabilityID)
			}
		} else if v.SupersededBy != newer.ID {
			return violation(InvariantConnectivity, v.ID, "superseded by %q but linked from %s", v.SupersededBy, newer.ID)
		}

		newer = v
		id = v.Previous
	}
	return nil
}
