// ABOUTME: Accountability version data model
// ABOUTME: Versions form a newest-first chain anchored at the accountability

package chain

import (
	"time"

	"cloud.google.com/go/civil"
)

// Version is an immutable snapshot of an accountability during one
// validity interval. Only the head of a chain carries the accountability
// reference; every older version is reachable through Previous links and
// records which version superseded it.
type Version struct {
	ID            string      // Version identifier
	BeginDate     civil.Date  // Inclusive start of validity
	EndDate       *civil.Date // Inclusive end of validity, nil when open-ended
	Erased        bool        // Relationship logically deleted as of this version
	Justification string      // Optional reason for the change
	CreatedAt     time.Time   // When the version was recorded
	CreatedBy     string      // Acting user at creation, empty when unknown

	Accountability string // Owning accountability, set on the head only
	Previous       string // Next-older version
	SupersededBy   string // Next-newer version, set on every non-head version
}

// Attributes are the caller-supplied parts of a new version
type Attributes struct {
	BeginDate     civil.Date
	EndDate       *civil.Date
	Erased        bool
	Justification string
}

// IsHead reports whether the version is the live entry point of its chain
func (v *Version) IsHead() bool {
	return v.Accountability != "" && v.SupersededBy == ""
}

// Covers reports whether d falls inside the version's validity interval
func (v *Version) Covers(d civil.Date) bool {
	if d.Before(v.BeginDate) {
		return false
	}
	return v.EndDate == nil || !d.After(*v.EndDate)
}

// DuplicatePair is two versions of one chain with the same observable state
type DuplicatePair struct {
	Newer *Version
	Older *Version
}

// MatchingDates compares optional dates; two absent dates are equal
func MatchingDates(a, b *civil.Date) bool {
	if a == nil {
		return b == nil
	}
	return b != nil && *a == *b
}

// IsRedundant reports whether two versions record the same
// (begin date, erased, end date) state. The comparison is symmetric and
// ignores justification and creation data.
func IsRedundant(a, b *Version) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.BeginDate == b.BeginDate &&
		a.Erased == b.Erased &&
		MatchingDates(a.EndDate, b.EndDate)
}
