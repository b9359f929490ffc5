// ABOUTME: Accountability anchor data model
// ABOUTME: An accountability owns the head reference of its version chain

package accountability

import "time"

// Accountability is an organizational relationship between two parties
// (for example a person holding a role in a unit) whose history is kept
// as a chain of versions.
type Accountability struct {
	ID        string    // Accountability identifier
	Type      string    // Accountability type (membership, management, ...)
	Parent    string    // Parent party identifier
	Child     string    // Child party identifier
	CreatedAt time.Time // Registration time
	Head      string    // Head version identifier, empty before the first version
}
