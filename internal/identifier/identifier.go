// Package identifier issues the unique IDs that key each request and its artifact.
//
// WHY RANDOM AND NOT SEQUENTIAL?
// The ID becomes a filename inside a shared directory. A counter or timestamp
// would need coordination across concurrent requests (and would be guessable).
// A version 4 UUID draws 122 bits from crypto/rand, so concurrent callers
// never need a lock and collisions are practically impossible.
package identifier

import (
	"fmt"
	"sync/atomic"

	"github.com/google/uuid"
)

// Provider issues request identifiers. Implementations must be safe for
// concurrent use.
type Provider interface {
	Next() string
}

// UUIDProvider is the production Provider.
type UUIDProvider struct{}

var _ Provider = UUIDProvider{}

// Next returns a new random UUID in canonical form.
func (UUIDProvider) Next() string {
	return uuid.NewString()
}

// Sequence is a deterministic Provider for tests: "<prefix>-1", "<prefix>-2", ...
type Sequence struct {
	Prefix string
	n      atomic.Uint64
}

var _ Provider = (*Sequence)(nil)

// Next returns the prefix joined to the next counter value, starting at 1.
// Safe for concurrent use.
func (s *Sequence) Next() string {
	return fmt.Sprintf("%s-%d", s.Prefix, s.n.Add(1))
}
