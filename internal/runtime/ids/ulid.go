package ids

import (
	"crypto/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(rand.Reader, 0)
)

// CreateULID returns a time-sortable ULID encoded as a 26-character string.
// Message IDs on the messaging plane use it.
func CreateULID() string {
	return newULID(time.Now()).String()
}

func newULID(at time.Time) ulid.ULID {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	return ulid.MustNew(ulid.Timestamp(at), entropy)
}

// Session identifies one bridge process on the messaging plane. Messages
// carry it as their origin so a process can recognise its own traffic.
type Session string

// NewSession returns a fresh session stamped with the current time.
func NewSession() Session {
	return Session(CreateULID())
}

func (s Session) String() string {
	return string(s)
}

// StartedAt returns the timestamp embedded in the session ID.
func (s Session) StartedAt() (time.Time, error) {
	id, err := ulid.Parse(string(s))
	if err != nil {
		return time.Time{}, err
	}
	return ulid.Time(id.Time()), nil
}
