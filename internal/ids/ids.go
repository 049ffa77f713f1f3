package ids

import (
	mathrand "math/rand"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
)

var (
	entropyMu sync.Mutex
	entropy   = ulid.Monotonic(mathrand.New(mathrand.NewSource(time.Now().UnixNano())), 0)
)

// New returns a lexicographically sortable identifier with a type prefix
// (e.g. "usr_01J..."). Sorting by id therefore sorts by creation time,
// which the listing queries rely on.
func New(prefix string) string {
	entropyMu.Lock()
	defer entropyMu.Unlock()
	id := ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
	if prefix == "" {
		return id
	}
	return prefix + "_" + id
}

// Prefixes used across the schema.
const (
	PrefixUser    = "usr"
	PrefixRequest = "req"
	PrefixCompany = "com"
	PrefixBranch  = "brn"
	PrefixRole    = "rol"
	PrefixPriv    = "prv"
)
