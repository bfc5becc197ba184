// Package id generates the identifiers used for trades and client order IDs.
// They are ULIDs, so sorting them lexicographically also sorts them by
// creation time, which keeps ledger rows and venue order listings aligned.
package id

import (
	cryptorand "crypto/rand"
	"io"
	"sync"

	"github.com/oklog/ulid/v2"
)

var (
	mu      sync.Mutex
	entropy io.Reader = ulid.Monotonic(cryptorand.Reader, 0)
)

// New returns a fresh ULID string. IDs minted within the same millisecond
// stay strictly increasing thanks to the monotonic entropy reader.
func New() string {
	mu.Lock()
	defer mu.Unlock()
	return ulid.MustNew(ulid.Now(), entropy).String()
}
