package id

import (
	"crypto/rand"
	"encoding/base64"
	"fmt"
)

// leaseTokenBytes is the amount of entropy in a lease token. 256 bits keeps
// tokens globally unguessable (spec invariant: lease tokens are per-claim
// unique and not derivable from the job ID or claim time).
const leaseTokenBytes = 32

// LeaseToken is an opaque, unguessable credential handed to whichever
// worker successfully claims a job. Unlike ID it is not K-sortable and
// carries no entity prefix — sortability would leak claim ordering, which
// the token is specifically meant not to reveal.
type LeaseToken string

// NewLeaseToken generates a fresh, cryptographically random lease token.
func NewLeaseToken() LeaseToken {
	buf := make([]byte, leaseTokenBytes)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand.Read only fails if the OS entropy source is broken,
		// which is unrecoverable for a process that must mint unguessable
		// tokens.
		panic(fmt.Sprintf("id: read random lease token: %v", err))
	}

	return LeaseToken(base64.RawURLEncoding.EncodeToString(buf))
}

// String returns the token's wire representation.
func (t LeaseToken) String() string { return string(t) }

// IsZero reports whether the token is the empty value (no lease held).
func (t LeaseToken) IsZero() bool { return t == "" }
