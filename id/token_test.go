package id_test

import (
	"testing"

	"github.com/ferrywork/ferry/id"
)

func TestNewLeaseToken(t *testing.T) {
	tok := id.NewLeaseToken()
	if tok.IsZero() {
		t.Fatal("expected non-zero lease token")
	}
	if tok.String() == "" {
		t.Fatal("expected non-empty string representation")
	}
}

func TestLeaseTokenUniqueness(t *testing.T) {
	a := id.NewLeaseToken()
	b := id.NewLeaseToken()
	if a == b {
		t.Errorf("two consecutive NewLeaseToken() calls returned the same token: %q", a)
	}
}

func TestLeaseTokenZeroValue(t *testing.T) {
	var tok id.LeaseToken
	if !tok.IsZero() {
		t.Error("zero-value LeaseToken should report IsZero")
	}
	if tok.String() != "" {
		t.Errorf("expected empty string, got %q", tok.String())
	}
}

func TestLeaseTokenNotSortablePrefixed(t *testing.T) {
	tok := id.NewLeaseToken()
	// Lease tokens carry no entity prefix, unlike id.ID values.
	if len(tok.String()) < 32 {
		t.Errorf("expected a high-entropy token, got length %d", len(tok.String()))
	}
	if _, err := id.ParseAny(tok.String()); err == nil {
		t.Errorf("lease token %q parsed as a prefixed entity ID", tok.String())
	}
}
