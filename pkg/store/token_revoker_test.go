package store

import (
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
)

func TestMemoryTokenRevokerUserCutoffMonotonic(t *testing.T) {
	r := NewMemoryTokenRevoker()
	first := time.Now().UTC().Add(-time.Minute)
	second := time.Now().UTC()

	if err := r.RevokeUser("user-1", first); err != nil {
		t.Fatalf("revoke user first: %v", err)
	}
	if err := r.RevokeUser("user-1", first.Add(-time.Minute)); err != nil {
		t.Fatalf("revoke user older cutoff: %v", err)
	}
	got, err := r.RevokedAfter("user-1")
	if err != nil {
		t.Fatalf("revoked after first: %v", err)
	}
	if !got.Equal(first) {
		t.Fatalf("expected first cutoff to be kept, got %v", got)
	}

	if err := r.RevokeUser("user-1", second); err != nil {
		t.Fatalf("revoke user second: %v", err)
	}
	got, err = r.RevokedAfter("user-1")
	if err != nil {
		t.Fatalf("revoked after second: %v", err)
	}
	if !got.Equal(second) {
		t.Fatalf("expected newest cutoff, got %v", got)
	}
}

func TestMemoryTokenRevokerExpires(t *testing.T) {
	r := NewMemoryTokenRevoker()
	if err := r.Revoke("jti-1", time.Millisecond); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if err := r.Revoke("jti-ignored", 0); err != nil {
		t.Fatalf("revoke zero ttl: %v", err)
	}
	if revoked, _ := r.IsRevoked("jti-ignored"); revoked {
		t.Fatalf("zero ttl must not revoke")
	}
	time.Sleep(5 * time.Millisecond)
	if revoked, _ := r.IsRevoked("jti-1"); revoked {
		t.Fatalf("revocation should lapse after ttl")
	}
}

func TestRedisTokenRevoker(t *testing.T) {
	mr := miniredis.RunT(t)
	r := NewRedisTokenRevoker(mr.Addr(), "", time.Hour)

	if err := r.Revoke("jti-1", time.Minute); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	revoked, err := r.IsRevoked("jti-1")
	if err != nil || !revoked {
		t.Fatalf("IsRevoked(jti-1) = %v, %v; want true", revoked, err)
	}
	if revoked, _ := r.IsRevoked("jti-2"); revoked {
		t.Fatalf("unexpected revocation of jti-2")
	}

	got, err := r.RevokedAfter("alice")
	if err != nil || !got.IsZero() {
		t.Fatalf("RevokedAfter before revoke = %v, %v", got, err)
	}
	newer := time.Now().UTC().Truncate(time.Microsecond)
	if err := r.RevokeUser("alice", newer); err != nil {
		t.Fatalf("revoke user: %v", err)
	}
	if err := r.RevokeUser("alice", newer.Add(-time.Hour)); err != nil {
		t.Fatalf("revoke user older: %v", err)
	}
	got, err = r.RevokedAfter("alice")
	if err != nil {
		t.Fatalf("revoked after: %v", err)
	}
	if !got.Equal(newer) {
		t.Fatalf("RevokedAfter = %v, want %v", got, newer)
	}

	mr.FastForward(2 * time.Hour)
	if got, _ := r.RevokedAfter("alice"); !got.IsZero() {
		t.Fatalf("cutoff should expire, got %v", got)
	}
}
