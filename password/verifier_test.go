package password

import (
	"strings"
	"testing"

	"golang.org/x/crypto/bcrypt"
)

func lightArgon(t *testing.T) *Argon2 {
	t.Helper()
	a, err := NewArgon2(Config{Memory: 8 * 1024, Time: 1, Parallelism: 1, SaltLength: 16, KeyLength: 32})
	if err != nil {
		t.Fatalf("NewArgon2 error: %v", err)
	}
	return a
}

func newTestVerifier(t *testing.T) (*Verifier, *Bcrypt) {
	t.Helper()
	legacy, err := NewBcrypt(bcrypt.MinCost)
	if err != nil {
		t.Fatalf("NewBcrypt error: %v", err)
	}
	v, err := NewVerifier(lightArgon(t), legacy)
	if err != nil {
		t.Fatalf("NewVerifier error: %v", err)
	}
	return v, legacy
}

func TestVerifierCompareArgon(t *testing.T) {
	v, _ := newTestVerifier(t)

	hash, err := v.Hash("pw123456")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}
	if !strings.HasPrefix(hash, "$argon2id$") {
		t.Fatalf("expected argon2id hash, got %s", hash)
	}
	if !v.Compare("pw123456", hash) {
		t.Fatal("expected matching secret to compare true")
	}
	if v.Compare("pw1234567", hash) {
		t.Fatal("expected wrong secret to compare false")
	}
	if v.NeedsRehash(hash) {
		t.Fatal("expected current argon2 hash not to need rehash")
	}
}

func TestVerifierCompareLegacyBcrypt(t *testing.T) {
	v, legacy := newTestVerifier(t)

	hash, err := legacy.Hash("pw123456")
	if err != nil {
		t.Fatalf("bcrypt Hash error: %v", err)
	}
	if !v.Compare("pw123456", hash) {
		t.Fatal("expected bcrypt hash to verify")
	}
	if v.Compare("nope-nope", hash) {
		t.Fatal("expected wrong secret against bcrypt to fail")
	}
	if !v.NeedsRehash(hash) {
		t.Fatal("expected legacy hash to need rehash")
	}
}

func TestVerifierCompareWithoutHashNeverMatches(t *testing.T) {
	v, _ := newTestVerifier(t)

	if v.Compare("anything", "") {
		t.Fatal("expected empty hash never to match")
	}
	if v.Compare("anything", ".") {
		t.Fatal("expected unrecognised hash never to match")
	}
	if v.Compare("", "") {
		t.Fatal("expected empty secret and hash never to match")
	}
	if v.NeedsRehash("") {
		t.Fatal("expected no rehash for empty hash")
	}
}

func TestBcryptNeedsUpgrade(t *testing.T) {
	low, _ := NewBcrypt(bcrypt.MinCost)
	high, err := NewBcrypt(bcrypt.MinCost + 1)
	if err != nil {
		t.Fatalf("NewBcrypt error: %v", err)
	}
	hash, err := low.Hash("pw123456")
	if err != nil {
		t.Fatalf("Hash error: %v", err)
	}
	up, err := high.NeedsUpgrade(hash)
	if err != nil || !up {
		t.Fatalf("expected upgrade for lower cost: up=%v err=%v", up, err)
	}
	if _, err := NewBcrypt(64); err == nil {
		t.Fatal("expected out-of-range cost to fail")
	}
	if _, err := low.Verify("x", "garbage"); err == nil {
		t.Fatal("expected malformed bcrypt hash to error")
	}
}

func TestFingerprint(t *testing.T) {
	a := Fingerprint("$argon2id$one")
	b := Fingerprint("$argon2id$two")
	if a == b {
		t.Fatal("expected distinct fingerprints")
	}
	if strings.Contains(a, "argon2id") {
		t.Fatal("fingerprint must not expose the hash")
	}
	if !FingerprintMatches(a, "$argon2id$one") {
		t.Fatal("expected fingerprint to match its hash")
	}
	if FingerprintMatches(a, "$argon2id$two") {
		t.Fatal("expected fingerprint not to match another hash")
	}
}

func TestNewVerifierRequiresPrimary(t *testing.T) {
	if _, err := NewVerifier(nil); err == nil {
		t.Fatal("expected nil primary to fail")
	}
}
