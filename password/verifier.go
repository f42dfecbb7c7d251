package password

import (
	"crypto/rand"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/base64"
	"errors"
)

// Scheme is one hashing algorithm the Verifier can dispatch to.
type Scheme interface {
	Hash(password string) (string, error)
	Verify(password, encodedHash string) (bool, error)
	NeedsUpgrade(encodedHash string) (bool, error)
	Owns(encodedHash string) bool
}

// Verifier hashes new secrets with a primary scheme and verifies stored
// hashes with whichever scheme produced them.
//
// Compare always performs a full hash computation, against a dummy hash when
// the caller has no stored hash, so that the time taken does not reveal
// whether an account exists.
type Verifier struct {
	primary Scheme
	schemes []Scheme
	dummy   string
}

// NewVerifier builds a Verifier. legacy schemes are only used for verification.
func NewVerifier(primary Scheme, legacy ...Scheme) (*Verifier, error) {
	if primary == nil {
		return nil, errors.New("primary password scheme required")
	}

	seed := make([]byte, 24)
	if _, err := rand.Read(seed); err != nil {
		return nil, err
	}
	dummy, err := primary.Hash(base64.RawURLEncoding.EncodeToString(seed))
	if err != nil {
		return nil, err
	}

	return &Verifier{
		primary: primary,
		schemes: append([]Scheme{primary}, legacy...),
		dummy:   dummy,
	}, nil
}

// Hash hashes secret with the primary scheme.
func (v *Verifier) Hash(secret string) (string, error) {
	return v.primary.Hash(secret)
}

// Compare reports whether secret matches encodedHash. An empty or
// unrecognised encodedHash never matches but still costs one hash.
func (v *Verifier) Compare(secret, encodedHash string) bool {
	scheme := v.schemeFor(encodedHash)
	target := encodedHash
	present := encodedHash != "" && scheme != nil
	if !present {
		scheme = v.primary
		target = v.dummy
	}

	ok, err := scheme.Verify(secret, target)
	return ok && err == nil && present
}

// NeedsRehash reports whether encodedHash should be replaced by a fresh
// primary-scheme hash after a successful Compare.
func (v *Verifier) NeedsRehash(encodedHash string) bool {
	scheme := v.schemeFor(encodedHash)
	if scheme == nil {
		return false
	}
	if scheme != v.primary {
		return true
	}
	upgrade, err := scheme.NeedsUpgrade(encodedHash)
	return err == nil && upgrade
}

func (v *Verifier) schemeFor(encodedHash string) Scheme {
	if encodedHash == "" {
		return nil
	}
	for _, s := range v.schemes {
		if s.Owns(encodedHash) {
			return s
		}
	}
	return nil
}

// Fingerprint derives an opaque value from a stored hash. Password reset
// tokens carry it so they stop validating once the hash changes, without the
// hash itself leaving the server.
func Fingerprint(encodedHash string) string {
	sum := sha256.Sum256([]byte(encodedHash))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

// FingerprintMatches compares a token fingerprint with the current hash in
// constant time.
func FingerprintMatches(fingerprint, encodedHash string) bool {
	return subtle.ConstantTimeCompare([]byte(fingerprint), []byte(Fingerprint(encodedHash))) == 1
}
