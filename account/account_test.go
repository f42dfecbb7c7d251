package account

import (
	"testing"
	"time"
)

func TestConditionMatches(t *testing.T) {
	a := &Account{
		ID:                "a1",
		Email:             "a@x.com",
		CredentialHash:    "h1",
		Sessions:          []string{"s1", "s2"},
		MagicLoginAllowed: true,
	}

	cases := []struct {
		name string
		cond Condition
		want bool
	}{
		{"empty", Condition{}, true},
		{"hash match", Condition{CredentialHash: Ref("h1")}, true},
		{"hash mismatch", Condition{CredentialHash: Ref("h2")}, false},
		{"verified mismatch", Condition{Verified: Ref(true)}, false},
		{"magic match", Condition{MagicLoginAllowed: Ref(true)}, true},
		{"sessions match", Condition{Sessions: []string{"s1", "s2"}, MatchSessions: true}, true},
		{"sessions order", Condition{Sessions: []string{"s2", "s1"}, MatchSessions: true}, false},
		{"sessions ignored", Condition{Sessions: []string{"x"}}, true},
	}
	for _, tc := range cases {
		if got := tc.cond.Matches(a); got != tc.want {
			t.Fatalf("%s: expected %v, got %v", tc.name, tc.want, got)
		}
	}

	if (Condition{}).Matches(nil) {
		t.Fatal("expected nil account never to match")
	}
}

func TestConditionEmptySessionsMatchesNil(t *testing.T) {
	a := &Account{}
	if !(Condition{Sessions: []string{}, MatchSessions: true}).Matches(a) {
		t.Fatal("expected empty list to match nil list")
	}
}

func TestPatchApplyCopiesSessions(t *testing.T) {
	a := &Account{Sessions: []string{"s1"}}
	next := []string{"s1", "s2"}
	now := time.Unix(100, 0)

	Patch{Sessions: next, SetSessions: true, Verified: Ref(true)}.Apply(a, now)
	next[0] = "mutated"

	if a.Sessions[0] != "s1" || len(a.Sessions) != 2 {
		t.Fatalf("expected copied sessions, got %v", a.Sessions)
	}
	if !a.Verified {
		t.Fatal("expected verified to be set")
	}
	if !a.UpdatedAt.Equal(now) {
		t.Fatalf("expected UpdatedAt %v, got %v", now, a.UpdatedAt)
	}

	Patch{SetSessions: true}.Apply(a, now)
	if a.Sessions == nil || len(a.Sessions) != 0 {
		t.Fatalf("expected empty non-nil sessions, got %#v", a.Sessions)
	}
}

func TestCloneIsDeep(t *testing.T) {
	a := &Account{ID: "a1", Sessions: []string{"s1"}}
	c := a.Clone()
	c.Sessions[0] = "changed"
	if a.Sessions[0] != "s1" {
		t.Fatal("clone shares sessions backing array")
	}
	if (*Account)(nil).Clone() != nil {
		t.Fatal("expected nil clone of nil")
	}
}

func TestValidateIdentity(t *testing.T) {
	if err := ValidateIdentity(Identity{Username: "alice1", Email: "a@x.com"}); err != nil {
		t.Fatalf("expected valid identity: %v", err)
	}
	bad := []Identity{
		{Username: "abc", Email: "a@x.com"},
		{Username: "alice_1", Email: "a@x.com"},
		{Username: "alice1", Email: "not-an-email"},
		{Username: "", Email: ""},
	}
	for _, id := range bad {
		if err := ValidateIdentity(id); err == nil {
			t.Fatalf("expected %+v to be rejected", id)
		}
	}
}

func TestNormalizeEmail(t *testing.T) {
	if got := NormalizeEmail("  A@X.Com "); got != "a@x.com" {
		t.Fatalf("unexpected normalized email %q", got)
	}
}

func TestNewIDUnique(t *testing.T) {
	seen := map[string]bool{}
	for i := 0; i < 100; i++ {
		id := NewID()
		if seen[id] {
			t.Fatalf("duplicate id %s", id)
		}
		seen[id] = true
	}
}
