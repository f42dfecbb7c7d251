// Package memory is an in-process account.Store for tests and single-node
// development. Data does not survive a restart.
package memory

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/giall/hecate/account"
)

// Store keeps accounts in maps guarded by one mutex. Every Update runs its
// precondition check and write under the same lock, which makes it the
// atomic conditional update the engine requires.
type Store struct {
	mu         sync.RWMutex
	byID       map[string]*account.Account
	byEmail    map[string]string
	byUsername map[string]string
	now        func() time.Time
}

// New returns an empty store.
func New() *Store {
	return &Store{
		byID:       map[string]*account.Account{},
		byEmail:    map[string]string{},
		byUsername: map[string]string{},
		now:        time.Now,
	}
}

func usernameKey(username string) string {
	return strings.ToLower(username)
}

func (s *Store) FindByField(_ context.Context, field account.Field, value string) (*account.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var id string
	var ok bool
	switch field {
	case account.FieldEmail:
		id, ok = s.byEmail[account.NormalizeEmail(value)]
	case account.FieldUsername:
		id, ok = s.byUsername[usernameKey(value)]
	default:
		return nil, nil
	}
	if !ok {
		return nil, nil
	}
	return s.byID[id].Clone(), nil
}

func (s *Store) FindByID(_ context.Context, id string) (*account.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.byID[id]
	if !ok {
		return nil, account.ErrNotFound
	}
	return a.Clone(), nil
}

func (s *Store) Create(_ context.Context, acct *account.Account) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if acct.ID == "" {
		acct.ID = account.NewID()
	}
	email := account.NormalizeEmail(acct.Email)
	uname := usernameKey(acct.Username)

	if _, ok := s.byID[acct.ID]; ok {
		return account.ErrDuplicate
	}
	if _, ok := s.byEmail[email]; ok {
		return account.ErrDuplicate
	}
	if _, ok := s.byUsername[uname]; ok {
		return account.ErrDuplicate
	}

	stored := acct.Clone()
	stored.Email = email
	if stored.Sessions == nil {
		stored.Sessions = []string{}
	}
	now := s.now()
	if stored.CreatedAt.IsZero() {
		stored.CreatedAt = now
	}
	if stored.UpdatedAt.IsZero() {
		stored.UpdatedAt = now
	}

	s.byID[stored.ID] = stored
	s.byEmail[email] = stored.ID
	s.byUsername[uname] = stored.ID
	return nil
}

func (s *Store) Update(_ context.Context, id string, patch account.Patch) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.byID[id]
	if !ok {
		return false, account.ErrNotFound
	}
	if !patch.Where.Matches(a) {
		return false, nil
	}

	oldEmail := a.Email
	if patch.Email != nil {
		next := account.NormalizeEmail(*patch.Email)
		if owner, taken := s.byEmail[next]; taken && owner != id {
			return false, account.ErrDuplicate
		}
		patch.Email = &next
	}

	patch.Apply(a, s.now())

	if a.Email != oldEmail {
		delete(s.byEmail, oldEmail)
		s.byEmail[a.Email] = id
	}
	return true, nil
}

func (s *Store) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.byID[id]
	if !ok {
		return account.ErrNotFound
	}
	delete(s.byID, id)
	delete(s.byEmail, a.Email)
	delete(s.byUsername, usernameKey(a.Username))
	return nil
}

// Len returns the number of stored accounts.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.byID)
}
