package session

import (
	"context"

	"github.com/giall/hecate/account"
)

// AccountListStore keeps session lists on the account record itself, using
// the account store's conditional update as the compare-and-set.
type AccountListStore struct {
	accounts account.Store
}

func NewAccountListStore(accounts account.Store) *AccountListStore {
	return &AccountListStore{accounts: accounts}
}

// LoadSessions returns the stored list. Unknown accounts surface
// account.ErrNotFound.
func (s *AccountListStore) LoadSessions(ctx context.Context, accountID string) ([]string, error) {
	acct, err := s.accounts.FindByID(ctx, accountID)
	if err != nil {
		return nil, err
	}
	return acct.Sessions, nil
}

// SwapSessions writes next if the stored list still equals old.
func (s *AccountListStore) SwapSessions(ctx context.Context, accountID string, old, next []string) (bool, error) {
	if old == nil {
		old = []string{}
	}
	return s.accounts.Update(ctx, accountID, account.Patch{
		Sessions:    next,
		SetSessions: true,
		Where: account.Condition{
			Sessions:      old,
			MatchSessions: true,
		},
	})
}
