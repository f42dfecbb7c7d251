package session

import (
	"context"
	"errors"
	"testing"

	"github.com/giall/hecate/account"
	"github.com/giall/hecate/store/memory"
)

func TestAccountListStoreBacksRegistry(t *testing.T) {
	accounts := memory.New()
	ctx := context.Background()
	acct := &account.Account{Username: "carol01", Email: "carol@example.com"}
	if err := accounts.Create(ctx, acct); err != nil {
		t.Fatalf("Create: %v", err)
	}

	reg := NewRegistry(NewAccountListStore(accounts), Config{NewID: sequentialIDs()})

	var ids []string
	for i := 0; i < 6; i++ {
		id, err := reg.Add(ctx, acct.ID)
		if err != nil {
			t.Fatalf("Add: %v", err)
		}
		ids = append(ids, id)
	}

	stored, err := accounts.FindByID(ctx, acct.ID)
	if err != nil {
		t.Fatalf("FindByID: %v", err)
	}
	if len(stored.Sessions) != 5 || stored.Sessions[0] != ids[1] {
		t.Fatalf("stored sessions = %v", stored.Sessions)
	}

	next, err := reg.Rotate(ctx, acct.ID, ids[5])
	if err != nil {
		t.Fatalf("Rotate: %v", err)
	}
	if _, err := reg.Rotate(ctx, acct.ID, ids[5]); !errors.Is(err, ErrNotMember) {
		t.Fatalf("replayed Rotate: %v", err)
	}
	if ok, _ := reg.IsMember(ctx, acct.ID, next); !ok {
		t.Fatal("rotated id should be live")
	}
}

func TestAccountListStoreUnknownAccount(t *testing.T) {
	reg := NewRegistry(NewAccountListStore(memory.New()), Config{})
	if _, err := reg.Add(context.Background(), "ghost"); !errors.Is(err, account.ErrNotFound) {
		t.Fatalf("expected account.ErrNotFound, got %v", err)
	}
}
