package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"

	"github.com/hatomail/hato/consts"
)

func newTestSQLiteStore(t *testing.T) *SQLiteStore {
	t.Helper()
	s, err := OpenSQLiteStore(context.Background(), filepath.Join(t.TempDir(), "accounts.db"))
	if err != nil {
		t.Fatalf("OpenSQLiteStore failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLiteStoreCRUD(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	if err := s.Create(ctx, Account{
		Email:        "a@outlook.com",
		Password:     "passA",
		ClientID:     "client-a",
		RefreshToken: "refresh-a",
	}); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	got, err := s.Get(ctx, "a@outlook.com")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if got.Password != "passA" || got.ClientID != "client-a" || got.RefreshToken != "refresh-a" {
		t.Errorf("Unexpected account: %+v", got)
	}

	err = s.Create(ctx, Account{Email: "a@outlook.com", RefreshToken: "x"})
	if !errors.Is(err, consts.ErrAccountExists) {
		t.Errorf("Expected ErrAccountExists, got %v", err)
	}

	if err := s.Update(ctx, "a@outlook.com", Account{
		Email:        "a@outlook.com",
		RefreshToken: "refresh-a2",
	}); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	got, err = s.Get(ctx, "a@outlook.com")
	if err != nil {
		t.Fatalf("Get after update failed: %v", err)
	}
	if got.RefreshToken != "refresh-a2" || got.Password != "" {
		t.Errorf("Expected full record replacement, got %+v", got)
	}

	if err := s.Delete(ctx, "a@outlook.com"); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := s.Get(ctx, "a@outlook.com"); !errors.Is(err, consts.ErrAccountNotFound) {
		t.Errorf("Expected ErrAccountNotFound after delete, got %v", err)
	}
	if err := s.Delete(ctx, "a@outlook.com"); !errors.Is(err, consts.ErrAccountNotFound) {
		t.Errorf("Expected ErrAccountNotFound for missing delete, got %v", err)
	}
}

func TestSQLiteStoreRename(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	if err := s.Create(ctx, Account{Email: "a@outlook.com", RefreshToken: "refresh-a"}); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if err := s.Create(ctx, Account{Email: "b@outlook.com", RefreshToken: "refresh-b"}); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	if err := s.Update(ctx, "a@outlook.com", Account{
		Email:        "renamed@outlook.com",
		RefreshToken: "refresh-a",
	}); err != nil {
		t.Fatalf("Rename failed: %v", err)
	}
	if _, err := s.Get(ctx, "a@outlook.com"); !errors.Is(err, consts.ErrAccountNotFound) {
		t.Errorf("Expected old address gone, got %v", err)
	}
	if _, err := s.Get(ctx, "renamed@outlook.com"); err != nil {
		t.Errorf("Expected renamed account, got %v", err)
	}

	err := s.Update(ctx, "renamed@outlook.com", Account{Email: "b@outlook.com", RefreshToken: "x"})
	if !errors.Is(err, consts.ErrAccountExists) {
		t.Errorf("Expected ErrAccountExists for rename collision, got %v", err)
	}

	err = s.Update(ctx, "ghost@outlook.com", Account{Email: "ghost@outlook.com", RefreshToken: "x"})
	if !errors.Is(err, consts.ErrAccountNotFound) {
		t.Errorf("Expected ErrAccountNotFound for missing update, got %v", err)
	}
}

func TestSQLiteStoreListOrdersByEmail(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	for _, email := range []string{"c@outlook.com", "a@outlook.com", "b@outlook.com"} {
		if err := s.Create(ctx, Account{Email: email, RefreshToken: "r"}); err != nil {
			t.Fatalf("Create %s failed: %v", email, err)
		}
	}

	accounts, err := s.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(accounts) != 3 {
		t.Fatalf("Expected 3 accounts, got %d", len(accounts))
	}
	for i, expected := range []string{"a@outlook.com", "b@outlook.com", "c@outlook.com"} {
		if accounts[i].Email != expected {
			t.Errorf("Position %d: expected %s, got %s", i, expected, accounts[i].Email)
		}
	}
}

func TestSQLiteStoreReplaceAll(t *testing.T) {
	s := newTestSQLiteStore(t)
	ctx := context.Background()

	if err := s.Create(ctx, Account{Email: "old@outlook.com", RefreshToken: "r"}); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	if err := s.ReplaceAll(ctx, []Account{
		{Email: "x@outlook.com", RefreshToken: "refresh-x"},
		{Email: "y@outlook.com", RefreshToken: "refresh-y"},
	}); err != nil {
		t.Fatalf("ReplaceAll failed: %v", err)
	}

	accounts, err := s.List(ctx)
	if err != nil {
		t.Fatalf("List failed: %v", err)
	}
	if len(accounts) != 2 {
		t.Fatalf("Expected 2 accounts, got %d", len(accounts))
	}
	if _, err := s.Get(ctx, "old@outlook.com"); !errors.Is(err, consts.ErrAccountNotFound) {
		t.Errorf("Expected old account dropped, got %v", err)
	}
}

func TestSQLiteStorePersistsAcrossReopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "accounts.db")
	ctx := context.Background()

	s, err := OpenSQLiteStore(ctx, path)
	if err != nil {
		t.Fatalf("OpenSQLiteStore failed: %v", err)
	}
	if err := s.Create(ctx, Account{Email: "a@outlook.com", RefreshToken: "refresh-a"}); err != nil {
		t.Fatalf("Create failed: %v", err)
	}
	if err := s.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}

	reopened, err := OpenSQLiteStore(ctx, path)
	if err != nil {
		t.Fatalf("Reopen failed: %v", err)
	}
	defer reopened.Close()

	got, err := reopened.Get(ctx, "a@outlook.com")
	if err != nil {
		t.Fatalf("Get after reopen failed: %v", err)
	}
	if got.RefreshToken != "refresh-a" {
		t.Errorf("Unexpected account after reopen: %+v", got)
	}
}
