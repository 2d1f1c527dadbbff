package memory

import (
	"testing"

	goGate "github.com/MrEthical07/goGate"
	"github.com/MrEthical07/goGate/store/storetest"
)

func TestStoreConformance(t *testing.T) {
	storetest.Run(t, func(t *testing.T) goGate.AccountStore {
		return New()
	})
}

func TestPutReplacesIndexes(t *testing.T) {
	s := New()
	acc := storetest.NewAccount("alice")
	acc.ID = "a1"
	s.Put(acc)

	renamed := acc.Clone()
	renamed.Handle = "alicia"
	renamed.Email = "alicia@example.com"
	s.Put(renamed)

	if _, err := s.GetByHandle(t.Context(), "alice"); err != goGate.ErrAccountNotFound {
		t.Fatalf("old handle should be unindexed, got %v", err)
	}
	got, err := s.GetByEmail(t.Context(), "alicia@example.com")
	if err != nil {
		t.Fatalf("GetByEmail failed: %v", err)
	}
	if got.ID != "a1" {
		t.Fatalf("unexpected id %q", got.ID)
	}
}
