package testsupport

import (
	"testing"

	"gardenpipe/internal/config"
	"gardenpipe/internal/history"
)

// MustOpenHistory opens the run ledger for tests and registers cleanup.
func MustOpenHistory(t testing.TB, cfg *config.Config, opts ...history.Option) *history.Store {
	t.Helper()

	store, err := history.Open(cfg, opts...)
	if err != nil {
		t.Fatalf("history.Open: %v", err)
	}
	t.Cleanup(func() {
		_ = store.Close()
	})
	return store
}
