package testsupport

import (
	"testing"

	"tunes/internal/cachedb"
	"tunes/internal/config"
)

// MustOpenStore opens the cache database for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *cachedb.Store {
	t.Helper()

	store, err := cachedb.Open(cfg)
	if err != nil {
		t.Fatalf("cachedb.Open: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})
	return store
}
