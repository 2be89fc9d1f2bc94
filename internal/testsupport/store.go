package testsupport

import (
	"testing"

	"pictor/internal/config"
	"pictor/internal/registry"
)

// MustOpenStore opens a registry store for tests and closes it on cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *registry.Store {
	t.Helper()

	store, err := registry.Open(cfg)
	if err != nil {
		t.Fatalf("open registry store: %v", err)
	}
	t.Cleanup(func() {
		if err := store.Close(); err != nil {
			t.Errorf("close registry store: %v", err)
		}
	})
	return store
}
