package testsupport

import (
	"testing"

	"flume/internal/store"
)

// MustOpenStore opens a store.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, opts store.Options) *store.Store {
	t.Helper()

	s, err := store.Open(opts)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() {
		s.Close()
	})
	return s
}

// NewStore opens a store in a fresh temp directory under the
// conventional scope name.
func NewStore(t testing.TB) *store.Store {
	t.Helper()

	return MustOpenStore(t, store.Options{
		ConfigBase: t.TempDir(),
		ConfigName: "config",
	})
}
