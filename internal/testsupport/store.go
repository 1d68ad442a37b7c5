package testsupport

import (
	"context"
	"testing"

	"telecine/internal/config"
	"telecine/internal/store"
)

// MustOpenStore opens a store.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *store.Store {
	t.Helper()

	s, err := store.Open(cfg)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() {
		s.Close()
	})
	return s
}

// NewScene adds a scene for tests using the provided store.
func NewScene(t testing.TB, s *store.Store, path string) *store.Scene {
	t.Helper()

	scene, err := s.AddScene(context.Background(), path, "")
	if err != nil {
		t.Fatalf("store.AddScene: %v", err)
	}
	return scene
}
