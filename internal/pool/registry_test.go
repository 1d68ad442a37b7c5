package pool_test

import (
	"context"
	"testing"

	"telecine/internal/job"
	"telecine/internal/media"
	"telecine/internal/pool"
)

func probeStub(context.Context, string) (*media.Probe, error) {
	return &media.Probe{Duration: 60}, nil
}

func TestRegistryRejectsSameScenePhase(t *testing.T) {
	reg := pool.NewRegistry()

	first := job.NewMetadata(7, "/library/a.mkv", probeStub)
	second := job.NewMetadata(7, "/library/a.mkv", probeStub)

	if existing := reg.Register(first); existing != "" {
		t.Fatalf("first registration returned existing id %q", existing)
	}
	if existing := reg.Register(second); existing != first.ID() {
		t.Fatalf("expected duplicate to report %q, got %q", first.ID(), existing)
	}
	if reg.Len() != 1 {
		t.Fatalf("expected 1 tracked job, got %d", reg.Len())
	}
}

func TestRegistryAllowsSameSceneDifferentPhase(t *testing.T) {
	reg := pool.NewRegistry()

	meta := job.NewMetadata(7, "/library/a.mkv", probeStub)
	thumb := job.NewThumbnail(7, "/library/a.mkv", media.ThumbnailOptions{}, func(context.Context, int64, string, media.ThumbnailOptions) (string, error) {
		return "", nil
	})

	if existing := reg.Register(meta); existing != "" {
		t.Fatalf("metadata registration returned %q", existing)
	}
	if existing := reg.Register(thumb); existing != "" {
		t.Fatalf("thumbnail registration returned %q", existing)
	}
	if reg.Len() != 2 {
		t.Fatalf("expected 2 tracked jobs, got %d", reg.Len())
	}
}

func TestRegistryUnregisterFreesKey(t *testing.T) {
	reg := pool.NewRegistry()

	first := job.NewMetadata(9, "/library/b.mkv", probeStub)
	reg.Register(first)
	reg.Unregister(first.ID())

	if _, ok := reg.Get(first.ID()); ok {
		t.Fatal("unregistered job still retrievable by id")
	}
	if _, ok := reg.GetByScene(9, job.PhaseMetadata); ok {
		t.Fatal("unregistered job still retrievable by scene")
	}

	second := job.NewMetadata(9, "/library/b.mkv", probeStub)
	if existing := reg.Register(second); existing != "" {
		t.Fatalf("resubmission after unregister rejected with %q", existing)
	}
}
