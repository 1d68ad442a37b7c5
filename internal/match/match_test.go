package match_test

import (
	"context"
	"testing"

	"telecine/internal/match"
	"telecine/internal/media"
)

func TestDeduplicateKeepsHighestConfidence(t *testing.T) {
	results := []match.Result{
		{SceneID: 7, Confidence: 0.7, Type: match.TypeAudio},
		{SceneID: 7, Confidence: 0.9, Type: match.TypeVisual},
		{SceneID: 8, Confidence: 0.5, Type: match.TypeAudio},
	}

	deduped := match.Deduplicate(results)
	if len(deduped) != 2 {
		t.Fatalf("expected 2 results, got %d", len(deduped))
	}
	byScene := make(map[int64]match.Result, len(deduped))
	for _, r := range deduped {
		byScene[r.SceneID] = r
	}
	if r := byScene[7]; r.Confidence != 0.9 || r.Type != match.TypeVisual {
		t.Fatalf("scene 7 kept wrong entry: %+v", r)
	}
	if r := byScene[8]; r.Confidence != 0.5 {
		t.Fatalf("scene 8 kept wrong entry: %+v", r)
	}
}

func TestDeduplicateEmpty(t *testing.T) {
	if got := match.Deduplicate(nil); len(got) != 0 {
		t.Fatalf("expected empty result, got %v", got)
	}
}

func TestHashMatcherAudioExactMatch(t *testing.T) {
	m := match.NewHashMatcher(0.9, nil)
	ctx := context.Background()

	if err := m.IndexFingerprint(ctx, 1, match.TypeAudio, "chromaprint-a"); err != nil {
		t.Fatalf("IndexFingerprint failed: %v", err)
	}
	if err := m.IndexFingerprint(ctx, 2, match.TypeAudio, "chromaprint-b"); err != nil {
		t.Fatalf("IndexFingerprint failed: %v", err)
	}

	found, err := m.FindMatches(ctx, 3, match.TypeAudio, "chromaprint-a")
	if err != nil {
		t.Fatalf("FindMatches failed: %v", err)
	}
	if len(found) != 1 || found[0].SceneID != 1 || found[0].Confidence != 1.0 {
		t.Fatalf("unexpected audio matches: %+v", found)
	}
}

func TestHashMatcherExcludesSelf(t *testing.T) {
	m := match.NewHashMatcher(0.9, nil)
	ctx := context.Background()

	if err := m.IndexFingerprint(ctx, 1, match.TypeAudio, "chromaprint-a"); err != nil {
		t.Fatalf("IndexFingerprint failed: %v", err)
	}
	found, err := m.FindMatches(ctx, 1, match.TypeAudio, "chromaprint-a")
	if err != nil {
		t.Fatalf("FindMatches failed: %v", err)
	}
	if len(found) != 0 {
		t.Fatalf("scene matched itself: %+v", found)
	}
}

func TestHashMatcherVisualSimilarity(t *testing.T) {
	m := match.NewHashMatcher(0.9, nil)
	ctx := context.Background()

	base := []uint64{0xffff000011112222, 0x1234567812345678}
	// One flipped bit across two 64-bit hashes keeps similarity above 0.99.
	near := []uint64{base[0] ^ 1, base[1]}
	far := []uint64{0x0000ffffeeeedddd, 0x8765432187654321}

	if err := m.IndexFingerprint(ctx, 1, match.TypeVisual, media.FormatHashes(near)); err != nil {
		t.Fatalf("IndexFingerprint failed: %v", err)
	}
	if err := m.IndexFingerprint(ctx, 2, match.TypeVisual, media.FormatHashes(far)); err != nil {
		t.Fatalf("IndexFingerprint failed: %v", err)
	}

	found, err := m.FindMatches(ctx, 3, match.TypeVisual, media.FormatHashes(base))
	if err != nil {
		t.Fatalf("FindMatches failed: %v", err)
	}
	if len(found) != 1 || found[0].SceneID != 1 || found[0].Type != match.TypeVisual {
		t.Fatalf("unexpected visual matches: %+v", found)
	}
	if found[0].Confidence < 0.9 {
		t.Fatalf("confidence below threshold: %v", found[0].Confidence)
	}
}

func TestHashMatcherRejectsMalformedVisualFingerprint(t *testing.T) {
	m := match.NewHashMatcher(0.9, nil)
	if err := m.IndexFingerprint(context.Background(), 1, match.TypeVisual, "not-hex"); err == nil {
		t.Fatal("expected parse error for malformed fingerprint")
	}
}

func TestProcessMatchesRecordsGroup(t *testing.T) {
	m := match.NewHashMatcher(0.9, nil)
	matches := []match.Result{
		{SceneID: 7, Confidence: 0.9, Type: match.TypeVisual},
		{SceneID: 8, Confidence: 1.0, Type: match.TypeAudio},
	}

	if err := m.ProcessMatches(context.Background(), 42, matches); err != nil {
		t.Fatalf("ProcessMatches failed: %v", err)
	}
	group := m.DuplicatesFor(42)
	if len(group) != 2 {
		t.Fatalf("unexpected duplicate group: %+v", group)
	}
	if len(m.DuplicatesFor(7)) != 0 {
		t.Fatal("group recorded for the wrong scene")
	}
}
