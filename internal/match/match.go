package match

import (
	"context"
	"log/slog"
	"sync"

	"telecine/internal/logging"
	"telecine/internal/media"
	"telecine/internal/metrics"
)

// Type identifies which fingerprint produced a match.
type Type string

const (
	TypeAudio  Type = "audio"
	TypeVisual Type = "visual"
)

// Result is one candidate duplicate for a scene.
type Result struct {
	SceneID    int64
	Confidence float64
	Type       Type
}

// Deduplicate collapses results to one entry per scene id, keeping the
// highest confidence. Output order is unspecified.
func Deduplicate(results []Result) []Result {
	best := make(map[int64]Result, len(results))
	for _, r := range results {
		if cur, ok := best[r.SceneID]; !ok || r.Confidence > cur.Confidence {
			best[r.SceneID] = r
		}
	}
	out := make([]Result, 0, len(best))
	for _, r := range best {
		out = append(out, r)
	}
	return out
}

// Service indexes fingerprints and answers duplicate queries.
type Service interface {
	IndexFingerprint(ctx context.Context, sceneID int64, t Type, fingerprint string) error
	FindMatches(ctx context.Context, sceneID int64, t Type, fingerprint string) ([]Result, error)
	ProcessMatches(ctx context.Context, sceneID int64, matches []Result) error
}

// HashMatcher is an in-memory Service. Visual fingerprints are compared by
// frame-hash similarity; audio fingerprints match only on equality, which
// catches byte-identical encodes.
type HashMatcher struct {
	threshold float64
	logger    *slog.Logger

	mu     sync.RWMutex
	visual map[int64][]uint64
	audio  map[int64]string
	groups map[int64][]Result
}

func NewHashMatcher(threshold float64, logger *slog.Logger) *HashMatcher {
	return &HashMatcher{
		threshold: threshold,
		logger:    logging.NewComponentLogger(logger, "matcher"),
		visual:    make(map[int64][]uint64),
		audio:     make(map[int64]string),
		groups:    make(map[int64][]Result),
	}
}

func (m *HashMatcher) IndexFingerprint(_ context.Context, sceneID int64, t Type, fingerprint string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	switch t {
	case TypeVisual:
		hashes, err := media.ParseHashes(fingerprint)
		if err != nil {
			return err
		}
		m.visual[sceneID] = hashes
	case TypeAudio:
		m.audio[sceneID] = fingerprint
	}
	return nil
}

func (m *HashMatcher) FindMatches(_ context.Context, sceneID int64, t Type, fingerprint string) ([]Result, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []Result
	switch t {
	case TypeVisual:
		hashes, err := media.ParseHashes(fingerprint)
		if err != nil {
			return nil, err
		}
		for id, candidate := range m.visual {
			if id == sceneID {
				continue
			}
			if sim := media.HashSimilarity(hashes, candidate); sim >= m.threshold {
				out = append(out, Result{SceneID: id, Confidence: sim, Type: TypeVisual})
			}
		}
	case TypeAudio:
		for id, candidate := range m.audio {
			if id == sceneID {
				continue
			}
			if candidate == fingerprint {
				out = append(out, Result{SceneID: id, Confidence: 1.0, Type: TypeAudio})
			}
		}
	}
	return out, nil
}

// ProcessMatches records the deduplicated matches as the scene's duplicate
// group. Matches are expected to be deduplicated already.
func (m *HashMatcher) ProcessMatches(_ context.Context, sceneID int64, matches []Result) error {
	if len(matches) == 0 {
		return nil
	}
	m.mu.Lock()
	m.groups[sceneID] = matches
	m.mu.Unlock()

	metrics.FingerprintMatches.Add(float64(len(matches)))
	m.logger.Info("duplicate candidates recorded",
		logging.Int64(logging.FieldSceneID, sceneID),
		logging.Int("candidates", len(matches)),
	)
	return nil
}

// DuplicatesFor returns the recorded duplicate group for a scene.
func (m *HashMatcher) DuplicatesFor(sceneID int64) []Result {
	m.mu.RLock()
	defer m.mu.RUnlock()
	group := m.groups[sceneID]
	out := make([]Result, len(group))
	copy(out, group)
	return out
}
