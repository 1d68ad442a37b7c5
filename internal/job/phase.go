package job

import "strings"

// Phase names one processing step of the pipeline.
type Phase string

const (
	PhaseMetadata    Phase = "metadata"
	PhaseThumbnail   Phase = "thumbnail"
	PhaseSprites     Phase = "sprites"
	PhaseAnimated    Phase = "animated_thumbnails"
	PhaseFingerprint Phase = "fingerprint"
)

var allPhases = []Phase{
	PhaseMetadata,
	PhaseThumbnail,
	PhaseSprites,
	PhaseAnimated,
	PhaseFingerprint,
}

// AllPhases returns the ordered list of known phases. The order is the fixed
// broadcast order used for cross-pool lookups.
func AllPhases() []Phase {
	cp := make([]Phase, len(allPhases))
	copy(cp, allPhases)
	return cp
}

// ParsePhase converts a string into a known Phase.
func ParsePhase(value string) (Phase, bool) {
	normalized := Phase(strings.ToLower(strings.TrimSpace(value)))
	for _, p := range allPhases {
		if p == normalized {
			return p, true
		}
	}
	return "", false
}

// Valid reports whether the phase is one of the known set.
func (p Phase) Valid() bool {
	_, ok := ParsePhase(string(p))
	return ok
}
