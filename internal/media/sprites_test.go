package media_test

import (
	"strings"
	"testing"

	"telecine/internal/media"
)

func TestBuildVTTLayout(t *testing.T) {
	vtt := media.BuildVTT("sprites.jpg", 4, 10, 2, 320, 180)

	if !strings.HasPrefix(vtt, "WEBVTT\n") {
		t.Fatalf("missing WEBVTT header: %q", vtt)
	}
	for _, want := range []string{
		"00:00:00.000 --> 00:00:10.000",
		"sprites.jpg#xywh=0,0,320,180",
		"00:00:10.000 --> 00:00:20.000",
		"sprites.jpg#xywh=320,0,320,180",
		// Third frame wraps to the second row.
		"sprites.jpg#xywh=0,180,320,180",
		"00:00:30.000 --> 00:00:40.000",
		"sprites.jpg#xywh=320,180,320,180",
	} {
		if !strings.Contains(vtt, want) {
			t.Fatalf("cue %q missing from:\n%s", want, vtt)
		}
	}
}

func TestBuildVTTFractionalInterval(t *testing.T) {
	vtt := media.BuildVTT("s.jpg", 1, 2.5, 1, 100, 100)
	if !strings.Contains(vtt, "00:00:00.000 --> 00:00:02.500") {
		t.Fatalf("fractional cue missing:\n%s", vtt)
	}
}

func TestBuildVTTHourRollover(t *testing.T) {
	vtt := media.BuildVTT("s.jpg", 2, 3600, 1, 100, 100)
	if !strings.Contains(vtt, "01:00:00.000 --> 02:00:00.000") {
		t.Fatalf("hour cue missing:\n%s", vtt)
	}
}

func TestBuildVTTNoFrames(t *testing.T) {
	if vtt := media.BuildVTT("s.jpg", 0, 10, 1, 100, 100); vtt != "WEBVTT\n" {
		t.Fatalf("expected bare header, got %q", vtt)
	}
}
