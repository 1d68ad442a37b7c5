package services_test

import (
	"errors"
	"strings"
	"testing"

	"telecine/internal/services"
)

func TestWrapTagsMarker(t *testing.T) {
	err := services.Wrap(services.ErrExternalTool, "media", "probe", "ffprobe exited 1", errors.New("exit status 1"))
	if !errors.Is(err, services.ErrExternalTool) {
		t.Fatalf("marker lost: %v", err)
	}
	if !strings.Contains(err.Error(), "media: probe: ffprobe exited 1") {
		t.Fatalf("detail missing: %v", err)
	}
}

func TestHintClassifiesMarkers(t *testing.T) {
	cases := []struct {
		err  error
		want string
	}{
		{services.Wrap(services.ErrExternalTool, "media", "probe", "", nil), "ffmpeg"},
		{services.Wrap(services.ErrValidation, "submitter", "submit", "", nil), "parameters"},
		{services.Wrap(services.ErrConfiguration, "config", "load", "", nil), "config.toml"},
		{services.Wrap(services.ErrNotFound, "store", "get", "", nil), "library"},
		{services.Wrap(services.ErrTimeout, "pool", "run", "", nil), "timeout"},
		{errors.New("plain"), "check logs"},
		{nil, "check logs"},
	}
	for _, tc := range cases {
		if hint := services.Hint(tc.err); !strings.Contains(hint, tc.want) {
			t.Fatalf("hint %q for %v does not mention %q", hint, tc.err, tc.want)
		}
	}
}
