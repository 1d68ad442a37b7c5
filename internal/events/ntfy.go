package events

import (
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"context"

	"telecine/internal/config"
)

const userAgent = "Telecine/0.1.0"

// Ntfy publishes human-readable phase notifications to an ntfy topic.
type Ntfy struct {
	endpoint string
	client   *http.Client
}

// NewNtfy returns nil when no topic is configured.
func NewNtfy(cfg *config.Config) *Ntfy {
	topic := strings.TrimSpace(cfg.Events.NtfyTopic)
	if topic == "" {
		return nil
	}

	timeout := time.Duration(cfg.Events.RequestTimeout) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &Ntfy{
		endpoint: topic,
		client:   &http.Client{Timeout: timeout},
	}
}

func (n *Ntfy) Publish(ctx context.Context, event Event, payload Payload) error {
	if n == nil || n.client == nil {
		return nil
	}

	title, message, tags := render(event, payload)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	req.Header.Set("Title", title)
	if len(tags) > 0 {
		req.Header.Set("Tags", strings.Join(tags, ","))
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

func (n *Ntfy) Close() error { return nil }

func render(event Event, payload Payload) (title, message string, tags []string) {
	scene := payload["scene_id"]
	switch event {
	case EventMetadataComplete:
		return "Telecine - Metadata", fmt.Sprintf("Metadata extracted for scene %v", scene), []string{"telecine", "metadata"}
	case EventThumbnailComplete:
		return "Telecine - Thumbnail", fmt.Sprintf("Thumbnail ready for scene %v", scene), []string{"telecine", "thumbnail"}
	case EventSpritesComplete:
		return "Telecine - Sprites", fmt.Sprintf("Sprite sheet ready for scene %v", scene), []string{"telecine", "sprites"}
	case EventAnimatedComplete:
		return "Telecine - Preview", fmt.Sprintf("Animated preview ready for scene %v", scene), []string{"telecine", "preview"}
	case EventFingerprintComplete:
		return "Telecine - Fingerprint", fmt.Sprintf("Fingerprint extracted for scene %v", scene), []string{"telecine", "fingerprint"}
	case EventPipelineComplete:
		return "Telecine - Complete", fmt.Sprintf("All processing finished for scene %v", scene), []string{"telecine", "completed"}
	case EventPhaseFailed:
		return "Telecine - Failed", fmt.Sprintf("Phase %v failed for scene %v: %v", payload["phase"], scene, payload["error"]), []string{"telecine", "failed", "warning"}
	case EventPhaseCancelled:
		return "Telecine - Cancelled", fmt.Sprintf("Phase %v cancelled for scene %v", payload["phase"], scene), []string{"telecine", "cancelled"}
	case EventPhaseTimedOut:
		return "Telecine - Timed Out", fmt.Sprintf("Phase %v timed out for scene %v", payload["phase"], scene), []string{"telecine", "timeout", "warning"}
	default:
		return "Telecine", fmt.Sprintf("%s for scene %v", event, scene), []string{"telecine"}
	}
}
