package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"telecine/internal/job"
	"telecine/internal/media"
)

// Scene processing statuses.
const (
	SceneStatusPending    = "pending"
	SceneStatusProcessing = "processing"
	SceneStatusCompleted  = "completed"
	SceneStatusFailed     = "failed"
	SceneStatusCancelled  = "cancelled"
)

// Scene is one library entry and its extracted metadata and artifacts.
type Scene struct {
	ID                int64
	Path              string
	Title             string
	Duration          float64
	Width             int
	Height            int
	VideoCodec        string
	AudioCodec        string
	BitRate           int64
	Size              int64
	Container         string
	ProcessingStatus  string
	ProcessingMessage string
	ThumbnailPath     string
	SpritesPath       string
	SpritesVTTPath    string
	PreviewPath       string
	AudioFingerprint  string
	VisualFingerprint string
	CreatedAt         time.Time
	UpdatedAt         time.Time
}

// HasMetadata reports whether the metadata phase has populated the record.
func (s *Scene) HasMetadata() bool {
	return s != nil && s.Duration > 0
}

const sceneColumns = `id, path, title, duration, width, height, video_codec, audio_codec,
    bit_rate, size, container, processing_status, processing_message,
    thumbnail_path, sprites_path, sprites_vtt_path, preview_path,
    audio_fingerprint, visual_fingerprint, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanScene(row rowScanner) (*Scene, error) {
	var (
		scene      Scene
		message    sql.NullString
		thumbnail  sql.NullString
		sprites    sql.NullString
		spritesVTT sql.NullString
		preview    sql.NullString
		audioFP    sql.NullString
		visualFP   sql.NullString
		createdAt  string
		updatedAt  string
	)
	err := row.Scan(
		&scene.ID, &scene.Path, &scene.Title, &scene.Duration, &scene.Width, &scene.Height,
		&scene.VideoCodec, &scene.AudioCodec, &scene.BitRate, &scene.Size, &scene.Container,
		&scene.ProcessingStatus, &message,
		&thumbnail, &sprites, &spritesVTT, &preview,
		&audioFP, &visualFP, &createdAt, &updatedAt,
	)
	if err != nil {
		return nil, err
	}
	scene.ProcessingMessage = message.String
	scene.ThumbnailPath = thumbnail.String
	scene.SpritesPath = sprites.String
	scene.SpritesVTTPath = spritesVTT.String
	scene.PreviewPath = preview.String
	scene.AudioFingerprint = audioFP.String
	scene.VisualFingerprint = visualFP.String
	scene.CreatedAt = parseTimestamp(createdAt)
	scene.UpdatedAt = parseTimestamp(updatedAt)
	return &scene, nil
}

// AddScene registers a media file, returning the existing record when the
// path is already known.
func (s *Store) AddScene(ctx context.Context, path, title string) (*Scene, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("scene path is empty")
	}
	if title == "" {
		title = inferTitleFromPath(path)
	}
	now := timestamp()
	if err := s.execWithoutResultRetry(
		ctx,
		`INSERT INTO scenes (path, title, created_at, updated_at)
         VALUES (?, ?, ?, ?)
         ON CONFLICT (path) DO NOTHING`,
		path, title, now, now,
	); err != nil {
		return nil, fmt.Errorf("insert scene: %w", err)
	}
	return s.GetByPath(ctx, path)
}

// GetByID fetches a scene by identifier. A missing scene returns nil, nil.
func (s *Store) GetByID(ctx context.Context, id int64) (*Scene, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sceneColumns+` FROM scenes WHERE id = ?`, id)
	scene, err := scanScene(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get scene: %w", err)
	}
	return scene, nil
}

// GetByPath fetches a scene by library path.
func (s *Store) GetByPath(ctx context.Context, path string) (*Scene, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+sceneColumns+` FROM scenes WHERE path = ?`, path)
	scene, err := scanScene(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get scene by path: %w", err)
	}
	return scene, nil
}

// GetByIDs fetches multiple scenes, skipping ids with no record.
func (s *Store) GetByIDs(ctx context.Context, ids []int64) ([]*Scene, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	placeholders := strings.Repeat("?,", len(ids))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sceneColumns+` FROM scenes WHERE id IN (`+placeholders+`) ORDER BY id`, args...)
	if err != nil {
		return nil, fmt.Errorf("get scenes: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return collectScenes(rows)
}

// GetAll returns every scene ordered by id.
func (s *Store) GetAll(ctx context.Context) ([]*Scene, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+sceneColumns+` FROM scenes ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list scenes: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return collectScenes(rows)
}

func collectScenes(rows *sql.Rows) ([]*Scene, error) {
	var scenes []*Scene
	for rows.Next() {
		scene, err := scanScene(rows)
		if err != nil {
			return nil, fmt.Errorf("scan scene: %w", err)
		}
		scenes = append(scenes, scene)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate scenes: %w", err)
	}
	return scenes, nil
}

// UpdateProcessingStatus records the current pipeline status and an optional
// operator-facing message.
func (s *Store) UpdateProcessingStatus(ctx context.Context, id int64, status, message string) error {
	return s.execWithoutResultRetry(ctx,
		`UPDATE scenes SET processing_status = ?, processing_message = ?, updated_at = ? WHERE id = ?`,
		status, nullableString(message), timestamp(), id)
}

// UpdateBasicMetadata stores the probe results from the metadata phase.
func (s *Store) UpdateBasicMetadata(ctx context.Context, id int64, probe *media.Probe) error {
	if probe == nil {
		return errors.New("probe is nil")
	}
	return s.execWithoutResultRetry(ctx,
		`UPDATE scenes SET duration = ?, width = ?, height = ?, video_codec = ?,
            audio_codec = ?, bit_rate = ?, size = ?, container = ?, updated_at = ?
         WHERE id = ?`,
		probe.Duration, probe.Width, probe.Height, probe.VideoCodec,
		probe.AudioCodec, probe.BitRate, probe.Size, probe.Container,
		timestamp(), id)
}

// UpdateThumbnail records the cover image path.
func (s *Store) UpdateThumbnail(ctx context.Context, id int64, path string) error {
	return s.execWithoutResultRetry(ctx,
		`UPDATE scenes SET thumbnail_path = ?, updated_at = ? WHERE id = ?`,
		nullableString(path), timestamp(), id)
}

// UpdateSprites records the sprite sheet and its WebVTT index.
func (s *Store) UpdateSprites(ctx context.Context, id int64, sheetPath, vttPath string) error {
	return s.execWithoutResultRetry(ctx,
		`UPDATE scenes SET sprites_path = ?, sprites_vtt_path = ?, updated_at = ? WHERE id = ?`,
		nullableString(sheetPath), nullableString(vttPath), timestamp(), id)
}

// UpdatePreview records the animated preview path.
func (s *Store) UpdatePreview(ctx context.Context, id int64, path string) error {
	return s.execWithoutResultRetry(ctx,
		`UPDATE scenes SET preview_path = ?, updated_at = ? WHERE id = ?`,
		nullableString(path), timestamp(), id)
}

// UpdateFingerprint stores whichever fingerprints were extracted. Empty
// values leave the existing columns untouched.
func (s *Store) UpdateFingerprint(ctx context.Context, id int64, audioFP, visualFP string) error {
	return s.execWithoutResultRetry(ctx,
		`UPDATE scenes SET
            audio_fingerprint = COALESCE(?, audio_fingerprint),
            visual_fingerprint = COALESCE(?, visual_fingerprint),
            updated_at = ?
         WHERE id = ?`,
		nullableString(audioFP), nullableString(visualFP), timestamp(), id)
}

// GetScenesNeedingPhase returns scenes whose record shows no output for the
// phase yet. Phases other than metadata require metadata first.
func (s *Store) GetScenesNeedingPhase(ctx context.Context, phase job.Phase) ([]*Scene, error) {
	var where string
	switch phase {
	case job.PhaseMetadata:
		where = `duration <= 0`
	case job.PhaseThumbnail:
		where = `duration > 0 AND thumbnail_path IS NULL`
	case job.PhaseSprites:
		where = `duration > 0 AND sprites_path IS NULL`
	case job.PhaseAnimated:
		where = `duration > 0 AND preview_path IS NULL`
	case job.PhaseFingerprint:
		where = `duration > 0 AND audio_fingerprint IS NULL AND visual_fingerprint IS NULL`
	default:
		return nil, fmt.Errorf("unknown phase %q", phase)
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+sceneColumns+` FROM scenes WHERE `+where+` ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("scenes needing %s: %w", phase, err)
	}
	defer func() { _ = rows.Close() }()
	return collectScenes(rows)
}

func inferTitleFromPath(path string) string {
	base := path
	if idx := strings.LastIndexByte(base, '/'); idx >= 0 {
		base = base[idx+1:]
	}
	if idx := strings.LastIndexByte(base, '.'); idx > 0 {
		base = base[:idx]
	}
	base = strings.NewReplacer("_", " ", ".", " ").Replace(base)
	return strings.TrimSpace(base)
}
