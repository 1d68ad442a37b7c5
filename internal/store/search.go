package store

import (
	"context"
	"fmt"
	"strings"
)

// UpdateIndex refreshes the search index entry for a scene from its current
// library record. A scene with no record is removed from the index.
func (s *Store) UpdateIndex(ctx context.Context, sceneID int64) error {
	if err := s.execWithoutResultRetry(ctx,
		`DELETE FROM scenes_search WHERE scene_id = ?`, sceneID); err != nil {
		return fmt.Errorf("clear search index: %w", err)
	}
	if err := s.execWithoutResultRetry(ctx,
		`INSERT INTO scenes_search (title, path, video_codec, container, scene_id)
         SELECT title, path, video_codec, container, id FROM scenes WHERE id = ?`,
		sceneID); err != nil {
		return fmt.Errorf("refresh search index: %w", err)
	}
	return nil
}

// SearchScenes runs a full-text query over the indexed scene fields and
// returns the best matches first.
func (s *Store) SearchScenes(ctx context.Context, query string, limit int) ([]*Scene, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+qualifySceneColumns("sc")+` FROM scenes sc
         JOIN scenes_search ss ON ss.scene_id = sc.id
         WHERE ss MATCH ? ORDER BY ss.rank LIMIT ?`,
		query, limit)
	if err != nil {
		return nil, fmt.Errorf("search scenes: %w", err)
	}
	defer func() { _ = rows.Close() }()
	return collectScenes(rows)
}

func qualifySceneColumns(alias string) string {
	parts := strings.Split(sceneColumns, ",")
	for i, part := range parts {
		parts[i] = alias + "." + strings.TrimSpace(part)
	}
	return strings.Join(parts, ", ")
}
