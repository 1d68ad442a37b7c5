package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"telecine/internal/config"
)

const (
	settingPoolOverrides    = "pool_settings"
	settingQualityOverrides = "quality_settings"
)

func (s *Store) saveSetting(ctx context.Context, key string, value any) error {
	payload, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("marshal setting %q: %w", key, err)
	}
	if err := s.execWithoutResultRetry(ctx,
		`INSERT INTO settings (key, value, updated_at) VALUES (?, ?, ?)
         ON CONFLICT (key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, string(payload), timestamp(),
	); err != nil {
		return fmt.Errorf("save setting %q: %w", key, err)
	}
	return nil
}

func (s *Store) loadSetting(ctx context.Context, key string, out any) (bool, error) {
	var payload string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM settings WHERE key = ?`, key).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("load setting %q: %w", key, err)
	}
	if err := json.Unmarshal([]byte(payload), out); err != nil {
		return false, fmt.Errorf("decode setting %q: %w", key, err)
	}
	return true, nil
}

// SavePoolSettings persists runtime pool overrides.
func (s *Store) SavePoolSettings(ctx context.Context, pools config.Pools) error {
	return s.saveSetting(ctx, settingPoolOverrides, pools)
}

// LoadPoolSettings returns persisted pool overrides if any exist.
func (s *Store) LoadPoolSettings(ctx context.Context) (config.Pools, bool, error) {
	var pools config.Pools
	ok, err := s.loadSetting(ctx, settingPoolOverrides, &pools)
	return pools, ok, err
}

// SaveQualitySettings persists runtime quality overrides.
func (s *Store) SaveQualitySettings(ctx context.Context, quality config.Quality) error {
	return s.saveSetting(ctx, settingQualityOverrides, quality)
}

// LoadQualitySettings returns persisted quality overrides if any exist.
func (s *Store) LoadQualitySettings(ctx context.Context) (config.Quality, bool, error) {
	var quality config.Quality
	ok, err := s.loadSetting(ctx, settingQualityOverrides, &quality)
	return quality, ok, err
}
