package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"server-catalog/pkg/models"

	"github.com/uptrace/bun"
)

// GetMetadata returns the value stored under key and whether it exists.
func (db *DB) GetMetadata(ctx context.Context, key string) (string, bool, error) {
	var row models.MetadataRow
	err := db.NewSelect().
		Model(&row).
		Where("meta_key = ?", key).
		Scan(ctx)

	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("error reading metadata %s: %w", key, err)
	}

	return row.Value, true, nil
}

// SetMetadata stores value under key; a nil value deletes the key.
func (db *DB) SetMetadata(ctx context.Context, key string, value *string) error {
	return setMetadata(ctx, db, key, value)
}

func setMetadata(ctx context.Context, idb bun.IDB, key string, value *string) error {
	if value == nil {
		_, err := idb.NewDelete().
			Model((*models.MetadataRow)(nil)).
			Where("meta_key = ?", key).
			Exec(ctx)
		if err != nil {
			return fmt.Errorf("error deleting metadata %s: %w", key, err)
		}
		return nil
	}

	row := models.MetadataRow{Key: key, Value: *value}
	_, err := idb.NewInsert().
		Model(&row).
		On("CONFLICT (meta_key) DO UPDATE").
		Set("meta_value = EXCLUDED.meta_value").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("error writing metadata %s: %w", key, err)
	}
	return nil
}
