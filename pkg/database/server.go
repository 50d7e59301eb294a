package database

import (
	"context"
	"fmt"
	"log/slog"

	"server-catalog/pkg/models"

	"github.com/uptrace/bun"
)

const batchSize = 500

// RefreshBatch is everything one catalog refresh writes. It is applied in a
// single transaction so the cursor never advances without the data.
type RefreshBatch struct {
	Servers []models.Server
	// DeleteStale removes stored logicals missing from Servers whose tier
	// is at most MaxDeleteTier.
	DeleteStale   bool
	MaxDeleteTier int
	// Metadata values of nil delete the key.
	Metadata map[string]*string
}

// UpsertServers replaces the given logicals together with their status,
// endpoints and overrides.
func (db *DB) UpsertServers(ctx context.Context, servers []models.Server) error {
	return db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		return upsertServers(ctx, tx, servers)
	})
}

// DeleteServers removes every logical with tier <= maxTier whose id is not
// in retain, and returns the removed ids.
func (db *DB) DeleteServers(ctx context.Context, retain []string, maxTier int) ([]string, error) {
	var deleted []string
	err := db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		var err error
		deleted, err = deleteServers(ctx, tx, retain, maxTier)
		return err
	})
	if err != nil {
		return nil, err
	}
	return deleted, nil
}

// UpdateDynamic overwrites load, score and status of known logicals.
// Unknown ids are skipped. It returns the number of logicals updated.
func (db *DB) UpdateDynamic(ctx context.Context, loads []models.ServerLoad) (int, error) {
	var applied int
	err := db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		for _, l := range loads {
			row := models.StatusRow{
				LogicalID: l.ID,
				Load:      l.Load,
				Score:     l.Score,
				Status:    l.Status,
			}
			res, err := tx.NewUpdate().
				Model(&row).
				Column("load", "score", "status").
				WherePK().
				Exec(ctx)
			if err != nil {
				return fmt.Errorf("error updating status of %s: %w", l.ID, err)
			}
			n, err := res.RowsAffected()
			if err != nil {
				return fmt.Errorf("error reading affected rows: %w", err)
			}
			applied += int(n)
		}
		return nil
	})
	if err != nil {
		return 0, err
	}

	slog.Debug("Dynamic status updated", "received", len(loads), "applied", applied)

	return applied, nil
}

// Refresh applies a RefreshBatch atomically and returns the deleted ids.
func (db *DB) Refresh(ctx context.Context, batch RefreshBatch) ([]string, error) {
	var deleted []string
	err := db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if err := upsertServers(ctx, tx, batch.Servers); err != nil {
			return err
		}
		if batch.DeleteStale {
			retain := make([]string, len(batch.Servers))
			for i, s := range batch.Servers {
				retain[i] = s.ID
			}
			var err error
			deleted, err = deleteServers(ctx, tx, retain, batch.MaxDeleteTier)
			if err != nil {
				return err
			}
		}
		for key, value := range batch.Metadata {
			if err := setMetadata(ctx, tx, key, value); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return deleted, nil
}

func (db *DB) CountServers(ctx context.Context) (int, error) {
	count, err := db.NewSelect().
		Model((*models.LogicalRow)(nil)).
		Count(ctx)
	if err != nil {
		return 0, fmt.Errorf("error counting servers: %w", err)
	}
	return count, nil
}

// LoadServers reads the whole catalog ordered by logical id.
func (db *DB) LoadServers(ctx context.Context) ([]models.Server, error) {
	var logicals []models.LogicalRow
	if err := db.NewSelect().Model(&logicals).Order("id").Scan(ctx); err != nil {
		return nil, fmt.Errorf("error loading logicals: %w", err)
	}

	var statuses []models.StatusRow
	if err := db.NewSelect().Model(&statuses).Scan(ctx); err != nil {
		return nil, fmt.Errorf("error loading status: %w", err)
	}

	var endpoints []models.EndpointRow
	if err := db.NewSelect().Model(&endpoints).Order("logical_id", "position").Scan(ctx); err != nil {
		return nil, fmt.Errorf("error loading endpoints: %w", err)
	}

	var overrides []models.OverrideRow
	if err := db.NewSelect().Model(&overrides).Scan(ctx); err != nil {
		return nil, fmt.Errorf("error loading overrides: %w", err)
	}

	statusByID := make(map[string]models.StatusRow, len(statuses))
	for _, st := range statuses {
		statusByID[st.LogicalID] = st
	}
	endpointsByID := make(map[string][]models.EndpointRow)
	for _, e := range endpoints {
		endpointsByID[e.LogicalID] = append(endpointsByID[e.LogicalID], e)
	}
	overrideByEndpoint := make(map[string]models.OverrideRow, len(overrides))
	for _, o := range overrides {
		overrideByEndpoint[o.EndpointID] = o
	}

	servers := make([]models.Server, 0, len(logicals))
	for _, l := range logicals {
		servers = append(servers, models.ServerFromRows(l, statusByID[l.ID], endpointsByID[l.ID], overrideByEndpoint))
	}

	slog.Debug("Catalog loaded", "servers", len(servers), "endpoints", len(endpoints))

	return servers, nil
}

func upsertServers(ctx context.Context, idb bun.IDB, servers []models.Server) error {
	servers = dedupeServers(servers)
	if len(servers) == 0 {
		return nil
	}

	ids := make([]string, len(servers))
	var (
		logicals  []models.LogicalRow
		statuses  []models.StatusRow
		endpoints []models.EndpointRow
		overrides []models.OverrideRow
	)
	for i := range servers {
		ids[i] = servers[i].ID
		rows := servers[i].ToRows()
		logicals = append(logicals, rows.Logical)
		statuses = append(statuses, rows.Status)
		endpoints = append(endpoints, rows.Endpoints...)
		overrides = append(overrides, rows.Overrides...)
	}

	// Replacing means dropping everything hanging off the old logical first.
	if err := deleteByLogicalIDs(ctx, idb, ids); err != nil {
		return err
	}
	// Endpoints may move between logicals across upserts.
	if err := deleteEndpoints(ctx, idb, endpoints); err != nil {
		return err
	}

	if err := insertRows(ctx, idb, logicals, "logicals"); err != nil {
		return err
	}
	if err := insertRows(ctx, idb, statuses, "status"); err != nil {
		return err
	}
	if err := insertRows(ctx, idb, endpoints, "endpoints"); err != nil {
		return err
	}
	if err := insertRows(ctx, idb, overrides, "overrides"); err != nil {
		return err
	}

	return nil
}

func deleteServers(ctx context.Context, idb bun.IDB, retain []string, maxTier int) ([]string, error) {
	var candidates []string
	err := idb.NewSelect().
		Model((*models.LogicalRow)(nil)).
		Column("id").
		Where("tier <= ?", maxTier).
		Order("id").
		Scan(ctx, &candidates)
	if err != nil {
		return nil, fmt.Errorf("error selecting servers for deletion: %w", err)
	}

	keep := make(map[string]struct{}, len(retain))
	for _, id := range retain {
		keep[id] = struct{}{}
	}
	var stale []string
	for _, id := range candidates {
		if _, ok := keep[id]; !ok {
			stale = append(stale, id)
		}
	}

	if err := deleteByLogicalIDs(ctx, idb, stale); err != nil {
		return nil, err
	}

	slog.Debug("Stale servers deleted", "maxTier", maxTier, "retained", len(retain), "deleted", len(stale))

	return stale, nil
}

func deleteByLogicalIDs(ctx context.Context, idb bun.IDB, ids []string) error {
	for start := 0; start < len(ids); start += batchSize {
		chunk := ids[start:min(start+batchSize, len(ids))]

		deletes := []struct {
			model  interface{}
			column string
		}{
			{(*models.OverrideRow)(nil), "logical_id"},
			{(*models.EndpointRow)(nil), "logical_id"},
			{(*models.StatusRow)(nil), "logical_id"},
			{(*models.LogicalRow)(nil), "id"},
		}
		for _, d := range deletes {
			_, err := idb.NewDelete().
				Model(d.model).
				Where("? IN (?)", bun.Ident(d.column), bun.In(chunk)).
				Exec(ctx)
			if err != nil {
				return fmt.Errorf("error deleting servers: %w", err)
			}
		}
	}
	return nil
}

func deleteEndpoints(ctx context.Context, idb bun.IDB, endpoints []models.EndpointRow) error {
	ids := make([]string, len(endpoints))
	for i, e := range endpoints {
		ids[i] = e.ID
	}
	for start := 0; start < len(ids); start += batchSize {
		chunk := ids[start:min(start+batchSize, len(ids))]
		if _, err := idb.NewDelete().
			Model((*models.OverrideRow)(nil)).
			Where("endpoint_id IN (?)", bun.In(chunk)).
			Exec(ctx); err != nil {
			return fmt.Errorf("error deleting moved overrides: %w", err)
		}
		if _, err := idb.NewDelete().
			Model((*models.EndpointRow)(nil)).
			Where("id IN (?)", bun.In(chunk)).
			Exec(ctx); err != nil {
			return fmt.Errorf("error deleting moved endpoints: %w", err)
		}
	}
	return nil
}

func insertRows[T any](ctx context.Context, idb bun.IDB, rows []T, table string) error {
	for start := 0; start < len(rows); start += batchSize {
		batch := rows[start:min(start+batchSize, len(rows))]
		if _, err := idb.NewInsert().Model(&batch).Exec(ctx); err != nil {
			return fmt.Errorf("error inserting %s: %w", table, err)
		}
	}
	return nil
}

// dedupeServers keeps the last occurrence of every id, in first-seen order.
func dedupeServers(servers []models.Server) []models.Server {
	index := make(map[string]int, len(servers))
	out := make([]models.Server, 0, len(servers))
	for _, s := range servers {
		if i, ok := index[s.ID]; ok {
			out[i] = s
			continue
		}
		index[s.ID] = len(out)
		out = append(out, s)
	}
	return out
}
