// Package catalog is the durable server catalog. Writes go through the
// database in a single transaction each and then publish a new immutable
// snapshot; readers always see either the whole old or the whole new state.
package catalog

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"server-catalog/pkg/database"
	"server-catalog/pkg/models"
)

// Metadata keys used for refresh bookkeeping.
const (
	MetaLastModified  = "last-modified"
	MetaLastRefreshID = "last-refresh-id"
)

// RefreshBatch is applied atomically by Store.Refresh.
type RefreshBatch = database.RefreshBatch

// Backend is the durable storage behind a Store.
type Backend interface {
	LoadServers(ctx context.Context) ([]models.Server, error)
	UpsertServers(ctx context.Context, servers []models.Server) error
	DeleteServers(ctx context.Context, retain []string, maxTier int) ([]string, error)
	UpdateDynamic(ctx context.Context, loads []models.ServerLoad) (int, error)
	Refresh(ctx context.Context, batch database.RefreshBatch) ([]string, error)
	GetMetadata(ctx context.Context, key string) (string, bool, error)
	SetMetadata(ctx context.Context, key string, value *string) error
}

// Option configures a Store.
type Option func(*Store)

// WithChangeHook registers fn to be called with the catalog size after
// every published snapshot.
func WithChangeHook(fn func(size int)) Option {
	return func(s *Store) {
		s.onChange = fn
	}
}

// Store serializes writers and lets readers proceed on the last
// published snapshot.
type Store struct {
	backend  Backend
	logger   *slog.Logger
	onChange func(size int)

	writeMu sync.Mutex
	current atomic.Pointer[Snapshot]
}

func NewStore(backend Backend, logger *slog.Logger, opts ...Option) *Store {
	s := &Store{
		backend: backend,
		logger:  logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Snapshot returns the current snapshot, loading it from the backend on
// first use.
func (s *Store) Snapshot(ctx context.Context) (*Snapshot, error) {
	if snap := s.current.Load(); snap != nil {
		return snap, nil
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.loadLocked(ctx)
}

// Reload discards the published snapshot and reads the backend again.
func (s *Store) Reload(ctx context.Context) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	servers, err := s.backend.LoadServers(ctx)
	if err != nil {
		return storageError("load", err)
	}
	snap := snapshotOf(servers)
	s.publish(snap)
	s.logger.Debug("Catalog snapshot reloaded", "servers", snap.Len())
	return nil
}

func (s *Store) loadLocked(ctx context.Context) (*Snapshot, error) {
	if snap := s.current.Load(); snap != nil {
		return snap, nil
	}
	servers, err := s.backend.LoadServers(ctx)
	if err != nil {
		return nil, storageError("load", err)
	}
	snap := snapshotOf(servers)
	s.publish(snap)
	s.logger.Debug("Catalog snapshot loaded", "servers", snap.Len())
	return snap, nil
}

func (s *Store) publish(snap *Snapshot) {
	s.current.Store(snap)
	if s.onChange != nil {
		s.onChange(snap.Len())
	}
}

// UpsertServers replaces each logical by id, including its endpoints and
// overrides. Either every server is written or none is.
func (s *Store) UpsertServers(ctx context.Context, servers []models.Server) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	base, err := s.loadLocked(ctx)
	if err != nil {
		return err
	}
	if err := s.backend.UpsertServers(ctx, servers); err != nil {
		return storageError("upsert", err)
	}
	s.publish(base.withUpserted(servers))

	s.logger.Debug("Servers upserted", "count", len(servers))
	return nil
}

// DeleteServers deletes logicals with tier <= maxTier whose id is not in
// retain. Logicals above maxTier are never touched.
func (s *Store) DeleteServers(ctx context.Context, retain []string, maxTier int) (int, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	base, err := s.loadLocked(ctx)
	if err != nil {
		return 0, err
	}
	deleted, err := s.backend.DeleteServers(ctx, retain, maxTier)
	if err != nil {
		return 0, storageError("delete", err)
	}
	s.publish(base.withDeleted(deleted))

	s.logger.Debug("Servers deleted", "count", len(deleted), "maxTier", maxTier)
	return len(deleted), nil
}

// UpdateDynamic overwrites load, score and status of known logicals and
// silently skips unknown ids. It returns how many logicals were updated.
func (s *Store) UpdateDynamic(ctx context.Context, loads []models.ServerLoad) (int, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	base, err := s.loadLocked(ctx)
	if err != nil {
		return 0, err
	}
	applied, err := s.backend.UpdateDynamic(ctx, loads)
	if err != nil {
		return 0, storageError("update dynamic", err)
	}
	s.publish(base.withDynamic(loads))
	return applied, nil
}

// Refresh upserts the batch servers, optionally deletes stale ones and
// writes the metadata in one transaction. It returns the number of
// deleted logicals.
func (s *Store) Refresh(ctx context.Context, batch RefreshBatch) (int, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	base, err := s.loadLocked(ctx)
	if err != nil {
		return 0, err
	}
	deleted, err := s.backend.Refresh(ctx, batch)
	if err != nil {
		return 0, storageError("refresh", err)
	}
	s.publish(base.withUpserted(batch.Servers).withDeleted(deleted))

	s.logger.Debug("Catalog refreshed", "upserted", len(batch.Servers), "deleted", len(deleted))
	return len(deleted), nil
}

// Count returns the number of logicals in the catalog.
func (s *Store) Count(ctx context.Context) (int, error) {
	snap, err := s.Snapshot(ctx)
	if err != nil {
		return 0, err
	}
	return snap.Len(), nil
}

// GetServer returns a copy of the logical with id, or nil.
func (s *Store) GetServer(ctx context.Context, id string) (*models.Server, error) {
	snap, err := s.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	return snap.Get(id).Clone(), nil
}

// GetMetadata returns the value stored under key and whether it exists.
func (s *Store) GetMetadata(ctx context.Context, key string) (string, bool, error) {
	value, ok, err := s.backend.GetMetadata(ctx, key)
	if err != nil {
		return "", false, storageError("get metadata", err)
	}
	return value, ok, nil
}

// SetMetadata stores value under key; nil deletes the key.
func (s *Store) SetMetadata(ctx context.Context, key string, value *string) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	return storageError("set metadata", s.backend.SetMetadata(ctx, key, value))
}

func snapshotOf(servers []models.Server) *Snapshot {
	ptrs := make([]*models.Server, len(servers))
	for i := range servers {
		ptrs[i] = &servers[i]
	}
	return newSnapshot(ptrs)
}
