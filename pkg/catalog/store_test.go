package catalog

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"

	"server-catalog/pkg/database"
	"server-catalog/pkg/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (*Store, *database.DB) {
	t.Helper()
	db, err := database.NewMemoryDB(context.Background())
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewStore(db, slog.New(slog.NewTextHandler(io.Discard, nil))), db
}

func logical(id string, tier int) models.Server {
	return models.Server{
		ID:               id,
		Name:             id,
		EntryCountryCode: "GB",
		ExitCountryCode:  "GB",
		Tier:             tier,
		Dynamic:          models.Dynamic{Status: 1},
	}
}

func TestStoreRoundTrip(t *testing.T) {
	ctx := context.Background()
	store, db := newTestStore(t)

	s := logical("GB#7", 2)
	s.City = models.StringPtr("London")
	s.Features = models.FeatureStreaming
	s.Endpoints = []models.Endpoint{
		{ID: "gb7-a", EntryIP: "10.1.0.1", Override: &models.Override{ProtocolMask: models.ProtocolsPtr(models.ProtocolOpenVPNTCP.Mask())}},
		{ID: "gb7-b", EntryIP: "10.1.0.2"},
	}
	require.NoError(t, store.UpsertServers(ctx, []models.Server{s}))

	got, err := store.GetServer(ctx, "GB#7")
	require.NoError(t, err)
	assert.Equal(t, &s, got)

	// A fresh store reads the same thing back from the database.
	reopened := NewStore(db, slog.New(slog.NewTextHandler(io.Discard, nil)))
	got, err = reopened.GetServer(ctx, "GB#7")
	require.NoError(t, err)
	assert.Equal(t, &s, got)

	missing, err := store.GetServer(ctx, "nope")
	require.NoError(t, err)
	assert.Nil(t, missing)
}

func TestStoreReloadSeesOtherWriters(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "catalog.db")
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	openStore := func() *Store {
		db, err := database.NewDB(database.Options{Driver: database.DriverSQLite, Path: path})
		require.NoError(t, err)
		t.Cleanup(func() { db.Close() })
		require.NoError(t, db.InitSchema(ctx))
		return NewStore(db, logger)
	}
	serving, writer := openStore(), openStore()

	n, err := serving.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)

	require.NoError(t, writer.UpsertServers(ctx, []models.Server{logical("GB0", 0)}))

	n, err = serving.Count(ctx)
	require.NoError(t, err)
	assert.Zero(t, n, "published snapshot is kept until reloaded")

	require.NoError(t, serving.Reload(ctx))
	n, err = serving.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	got, err := serving.GetServer(ctx, "GB0")
	require.NoError(t, err)
	require.NotNil(t, got)
}

func TestStoreUpsertMovesEndpoint(t *testing.T) {
	ctx := context.Background()
	store, db := newTestStore(t)

	a := logical("A", 0)
	a.Endpoints = []models.Endpoint{{ID: "e1"}, {ID: "e2"}}
	require.NoError(t, store.UpsertServers(ctx, []models.Server{a}))

	b := logical("B", 0)
	b.Endpoints = []models.Endpoint{{ID: "e1"}}
	require.NoError(t, store.UpsertServers(ctx, []models.Server{b}))

	got, err := store.GetServer(ctx, "A")
	require.NoError(t, err)
	require.Len(t, got.Endpoints, 1)
	assert.Equal(t, "e2", got.Endpoints[0].ID)

	stored, err := db.LoadServers(ctx)
	require.NoError(t, err)
	require.Len(t, stored, 2)
	assert.Equal(t, got.Endpoints, stored[0].Endpoints)
	assert.Equal(t, "e1", stored[1].Endpoints[0].ID)
}

func TestStoreReturnsCopies(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)

	s := logical("FR#1", 0)
	require.NoError(t, store.UpsertServers(ctx, []models.Server{s}))
	s.Name = "mutated by caller"

	got, err := store.GetServer(ctx, "FR#1")
	require.NoError(t, err)
	assert.Equal(t, "FR#1", got.Name)

	got.Name = "mutated again"
	again, err := store.GetServer(ctx, "FR#1")
	require.NoError(t, err)
	assert.Equal(t, "FR#1", again.Name)
}

func TestStoreDeleteServers(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)

	require.NoError(t, store.UpsertServers(ctx, []models.Server{
		logical("free1", 0),
		logical("stale1", 0),
		logical("paid1", 1),
		logical("stale2", 2),
	}))

	deleted, err := store.DeleteServers(ctx, []string{"free1", "paid1"}, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, deleted)

	snap, err := store.Snapshot(ctx)
	require.NoError(t, err)
	var ids []string
	for _, s := range snap.Servers() {
		ids = append(ids, s.ID)
	}
	assert.Equal(t, []string{"free1", "paid1", "stale2"}, ids)
}

func TestStoreUpdateDynamic(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)

	require.NoError(t, store.UpsertServers(ctx, []models.Server{logical("a", 0), logical("b", 0)}))
	before, err := store.Snapshot(ctx)
	require.NoError(t, err)

	applied, err := store.UpdateDynamic(ctx, []models.ServerLoad{
		{ID: "a", Dynamic: models.Dynamic{Load: 90, Score: 3, Status: 0}},
		{ID: "ghost", Dynamic: models.Dynamic{Load: 10, Score: 1, Status: 1}},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, applied)

	count, err := store.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, count)

	a, err := store.GetServer(ctx, "a")
	require.NoError(t, err)
	assert.Equal(t, models.Dynamic{Load: 90, Score: 3, Status: 0}, a.Dynamic)
	assert.Equal(t, "a", a.Name)

	// Earlier snapshots are never modified.
	assert.Equal(t, 1, before.Get("a").Dynamic.Status)
}

func TestStoreRefresh(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)

	require.NoError(t, store.UpsertServers(ctx, []models.Server{logical("gone", 0), logical("kept-paid", 5)}))

	deleted, err := store.Refresh(ctx, RefreshBatch{
		Servers:       []models.Server{logical("fresh", 0)},
		DeleteStale:   true,
		MaxDeleteTier: 0,
		Metadata:      map[string]*string{MetaLastModified: models.StringPtr("Mon, 01 Jan 2024 00:00:00 GMT")},
	})
	require.NoError(t, err)
	assert.Equal(t, 1, deleted)

	snap, err := store.Snapshot(ctx)
	require.NoError(t, err)
	assert.Nil(t, snap.Get("gone"))
	assert.NotNil(t, snap.Get("fresh"))
	assert.NotNil(t, snap.Get("kept-paid"))

	cursor, ok, err := store.GetMetadata(ctx, MetaLastModified)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, "Mon, 01 Jan 2024 00:00:00 GMT", cursor)

	require.NoError(t, store.SetMetadata(ctx, MetaLastModified, nil))
	_, ok, err = store.GetMetadata(ctx, MetaLastModified)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestStoreChangeHook(t *testing.T) {
	ctx := context.Background()
	db, err := database.NewMemoryDB(ctx)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	var sizes []int
	store := NewStore(db, slog.New(slog.NewTextHandler(io.Discard, nil)), WithChangeHook(func(n int) {
		sizes = append(sizes, n)
	}))
	require.NoError(t, store.UpsertServers(ctx, []models.Server{logical("a", 0), logical("b", 0)}))
	_, err = store.DeleteServers(ctx, []string{"a"}, 0)
	require.NoError(t, err)

	assert.Equal(t, []int{0, 2, 1}, sizes)
}

type failingBackend struct {
	loadErr  error
	writeErr error
	servers  []models.Server
}

func (f *failingBackend) LoadServers(context.Context) ([]models.Server, error) {
	return f.servers, f.loadErr
}

func (f *failingBackend) UpsertServers(context.Context, []models.Server) error {
	return f.writeErr
}

func (f *failingBackend) DeleteServers(context.Context, []string, int) ([]string, error) {
	return nil, f.writeErr
}

func (f *failingBackend) UpdateDynamic(context.Context, []models.ServerLoad) (int, error) {
	return 0, f.writeErr
}

func (f *failingBackend) Refresh(context.Context, database.RefreshBatch) ([]string, error) {
	return nil, f.writeErr
}

func (f *failingBackend) GetMetadata(context.Context, string) (string, bool, error) {
	return "", false, f.writeErr
}

func (f *failingBackend) SetMetadata(context.Context, string, *string) error {
	return f.writeErr
}

func TestStoreWrapsBackendFailures(t *testing.T) {
	ctx := context.Background()
	cause := errors.New("disk I/O error")

	t.Run("load", func(t *testing.T) {
		store := NewStore(&failingBackend{loadErr: cause}, slog.New(slog.NewTextHandler(io.Discard, nil)))
		_, err := store.Count(ctx)
		require.Error(t, err)
		assert.True(t, IsStorageError(err))
		assert.ErrorIs(t, err, cause)
	})

	t.Run("writes leave the snapshot untouched", func(t *testing.T) {
		backend := &failingBackend{writeErr: cause, servers: []models.Server{logical("a", 0)}}
		store := NewStore(backend, slog.New(slog.NewTextHandler(io.Discard, nil)))

		err := store.UpsertServers(ctx, []models.Server{logical("b", 0)})
		assert.True(t, IsStorageError(err))
		_, err = store.DeleteServers(ctx, nil, 10)
		assert.True(t, IsStorageError(err))
		_, err = store.UpdateDynamic(ctx, []models.ServerLoad{{ID: "a"}})
		assert.True(t, IsStorageError(err))
		_, err = store.Refresh(ctx, RefreshBatch{DeleteStale: true, MaxDeleteTier: 10})
		assert.True(t, IsStorageError(err))
		_, _, err = store.GetMetadata(ctx, "k")
		assert.True(t, IsStorageError(err))
		err = store.SetMetadata(ctx, "k", nil)
		assert.True(t, IsStorageError(err))

		snap, err := store.Snapshot(ctx)
		require.NoError(t, err)
		require.Equal(t, 1, snap.Len())
		assert.Equal(t, 1, snap.Get("a").Dynamic.Status)
	})

	t.Run("error message", func(t *testing.T) {
		err := &StorageError{Op: "upsert", Err: cause}
		assert.Equal(t, "catalog upsert: disk I/O error", err.Error())
		assert.False(t, IsStorageError(cause))
	})
}

func TestStoreReadersSeeWholeBatches(t *testing.T) {
	ctx := context.Background()
	store, _ := newTestStore(t)

	batch := func(gen int) []models.Server {
		out := make([]models.Server, 20)
		for i := range out {
			out[i] = logical(fmt.Sprintf("s%02d", i), 0)
			out[i].Name = fmt.Sprintf("gen-%d", gen)
		}
		return out
	}
	require.NoError(t, store.UpsertServers(ctx, batch(0)))

	var wg sync.WaitGroup
	done := make(chan struct{})
	for r := 0; r < 4; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for {
				select {
				case <-done:
					return
				default:
				}
				snap, err := store.Snapshot(ctx)
				if !assert.NoError(t, err) {
					return
				}
				first := snap.Servers()[0].Name
				for _, s := range snap.Servers() {
					if !assert.Equal(t, first, s.Name) {
						return
					}
				}
			}
		}()
	}

	for gen := 1; gen <= 10; gen++ {
		require.NoError(t, store.UpsertServers(ctx, batch(gen)))
	}
	close(done)
	wg.Wait()
}
