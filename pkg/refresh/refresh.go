package refresh

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"server-catalog/pkg/catalog"
	"server-catalog/pkg/models"
	"server-catalog/pkg/upstream"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"
)

// Catalog is the part of catalog.Store a refresh writes to.
type Catalog interface {
	GetMetadata(ctx context.Context, key string) (string, bool, error)
	Refresh(ctx context.Context, batch catalog.RefreshBatch) (int, error)
	UpdateDynamic(ctx context.Context, loads []models.ServerLoad) (int, error)
}

// Settings tunes a RefreshService.
type Settings struct {
	// MaxDeleteTier bounds which stale logicals may be deleted.
	MaxDeleteTier int
	// Force ignores the stored cursor.
	Force bool
	// SkipLoads leaves dynamic fields alone.
	SkipLoads bool
}

// Report summarizes one run.
type Report struct {
	RunID         string
	NotModified   bool
	Upserted      int
	Deleted       int
	LoadsReceived int
	LoadsApplied  int
	Duration      time.Duration
}

type RefreshService struct {
	catalog  Catalog
	source   upstream.Source
	logger   *slog.Logger
	settings Settings
	observe  func(Report, error)
}

// Option configures a RefreshService.
type Option func(*RefreshService)

// WithObserver is called once per run with its outcome.
func WithObserver(fn func(Report, error)) Option {
	return func(s *RefreshService) {
		s.observe = fn
	}
}

func NewRefreshService(c Catalog, source upstream.Source, logger *slog.Logger, settings Settings, opts ...Option) *RefreshService {
	s := &RefreshService{
		catalog:  c,
		source:   source,
		logger:   logger,
		settings: settings,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run performs a full refresh: server list (conditional on the stored
// cursor) and loads are fetched concurrently, the server list is applied
// atomically together with the new cursor, and loads are applied last.
func (s *RefreshService) Run(ctx context.Context) (report Report, err error) {
	start := time.Now()
	report.RunID = uuid.NewString()
	defer func() {
		report.Duration = time.Since(start)
		if s.observe != nil {
			s.observe(report, err)
		}
	}()

	cursor := ""
	if !s.settings.Force {
		cursor, _, err = s.catalog.GetMetadata(ctx, catalog.MetaLastModified)
		if err != nil {
			return report, fmt.Errorf("read cursor: %w", err)
		}
	}

	s.logger.Info("Starting refresh", "runID", report.RunID, "cursor", cursor)

	var logicals *upstream.Logicals
	var loads []models.ServerLoad
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		logicals, err = s.source.Logicals(gctx, cursor)
		if errors.Is(err, upstream.ErrNotModified) {
			return nil
		}
		return err
	})
	if !s.settings.SkipLoads {
		g.Go(func() error {
			var err error
			loads, err = s.source.Loads(gctx)
			return err
		})
	}
	if err = g.Wait(); err != nil {
		s.logger.Error("Refresh fetch failed", "runID", report.RunID, "error", err)
		return report, err
	}

	if logicals == nil {
		report.NotModified = true
		s.logger.Info("Server list not modified", "runID", report.RunID)
	} else {
		report.Deleted, err = s.catalog.Refresh(ctx, s.batch(report.RunID, logicals))
		if err != nil {
			return report, fmt.Errorf("apply server list: %w", err)
		}
		report.Upserted = len(logicals.Servers)
		s.logger.Info("Server list applied",
			"runID", report.RunID,
			"upserted", report.Upserted,
			"deleted", report.Deleted)
	}

	if err = s.applyLoads(ctx, loads, &report); err != nil {
		return report, err
	}
	return report, nil
}

// UpdateLoads fetches and applies loads only.
func (s *RefreshService) UpdateLoads(ctx context.Context) (report Report, err error) {
	start := time.Now()
	report.RunID = uuid.NewString()
	report.NotModified = true
	defer func() {
		report.Duration = time.Since(start)
		if s.observe != nil {
			s.observe(report, err)
		}
	}()

	loads, err := s.source.Loads(ctx)
	if err != nil {
		return report, err
	}
	if err = s.applyLoads(ctx, loads, &report); err != nil {
		return report, err
	}
	return report, nil
}

func (s *RefreshService) applyLoads(ctx context.Context, loads []models.ServerLoad, report *Report) error {
	report.LoadsReceived = len(loads)
	if len(loads) == 0 {
		return nil
	}
	applied, err := s.catalog.UpdateDynamic(ctx, loads)
	if err != nil {
		return fmt.Errorf("apply loads: %w", err)
	}
	report.LoadsApplied = applied
	s.logger.Info("Loads applied",
		"runID", report.RunID,
		"received", report.LoadsReceived,
		"applied", applied)
	return nil
}

func (s *RefreshService) batch(runID string, logicals *upstream.Logicals) catalog.RefreshBatch {
	var cursor *string
	if logicals.LastModified != "" {
		cursor = &logicals.LastModified
	}
	return catalog.RefreshBatch{
		Servers:       logicals.Servers,
		DeleteStale:   true,
		MaxDeleteTier: s.settings.MaxDeleteTier,
		Metadata: map[string]*string{
			catalog.MetaLastModified:  cursor,
			catalog.MetaLastRefreshID: &runID,
		},
	}
}
