// Package query executes filter and ordering combinations against a
// catalog snapshot.
package query

import (
	"context"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"server-catalog/pkg/catalog"
	"server-catalog/pkg/filter"
	"server-catalog/pkg/locale"
	"server-catalog/pkg/models"
	"server-catalog/pkg/order"
)

// SnapshotSource provides consistent catalog views.
type SnapshotSource interface {
	Snapshot(ctx context.Context) (*catalog.Snapshot, error)
}

// ServerInfo is a listed server annotated with the protocols its
// endpoints accept.
type ServerInfo struct {
	Server    *models.Server
	Protocols models.Protocols
}

// Option configures an Engine.
type Option func(*Engine)

// WithRand sets the random source used by order.Random.
func WithRand(rng *rand.Rand) Option {
	return func(e *Engine) {
		e.rng = rng
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(e *Engine) {
		e.logger = logger
	}
}

type Engine struct {
	source SnapshotSource
	loc    *locale.Localizer
	logger *slog.Logger

	rngMu sync.Mutex
	rng   *rand.Rand
}

func NewEngine(source SnapshotSource, loc *locale.Localizer, opts ...Option) *Engine {
	e := &Engine{
		source: source,
		loc:    loc,
		logger: slog.Default(),
		rng:    rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Localizer returns the localizer used for names and group order.
func (e *Engine) Localizer() *locale.Localizer {
	return e.loc
}

// GetFirstServer returns a copy of the best server matching every filter,
// or nil when none does. It never materializes the full result set.
func (e *Engine) GetFirstServer(ctx context.Context, filters []filter.Filter, o order.Order) (*models.Server, error) {
	snap, err := e.source.Snapshot(ctx)
	if err != nil {
		return nil, err
	}

	rng := e.lockRand(o)
	if rng != nil {
		defer e.rngMu.Unlock()
	}

	picker := order.NewPicker(o, rng)
	for _, s := range snap.Servers() {
		if !filter.MatchAll(s, filters) {
			continue
		}
		picker.Add(s)
		if picker.Done() {
			break
		}
	}
	best := picker.Best()

	e.logger.Debug("First server query", "filters", len(filters), "order", o.String(), "found", best != nil)

	return best.Clone(), nil
}

// GetServers returns every matching server in the requested order.
func (e *Engine) GetServers(ctx context.Context, filters []filter.Filter, o order.Order) ([]ServerInfo, error) {
	snap, err := e.source.Snapshot(ctx)
	if err != nil {
		return nil, err
	}

	var matched []*models.Server
	for _, s := range snap.Servers() {
		if filter.MatchAll(s, filters) {
			matched = append(matched, s)
		}
	}
	if rng := e.lockRand(o); rng != nil {
		order.Sort(matched, o, rng)
		e.rngMu.Unlock()
	} else {
		order.Sort(matched, o, nil)
	}

	infos := make([]ServerInfo, len(matched))
	for i, s := range matched {
		infos[i] = ServerInfo{
			Server:    s.Clone(),
			Protocols: s.SupportedProtocols(),
		}
	}
	return infos, nil
}

// lockRand locks and returns the shared random source when o needs it.
// The caller unlocks rngMu when the result is non-nil.
func (e *Engine) lockRand(o order.Order) *rand.Rand {
	if o != order.Random {
		return nil
	}
	e.rngMu.Lock()
	return e.rng
}
