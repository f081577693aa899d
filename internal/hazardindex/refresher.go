package hazardindex

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mr1hm/go-safe-routes/internal/apperr"
	"github.com/mr1hm/go-safe-routes/internal/config"
	"github.com/mr1hm/go-safe-routes/internal/models"
)

// Source is the bulk read the refresher needs from the hazard store.
type Source interface {
	LoadHazards(ctx context.Context) ([]models.HazardReport, error)
}

type Notifier interface {
	Broadcast(e *models.SnapshotEvent)
}

type Status struct {
	Version     uint64    `json:"version"`
	HazardCount int       `json:"hazardCount"`
	BuiltAt     time.Time `json:"builtAt"`
	LastSuccess time.Time `json:"lastSuccess"`
	LastError   string    `json:"lastError,omitempty"`
	Failures    int       `json:"consecutiveFailures"`
}

// Refresher reloads the hazard store on a ticker, or sooner when
// invalidated, and installs each result as a new snapshot.
type Refresher struct {
	cfg        config.IndexConfig
	source     Source
	index      *Index
	notifier   Notifier
	invalidate chan struct{}
	version    atomic.Uint64

	mu     sync.Mutex
	status Status

	wg sync.WaitGroup
}

func NewRefresher(cfg config.IndexConfig, source Source, index *Index, notifier Notifier) *Refresher {
	return &Refresher{
		cfg:        cfg,
		source:     source,
		index:      index,
		notifier:   notifier,
		invalidate: make(chan struct{}, 1),
	}
}

func (r *Refresher) Start(ctx context.Context) {
	r.wg.Add(1)
	go r.run(ctx)
}

func (r *Refresher) run(ctx context.Context) {
	defer r.wg.Done()
	slog.Info("starting hazard index refresher", "interval", r.cfg.RefreshInterval)

	ticker := time.NewTicker(r.cfg.RefreshInterval)
	defer ticker.Stop()

	// Initial load
	_ = r.Refresh(ctx)

	for {
		select {
		case <-ctx.Done():
			slog.Info("hazard index refresher shutting down")
			return
		case <-ticker.C:
			_ = r.Refresh(ctx)
		case <-r.invalidate:
			_ = r.Refresh(ctx)
			ticker.Reset(r.cfg.RefreshInterval)
		}
	}
}

// Invalidate asks for a refresh as soon as possible. Requests coalesce.
func (r *Refresher) Invalidate() {
	select {
	case r.invalidate <- struct{}{}:
	default:
	}
}

// Refresh loads the store once and installs the result. On failure the
// previous snapshot keeps serving.
func (r *Refresher) Refresh(ctx context.Context) error {
	loadCtx, cancel := context.WithTimeout(ctx, r.cfg.StoreTimeout)
	defer cancel()

	reports, err := r.source.LoadHazards(loadCtx)
	if err != nil {
		r.mu.Lock()
		r.status.LastError = err.Error()
		r.status.Failures++
		failures := r.status.Failures
		r.mu.Unlock()

		slog.Error("hazard index refresh failed", "error", err, "consecutive_failures", failures)
		return apperr.Unavailable("hazardindex.Refresh", err)
	}

	snap := Build(reports, BuildOptions{
		Policy:      r.index.Policy(),
		CellDegrees: r.cfg.CellDegrees,
		Version:     r.version.Add(1),
		BuiltAt:     r.index.now(),
	})
	r.index.Install(snap)

	r.mu.Lock()
	r.status = Status{
		Version:     snap.Version(),
		HazardCount: snap.Len(),
		BuiltAt:     snap.BuiltAt(),
		LastSuccess: snap.BuiltAt(),
	}
	r.mu.Unlock()

	if r.notifier != nil {
		r.notifier.Broadcast(snap.Event())
	}

	slog.Debug("hazard snapshot installed", "version", snap.Version(), "hazards", snap.Len(), "loaded", len(reports))
	return nil
}

func (r *Refresher) Status() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

func (r *Refresher) Stop() {
	r.wg.Wait()
	slog.Info("hazard index refresher stopped")
}
