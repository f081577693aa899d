// Package routing fetches candidate routes, scores them against one hazard
// snapshot and picks the route that fits the caller's preferences.
package routing

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/mr1hm/go-safe-routes/internal/apperr"
	"github.com/mr1hm/go-safe-routes/internal/config"
	"github.com/mr1hm/go-safe-routes/internal/geo"
	"github.com/mr1hm/go-safe-routes/internal/hazardindex"
	"github.com/mr1hm/go-safe-routes/internal/models"
	"github.com/mr1hm/go-safe-routes/internal/safety"
	"github.com/mr1hm/go-safe-routes/internal/worker"
)

// Provider produces candidate geometries between two points. Zero
// candidates means no route exists; an error means the provider failed.
type Provider interface {
	Candidates(ctx context.Context, origin, destination models.Coordinate, prefs models.Preferences) ([]models.RouteCandidate, error)
}

// SnapshotSource hands out the hazard snapshot a request scores against.
type SnapshotSource interface {
	Current() (*hazardindex.Snapshot, error)
}

type RouteRequest struct {
	Origin      models.Coordinate
	Destination models.Coordinate
	Preferences models.Preferences
}

type RouteResult struct {
	Mode            string             `json:"mode"`
	Route           models.ScoredRoute `json:"route"`
	SpeedScore      float64            `json:"speedScore"`
	CompositeScore  float64            `json:"compositeScore"`
	DetourPercent   float64            `json:"detourPercent"`
	Alternatives    []RankedRoute      `json:"alternatives"`
	SnapshotVersion uint64             `json:"snapshotVersion"`
	Degraded        bool               `json:"degraded,omitempty"`
}

type Comparison struct {
	Fastest                  RankedRoute `json:"fastest"`
	Safest                   RankedRoute `json:"safest"`
	Balanced                 RankedRoute `json:"balanced"`
	TimeSavedSeconds         float64     `json:"timeSaved"`
	DistanceDifferenceMeters float64     `json:"distanceDifference"`
	SafetyImprovement        float64     `json:"safetyImprovement"`
	Recommendation           string      `json:"recommendation"`
	SnapshotVersion          uint64      `json:"snapshotVersion"`
	Degraded                 bool        `json:"degraded,omitempty"`
}

type Service struct {
	cfg      *config.Config
	provider Provider
	index    SnapshotSource
	params   safety.Params
	pool     *worker.WorkerPool
}

func NewService(cfg *config.Config, provider Provider, index SnapshotSource) *Service {
	return &Service{
		cfg:      cfg,
		provider: provider,
		index:    index,
		params:   safety.ParamsFromConfig(cfg.Scoring),
	}
}

type scoreJob struct {
	ctx   context.Context
	snap  *hazardindex.Snapshot
	idx   int
	route models.RouteCandidate
	prefs models.Preferences
	done  chan<- scoreResult
}

type scoreResult struct {
	idx   int
	route models.ScoredRoute
	err   error
}

// Start launches the scoring pool shared by all requests.
func (s *Service) Start(ctx context.Context) {
	processor := func(ctx context.Context, job worker.Job) error {
		j := job.(*scoreJob)
		if err := j.ctx.Err(); err != nil {
			j.done <- scoreResult{idx: j.idx, err: err}
			return err
		}
		scored, err := s.score(j.snap, j.route, j.prefs)
		j.done <- scoreResult{idx: j.idx, route: scored, err: err}
		return err
	}

	s.pool = worker.NewWorkerPool(s.cfg.Worker.Count, s.cfg.Worker.BufferSize, processor)
	s.pool.Start(ctx)
}

func (s *Service) Stop() {
	if s.pool != nil {
		s.pool.Stop()
	}
	slog.Info("routing service stopped")
}

func (s *Service) PoolStats() worker.Stats {
	if s.pool == nil {
		return worker.Stats{}
	}
	return s.pool.Stats()
}

func (s *Service) SafeRoute(ctx context.Context, req RouteRequest) (*RouteResult, error) {
	return s.route(ctx, ModeSafe, req)
}

func (s *Service) FastestRoute(ctx context.Context, req RouteRequest) (*RouteResult, error) {
	return s.route(ctx, ModeFastest, req)
}

func (s *Service) OptimizeRoute(ctx context.Context, req RouteRequest) (*RouteResult, error) {
	return s.route(ctx, ModeOptimize, req)
}

func (s *Service) route(ctx context.Context, mode Mode, req RouteRequest) (*RouteResult, error) {
	snap, scored, err := s.candidates(ctx, req)
	if err != nil {
		return nil, err
	}

	sel, err := Select(mode, scored, req.Preferences, s.cfg.Scoring.DetourPenalty)
	if err != nil {
		return nil, err
	}

	slog.Debug("route selected",
		"mode", mode.String(),
		"candidates", len(scored),
		"chosen", sel.Chosen.Index,
		"safety", sel.Chosen.Route.SafetyScore,
		"snapshot", snap.Version(),
	)

	return &RouteResult{
		Mode:            mode.String(),
		Route:           sel.Chosen.Route,
		SpeedScore:      sel.Chosen.SpeedScore,
		CompositeScore:  sel.Chosen.CompositeScore,
		DetourPercent:   sel.Chosen.DetourPercent,
		Alternatives:    sel.Ranked[1:],
		SnapshotVersion: snap.Version(),
		Degraded:        snap.Degraded(),
	}, nil
}

// CompareRoutes scores the candidates once and reports the fastest, safest
// and balanced picks side by side.
func (s *Service) CompareRoutes(ctx context.Context, req RouteRequest) (*Comparison, error) {
	snap, scored, err := s.candidates(ctx, req)
	if err != nil {
		return nil, err
	}

	penalty := s.cfg.Scoring.DetourPenalty
	fastest, err := Select(ModeFastest, scored, req.Preferences, penalty)
	if err != nil {
		return nil, err
	}
	safest, err := Select(ModeSafe, scored, req.Preferences, penalty)
	if err != nil {
		return nil, err
	}
	balanced, err := Select(ModeOptimize, scored, req.Preferences, penalty)
	if err != nil {
		return nil, err
	}

	f, sf := fastest.Chosen, safest.Chosen
	return &Comparison{
		Fastest:                  f,
		Safest:                   sf,
		Balanced:                 balanced.Chosen,
		TimeSavedSeconds:         sf.Route.DurationSeconds - f.Route.DurationSeconds,
		DistanceDifferenceMeters: sf.Route.DistanceMeters - f.Route.DistanceMeters,
		SafetyImprovement:        sf.Route.SafetyScore - f.Route.SafetyScore,
		Recommendation:           recommend(f, sf),
		SnapshotVersion:          snap.Version(),
		Degraded:                 snap.Degraded(),
	}, nil
}

const (
	recommendSafetyScore = 70.0
	recommendExtraTime   = 10 * time.Minute
)

func recommend(fastest, safest RankedRoute) string {
	switch {
	case fastest.Index == safest.Index:
		return "fastest"
	case safest.Route.SafetyScore >= recommendSafetyScore:
		return "safest"
	case safest.Route.DurationSeconds-fastest.Route.DurationSeconds < recommendExtraTime.Seconds():
		return "safest"
	default:
		return "balanced"
	}
}

// AnalyzeSafety scores a caller-supplied polyline without selecting.
func (s *Service) AnalyzeSafety(ctx context.Context, route []models.Coordinate, prefs models.Preferences) (*models.SafetyAnalysis, error) {
	const op = "routing.AnalyzeSafety"
	if len(route) < 2 {
		return nil, apperr.Validation(op, "route needs at least 2 coordinates, got %d", len(route))
	}
	for i, c := range route {
		if err := c.Validate(); err != nil {
			return nil, apperr.Validation(op, "coordinate %d: %v", i, err)
		}
	}

	snap, err := s.index.Current()
	if err != nil {
		return nil, err
	}

	candidate := models.RouteCandidate{
		Geometry:       route,
		DistanceMeters: geo.PolylineLength(route),
	}
	scored, err := s.scoreAll(ctx, snap, []models.RouteCandidate{candidate}, prefs)
	if err != nil {
		return nil, err
	}

	r := scored[0]
	return &models.SafetyAnalysis{
		OverallScore:    r.SafetyScore,
		RiskZones:       r.RiskZones,
		HazardCount:     r.HazardCount,
		DistanceMeters:  r.DistanceMeters,
		SnapshotVersion: snap.Version(),
		Degraded:        r.Degraded,
	}, nil
}

// candidates captures one snapshot, fetches routes from the provider and
// scores them all against that snapshot.
func (s *Service) candidates(ctx context.Context, req RouteRequest) (*hazardindex.Snapshot, []models.ScoredRoute, error) {
	const op = "routing.candidates"
	if err := req.Origin.Validate(); err != nil {
		return nil, nil, apperr.Validation(op, "origin: %v", err)
	}
	if err := req.Destination.Validate(); err != nil {
		return nil, nil, apperr.Validation(op, "destination: %v", err)
	}

	snap, err := s.index.Current()
	if err != nil {
		return nil, nil, err
	}

	providerCtx, cancel := context.WithTimeout(ctx, s.cfg.Routing.Timeout)
	defer cancel()

	raw, err := s.provider.Candidates(providerCtx, req.Origin, req.Destination, req.Preferences)
	if err != nil {
		if errors.Is(err, context.Canceled) && ctx.Err() != nil {
			return nil, nil, ctx.Err()
		}
		var appErr *apperr.Error
		if errors.As(err, &appErr) {
			return nil, nil, err
		}
		return nil, nil, apperr.Unavailable(op, fmt.Errorf("routing provider: %w", err))
	}

	valid := raw[:0:0]
	for i, c := range raw {
		if err := c.Validate(); err != nil {
			slog.Warn("dropping invalid route candidate", "index", i, "error", err)
			continue
		}
		valid = append(valid, c)
	}
	if len(valid) == 0 {
		return nil, nil, apperr.NotFound(op, "no route between origin and destination")
	}

	scored, err := s.scoreAll(ctx, snap, valid, req.Preferences)
	if err != nil {
		return nil, nil, err
	}
	return snap, scored, nil
}

// scoreAll fans candidates out over the worker pool and joins the results.
// Cancellation or a stopped pool abandons the join; late results land in the
// buffered channel.
func (s *Service) scoreAll(ctx context.Context, snap *hazardindex.Snapshot, candidates []models.RouteCandidate, prefs models.Preferences) ([]models.ScoredRoute, error) {
	const op = "routing.scoreAll"
	if s.pool == nil {
		return nil, apperr.Unavailable(op, worker.ErrPoolStopped)
	}

	done := make(chan scoreResult, len(candidates))
	for i, c := range candidates {
		job := &scoreJob{ctx: ctx, snap: snap, idx: i, route: c, prefs: prefs, done: done}
		if err := s.pool.Submit(ctx, job); err != nil {
			return nil, contextError(op, err)
		}
	}

	poolDone := s.pool.Done()
	out := make([]models.ScoredRoute, len(candidates))
	for range candidates {
		select {
		case <-ctx.Done():
			return nil, contextError(op, ctx.Err())
		case <-poolDone:
			return nil, apperr.Unavailable(op, worker.ErrPoolStopped)
		case res := <-done:
			if res.err != nil {
				return nil, contextError(op, res.err)
			}
			out[res.idx] = res.route
		}
	}
	return out, nil
}

func contextError(op string, err error) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return apperr.Unavailable(op, err)
	case errors.Is(err, context.Canceled):
		return err
	case errors.Is(err, worker.ErrPoolStopped):
		return apperr.Unavailable(op, err)
	}
	return err
}

func (s *Service) score(snap *hazardindex.Snapshot, route models.RouteCandidate, prefs models.Preferences) (models.ScoredRoute, error) {
	if snap.Degraded() {
		return models.ScoredRoute{
			RouteCandidate: route,
			SafetyScore:    100,
			RiskZones:      []models.RiskZone{},
			Degraded:       true,
		}, nil
	}

	hazards, err := safety.Aggregate(snap, route.Geometry, prefs, s.params)
	if err != nil {
		return models.ScoredRoute{}, err
	}

	zones := safety.DetectZones(route.Geometry, hazards, s.params)
	for _, z := range zones {
		for _, id := range z.ContributingHazards {
			if _, ok := snap.Lookup(id); !ok {
				slog.Error("risk zone references unknown hazard", "hazard_id", id, "snapshot", snap.Version())
				return models.ScoredRoute{}, apperr.Invariant("routing.score", "zone hazard %s not in snapshot %d", id, snap.Version())
			}
		}
	}

	return models.ScoredRoute{
		RouteCandidate: route,
		SafetyScore:    safety.Score(hazards, geo.PolylineLength(route.Geometry)),
		RiskZones:      zones,
		HazardCount:    len(hazards),
	}, nil
}
