package hazardindex

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.uber.org/goleak"

	"github.com/mr1hm/go-safe-routes/internal/apperr"
	"github.com/mr1hm/go-safe-routes/internal/config"
	"github.com/mr1hm/go-safe-routes/internal/models"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// fakeSource implements Source for testing
type fakeSource struct {
	mu      sync.Mutex
	reports []models.HazardReport
	err     error
	calls   atomic.Int64
}

func (f *fakeSource) LoadHazards(ctx context.Context) ([]models.HazardReport, error) {
	f.calls.Add(1)
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	return append([]models.HazardReport(nil), f.reports...), nil
}

func (f *fakeSource) set(reports []models.HazardReport, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reports = reports
	f.err = err
}

// recordingNotifier implements Notifier for testing
type recordingNotifier struct {
	mu     sync.Mutex
	events []*models.SnapshotEvent
}

func (n *recordingNotifier) Broadcast(e *models.SnapshotEvent) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.events = append(n.events, e)
}

func (n *recordingNotifier) count() int {
	n.mu.Lock()
	defer n.mu.Unlock()
	return len(n.events)
}

func testIndexConfig() config.IndexConfig {
	return config.IndexConfig{
		RefreshInterval: time.Hour,
		StoreTimeout:    time.Second,
		MaxStaleness:    15 * time.Minute,
		PendingWeight:   0.5,
		CellDegrees:     0.01,
	}
}

func TestIndex_CurrentBeforeLoad(t *testing.T) {
	ix := New(testIndexConfig())

	_, err := ix.Current()
	if !errors.Is(err, apperr.ErrUpstreamUnavailable) {
		t.Fatalf("expected upstream unavailable before first load, got %v", err)
	}
}

func TestIndex_StaleSnapshot(t *testing.T) {
	ix := New(testIndexConfig())
	now := time.Date(2026, 6, 1, 12, 0, 0, 0, time.UTC)
	ix.now = func() time.Time { return now }

	ix.Install(Build(nil, BuildOptions{Version: 3, BuiltAt: now.Add(-10 * time.Minute)}))
	if _, err := ix.Current(); err != nil {
		t.Fatalf("expected fresh snapshot to serve, got %v", err)
	}

	now = now.Add(10 * time.Minute)
	if _, err := ix.Current(); !errors.Is(err, apperr.ErrUpstreamUnavailable) {
		t.Fatalf("expected stale snapshot to be unavailable, got %v", err)
	}
}

func TestIndex_DegradeNeutral(t *testing.T) {
	cfg := testIndexConfig()
	cfg.DegradeNeutral = true
	ix := New(cfg)

	s, err := ix.Current()
	if err != nil {
		t.Fatalf("expected degraded snapshot, got error %v", err)
	}
	if !s.Degraded() || s.Len() != 0 {
		t.Errorf("expected empty degraded snapshot, got degraded=%v len=%d", s.Degraded(), s.Len())
	}
}

func TestRefresher_RefreshInstallsSnapshot(t *testing.T) {
	src := &fakeSource{reports: []models.HazardReport{
		hazard("a", base, models.StatusVerified),
		hazard("b", base, models.StatusPending),
	}}
	notifier := &recordingNotifier{}
	ix := New(testIndexConfig())
	r := NewRefresher(testIndexConfig(), src, ix, notifier)

	if err := r.Refresh(context.Background()); err != nil {
		t.Fatalf("Refresh failed: %v", err)
	}

	s, err := ix.Current()
	if err != nil {
		t.Fatalf("Current failed: %v", err)
	}
	if s.Version() != 1 || s.Len() != 1 {
		t.Errorf("expected version 1 with 1 hazard, got version %d len %d", s.Version(), s.Len())
	}
	if notifier.count() != 1 {
		t.Errorf("expected 1 snapshot event, got %d", notifier.count())
	}
	if st := r.Status(); st.HazardCount != 1 || st.LastError != "" {
		t.Errorf("unexpected status %+v", st)
	}
}

func TestRefresher_FailureKeepsLastGood(t *testing.T) {
	src := &fakeSource{reports: []models.HazardReport{hazard("a", base, models.StatusVerified)}}
	ix := New(testIndexConfig())
	r := NewRefresher(testIndexConfig(), src, ix, nil)

	if err := r.Refresh(context.Background()); err != nil {
		t.Fatalf("first Refresh failed: %v", err)
	}

	src.set(nil, errors.New("database is locked"))
	err := r.Refresh(context.Background())
	if !errors.Is(err, apperr.ErrUpstreamUnavailable) {
		t.Fatalf("expected upstream unavailable, got %v", err)
	}

	s, err := ix.Current()
	if err != nil {
		t.Fatalf("expected last good snapshot, got %v", err)
	}
	if s.Version() != 1 || s.Len() != 1 {
		t.Errorf("expected last good snapshot to keep serving, got version %d", s.Version())
	}
	if st := r.Status(); st.Failures != 1 || st.LastError == "" {
		t.Errorf("expected failure recorded in status, got %+v", st)
	}
}

func TestRefresher_StartInvalidateStop(t *testing.T) {
	src := &fakeSource{}
	ix := New(testIndexConfig())
	r := NewRefresher(testIndexConfig(), src, ix, nil)

	ctx, cancel := context.WithCancel(context.Background())
	r.Start(ctx)

	waitFor(t, func() bool { return src.calls.Load() >= 1 })

	src.set([]models.HazardReport{hazard("new", base, models.StatusVerified)}, nil)
	r.Invalidate()

	waitFor(t, func() bool {
		s, err := ix.Current()
		return err == nil && s.Len() == 1
	})

	cancel()
	r.Stop()
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met before deadline")
}
