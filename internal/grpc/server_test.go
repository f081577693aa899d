package grpc

import (
	"context"
	"net"
	"testing"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
	"google.golang.org/grpc/test/bufconn"

	"github.com/mr1hm/go-safe-routes/internal/apperr"
	"github.com/mr1hm/go-safe-routes/internal/models"
)

type fakeAnalyzer struct {
	err       error
	gotRoute  []models.Coordinate
	gotPrefs  models.Preferences
	callCount int
}

func (f *fakeAnalyzer) AnalyzeSafety(ctx context.Context, route []models.Coordinate, prefs models.Preferences) (*models.SafetyAnalysis, error) {
	f.callCount++
	f.gotRoute = route
	f.gotPrefs = prefs
	if f.err != nil {
		return nil, f.err
	}
	return &models.SafetyAnalysis{
		OverallScore:    81.5,
		RiskZones:       []models.RiskZone{},
		HazardCount:     3,
		DistanceMeters:  1200,
		SnapshotVersion: 9,
	}, nil
}

func startTestServer(t *testing.T, analyzer Analyzer) (*grpc.ClientConn, *Broadcaster) {
	t.Helper()

	lis := bufconn.Listen(1 << 20)
	b := NewBroadcaster()
	srv := NewServer(analyzer, b)

	done := make(chan struct{})
	go func() {
		defer close(done)
		srv.Serve(lis)
	}()

	conn, err := grpc.NewClient("passthrough:///bufnet",
		grpc.WithContextDialer(func(ctx context.Context, _ string) (net.Conn, error) {
			return lis.DialContext(ctx)
		}),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype("json")),
	)
	if err != nil {
		t.Fatalf("failed to dial bufnet: %v", err)
	}

	t.Cleanup(func() {
		conn.Close()
		b.Close()
		srv.Stop()
		<-done
	})
	return conn, b
}

func TestServer_AnalyzeRoute(t *testing.T) {
	analyzer := &fakeAnalyzer{}
	conn, _ := startTestServer(t, analyzer)

	priority := 80
	req := &AnalyzeRouteRequest{
		Coordinates: []models.Coordinate{{Lat: 59.91, Lon: 10.75}, {Lat: 59.92, Lon: 10.76}},
		Preferences: models.RoutePreferences{
			SafetyPriority: &priority,
			TimeOfDay:      models.TimeOfDayNight,
		},
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	var out models.SafetyAnalysis
	if err := conn.Invoke(ctx, analyzeRouteMethod, req, &out); err != nil {
		t.Fatalf("AnalyzeRoute failed: %v", err)
	}

	if out.OverallScore != 81.5 {
		t.Errorf("expected score 81.5, got %v", out.OverallScore)
	}
	if out.SnapshotVersion != 9 {
		t.Errorf("expected snapshot version 9, got %d", out.SnapshotVersion)
	}
	if len(analyzer.gotRoute) != 2 {
		t.Errorf("expected 2 coordinates forwarded, got %d", len(analyzer.gotRoute))
	}
	if analyzer.gotPrefs.SafetyPriority != 80 {
		t.Errorf("expected safety priority 80, got %d", analyzer.gotPrefs.SafetyPriority)
	}
	if analyzer.gotPrefs.MaxDetourPercent != models.DefaultMaxDetourPercent {
		t.Errorf("expected default detour, got %d", analyzer.gotPrefs.MaxDetourPercent)
	}
}

func TestServer_AnalyzeRouteErrorCodes(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want codes.Code
	}{
		{"validation", apperr.Validation("test", "bad route"), codes.InvalidArgument},
		{"not found", apperr.NotFound("test", "no route"), codes.NotFound},
		{"unavailable", apperr.Unavailable("test", context.DeadlineExceeded), codes.Unavailable},
		{"invariant", apperr.Invariant("test", "missing hazard"), codes.Internal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conn, _ := startTestServer(t, &fakeAnalyzer{err: tt.err})

			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()

			req := &AnalyzeRouteRequest{
				Coordinates: []models.Coordinate{{Lat: 1, Lon: 1}, {Lat: 1.01, Lon: 1}},
			}
			var out models.SafetyAnalysis
			err := conn.Invoke(ctx, analyzeRouteMethod, req, &out)
			if got := status.Code(err); got != tt.want {
				t.Errorf("expected code %v, got %v (%v)", tt.want, got, err)
			}
		})
	}
}

func TestServer_AnalyzeRouteRejectsBadPreferences(t *testing.T) {
	analyzer := &fakeAnalyzer{}
	conn, _ := startTestServer(t, analyzer)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	req := &AnalyzeRouteRequest{
		Coordinates: []models.Coordinate{{Lat: 1, Lon: 1}, {Lat: 1.01, Lon: 1}},
		Preferences: models.RoutePreferences{TimeOfDay: "dusk"},
	}
	var out models.SafetyAnalysis
	err := conn.Invoke(ctx, analyzeRouteMethod, req, &out)
	if status.Code(err) != codes.InvalidArgument {
		t.Fatalf("expected InvalidArgument, got %v", err)
	}
	if analyzer.callCount != 0 {
		t.Errorf("analyzer should not be called, got %d calls", analyzer.callCount)
	}
}

func TestServer_WatchSnapshots(t *testing.T) {
	conn, b := startTestServer(t, &fakeAnalyzer{})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	desc := &grpc.StreamDesc{StreamName: "WatchSnapshots", ServerStreams: true}
	stream, err := conn.NewStream(ctx, desc, watchSnapshotsMethod)
	if err != nil {
		t.Fatalf("failed to open stream: %v", err)
	}
	if err := stream.SendMsg(&WatchSnapshotsRequest{}); err != nil {
		t.Fatalf("failed to send request: %v", err)
	}
	if err := stream.CloseSend(); err != nil {
		t.Fatalf("failed to close send: %v", err)
	}

	deadline := time.Now().Add(time.Second)
	for b.SubscriberCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("stream never subscribed")
		}
		time.Sleep(5 * time.Millisecond)
	}

	b.Broadcast(&models.SnapshotEvent{Version: 3, HazardCount: 12})

	var ev models.SnapshotEvent
	if err := stream.RecvMsg(&ev); err != nil {
		t.Fatalf("failed to receive event: %v", err)
	}
	if ev.Version != 3 || ev.HazardCount != 12 {
		t.Errorf("unexpected event: %+v", ev)
	}

	cancel()

	deadline = time.Now().Add(time.Second)
	for b.SubscriberCount() != 0 {
		if time.Now().After(deadline) {
			t.Fatal("subscriber not released after client cancel")
		}
		time.Sleep(5 * time.Millisecond)
	}
}
