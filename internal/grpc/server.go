package grpc

import (
	"context"
	"errors"
	"log/slog"
	"net"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/mr1hm/go-safe-routes/internal/apperr"
	"github.com/mr1hm/go-safe-routes/internal/models"
)

// Analyzer scores a polyline against the current hazard snapshot.
type Analyzer interface {
	AnalyzeSafety(ctx context.Context, route []models.Coordinate, prefs models.Preferences) (*models.SafetyAnalysis, error)
}

type Server struct {
	analyzer    Analyzer
	broadcaster *Broadcaster
	grpcServer  *grpc.Server
}

func NewServer(analyzer Analyzer, broadcaster *Broadcaster) *Server {
	s := &Server{
		analyzer:    analyzer,
		broadcaster: broadcaster,
		grpcServer:  grpc.NewServer(),
	}
	RegisterSafetyServiceServer(s.grpcServer, s)
	return s
}

func (s *Server) Start(addr string) error {
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		return err
	}

	slog.Info("gRPC server listening", "addr", addr)
	return s.Serve(lis)
}

func (s *Server) Serve(lis net.Listener) error {
	return s.grpcServer.Serve(lis)
}

func (s *Server) Stop() {
	s.grpcServer.GracefulStop()
}

func (s *Server) AnalyzeRoute(ctx context.Context, req *AnalyzeRouteRequest) (*models.SafetyAnalysis, error) {
	prefs, err := req.Preferences.Normalize()
	if err != nil {
		return nil, status.Error(codes.InvalidArgument, err.Error())
	}

	analysis, err := s.analyzer.AnalyzeSafety(ctx, req.Coordinates, prefs)
	if err != nil {
		return nil, toStatus(err)
	}
	return analysis, nil
}

func (s *Server) WatchSnapshots(req *WatchSnapshotsRequest, stream grpc.ServerStream) error {
	id, ch := s.broadcaster.Subscribe()
	defer s.broadcaster.Unsubscribe(id)

	slog.Info("client subscribed to snapshot stream", "subscriber_id", id)

	for {
		select {
		case <-stream.Context().Done():
			slog.Info("client disconnected from snapshot stream", "subscriber_id", id)
			return nil
		case e, ok := <-ch:
			if !ok {
				return nil
			}
			if err := stream.SendMsg(e); err != nil {
				slog.Error("failed to send snapshot event", "error", err, "subscriber_id", id)
				return err
			}
		}
	}
}

func toStatus(err error) error {
	switch {
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	}

	switch apperr.KindOf(err) {
	case apperr.KindValidation:
		return status.Error(codes.InvalidArgument, err.Error())
	case apperr.KindNotFound:
		return status.Error(codes.NotFound, err.Error())
	case apperr.KindUpstreamUnavailable:
		return status.Error(codes.Unavailable, err.Error())
	default:
		slog.Error("analyze route failed", "error", err)
		return status.Error(codes.Internal, "internal error")
	}
}
