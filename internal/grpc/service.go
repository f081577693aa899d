package grpc

import (
	"context"

	"google.golang.org/grpc"

	"github.com/mr1hm/go-safe-routes/internal/models"
)

const (
	serviceName          = "saferoute.v1.SafetyService"
	analyzeRouteMethod   = "/" + serviceName + "/AnalyzeRoute"
	watchSnapshotsMethod = "/" + serviceName + "/WatchSnapshots"
)

type AnalyzeRouteRequest struct {
	Coordinates []models.Coordinate     `json:"coordinates"`
	Preferences models.RoutePreferences `json:"preferences"`
}

type WatchSnapshotsRequest struct{}

// SafetyServiceServer is the server API for saferoute.v1.SafetyService.
type SafetyServiceServer interface {
	AnalyzeRoute(ctx context.Context, req *AnalyzeRouteRequest) (*models.SafetyAnalysis, error)
	WatchSnapshots(req *WatchSnapshotsRequest, stream grpc.ServerStream) error
}

var safetyServiceDesc = grpc.ServiceDesc{
	ServiceName: serviceName,
	HandlerType: (*SafetyServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "AnalyzeRoute",
			Handler:    analyzeRouteHandler,
		},
	},
	Streams: []grpc.StreamDesc{
		{
			StreamName:    "WatchSnapshots",
			Handler:       watchSnapshotsHandler,
			ServerStreams: true,
		},
	},
	Metadata: "saferoute/v1/safety",
}

func RegisterSafetyServiceServer(s grpc.ServiceRegistrar, srv SafetyServiceServer) {
	s.RegisterService(&safetyServiceDesc, srv)
}

func analyzeRouteHandler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(AnalyzeRouteRequest)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(SafetyServiceServer).AnalyzeRoute(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: analyzeRouteMethod,
	}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(SafetyServiceServer).AnalyzeRoute(ctx, req.(*AnalyzeRouteRequest))
	}
	return interceptor(ctx, in, info, handler)
}

func watchSnapshotsHandler(srv any, stream grpc.ServerStream) error {
	in := new(WatchSnapshotsRequest)
	if err := stream.RecvMsg(in); err != nil {
		return err
	}
	return srv.(SafetyServiceServer).WatchSnapshots(in, stream)
}
