package grpc

import (
	"context"

	"go.opentelemetry.io/contrib/instrumentation/google.golang.org/grpc/otelgrpc"
	"golang.org/x/time/rate"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/protobuf/types/known/structpb"

	"liyu1981.xyz/hydro-telemetry-service/pkg/iot"
	"liyu1981.xyz/hydro-telemetry-service/pkg/models"
)

const (
	ServiceName           = "hydro.telemetry.v1.TelemetryService"
	SubmitTelemetryMethod = "/" + ServiceName + "/SubmitTelemetry"
)

type TelemetrySubmitter interface {
	Submit(ctx context.Context, payload *models.TelemetryPayload) (string, error)
}

// TelemetryServiceServer takes the same JSON report as POST /sensor/telemetry,
// carried as a google.protobuf.Struct, and answers {"job_id": ...}.
type TelemetryServiceServer interface {
	SubmitTelemetry(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error)
}

var TelemetryService_ServiceDesc = grpc.ServiceDesc{
	ServiceName: ServiceName,
	HandlerType: (*TelemetryServiceServer)(nil),
	Methods: []grpc.MethodDesc{
		{
			MethodName: "SubmitTelemetry",
			Handler:    _TelemetryService_SubmitTelemetry_Handler,
		},
	},
	Streams:  []grpc.StreamDesc{},
	Metadata: "hydro/telemetry/v1/telemetry.proto",
}

func RegisterTelemetryServiceServer(s grpc.ServiceRegistrar, srv TelemetryServiceServer) {
	s.RegisterService(&TelemetryService_ServiceDesc, srv)
}

func _TelemetryService_SubmitTelemetry_Handler(srv any, ctx context.Context, dec func(any) error, interceptor grpc.UnaryServerInterceptor) (any, error) {
	in := new(structpb.Struct)
	if err := dec(in); err != nil {
		return nil, err
	}
	if interceptor == nil {
		return srv.(TelemetryServiceServer).SubmitTelemetry(ctx, in)
	}
	info := &grpc.UnaryServerInfo{
		Server:     srv,
		FullMethod: SubmitTelemetryMethod,
	}
	handler := func(ctx context.Context, req any) (any, error) {
		return srv.(TelemetryServiceServer).SubmitTelemetry(ctx, req.(*structpb.Struct))
	}
	return interceptor(ctx, in, info, handler)
}

type TelemetryServiceClient interface {
	SubmitTelemetry(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error)
}

type telemetryServiceClient struct {
	cc grpc.ClientConnInterface
}

func NewTelemetryServiceClient(cc grpc.ClientConnInterface) TelemetryServiceClient {
	return &telemetryServiceClient{cc: cc}
}

func (c *telemetryServiceClient) SubmitTelemetry(ctx context.Context, in *structpb.Struct, opts ...grpc.CallOption) (*structpb.Struct, error) {
	out := new(structpb.Struct)
	if err := c.cc.Invoke(ctx, SubmitTelemetryMethod, in, out, opts...); err != nil {
		return nil, err
	}
	return out, nil
}

type TelemetryServer struct {
	Ingestor         TelemetrySubmitter
	RateLimiterStore *iot.RateLimiterStore
	Health           *health.Server
}

func (s *TelemetryServer) GetLimiter(deviceUID string) *rate.Limiter {
	if s.RateLimiterStore == nil {
		return nil
	}
	return s.RateLimiterStore.GetLimiter(deviceUID)
}

func (s *TelemetryServer) CheckDeviceLimiter(deviceUID string) bool {
	return s.RateLimiterStore.Allow(deviceUID)
}

// NewServer builds a grpc.Server carrying the telemetry service, the standard
// health service and otel instrumentation. Extra options are appended.
func (s *TelemetryServer) NewServer(opts ...grpc.ServerOption) *grpc.Server {
	serverOpts := append([]grpc.ServerOption{
		grpc.StatsHandler(otelgrpc.NewServerHandler()),
		grpc.UnaryInterceptor(s.CreateRateLimitInterceptor([]string{SubmitTelemetryMethod})),
	}, opts...)
	server := grpc.NewServer(serverOpts...)

	RegisterTelemetryServiceServer(server, s)

	if s.Health == nil {
		s.Health = health.NewServer()
	}
	s.Health.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_SERVING)
	healthpb.RegisterHealthServer(server, s.Health)

	return server
}
