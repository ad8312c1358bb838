package grpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/structpb"
	"liyu1981.xyz/hydro-telemetry-service/pkg/common"
)

func deviceIDOf(req any) string {
	switch r := req.(type) {
	case *structpb.Struct:
		return r.GetFields()["device_id"].GetStringValue()
	case interface{ GetDeviceId() string }:
		return r.GetDeviceId()
	}
	return ""
}

func (s *TelemetryServer) CreateRateLimitInterceptor(targetMethods []string) grpc.UnaryServerInterceptor {
	targetMethodMap := common.Reducer(targetMethods,
		func(m map[string]bool, method string) map[string]bool {
			m[method] = true
			return m
		},
		map[string]bool{},
	)

	return func(
		ctx context.Context,
		req any,
		info *grpc.UnaryServerInfo,
		handler grpc.UnaryHandler,
	) (any, error) {
		if targetMethodMap[info.FullMethod] {
			if deviceUID := deviceIDOf(req); deviceUID != "" && !s.CheckDeviceLimiter(deviceUID) {
				return nil, status.Errorf(codes.ResourceExhausted, "rate limit exceeded")
			}
		}

		return handler(ctx, req)
	}
}
