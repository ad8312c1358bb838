package grpc

import (
	"context"
	"encoding/json"
	"errors"

	"go.uber.org/zap"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/encoding/protojson"
	"google.golang.org/protobuf/types/known/structpb"

	"liyu1981.xyz/hydro-telemetry-service/pkg/common"
	"liyu1981.xyz/hydro-telemetry-service/pkg/ingest"
	"liyu1981.xyz/hydro-telemetry-service/pkg/models"
)

// DecodePayload reads a telemetry report out of a Struct using the same JSON
// field names as the HTTP endpoint.
func DecodePayload(req *structpb.Struct) (*models.TelemetryPayload, error) {
	raw, err := protojson.Marshal(req)
	if err != nil {
		return nil, err
	}
	var payload models.TelemetryPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, err
	}
	return &payload, nil
}

func (s *TelemetryServer) SubmitTelemetry(ctx context.Context, req *structpb.Struct) (*structpb.Struct, error) {
	payload, err := DecodePayload(req)
	if err != nil {
		return nil, status.Errorf(codes.InvalidArgument, "validation error: %v", err)
	}

	jobID, err := s.Ingestor.Submit(ctx, payload)
	switch {
	case errors.Is(err, ingest.ErrInvalidPayload):
		return nil, status.Errorf(codes.InvalidArgument, "validation error: %v", err)
	case errors.Is(err, ingest.ErrEnqueue):
		return nil, status.Error(codes.Unavailable, err.Error())
	case err != nil:
		common.GetLoggerWith(common.LoggerNameGrpcServer).
			Error("Failed to submit telemetry", zap.String(common.LoggerFieldDeviceUID, payload.DeviceID), zap.Error(err))
		return nil, status.Error(codes.Internal, err.Error())
	}

	return structpb.NewStruct(map[string]any{"job_id": jobID})
}
