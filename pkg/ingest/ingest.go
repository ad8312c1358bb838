package ingest

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	z "github.com/Oudwins/zog"
	"go.uber.org/zap"
	"liyu1981.xyz/hydro-telemetry-service/pkg/common"
	"liyu1981.xyz/hydro-telemetry-service/pkg/models"
)

var (
	// ErrInvalidPayload is a structural problem. Such reports are never enqueued.
	ErrInvalidPayload = errors.New("invalid telemetry payload")
	// ErrEnqueue means the report could not be queued and was not accepted.
	ErrEnqueue = errors.New("telemetry queue unavailable")
)

// Numeric fields are left out on purpose: zog treats 0 as missing, and
// numeric checks belong to the processor.
var sensorReadingSchema = z.Struct(z.Shape{
	"SensorID": z.String().Min(1).Required(),
})

var telemetryPayloadSchema = z.Struct(z.Shape{
	"DeviceID":  z.String().Min(1).Required(),
	"Timestamp": z.Time().Required(),
	"Sensors":   z.Slice(sensorReadingSchema),
})

type ValidationError struct {
	Issues z.ZogIssueMap
}

func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Issues))
	for key := range e.Issues {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, key := range keys {
		for _, issue := range e.Issues[key] {
			parts = append(parts, fmt.Sprintf("%s: %s", key, issue.Message))
		}
	}
	return fmt.Sprintf("%s: %s", ErrInvalidPayload, strings.Join(parts, "; "))
}

func (e *ValidationError) Unwrap() error {
	return ErrInvalidPayload
}

// Validate checks the shape of a report: identifiers and timestamp present.
func Validate(payload *models.TelemetryPayload) error {
	if payload == nil {
		return fmt.Errorf("%w: empty body", ErrInvalidPayload)
	}
	if issues := telemetryPayloadSchema.Validate(payload); len(issues) > 0 {
		return &ValidationError{Issues: issues}
	}
	return nil
}

type Enqueuer interface {
	Enqueue(ctx context.Context, payload *models.TelemetryPayload) (string, error)
}

// Ingestor is the synchronous half of the pipeline: it validates and enqueues,
// nothing else touches storage on the request path.
type Ingestor struct {
	queue Enqueuer
}

func New(queue Enqueuer) *Ingestor {
	return &Ingestor{queue: queue}
}

func (i *Ingestor) Submit(ctx context.Context, payload *models.TelemetryPayload) (string, error) {
	if err := Validate(payload); err != nil {
		return "", err
	}

	jobID, err := i.queue.Enqueue(ctx, payload)
	if err != nil {
		common.GetLoggerWith(common.LoggerNameJobQueue).
			Error("Failed to enqueue telemetry", zap.String(common.LoggerFieldDeviceUID, payload.DeviceID), zap.Error(err))
		return "", fmt.Errorf("%w: %v", ErrEnqueue, err)
	}
	return jobID, nil
}
