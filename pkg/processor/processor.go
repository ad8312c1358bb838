package processor

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
	"liyu1981.xyz/hydro-telemetry-service/pkg/bus"
	"liyu1981.xyz/hydro-telemetry-service/pkg/common"
	"liyu1981.xyz/hydro-telemetry-service/pkg/iot"
	"liyu1981.xyz/hydro-telemetry-service/pkg/models"
	"liyu1981.xyz/hydro-telemetry-service/pkg/queue"
	"liyu1981.xyz/hydro-telemetry-service/pkg/tracing"
)

// ErrInvalidPayload marks a job that can never succeed. Such jobs are
// rejected instead of retried.
var ErrInvalidPayload = errors.New("invalid telemetry payload")

const (
	DefaultTimeout      = 30 * time.Second
	DefaultPollInterval = 500 * time.Millisecond
)

// JobQueue is the part of the queue a worker needs.
type JobQueue interface {
	Claim(ctx context.Context) (*models.TelemetryJob, error)
	Complete(ctx context.Context, job *models.TelemetryJob) error
	Retry(ctx context.Context, job *models.TelemetryJob, cause error) (models.JobStatus, error)
	Reject(ctx context.Context, job *models.TelemetryJob, cause error) error
}

type Options struct {
	// Timeout bounds one job from decode to publish.
	Timeout      time.Duration
	PollInterval time.Duration
	Tracer       trace.Tracer
}

type Processor struct {
	queue     JobQueue
	state     iot.StateStore
	criteria  iot.ICriteria
	device    iot.IDevice
	publisher bus.Publisher
	tracer    trace.Tracer
	opts      Options
}

func New(jobs JobQueue, core *iot.IOT, publisher bus.Publisher, opts Options) *Processor {
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}
	tracer := opts.Tracer
	if tracer == nil {
		tracer = tracing.Tracer()
	}
	return &Processor{
		queue:     jobs,
		state:     core.State,
		criteria:  core.Criteria,
		device:    core.Device,
		publisher: publisher,
		tracer:    tracer,
		opts:      opts,
	}
}

// Validate applies the business rules the ingestion endpoint leaves to the worker.
func Validate(payload *models.TelemetryPayload) error {
	if payload.DeviceID == "" {
		return fmt.Errorf("%w: device_id is required", ErrInvalidPayload)
	}
	if payload.Timestamp.IsZero() {
		return fmt.Errorf("%w: timestamp is required", ErrInvalidPayload)
	}
	if payload.Value == nil && len(payload.Sensors) == 0 {
		return fmt.Errorf("%w: device %s reports neither value nor sensors", ErrInvalidPayload, payload.DeviceID)
	}
	if payload.Value != nil && !finite(*payload.Value) {
		return fmt.Errorf("%w: value is not a finite number", ErrInvalidPayload)
	}
	if payload.Lat < -90 || payload.Lat > 90 || payload.Long < -180 || payload.Long > 180 {
		return fmt.Errorf("%w: coordinates (%v, %v) out of range", ErrInvalidPayload, payload.Lat, payload.Long)
	}

	seen := make(map[string]struct{}, len(payload.Sensors))
	for idx, reading := range payload.Sensors {
		if reading.SensorID == "" {
			return fmt.Errorf("%w: sensors[%d].sensor_id is required", ErrInvalidPayload, idx)
		}
		if _, dup := seen[reading.SensorID]; dup {
			return fmt.Errorf("%w: sensor %s reported twice", ErrInvalidPayload, reading.SensorID)
		}
		seen[reading.SensorID] = struct{}{}
		if reading.Value == nil || !finite(*reading.Value) {
			return fmt.Errorf("%w: sensor %s has no numeric value", ErrInvalidPayload, reading.SensorID)
		}
	}
	return nil
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

// Process applies one job to the state store and returns the event describing
// the committed state. Device and sensors are written in one transaction.
func (p *Processor) Process(ctx context.Context, job *models.TelemetryJob) (*models.DistributionEvent, error) {
	payload, err := queue.DecodePayload(job)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidPayload, err)
	}
	if err := Validate(payload); err != nil {
		return nil, err
	}

	tags, err := p.deviceTags(ctx, payload)
	if err != nil {
		return nil, err
	}

	// criteria are resolved before the transaction opens so the transaction only writes
	criteria := make([]*models.CriteriaSet, len(payload.Sensors))
	for idx := range payload.Sensors {
		set, err := iot.ResolveCriteriaSet(ctx, p.criteria, &payload.Sensors[idx], tags)
		if err != nil {
			return nil, fmt.Errorf("resolve criteria for sensor %s: %w", payload.Sensors[idx].SensorID, err)
		}
		criteria[idx] = set
	}

	var (
		device  *models.Device
		sensors []models.Sensor
	)
	err = p.state.WithTx(ctx, func(tx iot.StateTx) error {
		device, err = tx.UpsertDevice(ctx, deviceFromPayload(payload))
		if err != nil {
			return err
		}
		sensors = make([]models.Sensor, 0, len(payload.Sensors))
		for idx := range payload.Sensors {
			sensor, err := tx.UpsertSensor(ctx, sensorFromReading(payload, &payload.Sensors[idx], criteria[idx]))
			if err != nil {
				return err
			}
			sensors = append(sensors, *sensor)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("store state for device %s: %w", payload.DeviceID, err)
	}

	return buildEvent(job.ID, device, sensors), nil
}

// deviceTags prefers the tags carried by the report and falls back to the
// ones stored from earlier reports.
func (p *Processor) deviceTags(ctx context.Context, payload *models.TelemetryPayload) ([]int, error) {
	if payload.DeviceTagID != nil || p.device == nil {
		return payload.DeviceTagID, nil
	}
	device, err := p.device.GetDevice(ctx, payload.DeviceID)
	if errors.Is(err, iot.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load device %s: %w", payload.DeviceID, err)
	}
	return device.DeviceTagID, nil
}

func deviceFromPayload(payload *models.TelemetryPayload) *models.Device {
	value := 0.0
	if payload.Value != nil {
		value = *payload.Value
	} else if len(payload.Sensors) > 0 {
		value = *payload.Sensors[0].Value
	}

	return &models.Device{
		DeviceUID:       payload.DeviceID,
		Name:            payload.Name,
		DeviceStatus:    payload.DeviceStatus,
		Value:           value,
		LastSendingData: payload.Timestamp,
		LastBattery:     payload.LastBattery,
		LastSignal:      payload.LastSignal,
		Lat:             payload.Lat,
		Long:            payload.Long,
		CCTVURL:         payload.CCTVURL,
		DeviceTagID:     payload.DeviceTagID,
		CatchmentID:     payload.CatchmentID,
	}
}

func sensorFromReading(payload *models.TelemetryPayload, reading *models.SensorReading, criteria *models.CriteriaSet) *models.Sensor {
	sensor := &models.Sensor{
		DeviceUID:       payload.DeviceID,
		SensorUID:       reading.SensorID,
		Name:            reading.Name,
		Unit:            reading.Unit,
		SensorType:      reading.SensorType,
		Value:           *reading.Value,
		ValueChange:     reading.ValueChange,
		Elevation:       reading.Elevation,
		Debit:           reading.Debit,
		LastSendingData: payload.Timestamp,
	}

	if criteria != nil {
		sensor.CriteriaID = &criteria.ID
	}
	if band, ok := iot.ClassifyWith(criteria, sensor.Value); ok {
		level := band.Level
		sensor.Level = &level
		sensor.Label = band.Label
		sensor.Color = band.Color
		sensor.Icon = band.Icon
	}

	if iot.IsWaterLevel(reading.SensorType) {
		elevation := 0.0
		if reading.Elevation != nil {
			elevation = *reading.Elevation
		}
		absolute := iot.AbsoluteWaterLevel(elevation, sensor.Value, reading.Unit)
		sensor.AbsoluteLevel = &absolute
	}

	return sensor
}

func buildEvent(jobID string, device *models.Device, sensors []models.Sensor) *models.DistributionEvent {
	return &models.DistributionEvent{
		JobID:           jobID,
		ID:              device.ID,
		DeviceUID:       device.DeviceUID,
		DeviceName:      device.Name,
		DeviceStatus:    device.DeviceStatus,
		Lat:             device.Lat,
		Long:            device.Long,
		Value:           device.Value,
		LastSendingData: device.LastSendingData,
		LastBattery:     device.LastBattery,
		LastSignal:      device.LastSignal,
		CCTVURL:         device.CCTVURL,
		DeviceTagID:     device.DeviceTagID,
		CatchmentID:     device.CatchmentID,
		Sensors: common.Mapper(sensors, func(s models.Sensor) models.SensorEvent {
			return models.SensorEvent{
				ID:            s.ID,
				SensorUID:     s.SensorUID,
				Name:          s.Name,
				Unit:          s.Unit,
				SensorType:    s.SensorType,
				Value:         s.Value,
				ValueChange:   s.ValueChange,
				Debit:         s.Debit,
				Elevation:     s.Elevation,
				AbsoluteLevel: s.AbsoluteLevel,
				CriteriaID:    s.CriteriaID,
				Level:         s.Level,
				Label:         s.Label,
				Color:         s.Color,
				Icon:          s.Icon,
			}
		}),
	}
}

// Handle processes a claimed job and settles it with the queue: completed on
// success, rejected when invalid, retried otherwise. A failed publish does not
// undo a committed write, so it is only logged.
func (p *Processor) Handle(ctx context.Context, job *models.TelemetryJob) error {
	logger := common.GetLoggerWith(common.LoggerNameTelemetryProcessor,
		zap.String(common.LoggerFieldJobID, job.ID),
		zap.String(common.LoggerFieldDeviceUID, job.DeviceUID),
		zap.Int(common.LoggerFieldAttempt, job.AttemptCount),
	)

	ctx, span := p.tracer.Start(ctx, "telemetry.process", trace.WithAttributes(
		attribute.String("job.id", job.ID),
		attribute.String("device.uid", job.DeviceUID),
		attribute.Int("job.attempt", job.AttemptCount),
	))
	defer span.End()

	processCtx, cancel := context.WithTimeout(ctx, p.opts.Timeout)
	event, err := p.Process(processCtx, job)
	if err == nil {
		if pubErr := p.publisher.Publish(processCtx, event); pubErr != nil {
			span.AddEvent("publish failed")
			logger.Error("Failed to publish event", zap.Error(pubErr))
		}
	}
	cancel()

	var qErr error
	switch {
	case err == nil:
		logger.Info("Processed job", zap.Uint("id", event.ID), zap.Int("sensors", len(event.Sensors)))
		qErr = p.queue.Complete(ctx, job)

	case errors.Is(err, ErrInvalidPayload):
		span.SetStatus(codes.Error, "rejected")
		span.RecordError(err)
		logger.Warn("Rejected invalid job", zap.Error(err))
		qErr = p.queue.Reject(ctx, job, err)

	default:
		span.SetStatus(codes.Error, "retry")
		span.RecordError(err)
		var status models.JobStatus
		status, qErr = p.queue.Retry(ctx, job, err)
		if qErr == nil {
			logger.Warn("Job failed", zap.Error(err), zap.String("status", string(status)))
		}
	}

	// the job now belongs to whichever consumer reclaimed it
	if errors.Is(qErr, queue.ErrLeaseLost) {
		logger.Warn("Lost job lease before settling", zap.Error(qErr))
		return nil
	}
	return qErr
}

// RunOnce claims and handles at most one job. It reports whether a job was found.
func (p *Processor) RunOnce(ctx context.Context) (bool, error) {
	job, err := p.queue.Claim(ctx)
	if errors.Is(err, queue.ErrNoJob) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("claim job: %w", err)
	}
	// a claimed job is settled even when ctx is cancelled meanwhile
	return true, p.Handle(context.WithoutCancel(ctx), job)
}

// Run starts workers that each take one job at a time until ctx is done.
// It returns once every worker finished its current job.
func (p *Processor) Run(ctx context.Context, workers int) {
	if workers <= 0 {
		workers = 1
	}
	logger := common.GetLoggerWith(common.LoggerNameTelemetryProcessor)
	logger.Info("Starting workers", zap.Int("workers", workers))

	var wg sync.WaitGroup
	for worker := range workers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			p.work(ctx, logger.With(zap.Int("worker", worker)))
		}()
	}
	wg.Wait()
	logger.Info("Workers stopped")
}

func (p *Processor) work(ctx context.Context, logger *zap.Logger) {
	timer := time.NewTimer(0)
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
		}

		found, err := p.RunOnce(ctx)
		if err != nil && ctx.Err() == nil {
			logger.Error("Worker iteration failed", zap.Error(err))
		}

		if found && err == nil {
			timer.Reset(0)
		} else {
			timer.Reset(p.opts.PollInterval)
		}
	}
}
