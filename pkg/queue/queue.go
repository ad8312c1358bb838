package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
	"liyu1981.xyz/hydro-telemetry-service/pkg/common"
	"liyu1981.xyz/hydro-telemetry-service/pkg/db"
	"liyu1981.xyz/hydro-telemetry-service/pkg/models"
)

var (
	// ErrNoJob is returned by Claim when nothing is due.
	ErrNoJob       = errors.New("no job available")
	ErrJobNotFound = errors.New("job not found")
	// ErrLeaseLost is returned when settling a job whose claim has since
	// expired or been taken over by another consumer.
	ErrLeaseLost = errors.New("job lease lost")
)

const (
	DefaultName        = "telemetry"
	DefaultMaxAttempts = 3
	DefaultBackoffBase = time.Second
	DefaultBackoffMax  = time.Minute
	DefaultLease       = 2 * time.Minute

	maxErrorLength = 1024
)

type Options struct {
	Name        string
	MaxAttempts int
	BackoffBase time.Duration
	BackoffMax  time.Duration
	// Lease bounds how long a claimed job may stay processing before another
	// worker may take it over.
	Lease time.Duration
	Now   func() time.Time
}

func (o Options) withDefaults() Options {
	if strings.TrimSpace(o.Name) == "" {
		o.Name = DefaultName
	}
	if o.MaxAttempts <= 0 {
		o.MaxAttempts = DefaultMaxAttempts
	}
	if o.BackoffBase <= 0 {
		o.BackoffBase = DefaultBackoffBase
	}
	if o.BackoffMax <= 0 {
		o.BackoffMax = DefaultBackoffMax
	}
	if o.BackoffMax < o.BackoffBase {
		o.BackoffMax = o.BackoffBase
	}
	if o.Lease <= 0 {
		o.Lease = DefaultLease
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// Queue is a durable FIFO of telemetry jobs kept in the telemetry_jobs table.
// Jobs survive restarts; a job leaves the table only once completed.
type Queue struct {
	conn *gorm.DB
	opts Options
}

func New(database *db.DB, opts Options) *Queue {
	return &Queue{conn: database.Conn, opts: opts.withDefaults()}
}

func (q *Queue) Name() string {
	return q.opts.Name
}

func (q *Queue) now() time.Time {
	return q.opts.Now().UTC()
}

func (q *Queue) logger() *zap.Logger {
	return common.GetLoggerWith(common.LoggerNameJobQueue, zap.String("queue", q.opts.Name))
}

// Backoff is the delay before retrying after the given attempt: the base
// doubled per earlier attempt, capped at the configured maximum.
func (q *Queue) Backoff(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	delay := q.opts.BackoffBase
	for i := 1; i < attempt; i++ {
		delay *= 2
		if delay >= q.opts.BackoffMax {
			return q.opts.BackoffMax
		}
	}
	return min(delay, q.opts.BackoffMax)
}

// Enqueue durably records one report and returns its job id.
func (q *Queue) Enqueue(ctx context.Context, payload *models.TelemetryPayload) (string, error) {
	if payload == nil {
		return "", fmt.Errorf("enqueue: payload is required")
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("encode payload: %w", err)
	}

	now := q.now()
	job := models.TelemetryJob{
		ID:            uuid.NewString(),
		Queue:         q.opts.Name,
		DeviceUID:     payload.DeviceID,
		Payload:       raw,
		Status:        models.JobStatusPending,
		MaxAttempts:   q.opts.MaxAttempts,
		NextAttemptAt: now,
		EnqueuedAt:    now,
	}
	if err := q.conn.WithContext(ctx).Create(&job).Error; err != nil {
		return "", fmt.Errorf("enqueue job: %w", err)
	}

	q.logger().Info("Enqueued job",
		zap.String(common.LoggerFieldJobID, job.ID),
		zap.String(common.LoggerFieldDeviceUID, job.DeviceUID),
	)
	return job.ID, nil
}

// Claim leases the oldest due job to the caller and counts the attempt.
// Pending jobs, failed jobs whose backoff elapsed, and processing jobs whose
// lease expired are all due. A job whose expired lease already used its last
// attempt is moved to dead instead of being handed out again.
func (q *Queue) Claim(ctx context.Context) (*models.TelemetryJob, error) {
	for {
		job, retry, err := q.claimOnce(ctx)
		if err != nil || !retry {
			return job, err
		}
	}
}

func (q *Queue) claimOnce(ctx context.Context) (*models.TelemetryJob, bool, error) {
	now := q.now()
	var claimed *models.TelemetryJob
	retry := false

	err := q.conn.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var job models.TelemetryJob
		err := tx.
			Where("queue = ?", q.opts.Name).
			Where(
				tx.Where("status IN ? AND next_attempt_at <= ?",
					[]models.JobStatus{models.JobStatusPending, models.JobStatusFailed}, now).
					Or("status = ? AND lease_expires_at <= ?", models.JobStatusProcessing, now),
			).
			Order("next_attempt_at asc").
			Order("enqueued_at asc").
			First(&job).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrNoJob
		}
		if err != nil {
			return fmt.Errorf("select due job: %w", err)
		}

		if job.Status == models.JobStatusProcessing && job.AttemptCount >= job.MaxAttempts {
			if err := tx.Model(&models.TelemetryJob{}).
				Where("id = ? AND status = ?", job.ID, models.JobStatusProcessing).
				Updates(map[string]any{
					"status":           models.JobStatusDead,
					"lease_expires_at": nil,
					"last_error":       "lease expired on final attempt",
					"updated_at":       now,
				}).Error; err != nil {
				return fmt.Errorf("dead-letter expired job %s: %w", job.ID, err)
			}
			q.logger().Warn("Dead-lettered job after lease expiry",
				zap.String(common.LoggerFieldJobID, job.ID),
				zap.Int(common.LoggerFieldAttempt, job.AttemptCount),
			)
			retry = true
			return nil
		}

		lease := now.Add(q.opts.Lease)
		result := tx.Model(&models.TelemetryJob{}).
			Where("id = ? AND status = ? AND attempt_count = ?", job.ID, job.Status, job.AttemptCount).
			Updates(map[string]any{
				"status":           models.JobStatusProcessing,
				"attempt_count":    job.AttemptCount + 1,
				"lease_expires_at": lease,
				"updated_at":       now,
			})
		if result.Error != nil {
			return fmt.Errorf("lease job %s: %w", job.ID, result.Error)
		}
		if result.RowsAffected == 0 {
			// another consumer won the row
			retry = true
			return nil
		}

		job.Status = models.JobStatusProcessing
		job.AttemptCount++
		job.LeaseExpiresAt = &lease
		job.UpdatedAt = now
		claimed = &job
		return nil
	})
	if err != nil {
		return nil, false, err
	}
	if claimed != nil {
		q.logger().Debug("Claimed job",
			zap.String(common.LoggerFieldJobID, claimed.ID),
			zap.Int(common.LoggerFieldAttempt, claimed.AttemptCount),
		)
	}
	return claimed, retry, nil
}

// Complete removes a successfully processed job.
func (q *Queue) Complete(ctx context.Context, job *models.TelemetryJob) error {
	result := q.held(ctx, job).Delete(&models.TelemetryJob{})
	if result.Error != nil {
		return fmt.Errorf("complete job %s: %w", job.ID, result.Error)
	}
	if result.RowsAffected == 0 {
		return q.missed(ctx, "complete", job.ID)
	}
	q.logger().Debug("Completed job", zap.String(common.LoggerFieldJobID, job.ID))
	return nil
}

// held scopes a statement to job as claimed: still processing and still on
// the attempt the caller claimed.
func (q *Queue) held(ctx context.Context, job *models.TelemetryJob) *gorm.DB {
	return q.conn.WithContext(ctx).Model(&models.TelemetryJob{}).
		Where("id = ? AND queue = ? AND status = ? AND attempt_count = ?",
			job.ID, q.opts.Name, models.JobStatusProcessing, job.AttemptCount)
}

func (q *Queue) missed(ctx context.Context, op, jobID string) error {
	if _, err := q.Get(ctx, jobID); err != nil {
		return fmt.Errorf("%s: %w", op, err)
	}
	return fmt.Errorf("%s job %s: %w", op, jobID, ErrLeaseLost)
}

// Retry records a failed attempt. The job becomes failed with a backoff delay,
// or dead once its attempts are used up. The resulting status is returned.
func (q *Queue) Retry(ctx context.Context, job *models.TelemetryJob, cause error) (models.JobStatus, error) {
	now := q.now()
	status := models.JobStatusFailed
	nextAttempt := now.Add(q.Backoff(job.AttemptCount))
	if job.AttemptCount >= job.MaxAttempts {
		status = models.JobStatusDead
		nextAttempt = now
	}

	result := q.held(ctx, job).
		Updates(map[string]any{
			"status":           status,
			"next_attempt_at":  nextAttempt,
			"lease_expires_at": nil,
			"last_error":       errorText(cause),
			"updated_at":       now,
		})
	if result.Error != nil {
		return "", fmt.Errorf("retry job %s: %w", job.ID, result.Error)
	}
	if result.RowsAffected == 0 {
		return "", q.missed(ctx, "retry", job.ID)
	}

	fields := []zap.Field{
		zap.String(common.LoggerFieldJobID, job.ID),
		zap.Int(common.LoggerFieldAttempt, job.AttemptCount),
		zap.Error(cause),
	}
	if status == models.JobStatusDead {
		q.logger().Error("Dead-lettered job", fields...)
	} else {
		q.logger().Warn("Scheduled job retry", append(fields, zap.Time("next_attempt_at", nextAttempt))...)
	}
	return status, nil
}

// Reject parks a job that can never succeed. Rejected jobs are kept for
// inspection and are not retried.
func (q *Queue) Reject(ctx context.Context, job *models.TelemetryJob, cause error) error {
	now := q.now()
	result := q.held(ctx, job).
		Updates(map[string]any{
			"status":           models.JobStatusRejected,
			"lease_expires_at": nil,
			"last_error":       errorText(cause),
			"updated_at":       now,
		})
	if result.Error != nil {
		return fmt.Errorf("reject job %s: %w", job.ID, result.Error)
	}
	if result.RowsAffected == 0 {
		return q.missed(ctx, "reject", job.ID)
	}
	q.logger().Warn("Rejected job", zap.String(common.LoggerFieldJobID, job.ID), zap.Error(cause))
	return nil
}

// Requeue gives a dead, rejected or failed job a fresh set of attempts, due now.
func (q *Queue) Requeue(ctx context.Context, jobID string) error {
	now := q.now()
	result := q.conn.WithContext(ctx).Model(&models.TelemetryJob{}).
		Where("id = ? AND queue = ? AND status IN ?", jobID, q.opts.Name,
			[]models.JobStatus{models.JobStatusDead, models.JobStatusRejected, models.JobStatusFailed}).
		Updates(map[string]any{
			"status":           models.JobStatusPending,
			"attempt_count":    0,
			"next_attempt_at":  now,
			"lease_expires_at": nil,
			"updated_at":       now,
		})
	if result.Error != nil {
		return fmt.Errorf("requeue job %s: %w", jobID, result.Error)
	}
	if result.RowsAffected == 0 {
		return fmt.Errorf("requeue job %s: %w", jobID, ErrJobNotFound)
	}
	q.logger().Info("Requeued job", zap.String(common.LoggerFieldJobID, jobID))
	return nil
}

func (q *Queue) Get(ctx context.Context, jobID string) (*models.TelemetryJob, error) {
	var job models.TelemetryJob
	err := q.conn.WithContext(ctx).Where("id = ? AND queue = ?", jobID, q.opts.Name).First(&job).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("job %s: %w", jobID, ErrJobNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &job, nil
}

// List returns up to limit jobs in due order, optionally filtered by status.
func (q *Queue) List(ctx context.Context, status string, limit int) ([]models.TelemetryJob, error) {
	if limit <= 0 {
		return []models.TelemetryJob{}, nil
	}
	normalized, err := NormalizeStatus(status)
	if err != nil {
		return nil, err
	}

	query := q.conn.WithContext(ctx).Where("queue = ?", q.opts.Name)
	if normalized != "" {
		query = query.Where("status = ?", normalized)
	}

	var jobs []models.TelemetryJob
	if err := query.Order("next_attempt_at asc").Order("enqueued_at asc").Limit(limit).Find(&jobs).Error; err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	return jobs, nil
}

// Stats reports queue depth by status.
type Stats struct {
	Pending    int64 `json:"pending"`
	Processing int64 `json:"processing"`
	Failed     int64 `json:"failed"`
	Dead       int64 `json:"dead"`
	Rejected   int64 `json:"rejected"`
}

func (q *Queue) Stats(ctx context.Context) (Stats, error) {
	var rows []struct {
		Status models.JobStatus
		Count  int64
	}
	err := q.conn.WithContext(ctx).Model(&models.TelemetryJob{}).
		Select("status, COUNT(*) AS count").
		Where("queue = ?", q.opts.Name).
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return Stats{}, fmt.Errorf("query job stats: %w", err)
	}

	stats := Stats{}
	for _, row := range rows {
		switch row.Status {
		case models.JobStatusPending:
			stats.Pending = row.Count
		case models.JobStatusProcessing:
			stats.Processing = row.Count
		case models.JobStatusFailed:
			stats.Failed = row.Count
		case models.JobStatusDead:
			stats.Dead = row.Count
		case models.JobStatusRejected:
			stats.Rejected = row.Count
		}
	}
	return stats, nil
}

func NormalizeStatus(status string) (models.JobStatus, error) {
	normalized := models.JobStatus(strings.ToLower(strings.TrimSpace(status)))
	switch normalized {
	case "":
		return "", nil
	case models.JobStatusPending, models.JobStatusProcessing, models.JobStatusFailed,
		models.JobStatusDead, models.JobStatusRejected:
		return normalized, nil
	default:
		return "", fmt.Errorf("invalid job status %q", status)
	}
}

// DecodePayload returns the report carried by job.
func DecodePayload(job *models.TelemetryJob) (*models.TelemetryPayload, error) {
	var payload models.TelemetryPayload
	if err := json.Unmarshal(job.Payload, &payload); err != nil {
		return nil, fmt.Errorf("decode job %s payload: %w", job.ID, err)
	}
	return &payload, nil
}

func errorText(err error) string {
	if err == nil {
		return ""
	}
	text := err.Error()
	if len(text) > maxErrorLength {
		text = text[:maxErrorLength]
	}
	return text
}
