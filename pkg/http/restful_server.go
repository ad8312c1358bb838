package http

import (
	"context"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
	"liyu1981.xyz/hydro-telemetry-service/pkg/gateway"
	"liyu1981.xyz/hydro-telemetry-service/pkg/iot"
	"liyu1981.xyz/hydro-telemetry-service/pkg/models"
	"liyu1981.xyz/hydro-telemetry-service/pkg/queue"
)

type TelemetrySubmitter interface {
	Submit(ctx context.Context, payload *models.TelemetryPayload) (string, error)
}

// JobAdmin is the operator view of the job queue.
type JobAdmin interface {
	Get(ctx context.Context, jobID string) (*models.TelemetryJob, error)
	List(ctx context.Context, status string, limit int) ([]models.TelemetryJob, error)
	Stats(ctx context.Context) (queue.Stats, error)
	Requeue(ctx context.Context, jobID string) error
}

type Pinger interface {
	Ping(ctx context.Context) error
}

// RestfulServer routes only what it has been given: a gateway-only process
// leaves Ingestor and Jobs nil, an ingest-only process leaves Hub nil.
type RestfulServer struct {
	Server           *gin.Engine
	Iot              *iot.IOT
	Ingestor         TelemetrySubmitter
	Jobs             JobAdmin
	Hub              *gateway.Hub
	GatewayPath      string
	RateLimiterStore *iot.RateLimiterStore
	DB               Pinger
}

func (rs *RestfulServer) GetLimiter(deviceUID string) *rate.Limiter {
	if rs.RateLimiterStore == nil {
		return nil
	}
	return rs.RateLimiterStore.GetLimiter(deviceUID)
}

func (rs *RestfulServer) CheckDeviceLimiter(deviceUID string) bool {
	return rs.RateLimiterStore.Allow(deviceUID)
}

func (rs *RestfulServer) SetLimiter(deviceUID string, deviceRate float64, deviceBurst int) {
	if rs.RateLimiterStore == nil {
		return
	}
	rs.RateLimiterStore.SetLimiter(deviceUID, rate.Limit(deviceRate), deviceBurst)
}

func (rs *RestfulServer) Setup() {
	rs.Server.GET("/healthz", rs.HealthCheck)
	rs.Server.GET("/readyz", rs.ReadyCheck)

	if rs.Ingestor != nil {
		rs.Server.POST("/sensor/telemetry", rs.PostTelemetry)
	}

	if rs.Iot != nil {
		rs.Server.GET("/devices", rs.ListDevices)
		devices := rs.Server.Group("/devices/:device_uid")
		{
			devices.GET("", rs.GetDevice)
			devices.GET("/sensors", rs.ListSensors)
			devices.POST("/limiter", rs.PostLimiter)
			devices.DELETE("/limiter", rs.DeleteLimiter)
		}

		rs.Server.GET("/criteria", rs.ListCriteria)
		rs.Server.PUT("/criteria/:name", rs.PutCriteria)
	}

	if rs.Jobs != nil {
		jobs := rs.Server.Group("/jobs")
		{
			jobs.GET("", rs.ListJobs)
			jobs.GET("/stats", rs.JobStats)
			jobs.GET("/:id", rs.GetJob)
			jobs.POST("/:id/requeue", rs.RequeueJob)
		}
	}

	if rs.Hub != nil {
		path := rs.GatewayPath
		if path == "" {
			path = "/ws"
		}
		rs.Server.GET(path, rs.ServeGateway)
	}
}
