package http

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	z "github.com/Oudwins/zog"
	"github.com/Oudwins/zog/zhttp"

	"liyu1981.xyz/hydro-telemetry-service/pkg/common"
	"liyu1981.xyz/hydro-telemetry-service/pkg/ingest"
	"liyu1981.xyz/hydro-telemetry-service/pkg/iot"
	"liyu1981.xyz/hydro-telemetry-service/pkg/models"
	"liyu1981.xyz/hydro-telemetry-service/pkg/queue"
)

const (
	defaultJobListLimit = 50
	maxJobListLimit     = 500
)

func logger() *zap.Logger {
	return common.GetLoggerWith(common.LoggerNameRestfulServer)
}

func (rs *RestfulServer) PostTelemetry(c *gin.Context) {
	var payload models.TelemetryPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if payload.DeviceID != "" && !rs.CheckDeviceLimiter(payload.DeviceID) {
		c.Status(http.StatusTooManyRequests)
		return
	}

	jobID, err := rs.Ingestor.Submit(c.Request.Context(), &payload)
	switch {
	case errors.Is(err, ingest.ErrInvalidPayload):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	case err != nil:
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{"job_id": jobID})
}

func (rs *RestfulServer) ListDevices(c *gin.Context) {
	devices, err := rs.Iot.Device.ListDevices(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, devices)
}

func (rs *RestfulServer) GetDevice(c *gin.Context) {
	device, err := rs.Iot.Device.GetDevice(c.Request.Context(), c.Param("device_uid"))
	if errors.Is(err, iot.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, device)
}

func (rs *RestfulServer) ListSensors(c *gin.Context) {
	sensors, err := rs.Iot.Device.ListSensors(c.Request.Context(), c.Param("device_uid"))
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, sensors)
}

type LimiterRequest struct {
	Rate  float64 `json:"rate"`
	Burst int     `json:"burst"`
}

var limiterRequestSchema = z.Struct(z.Shape{
	"rate":  z.Float64().GT(0).Required(),
	"burst": z.Int().GT(0).Required(),
})

func (rs *RestfulServer) PostLimiter(c *gin.Context) {
	deviceUID := c.Param("device_uid")

	var req LimiterRequest
	if issues := limiterRequestSchema.Parse(zhttp.Request(c.Request), &req); len(issues) > 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": issues})
		return
	}

	rs.SetLimiter(deviceUID, req.Rate, req.Burst)

	c.Status(http.StatusOK)
}

// DeleteLimiter drops a device's override, the next report uses the defaults again.
func (rs *RestfulServer) DeleteLimiter(c *gin.Context) {
	rs.RateLimiterStore.Forget(c.Param("device_uid"))
	c.Status(http.StatusOK)
}

func (rs *RestfulServer) ListCriteria(c *gin.Context) {
	sets, err := rs.Iot.Criteria.GetCriteriaSets(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, sets)
}

type CriteriaRequest struct {
	TagID      *int          `json:"tag_id"`
	SensorType string        `json:"sensor_type"`
	Bands      []models.Band `json:"bands"`
}

func (rs *RestfulServer) PutCriteria(c *gin.Context) {
	var req CriteriaRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	criteria := &models.CriteriaSet{
		Name:       c.Param("name"),
		TagID:      req.TagID,
		SensorType: req.SensorType,
		Bands:      req.Bands,
	}

	err := rs.Iot.Criteria.UpsertCriteriaSet(c.Request.Context(), criteria)
	if errors.Is(err, iot.ErrInvalidCriteria) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.Status(http.StatusOK)
}

func (rs *RestfulServer) ListJobs(c *gin.Context) {
	limit := defaultJobListLimit
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a positive integer"})
			return
		}
		limit = min(parsed, maxJobListLimit)
	}

	status := c.Query("status")
	if _, err := queue.NormalizeStatus(status); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	jobs, err := rs.Jobs.List(c.Request.Context(), status, limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, jobs)
}

func (rs *RestfulServer) JobStats(c *gin.Context) {
	stats, err := rs.Jobs.Stats(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (rs *RestfulServer) GetJob(c *gin.Context) {
	job, err := rs.Jobs.Get(c.Request.Context(), c.Param("id"))
	if errors.Is(err, queue.ErrJobNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, job)
}

func (rs *RestfulServer) RequeueJob(c *gin.Context) {
	err := rs.Jobs.Requeue(c.Request.Context(), c.Param("id"))
	if errors.Is(err, queue.ErrJobNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.Status(http.StatusOK)
}

func (rs *RestfulServer) ServeGateway(c *gin.Context) {
	// on upgrade failure the upgrader has already answered the request
	if err := rs.Hub.ServeWS(c.Writer, c.Request); err != nil {
		logger().Warn("Gateway connection refused", zap.Error(err))
	}
}

func (rs *RestfulServer) HealthCheck(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (rs *RestfulServer) ReadyCheck(c *gin.Context) {
	if rs.DB != nil {
		if err := rs.DB.Ping(c.Request.Context()); err != nil {
			logger().Warn("Readiness check failed", zap.Error(err))
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}
