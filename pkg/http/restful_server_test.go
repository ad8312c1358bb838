package http

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"golang.org/x/time/rate"

	"liyu1981.xyz/hydro-telemetry-service/pkg/iot/mocks"
	_ "liyu1981.xyz/hydro-telemetry-service/pkg/testing"

	"liyu1981.xyz/hydro-telemetry-service/pkg/bus"
	"liyu1981.xyz/hydro-telemetry-service/pkg/common"
	"liyu1981.xyz/hydro-telemetry-service/pkg/db"
	"liyu1981.xyz/hydro-telemetry-service/pkg/gateway"
	"liyu1981.xyz/hydro-telemetry-service/pkg/ingest"
	"liyu1981.xyz/hydro-telemetry-service/pkg/iot"
	"liyu1981.xyz/hydro-telemetry-service/pkg/models"
	"liyu1981.xyz/hydro-telemetry-service/pkg/queue"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func setupTestServer(t *testing.T) (*RestfulServer, *queue.Queue) {
	t.Helper()
	common.SetTestLoggerNop()

	database, err := db.Open(db.UseNamedMemorySqliteDialector(uuid.NewString()))
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })

	jobs := queue.New(database, queue.Options{})

	rs := &RestfulServer{
		Server:   gin.New(),
		Iot:      iot.New(database),
		Ingestor: ingest.New(jobs),
		Jobs:     jobs,
		DB:       database,
		// default we use no limiter, if need, later assign it rs.RateLimiterStore = iot.NewRateLimiterStore(...)
	}
	rs.Setup()

	return rs, jobs
}

func do(rs *RestfulServer, method, target string, body any) *httptest.ResponseRecorder {
	var reader *bytes.Reader
	switch b := body.(type) {
	case nil:
		reader = bytes.NewReader(nil)
	case string:
		reader = bytes.NewReader([]byte(b))
	default:
		raw, _ := json.Marshal(b)
		reader = bytes.NewReader(raw)
	}

	req := httptest.NewRequest(method, target, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	rs.Server.ServeHTTP(w, req)
	return w
}

func telemetryBody(deviceUID string) map[string]any {
	return map[string]any{
		"device_id": deviceUID,
		"name":      "Station " + deviceUID,
		"timestamp": "2024-05-01T10:00:00Z",
		"sensors": []map[string]any{
			{"sensor_id": "S1", "name": "Level", "unit": "cm", "value": 120},
		},
	}
}

func seedDevice(t *testing.T, core *iot.IOT, deviceUID string) {
	t.Helper()
	err := core.State.WithTx(context.Background(), func(tx iot.StateTx) error {
		if _, err := tx.UpsertDevice(context.Background(), &models.Device{
			DeviceUID:       deviceUID,
			Name:            "Station",
			LastSendingData: time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
		}); err != nil {
			return err
		}
		for _, sensorUID := range []string{"S2", "S1"} {
			if _, err := tx.UpsertSensor(context.Background(), &models.Sensor{
				DeviceUID:       deviceUID,
				SensorUID:       sensorUID,
				Value:           1.5,
				LastSendingData: time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC),
			}); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)
}

type stubPinger struct{ err error }

func (p stubPinger) Ping(context.Context) error { return p.err }

type failingEnqueuer struct{}

func (failingEnqueuer) Enqueue(context.Context, *models.TelemetryPayload) (string, error) {
	return "", errors.New("database is locked")
}

func TestHealthCheck(t *testing.T) {
	rs, _ := setupTestServer(t)

	w := do(rs, "GET", "/healthz", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"status":"ok"}`, w.Body.String())
}

func TestReadyCheck(t *testing.T) {
	rs, _ := setupTestServer(t)

	w := do(rs, "GET", "/readyz", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	rs.DB = stubPinger{err: errors.New("disk I/O error")}
	w = do(rs, "GET", "/readyz", nil)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
	assert.Contains(t, w.Body.String(), "disk I/O error")
}

func TestPostTelemetry(t *testing.T) {
	rs, jobs := setupTestServer(t)
	deviceUID := uuid.NewString()

	w := do(rs, "POST", "/sensor/telemetry", telemetryBody(deviceUID))
	require.Equal(t, http.StatusAccepted, w.Code)

	var resp struct {
		JobID string `json:"job_id"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.JobID)

	job, err := jobs.Get(context.Background(), resp.JobID)
	require.NoError(t, err)
	assert.Equal(t, deviceUID, job.DeviceUID)
	assert.Equal(t, models.JobStatusPending, job.Status)

	// nothing is written to device state on the request path
	_, err = rs.Iot.Device.GetDevice(context.Background(), deviceUID)
	assert.ErrorIs(t, err, iot.ErrNotFound)
}

func TestPostTelemetry_EdgeCases(t *testing.T) {
	t.Run("malformed json", func(t *testing.T) {
		rs, _ := setupTestServer(t)
		w := do(rs, "POST", "/sensor/telemetry", `{"device_id":`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("missing device id", func(t *testing.T) {
		rs, jobs := setupTestServer(t)
		body := telemetryBody("")
		w := do(rs, "POST", "/sensor/telemetry", body)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), "invalid telemetry payload")

		stats, err := jobs.Stats(context.Background())
		require.NoError(t, err)
		assert.Zero(t, stats.Pending)
	})

	t.Run("missing timestamp", func(t *testing.T) {
		rs, _ := setupTestServer(t)
		body := telemetryBody(uuid.NewString())
		delete(body, "timestamp")
		w := do(rs, "POST", "/sensor/telemetry", body)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	for _, ts := range []string{"2024-05-01T10:00:00", "2024-05-01T10:00:00.000+0700", "2024-05-01T10:00:00.123456+07:00"} {
		t.Run("timestamp "+ts, func(t *testing.T) {
			rs, jobs := setupTestServer(t)
			body := telemetryBody(uuid.NewString())
			body["timestamp"] = ts
			w := do(rs, "POST", "/sensor/telemetry", body)
			require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())

			stats, err := jobs.Stats(context.Background())
			require.NoError(t, err)
			assert.Equal(t, int64(1), stats.Pending)
		})
	}

	t.Run("unparseable timestamp", func(t *testing.T) {
		rs, _ := setupTestServer(t)
		body := telemetryBody(uuid.NewString())
		body["timestamp"] = "01/05/2024 10:00"
		w := do(rs, "POST", "/sensor/telemetry", body)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("queue unavailable", func(t *testing.T) {
		rs, _ := setupTestServer(t)
		rs.Ingestor = ingest.New(failingEnqueuer{})
		w := do(rs, "POST", "/sensor/telemetry", telemetryBody(uuid.NewString()))
		assert.Equal(t, http.StatusInternalServerError, w.Code)
	})

	t.Run("rate limited", func(t *testing.T) {
		rs, _ := setupTestServer(t)
		rs.RateLimiterStore = iot.NewRateLimiterStore(rate.Limit(0.001), 1)
		deviceUID := uuid.NewString()

		assert.Equal(t, http.StatusAccepted, do(rs, "POST", "/sensor/telemetry", telemetryBody(deviceUID)).Code)
		assert.Equal(t, http.StatusTooManyRequests, do(rs, "POST", "/sensor/telemetry", telemetryBody(deviceUID)).Code)
		// another device has its own bucket
		assert.Equal(t, http.StatusAccepted, do(rs, "POST", "/sensor/telemetry", telemetryBody(uuid.NewString())).Code)
	})
}

func TestDevices(t *testing.T) {
	rs, _ := setupTestServer(t)
	deviceUID := uuid.NewString()
	seedDevice(t, rs.Iot, deviceUID)

	w := do(rs, "GET", "/devices", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var devices []models.Device
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &devices))
	require.Len(t, devices, 1)
	assert.Equal(t, deviceUID, devices[0].DeviceUID)

	w = do(rs, "GET", "/devices/"+deviceUID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var device models.Device
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &device))
	require.Len(t, device.Sensors, 2)
	assert.Equal(t, "S1", device.Sensors[0].SensorUID)

	w = do(rs, "GET", "/devices/"+deviceUID+"/sensors", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var sensors []models.Sensor
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &sensors))
	assert.Len(t, sensors, 2)

	w = do(rs, "GET", "/devices/unknown", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestDevices_StoreError(t *testing.T) {
	rs, _ := setupTestServer(t)
	ctrl := gomock.NewController(t)
	mockIDevice := mocks.NewMockIDevice(ctrl)
	rs.Iot.Device = mockIDevice

	mockIDevice.EXPECT().ListDevices(gomock.Any()).Return(nil, errors.New("just causing error")).Times(1)
	mockIDevice.EXPECT().GetDevice(gomock.Any(), gomock.Eq("D1")).Return(nil, errors.New("just causing error")).Times(1)

	assert.Equal(t, http.StatusInternalServerError, do(rs, "GET", "/devices", nil).Code)
	assert.Equal(t, http.StatusInternalServerError, do(rs, "GET", "/devices/D1", nil).Code)
}

func TestCriteria(t *testing.T) {
	rs, _ := setupTestServer(t)

	body := map[string]any{
		"sensor_type": "water_level",
		"bands": []map[string]any{
			{"start": 0, "end": 50, "level": 1, "label": "Normal", "color": "green"},
			{"start": 50, "end": nil, "level": 2, "label": "Alert", "color": "yellow"},
		},
	}
	w := do(rs, "PUT", "/criteria/river-default", body)
	require.Equal(t, http.StatusOK, w.Code)

	w = do(rs, "GET", "/criteria", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var sets []models.CriteriaSet
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &sets))
	require.Len(t, sets, 1)
	assert.Equal(t, "river-default", sets[0].Name)
	require.Len(t, sets[0].Bands, 2)
	assert.Nil(t, sets[0].Bands[1].End)
}

func TestCriteria_EdgeCases(t *testing.T) {
	rs, _ := setupTestServer(t)

	inverted := map[string]any{
		"bands": []map[string]any{{"start": 10, "end": 5, "level": 1}},
	}
	assert.Equal(t, http.StatusBadRequest, do(rs, "PUT", "/criteria/broken", inverted).Code)
	assert.Equal(t, http.StatusBadRequest, do(rs, "PUT", "/criteria/empty", map[string]any{}).Code)
	assert.Equal(t, http.StatusBadRequest, do(rs, "PUT", "/criteria/garbage", `[`).Code)

	ctrl := gomock.NewController(t)
	mockICriteria := mocks.NewMockICriteria(ctrl)
	rs.Iot.Criteria = mockICriteria
	mockICriteria.EXPECT().GetCriteriaSets(gomock.Any()).Return(nil, errors.New("just causing error")).Times(1)
	assert.Equal(t, http.StatusInternalServerError, do(rs, "GET", "/criteria", nil).Code)
}

func TestPostLimiter(t *testing.T) {
	rs, _ := setupTestServer(t)
	rs.RateLimiterStore = iot.NewRateLimiterStore(rate.Limit(100), 100)

	w := do(rs, "POST", "/devices/D1/limiter", map[string]any{"rate": 0.5, "burst": 1})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, rs.GetLimiter("D1").Burst())

	assert.True(t, rs.CheckDeviceLimiter("D1"))
	assert.False(t, rs.CheckDeviceLimiter("D1"))

	w = do(rs, "POST", "/devices/D1/limiter", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestDeleteLimiter(t *testing.T) {
	rs, _ := setupTestServer(t)
	rs.RateLimiterStore = iot.NewRateLimiterStore(rate.Limit(100), 100)

	require.Equal(t, http.StatusOK, do(rs, "POST", "/devices/D1/limiter", map[string]any{"rate": 0.001, "burst": 1}).Code)
	assert.True(t, rs.CheckDeviceLimiter("D1"))
	assert.False(t, rs.CheckDeviceLimiter("D1"))

	require.Equal(t, http.StatusOK, do(rs, "DELETE", "/devices/D1/limiter", nil).Code)
	assert.Equal(t, 100, rs.GetLimiter("D1").Burst(), "back on the defaults")
	assert.True(t, rs.CheckDeviceLimiter("D1"))

	// unknown devices and a server without limiting are both fine
	assert.Equal(t, http.StatusOK, do(rs, "DELETE", "/devices/nobody/limiter", nil).Code)
	rs.RateLimiterStore = nil
	assert.Equal(t, http.StatusOK, do(rs, "DELETE", "/devices/D1/limiter", nil).Code)
}

func TestJobs(t *testing.T) {
	rs, jobs := setupTestServer(t)
	ctx := context.Background()

	first := do(rs, "POST", "/sensor/telemetry", telemetryBody("D1"))
	require.Equal(t, http.StatusAccepted, first.Code)
	second := do(rs, "POST", "/sensor/telemetry", telemetryBody("D2"))
	require.Equal(t, http.StatusAccepted, second.Code)

	claimed, err := jobs.Claim(ctx)
	require.NoError(t, err)
	require.NoError(t, jobs.Reject(ctx, claimed, errors.New("lat out of range")))

	w := do(rs, "GET", "/jobs/stats", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"pending":1,"processing":0,"failed":0,"dead":0,"rejected":1}`, w.Body.String())

	w = do(rs, "GET", "/jobs?status=rejected", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var listed []models.TelemetryJob
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &listed))
	require.Len(t, listed, 1)
	assert.Equal(t, claimed.ID, listed[0].ID)
	assert.Equal(t, "lat out of range", listed[0].LastError)

	w = do(rs, "GET", "/jobs?limit=1", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &listed))
	assert.Len(t, listed, 1)

	w = do(rs, "GET", "/jobs/"+claimed.ID, nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = do(rs, "POST", "/jobs/"+claimed.ID+"/requeue", nil)
	require.Equal(t, http.StatusOK, w.Code)
	job, err := jobs.Get(ctx, claimed.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobStatusPending, job.Status)
	assert.Zero(t, job.AttemptCount)
}

func TestJobs_EdgeCases(t *testing.T) {
	rs, _ := setupTestServer(t)

	assert.Equal(t, http.StatusBadRequest, do(rs, "GET", "/jobs?status=lost", nil).Code)
	assert.Equal(t, http.StatusBadRequest, do(rs, "GET", "/jobs?limit=abc", nil).Code)
	assert.Equal(t, http.StatusBadRequest, do(rs, "GET", "/jobs?limit=-1", nil).Code)
	assert.Equal(t, http.StatusNotFound, do(rs, "GET", "/jobs/"+uuid.NewString(), nil).Code)
	assert.Equal(t, http.StatusNotFound, do(rs, "POST", "/jobs/"+uuid.NewString()+"/requeue", nil).Code)
}

func TestRoutesFollowRoles(t *testing.T) {
	common.SetTestLoggerNop()
	rs := &RestfulServer{Server: gin.New()}
	rs.Setup()

	assert.Equal(t, http.StatusOK, do(rs, "GET", "/healthz", nil).Code)
	assert.Equal(t, http.StatusNotFound, do(rs, "POST", "/sensor/telemetry", telemetryBody("D1")).Code)
	assert.Equal(t, http.StatusNotFound, do(rs, "GET", "/jobs", nil).Code)
	assert.Equal(t, http.StatusNotFound, do(rs, "GET", "/ws", nil).Code)
}

func TestServeGateway(t *testing.T) {
	common.SetTestLoggerNop()

	hub := gateway.NewHub()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)

	rs := &RestfulServer{Server: gin.New(), Hub: hub, GatewayPath: "/realtime"}
	rs.Setup()

	srv := httptest.NewServer(rs.Server)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/realtime"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	_ = conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)

	msg, err := bus.Decode(data)
	require.NoError(t, err)
	assert.Equal(t, common.EventConnected, msg.Type)

	assert.Eventually(t, func() bool { return hub.ClientCount() == 1 }, 2*time.Second, 10*time.Millisecond)

	// a plain GET is not an upgrade and is refused
	resp, err := http.Get(srv.URL + "/realtime")
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}
