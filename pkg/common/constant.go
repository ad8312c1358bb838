package common

const (
	EnvKeyGoEnv string = "GO_ENV"

	EnvKeyRunIntegrationTests string = "RUN_INTEGRATION_TESTS"

	EnvKeyIOTDbPath string = "IOT_DB_PATH"
	EnvKeyIOTLogDir string = "IOT_LOG_DIR"

	EventTelemetryUpdate string = "telemetry:update"
	EventConnected       string = "connected"

	LoggerNameIOTCore            string = "iot_core"
	LoggerNameRestfulServer      string = "restful_server"
	LoggerNameGrpcServer         string = "grpc_server"
	LoggerNameJobQueue           string = "job_queue"
	LoggerNameTelemetryProcessor string = "telemetry_processor"
	LoggerNameDistributionBus    string = "distribution_bus"
	LoggerNameRealtimeGateway    string = "realtime_gateway"

	LoggerFieldIOTCategory      string = "category"
	LoggerCategoryIOTDevice     string = "device"
	LoggerCategoryIOTSensor     string = "sensor"
	LoggerCategoryIOTCriteria   string = "criteria"
	LoggerFieldJobID            string = "job_id"
	LoggerFieldDeviceUID        string = "device_uid"
	LoggerFieldAttempt          string = "attempt"
	LoggerFieldClientID         string = "client_id"
	LoggerFieldDistributionChan string = "channel"
)
