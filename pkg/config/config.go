package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"gorm.io/gorm"
	"liyu1981.xyz/hydro-telemetry-service/pkg/bus"
	"liyu1981.xyz/hydro-telemetry-service/pkg/db"
	"liyu1981.xyz/hydro-telemetry-service/pkg/queue"
)

const (
	DBTypeFile   = "file"
	DBTypeMemory = "memory"

	BusTypeMemory = "memory"
	BusTypeRedis  = "redis"
)

type QueueConfig struct {
	Name         string        `env:"NAME" envDefault:"telemetry"`
	MaxAttempts  int           `env:"MAX_ATTEMPTS" envDefault:"3"`
	BackoffBase  time.Duration `env:"BACKOFF_BASE" envDefault:"1s"`
	BackoffMax   time.Duration `env:"BACKOFF_MAX" envDefault:"1m"`
	Lease        time.Duration `env:"LEASE" envDefault:"2m"`
	PollInterval time.Duration `env:"POLL_INTERVAL" envDefault:"500ms"`
}

type RedisConfig struct {
	Host     string `env:"HOST" envDefault:"127.0.0.1"`
	Port     int    `env:"PORT" envDefault:"6379"`
	Username string `env:"USERNAME"`
	Password string `env:"PASSWORD"`
	DB       int    `env:"DB" envDefault:"0"`
}

type Config struct {
	GoEnv string `env:"GO_ENV" envDefault:"development"`

	DBType string `env:"IOT_DB_TYPE" envDefault:"file"`
	DBPath string `env:"IOT_DB_PATH" envDefault:"telemetry.db"`

	HTTPHostPort string `env:"IOT_HTTP_HOST_PORT" envDefault:":1080"`
	// empty disables the gRPC server
	GRPCHostPort string `env:"IOT_GRPC_HOST_PORT"`

	DefaultRate  float64 `env:"IOT_DEFAULT_RATE" envDefault:"10"`
	DefaultBurst int     `env:"IOT_DEFAULT_BURST" envDefault:"20"`

	Queue          QueueConfig   `envPrefix:"IOT_QUEUE_"`
	WorkerCount    int           `env:"IOT_WORKER_COUNT" envDefault:"4"`
	ProcessTimeout time.Duration `env:"IOT_PROCESS_TIMEOUT" envDefault:"30s"`

	BusType    string      `env:"IOT_BUS_TYPE" envDefault:"memory"`
	BusChannel string      `env:"IOT_BUS_CHANNEL" envDefault:"telemetry-events"`
	Redis      RedisConfig `envPrefix:"IOT_REDIS_"`

	GatewayPath string `env:"IOT_GATEWAY_PATH" envDefault:"/ws"`

	RunIngest  bool `env:"IOT_RUN_INGEST" envDefault:"true"`
	RunWorkers bool `env:"IOT_RUN_WORKERS" envDefault:"true"`
	RunGateway bool `env:"IOT_RUN_GATEWAY" envDefault:"true"`

	OtelEndpoint string `env:"IOT_OTEL_ENDPOINT"`
	ServiceName  string `env:"IOT_SERVICE_NAME" envDefault:"hydro-telemetry-service"`
}

// Load reads the given dotenv files (".env" when none are named) into the
// process environment and parses it. Missing files are skipped.
func Load(files ...string) (*Config, error) {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, file := range files {
		if err := godotenv.Load(file); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("load %s: %w", file, err)
		}
	}
	return Parse()
}

func Parse() (*Config, error) {
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	cfg.DBType = strings.ToLower(strings.TrimSpace(cfg.DBType))
	cfg.BusType = strings.ToLower(strings.TrimSpace(cfg.BusType))
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	var errs []error

	switch c.DBType {
	case DBTypeFile:
		if strings.TrimSpace(c.DBPath) == "" {
			errs = append(errs, errors.New("IOT_DB_PATH is required when IOT_DB_TYPE=file"))
		}
	case DBTypeMemory:
	default:
		errs = append(errs, fmt.Errorf("unknown IOT_DB_TYPE %q", c.DBType))
	}

	switch c.BusType {
	case BusTypeMemory:
		if c.RunGateway != c.RunWorkers {
			errs = append(errs, errors.New("IOT_BUS_TYPE=memory only reaches gateways in the same process, use redis to split workers and gateway"))
		}
	case BusTypeRedis:
		if c.Redis.Host == "" || c.Redis.Port <= 0 {
			errs = append(errs, errors.New("IOT_REDIS_HOST and IOT_REDIS_PORT are required when IOT_BUS_TYPE=redis"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown IOT_BUS_TYPE %q", c.BusType))
	}

	if c.DefaultRate <= 0 || c.DefaultBurst <= 0 {
		errs = append(errs, errors.New("IOT_DEFAULT_RATE and IOT_DEFAULT_BURST must be positive"))
	}
	if c.Queue.MaxAttempts <= 0 {
		errs = append(errs, errors.New("IOT_QUEUE_MAX_ATTEMPTS must be positive"))
	}
	if c.Queue.BackoffBase <= 0 || c.Queue.BackoffMax < c.Queue.BackoffBase {
		errs = append(errs, errors.New("IOT_QUEUE_BACKOFF_BASE must be positive and not above IOT_QUEUE_BACKOFF_MAX"))
	}
	if c.Queue.Lease <= 0 || c.Queue.PollInterval <= 0 || c.ProcessTimeout <= 0 {
		errs = append(errs, errors.New("IOT_QUEUE_LEASE, IOT_QUEUE_POLL_INTERVAL and IOT_PROCESS_TIMEOUT must be positive"))
	}
	if c.ProcessTimeout >= c.Queue.Lease {
		errs = append(errs, errors.New("IOT_PROCESS_TIMEOUT must be shorter than IOT_QUEUE_LEASE"))
	}
	if c.RunWorkers && c.WorkerCount <= 0 {
		errs = append(errs, errors.New("IOT_WORKER_COUNT must be positive"))
	}
	if c.RunGateway && !strings.HasPrefix(c.GatewayPath, "/") {
		errs = append(errs, errors.New("IOT_GATEWAY_PATH must start with /"))
	}
	if !c.RunIngest && !c.RunWorkers && !c.RunGateway {
		errs = append(errs, errors.New("at least one of IOT_RUN_INGEST, IOT_RUN_WORKERS, IOT_RUN_GATEWAY must be true"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("invalid config: %w", errors.Join(errs...))
	}
	return nil
}

func (c *Config) Dialector() gorm.Dialector {
	if c.DBType == DBTypeMemory {
		return db.UseMemorySqliteDialector()
	}
	return db.UseSqliteFileDialector(c.DBPath)
}

func (c *Config) QueueOptions() queue.Options {
	return queue.Options{
		Name:        c.Queue.Name,
		MaxAttempts: c.Queue.MaxAttempts,
		BackoffBase: c.Queue.BackoffBase,
		BackoffMax:  c.Queue.BackoffMax,
		Lease:       c.Queue.Lease,
	}
}

func (c *Config) RedisOptions() bus.RedisOptions {
	return bus.RedisOptions{
		Host:     c.Redis.Host,
		Port:     c.Redis.Port,
		Username: c.Redis.Username,
		Password: c.Redis.Password,
		DB:       c.Redis.DB,
		Channel:  c.BusChannel,
	}
}
