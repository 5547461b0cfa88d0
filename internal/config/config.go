package config

import (
	"os"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server     ServerConfig
	Redis      RedisConfig
	Database   DatabaseConfig
	Fabric     FabricConfig
	Mgmt       MgmtConfig
	Auth       AuthConfig
	Resilience ResilienceConfig
	Mimir      MimirConfig
	Worker     WorkerConfig
	Sweep      SweepConfig
	RateLimit  RateLimitConfig
	Regions    map[string]RegionConfig
}

type ServerConfig struct {
	Port string
	Mode string
}

type RedisConfig struct {
	URL string
}

type DatabaseConfig struct {
	URL            string
	MaxConnections int
	MaxIdleConns   int
	MigrationsPath string
}

type FabricConfig struct {
	ConsumerGroup  string
	ConsumerName   string
	BlockTimeout   time.Duration
	MaxDeliveries  int64
	ClaimMinIdle   time.Duration
	ResultBatch    int64
	HeartbeatBatch int64
}

type MgmtConfig struct {
	URL       string
	AuthToken string
	Timeout   time.Duration
}

type AuthConfig struct {
	JWTSecret string
}

type ResilienceConfig struct {
	Cache RetryPolicy
	Queue RetryPolicy
	RPC   RetryPolicy

	FailureThreshold int
	ResetTimeout     time.Duration
}

type RetryPolicy struct {
	MaxAttempts  int
	InitialDelay time.Duration
	MaxDelay     time.Duration
	Jitter       float64
}

type MimirConfig struct {
	URL           string
	TenantHeader  string
	BatchSize     int
	FlushInterval time.Duration
	AuthToken     string
}

type WorkerConfig struct {
	ID                string
	OwnerEmail        string
	Region            string
	MaxConcurrent     int
	HeartbeatInterval time.Duration
	CheckTimeout      time.Duration
}

type SweepConfig struct {
	Interval time.Duration
}

type RateLimitConfig struct {
	RequestsPerSecond float64
	Burst             int
	TTL               time.Duration
}

type RegionConfig struct {
	Name     string
	Location string
}

func Load() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")
	viper.SetEnvPrefix("NESTWATCH")
	viper.AutomaticEnv()

	// Set defaults
	viper.SetDefault("server.port", "8080")
	viper.SetDefault("server.mode", "release")
	viper.SetDefault("redis.url", "redis://localhost:6379/0")
	viper.SetDefault("database.maxconnections", 25)
	viper.SetDefault("database.maxidleconns", 5)
	viper.SetDefault("database.migrationspath", "file://migrations")
	viper.SetDefault("fabric.consumergroup", "control-plane")
	viper.SetDefault("fabric.consumername", "admin-1")
	viper.SetDefault("fabric.blocktimeout", "5s")
	viper.SetDefault("fabric.maxdeliveries", 3)
	viper.SetDefault("fabric.claimminidle", "1m")
	viper.SetDefault("fabric.resultbatch", 64)
	viper.SetDefault("fabric.heartbeatbatch", 32)
	viper.SetDefault("mgmt.timeout", "10s")
	viper.SetDefault("resilience.failurethreshold", 5)
	viper.SetDefault("resilience.resettimeout", "30s")
	viper.SetDefault("resilience.cache.maxattempts", 2)
	viper.SetDefault("resilience.cache.initialdelay", "50ms")
	viper.SetDefault("resilience.cache.maxdelay", "500ms")
	viper.SetDefault("resilience.cache.jitter", 0.2)
	viper.SetDefault("resilience.queue.maxattempts", 3)
	viper.SetDefault("resilience.queue.initialdelay", "200ms")
	viper.SetDefault("resilience.queue.maxdelay", "5s")
	viper.SetDefault("resilience.queue.jitter", 0.2)
	viper.SetDefault("resilience.rpc.maxattempts", 4)
	viper.SetDefault("resilience.rpc.initialdelay", "500ms")
	viper.SetDefault("resilience.rpc.maxdelay", "15s")
	viper.SetDefault("resilience.rpc.jitter", 0.3)
	viper.SetDefault("mimir.tenantheader", "X-Scope-OrgID")
	viper.SetDefault("mimir.batchsize", 1000)
	viper.SetDefault("mimir.flushinterval", "10s")
	viper.SetDefault("worker.maxconcurrent", 10)
	viper.SetDefault("worker.heartbeatinterval", "30s")
	viper.SetDefault("worker.checktimeout", "30s")
	viper.SetDefault("sweep.interval", "30s")
	viper.SetDefault("ratelimit.requestspersecond", 10)
	viper.SetDefault("ratelimit.burst", 20)
	viper.SetDefault("ratelimit.ttl", "10m")

	var cfg Config
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	// Override with environment variables
	if url := os.Getenv("DATABASE_URL"); url != "" {
		cfg.Database.URL = url
	}
	if url := os.Getenv("REDIS_URL"); url != "" {
		cfg.Redis.URL = url
	}
	if url := os.Getenv("FABRIC_MGMT_URL"); url != "" {
		cfg.Mgmt.URL = url
	}
	if token := os.Getenv("FABRIC_MGMT_TOKEN"); token != "" {
		cfg.Mgmt.AuthToken = token
	}
	if secret := os.Getenv("JWT_SECRET"); secret != "" {
		cfg.Auth.JWTSecret = secret
	}
	if url := os.Getenv("MIMIR_URL"); url != "" {
		cfg.Mimir.URL = url
	}
	if token := os.Getenv("MIMIR_AUTH_TOKEN"); token != "" {
		cfg.Mimir.AuthToken = token
	}

	// Default regions if not configured
	if len(cfg.Regions) == 0 {
		cfg.Regions = map[string]RegionConfig{
			"us-east-1": {Name: "US East", Location: "Virginia"},
			"eu-west-1": {Name: "EU West", Location: "Ireland"},
			"ap-se-1":   {Name: "Asia Pacific", Location: "Singapore"},
		}
	}

	return &cfg, nil
}
