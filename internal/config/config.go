// Package config provides functionality for loading and accessing engine
// configuration.
package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the engine's full configuration surface.
type Config struct {
	Environment string `mapstructure:"environment"`

	Server struct {
		Port         int           `mapstructure:"port"`
		Host         string        `mapstructure:"host"`
		ReadTimeout  time.Duration `mapstructure:"read_timeout"`
		WriteTimeout time.Duration `mapstructure:"write_timeout"`
		IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
	} `mapstructure:"server"`

	Database struct {
		MongoDB struct {
			URI         string        `mapstructure:"uri"`
			Database    string        `mapstructure:"database"`
			Timeout     time.Duration `mapstructure:"timeout"`
			MaxPoolSize uint64        `mapstructure:"max_pool_size"`
			MinPoolSize uint64        `mapstructure:"min_pool_size"`
			MaxIdleTime time.Duration `mapstructure:"max_idle_time"`
		} `mapstructure:"mongodb"`

		Redis struct {
			Addresses    []string      `mapstructure:"addresses"`
			Username     string        `mapstructure:"username"`
			Password     string        `mapstructure:"password"`
			Database     int           `mapstructure:"database"`
			MaxRetries   int           `mapstructure:"max_retries"`
			PoolSize     int           `mapstructure:"pool_size"`
			MinIdleConns int           `mapstructure:"min_idle_conns"`
			DialTimeout  time.Duration `mapstructure:"dial_timeout"`
			ReadTimeout  time.Duration `mapstructure:"read_timeout"`
			WriteTimeout time.Duration `mapstructure:"write_timeout"`
			IdleTimeout  time.Duration `mapstructure:"idle_timeout"`
		} `mapstructure:"redis"`
	} `mapstructure:"database"`

	Auth struct {
		// JWTSecret validates bearer tokens the transport surfaces as an
		// authenticated caller id. Token issuance is out of scope.
		JWTSecret string `mapstructure:"jwt_secret"`
	} `mapstructure:"auth"`

	// Room holds engine-wide room lifecycle tunables.
	Room struct {
		// HostGraceWindow is how long a room stays AWAITING_HOST after the
		// host disconnects before the engine marks it INACTIVE.
		HostGraceWindow time.Duration `mapstructure:"host_grace_window"`
		// OutboundQueueCapacity is the bounded per-subscriber queue size
		// the Stream Hub uses for backpressure.
		OutboundQueueCapacity int `mapstructure:"outbound_queue_capacity"`
		// ReadyStatusFreshness bounds how recent a MemberStatus.ready=true
		// report must be to count toward ready_member_count.
		ReadyStatusFreshness time.Duration `mapstructure:"ready_status_freshness"`
		// ParticipantsCanQueueAdd opens queue.add to any member instead of
		// the host-only default.
		ParticipantsCanQueueAdd bool `mapstructure:"participants_can_queue_add"`
	} `mapstructure:"room"`

	WebSocket struct {
		MaxMessageSize   int64         `mapstructure:"max_message_size"`
		WriteWait        time.Duration `mapstructure:"write_wait"`
		PongWait         time.Duration `mapstructure:"pong_wait"`
		PingPeriod       time.Duration `mapstructure:"ping_period"`
		KeepaliveTimeout time.Duration `mapstructure:"keepalive_timeout"`
	} `mapstructure:"websocket"`

	Shutdown struct {
		DrainGrace time.Duration `mapstructure:"drain_grace"`
	} `mapstructure:"shutdown"`

	Logging struct {
		Level            string   `mapstructure:"level"`
		Format           string   `mapstructure:"format"`
		OutputPaths      []string `mapstructure:"output_paths"`
		ErrorOutputPaths []string `mapstructure:"error_output_paths"`
	} `mapstructure:"logging"`
}

// LoadConfig loads the configuration from file and environment variables.
// It looks for a configuration file in the following locations:
// 1. Path specified in the CONFIG_FILE environment variable
// 2. ./configs directory
// 3. ../configs directory
// 4. /etc/syncengine directory
func LoadConfig() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("app")
	v.SetConfigType("yaml")

	if configFile := os.Getenv("CONFIG_FILE"); configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.AddConfigPath("./configs")
		v.AddConfigPath("../configs")
		v.AddConfigPath("/etc/syncengine")
	}

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	env := os.Getenv("APP_ENV")
	if env == "" {
		env = "development"
	}

	v.SetConfigName(fmt.Sprintf("app.%s", env))
	if err := v.MergeInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to merge environment config file: %w", err)
		}
	}

	v.SetEnvPrefix("APP")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}
	config.Environment = env

	if err := validateConfig(&config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &config, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.read_timeout", "15s")
	v.SetDefault("server.write_timeout", "15s")
	v.SetDefault("server.idle_timeout", "60s")

	v.SetDefault("database.mongodb.uri", "mongodb://localhost:27017")
	v.SetDefault("database.mongodb.database", "syncengine")
	v.SetDefault("database.mongodb.timeout", "10s")
	v.SetDefault("database.mongodb.max_pool_size", 100)
	v.SetDefault("database.mongodb.min_pool_size", 10)
	v.SetDefault("database.mongodb.max_idle_time", "60s")

	v.SetDefault("database.redis.addresses", []string{"localhost:6379"})
	v.SetDefault("database.redis.database", 0)
	v.SetDefault("database.redis.max_retries", 3)
	v.SetDefault("database.redis.pool_size", 100)
	v.SetDefault("database.redis.min_idle_conns", 10)
	v.SetDefault("database.redis.dial_timeout", "5s")
	v.SetDefault("database.redis.read_timeout", "3s")
	v.SetDefault("database.redis.write_timeout", "3s")
	v.SetDefault("database.redis.idle_timeout", "300s")

	v.SetDefault("room.host_grace_window", "180s")
	v.SetDefault("room.outbound_queue_capacity", 64)
	v.SetDefault("room.ready_status_freshness", "3s")
	v.SetDefault("room.participants_can_queue_add", false)

	v.SetDefault("websocket.max_message_size", 524288)
	v.SetDefault("websocket.write_wait", "10s")
	v.SetDefault("websocket.pong_wait", "60s")
	v.SetDefault("websocket.ping_period", "30s")
	v.SetDefault("websocket.keepalive_timeout", "10s")

	v.SetDefault("shutdown.drain_grace", "5s")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.output_paths", []string{"stdout"})
	v.SetDefault("logging.error_output_paths", []string{"stderr"})
}

func validateConfig(config *Config) error {
	if config.Server.Port <= 0 || config.Server.Port > 65535 {
		return errors.New("server port must be between 1 and 65535")
	}
	if config.Auth.JWTSecret == "" {
		return errors.New("JWT secret must be set")
	}
	if config.Database.MongoDB.URI == "" {
		return errors.New("MongoDB URI must be set")
	}
	if len(config.Database.Redis.Addresses) == 0 {
		return errors.New("at least one Redis address must be provided")
	}
	if config.Room.HostGraceWindow <= 0 {
		return errors.New("room.host_grace_window must be positive")
	}
	if config.Room.OutboundQueueCapacity <= 0 {
		return errors.New("room.outbound_queue_capacity must be positive")
	}
	return nil
}
