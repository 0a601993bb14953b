package config

import (
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	JWT       JWTConfig       `mapstructure:"jwt"`
	Game      GameConfig      `mapstructure:"game"`
	Queue     QueueConfig     `mapstructure:"queue"`
	RateLimit RateLimitConfig `mapstructure:"rateLimit"`
}

type ServerConfig struct {
	Port string `mapstructure:"port"`
	Mode string `mapstructure:"mode"` // debug, release
	Role string `mapstructure:"role"` // api, worker, all
}

type DatabaseConfig struct {
	Driver string `mapstructure:"driver"` // postgres, mysql, sqlite
	DSN    string `mapstructure:"dsn"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type JWTConfig struct {
	Secret string `mapstructure:"secret"`
	Expire int    `mapstructure:"expire"` // hours
}

type GameConfig struct {
	TurnTimeout    time.Duration `mapstructure:"turnTimeout"`
	AutoStartDelay time.Duration `mapstructure:"autoStartDelay"`
	StateTTL       time.Duration `mapstructure:"stateTTL"`
}

type QueueConfig struct {
	Workers         int           `mapstructure:"workers"`
	PollInterval    time.Duration `mapstructure:"pollInterval"`
	LockTTL         time.Duration `mapstructure:"lockTTL"`
	MaxAttempts     int           `mapstructure:"maxAttempts"`
	MonitorInterval time.Duration `mapstructure:"monitorInterval"`
	PromoteBatch    int64         `mapstructure:"promoteBatch"`
}

type RateLimitConfig struct {
	ActionLimit  int64         `mapstructure:"actionLimit"`
	ActionWindow time.Duration `mapstructure:"actionWindow"`
	APILimit     int64         `mapstructure:"apiLimit"`
	APIWindow    time.Duration `mapstructure:"apiWindow"`
}

var GlobalConfig *Config

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.mode", "debug")
	v.SetDefault("server.role", "all")
	v.SetDefault("database.driver", "postgres")
	v.SetDefault("redis.addr", "127.0.0.1:6379")
	v.SetDefault("jwt.expire", 24)
	v.SetDefault("game.turnTimeout", 15*time.Second)
	v.SetDefault("game.autoStartDelay", 2*time.Second)
	v.SetDefault("game.stateTTL", 24*time.Hour)
	v.SetDefault("queue.workers", 4)
	v.SetDefault("queue.pollInterval", 50*time.Millisecond)
	v.SetDefault("queue.lockTTL", 30*time.Second)
	v.SetDefault("queue.maxAttempts", 5)
	v.SetDefault("queue.monitorInterval", 30*time.Second)
	v.SetDefault("queue.promoteBatch", 100)
	v.SetDefault("rateLimit.actionLimit", 10)
	v.SetDefault("rateLimit.actionWindow", time.Second)
	v.SetDefault("rateLimit.apiLimit", 60)
	v.SetDefault("rateLimit.apiWindow", time.Minute)
}

// Load reads the yaml file at path; HOLDEM_* environment variables
// override file values (HOLDEM_REDIS_ADDR for redis.addr).
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.SetEnvPrefix("holdem")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		return nil, err
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func LoadConfig(path string) {
	cfg, err := Load(path)
	if err != nil {
		log.Fatalf("Error loading config file, %s", err)
	}
	GlobalConfig = cfg
}
