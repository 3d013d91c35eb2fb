package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

type HTTPConfig struct {
	Host         string
	Port         int
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	IdleTimeout  time.Duration
}

type PostgresConfig struct {
	DSN             string
	MaxOpen         int
	MaxIdle         int
	ConnMaxLifetime time.Duration
	MigrationsPath  string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type SecurityConfig struct {
	SessionTTL      time.Duration
	LinkCodeTTL     time.Duration
	ConnectTokenTTL time.Duration
	StateSecret     string
	StateTTL        time.Duration
	// RedeemRate bounds link-code redemption attempts per client.
	RedeemRate  float64
	RedeemBurst int
}

type DiscordConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
}

type StorageConfig struct {
	Endpoint     string
	AccessKey    string
	SecretKey    string
	BucketPhotos string
	UseSSL       bool
	Region       string
}

type PushConfig struct {
	// IdleTimeout drops a socket that sent no ping within the window.
	IdleTimeout  time.Duration
	WriteTimeout time.Duration
}

type ReminderConfig struct {
	ScanSpec      string
	SweepSpec     string
	Stream        string
	FollowupDelay time.Duration
}

type AppConfig struct {
	Environment      string
	HTTP             HTTPConfig
	Postgres         PostgresConfig
	Redis            RedisConfig
	Security         SecurityConfig
	Discord          DiscordConfig
	Storage          StorageConfig
	Push             PushConfig
	Reminder         ReminderConfig
	AllowCORSOrigins []string
}

func Load() (*AppConfig, error) {
	v := viper.New()
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.AddConfigPath("../config")

	v.SetEnvPrefix("MEDTRACK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("load config file: %w", err)
		}
	}

	var cfg AppConfig
	if err := v.Unmarshal(&cfg, func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "mapstructure"
		dc.DecodeHook = mapstructure.ComposeDecodeHookFunc(
			mapstructure.StringToTimeDurationHookFunc(),
			mapstructure.StringToSliceHookFunc(","),
		)
	}); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "development")

	v.SetDefault("http.host", "0.0.0.0")
	v.SetDefault("http.port", 8080)
	v.SetDefault("http.readtimeout", "10s")
	v.SetDefault("http.writetimeout", "15s")
	v.SetDefault("http.idletimeout", "60s")

	v.SetDefault("postgres.maxopen", 30)
	v.SetDefault("postgres.maxidle", 10)
	v.SetDefault("postgres.connmaxlifetime", "30m")
	v.SetDefault("postgres.migrationspath", "migrations")

	v.SetDefault("redis.addr", "127.0.0.1:6379")
	v.SetDefault("redis.db", 0)

	v.SetDefault("security.sessionttl", "720h") // 30 days
	v.SetDefault("security.linkcodettl", "10m")
	v.SetDefault("security.connecttokenttl", "10m")
	v.SetDefault("security.statettl", "10m")
	v.SetDefault("security.redeemrate", 1.0)
	v.SetDefault("security.redeemburst", 5)

	v.SetDefault("storage.bucketphotos", "medtrack-photos")
	v.SetDefault("storage.usessl", false)
	v.SetDefault("storage.region", "us-east-1")

	v.SetDefault("push.idletimeout", "90s")
	v.SetDefault("push.writetimeout", "10s")

	v.SetDefault("reminder.scanspec", "0 * * * * *") // every minute
	v.SetDefault("reminder.sweepspec", "0 0 3 * * *")
	v.SetDefault("reminder.stream", "reminders:due")
	v.SetDefault("reminder.followupdelay", "30m")
}
