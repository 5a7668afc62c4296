package config

import (
	"log"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	HTTP     HTTPConfig     `mapstructure:"http"`
	Storage  StorageConfig  `mapstructure:"storage"`
	Database DatabaseConfig `mapstructure:"database"`
	Redis    RedisConfig    `mapstructure:"redis"`
	SMTP     SMTPConfig     `mapstructure:"smtp"`
	Sweeper  SweeperConfig  `mapstructure:"sweeper"`
	Auth     AuthConfig     `mapstructure:"auth"`
	Tracing  TracingConfig  `mapstructure:"tracing"`
	Logger   LoggerConfig   `mapstructure:"logger"`
}

type HTTPConfig struct {
	Port    int           `mapstructure:"port"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// StorageConfig selects the ad repository backend. "json" is the default
// flat-file store; "mysql" switches to the relational backend.
type StorageConfig struct {
	Backend     string `mapstructure:"backend"`
	AdsFile     string `mapstructure:"ads_file"`
	HistoryFile string `mapstructure:"history_file"`
	AdminFile   string `mapstructure:"admin_file"`
	UploadsDir  string `mapstructure:"uploads_dir"`
}

type DatabaseConfig struct {
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
}

type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type SMTPConfig struct {
	Host         string `mapstructure:"host"`
	Port         int    `mapstructure:"port"`
	User         string `mapstructure:"user"`
	Password     string `mapstructure:"password"`
	From         string `mapstructure:"from"`
	SupportEmail string `mapstructure:"support_email"`
}

type SweeperConfig struct {
	Enabled          bool `mapstructure:"enabled"`
	Hour             int  `mapstructure:"hour"`
	ArchiveEnabled   bool `mapstructure:"archive_enabled"`
	NotifyEnabled    bool `mapstructure:"notify_enabled"`
	NotifyWindowDays int  `mapstructure:"notify_window_days"`
}

type AuthConfig struct {
	JWTSecret string        `mapstructure:"jwt_secret"`
	TokenTTL  time.Duration `mapstructure:"token_ttl"`
}

type TracingConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	Endpoint    string `mapstructure:"endpoint"`
	ServiceName string `mapstructure:"service_name"`
	Environment string `mapstructure:"environment"`
	Version     string `mapstructure:"version"`
}

type LoggerConfig struct {
	Level string `mapstructure:"level"`
}

func LoadConfig() (*Config, error) {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	viper.AddConfigPath(".")

	viper.SetDefault("storage.backend", "json")
	viper.SetDefault("storage.ads_file", "data/ads.json")
	viper.SetDefault("storage.history_file", "data/ads-history.json")
	viper.SetDefault("storage.admin_file", "data/admin.json")
	viper.SetDefault("storage.uploads_dir", "public/uploads")
	viper.SetDefault("sweeper.enabled", true)
	viper.SetDefault("sweeper.hour", 0)
	viper.SetDefault("sweeper.archive_enabled", true)
	viper.SetDefault("sweeper.notify_window_days", 5)
	viper.SetDefault("auth.token_ttl", "24h")

	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		return nil, err
	}

	var config Config
	if err := viper.Unmarshal(&config); err != nil {
		return nil, err
	}

	if timeoutStr := viper.GetString("http.timeout"); timeoutStr != "" {
		timeout, err := time.ParseDuration(timeoutStr)
		if err != nil {
			return nil, err
		}
		config.HTTP.Timeout = timeout
	}

	if ttlStr := viper.GetString("auth.token_ttl"); ttlStr != "" {
		ttl, err := time.ParseDuration(ttlStr)
		if err != nil {
			return nil, err
		}
		config.Auth.TokenTTL = ttl
	}

	return &config, nil
}

func MustLoadConfig() *Config {
	config, err := LoadConfig()
	if err != nil {
		log.Fatalf("Could not load configuration: %v", err)
	}
	return config
}
