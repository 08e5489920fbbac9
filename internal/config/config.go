package config

import (
	"time"

	"github.com/spf13/viper"
	"github.com/wb-go/wbf/zlog"
)

// Config holds the main configuration for the application.
type Config struct {
	Server  Server  `mapstructure:"server"`
	Storage Storage `mapstructure:"storage"`
	OpenAI  OpenAI  `mapstructure:"openai"`
	Batch   Batch   `mapstructure:"batch"`
}

// Server holds HTTP server-related configuration.
type Server struct {
	HTTPPort string `mapstructure:"http_port"` // HTTP port to listen on
}

// Storage selects and configures the file storage backend.
type Storage struct {
	Backend string `mapstructure:"backend"` // "local" or "minio"
	Local   Local  `mapstructure:"local"`
	Minio   Minio  `mapstructure:"minio"`
}

// Local holds configuration for the filesystem backend.
type Local struct {
	Dir string `mapstructure:"dir"` // root directory for uploads and outputs
}

// Minio holds configuration for the S3-compatible backend.
type Minio struct {
	Endpoint   string `mapstructure:"endpoint"`
	AccessKey  string `mapstructure:"access_key"`
	SecretKey  string `mapstructure:"secret_key"`
	BucketName string `mapstructure:"bucket_name"`
	UseSSL     bool   `mapstructure:"use_ssl"`
}

// OpenAI holds configuration for the external image-edit API.
type OpenAI struct {
	BaseURL string        `mapstructure:"base_url"`
	APIKey  string        `mapstructure:"api_key"`
	Model   string        `mapstructure:"model"` // default model for submissions
	Timeout time.Duration `mapstructure:"timeout"`
}

// Batch holds submission defaults and limits.
type Batch struct {
	DefaultSize         string `mapstructure:"default_size"`
	DefaultQuality      string `mapstructure:"default_quality"`
	DefaultOutputFormat string `mapstructure:"default_output_format"`
	DefaultConcurrency  int    `mapstructure:"default_concurrency"`
	MaxConcurrency      int    `mapstructure:"max_concurrency"` // cap on parallel outbound calls
}

// mustBindEnv binds critical environment variables to Viper keys.
//
// It panics if any environment variable cannot be bound.
func mustBindEnv() {
	bindings := map[string]string{
		"openai.api_key":  "OPENAI_API_KEY",
		"openai.base_url": "OPENAI_BASE_URL",
		"openai.model":    "IMAGE_MODEL",
	}

	for key, env := range bindings {
		if err := viper.BindEnv(key, env); err != nil {
			zlog.Logger.Panic().Err(err).Msgf("failed to bind env %s", env)
		}
	}
}

// MustLoad loads the configuration from the specified file path.
// It panics if the configuration file cannot be loaded or unmarshaled.
func MustLoad(path string) *Config {
	viper.SetConfigFile(path)
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		zlog.Logger.Panic().Err(err).Msg("failed to read config")
	}

	mustBindEnv()

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		zlog.Logger.Panic().Err(err).Msgf("failed to unmarshal config: %v", err)
	}

	return &cfg
}
