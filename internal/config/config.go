package config

import (
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Env         string `mapstructure:"ENV"`
	Port        string `mapstructure:"PORT"`
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	LogLevel    string `mapstructure:"LOG_LEVEL"`
	CORSAllowed string `mapstructure:"CORS_ALLOWED_ORIGINS"`

	LLMBaseURL   string `mapstructure:"LLM_BASE_URL"`
	LLMModel     string `mapstructure:"LLM_MODEL"`
	LLMAPIKey    string `mapstructure:"LLM_API_KEY"`
	LLMMaxTokens int    `mapstructure:"LLM_MAX_TOKENS"`

	NominatimBaseURL     string        `mapstructure:"NOMINATIM_BASE_URL"`
	NominatimUserAgent   string        `mapstructure:"NOMINATIM_USER_AGENT"`
	NominatimMinInterval time.Duration `mapstructure:"NOMINATIM_MIN_INTERVAL"`
	NominatimCountry     string        `mapstructure:"NOMINATIM_COUNTRY"`

	ProcessInterval  time.Duration `mapstructure:"PROCESS_INTERVAL"`
	ProcessBatchSize int           `mapstructure:"PROCESS_BATCH_SIZE"`
	MaxRetries       int           `mapstructure:"MAX_RETRIES"`
	MinConfidence    float64       `mapstructure:"MIN_CONFIDENCE"`
	JobLease         time.Duration `mapstructure:"JOB_LEASE"`

	ClusterRadiusMeters int `mapstructure:"CLUSTER_RADIUS_M"`

	RequestTimeout time.Duration `mapstructure:"REQUEST_TIMEOUT"`
}

func Load() (Config, error) {
	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	_ = v.ReadInConfig()

	v.SetDefault("ENV", "dev")
	v.SetDefault("PORT", "8080")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("CORS_ALLOWED_ORIGINS", "*")
	v.SetDefault("LLM_MAX_TOKENS", 2048)
	v.SetDefault("NOMINATIM_BASE_URL", "https://nominatim.openstreetmap.org")
	v.SetDefault("NOMINATIM_USER_AGENT", "lapor-kita-backend/1.0 (citizen-report-system)")
	v.SetDefault("NOMINATIM_MIN_INTERVAL", "1s")
	v.SetDefault("NOMINATIM_COUNTRY", "id")
	v.SetDefault("PROCESS_INTERVAL", "30s")
	v.SetDefault("PROCESS_BATCH_SIZE", 10)
	v.SetDefault("MAX_RETRIES", 3)
	v.SetDefault("MIN_CONFIDENCE", 0.7)
	v.SetDefault("JOB_LEASE", "10m")
	v.SetDefault("CLUSTER_RADIUS_M", 500)
	v.SetDefault("REQUEST_TIMEOUT", "30s")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}
