package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// ConfigPath is the default config file location.
const ConfigPath = "config.yaml"

// FileConfig represents configuration loaded from YAML.
type FileConfig struct {
	Port     string `yaml:"port"`
	LogLevel string `yaml:"logLevel"`

	DatabaseURL   string `yaml:"databaseURL"`
	RedisAddr     string `yaml:"redisAddr"`
	RedisPassword string `yaml:"redisPassword"`

	MinioEndpoint  string `yaml:"minioEndpoint"`
	MinioAccessKey string `yaml:"minioAccessKey"`
	MinioSecretKey string `yaml:"minioSecretKey"`
	MinioBucket    string `yaml:"minioBucket"`
	MinioUseSSL    bool   `yaml:"minioUseSSL"`

	GenerationProvider string `yaml:"generationProvider"`
	GenerationModel    string `yaml:"generationModel"`
	GenerationAPIKey   string `yaml:"generationApiKey"`
	GenerationBaseURL  string `yaml:"generationBaseUrl"`

	ImagingBaseURL string `yaml:"imagingBaseUrl"`
	ImagingAPIKey  string `yaml:"imagingApiKey"`

	JWTSecret string `yaml:"jwtSecret"`
	JWTIssuer string `yaml:"jwtIssuer"`

	FreeLimit             int    `yaml:"freeLimit"`
	AdapterTimeoutSeconds int    `yaml:"adapterTimeoutSeconds"`
	MaxConcurrent         int    `yaml:"maxConcurrent"`
	MaxUploadMB           int    `yaml:"maxUploadMB"`
	PresignTTLMinutes     int    `yaml:"presignTtlMinutes"`
	StagingDir            string `yaml:"stagingDir"`
	OrphanQueueKey        string `yaml:"orphanQueueKey"`
}

// Load reads config from path (defaults to config.yaml).
func Load(path string) (FileConfig, error) {
	cfg := FileConfig{}
	if path == "" {
		path = ConfigPath
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	// Override with environment variables
	if v := os.Getenv("PORT"); v != "" {
		cfg.Port = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		cfg.DatabaseURL = v
	}
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		cfg.RedisAddr = v
	}
	if v := os.Getenv("REDIS_PASSWORD"); v != "" {
		cfg.RedisPassword = v
	}
	if v := os.Getenv("MINIO_ENDPOINT"); v != "" {
		cfg.MinioEndpoint = v
	}
	if v := os.Getenv("MINIO_ACCESS_KEY"); v != "" {
		cfg.MinioAccessKey = v
	}
	if v := os.Getenv("MINIO_SECRET_KEY"); v != "" {
		cfg.MinioSecretKey = v
	}
	if v := os.Getenv("MINIO_BUCKET"); v != "" {
		cfg.MinioBucket = v
	}
	if v := os.Getenv("MINIO_USE_SSL"); v != "" {
		if useSSL, err := strconv.ParseBool(v); err == nil {
			cfg.MinioUseSSL = useSSL
		}
	}
	if v := os.Getenv("CRAFTAI_GENERATION_PROVIDER"); v != "" {
		cfg.GenerationProvider = v
	}
	if v := os.Getenv("CRAFTAI_GENERATION_MODEL"); v != "" {
		cfg.GenerationModel = v
	}
	if v := os.Getenv("CRAFTAI_GENERATION_API_KEY"); v != "" {
		cfg.GenerationAPIKey = v
	}
	if v := os.Getenv("CRAFTAI_GENERATION_BASE_URL"); v != "" {
		cfg.GenerationBaseURL = v
	}
	if v := os.Getenv("CRAFTAI_IMAGING_BASE_URL"); v != "" {
		cfg.ImagingBaseURL = v
	}
	if v := os.Getenv("CRAFTAI_IMAGING_API_KEY"); v != "" {
		cfg.ImagingAPIKey = v
	}
	if v := os.Getenv("CRAFTAI_JWT_SECRET"); v != "" {
		cfg.JWTSecret = v
	}
	if v := os.Getenv("CRAFTAI_JWT_ISSUER"); v != "" {
		cfg.JWTIssuer = v
	}
	if v := os.Getenv("CRAFTAI_FREE_LIMIT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.FreeLimit = n
		}
	}
	if v := os.Getenv("CRAFTAI_ADAPTER_TIMEOUT_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.AdapterTimeoutSeconds = n
		}
	}
	if v := os.Getenv("CRAFTAI_MAX_CONCURRENT"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MaxConcurrent = n
		}
	}
	if v := os.Getenv("CRAFTAI_MAX_UPLOAD_MB"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.MaxUploadMB = n
		}
	}
	if v := os.Getenv("CRAFTAI_PRESIGN_TTL_MINUTES"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.PresignTTLMinutes = n
		}
	}
	if v := os.Getenv("CRAFTAI_STAGING_DIR"); v != "" {
		cfg.StagingDir = v
	}
	if v := os.Getenv("CRAFTAI_ORPHAN_QUEUE_KEY"); v != "" {
		cfg.OrphanQueueKey = v
	}
	if err := validateConfig(cfg); err != nil {
		return cfg, err
	}
	return cfg, nil
}

func validateConfig(cfg FileConfig) error {
	if cfg.Port == "" {
		return errors.New("config: port is required (set in config.yaml)")
	}
	if cfg.DatabaseURL == "" {
		return errors.New("config: databaseURL is required (set in config.yaml or DATABASE_URL)")
	}
	if cfg.RedisAddr == "" {
		return errors.New("config: redisAddr is required (set in config.yaml or REDIS_ADDR)")
	}
	if cfg.MinioEndpoint == "" || cfg.MinioBucket == "" {
		return errors.New("config: minioEndpoint and minioBucket are required (set in config.yaml)")
	}
	switch strings.ToLower(strings.TrimSpace(cfg.GenerationProvider)) {
	case "gemini", "openai":
	default:
		return errors.New(`config: generationProvider must be "gemini" or "openai"`)
	}
	if strings.TrimSpace(cfg.GenerationModel) == "" {
		return errors.New("config: generationModel is required (set in config.yaml)")
	}
	if strings.TrimSpace(cfg.GenerationAPIKey) == "" {
		return errors.New("config: generationApiKey is required (set in config.yaml or CRAFTAI_GENERATION_API_KEY)")
	}
	if strings.ToLower(strings.TrimSpace(cfg.GenerationProvider)) == "openai" && strings.TrimSpace(cfg.GenerationBaseURL) == "" {
		return errors.New("config: generationBaseUrl is required for the openai provider")
	}
	if strings.TrimSpace(cfg.ImagingAPIKey) == "" {
		return errors.New("config: imagingApiKey is required (set in config.yaml or CRAFTAI_IMAGING_API_KEY)")
	}
	if strings.TrimSpace(cfg.JWTSecret) == "" {
		return errors.New("config: jwtSecret is required (set in config.yaml or CRAFTAI_JWT_SECRET)")
	}
	if cfg.FreeLimit < 0 {
		return errors.New("config: freeLimit must be >= 0")
	}
	if cfg.AdapterTimeoutSeconds < 0 {
		return errors.New("config: adapterTimeoutSeconds must be >= 0")
	}
	if cfg.MaxConcurrent < 0 {
		return errors.New("config: maxConcurrent must be >= 0")
	}
	if cfg.MaxUploadMB < 0 {
		return errors.New("config: maxUploadMB must be >= 0")
	}
	if cfg.PresignTTLMinutes < 0 {
		return errors.New("config: presignTtlMinutes must be >= 0")
	}
	return nil
}
