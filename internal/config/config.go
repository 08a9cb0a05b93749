package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	LabelModeBinary     = "binary"
	LabelModeMulticlass = "multiclass"

	DeviceCPU  = "cpu"
	DeviceCUDA = "cuda"
)

type Config struct {
	Model  ModelConfig  `yaml:"model"`
	Data   DataConfig   `yaml:"data"`
	Loader LoaderConfig `yaml:"loader"`
	Output OutputConfig `yaml:"output"`
	Server ServerConfig `yaml:"server"`
	Redis  RedisConfig  `yaml:"redis"`
	Log    LogConfig    `yaml:"log"`
	Seed   int64        `yaml:"seed"`
}

type ModelConfig struct {
	Path         string `yaml:"path"`
	MetadataPath string `yaml:"metadata_path"`
	LibraryPath  string `yaml:"library_path"`
	Device       string `yaml:"device"`
	DeviceID     int    `yaml:"device_id"`
}

type DataConfig struct {
	Root      string  `yaml:"root"`
	TestDir   string  `yaml:"test_dir"`
	Listing   string  `yaml:"listing"`
	ImageSize int     `yaml:"image_size"`
	Augment   bool    `yaml:"augment"`
	FlipProb  float64 `yaml:"flip_prob"`
}

type LoaderConfig struct {
	BatchSize int  `yaml:"batch_size"`
	Workers   int  `yaml:"workers"`
	Shuffle   bool `yaml:"shuffle"`
}

type OutputConfig struct {
	Path      string `yaml:"path"`
	LabelMode string `yaml:"label_mode"`
}

type ServerConfig struct {
	Host           string        `yaml:"host"`
	Port           string        `yaml:"port"`
	ReadTimeout    time.Duration `yaml:"read_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
	MaxUploadBytes int64         `yaml:"max_upload_bytes"`
}

type RedisConfig struct {
	Addr     string        `yaml:"addr"`
	Password string        `yaml:"password"`
	DB       int           `yaml:"db"`
	TTL      time.Duration `yaml:"ttl"`
}

type LogConfig struct {
	Level string `yaml:"level"`
	Path  string `yaml:"path"`
}

func Default() *Config {
	return &Config{
		Model: ModelConfig{
			Path:         "models/model.onnx",
			MetadataPath: "models/model_metadata.json",
			Device:       DeviceCPU,
		},
		Data: DataConfig{
			Root:      "data",
			TestDir:   "data/Test",
			ImageSize: 512,
			FlipProb:  0.5,
		},
		Loader: LoaderConfig{
			BatchSize: 8,
			Workers:   4,
		},
		Output: OutputConfig{
			Path:      "submission.csv",
			LabelMode: LabelModeBinary,
		},
		Server: ServerConfig{
			Host:           "0.0.0.0",
			Port:           "8080",
			ReadTimeout:    30 * time.Second,
			WriteTimeout:   30 * time.Second,
			MaxUploadBytes: 10 << 20,
		},
		Redis: RedisConfig{
			TTL: 24 * time.Hour,
		},
		Log: LogConfig{
			Level: "info",
		},
		Seed: 42,
	}
}

// Load reads the YAML file at path on top of the defaults and then applies
// environment overrides. An empty path skips the file.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read config file failed: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("unmarshal config failed: %w", err)
		}
	}
	cfg.applyEnv()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyEnv() {
	c.Model.Path = getEnv("ALASKA_MODEL_PATH", c.Model.Path)
	c.Model.MetadataPath = getEnv("ALASKA_METADATA_PATH", c.Model.MetadataPath)
	c.Model.LibraryPath = getEnv("ONNXRUNTIME_LIB", c.Model.LibraryPath)
	c.Model.Device = getEnv("ALASKA_DEVICE", c.Model.Device)

	c.Data.Root = getEnv("ALASKA_DATA_ROOT", c.Data.Root)
	c.Data.TestDir = getEnv("ALASKA_TEST_DIR", c.Data.TestDir)
	c.Data.Listing = getEnv("ALASKA_LISTING", c.Data.Listing)
	c.Data.ImageSize = getIntEnv("ALASKA_IMAGE_SIZE", c.Data.ImageSize)
	c.Data.Augment = getBoolEnv("ALASKA_AUGMENT", c.Data.Augment)

	c.Loader.BatchSize = getIntEnv("ALASKA_BATCH_SIZE", c.Loader.BatchSize)
	c.Loader.Workers = getIntEnv("ALASKA_WORKERS", c.Loader.Workers)
	c.Loader.Shuffle = getBoolEnv("ALASKA_SHUFFLE", c.Loader.Shuffle)

	c.Output.Path = getEnv("ALASKA_OUTPUT", c.Output.Path)
	c.Output.LabelMode = getEnv("ALASKA_LABEL_MODE", c.Output.LabelMode)

	c.Server.Port = getEnv("PORT", c.Server.Port)
	c.Server.ReadTimeout = getDuration("READ_TIMEOUT", c.Server.ReadTimeout)
	c.Server.WriteTimeout = getDuration("WRITE_TIMEOUT", c.Server.WriteTimeout)

	c.Redis.Addr = getEnv("REDIS_ADDR", c.Redis.Addr)
	c.Redis.Password = getEnv("REDIS_PASSWORD", c.Redis.Password)
	c.Redis.DB = getIntEnv("REDIS_DB", c.Redis.DB)
	c.Redis.TTL = getDuration("REDIS_TTL", c.Redis.TTL)

	c.Log.Level = getEnv("LOG_LEVEL", c.Log.Level)
	c.Log.Path = getEnv("LOG_PATH", c.Log.Path)

	c.Seed = int64(getIntEnv("ALASKA_SEED", int(c.Seed)))
}

func (c *Config) Validate() error {
	if c.Loader.BatchSize <= 0 {
		return fmt.Errorf("loader.batch_size must be positive, got %d", c.Loader.BatchSize)
	}
	if c.Loader.Workers <= 0 {
		return fmt.Errorf("loader.workers must be positive, got %d", c.Loader.Workers)
	}
	if c.Data.ImageSize < 0 {
		return fmt.Errorf("data.image_size must not be negative, got %d", c.Data.ImageSize)
	}
	if c.Data.FlipProb < 0 || c.Data.FlipProb > 1 {
		return fmt.Errorf("data.flip_prob must be in [0, 1], got %g", c.Data.FlipProb)
	}
	switch c.Output.LabelMode {
	case LabelModeBinary, LabelModeMulticlass:
	default:
		return fmt.Errorf("output.label_mode must be %q or %q, got %q",
			LabelModeBinary, LabelModeMulticlass, c.Output.LabelMode)
	}
	c.Model.Device = strings.ToLower(c.Model.Device)
	switch c.Model.Device {
	case DeviceCPU, DeviceCUDA:
	default:
		return fmt.Errorf("model.device must be %q or %q, got %q", DeviceCPU, DeviceCUDA, c.Model.Device)
	}
	return nil
}

func (c *Config) Addr() string {
	return c.Server.Host + ":" + c.Server.Port
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if intValue, err := strconv.Atoi(value); err == nil {
			return intValue
		}
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if duration, err := time.ParseDuration(value); err == nil {
			return duration
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if boolValue, err := strconv.ParseBool(value); err == nil {
			return boolValue
		}
	}
	return defaultValue
}
