package config

import (
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"sync"

	"github.com/krau/neuroscan/classifier"
	"github.com/pelletier/go-toml/v2"
)

type Config struct {
	Token     string `toml:"token" mapstructure:"token"`
	Host      string `toml:"host" mapstructure:"host"`
	Port      string `toml:"port" mapstructure:"port"`
	Libonnx   string `toml:"libonnx" mapstructure:"libonnx"`
	LogLevel  string `toml:"log_level" mapstructure:"log_level"`
	MaxUpload int64  `toml:"max_upload_mb" mapstructure:"max_upload_mb"`
	MaxPixels int    `toml:"max_pixels" mapstructure:"max_pixels"`

	ModelUrl       string `toml:"model_url" mapstructure:"model_url"`
	ModelDir       string `toml:"model_dir" mapstructure:"model_dir"`
	ModelFileName  string `toml:"model_file_name" mapstructure:"model_file_name"`
	PoolSize       int    `toml:"pool_size" mapstructure:"pool_size"`
	IntraOpThreads int    `toml:"intra_op_threads" mapstructure:"intra_op_threads"`

	// used only when model_url is an azblob:// url
	AzureAccount string `toml:"azure_account" mapstructure:"azure_account"`
	AzureKey     string `toml:"azure_key" mapstructure:"azure_key"`

	ResizeBackend string `toml:"resize_backend" mapstructure:"resize_backend"`
	ResizeFilter  string `toml:"resize_filter" mapstructure:"resize_filter"`
}

const FileName = "config.toml"

func Default() Config {
	return Config{
		Token:         "",
		Host:          "0.0.0.0",
		Port:          "8000",
		LogLevel:      "info",
		MaxUpload:     20,
		MaxPixels:     classifier.DefaultMaxPixels,
		ModelDir:      "models",
		ModelFileName: "model.onnx",
		PoolSize:      1,
		ResizeBackend: "imaging",
		ResizeFilter:  "catmullrom",
	}
}

var (
	cfg      = Default()
	loadOnce sync.Once
)

func C() Config {
	loadOnce.Do(func() {
		c, err := Load(FileName)
		if err != nil {
			panic(err)
		}
		cfg = c
	})
	return cfg
}

// Load reads path over the defaults. A missing file is not an error.
func Load(path string) (Config, error) {
	c := Default()
	if _, err := os.Stat(path); err != nil {
		return c, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return c, fmt.Errorf("failed to read %s: %w", path, err)
	}
	if err := toml.Unmarshal(data, &c); err != nil {
		return c, fmt.Errorf("failed to parse %s: %w", path, err)
	}
	if err := c.Validate(); err != nil {
		return c, err
	}
	return c, nil
}

func (c Config) Validate() error {
	p, err := strconv.Atoi(c.Port)
	if err != nil || p < 1 || p > 65535 {
		return fmt.Errorf("invalid port: %q", c.Port)
	}
	if c.PoolSize < 1 {
		return fmt.Errorf("pool_size must be > 0 (got %d)", c.PoolSize)
	}
	if c.MaxUpload < 1 {
		return fmt.Errorf("max_upload_mb must be > 0 (got %d)", c.MaxUpload)
	}
	if c.MaxPixels < 1 {
		return fmt.Errorf("max_pixels must be > 0 (got %d)", c.MaxPixels)
	}
	if c.ResizeBackend == "" {
		return fmt.Errorf("resize_backend must be set")
	}
	if _, err := classifier.NewResizer(c.ResizeBackend, c.ResizeFilter); err != nil {
		return err
	}
	return nil
}

func (c Config) Addr() string {
	return c.Host + ":" + c.Port
}

func (c Config) SlogLevel() slog.Level {
	switch c.LogLevel {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
