package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"

	"github.com/varunsharma6956/ost-mail-searcher/archive"
)

// DefaultConfigFile is read when --config is not given and the file exists.
const DefaultConfigFile = "ost-mail-searcher.toml"

// Config captures all options required to run the searcher.
type Config struct {
	ConfigFile      string        `toml:"-"`
	Addr            string        `toml:"addr"`
	CORSOrigins     []string      `toml:"cors_origins"`
	Extensions      []string      `toml:"extensions"`
	MaxUploadMB     int64         `toml:"max_upload_mb"`
	UploadDir       string        `toml:"upload_dir"`
	RateLimit       float64       `toml:"rate_limit"`
	RateBurst       int           `toml:"rate_burst"`
	Timezone        string        `toml:"timezone"`
	LogLevel        string        `toml:"log_level"`
	LogDir          string        `toml:"log_dir"`
	ReadTimeout     time.Duration `toml:"read_timeout"`
	WriteTimeout    time.Duration `toml:"write_timeout"`
	ShutdownTimeout time.Duration `toml:"shutdown_timeout"`
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		Addr:            ":8001",
		CORSOrigins:     []string{"*"},
		Extensions:      []string{".ost", ".mbox"},
		MaxUploadMB:     2048,
		RateLimit:       1,
		RateBurst:       5,
		Timezone:        "Local",
		LogLevel:        "info",
		ReadTimeout:     5 * time.Minute,
		WriteTimeout:    5 * time.Minute,
		ShutdownTimeout: 15 * time.Second,
	}
}

// MaxUploadBytes is the upload limit in bytes.
func (c Config) MaxUploadBytes() int64 {
	return c.MaxUploadMB << 20
}

// Location resolves the timezone submit times are rendered in.
func (c Config) Location() (*time.Location, error) {
	switch strings.TrimSpace(c.Timezone) {
	case "", "Local", "local":
		return time.Local, nil
	}
	return time.LoadLocation(c.Timezone)
}

// RegisterFlags attaches all CLI flags to the provided command. They are
// persistent so every sub-command shares them.
func RegisterFlags(cmd *cobra.Command) error {
	def := Defaults()

	flags := cmd.PersistentFlags()
	flags.String("config", "", "Path to a TOML config file (default ./"+DefaultConfigFile+" if present)")
	flags.String("addr", def.Addr, "HTTP listen address (PORT env var sets the port)")
	flags.StringSlice("cors-origins", def.CORSOrigins, "Allowed CORS origins (CORS_ORIGINS env var, comma separated)")
	flags.StringSlice("extensions", def.Extensions, "Accepted archive file extensions")
	flags.Int64("max-upload-mb", def.MaxUploadMB, "Maximum accepted upload size in MiB")
	flags.String("upload-dir", def.UploadDir, "Directory for spooled uploads (default system temp dir)")
	flags.Float64("rate-limit", def.RateLimit, "Ingestion requests per second allowed per client, 0 disables limiting")
	flags.Int("rate-burst", def.RateBurst, "Ingestion request burst allowed per client")
	flags.String("timezone", def.Timezone, "IANA timezone message dates are rendered in")
	flags.String("log-level", def.LogLevel, "Logging level: debug, info, warn, error")
	flags.String("log-dir", def.LogDir, "Directory for log files, empty logs to stdout only")
	flags.Duration("read-timeout", def.ReadTimeout, "HTTP server read timeout")
	flags.Duration("write-timeout", def.WriteTimeout, "HTTP server write timeout")
	flags.Duration("shutdown-timeout", def.ShutdownTimeout, "Grace period for in-flight requests on shutdown")

	return nil
}

// LoadConfig builds the configuration from defaults, the TOML file, the
// environment and the parsed Cobra flags, in increasing order of precedence.
func LoadConfig(cmd *cobra.Command) (Config, error) {
	return load(cmd, os.LookupEnv)
}

func load(cmd *cobra.Command, lookupEnv func(string) (string, bool)) (Config, error) {
	flags := cmd.Flags()
	cfg := Defaults()

	configFile, err := flags.GetString("config")
	if err != nil {
		return Config{}, err
	}
	if configFile == "" {
		if _, err := os.Stat(DefaultConfigFile); err == nil {
			configFile = DefaultConfigFile
		}
	}
	if configFile != "" {
		if _, err := toml.DecodeFile(configFile, &cfg); err != nil {
			return Config{}, fmt.Errorf("load config %s: %w", configFile, err)
		}
		cfg.ConfigFile = configFile
	}

	applyEnv(&cfg, lookupEnv)

	if flags.Changed("addr") {
		if cfg.Addr, err = flags.GetString("addr"); err != nil {
			return Config{}, err
		}
	}
	if flags.Changed("cors-origins") {
		if cfg.CORSOrigins, err = flags.GetStringSlice("cors-origins"); err != nil {
			return Config{}, err
		}
	}
	if flags.Changed("extensions") {
		if cfg.Extensions, err = flags.GetStringSlice("extensions"); err != nil {
			return Config{}, err
		}
	}
	if flags.Changed("max-upload-mb") {
		if cfg.MaxUploadMB, err = flags.GetInt64("max-upload-mb"); err != nil {
			return Config{}, err
		}
	}
	if flags.Changed("upload-dir") {
		if cfg.UploadDir, err = flags.GetString("upload-dir"); err != nil {
			return Config{}, err
		}
	}
	if flags.Changed("rate-limit") {
		if cfg.RateLimit, err = flags.GetFloat64("rate-limit"); err != nil {
			return Config{}, err
		}
	}
	if flags.Changed("rate-burst") {
		if cfg.RateBurst, err = flags.GetInt("rate-burst"); err != nil {
			return Config{}, err
		}
	}
	if flags.Changed("timezone") {
		if cfg.Timezone, err = flags.GetString("timezone"); err != nil {
			return Config{}, err
		}
	}
	if flags.Changed("log-level") {
		if cfg.LogLevel, err = flags.GetString("log-level"); err != nil {
			return Config{}, err
		}
	}
	if flags.Changed("log-dir") {
		if cfg.LogDir, err = flags.GetString("log-dir"); err != nil {
			return Config{}, err
		}
	}
	if flags.Changed("read-timeout") {
		if cfg.ReadTimeout, err = flags.GetDuration("read-timeout"); err != nil {
			return Config{}, err
		}
	}
	if flags.Changed("write-timeout") {
		if cfg.WriteTimeout, err = flags.GetDuration("write-timeout"); err != nil {
			return Config{}, err
		}
	}
	if flags.Changed("shutdown-timeout") {
		if cfg.ShutdownTimeout, err = flags.GetDuration("shutdown-timeout"); err != nil {
			return Config{}, err
		}
	}

	cfg.LogLevel = strings.ToLower(strings.TrimSpace(cfg.LogLevel))
	if cfg.LogLevel == "warning" {
		cfg.LogLevel = "warn"
	}
	cfg.CORSOrigins = cleanList(cfg.CORSOrigins)
	cfg.Extensions = normalizeExtensions(cfg.Extensions)

	if err := validateConfig(cfg); err != nil {
		return Config{}, err
	}

	return cfg, nil
}

func applyEnv(cfg *Config, lookupEnv func(string) (string, bool)) {
	if port, ok := lookupEnv("PORT"); ok && strings.TrimSpace(port) != "" {
		cfg.Addr = ":" + strings.TrimSpace(port)
	}
	if origins, ok := lookupEnv("CORS_ORIGINS"); ok && strings.TrimSpace(origins) != "" {
		cfg.CORSOrigins = strings.Split(origins, ",")
	}
	if dir, ok := lookupEnv("UPLOAD_DIR"); ok {
		cfg.UploadDir = dir
	}
	if level, ok := lookupEnv("LOG_LEVEL"); ok && level != "" {
		cfg.LogLevel = level
	}
}

func validateConfig(cfg Config) error {
	if cfg.Addr == "" {
		return fmt.Errorf("--addr is required")
	}
	if len(cfg.Extensions) == 0 {
		return fmt.Errorf("at least one archive extension is required")
	}
	if len(cfg.CORSOrigins) == 0 {
		return fmt.Errorf("at least one CORS origin is required")
	}
	if cfg.MaxUploadMB <= 0 {
		return fmt.Errorf("--max-upload-mb must be positive")
	}
	if cfg.RateLimit < 0 {
		return fmt.Errorf("--rate-limit must not be negative")
	}
	if cfg.RateLimit > 0 && cfg.RateBurst < 1 {
		return fmt.Errorf("--rate-burst must be at least 1 when rate limiting is enabled")
	}
	if cfg.ReadTimeout <= 0 || cfg.WriteTimeout <= 0 || cfg.ShutdownTimeout <= 0 {
		return fmt.Errorf("timeouts must be positive")
	}
	if _, err := cfg.Location(); err != nil {
		return fmt.Errorf("invalid --timezone %q: %w", cfg.Timezone, err)
	}
	if cfg.UploadDir != "" {
		info, err := os.Stat(cfg.UploadDir)
		if err != nil {
			return fmt.Errorf("invalid --upload-dir: %w", err)
		}
		if !info.IsDir() {
			return errors.New("--upload-dir is not a directory")
		}
	}

	switch cfg.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("invalid --log-level: %s", cfg.LogLevel)
	}

	return nil
}

func cleanList(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}

func normalizeExtensions(values []string) []string {
	out := make([]string, 0, len(values))
	for _, v := range values {
		if ext := archive.NormalizeExt(v); ext != "" {
			out = append(out, ext)
		}
	}
	return out
}
