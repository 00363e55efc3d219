// Package config loads peerlink endpoint settings from YAML with
// environment overrides and turns them into endpoint options.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/Zereker/peerlink"
	"github.com/Zereker/peerlink/frame"
	"github.com/Zereker/peerlink/provider"
)

// Config is the root configuration of a peerlink endpoint.
type Config struct {
	Listen          string        `yaml:"listen"`
	Buffer          BufferConfig  `yaml:"buffer"`
	Query           QueryConfig   `yaml:"query"`
	Codec           CodecConfig   `yaml:"codec"`
	Crypto          CryptoConfig  `yaml:"crypto"`
	SendBuffer      int           `yaml:"send_buffer"`
	Heartbeat       time.Duration `yaml:"heartbeat"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	UserParam       string        `yaml:"user_param"`
	Logger          LoggerConfig  `yaml:"logger"`
}

// BufferConfig holds receive buffer settings.
type BufferConfig struct {
	Initial  int     `yaml:"initial"`
	Max      int     `yaml:"max"`
	Growth   float64 `yaml:"growth"`
	MaxFrame int     `yaml:"max_frame"`
}

// QueryConfig holds outbound query settings.
type QueryConfig struct {
	Timeout Timeout `yaml:"timeout"`
}

// CodecConfig selects the serializer and compressor by name.
type CodecConfig struct {
	Serializer  string `yaml:"serializer"`
	Compression string `yaml:"compression"`
}

// CryptoConfig selects the frame cryptographer.
type CryptoConfig struct {
	Algorithm  string `yaml:"algorithm"`
	Passphrase string `yaml:"passphrase"`
	Salt       string `yaml:"salt"`
}

// LoggerConfig holds logging settings.
type LoggerConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Timeout is a duration that also accepts "infinite".
type Timeout time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (t *Timeout) UnmarshalYAML(n *yaml.Node) error {
	var s string
	if err := n.Decode(&s); err != nil {
		return err
	}
	d, err := ParseTimeout(s)
	if err != nil {
		return fmt.Errorf("line %d: %w", n.Line, err)
	}
	*t = Timeout(d)
	return nil
}

// MarshalYAML implements yaml.Marshaler.
func (t Timeout) MarshalYAML() (any, error) {
	if time.Duration(t) == peerlink.Infinite {
		return "infinite", nil
	}
	return time.Duration(t).String(), nil
}

// ParseTimeout parses a Go duration or "infinite".
func ParseTimeout(s string) (time.Duration, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return 0, nil
	case "infinite", "none":
		return peerlink.Infinite, nil
	}
	d, err := time.ParseDuration(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("invalid timeout %q: %w", s, err)
	}
	return d, nil
}

// Defaults returns a Config with sensible defaults.
func Defaults() *Config {
	return &Config{
		Listen: "127.0.0.1:7420",
		Buffer: BufferConfig{
			Initial:  frame.DefaultInitialSize,
			Max:      frame.DefaultMaxSize,
			Growth:   frame.DefaultGrowthRate,
			MaxFrame: frame.DefaultMaxFrameSize,
		},
		Query: QueryConfig{
			Timeout: Timeout(30 * time.Second),
		},
		Codec: CodecConfig{
			Serializer:  "json",
			Compression: "deflate",
		},
		Crypto: CryptoConfig{
			Algorithm: "none",
		},
		SendBuffer: 16,
		Logger: LoggerConfig{
			Level:  "info",
			Format: "text",
			Output: "stderr",
		},
	}
}

// Load reads a YAML config file and applies env var overrides. A missing
// file yields the defaults.
func Load(path string) (*Config, error) {
	cfg := Defaults()

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	} else if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	ApplyEnvOverrides(cfg)

	if err := Validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnvOverrides maps PEERLINK_* env vars to config fields.
func ApplyEnvOverrides(cfg *Config) {
	if v := os.Getenv("PEERLINK_LISTEN"); v != "" {
		cfg.Listen = v
	}
	if v := os.Getenv("PEERLINK_SERIALIZER"); v != "" {
		cfg.Codec.Serializer = v
	}
	if v := os.Getenv("PEERLINK_COMPRESSION"); v != "" {
		cfg.Codec.Compression = v
	}
	if v := os.Getenv("PEERLINK_CRYPTO_ALGORITHM"); v != "" {
		cfg.Crypto.Algorithm = v
	}
	if v := os.Getenv("PEERLINK_CRYPTO_PASSPHRASE"); v != "" {
		cfg.Crypto.Passphrase = v
	}
	if v := os.Getenv("PEERLINK_CRYPTO_SALT"); v != "" {
		cfg.Crypto.Salt = v
	}
	if v := os.Getenv("PEERLINK_QUERY_TIMEOUT"); v != "" {
		if d, err := ParseTimeout(v); err == nil {
			cfg.Query.Timeout = Timeout(d)
		}
	}
	if v := os.Getenv("PEERLINK_HEARTBEAT"); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			cfg.Heartbeat = d
		}
	}
	if v := os.Getenv("PEERLINK_MAX_FRAME"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			cfg.Buffer.MaxFrame = n
		}
	}
	if v := os.Getenv("PEERLINK_LOGGER_LEVEL"); v != "" {
		cfg.Logger.Level = v
	}
	if v := os.Getenv("PEERLINK_LOGGER_FORMAT"); v != "" {
		cfg.Logger.Format = v
	}
	if v := os.Getenv("PEERLINK_LOGGER_OUTPUT"); v != "" {
		cfg.Logger.Output = v
	}
}

// Options converts the configuration into endpoint options. The logger is
// not included; build it with the logger package and pass LoggerOption.
func (c *Config) Options() ([]peerlink.Option, error) {
	s, err := provider.SerializerByName(c.Codec.Serializer)
	if err != nil {
		return nil, fmt.Errorf("codec.serializer: %w", err)
	}

	comp, err := provider.CompressorByName(c.Codec.Compression)
	if err != nil {
		return nil, fmt.Errorf("codec.compression: %w", err)
	}

	crypt, err := provider.CryptographerByName(c.Crypto.Algorithm, c.Crypto.Passphrase, []byte(c.Crypto.Salt))
	if err != nil {
		return nil, fmt.Errorf("crypto: %w", err)
	}

	opts := []peerlink.Option{
		peerlink.SerializerOption(s),
		peerlink.CompressorOption(comp),
		peerlink.ReadBufferOption(c.Buffer.Initial, c.Buffer.Max, c.Buffer.Growth),
		peerlink.MessageMaxSize(c.Buffer.MaxFrame),
		peerlink.BufferSizeOption(c.SendBuffer),
		peerlink.QueryTimeoutOption(time.Duration(c.Query.Timeout)),
		peerlink.HeartbeatOption(c.Heartbeat),
		peerlink.ShutdownTimeoutOption(c.ShutdownTimeout),
	}
	if crypt != nil {
		opts = append(opts, peerlink.CryptographerOption(crypt))
	}
	if c.UserParam != "" {
		opts = append(opts, peerlink.UserParamOption(c.UserParam))
	}
	return opts, nil
}
