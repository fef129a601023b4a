// control/config.go
// Author: momentics <momentics@gmail.com>
//
// Event loop configuration: defaults, file and environment loading, and
// validation.

package control

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/momentics/hioload-nio/api"
	"github.com/momentics/hioload-nio/pool"
	"github.com/spf13/viper"
)

// EnvPrefix prefixes environment overrides, e.g. HIOLOAD_NIO_PORT=9000.
const EnvPrefix = "HIOLOAD_NIO"

// Config is the configuration surface consumed by the event loop.
type Config struct {
	Name    string `mapstructure:"name"`
	Host    string `mapstructure:"host"`
	Port    int    `mapstructure:"port"`
	Backlog int    `mapstructure:"backlog"`
	// Daemon marks the loop goroutine as a background worker: the CLI
	// does not wait for it on exit.
	Daemon bool `mapstructure:"daemon"`
	// CPUAffinity pins the loop thread to one CPU; negative disables.
	CPUAffinity int `mapstructure:"cpu_affinity"`

	// MaxConns seeds both per-role limits when they are unset.
	MaxConns       int `mapstructure:"max_conns"`
	MaxServerConns int `mapstructure:"max_server_conns"`
	MaxClientConns int `mapstructure:"max_client_conns"`

	ConnectTimeout time.Duration `mapstructure:"connect_timeout"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	WriteTimeout   time.Duration `mapstructure:"write_timeout"`

	AutoRead        bool `mapstructure:"auto_read"`
	MaxReadBuffers  int  `mapstructure:"max_read_buffers"`
	MaxWriteBuffers int  `mapstructure:"max_write_buffers"`
	WriteSpinCount  int  `mapstructure:"write_spin_count"`

	BufferSize   int           `mapstructure:"buffer_size"`
	PoolSize     int64         `mapstructure:"pool_size"`
	PoolStrategy pool.Strategy `mapstructure:"pool_strategy"`
	BufferDirect bool          `mapstructure:"buffer_direct"`

	// StoreDir holds the overflow store's backing file; empty uses the
	// system temp dir.
	StoreDir   string `mapstructure:"store_dir"`
	StoreSize  int64  `mapstructure:"store_size"`
	RegionSize int    `mapstructure:"region_size"`
	// DisableStore turns write overflow off; output buffering is then
	// bounded only by the pool.
	DisableStore bool `mapstructure:"disable_store"`

	LogLevel    string `mapstructure:"log_level"`
	LogJSON     bool   `mapstructure:"log_json"`
	MetricsAddr string `mapstructure:"metrics_addr"`
}

// DefaultConfig returns the built-in defaults.
func DefaultConfig() *Config {
	return &Config{
		Name:            "hioload-nio",
		Host:            "0.0.0.0",
		Port:            9696,
		Backlog:         1024,
		CPUAffinity:     -1,
		MaxConns:        10240,
		ConnectTimeout:  5 * time.Second,
		AutoRead:        true,
		MaxReadBuffers:  8,
		MaxWriteBuffers: 64,
		WriteSpinCount:  16,
		BufferSize:      16 << 10,
		PoolSize:        256 << 20,
		PoolStrategy:    pool.StrategyArray,
		BufferDirect:    true,
		RegionSize:      1 << 20,
		LogLevel:        "info",
	}
}

// ApplyDefaults fills role limits derived from MaxConns.
func (c *Config) ApplyDefaults() {
	if c.MaxServerConns == 0 {
		c.MaxServerConns = c.MaxConns
	}
	if c.MaxClientConns == 0 {
		c.MaxClientConns = c.MaxConns
	}
}

// Validate checks the configuration for values the core cannot run with.
func (c *Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}
	check(c.Port >= 0 && c.Port <= 65535, "port %d out of range", c.Port)
	check(c.Backlog > 0, "backlog %d must be positive", c.Backlog)
	check(c.CPUAffinity >= -1, "cpu_affinity %d must be -1 or a cpu index", c.CPUAffinity)
	check(c.MaxServerConns > 0, "max_server_conns %d must be positive", c.MaxServerConns)
	check(c.MaxClientConns > 0, "max_client_conns %d must be positive", c.MaxClientConns)
	check(c.ConnectTimeout >= 0, "connect_timeout %s must not be negative", c.ConnectTimeout)
	check(c.MaxReadBuffers >= 1, "max_read_buffers %d must be at least 1", c.MaxReadBuffers)
	check(c.MaxWriteBuffers >= 2, "max_write_buffers %d must be at least 2", c.MaxWriteBuffers)
	check(c.WriteSpinCount >= 1, "write_spin_count %d must be at least 1", c.WriteSpinCount)
	check(c.BufferSize > 0 && c.BufferSize&(c.BufferSize-1) == 0,
		"buffer_size %d must be a positive power of two", c.BufferSize)
	check(c.PoolSize >= int64(c.BufferSize), "pool_size %d must hold at least one buffer", c.PoolSize)
	check(c.RegionSize > 0, "region_size %d must be positive", c.RegionSize)
	check(c.StoreSize >= 0, "store_size %d must not be negative", c.StoreSize)
	if len(errs) == 0 {
		return nil
	}
	return fmt.Errorf("%w: %w", api.ErrInvalidConfig, errors.Join(errs...))
}

// Load reads configuration with precedence env > file > defaults. An empty
// path skips the file; a missing file is not an error.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v, DefaultConfig())
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) && !os.IsNotExist(err) {
				return nil, fmt.Errorf("read config: %w", err)
			}
		}
	}
	return decode(v)
}

func decode(v *viper.Viper) (*Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg, viper.DecodeHook(decodeHooks())); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// setDefaults registers every key so AutomaticEnv can see it during
// Unmarshal.
func setDefaults(v *viper.Viper, d *Config) {
	var m map[string]any
	_ = mapstructure.Decode(d, &m)
	for k, val := range m {
		if s, ok := val.(pool.Strategy); ok {
			val = s.String()
		}
		v.SetDefault(k, val)
	}
}

func decodeHooks() mapstructure.DecodeHookFunc {
	return mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		strategyDecodeHook(),
	)
}

func strategyDecodeHook() mapstructure.DecodeHookFunc {
	return func(from reflect.Type, to reflect.Type, data any) (any, error) {
		if to != reflect.TypeOf(pool.Strategy(0)) || from.Kind() != reflect.String {
			return data, nil
		}
		return pool.ParseStrategy(data.(string))
	}
}
