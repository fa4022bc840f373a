package jsbridge

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the tunables of an Env. It can be loaded from a TOML file.
type Config struct {
	// LogLevel is used to build a production zap logger when no logger is supplied.
	// Empty means the package Logger().
	LogLevel string `toml:"log_level"`

	// OverloadDetails appends every per-candidate failure to the message of an
	// OverloadError. The individual failures are always available through Unwrap.
	OverloadDetails bool `toml:"overload_details"`

	// PanicOnExternalMismatch panics instead of returning an ExternalTypeError when
	// an External is accessed with the wrong Go type or ownership mode.
	PanicOnExternalMismatch bool `toml:"panic_on_external_mismatch"`

	// CaptureStack appends the Go stack of a recovered panic to the host exception message.
	CaptureStack bool `toml:"capture_stack"`

	// LoopQueueSize is the capacity of the loop's job queue.
	LoopQueueSize int `toml:"loop_queue_size"`

	// MaxCallStackSize limits the host call stack depth. 0 keeps the runtime default.
	MaxCallStackSize int `toml:"max_call_stack_size"`

	// MaxArrayLength is the longest host Array converted to a Go slice or interface{}.
	// 0 means DefaultMaxArrayLength.
	MaxArrayLength int `toml:"max_array_length"`
}

// DefaultMaxArrayLength is the array length limit used when Config.MaxArrayLength is 0.
const DefaultMaxArrayLength = 1 << 24

// DefaultConfig returns the configuration used by NewEnv when none is given.
func DefaultConfig() Config {
	return Config{
		OverloadDetails: true,
		CaptureStack:    true,
		LoopQueueSize:   256,
		MaxArrayLength:  DefaultMaxArrayLength,
	}
}

// LoadConfig reads a TOML configuration file. Keys missing from the file keep their default.
func LoadConfig(path string) (Config, error) {
	cfg := DefaultConfig()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("cannot read %s: %w", path, err)
	}
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse error in %s: %w", path, err)
	}
	if err := cfg.validate(); err != nil {
		return cfg, fmt.Errorf("invalid config %s: %w", path, err)
	}
	return cfg, nil
}

func (c Config) validate() error {
	if c.LoopQueueSize < 0 {
		return fmt.Errorf("loop_queue_size must not be negative, got %d", c.LoopQueueSize)
	}
	if c.MaxCallStackSize < 0 {
		return fmt.Errorf("max_call_stack_size must not be negative, got %d", c.MaxCallStackSize)
	}
	if c.MaxArrayLength < 0 {
		return fmt.Errorf("max_array_length must not be negative, got %d", c.MaxArrayLength)
	}
	if c.LogLevel != "" {
		if _, err := zapcore.ParseLevel(c.LogLevel); err != nil {
			return fmt.Errorf("log_level: %w", err)
		}
	}
	return nil
}

// newLogger builds the logger described by LogLevel.
func (c Config) newLogger() (*zap.Logger, error) {
	if c.LogLevel == "" {
		return Logger(), nil
	}
	level, err := zapcore.ParseLevel(c.LogLevel)
	if err != nil {
		return nil, err
	}
	zc := zap.NewProductionConfig()
	zc.Level = zap.NewAtomicLevelAt(level)
	return zc.Build()
}

// EnvOption configures NewEnv using the functional options pattern.
type EnvOption func(*envOptions)

type envOptions struct {
	config Config
	logger *zap.Logger
}

// WithConfig sets the Env configuration.
func WithConfig(cfg Config) EnvOption {
	return func(o *envOptions) {
		o.config = cfg
	}
}

// WithLogger sets the Env logger, overriding Config.LogLevel.
func WithLogger(l *zap.Logger) EnvOption {
	return func(o *envOptions) {
		o.logger = l
	}
}
