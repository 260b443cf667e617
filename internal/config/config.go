// Package config loads the strategy engine's runtime configuration,
// grounded on pkg/config's yaml.Unmarshal-into-a-struct shape generalized
// from the teacher's all-services single Config blob down to this
// binary's own concerns: logging, the Redis-backed persistence sink, risk
// limits, retry policy, and the per-chain/protocol universe it scans.
package config

import (
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"gopkg.in/natefinch/lumberjack.v2"
	"gopkg.in/yaml.v2"

	"github.com/flowforge/strategy-engine/internal/domain"
	"github.com/flowforge/strategy-engine/internal/strategy"
	"github.com/flowforge/strategy-engine/pkg/redis"
)

// LoggingConfig mirrors pkg/config.LoggingConfig's shape — same fields,
// consumed by the same zap/lumberjack construction this binary performs
// directly rather than through the teacher's pkg/logger wrapper, since
// every internal package here already takes a bare *zap.Logger.
type LoggingConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"`
	Output     string `yaml:"output"`
	FilePath   string `yaml:"file_path"`
	MaxSize    int    `yaml:"max_size"`
	MaxAge     int    `yaml:"max_age"`
	MaxBackups int    `yaml:"max_backups"`
	Compress   bool   `yaml:"compress"`
}

// RedisConfig mirrors pkg/redis.Config's shape for YAML decoding; Build
// converts it to the concrete pkg/redis.Config the client constructor
// wants.
type RedisConfig struct {
	Addresses    []string      `yaml:"addresses"`
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	Password     string        `yaml:"password"`
	DB           int           `yaml:"db"`
	PoolSize     int           `yaml:"pool_size"`
	DialTimeout  time.Duration `yaml:"dial_timeout"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

// BuildLogger constructs a *zap.Logger from LoggingConfig, grounded on
// pkg/logger.NewLogger's encoder/writer/level wiring.
func (c LoggingConfig) BuildLogger() *zap.Logger {
	level := zapcore.InfoLevel
	if err := level.UnmarshalText([]byte(c.Level)); err != nil {
		level = zapcore.InfoLevel
	}

	encoderConfig := zap.NewProductionEncoderConfig()
	encoderConfig.TimeKey = "timestamp"
	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	var encoder zapcore.Encoder
	if c.Format == "json" {
		encoder = zapcore.NewJSONEncoder(encoderConfig)
	} else {
		encoder = zapcore.NewConsoleEncoder(encoderConfig)
	}

	var writer zapcore.WriteSyncer
	if c.Output == "file" {
		writer = zapcore.AddSync(&lumberjack.Logger{
			Filename:   c.FilePath,
			MaxSize:    c.MaxSize,
			MaxAge:     c.MaxAge,
			MaxBackups: c.MaxBackups,
			Compress:   c.Compress,
		})
	} else {
		writer = zapcore.AddSync(os.Stdout)
	}

	core := zapcore.NewCore(encoder, writer, level)
	return zap.New(core, zap.AddCaller(), zap.AddStacktrace(zapcore.ErrorLevel))
}

// Build converts the decoded RedisConfig into pkg/redis.Config.
func (c RedisConfig) Build() *redis.Config {
	return &redis.Config{
		Addresses:    c.Addresses,
		Host:         c.Host,
		Port:         c.Port,
		Password:     c.Password,
		DB:           c.DB,
		PoolSize:     c.PoolSize,
		DialTimeout:  c.DialTimeout,
		ReadTimeout:  c.ReadTimeout,
		WriteTimeout: c.WriteTimeout,
	}
}

// RiskLimitsConfig decodes into domain.RiskLimits (§5 global risk scope).
type RiskLimitsConfig struct {
	MaxSingleStrategyAllocation float64 `yaml:"max_single_strategy_allocation"`
	MaxStrategyRiskScore        int     `yaml:"max_strategy_risk_score"`
	MaxDailyLossPercentage      float64 `yaml:"max_daily_loss_percentage"`
	MaxTotalExposurePercentage  float64 `yaml:"max_total_exposure_percentage"`
	MaxConcurrentStrategies     int     `yaml:"max_concurrent_strategies"`
	EmergencyStop               bool    `yaml:"emergency_stop"`
}

// Build converts the decoded RiskLimitsConfig into domain.RiskLimits.
func (c RiskLimitsConfig) Build() domain.RiskLimits {
	return domain.RiskLimits{
		MaxSingleStrategyAllocation: c.MaxSingleStrategyAllocation,
		MaxStrategyRiskScore:        c.MaxStrategyRiskScore,
		MaxDailyLossPercentage:      c.MaxDailyLossPercentage,
		MaxTotalExposurePercentage:  c.MaxTotalExposurePercentage,
		MaxConcurrentStrategies:     c.MaxConcurrentStrategies,
		EmergencyStop:               c.EmergencyStop,
	}
}

// RetryPolicyConfig decodes into strategy.RetryPolicy (§4.1 retry
// semantics).
type RetryPolicyConfig struct {
	InitialDelayMs int `yaml:"initial_delay_ms"`
	MaxRetries     int `yaml:"max_retries"`
}

// Build converts the decoded RetryPolicyConfig into strategy.RetryPolicy.
func (c RetryPolicyConfig) Build() strategy.RetryPolicy {
	return strategy.RetryPolicy{InitialDelayMs: c.InitialDelayMs, MaxRetries: c.MaxRetries}
}

// ScanConfig holds the quality-filter thresholds the scanner applies to
// every discovered opportunity (§4.3).
type ScanConfig struct {
	MaxRiskScore      float64       `yaml:"max_risk_score"`
	MinAPYThreshold   float64       `yaml:"min_apy_threshold"`
	MinLiquidityScore float64       `yaml:"min_liquidity_score"`
	PollInterval      time.Duration `yaml:"poll_interval"`
}

// PersistenceConfig controls how often the engine's aggregate state is
// snapshotted to the Redis-backed sink (§6).
type PersistenceConfig struct {
	SnapshotInterval time.Duration `yaml:"snapshot_interval"`
}

// Config is the strategy engine's full runtime configuration.
type Config struct {
	Logging     LoggingConfig     `yaml:"logging"`
	Redis       RedisConfig       `yaml:"redis"`
	RiskLimits  RiskLimitsConfig  `yaml:"risk_limits"`
	Retry       RetryPolicyConfig `yaml:"retry"`
	Scan        ScanConfig        `yaml:"scan"`
	Persistence PersistenceConfig `yaml:"persistence"`
	ActiveChains []domain.ChainId `yaml:"active_chains"`
}

// Load reads and parses the YAML configuration at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse %s: %w", path, err)
	}
	return &cfg, nil
}
