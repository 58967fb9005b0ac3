package config

import (
	"fmt"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Config holds every tunable. Projects customize it via .shiftwing.yaml,
// ~/.shiftwing.yaml or SHIFTWING_* environment variables:
//
//	executor:
//	  stalenessThreshold: 45m
//	  maxStepsPerCycle: 2
//	planner:
//	  windowDuration: 6h
//	worker:
//	  command: ./scripts/do-step.sh
type Config struct {
	Dir       string          `mapstructure:"dir"`
	Format    string          `mapstructure:"format" validate:"oneof=json yaml toml"`
	Executor  ExecutorConfig  `mapstructure:"executor"`
	Planner   PlannerConfig   `mapstructure:"planner"`
	Trigger   TriggerConfig   `mapstructure:"trigger"`
	Worker    WorkerConfig    `mapstructure:"worker"`
	Notify    NotifyConfig    `mapstructure:"notify"`
	Log       LogConfig       `mapstructure:"log"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

type ExecutorConfig struct {
	StalenessThreshold      time.Duration `mapstructure:"stalenessThreshold" validate:"gt=0"`
	StepTimeout             time.Duration `mapstructure:"stepTimeout" validate:"gt=0"`
	MaxAttempts             int           `mapstructure:"maxAttempts" validate:"gte=1"`
	MaxStepsPerCycle        int           `mapstructure:"maxStepsPerCycle" validate:"gte=1"`
	FastCompletionThreshold time.Duration `mapstructure:"fastCompletionThreshold" validate:"gte=0"`
	RetryBackoff            time.Duration `mapstructure:"retryBackoff" validate:"gte=0"`
}

type PlannerConfig struct {
	ShiftName      string        `mapstructure:"shiftName" validate:"required"`
	WindowDuration time.Duration `mapstructure:"windowDuration" validate:"gt=0"`
	// ApprovalTimeout is how long a published proposal waits for an answer.
	ApprovalTimeout      time.Duration `mapstructure:"approvalTimeout" validate:"gt=0"`
	AutoApproveOnTimeout bool          `mapstructure:"autoApproveOnTimeout"`
	// SkipApprovalForCarryover starts a shift without asking when the whole
	// proposal is carryover the policy allows.
	SkipApprovalForCarryover bool   `mapstructure:"skipApprovalForCarryover"`
	MaxSubActionsPerStep     int    `mapstructure:"maxSubActionsPerStep" validate:"gte=1"`
	MaxStepsPerTask          int    `mapstructure:"maxStepsPerTask" validate:"gte=1"`
	MaxStepMinutes           int    `mapstructure:"maxStepMinutes" validate:"gte=1"`
	Approver                 string `mapstructure:"approver"`
}

type TriggerConfig struct {
	CycleInterval time.Duration `mapstructure:"cycleInterval" validate:"gt=0"`
	PlanInterval  time.Duration `mapstructure:"planInterval" validate:"gt=0"`
	WatchInbox    bool          `mapstructure:"watchInbox"`
}

type WorkerConfig struct {
	Command string   `mapstructure:"command"`
	Args    []string `mapstructure:"args"`
	Dir     string   `mapstructure:"dir"`
}

type NotifyConfig struct {
	Telegram TelegramConfig `mapstructure:"telegram"`
}

type TelegramConfig struct {
	Token  string `mapstructure:"token"`
	ChatID int64  `mapstructure:"chatId"`
}

type LogConfig struct {
	Level string `mapstructure:"level" validate:"oneof=debug info warn error"`
	File  string `mapstructure:"file"`
}

type TelemetryConfig struct {
	Enabled  bool   `mapstructure:"enabled"`
	APIKey   string `mapstructure:"apiKey"`
	Endpoint string `mapstructure:"endpoint"`
}

// SetDefaults registers every default on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("format", DefaultFormat)

	v.SetDefault("executor.stalenessThreshold", DefaultStalenessThreshold)
	v.SetDefault("executor.stepTimeout", DefaultStepTimeout)
	v.SetDefault("executor.maxAttempts", DefaultMaxAttempts)
	v.SetDefault("executor.maxStepsPerCycle", DefaultMaxStepsPerCycle)
	v.SetDefault("executor.fastCompletionThreshold", DefaultFastCompletionThreshold)
	v.SetDefault("executor.retryBackoff", DefaultRetryBackoff)

	v.SetDefault("planner.shiftName", DefaultShiftName)
	v.SetDefault("planner.windowDuration", DefaultWindowDuration)
	v.SetDefault("planner.approvalTimeout", DefaultApprovalTimeout)
	v.SetDefault("planner.autoApproveOnTimeout", true)
	v.SetDefault("planner.skipApprovalForCarryover", true)
	v.SetDefault("planner.maxSubActionsPerStep", DefaultMaxSubActionsPerStep)
	v.SetDefault("planner.maxStepsPerTask", DefaultMaxStepsPerTask)
	v.SetDefault("planner.maxStepMinutes", DefaultMaxStepMinutes)

	v.SetDefault("trigger.cycleInterval", DefaultCycleInterval)
	v.SetDefault("trigger.planInterval", DefaultPlanInterval)
	v.SetDefault("trigger.watchInbox", true)

	v.SetDefault("log.level", "info")
}

var configValidate = validator.New()

// Load unmarshals and validates the configuration held by v.
func Load(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := configValidate.Struct(cfg); err != nil {
		return Config{}, fmt.Errorf("invalid configuration: %w", err)
	}
	if cfg.Executor.StalenessThreshold <= cfg.Executor.StepTimeout {
		return Config{}, fmt.Errorf("invalid configuration: executor.stalenessThreshold (%s) must exceed executor.stepTimeout (%s)",
			cfg.Executor.StalenessThreshold, cfg.Executor.StepTimeout)
	}
	return cfg, nil
}

var (
	globalConfig *Config
	globalErr    error
	configOnce   sync.Once
)

// Get returns the process configuration, loading it from the global viper
// instance on first use.
func Get() (*Config, error) {
	configOnce.Do(func() {
		SetDefaults(viper.GetViper())
		cfg, err := Load(viper.GetViper())
		if err != nil {
			globalErr = err
			return
		}
		globalConfig = &cfg
	})
	return globalConfig, globalErr
}

// Reset forces Get to reload. Only use in tests.
func Reset() {
	configOnce = sync.Once{}
	globalConfig = nil
	globalErr = nil
}
