package config

import (
	"errors"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// EngineConfig holds the tunables of the billing engine. Values are
// hot-reloaded from engine.yml, so services read them through the holder on
// every operation instead of caching them.
type EngineConfig struct {
	ProtocolFeeBps           int64         `mapstructure:"protocolFeeBps"`
	DisputeResolutionTimeout time.Duration `mapstructure:"disputeResolutionTimeout"`
	CreditDecayHalfLife      time.Duration `mapstructure:"creditDecayHalfLife"`
	RiskWeights              RiskWeights   `mapstructure:"riskWeights"`
	NearDueWindow            time.Duration `mapstructure:"nearDueWindow"`
	OracleTTL                time.Duration `mapstructure:"oracleTTL"`
}

// RiskWeights are the blend weights of the payment-likelihood estimate.
// They must sum to 1.
type RiskWeights struct {
	Credit  float64 `mapstructure:"credit"`
	History float64 `mapstructure:"history"`
	Funding float64 `mapstructure:"funding"`
}

func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		ProtocolFeeBps:           50,
		DisputeResolutionTimeout: 7 * 24 * time.Hour,
		CreditDecayHalfLife:      30 * 24 * time.Hour,
		RiskWeights: RiskWeights{
			Credit:  0.4,
			History: 0.3,
			Funding: 0.3,
		},
		NearDueWindow: 3 * 24 * time.Hour,
		OracleTTL:     7 * 24 * time.Hour,
	}
}

type EngineConfigHolder struct {
	current atomic.Value // holds EngineConfig
}

// NewStaticEngineConfig returns a holder that never reloads.
func NewStaticEngineConfig(cfg EngineConfig) *EngineConfigHolder {
	holder := &EngineConfigHolder{}
	holder.current.Store(cfg)
	return holder
}

func NewEngineConfigHolder(appCfg Config, log *zap.Logger) (*EngineConfigHolder, error) {
	v := viper.New()

	if appCfg.EngineConfigPath != "" {
		v.SetConfigFile(appCfg.EngineConfigPath)
	} else {
		v.SetConfigName("engine")
		v.SetConfigType("yml")
		v.AddConfigPath("/etc/recurra")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("RECURRA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultEngineConfig()
	v.SetDefault("engine.protocolFeeBps", defaults.ProtocolFeeBps)
	v.SetDefault("engine.disputeResolutionTimeout", defaults.DisputeResolutionTimeout)
	v.SetDefault("engine.creditDecayHalfLife", defaults.CreditDecayHalfLife)
	v.SetDefault("engine.riskWeights.credit", defaults.RiskWeights.Credit)
	v.SetDefault("engine.riskWeights.history", defaults.RiskWeights.History)
	v.SetDefault("engine.riskWeights.funding", defaults.RiskWeights.Funding)
	v.SetDefault("engine.nearDueWindow", defaults.NearDueWindow)
	v.SetDefault("engine.oracleTTL", defaults.OracleTTL)

	fileLoaded := true
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, err
		}
		fileLoaded = false
	}

	cfg := readEngineConfig(v)
	if err := ValidateEngineConfig(cfg); err != nil {
		return nil, err
	}

	holder := NewStaticEngineConfig(cfg)
	if !fileLoaded {
		return holder, nil
	}

	log = log.Named("config.engine")
	v.WatchConfig()
	v.OnConfigChange(func(e fsnotify.Event) {
		if err := holder.Reload(readEngineConfig(v), log); err != nil {
			log.Warn("invalid engine config ignored", zap.Error(err))
			return
		}
		log.Info("engine config reloaded", zap.String("file", e.Name))
	})

	return holder, nil
}

// readEngineConfig reads key by key so that file values, RECURRA_ env
// overrides and defaults are merged per key.
func readEngineConfig(v *viper.Viper) EngineConfig {
	return EngineConfig{
		ProtocolFeeBps:           v.GetInt64("engine.protocolFeeBps"),
		DisputeResolutionTimeout: v.GetDuration("engine.disputeResolutionTimeout"),
		CreditDecayHalfLife:      v.GetDuration("engine.creditDecayHalfLife"),
		RiskWeights: RiskWeights{
			Credit:  v.GetFloat64("engine.riskWeights.credit"),
			History: v.GetFloat64("engine.riskWeights.history"),
			Funding: v.GetFloat64("engine.riskWeights.funding"),
		},
		NearDueWindow: v.GetDuration("engine.nearDueWindow"),
		OracleTTL:     v.GetDuration("engine.oracleTTL"),
	}
}

// Reload swaps in updated after validation. The credit decay half-life is
// pinned to its startup value: decay is derived at read time, and a larger
// half-life would move already-decayed scores back away from the base.
func (h *EngineConfigHolder) Reload(updated EngineConfig, log *zap.Logger) error {
	if err := ValidateEngineConfig(updated); err != nil {
		return err
	}
	current := h.Get()
	if updated.CreditDecayHalfLife != current.CreditDecayHalfLife {
		if log != nil {
			log.Warn("engine.creditDecayHalfLife requires a restart, keeping current value",
				zap.Duration("current", current.CreditDecayHalfLife),
				zap.Duration("requested", updated.CreditDecayHalfLife),
			)
		}
		updated.CreditDecayHalfLife = current.CreditDecayHalfLife
	}
	h.current.Store(updated)
	return nil
}

func (h *EngineConfigHolder) Get() EngineConfig {
	if h == nil {
		return DefaultEngineConfig()
	}
	cfg, ok := h.current.Load().(EngineConfig)
	if !ok {
		return DefaultEngineConfig()
	}
	return cfg
}

func ValidateEngineConfig(cfg EngineConfig) error {
	if cfg.ProtocolFeeBps < 0 || cfg.ProtocolFeeBps > 10_000 {
		return errors.New("engine.protocolFeeBps must be within [0, 10000]")
	}
	if cfg.DisputeResolutionTimeout <= 0 {
		return errors.New("engine.disputeResolutionTimeout must be positive")
	}
	if cfg.CreditDecayHalfLife <= 0 {
		return errors.New("engine.creditDecayHalfLife must be positive")
	}
	w := cfg.RiskWeights
	if w.Credit < 0 || w.History < 0 || w.Funding < 0 {
		return errors.New("engine.riskWeights cannot be negative")
	}
	if sum := w.Credit + w.History + w.Funding; sum < 0.999 || sum > 1.001 {
		return errors.New("engine.riskWeights must sum to 1")
	}
	if cfg.NearDueWindow < 0 {
		return errors.New("engine.nearDueWindow cannot be negative")
	}
	if cfg.OracleTTL <= 0 {
		return errors.New("engine.oracleTTL must be positive")
	}
	return nil
}
