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

// DotationPolicy holds the business knobs of the dotation engine.
type DotationPolicy struct {
	CreationWindowMonths  int           `mapstructure:"creation_window_months"`
	MinTenureMonths       int           `mapstructure:"min_tenure_months"`
	MaxWageMultiple       int           `mapstructure:"max_wage_multiple"`
	ManualReasonMaxLength int           `mapstructure:"manual_reason_max_length"`
	PlaceholderSizeLabel  string        `mapstructure:"placeholder_size_label"`
	PlaceholderGenderID   int64         `mapstructure:"placeholder_gender_id"`
	QueryTimeout          time.Duration `mapstructure:"query_timeout"`
}

func DefaultDotationPolicy() DotationPolicy {
	return DotationPolicy{
		CreationWindowMonths:  1,
		MinTenureMonths:       3,
		MaxWageMultiple:       2,
		ManualReasonMaxLength: 255,
		PlaceholderSizeLabel:  "SIN_TALLA",
		PlaceholderGenderID:   1,
		QueryTimeout:          10 * time.Second,
	}
}

// PolicySource yields the policy currently in effect.
type PolicySource interface {
	Get() DotationPolicy
}

type staticPolicy DotationPolicy

func (p staticPolicy) Get() DotationPolicy { return DotationPolicy(p) }

// StaticPolicy returns a PolicySource that never changes.
func StaticPolicy(p DotationPolicy) PolicySource {
	return staticPolicy(p)
}

// PolicyOrDefault resolves a possibly nil source.
func PolicyOrDefault(src PolicySource) DotationPolicy {
	if src == nil {
		return DefaultDotationPolicy()
	}
	return src.Get()
}

type DotationPolicyHolder struct {
	current atomic.Value // holds DotationPolicy
}

func NewDotationPolicyHolder(log *zap.Logger) (*DotationPolicyHolder, error) {
	v := viper.New()

	v.SetConfigName("dotation")
	v.SetConfigType("yml")
	v.AddConfigPath("/etc/dotation")
	v.AddConfigPath("./config")
	v.AddConfigPath(".")

	v.SetEnvPrefix("DOTATION")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultDotationPolicy()
	v.SetDefault("dotation.creation_window_months", defaults.CreationWindowMonths)
	v.SetDefault("dotation.min_tenure_months", defaults.MinTenureMonths)
	v.SetDefault("dotation.max_wage_multiple", defaults.MaxWageMultiple)
	v.SetDefault("dotation.manual_reason_max_length", defaults.ManualReasonMaxLength)
	v.SetDefault("dotation.placeholder_size_label", defaults.PlaceholderSizeLabel)
	v.SetDefault("dotation.placeholder_gender_id", defaults.PlaceholderGenderID)
	v.SetDefault("dotation.query_timeout", defaults.QueryTimeout)

	fileFound := true
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		fileFound = false
	}

	var policy DotationPolicy
	if err := v.UnmarshalKey("dotation", &policy); err != nil {
		return nil, err
	}
	if err := ValidateDotationPolicy(policy); err != nil {
		return nil, err
	}

	holder := &DotationPolicyHolder{}
	holder.current.Store(policy)

	if log == nil {
		log = zap.NewNop()
	}
	log = log.Named("dotation.policy")

	if fileFound {
		v.WatchConfig()
		v.OnConfigChange(func(e fsnotify.Event) {
			var updated DotationPolicy
			if err := v.UnmarshalKey("dotation", &updated); err != nil {
				log.Warn("policy reload failed", zap.Error(err))
				return
			}
			if err := ValidateDotationPolicy(updated); err != nil {
				log.Warn("invalid policy ignored", zap.Error(err))
				return
			}
			holder.current.Store(updated)
			log.Info("policy reloaded", zap.String("file", e.Name))
		})
	}

	return holder, nil
}

func (h *DotationPolicyHolder) Get() DotationPolicy {
	return h.current.Load().(DotationPolicy)
}

func providePolicySource(h *DotationPolicyHolder) PolicySource {
	return h
}

func ValidateDotationPolicy(p DotationPolicy) error {
	if p.CreationWindowMonths < 1 {
		return errors.New("dotation.creation_window_months must be >= 1")
	}
	if p.MinTenureMonths < 0 {
		return errors.New("dotation.min_tenure_months cannot be negative")
	}
	if p.MaxWageMultiple < 1 {
		return errors.New("dotation.max_wage_multiple must be >= 1")
	}
	if p.ManualReasonMaxLength < 1 {
		return errors.New("dotation.manual_reason_max_length must be >= 1")
	}
	if strings.TrimSpace(p.PlaceholderSizeLabel) == "" {
		return errors.New("dotation.placeholder_size_label cannot be empty")
	}
	if p.QueryTimeout <= 0 {
		return errors.New("dotation.query_timeout must be positive")
	}
	return nil
}
