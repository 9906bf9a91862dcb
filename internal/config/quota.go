package config

import (
	"errors"
	"log"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// QuotaLimits maps a feature code to its monthly allowance.
type QuotaLimits struct {
	Features map[string]int `mapstructure:"features"`
}

// DefaultQuotaLimits returns the monthly allowances, with env overrides so
// limits can be tuned per deployment without a quotas.yml.
func DefaultQuotaLimits() QuotaLimits {
	return QuotaLimits{
		Features: map[string]int{
			"answer_grading": getenvInt("QUOTA_LIMIT_ANSWER_GRADING", 10),
			"study_path":     getenvInt("QUOTA_LIMIT_STUDY_PATH", 20),
		},
	}
}

// For returns the limit for a feature, or 0 when the feature is unknown.
func (q QuotaLimits) For(feature string) int {
	return q.Features[strings.TrimSpace(feature)]
}

// QuotaLimitsHolder serves the current quota limits and hot-reloads them
// from an optional quotas.yml so allowances can change without a deploy.
type QuotaLimitsHolder struct {
	current atomic.Value // holds QuotaLimits
}

// NewQuotaLimitsHolder loads quotas.yml when present and watches it for changes.
// A missing file is not an error; defaults apply.
func NewQuotaLimitsHolder() (*QuotaLimitsHolder, error) {
	v := viper.New()

	v.SetConfigName("quotas")
	v.SetConfigType("yml")
	v.AddConfigPath("/etc/mentora")
	v.AddConfigPath("./config")

	holder := &QuotaLimitsHolder{}
	holder.current.Store(DefaultQuotaLimits())

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) {
			return holder, nil
		}
		return nil, err
	}

	if err := holder.reload(v); err != nil {
		return nil, err
	}

	v.OnConfigChange(func(_ fsnotify.Event) {
		if err := holder.reload(v); err != nil {
			log.Printf("quota limits reload failed: %v", err)
		}
	})
	v.WatchConfig()

	return holder, nil
}

// NewStaticQuotaLimitsHolder wraps fixed limits without file watching.
func NewStaticQuotaLimitsHolder(limits QuotaLimits) *QuotaLimitsHolder {
	holder := &QuotaLimitsHolder{}
	holder.current.Store(limits)
	return holder
}

// Current returns the active limits snapshot.
func (h *QuotaLimitsHolder) Current() QuotaLimits {
	return h.current.Load().(QuotaLimits)
}

func (h *QuotaLimitsHolder) reload(v *viper.Viper) error {
	limits := DefaultQuotaLimits()
	if err := v.Unmarshal(&limits); err != nil {
		return err
	}
	for feature, limit := range limits.Features {
		if limit < 0 {
			return errors.New("quota limit for " + feature + " must not be negative")
		}
	}
	h.current.Store(limits)
	return nil
}
