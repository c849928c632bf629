// Package config loads BQuant's run configuration via viper: defaults
// first, then an optional config file, then environment variables
// prefixed BQUANT_.
package config

import (
	"strings"

	"github.com/spf13/viper"
)

// Config is the top-level run configuration for a pipeline invocation.
type Config struct {
	Environment string `mapstructure:"environment"`
	LogLevel    string `mapstructure:"log_level"`

	Swing      SwingConfig      `mapstructure:"swing"`
	Clustering ClusteringConfig `mapstructure:"clustering"`
	Workers    WorkersConfig    `mapstructure:"workers"`
	Statistics StatisticsConfig `mapstructure:"statistics"`
}

// SwingConfig holds the named swing-detection presets plus the name of
// the active one; the pipeline's WithConfig applies DefaultPreset.
type SwingConfig struct {
	DefaultPreset string                    `mapstructure:"default_preset"`
	Presets       map[string]SwingPresetCfg `mapstructure:"presets"`
}

// SwingPresetCfg mirrors features.SwingParams in primitive form so it
// can be unmarshaled directly from viper.
type SwingPresetCfg struct {
	Lookback        int     `mapstructure:"lookback"`
	MinAmplitudePct float64 `mapstructure:"min_amplitude_pct"`
	PivotWindow     int     `mapstructure:"pivot_window"`
	DeviationPct    float64 `mapstructure:"deviation_pct"`
	MinLegs         int     `mapstructure:"min_legs"`
}

// ClusteringConfig configures the optional k-means pass over zone
// feature vectors run by the pipeline's analyze() step.
type ClusteringConfig struct {
	Enabled    bool `mapstructure:"enabled"`
	NClusters  int  `mapstructure:"n_clusters"`
	MaxIters   int  `mapstructure:"max_iters"`
	Seed       int64 `mapstructure:"seed"`
	MinZones   int  `mapstructure:"min_zones"` // below this, clustering is skipped rather than degenerate
}

// WorkersConfig bounds the worker pool the pipeline uses for per-zone
// feature computation.
type WorkersConfig struct {
	PoolSize  int `mapstructure:"pool_size"`
	QueueSize int `mapstructure:"queue_size"`
}

// StatisticsConfig holds a default significance level and iteration
// counts for the C5/C7 suites. The suites take these values as
// arguments and do not read Config themselves.
type StatisticsConfig struct {
	Alpha            float64 `mapstructure:"alpha"`
	MonteCarloRuns   int     `mapstructure:"monte_carlo_runs"`
	BootstrapSamples int     `mapstructure:"bootstrap_samples"`
}

// Load reads configuration from defaults, an optional file at path
// (skipped if empty or not found), and BQUANT_-prefixed environment
// variables, in that order of increasing precedence.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("bquant")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
				return nil, err
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("environment", "development")
	v.SetDefault("log_level", "info")

	v.SetDefault("swing.default_preset", "default")
	v.SetDefault("swing.presets.default.lookback", 5)
	v.SetDefault("swing.presets.default.min_amplitude_pct", 0.01)
	v.SetDefault("swing.presets.default.pivot_window", 3)
	v.SetDefault("swing.presets.default.deviation_pct", 0.03)
	v.SetDefault("swing.presets.default.min_legs", 3)

	v.SetDefault("swing.presets.sensitive.lookback", 2)
	v.SetDefault("swing.presets.sensitive.min_amplitude_pct", 0.003)
	v.SetDefault("swing.presets.sensitive.pivot_window", 2)
	v.SetDefault("swing.presets.sensitive.deviation_pct", 0.01)
	v.SetDefault("swing.presets.sensitive.min_legs", 1)

	v.SetDefault("swing.presets.conservative.lookback", 10)
	v.SetDefault("swing.presets.conservative.min_amplitude_pct", 0.02)
	v.SetDefault("swing.presets.conservative.pivot_window", 5)
	v.SetDefault("swing.presets.conservative.deviation_pct", 0.05)
	v.SetDefault("swing.presets.conservative.min_legs", 5)

	v.SetDefault("clustering.enabled", false)
	v.SetDefault("clustering.n_clusters", 3)
	v.SetDefault("clustering.max_iters", 100)
	v.SetDefault("clustering.seed", 0)
	v.SetDefault("clustering.min_zones", 10)

	v.SetDefault("workers.pool_size", 4)
	v.SetDefault("workers.queue_size", 64)

	v.SetDefault("statistics.alpha", 0.05)
	v.SetDefault("statistics.monte_carlo_runs", 1000)
	v.SetDefault("statistics.bootstrap_samples", 1000)
}
