// Package config loads and validates the bridge's configuration from a
// YAML file (whose path the caller passes in) and environment variables
// (with an optional local .env), using a layered viper/godotenv approach.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// RetryConfig controls AlertSink's exponential backoff.
type RetryConfig struct {
	MaxAttempts int           `mapstructure:"maxAttempts"`
	Backoff     time.Duration `mapstructure:"backoff"`
}

// AlertmanagerConfig configures the outbound Alertmanager HTTP client.
type AlertmanagerConfig struct {
	URL            string        `mapstructure:"url"`
	APIPath        string        `mapstructure:"apiPath"`
	ConnectTimeout time.Duration `mapstructure:"connectTimeout"`
	ReadTimeout    time.Duration `mapstructure:"readTimeout"`
	Enabled        bool          `mapstructure:"enabled"`
	Retry          RetryConfig   `mapstructure:"retry"`
}

// TopicsConfig names the two Kafka input streams.
type TopicsConfig struct {
	Alarms string `mapstructure:"alarms"`
	Nodes  string `mapstructure:"nodes"`
}

// LabelMappingsConfig controls which node-derived labels the mapper emits.
type LabelMappingsConfig struct {
	IncludeNodeMetadata   bool   `mapstructure:"includeNodeMetadata"`
	NodeMetadataPrefix    string `mapstructure:"nodeMetadataPrefix"`
	IncludeNodeCategories bool   `mapstructure:"includeNodeCategories"`
	CategoriesLabel       string `mapstructure:"categoriesLabel"`
}

// AnnotationMappingsConfig controls which annotations the mapper emits.
type AnnotationMappingsConfig struct {
	IncludeNodeDetails          bool   `mapstructure:"includeNodeDetails"`
	NodeDetailsKey              string `mapstructure:"nodeDetailsKey"`
	IncludeDescription          bool   `mapstructure:"includeDescription"`
	IncludeOperatorInstructions bool   `mapstructure:"includeOperatorInstructions"`
}

// AlertConfig controls resend cadence and the alert-mapping policy.
type AlertConfig struct {
	ResendInterval      time.Duration            `mapstructure:"resendInterval"`
	ResolvedRetention   time.Duration            `mapstructure:"resolvedRetention"`
	StaticLabels        map[string]string        `mapstructure:"staticLabels"`
	IncludeSeverities   []string                 `mapstructure:"includeSeverities"`
	ExcludeUEIs         []string                 `mapstructure:"excludeUeis"`
	LabelMappings       LabelMappingsConfig       `mapstructure:"labelMappings"`
	AnnotationMappings  AnnotationMappingsConfig  `mapstructure:"annotationMappings"`
}

// Config holds every configuration key enumerated by the bridge's external
// interface contract.
type Config struct {
	KafkaBrokers        string             `mapstructure:"kafkaBrokers"`
	AlarmsGroupID       string             `mapstructure:"alarmsGroupId"`
	NodesGroupID        string             `mapstructure:"nodesGroupId"`
	AdminAddr           string             `mapstructure:"adminAddr"`
	RedisAddr           string             `mapstructure:"redisAddr"`
	OpennmsBaseURL      string             `mapstructure:"opennmsBaseUrl"`
	Alertmanager        AlertmanagerConfig `mapstructure:"alertmanager"`
	Topics              TopicsConfig       `mapstructure:"topics"`
	Alert               AlertConfig        `mapstructure:"alert"`
}

// Load reads configuration from (in increasing priority) defaults, an
// optional YAML config file, a local .env file, and the process
// environment. Env vars carry the BRIDGE_ prefix and use "_" in place of
// "." (e.g. BRIDGE_ALERTMANAGER_RETRY_MAXATTEMPTS for
// alertmanager.retry.maxAttempts).
func Load(configFile string) (*Config, error) {
	// .env is best-effort: a missing file is not an error.
	_ = godotenv.Load()

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("BRIDGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("reading config file %s: %w", configFile, err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshalling config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("kafkaBrokers", "localhost:9092")
	v.SetDefault("alarmsGroupId", "onms-bridge-alarms")
	v.SetDefault("nodesGroupId", "onms-bridge-nodes")
	v.SetDefault("adminAddr", ":8080")
	v.SetDefault("redisAddr", "")
	v.SetDefault("opennmsBaseUrl", "http://localhost:8980/opennms")

	v.SetDefault("alertmanager.url", "http://localhost:9093")
	v.SetDefault("alertmanager.apiPath", "/api/v2/alerts")
	v.SetDefault("alertmanager.connectTimeout", 5*time.Second)
	v.SetDefault("alertmanager.readTimeout", 10*time.Second)
	v.SetDefault("alertmanager.enabled", true)
	v.SetDefault("alertmanager.retry.maxAttempts", 3)
	v.SetDefault("alertmanager.retry.backoff", 500*time.Millisecond)

	v.SetDefault("topics.alarms", "alarms")
	v.SetDefault("topics.nodes", "nodes")

	v.SetDefault("alert.resendInterval", time.Minute)
	v.SetDefault("alert.resolvedRetention", 10*time.Minute)
	v.SetDefault("alert.labelMappings.includeNodeMetadata", true)
	v.SetDefault("alert.labelMappings.nodeMetadataPrefix", "opennms_meta_")
	v.SetDefault("alert.labelMappings.includeNodeCategories", true)
	v.SetDefault("alert.labelMappings.categoriesLabel", "opennms_categories")
	v.SetDefault("alert.annotationMappings.includeNodeDetails", false)
	v.SetDefault("alert.annotationMappings.nodeDetailsKey", "opennms_node")
	v.SetDefault("alert.annotationMappings.includeDescription", true)
	v.SetDefault("alert.annotationMappings.includeOperatorInstructions", true)
}

// Validate checks that all required configuration fields are set and have
// valid values.
func (c *Config) Validate() error {
	if c.KafkaBrokers == "" {
		return fmt.Errorf("kafkaBrokers cannot be empty")
	}
	if c.Topics.Alarms == "" {
		return fmt.Errorf("topics.alarms cannot be empty")
	}
	if c.Topics.Nodes == "" {
		return fmt.Errorf("topics.nodes cannot be empty")
	}
	if c.AlarmsGroupID == "" {
		return fmt.Errorf("alarmsGroupId cannot be empty")
	}
	if c.NodesGroupID == "" {
		return fmt.Errorf("nodesGroupId cannot be empty")
	}
	if c.Alertmanager.URL == "" {
		return fmt.Errorf("alertmanager.url cannot be empty")
	}
	if c.Alertmanager.APIPath == "" {
		return fmt.Errorf("alertmanager.apiPath cannot be empty")
	}
	if c.Alertmanager.Retry.MaxAttempts < 0 {
		return fmt.Errorf("alertmanager.retry.maxAttempts must be >= 0")
	}
	if c.Alert.ResendInterval <= 0 {
		return fmt.Errorf("alert.resendInterval must be > 0")
	}
	return nil
}
